package version

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tinyland-inc/lupos/cmd/lupos/internal"
)

func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "version",
		Aliases: []string{"v"},
		Short:   "Show version information",
		Args:    cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			b := internal.Build()
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s lupos %s\n", internal.Logo, b)
			if b.Time != "" {
				fmt.Fprintf(out, "  Build: %s\n", b.Time)
			}
			fmt.Fprintf(out, "  Go:    %s\n", b.Go)
		},
	}
}
