package console

import (
	"github.com/spf13/cobra"
)

func NewChatCommand() *cobra.Command {
	var (
		message string
		debug   bool
	)

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Talk to the persona from the terminal",
		Long: "Runs the full response pipeline against a local in-memory channel.\n" +
			"Commands: /stats, /mood <text>, /news <text>, /topic <text>, /digest, /help.",
		Args: cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return chatCmd(message, debug)
		},
	}

	cmd.Flags().StringVarP(&message, "message", "m", "", "Send a single message (non-interactive mode)")
	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")

	return cmd
}
