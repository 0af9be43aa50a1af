// Lupos - persona-driven Discord responder

package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/tinyland-inc/lupos/cmd/lupos/internal"
	"github.com/tinyland-inc/lupos/cmd/lupos/internal/console"
	"github.com/tinyland-inc/lupos/cmd/lupos/internal/gateway"
	"github.com/tinyland-inc/lupos/cmd/lupos/internal/version"
)

func NewLuposCommand() *cobra.Command {
	short := fmt.Sprintf("%s lupos - persona-driven chat responder v%s\n\n", internal.Logo, internal.Build().Version)

	cmd := &cobra.Command{
		Use:     "lupos",
		Short:   short,
		Example: "lupos gateway --debug",
	}

	cmd.AddCommand(
		gateway.NewGatewayCommand(),
		console.NewChatCommand(),
		version.NewVersionCommand(),
	)

	return cmd
}

func main() {
	_ = godotenv.Load(".env")

	cmd := NewLuposCommand()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
