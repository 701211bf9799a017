// miabridge - Discord to webhook relay bridge
// License: MIT

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"miabridge/cmd/miabridge/internal"
	"miabridge/cmd/miabridge/internal/gateway"
	"miabridge/cmd/miabridge/internal/status"
	"miabridge/cmd/miabridge/internal/version"
)

func NewMiabridgeCommand() *cobra.Command {
	short := fmt.Sprintf("%s miabridge - Discord webhook relay v%s\n\n", internal.Logo, internal.GetVersion())

	cmd := &cobra.Command{
		Use:     "miabridge",
		Short:   short,
		Example: "miabridge gateway",
	}

	cmd.AddCommand(
		gateway.NewGatewayCommand(),
		status.NewStatusCommand(),
		version.NewVersionCommand(),
	)

	return cmd
}

func main() {
	cmd := NewMiabridgeCommand()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
