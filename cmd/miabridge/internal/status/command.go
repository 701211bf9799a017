// Package status implements the `miabridge status` command: a
// standalone connectivity check against the Flipt deployment, run
// before pointing the bot at it.
package status

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"miabridge/cmd/miabridge/internal"
	"miabridge/pkg/flags"
)

const probeEntityID = "status_probe"

func NewStatusCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Check Flipt connectivity and flag state",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return statusCmd()
		},
	}

	return cmd
}

func statusCmd() error {
	cfg, err := internal.LoadConfig()
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}

	httpClient := &http.Client{}
	defer httpClient.CloseIdleConnections()

	client := flags.NewClient(flags.Config{
		URL:       cfg.Flipt.URL,
		Namespace: cfg.Flipt.Namespace,
		FlagKey:   cfg.Flipt.FlagKey,
	}, httpClient)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	fmt.Printf("Flipt: %s (namespace %q, flag %q)\n\n",
		cfg.Flipt.URL, cfg.Flipt.Namespace, cfg.Flipt.FlagKey)

	fmt.Print("Health check... ")
	if err := client.Health(ctx); err != nil {
		fmt.Println("FAILED")
		return fmt.Errorf("flipt is unreachable: %w", err)
	}
	fmt.Println("ok")

	fmt.Print("Flag lookup...  ")
	name, enabled, err := client.FlagInfo(ctx)
	if err != nil {
		fmt.Println("FAILED")
		return fmt.Errorf("flag %q not readable: %w", cfg.Flipt.FlagKey, err)
	}
	fmt.Printf("ok (name=%q enabled=%v)\n", name, enabled)

	fmt.Print("Evaluation...   ")
	result, reason, err := client.Evaluate(ctx, probeEntityID)
	if err != nil {
		fmt.Println("FAILED")
		return fmt.Errorf("boolean evaluation failed: %w", err)
	}
	fmt.Printf("ok (enabled=%v reason=%q)\n", result, reason)

	fmt.Println("\n✓ Flipt is ready; start the bot with: miabridge gateway")
	return nil
}
