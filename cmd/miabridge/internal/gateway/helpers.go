package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"

	"miabridge/cmd/miabridge/internal"
	"miabridge/pkg/bus"
	"miabridge/pkg/discord"
	"miabridge/pkg/flags"
	"miabridge/pkg/health"
	"miabridge/pkg/logger"
	"miabridge/pkg/relay"
)

func gatewayCmd(debug bool) error {
	if debug {
		logger.SetLevel(logger.DEBUG)
		fmt.Println("🔍 Debug mode enabled")
	}

	cfg, err := internal.LoadConfig()
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	if cfg.Log.File != "" {
		if err := logger.AttachFile(cfg.Log.File); err != nil {
			return fmt.Errorf("error opening log file: %w", err)
		}
		defer logger.CloseFile()
	}

	logger.InfoCF("gateway", "Configuration loaded", map[string]any{
		"flipt_url": cfg.Flipt.URL,
		"flag_key":  cfg.Flipt.FlagKey,
	})

	// One HTTP client for the process lifetime, shared by the flag gate
	// and the webhook relay. Deadlines are per-call, not client-wide.
	httpClient := &http.Client{}
	defer httpClient.CloseIdleConnections()

	gate := flags.NewClient(flags.Config{
		URL:       cfg.Flipt.URL,
		Namespace: cfg.Flipt.Namespace,
		FlagKey:   cfg.Flipt.FlagKey,
	}, httpClient)

	relayClient := relay.NewClient(cfg.Webhook.URL, httpClient)

	msgBus := bus.NewMessageBus()
	pipeline := discord.NewPipeline(gate, relayClient, msgBus)
	channel := discord.NewChannel(cfg.Discord.Token, msgBus, gate)

	healthServer := health.NewServer(cfg.Gateway.Host, cfg.Gateway.Port)
	channel.SetOnReady(func() { healthServer.SetReady(true) })
	go func() {
		if err := healthServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.ErrorCF("health", "Health server error", map[string]any{"error": err.Error()})
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := channel.Start(ctx); err != nil {
		return fmt.Errorf("error starting discord channel: %w", err)
	}

	pipeline.SetBotID(channel.BotID())
	go pipeline.Run(ctx)

	fmt.Printf("✓ Gateway started, health endpoints at http://%s:%d/health and /ready\n",
		cfg.Gateway.Host, cfg.Gateway.Port)
	fmt.Println("Press Ctrl+C to stop")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt)
	<-sigChan

	fmt.Println("\nShutting down...")
	cancel()
	msgBus.Close()
	if err := channel.Stop(context.Background()); err != nil {
		logger.WarnCF("gateway", "Channel stop error", map[string]any{"error": err.Error()})
	}
	healthServer.Stop(context.Background())
	fmt.Println("✓ Gateway stopped")

	return nil
}
