package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kyralis/chatrelay-go/internal/config"
	"github.com/kyralis/chatrelay-go/internal/discord"
	"github.com/kyralis/chatrelay-go/internal/dispatch"
	"github.com/kyralis/chatrelay-go/internal/ingest"
	"github.com/kyralis/chatrelay-go/internal/ratelimit"
	"github.com/kyralis/chatrelay-go/internal/relay"
)

var (
	serveHost       string
	servePort       int
	serveConfigPath string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the relay (ingress listener + delivery dispatcher)",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveHost, "host", "", "Listen address (default from config)")
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "HTTP port (default from config)")
	serveCmd.Flags().StringVarP(&serveConfigPath, "config", "c", "", "Path to config.json")
}

func runServe(cmd *cobra.Command, args []string) error {
	// .env is optional; real env vars still win below.
	godotenv.Load()

	cfg, err := config.Load(serveConfigPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// --- Resolve settings: CLI flag → env var → config file ---

	if serveHost != "" {
		cfg.Listen.Host = serveHost
	} else if h := os.Getenv("CHATRELAY_HOST"); h != "" {
		cfg.Listen.Host = h
	}

	if servePort != 0 {
		cfg.Listen.Port = servePort
	} else if p := os.Getenv("CHATRELAY_PORT"); p != "" {
		if pv, err := strconv.Atoi(p); err == nil {
			cfg.Listen.Port = pv
		}
	}

	if url := os.Getenv("CHATRELAY_WEBHOOK_URL"); url != "" {
		cfg.WebhookURL = url
	}

	// Ensure webhook URL is set; prompt on first run.
	if !cfg.WebhookConfigured() {
		fmt.Println("No valid Discord webhook URL found in config.")
		url, err := promptWebhookURL(os.Stdin, "")
		if err != nil {
			return err
		}
		cfg.WebhookURL = url
		if err := config.Save(cfg, serveConfigPath); err != nil {
			return fmt.Errorf("saving config: %w", err)
		}
		fmt.Printf("✓ Webhook URL saved to %s\n", config.GetConfigPath())
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger, err := zap.NewProductionConfig().Build()
	if err != nil {
		return fmt.Errorf("building logger: %w", err)
	}
	defer logger.Sync()

	queue := relay.NewQueue(cfg.Queue.Capacity)
	budget := ratelimit.NewBudget(cfg.Delivery.RateLimit, msToDuration(cfg.Delivery.RateWindowMs))
	client := discord.NewClient(discord.ClientConfig{
		URL:     cfg.WebhookURL,
		Timeout: msToDuration(cfg.Delivery.TimeoutMs),
	})

	dispatcher := dispatch.New(queue, budget, client,
		logger.With(zap.String("component", "dispatcher")),
		dispatch.Config{
			MaxAttempts: cfg.Delivery.MaxAttempts,
			BackoffBase: msToDuration(cfg.Delivery.BackoffBaseMs),
			BackoffCap:  msToDuration(cfg.Delivery.BackoffCapMs),
			Grace:       msToDuration(cfg.Delivery.ShutdownGraceMs),
		})

	server := ingest.NewServer(
		ingest.Config{Host: cfg.Listen.Host, Port: cfg.Listen.Port},
		queue,
		dispatcher.Running,
		logger.With(zap.String("component", "ingress")),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		fmt.Println("\nShutting down...")
		cancel()
	}()

	fmt.Printf("Starting chatrelay on %s:%d...\n", cfg.Listen.Host, cfg.Listen.Port)

	// One delivery loop, one listener.
	errCh := make(chan error, 2)
	go func() { errCh <- dispatcher.Run(ctx) }()
	go func() { errCh <- server.Start(ctx) }()

	if err := <-errCh; err != nil {
		cancel()
		<-errCh
		return err
	}
	cancel()
	return <-errCh
}

func msToDuration(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
