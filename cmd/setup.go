package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kyralis/chatrelay-go/internal/config"
	"github.com/kyralis/chatrelay-go/internal/discord"
)

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Initialize chatrelay configuration",
	RunE:  runSetup,
}

func init() {
	rootCmd.AddCommand(setupCmd)
}

func runSetup(cmd *cobra.Command, args []string) error {
	configPath := config.GetConfigPath()

	cfg, err := config.Load("")
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if cfg.WebhookConfigured() {
		fmt.Printf("Webhook already configured in %s\n", configPath)
		fmt.Println("Enter a new URL to replace it, or press Enter to keep it.")
	}

	url, err := promptWebhookURL(os.Stdin, cfg.WebhookURL)
	if err != nil {
		return err
	}
	cfg.WebhookURL = url

	if err := config.Save(cfg, ""); err != nil {
		return fmt.Errorf("saving config: %w", err)
	}
	fmt.Printf("✓ Webhook URL saved to %s\n", configPath)

	fmt.Println("\nchatrelay is ready!")
	fmt.Println("\nNext steps:")
	fmt.Printf("  1. Start the relay: chatrelay serve\n")
	fmt.Printf("  2. Point the game client at http://%s:%d/webhook\n", cfg.Listen.Host, cfg.Listen.Port)

	return nil
}

// promptWebhookURL reads webhook URLs from r until a valid one is entered.
// An empty line keeps current, when current is already valid.
func promptWebhookURL(r io.Reader, current string) (string, error) {
	reader := bufio.NewReader(r)
	for {
		fmt.Print("Enter your Discord webhook URL: ")
		line, err := reader.ReadString('\n')
		if err != nil && line == "" {
			return "", fmt.Errorf("reading webhook URL: %w", err)
		}
		url := strings.TrimSpace(line)

		if url == "" && strings.HasPrefix(current, discord.WebhookPrefix) {
			return current, nil
		}
		if strings.HasPrefix(url, discord.WebhookPrefix) {
			return url, nil
		}
		fmt.Printf("Invalid URL. Must start with %s — please try again.\n", discord.WebhookPrefix)
	}
}
