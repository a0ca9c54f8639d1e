package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version is set at build time.
var Version = "dev"

var rootCmd = &cobra.Command{
	Use:   "chatrelay",
	Short: "chatrelay — forwards game chat webhooks to a Discord webhook",
	Long:  "chatrelay is a local relay that receives chat-log webhook calls from the game client and forwards them to a Discord webhook, respecting the destination's rate limits.",
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.Version = Version
}
