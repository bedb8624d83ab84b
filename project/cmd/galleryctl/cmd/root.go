package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
)

var version = "dev"

// rootCmd はサブコマンドを持たない基底コマンドです
var rootCmd = &cobra.Command{
	Use:   "galleryctl",
	Short: "Operator tools for the hackathon project gallery",
	Long: `galleryctl runs maintenance tasks against the configured gallery store:
collapsing duplicate projects, fetching the latest group messages once,
and listing what the gallery currently shows.

Configuration is read from the same environment / .env / GALLERY_CONFIG_FILE
as the server.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute はルートコマンドを実行します。main.main から1回だけ呼ばれます
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "enable debug logging")
}
