package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/shikya/call-record-ingestor/internal"
	"github.com/spf13/cobra"
)

var flagForceSync int

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Ingest recordings as they arrive in the source directory, until interrupted",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		config, err := loadConfig(cmd, (*internal.Config).Resolve)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return internal.New(*config).Watch(ctx)
	},
}

func init() {
	watchCmd.Flags().IntVar(&flagForceSync, "force-sync", 300, "seconds between forced scans of the source directory")
	rootCmd.AddCommand(watchCmd)
}
