package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/shikya/call-record-ingestor/internal"
	"github.com/spf13/cobra"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Ingest every recording currently in the source directory, then exit",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		config, err := loadConfig(cmd, (*internal.Config).Resolve)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		summary, err := internal.New(*config).Ingest(ctx)
		if summary != nil {
			fmt.Fprintf(cmd.OutOrStdout(), "Run %s: %s\n", summary.RunID, summary)
		}

		return err
	},
}

func init() {
	rootCmd.AddCommand(ingestCmd)
}
