package cmd

import (
	"context"
	"fmt"

	"github.com/shikya/call-record-ingestor/internal"
	"github.com/shikya/call-record-ingestor/internal/record"
	"github.com/spf13/cobra"
)

var (
	flagOut     string
	flagContact string
	flagYear    int
	flagMonth   int
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export ingested records to an Excel workbook",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		config, err := loadConfig(cmd, (*internal.Config).ResolveStore)
		if err != nil {
			return err
		}

		filter := record.Filter{Contact: flagContact, Year: flagYear, Month: flagMonth}
		count, err := internal.New(*config).Export(context.Background(), flagOut, filter)
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Exported %d record(s) to %s\n", count, flagOut)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVarP(&flagOut, "out", "o", "records.xlsx", "path of the workbook to write")
	exportCmd.Flags().StringVar(&flagContact, "contact", "", "only export records for this contact")
	exportCmd.Flags().IntVar(&flagYear, "year", 0, "only export records from this year")
	exportCmd.Flags().IntVar(&flagMonth, "month", 0, "only export records from this month (1-12)")
	rootCmd.AddCommand(exportCmd)
}
