package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/prospect-cli/internal/store"
)

var reportBusinessID string

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Compile markdown reports from already persisted crawl data",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		summary, err := env.Pipeline.Report(ctx, store.BusinessFilter{ID: reportBusinessID})
		if err != nil {
			return eris.Wrap(err, "pipeline report")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(summary)
	},
}

func init() {
	reportCmd.Flags().StringVar(&reportBusinessID, "business-id", "", "compile a single business by ID")
	rootCmd.AddCommand(reportCmd)
}
