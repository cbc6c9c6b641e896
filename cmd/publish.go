package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/prospect-cli/internal/store"
)

var publishBusinessID string

var publishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Compile and publish reports to Zoho CRM without crawling",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		summary, err := env.Pipeline.Publish(ctx, store.BusinessFilter{ID: publishBusinessID})
		if err != nil {
			return eris.Wrap(err, "pipeline publish")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(summary)
	},
}

func init() {
	publishCmd.Flags().StringVar(&publishBusinessID, "business-id", "", "publish a single business by ID")
	rootCmd.AddCommand(publishCmd)
}
