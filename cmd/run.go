package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/prospect-cli/internal/store"
)

var (
	runBusinessID string
	runLimit      int
	runForce      bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Crawl, report, and publish for matching businesses",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		filter := store.BusinessFilter{
			ID:    runBusinessID,
			Limit: runLimit,
			// A single-business run goes through even when the stored row
			// has no website; bulk runs only pick up crawlable rows.
			WithWebsite: runBusinessID == "",
		}

		summary, err := env.Pipeline.Run(ctx, filter, runForce)
		if err != nil {
			return eris.Wrap(err, "pipeline run")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(summary)
	},
}

func init() {
	runCmd.Flags().StringVar(&runBusinessID, "business-id", "", "run a single business by ID")
	runCmd.Flags().IntVar(&runLimit, "limit", 0, "maximum businesses to process (0 = store default)")
	runCmd.Flags().BoolVar(&runForce, "force", false, "re-fetch already crawled URLs")
	rootCmd.AddCommand(runCmd)
}
