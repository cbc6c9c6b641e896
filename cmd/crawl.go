package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/prospect-cli/internal/store"
)

var (
	crawlBusinessID string
	crawlLimit      int
	crawlForce      bool
)

var crawlCmd = &cobra.Command{
	Use:   "crawl",
	Short: "Crawl and persist website pages without reporting or publishing",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		filter := store.BusinessFilter{
			ID:          crawlBusinessID,
			Limit:       crawlLimit,
			WithWebsite: crawlBusinessID == "",
		}

		summary, err := env.Pipeline.Crawl(ctx, filter, crawlForce)
		if err != nil {
			return eris.Wrap(err, "pipeline crawl")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(summary)
	},
}

func init() {
	crawlCmd.Flags().StringVar(&crawlBusinessID, "business-id", "", "crawl a single business by ID")
	crawlCmd.Flags().IntVar(&crawlLimit, "limit", 0, "maximum businesses to process (0 = store default)")
	crawlCmd.Flags().BoolVar(&crawlForce, "force", false, "re-fetch already crawled URLs")
	rootCmd.AddCommand(crawlCmd)
}
