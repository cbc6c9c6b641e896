package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/prospect-cli/internal/store"
)

var servePort int

// newServeMux builds the webhook routes over an initialized pipeline
// environment. runCtx outlives individual requests so that accepted
// runs keep going after the response is written.
func newServeMux(runCtx context.Context, env *pipelineEnv) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})

	mux.HandleFunc("POST /webhook/run", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			BusinessID string `json:"business_id"`
			Force      bool   `json:"force"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, `{"error":"invalid request body"}`, http.StatusBadRequest)
			return
		}
		if req.BusinessID == "" {
			http.Error(w, `{"error":"business_id is required"}`, http.StatusBadRequest)
			return
		}

		// Run the pipeline asynchronously.
		go func() {
			summary, err := env.Pipeline.Run(runCtx, store.BusinessFilter{ID: req.BusinessID}, req.Force)
			if err != nil {
				zap.L().Error("webhook run failed",
					zap.String("business_id", req.BusinessID),
					zap.Error(err),
				)
				return
			}
			crawled, crawlFailed, published, present, publishFailed := summary.Counts()
			zap.L().Info("webhook run complete",
				zap.String("business_id", req.BusinessID),
				zap.Int("crawled", crawled),
				zap.Int("crawl_failed", crawlFailed),
				zap.Int("published", published),
				zap.Int("already_present", present),
				zap.Int("publish_failed", publishFailed),
			)
		}()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(map[string]string{
			"status":      "accepted",
			"business_id": req.BusinessID,
		})
	})

	return mux
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start webhook server for pipeline run requests",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: newServeMux(ctx, env),
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			srv.Shutdown(ctx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
