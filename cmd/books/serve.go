package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/Veraticus/autobooks/internal/api"
	"github.com/Veraticus/autobooks/internal/engine"
	"github.com/Veraticus/autobooks/internal/model"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the document and correction API",
		Long: `Serve the HTTP API. Extraction pipelines submit documents to
POST /api/documents; reviewers answer escalations with
POST /api/pending/{id}/correction. Prometheus metrics are on /metrics.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			addr := viper.GetString("server.addr")

			escalator := engine.EscalatorFunc(func(_ context.Context, doc model.PendingDocument) {
				slog.Info("Correction needed",
					"document_id", doc.DocumentID,
					"reason", doc.Reason,
					"callback", fmt.Sprintf("/api/pending/%s/correction", doc.DocumentID))
			})

			a, err := openApp(ctx, appOptions{escalator: escalator})
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			router := api.NewRouter(api.Deps{
				Engine:   a.engine,
				Rules:    a.rules,
				Ledger:   a.db,
				Gatherer: a.registry,
				Metrics:  api.NewHTTPMetrics(a.registry),
				Logger:   slog.Default(),
			})

			server := &http.Server{
				Addr:              addr,
				Handler:           router,
				ReadHeaderTimeout: 10 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				slog.Info("API server listening", "addr", addr)
				errCh <- server.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("server failed: %w", err)
				}
				return nil
			case <-ctx.Done():
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("failed to shut down server: %w", err)
			}
			slog.Info("API server stopped")
			return nil
		},
	}

	cmd.Flags().String("addr", ":8080", "listen address")
	_ = viper.BindPFlag("server.addr", cmd.Flags().Lookup("addr"))
	return cmd
}
