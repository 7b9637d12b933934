package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/Veraticus/autobooks/internal/config"
	"github.com/Veraticus/autobooks/internal/engine"
	"github.com/Veraticus/autobooks/internal/ledger"
	"github.com/Veraticus/autobooks/internal/model"
	"github.com/Veraticus/autobooks/internal/rules"
	"github.com/Veraticus/autobooks/internal/scoring"
	"github.com/Veraticus/autobooks/internal/sheets"
	"github.com/Veraticus/autobooks/internal/similarity"
	"github.com/Veraticus/autobooks/internal/storage"
	"github.com/Veraticus/autobooks/internal/tds"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/viper"
)

var envKeyReplacer = strings.NewReplacer(".", "_")

// app holds every wired component for the lifetime of one command.
type app struct {
	cfg      *config.Config
	db       *storage.SQLiteStorage
	rules    *rules.Store
	gateway  *similarity.ChromemGateway
	engine   *engine.Engine
	registry *prometheus.Registry
	closers  []io.Closer
}

type appOptions struct {
	escalator engine.Escalator
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// openApp loads configuration and wires the engine to its stores.
func openApp(ctx context.Context, opts appOptions) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	db, err := storage.NewSQLiteStorage(cfg.Paths.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	a := &app{cfg: cfg, db: db, registry: prometheus.NewRegistry()}
	if err := a.wire(ctx, viper.GetViper(), opts); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) wire(ctx context.Context, v *viper.Viper, opts appOptions) error {
	cfg := a.cfg
	logger := slog.Default()

	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	store, err := rules.Open(cfg.Paths.Rules, rules.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("failed to open rules: %w", err)
	}
	a.rules = store

	embedder, used, err := similarity.OpenEmbedder(cfg.Embedder, logger)
	if err != nil {
		return err
	}
	if closer, ok := embedder.(io.Closer); ok {
		a.closers = append(a.closers, closer)
	}
	gateway, err := similarity.OpenChromem(cfg.Paths.Patterns, embedder, logger,
		similarity.WithCollection(used.Collection()))
	if err != nil {
		return err
	}
	a.gateway = gateway

	calc, err := tds.NewCalculator(cfg.TDSRates)
	if err != nil {
		return err
	}
	scorer, err := scoring.NewScorer(cfg.Scoring, calc)
	if err != nil {
		return err
	}

	writers := []engine.LedgerWriter{a.db}
	sheetsCfg, err := config.LoadSheetsConfig(v)
	if err != nil {
		return fmt.Errorf("invalid sheets configuration: %w", err)
	}
	if sheetsCfg != nil {
		sink, err := sheets.NewWriter(ctx, *sheetsCfg, logger)
		if err != nil {
			return err
		}
		writers = append(writers, sink)
		logger.Info("Appending ledger entries to Google Sheets", "spreadsheet_id", sheetsCfg.SpreadsheetID)
	}

	escalator := opts.escalator
	if escalator == nil {
		escalator = engine.EscalatorFunc(func(_ context.Context, doc model.PendingDocument) {
			logger.Info("Document needs review",
				"document_id", doc.DocumentID,
				"reason", doc.Reason,
				"confidence", doc.Candidate.Confidence)
		})
	}

	a.engine, err = engine.New(engine.Deps{
		Rules:     store,
		Scorer:    scorer,
		Pending:   a.db,
		Gateway:   gateway,
		Ledger:    engine.MultiWriter(writers...),
		Escalator: escalator,
		Builder:   ledger.NewBuilder(calc, ledger.WithTDSAccount(cfg.Engine.TDSAccount)),
		Metrics:   engine.NewMetrics(a.registry),
		Logger:    logger,
	}, cfg.Engine)
	if err != nil {
		return err
	}
	return a.engine.SyncPendingGauge(ctx)
}

func (a *app) Close() error {
	var errs []error
	for _, c := range a.closers {
		errs = append(errs, c.Close())
	}
	if a.db != nil {
		errs = append(errs, a.db.Close())
	}
	return errors.Join(errs...)
}
