package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/dunamismax/pixelpress/internal/batch"
	"github.com/dunamismax/pixelpress/internal/config"
	"github.com/dunamismax/pixelpress/internal/export"
	"github.com/dunamismax/pixelpress/internal/images"
	"github.com/dunamismax/pixelpress/internal/pipeline"
	"github.com/dunamismax/pixelpress/internal/preset"
	"github.com/dunamismax/pixelpress/internal/preview"
	"github.com/dunamismax/pixelpress/internal/storage"
	"github.com/dunamismax/pixelpress/internal/store"
	"github.com/dunamismax/pixelpress/internal/webhook"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

// App holds the components shared by the API server and the CLI.
type App struct {
	Records  *images.Store
	Params   *pipeline.ParamSet
	Presets  *preset.Store
	Engine   *pipeline.Engine
	Batch    *batch.Orchestrator
	Exporter export.Exporter

	kv store.KV
}

// New wires every component from cfg and loads the persisted presets.
func New(ctx context.Context, cfg config.Config, logger zerolog.Logger, reg prometheus.Registerer) (*App, error) {
	params, err := cfg.Engine.Params()
	if err != nil {
		return nil, err
	}
	policy, err := batch.ParsePolicy(cfg.Batch.Policy)
	if err != nil {
		return nil, err
	}

	engine, err := pipeline.NewEngine(logger,
		pipeline.WithResampler(cfg.Engine.Resampler),
		pipeline.WithWorkers(cfg.Engine.Workers),
		pipeline.WithCacheMB(cfg.Engine.CacheMB),
		pipeline.WithMaxPixels(cfg.Engine.MaxPixels),
	)
	if err != nil {
		return nil, fmt.Errorf("initialize transform engine: %w", err)
	}

	kv, err := store.Open(ctx, cfg.Store())
	if err != nil {
		return nil, fmt.Errorf("open preset backend: %w", err)
	}

	presets := preset.NewStore(kv, cfg.Presets.Key, logger)
	if _, err := presets.Load(ctx); err != nil {
		_ = kv.Close()
		return nil, err
	}

	exporter, err := newExporter(ctx, cfg)
	if err != nil {
		_ = kv.Close()
		return nil, err
	}

	records := images.NewStore(preview.NewRegistry())
	opts := batch.Options{
		Policy:     policy,
		Progress:   records,
		Source:     records,
		Registerer: reg,
	}
	if notifier := webhook.NewClient(cfg.Webhook.Client()); notifier.Enabled() {
		opts.Notifier = notifier
	}

	orch, err := batch.NewOrchestrator(logger, engine, records, opts)
	if err != nil {
		_ = kv.Close()
		return nil, fmt.Errorf("initialize batch orchestrator: %w", err)
	}

	logger.Info().
		Str("preset_backend", cfg.Presets.Backend).
		Int("presets", len(presets.List())).
		Str("export_target", cfg.Export.Target).
		Str("batch_policy", string(policy)).
		Bool("webp", pipeline.WebPSupported()).
		Msg("application wired")

	return &App{
		Records:  records,
		Params:   pipeline.NewParamSet(params),
		Presets:  presets,
		Engine:   engine,
		Batch:    orch,
		Exporter: exporter,
		kv:       kv,
	}, nil
}

func newExporter(ctx context.Context, cfg config.Config) (export.Exporter, error) {
	switch cfg.Export.Target {
	case config.ExportTargetObjectStore:
		client, err := storage.NewClient(cfg.Storage.Client())
		if err != nil {
			return nil, fmt.Errorf("initialize storage client: %w", err)
		}
		if err := client.EnsureBucket(ctx); err != nil {
			return nil, err
		}
		return export.NewObjectStoreExporter(client, cfg.Export.Prefix, cfg.Export.LinkExpiry)
	default:
		return export.NewDirExporter(cfg.Export.Dir)
	}
}

func (a *App) Close() error {
	var errs []error
	if a.kv != nil {
		errs = append(errs, a.kv.Close())
	}
	return errors.Join(errs...)
}
