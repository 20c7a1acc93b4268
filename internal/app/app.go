// Package app assembles the ingestion pipeline and the conversation stack from configuration.
package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"lexrag/internal/chain"
	"lexrag/internal/chunker"
	"lexrag/internal/config"
	"lexrag/internal/dedup"
	"lexrag/internal/index"
	"lexrag/internal/ingest"
	"lexrag/internal/loader"
	"lexrag/internal/manifest"
	"lexrag/internal/providers"
	"lexrag/internal/session"
	"lexrag/internal/storage"
	"lexrag/internal/util"

	"go.uber.org/zap"
)

type App struct {
	Config    config.Config
	Log       *zap.Logger
	DB        *storage.DB
	Index     index.Index
	Manifest  manifest.Store
	Loader    *loader.Loader
	Files     loader.FileStore
	Providers *providers.Manager
	Embedder  *providers.Embedder
	Pipeline  *ingest.Pipeline
	Chain     *chain.Chain
	Sessions  *session.Manager
}

// Options lets callers swap the PDF reader, e.g. in tests.
type Options struct {
	Pages      loader.PageReader
	HTTPClient *http.Client
}

func New(ctx context.Context, cfg config.Config, log *zap.Logger, opts Options) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop()
	}
	if opts.Pages == nil {
		opts.Pages = loader.PDFPages{}
	}
	a := &App{Config: cfg, Log: log}

	if cfg.IndexBackend == "pgvector" || cfg.ManifestBackend == "postgres" {
		dbCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		db, err := storage.NewDB(dbCtx, cfg.PostgresURL)
		cancel()
		if err != nil {
			return nil, util.Transient(err)
		}
		a.DB = db
	}

	idx, err := openIndex(cfg, a.DB, opts.HTTPClient)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Index = idx

	store, err := manifest.Open(ctx, cfg.ManifestBackend, cfg.ManifestPath, a.DB)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Manifest = store

	pm, err := providers.NewManager(cfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Providers = pm
	a.Embedder = providers.NewEmbedder(pm, cfg.IndexDimension, cfg.EmbedBatchSize)

	a.Loader = loader.New(cfg.DataRoot, cfg.CategoryFolders, opts.Pages, log.Named("loader"))
	a.Files = loader.NewFileStore(cfg.DataRoot)

	ch, err := chunker.New(a.Embedder, chunker.Options{
		Strategy:    chunker.Strategy(cfg.ChunkStrategy),
		Threshold:   cfg.ChunkThreshold,
		WindowRunes: cfg.ChunkWindowRunes,
	}, log.Named("chunker"))
	if err != nil {
		a.Close()
		return nil, err
	}
	builder, err := ingest.NewBuilder(ingest.IDPolicy(cfg.IDPolicy), log.Named("builder"))
	if err != nil {
		a.Close()
		return nil, err
	}

	var existing dedup.ExistingSources = dedup.NewManifestSource(store)
	if cfg.DedupMode == "index" {
		existing = dedup.NewIndexProbe(idx, cfg.IndexDimension, cfg.DedupProbeTopK)
	}

	a.Pipeline = ingest.New(ingest.Deps{
		Source:   a.Loader,
		Dedup:    dedup.NewFilter(existing, log.Named("dedup")),
		Chunker:  ch,
		Builder:  builder,
		Embedder: a.Embedder,
		Index:    idx,
		Writer: ingest.NewBatchWriter(idx, ingest.WriterOptions{
			BatchSize:   cfg.UpsertBatchSize,
			MaxAttempts: cfg.UpsertMaxAttempts,
		}, log.Named("writer")),
		Manifest: store,
	}, ingest.Options{
		Spec: index.Spec{
			Name:      cfg.IndexName,
			Dimension: cfg.IndexDimension,
			Metric:    index.Metric(cfg.IndexMetric),
			Cloud:     cfg.IndexCloud,
			Region:    cfg.IndexRegion,
		},
		Ensure: index.EnsureOptions{
			Settle:  time.Duration(cfg.IndexSettleSecs) * time.Second,
			Timeout: time.Duration(cfg.IndexReadyTimeoutSecs) * time.Second,
		},
		ClearSettle: time.Duration(cfg.ClearSettleSecs) * time.Second,
		DataOut:     cfg.DataOutRoot,
	}, log.Named("ingest"))

	a.Chain = chain.New(pm, a.Embedder, idx, chain.Options{
		RetrieverK:  cfg.RetrieverK,
		MemoryK:     cfg.MemoryK,
		Temperature: cfg.Temperature,
	}, log.Named("chain"))
	a.Sessions = session.NewManager(a.Chain, cfg.MemoryK, log.Named("session"))

	log.Info("lexrag assembled",
		zap.String("index_backend", cfg.IndexBackend),
		zap.String("index", cfg.IndexName),
		zap.Int("dimension", cfg.IndexDimension),
		zap.String("manifest", cfg.ManifestBackend),
		zap.String("dedup", cfg.DedupMode),
		zap.String("llm_providers", cfg.LLMProviders),
		zap.String("embed_providers", cfg.EmbedProviders))
	return a, nil
}

func openIndex(cfg config.Config, db *storage.DB, client *http.Client) (index.Index, error) {
	switch cfg.IndexBackend {
	case "pgvector":
		if db == nil {
			return nil, util.ConfigError("pgvector index requires a database connection")
		}
		return index.NewPGVector(db.Pool, cfg.IndexName, index.Metric(cfg.IndexMetric)), nil
	case "qdrant":
		return index.NewQdrant(cfg.QdrantURL, cfg.QdrantAPIKey, cfg.IndexName, client), nil
	case "memory":
		return index.NewMemory(), nil
	default:
		return nil, util.ConfigError("unsupported index backend %q", cfg.IndexBackend)
	}
}

func (a *App) Close() error {
	var err error
	if a.Manifest != nil {
		err = errors.Join(err, a.Manifest.Close())
	}
	a.DB.Close()
	return err
}
