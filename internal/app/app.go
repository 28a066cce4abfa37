// Package app assembles the application: configuration, database, cache,
// Genkit, and the ingestion and insight pipelines built on top of them.
package app

import (
	"log/slog"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"github.com/doculake/doculake/internal/cache"
	"github.com/doculake/doculake/internal/chunk"
	"github.com/doculake/doculake/internal/config"
	"github.com/doculake/doculake/internal/document"
	"github.com/doculake/doculake/internal/extract"
	"github.com/doculake/doculake/internal/ingest"
	"github.com/doculake/doculake/internal/insight"
	"github.com/doculake/doculake/internal/notify"
	"github.com/doculake/doculake/internal/vector"
	"github.com/doculake/doculake/internal/watch"
)

// App is the application container. Setup builds it, Close releases it.
type App struct {
	Config *config.Config
	Logger *slog.Logger

	Genkit   *genkit.Genkit
	Embedder ai.Embedder
	Pool     *pgxpool.Pool
	Redis    *redis.Client

	Status  *document.StatusStore
	Vectors *vector.Store
	Cache   *cache.Gate
	Broker  *notify.Broker[notify.ProgressEvent]

	Coordinator *ingest.Coordinator
	Watcher     *watch.Watcher
	Insights    *insight.Service
	Images      *insight.ImageAnalyzer

	extractor *extract.Extractor
}

// Close releases all resources in reverse construction order.
func (a *App) Close() error {
	a.Logger.Info("shutting down application")

	if a.Broker != nil {
		a.Broker.Shutdown()
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			a.Logger.Warn("closing redis client", "error", err)
		}
	}
	if a.Pool != nil {
		a.Pool.Close()
		a.Logger.Info("database pool closed")
	}
	return nil
}

// NewCoordinator builds an ingestion coordinator over the given object
// store, sharing the application's stores, cache, and event broker. Setup
// uses it for the upload directory; the ingest command uses it for
// arbitrary paths.
func (a *App) NewCoordinator(objects ingest.ObjectStore) (*ingest.Coordinator, error) {
	splitter := chunk.NewSplitter()
	if a.Config.ChunkSize > 0 {
		splitter.Size = a.Config.ChunkSize
		splitter.Overlap = int(float64(a.Config.ChunkSize) * a.Config.OverlapRatio)
	}

	return ingest.New(ingest.Deps{
		Objects:   objects,
		Extractor: pageSource{extractor: a.extractor},
		Splitter:  splitter,
		Vectors:   a.Vectors,
		Status:    a.Status,
		Cache:     a.Cache,
		Events:    a.Broker,
	}, ingest.Config{
		PageBatchSize:   a.Config.PageBatchSize,
		RetryAttempts:   a.Config.RetryAttempts,
		DocumentTimeout: a.Config.DocumentTimeout,
		EmbedRateLimit:  rate.Limit(a.Config.EmbedRateLimit),
	}, a.Logger)
}
