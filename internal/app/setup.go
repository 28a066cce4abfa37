package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/doculake/doculake/internal/cache"
	"github.com/doculake/doculake/internal/config"
	"github.com/doculake/doculake/internal/database"
	"github.com/doculake/doculake/internal/document"
	"github.com/doculake/doculake/internal/extract"
	"github.com/doculake/doculake/internal/ingest"
	"github.com/doculake/doculake/internal/insight"
	"github.com/doculake/doculake/internal/notify"
	"github.com/doculake/doculake/internal/vector"
	"github.com/doculake/doculake/internal/watch"
)

// Setup creates and initializes the application.
// Returns an App with embedded cleanup. Call Close() to release.
func Setup(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *App, retErr error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{Config: cfg, Logger: logger}

	// On error, clean up everything already initialized.
	defer func() {
		if retErr != nil {
			if err := a.Close(); err != nil {
				logger.Warn("cleanup during setup failure", "error", err)
			}
		}
	}()

	pool, err := provideDBPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.Pool = pool

	client, err := provideRedis(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.Redis = client

	g, err := provideGenkit(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.Genkit = g

	embedder := provideEmbedder(g, cfg)
	if embedder == nil {
		return nil, fmt.Errorf("embedder %q not found for provider %q", cfg.EmbedderModel, cfg.Provider)
	}
	a.Embedder = embedder

	a.Status = document.NewStatusStore(pool, logger)
	a.Vectors = vector.New(pool, embedder, logger)
	a.Cache = cache.New(client, cfg.CacheTTL, logger)
	a.Broker = notify.NewBroker[notify.ProgressEvent]()

	ocr := NewOCRClient(g, modelName(cfg))
	a.extractor = extract.New(ocr, logger)

	if err := os.MkdirAll(cfg.UploadDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating upload directory: %w", err)
	}

	coordinator, err := a.NewCoordinator(watch.NewDirStore(cfg.UploadDir))
	if err != nil {
		return nil, err
	}
	a.Coordinator = coordinator
	a.Watcher = watch.New(cfg.UploadDir, coordinator, 0, logger)

	retriever := insight.NewRetriever(a.Vectors, cfg.TopK, logger)
	generator := insight.NewGenerator(g, modelName(cfg), cfg.ModelCallTimeout, logger)
	a.Insights = insight.NewService(a.Status, a.Cache, retriever, generator, logger)
	a.Images = insight.NewImageAnalyzer(g, modelName(cfg), cfg.ModelCallTimeout, logger)

	return a, nil
}

// modelName returns the provider-qualified model identifier Genkit resolves.
func modelName(cfg *config.Config) string {
	return "googleai/" + cfg.InsightModel
}

// provideDBPool runs migrations and creates the PostgreSQL connection pool.
func provideDBPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	if err := database.Migrate(cfg.PostgresURL()); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	pool, err := database.Open(ctx, cfg.PostgresConnectionString())
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	return pool, nil
}

// provideRedis creates the Redis client for the insight cache and verifies
// connectivity.
func provideRedis(ctx context.Context, cfg *config.Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("pinging redis: %w", err)
	}
	return client, nil
}

// provideGenkit initializes Genkit with the configured AI provider.
func provideGenkit(ctx context.Context, cfg *config.Config) (*genkit.Genkit, error) {
	switch cfg.Provider {
	case "", config.ProviderGemini, config.ProviderGoogleAI:
		g := genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))
		if g == nil {
			return nil, errors.New("initializing genkit with gemini provider")
		}
		return g, nil
	default:
		return nil, fmt.Errorf("unsupported AI provider %q", cfg.Provider)
	}
}

// provideEmbedder looks up the embedder registered by the provider plugin.
func provideEmbedder(g *genkit.Genkit, cfg *config.Config) ai.Embedder {
	return googlegenai.GoogleAIEmbedder(g, cfg.EmbedderModel)
}

// pageSource adapts the PDF extractor to the pipeline's page source surface.
type pageSource struct {
	extractor *extract.Extractor
}

func (s pageSource) Pages(data []byte) (ingest.PageIterator, int, error) {
	it, total, err := s.extractor.Pages(data)
	if err != nil {
		return nil, 0, err
	}
	return it, total, nil
}
