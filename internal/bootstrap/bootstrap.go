package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kirillkom/course-rag-assistant/internal/config"
	"github.com/kirillkom/course-rag-assistant/internal/core/domain"
	"github.com/kirillkom/course-rag-assistant/internal/core/ports"
	"github.com/kirillkom/course-rag-assistant/internal/core/usecase"
	"github.com/kirillkom/course-rag-assistant/internal/infrastructure/cache/redis"
	"github.com/kirillkom/course-rag-assistant/internal/infrastructure/chunking"
	"github.com/kirillkom/course-rag-assistant/internal/infrastructure/cleaning"
	"github.com/kirillkom/course-rag-assistant/internal/infrastructure/llm/ollama"
	"github.com/kirillkom/course-rag-assistant/internal/infrastructure/llm/openai"
	"github.com/kirillkom/course-rag-assistant/internal/infrastructure/ocr"
	"github.com/kirillkom/course-rag-assistant/internal/infrastructure/queue/nats"
	"github.com/kirillkom/course-rag-assistant/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/course-rag-assistant/internal/infrastructure/resilience"
	"github.com/kirillkom/course-rag-assistant/internal/infrastructure/search/elasticsearch"
	"github.com/kirillkom/course-rag-assistant/internal/infrastructure/source"
	"github.com/kirillkom/course-rag-assistant/internal/infrastructure/storage/localfs"
	"github.com/kirillkom/course-rag-assistant/internal/infrastructure/vector/qdrant"
	"github.com/kirillkom/course-rag-assistant/internal/observability/metrics"
)

type Options struct {
	Service string
	// Registerer receives query and retry metrics; nil uses a private registry.
	Registerer prometheus.Registerer
	// Runs wires Postgres, NATS and local storage for asynchronous ingestion.
	Runs bool
	// QueueLag observes publish-to-delivery delay of ingestion messages.
	QueueLag func(time.Duration)
	// RunRecorder observes worker runs.
	RunRecorder usecase.RunRecorder
}

type App struct {
	Config     config.Config
	Partitions []domain.PartitionSource

	Executor *resilience.Executor
	Store    ports.IndexStore
	Pipeline *usecase.IngestionPipeline
	QueryUC  *usecase.QueryUseCase

	Queue     ports.MessageQueue
	Runs      ports.IngestionRunRepository
	EnqueueUC *usecase.EnqueueRunUseCase
	ProcessUC *usecase.ProcessRunUseCase

	closeFns []func()
}

func New(ctx context.Context, cfg config.Config, opts Options) (*App, error) {
	app := &App{Config: cfg}
	if err := app.build(ctx, opts); err != nil {
		app.Close()
		return nil, err
	}
	return app, nil
}

func (a *App) build(ctx context.Context, opts Options) error {
	cfg := a.Config
	reg := opts.Registerer
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	partitions, err := config.LoadPartitions(cfg.PartitionsFile)
	if err != nil {
		return fmt.Errorf("load partitions: %w", err)
	}
	a.Partitions = partitions

	retryMetrics := metrics.NewRetryMetrics(opts.Service, reg)
	executor := resilience.NewExecutor(resilienceConfig(cfg, retryMetrics.OnRetry))
	a.Executor = executor
	slog.Info("resilience_policy", "policy", executor.Policy())

	embedder, completer, err := a.providers(cfg, executor)
	if err != nil {
		return err
	}

	store, err := indexStore(cfg, executor)
	if err != nil {
		return err
	}
	a.Store = store

	registry := source.NewRegistry()
	a.Pipeline = newPipeline(cfg, registry, embedder, store)
	a.QueryUC = newQueryUseCase(cfg, partitions, embedder, completer, store, executor, metrics.NewQueryMetrics(opts.Service, reg))

	if !opts.Runs {
		return nil
	}

	db, err := postgres.OpenDB(ctx, cfg.PostgresDSN)
	if err != nil {
		return fmt.Errorf("open postgres: %w", err)
	}
	a.closeFns = append(a.closeFns, func() { _ = db.Close() })
	runs := postgres.NewIngestionRunRepository(db)
	if err := runs.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	a.Runs = runs

	storage, err := localfs.New(cfg.StoragePath)
	if err != nil {
		return fmt.Errorf("init object storage: %w", err)
	}

	queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
		ResilienceExecutor: executor,
		LagObserver:        opts.QueueLag,
	})
	if err != nil {
		return fmt.Errorf("init message queue: %w", err)
	}
	a.closeFns = append(a.closeFns, queue.Close)
	a.Queue = queue

	a.EnqueueUC = usecase.NewEnqueueRunUseCase(runs, storage, queue, registry)
	a.ProcessUC = usecase.NewProcessRunUseCase(runs, storage, a.Pipeline, partitions, opts.RunRecorder)
	return nil
}

// Close releases connections in reverse order of creation.
func (a *App) Close() {
	for i := len(a.closeFns) - 1; i >= 0; i-- {
		a.closeFns[i]()
	}
	a.closeFns = nil
}

// Partition returns the manifest entry with the given name.
func (a *App) Partition(name string) (domain.PartitionSource, bool) {
	for _, p := range a.Partitions {
		if p.Name == name {
			return p, true
		}
	}
	return domain.PartitionSource{}, false
}

func resilienceConfig(cfg config.Config, onRetry func(string, int, error)) resilience.Config {
	rc := resilience.DefaultConfig()
	rc.RetryMaxAttempts = cfg.ResilienceRetryMaxAttempts
	rc.RetryInitialBackoff = cfg.ResilienceRetryInitialBackoff
	rc.RetryMaxBackoff = cfg.ResilienceRetryMaxBackoff
	rc.RetryJitter = cfg.ResilienceRetryJitter
	rc.BreakerEnabled = cfg.ResilienceBreakerEnabled
	if cfg.ResilienceBreakerMinRequests > 0 {
		rc.BreakerMinRequests = uint32(cfg.ResilienceBreakerMinRequests)
	}
	rc.BreakerFailureRatio = cfg.ResilienceBreakerFailureRatio
	rc.BreakerOpenTimeout = cfg.ResilienceBreakerOpenTimeout
	rc.OnRetry = onRetry
	return rc
}

func (a *App) providers(cfg config.Config, executor *resilience.Executor) (ports.Embedder, ports.CompletionProvider, error) {
	var (
		embedder  redis.ModelEmbedder
		completer ports.CompletionProvider
	)

	switch strings.ToLower(strings.TrimSpace(cfg.LLMProvider)) {
	case "ollama", "":
		client := ollama.New(cfg.OllamaURL, cfg.OllamaGenModel, cfg.OllamaEmbedModel,
			ollama.WithExecutor(executor),
			ollama.WithBatchSize(cfg.EmbedBatchSize),
		)
		embedder = ollama.NewEmbedder(client)
		completer = ollama.NewCompleter(client)
	case "openai":
		client := openai.New(cfg.OpenAIBaseURL, cfg.OpenAIAPIKey, cfg.OpenAIChatModel, cfg.OpenAIEmbedModel,
			openai.WithExecutor(executor),
			openai.WithBatchSize(cfg.EmbedBatchSize),
		)
		embedder = openai.NewEmbedder(client)
		completer = openai.NewCompleter(client)
	default:
		return nil, nil, fmt.Errorf("unsupported LLM_PROVIDER %q", cfg.LLMProvider)
	}

	if !cfg.EmbedCacheEnable {
		return embedder, completer, nil
	}
	client := redis.NewClient(cfg.RedisAddr)
	a.closeFns = append(a.closeFns, func() { _ = client.Close() })
	slog.Info("embedding_cache_enabled", "addr", cfg.RedisAddr, "ttl", cfg.EmbedCacheTTL.String())
	return redis.NewCachedEmbedder(client, embedder, cfg.EmbedCacheTTL), completer, nil
}

func indexStore(cfg config.Config, executor *resilience.Executor) (ports.IndexStore, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.IndexBackend)) {
	case "qdrant", "":
		return qdrant.New(cfg.QdrantURL, qdrant.WithExecutor(executor)), nil
	case "elasticsearch":
		store, err := elasticsearch.New(
			cfg.ElasticsearchURL,
			cfg.ElasticsearchUser,
			cfg.ElasticsearchPass,
			cfg.ElasticsearchPrefix,
			elasticsearch.WithExecutor(executor),
		)
		if err != nil {
			return nil, fmt.Errorf("init elasticsearch: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported INDEX_BACKEND %q", cfg.IndexBackend)
	}
}

func newPipeline(cfg config.Config, reader *source.Registry, embedder ports.Embedder, store ports.IndexStore) *usecase.IngestionPipeline {
	var tokenizer chunking.Tokenizer
	if tk, err := chunking.NewTiktokenTokenizer(cfg.TokenizerEncoding); err != nil {
		slog.Warn("tokenizer_unavailable", "encoding", cfg.TokenizerEncoding, "mode", "degraded", "error", err)
	} else {
		tokenizer = tk
	}

	return usecase.NewIngestionPipeline(
		reader,
		cleaning.New(),
		chunking.New(tokenizer),
		embedder,
		store,
		usecase.IngestionConfig{
			MaxTokensPerChunk:  cfg.MaxTokensPerChunk,
			EmbeddingDimension: cfg.EmbeddingDimension,
			BatchSize:          cfg.IngestBatchSize,
		},
		usecase.WithFormatChunker(source.FormatMarkdown, chunking.New(tokenizer, chunking.WithDelimiter("\n\n"))),
	)
}

func newQueryUseCase(
	cfg config.Config,
	partitions []domain.PartitionSource,
	embedder ports.Embedder,
	completer ports.CompletionProvider,
	store ports.IndexStore,
	executor *resilience.Executor,
	recorder usecase.QueryRecorder,
) *usecase.QueryUseCase {
	names := config.PartitionNames(partitions)
	boosts := make(map[string]float64, len(partitions))
	for _, p := range partitions {
		boosts[p.Name] = p.Boost
	}

	classifier := usecase.NewPartitionClassifier(store, names, usecase.ClassifierConfig{
		DistanceThreshold:  cfg.DistanceThreshold,
		PromotionThreshold: cfg.PromotionThreshold,
		Timeout:            cfg.SearchTimeout,
		Concurrency:        cfg.SearchConcurrency,
	})
	search := usecase.NewHybridSearch(store, usecase.HybridSearchConfig{
		PerPage:     cfg.SearchPerPage,
		Timeout:     cfg.SearchTimeout,
		Concurrency: cfg.SearchConcurrency,
		Boosts:      boosts,
	})

	opts := []usecase.QueryOption{usecase.WithQueryRecorder(recorder)}
	if cfg.SpellCheckEnabled {
		opts = append(opts, usecase.WithSpellNormalizer(usecase.NewSpellNormalizer(completer, 0)))
	}
	if strings.TrimSpace(cfg.OCRURL) != "" {
		opts = append(opts, usecase.WithOCR(ocr.New(cfg.OCRURL, ocr.WithExecutor(executor))))
	}

	return usecase.NewQueryUseCase(
		embedder,
		classifier,
		search,
		usecase.NewAnswerSynthesizer(completer, cfg.MaxContextLength),
		names,
		usecase.QueryConfig{
			Alpha:                  cfg.HybridAlpha,
			TopK:                   cfg.RAGTopK,
			OCRConfidenceThreshold: cfg.OCRConfidenceThreshold,
		},
		opts...,
	)
}
