package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kirillkom/techsheet/internal/config"
	"github.com/kirillkom/techsheet/internal/core/domain"
	"github.com/kirillkom/techsheet/internal/core/extraction"
	"github.com/kirillkom/techsheet/internal/core/ports"
	"github.com/kirillkom/techsheet/internal/core/usecase"
	"github.com/kirillkom/techsheet/internal/infrastructure/imageio"
	"github.com/kirillkom/techsheet/internal/infrastructure/llm/ollama"
	"github.com/kirillkom/techsheet/internal/infrastructure/llm/openai"
	"github.com/kirillkom/techsheet/internal/infrastructure/llm/vertex"
	"github.com/kirillkom/techsheet/internal/infrastructure/lock"
	"github.com/kirillkom/techsheet/internal/infrastructure/pdf"
	"github.com/kirillkom/techsheet/internal/infrastructure/queue/nats"
	"github.com/kirillkom/techsheet/internal/infrastructure/repository/firestore"
	"github.com/kirillkom/techsheet/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/techsheet/internal/infrastructure/resilience"
	"github.com/kirillkom/techsheet/internal/infrastructure/storage/gcs"
	"github.com/kirillkom/techsheet/internal/infrastructure/storage/localfs"
	"github.com/kirillkom/techsheet/internal/infrastructure/storage/s3"
	"github.com/kirillkom/techsheet/internal/infrastructure/textwindow"
	"github.com/kirillkom/techsheet/internal/infrastructure/thumbnail"
	"github.com/kirillkom/techsheet/internal/observability/metrics"
)

type Options struct {
	Service string
	// WithQueue connects to NATS. The worker always needs it, the api only
	// in queue mode and specctl never.
	WithQueue bool
}

type App struct {
	Config   config.Config
	Logger   *slog.Logger
	Registry *prometheus.Registry
	Metrics  *metrics.PipelineMetrics

	Queue         *nats.Queue
	Repo          ports.SpecificationRepository
	Uploads       *localfs.Storage
	Media         *localfs.Storage
	LocalDrawings *localfs.Storage
	Drawings      ports.DrawingStore
	Locker        ports.RunLocker

	IngestUC    *usecase.IngestSpecificationUseCase
	ProcessUC   *usecase.ProcessSpecificationUseCase
	MigrateUC   *usecase.MigrateDrawingsUseCase
	ThumbnailUC *usecase.ThumbnailUseCase

	closers []func()
}

// New opens every backend the configuration selects. On failure the
// backends opened so far are closed before the error is returned.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger, opts Options) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	app := &App{Config: cfg, Logger: logger, Registry: metrics.NewRegistry()}
	if err := app.build(ctx, opts); err != nil {
		app.Close()
		return nil, err
	}
	return app, nil
}

func (a *App) build(ctx context.Context, opts Options) (err error) {
	cfg, logger := a.Config, a.Logger
	a.Metrics = metrics.NewPipelineMetrics(opts.Service, a.Registry)

	if a.Repo, err = a.openRepository(ctx); err != nil {
		return err
	}
	if err = a.openFileStores(ctx); err != nil {
		return err
	}
	if a.Locker, err = a.openLocker(ctx); err != nil {
		return err
	}

	if opts.WithQueue {
		queueExec := resilience.NewExecutor(queueResilience(), logger)
		a.Queue, err = nats.New(cfg.NATSURL, cfg.NATSSubject, nats.Options{
			RetryOnFailedConnect: &cfg.NATSRetryOnFailedConnect,
			ResilienceExecutor:   queueExec,
			Logger:               logger,
			LagObserver:          a.Metrics.ObserveQueueLag,
		})
		if err != nil {
			return fmt.Errorf("init message queue: %w", err)
		}
		a.closers = append(a.closers, a.Queue.Close)
	}

	models, err := a.openModels(ctx)
	if err != nil {
		return err
	}

	codec := imageio.NewCodec(cfg.MaxModelImageSide, cfg.ThumbnailWidth)
	renderer := thumbnail.NewRenderer(thumbnail.DefaultDPI)
	stageTimeout := stageTimeout(cfg)

	var drawings ports.DrawingGenerator
	if models.image != nil {
		drawings = usecase.NewDrawingGenerator(models.image, a.Drawings, drawingKeyPrefix(cfg), stageTimeout)
	}

	a.ProcessUC = usecase.NewProcessSpecificationUseCase(usecase.ProcessDeps{
		Repo:      a.Repo,
		Uploads:   a.Uploads,
		Media:     a.Media,
		Extractor: pdf.NewExtractor(),
		Images:    codec,
		Codec:     codec,
		Renderer:  renderer,
		Analyzer:  extraction.NewVisualAnalyzer(models.vision, codec, cfg.MaxVisionImages, stageTimeout, logger),
		Fields: extraction.NewFieldExtractor(models.text, stageTimeout).
			WithSplitter(textwindow.NewSplitter(cfg.FieldWindowChars, cfg.FieldWindowOverlap)),
		Drawings: drawings,
		Locker:   a.Locker,
		Observer: a.Metrics,
		Logger:   logger,
	}, cfg.MinTextLength)

	var queue ports.MessageQueue
	if a.Queue != nil && cfg.ProcessingMode == config.ModeQueue {
		queue = a.Queue
	}
	a.IngestUC = usecase.NewIngestSpecificationUseCase(a.Repo, a.Uploads, queue, a.ProcessUC, logger)
	a.MigrateUC = usecase.NewMigrateDrawingsUseCase(a.Repo, a.LocalDrawings, a.Drawings, a.Locker, logger)
	a.ThumbnailUC = usecase.NewThumbnailUseCase(a.Repo, a.Uploads, a.Media, renderer, codec, a.Locker, logger)

	logger.Info("bootstrap_ready",
		"store_backend", cfg.StoreBackend,
		"drawing_store", cfg.DrawingStore,
		"processing_mode", cfg.ProcessingMode,
		"vision_backend", cfg.VisionBackend,
		"text_backend", cfg.TextBackend,
		"image_backend", cfg.ImageBackend,
		"distributed_lock", cfg.RedisURL != "",
	)
	return nil
}

func (a *App) openRepository(ctx context.Context) (ports.SpecificationRepository, error) {
	switch a.Config.StoreBackend {
	case "firestore":
		repo, err := firestore.New(ctx, a.Config.FirestoreProject, a.Config.FirestoreCollection)
		if err != nil {
			return nil, fmt.Errorf("open firestore: %w", err)
		}
		a.closers = append(a.closers, func() { _ = repo.Close() })
		return repo, nil
	default:
		db, err := postgres.OpenDB(ctx, a.Config.PostgresDSN, postgres.Pool{
			MaxOpen:     a.Config.PostgresMaxConns,
			MaxIdle:     a.Config.PostgresMaxIdle,
			MaxLifetime: a.Config.PostgresConnMaxLife,
		})
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		a.closers = append(a.closers, func() { _ = db.Close() })
		repo := postgres.NewSpecificationRepository(db)
		if err := repo.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("ensure schema: %w", err)
		}
		return repo, nil
	}
}

func (a *App) openFileStores(ctx context.Context) error {
	var err error
	if a.Uploads, err = localfs.New(a.Config.UploadDir); err != nil {
		return fmt.Errorf("init upload storage: %w", err)
	}
	if a.Media, err = localfs.New(a.Config.ThumbnailDir); err != nil {
		return fmt.Errorf("init thumbnail storage: %w", err)
	}
	if a.LocalDrawings, err = localfs.New(a.Config.DrawingDir); err != nil {
		return fmt.Errorf("init drawing directory: %w", err)
	}

	switch a.Config.DrawingStore {
	case "gcs":
		store, err := gcs.New(ctx, a.Config.GCSBucket)
		if err != nil {
			return fmt.Errorf("init gcs drawing store: %w", err)
		}
		a.closers = append(a.closers, func() { _ = store.Close() })
		a.Drawings = store
	case "s3":
		store, err := s3.New(s3.Config{Bucket: a.Config.S3Bucket, Region: a.Config.S3Region, Endpoint: a.Config.S3Endpoint})
		if err != nil {
			return fmt.Errorf("init s3 drawing store: %w", err)
		}
		a.Drawings = store
	default:
		a.Drawings = a.LocalDrawings
	}
	return nil
}

func (a *App) openLocker(ctx context.Context) (ports.RunLocker, error) {
	if a.Config.RedisURL == "" {
		return lock.NewLocal(), nil
	}
	locker, err := lock.NewRedis(ctx, lock.RedisConfig{URL: a.Config.RedisURL, TTL: a.Config.RunLockTTL()}, a.Logger)
	if err != nil {
		return nil, fmt.Errorf("init redis lock: %w", err)
	}
	a.closers = append(a.closers, func() { _ = locker.Close() })
	return locker, nil
}

type modelSet struct {
	vision ports.VisionModel
	text   ports.TextModel
	image  ports.ImageModel
}

// openModels builds one client per configured backend; a backend used for
// several capabilities is shared.
func (a *App) openModels(ctx context.Context) (modelSet, error) {
	cfg := a.Config
	exec := resilience.NewExecutor(modelResilience(cfg), a.Logger)

	var (
		openaiClient *openai.Client
		ollamaClient *ollama.Client
		vertexClient *vertex.Client
	)
	need := func(backend string) bool {
		return cfg.VisionBackend == backend || cfg.TextBackend == backend || cfg.ImageBackend == backend
	}
	if need("openai") {
		openaiClient = openai.New(openai.Config{
			BaseURL:     cfg.OpenAIBaseURL,
			APIKey:      cfg.OpenAIAPIKey,
			TextModel:   cfg.OpenAITextModel,
			VisionModel: cfg.OpenAIVisionModel,
			ImageModel:  cfg.OpenAIImageModel,
			ImageSize:   cfg.OpenAIImageSize,
		}, exec)
	}
	if need("ollama") {
		ollamaClient = ollama.New(cfg.OllamaURL, cfg.OllamaTextModel, cfg.OllamaVisionModel, exec)
	}
	if need("vertex") {
		client, err := vertex.New(ctx, cfg.VertexProject, cfg.VertexLocation, cfg.VertexModel, exec)
		if err != nil {
			return modelSet{}, fmt.Errorf("init vertex client: %w", err)
		}
		a.closers = append(a.closers, func() { _ = client.Close() })
		vertexClient = client
	}

	var set modelSet
	switch cfg.VisionBackend {
	case "openai":
		set.vision = openaiClient
	case "ollama":
		set.vision = ollamaClient
	case "vertex":
		set.vision = vertexClient
	}
	switch cfg.TextBackend {
	case "openai":
		set.text = openaiClient
	case "ollama":
		set.text = ollamaClient
	case "vertex":
		set.text = vertexClient
	}
	if cfg.ImageBackend == "openai" {
		set.image = openaiClient
	}
	return set, nil
}

func modelResilience(cfg config.Config) resilience.Config {
	rc := resilience.DefaultConfig()
	rc.AttemptTimeout = cfg.ModelCallTimeout
	rc.RateLimit = cfg.ModelRateLimitRPS
	if cfg.ModelRetries > 0 {
		rc.RetryMaxAttempts = cfg.ModelRetries
	}
	return rc
}

func queueResilience() resilience.Config {
	rc := resilience.DefaultConfig()
	rc.AttemptTimeout = 5 * time.Second
	rc.RateLimit = 0
	return rc
}

// stageTimeout bounds a whole stage, retries included.
func stageTimeout(cfg config.Config) time.Duration {
	attempts := cfg.ModelRetries
	if attempts < 1 {
		attempts = 1
	}
	return cfg.ModelCallTimeout*time.Duration(attempts) + 10*time.Second
}

func drawingKeyPrefix(cfg config.Config) string {
	if cfg.DrawingStore == "local" {
		return ""
	}
	return domain.DrawingKeyPrefix
}

func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
