package app

import (
	"context"
	"fmt"

	"github.com/kapu/persona-avatar-bot-go/internal/config"
	"github.com/kapu/persona-avatar-bot-go/internal/constants"
	"github.com/kapu/persona-avatar-bot-go/internal/service/artifact"
	"github.com/kapu/persona-avatar-bot-go/internal/service/audit"
	"github.com/kapu/persona-avatar-bot-go/internal/service/cache"
	"github.com/kapu/persona-avatar-bot-go/internal/service/classifier"
	"github.com/kapu/persona-avatar-bot-go/internal/service/database"
	"github.com/kapu/persona-avatar-bot-go/internal/service/imaging"
	"github.com/kapu/persona-avatar-bot-go/internal/service/orchestrator"
	"github.com/kapu/persona-avatar-bot-go/internal/service/records"
	"github.com/kapu/persona-avatar-bot-go/internal/service/search"
	"go.uber.org/zap"
)

// Container bundles the assembled pipeline and the resources it holds open.
type Container struct {
	Config       *config.Config
	Logger       *zap.Logger
	Orchestrator *orchestrator.Orchestrator

	closers []func()
}

// Close releases connections in reverse order of creation.
func (c *Container) Close() {
	if c == nil {
		return
	}
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
	c.closers = nil
}

// Build assembles every service the avatar pipeline needs. Redis and Postgres
// are optional; when their hosts are not configured the search cache falls
// back to an in-process LRU and the audit log is disabled.
func Build(ctx context.Context, cfg *config.Config, logger *zap.Logger) (container *Container, err error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var closers []func()
	defer func() {
		if err != nil {
			for i := len(closers) - 1; i >= 0; i-- {
				closers[i]()
			}
		}
	}()

	// Record store
	recordsClient, err := records.NewClient(ctx, records.ClientConfig{
		BaseURL: cfg.Records.APIURL,
		Token:   cfg.Records.APIToken,
		Timeout: cfg.Records.Timeout,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create records client: %w", err)
	}
	recordRepo := records.NewRepository(recordsClient, cfg.Records.AvatarField, cfg.Records.PageSize, logger)

	// Cache and database
	var (
		cacheSvc    *cache.CacheService
		resultCache search.ResultCache
	)
	if cfg.Redis.Enabled() {
		cacheSvc, err = cache.NewCacheService(ctx, cache.CacheConfig{
			Host:     cfg.Redis.Host,
			Port:     cfg.Redis.Port,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create cache service: %w", err)
		}
		closers = append(closers, func() {
			_ = cacheSvc.Close()
		})
		resultCache = search.NewRedisCache(cacheSvc, cfg.Search.CacheTTL, logger)
	} else {
		logger.Info("Redis not configured, using in-process search cache")
		resultCache = search.NewMemoryCache(constants.SearchConfig.MemoryCacheSize, cfg.Search.CacheTTL)
	}

	var auditRepo *audit.Repository
	if cfg.Postgres.Enabled() {
		postgresSvc, pgErr := database.NewPostgresService(ctx, database.PostgresConfig{
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			Database: cfg.Postgres.Database,
		}, logger)
		if pgErr != nil {
			return nil, fmt.Errorf("failed to create postgres service: %w", pgErr)
		}
		closers = append(closers, func() {
			_ = postgresSvc.Close()
		})

		auditRepo = audit.NewRepository(postgresSvc, logger)
		if err = auditRepo.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("failed to prepare audit schema: %w", err)
		}
	}

	// Image handling
	fetcher := imaging.NewFetcher(cfg.Image.FetchTimeout, cfg.Image.MaxBytes, logger)
	processor := imaging.NewProcessor(fetcher, imaging.Config{
		TargetSize:     cfg.Image.TargetSize,
		Quality:        cfg.Image.Quality,
		MinDimension:   cfg.Image.MinDimension,
		MaxAspectRatio: cfg.Image.MaxAspectRatio,
		MinBytes:       cfg.Image.MinBytes,
		MaxBytes:       cfg.Image.MaxBytes,
		MaxPixels:      cfg.Image.MaxPixels,
	}, logger)

	classifierCfg := classifier.DefaultConfig()
	classifierCfg.MaxPixels = cfg.Image.MaxPixels
	classifierCfg.TrustedHosts = append([]string{cfg.PublicHost()}, cfg.Artifact.TrustedHosts...)
	assessor := classifier.New(fetcher, classifierCfg, classifier.DefaultTypeKeywords(), logger)

	// Candidate search
	googleSearcher, err := search.NewGoogleSearcher(ctx, cfg.Search.APIKey, cfg.Search.EngineID, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create image searcher: %w", err)
	}

	engineCfg := search.DefaultEngineConfig()
	engineCfg.MaxCandidates = cfg.Search.MaxCandidates
	engineCfg.MaxQueries = cfg.Search.MaxQueries
	engineCfg.QueryDelay = cfg.Search.QueryDelay
	engineCfg.WikiFallback = cfg.Search.WikiFallback

	ownDomains := append([]string{cfg.PublicHost()}, cfg.Search.OwnDomains...)
	engine := search.NewEngine(googleSearcher, engineCfg, logger,
		search.WithCache(resultCache),
		search.WithFilters(search.DefaultFilters().WithBlockedDomains(ownDomains...)),
		search.WithWiki(search.NewWikiSource(constants.SearchConfig.WikiBaseURL, constants.SearchConfig.WikiTimeout, logger)),
	)

	// Artifact publication
	store, err := newArtifactStore(cfg.Artifact)
	if err != nil {
		return nil, fmt.Errorf("failed to create artifact store: %w", err)
	}
	publisher := artifact.NewPublisher(store, cfg.Artifact.PublicBaseURL, logger)

	opts := []orchestrator.Option{}
	if auditRepo != nil {
		opts = append(opts, orchestrator.WithAudit(auditRepo))
	}
	if cacheSvc != nil {
		opts = append(opts, orchestrator.WithLocker(cacheSvc))
	}

	orch := orchestrator.New(recordRepo, assessor, engine, processor, publisher, orchestrator.Config{
		RecordDelay:           cfg.Pipeline.RecordDelay,
		ReplaceOnFetchFailure: cfg.Pipeline.ReplaceOnFetchFailure,
		AvatarShape:           cfg.Records.AvatarShape,
		QuotaCooldownRecords:  cfg.Search.QuotaCooldownRecords,
	}, logger, opts...)

	logger.Info("Avatar pipeline assembled",
		zap.String("artifact_backend", store.Backend()),
		zap.Bool("redis", cacheSvc != nil),
		zap.Bool("audit", auditRepo != nil),
		zap.Bool("wiki_fallback", cfg.Search.WikiFallback),
	)

	return &Container{
		Config:       cfg,
		Logger:       logger,
		Orchestrator: orch,
		closers:      closers,
	}, nil
}

func newArtifactStore(cfg config.ArtifactConfig) (artifact.Store, error) {
	switch cfg.Backend {
	case "s3":
		return artifact.NewS3Store(artifact.S3Config{
			Endpoint:  cfg.S3.Endpoint,
			Region:    cfg.S3.Region,
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
			Bucket:    cfg.S3.Bucket,
			Prefix:    cfg.S3.Prefix,
			UseSSL:    cfg.S3.UseSSL,
		})
	default:
		return artifact.NewLocalStore(cfg.Dir)
	}
}
