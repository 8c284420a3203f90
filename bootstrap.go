package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"crm-ai-agent/application"
	"crm-ai-agent/domain"
	"crm-ai-agent/infrastructure"
	"crm-ai-agent/infrastructure/config"
	"crm-ai-agent/infrastructure/learning"
	"crm-ai-agent/infrastructure/logging"
	"crm-ai-agent/infrastructure/repository"
	"crm-ai-agent/infrastructure/vectorstore"
)

// agent holds the wired pipeline and everything that must be released on exit.
type agent struct {
	cfg      *config.Config
	service  *application.QueryService
	indexer  *application.IndexingService
	learning *application.LearningService
	logger   *zap.Logger
	closers  []func() error
}

// Close flushes pending learning writes, then releases connections in
// reverse order of creation.
func (a *agent) Close() error {
	if a.learning != nil {
		a.learning.Close()
	}
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	_ = a.logger.Sync()
	return errors.Join(errs...)
}

// connections opens each database once, however many components share it.
type connections struct {
	ctx     context.Context
	sqlite  map[string]*sql.DB
	gorm    map[string]*gorm.DB
	closers *[]func() error
}

func (c *connections) sqliteDB(path string) (*sql.DB, error) {
	if db, ok := c.sqlite[path]; ok {
		return db, nil
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database %s: %w", path, err)
	}
	if err := db.PingContext(c.ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open sqlite database %s: %w", path, err)
	}
	c.sqlite[path] = db
	*c.closers = append(*c.closers, db.Close)
	return db, nil
}

func (c *connections) postgresDB(url string) (*gorm.DB, error) {
	if db, ok := c.gorm[url]; ok {
		return db, nil
	}
	db, err := gorm.Open(postgres.Open(url), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	c.gorm[url] = db
	*c.closers = append(*c.closers, sqlDB.Close)
	return db, nil
}

func bootstrap(ctx context.Context, cfgPath string, verbose bool) (_ *agent, err error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	logger, err := logging.New(cfg.Logging, verbose)
	if err != nil {
		return nil, err
	}

	a := &agent{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()
	conns := &connections{
		ctx:     ctx,
		sqlite:  make(map[string]*sql.DB),
		gorm:    make(map[string]*gorm.DB),
		closers: &a.closers,
	}

	provider, err := infrastructure.NewProviderFromConfig(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create completion provider: %w", err)
	}

	repo, err := newRepository(ctx, cfg.Repository, conns)
	if err != nil {
		return nil, err
	}
	store, err := newVectorStore(ctx, cfg.VectorStore, conns, a, logger)
	if err != nil {
		return nil, err
	}
	corpus, err := newCorpus(ctx, cfg.Learning, conns, logger)
	if err != nil {
		return nil, err
	}

	a.learning = application.NewLearningService(corpus, provider, cfg.Learning.TopK, cfg.Learning.WriteTimeout, logger.Named("learning"))
	a.indexer = application.NewIndexingService(repo, provider, store, cfg.Agent.ReindexConcurrency, logger.Named("indexing"))

	executor := application.NewMutationExecutor(repo, logger.Named("mutations"),
		application.WithIndexer(a.indexer),
		application.WithQuotePrefix(cfg.Agent.QuotePrefix),
		application.WithMutationLocale(cfg.Agent.Locale))

	dispatcher := application.NewDispatcher(logger.Named("dispatch"))
	application.NewQueryHandlers(repo, store, provider, application.HandlerConfig{
		SimilarityThreshold: cfg.Agent.SimilarityThreshold,
		ListLimit:           cfg.Agent.ListLimit,
		SearchLimit:         cfg.Agent.SearchLimit,
	}, logger.Named("handlers")).Register(dispatcher)

	a.service = application.NewQueryService(application.QueryServiceDeps{
		Learning:   a.learning,
		Sink:       a.learning,
		Classifier: application.NewIntentClassifier(provider, cfg.Agent.ClassifierTimeout, logger.Named("classifier")),
		Dispatcher: dispatcher,
		Gate:       application.NewMutationGate(provider, cfg.Agent.ExtractTimeout, logger.Named("gate")),
		Executor:   executor,
		Responder:  application.NewResponseGenerator(provider, cfg.Agent.Locale, cfg.Agent.SummaryTimeout, logger.Named("responder")),
	}, logger)

	logger.Info("agent ready",
		zap.String("provider", provider.Name()),
		zap.String("repository", cfg.Repository.Backend),
		zap.String("vector_store", cfg.VectorStore.Backend),
		zap.String("learning", cfg.Learning.Backend))
	return a, nil
}

func newRepository(ctx context.Context, cfg config.RepositoryConfig, conns *connections) (domain.Repository, error) {
	switch cfg.Backend {
	case config.BackendSQLite:
		db, err := conns.sqliteDB(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return repository.NewSQLiteRepository(ctx, db, cfg.UniqueClientEmail)
	default:
		return repository.NewMemoryRepository(repository.WithUniqueClientEmail(cfg.UniqueClientEmail)), nil
	}
}

func newVectorStore(ctx context.Context, cfg config.VectorStoreConfig, conns *connections, a *agent, logger *zap.Logger) (domain.VectorStore, error) {
	logger = logger.Named("vectorstore")
	switch cfg.Backend {
	case config.BackendSQLite:
		db, err := conns.sqliteDB(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return vectorstore.NewSQLiteStore(ctx, db, logger)
	case config.BackendQdrant:
		qc, err := vectorstore.NewQdrantClient(ctx, cfg.QdrantAddr, cfg.QdrantCollection, cfg.Dimensions, logger)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, qc.Close)
		return qc, nil
	case config.BackendPostgres:
		db, err := conns.postgresDB(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		return vectorstore.NewPostgresStore(db, logger)
	default:
		return vectorstore.NewMemoryStore(), nil
	}
}

func newCorpus(ctx context.Context, cfg config.LearningConfig, conns *connections, logger *zap.Logger) (domain.LearningCorpus, error) {
	switch cfg.Backend {
	case config.BackendSQLite:
		db, err := conns.sqliteDB(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return learning.NewSQLiteCorpus(ctx, db, logger.Named("corpus"))
	case config.BackendPostgres:
		db, err := conns.postgresDB(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		return learning.NewPostgresCorpus(db)
	default:
		return learning.NewMemoryCorpus(), nil
	}
}
