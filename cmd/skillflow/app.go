package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"basegraph.app/skillflow/common/llm"
	"basegraph.app/skillflow/core/config"
	"basegraph.app/skillflow/core/db"
	"basegraph.app/skillflow/internal/analyzer"
	"basegraph.app/skillflow/internal/domain"
	"basegraph.app/skillflow/internal/executor"
	"basegraph.app/skillflow/internal/github"
	"basegraph.app/skillflow/internal/model"
	"basegraph.app/skillflow/internal/notify"
	"basegraph.app/skillflow/internal/queue"
	"basegraph.app/skillflow/internal/service"
	"basegraph.app/skillflow/internal/store"
	"basegraph.app/skillflow/internal/submission"
	"basegraph.app/skillflow/internal/tracking"
	"basegraph.app/skillflow/internal/worker"
)

var errGitHubDisabled = errors.New("github client not configured")

// app holds the processing pipeline shared by serve and drain.
type app struct {
	db         *db.DB
	stores     *store.Stores
	backend    queue.Backend
	redis      *redis.Client
	pool       *worker.Pool
	reconciler *worker.Reconciler
	ingest     service.IngestService
	stats      *service.ProcessingStats
}

func openDatabase(ctx context.Context, cfg config.Config) (*db.DB, error) {
	database, err := db.New(ctx, db.Config{
		Driver:       db.Dialect(cfg.DB.Driver),
		DSN:          cfg.DB.DSN,
		MaxOpenConns: cfg.DB.MaxOpenConns,
		MaxIdleConns: cfg.DB.MaxIdleConns,
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	slog.InfoContext(ctx, "database connected", "driver", cfg.DB.Driver)
	return database, nil
}

func newApp(ctx context.Context, cfg config.Config) (*app, error) {
	database, err := openDatabase(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a := &app{db: database}

	if cfg.DB.AutoMigrate {
		if err := database.Migrate(ctx); err != nil {
			a.Close()
			return nil, fmt.Errorf("migrating: %w", err)
		}
	}
	a.stores = store.NewStores(database.Queries())

	if err := a.openQueue(ctx, cfg); err != nil {
		a.Close()
		return nil, err
	}

	dispatcher, err := newDispatcher(ctx, cfg, database, a.stores, a)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.pool = worker.NewPool(a.backend, a.stores.Events(), dispatcher, worker.Config{
		Workers:     cfg.Queue.Workers,
		PollTimeout: cfg.Queue.PollTimeout,
		MaxRetries:  cfg.Retry.MaxRetries,
		Backoff: queue.Backoff{
			Base:       cfg.Retry.BaseDelay,
			Max:        cfg.Retry.MaxDelay,
			Multiplier: cfg.Retry.Multiplier,
		},
	})
	a.reconciler = worker.NewReconciler(a.stores.Events(), a.pool, a.backend, worker.ReconcilerConfig{
		Interval:   cfg.Queue.ReconcileInterval,
		BatchSize:  cfg.Queue.ReconcileBatch,
		MaxRetries: cfg.Retry.MaxRetries,
	})
	a.ingest = service.NewIngestService(a.stores.Events(), a.pool)
	return a, nil
}

func (a *app) openQueue(ctx context.Context, cfg config.Config) error {
	switch cfg.Queue.Backend {
	case "redis":
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			return fmt.Errorf("parsing redis url: %w", err)
		}
		a.redis = redis.NewClient(opts)
		if err := a.redis.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("connecting to redis: %w", err)
		}
		backend, err := queue.NewRedisBackend(ctx, a.redis, queue.RedisConfig{
			Stream:   cfg.Redis.Stream,
			Group:    cfg.Redis.Group,
			Consumer: cfg.Redis.Consumer,
			MaxSize:  cfg.Queue.MaxSize,
		})
		if err != nil {
			return fmt.Errorf("creating redis queue: %w", err)
		}
		a.backend = backend
		slog.InfoContext(ctx, "redis queue ready", "stream", cfg.Redis.Stream, "group", cfg.Redis.Group)
	default:
		a.backend = queue.NewMemoryBackend(cfg.Queue.MaxSize)
		slog.InfoContext(ctx, "in-memory queue ready", "max_size", cfg.Queue.MaxSize)
	}
	return nil
}

func newDispatcher(ctx context.Context, cfg config.Config, database *db.DB, stores *store.Stores, a *app) (*service.Dispatcher, error) {
	var (
		sink   notify.Sink = notify.LogSink{}
		files  service.PRFileSource
		merger service.Merger
		gh     *github.Client
	)
	if cfg.GitHub.Enabled() {
		client, err := github.NewClient(ctx, github.Config{
			Token:   cfg.GitHub.Token,
			Owner:   cfg.GitHub.Owner,
			Repo:    cfg.GitHub.Repo,
			BaseURL: cfg.GitHub.BaseURL,
		})
		if err != nil {
			return nil, fmt.Errorf("creating github client: %w", err)
		}
		gh, sink, files, merger = client, client, client, client
		slog.InfoContext(ctx, "github client ready", "repo", cfg.GitHub.Owner+"/"+cfg.GitHub.Repo)
	} else {
		files = noFiles{}
		slog.WarnContext(ctx, "github not configured, comments are logged and pull requests cannot be validated")
	}

	security, err := analyzer.NewSecurityChecker(cfg.Analyzer.SecurityRulesPath)
	if err != nil {
		return nil, fmt.Errorf("loading security rules: %w", err)
	}
	opts := analyzer.Options{Security: security}

	if cfg.LLM.Enabled() {
		client, err := llm.New(llm.Config{APIKey: cfg.LLM.APIKey, BaseURL: cfg.LLM.BaseURL, Model: cfg.LLM.Model})
		if err != nil {
			return nil, fmt.Errorf("creating llm client: %w", err)
		}
		opts.Classifier = analyzer.NewLLMClassifier(client)
		slog.InfoContext(ctx, "llm classifier enabled", "model", client.Model())
	}
	if cfg.Analyzer.CheckAuthor && gh != nil {
		opts.Author = analyzer.NewAuthorChecker(gh, analyzer.AuthorPolicy{
			MinAccountAge:     cfg.Analyzer.MinAccountAge,
			MinContributions:  cfg.Analyzer.MinContributions,
			FlagDefaultAvatar: cfg.Analyzer.FlagDefaultAvatar,
		})
	}

	a.stats = service.NewProcessingStats()
	tx := service.NewTxRunner(database)
	state := tracking.NewFileMutator(cfg.Tracking.StatePath)

	issues := service.NewIssueProcessor(
		tx,
		stores.Issues(),
		stores.Plans(),
		stores.ExecutionResults(),
		analyzer.New(opts),
		executor.New(stores.Plans(), stores.ExecutionResults(), state),
		sink,
		a.stats,
	)
	prs := service.NewPRProcessor(
		tx,
		stores.PullRequests(),
		files,
		merger,
		submission.NewValidator(stores.Content(), cfg.PR.AutoMergeLabel),
		sink,
		a.stats,
		service.PRProcessorConfig{
			AutoMergeEnabled: cfg.PR.AutoMergeEnabled,
			AutoMergeLabel:   cfg.PR.AutoMergeLabel,
			MergeMethod:      cfg.PR.MergeMethod,
		},
	)
	return service.NewDispatcher(issues, prs, service.NewActivityProcessor()), nil
}

func (a *app) Close() {
	if a.backend != nil {
		if err := a.backend.Close(); err != nil {
			slog.Warn("closing queue failed", "error", err)
		}
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if err := a.db.Close(); err != nil {
		slog.Warn("closing database failed", "error", err)
	}
}

// noFiles stands in for GitHub when no token is configured. Submissions
// cannot be read, so they are rejected rather than retried.
type noFiles struct{}

func (noFiles) PullRequestFiles(context.Context, int, string) ([]model.PRFile, error) {
	return nil, domain.Validation("fetching pull request files", errGitHubDisabled)
}
