// Package app assembles the service from configuration.
package app

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub"
	gcs "cloud.google.com/go/storage"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/pharmintel/pricewatch/internal/adapter"
	"github.com/pharmintel/pricewatch/internal/clock/system"
	"github.com/pharmintel/pricewatch/internal/config"
	"github.com/pharmintel/pricewatch/internal/logging"
	"github.com/pharmintel/pricewatch/internal/orchestrator"
	"github.com/pharmintel/pricewatch/internal/pharma"
	pubsubpub "github.com/pharmintel/pricewatch/internal/publisher/pubsub"
	"github.com/pharmintel/pricewatch/internal/ratelimit"
	"github.com/pharmintel/pricewatch/internal/scheduler"
	"github.com/pharmintel/pricewatch/internal/snapshot"
	"github.com/pharmintel/pricewatch/internal/storage/memory"
	"github.com/pharmintel/pricewatch/internal/storage/postgres"
	"github.com/pharmintel/pricewatch/internal/worker"
)

// App holds every assembled component plus the handles that need
// closing on shutdown.
type App struct {
	Config       config.Config
	Logger       *zap.Logger
	Clock        pharma.Clock
	Catalog      pharma.Catalog
	Products     pharma.ProductStore
	Ledger       pharma.RunLedger
	Tracking     pharma.TrackingList
	Adapters     map[pharma.Source]pharma.Adapter
	Orchestrator *orchestrator.Orchestrator

	dbPool       *pgxpool.Pool
	pubsubClient *pubsub.Client
	gcsClient    *gcs.Client
}

// New builds the full service graph. With db.dsn unset everything runs
// on the in-memory stores, which is how local smoke runs work.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	a := &App{
		Config: cfg,
		Logger: logger,
		Clock:  system.New(),
	}

	if err := a.initStores(ctx); err != nil {
		a.Close()
		return nil, err
	}
	snapshots, err := a.initSnapshots(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	publisher, err := a.initPublisher(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.Adapters = adapter.Build(adapter.Config{
		UserAgent: cfg.Crawl.UserAgent,
		Headless:  cfg.Crawl.DiscoveryHeadless,
	}, logger)

	limiter := ratelimit.New(ratelimit.Config{
		DefaultRPS:   cfg.Crawl.SourceRPS,
		DefaultBurst: cfg.Crawl.SourceBurst,
	})
	pool := worker.New(
		a.Adapters,
		a.Catalog,
		a.Products,
		snapshots,
		publisher,
		limiter,
		a.Clock,
		worker.Config{
			Concurrency:         cfg.Crawl.Concurrency,
			MaxRetries:          cfg.Crawl.MaxRetries,
			ItemTimeout:         cfg.ItemTimeout(),
			SnapshotPrefix:      cfg.Snapshot.Prefix,
			SnapshotContentType: cfg.Snapshot.ContentType,
			Topic:               cfg.PubSub.TopicName,
		},
		logger,
	)
	sched := scheduler.New(a.Catalog, a.Tracking, a.Clock, logger)
	a.Orchestrator = orchestrator.New(a.Adapters, a.Catalog, a.Ledger, sched, pool, logger)

	// A crash leaves "running" ledger rows behind; settle them before
	// the next run starts.
	if aborted, err := a.Ledger.ReconcileAbandoned(ctx); err != nil {
		logger.Warn("reconcile abandoned runs failed", zap.Error(err))
	} else if aborted > 0 {
		logger.Info("reconciled abandoned runs", zap.Int("count", aborted))
	}

	return a, nil
}

func (a *App) initStores(ctx context.Context) error {
	cfg := a.Config
	if cfg.DB.DSN == "" {
		a.Logger.Info("no database configured, using in-memory stores")
		products := memory.NewProductStore(a.Clock)
		a.Products = products
		a.Catalog = memory.NewCatalog(a.Clock, products)
		a.Ledger = memory.NewRunLedger(a.Clock)
		a.Tracking = memory.NewTrackingList()
		return nil
	}

	pool, err := postgres.NewPool(ctx, postgres.PoolConfig{
		DSN:             cfg.DB.DSN,
		MaxConns:        cfg.DB.MaxConns,
		MinConns:        cfg.DB.MinConns,
		MaxConnLifetime: time.Duration(cfg.DB.MaxConnLifeMins) * time.Minute,
	})
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	a.dbPool = pool

	catalog, err := postgres.NewCatalogStore(pool)
	if err != nil {
		return fmt.Errorf("init catalog store: %w", err)
	}
	products, err := postgres.NewProductStore(pool, a.Clock)
	if err != nil {
		return fmt.Errorf("init product store: %w", err)
	}
	ledger, err := postgres.NewRunStore(pool, a.Clock)
	if err != nil {
		return fmt.Errorf("init run store: %w", err)
	}
	tracking, err := postgres.NewTrackingStore(pool)
	if err != nil {
		return fmt.Errorf("init tracking store: %w", err)
	}
	a.Catalog = catalog
	a.Products = products
	a.Ledger = ledger
	a.Tracking = tracking
	return nil
}

func (a *App) initSnapshots(ctx context.Context) (pharma.SnapshotStore, error) {
	cfg := a.Config.Snapshot
	if !cfg.Enabled {
		return nil, nil
	}
	switch cfg.Backend {
	case "gcs":
		client, err := gcs.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("init gcs client: %w", err)
		}
		a.gcsClient = client
		return snapshot.NewGCSStore(client, cfg.GCSBucket)
	case "local":
		return snapshot.NewLocalStore(cfg.LocalDir)
	case "memory":
		return snapshot.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown snapshot backend %q", cfg.Backend)
	}
}

func (a *App) initPublisher(ctx context.Context) (pharma.Publisher, error) {
	cfg := a.Config.PubSub
	if cfg.ProjectID == "" || cfg.TopicName == "" {
		return nil, nil
	}
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("init pubsub client: %w", err)
	}
	a.pubsubClient = client
	return pubsubpub.New(client)
}

// Close releases external handles.
func (a *App) Close() {
	if a.dbPool != nil {
		a.dbPool.Close()
	}
	if a.pubsubClient != nil {
		if err := a.pubsubClient.Close(); err != nil {
			a.Logger.Warn("close pubsub client failed", zap.Error(err))
		}
	}
	if a.gcsClient != nil {
		if err := a.gcsClient.Close(); err != nil {
			a.Logger.Warn("close gcs client failed", zap.Error(err))
		}
	}
	_ = a.Logger.Sync()
}
