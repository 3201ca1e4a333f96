package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/vietddude/zkrelay/internal/api"
	"github.com/vietddude/zkrelay/internal/core/config"
	"github.com/vietddude/zkrelay/internal/core/domain"
	"github.com/vietddude/zkrelay/internal/core/worker"
	"github.com/vietddude/zkrelay/internal/infra/chain"
	"github.com/vietddude/zkrelay/internal/infra/chain/grpcsession"
	"github.com/vietddude/zkrelay/internal/infra/chain/ws"
	redisclient "github.com/vietddude/zkrelay/internal/infra/redis"
	"github.com/vietddude/zkrelay/internal/infra/storage"
	"github.com/vietddude/zkrelay/internal/infra/storage/memory"
	"github.com/vietddude/zkrelay/internal/infra/storage/postgres"
	"github.com/vietddude/zkrelay/internal/metrics"
	"github.com/vietddude/zkrelay/internal/relay/connection"
	"github.com/vietddude/zkrelay/internal/relay/queue"
	"github.com/vietddude/zkrelay/internal/relay/vkcache"
)

const subscriberBuffer = 256

// Relayer owns the connection manager, the queue and everything fed by it.
type Relayer struct {
	cfg       Config
	vk        domain.VKRef
	manager   *connection.Manager
	queue     *queue.Queue
	ledger    storage.OutcomeRepository
	pruner    *worker.Pruner
	publisher *redisclient.EventPublisher
	server    *api.Server
	db        *postgres.DB
	redis     *redisclient.Client
	log       *slog.Logger

	cancel   context.CancelFunc
	group    *errgroup.Group
	stopOnce sync.Once
	stopErr  error
}

// Config holds the application configuration.
type Config struct {
	Server     config.ServerConfig
	Chain      config.ChainConfig
	Networks   []domain.Network
	Queue      config.QueueConfig
	Connection config.ConnectionConfig
	VK         config.VKConfig
	Redis      redisclient.Config
	Database   postgres.Config

	// Dialer overrides the dialer built from Chain.
	Dialer chain.Dialer
}

// ConfigFrom builds the relayer config from a loaded file.
func ConfigFrom(cfg *config.AppConfig) Config {
	return Config{
		Server:     cfg.Server,
		Chain:      cfg.Chain,
		Networks:   cfg.Networks,
		Queue:      cfg.Queue,
		Connection: cfg.Connection,
		VK:         cfg.VK,
		Redis:      cfg.Redis,
		Database:   cfg.Database,
	}
}

// NewDialer picks the chain transport.
func NewDialer(cfg config.ChainConfig) (chain.Dialer, error) {
	switch cfg.Transport {
	case config.TransportWS, "":
		return ws.NewDialer(ws.Config{
			URL:          cfg.URL,
			SubmitMethod: cfg.SubmitMethod,
			HealthMethod: cfg.HealthMethod,
		}), nil
	case config.TransportGRPC:
		return grpcsession.NewDialer(grpcsession.Config{
			Endpoint:      cfg.URL,
			SubmitMethod:  cfg.SubmitMethod,
			HealthService: cfg.HealthService,
		}), nil
	default:
		return nil, fmt.Errorf("unknown chain transport %q", cfg.Transport)
	}
}

// NewRelayer creates a Relayer with all dependencies initialized.
func NewRelayer(cfg Config) (*Relayer, error) {
	log := slog.Default()

	// 1. Verification key
	vk, err := vkcache.Load(vkcache.Source{Hash: cfg.VK.Hash, File: cfg.VK.File})
	if err != nil {
		return nil, fmt.Errorf("failed to load verification key: %w", err)
	}
	log.Info("Verification key loaded", "kind", vk.Kind)

	// 2. Chain connection
	dialer := cfg.Dialer
	if dialer == nil {
		if dialer, err = NewDialer(cfg.Chain); err != nil {
			return nil, err
		}
	}

	backoff := connection.DefaultBackoff()
	if cfg.Connection.BaseDelay > 0 {
		backoff.BaseDelay = cfg.Connection.BaseDelay
	}
	if cfg.Connection.MaxDelay > 0 {
		backoff.MaxDelay = cfg.Connection.MaxDelay
	}
	if cfg.Connection.MaxAttempts > 0 {
		backoff.MaxAttempts = cfg.Connection.MaxAttempts
	}
	manager := connection.NewManager(dialer, connection.Config{
		Backoff:     backoff,
		DialTimeout: cfg.Chain.DialTimeout,
	})
	manager.SetStateChangeCallback(func(t connection.Transition) {
		metrics.ObserveConnection(t.From, t.To)
	})

	// 3. Queue
	qcfg := queue.DefaultConfig()
	if cfg.Queue.MaxConcurrent > 0 {
		qcfg.MaxConcurrent = cfg.Queue.MaxConcurrent
	}
	if cfg.Queue.RetryAttempts != nil {
		qcfg.RetryAttempts = *cfg.Queue.RetryAttempts
	}
	if cfg.Queue.RetryDelay > 0 {
		qcfg.RetryDelay = cfg.Queue.RetryDelay
	}
	if cfg.Queue.ItemTimeout > 0 {
		qcfg.ItemTimeout = cfg.Queue.ItemTimeout
	}
	if len(cfg.Networks) > 0 {
		qcfg.Networks = cfg.Networks
	}
	q := queue.New(qcfg, chain.NewSubmitter(manager, cfg.Chain.ExplorerURL), manager)

	// 4. Outcome ledger
	var ledger storage.OutcomeRepository
	var db *postgres.DB
	if cfg.Database.URL != "" {
		db, err = postgres.NewDB(context.Background(), cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to init db: %w", err)
		}
		if err := db.Migrate(context.Background()); err != nil {
			_ = db.Close()
			return nil, err
		}
		ledger = postgres.NewOutcomeRepo(db)
		log.Info("Using PostgreSQL ledger")
	} else {
		ledger = memory.NewOutcomeRepo()
		log.Info("Using Memory ledger")
	}

	var pruner *worker.Pruner
	if cfg.Database.Retention > 0 {
		pruner = worker.NewPruner(cfg.Database.Retention, ledger)
	}

	// 5. Event stream
	var redisClient *redisclient.Client
	var publisher *redisclient.EventPublisher
	if cfg.Redis.URL != "" {
		redisClient, err = redisclient.NewClient(cfg.Redis)
		if err != nil {
			log.Warn("Failed to connect to Redis, event stream disabled", "error", err)
		} else {
			publisher = redisclient.NewEventPublisher(redisClient, cfg.Redis)
			log.Info("Publishing lifecycle events to Redis")
		}
	}

	// 6. HTTP surface
	server := api.NewServer(api.Config{
		Port:      cfg.Server.Port,
		RateLimit: cfg.Server.RateLimit,
		RateBurst: cfg.Server.RateBurst,
	}, q, manager, vk)

	return &Relayer{
		cfg:       cfg,
		vk:        vk,
		manager:   manager,
		queue:     q,
		ledger:    ledger,
		pruner:    pruner,
		publisher: publisher,
		server:    server,
		db:        db,
		redis:     redisClient,
		log:       log,
	}, nil
}

// Queue returns the submission queue.
func (r *Relayer) Queue() *queue.Queue { return r.queue }

// Manager returns the connection manager.
func (r *Relayer) Manager() *connection.Manager { return r.manager }

// Ledger returns the outcome ledger.
func (r *Relayer) Ledger() storage.OutcomeRepository { return r.ledger }

// Handler returns the HTTP routes.
func (r *Relayer) Handler() http.Handler { return r.server.Handler() }

// Start starts the relayer and all its components.
func (r *Relayer) Start(ctx context.Context) error {
	ctx, r.cancel = context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(ctx)
	r.group = g

	if err := r.manager.Start(ctx); err != nil {
		return fmt.Errorf("failed to start connection manager: %w", err)
	}
	r.queue.Start(ctx)

	// Subscribers run until the queue closes its event channels.
	metricEvents, _ := r.queue.Subscribe(subscriberBuffer)
	g.Go(func() error {
		metrics.Consume(gctx, metricEvents)
		return nil
	})

	ledgerEvents, _ := r.queue.Subscribe(subscriberBuffer)
	writer := worker.NewLedgerWriter(r.ledger)
	g.Go(func() error { return writer.Run(gctx, ledgerEvents) })

	if r.publisher != nil {
		streamEvents, _ := r.queue.Subscribe(subscriberBuffer)
		g.Go(func() error { return r.publisher.Run(gctx, streamEvents) })
	}

	if r.pruner != nil {
		r.log.Info("Starting pruner", "retention", r.cfg.Database.Retention)
		g.Go(func() error {
			r.pruner.Start(gctx)
			return nil
		})
	}

	if r.db != nil {
		r.db.StartMetricsCollector(gctx)
	}

	go func() {
		if err := r.server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			r.log.Error("API server failed", "error", err)
		}
	}()

	return nil
}

// Stop drains the queue, then stops the API, the connection and the
// background workers. Safe to call multiple times.
func (r *Relayer) Stop(ctx context.Context) error {
	r.stopOnce.Do(func() {
		r.log.Info("Stopping Relayer...")
		var errs []error

		// Pending callers are answered before the API stops waiting on them.
		if err := r.queue.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("queue shutdown: %w", err))
		}
		if err := r.server.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("api shutdown: %w", err))
		}
		if err := r.manager.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("connection shutdown: %w", err))
		}

		if r.cancel != nil {
			r.cancel()
		}
		if r.group != nil {
			if err := r.group.Wait(); err != nil {
				errs = append(errs, err)
			}
		}

		if r.redis != nil {
			if err := r.redis.Close(); err != nil {
				r.log.Warn("Failed to close Redis", "error", err)
			}
		}
		if r.db != nil {
			if err := r.db.Close(); err != nil {
				r.log.Warn("Failed to close database", "error", err)
			}
		}

		r.stopErr = errors.Join(errs...)
	})
	return r.stopErr
}
