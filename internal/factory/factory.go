package factory

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/mcoot/tileclaim/internal/config"
	"github.com/mcoot/tileclaim/internal/dependencies/clock"
	"github.com/mcoot/tileclaim/internal/dependencies/random"
	"github.com/mcoot/tileclaim/internal/model"
	"github.com/mcoot/tileclaim/internal/notify"
	"github.com/mcoot/tileclaim/internal/notify/redisrelay"
	"github.com/mcoot/tileclaim/internal/services/auth"
	"github.com/mcoot/tileclaim/internal/services/claim"
	"github.com/mcoot/tileclaim/internal/services/cooldown"
	"github.com/mcoot/tileclaim/internal/services/leaderboard"
	"github.com/mcoot/tileclaim/internal/services/profile"
	"github.com/mcoot/tileclaim/internal/services/reset"
	"github.com/mcoot/tileclaim/internal/services/roster"
	"github.com/mcoot/tileclaim/internal/services/scheduler"
	"github.com/mcoot/tileclaim/internal/storage"
	"github.com/mcoot/tileclaim/internal/storage/memory"
	"github.com/mcoot/tileclaim/internal/storage/postgres"
	redisstorage "github.com/mcoot/tileclaim/internal/storage/redis"
	"github.com/mcoot/tileclaim/internal/tasks"
)

// App contains all wired application components
type App struct {
	// Storage
	Store storage.BoardStore

	// External dependencies
	Clock  clock.Clock
	Random random.Random

	// Event delivery
	HubManager  *notify.HubManager
	Broadcaster notify.Broadcaster
	Relay       *redisrelay.Relay // nil unless events cross processes
	Tasks       *tasks.Queue

	// Services
	CooldownService    *cooldown.Service
	ResetCoordinator   *reset.Coordinator
	ClaimArbiter       *claim.Arbiter
	Scheduler          *scheduler.Scheduler
	LeaderboardService *leaderboard.Service
	ProfileService     *profile.Service
	AuthService        *auth.Service
	Seeder             *roster.Seeder

	Roster []roster.Entry
	logger *slog.Logger

	relayCancel context.CancelFunc
	relayDone   chan struct{}
	closers     []func() error
}

// Config holds configuration for the application factory
type Config struct {
	// Logger is the application logger (optional)
	// If nil, a no-op logger is used
	Logger *slog.Logger
	// StorageType selects the storage backend ("memory", "redis" or "postgres")
	// If empty, defaults to "memory"
	StorageType string
	// RedisConfig holds Redis connection settings (required if StorageType is "redis")
	RedisConfig *redisstorage.Config
	// PostgresConfig holds database settings (required if StorageType is "postgres")
	PostgresConfig *postgres.Config
	// AuthConfig holds configuration for the auth service (optional)
	AuthConfig auth.Config
	// StoreTimeout bounds each store call (optional)
	StoreTimeout time.Duration
	// ResetSchedule is the cron spec of the daily reset (optional)
	ResetSchedule string
	// CooldownPolicy is the initial policy (optional, defaults to cooldown.Default)
	CooldownPolicy *cooldown.Policy
	// Roster seeds an empty board (optional, defaults to the built-in roster)
	Roster []roster.Entry
	// TaskConfig sizes the post-commit task queue (optional)
	TaskConfig tasks.Config
}

// ConfigFromSettings translates server settings into a factory Config,
// loading the optional policy and roster files.
func ConfigFromSettings(s config.Config, logger *slog.Logger) (Config, error) {
	cfg := Config{
		Logger:        logger,
		StorageType:   s.StorageType,
		StoreTimeout:  s.StoreTimeout,
		ResetSchedule: s.ResetSchedule,
		AuthConfig: auth.Config{
			Secret:   s.TokenSecret,
			TokenTTL: s.TokenTTL,
		},
		TaskConfig: tasks.Config{
			Workers:     s.TaskWorkers,
			QueueSize:   s.TaskQueueSize,
			TaskTimeout: tasks.DefaultConfig().TaskTimeout,
		},
	}

	switch s.StorageType {
	case config.StorageTypeRedis:
		redisCfg := redisstorage.DefaultConfig()
		redisCfg.URL = s.RedisURL
		cfg.RedisConfig = &redisCfg
	case config.StorageTypePostgres:
		pgCfg := postgres.DefaultConfig()
		pgCfg.DSN = s.DatabaseURL
		cfg.PostgresConfig = &pgCfg
	}

	if s.CooldownPolicyFile != "" {
		policy, err := cooldown.LoadFile(s.CooldownPolicyFile)
		if err != nil {
			return Config{}, err
		}
		cfg.CooldownPolicy = policy
	}
	if s.RosterFile != "" {
		entries, err := roster.LoadFile(s.RosterFile)
		if err != nil {
			return Config{}, err
		}
		cfg.Roster = entries
	}
	return cfg, nil
}

// New creates a new application with all dependencies wired
func New(ctx context.Context, cfg Config) (*App, error) {
	// Use no-op logger if not provided
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}

	var (
		store       storage.BoardStore
		relayClient *goredis.Client
		closers     []func() error
	)
	storageType := cfg.StorageType
	if storageType == "" {
		storageType = config.StorageTypeMemory
	}

	switch storageType {
	case config.StorageTypeMemory:
		store = memory.New()
	case config.StorageTypeRedis:
		if cfg.RedisConfig == nil {
			return nil, errors.New("RedisConfig required when StorageType is redis")
		}
		redisStore, err := redisstorage.New(*cfg.RedisConfig)
		if err != nil {
			return nil, err
		}
		store = redisStore
		relayClient = redisStore.Client()
		closers = append(closers, redisStore.Close)
	case config.StorageTypePostgres:
		if cfg.PostgresConfig == nil {
			return nil, errors.New("PostgresConfig required when StorageType is postgres")
		}
		pgStore, err := postgres.New(ctx, *cfg.PostgresConfig)
		if err != nil {
			return nil, err
		}
		store = pgStore
		closers = append(closers, pgStore.Close)
	default:
		return nil, errors.New("invalid StorageType: must be 'memory', 'redis' or 'postgres'")
	}

	app, err := newWithDependencies(store, clock.New(), random.New(), cfg, logger, relayClient)
	if err != nil {
		for _, c := range closers {
			_ = c()
		}
		return nil, err
	}
	app.closers = closers
	return app, nil
}

// newWithDependencies creates an App with the given dependencies (useful for testing)
func newWithDependencies(
	store storage.BoardStore,
	clk clock.Clock,
	rnd random.Random,
	cfg Config,
	logger *slog.Logger,
	relayClient *goredis.Client,
) (*App, error) {
	storeTimeout := cfg.StoreTimeout
	if storeTimeout == 0 {
		storeTimeout = claim.DefaultConfig().StoreTimeout
	}
	taskCfg := cfg.TaskConfig
	if taskCfg.Workers == 0 {
		taskCfg = tasks.DefaultConfig()
	}
	entries := cfg.Roster
	if entries == nil {
		defaults, err := roster.Default()
		if err != nil {
			return nil, err
		}
		entries = defaults
	}

	// Events reach local observers through the hub; with a relay they make
	// a round trip through redis so every process sees them exactly once.
	hubManager := notify.NewHubManager(logger)
	hubManager.GetOrCreateHub(model.BoardTopic)
	var relay *redisrelay.Relay
	broadcaster := notify.NewFanout(logger, hubManager)
	if relayClient != nil {
		relay = redisrelay.New(relayClient, redisrelay.DefaultChannel, hubManager, logger)
		broadcaster = notify.NewFanout(logger, relay)
	}

	queue := tasks.New(taskCfg, logger.With(slog.String("component", "tasks")))
	cooldownService := cooldown.NewService(cfg.CooldownPolicy, logger)

	resetCoordinator := reset.NewCoordinator(
		reset.Config{StoreTimeout: storeTimeout},
		store,
		broadcaster,
		clk,
		rnd,
		logger,
	)
	arbiter := claim.NewArbiter(
		claim.Config{StoreTimeout: storeTimeout},
		store,
		cooldownService,
		broadcaster,
		resetCoordinator,
		queue,
		clk,
		logger,
	)
	sched, err := scheduler.New(cfg.ResetSchedule, resetCoordinator, clk, logger)
	if err != nil {
		return nil, err
	}

	return &App{
		Store:              store,
		Clock:              clk,
		Random:             rnd,
		HubManager:         hubManager,
		Broadcaster:        broadcaster,
		Relay:              relay,
		Tasks:              queue,
		CooldownService:    cooldownService,
		ResetCoordinator:   resetCoordinator,
		ClaimArbiter:       arbiter,
		Scheduler:          sched,
		LeaderboardService: leaderboard.NewService(store, storeTimeout),
		ProfileService:     profile.NewService(store, clk, rnd, logger, storeTimeout),
		AuthService:        auth.New(cfg.AuthConfig, clk, rnd),
		Seeder:             roster.NewSeeder(store, logger, storeTimeout),
		Roster:             entries,
		logger:             logger,
	}, nil
}

// Seed populates an empty board from the roster
func (a *App) Seed(ctx context.Context) error {
	_, err := a.Seeder.Seed(ctx, a.Roster)
	return err
}

// Start launches background work: the task workers, the event relay and
// the reset schedule.
func (a *App) Start(ctx context.Context) {
	a.Tasks.Start()
	// A board left full by a previous process resets now, not at the next schedule
	a.ClaimArbiter.SignalResetCheck()
	if a.Relay != nil {
		relayCtx, cancel := context.WithCancel(ctx)
		a.relayCancel = cancel
		a.relayDone = make(chan struct{})
		go func() {
			defer close(a.relayDone)
			if err := a.Relay.Run(relayCtx); err != nil {
				a.logger.Error("event relay stopped", slog.String("error", err.Error()))
			}
		}()
	}
	a.Scheduler.Start()
}

// Shutdown stops background work, drains pending tasks and releases the store
func (a *App) Shutdown(ctx context.Context) error {
	var errs []error
	if err := a.Scheduler.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("stop scheduler: %w", err))
	}
	if err := a.Tasks.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("drain tasks: %w", err))
	}
	if a.relayCancel != nil {
		a.relayCancel()
		<-a.relayDone
	}
	a.HubManager.CloseAll()
	for _, c := range a.closers {
		if err := c(); err != nil {
			errs = append(errs, fmt.Errorf("close store: %w", err))
		}
	}
	return errors.Join(errs...)
}
