package daemon

import (
	"context"

	"github.com/matheus3301/msgr/internal/avatar"
	"github.com/matheus3301/msgr/internal/bridge"
	"github.com/matheus3301/msgr/internal/bus"
	"github.com/matheus3301/msgr/internal/config"
	"github.com/matheus3301/msgr/internal/contacts"
	"github.com/matheus3301/msgr/internal/lock"
	"github.com/matheus3301/msgr/internal/logging"
	"github.com/matheus3301/msgr/internal/messenger"
	"github.com/matheus3301/msgr/internal/outbox"
	"github.com/matheus3301/msgr/internal/profile"
	"github.com/matheus3301/msgr/internal/roster"
	"github.com/matheus3301/msgr/internal/sdk"
	"github.com/matheus3301/msgr/internal/signin"
	"github.com/matheus3301/msgr/internal/status"
	"github.com/matheus3301/msgr/internal/store"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	bridgeBuffer  = 256
	avatarWorkers = 4
)

// Params holds the resolved account configuration passed to the fx module.
type Params struct {
	Account     string
	Dialer      sdk.Dialer
	SocketPath  string // optional override for testing; empty = use default
	StderrLevel zapcore.Level
}

// Module returns the fx module for one signed-in account, composing all
// providers and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideLogger,
			provideSettings,
			provideBus,
			provideStateMachine,
			provideLock,
			provideStore,
			provideJournal,
			provideRepository,
			provideRoster,
			provideBridge,
			provideOutbox,
			provideAvatars,
			provideOrchestrator,
			provideLoop,
			NewServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideLogger(p Params) (*zap.Logger, error) {
	if err := profile.EnsureDir(p.Account); err != nil {
		return nil, err
	}
	return logging.New(profile.LogPath(p.Account), p.Account, p.StderrLevel)
}

func provideSettings(logger *zap.Logger) config.Settings {
	cfg, err := config.LoadOrDefault(profile.ConfigPath())
	if err != nil {
		logger.Warn("config unreadable, using defaults", zap.Error(err))
		cfg = config.Default()
	}
	return cfg.Settings()
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideStateMachine(b *bus.Bus) *status.Machine {
	return status.NewMachine(b)
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	logger.Info("acquiring account lock")
	l, err := lock.Acquire(profile.Dir(p.Account), p.Account)
	if err != nil {
		return nil, err
	}
	logger.Info("account lock acquired")
	return l, nil
}

func provideStore(p Params, _ *lock.Lock, logger *zap.Logger) (*store.DB, error) {
	dbPath := profile.DBPath(p.Account)
	db, err := store.Open(dbPath)
	if err != nil {
		return nil, err
	}
	result, err := db.Migrate()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if result.Changed {
		logger.Info("migrations applied", zap.Uint("version", result.Version))
	} else {
		logger.Info("migrations up to date", zap.Uint("version", result.Version))
	}
	logger.Info("store initialized", zap.String("path", dbPath))
	return db, nil
}

func provideJournal(db *store.DB, logger *zap.Logger) *store.Journal {
	return store.NewJournal(db, logger)
}

func provideRepository(logger *zap.Logger) *contacts.Repository {
	return contacts.NewRepository(logger)
}

func provideRoster(repo *contacts.Repository, journal *store.Journal, db *store.DB, b *bus.Bus, logger *zap.Logger) *roster.Engine {
	engine := roster.NewEngine(repo, journal, b, logger)
	if err := engine.Load(db); err != nil {
		logger.Warn("cached roster unavailable", zap.Error(err))
	}
	return engine
}

func provideBridge(logger *zap.Logger) *bridge.Bridge {
	return bridge.New(bridgeBuffer, logger)
}

func provideOutbox(b *bus.Bus, logger *zap.Logger) *outbox.Queue {
	return outbox.NewQueue(b, logger)
}

func provideAvatars(logger *zap.Logger) *avatar.Pool {
	return avatar.NewPool(avatarWorkers, logger)
}

func provideOrchestrator(p Params, db *store.DB, settings config.Settings, m *status.Machine, logger *zap.Logger) *signin.Orchestrator {
	return signin.New(p.Dialer, db, settings, m, logger)
}

// LoopParams gathers the update loop's collaborators.
type LoopParams struct {
	fx.In

	Orchestrator *signin.Orchestrator
	Bridge       *bridge.Bridge
	Roster       *roster.Engine
	Contacts     *contacts.Repository
	Outbox       *outbox.Queue
	Avatars      *avatar.Pool
	Journal      *store.Journal
	DB           *store.DB
	Machine      *status.Machine
	Bus          *bus.Bus
	Settings     config.Settings
	Logger       *zap.Logger
}

func provideLoop(p LoopParams) *messenger.Loop {
	return messenger.New(messenger.Deps{
		Auth:          p.Orchestrator,
		Bridge:        p.Bridge,
		Roster:        p.Roster,
		Contacts:      p.Contacts,
		Outbox:        p.Outbox,
		Avatars:       p.Avatars,
		Journal:       p.Journal,
		History:       p.DB,
		Machine:       p.Machine,
		Bus:           p.Bus,
		TypingTimeout: p.Settings.TypingTimeout,
		HistoryLimit:  p.Settings.HistoryLimit,
		Logger:        p.Logger,
	})
}

// Components are the long-lived pieces started and stopped with the app.
type Components struct {
	fx.In

	Server  *Server
	Lock    *lock.Lock
	Loop    *messenger.Loop
	Outbox  *outbox.Queue
	Avatars *avatar.Pool
	Bridge  *bridge.Bridge
	Journal *store.Journal
	DB      *store.DB
	Bus     *bus.Bus
	Machine *status.Machine
	Logger  *zap.Logger
}

func registerLifecycle(lc fx.Lifecycle, c Components) {
	ctx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			c.Server.Watch(c.Bus, c.Machine)
			go func() {
				if err := c.Server.Start(); err != nil {
					c.Logger.Error("health server error", zap.Error(err))
				}
			}()
			go func() { _ = c.Loop.Run(ctx) }()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			select {
			case <-c.Loop.Done():
			case <-stopCtx.Done():
				c.Logger.Warn("update loop did not stop in time")
			}
			c.Outbox.Stop()
			c.Avatars.Wait()
			c.Bridge.Close()
			c.Journal.Close()
			c.Server.Stop(stopCtx)
			if err := c.DB.Close(); err != nil {
				c.Logger.Warn("error closing store", zap.Error(err))
			}
			c.Bus.Close()
			if err := c.Lock.Release(); err != nil {
				c.Logger.Warn("error releasing lock", zap.Error(err))
			}
			c.Logger.Info("daemon stopped")
			return nil
		},
	})
}
