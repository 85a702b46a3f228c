package bootstrap

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Popie52/offlinesync/internal/api"
	"github.com/Popie52/offlinesync/internal/config"
	"github.com/Popie52/offlinesync/internal/core"
	"github.com/Popie52/offlinesync/internal/metrics"
	"github.com/Popie52/offlinesync/internal/network"
	"github.com/Popie52/offlinesync/internal/sender"
	"github.com/Popie52/offlinesync/internal/store"
)

// App is a fully wired sync service.
type App struct {
	cfg    *config.Config
	logger *zap.Logger

	Store     store.ActionStore
	Metrics   *metrics.Metrics
	Engine    *core.Engine
	Monitor   network.Monitor
	Scheduler *core.Scheduler
	Hub       *api.Hub
	Router    *api.Router

	// probe is set when the monitor polls an endpoint and must be run.
	probe *network.Probe
}

// New opens the store and builds every component. Nothing runs until Run.
func New(cfg *config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	st, err := OpenStore(cfg.Store)
	if err != nil {
		return nil, err
	}

	s, err := NewSender(cfg.Sender, logger)
	if err != nil {
		st.Close()
		return nil, err
	}

	m := metrics.New()
	mon, probe := NewMonitor(cfg.Network, logger)

	e := core.NewEngine(st, s,
		core.WithMaxRetry(cfg.Sync.MaxRetry),
		core.WithLogger(logger.Named("engine")),
		core.WithMetrics(m),
	)

	a := &App{
		cfg:       cfg,
		logger:    logger,
		Store:     st,
		Metrics:   m,
		Engine:    e,
		Monitor:   mon,
		Scheduler: core.NewScheduler(e, mon, cfg.Sync.ResyncInterval, logger.Named("scheduler")),
		Hub:       api.NewHub(logger.Named("ws")),
		probe:     probe,
	}
	a.Router = a.newRouter()

	e.SetOnComplete(a.onPassComplete)
	mon.Subscribe(a.Hub.BroadcastNetwork)

	return a, nil
}

// Run serves until ctx is cancelled or a component fails.
func (a *App) Run(ctx context.Context) error {
	a.restore(ctx)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return a.Hub.Run(ctx) })
	if a.probe != nil {
		g.Go(func() error { return a.probe.Run(ctx) })
	}
	g.Go(func() error { return a.Scheduler.Serve(ctx) })
	g.Go(func() error { return a.Router.Serve(ctx, a.cfg.HTTP.Addr) })

	a.logger.Info("offlinesync_started",
		zap.String("addr", a.cfg.HTTP.Addr),
		zap.String("store", a.cfg.Store.Driver),
		zap.String("sender", a.cfg.Sender.Mode),
		zap.String("network", a.cfg.Network.Mode),
	)

	err := g.Wait()
	a.logger.Info("offlinesync_stopped")
	return err
}

func (a *App) Close() error {
	return a.Store.Close()
}

// restore reports what survived the last run. Pending actions need no
// reloading; the next pass reads them from the store.
func (a *App) restore(ctx context.Context) {
	st, err := a.Store.Stats(ctx, a.Engine.MaxRetry())
	if err != nil {
		a.logger.Warn("restore_stats_failed", zap.Error(err))
		return
	}
	a.Metrics.SetPendingActions(st.Pending)
	a.logger.Info("actions_restored",
		zap.Int("pending", st.Pending),
		zap.Int("completed", st.Completed),
		zap.Int("exhausted", st.Exhausted),
	)
}

// onPassComplete refreshes the display list for every connected client.
func (a *App) onPassComplete(r core.PassReport) {
	ctx := context.Background()

	actions, err := a.Store.ListAll(ctx)
	if err != nil {
		a.logger.Error("refresh_actions_failed", zap.Error(err))
		actions = nil
	}

	pending := 0
	for _, act := range actions {
		if act.IsPending() {
			pending++
		}
	}
	if err == nil {
		a.Metrics.SetPendingActions(pending)
	}

	a.Hub.BroadcastPass(r, actions)
}

func OpenStore(cfg config.StoreConfig) (store.ActionStore, error) {
	dsn := cfg.Path
	if cfg.Driver == store.DriverPostgres {
		dsn = cfg.DSN
	}
	st, err := store.Open(cfg.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Driver, err)
	}
	return st, nil
}

func NewSender(cfg config.SenderConfig, logger *zap.Logger) (sender.Sender, error) {
	switch cfg.Mode {
	case config.SenderSimulated:
		return sender.NewSimulated(sender.DefaultDelays, cfg.SimulatedFailEvery), nil
	case config.SenderHTTP:
		return sender.NewHTTPSender(sender.HTTPConfig{
			URL:       cfg.URL,
			Timeout:   cfg.Timeout,
			RateLimit: cfg.RateLimit,
			RateBurst: cfg.RateBurst,
			Breaker: sender.BreakerConfig{
				Enabled:          cfg.BreakerEnabled,
				FailureThreshold: cfg.BreakerFailureThreshold,
				RecoveryTime:     cfg.BreakerRecoveryTime,
			},
		}, logger.Named("sender"))
	default:
		return nil, fmt.Errorf("unknown sender mode %q", cfg.Mode)
	}
}

// NewMonitor returns the configured monitor, plus the probe when it has to
// be run in the background.
func NewMonitor(cfg config.NetworkConfig, logger *zap.Logger) (network.Monitor, *network.Probe) {
	if cfg.Mode == config.NetworkProbe {
		p := network.NewProbe(cfg.ProbeURL, cfg.ProbeInterval, cfg.ProbeTimeout, logger.Named("network"))
		return p, p
	}
	return network.NewManual(cfg.Online), nil
}
