package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Popie52/offlinesync/internal/core"
	"github.com/Popie52/offlinesync/internal/metrics"
	"github.com/Popie52/offlinesync/internal/store"
)

// Triggerer requests a sync pass without waiting for it.
type Triggerer interface {
	Trigger()
}

// NetworkSetter lets the host report connectivity when the monitor is
// driven manually.
type NetworkSetter interface {
	Set(online bool)
}

type Deps struct {
	Store     store.ActionStore
	Engine    *core.Engine
	Scheduler Triggerer
	// Network is optional; without it PUT /network is not registered.
	Network NetworkSetter
	Metrics *metrics.Metrics
	Hub     *Hub
	Logger  *zap.Logger
}

type Router struct {
	engine *gin.Engine
	server *http.Server
	deps   Deps
	logger *zap.Logger
	// closing is set by Serve once shutdown starts; new writes are refused.
	closing chan struct{}
}

func NewRouter(deps Deps) *Router {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestID())
	r.Use(Logger(deps.Logger))

	api := &Router{
		engine:  r,
		deps:    deps,
		logger:  deps.Logger,
		closing: make(chan struct{}),
	}
	api.RegisterRoutes()
	return api
}

func (r *Router) RegisterRoutes() {
	r.engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if r.deps.Metrics != nil {
		r.engine.GET("/metrics", gin.WrapH(r.deps.Metrics.Handler()))
	}
	if r.deps.Hub != nil {
		r.engine.GET("/ws", r.deps.Hub.ServeWS)
	}

	r.engine.POST("/actions", r.EnqueueAction)
	r.engine.GET("/actions", r.ListActions)
	r.engine.GET("/actions/:id", r.GetAction)
	r.engine.GET("/stats", r.GetStats)
	r.engine.GET("/status", r.GetStatus)
	r.engine.POST("/sync", r.TriggerSync)
	if r.deps.Network != nil {
		r.engine.PUT("/network", r.SetNetwork)
	}
}

func (r *Router) Handler() http.Handler { return r.engine }

// Serve listens on addr until ctx is done, then shuts down gracefully.
func (r *Router) Serve(ctx context.Context, addr string) error {
	r.server = &http.Server{
		Addr:         addr,
		Handler:      r.engine,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		r.logger.Info("http_server_started", zap.String("addr", addr))
		errCh <- r.server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	close(r.closing)
	r.logger.Info("http_server_stopping")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (r *Router) shuttingDown() bool {
	select {
	case <-r.closing:
		return true
	default:
		return false
	}
}
