package bootstrap

import (
	"github.com/Popie52/offlinesync/internal/api"
	"github.com/Popie52/offlinesync/internal/network"
)

func (a *App) newRouter() *api.Router {
	deps := api.Deps{
		Store:     a.Store,
		Engine:    a.Engine,
		Scheduler: a.Scheduler,
		Metrics:   a.Metrics,
		Hub:       a.Hub,
		Logger:    a.logger.Named("http"),
	}
	// Connectivity can only be reported over HTTP when nothing probes it.
	if m, ok := a.Monitor.(*network.Manual); ok {
		deps.Network = m
	}
	return api.NewRouter(deps)
}
