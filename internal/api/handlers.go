package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Popie52/offlinesync/internal/model"
	"github.com/Popie52/offlinesync/internal/store"
)

type enqueueRequest struct {
	Kind    string `json:"kind" binding:"required"`
	Payload string `json:"payload"`
}

// EnqueueAction records a new pending action and nudges the scheduler.
func (r *Router) EnqueueAction(c *gin.Context) {
	if r.shuttingDown() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "server is shutting down"})
		return
	}

	var req enqueueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	kind, err := model.ParseKind(req.Kind)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	a, err := r.deps.Store.Enqueue(c.Request.Context(), kind, req.Payload)
	if err != nil {
		if errors.Is(err, store.ErrUnknownKind) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		r.internalError(c, "enqueue_failed", err)
		return
	}

	if r.deps.Metrics != nil {
		r.deps.Metrics.IncActionsEnqueued(a.Kind)
	}
	r.logger.Info("action_enqueued",
		zap.String("action_id", a.ID),
		zap.String("kind", string(a.Kind)),
		zap.Int("priority", a.Priority),
	)

	view := newActionView(a)
	if r.deps.Hub != nil {
		r.deps.Hub.Broadcast(EventActionEnqueued, view)
	}
	if r.deps.Scheduler != nil {
		r.deps.Scheduler.Trigger()
	}

	c.JSON(http.StatusCreated, view)
}

// ListActions serves the display list. status selects pending, completed
// or all (the default).
func (r *Router) ListActions(c *gin.Context) {
	ctx := c.Request.Context()

	var (
		actions []*model.Action
		err     error
	)
	switch c.DefaultQuery("status", "all") {
	case "all":
		actions, err = r.deps.Store.ListAll(ctx)
	case string(model.StatusPending):
		actions, err = r.deps.Store.ListPending(ctx)
	case string(model.StatusCompleted):
		actions, err = r.deps.Store.ListCompleted(ctx)
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "status must be pending, completed or all"})
		return
	}
	if err != nil {
		r.internalError(c, "list_actions_failed", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"actions": newActionViews(actions)})
}

func (r *Router) GetAction(c *gin.Context) {
	a, err := r.deps.Store.Get(c.Request.Context(), c.Param("id"))
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "action not found"})
		return
	}
	if err != nil {
		r.internalError(c, "get_action_failed", err)
		return
	}
	c.JSON(http.StatusOK, newActionView(a))
}

func (r *Router) GetStats(c *gin.Context) {
	st, err := r.deps.Store.Stats(c.Request.Context(), r.deps.Engine.MaxRetry())
	if err != nil {
		r.internalError(c, "stats_failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"pending":   st.Pending,
		"completed": st.Completed,
		"exhausted": st.Exhausted,
		"total":     st.Total(),
		"max_retry": r.deps.Engine.MaxRetry(),
	})
}

func (r *Router) GetStatus(c *gin.Context) {
	c.JSON(http.StatusOK, r.status())
}

// TriggerSync asks for a pass; it runs in the background when online.
func (r *Router) TriggerSync(c *gin.Context) {
	if r.deps.Scheduler != nil {
		r.deps.Scheduler.Trigger()
	}
	c.JSON(http.StatusAccepted, r.status())
}

type networkRequest struct {
	Online *bool `json:"online" binding:"required"`
}

func (r *Router) SetNetwork(c *gin.Context) {
	var req networkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	r.deps.Network.Set(*req.Online)
	c.JSON(http.StatusOK, r.status())
}

func (r *Router) status() gin.H {
	return gin.H{
		"online":  r.deps.Engine.Online(),
		"syncing": r.deps.Engine.Syncing(),
	}
}

func (r *Router) internalError(c *gin.Context, event string, err error) {
	_ = c.Error(err)
	r.logger.Error(event, zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}
