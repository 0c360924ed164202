package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"autodrop/internal/items"
	"autodrop/internal/registry"
	"autodrop/internal/scheduler"
	"autodrop/internal/state"
	"autodrop/internal/store"
)

const identityKey = "identity"

type Option func(*Handler)

func WithLogger(logger *slog.Logger) Option {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithGatherer exposes the registry on GET /metrics.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(h *Handler) {
		h.gatherer = g
	}
}

func WithRateLimit(rps float64, burst int) Option {
	return func(h *Handler) {
		h.limiter = newLimiter(rps, burst)
	}
}

func WithDefaultInterval(seconds int) Option {
	return func(h *Handler) {
		if seconds > 0 {
			h.defaultInterval = seconds
		}
	}
}

type Handler struct {
	store           Store
	timers          Timers
	logger          *slog.Logger
	gatherer        prometheus.Gatherer
	limiter         *limiter
	defaultInterval int
}

func NewHandler(st Store, timers Timers, opts ...Option) *Handler {
	h := &Handler{
		store:           st,
		timers:          timers,
		logger:          slog.Default(),
		defaultInterval: scheduler.DefaultIntervalSeconds,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func NewRouter(st Store, timers Timers, opts ...Option) *gin.Engine {
	return NewHandler(st, timers, opts...).Router()
}

func (h *Handler) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", h.Healthz)
	if h.gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{})))
	}

	v1 := r.Group("/v1", h.identify)
	if h.limiter != nil {
		v1.Use(h.rateLimit)
	}
	v1.GET("/whoami", h.WhoAmI)
	v1.GET("/status", h.require(registry.Producer, registry.Consumer), h.GetStatus)

	producers := v1.Group("", h.require(registry.Producer))
	producers.POST("/items", h.PostItems)
	producers.PUT("/distribution", h.PutDistribution)
	producers.POST("/clear", h.PostClear)
	producers.PUT("/identities/:id/role", h.PutRole)
	producers.DELETE("/identities/:id", h.DeleteIdentity)

	consumers := v1.Group("", h.require(registry.Consumer))
	consumers.POST("/assign", h.PostAssign)
	consumers.PUT("/timer", h.PutTimer)
	consumers.DELETE("/timer", h.DeleteTimer)
	consumers.GET("/delivered", h.GetDelivered)
	return r
}

func (h *Handler) identify(c *gin.Context) {
	raw := strings.TrimSpace(c.GetHeader(IdentityHeader))
	if raw == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: ErrMissingIdentity})
		return
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: ErrInvalidIdentity})
		return
	}
	c.Set(identityKey, id)
	c.Next()
}

// rateLimit only meters registered identities. Anyone else is turned away
// by require, so unknown ids never get a bucket.
func (h *Handler) rateLimit(c *gin.Context) {
	id := c.GetInt64(identityKey)
	if h.store.Role(id) == registry.Unregistered {
		c.Next()
		return
	}
	if !h.limiter.allow(id) {
		c.AbortWithStatusJSON(http.StatusTooManyRequests, ErrorResponse{Error: ErrRateLimited})
		return
	}
	c.Next()
}

func (h *Handler) require(roles ...registry.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetInt64(identityKey)
		role := h.store.Role(id)
		for _, r := range roles {
			if role == r {
				c.Next()
				return
			}
		}
		h.logger.Warn("request rejected", "identity", id, "role", role, "path", c.FullPath(), "err", store.ErrUnauthorized)
		c.AbortWithStatusJSON(http.StatusForbidden, ErrorResponse{Error: ErrForbidden})
	}
}

func (h *Handler) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) WhoAmI(c *gin.Context) {
	id := c.GetInt64(identityKey)
	c.JSON(http.StatusOK, WhoAmIResponse{Identity: id, Role: string(h.store.Role(id))})
}

func (h *Handler) GetStatus(c *gin.Context) {
	st := h.store.Status()
	resp := StatusResponse{
		QueueLength: st.QueueLength,
		Enabled:     st.Enabled,
		Producers:   st.Producers,
		Consumers:   st.Consumers,
		Delivered:   st.Delivered,
		Timers:      make(map[int64]TimerView, len(st.Timers)),
	}
	for consumer, cfg := range st.Timers {
		resp.Timers[consumer] = TimerView{
			IntervalSeconds: cfg.IntervalSeconds,
			Active:          cfg.Active,
			State:           string(state.Of(true, cfg.Active)),
		}
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) PostItems(c *gin.Context) {
	var req PushRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: ErrInvalidJSON})
		return
	}

	var batch items.Batch
	if len(req.Items) > 0 {
		batch = items.Parse(req.Items)
	} else {
		batch = items.FromText(req.Text)
	}
	switch batch.Decision() {
	case items.DecisionMissing:
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: ErrNoItems})
		return
	case items.DecisionReject:
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: ErrInvalidItems, Message: strings.Join(batch.Invalid, ", ")})
		return
	}

	n := h.store.Push(c.Request.Context(), batch.Valid)
	c.JSON(http.StatusCreated, PushResponse{
		Pushed:      n,
		Rejected:    batch.Invalid,
		QueueLength: h.store.Status().QueueLength,
	})
}

func (h *Handler) PutDistribution(c *gin.Context) {
	var req DistributionRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Enabled == nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: ErrInvalidJSON})
		return
	}
	h.store.SetEnabled(c.Request.Context(), *req.Enabled)
	c.JSON(http.StatusOK, DistributionResponse{Enabled: *req.Enabled})
}

func (h *Handler) PostClear(c *gin.Context) {
	res := h.store.Clear(c.Request.Context())
	c.JSON(http.StatusOK, ClearResponse{Queued: res.Queued, Delivered: res.Delivered})
}

func (h *Handler) PutRole(c *gin.Context) {
	id, ok := pathIdentity(c)
	if !ok {
		return
	}
	var req RoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: ErrInvalidJSON})
		return
	}
	role, ok := registry.ParseRole(strings.TrimSpace(req.Role))
	if !ok {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: ErrInvalidRole})
		return
	}

	ctx := c.Request.Context()
	var changed bool
	if role == registry.Producer {
		changed = h.store.RegisterProducer(ctx, id)
	} else {
		changed = h.store.RegisterConsumer(ctx, id)
	}
	c.JSON(http.StatusOK, RoleResponse{Identity: id, Role: string(role), Changed: changed})
}

func (h *Handler) DeleteIdentity(c *gin.Context) {
	id, ok := pathIdentity(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	h.timers.Stop(ctx, id)
	removed := h.store.RemoveIdentity(ctx, id)
	if h.limiter != nil {
		h.limiter.forget(id)
	}
	c.JSON(http.StatusOK, RemoveResponse{Identity: id, Removed: removed})
}

func (h *Handler) PostAssign(c *gin.Context) {
	item, outcome := h.store.AssignIfEnabled(c.Request.Context(), c.GetInt64(identityKey))
	if outcome == store.Disabled {
		c.JSON(http.StatusConflict, ErrorResponse{Error: ErrDistributionOff})
		return
	}
	c.JSON(http.StatusOK, AssignResponse{Item: item, Outcome: outcome.String()})
}

func (h *Handler) PutTimer(c *gin.Context) {
	var req TimerRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: ErrInvalidJSON})
			return
		}
	}
	if req.IntervalSeconds == 0 {
		req.IntervalSeconds = h.defaultInterval
	}

	res, err := h.timers.Start(c.Request.Context(), c.GetInt64(identityKey), req.IntervalSeconds)
	switch {
	case errors.Is(err, store.ErrValidation):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: ErrInvalidInterval, Message: err.Error()})
		return
	case err != nil:
		h.logger.Error("timer start failed", "identity", c.GetInt64(identityKey), "err", err)
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: ErrTimerUnavailable})
		return
	}
	c.JSON(http.StatusOK, TimerResponse{
		State:           string(state.Active),
		IntervalSeconds: req.IntervalSeconds,
		Immediate:       res.Outcome.String(),
		Item:            res.Item,
	})
}

func (h *Handler) DeleteTimer(c *gin.Context) {
	id := c.GetInt64(identityKey)
	stopped := h.timers.Stop(c.Request.Context(), id)
	c.JSON(http.StatusOK, TimerResponse{State: string(h.timers.State(id)), Stopped: stopped})
}

func (h *Handler) GetDelivered(c *gin.Context) {
	delivered := h.store.Delivered(c.GetInt64(identityKey))
	if delivered == nil {
		delivered = []string{}
	}
	c.JSON(http.StatusOK, DeliveredResponse{Items: delivered})
}

func pathIdentity(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: ErrInvalidIdentity})
		return 0, false
	}
	return id, true
}
