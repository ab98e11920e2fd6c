package controllers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	apiv1 "github.com/rzbill/shardq/api/v1"
	"github.com/rzbill/shardq/internal/queue"
	"github.com/rzbill/shardq/internal/runtime"
	"github.com/rzbill/shardq/pkg/log"
)

// GeneralController handles health and queue administration endpoints.
type GeneralController struct {
	rt     *runtime.Runtime
	logger log.Logger
}

// NewGeneralController creates a new general controller.
func NewGeneralController(rt *runtime.Runtime, logger log.Logger) *GeneralController {
	return &GeneralController{rt: rt, logger: logger}
}

// RegisterRoutes registers general routes:
//   - GET  /v1/healthz
//   - GET  /v1/queue?queue=name
//   - POST /v1/queue
func (c *GeneralController) RegisterRoutes(r chi.Router) {
	r.Get("/v1/healthz", c.handleHealth)
	r.Get("/v1/queue", c.handleQueueInfo)
	r.Post("/v1/queue", c.handleQueueCreate)
}

// handleHealth returns 200 with {"status": "ok"} if the backend answers,
// 503 otherwise.
func (c *GeneralController) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := c.rt.CheckHealth(r.Context()); err != nil {
		c.logger.Warn("health check failed", log.Err(err))
		writeError(w, http.StatusServiceUnavailable, apiv1.CodeUnavailable, "not_serving")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (c *GeneralController) handleQueueInfo(w http.ResponseWriter, r *http.Request) {
	q, err := openQueue(r, c.rt, r.URL.Query().Get("queue"))
	if err != nil {
		c.fail(w, "open queue", err)
		return
	}
	info, err := queueInfo(r, q)
	if err != nil {
		c.fail(w, "queue info", err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (c *GeneralController) handleQueueCreate(w http.ResponseWriter, r *http.Request) {
	var req apiv1.CreateQueueRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, apiv1.CodeInvalid, "Invalid request body")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, apiv1.CodeInvalid, "name is required")
		return
	}
	meta := c.rt.DefaultMetadata()
	if req.ShardCount > 0 {
		meta.ShardCount = req.ShardCount
	}
	if req.LeaseDurationMs > 0 {
		meta.LeaseDuration = time.Duration(req.LeaseDurationMs) * time.Millisecond
	}
	if req.PoisonLocation != "" {
		meta.PoisonLocation = req.PoisonLocation
	}
	q, err := c.rt.CreateQueue(r.Context(), req.Name, meta)
	if err != nil {
		c.fail(w, "create queue", err)
		return
	}
	info, err := queueInfo(r, q)
	if err != nil {
		c.fail(w, "queue info", err)
		return
	}
	writeJSON(w, http.StatusCreated, info)
}

func (c *GeneralController) fail(w http.ResponseWriter, op string, err error) {
	status, code := statusFor(err)
	if status >= http.StatusInternalServerError {
		c.logger.Error(op+" failed", log.Err(err))
	}
	writeError(w, status, code, err.Error())
}

// openQueue resolves name, or the configured default queue when empty.
func openQueue(r *http.Request, rt *runtime.Runtime, name string) (*queue.Queue, error) {
	if name == "" {
		name = rt.Config().Queue.Name
	}
	return rt.OpenQueue(r.Context(), name)
}

func queueInfo(r *http.Request, q *queue.Queue) (apiv1.QueueInfo, error) {
	meta := q.Metadata()
	shards, err := q.ShardCounts(r.Context())
	if err != nil {
		return apiv1.QueueInfo{}, err
	}
	poisoned, err := q.PoisonCount(r.Context())
	if err != nil {
		return apiv1.QueueInfo{}, err
	}
	total := 0
	for _, n := range shards {
		total += n
	}
	return apiv1.QueueInfo{
		Name:            q.Name(),
		ShardCount:      meta.ShardCount,
		LeaseDurationMs: meta.LeaseDuration.Milliseconds(),
		PoisonLocation:  meta.PoisonLocation,
		CreatedAtMs:     unixMs(meta.CreatedAt),
		Messages:        total,
		Poisoned:        poisoned,
		Shards:          shards,
	}, nil
}
