package controllers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	apiv1 "github.com/rzbill/shardq/api/v1"
	"github.com/rzbill/shardq/internal/queue"
	"github.com/rzbill/shardq/internal/runtime"
	"github.com/rzbill/shardq/pkg/log"
)

// MessagesController exposes producer and consumer operations.
type MessagesController struct {
	rt     *runtime.Runtime
	logger log.Logger
}

// NewMessagesController creates a new messages controller.
func NewMessagesController(rt *runtime.Runtime, logger log.Logger) *MessagesController {
	return &MessagesController{rt: rt, logger: logger}
}

// RegisterRoutes registers message routes with the given router.
func (c *MessagesController) RegisterRoutes(r chi.Router) {
	r.Post("/v1/messages", c.handleEnqueue)
	r.Post("/v1/messages/read", c.handleRead)
	r.Get("/v1/messages/peek", c.handlePeek)
	r.Post("/v1/messages/ack", c.handleAck)
	r.Post("/v1/messages/poison", c.handlePoison)
	r.Delete("/v1/messages/{id}", c.handleDelete)
	r.Get("/v1/poison", c.handleListPoison)
}

func (c *MessagesController) fail(w http.ResponseWriter, op string, err error) {
	status, code := statusFor(err)
	if status >= http.StatusInternalServerError {
		c.logger.Error(op+" failed", log.Err(err))
	}
	writeError(w, status, code, err.Error())
}

func (c *MessagesController) handleEnqueue(w http.ResponseWriter, r *http.Request) {
	var req apiv1.EnqueueRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, apiv1.CodeInvalid, "Invalid request body")
		return
	}
	q, err := openQueue(r, c.rt, req.Queue)
	if err != nil {
		c.fail(w, "open queue", err)
		return
	}
	tr, err := buildTrigger(q.Clock().Now(), req.Trigger)
	if err != nil {
		c.fail(w, "enqueue", err)
		return
	}
	m := &queue.Message{
		Body:     req.Body,
		Priority: req.Priority,
		Trigger:  tr,
		Attempts: req.Attempts,
		Key:      req.Key,
		Headers:  req.Headers,
	}
	id, err := q.Producer().Enqueue(r.Context(), m)
	if err != nil {
		c.fail(w, "enqueue", err)
		return
	}
	writeJSON(w, http.StatusAccepted, apiv1.EnqueueResponse{ID: id, Shard: m.Shard, DueAtMs: unixMs(m.DueTime())})
}

// handleRead claims messages for the named consumer. Contention that leaves
// the call empty is reported as an empty list, not an error.
func (c *MessagesController) handleRead(w http.ResponseWriter, r *http.Request) {
	var req apiv1.ReadRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, apiv1.CodeInvalid, "Invalid request body")
		return
	}
	if req.Consumer == "" {
		writeError(w, http.StatusBadRequest, apiv1.CodeInvalid, "consumer is required")
		return
	}
	if req.Max <= 0 {
		req.Max = 1
	}
	if req.Max > maxBatch {
		req.Max = maxBatch
	}
	q, err := openQueue(r, c.rt, req.Queue)
	if err != nil {
		c.fail(w, "open queue", err)
		return
	}
	consumer := q.Consumer(req.Consumer)
	var msgs []*queue.Message
	switch {
	case req.Shard != nil:
		msgs, err = consumer.ReadMessagesFromShard(r.Context(), *req.Shard, req.Max)
	case req.TimeoutMs > 0:
		msgs, err = consumer.ReadMessagesTimeout(r.Context(), req.Max, time.Duration(req.TimeoutMs)*time.Millisecond)
	default:
		msgs, err = consumer.ReadMessages(r.Context(), req.Max)
	}
	if errors.Is(err, queue.ErrBusyLock) {
		err = nil
	}
	if err != nil && len(msgs) == 0 {
		c.fail(w, "read", err)
		return
	}
	if err != nil {
		// Claimed messages stay locked; hand them out rather than strand them.
		c.logger.Warn("read returned partial results", log.Int("claimed", len(msgs)), log.Err(err))
	}
	c.writeMessages(w, msgs)
}

func (c *MessagesController) handlePeek(w http.ResponseWriter, r *http.Request) {
	q, err := openQueue(r, c.rt, r.URL.Query().Get("queue"))
	if err != nil {
		c.fail(w, "open queue", err)
		return
	}
	msgs, err := q.Peek(r.Context(), parseLimit(r.URL.Query().Get("limit"), 10))
	if err != nil {
		c.fail(w, "peek", err)
		return
	}
	c.writeMessages(w, msgs)
}

func (c *MessagesController) handleListPoison(w http.ResponseWriter, r *http.Request) {
	q, err := openQueue(r, c.rt, r.URL.Query().Get("queue"))
	if err != nil {
		c.fail(w, "open queue", err)
		return
	}
	msgs, err := q.PoisonMessages(r.Context(), parseLimit(r.URL.Query().Get("limit"), 10))
	if err != nil {
		c.fail(w, "list poison", err)
		return
	}
	c.writeMessages(w, msgs)
}

func (c *MessagesController) handleAck(w http.ResponseWriter, r *http.Request) {
	c.settle(w, r, "ack", (*queue.Consumer).AckMessage)
}

func (c *MessagesController) handlePoison(w http.ResponseWriter, r *http.Request) {
	c.settle(w, r, "poison", (*queue.Consumer).AckPoisonMessage)
}

// settle looks up the claimed message named by the request and passes it to
// fn on behalf of the requesting consumer.
func (c *MessagesController) settle(w http.ResponseWriter, r *http.Request, op string, fn func(*queue.Consumer, context.Context, *queue.Message) error) {
	var req apiv1.AckRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, apiv1.CodeInvalid, "Invalid request body")
		return
	}
	if req.Consumer == "" || req.ID == "" {
		writeError(w, http.StatusBadRequest, apiv1.CodeInvalid, "consumer and id are required")
		return
	}
	q, err := openQueue(r, c.rt, req.Queue)
	if err != nil {
		c.fail(w, "open queue", err)
		return
	}
	m, err := q.Lookup(r.Context(), req.Shard, req.ID)
	if err != nil {
		c.fail(w, op, err)
		return
	}
	if err := fn(q.Consumer(req.Consumer), r.Context(), m); err != nil {
		c.fail(w, op, err)
		return
	}
	writeNoContent(w)
}

func (c *MessagesController) handleDelete(w http.ResponseWriter, r *http.Request) {
	q, err := openQueue(r, c.rt, r.URL.Query().Get("queue"))
	if err != nil {
		c.fail(w, "open queue", err)
		return
	}
	id := chi.URLParam(r, "id")
	found, err := q.DeleteMessage(r.Context(), id)
	if err != nil {
		c.fail(w, "delete", err)
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, apiv1.CodeNotFound, "message not found")
		return
	}
	writeNoContent(w)
}

func (c *MessagesController) writeMessages(w http.ResponseWriter, msgs []*queue.Message) {
	out, err := toAPIMessages(msgs)
	if err != nil {
		c.fail(w, "encode", err)
		return
	}
	writeJSON(w, http.StatusOK, apiv1.MessageList{Messages: out})
}
