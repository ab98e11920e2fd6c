package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	apiv1 "github.com/rzbill/shardq/api/v1"
	"github.com/rzbill/shardq/internal/entry"
	"github.com/rzbill/shardq/internal/queue"
	"github.com/rzbill/shardq/internal/storage"
	"github.com/rzbill/shardq/internal/trigger"
)

// maxBatch caps read, peek and poison listing sizes.
const maxBatch = 1000

// writeError writes an error response with the given status code and message.
func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(apiv1.Error{Error: message, Code: code})
}

// writeJSON writes a JSON response with the given data.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeNoContent writes a 204 No Content response.
func writeNoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// statusFor maps queue errors onto HTTP status and error code.
func statusFor(err error) (int, string) {
	var fe *entry.FormatError
	switch {
	case errors.Is(err, queue.ErrBusyLock):
		return http.StatusConflict, apiv1.CodeBusy
	case errors.Is(err, queue.ErrQueueNotFound), errors.Is(err, queue.ErrMessageNotFound):
		return http.StatusNotFound, apiv1.CodeNotFound
	case errors.Is(err, queue.ErrQueueExists):
		return http.StatusConflict, apiv1.CodeExists
	case errors.As(err, &fe),
		errors.Is(err, queue.ErrInvalidShard),
		errors.Is(err, queue.ErrInvalidMetadata),
		errors.Is(err, storage.ErrInvalidRow),
		errors.Is(err, errInvalidRequest):
		return http.StatusBadRequest, apiv1.CodeInvalid
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled), errors.Is(err, storage.ErrClosed):
		return http.StatusServiceUnavailable, apiv1.CodeUnavailable
	}
	return http.StatusInternalServerError, apiv1.CodeInternal
}

var errInvalidRequest = errors.New("invalid request")

// decodeBody decodes a JSON request body into v.
func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errors.Join(errInvalidRequest, err)
	}
	return nil
}

// parseLimit parses a limit string and returns a valid limit value.
//
// Returns def for empty strings or invalid values and caps at maxBatch.
func parseLimit(limitStr string, def int) int {
	limit, err := strconv.Atoi(limitStr)
	if err != nil || limit <= 0 {
		return def
	}
	if limit > maxBatch {
		return maxBatch
	}
	return limit
}

func unixMs(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromUnixMs(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

// toAPIMessage converts a stored message to its wire form.
func toAPIMessage(m *queue.Message) (apiv1.Message, error) {
	out := apiv1.Message{
		ID:           m.ID,
		Shard:        m.Shard,
		Body:         m.Body,
		Priority:     m.Priority,
		Attempts:     m.Attempts,
		Key:          m.Key,
		Headers:      m.Headers,
		EnqueuedAtMs: unixMs(m.EnqueuedAt),
		DueAtMs:      unixMs(m.DueTime()),
	}
	if m.Trigger != nil {
		b, err := trigger.Marshal(m.Trigger)
		if err != nil {
			return apiv1.Message{}, err
		}
		out.Trigger = b
	}
	return out, nil
}

func toAPIMessages(msgs []*queue.Message) ([]apiv1.Message, error) {
	out := make([]apiv1.Message, 0, len(msgs))
	for _, m := range msgs {
		am, err := toAPIMessage(m)
		if err != nil {
			return nil, err
		}
		out = append(out, am)
	}
	return out, nil
}

// buildTrigger turns a wire trigger into a schedule anchored at now.
func buildTrigger(now time.Time, t *apiv1.Trigger) (trigger.Trigger, error) {
	if t == nil {
		return nil, nil
	}
	delay := time.Duration(t.DelayMs) * time.Millisecond
	switch trigger.Kind(t.Kind) {
	case "", trigger.KindOneShot:
		return trigger.NewOneShot(now, delay), nil
	case trigger.KindRepeating:
		r, err := trigger.NewRepeating(now, trigger.RepeatingConfig{
			Delay:       delay,
			Interval:    time.Duration(t.IntervalMs) * time.Millisecond,
			RepeatCount: t.RepeatCount,
			EndTime:     fromUnixMs(t.EndTimeMs),
		})
		if err != nil {
			return nil, errors.Join(errInvalidRequest, err)
		}
		return r, nil
	case trigger.KindCron:
		c, err := trigger.NewCron(now, trigger.CronConfig{
			Expr:        t.Expr,
			RepeatCount: t.RepeatCount,
			EndTime:     fromUnixMs(t.EndTimeMs),
		})
		if err != nil {
			return nil, errors.Join(errInvalidRequest, err)
		}
		return c, nil
	}
	return nil, errors.Join(errInvalidRequest, errors.New("unknown trigger kind "+strconv.Quote(t.Kind)))
}
