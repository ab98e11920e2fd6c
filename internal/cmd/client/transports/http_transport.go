package transports

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	apiv1 "github.com/rzbill/shardq/api/v1"
)

// APIError is a non-2xx response from the server.
type APIError struct {
	Status int
	Code   string
	Msg    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("http %d (%s): %s", e.Status, e.Code, e.Msg)
	}
	return fmt.Sprintf("http %d: %s", e.Status, e.Msg)
}

// HTTPTransport implements QueueTransport over the JSON API.
type HTTPTransport struct {
	baseURL string
	token   string
	client  *http.Client
}

var _ QueueTransport = (*HTTPTransport)(nil)

// NewHTTPTransport targets baseURL. A non-empty token is sent as a bearer
// credential.
func NewHTTPTransport(baseURL, token string) *HTTPTransport {
	return &HTTPTransport{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  &http.Client{Timeout: 60 * time.Second},
	}
}

func (t *HTTPTransport) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, t.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if t.token != "" {
		req.Header.Set("Authorization", "Bearer "+t.token)
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		var e apiv1.Error
		raw, _ := io.ReadAll(resp.Body)
		if json.Unmarshal(raw, &e) != nil || e.Error == "" {
			e.Error = strings.TrimSpace(string(raw))
		}
		return &APIError{Status: resp.StatusCode, Code: e.Code, Msg: e.Error}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func listQuery(queue string, limit int) string {
	v := url.Values{}
	if queue != "" {
		v.Set("queue", queue)
	}
	if limit > 0 {
		v.Set("limit", strconv.Itoa(limit))
	}
	if len(v) == 0 {
		return ""
	}
	return "?" + v.Encode()
}

func (t *HTTPTransport) Health(ctx context.Context) error {
	return t.do(ctx, http.MethodGet, "/v1/healthz", nil, nil)
}

func (t *HTTPTransport) CreateQueue(ctx context.Context, req apiv1.CreateQueueRequest) (apiv1.QueueInfo, error) {
	var out apiv1.QueueInfo
	err := t.do(ctx, http.MethodPost, "/v1/queue", req, &out)
	return out, err
}

func (t *HTTPTransport) QueueInfo(ctx context.Context, queue string) (apiv1.QueueInfo, error) {
	var out apiv1.QueueInfo
	err := t.do(ctx, http.MethodGet, "/v1/queue"+listQuery(queue, 0), nil, &out)
	return out, err
}

func (t *HTTPTransport) Enqueue(ctx context.Context, req apiv1.EnqueueRequest) (apiv1.EnqueueResponse, error) {
	var out apiv1.EnqueueResponse
	err := t.do(ctx, http.MethodPost, "/v1/messages", req, &out)
	return out, err
}

func (t *HTTPTransport) Read(ctx context.Context, req apiv1.ReadRequest) ([]apiv1.Message, error) {
	var out apiv1.MessageList
	err := t.do(ctx, http.MethodPost, "/v1/messages/read", req, &out)
	return out.Messages, err
}

func (t *HTTPTransport) Peek(ctx context.Context, queue string, limit int) ([]apiv1.Message, error) {
	var out apiv1.MessageList
	err := t.do(ctx, http.MethodGet, "/v1/messages/peek"+listQuery(queue, limit), nil, &out)
	return out.Messages, err
}

func (t *HTTPTransport) Ack(ctx context.Context, req apiv1.AckRequest) error {
	return t.do(ctx, http.MethodPost, "/v1/messages/ack", req, nil)
}

func (t *HTTPTransport) Poison(ctx context.Context, req apiv1.AckRequest) error {
	return t.do(ctx, http.MethodPost, "/v1/messages/poison", req, nil)
}

func (t *HTTPTransport) ListPoison(ctx context.Context, queue string, limit int) ([]apiv1.Message, error) {
	var out apiv1.MessageList
	err := t.do(ctx, http.MethodGet, "/v1/poison"+listQuery(queue, limit), nil, &out)
	return out.Messages, err
}

func (t *HTTPTransport) Delete(ctx context.Context, queue, id string) error {
	return t.do(ctx, http.MethodDelete, "/v1/messages/"+url.PathEscape(id)+listQuery(queue, 0), nil, nil)
}
