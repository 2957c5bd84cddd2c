package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"syscall"
	"time"

	"clipforge/internal/queue"
	"clipforge/internal/stage"
	"clipforge/internal/workflow"
)

// apiClient talks to a running worker's HTTP API.
type apiClient struct {
	base  string
	token string
	http  *http.Client
}

func newAPIClient(addr, token string) *apiClient {
	addr = strings.TrimSpace(addr)
	if !strings.HasPrefix(addr, "http://") && !strings.HasPrefix(addr, "https://") {
		if strings.HasPrefix(addr, ":") {
			addr = "127.0.0.1" + addr
		}
		addr = "http://" + addr
	}
	return &apiClient{
		base:  strings.TrimRight(addr, "/"),
		token: token,
		http:  &http.Client{Timeout: 15 * time.Second},
	}
}

type enqueueBody struct {
	ID      string        `json:"id,omitempty"`
	Kind    string        `json:"kind"`
	Payload queue.Payload `json:"payload"`
}

type statsBody struct {
	queue.Stats
	Workers []workflow.WorkerStats `json:"workers"`
}

type healthBody struct {
	Status        string         `json:"status"`
	QueueBackend  string         `json:"queue_backend"`
	QueueDegraded bool           `json:"queue_degraded"`
	Stages        []stage.Health `json:"stages"`
	EventClients  int            `json:"event_clients"`
}

type apiError struct {
	Status  int
	Message string `json:"error"`
	Field   string `json:"field"`
}

func (e *apiError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("worker api returned %d", e.Status)
	}
	return e.Message
}

func (c *apiClient) Enqueue(ctx context.Context, body enqueueBody) (*queue.Task, error) {
	var task queue.Task
	if err := c.do(ctx, http.MethodPost, "/tasks", body, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

func (c *apiClient) Status(ctx context.Context, id string) (queue.StatusResponse, error) {
	var resp queue.StatusResponse
	err := c.do(ctx, http.MethodGet, "/tasks/"+id, nil, &resp)
	return resp, err
}

func (c *apiClient) Stats(ctx context.Context) (statsBody, error) {
	var resp statsBody
	err := c.do(ctx, http.MethodGet, "/stats", nil, &resp)
	return resp, err
}

func (c *apiClient) Health(ctx context.Context) (healthBody, error) {
	var resp healthBody
	err := c.do(ctx, http.MethodGet, "/health", nil, &resp)
	return resp, err
}

func (c *apiClient) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		encoded, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(encoded)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return wrapDialError(err, c.base)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		apiErr := &apiError{Status: resp.StatusCode}
		_ = json.Unmarshal(data, apiErr)
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func wrapDialError(err error, base string) error {
	if errors.Is(err, syscall.ECONNREFUSED) {
		return fmt.Errorf("connect to worker: %s refused the connection; start one with `clipforge worker run`", base)
	}
	return fmt.Errorf("connect to worker: %w", err)
}
