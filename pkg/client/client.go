package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pyorchestrator/pyorchestrator/api/rest/service/manifest"
	"github.com/pyorchestrator/pyorchestrator/internal/models"
)

// Client talks to a pyorchestrator server's REST API.
type Client struct {
	server string
	http   *http.Client
}

func New(server string) *Client {
	return &Client{
		server: strings.TrimSuffix(strings.TrimSpace(server), "/"),
		http:   &http.Client{Timeout: 5 * time.Minute},
	}
}

// Error is a non-2xx response.
type Error struct {
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Message)
}

// Apply posts manifest documents to the server.
func (c *Client) Apply(ctx context.Context, req *manifest.ApplyRequest) (*manifest.ApplyResponse, error) {
	resp := &manifest.ApplyResponse{}
	if err := c.do(ctx, http.MethodPost, "/v1/manifests/apply", req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// TriggerProject queues a run of the project now.
func (c *Client) TriggerProject(ctx context.Context, id uuid.UUID) (*models.Run, error) {
	run := &models.Run{}
	if err := c.do(ctx, http.MethodPost, "/v1/projects/"+id.String()+"/run", nil, run); err != nil {
		return nil, err
	}
	return run, nil
}

// TriggerSchedule queues a run of the schedule now.
func (c *Client) TriggerSchedule(ctx context.Context, id uuid.UUID) (*models.Run, error) {
	run := &models.Run{}
	if err := c.do(ctx, http.MethodPost, "/v1/schedules/"+id.String()+"/run", nil, run); err != nil {
		return nil, err
	}
	return run, nil
}

func (c *Client) Run(ctx context.Context, id uuid.UUID) (*models.Run, error) {
	run := &models.Run{}
	if err := c.do(ctx, http.MethodGet, "/v1/runs/"+id.String(), nil, run); err != nil {
		return nil, err
	}
	return run, nil
}

// Wait polls the run until it is terminal or ctx is done.
func (c *Client) Wait(ctx context.Context, id uuid.UUID, interval time.Duration) (*models.Run, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		run, err := c.Run(ctx, id)
		if err != nil {
			return nil, err
		}
		if run.Status.Terminal() {
			return run, nil
		}

		select {
		case <-ctx.Done():
			return run, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.server+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	buf, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return &Error{StatusCode: resp.StatusCode, Message: message(buf)}
	}

	if out == nil || len(buf) == 0 {
		return nil
	}
	return json.Unmarshal(buf, out)
}

// message extracts echo's {"message": ...} or {"error": ...} body.
func message(buf []byte) string {
	var body struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(buf, &body); err == nil {
		if body.Error != "" {
			return body.Error
		}
		if body.Message != "" {
			return body.Message
		}
	}
	return strings.TrimSpace(string(buf))
}
