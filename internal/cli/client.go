package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"cronbot/internal/task/model"
)

// client calls the HTTP API of a running cronbot.
type client struct {
	base string
	http *http.Client
}

func newClient(addr string) *client {
	base := strings.TrimRight(strings.TrimSpace(addr), "/")
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}
	// Run waits for the executor, so keep the timeout generous.
	return &client{base: base, http: &http.Client{Timeout: 5 * time.Minute}}
}

type messageResponse struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

func (c *client) do(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rd)
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

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode >= 300 {
		var m messageResponse
		if json.Unmarshal(data, &m) == nil && m.Error != "" {
			return fmt.Errorf("%s %s: %s", method, path, m.Error)
		}
		return fmt.Errorf("%s %s: %s", method, path, resp.Status)
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(data, out)
}

func (c *client) message(ctx context.Context, method, path string, body any) (string, error) {
	var m messageResponse
	if err := c.do(ctx, method, path, body, &m); err != nil {
		return "", err
	}
	return m.Message, nil
}

func (c *client) jobs(ctx context.Context) ([]model.CronJob, error) {
	var jobs []model.CronJob
	err := c.do(ctx, http.MethodGet, "/jobs?format=json", nil, &jobs)
	return jobs, err
}

func (c *client) status(ctx context.Context) (map[string]any, error) {
	out := map[string]any{}
	err := c.do(ctx, http.MethodGet, "/status", nil, &out)
	return out, err
}
