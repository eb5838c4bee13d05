package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ngenohkevin/procdeck/internal/logbuf"
	"github.com/ngenohkevin/procdeck/internal/process"
)

// Client talks to the agent HTTP API
type Client struct {
	base string
	http *http.Client
}

// APIError is a non-2xx response from the agent
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("agent returned %d", e.Status)
	}
	return fmt.Sprintf("agent returned %d: %s", e.Status, e.Message)
}

// NewClient creates a client for the agent at addr
func NewClient(addr string) *Client {
	if !strings.Contains(addr, "://") {
		addr = "http://" + addr
	}
	return &Client{
		base: strings.TrimRight(addr, "/"),
		http: &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach agent: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 300 {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.Unmarshal(data, &e)
		return &APIError{Status: resp.StatusCode, Message: e.Error}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func processPath(id string, suffix ...string) string {
	p := "/api/processes/" + url.PathEscape(id)
	for _, s := range suffix {
		p += "/" + s
	}
	return p
}

// List returns every process
func (c *Client) List(ctx context.Context) ([]process.Record, error) {
	var list []process.Record
	err := c.do(ctx, http.MethodGet, "/api/processes", nil, &list)
	return list, err
}

// Start creates and spawns a process
func (c *Client) Start(ctx context.Context, req process.StartRequest) (process.Record, error) {
	var p process.Record
	err := c.do(ctx, http.MethodPost, "/api/processes", req, &p)
	return p, err
}

// Stop stops a running process
func (c *Client) Stop(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPost, processPath(id, "stop"), nil, nil)
}

// Restart restarts a process and returns its new state
func (c *Client) Restart(ctx context.Context, id string) (process.Record, error) {
	var resp struct {
		Process process.Record `json:"process"`
	}
	err := c.do(ctx, http.MethodPost, processPath(id, "restart"), nil, &resp)
	return resp.Process, err
}

// Remove deletes a process
func (c *Client) Remove(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, processPath(id), nil, nil)
}

// Update replaces the definition of a process
func (c *Client) Update(ctx context.Context, id string, def process.StartRequest) (process.Record, error) {
	var p process.Record
	err := c.do(ctx, http.MethodPut, processPath(id), def, &p)
	return p, err
}

// Logs returns the buffered output of a process
func (c *Client) Logs(ctx context.Context, id string) ([]logbuf.Entry, error) {
	var entries []logbuf.Entry
	err := c.do(ctx, http.MethodGet, processPath(id, "logs"), nil, &entries)
	return entries, err
}

// Input writes data to a process terminal
func (c *Client) Input(ctx context.Context, id, data string) error {
	return c.do(ctx, http.MethodPost, processPath(id, "input"), map[string]string{"data": data}, nil)
}

// HookInput writes data to a running hook
func (c *Client) HookInput(ctx context.Context, hookKey, data string) error {
	path := "/api/hooks/" + url.PathEscape(hookKey) + "/input"
	return c.do(ctx, http.MethodPost, path, map[string]string{"data": data}, nil)
}

// Summary returns process counts per status
func (c *Client) Summary(ctx context.Context) (process.Summary, error) {
	var s process.Summary
	err := c.do(ctx, http.MethodGet, "/api/summary", nil, &s)
	return s, err
}

// Terminal opens the live terminal stream of a process
func (c *Client) Terminal(ctx context.Context, id string) (*websocket.Conn, error) {
	u := c.base + processPath(id, "terminal")
	u = "ws" + strings.TrimPrefix(u, "http")

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, u, nil)
	if err != nil {
		if resp != nil {
			return nil, &APIError{Status: resp.StatusCode, Message: err.Error()}
		}
		return nil, fmt.Errorf("failed to open terminal: %w", err)
	}
	return conn, nil
}
