// Package chatclient consumes the server's streaming reply protocol:
// line-delimited `data:` frames carrying one character each, terminated
// by `data: [DONE]`.
package chatclient

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

// Client submits chat turns and consumes the resulting frame stream. It
// owns a single-slot cancellation handle: each new submission atomically
// replaces, and cancels, any in-flight one, so cancellation state is
// never ambient or shared across requests.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client

	mu         sync.Mutex
	cancelSlot *cancelHandle
}

type cancelHandle struct {
	cancel context.CancelFunc
}

func New(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		// No overall timeout: streams are long-lived by design.
		httpClient: &http.Client{},
	}
}

type submitRequest struct {
	SessionID string `json:"sessionId"`
	Message   string `json:"message"`
}

type contentFrame struct {
	Content string `json:"content"`
}

type errorEnvelope struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Submit posts one turn and drains the reply stream, invoking onContent
// (optional) per received fragment. It returns the accumulated text. A
// Stop call or a replacing submission ends the stream cleanly: the text
// received so far comes back with a nil error.
func (c *Client) Submit(ctx context.Context, sessionID, message string, onContent func(string)) (string, error) {
	reqCtx, handle := c.replaceActive(ctx)
	defer c.releaseActive(handle)

	body, err := json.Marshal(submitRequest{SessionID: sessionID, Message: message})
	if err != nil {
		return "", fmt.Errorf("marshal submit request failed: %w", err)
	}

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.baseURL+"/api/v1/chat/messages", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build submit request failed: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if reqCtx.Err() != nil {
			return "", nil
		}
		return "", fmt.Errorf("submit request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		var envelope errorEnvelope
		if json.Unmarshal(raw, &envelope) == nil && envelope.Message != "" {
			return "", fmt.Errorf("submit rejected: status %d code %d: %s", resp.StatusCode, envelope.Code, envelope.Message)
		}
		return "", fmt.Errorf("submit rejected: status %d: %s", resp.StatusCode, string(raw))
	}

	return c.consume(reqCtx, resp.Body, onContent)
}

// Stop cancels the in-flight submission, if any. The interrupted Submit
// returns cleanly with the content received so far.
func (c *Client) Stop() {
	c.mu.Lock()
	handle := c.cancelSlot
	c.cancelSlot = nil
	c.mu.Unlock()
	if handle != nil {
		handle.cancel()
	}
}

// consume splits the stream on blank-line boundaries, parses each
// `data:` payload as JSON, and ignores anything else without failing
// the stream. It stops at `[DONE]` or stream end.
func (c *Client) consume(ctx context.Context, body io.Reader, onContent func(string)) (string, error) {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 4*1024), 1024*1024)

	var full strings.Builder
	var pending []string

	flush := func() bool {
		for _, payload := range pending {
			if payload == "[DONE]" {
				return true
			}
			var frame contentFrame
			if err := json.Unmarshal([]byte(payload), &frame); err != nil {
				continue
			}
			if frame.Content == "" {
				continue
			}
			full.WriteString(frame.Content)
			if onContent != nil {
				onContent(frame.Content)
			}
		}
		pending = pending[:0]
		return false
	}

	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			if flush() {
				return full.String(), nil
			}
			continue
		}
		if strings.HasPrefix(line, "data:") {
			pending = append(pending, strings.TrimSpace(strings.TrimPrefix(line, "data:")))
		}
	}
	if flush() {
		return full.String(), nil
	}

	if err := scanner.Err(); err != nil {
		// A user-initiated stop is a clean end, not an error.
		if ctx.Err() != nil {
			return full.String(), nil
		}
		return full.String(), fmt.Errorf("read stream failed: %w", err)
	}
	return full.String(), nil
}

func (c *Client) replaceActive(ctx context.Context) (context.Context, *cancelHandle) {
	reqCtx, cancel := context.WithCancel(ctx)
	handle := &cancelHandle{cancel: cancel}
	c.mu.Lock()
	previous := c.cancelSlot
	c.cancelSlot = handle
	c.mu.Unlock()
	if previous != nil {
		previous.cancel()
	}
	return reqCtx, handle
}

func (c *Client) releaseActive(handle *cancelHandle) {
	c.mu.Lock()
	// Another submission may already own the slot.
	if c.cancelSlot == handle {
		c.cancelSlot = nil
	}
	c.mu.Unlock()
	handle.cancel()
}

// WithTimeout configures a per-request timeout, mainly for tests.
func (c *Client) WithTimeout(d time.Duration) *Client {
	c.httpClient.Timeout = d
	return c
}
