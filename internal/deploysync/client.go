// Package deploysync mirrors trigger pause/resume to the deployment system
// that hosts scheduled runs.
package deploysync

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	DefaultTimeout = 10 * time.Second
	breakerKey     = "deploysync"
)

type Breaker interface {
	Allow(key string) error
	RecordSuccess(key string)
	RecordFailure(key string)
}

// Client calls POST {base}/schedules/{id}/pause and .../resume.
type Client struct {
	baseURL string
	client  *http.Client
	breaker Breaker // optional, nil = disabled
}

func New(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: DefaultTimeout},
	}
}

func (c *Client) WithBreaker(b Breaker) *Client {
	c.breaker = b
	return c
}

func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.client = hc
	return c
}

func (c *Client) Pause(ctx context.Context, triggerID string) error {
	return c.post(ctx, triggerID, "pause")
}

func (c *Client) Resume(ctx context.Context, triggerID string) error {
	return c.post(ctx, triggerID, "resume")
}

// A 404 means the deployment never knew the schedule and counts as done.
func (c *Client) post(ctx context.Context, triggerID, op string) error {
	if c.breaker != nil {
		if err := c.breaker.Allow(breakerKey); err != nil {
			return err
		}
	}
	u := fmt.Sprintf("%s/schedules/%s/%s", c.baseURL, url.PathEscape(triggerID), op)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.fail()
		return fmt.Errorf("send: %w", err)
	}
	resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300, resp.StatusCode == http.StatusNotFound:
		if c.breaker != nil {
			c.breaker.RecordSuccess(breakerKey)
		}
		return nil
	case resp.StatusCode >= 500:
		c.fail()
	}
	return fmt.Errorf("%s schedule %s: status %d", op, triggerID, resp.StatusCode)
}

func (c *Client) fail() {
	if c.breaker != nil {
		c.breaker.RecordFailure(breakerKey)
	}
}

// Noop is used when no deployment system is configured.
type Noop struct{}

func (Noop) Pause(ctx context.Context, triggerID string) error  { return nil }
func (Noop) Resume(ctx context.Context, triggerID string) error { return nil }
