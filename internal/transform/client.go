// Package transform is the HTTP client for the external transformation
// executor that materializes bronze, silver and gold outputs.
package transform

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sandeepvarmac/FlowForge-sub003/internal/domain"
	"github.com/sandeepvarmac/FlowForge-sub003/internal/quality"
	"github.com/sandeepvarmac/FlowForge-sub003/internal/stage"
)

const (
	HeaderSignature = "X-FlowForge-Signature"
	HeaderJobID     = "X-FlowForge-Job-ID"
	HeaderStage     = "X-FlowForge-Stage"
	HeaderTimestamp = "X-FlowForge-Timestamp"

	// DefaultBatchSize is the number of records OpenOutput returns per Next.
	DefaultBatchSize = 500

	breakerKey = "transform"
)

var _ stage.Runner = (*Client)(nil)

// Breaker guards calls to the executor.
type Breaker interface {
	Allow(key string) error
	RecordSuccess(key string)
	RecordFailure(key string)
}

// MetricsSink records executor requests. op is "run" or "output";
// statusCode is 0 when err is set.
type MetricsSink interface {
	TransformRequestCompleted(op string, statusCode int, err error, duration time.Duration)
}

type Client struct {
	baseURL   string
	secret    string
	client    *http.Client
	breaker   Breaker     // optional, nil = disabled
	metrics   MetricsSink // optional, nil = disabled
	batchSize int
	now       func() time.Time
}

// New returns a client for baseURL. Per-call deadlines come from the
// caller's context; the stage executor applies its own timeout.
func New(baseURL, secret string) *Client {
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		secret:    secret,
		client:    &http.Client{},
		batchSize: DefaultBatchSize,
		now:       time.Now,
	}
}

func (c *Client) WithBreaker(b Breaker) *Client {
	c.breaker = b
	return c
}

func (c *Client) WithMetrics(sink MetricsSink) *Client {
	c.metrics = sink
	return c
}

func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.client = hc
	return c
}

func (c *Client) WithBatchSize(n int) *Client {
	if n > 0 {
		c.batchSize = n
	}
	return c
}

type runRequest struct {
	JobID          string           `json:"job_id"`
	JobType        domain.JobType   `json:"job_type"`
	JobExecutionID string           `json:"job_execution_id"`
	Stage          domain.Stage     `json:"stage"`
	InputRef       string           `json:"input_ref,omitempty"`
	Config         domain.JobConfig `json:"config"`
}

type runResponse struct {
	OutputRef   string `json:"output_ref"`
	RecordCount int64  `json:"record_count"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// RunStage posts the stage request and returns where the output landed.
// A 400 or 422 answer means the executor rejected the job configuration
// and is returned as a ConfigurationError.
func (c *Client) RunStage(ctx context.Context, req stage.Request) (stage.Output, error) {
	body, err := json.Marshal(runRequest{
		JobID:          req.Job.ID,
		JobType:        req.Job.Type,
		JobExecutionID: req.JobExecutionID,
		Stage:          req.Stage,
		InputRef:       req.InputRef,
		Config:         req.Job.Config,
	})
	if err != nil {
		return stage.Output{}, fmt.Errorf("marshal: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/stages/run", bytes.NewReader(body))
	if err != nil {
		return stage.Output{}, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set(HeaderJobID, req.Job.ID)
	httpReq.Header.Set(HeaderStage, string(req.Stage))
	httpReq.Header.Set(HeaderTimestamp, strconv.FormatInt(c.now().Unix(), 10))
	httpReq.Header.Set(HeaderSignature, "sha256="+computeSignature(c.secret, body))

	resp, err := c.do(httpReq)
	if err != nil {
		return stage.Output{}, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnprocessableEntity:
		return stage.Output{}, &domain.ConfigurationError{Field: "config", Reason: readError(resp.Body)}
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return stage.Output{}, fmt.Errorf("executor returned %d: %s", resp.StatusCode, readError(resp.Body))
	}

	var out runResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return stage.Output{}, fmt.Errorf("decode response: %w", err)
	}
	if out.OutputRef == "" {
		return stage.Output{}, errors.New("executor response missing output_ref")
	}
	return stage.Output{Ref: out.OutputRef, Records: out.RecordCount}, nil
}

// OpenOutput streams the NDJSON records stored under ref. The returned
// reader must be closed.
func (c *Client) OpenOutput(ctx context.Context, ref string) (quality.BatchReader, error) {
	u := c.baseURL + "/outputs/" + url.PathEscape(ref) + "/records"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/x-ndjson")
	httpReq.Header.Set(HeaderTimestamp, strconv.FormatInt(c.now().Unix(), 10))
	httpReq.Header.Set(HeaderSignature, "sha256="+computeSignature(c.secret, []byte(ref)))

	resp, err := c.do(httpReq)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, fmt.Errorf("open output %s: executor returned %d: %s", ref, resp.StatusCode, readError(resp.Body))
	}
	return newNDJSONReader(resp.Body, c.batchSize), nil
}

// do sends req through the breaker. 5xx answers and transport errors count
// as failures; any other answer proves the executor is up.
func (c *Client) do(req *http.Request) (*http.Response, error) {
	if c.breaker != nil {
		if err := c.breaker.Allow(breakerKey); err != nil {
			return nil, fmt.Errorf("transform executor: %w", err)
		}
	}
	start := time.Now()
	resp, err := c.client.Do(req)
	if c.metrics != nil {
		op := "output"
		if req.Method == http.MethodPost {
			op = "run"
		}
		code := 0
		if resp != nil {
			code = resp.StatusCode
		}
		c.metrics.TransformRequestCompleted(op, code, err, time.Since(start))
	}
	if err != nil {
		c.recordFailure()
		return nil, fmt.Errorf("send: %w", err)
	}
	if resp.StatusCode >= 500 {
		c.recordFailure()
	} else if c.breaker != nil {
		c.breaker.RecordSuccess(breakerKey)
	}
	return resp, nil
}

func (c *Client) recordFailure() {
	if c.breaker != nil {
		c.breaker.RecordFailure(breakerKey)
	}
}

func readError(r io.Reader) string {
	data, _ := io.ReadAll(io.LimitReader(r, 4096))
	var er errorResponse
	if json.Unmarshal(data, &er) == nil && er.Error != "" {
		return er.Error
	}
	return strings.TrimSpace(string(data))
}

func computeSignature(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks an X-FlowForge-Signature header value against
// body. Executors use it to authenticate requests.
func VerifySignature(secret string, body []byte, header string) bool {
	sig, ok := strings.CutPrefix(header, "sha256=")
	if !ok {
		return false
	}
	return hmac.Equal([]byte(computeSignature(secret, body)), []byte(sig))
}
