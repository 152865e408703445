package metrics

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/sandeepvarmac/FlowForge-sub003/internal/dispatcher"
	"github.com/sandeepvarmac/FlowForge-sub003/internal/engine"
	"github.com/sandeepvarmac/FlowForge-sub003/internal/leaderelection"
	"github.com/sandeepvarmac/FlowForge-sub003/internal/quality"
	"github.com/sandeepvarmac/FlowForge-sub003/internal/reconciler"
	"github.com/sandeepvarmac/FlowForge-sub003/internal/scheduler"
	"github.com/sandeepvarmac/FlowForge-sub003/internal/stage"
	"github.com/sandeepvarmac/FlowForge-sub003/internal/transform"
	"github.com/sandeepvarmac/FlowForge-sub003/internal/transport/channel"
)

// Both sinks must satisfy every consumer-side interface they are wired to.
var (
	_ scheduler.MetricsSink      = Sink(nil)
	_ dispatcher.MetricsSink     = Sink(nil)
	_ channel.MetricsSink        = Sink(nil)
	_ engine.MetricsSink         = Sink(nil)
	_ stage.MetricsSink          = Sink(nil)
	_ quality.MetricsSink        = Sink(nil)
	_ transform.MetricsSink      = Sink(nil)
	_ reconciler.MetricsSink     = Sink(nil)
	_ leaderelection.MetricsSink = Sink(nil)

	_ Sink = (*NoopSink)(nil)
	_ Sink = (*PrometheusSink)(nil)
)

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		err        error
		want       string
	}{
		{"200 OK", 200, nil, StatusClass2xx},
		{"204 No Content", 204, nil, StatusClass2xx},
		{"299 boundary", 299, nil, StatusClass2xx},
		{"404 Not Found", 404, nil, StatusClass4xx},
		{"422 Unprocessable", 422, nil, StatusClass4xx},
		{"500 Internal Server Error", 500, nil, StatusClass5xx},
		{"503 Service Unavailable", 503, nil, StatusClass5xx},
		{"302 redirect", 302, nil, StatusClassOtherError},

		{"context deadline", 0, context.DeadlineExceeded, StatusClassTimeout},
		{"wrapped deadline", 0, fmt.Errorf("send: %w", context.DeadlineExceeded), StatusClassTimeout},
		{"Timeout uppercase", 0, errors.New("Timeout exceeded"), StatusClassTimeout},
		{"connection refused", 0, errors.New("connection refused"), StatusClassConnectionError},
		{"no such host", 0, errors.New("lookup executor: no such host"), StatusClassConnectionError},
		{"dial error", 0, errors.New("dial tcp 127.0.0.1:80: connect: refused"), StatusClassConnectionError},
		{"generic error", 0, errors.New("unknown error"), StatusClassOtherError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClassifyStatus(tt.statusCode, tt.err)
			if got != tt.want {
				t.Errorf("ClassifyStatus(%d, %v) = %q, want %q", tt.statusCode, tt.err, got, tt.want)
			}
		})
	}
}
