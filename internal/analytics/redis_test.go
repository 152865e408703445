package analytics

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sandeepvarmac/FlowForge-sub003/internal/domain"
	"github.com/sandeepvarmac/FlowForge-sub003/internal/engine"
	"github.com/sandeepvarmac/FlowForge-sub003/internal/testutil"
)

var _ engine.AnalyticsSink = (*RedisSink)(nil)

func TestTruncateToBucket(t *testing.T) {
	at := testutil.MustTime("2024-05-06T13:47:12Z")
	tests := []struct {
		window time.Duration
		want   string
	}{
		{time.Minute, "202405061347"},
		{5 * time.Minute, "202405061345"},
		{time.Hour, "2024050613"},
		{42 * time.Second, "202405061347"},
	}
	for _, tt := range tests {
		if got := truncateToBucket(at, tt.window); got != tt.want {
			t.Errorf("truncateToBucket(%s) = %q, want %q", tt.window, got, tt.want)
		}
	}
}

func TestKeys(t *testing.T) {
	at := testutil.MustTime("2024-05-06T13:47:12Z")
	if got := StageKey("wf-1", domain.StageSilver, at, time.Hour); got != "ff:wf:wf-1:records:silver:2024050613" {
		t.Errorf("StageKey = %q", got)
	}
	if got := ExecutionKey("wf-1", domain.ExecutionStatusFailed, at, time.Hour); got != "ff:wf:wf-1:executions:failed:2024050613" {
		t.Errorf("ExecutionKey = %q", got)
	}
}

func TestRedisSink_UnreachableServerIsSwallowed(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()

	sink := NewRedisSink(client).WithClock(func() time.Time { return testutil.MustTime("2024-05-06T13:47:12Z") })
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	// Neither call may panic or block past the dial timeout.
	sink.RecordStage(ctx, "wf-1", domain.StageBronze, 1000)
	sink.RecordExecution(ctx, "wf-1", domain.ExecutionStatusCompleted)

	if _, err := sink.StageRecords(ctx, "wf-1", domain.StageBronze, time.Now()); err == nil {
		t.Error("expected read error from unreachable server")
	}
}
