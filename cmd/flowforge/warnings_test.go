package main

import (
	"bytes"
	"log"
	"strings"
	"testing"

	"github.com/sandeepvarmac/FlowForge-sub003/internal/config"
)

// captureLogOutput calls logConfigWarnings with the given config and returns
// the captured log output as a string.
func captureLogOutput(cfg *config.Config) string {
	var buf bytes.Buffer
	original := log.Writer()
	log.SetOutput(&buf)
	defer log.SetOutput(original)

	logConfigWarnings(cfg)
	return buf.String()
}

func productionConfig() *config.Config {
	return &config.Config{
		StoreMode:               config.StoreModePostgres,
		ReconcileEnabled:        true,
		MetricsEnabled:          true,
		LeaderElectionEnabled:   true,
		CircuitBreakerThreshold: 5,
		DeploySyncURL:           "https://deploy.example.com",
	}
}

func TestLogConfigWarnings_ProductionIsQuiet(t *testing.T) {
	if output := captureLogOutput(productionConfig()); output != "" {
		t.Errorf("expected no warnings, got:\n%s", output)
	}
}

func TestLogConfigWarnings(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
		want   string
		absent string
	}{
		{
			name:   "memory store",
			mutate: func(c *config.Config) { c.StoreMode = config.StoreModeMemory; c.LeaderElectionEnabled = false },
			want:   "WARNING [P0]: STORE_MODE=memory",
			absent: "LEADER_ELECTION_ENABLED",
		},
		{
			name:   "no reconciler",
			mutate: func(c *config.Config) { c.ReconcileEnabled = false },
			want:   "WARNING [P0]: RECONCILE_ENABLED=false",
		},
		{
			name:   "breaker disabled",
			mutate: func(c *config.Config) { c.CircuitBreakerThreshold = 0 },
			want:   "WARNING [P1]: CIRCUIT_BREAKER_THRESHOLD=0",
		},
		{
			name:   "metrics disabled",
			mutate: func(c *config.Config) { c.MetricsEnabled = false },
			want:   "WARNING [P1]: METRICS_ENABLED=false",
			absent: "[P0]",
		},
		{
			name:   "postgres without election",
			mutate: func(c *config.Config) { c.LeaderElectionEnabled = false },
			want:   "INFO: LEADER_ELECTION_ENABLED=false",
			absent: "WARNING",
		},
		{
			name:   "no deploy sync",
			mutate: func(c *config.Config) { c.DeploySyncURL = "" },
			want:   "INFO: DEPLOY_SYNC_URL not set",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := productionConfig()
			tt.mutate(cfg)
			output := captureLogOutput(cfg)
			if !strings.Contains(output, tt.want) {
				t.Errorf("expected %q, got:\n%s", tt.want, output)
			}
			if tt.absent != "" && strings.Contains(output, tt.absent) {
				t.Errorf("did not expect %q, got:\n%s", tt.absent, output)
			}
		})
	}
}
