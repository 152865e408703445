package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/sandeepvarmac/FlowForge-sub003/internal/domain"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}
	msg := fmt.Sprintf("%d validation errors:", len(e))
	for _, err := range e {
		msg += "\n  - " + err.Error()
	}
	return msg
}

// Validate checks the configuration for errors.
// Returns nil if valid, or ValidationErrors if invalid.
func Validate(cfg Config) error {
	var errs ValidationErrors
	add := func(field, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	switch cfg.StoreMode {
	case StoreModePostgres:
		if cfg.DatabaseURL == "" {
			add("DATABASE_URL", "required when STORE_MODE=postgres")
		}
	case StoreModeMemory:
		if cfg.LeaderElectionEnabled {
			add("LEADER_ELECTION_ENABLED", "requires STORE_MODE=postgres")
		}
	default:
		add("STORE_MODE", "must be 'postgres' or 'memory', got %q", cfg.StoreMode)
	}

	if cfg.TransformURL == "" {
		add("TRANSFORM_URL", "required")
	} else if !strings.HasPrefix(cfg.TransformURL, "http://") && !strings.HasPrefix(cfg.TransformURL, "https://") {
		add("TRANSFORM_URL", "must be an http(s) URL")
	}
	if cfg.DeploySyncURL != "" && !strings.HasPrefix(cfg.DeploySyncURL, "http://") && !strings.HasPrefix(cfg.DeploySyncURL, "https://") {
		add("DEPLOY_SYNC_URL", "must be an http(s) URL")
	}

	durationsOK := true
	for _, d := range cfg.durations() {
		if *d.raw == "" {
			continue
		}
		v, err := time.ParseDuration(*d.raw)
		if err != nil {
			add(d.env, "invalid duration: %v", err)
			durationsOK = false
			continue
		}
		if v <= 0 {
			add(d.env, "must be positive")
			durationsOK = false
		}
	}

	// A running job execution is only stuck once every stage attempt could
	// have timed out.
	if durationsOK && cfg.StuckThreshold > 0 && cfg.StageTimeout > 0 {
		attempts := cfg.StageMaxAttempts
		if attempts < 1 {
			attempts = 1
		}
		budget := time.Duration(attempts)*cfg.StageTimeout + time.Duration(attempts-1)*cfg.StageRetryBackoff
		if cfg.StuckThreshold <= budget {
			add("STUCK_THRESHOLD", "must exceed STAGE_TIMEOUT * STAGE_MAX_ATTEMPTS plus backoff (%s)", budget)
		}
	}

	if maxDelay := time.Duration(domain.MaxDelayMinutes) * time.Minute; durationsOK && cfg.ReplayWindow > 0 && cfg.ReplayWindow < maxDelay {
		add("RECONCILE_REPLAY_WINDOW", "must cover the longest dependency delay (%s)", maxDelay)
	}

	if cfg.MetricsEnabled && !strings.HasPrefix(cfg.MetricsPath, "/") {
		add("METRICS_PATH", "must start with '/', got %q", cfg.MetricsPath)
	}
	if cfg.LeaderElectionEnabled && strings.TrimSpace(cfg.LeaderLockKey) == "" {
		add("LEADER_LOCK_KEY", "required when leader election is enabled")
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}
