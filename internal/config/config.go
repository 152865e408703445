package config

import (
	"encoding/json"
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	StoreModePostgres = "postgres"
	StoreModeMemory   = "memory"
)

// Config holds all configuration for the flowforge server.
// Values are loaded from environment variables; see printUsage() in
// cmd/flowforge for the full list. Durations are kept as the raw string
// (for Validate and MaskedJSON) next to the parsed value.
type Config struct {
	StoreMode   string `json:"store_mode"`
	DatabaseURL string `json:"database_url"`
	RedisAddr   string `json:"redis_addr,omitempty"`
	HTTPAddr    string `json:"http_addr"`

	DBOpTimeout          time.Duration `json:"-"`
	DBOpTimeoutStr       string        `json:"db_op_timeout"`
	DBMaxOpenConns       int           `json:"db_max_open_conns"`
	DBMaxIdleConns       int           `json:"db_max_idle_conns"`
	DBConnMaxLifetime    time.Duration `json:"-"`
	DBConnMaxLifetimeStr string        `json:"db_conn_max_lifetime"`

	HTTPShutdownTimeout    time.Duration `json:"-"`
	HTTPShutdownTimeoutStr string        `json:"http_shutdown_timeout"`

	TickInterval              time.Duration `json:"-"`
	TickIntervalStr           string        `json:"tick_interval"`
	EventBusBufferSize        int           `json:"eventbus_buffer_size"`
	DispatcherWorkers         int           `json:"dispatcher_workers"`
	DispatcherDrainTimeout    time.Duration `json:"-"`
	DispatcherDrainTimeoutStr string        `json:"dispatcher_drain_timeout"`

	StageTimeout         time.Duration `json:"-"`
	StageTimeoutStr      string        `json:"stage_timeout"`
	StageMaxAttempts     int           `json:"stage_max_attempts"`
	StageRetryBackoff    time.Duration `json:"-"`
	StageRetryBackoffStr string        `json:"stage_retry_backoff"`
	MaxParallelJobs      int           `json:"max_parallel_jobs"`
	QualitySampleSize    int           `json:"quality_sample_size"`
	QuarantineBatchSize  int           `json:"quarantine_batch_size"`

	// TransformURL is required: without an executor no stage can run.
	TransformURL    string `json:"transform_url"`
	TransformSecret string `json:"transform_secret"`
	// DeploySyncURL is optional; empty disables deployment sync.
	DeploySyncURL string `json:"deploy_sync_url,omitempty"`

	// CircuitBreakerThreshold: 0 disables the circuit breaker.
	CircuitBreakerThreshold   int           `json:"circuit_breaker_threshold"`
	CircuitBreakerCooldown    time.Duration `json:"-"`
	CircuitBreakerCooldownStr string        `json:"circuit_breaker_cooldown"`

	ReconcileEnabled      bool          `json:"reconcile_enabled"`
	ReconcileInterval     time.Duration `json:"-"`
	ReconcileIntervalStr  string        `json:"reconcile_interval"`
	ReconcileThreshold    time.Duration `json:"-"`
	ReconcileThresholdStr string        `json:"reconcile_threshold"`
	ReconcileBatchSize    int           `json:"reconcile_batch_size"`

	// ReplayWindow bounds the completion replay pass. It must cover the
	// longest dependency delay.
	ReplayWindow    time.Duration `json:"-"`
	ReplayWindowStr string        `json:"reconcile_replay_window"`

	// StuckThreshold must exceed STAGE_TIMEOUT * STAGE_MAX_ATTEMPTS plus
	// backoff, or live stages get failed under the engine.
	StuckThreshold    time.Duration `json:"-"`
	StuckThresholdStr string        `json:"stuck_threshold"`

	MetricsEnabled bool   `json:"metrics_enabled"`
	MetricsPath    string `json:"metrics_path"`

	// LeaderElectionEnabled only applies in postgres store mode.
	LeaderElectionEnabled bool `json:"leader_election_enabled"`

	// LeaderLockKey is a numeric advisory lock key or a name hashed into
	// one. All instances sharing a database must use the same value.
	LeaderLockKey string `json:"leader_lock_key"`

	// LeaderRetryInterval bounds the failover gap.
	LeaderRetryInterval    time.Duration `json:"-"`
	LeaderRetryIntervalStr string        `json:"leader_retry_interval"`

	// LeaderHeartbeatInterval pings the lock connection. It does not renew
	// the advisory lock, which lives as long as the session.
	LeaderHeartbeatInterval    time.Duration `json:"-"`
	LeaderHeartbeatIntervalStr string        `json:"leader_heartbeat_interval"`
}

// Load reads configuration from environment variables with defaults.
// Malformed numbers fall back to the default with a log line; malformed
// durations are left for Validate to report.
func Load() Config {
	cfg := Config{
		StoreMode:       envOr("STORE_MODE", StoreModePostgres),
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		RedisAddr:       os.Getenv("REDIS_ADDR"),
		HTTPAddr:        os.Getenv("HTTP_ADDR"),
		TransformURL:    strings.TrimRight(os.Getenv("TRANSFORM_URL"), "/"),
		TransformSecret: os.Getenv("TRANSFORM_SECRET"),
		DeploySyncURL:   strings.TrimRight(os.Getenv("DEPLOY_SYNC_URL"), "/"),
		MetricsEnabled:  os.Getenv("METRICS_ENABLED") == "true",
		MetricsPath:     envOr("METRICS_PATH", "/metrics"),
		LeaderLockKey:   envOr("LEADER_LOCK_KEY", "flowforge-scheduler"),

		ReconcileEnabled:      os.Getenv("RECONCILE_ENABLED") != "false",
		LeaderElectionEnabled: os.Getenv("LEADER_ELECTION_ENABLED") == "true",

		DBOpTimeoutStr:             envOr("DB_OP_TIMEOUT", "5s"),
		DBConnMaxLifetimeStr:       envOr("DB_CONN_MAX_LIFETIME", "30m"),
		HTTPShutdownTimeoutStr:     envOr("HTTP_SHUTDOWN_TIMEOUT", "10s"),
		TickIntervalStr:            envOr("TICK_INTERVAL", "30s"),
		DispatcherDrainTimeoutStr:  envOr("DISPATCHER_DRAIN_TIMEOUT", "30s"),
		StageTimeoutStr:            envOr("STAGE_TIMEOUT", "30s"),
		StageRetryBackoffStr:       envOr("STAGE_RETRY_BACKOFF", "1s"),
		CircuitBreakerCooldownStr:  envOr("CIRCUIT_BREAKER_COOLDOWN", "2m"),
		ReconcileIntervalStr:       envOr("RECONCILE_INTERVAL", "5m"),
		ReconcileThresholdStr:      envOr("RECONCILE_THRESHOLD", "10m"),
		ReplayWindowStr:            envOr("RECONCILE_REPLAY_WINDOW", "25h"),
		StuckThresholdStr:          envOr("STUCK_THRESHOLD", "1h"),
		LeaderRetryIntervalStr:     envOr("LEADER_RETRY_INTERVAL", "5s"),
		LeaderHeartbeatIntervalStr: envOr("LEADER_HEARTBEAT_INTERVAL", "2s"),

		DBMaxOpenConns:      positiveInt("DB_MAX_OPEN_CONNS", 25),
		DBMaxIdleConns:      positiveInt("DB_MAX_IDLE_CONNS", 5),
		EventBusBufferSize:  positiveInt("EVENTBUS_BUFFER_SIZE", 100),
		DispatcherWorkers:   positiveInt("DISPATCHER_WORKERS", 4),
		StageMaxAttempts:    positiveInt("STAGE_MAX_ATTEMPTS", 2),
		MaxParallelJobs:     positiveInt("MAX_PARALLEL_JOBS", 4),
		QualitySampleSize:   positiveInt("QUALITY_SAMPLE_SIZE", 10),
		QuarantineBatchSize: positiveInt("QUARANTINE_BATCH_SIZE", 500),
		ReconcileBatchSize:  positiveInt("RECONCILE_BATCH_SIZE", 100),
	}

	cfg.CircuitBreakerThreshold = 5
	if s := os.Getenv("CIRCUIT_BREAKER_THRESHOLD"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n >= 0 {
			cfg.CircuitBreakerThreshold = n
		} else {
			log.Printf("config: invalid CIRCUIT_BREAKER_THRESHOLD %q, using default 5", s)
		}
	}

	// Support Railway's PORT variable as fallback for HTTP_ADDR.
	if cfg.HTTPAddr == "" {
		if port := os.Getenv("PORT"); port != "" {
			cfg.HTTPAddr = ":" + port
		} else {
			cfg.HTTPAddr = ":8080"
		}
	}

	for _, d := range cfg.durations() {
		if v, err := time.ParseDuration(*d.raw); err == nil {
			*d.dst = v
		}
	}
	return cfg
}

type durationField struct {
	env string
	raw *string
	dst *time.Duration
}

// durations lists every duration setting; Load parses them and Validate
// checks them.
func (c *Config) durations() []durationField {
	return []durationField{
		{"DB_OP_TIMEOUT", &c.DBOpTimeoutStr, &c.DBOpTimeout},
		{"DB_CONN_MAX_LIFETIME", &c.DBConnMaxLifetimeStr, &c.DBConnMaxLifetime},
		{"HTTP_SHUTDOWN_TIMEOUT", &c.HTTPShutdownTimeoutStr, &c.HTTPShutdownTimeout},
		{"TICK_INTERVAL", &c.TickIntervalStr, &c.TickInterval},
		{"DISPATCHER_DRAIN_TIMEOUT", &c.DispatcherDrainTimeoutStr, &c.DispatcherDrainTimeout},
		{"STAGE_TIMEOUT", &c.StageTimeoutStr, &c.StageTimeout},
		{"STAGE_RETRY_BACKOFF", &c.StageRetryBackoffStr, &c.StageRetryBackoff},
		{"CIRCUIT_BREAKER_COOLDOWN", &c.CircuitBreakerCooldownStr, &c.CircuitBreakerCooldown},
		{"RECONCILE_INTERVAL", &c.ReconcileIntervalStr, &c.ReconcileInterval},
		{"RECONCILE_THRESHOLD", &c.ReconcileThresholdStr, &c.ReconcileThreshold},
		{"RECONCILE_REPLAY_WINDOW", &c.ReplayWindowStr, &c.ReplayWindow},
		{"STUCK_THRESHOLD", &c.StuckThresholdStr, &c.StuckThreshold},
		{"LEADER_RETRY_INTERVAL", &c.LeaderRetryIntervalStr, &c.LeaderRetryInterval},
		{"LEADER_HEARTBEAT_INTERVAL", &c.LeaderHeartbeatIntervalStr, &c.LeaderHeartbeatInterval},
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func positiveInt(key string, def int) int {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		log.Printf("config: invalid %s %q (must be a positive integer), using default %d", key, s, def)
		return def
	}
	return n
}

// MaskedJSON returns the configuration as JSON with secrets masked.
func (c Config) MaskedJSON() ([]byte, error) {
	masked := c
	masked.DatabaseURL = maskSecret(c.DatabaseURL)
	masked.TransformSecret = maskSecret(c.TransformSecret)
	return json.MarshalIndent(masked, "", "  ")
}

// maskSecret masks a secret value, preserving only the URI scheme if present.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	for _, scheme := range []string{"postgres://", "postgresql://"} {
		if strings.HasPrefix(s, scheme) {
			return scheme + "***"
		}
	}
	return "***"
}
