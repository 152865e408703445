// Package leaderelection makes one FlowForge instance the scheduler leader
// by holding a Postgres session-scoped advisory lock.
//
// The lock lives as long as the dedicated connection. There is no TTL: if
// the connection dies Postgres releases the lock server-side. The heartbeat
// ping only detects local connection death so the leader stops ticking
// promptly; it does not renew anything.
package leaderelection

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"hash/fnv"
	"log"
	"sync/atomic"
	"time"

	"github.com/sethvargo/go-retry"
)

// Reasons reported to LeaderLost.
const (
	ReasonShutdown = "shutdown"
	ReasonConnLost = "conn_lost"
)

var errNotAcquired = errors.New("advisory lock held by another instance")

type MetricsSink interface {
	LeaderStatusChanged(isLeader bool)
	LeaderAcquired()
	LeaderLost(reason string)
}

// Session is one dedicated connection able to take the lock.
type Session interface {
	TryLock(ctx context.Context, key int64) (bool, error)
	Ping(ctx context.Context) error
	Close() error
}

// Connector opens a new Session.
type Connector func(ctx context.Context) (Session, error)

type Config struct {
	LockKey           int64
	RetryInterval     time.Duration // follower: how often to try the lock
	HeartbeatInterval time.Duration // leader: how often to ping the session
}

type Elector struct {
	config    Config
	connect   Connector
	onElected func(ctx context.Context)
	onDemoted func()
	metrics   MetricsSink // optional, nil = disabled
	leader    atomic.Bool
}

// New creates an Elector.
//
// onElected runs in its own goroutine once the lock is held; its context is
// cancelled when leadership is lost. onDemoted runs synchronously after that
// and must block until leader duties have stopped.
func New(config Config, connect Connector, onElected func(ctx context.Context), onDemoted func()) *Elector {
	return &Elector{
		config:    config,
		connect:   connect,
		onElected: onElected,
		onDemoted: onDemoted,
	}
}

func (e *Elector) WithMetrics(sink MetricsSink) *Elector {
	e.metrics = sink
	return e
}

// IsLeader reports whether this instance currently holds the lock.
func (e *Elector) IsLeader() bool {
	return e.leader.Load()
}

// Run campaigns until ctx is cancelled.
func (e *Elector) Run(ctx context.Context) {
	log.Printf("leader: starting election loop (lock_key=%d, retry=%s, heartbeat=%s)",
		e.config.LockKey, e.config.RetryInterval, e.config.HeartbeatInterval)

	backoff := retry.NewConstant(e.config.RetryInterval)
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		reason, err := e.campaign(ctx)
		if ctx.Err() != nil {
			return nil
		}
		switch {
		case errors.Is(err, errNotAcquired):
			log.Printf("leader: lock %d held by another instance, retrying in %s", e.config.LockKey, e.config.RetryInterval)
		case err != nil:
			log.Printf("leader: %v", err)
		default:
			log.Printf("leader: lost leadership (reason=%s), will retry in %s", reason, e.config.RetryInterval)
		}
		return retry.RetryableError(errNotAcquired)
	})
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		log.Printf("leader: election loop error: %v", err)
	}
	log.Println("leader: election loop stopped")
}

// campaign tries the lock once and, if acquired, holds it until it is lost.
func (e *Elector) campaign(ctx context.Context) (string, error) {
	sess, err := e.connect(ctx)
	if err != nil {
		return "", fmt.Errorf("open session: %w", err)
	}
	defer sess.Close()

	acquired, err := sess.TryLock(ctx, e.config.LockKey)
	if err != nil {
		return "", fmt.Errorf("advisory lock query: %w", err)
	}
	if !acquired {
		return "", errNotAcquired
	}

	log.Printf("leader: acquired advisory lock %d", e.config.LockKey)
	e.leader.Store(true)
	if e.metrics != nil {
		e.metrics.LeaderStatusChanged(true)
		e.metrics.LeaderAcquired()
	}

	leaderCtx, cancelLeader := context.WithCancel(ctx)
	go e.onElected(leaderCtx)

	reason := e.hold(ctx, sess)

	cancelLeader()
	e.onDemoted()
	e.leader.Store(false)
	if e.metrics != nil {
		e.metrics.LeaderStatusChanged(false)
		e.metrics.LeaderLost(reason)
	}
	log.Printf("leader: released advisory lock %d", e.config.LockKey)
	return reason, nil
}

func (e *Elector) hold(ctx context.Context, sess Session) string {
	ticker := time.NewTicker(e.config.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ReasonShutdown
		case <-ticker.C:
			if err := sess.Ping(ctx); err != nil {
				if ctx.Err() != nil {
					return ReasonShutdown
				}
				log.Printf("leader: dedicated connection ping failed: %v", err)
				return ReasonConnLost
			}
		}
	}
}

// LockKey derives a stable advisory lock key from a name.
func LockKey(name string) int64 {
	h := fnv.New64a()
	h.Write([]byte(name))
	return int64(h.Sum64())
}

// PostgresConnector opens sessions on dedicated connections from db.
func PostgresConnector(db *sql.DB) Connector {
	return func(ctx context.Context) (Session, error) {
		conn, err := db.Conn(ctx)
		if err != nil {
			return nil, err
		}
		return &pgSession{conn: conn}, nil
	}
}

type pgSession struct {
	conn   *sql.Conn
	key    int64
	locked bool
}

func (s *pgSession) TryLock(ctx context.Context, key int64) (bool, error) {
	var acquired bool
	if err := s.conn.QueryRowContext(ctx, "SELECT pg_try_advisory_lock($1)", key).Scan(&acquired); err != nil {
		return false, err
	}
	s.key, s.locked = key, acquired
	return acquired, nil
}

func (s *pgSession) Ping(ctx context.Context) error {
	return s.conn.PingContext(ctx)
}

// Close unlocks before handing the connection back, since a pooled
// connection keeps its session locks.
func (s *pgSession) Close() error {
	if s.locked {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if _, err := s.conn.ExecContext(ctx, "SELECT pg_advisory_unlock($1)", s.key); err != nil {
			log.Printf("leader: unlock %d: %v", s.key, err)
		}
		s.locked = false
	}
	return s.conn.Close()
}
