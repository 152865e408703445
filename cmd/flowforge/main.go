package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/sandeepvarmac/FlowForge-sub003/internal/analytics"
	"github.com/sandeepvarmac/FlowForge-sub003/internal/api"
	"github.com/sandeepvarmac/FlowForge-sub003/internal/catalog"
	"github.com/sandeepvarmac/FlowForge-sub003/internal/circuitbreaker"
	"github.com/sandeepvarmac/FlowForge-sub003/internal/config"
	"github.com/sandeepvarmac/FlowForge-sub003/internal/cron"
	"github.com/sandeepvarmac/FlowForge-sub003/internal/deploysync"
	"github.com/sandeepvarmac/FlowForge-sub003/internal/dispatcher"
	"github.com/sandeepvarmac/FlowForge-sub003/internal/domain"
	"github.com/sandeepvarmac/FlowForge-sub003/internal/engine"
	"github.com/sandeepvarmac/FlowForge-sub003/internal/leaderelection"
	"github.com/sandeepvarmac/FlowForge-sub003/internal/metrics"
	"github.com/sandeepvarmac/FlowForge-sub003/internal/quality"
	"github.com/sandeepvarmac/FlowForge-sub003/internal/reconciler"
	"github.com/sandeepvarmac/FlowForge-sub003/internal/resolver"
	"github.com/sandeepvarmac/FlowForge-sub003/internal/scheduler"
	"github.com/sandeepvarmac/FlowForge-sub003/internal/stage"
	"github.com/sandeepvarmac/FlowForge-sub003/internal/store"
	"github.com/sandeepvarmac/FlowForge-sub003/internal/store/memory"
	"github.com/sandeepvarmac/FlowForge-sub003/internal/store/postgres"
	"github.com/sandeepvarmac/FlowForge-sub003/internal/transform"
	"github.com/sandeepvarmac/FlowForge-sub003/internal/transport/channel"

	_ "github.com/lib/pq"
)

// Build-time variables set via -ldflags
var (
	version = "dev"
	commit  = "unknown"
)

const (
	exitSuccess       = 0
	exitRuntimeError  = 1
	exitInvalidConfig = 2
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(exitRuntimeError)
	}

	cmd, args := os.Args[1], os.Args[2:]

	switch cmd {
	case "serve":
		os.Exit(runServe())
	case "validate":
		os.Exit(runValidate())
	case "config":
		os.Exit(runConfig())
	case "import":
		os.Exit(runImport(args))
	case "preview":
		os.Exit(runPreview(args))
	case "version":
		os.Exit(runVersion())
	case "--help", "-h", "help":
		printUsage()
		os.Exit(exitSuccess)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", cmd)
		printUsage()
		os.Exit(exitRuntimeError)
	}
}

func printUsage() {
	fmt.Println(`flowforge - data pipeline orchestration with quality gates

Usage:
  flowforge <command> [arguments]

Commands:
  serve                          Start the API, engine, scheduler and reconciler
  validate                       Validate configuration (no connections made)
  config                         Print effective configuration as JSON (secrets masked)
  import [-dry-run] <manifest>   Create workflows, jobs, rules and triggers from a YAML manifest
  preview <cron> [tz] [count]    Print the next run times of a cron expression
  version                        Print version information

Environment Variables:
  STORE_MODE                 "postgres" or "memory" (default: "postgres")
  DATABASE_URL               PostgreSQL connection string (required in postgres mode)
  REDIS_ADDR                 Redis address for volume analytics (optional)
  HTTP_ADDR                  HTTP server address (default: ":8080", or ":$PORT")

  DB_OP_TIMEOUT              Database operation timeout (default: "5s")
  DB_MAX_OPEN_CONNS          Max open database connections (default: "25")
  DB_MAX_IDLE_CONNS          Max idle database connections (default: "5")
  DB_CONN_MAX_LIFETIME       Max connection lifetime (default: "30m")

  HTTP_SHUTDOWN_TIMEOUT      Graceful HTTP shutdown timeout (default: "10s")
  TICK_INTERVAL              Scheduler tick interval (default: "30s")
  EVENTBUS_BUFFER_SIZE       Run and completion bus capacity (default: "100")
  DISPATCHER_WORKERS         Concurrent executions per instance (default: "4")
  DISPATCHER_DRAIN_TIMEOUT   Run request drain timeout on shutdown (default: "30s")

  TRANSFORM_URL              Transformation executor base URL (required)
  TRANSFORM_SECRET           HMAC secret for executor requests (optional)
  DEPLOY_SYNC_URL            Deployment system base URL (optional)
  STAGE_TIMEOUT              Per-attempt stage timeout (default: "30s")
  STAGE_MAX_ATTEMPTS         Attempts per stage (default: "2")
  STAGE_RETRY_BACKOFF        Backoff between attempts (default: "1s")
  MAX_PARALLEL_JOBS          Jobs run at once within an execution (default: "4")
  QUALITY_SAMPLE_SIZE        Failing records kept per rule result (default: "10")
  QUARANTINE_BATCH_SIZE      Quarantine insert batch size (default: "500")
  CIRCUIT_BREAKER_THRESHOLD  Failures before an endpoint opens, 0 disables (default: "5")
  CIRCUIT_BREAKER_COOLDOWN   Open circuit cooldown (default: "2m")

  RECONCILE_ENABLED          Re-emit orphaned runs and fail stuck stages (default: "true")
  RECONCILE_INTERVAL         How often to reconcile (default: "5m")
  RECONCILE_THRESHOLD        Age before a pending execution is re-emitted (default: "10m")
  RECONCILE_BATCH_SIZE       Max records per reconcile cycle (default: "100")
  STUCK_THRESHOLD            Silence before a running stage is failed (default: "1h")
  RECONCILE_REPLAY_WINDOW    How far back finished runs are re-cascaded (default: "25h")

  METRICS_ENABLED            Serve Prometheus metrics (default: "false")
  METRICS_PATH               Metrics endpoint path on HTTP_ADDR (default: "/metrics")

  LEADER_ELECTION_ENABLED    Only one instance ticks the scheduler (default: "false")
  LEADER_LOCK_KEY            Advisory lock key, numeric or a name (default: "flowforge-scheduler")
  LEADER_RETRY_INTERVAL      Follower lock retry interval (default: "5s")
  LEADER_HEARTBEAT_INTERVAL  Leader connection ping interval (default: "2s")`)
}

// logConfigWarnings flags configurations that run but lose guarantees.
func logConfigWarnings(cfg *config.Config) {
	if cfg.StoreMode == config.StoreModeMemory {
		log.Println("flowforge: WARNING [P0]: STORE_MODE=memory: all workflows and executions are lost on restart")
	}
	if !cfg.ReconcileEnabled {
		log.Println("flowforge: WARNING [P0]: RECONCILE_ENABLED=false: pending executions lost in a crash are never re-emitted and stuck stages never fail")
	}
	if cfg.CircuitBreakerThreshold == 0 {
		log.Println("flowforge: WARNING [P1]: CIRCUIT_BREAKER_THRESHOLD=0: an unavailable executor is retried on every stage")
	}
	if !cfg.MetricsEnabled {
		log.Println("flowforge: WARNING [P1]: METRICS_ENABLED=false: stage, quality and bus saturation metrics are not exported")
	}
	if cfg.StoreMode == config.StoreModePostgres && !cfg.LeaderElectionEnabled {
		log.Println("flowforge: INFO: LEADER_ELECTION_ENABLED=false: every instance ticks the scheduler; dedup keys keep runs single")
	}
	if cfg.DeploySyncURL == "" {
		log.Println("flowforge: INFO: DEPLOY_SYNC_URL not set; schedule pause/resume is not propagated")
	}
}

// openDatabase opens and pings the Postgres pool.
func openDatabase(cfg config.Config) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(cfg.DBMaxOpenConns)
	db.SetMaxIdleConns(cfg.DBMaxIdleConns)
	db.SetConnMaxLifetime(cfg.DBConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.DBOpTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	log.Printf("flowforge: db pool configured (max_open=%d, max_idle=%d, max_lifetime=%s)",
		cfg.DBMaxOpenConns, cfg.DBMaxIdleConns, cfg.DBConnMaxLifetime)
	return db, nil
}

// openStore returns the configured store. db is nil in memory mode.
func openStore(cfg config.Config) (store.Store, *sql.DB, error) {
	if cfg.StoreMode == config.StoreModeMemory {
		st, err := memory.New()
		return st, nil, err
	}
	db, err := openDatabase(cfg)
	if err != nil {
		return nil, nil, err
	}
	st := postgres.New(db, cfg.DBOpTimeout)
	if err := st.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("migrate schema: %w", err)
	}
	return st, db, nil
}

// leaderLockKey accepts a numeric key as is and hashes anything else.
func leaderLockKey(s string) int64 {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	return leaderelection.LockKey(s)
}

// leaderTerms runs leader duties once per term. elected and demoted may
// race: the elector starts elected in its own goroutine. mu orders Add
// against Wait so a term that starts late only sees a cancelled context.
type leaderTerms struct {
	run func(ctx context.Context)
	mu  sync.Mutex
	wg  sync.WaitGroup
}

func (t *leaderTerms) elected(ctx context.Context) {
	t.mu.Lock()
	t.wg.Add(1)
	t.mu.Unlock()
	defer t.wg.Done()
	t.run(ctx)
}

func (t *leaderTerms) demoted() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.wg.Wait()
}

func runServe() int {
	cfg := config.Load()

	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		return exitInvalidConfig
	}
	logConfigWarnings(&cfg)

	st, db, err := openStore(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open store: %v\n", err)
		return exitRuntimeError
	}
	if db != nil {
		defer db.Close()
	}
	log.Printf("flowforge: store mode=%s", cfg.StoreMode)

	// Optional metrics sink. A nil interface disables metrics everywhere.
	var sink metrics.Sink
	var metricsHandler http.Handler
	if cfg.MetricsEnabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(prometheus.NewGoCollector(), prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
		sink = metrics.NewPrometheusSink(reg)
		metricsHandler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
		log.Printf("flowforge: metrics enabled (path=%s)", cfg.MetricsPath)
	}

	var busOpts []channel.Option
	if sink != nil {
		busOpts = append(busOpts, channel.WithMetrics(sink))
	}
	runBus := channel.NewEventBus[domain.RunRequest]("runs", cfg.EventBusBufferSize, busOpts...)
	completionBus := channel.NewEventBus[domain.CompletionEvent]("completions", cfg.EventBusBufferSize, busOpts...)

	// Stage execution: transformation executor plus quality gate.
	transformer := transform.New(cfg.TransformURL, cfg.TransformSecret).WithMetrics(sink)
	var breaker *circuitbreaker.CircuitBreaker
	if cfg.CircuitBreakerThreshold > 0 {
		breaker = circuitbreaker.New(cfg.CircuitBreakerThreshold, cfg.CircuitBreakerCooldown)
		transformer = transformer.WithBreaker(breaker)
		log.Printf("flowforge: circuit breaker enabled (threshold=%d, cooldown=%s)",
			cfg.CircuitBreakerThreshold, cfg.CircuitBreakerCooldown)
	}
	gate := quality.New(st).
		WithSampleSize(cfg.QualitySampleSize).
		WithBatchSize(cfg.QuarantineBatchSize).
		WithMetrics(sink)
	stages := stage.New(transformer, st, gate).
		WithTimeout(cfg.StageTimeout).
		WithRetry(cfg.StageMaxAttempts, cfg.StageRetryBackoff).
		WithMetrics(sink)

	eng := engine.New(st, stages).
		WithCompletions(completionBus).
		WithMaxParallelJobs(cfg.MaxParallelJobs).
		WithMetrics(sink)

	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer redisClient.Close()
		eng = eng.WithAnalytics(analytics.NewRedisSink(redisClient))
		log.Printf("flowforge: analytics enabled (redis=%s)", cfg.RedisAddr)
	} else {
		log.Println("flowforge: REDIS_ADDR not set; analytics disabled")
	}

	disp := dispatcher.New(eng).
		WithWorkers(cfg.DispatcherWorkers).
		WithDrainTimeout(cfg.DispatcherDrainTimeout).
		WithMetrics(sink)

	evaluator := cron.NewEvaluator()
	res := resolver.New(st)
	sched := scheduler.New(scheduler.Config{TickInterval: cfg.TickInterval}, st, evaluator, runBus, res).
		WithMetrics(sink)
	if cfg.DeploySyncURL != "" {
		deploy := deploysync.New(cfg.DeploySyncURL)
		if breaker != nil {
			deploy = deploy.WithBreaker(breaker)
		}
		sched = sched.WithDeploySync(deploy)
		log.Printf("flowforge: deployment sync enabled (url=%s)", cfg.DeploySyncURL)
	} else {
		sched = sched.WithDeploySync(deploysync.Noop{})
	}

	cat := catalog.New(st, sched)

	handler := api.NewHandler(st, sched, eng, cat, res, evaluator)
	if db != nil {
		handler = handler.WithHealthChecker(db)
	}
	var root http.Handler = handler
	if metricsHandler != nil {
		mux := http.NewServeMux()
		mux.Handle(cfg.MetricsPath, metricsHandler)
		mux.Handle("/", handler)
		root = mux
	}

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           root,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Printf("flowforge: http server listening on %s", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("flowforge: http server error: %v", err)
		}
	}()

	// Separate contexts so shutdown can stop producers before consumers.
	leaderCtx, cancelLeader := context.WithCancel(context.Background())
	completionsCtx, cancelCompletions := context.WithCancel(context.Background())
	dispatcherCtx, cancelDispatcher := context.WithCancel(context.Background())

	var leaderWg, completionsWg, dispatcherWg sync.WaitGroup

	var recon *reconciler.Reconciler
	if cfg.ReconcileEnabled {
		recon = reconciler.New(
			reconciler.Config{
				Interval:       cfg.ReconcileInterval,
				Threshold:      cfg.ReconcileThreshold,
				StuckThreshold: cfg.StuckThreshold,
				BatchSize:      cfg.ReconcileBatchSize,
				ReplayWindow:   cfg.ReplayWindow,
			},
			st,
			runBus,
			eng,
		).WithMetrics(sink).WithCompletionReplay(sched)
		log.Printf("flowforge: reconciler enabled (interval=%s, threshold=%s, stuck=%s, batch=%d, replay=%s)",
			cfg.ReconcileInterval, cfg.ReconcileThreshold, cfg.StuckThreshold, cfg.ReconcileBatchSize, cfg.ReplayWindow)
	}

	// leaderDuties ticks the scheduler and runs the reconciler until ctx ends.
	leaderDuties := func(ctx context.Context) {
		var wg sync.WaitGroup
		if recon != nil {
			wg.Add(1)
			go func() {
				defer wg.Done()
				recon.Run(ctx)
			}()
		}
		if err := sched.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("flowforge: scheduler stopped: %v", err)
		}
		wg.Wait()
	}

	if cfg.LeaderElectionEnabled {
		terms := &leaderTerms{run: leaderDuties}
		elector := leaderelection.New(
			leaderelection.Config{
				LockKey:           leaderLockKey(cfg.LeaderLockKey),
				RetryInterval:     cfg.LeaderRetryInterval,
				HeartbeatInterval: cfg.LeaderHeartbeatInterval,
			},
			leaderelection.PostgresConnector(db),
			terms.elected,
			terms.demoted,
		).WithMetrics(sink)
		leaderWg.Add(1)
		go func() {
			defer leaderWg.Done()
			elector.Run(leaderCtx)
		}()
	} else {
		leaderWg.Add(1)
		go func() {
			defer leaderWg.Done()
			leaderDuties(leaderCtx)
		}()
	}

	completionsWg.Add(1)
	go func() {
		defer completionsWg.Done()
		if err := sched.RunCompletions(completionsCtx, completionBus.Channel()); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("flowforge: completion listener stopped: %v", err)
		}
	}()

	dispatcherWg.Add(1)
	go func() {
		defer dispatcherWg.Done()
		disp.Run(dispatcherCtx, runBus.Channel())
	}()

	log.Printf("flowforge: started (version=%s, tick=%s, http=%s, workers=%d)",
		version, cfg.TickInterval, cfg.HTTPAddr, cfg.DispatcherWorkers)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	received := <-sig

	log.Printf("flowforge: received signal %v, shutting down", received)

	// Phase 1: stop the HTTP server so no new runs or ingests arrive.
	log.Println("flowforge: stopping http server...")
	httpShutdownCtx, httpShutdownCancel := context.WithTimeout(context.Background(), cfg.HTTPShutdownTimeout)
	defer httpShutdownCancel()
	if err := httpServer.Shutdown(httpShutdownCtx); err != nil {
		log.Printf("flowforge: http server shutdown error: %v", err)
	}
	log.Println("flowforge: http server stopped")

	// Phase 2: stop the scheduler, reconciler and leader campaign.
	log.Println("flowforge: stopping scheduler...")
	cancelLeader()
	leaderWg.Wait()
	log.Println("flowforge: scheduler stopped")

	// Phase 3: drain run requests; running executions finish or time out.
	log.Println("flowforge: stopping dispatcher (draining runs)...")
	cancelDispatcher()
	dispatcherWg.Wait()
	log.Println("flowforge: dispatcher stopped")

	// Phase 4: stop cascading. Completions emitted after this point are
	// picked up as pending executions by the reconciler on next start.
	cancelCompletions()
	completionsWg.Wait()
	log.Println("flowforge: completion listener stopped")

	log.Println("flowforge: stopped")
	return exitSuccess
}

func runValidate() int {
	cfg := config.Load()

	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return exitInvalidConfig
	}

	fmt.Println("configuration valid")
	return exitSuccess
}

func runConfig() int {
	cfg := config.Load()

	data, err := cfg.MaskedJSON()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to marshal config: %v\n", err)
		return exitRuntimeError
	}

	fmt.Println(string(data))
	return exitSuccess
}

// discardRuns drops run requests. Imports create no executions.
type discardRuns struct{}

func (discardRuns) Emit(ctx context.Context, req domain.RunRequest) error { return nil }

func runImport(args []string) int {
	fs := flag.NewFlagSet("import", flag.ContinueOnError)
	dryRun := fs.Bool("dry-run", false, "parse and validate the manifest without writing")
	if err := fs.Parse(args); err != nil {
		return exitInvalidConfig
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: flowforge import [-dry-run] <manifest.yaml>")
		return exitInvalidConfig
	}

	f, err := os.Open(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open manifest: %v\n", err)
		return exitRuntimeError
	}
	defer f.Close()

	m, err := catalog.ParseManifest(f)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid manifest: %v\n", err)
		return exitInvalidConfig
	}
	if *dryRun {
		fmt.Printf("manifest valid: %d workflow(s)\n", len(m.Workflows))
		return exitSuccess
	}

	cfg := config.Load()
	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		return exitInvalidConfig
	}
	if cfg.StoreMode == config.StoreModeMemory {
		fmt.Fprintln(os.Stderr, "import needs STORE_MODE=postgres: a memory store would be discarded on exit")
		return exitInvalidConfig
	}

	st, db, err := openStore(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open store: %v\n", err)
		return exitRuntimeError
	}
	defer db.Close()

	sched := scheduler.New(scheduler.Config{TickInterval: cfg.TickInterval}, st, cron.NewEvaluator(), discardRuns{}, resolver.New(st))
	if cfg.DeploySyncURL != "" {
		sched = sched.WithDeploySync(deploysync.New(cfg.DeploySyncURL))
	}

	res, err := catalog.New(st, sched).Import(context.Background(), m)
	printImportResult(res)
	if err != nil {
		fmt.Fprintf(os.Stderr, "import stopped: %v\n", err)
		return exitRuntimeError
	}
	return exitSuccess
}

func printImportResult(res catalog.ImportResult) {
	for _, wf := range res.Workflows {
		fmt.Printf("workflow %s  %s\n", wf.ID, wf.Name)
	}
	fmt.Printf("created %d workflow(s), %d job(s), %d rule(s), %d trigger(s)\n",
		len(res.Workflows), res.Jobs, res.Rules, res.Triggers)
}

func runPreview(args []string) int {
	if len(args) < 1 || len(args) > 3 {
		fmt.Fprintln(os.Stderr, "usage: flowforge preview <cron expression> [timezone] [count]")
		return exitInvalidConfig
	}
	expr, tz, count := args[0], "UTC", api.DefaultPreviewCount
	if len(args) > 1 {
		tz = args[1]
	}
	if len(args) > 2 {
		n, err := strconv.Atoi(args[2])
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid count %q\n", args[2])
			return exitInvalidConfig
		}
		count = n
	}

	runs, err := cron.NewEvaluator().PreviewRuns(expr, tz, count, time.Now())
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return exitInvalidConfig
	}
	for _, t := range runs {
		fmt.Println(t.Format(time.RFC3339))
	}
	return exitSuccess
}

func runVersion() int {
	fmt.Printf("flowforge version %s (commit: %s)\n", version, commit)
	return exitSuccess
}
