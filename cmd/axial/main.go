// Command axial runs the grounded-theory research service.
//
// Usage:
//
//	axial serve --config config.yaml
//	axial worker --config config.yaml
//	axial validate --config config.yaml
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/redis/go-redis/v9"

	"github.com/axialab/axial/pkg/coding"
	"github.com/axialab/axial/pkg/config"
	"github.com/axialab/axial/pkg/graph"
	"github.com/axialab/axial/pkg/llm"
	"github.com/axialab/axial/pkg/logger"
	"github.com/axialab/axial/pkg/pipeline"
	"github.com/axialab/axial/pkg/ratelimit"
	"github.com/axialab/axial/pkg/server"
	"github.com/axialab/axial/pkg/store"
	"github.com/axialab/axial/pkg/task"
	"github.com/axialab/axial/pkg/theory"
	"github.com/axialab/axial/pkg/vector"
)

// CLI defines the command-line interface.
type CLI struct {
	Version  VersionCmd  `cmd:"" help:"Show version information."`
	Serve    ServeCmd    `cmd:"" help:"Start the HTTP API server."`
	Worker   WorkerCmd   `cmd:"" help:"Start a queue worker (requires redis)."`
	Validate ValidateCmd `cmd:"" help:"Validate configuration file."`

	Config    string `short:"c" help:"Path to config file." type:"path"`
	LogLevel  string `help:"Log level (debug, info, warn, error). Overrides config."`
	LogFile   string `help:"Log file path (empty = stderr)."`
	LogFormat string `help:"Log format (text or json). Overrides config."`
}

// VersionCmd shows version information.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	version := "dev"
	if info, ok := debug.ReadBuildInfo(); ok {
		if info.Main.Version != "(devel)" && info.Main.Version != "" {
			version = info.Main.Version
		}
	}
	fmt.Printf("axial version %s\n", version)
	return nil
}

// ValidateCmd loads the configuration and reports the result.
type ValidateCmd struct{}

func (c *ValidateCmd) Run(cli *CLI) error {
	if cli.Config == "" {
		return fmt.Errorf("--config is required for validate")
	}
	cfg, err := config.Load(cli.Config)
	if err != nil {
		return err
	}
	fmt.Printf("Configuration valid (environment: %s)\n", cfg.Environment)
	return nil
}

// ServeCmd starts the HTTP API server.
type ServeCmd struct {
	Port int `help:"Port to listen on. Overrides config."`
}

func (c *ServeCmd) Run(cli *CLI) error {
	ctx, cancel := signalContext()
	defer cancel()

	cfg, cleanup, err := loadAndInit(cli)
	if err != nil {
		return err
	}
	defer cleanup()
	if c.Port != 0 {
		cfg.Server.Port = c.Port
	}

	rt, err := buildRuntime(ctx, cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	dispatcher := task.NewDispatcher(&cfg.Task, rt.redis, rt.service.Handle)

	srv := server.New(cfg, rt.db, rt.graph, rt.vectors, rt.tasks, rt.locks, dispatcher, rt.limiter, rt.pingers())
	slog.Info("axial server starting",
		"environment", cfg.Environment,
		"redis", cfg.Redis.Enabled(),
		"external_queue", cfg.Redis.Enabled() && *cfg.Task.UseExternalQueue)
	return srv.ListenAndServe(ctx)
}

// WorkerCmd consumes the pipeline stream. Only meaningful alongside a server
// running with task.use_external_queue.
type WorkerCmd struct {
	Consumer string `help:"Consumer name within the worker group (default: hostname)."`
}

func (c *WorkerCmd) Run(cli *CLI) error {
	ctx, cancel := signalContext()
	defer cancel()

	cfg, cleanup, err := loadAndInit(cli)
	if err != nil {
		return err
	}
	defer cleanup()

	if !cfg.Redis.Enabled() {
		return fmt.Errorf("worker requires redis.addr to be configured")
	}

	rt, err := buildRuntime(ctx, cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	consumer := c.Consumer
	if consumer == "" {
		consumer, _ = os.Hostname()
	}
	if consumer == "" {
		consumer = "worker"
	}

	slog.Info("axial worker starting", "stream", cfg.Task.QueueStream, "consumer", consumer)
	return task.NewWorker(&cfg.Task, rt.redis, rt.service.Handle, consumer).Run(ctx)
}

// runtime holds the wired service graph shared by serve and worker.
type runtime struct {
	db      *store.Store
	graph   *graph.Graph
	vectors *vector.Store
	redis   *redis.Client
	tasks   *task.Manager
	locks   *task.Locks
	service *pipeline.Service
	limiter *ratelimit.Limiter
}

func buildRuntime(ctx context.Context, cfg *config.Config) (*runtime, error) {
	db, err := store.New(ctx, &cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("relational store: %w", err)
	}

	graphStore, err := graph.New(ctx, &cfg.Graph)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("graph store: %w", err)
	}
	if err := graphStore.EnsureConstraints(ctx); err != nil {
		slog.Warn("graph constraint setup failed, continuing", "error", err)
	}

	vectorStore, err := vector.New(&cfg.Vector)
	if err != nil {
		db.Close()
		graphStore.Close(ctx)
		return nil, fmt.Errorf("vector store: %w", err)
	}

	var client *redis.Client
	if cfg.Redis.Enabled() {
		client = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}

	gateway := llm.New(&cfg.LLM)
	coder := coding.New(db, graphStore, vectorStore, gateway, &cfg.Pipeline)
	theoryEngine := theory.New(db, graphStore, vectorStore, gateway, coder, cfg)

	tasks := task.NewManager(&cfg.Task, client)
	locks := task.NewLocks(&cfg.Task, client)
	service := pipeline.New(theoryEngine, coder, tasks, locks)

	var limiter *ratelimit.Limiter
	if cfg.RateLimit.IsEnabled() {
		var rlStore ratelimit.Store
		if client != nil {
			rlStore = ratelimit.NewRedisStore(client)
		} else {
			rlStore = ratelimit.NewMemoryStore()
		}
		limiter, err = ratelimit.New(&cfg.RateLimit, rlStore)
		if err != nil {
			db.Close()
			graphStore.Close(ctx)
			vectorStore.Close()
			return nil, fmt.Errorf("rate limiter: %w", err)
		}
	}

	return &runtime{
		db:      db,
		graph:   graphStore,
		vectors: vectorStore,
		redis:   client,
		tasks:   tasks,
		locks:   locks,
		service: service,
		limiter: limiter,
	}, nil
}

func (rt *runtime) pingers() map[string]server.Pinger {
	pingers := map[string]server.Pinger{
		"relational": rt.db.Ping,
		"graph":      rt.graph.Ping,
		"vector":     rt.vectors.Ping,
	}
	if rt.redis != nil {
		pingers["redis"] = func(ctx context.Context) error {
			return rt.redis.Ping(ctx).Err()
		}
	}
	return pingers
}

func (rt *runtime) Close() {
	shutdownCtx := context.Background()
	if rt.redis != nil {
		if err := rt.redis.Close(); err != nil {
			slog.Warn("redis close failed", "error", err)
		}
	}
	if err := rt.vectors.Close(); err != nil {
		slog.Warn("vector store close failed", "error", err)
	}
	if err := rt.graph.Close(shutdownCtx); err != nil {
		slog.Warn("graph store close failed", "error", err)
	}
	rt.db.Close()
}

// loadAndInit loads the configuration and initializes logging. CLI flags
// override the config file.
func loadAndInit(cli *CLI) (*config.Config, func(), error) {
	if cli.Config == "" {
		return nil, nil, fmt.Errorf("--config is required")
	}
	cfg, err := config.Load(cli.Config)
	if err != nil {
		return nil, nil, err
	}

	levelStr := cfg.LogLevel
	if cli.LogLevel != "" {
		levelStr = cli.LogLevel
	}
	level, err := logger.ParseLevel(levelStr)
	if err != nil {
		return nil, nil, err
	}

	format := cfg.LogFormat
	if cli.LogFormat != "" {
		format = cli.LogFormat
	}

	var output io.Writer = os.Stderr
	cleanup := func() {}
	if cli.LogFile != "" {
		file, closeFile, err := logger.OpenLogFile(cli.LogFile)
		if err != nil {
			return nil, nil, err
		}
		output = file
		cleanup = closeFile
	}

	logger.Init(level, output, format)
	return cfg, cleanup, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		slog.Info("shutting down")
		cancel()
	}()
	return ctx, cancel
}

func main() {
	cli := CLI{}
	ctx := kong.Parse(&cli,
		kong.Name("axial"),
		kong.Description("axial - grounded-theory research service"),
		kong.UsageOnError(),
	)
	err := ctx.Run(&cli)
	ctx.FatalIfErrorf(err)
}
