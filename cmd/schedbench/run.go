package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"

	taskscheduler "github.com/Swind/go-task-scheduler"
	"github.com/Swind/go-task-scheduler/core"
	"github.com/Swind/go-task-scheduler/internal/config"
	promexp "github.com/Swind/go-task-scheduler/observability/prometheus"
)

func RunCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Post tasks from concurrent producers and wait for the pool to drain",

		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "YAML config file"},
			&cli.IntFlag{Name: "workers", Aliases: []string{"w"}, Usage: "Worker goroutines (overrides config)"},
			&cli.IntFlag{Name: "producers", Aliases: []string{"p"}, Usage: "Concurrent producers (overrides config)"},
			&cli.IntFlag{Name: "tasks", Aliases: []string{"n"}, Usage: "Tasks per producer (overrides config)"},
			&cli.StringFlag{Name: "metrics-addr", Usage: "Serve Prometheus metrics on this address"},
		},

		Action: RunAction,
	}
}

func RunAction(c *cli.Context) error {
	// 1. Build config
	cfg := config.DefaultConfig()
	if path := c.String("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return cli.Exit(fmt.Sprintf("Failed: %v", err), 1)
		}
		cfg = loaded
	}
	if c.IsSet("workers") {
		cfg.Pool.Workers = c.Int("workers")
	}
	if c.IsSet("producers") {
		cfg.Load.Producers = c.Int("producers")
	}
	if c.IsSet("tasks") {
		cfg.Load.TasksPerProducer = c.Int("tasks")
	}
	if c.IsSet("metrics-addr") {
		cfg.Metrics.Enabled = true
		cfg.Metrics.Addr = c.String("metrics-addr")
	}

	// 2. Validate
	if err := cfg.Validate(); err != nil {
		return cli.Exit(fmt.Sprintf("Failed: %v", err), 1)
	}

	// 3. Run
	result, err := runLoad(c.Context, cfg)
	if err != nil {
		return cli.Exit(fmt.Sprintf("Failed: %v", err), 1)
	}

	// 4. Format output
	fmt.Printf("posted=%d executed=%d elapsed=%s\n", result.posted, result.executed, result.elapsed)
	if result.posted != result.executed {
		return cli.Exit("executed count does not match posted count", 1)
	}
	fmt.Println("✓ Success: every posted task ran exactly once")
	return nil
}

type loadResult struct {
	posted   int64
	executed int64
	elapsed  time.Duration
}

func runLoad(ctx context.Context, cfg *config.Config) (loadResult, error) {
	logger := cfg.Logger()
	schedConfig := core.DefaultTaskSchedulerConfig()
	schedConfig.Name = cfg.Pool.ID
	schedConfig.Logger = logger
	schedConfig.PanicHandler = &core.DefaultPanicHandler{Logger: logger}
	schedConfig.RejectedTaskHandler = &core.DefaultRejectedTaskHandler{Logger: logger}

	if cfg.Metrics.Enabled {
		reg := prom.NewRegistry()
		exporter, err := promexp.NewMetricsExporter(cfg.Metrics.Namespace, reg, promexp.ExporterOptions{})
		if err != nil {
			return loadResult{}, err
		}
		schedConfig.Metrics = exporter

		srv := &http.Server{Addr: cfg.Metrics.Addr, Handler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{})}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", core.F("addr", cfg.Metrics.Addr), core.F("error", err))
			}
		}()
		defer srv.Close()
		logger.Info("serving metrics", core.F("addr", cfg.Metrics.Addr))
	}

	pool := taskscheduler.NewGoroutineThreadPoolWithConfig(cfg.Pool.ID, cfg.Pool.Workers, schedConfig)
	pool.Start(ctx)

	priorities := []core.TaskPriority{
		core.TaskPriorityBestEffort,
		core.TaskPriorityUserVisible,
		core.TaskPriorityUserBlocking,
	}

	var executed atomic.Int64
	var wg sync.WaitGroup
	start := time.Now()

	for p := range cfg.Load.Producers {
		wg.Add(1)
		go func(producer int) {
			defer wg.Done()
			traits := core.TaskTraits{Priority: priorities[producer%len(priorities)]}
			runner := core.NewSequencedTaskRunnerWithTraits(pool, traits)
			for range cfg.Load.TasksPerProducer {
				runner.PostTask(func(ctx context.Context) {
					if cfg.Load.TaskDuration > 0 {
						time.Sleep(cfg.Load.TaskDuration)
					}
					executed.Add(1)
				})
			}
		}(p)
	}
	wg.Wait()

	err := pool.StopGraceful(cfg.Pool.ShutdownTimeout)
	return loadResult{
		posted:   int64(cfg.Load.Producers * cfg.Load.TasksPerProducer),
		executed: executed.Load(),
		elapsed:  time.Since(start),
	}, err
}
