package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/gatelink/gogate/internal/alerting"
	"github.com/gatelink/gogate/internal/config"
	"github.com/gatelink/gogate/internal/events"
	"github.com/gatelink/gogate/internal/metrics"
	"github.com/gatelink/gogate/internal/ops"
	"github.com/gatelink/gogate/internal/orchestrator"
	"github.com/gatelink/gogate/internal/ordertable"
	"github.com/gatelink/gogate/internal/routing"
	"github.com/gatelink/gogate/internal/supervisor"
	"github.com/gatelink/gogate/pkg/logger"
	"github.com/gatelink/gogate/pkg/shutdown"
)

func main() {
	// Load .env (best-effort). If missing, fall back to real env vars.
	_ = godotenv.Load()

	getenv := func(key, def string) string {
		if v := os.Getenv(key); v != "" {
			return v
		}
		return def
	}

	configPath := flag.String("config", getenv("GOGATE_CONFIG", "config/gateways.yaml"), "config file path")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logFile := cfg.Logging.File
	if logFile == "" {
		logFile = "logs/gogate.log"
	}
	if err := logger.Init(logger.Config{
		Level:      cfg.Logging.Level,
		OutputFile: logFile,
		MaxSize:    50,
		MaxBackups: 10,
		MaxAge:     14,
		Compress:   true,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	log := logrus.WithField("component", "main")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := events.NewBus(cfg.Events.QueueSize)
	collector := metrics.NewCollector(0, 0)
	engine := alerting.NewEngine(bus)
	collector.AddObserver(engine.Observe)

	notifier := alerting.NewLogNotifier()
	engine.AddSubscriber(notifier.Notify)

	var table ordertable.Table
	if cfg.OrderTable.Dir != "" {
		bt, err := ordertable.OpenBadgerTable(cfg.OrderTable.Dir)
		if err != nil {
			log.Fatalf("open order table: %v", err)
		}
		table = bt
	} else {
		table = ordertable.NewMemoryTable()
	}

	orch := orchestrator.New(bus, collector, engine, table, orchestrator.Options{
		RoutingMode: routing.Mode(cfg.Routing.Mode),
		PoolWorkers: cfg.Pool.Workers,
		PoolBuffer:  cfg.Pool.Buffer,
		Supervisor: supervisor.Options{
			CheckInterval:        time.Duration(cfg.Supervisor.CheckIntervalSec) * time.Second,
			HeartbeatInterval:    time.Duration(cfg.Supervisor.HeartbeatIntervalSec) * time.Second,
			MaxReconnectAttempts: cfg.Supervisor.MaxReconnectAttempts,
		},
	})

	rules := cfg.AlertRules
	if len(rules) == 0 {
		rules = alerting.DefaultRules()
		log.Info("no alert rules configured, installing defaults")
	}
	if err := orch.Initialize(cfg.Descriptors(), rules); err != nil {
		log.Fatalf("initialize: %v", err)
	}
	if err := orch.Start(ctx); err != nil {
		log.Fatalf("start: %v", err)
	}

	results := orch.ConnectAll(ctx)
	for name, err := range results {
		if err != nil {
			log.Warnf("initial connect failed (supervisor will retry): gateway=%s err=%v", name, err)
		}
	}

	sd := shutdown.NewManager()

	if cfg.Ops.Enabled {
		opsSrv := ops.NewServer(orch, collector, engine)
		if err := opsSrv.Start(cfg.Ops.ListenAddr); err != nil {
			log.Fatalf("ops server: %v", err)
		}
		sd.OnShutdown(func(ctx context.Context, _ *sync.WaitGroup) {
			_ = opsSrv.Shutdown(ctx)
		})
	}

	if cfg.Debug.Enabled {
		if _, err := metrics.StartAsync(ctx, cfg.Debug.ListenAddr); err != nil {
			log.Warnf("debug server: %v", err)
		} else {
			log.Infof("debug server listening on %s", cfg.Debug.ListenAddr)
		}
	}

	sd.OnShutdown(func(ctx context.Context, _ *sync.WaitGroup) {
		orch.Shutdown(ctx)
	})

	log.Infof("gateway server up: gateways=%d routing=%s ops=%v",
		len(cfg.Gateways), cfg.Routing.Mode, cfg.Ops.Enabled)

	stopCh := make(chan os.Signal, 1)
	signal.Notify(stopCh, os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT)
	<-stopCh
	log.Info("signal received, shutting down")

	// Ordered teardown first, root cancel last: the orchestrator still needs
	// its worker pool to run the disconnect fan-out.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	sd.Shutdown(shutdownCtx)
	cancel()

	fmt.Println("gateway server stopped")
}
