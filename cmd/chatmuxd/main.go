package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/chatmux/chatmux/config"
	"github.com/chatmux/chatmux/internal/app"
	"github.com/chatmux/chatmux/internal/outbox"
	"github.com/chatmux/chatmux/internal/realtime"
	"github.com/chatmux/chatmux/internal/store"
	"github.com/chatmux/chatmux/internal/wabridge"
)

var (
	BuildVersion string

	h       = flag.Bool("h", false, "help usage")
	showVer = flag.Bool("v", false, "show version")
	cfile   = flag.String("c", "/etc/chatmux.yml", "config file")
	initdb  = flag.Bool("initdb", false, "drop and recreate the schema, then exit")
)

func printHelp() {
	if *h {
		ustr := fmt.Sprintf("chatmuxd version: %s, usage: chatmuxd -h\nOptions:", BuildVersion)
		fmt.Fprintf(os.Stderr, "%s\n", ustr)
		flag.PrintDefaults()
		os.Exit(0)
	}
}

func main() {
	flag.Parse()
	printHelp()
	if *showVer {
		fmt.Println(BuildVersion)
		os.Exit(0)
	}

	cfg := config.LoadConfig(*cfile)
	application := app.NewApplication(cfg)
	application.Init(cfg)
	defer application.Release()

	if *initdb {
		application.InitDb()
		zap.L().Info("database initialized")
		return
	}

	// Settings records override the static file for the runtime-tunable
	// knobs, so they can be changed without a redeploy.
	if v := application.GetSettingsInt64Value("bridge", "ReconnectDelaySec"); v > 0 {
		cfg.Bridge.ReconnectDelay = time.Duration(v) * time.Second
	}
	if v := application.GetSettingsInt64Value("outbox", "LockStaleSec"); v > 0 {
		cfg.Outbox.LockStale = time.Duration(v) * time.Second
	}

	repos := store.NewRepositories(application.DB())
	cast := realtime.NewService(cfg, application)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	creds, err := wabridge.NewCredentialStore(ctx, application.DB(), cfg.Database.Type)
	if err != nil {
		zap.L().Fatal("credential store init failed", zap.Error(err))
	}

	registry := wabridge.NewRegistry()
	resolver := wabridge.NewResolver(repos.Contacts)
	ingestor := wabridge.NewIngestor(repos, resolver, cast)
	deps := wabridge.ManagerDeps{
		Dialer:           wabridge.NewWhatsmeowDialer(creds),
		Sessions:         repos.Sessions,
		Ingest:           ingestor,
		Cast:             cast,
		ReconnectDelay:   cfg.Bridge.ReconnectDelay,
		HandshakeTimeout: cfg.Bridge.HandshakeTimeout,
	}

	queue, err := outbox.Open(path.Join(cfg.System.Workdir, "outbox.db"))
	if err != nil {
		zap.L().Fatal("outbox open failed", zap.Error(err))
	}
	consumer, err := outbox.NewConsumer(queue, registry, repos, cfg.Outbox.Concurrency)
	if err != nil {
		zap.L().Fatal("outbox consumer init failed", zap.Error(err))
	}
	sweeper := outbox.NewSweeper(registry, repos, cfg.Outbox.SweepWindow, cfg.Outbox.LockStale, cfg.Outbox.SweepBatch)

	reconciler := wabridge.NewReconciler(repos.Sessions, registry, deps)
	reconciler.AfterCycle = sweeper.Sweep
	if err := reconciler.Start(application.Scheduler(), cfg.Bridge.ReconcileInterval); err != nil {
		zap.L().Fatal("reconciler schedule failed", zap.Error(err))
	}

	consumer.Start()
	zap.L().Info("chatmux started",
		zap.String("version", BuildVersion),
		zap.String("workdir", cfg.System.Workdir),
		zap.String("database", cfg.Database.Type))

	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		<-ctx.Done()
		zap.L().Info("shutting down")
		consumer.Stop()
		reconciler.Shutdown()
		if err := queue.Close(); err != nil {
			zap.L().Error("outbox close failed", zap.Error(err))
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		zap.L().Error("shutdown error", zap.Error(err))
	}
}
