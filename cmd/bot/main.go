package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sourcegraph/conc"
	"go.uber.org/zap"

	"TriggerBot/internal/app"
	"TriggerBot/internal/config"
	"TriggerBot/internal/logging"
	"TriggerBot/internal/scheduler"
)

func main() {
	cfgPath := "configs/config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		cfgPath = v
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	log, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := cfg.Validate(); err != nil {
		log.Fatal("config validation", zap.Error(err))
	}
	if err := run(cfg, log); err != nil {
		log.Fatal("bot stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	log.Info("triggerbot starting", zap.String("pair", cfg.Pair), zap.Bool("dry_run", cfg.DryRun))
	a, err := app.Build(cfg, log, nil)
	if err != nil {
		return err
	}
	defer a.Close()
	log.Info("exchange ready", zap.String("exchange", a.Exchange.Name()))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sched, err := scheduler.NewScheduler(ctx, cfg.MonitorSettings(), scheduler.Deps{
		Cycle:    a.Coordinator,
		Exchange: a.Exchange,
		Ledger:   a.Ledger,
		Store:    a.Store,
		Recorder: a.Recorder,
		Notifier: a.Notifier,
		Log:      log,
	})
	if err != nil {
		return err
	}
	if err := sched.RegisterAll(cfg.Schedule.CycleCron, cfg.Schedule.MonitorCron); err != nil {
		return err
	}
	sched.Start()
	defer sched.Stop()

	var wg conc.WaitGroup
	if cfg.Metrics.Listen != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", a.Metrics.Handler())
		srv := &http.Server{Addr: cfg.Metrics.Listen, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		wg.Go(func() {
			log.Info("metrics endpoint listening", zap.String("addr", cfg.Metrics.Listen))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("metrics endpoint failed", zap.Error(err))
			}
		})
		wg.Go(func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		})
	}
	if a.Telegram != nil {
		wg.Go(func() { a.Telegram.StartPolling(ctx, sched.HandleCommand) })
		log.Info("telegram polling started")
	}
	if cfg.Schedule.RunOnStart {
		log.Info("run_on_start enabled, executing a cycle now")
		wg.Go(func() {
			if err := sched.Monitor(ctx); err != nil {
				log.Warn("startup monitor run skipped", zap.Error(err))
			}
			sched.RunCycleNow()
		})
	}

	log.Info("triggerbot running, press Ctrl+C to stop")
	<-ctx.Done()
	log.Info("shutdown signal received, stopping")
	wg.Wait()
	return nil
}
