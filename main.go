package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/didac-crst/fritzbox-ipv4-watchdog/internal/api"
	"github.com/didac-crst/fritzbox-ipv4-watchdog/internal/config"
	"github.com/didac-crst/fritzbox-ipv4-watchdog/internal/history"
	"github.com/didac-crst/fritzbox-ipv4-watchdog/internal/logging"
	"github.com/didac-crst/fritzbox-ipv4-watchdog/internal/tr064"
	"github.com/didac-crst/fritzbox-ipv4-watchdog/internal/watchdog"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		return 1
	}

	log, closeLog := logging.Init(cfg)
	defer closeLog()

	if cfg.Password == "" {
		logging.Critical(log, "FRITZ_PASSWORD is not set - exiting.")
		return 1
	}

	runID := uuid.NewString()
	log.Info("watchdog starting",
		"host", cfg.Host,
		"user", cfg.User,
		"service", cfg.Service,
		"poll", cfg.PollInterval(),
		"grace_cycles", cfg.MaxBadCycles,
		"run_id", runID)

	hist := history.Open(cfg.HistoryDB, runID, cfg.HistoryDays, log)
	defer hist.Close()

	connector := watchdog.ConnectorFunc(func(ctx context.Context) (watchdog.Session, error) {
		client, err := tr064.Connect(ctx, tr064.Config{
			Host:     cfg.Host,
			Port:     cfg.Port,
			User:     cfg.User,
			Password: cfg.Password,
			Timeout:  cfg.SOAPTimeout(),
		})
		if err != nil {
			return nil, err
		}
		if !client.HasService(cfg.Service) {
			log.Warn("router does not advertise the target service",
				"service", cfg.Service,
				"available", client.Services())
		}
		return client, nil
	})

	life := watchdog.NewLifecycle(connector, cfg.RetryInterval(), log)
	healer := watchdog.NewHealer(cfg.Service, cfg.SettleDelay(), log)
	wd := watchdog.New(watchdog.Config{
		Service:      cfg.Service,
		PollInterval: cfg.PollInterval(),
		GraceCycles:  cfg.MaxBadCycles,
		LogCadence:   cfg.LogOnCycle,
	}, life, healer, hist, runID, log)

	sched := startScheduler(cfg, wd, hist, log)
	defer sched.Stop()

	var apiSrv *api.Server
	if cfg.StatusAddr != "" {
		apiSrv = api.New(api.Config{
			Addr:     cfg.StatusAddr,
			AuthUser: cfg.StatusUser,
			AuthHash: cfg.StatusPassHash,
			LogPath:  cfg.LogPath(),
		}, wd, hist, log)
		apiSrv.Start()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err = wd.Run(ctx)

	if apiSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := apiSrv.Shutdown(shutdownCtx); err != nil {
			log.Error("status API shutdown", "error", err)
		}
	}

	if ctx.Err() != nil {
		log.Info("Watchdog interrupted - exiting.")
		return 0
	}
	if err != nil {
		logging.Critical(log, "watchdog stopped unexpectedly", "error", err)
		return 1
	}
	return 0
}
