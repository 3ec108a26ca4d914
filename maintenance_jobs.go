// maintenance_jobs.go wires the cron scheduler: a nightly prune of the
// history database and, when configured, a scheduled forced reconnect so
// the address rotates while nobody is using the line.

package main

import (
	"log/slog"

	"github.com/robfig/cron/v3"

	"github.com/didac-crst/fritzbox-ipv4-watchdog/internal/config"
	"github.com/didac-crst/fritzbox-ipv4-watchdog/internal/history"
	"github.com/didac-crst/fritzbox-ipv4-watchdog/internal/watchdog"
)

const historyPruneSchedule = "10 3 * * *"

// startScheduler registers the maintenance jobs and starts the scheduler.
// A bad reconnect schedule is reported and skipped; the watchdog runs
// regardless.
func startScheduler(cfg config.Settings, wd *watchdog.Watchdog, hist *history.Store, log *slog.Logger) *cron.Cron {
	c := cron.New()

	if _, err := c.AddFunc(historyPruneSchedule, hist.Prune); err != nil {
		log.Error("cannot schedule history prune", "error", err)
	}

	if cfg.ReconnectCron != "" {
		if _, err := c.AddFunc(cfg.ReconnectCron, func() { wd.RequestReconnect("schedule") }); err != nil {
			log.Error("invalid reconnect schedule, skipping",
				"schedule", cfg.ReconnectCron, "error", err)
		} else {
			log.Info("scheduled reconnect enabled", "schedule", cfg.ReconnectCron)
		}
	}

	c.Start()
	return c
}
