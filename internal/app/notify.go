package app

import (
	"context"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"github.com/ztroop/zephyr/pkg/logx"
)

// Service-manager integration is best effort: every sd_notify call is a
// no-op when NOTIFY_SOCKET is not set, so interactive runs behave
// identically.

func (a *App) notifyReady(ctx context.Context) {
	if _, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		a.log.Debug("sd_notify ready failed", logx.Err(err))
	}
	a.notifyStatus("scheduling")

	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil || interval == 0 {
		return
	}
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.watchdogLoop(ctx, interval)
	}()
}

// watchdogLoop pets the systemd watchdog at half the configured interval.
func (a *App) watchdogLoop(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval / 2)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if _, err := daemon.SdNotify(false, daemon.SdNotifyWatchdog); err != nil {
				a.log.Debug("sd_notify watchdog failed", logx.Err(err))
			}
		}
	}
}

func (a *App) notifyStopping() {
	if _, err := daemon.SdNotify(false, daemon.SdNotifyStopping); err != nil {
		a.log.Debug("sd_notify stopping failed", logx.Err(err))
	}
}

func (a *App) notifyStatus(status string) {
	if _, err := daemon.SdNotify(false, "STATUS="+status); err != nil {
		a.log.Debug("sd_notify status failed", logx.Err(err))
	}
}
