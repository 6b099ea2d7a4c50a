package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ztroop/zephyr/internal/app"
	"github.com/ztroop/zephyr/internal/service"
)

func main() {
	var (
		cfgPath   string
		statePath string
		resetSt   bool

		installSvc   bool
		uninstallSvc bool
		startSvc     bool
		stopSvc      bool
	)
	flag.StringVar(&cfgPath, "config", "~/.config/zephyr/zephyr.yaml", "path to config file (yaml or json)")
	flag.StringVar(&statePath, "state", "", "override state database path")
	flag.BoolVar(&resetSt, "reset-state", false, "drop persisted execution history before starting")
	flag.BoolVar(&installSvc, "install-service", false, "install and enable the system service, then exit")
	flag.BoolVar(&uninstallSvc, "uninstall-service", false, "stop and remove the system service, then exit")
	flag.BoolVar(&startSvc, "start-service", false, "start the installed system service, then exit")
	flag.BoolVar(&stopSvc, "stop-service", false, "stop the installed system service, then exit")
	flag.Parse()

	if installSvc || uninstallSvc || startSvc || stopSvc {
		os.Exit(runServiceOp(installSvc, uninstallSvc, startSvc, stopSvc))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := app.New(app.Options{
		ConfigPath: cfgPath,
		StatePath:  statePath,
		ResetState: resetSt,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}

	if err := a.Start(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "fatal start:", err)
		os.Exit(1)
	}

	<-ctx.Done()
	if err := a.Stop(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "shutdown:", err)
		os.Exit(1)
	}
}

func runServiceOp(install, uninstall, start, stop bool) int {
	mgr, err := service.NewManager()
	if err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		return 1
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	run := func(name string, op func(context.Context) error) int {
		if err := op(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "fatal: %s service: %v\n", name, err)
			return 1
		}
		fmt.Printf("%s: ok\n", name)
		return 0
	}
	switch {
	case install:
		return run("install", mgr.Install)
	case uninstall:
		return run("uninstall", mgr.Uninstall)
	case start:
		return run("start", mgr.Start)
	default:
		return run("stop", mgr.Stop)
	}
}
