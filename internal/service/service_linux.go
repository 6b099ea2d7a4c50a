//go:build linux

package service

import (
	"context"
	"fmt"
	"os"
	"text/template"

	"github.com/coreos/go-systemd/v22/dbus"
)

const (
	unitName = "zephyr.service"
	unitPath = "/etc/systemd/system/" + unitName
)

var unitTemplate = template.Must(template.New("unit").Parse(`[Unit]
Description=Zephyr Task Scheduler
After=network.target

[Service]
Type=notify
User={{.Username}}
ExecStart={{.Executable}}
Restart=always
RestartSec=60

[Install]
WantedBy=multi-user.target
`))

type systemdManager struct{}

func newManager() (Manager, error) {
	return &systemdManager{}, nil
}

func (m *systemdManager) withConn(ctx context.Context, fn func(*dbus.Conn) error) error {
	conn, err := dbus.NewSystemConnectionContext(ctx)
	if err != nil {
		return fmt.Errorf("connect to systemd: %w", err)
	}
	defer conn.Close()
	return fn(conn)
}

func (m *systemdManager) Install(ctx context.Context) error {
	ic, err := resolveInstallContext()
	if err != nil {
		return err
	}
	f, err := os.OpenFile(unitPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("write unit file: %w", err)
	}
	if err := unitTemplate.Execute(f, ic); err != nil {
		f.Close()
		return fmt.Errorf("render unit file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("write unit file: %w", err)
	}

	return m.withConn(ctx, func(conn *dbus.Conn) error {
		if err := conn.ReloadContext(ctx); err != nil {
			return fmt.Errorf("reload systemd daemon: %w", err)
		}
		if _, _, err := conn.EnableUnitFilesContext(ctx, []string{unitName}, false, true); err != nil {
			return fmt.Errorf("enable %s: %w", unitName, err)
		}
		return nil
	})
}

func (m *systemdManager) Uninstall(ctx context.Context) error {
	err := m.withConn(ctx, func(conn *dbus.Conn) error {
		if _, err := conn.StopUnitContext(ctx, unitName, "replace", nil); err != nil {
			return fmt.Errorf("stop %s: %w", unitName, err)
		}
		if _, err := conn.DisableUnitFilesContext(ctx, []string{unitName}, false); err != nil {
			return fmt.Errorf("disable %s: %w", unitName, err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	if err := os.Remove(unitPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove unit file: %w", err)
	}
	return m.withConn(ctx, func(conn *dbus.Conn) error {
		if err := conn.ReloadContext(ctx); err != nil {
			return fmt.Errorf("reload systemd daemon: %w", err)
		}
		return nil
	})
}

func (m *systemdManager) Start(ctx context.Context) error {
	return m.withConn(ctx, func(conn *dbus.Conn) error {
		if _, err := conn.StartUnitContext(ctx, unitName, "replace", nil); err != nil {
			return fmt.Errorf("start %s: %w", unitName, err)
		}
		return nil
	})
}

func (m *systemdManager) Stop(ctx context.Context) error {
	return m.withConn(ctx, func(conn *dbus.Conn) error {
		if _, err := conn.StopUnitContext(ctx, unitName, "replace", nil); err != nil {
			return fmt.Errorf("stop %s: %w", unitName, err)
		}
		return nil
	})
}
