//go:build darwin

package service

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"text/template"
)

const launchdLabel = "com.zephyr.scheduler"

var plistTemplate = template.Must(template.New("plist").Parse(`<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
    <key>Label</key>
    <string>com.zephyr.scheduler</string>
    <key>ProgramArguments</key>
    <array>
        <string>{{.Executable}}</string>
    </array>
    <key>RunAtLoad</key>
    <true/>
    <key>KeepAlive</key>
    <true/>
    <key>StandardErrorPath</key>
    <string>/Users/{{.Username}}/Library/Logs/zephyr.log</string>
    <key>StandardOutPath</key>
    <string>/Users/{{.Username}}/Library/Logs/zephyr.log</string>
</dict>
</plist>
`))

type launchdManager struct{}

func newManager() (Manager, error) {
	return &launchdManager{}, nil
}

func plistPath(username string) string {
	return filepath.Join("/Users", username, "Library/LaunchAgents", launchdLabel+".plist")
}

func launchctl(ctx context.Context, args ...string) error {
	out, err := exec.CommandContext(ctx, "launchctl", args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("launchctl %s: %w: %s", args[0], err, out)
	}
	return nil
}

func (m *launchdManager) Install(ctx context.Context) error {
	ic, err := resolveInstallContext()
	if err != nil {
		return err
	}
	path := plistPath(ic.Username)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("write plist: %w", err)
	}
	if err := plistTemplate.Execute(f, ic); err != nil {
		f.Close()
		return fmt.Errorf("render plist: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("write plist: %w", err)
	}
	return launchctl(ctx, "load", path)
}

func (m *launchdManager) Uninstall(ctx context.Context) error {
	ic, err := resolveInstallContext()
	if err != nil {
		return err
	}
	path := plistPath(ic.Username)
	if err := launchctl(ctx, "unload", path); err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove plist: %w", err)
	}
	return nil
}

func (m *launchdManager) Start(ctx context.Context) error {
	return launchctl(ctx, "start", launchdLabel)
}

func (m *launchdManager) Stop(ctx context.Context) error {
	return launchctl(ctx, "stop", launchdLabel)
}
