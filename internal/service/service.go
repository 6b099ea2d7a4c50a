// Package service installs and controls the daemon as a system service:
// a systemd unit on Linux, a launchd agent on macOS.
package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/user"
)

// ErrUnsupported is returned on platforms without a service manager
// integration.
var ErrUnsupported = errors.New("service: no service manager support on this platform")

// Manager performs service lifecycle operations for the daemon itself.
type Manager interface {
	Install(ctx context.Context) error
	Uninstall(ctx context.Context) error
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// NewManager returns the platform's service manager.
func NewManager() (Manager, error) {
	return newManager()
}

// installContext resolves what every installer needs: the running binary's
// path and the invoking user's name.
type installContext struct {
	Executable string
	Username   string
}

func resolveInstallContext() (installContext, error) {
	exe, err := os.Executable()
	if err != nil {
		return installContext{}, fmt.Errorf("resolve executable path: %w", err)
	}
	u, err := user.Current()
	if err != nil {
		return installContext{}, fmt.Errorf("resolve current user: %w", err)
	}
	return installContext{Executable: exe, Username: u.Username}, nil
}
