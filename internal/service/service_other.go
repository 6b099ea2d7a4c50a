//go:build !linux && !darwin

package service

func newManager() (Manager, error) {
	return nil, ErrUnsupported
}
