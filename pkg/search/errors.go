package search

import (
	"errors"
	"fmt"
)

var (
	// ErrNoTargets is returned when a target load yields no addresses.
	ErrNoTargets = errors.New("requires at least 1 target")

	// ErrNotInitialized is returned by Run before Init succeeded.
	ErrNotInitialized = errors.New("finder not initialized")

	// ErrStrideSpace is returned when every random stride of the configured width
	// has already been drawn.
	ErrStrideSpace = errors.New("random stride space exhausted")
)

// ConfigError reports an invalid setup: missing or malformed targets, an unreadable
// target file, or bad keyspace/stride parameters. It is always raised before the
// search starts running.
type ConfigError struct {
	Msg string
	Err error
}

func (e *ConfigError) Error() string {
	if e.Err != nil {
		if e.Msg == "" {
			return e.Err.Error()
		}
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *ConfigError) Unwrap() error { return e.Err }

// InvalidAddressError names the first target address that failed validation.
type InvalidAddressError struct {
	Address string
	Err     error
}

func (e *InvalidAddressError) Error() string {
	return fmt.Sprintf("invalid address '%s'", e.Address)
}

func (e *InvalidAddressError) Unwrap() error { return e.Err }

// DeviceError wraps a failure reported by the device backend. It aborts the run.
type DeviceError struct {
	Op     string
	Device string
	Err    error
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Device, e.Op, e.Err)
}

func (e *DeviceError) Unwrap() error { return e.Err }

// IsConfigError reports whether err stems from invalid configuration.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

// IsDeviceError reports whether err stems from the device backend.
func IsDeviceError(err error) bool {
	var de *DeviceError
	return errors.As(err, &de)
}
