//go:build !opencl
// +build !opencl

// Package opencl exposes OpenCL GPUs as devices. Build with -tags opencl to enable it.
package opencl

import (
	"fmt"

	"github.com/Amr-9/KeyHunter/pkg/device"
	"github.com/Amr-9/KeyHunter/pkg/search"
)

// Backend is a stub for non-OpenCL builds.
type Backend struct{}

// NewBackend returns an error when OpenCL is not enabled.
func NewBackend() (*Backend, error) {
	return nil, fmt.Errorf("GPU support not compiled. Build with: go build -tags opencl")
}

// Type returns device.OpenCL.
func (b *Backend) Type() device.Type { return device.OpenCL }

// Devices returns no devices.
func (b *Backend) Devices() ([]device.Physical, error) { return nil, nil }

// Open always fails.
func (b *Backend) Open(int, device.Options) (search.Device, error) {
	return nil, fmt.Errorf("GPU support not compiled")
}
