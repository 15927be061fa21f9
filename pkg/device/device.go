// Package device enumerates the compute devices a search can run on and opens them
// as search.Device implementations. Backends (CPU, OpenCL) register with a Manager,
// which assigns stable logical ids across all of them.
package device

import (
	"github.com/Amr-9/KeyHunter/pkg/search"
)

// Type identifies the compute API behind a device.
type Type int

const (
	CUDA   Type = iota // NVIDIA CUDA
	OpenCL             // OpenCL (any vendor)
	CPU                // host processor
)

// String returns the API name.
func (t Type) String() string {
	switch t {
	case CUDA:
		return "CUDA"
	case OpenCL:
		return "OpenCL"
	case CPU:
		return "CPU"
	default:
		return "Unknown"
	}
}

// Physical describes a device as its backend sees it.
type Physical struct {
	ID           int    // backend-specific id, passed back to Open
	Name         string // human readable name
	Memory       uint64 // total memory in bytes
	ComputeUnits int    // multiprocessors / compute units / cores

	// ListOnly marks a device that can be enumerated but has no search
	// implementation in this build.
	ListOnly bool
}

// Info describes a device as the Manager exposes it.
type Info struct {
	ID           int // logical id, unique across backends
	PhysicalID   int
	Name         string
	Type         Type
	Memory       uint64
	ComputeUnits int
	ListOnly     bool
}

// Options tune a device when it is opened. Zero values select backend defaults.
type Options struct {
	Workers int // host goroutines driving the device
	Points  int // keys evaluated per step
}

// Backend enumerates and opens devices of one Type.
type Backend interface {
	// Type returns the compute API this backend drives.
	Type() Type

	// Devices lists the physical devices available to this backend.
	Devices() ([]Physical, error)

	// Open prepares the physical device for a search.
	Open(physicalID int, opts Options) (search.Device, error)
}
