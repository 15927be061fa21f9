//go:build opencl
// +build opencl

package opencl

/*
#cgo CFLAGS: -I${SRCDIR}/../../../deps/opencl-headers
#cgo windows LDFLAGS: -L${SRCDIR}/../../../deps/lib -lOpenCL
#cgo linux LDFLAGS: -lOpenCL
#cgo darwin LDFLAGS: -framework OpenCL

#ifdef __APPLE__
#include <OpenCL/opencl.h>
#else
#include <CL/cl.h>
#endif

#include <stdlib.h>
#include <string.h>
*/
import "C"

import (
	"fmt"
	"strings"
	"unsafe"

	"github.com/Amr-9/KeyHunter/pkg/device"
	"github.com/Amr-9/KeyHunter/pkg/search"
)

// Backend enumerates OpenCL GPU devices on every platform.
type Backend struct{}

// NewBackend returns the OpenCL backend.
func NewBackend() (*Backend, error) {
	var numPlatforms C.cl_uint
	if C.clGetPlatformIDs(0, nil, &numPlatforms) != C.CL_SUCCESS {
		return nil, fmt.Errorf("no OpenCL platforms")
	}
	return &Backend{}, nil
}

// Type returns device.OpenCL.
func (b *Backend) Type() device.Type { return device.OpenCL }

// Devices lists GPU devices. Physical ids are platform<<16 | index.
func (b *Backend) Devices() ([]device.Physical, error) {
	var numPlatforms C.cl_uint
	if ret := C.clGetPlatformIDs(0, nil, &numPlatforms); ret != C.CL_SUCCESS {
		return nil, fmt.Errorf("clGetPlatformIDs failed: %d", ret)
	}
	if numPlatforms == 0 {
		return nil, nil
	}
	platforms := make([]C.cl_platform_id, numPlatforms)
	C.clGetPlatformIDs(numPlatforms, &platforms[0], nil)

	var out []device.Physical
	for p, platform := range platforms {
		var numDevices C.cl_uint
		if C.clGetDeviceIDs(platform, C.CL_DEVICE_TYPE_GPU, 0, nil, &numDevices) != C.CL_SUCCESS || numDevices == 0 {
			continue
		}
		ids := make([]C.cl_device_id, numDevices)
		C.clGetDeviceIDs(platform, C.CL_DEVICE_TYPE_GPU, numDevices, &ids[0], nil)

		for i, id := range ids {
			var mem C.cl_ulong
			C.clGetDeviceInfo(id, C.CL_DEVICE_GLOBAL_MEM_SIZE, C.size_t(unsafe.Sizeof(mem)), unsafe.Pointer(&mem), nil)
			var units C.cl_uint
			C.clGetDeviceInfo(id, C.CL_DEVICE_MAX_COMPUTE_UNITS, C.size_t(unsafe.Sizeof(units)), unsafe.Pointer(&units), nil)

			out = append(out, device.Physical{
				ID:           p<<16 | i,
				Name:         deviceName(id),
				Memory:       uint64(mem),
				ComputeUnits: int(units),
				ListOnly:     true,
			})
		}
	}
	return out, nil
}

func deviceName(id C.cl_device_id) string {
	var size C.size_t
	if C.clGetDeviceInfo(id, C.CL_DEVICE_NAME, 0, nil, &size) != C.CL_SUCCESS || size == 0 {
		return "OpenCL device"
	}
	buf := make([]byte, size)
	C.clGetDeviceInfo(id, C.CL_DEVICE_NAME, size, unsafe.Pointer(&buf[0]), nil)
	return strings.TrimRight(string(buf), "\x00 ")
}

// Open reports that no stepping kernel ships with this build.
func (b *Backend) Open(physicalID int, _ device.Options) (search.Device, error) {
	return nil, fmt.Errorf("device %d: no OpenCL stepping kernel bundled", physicalID)
}
