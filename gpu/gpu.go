//go:build !nogpu

// Package gpu registers the GPU compute backend.
//
// Import this package to run the cone pipeline stages (positions, bounding
// spheres, raw normals, normals) as wgpu/hal compute passes on a Vulkan
// device.
//
// If GPU initialization fails (no Vulkan device available), the
// registration is skipped with a warning and controllers fall back to the
// CPU backend.
//
// Usage:
//
//	import _ "github.com/gogpu/cones/gpu" // enable GPU compute
package gpu

import (
	"github.com/gogpu/gpucontext"

	"github.com/gogpu/cones"
	gpuimpl "github.com/gogpu/cones/internal/gpu"
)

func init() {
	if err := cones.RegisterBackend(&gpuimpl.Backend{}); err != nil {
		cones.Logger().Warn("GPU compute backend not available, using CPU", "err", err)
	}
}

// SetDeviceProvider makes the GPU backend share the device of an external
// provider (e.g., a gogpu window) instead of opening its own.
//
// The provider must also expose HalDevice() any and HalQueue() any
// returning wgpu/hal types. Call it before creating controllers.
func SetDeviceProvider(provider gpucontext.DeviceProvider) error {
	return cones.SetBackendDeviceProvider(provider)
}
