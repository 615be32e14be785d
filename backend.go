package cones

import (
	"errors"
	"sync"

	"github.com/gogpu/cones/internal/compute"
)

// Backend executes the compute stages of the pipeline.
//
// The CPU backend is built in. GPU backends are provided by backend
// packages and opted in to via blank import:
//
//	import _ "github.com/gogpu/cones/gpu" // enables GPU compute
type Backend = compute.Backend

// ErrNoBackend is returned when a pipeline is created without a backend.
var ErrNoBackend = errors.New("cones: no compute backend")

// initializer is implemented by backends that acquire resources on
// registration.
type initializer interface {
	Init() error
}

// DeviceProviderAware is an optional interface for backends that can share
// a GPU device with an external provider (e.g., a gogpu window).
type DeviceProviderAware interface {
	SetDeviceProvider(provider any) error
}

var (
	backendMu  sync.RWMutex
	registered Backend
)

// RegisterBackend registers the backend used by controllers created
// without WithBackend.
//
// Only one backend can be registered. Subsequent calls replace the previous
// one, which is closed. If the backend has an Init method it is called
// first; when Init fails the backend is not registered and the error is
// returned.
func RegisterBackend(b Backend) error {
	if b == nil {
		return errors.New("cones: backend must not be nil")
	}
	if in, ok := b.(initializer); ok {
		if err := in.Init(); err != nil {
			return err
		}
	}
	propagateLogger(b, Logger())

	backendMu.Lock()
	old := registered
	registered = b
	backendMu.Unlock()
	if old != nil && old != b {
		old.Close()
	}
	Logger().Info("cones: backend registered", "backend", b.Name())
	return nil
}

// RegisteredBackend returns the registered backend, or nil if none.
func RegisteredBackend() Backend {
	backendMu.RLock()
	b := registered
	backendMu.RUnlock()
	return b
}

// SetBackendDeviceProvider passes a device provider to the registered
// backend, enabling GPU device sharing. If no backend is registered or it
// does not support device sharing, this is a no-op.
func SetBackendDeviceProvider(provider any) error {
	b := RegisteredBackend()
	if b == nil {
		return nil
	}
	if dpa, ok := b.(DeviceProviderAware); ok {
		return dpa.SetDeviceProvider(provider)
	}
	return nil
}
