package cones

import (
	"errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/gogpu/cones/internal/compute"
)

// mockBackend is a CPU backend with registration hooks.
type mockBackend struct {
	*compute.CPUBackend
	name     string
	initErr  error
	provider any
	logger   *slog.Logger

	mu     sync.Mutex
	closed bool
}

func newMockBackend(name string) *mockBackend {
	return &mockBackend{CPUBackend: compute.NewCPUBackend(1), name: name}
}

func (m *mockBackend) Name() string { return m.name }

func (m *mockBackend) Init() error { return m.initErr }

func (m *mockBackend) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closed = true
		m.CPUBackend.Close()
	}
}

func (m *mockBackend) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func (m *mockBackend) SetLogger(l *slog.Logger) { m.logger = l }

func (m *mockBackend) SetDeviceProvider(provider any) error {
	m.provider = provider
	return nil
}

// resetBackend clears the registered backend between tests.
func resetBackend() {
	backendMu.Lock()
	registered = nil
	backendMu.Unlock()
}

func TestRegisterBackendNil(t *testing.T) {
	resetBackend()

	if err := RegisterBackend(nil); err == nil {
		t.Fatal("expected error when registering nil backend")
	}
	if RegisteredBackend() != nil {
		t.Error("backend should remain nil after failed registration")
	}
}

func TestRegisterBackendInitError(t *testing.T) {
	resetBackend()
	t.Cleanup(resetBackend)

	initErr := errors.New("GPU init failed")
	mock := newMockBackend("failing")
	defer mock.Close()
	mock.initErr = initErr

	if err := RegisterBackend(mock); !errors.Is(err, initErr) {
		t.Fatalf("RegisterBackend() = %v, want %v", err, initErr)
	}
	if RegisteredBackend() != nil {
		t.Error("backend registered despite Init error")
	}
}

func TestRegisterBackendReplaces(t *testing.T) {
	resetBackend()
	t.Cleanup(resetBackend)

	first := newMockBackend("first")
	second := newMockBackend("second")
	defer second.Close()

	if err := RegisterBackend(first); err != nil {
		t.Fatalf("RegisterBackend(first) = %v", err)
	}
	if err := RegisterBackend(second); err != nil {
		t.Fatalf("RegisterBackend(second) = %v", err)
	}
	if RegisteredBackend() != second {
		t.Error("RegisteredBackend() is not the latest backend")
	}
	if !first.isClosed() {
		t.Error("replaced backend was not closed")
	}
	if second.isClosed() {
		t.Error("registered backend was closed")
	}
}

func TestControllerUsesRegisteredBackend(t *testing.T) {
	resetBackend()
	t.Cleanup(resetBackend)

	mock := newMockBackend("mock")
	defer mock.Close()
	if err := RegisterBackend(mock); err != nil {
		t.Fatalf("RegisterBackend() = %v", err)
	}

	c := NewController()
	if c.Backend() != Backend(mock) {
		t.Errorf("controller backend = %v, want the registered one", c.Backend().Name())
	}
	lookup, bboxes := testLookup()
	if _, err := c.Load(lookup, bboxes); err != nil {
		t.Fatalf("Load: %v", err)
	}
	c.Close()
	if mock.isClosed() {
		t.Error("controller closed a backend it does not own")
	}
}

func TestSetBackendDeviceProvider(t *testing.T) {
	resetBackend()
	t.Cleanup(resetBackend)

	if err := SetBackendDeviceProvider("provider"); err != nil {
		t.Errorf("SetBackendDeviceProvider without backend = %v, want nil", err)
	}

	mock := newMockBackend("mock")
	defer mock.Close()
	if err := RegisterBackend(mock); err != nil {
		t.Fatalf("RegisterBackend() = %v", err)
	}
	if err := SetBackendDeviceProvider("provider"); err != nil {
		t.Fatalf("SetBackendDeviceProvider = %v", err)
	}
	if mock.provider != "provider" {
		t.Errorf("provider = %v, want passed through", mock.provider)
	}
}

func TestNewPipelineStateNilBackend(t *testing.T) {
	if _, err := NewPipelineState(nil); !errors.Is(err, ErrNoBackend) {
		t.Errorf("NewPipelineState(nil) = %v, want ErrNoBackend", err)
	}
}

func TestPipelineStateDispose(t *testing.T) {
	cpu := compute.NewCPUBackend(1)
	defer cpu.Close()
	s, err := NewPipelineState(cpu)
	if err != nil {
		t.Fatalf("NewPipelineState: %v", err)
	}
	lookup, bboxes := testLookup()
	cones, err := s.Rebuild(lookup, bboxes, DefaultConfig(), nil)
	if err != nil {
		t.Fatalf("Rebuild: %v", err)
	}
	if len(cones) != 2 || s.Topology() == nil {
		t.Fatalf("Rebuild returned %d cones, topology %v", len(cones), s.Topology())
	}
	// Year 0 has no data: every cone is hidden.
	if got := len(s.WithoutDisplay()); got != 2 {
		t.Errorf("WithoutDisplay() has %d cones in year 0, want 2", got)
	}

	s.Dispose()
	s.Dispose()
	if _, err := s.Rebuild(lookup, bboxes, DefaultConfig(), nil); !errors.Is(err, ErrDisposed) {
		t.Errorf("Rebuild after Dispose = %v, want ErrDisposed", err)
	}
	if _, err := s.run(DefaultConfig(), true); !errors.Is(err, ErrDisposed) {
		t.Errorf("run after Dispose = %v, want ErrDisposed", err)
	}
}
