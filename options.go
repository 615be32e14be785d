package cones

// DefaultDebounce is the number of ticks a limits change waits before the
// pipeline is re-run.
const DefaultDebounce = 10

// Option configures a Controller during creation.
//
// Example:
//
//	// CPU backend on four workers
//	ctrl := cones.NewController(cones.WithWorkers(4))
//
//	// Explicit backend and renderer
//	ctrl := cones.NewController(cones.WithBackend(b), cones.WithRenderer(r))
type Option func(*options)

// options holds optional configuration for Controller creation.
type options struct {
	backend  Backend
	workers  int
	debounce int
	renderer Renderer
	params   *Params
}

// defaultOptions returns the default controller options.
func defaultOptions() options {
	return options{
		backend:  nil, // registered backend, else CPU
		workers:  0,   // GOMAXPROCS
		debounce: DefaultDebounce,
	}
}

// WithBackend sets the compute backend. The controller does not close a
// backend it was given.
func WithBackend(b Backend) Option {
	return func(o *options) {
		o.backend = b
	}
}

// WithWorkers sets the worker count of the CPU backend created when no
// backend is given or registered. n <= 0 uses GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(o *options) {
		o.workers = n
	}
}

// WithDebounce sets how many ticks must follow a limits change before the
// pipeline is re-run. Negative values are treated as zero.
func WithDebounce(ticks int) Option {
	return func(o *options) {
		o.debounce = max(ticks, 0)
	}
}

// WithRenderer sets the renderer receiving cone geometry.
func WithRenderer(r Renderer) Option {
	return func(o *options) {
		o.renderer = r
	}
}

// WithParams shares an existing parameter store with the controller.
func WithParams(p *Params) Option {
	return func(o *options) {
		o.params = p
	}
}
