// Package parallel runs compute kernels across a fixed set of goroutines.
package parallel

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// Pool is a set of worker goroutines executing row kernels.
//
// Every worker owns a queue. An idle worker steals from the other queues
// before blocking, so slow rows do not leave the rest of the pool idle.
//
// Pool is safe for concurrent use.
type Pool struct {
	workers int
	queues  []chan func()
	done    chan struct{}
	wg      sync.WaitGroup
	running atomic.Bool

	// mu is held shared by Run for the whole batch and exclusively by
	// Close, so no job is queued after the workers drained.
	mu sync.RWMutex
}

// NewPool starts a pool with the given number of workers.
// If workers is 0 or negative, GOMAXPROCS is used.
func NewPool(workers int) *Pool {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	depth := max(workers*4, 8)

	p := &Pool{
		workers: workers,
		queues:  make([]chan func(), workers),
		done:    make(chan struct{}),
	}
	for i := range p.queues {
		p.queues[i] = make(chan func(), depth)
	}
	p.running.Store(true)

	p.wg.Add(workers)
	for i := range workers {
		go p.loop(i)
	}
	return p
}

func (p *Pool) loop(id int) {
	defer p.wg.Done()
	own := p.queues[id]
	for {
		select {
		case <-p.done:
			drain(own)
			return
		case job := <-own:
			job()
			continue
		default:
		}

		if job := p.steal(id); job != nil {
			job()
			continue
		}

		select {
		case <-p.done:
			drain(own)
			return
		case job := <-own:
			job()
		}
	}
}

func drain(q chan func()) {
	for {
		select {
		case job := <-q:
			job()
		default:
			return
		}
	}
}

func (p *Pool) steal(id int) func() {
	for i := 1; i < p.workers; i++ {
		select {
		case job := <-p.queues[(id+i)%p.workers]:
			return job
		default:
		}
	}
	return nil
}

// Run executes every job and waits for all of them.
// On a closed pool the jobs run sequentially on the caller's goroutine.
// Jobs must not call Run on the same pool.
func (p *Pool) Run(jobs []func()) {
	if len(jobs) == 0 {
		return
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if !p.running.Load() {
		for _, job := range jobs {
			job()
		}
		return
	}

	var wg sync.WaitGroup
	wg.Add(len(jobs))
	for i, job := range jobs {
		p.queues[i%p.workers] <- func() {
			defer wg.Done()
			job()
		}
	}
	wg.Wait()
}

// Rows calls fn once for every row in [0, n), spreading contiguous batches
// of rows over the workers, and returns when all rows are done.
// Distinct rows never share output cells, so fn needs no locking as long
// as it only writes its own row.
func (p *Pool) Rows(n int, fn func(row int)) {
	if n <= 0 {
		return
	}
	batches := min(n, p.workers*2)
	size := (n + batches - 1) / batches

	jobs := make([]func(), 0, batches)
	for start := 0; start < n; start += size {
		end := min(start+size, n)
		jobs = append(jobs, func() {
			for r := start; r < end; r++ {
				fn(r)
			}
		})
	}
	p.Run(jobs)
}

// Close waits for running batches, then stops the workers.
// Close is safe to call multiple times.
func (p *Pool) Close() {
	p.mu.Lock()
	if !p.running.CompareAndSwap(true, false) {
		p.mu.Unlock()
		return
	}
	close(p.done)
	p.mu.Unlock()
	p.wg.Wait()
}

// Workers returns the number of workers.
func (p *Pool) Workers() int { return p.workers }

// Running reports whether the pool still dispatches to its workers.
func (p *Pool) Running() bool { return p.running.Load() }

// Queued returns an approximation of the number of jobs waiting.
func (p *Pool) Queued() int {
	var n int
	for _, q := range p.queues {
		n += len(q)
	}
	return n
}
