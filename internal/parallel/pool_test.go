package parallel

import (
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestPool_Workers(t *testing.T) {
	tests := []struct {
		name    string
		workers int
		want    int
	}{
		{"explicit", 4, 4},
		{"zero", 0, runtime.GOMAXPROCS(0)},
		{"negative", -3, runtime.GOMAXPROCS(0)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewPool(tt.workers)
			defer p.Close()
			if p.Workers() != tt.want {
				t.Errorf("Workers() = %d, want %d", p.Workers(), tt.want)
			}
			if !p.Running() {
				t.Error("pool not running after NewPool")
			}
		})
	}
}

func TestPool_Run(t *testing.T) {
	p := NewPool(4)
	defer p.Close()

	var n atomic.Int64
	jobs := make([]func(), 100)
	for i := range jobs {
		jobs[i] = func() { n.Add(1) }
	}
	p.Run(jobs)
	if n.Load() != 100 {
		t.Errorf("ran %d jobs, want 100", n.Load())
	}

	p.Run(nil)
}

func TestPool_Rows(t *testing.T) {
	for _, rows := range []int{0, 1, 3, 7, 64, 1000} {
		p := NewPool(3)
		hits := make([]int32, rows)
		p.Rows(rows, func(r int) { atomic.AddInt32(&hits[r], 1) })
		p.Close()
		for r, h := range hits {
			if h != 1 {
				t.Fatalf("rows=%d: row %d visited %d times", rows, r, h)
			}
		}
	}
}

func TestPool_RowsAfterClose(t *testing.T) {
	p := NewPool(2)
	p.Close()
	p.Close()
	if p.Running() {
		t.Error("Running() after Close")
	}

	var n atomic.Int64
	p.Rows(10, func(int) { n.Add(1) })
	if n.Load() != 10 {
		t.Errorf("closed pool ran %d rows, want 10", n.Load())
	}
}

func TestPool_ConcurrentCallers(t *testing.T) {
	p := NewPool(4)
	defer p.Close()

	var n atomic.Int64
	done := make(chan struct{})
	for range 8 {
		go func() {
			p.Rows(50, func(int) { n.Add(1) })
			done <- struct{}{}
		}()
	}
	for range 8 {
		<-done
	}
	if n.Load() != 400 {
		t.Errorf("ran %d rows, want 400", n.Load())
	}
	if q := p.Queued(); q != 0 {
		t.Errorf("Queued() = %d after all callers returned", q)
	}
}

func TestPool_RunRacingClose(t *testing.T) {
	for range 50 {
		p := NewPool(4)
		var ran atomic.Int64
		var wg sync.WaitGroup
		for range 4 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				p.Rows(64, func(int) { ran.Add(1) })
			}()
		}
		go p.Close()

		done := make(chan struct{})
		go func() {
			wg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatal("Run did not return while the pool was closing")
		}
		if got := ran.Load(); got != 4*64 {
			t.Fatalf("ran %d rows, want %d", got, 4*64)
		}
		p.Close()
	}
}
