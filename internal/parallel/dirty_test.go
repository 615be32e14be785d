package parallel

import (
	"sync"
	"testing"
)

const (
	bitA uint32 = 1 << iota
	bitB
	bitC
)

func TestFlags(t *testing.T) {
	var f Flags
	if f.Has(bitA | bitB | bitC) {
		t.Fatal("zero Flags not empty")
	}

	f.Mark(bitA | bitC)
	if !f.Has(bitA) || f.Has(bitB) || !f.Has(bitC) {
		t.Errorf("Load() = %b after Mark", f.Load())
	}

	f.Clear(bitA)
	if f.Has(bitA) || !f.Has(bitC) {
		t.Errorf("Load() = %b after Clear", f.Load())
	}

	if !f.Take(bitC) {
		t.Error("Take(bitC) = false, want true")
	}
	if f.Take(bitC) {
		t.Error("second Take(bitC) = true")
	}

	f.Mark(bitB)
	f.Reset()
	if f.Load() != 0 {
		t.Errorf("Load() = %b after Reset", f.Load())
	}
}

func TestFlags_ConcurrentTake(t *testing.T) {
	var f Flags
	f.Mark(bitA)

	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := 0
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if f.Take(bitA) {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if winners != 1 {
		t.Errorf("%d goroutines took the bit, want 1", winners)
	}
}
