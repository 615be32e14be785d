package parallel

import "sync/atomic"

// Flags is a lock-free set of dirty bits.
// The zero value is an empty set ready to use.
type Flags struct {
	bits atomic.Uint32
}

// Mark sets every bit of mask.
func (f *Flags) Mark(mask uint32) { f.bits.Or(mask) }

// Clear unsets every bit of mask.
func (f *Flags) Clear(mask uint32) { f.bits.And(^mask) }

// Has reports whether any bit of mask is set.
func (f *Flags) Has(mask uint32) bool { return f.bits.Load()&mask != 0 }

// Take clears the bits of mask and reports whether any of them was set.
func (f *Flags) Take(mask uint32) bool { return f.bits.And(^mask)&mask != 0 }

// Load returns the whole set.
func (f *Flags) Load() uint32 { return f.bits.Load() }

// Reset clears every bit.
func (f *Flags) Reset() { f.bits.Store(0) }
