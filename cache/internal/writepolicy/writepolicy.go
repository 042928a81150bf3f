// Package writepolicy decides how a cache handles stores and evictions under
// the write-through/write-back and allocate/no-allocate policy combinations.
//
// The engine is pure decision logic. It tells the cache what to do; the cache
// performs the side effects.
package writepolicy

// Mode selects when stores reach the backing store.
type Mode int

const (
	// WriteThrough propagates every store to the backing store immediately.
	WriteThrough Mode = iota

	// WriteBack defers the propagation until the line is evicted.
	WriteBack
)

// AllocMode selects whether a store miss brings the line into the cache.
type AllocMode int

const (
	// Allocate fills the line on a store miss.
	Allocate AllocMode = iota

	// NoAllocate sends the store straight to the backing store on a miss.
	NoAllocate
)

// A StoreAction is the engine's instruction to the cache for one store.
type StoreAction struct {
	// AllocateLine asks the cache to fetch the full line from the backing
	// store before applying the store (fetch-then-write).
	AllocateLine bool

	// UpdateLine asks the cache to apply the store to the cached line.
	UpdateLine bool

	// MarkDirty asks the cache to set the line's dirty bit.
	MarkDirty bool

	// PropagateWrite asks the cache to write the line through to the
	// backing store as part of this access.
	PropagateWrite bool
}

// An Engine maps one write-policy combination to store and eviction
// behavior.
type Engine struct {
	Mode  Mode
	Alloc AllocMode
}

// OnStoreHit returns the action for a store that hits.
func (e Engine) OnStoreHit() StoreAction {
	if e.Mode == WriteThrough {
		return StoreAction{UpdateLine: true, PropagateWrite: true}
	}

	return StoreAction{UpdateLine: true, MarkDirty: true}
}

// OnStoreMiss returns the action for a store that misses.
func (e Engine) OnStoreMiss() StoreAction {
	if e.Alloc == NoAllocate {
		// The store bypasses the cache entirely.
		return StoreAction{PropagateWrite: true}
	}

	if e.Mode == WriteThrough {
		return StoreAction{
			AllocateLine:   true,
			UpdateLine:     true,
			PropagateWrite: true,
		}
	}

	return StoreAction{
		AllocateLine: true,
		UpdateLine:   true,
		MarkDirty:    true,
	}
}

// MustWriteBack reports whether evicting a line with the given dirty state
// requires writing it back. Under write-through the line always matches the
// backing store already.
func (e Engine) MustWriteBack(dirty bool) bool {
	return e.Mode == WriteBack && dirty
}
