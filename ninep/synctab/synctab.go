// Package synctab abstracts the mutex, read-write lock, and condition
// variable primitives the server and client engines are built on, so a
// caller can inject an alternative backend (a single-threaded stub for
// tests, say) instead of the engine reaching for global concurrency
// state.
package synctab

// Mutex is a basic mutual-exclusion lock.
type Mutex interface {
	Lock()
	Unlock()
	TryLock() bool
}

// RWLock is a reader/writer lock. Unlike the backend it is modeled on,
// every write-locking method here actually takes a write lock: this
// package intentionally does not reproduce the original engine's two
// known write-lock bugs (a canWriteLock that discarded its result, and
// a wlock that took a read lock by mistake).
type RWLock interface {
	RLock()
	RUnlock()
	TryRLock() bool
	Lock()
	Unlock()
	TryLock() bool
}

// Rendez is a condition variable bound to the Mutex or RWLock it
// guards. Sleep must be called with the associated lock held; it
// releases the lock while blocked and reacquires it before returning,
// matching pthread_cond_wait's contract.
type Rendez interface {
	Sleep()
	Wake()
	WakeAll()
}

// Model bundles constructors for the three primitives, so srv.Server
// and clnt.Client can be handed a concurrency backend explicitly rather
// than referencing package-level state.
type Model struct {
	NewMutex  func() Mutex
	NewRWLock func() RWLock
	// NewRendez builds a Rendez bound to l, which must be a Mutex or
	// RWLock previously built by this Model.
	NewRendez func(l any) Rendez
}

// Std is the default Model, backed by the sync package.
var Std = Model{
	NewMutex:  func() Mutex { return new(stdMutex) },
	NewRWLock: func() RWLock { return new(stdRWLock) },
	NewRendez: newStdRendez,
}

// NoOp is a single-goroutine Model for embedding in tests that never
// actually contend: its locks are no-ops and its Rendez.Sleep panics,
// since a single-threaded caller sleeping on a condition it alone could
// signal can never wake up.
var NoOp = Model{
	NewMutex:  func() Mutex { return noOpLock{} },
	NewRWLock: func() RWLock { return noOpLock{} },
	NewRendez: func(any) Rendez { return noOpRendez{} },
}
