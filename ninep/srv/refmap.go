package srv

import "sync"

// incDecRef is implemented by values stored in a refMap: lookup takes a
// reference the caller must release, and drop/clear release it for
// them.
type incDecRef interface {
	incRef()
	decRef()
}

// refMap is a reference-counted map, used for both a connection's fid
// table and its outstanding-tag table. lookup increments the returned
// value's reference count; callers must decRef when done with it.
type refMap[K comparable, V incDecRef] struct {
	rw sync.RWMutex
	m  map[K]V
}

func newRefMap[K comparable, V incDecRef]() *refMap[K, V] {
	return &refMap[K, V]{m: make(map[K]V)}
}

// tryInsert adds v under key if no value is already present, returning
// false without touching the map otherwise.
func (r *refMap[K, V]) tryInsert(key K, v V) bool {
	r.rw.Lock()
	defer r.rw.Unlock()
	if _, ok := r.m[key]; ok {
		return false
	}
	r.m[key] = v
	return true
}

// lookup returns the value stored under key, if any, with its reference
// count incremented.
func (r *refMap[K, V]) lookup(key K) (V, bool) {
	r.rw.RLock()
	defer r.rw.RUnlock()
	v, ok := r.m[key]
	if ok {
		v.incRef()
	}
	return v, ok
}

// delete removes key from the map and returns its value without
// releasing the caller's reference — the caller becomes the sole owner
// of the returned reference.
func (r *refMap[K, V]) delete(key K) (V, bool) {
	r.rw.Lock()
	defer r.rw.Unlock()
	v, ok := r.m[key]
	if ok {
		delete(r.m, key)
	}
	return v, ok
}

// drop removes key and releases the map's reference to it. It is a
// no-op if key is absent.
func (r *refMap[K, V]) drop(key K) {
	r.rw.Lock()
	v, ok := r.m[key]
	if ok {
		delete(r.m, key)
	}
	r.rw.Unlock()
	if ok {
		v.decRef()
	}
}

// clear empties the map, releasing the map's reference to every value —
// used at connection teardown.
func (r *refMap[K, V]) clear() []V {
	r.rw.Lock()
	old := r.m
	r.m = make(map[K]V)
	r.rw.Unlock()
	vals := make([]V, 0, len(old))
	for _, v := range old {
		v.decRef()
		vals = append(vals, v)
	}
	return vals
}
