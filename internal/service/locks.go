package service

import "sync"

// dealLocks serializes state-mutating operations per deal. Export and
// override both read transactions, run the pipeline and write derived
// state; interleaving two of them on the same deal would race the
// replace-style repositories. Cross-deal operations never contend.
type dealLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newDealLocks() *dealLocks {
	return &dealLocks{locks: make(map[string]*sync.Mutex)}
}

// Lock acquires the mutex for dealID, creating it on first use. The
// returned function releases it.
func (d *dealLocks) Lock(dealID string) func() {
	d.mu.Lock()
	m, ok := d.locks[dealID]
	if !ok {
		m = &sync.Mutex{}
		d.locks[dealID] = m
	}
	d.mu.Unlock()

	m.Lock()
	return m.Unlock
}
