package listener

import (
	"sync"
	"time"

	payo "github.com/payoapp/payo/pkg"
)

// Emit delivers a payment observation to the manager.
type Emit func(payo.PaymentEvent)

// NetworkListener polls one settlement network for transfers to the
// identifiers it is watching.
//
// Watch and Unwatch are idempotent and safe to call concurrently with
// Poll. Poll performs one cycle over the current watch-set, calling
// emit zero or more times; the manager owns the loop, the ticker and
// restarts. A failed lookup for one identifier must not abort the rest
// of the cycle — Poll only returns an error when the whole cycle
// cannot proceed (e.g. the network API is unreachable).
type NetworkListener interface {
	Network() payo.Network
	Watch(payTo string)
	Unwatch(payTo string)
	Watching(payTo string) bool
	Poll(emit Emit) error
	Interval() time.Duration
}

// watchSet is the set of identifiers a listener is actively polling.
// Poll cycles iterate a snapshot so Watch/Unwatch from the sync loop
// never race with iteration.
type watchSet struct {
	mu  sync.Mutex
	ids map[string]bool
}

func newWatchSet() watchSet {
	return watchSet{ids: make(map[string]bool)}
}

func (w *watchSet) Add(id string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.ids[id] = true
}

func (w *watchSet) Remove(id string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.ids, id)
}

func (w *watchSet) Has(id string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.ids[id]
}

func (w *watchSet) Snapshot() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	ids := make([]string, 0, len(w.ids))
	for id := range w.ids {
		ids = append(ids, id)
	}
	return ids
}

func (w *watchSet) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.ids)
}
