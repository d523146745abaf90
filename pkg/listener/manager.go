package listener

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	payo "github.com/payoapp/payo/pkg"
)

/*
Manager owns the per-network listeners and the reconciliation loop.

It runs a small fixed pool of long-lived goroutines: one poll loop per
listener plus one synchronization loop. The sync loop periodically
re-reads pending invoices from the store, makes sure the right listener
is watching each pay-to identifier, keeps the identifier→invoice table
current, and sweeps expired invoices out of every watch-set.

The identifier→invoice table is the authoritative routing for payment
events; a provisional ID a listener might guess from the identifier is
never trusted. Only the sync loop and the event path mutate the table
(both through the manager's lock); listeners mutate only their own
watch-sets.

The watch-sets can lag true invoice state by up to one sync interval:
an invoice paid before its identifier is registered is simply not yet
detectable. That staleness is an accepted trade-off of periodic
synchronization, not a bug.
*/
type Manager struct {
	store      payo.Store
	bus        payo.MessageBus
	reconciler *Reconciler
	listeners  map[payo.Network]NetworkListener

	mu           sync.Mutex
	payToInvoice map[string]string // identifier → invoice ID
	running      bool

	syncInterval time.Duration
	restartDelay time.Duration
}

func NewManager(conf payo.Config, store payo.Store, bus payo.MessageBus, listeners ...NetworkListener) *Manager {
	m := &Manager{
		store:        store,
		bus:          bus,
		reconciler:   NewReconciler(conf, store),
		listeners:    make(map[payo.Network]NetworkListener),
		payToInvoice: make(map[string]string),
		syncInterval: time.Duration(conf.Listeners.SyncIntervalSec) * time.Second,
		restartDelay: time.Duration(conf.Listeners.RestartDelaySec) * time.Second,
	}
	for _, l := range listeners {
		m.listeners[l.Network()] = l
	}
	return m
}

// Implements conductor.Service.
//
// One listener's outage must never stop the others: each poll loop is
// restarted with a fixed backoff when it fails, and a single bad event
// is logged and swallowed rather than crashing the manager.
func (m *Manager) Run(started, stopped chan bool, stop chan context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return payo.NewErr(payo.AlreadyRunning, "listener manager is already running")
	}
	m.running = true
	m.mu.Unlock()

	quit := make(chan struct{})
	go func() {
		var wg sync.WaitGroup
		for _, l := range m.listeners {
			wg.Add(1)
			go func(l NetworkListener) {
				defer wg.Done()
				m.runListener(l, quit)
			}(l)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.runSync(quit)
		}()

		started <- true
		<-stop
		close(quit)
		wg.Wait()
		m.mu.Lock()
		m.running = false
		m.mu.Unlock()
		stopped <- true
	}()
	return nil
}

// runListener drives one listener's poll loop, restarting it after a
// backoff whenever a cycle fails or panics.
func (m *Manager) runListener(l NetworkListener, quit chan struct{}) {
	for {
		err := m.listenerSession(l, quit)
		if err == nil {
			return // clean shutdown
		}
		log.Printf("Manager: %s listener failed: %v (restarting in %v)", l.Network(), err, m.restartDelay)
		m.bus.Send(payo.SYS_ERR, fmt.Sprintf("listener %s failed: %v", l.Network(), err))
		select {
		case <-quit:
			return
		case <-time.After(m.restartDelay):
		}
	}
}

// listenerSession polls until the session errors or quit closes.
// A nil return means shutdown.
func (m *Manager) listenerSession(l NetworkListener, quit chan struct{}) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in %s poll: %v", l.Network(), r)
		}
	}()
	ticker := time.NewTicker(l.Interval())
	defer ticker.Stop()
	for {
		if err := l.Poll(m.onPaymentEvent); err != nil {
			return err
		}
		select {
		case <-quit:
			return nil
		case <-ticker.C:
		}
	}
}

// runSync drives the synchronization/expiry loop. Sync errors are
// transient store or clock trouble; log and keep the cadence.
func (m *Manager) runSync(quit chan struct{}) {
	ticker := time.NewTicker(m.syncInterval)
	defer ticker.Stop()
	for {
		if err := m.sync(time.Now()); err != nil {
			log.Printf("Manager: sync failed: %v", err)
			m.bus.Send(payo.SYS_ERR, fmt.Sprintf("listener sync failed: %v", err))
		}
		select {
		case <-quit:
			return
		case <-ticker.C:
		}
	}
}

// sync is one pass of watch-set synchronization plus the expiry sweep.
// Exported through Sync for tests and for a forced sync at startup.
func (m *Manager) sync(now time.Time) error {
	pending, err := m.store.ListPendingInvoices()
	if err != nil {
		return err
	}
	for _, inv := range pending {
		network, err := inv.Method.Network()
		if err != nil {
			log.Printf("Manager: invoice %s: %v", inv.ID, err)
			continue
		}
		l, ok := m.listeners[network]
		if !ok {
			log.Printf("Manager: invoice %s: no listener for network %s", inv.ID, network)
			continue
		}
		l.Watch(inv.PayTo)
		m.mu.Lock()
		m.payToInvoice[inv.PayTo] = inv.ID
		m.mu.Unlock()
	}

	return m.sweepExpired(now)
}

// Sync forces one synchronization pass outside the periodic schedule.
func (m *Manager) Sync(now time.Time) error {
	return m.sync(now)
}

// sweepExpired expires overdue pending invoices and removes their
// identifiers from every watch-set.
func (m *Manager) sweepExpired(now time.Time) error {
	expired, err := m.store.ListExpiredPending(now)
	if err != nil {
		return err
	}
	for _, inv := range expired {
		res, err := m.reconciler.Expire(inv)
		if err != nil {
			log.Printf("Manager: expiring invoice %s: %v", inv.ID, err)
			continue
		}
		if !res.Transitioned {
			// A payment beat the expiry; the invoice stays watched and
			// routable until its confirmation arrives.
			continue
		}
		m.unwatchAll(inv.PayTo)
		m.forget(inv.PayTo)
		log.Printf("Manager: invoice %s expired", inv.ID)
		m.announce(inv, payo.StatusExpired, "", payo.ZeroCoins, now)
	}
	return nil
}

// onPaymentEvent routes one network observation into reconciliation.
func (m *Manager) onPaymentEvent(ev payo.PaymentEvent) {
	m.mu.Lock()
	id, ok := m.payToInvoice[ev.PayTo]
	m.mu.Unlock()
	if !ok {
		// Either already settled/expired, or the table hasn't caught up;
		// re-synchronization will recover the latter. Drop it.
		log.Printf("Manager: dropping %s event for unknown identifier %.24s…", ev.Network, ev.PayTo)
		return
	}
	ev.InvoiceID = id

	inv, err := m.store.GetInvoice(id)
	if err != nil {
		log.Printf("Manager: loading invoice %s: %v", id, err)
		return
	}
	res, err := m.reconciler.Apply(inv, ev)
	if err != nil {
		log.Printf("Manager: reconciling invoice %s: %v", id, err)
		return
	}
	if res.Status == payo.StatusConfirmed {
		// Terminal for the watch layer, whether we just transitioned
		// or a duplicate arrived late.
		m.unwatchAll(ev.PayTo)
		m.forget(ev.PayTo)
	}
	if !res.Transitioned {
		return
	}
	log.Printf("Manager: invoice %s → %s (tx %s, %d confs)", id, res.Status, ev.TxRef, ev.Confirmations)
	m.announce(inv, res.Status, ev.TxRef, ev.AmountObserved, time.Now())
}

// announce publishes the transition on the bus; the callback senders
// turn it into signed webhooks. The message ID doubles as the delivery
// idempotency key.
func (m *Manager) announce(inv payo.Invoice, status payo.InvoiceStatus, txRef string, amount payo.CoinAmount, at time.Time) {
	update := payo.NewInvoiceUpdate(inv, status, txRef, amount, at)
	err := m.bus.Send(payo.EventForStatus(status), update, fmt.Sprintf("%s:%s", inv.ID, status))
	if err != nil {
		log.Printf("Manager: publishing update for invoice %s: %v", inv.ID, err)
	}
}

func (m *Manager) unwatchAll(payTo string) {
	for _, l := range m.listeners {
		l.Unwatch(payTo)
	}
}

func (m *Manager) forget(payTo string) {
	m.mu.Lock()
	delete(m.payToInvoice, payTo)
	m.mu.Unlock()
}

// Watching reports whether any listener currently watches the
// identifier.
func (m *Manager) Watching(payTo string) bool {
	for _, l := range m.listeners {
		if l.Watching(payTo) {
			return true
		}
	}
	return false
}
