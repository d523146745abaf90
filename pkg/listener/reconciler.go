package listener

import (
	"time"

	payo "github.com/payoapp/payo/pkg"
)

// Result is the outcome of applying one event or expiry signal to an
// invoice.
type Result struct {
	Transitioned   bool
	Status         payo.InvoiceStatus
	AlreadySettled bool
}

// Reconciler advances an invoice's status from an observed payment
// event or an expiry signal.
//
// Every status write goes through the store's compare-and-set so the
// payment-event path and the expiry sweep can never race an invoice
// into an inconsistent state: whichever writer loses the race re-reads
// and either re-applies or abandons as already settled. Applying the
// same event twice is a no-op the second time.
type Reconciler struct {
	store      payo.Store
	thresholds map[payo.Network]int
	now        func() time.Time
}

func NewReconciler(conf payo.Config, store payo.Store) *Reconciler {
	return &Reconciler{
		store: store,
		thresholds: map[payo.Network]int{
			payo.NetworkOnchain: conf.Listeners.Onchain.Confirmations,
			payo.NetworkInstant: 0, // settlement is atomic
			payo.NetworkToken:   conf.Listeners.Token.Confirmations,
		},
		now: time.Now,
	}
}

func (r *Reconciler) threshold(n payo.Network) int {
	t, ok := r.thresholds[n]
	if !ok {
		return 1
	}
	return t
}

// Apply reconciles one payment event against the invoice it was
// resolved to. ev.InvoiceID must equal inv.ID.
func (r *Reconciler) Apply(inv payo.Invoice, ev payo.PaymentEvent) (Result, error) {
	return r.apply(inv.ID, inv.Status, ev, true)
}

func (r *Reconciler) apply(id string, status payo.InvoiceStatus, ev payo.PaymentEvent, retry bool) (Result, error) {
	threshold := r.threshold(ev.Network)

	switch status {
	case payo.StatusPending:
		if ev.Confirmations >= threshold {
			// Straight to confirmed (also the instant-network path,
			// where the threshold is zero).
			ok, err := r.store.CompareAndSetStatus(id, payo.StatusPending, payo.StatusConfirmed)
			if err != nil {
				return Result{}, err
			}
			if !ok {
				return r.conflict(id, ev, retry)
			}
			now := r.now().UTC()
			err = r.store.InsertPayment(payo.Payment{
				InvoiceID:      id,
				TxRef:          ev.TxRef,
				AmountReceived: ev.AmountObserved,
				Confirmations:  ev.Confirmations,
				DetectedAt:     now,
				ConfirmedAt:    &now,
			})
			if err != nil {
				return Result{}, err
			}
			return Result{Transitioned: true, Status: payo.StatusConfirmed}, nil
		}
		if ev.Confirmations == 0 {
			ok, err := r.store.CompareAndSetStatus(id, payo.StatusPending, payo.StatusDetected)
			if err != nil {
				return Result{}, err
			}
			if !ok {
				return r.conflict(id, ev, retry)
			}
			err = r.store.InsertPayment(payo.Payment{
				InvoiceID:      id,
				TxRef:          ev.TxRef,
				AmountReceived: ev.AmountObserved,
				Confirmations:  0,
				DetectedAt:     r.now().UTC(),
			})
			if err != nil {
				return Result{}, err
			}
			return Result{Transitioned: true, Status: payo.StatusDetected}, nil
		}
		// Mined but below this network's threshold: not yet actionable.
		return Result{Status: payo.StatusPending}, nil

	case payo.StatusDetected:
		if ev.Confirmations < threshold {
			return Result{Status: payo.StatusDetected}, nil
		}
		ok, err := r.store.CompareAndSetStatus(id, payo.StatusDetected, payo.StatusConfirmed)
		if err != nil {
			return Result{}, err
		}
		if !ok {
			return r.conflict(id, ev, retry)
		}
		err = r.store.UpdatePaymentConfirmed(id, ev.Confirmations, r.now().UTC())
		if err != nil {
			return Result{}, err
		}
		return Result{Transitioned: true, Status: payo.StatusConfirmed}, nil

	default:
		// Confirmed or expired: absorb duplicate/late events.
		return Result{Status: status, AlreadySettled: true}, nil
	}
}

// conflict handles a lost compare-and-set race: re-read the status and
// re-apply once; a second conflict drops the event and lets the next
// poll cycle re-drive it.
func (r *Reconciler) conflict(id string, ev payo.PaymentEvent, retry bool) (Result, error) {
	if !retry {
		return Result{}, payo.NewErr(payo.DBConflict, "concurrent status change on invoice %s", id)
	}
	status, err := r.store.GetStatus(id)
	if err != nil {
		return Result{}, err
	}
	return r.apply(id, status, ev, false)
}

// Expire moves a pending invoice to expired. Invoices already detected,
// confirmed or expired are untouched.
func (r *Reconciler) Expire(inv payo.Invoice) (Result, error) {
	return r.expire(inv.ID, inv.Status, true)
}

func (r *Reconciler) expire(id string, status payo.InvoiceStatus, retry bool) (Result, error) {
	if status != payo.StatusPending {
		return Result{Status: status, AlreadySettled: true}, nil
	}
	ok, err := r.store.CompareAndSetStatus(id, payo.StatusPending, payo.StatusExpired)
	if err != nil {
		return Result{}, err
	}
	if !ok {
		// A payment event won the race; the invoice is no longer
		// expirable unless it somehow remained pending.
		if !retry {
			return Result{}, payo.NewErr(payo.DBConflict, "concurrent status change on invoice %s", id)
		}
		current, err := r.store.GetStatus(id)
		if err != nil {
			return Result{}, err
		}
		return r.expire(id, current, false)
	}
	return Result{Transitioned: true, Status: payo.StatusExpired}, nil
}
