package listener

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	payo "github.com/payoapp/payo/pkg"
	"github.com/shopspring/decimal"
)

// fakeChecker is an in-memory InvoiceChecker.
type fakeChecker struct {
	mu     sync.Mutex
	states map[string]InvoiceState
	errs   map[string]error
}

func (f *fakeChecker) LookupInvoice(pr string) (InvoiceState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.errs[pr]; ok {
		return InvoiceState{}, err
	}
	return f.states[pr], nil
}

func newInstantRig(t *testing.T, checker InvoiceChecker) (*InstantListener, func() []payo.PaymentEvent) {
	t.Helper()
	l := NewInstantListener(testConfig(), checker)
	var events []payo.PaymentEvent
	poll := func() []payo.PaymentEvent {
		events = events[:0]
		if err := l.Poll(func(ev payo.PaymentEvent) { events = append(events, ev) }); err != nil {
			t.Fatal(err)
		}
		return events
	}
	return l, poll
}

func TestInstantSettlementEmitsAndUnwatches(t *testing.T) {
	checker := &fakeChecker{states: map[string]InvoiceState{
		"lnbc26u1pr": {Settled: true, PaymentHash: "abcd1234", AmountPaid: decimal.RequireFromString("0.00026")},
	}}
	l, poll := newInstantRig(t, checker)
	l.Watch("lnbc26u1pr")

	evs := poll()
	if len(evs) != 1 {
		t.Fatalf("expected one event, got %d", len(evs))
	}
	ev := evs[0]
	if ev.Confirmations != 0 {
		t.Errorf("confirmations = %d, want 0 (atomic settlement)", ev.Confirmations)
	}
	if ev.TxRef != "abcd1234" {
		t.Errorf("tx ref = %q, want the payment hash", ev.TxRef)
	}
	if ev.Network != payo.NetworkInstant {
		t.Errorf("network = %s, want instant", ev.Network)
	}
	if l.Watching("lnbc26u1pr") {
		t.Errorf("settled payment request must be unwatched immediately")
	}

	// settled is final; the next cycle sees nothing
	if evs := poll(); len(evs) != 0 {
		t.Fatalf("expected no repeat events, got %d", len(evs))
	}
}

func TestInstantUnsettledIsSilent(t *testing.T) {
	checker := &fakeChecker{states: map[string]InvoiceState{
		"lnbc26u1pr": {Settled: false},
	}}
	l, poll := newInstantRig(t, checker)
	l.Watch("lnbc26u1pr")

	if evs := poll(); len(evs) != 0 {
		t.Fatalf("unsettled invoice must not emit, got %d events", len(evs))
	}
	if !l.Watching("lnbc26u1pr") {
		t.Errorf("unsettled payment request must stay watched")
	}
}

func TestInstantLookupErrorToleratedPerRequest(t *testing.T) {
	checker := &fakeChecker{
		states: map[string]InvoiceState{
			"lnbc_ok": {Settled: true, PaymentHash: "feed"},
		},
		errs: map[string]error{
			"lnbc_bad": fmt.Errorf("node unreachable"),
		},
	}
	l, poll := newInstantRig(t, checker)
	l.Watch("lnbc_bad")
	l.Watch("lnbc_ok")

	evs := poll()
	if len(evs) != 1 {
		t.Fatalf("expected the healthy lookup to emit, got %d events", len(evs))
	}
	if evs[0].PayTo != "lnbc_ok" {
		t.Errorf("event for %s, want lnbc_ok", evs[0].PayTo)
	}
	if !l.Watching("lnbc_bad") {
		t.Errorf("failed lookup must keep the payment request watched")
	}
}

func TestInstantFallbackTxRef(t *testing.T) {
	checker := &fakeChecker{states: map[string]InvoiceState{
		"lnbc26u1pveryverylongrequest": {Settled: true},
	}}
	l, poll := newInstantRig(t, checker)
	l.Watch("lnbc26u1pveryverylongrequest")

	evs := poll()
	if len(evs) != 1 {
		t.Fatalf("expected one event, got %d", len(evs))
	}
	if evs[0].TxRef != "ln_lnbc26u1pveryver" {
		t.Errorf("tx ref = %q, want prefix fallback", evs[0].TxRef)
	}
}

func TestLndRestChecker(t *testing.T) {
	var gotMacaroon, gotRequest string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMacaroon = r.Header.Get("Grpc-Metadata-macaroon")
		gotRequest = r.URL.Query().Get("payment_request")
		fmt.Fprint(w, `{"settled":true,"r_hash":"cafe","amt_paid_sat":"26000"}`)
	}))
	defer srv.Close()

	c := NewLndRestChecker(srv.URL, "deadbeef", srv.Client())
	state, err := c.LookupInvoice("lnbc26u1pr")
	if err != nil {
		t.Fatal(err)
	}
	if gotMacaroon != "deadbeef" {
		t.Errorf("macaroon header = %q, want deadbeef", gotMacaroon)
	}
	if gotRequest != "lnbc26u1pr" {
		t.Errorf("payment_request = %q, want lnbc26u1pr", gotRequest)
	}
	if !state.Settled || state.PaymentHash != "cafe" {
		t.Errorf("unexpected state: %+v", state)
	}
	if state.AmountPaid.String() != "0.00026" {
		t.Errorf("amount = %s, want 0.00026", state.AmountPaid)
	}
}
