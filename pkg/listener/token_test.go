package listener

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	payo "github.com/payoapp/payo/pkg"
)

// fakeEtherscan answers tokentx queries keyed by the watched address.
type fakeEtherscan struct {
	responses map[string]string // address → JSON body
	queries   []string
}

func (f *fakeEtherscan) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		qs := r.URL.Query()
		f.queries = append(f.queries, qs.Encode())
		if qs.Get("module") != "account" || qs.Get("action") != "tokentx" {
			http.Error(w, "bad query", http.StatusBadRequest)
			return
		}
		body, ok := f.responses[qs.Get("address")]
		if !ok {
			body = `{"status":"0","message":"No transactions found","result":[]}`
		}
		fmt.Fprint(w, body)
	})
}

func newTokenRig(t *testing.T, f *fakeEtherscan) (*TokenListener, func() []payo.PaymentEvent) {
	t.Helper()
	srv := httptest.NewServer(f.handler())
	t.Cleanup(srv.Close)

	conf := testConfig()
	conf.Listeners.Token.APIURL = srv.URL
	conf.Listeners.Token.APIKey = "testkey"
	conf.Listeners.Token.Contract = "0xC0FFEE"
	l := NewTokenListener(conf, srv.Client())

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

func tokenTxJSON(hash, to, value, confs string) string {
	return fmt.Sprintf(`{"status":"1","message":"OK","result":[{"hash":%q,"from":"0xsender","to":%q,"value":%q,"confirmations":%q}]}`,
		hash, to, value, confs)
}

func TestTokenTransferBelowThresholdKeepsWatching(t *testing.T) {
	f := &fakeEtherscan{responses: map[string]string{
		"0xdest": tokenTxJSON("0xtx1", "0xdest", "26000000", "1"),
	}}
	l, poll := newTokenRig(t, f)
	l.Watch("0xdest")

	evs := poll()
	if len(evs) != 1 {
		t.Fatalf("expected one event, got %d", len(evs))
	}
	if evs[0].Confirmations != 1 {
		t.Errorf("confirmations = %d, want 1", evs[0].Confirmations)
	}
	// 26000000 units at 6 decimals
	if evs[0].AmountObserved.String() != "26" {
		t.Errorf("amount = %s, want 26", evs[0].AmountObserved)
	}
	if !l.Watching("0xdest") {
		t.Errorf("below-threshold transfer must keep the account watched")
	}
}

func TestTokenTransferAtThresholdUnwatches(t *testing.T) {
	f := &fakeEtherscan{responses: map[string]string{
		"0xdest": tokenTxJSON("0xtx1", "0xdest", "26000000", "3"),
	}}
	l, poll := newTokenRig(t, f)
	l.Watch("0xdest")

	evs := poll()
	if len(evs) != 1 {
		t.Fatalf("expected one event, got %d", len(evs))
	}
	if evs[0].Network != payo.NetworkToken {
		t.Errorf("network = %s, want token", evs[0].Network)
	}
	if l.Watching("0xdest") {
		t.Errorf("threshold transfer must remove the account from the watch-set")
	}
}

func TestTokenUnminedTransferIsSkipped(t *testing.T) {
	f := &fakeEtherscan{responses: map[string]string{
		"0xdest": tokenTxJSON("0xtx1", "0xdest", "26000000", "0"),
	}}
	l, poll := newTokenRig(t, f)
	l.Watch("0xdest")

	if evs := poll(); len(evs) != 0 {
		t.Fatalf("unmined transfers must not emit, got %d events", len(evs))
	}
	if !l.Watching("0xdest") {
		t.Errorf("account must stay watched")
	}
}

func TestTokenAddressCaseInsensitive(t *testing.T) {
	f := &fakeEtherscan{responses: map[string]string{
		"0xDeST": tokenTxJSON("0xtx1", "0xdest", "1000000", "3"),
	}}
	l, poll := newTokenRig(t, f)
	l.Watch("0xDeST")

	evs := poll()
	if len(evs) != 1 {
		t.Fatalf("recipient match must be case-insensitive, got %d events", len(evs))
	}
}

func TestTokenEmptyResultIsNotAnError(t *testing.T) {
	f := &fakeEtherscan{responses: map[string]string{}}
	l, poll := newTokenRig(t, f)
	l.Watch("0xdest")

	if evs := poll(); len(evs) != 0 {
		t.Fatalf("expected no events, got %d", len(evs))
	}
	if !l.Watching("0xdest") {
		t.Errorf("account must stay watched")
	}
}
