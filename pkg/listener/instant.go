package listener

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"time"

	payo "github.com/payoapp/payo/pkg"
	"github.com/shopspring/decimal"
)

// InvoiceState is one Lightning invoice's settlement state as reported
// by the node.
type InvoiceState struct {
	Settled     bool
	PaymentHash string
	AmountPaid  payo.CoinAmount
}

// InvoiceChecker looks up a Lightning payment request on the node.
// The HTTP implementation talks to an LND-style REST endpoint; tests
// inject fakes.
type InvoiceChecker interface {
	LookupInvoice(paymentRequest string) (InvoiceState, error)
}

// InstantListener watches Lightning payment requests. Settlement is
// atomic on this network: any settled observation is final, reported
// with zero confirmations by convention, and the payment request is
// removed from the watch-set immediately.
type InstantListener struct {
	watch    watchSet
	checker  InvoiceChecker
	interval time.Duration
}

func NewInstantListener(conf payo.Config, checker InvoiceChecker) *InstantListener {
	if checker == nil {
		checker = NewLndRestChecker(conf.Listeners.Instant.Endpoint, conf.Listeners.Instant.Macaroon, nil)
	}
	return &InstantListener{
		watch:    newWatchSet(),
		checker:  checker,
		interval: time.Duration(conf.Listeners.Instant.PollIntervalSec) * time.Second,
	}
}

func (l *InstantListener) Network() payo.Network { return payo.NetworkInstant }

func (l *InstantListener) Watch(payTo string) { l.watch.Add(payTo) }

func (l *InstantListener) Unwatch(payTo string) { l.watch.Remove(payTo) }

func (l *InstantListener) Watching(payTo string) bool { return l.watch.Has(payTo) }

func (l *InstantListener) Interval() time.Duration { return l.interval }

func (l *InstantListener) Poll(emit Emit) error {
	for _, pr := range l.watch.Snapshot() {
		state, err := l.checker.LookupInvoice(pr)
		if err != nil {
			log.Printf("InstantListener: looking up %.24s…: %v", pr, err)
			continue
		}
		if !state.Settled {
			continue
		}
		txRef := state.PaymentHash
		if txRef == "" {
			txRef = "ln_" + shortRef(pr)
		}
		emit(payo.PaymentEvent{
			PayTo:          pr,
			TxRef:          txRef,
			AmountObserved: state.AmountPaid,
			Confirmations:  0,
			Network:        payo.NetworkInstant,
		})
		l.watch.Remove(pr)
	}
	return nil
}

func shortRef(pr string) string {
	if len(pr) > 16 {
		return pr[:16]
	}
	return pr
}

// LndRestChecker looks up invoices over the node's REST proxy.
type LndRestChecker struct {
	endpoint string
	macaroon string
	client   *http.Client
}

func NewLndRestChecker(endpoint, macaroon string, client *http.Client) *LndRestChecker {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &LndRestChecker{endpoint: endpoint, macaroon: macaroon, client: client}
}

type lndInvoice struct {
	Settled     bool   `json:"settled"`
	RHash       string `json:"r_hash"`
	AmtPaidSat  string `json:"amt_paid_sat"`
	PaymentAddr string `json:"payment_addr"`
}

func (c *LndRestChecker) LookupInvoice(paymentRequest string) (InvoiceState, error) {
	req, err := http.NewRequest("GET",
		fmt.Sprintf("%s/v1/invoice/lookup?payment_request=%s", c.endpoint, url.QueryEscape(paymentRequest)), nil)
	if err != nil {
		return InvoiceState{}, err
	}
	if c.macaroon != "" {
		req.Header.Set("Grpc-Metadata-macaroon", c.macaroon)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return InvoiceState{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return InvoiceState{}, fmt.Errorf("unexpected status %d from invoice lookup", resp.StatusCode)
	}
	var inv lndInvoice
	if err := json.NewDecoder(resp.Body).Decode(&inv); err != nil {
		return InvoiceState{}, err
	}
	sats, err := strconv.ParseInt(inv.AmtPaidSat, 10, 64)
	if err != nil {
		sats = 0
	}
	return InvoiceState{
		Settled:     inv.Settled,
		PaymentHash: inv.RHash,
		AmountPaid:  decimal.NewFromInt(sats).Div(satsPerCoin),
	}, nil
}
