package listener

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	payo "github.com/payoapp/payo/pkg"
	"github.com/shopspring/decimal"
)

// recentTxLimit bounds how many transactions per address we inspect
// each cycle; anything older predates the invoice.
const recentTxLimit = 10

var satsPerCoin = decimal.NewFromInt(100_000_000)

// OnchainListener watches Bitcoin addresses through an Esplora-style
// REST API (Blockstream and friends).
//
// A transfer seen in the mempool is reported with zero confirmations
// ("detected"); once mined, confirmations are counted from the chain
// tip. The address is removed from the watch-set on the first confirmed
// observation.
type OnchainListener struct {
	watch         watchSet
	client        *http.Client
	apiURL        string
	confirmations int
	interval      time.Duration
}

func NewOnchainListener(conf payo.Config, client *http.Client) *OnchainListener {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	return &OnchainListener{
		watch:         newWatchSet(),
		client:        client,
		apiURL:        conf.Listeners.Onchain.APIURL,
		confirmations: conf.Listeners.Onchain.Confirmations,
		interval:      time.Duration(conf.Listeners.Onchain.PollIntervalSec) * time.Second,
	}
}

func (l *OnchainListener) Network() payo.Network { return payo.NetworkOnchain }

func (l *OnchainListener) Watch(payTo string) { l.watch.Add(payTo) }

func (l *OnchainListener) Unwatch(payTo string) { l.watch.Remove(payTo) }

func (l *OnchainListener) Watching(payTo string) bool { return l.watch.Has(payTo) }

func (l *OnchainListener) Interval() time.Duration { return l.interval }

// Esplora wire types (the subset we read).
type esploraTx struct {
	TxID string `json:"txid"`
	Vout []struct {
		ScriptPubKeyAddress string `json:"scriptpubkey_address"`
		Value               int64  `json:"value"` // sats
	} `json:"vout"`
	Status struct {
		Confirmed   bool  `json:"confirmed"`
		BlockHeight int64 `json:"block_height"`
	} `json:"status"`
}

func (l *OnchainListener) Poll(emit Emit) error {
	addrs := l.watch.Snapshot()
	if len(addrs) == 0 {
		return nil
	}

	// Confirmations are relative to the tip; if we can't read the tip
	// the whole cycle is pointless, so bail and let the loop retry.
	tip, err := l.tipHeight()
	if err != nil {
		return fmt.Errorf("onchain: fetching tip height: %w", err)
	}

	for _, addr := range addrs {
		txs, err := l.addressTxs(addr)
		if err != nil {
			log.Printf("OnchainListener: checking %s: %v", addr, err)
			continue // one bad address must not starve the others
		}
		if len(txs) > recentTxLimit {
			txs = txs[:recentTxLimit]
		}
		for _, tx := range txs {
			if l.processTx(addr, tx, tip, emit) {
				break // one payment per invoice
			}
		}
	}
	return nil
}

// processTx reports whether the transaction paid the watched address.
func (l *OnchainListener) processTx(addr string, tx esploraTx, tip int64, emit Emit) bool {
	for _, out := range tx.Vout {
		if out.ScriptPubKeyAddress != addr {
			continue
		}
		amount := decimal.NewFromInt(out.Value).Div(satsPerCoin)
		confs := 0
		if tx.Status.Confirmed {
			confs = int(tip - tx.Status.BlockHeight + 1)
			if confs < 1 {
				confs = 1
			}
		}
		emit(payo.PaymentEvent{
			PayTo:          addr,
			TxRef:          tx.TxID,
			AmountObserved: amount,
			Confirmations:  confs,
			Network:        payo.NetworkOnchain,
		})
		if confs >= l.confirmations {
			l.watch.Remove(addr)
		}
		return true
	}
	return false
}

func (l *OnchainListener) tipHeight() (int64, error) {
	var height int64
	err := l.getJSON(fmt.Sprintf("%s/blocks/tip/height", l.apiURL), &height)
	return height, err
}

func (l *OnchainListener) addressTxs(addr string) ([]esploraTx, error) {
	var txs []esploraTx
	err := l.getJSON(fmt.Sprintf("%s/address/%s/txs", l.apiURL, addr), &txs)
	return txs, err
}

func (l *OnchainListener) getJSON(url string, out interface{}) error {
	resp, err := l.client.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d from %s", resp.StatusCode, url)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
