package listener

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	payo "github.com/payoapp/payo/pkg"
	"github.com/shopspring/decimal"
)

// TokenListener watches EVM accounts for ERC-20 transfers of one token
// contract, through an Etherscan-family API.
//
// Transfers below the confirmation threshold are reported but not yet
// final; the account stays watched until a transfer reaches the
// threshold, at which point it is removed from the watch-set.
type TokenListener struct {
	watch         watchSet
	client        *http.Client
	apiURL        string
	apiKey        string
	contract      string
	decimals      int
	confirmations int
	interval      time.Duration
}

func NewTokenListener(conf payo.Config, client *http.Client) *TokenListener {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	return &TokenListener{
		watch:         newWatchSet(),
		client:        client,
		apiURL:        conf.Listeners.Token.APIURL,
		apiKey:        conf.Listeners.Token.APIKey,
		contract:      conf.Listeners.Token.Contract,
		decimals:      conf.Listeners.Token.Decimals,
		confirmations: conf.Listeners.Token.Confirmations,
		interval:      time.Duration(conf.Listeners.Token.PollIntervalSec) * time.Second,
	}
}

func (l *TokenListener) Network() payo.Network { return payo.NetworkToken }

func (l *TokenListener) Watch(payTo string) { l.watch.Add(payTo) }

func (l *TokenListener) Unwatch(payTo string) { l.watch.Remove(payTo) }

func (l *TokenListener) Watching(payTo string) bool { return l.watch.Has(payTo) }

func (l *TokenListener) Interval() time.Duration { return l.interval }

type tokenTxResponse struct {
	Status  string    `json:"status"`
	Message string    `json:"message"`
	Result  []tokenTx `json:"result"`
}

type tokenTx struct {
	Hash          string `json:"hash"`
	From          string `json:"from"`
	To            string `json:"to"`
	Value         string `json:"value"` // smallest unit
	Confirmations string `json:"confirmations"`
}

func (l *TokenListener) Poll(emit Emit) error {
	for _, addr := range l.watch.Snapshot() {
		txs, err := l.tokenTransfers(addr)
		if err != nil {
			log.Printf("TokenListener: checking %s: %v", addr, err)
			continue
		}
		for _, tx := range txs {
			if l.processTx(addr, tx, emit) {
				break
			}
		}
	}
	return nil
}

// processTx reports whether the transfer paid the watched account.
func (l *TokenListener) processTx(addr string, tx tokenTx, emit Emit) bool {
	if !strings.EqualFold(tx.To, addr) {
		return false
	}
	confs, err := strconv.Atoi(tx.Confirmations)
	if err != nil {
		log.Printf("TokenListener: bad confirmation count %q on %s", tx.Confirmations, tx.Hash)
		return false
	}
	if confs <= 0 {
		// not yet mined; nothing actionable on this network
		return false
	}
	units, err := decimal.NewFromString(tx.Value)
	if err != nil {
		log.Printf("TokenListener: bad transfer value %q on %s", tx.Value, tx.Hash)
		return false
	}
	amount := units.Shift(int32(-l.decimals))
	emit(payo.PaymentEvent{
		PayTo:          addr,
		TxRef:          tx.Hash,
		AmountObserved: amount,
		Confirmations:  confs,
		Network:        payo.NetworkToken,
	})
	// Stay watched while merely detected; only a confirmed transfer
	// ends the watch.
	if confs >= l.confirmations {
		l.watch.Remove(addr)
	}
	return true
}

func (l *TokenListener) tokenTransfers(addr string) ([]tokenTx, error) {
	params := url.Values{}
	params.Set("module", "account")
	params.Set("action", "tokentx")
	params.Set("contractaddress", l.contract)
	params.Set("address", addr)
	params.Set("page", "1")
	params.Set("offset", strconv.Itoa(recentTxLimit))
	params.Set("sort", "desc")
	if l.apiKey != "" {
		params.Set("apikey", l.apiKey)
	}

	resp, err := l.client.Get(fmt.Sprintf("%s?%s", l.apiURL, params.Encode()))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d from token API", resp.StatusCode)
	}
	var body tokenTxResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, err
	}
	if body.Status != "1" {
		// "0" with message "No transactions found" is a normal empty result.
		if strings.Contains(body.Message, "No transactions") {
			return nil, nil
		}
		return nil, fmt.Errorf("token API error: %s", body.Message)
	}
	return body.Result, nil
}
