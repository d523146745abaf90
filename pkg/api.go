package payo

import (
	"crypto/rand"
	"encoding/hex"
	"time"
)

type API struct {
	Store  Store
	Rates  RateSource
	Wallet IdentifierSource
	Bus    MessageBus
	config Config
}

func NewAPI(store Store, rates RateSource, wallet IdentifierSource, bus MessageBus, config Config) API {
	return API{Store: store, Rates: rates, Wallet: wallet, Bus: bus, config: config}
}

type InvoiceCreateRequest struct {
	AmountFiat    CoinAmount    `json:"amount_fiat"`
	Method        PaymentMethod `json:"method"`
	Description   string        `json:"description"`
	ExpiryMinutes int           `json:"expiry_minutes"` // optional, default from config
}

func (r InvoiceCreateRequest) Validate() error {
	if r.AmountFiat.LessThanOrEqual(ZeroCoins) {
		return NewErr(BadRequest, "amount_fiat must be greater than zero")
	}
	if _, err := r.Method.Network(); err != nil {
		return err
	}
	if r.ExpiryMinutes < 0 {
		return NewErr(BadRequest, "expiry_minutes cannot be negative")
	}
	return nil
}

func (a API) CreateInvoice(request InvoiceCreateRequest) (Invoice, error) {
	if err := request.Validate(); err != nil {
		return Invoice{}, err
	}
	asset, chain, err := request.Method.AssetChain()
	if err != nil {
		return Invoice{}, err
	}
	amountCrypto, err := a.Rates.Convert(request.AmountFiat, request.Method)
	if err != nil {
		return Invoice{}, NewErr(NotAvailable, "rate conversion failed: %v", err)
	}
	id := "inv_" + randomHex(6)
	payTo, err := a.Wallet.PayTo(request.Method, amountCrypto, "Payo Invoice "+id)
	if err != nil {
		return Invoice{}, NewErr(UnknownError, "identifier generation failed: %v", err)
	}
	expiry := request.ExpiryMinutes
	if expiry == 0 {
		expiry = a.config.Gateway.ExpiryMinutes
	}
	now := time.Now().UTC()
	inv := Invoice{
		ID:           id,
		Method:       request.Method,
		AmountFiat:   request.AmountFiat,
		AmountCrypto: amountCrypto,
		Asset:        asset,
		Chain:        chain,
		PayTo:        payTo,
		Status:       StatusPending,
		Description:  request.Description,
		ExpiresAt:    now.Add(time.Duration(expiry) * time.Minute),
		Created:      now,
		Updated:      now,
	}
	err = a.Store.StoreInvoice(inv)
	if err != nil {
		return Invoice{}, err
	}
	a.Bus.Send(INV_CREATED, inv, inv.ID)
	return inv, nil
}

func (a API) GetInvoice(id string) (Invoice, error) {
	return a.Store.GetInvoice(id)
}

func (a API) ListInvoices(status InvoiceStatus, method PaymentMethod, limit int, offset int) ([]Invoice, error) {
	items, err := a.Store.ListInvoices(status, method, limit, offset)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []Invoice{} // encoded as '[]' in JSON
	}
	return items, nil
}

func (a API) ExchangeRates() (map[string]string, error) {
	return a.Rates.Rates()
}

func (a API) PaymentURL(inv Invoice) string {
	return inv.PaymentURL(a.config.Gateway.PaymentURLBase)
}

func randomHex(n int) string {
	bytes := make([]byte, n)
	rand.Read(bytes)
	return hex.EncodeToString(bytes)
}
