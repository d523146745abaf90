package payo

import (
	"fmt"
	"net/url"
	"time"

	"github.com/shopspring/decimal"
)

type CoinAmount = decimal.Decimal

var ZeroCoins = decimal.NewFromInt(0)

// InvoiceStatus is the settlement lifecycle of an invoice.
//
// Legitimate forward transitions are pending → detected → confirmed
// and pending → expired. Detected and confirmed are never reverted;
// expired is terminal.
type InvoiceStatus string

const (
	StatusPending   InvoiceStatus = "pending"
	StatusDetected  InvoiceStatus = "detected"
	StatusConfirmed InvoiceStatus = "confirmed"
	StatusExpired   InvoiceStatus = "expired"
)

// PaymentMethod selects the asset, chain and settlement network
// an invoice is paid through.
type PaymentMethod string

const (
	MethodOnchainBTC PaymentMethod = "BTC"
	MethodLightning  PaymentMethod = "BTC_LN"
	MethodTokenUSDC  PaymentMethod = "USDC_BASE"
)

var PaymentMethods = []PaymentMethod{MethodOnchainBTC, MethodLightning, MethodTokenUSDC}

// Network resolves the settlement network that observes payments
// for this method.
func (m PaymentMethod) Network() (Network, error) {
	switch m {
	case MethodOnchainBTC:
		return NetworkOnchain, nil
	case MethodLightning:
		return NetworkInstant, nil
	case MethodTokenUSDC:
		return NetworkToken, nil
	}
	return "", NewErr(BadRequest, "unsupported payment method: %s", m)
}

// AssetChain resolves the asset symbol and chain name for this method.
func (m PaymentMethod) AssetChain() (asset string, chain string, err error) {
	switch m {
	case MethodOnchainBTC, MethodLightning:
		return "BTC", "bitcoin", nil
	case MethodTokenUSDC:
		return "USDC", "base", nil
	}
	return "", "", NewErr(BadRequest, "unsupported payment method: %s", m)
}

// Invoice is a request for payment of a fixed crypto amount, with an expiry.
type Invoice struct {
	ID           string        `json:"id"`
	Method       PaymentMethod `json:"method"`
	AmountFiat   CoinAmount    `json:"amount_fiat"`
	AmountCrypto string        `json:"amount_crypto"`
	Asset        string        `json:"asset"`
	Chain        string        `json:"chain"`
	// PayTo is the address, payment request or account the invoice is
	// paid to. It is what the network listeners watch.
	PayTo       string        `json:"pay_to"`
	Status      InvoiceStatus `json:"status"`
	Description string        `json:"description"`
	ExpiresAt   time.Time     `json:"expires_at"`
	Created     time.Time     `json:"created"`
	Updated     time.Time     `json:"updated"`
}

// Expired reports whether the invoice's expiry deadline has passed.
// It says nothing about the stored status; the expiry sweep is what
// moves pending invoices to StatusExpired.
func (i *Invoice) Expired(now time.Time) bool {
	return !now.Before(i.ExpiresAt)
}

func (i *Invoice) PaymentURL(base string) string {
	return fmt.Sprintf("%s/%s", base, url.PathEscape(i.ID))
}

// QRData is the payment URI encoded into the invoice QR code.
func (i *Invoice) QRData() string {
	switch i.Method {
	case MethodOnchainBTC:
		return fmt.Sprintf("bitcoin:%s?amount=%s", i.PayTo, i.AmountCrypto)
	case MethodLightning:
		return fmt.Sprintf("lightning:%s", i.PayTo)
	case MethodTokenUSDC:
		return fmt.Sprintf("ethereum:%s?value=%s", i.PayTo, i.AmountCrypto)
	}
	return i.PayTo
}

// InvoiceUpdate is the webhook wire payload for an invoice transition.
// Field set and names are part of the external contract; the canonical
// (signed) form is the sorted-key compact JSON encoding of this object.
type InvoiceUpdate struct {
	Type           string        `json:"type"` // always "invoice.updated"
	InvoiceID      string        `json:"invoice_id"`
	Status         InvoiceStatus `json:"status"`
	Method         PaymentMethod `json:"method"`
	TxHash         string        `json:"tx_hash"`
	AmountExpected string        `json:"amount_expected"`
	AmountReceived string        `json:"amount_received"`
	ReceivedAt     string        `json:"received_at"` // ISO-8601 UTC
}

func NewInvoiceUpdate(inv Invoice, status InvoiceStatus, txHash string, amountReceived CoinAmount, at time.Time) InvoiceUpdate {
	return InvoiceUpdate{
		Type:           "invoice.updated",
		InvoiceID:      inv.ID,
		Status:         status,
		Method:         inv.Method,
		TxHash:         txHash,
		AmountExpected: inv.AmountCrypto,
		AmountReceived: amountReceived.String(),
		ReceivedAt:     at.UTC().Format(time.RFC3339),
	}
}
