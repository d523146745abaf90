package payo

// Network identifies a settlement network with its own confirmation
// semantics and polling cadence.
type Network string

const (
	NetworkOnchain Network = "onchain"
	NetworkInstant Network = "instant"
	NetworkToken   Network = "token"
)

// WatchTarget binds a watched identifier to the invoice it belongs to.
// An identifier maps to at most one invoice at a time within a listener.
type WatchTarget struct {
	PayTo     string
	InvoiceID string
	Network   Network
}

// PaymentEvent is the normalized result of a network observation.
//
// Listeners fill in PayTo (the watched identifier the transfer was seen
// on); the manager resolves InvoiceID from its own identifier table
// before reconciliation. Events are not guaranteed unique across polls
// for the same transfer, so reconciliation must be idempotent.
type PaymentEvent struct {
	PayTo          string
	InvoiceID      string
	TxRef          string
	AmountObserved CoinAmount
	Confirmations  int
	Network        Network
}

// RateSource converts a fiat amount into a formatted crypto amount
// for a payment method.
type RateSource interface {
	Convert(amountFiat CoinAmount, method PaymentMethod) (string, error)
	// Rates returns the current fiat rate per unit of each supported asset.
	Rates() (map[string]string, error)
}

// IdentifierSource issues the pay-to identifier for a new invoice:
// an address, payment request or account reference depending on method.
type IdentifierSource interface {
	PayTo(method PaymentMethod, amountCrypto string, memo string) (string, error)
}
