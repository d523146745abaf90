package payo

import "time"

// Payment records an observed transfer that settled (or is settling)
// an invoice. At most one payment is recorded per invoice.
type Payment struct {
	InvoiceID      string     `json:"invoice_id"`
	TxRef          string     `json:"tx_hash"`
	AmountReceived CoinAmount `json:"amount_received"`
	Confirmations  int        `json:"confirmations"`
	DetectedAt     time.Time  `json:"detected_at"`
	ConfirmedAt    *time.Time `json:"confirmed_at,omitempty"`
}
