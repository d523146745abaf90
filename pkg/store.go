package payo

import "time"

type Store interface {
	// StoreInvoice stores a new invoice.
	StoreInvoice(invoice Invoice) error
	// GetInvoice returns the invoice with the given ID.
	GetInvoice(id string) (Invoice, error)
	// ListInvoices returns invoices filtered by status and/or method
	// (empty values mean "any"), newest first.
	ListInvoices(status InvoiceStatus, method PaymentMethod, limit int, offset int) ([]Invoice, error)
	// ListPendingInvoices returns all invoices currently in StatusPending.
	ListPendingInvoices() ([]Invoice, error)
	// ListExpiredPending returns pending invoices whose expiry deadline
	// has passed as of 'now'. The caller is responsible for the actual
	// status transition (via CompareAndSetStatus).
	ListExpiredPending(now time.Time) ([]Invoice, error)
	// GetStatus returns the current status of an invoice.
	GetStatus(id string) (InvoiceStatus, error)
	// CompareAndSetStatus updates the invoice status only if the stored
	// status still equals 'expected'. Returns false (and no error) if a
	// concurrent writer got there first.
	CompareAndSetStatus(id string, expected InvoiceStatus, next InvoiceStatus) (bool, error)
	// InsertPayment records the payment that settles an invoice.
	InsertPayment(p Payment) error
	// UpdatePaymentConfirmed stamps the invoice's payment record as
	// confirmed, updating its confirmation count.
	UpdatePaymentConfirmed(invoiceID string, confirmations int, confirmedAt time.Time) error
	// GetPayment returns the payment recorded for an invoice.
	GetPayment(invoiceID string) (Payment, error)
	// Close the underlying database.
	Close()
}
