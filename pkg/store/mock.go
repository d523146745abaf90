package store

import (
	"sync"
	"time"

	payo "github.com/payoapp/payo/pkg"
)

// interface guard ensures Mock implements payo.Store
var _ payo.Store = &Mock{}

// Mock is an in-memory store for tests.
type Mock struct {
	mu       sync.Mutex
	invoices map[string]payo.Invoice
	payments map[string]payo.Payment
}

func NewMock() *Mock {
	return &Mock{
		invoices: make(map[string]payo.Invoice),
		payments: make(map[string]payo.Payment),
	}
}

func (m *Mock) Close() {}

func (m *Mock) StoreInvoice(inv payo.Invoice) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.invoices[inv.ID]; exists {
		return payo.NewErr(payo.AlreadyExists, "invoice already exists: %v", inv.ID)
	}
	m.invoices[inv.ID] = inv
	return nil
}

func (m *Mock) GetInvoice(id string) (payo.Invoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, ok := m.invoices[id]
	if !ok {
		return payo.Invoice{}, payo.NewErr(payo.NotFound, "invoice not found: %v", id)
	}
	return inv, nil
}

func (m *Mock) ListInvoices(status payo.InvoiceStatus, method payo.PaymentMethod, limit int, offset int) ([]payo.Invoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var items []payo.Invoice
	for _, inv := range m.invoices {
		if status != "" && inv.Status != status {
			continue
		}
		if method != "" && inv.Method != method {
			continue
		}
		items = append(items, inv)
	}
	if offset > len(items) {
		offset = len(items)
	}
	items = items[offset:]
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func (m *Mock) ListPendingInvoices() ([]payo.Invoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var items []payo.Invoice
	for _, inv := range m.invoices {
		if inv.Status == payo.StatusPending {
			items = append(items, inv)
		}
	}
	return items, nil
}

func (m *Mock) ListExpiredPending(now time.Time) ([]payo.Invoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var items []payo.Invoice
	for _, inv := range m.invoices {
		if inv.Status == payo.StatusPending && !now.Before(inv.ExpiresAt) {
			items = append(items, inv)
		}
	}
	return items, nil
}

func (m *Mock) GetStatus(id string) (payo.InvoiceStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, ok := m.invoices[id]
	if !ok {
		return "", payo.NewErr(payo.NotFound, "invoice not found: %v", id)
	}
	return inv.Status, nil
}

func (m *Mock) CompareAndSetStatus(id string, expected payo.InvoiceStatus, next payo.InvoiceStatus) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, ok := m.invoices[id]
	if !ok {
		return false, payo.NewErr(payo.NotFound, "invoice not found: %v", id)
	}
	if inv.Status != expected {
		return false, nil
	}
	inv.Status = next
	inv.Updated = time.Now().UTC()
	m.invoices[id] = inv
	return true, nil
}

func (m *Mock) InsertPayment(p payo.Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.payments[p.InvoiceID]; exists {
		return payo.NewErr(payo.AlreadyExists, "payment already recorded for invoice: %v", p.InvoiceID)
	}
	m.payments[p.InvoiceID] = p
	return nil
}

func (m *Mock) UpdatePaymentConfirmed(invoiceID string, confirmations int, confirmedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[invoiceID]
	if !ok {
		return payo.NewErr(payo.NotFound, "no payment recorded for invoice: %v", invoiceID)
	}
	p.Confirmations = confirmations
	p.ConfirmedAt = &confirmedAt
	m.payments[invoiceID] = p
	return nil
}

func (m *Mock) GetPayment(invoiceID string) (payo.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[invoiceID]
	if !ok {
		return payo.Payment{}, payo.NewErr(payo.NotFound, "no payment recorded for invoice: %v", invoiceID)
	}
	return p, nil
}

// PaymentCount reports how many payment records exist (test helper).
func (m *Mock) PaymentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.payments)
}
