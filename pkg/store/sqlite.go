package store

import (
	"database/sql"
	"time"

	payo "github.com/payoapp/payo/pkg"

	_ "github.com/mattn/go-sqlite3"
)

var SETUP_SQL string = `
CREATE TABLE IF NOT EXISTS invoice (
	id TEXT NOT NULL PRIMARY KEY,
	method TEXT NOT NULL,
	amount_fiat TEXT NOT NULL,
	amount_crypto TEXT NOT NULL,
	asset TEXT NOT NULL,
	chain TEXT NOT NULL,
	pay_to TEXT NOT NULL UNIQUE,
	status TEXT NOT NULL,
	description TEXT,
	expires_at DATETIME NOT NULL,
	created DATETIME NOT NULL,
	updated DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS invoice_status_i ON invoice (status);

CREATE TABLE IF NOT EXISTS payment (
	invoice_id TEXT NOT NULL PRIMARY KEY,
	tx_ref TEXT NOT NULL,
	amount_received TEXT NOT NULL,
	confirmations INTEGER NOT NULL,
	detected_at DATETIME NOT NULL,
	confirmed_at DATETIME
);
`

// interface guard ensures SQLiteStore implements payo.Store
var _ payo.Store = SQLiteStore{}

type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore returns a payo.Store implementor that uses sqlite
func NewSQLiteStore(fileName string) (SQLiteStore, error) {
	db, err := sql.Open("sqlite3", fileName)
	if err != nil {
		return SQLiteStore{}, dbErr(err, "opening database")
	}
	// init tables / indexes
	_, err = db.Exec(SETUP_SQL)
	if err != nil {
		db.Close()
		return SQLiteStore{}, dbErr(err, "creating database schema")
	}
	return SQLiteStore{db}, nil
}

// Defer this until shutdown
func (s SQLiteStore) Close() {
	s.db.Close()
}

func (s SQLiteStore) StoreInvoice(inv payo.Invoice) error {
	_, err := s.db.Exec(
		"INSERT INTO invoice (id, method, amount_fiat, amount_crypto, asset, chain, pay_to, status, description, expires_at, created, updated) VALUES (?,?,?,?,?,?,?,?,?,?,?,?)",
		inv.ID, string(inv.Method), inv.AmountFiat.String(), inv.AmountCrypto, inv.Asset, inv.Chain,
		inv.PayTo, string(inv.Status), inv.Description, inv.ExpiresAt, inv.Created, inv.Updated)
	if err != nil {
		return dbErr(err, "StoreInvoice: insert")
	}
	return nil
}

const invoiceColumns = "id, method, amount_fiat, amount_crypto, asset, chain, pay_to, status, description, expires_at, created, updated"

func scanInvoice(row interface{ Scan(...any) error }) (payo.Invoice, error) {
	var inv payo.Invoice
	var method, status, amountFiat string
	err := row.Scan(&inv.ID, &method, &amountFiat, &inv.AmountCrypto, &inv.Asset, &inv.Chain,
		&inv.PayTo, &status, &inv.Description, &inv.ExpiresAt, &inv.Created, &inv.Updated)
	if err != nil {
		return payo.Invoice{}, err
	}
	inv.Method = payo.PaymentMethod(method)
	inv.Status = payo.InvoiceStatus(status)
	inv.AmountFiat, err = parseAmount(amountFiat)
	if err != nil {
		return payo.Invoice{}, err
	}
	return inv, nil
}

func (s SQLiteStore) GetInvoice(id string) (payo.Invoice, error) {
	row := s.db.QueryRow("SELECT "+invoiceColumns+" FROM invoice WHERE id = ?", id)
	inv, err := scanInvoice(row)
	if err == sql.ErrNoRows {
		return payo.Invoice{}, payo.NewErr(payo.NotFound, "invoice not found: %v", id)
	}
	if err != nil {
		return payo.Invoice{}, dbErr(err, "GetInvoice: row.Scan")
	}
	return inv, nil
}

func (s SQLiteStore) ListInvoices(status payo.InvoiceStatus, method payo.PaymentMethod, limit int, offset int) (items []payo.Invoice, err error) {
	query := "SELECT " + invoiceColumns + " FROM invoice WHERE 1=1"
	args := []any{}
	if status != "" {
		query += " AND status = ?"
		args = append(args, string(status))
	}
	if method != "" {
		query += " AND method = ?"
		args = append(args, string(method))
	}
	query += " ORDER BY created DESC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, dbErr(err, "ListInvoices: querying invoices")
	}
	defer rows.Close()
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, dbErr(err, "ListInvoices: scanning invoice row")
		}
		items = append(items, inv)
	}
	if err = rows.Err(); err != nil { // docs say this check is required!
		return nil, dbErr(err, "ListInvoices: querying invoices")
	}
	return items, nil
}

func (s SQLiteStore) ListPendingInvoices() ([]payo.Invoice, error) {
	return s.listByWhere("status = ?", string(payo.StatusPending))
}

func (s SQLiteStore) ListExpiredPending(now time.Time) ([]payo.Invoice, error) {
	return s.listByWhere("status = ? AND expires_at <= ?", string(payo.StatusPending), now)
}

func (s SQLiteStore) listByWhere(where string, args ...any) (items []payo.Invoice, err error) {
	rows, err := s.db.Query("SELECT "+invoiceColumns+" FROM invoice WHERE "+where, args...)
	if err != nil {
		return nil, dbErr(err, "listByWhere: querying invoices")
	}
	defer rows.Close()
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, dbErr(err, "listByWhere: scanning invoice row")
		}
		items = append(items, inv)
	}
	if err = rows.Err(); err != nil {
		return nil, dbErr(err, "listByWhere: querying invoices")
	}
	return items, nil
}

func (s SQLiteStore) GetStatus(id string) (payo.InvoiceStatus, error) {
	row := s.db.QueryRow("SELECT status FROM invoice WHERE id = ?", id)
	var status string
	err := row.Scan(&status)
	if err == sql.ErrNoRows {
		return "", payo.NewErr(payo.NotFound, "invoice not found: %v", id)
	}
	if err != nil {
		return "", dbErr(err, "GetStatus: row.Scan")
	}
	return payo.InvoiceStatus(status), nil
}

func (s SQLiteStore) CompareAndSetStatus(id string, expected payo.InvoiceStatus, next payo.InvoiceStatus) (bool, error) {
	res, err := s.db.Exec("UPDATE invoice SET status = ?, updated = ? WHERE id = ? AND status = ?",
		string(next), time.Now().UTC(), id, string(expected))
	if err != nil {
		return false, dbErr(err, "CompareAndSetStatus: update")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, dbErr(err, "CompareAndSetStatus: rows affected")
	}
	return n > 0, nil
}

func (s SQLiteStore) InsertPayment(p payo.Payment) error {
	_, err := s.db.Exec(
		"INSERT INTO payment (invoice_id, tx_ref, amount_received, confirmations, detected_at, confirmed_at) VALUES (?,?,?,?,?,?)",
		p.InvoiceID, p.TxRef, p.AmountReceived.String(), p.Confirmations, p.DetectedAt, p.ConfirmedAt)
	if err != nil {
		return dbErr(err, "InsertPayment: insert")
	}
	return nil
}

func (s SQLiteStore) UpdatePaymentConfirmed(invoiceID string, confirmations int, confirmedAt time.Time) error {
	res, err := s.db.Exec("UPDATE payment SET confirmations = ?, confirmed_at = ? WHERE invoice_id = ?",
		confirmations, confirmedAt, invoiceID)
	if err != nil {
		return dbErr(err, "UpdatePaymentConfirmed: update")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return dbErr(err, "UpdatePaymentConfirmed: rows affected")
	}
	if n == 0 {
		return payo.NewErr(payo.NotFound, "no payment recorded for invoice: %v", invoiceID)
	}
	return nil
}

func (s SQLiteStore) GetPayment(invoiceID string) (payo.Payment, error) {
	row := s.db.QueryRow(
		"SELECT invoice_id, tx_ref, amount_received, confirmations, detected_at, confirmed_at FROM payment WHERE invoice_id = ?",
		invoiceID)
	var p payo.Payment
	var amount string
	err := row.Scan(&p.InvoiceID, &p.TxRef, &amount, &p.Confirmations, &p.DetectedAt, &p.ConfirmedAt)
	if err == sql.ErrNoRows {
		return payo.Payment{}, payo.NewErr(payo.NotFound, "no payment recorded for invoice: %v", invoiceID)
	}
	if err != nil {
		return payo.Payment{}, dbErr(err, "GetPayment: row.Scan")
	}
	p.AmountReceived, err = parseAmount(amount)
	if err != nil {
		return payo.Payment{}, dbErr(err, "GetPayment: parsing amount")
	}
	return p, nil
}
