package webhook

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	payo "github.com/payoapp/payo/pkg"
	"github.com/shopspring/decimal"
)

func testUpdate() payo.InvoiceUpdate {
	inv := payo.Invoice{
		ID:           "inv_abc123",
		Method:       payo.MethodOnchainBTC,
		AmountCrypto: "0.00026000",
	}
	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	return payo.NewInvoiceUpdate(inv, payo.StatusConfirmed, "txhash1", decimal.RequireFromString("0.00026"), at)
}

func TestCanonicalizeSortsKeys(t *testing.T) {
	body, err := Canonicalize(testUpdate())
	if err != nil {
		t.Fatal(err)
	}
	want := `{"amount_expected":"0.00026000","amount_received":"0.00026","invoice_id":"inv_abc123",` +
		`"method":"BTC","received_at":"2025-06-01T12:00:00Z","status":"confirmed","tx_hash":"txhash1",` +
		`"type":"invoice.updated"}`
	if string(body) != want {
		t.Errorf("canonical form mismatch:\n got %s\nwant %s", body, want)
	}
}

func TestCanonicalFormIsOrderIndependent(t *testing.T) {
	a, err := Canonicalize(map[string]any{"b": 2, "a": 1, "c": map[string]any{"z": true, "y": false}})
	if err != nil {
		t.Fatal(err)
	}
	b, err := Canonicalize(map[string]any{"c": map[string]any{"y": false, "z": true}, "a": 1, "b": 2})
	if err != nil {
		t.Fatal(err)
	}
	if string(a) != string(b) {
		t.Errorf("canonical forms differ:\n%s\n%s", a, b)
	}
	if string(a) != `{"a":1,"b":2,"c":{"y":false,"z":true}}` {
		t.Errorf("unexpected canonical form: %s", a)
	}
}

func TestSignAndVerify(t *testing.T) {
	body, _ := Canonicalize(testUpdate())
	sig := Sign(body, "secret1")

	if !Verify(body, sig, "secret1") {
		t.Errorf("valid signature must verify")
	}
	if Verify(body, sig, "secret2") {
		t.Errorf("wrong secret must not verify")
	}
	if Verify(body, "", "secret1") {
		t.Errorf("empty signature must not verify")
	}

	// flipping one body byte invalidates the signature
	tampered := append([]byte{}, body...)
	tampered[0] ^= 1
	if Verify(tampered, sig, "secret1") {
		t.Errorf("tampered body must not verify")
	}
}

func TestDeliverSignsWireBody(t *testing.T) {
	var gotBody []byte
	var gotSig, gotKey, gotType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		gotSig = r.Header.Get("X-Signature")
		gotKey = r.Header.Get("X-Idempotency-Key")
		gotType = r.Header.Get("Content-Type")
	}))
	defer srv.Close()

	n := NewNotifier()
	if err := n.Deliver(testUpdate(), srv.URL, "secret1", "inv_abc123:confirmed"); err != nil {
		t.Fatal(err)
	}

	// the signature must validate against the body exactly as received
	if !Verify(gotBody, gotSig, "secret1") {
		t.Errorf("wire body does not verify against its signature")
	}
	if gotKey != "inv_abc123:confirmed" {
		t.Errorf("idempotency key = %q", gotKey)
	}
	if gotType != "application/json" {
		t.Errorf("content type = %q", gotType)
	}
}

func TestDeliverWithoutSecretOmitsSignature(t *testing.T) {
	var sawSignature bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, sawSignature = r.Header["X-Signature"]
	}))
	defer srv.Close()

	n := NewNotifier()
	if err := n.Deliver(testUpdate(), srv.URL, "", ""); err != nil {
		t.Fatal(err)
	}
	if sawSignature {
		t.Errorf("unsecured delivery must not carry a signature header")
	}
}

func TestDeliverNon2xxIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer srv.Close()

	n := NewNotifier()
	if err := n.Deliver(testUpdate(), srv.URL, "s", ""); err == nil {
		t.Fatal("expected an error for a 502 response")
	}
}
