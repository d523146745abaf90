package wallet

import (
	"strings"
	"testing"

	payo "github.com/payoapp/payo/pkg"
)

func TestGeneratorOnchainAddress(t *testing.T) {
	g := NewGenerator()
	addr, err := g.PayTo(payo.MethodOnchainBTC, "0.00026000", "")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(addr, "bc1q") {
		t.Errorf("address = %q, want bc1q prefix", addr)
	}
	if len(addr) != 42 {
		t.Errorf("address length = %d, want 42", len(addr))
	}

	other, _ := g.PayTo(payo.MethodOnchainBTC, "0.00026000", "")
	if other == addr {
		t.Errorf("identifiers must be unique per invoice")
	}
}

func TestGeneratorLightningRequest(t *testing.T) {
	g := NewGenerator()
	pr, err := g.PayTo(payo.MethodLightning, "0.00026000", "Payo Invoice inv_1")
	if err != nil {
		t.Fatal(err)
	}
	// 0.00026 BTC is 26000 sats, encoded into the request prefix
	if !strings.HasPrefix(pr, "lnbc260001") {
		t.Errorf("payment request = %.20q, want lnbc260001 prefix", pr)
	}

	if _, err := g.PayTo(payo.MethodLightning, "not-a-number", ""); !payo.IsError(err, payo.BadRequest) {
		t.Errorf("bad amount must be rejected, got %v", err)
	}
}

func TestGeneratorTokenAccount(t *testing.T) {
	g := NewGenerator()
	acct, err := g.PayTo(payo.MethodTokenUSDC, "27.000000", "")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(acct, "0x") || len(acct) != 42 {
		t.Errorf("account = %q, want 0x plus 40 hex chars", acct)
	}
}

func TestGeneratorUnknownMethod(t *testing.T) {
	g := NewGenerator()
	if _, err := g.PayTo(payo.PaymentMethod("DOGE"), "1", ""); !payo.IsError(err, payo.BadRequest) {
		t.Errorf("expected bad-request, got %v", err)
	}
}
