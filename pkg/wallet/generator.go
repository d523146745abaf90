package wallet

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	payo "github.com/payoapp/payo/pkg"
	"github.com/shopspring/decimal"
)

// bech32 character set, used for plausible-looking dev identifiers
const charset = "qpzry9x8gf2tvdw0s3jn54khce6mua7l"

var satsPerCoin = decimal.NewFromInt(100_000_000)

// Generator issues fresh pay-to identifiers per payment method.
//
// This is the development generator: identifiers are well-formed but
// not derived from any key material. Production deployments swap in a
// generator backed by an HD wallet / Lightning node; the rest of the
// system only sees the payo.IdentifierSource interface.
type Generator struct{}

// interface guard ensures Generator implements payo.IdentifierSource
var _ payo.IdentifierSource = Generator{}

func NewGenerator() Generator {
	return Generator{}
}

func (g Generator) PayTo(method payo.PaymentMethod, amountCrypto string, memo string) (string, error) {
	switch method {
	case payo.MethodOnchainBTC:
		return "bc1q" + randomCharset(38), nil
	case payo.MethodLightning:
		return lightningRequest(amountCrypto)
	case payo.MethodTokenUSDC:
		return "0x" + randomHex(20), nil
	}
	return "", payo.NewErr(payo.BadRequest, "unsupported payment method: %s", method)
}

// lightningRequest builds a BOLT11-shaped payment request carrying the
// invoice amount in sats.
func lightningRequest(amountCrypto string) (string, error) {
	amount, err := decimal.NewFromString(amountCrypto)
	if err != nil {
		return "", payo.NewErr(payo.BadRequest, "bad crypto amount %q: %v", amountCrypto, err)
	}
	sats := amount.Mul(satsPerCoin).IntPart()
	return fmt.Sprintf("lnbc%d1%s", sats, randomCharset(180)), nil
}

func randomCharset(n int) string {
	bytes := make([]byte, n)
	rand.Read(bytes)
	out := make([]byte, n)
	for i, b := range bytes {
		out[i] = charset[int(b)%len(charset)]
	}
	return string(out)
}

func randomHex(n int) string {
	bytes := make([]byte, n)
	rand.Read(bytes)
	return hex.EncodeToString(bytes)
}
