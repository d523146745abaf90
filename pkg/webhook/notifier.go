package webhook

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Notifier delivers JSON payloads to subscriber endpoints as signed
// HTTP POSTs.
//
// The signature covers the canonical byte form of the payload (keys
// sorted, compact separators), and that exact byte form is what goes
// on the wire, so the subscriber can verify against the body as
// received.
type Notifier struct {
	client *http.Client
}

func NewNotifier() *Notifier {
	return &Notifier{client: &http.Client{Timeout: 10 * time.Second}}
}

// Canonicalize renders a payload in its canonical byte form: object
// keys sorted lexicographically, no insignificant whitespace.
func Canonicalize(payload any) ([]byte, error) {
	// Round-trip through a generic value: encoding/json writes map
	// keys in sorted order, which is exactly the canonical form.
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, err
	}
	return json.Marshal(generic)
}

// Sign computes the hex HMAC-SHA256 of the canonical body.
func Sign(body []byte, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

// Verify checks a signature against the canonical body in constant time.
func Verify(body []byte, signature, secret string) bool {
	if signature == "" {
		return false
	}
	return hmac.Equal([]byte(signature), []byte(Sign(body, secret)))
}

// Deliver makes a single delivery attempt: 2xx is success, anything
// else is an error for the caller's retry policy to deal with.
// The idempotency key, when set, lets the subscriber de-duplicate
// redelivered transitions.
func (n *Notifier) Deliver(payload any, url string, secret string, idempotencyKey string) error {
	body, err := Canonicalize(payload)
	if err != nil {
		return fmt.Errorf("canonicalizing payload: %w", err)
	}
	req, err := http.NewRequest("POST", url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if secret != "" {
		req.Header.Set("X-Signature", Sign(body, secret))
	}
	if idempotencyKey != "" {
		req.Header.Set("X-Idempotency-Key", idempotencyKey)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook endpoint returned status %d", resp.StatusCode)
	}
	return nil
}
