package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	domainErrors "github.com/cassiomorais/studiopay/internal/domain/errors"
)

// SignatureHeader carries the hex HMAC-SHA256 of the raw callback body.
const SignatureHeader = "X-Callback-Signature"

const signaturePrefix = "sha256="

// Verifier authenticates and decodes provider callbacks.
type Verifier struct {
	secret []byte
	skip   bool
}

// NewVerifier returns a verifier for secret. With skip set, signatures are
// not checked at all; configuration validation keeps that out of production.
func NewVerifier(secret string, skip bool) *Verifier {
	return &Verifier{secret: []byte(secret), skip: skip}
}

// Skipping reports whether signature checks are disabled.
func (v *Verifier) Skipping() bool {
	return v.skip
}

// VerifyCallback checks the signature over rawBody and decodes the event.
func (v *Verifier) VerifyCallback(rawBody []byte, signature string) (*CallbackEvent, error) {
	if !v.skip {
		if err := v.verify(rawBody, signature); err != nil {
			return nil, err
		}
	}

	var event CallbackEvent
	if err := json.Unmarshal(rawBody, &event); err != nil {
		return nil, fmt.Errorf("%w: decode callback: %v", domainErrors.ErrInvalidInput, err)
	}
	event.Reference = strings.TrimSpace(event.Reference)
	if event.Reference == "" {
		return nil, domainErrors.NewValidationError("payeePaymentReference", "is required")
	}
	return &event, nil
}

func (v *Verifier) verify(rawBody []byte, signature string) error {
	if len(v.secret) == 0 {
		return fmt.Errorf("%w: no callback secret configured", domainErrors.ErrInvalidSignature)
	}
	signature = strings.TrimPrefix(strings.TrimSpace(signature), signaturePrefix)
	if signature == "" {
		return fmt.Errorf("%w: missing signature", domainErrors.ErrInvalidSignature)
	}
	given, err := hex.DecodeString(strings.ToLower(signature))
	if err != nil {
		return fmt.Errorf("%w: malformed signature", domainErrors.ErrInvalidSignature)
	}
	if !hmac.Equal(given, v.mac(rawBody)) {
		return domainErrors.ErrInvalidSignature
	}
	return nil
}

// Sign returns the header value the provider sends for body.
func (v *Verifier) Sign(body []byte) string {
	return signaturePrefix + hex.EncodeToString(v.mac(body))
}

func (v *Verifier) mac(body []byte) []byte {
	h := hmac.New(sha256.New, v.secret)
	h.Write(body)
	return h.Sum(nil)
}
