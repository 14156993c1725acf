package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

const signaturePrefix = "sha256="

var (
	ErrSignatureMissing   = errors.New("signature header missing")
	ErrSignatureMalformed = errors.New("signature header malformed")
	ErrSignatureMismatch  = errors.New("signature mismatch")
)

// VerifySignature checks an X-Hub-Signature-256 header against the raw body.
//
// An empty secret disables verification: the call succeeds and a warning is
// logged on every request so an insecure deployment is never silent.
func VerifySignature(ctx context.Context, body []byte, header, secret string) bool {
	if secret == "" {
		slog.WarnContext(ctx, "webhook secret not configured, skipping signature verification")
		return true
	}

	if err := CheckSignature(body, header, secret); err != nil {
		slog.WarnContext(ctx, "webhook signature rejected", "reason", err.Error())
		return false
	}
	return true
}

// CheckSignature is VerifySignature without the insecure-mode escape hatch.
// It requires a non-empty secret and explains why a signature was refused.
func CheckSignature(body []byte, header, secret string) error {
	if secret == "" {
		return errors.New("webhook secret is empty")
	}
	if header == "" {
		return ErrSignatureMissing
	}
	if !strings.HasPrefix(header, signaturePrefix) {
		return fmt.Errorf("%w: missing %q prefix", ErrSignatureMalformed, signaturePrefix)
	}

	got, err := hex.DecodeString(strings.TrimPrefix(header, signaturePrefix))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSignatureMalformed, err)
	}
	if len(got) != sha256.Size {
		return fmt.Errorf("%w: digest is %d bytes", ErrSignatureMalformed, len(got))
	}

	if subtle.ConstantTimeCompare(Sign(body, secret), got) != 1 {
		return ErrSignatureMismatch
	}
	return nil
}

// Sign returns the raw HMAC-SHA256 of body.
func Sign(body []byte, secret string) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return mac.Sum(nil)
}

// SignatureHeader formats body's signature the way GitHub sends it.
func SignatureHeader(body []byte, secret string) string {
	return signaturePrefix + hex.EncodeToString(Sign(body, secret))
}
