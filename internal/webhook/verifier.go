// Package webhook authenticates provider callbacks and remembers which ones
// have already been applied.
package webhook

import (
	"net/http"

	ierr "github.com/rongwang/leasehub-server/internal/errors"
	svix "github.com/svix/svix-webhooks/go"
)

// Verifier checks the svix-id, svix-timestamp and svix-signature headers of a
// callback against a shared secret. Timestamps outside the tolerance window
// are rejected, which bounds replays.
type Verifier struct {
	wh *svix.Webhook
}

// NewVerifier builds a Verifier for a "whsec_" secret. An empty secret gives a
// Verifier that rejects every request.
func NewVerifier(secret string) (*Verifier, error) {
	if secret == "" {
		return &Verifier{}, nil
	}

	wh, err := svix.NewWebhook(secret)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Webhook secret is malformed").
			Mark(ierr.ErrValidation)
	}

	return &Verifier{wh: wh}, nil
}

// Verify returns an unauthorized error unless payload carries a valid signature
func (v *Verifier) Verify(payload []byte, headers http.Header) error {
	if v.wh == nil {
		return ierr.NewError("webhook secret not configured").
			WithHint("Webhook signature could not be verified").
			Mark(ierr.ErrUnauthorized)
	}

	if err := v.wh.Verify(payload, headers); err != nil {
		return ierr.WithError(err).
			WithHint("Webhook signature could not be verified").
			Mark(ierr.ErrUnauthorized)
	}

	return nil
}
