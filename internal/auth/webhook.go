package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	svix "github.com/svix/svix-webhooks/go"
)

var (
	ErrMissingHeaders   = errors.New("missing svix headers")
	ErrInvalidSignature = errors.New("invalid webhook signature")
)

// WebhookVerifier checks svix signatures on Clerk webhook deliveries.
type WebhookVerifier struct {
	wh *svix.Webhook
}

// NewWebhookVerifier creates a verifier from a "whsec_..." signing secret.
func NewWebhookVerifier(secret string) (*WebhookVerifier, error) {
	wh, err := svix.NewWebhook(secret)
	if err != nil {
		return nil, fmt.Errorf("webhook secret: %w", err)
	}
	return &WebhookVerifier{wh: wh}, nil
}

// Verify checks the svix-id, svix-timestamp and svix-signature headers against payload.
func (v *WebhookVerifier) Verify(payload []byte, header http.Header) error {
	for _, h := range []string{"svix-id", "svix-timestamp", "svix-signature"} {
		if header.Get(h) == "" {
			return ErrMissingHeaders
		}
	}
	if err := v.wh.Verify(payload, header); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return nil
}

// ClerkEvent is a Clerk webhook envelope.
type ClerkEvent struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// ClerkUser is the user object carried by user.* events.
type ClerkUser struct {
	ID        string  `json:"id"`
	FirstName *string `json:"first_name"`
	LastName  *string `json:"last_name"`
	Username  *string `json:"username"`
}

// DisplayName joins first and last name, falling back to "Unnamed".
func (u ClerkUser) DisplayName() string {
	var parts []string
	for _, p := range []*string{u.FirstName, u.LastName} {
		if p != nil {
			if s := strings.TrimSpace(*p); s != "" {
				parts = append(parts, s)
			}
		}
	}
	if len(parts) == 0 {
		return "Unnamed"
	}
	return strings.Join(parts, " ")
}
