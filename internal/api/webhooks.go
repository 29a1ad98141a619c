package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/snarg/scribe-engine/internal/auth"
	"github.com/snarg/scribe-engine/internal/events"
)

const maxWebhookBytes = 1 << 20

type WebhooksHandler struct {
	store    Store
	verifier WebhookVerifier // nil when CLERK_WEBHOOK_SECRET is unset
	events   events.Publisher
	log      zerolog.Logger
}

func NewWebhooksHandler(store Store, verifier WebhookVerifier, pub events.Publisher, log zerolog.Logger) *WebhooksHandler {
	if pub == nil {
		pub = events.Nop{}
	}
	return &WebhooksHandler{
		store:    store,
		verifier: verifier,
		events:   pub,
		log:      log.With().Str("handler", "webhooks").Logger(),
	}
}

// Clerk handles POST /api/webhooks/clerk. user.created provisions the user
// row; redeliveries of the same event are harmless.
func (h *WebhooksHandler) Clerk(w http.ResponseWriter, r *http.Request) {
	if h.verifier == nil {
		WriteError(w, http.StatusInternalServerError, "Webhook secret not configured")
		return
	}
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBytes))
	if err != nil {
		WriteError(w, http.StatusBadRequest, "failed to read body")
		return
	}

	if err := h.verifier.Verify(payload, r.Header); err != nil {
		if errors.Is(err, auth.ErrMissingHeaders) {
			WriteError(w, http.StatusBadRequest, "Missing svix headers")
			return
		}
		h.log.Warn().Err(err).Msg("webhook verification failed")
		WriteError(w, http.StatusBadRequest, "Verification failed")
		return
	}

	var evt auth.ClerkEvent
	if err := json.Unmarshal(payload, &evt); err != nil {
		WriteErrorDetail(w, http.StatusBadRequest, "Invalid JSON body", err.Error())
		return
	}

	switch evt.Type {
	case "user.created":
		var u auth.ClerkUser
		if err := json.Unmarshal(evt.Data, &u); err != nil || u.ID == "" {
			WriteError(w, http.StatusBadRequest, "Invalid user payload")
			return
		}
		user, created, err := h.store.CreateUser(r.Context(), u.ID, u.DisplayName())
		if err != nil {
			h.log.Error().Err(err).Str("clerk_id", u.ID).Msg("create user failed")
			WriteError(w, http.StatusInternalServerError, "Server error")
			return
		}
		if created {
			h.log.Info().Str("clerk_id", u.ID).Str("name", user.Name).Msg("user provisioned")
			h.events.Publish(events.UserCreated, events.UserCreatedEvent{
				ClerkID: u.ID,
				Name:    user.Name,
				At:      time.Now().UTC(),
			})
		}
		WriteJSON(w, http.StatusOK, map[string]any{"message": "ok", "created": created})
	default:
		h.log.Debug().Str("type", evt.Type).Msg("webhook event ignored")
		WriteJSON(w, http.StatusOK, map[string]string{"message": "Event type not handled"})
	}
}
