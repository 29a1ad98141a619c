package api

import (
	"errors"
	"math"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/snarg/scribe-engine/internal/billing"
	"github.com/snarg/scribe-engine/internal/database"
)

type UsersHandler struct {
	store  Store
	ledger Ledger
	log    zerolog.Logger
}

func NewUsersHandler(store Store, ledger Ledger, log zerolog.Logger) *UsersHandler {
	return &UsersHandler{store: store, ledger: ledger, log: log.With().Str("handler", "users").Logger()}
}

func (h *UsersHandler) Routes(r chi.Router) {
	r.Get("/", h.GetUser)
	r.Post("/updateBalance", h.UpdateBalance)
}

// GetUser returns the caller's profile and balance as {user}.
func (h *UsersHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	clerkID, ok := requireUser(w, r)
	if !ok {
		return
	}
	user, err := h.store.GetUserByClerkID(r.Context(), clerkID)
	if errors.Is(err, database.ErrNotFound) {
		WriteError(w, http.StatusNotFound, "User not found")
		return
	}
	if err != nil {
		h.log.Error().Err(err).Str("clerk_id", clerkID).Msg("load user failed")
		WriteError(w, http.StatusInternalServerError, "Server error")
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"user": user})
}

type updateBalanceRequest struct {
	Duration *float64 `json:"duration" validate:"required,gte=0"`
}

// UpdateBalance charges floor(duration/60) minutes and returns the updated user.
func (h *UsersHandler) UpdateBalance(w http.ResponseWriter, r *http.Request) {
	clerkID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req updateBalanceRequest
	if !DecodeAndValidate(w, r, &req) {
		return
	}
	if math.IsInf(*req.Duration, 0) || *req.Duration > math.MaxInt32 {
		WriteError(w, http.StatusBadRequest, "Invalid duration")
		return
	}

	user, err := h.ledger.Debit(r.Context(), clerkID, int(math.Floor(*req.Duration)))
	switch {
	case errors.Is(err, billing.ErrUserNotFound):
		WriteError(w, http.StatusNotFound, "User not found")
		return
	case errors.Is(err, billing.ErrInsufficientBalance):
		WriteError(w, http.StatusBadRequest, "Insufficient balance")
		return
	case errors.Is(err, billing.ErrInvalidDuration):
		WriteError(w, http.StatusBadRequest, "Invalid duration")
		return
	case err != nil:
		h.log.Error().Err(err).Str("clerk_id", clerkID).Msg("debit failed")
		WriteError(w, http.StatusInternalServerError, "Server internal error")
		return
	}
	WriteJSON(w, http.StatusOK, user)
}
