package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/snarg/scribe-engine/internal/billing"
	"github.com/snarg/scribe-engine/internal/wompi"
)

type PaymentsHandler struct {
	ledger          Ledger
	catalog         *billing.Catalog
	integritySecret string
	log             zerolog.Logger
}

func NewPaymentsHandler(ledger Ledger, catalog *billing.Catalog, integritySecret string, log zerolog.Logger) *PaymentsHandler {
	return &PaymentsHandler{
		ledger:          ledger,
		catalog:         catalog,
		integritySecret: integritySecret,
		log:             log.With().Str("handler", "payments").Logger(),
	}
}

// Routes registers the Wompi endpoints under /api/payments/wompi.
func (h *PaymentsHandler) Routes(r chi.Router) {
	r.Get("/transaction", h.VerifyTransaction)
	r.Post("/signature", h.Signature)
	r.Post("/checkout", h.Checkout)
}

// VerifyTransaction handles GET /api/payments/wompi/transaction?transactionId=.
// Reconciles the gateway transaction and credits the caller at most once.
func (h *PaymentsHandler) VerifyTransaction(w http.ResponseWriter, r *http.Request) {
	clerkID, ok := requireUser(w, r)
	if !ok {
		return
	}
	txID, ok := QueryStringAliased(r, "transactionId", "id")
	if !ok {
		WriteError(w, http.StatusBadRequest, "transactionId query param is required")
		return
	}

	v, err := h.ledger.VerifyPayment(r.Context(), clerkID, txID)
	if err != nil {
		h.writeVerifyError(w, txID, err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	WriteJSON(w, http.StatusOK, v)
}

func (h *PaymentsHandler) writeVerifyError(w http.ResponseWriter, txID string, err error) {
	var gwErr *wompi.GatewayError
	switch {
	case errors.Is(err, billing.ErrNotConfigured):
		WriteError(w, http.StatusInternalServerError, "Wompi private key not configured")
	case errors.As(err, &gwErr):
		h.log.Warn().Int("gateway_status", gwErr.StatusCode).Str("transaction_id", txID).Msg("gateway rejected lookup")
		WriteErrorDetail(w, http.StatusBadGateway, "Failed to retrieve transaction from Wompi", gwErr.Body)
	case errors.Is(err, wompi.ErrInvalidResponse):
		WriteError(w, http.StatusBadGateway, "Invalid Wompi response")
	case errors.Is(err, wompi.ErrGateway):
		h.log.Warn().Err(err).Str("transaction_id", txID).Msg("gateway unreachable")
		WriteErrorDetail(w, http.StatusBadGateway, "Failed to retrieve transaction from Wompi", err.Error())
	case errors.Is(err, billing.ErrUnknownPackage):
		WriteError(w, http.StatusBadRequest, "Unknown package reference")
	case errors.Is(err, billing.ErrAmountMismatch):
		WriteError(w, http.StatusBadRequest, "Amount mismatch. Contact support.")
	case errors.Is(err, billing.ErrUserNotFound):
		WriteError(w, http.StatusNotFound, "User not found")
	case errors.Is(err, billing.ErrForeignPayment):
		WriteError(w, http.StatusForbidden, "This payment belongs to another account")
	default:
		h.log.Error().Err(err).Str("transaction_id", txID).Msg("payment verification failed")
		WriteError(w, http.StatusInternalServerError, "Unable to verify payment")
	}
}

type signatureRequest struct {
	Reference     string `json:"reference" validate:"required"`
	AmountInCents *int64 `json:"amountInCents" validate:"required,gt=0"`
	Currency      string `json:"currency" validate:"required,len=3"`
}

// Signature handles POST /api/payments/wompi/signature and returns the
// integrity hash the checkout widget needs.
func (h *PaymentsHandler) Signature(w http.ResponseWriter, r *http.Request) {
	if h.integritySecret == "" {
		WriteError(w, http.StatusInternalServerError, "Integrity secret not configured")
		return
	}
	if _, ok := requireUser(w, r); !ok {
		return
	}
	var req signatureRequest
	if !DecodeAndValidate(w, r, &req) {
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{
		"signature": wompi.IntegritySignature(req.Reference, *req.AmountInCents, req.Currency, h.integritySecret),
	})
}

type checkoutRequest struct {
	PackageID string `json:"packageId" validate:"required"`
}

// Checkout handles POST /api/payments/wompi/checkout.
// Mints a reference for a catalog package and signs it with the catalog price.
func (h *PaymentsHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	if h.integritySecret == "" {
		WriteError(w, http.StatusInternalServerError, "Integrity secret not configured")
		return
	}
	clerkID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req checkoutRequest
	if !DecodeAndValidate(w, r, &req) {
		return
	}
	pkg, ok := h.catalog.Lookup(req.PackageID)
	if !ok {
		WriteError(w, http.StatusBadRequest, "Unknown package")
		return
	}

	ref := billing.NewReference(pkg.ID, time.Now())
	h.log.Debug().Str("clerk_id", clerkID).Str("reference", ref).Msg("checkout reference issued")
	WriteJSON(w, http.StatusOK, map[string]any{
		"reference":     ref,
		"amountInCents": pkg.AmountInCents,
		"currency":      pkg.Currency,
		"minutes":       pkg.Minutes,
		"signature":     wompi.IntegritySignature(ref, pkg.AmountInCents, pkg.Currency, h.integritySecret),
	})
}
