package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/snarg/scribe-engine/internal/database"
	"github.com/snarg/scribe-engine/internal/events"
	"github.com/snarg/scribe-engine/internal/metrics"
	"github.com/snarg/scribe-engine/internal/wompi"
)

var (
	ErrNotConfigured       = errors.New("payment gateway not configured")
	ErrUnknownPackage      = errors.New("unknown package reference")
	ErrAmountMismatch      = errors.New("amount mismatch")
	ErrUserNotFound        = errors.New("user not found")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrInvalidDuration     = errors.New("invalid duration")
	ErrForeignPayment      = errors.New("payment belongs to another account")
)

// Result messages returned to the client after a verification.
const (
	MsgCredited         = "Balance updated successfully."
	MsgAlreadyProcessed = "This payment was already processed."
	MsgAwaiting         = "We will update your balance once the payment is confirmed."
)

// Gateway looks up payment transactions.
type Gateway interface {
	GetTransaction(ctx context.Context, id string) (*wompi.Transaction, error)
}

// Store is the persistence the ledger needs.
type Store interface {
	GetUserByClerkID(ctx context.Context, clerkID string) (*database.User, error)
	ApplyPayment(ctx context.Context, rec database.PaymentRecord) (*database.PaymentOutcome, error)
	DebitCredits(ctx context.Context, clerkID string, minutes int) (*database.User, error)
}

// Verification is the outcome of VerifyPayment.
type Verification struct {
	Status        string `json:"status"`
	Minutes       *int   `json:"minutes,omitempty"`
	AmountInCents int64  `json:"amountInCents"`
	TransactionID string `json:"transactionId"`
	Credits       int    `json:"credits"`
	Message       string `json:"message"`
	Credited      bool   `json:"-"`
}

// Ledger credits and debits minute balances.
type Ledger struct {
	store   Store
	gateway Gateway // nil when the gateway private key is not configured
	catalog *Catalog
	events  events.Publisher
	log     zerolog.Logger
}

func NewLedger(store Store, gateway Gateway, catalog *Catalog, pub events.Publisher, log zerolog.Logger) *Ledger {
	if pub == nil {
		pub = events.Nop{}
	}
	return &Ledger{
		store:   store,
		gateway: gateway,
		catalog: catalog,
		events:  pub,
		log:     log.With().Str("component", "ledger").Logger(),
	}
}

// VerifyPayment reconciles a gateway transaction for clerkID and credits the
// package minutes when the transaction is approved. Calling it again for the
// same transaction, concurrently or later, never credits a second time.
func (l *Ledger) VerifyPayment(ctx context.Context, clerkID, transactionID string) (*Verification, error) {
	if l.gateway == nil {
		return nil, ErrNotConfigured
	}

	start := time.Now()
	tx, err := l.gateway.GetTransaction(ctx, transactionID)
	metrics.ObserveProvider("wompi", "get_transaction", start, err)
	if err != nil {
		return nil, err
	}

	pkg, ok := l.catalog.PackageForReference(tx.Reference)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPackage, tx.Reference)
	}
	if tx.AmountInCents != pkg.AmountInCents {
		l.log.Warn().
			Str("transaction_id", transactionID).
			Str("package", pkg.ID).
			Int64("gateway_amount", tx.AmountInCents).
			Int64("package_amount", pkg.AmountInCents).
			Msg("payment amount does not match package")
		return nil, ErrAmountMismatch
	}

	user, err := l.store.GetUserByClerkID(ctx, clerkID)
	if errors.Is(err, database.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}

	out, err := l.store.ApplyPayment(ctx, database.PaymentRecord{
		TransactionID: transactionID,
		UserID:        user.ID,
		Reference:     tx.Reference,
		Minutes:       pkg.Minutes,
		AmountInCents: pkg.AmountInCents,
		Status:        tx.Status,
	})
	if errors.Is(err, database.ErrPaymentOwnerMismatch) {
		l.log.Warn().
			Str("transaction_id", transactionID).
			Str("clerk_id", clerkID).
			Msg("payment claimed by a user who does not own it")
		return nil, ErrForeignPayment
	}
	if err != nil {
		return nil, fmt.Errorf("apply payment: %w", err)
	}
	metrics.PaymentVerificationsTotal.WithLabelValues(out.Status).Inc()

	v := &Verification{
		Status:        out.Status,
		AmountInCents: pkg.AmountInCents,
		TransactionID: transactionID,
		Credits:       out.Credits,
		Credited:      out.Credited,
		Message:       MsgAwaiting,
	}
	if out.Status == database.PaymentApproved {
		minutes := pkg.Minutes
		v.Minutes = &minutes
		v.Message = MsgAlreadyProcessed
		if out.Credited {
			v.Message = MsgCredited
		}
	}

	if out.Credited {
		metrics.PaymentsCreditedTotal.Inc()
		metrics.MinutesCreditedTotal.Add(float64(pkg.Minutes))
		l.events.Publish(events.PaymentApproved, events.PaymentApprovedEvent{
			TransactionID: transactionID,
			ClerkID:       clerkID,
			PackageID:     pkg.ID,
			Minutes:       pkg.Minutes,
			Credits:       out.Credits,
			At:            time.Now().UTC(),
		})
		l.log.Info().
			Str("transaction_id", transactionID).
			Str("clerk_id", clerkID).
			Str("package", pkg.ID).
			Int("minutes", pkg.Minutes).
			Int("credits", out.Credits).
			Msg("payment credited")
	} else {
		l.log.Debug().
			Str("transaction_id", transactionID).
			Str("previous_status", out.PreviousStatus).
			Str("status", out.Status).
			Msg("payment verified without credit")
	}
	return v, nil
}

// MinutesForDuration converts a transcript duration to billable minutes.
// Partial minutes are not charged.
func MinutesForDuration(seconds int) int {
	return seconds / 60
}

// Debit charges floor(durationSeconds/60) minutes to clerkID and returns the
// updated user. The balance never goes below zero.
func (l *Ledger) Debit(ctx context.Context, clerkID string, durationSeconds int) (*database.User, error) {
	if durationSeconds < 0 {
		return nil, ErrInvalidDuration
	}
	minutes := MinutesForDuration(durationSeconds)

	user, err := l.store.DebitCredits(ctx, clerkID, minutes)
	switch {
	case errors.Is(err, database.ErrNotFound):
		metrics.DebitsRejectedTotal.WithLabelValues("user_not_found").Inc()
		return nil, ErrUserNotFound
	case errors.Is(err, database.ErrInsufficientCredits):
		metrics.DebitsRejectedTotal.WithLabelValues("insufficient_balance").Inc()
		return nil, ErrInsufficientBalance
	case err != nil:
		return nil, fmt.Errorf("debit: %w", err)
	}

	if minutes > 0 {
		metrics.MinutesDebitedTotal.Add(float64(minutes))
		l.events.Publish(events.BalanceDebited, events.BalanceDebitedEvent{
			ClerkID: clerkID,
			Minutes: minutes,
			Credits: user.Credits,
			At:      time.Now().UTC(),
		})
	}
	return user, nil
}
