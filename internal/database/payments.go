package database

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrPaymentOwnerMismatch is returned by ApplyPayment when the transaction is
// already recorded for a different user.
var ErrPaymentOwnerMismatch = errors.New("payment transaction belongs to another user")

// Payment gateway transaction states as stored in payment_transactions.status.
const (
	PaymentPending  = "PENDING"
	PaymentApproved = "APPROVED"
	PaymentDeclined = "DECLINED"
	PaymentVoided   = "VOIDED"
	PaymentError    = "ERROR"
)

// PaymentRecord is the input for ApplyPayment: a gateway transaction already
// matched to a minute package and a user.
type PaymentRecord struct {
	TransactionID string
	UserID        string
	Reference     string
	Minutes       int
	AmountInCents int64
	Status        string // status reported by the gateway
}

// PaymentOutcome describes what ApplyPayment did.
type PaymentOutcome struct {
	PreviousStatus string // status stored before this call (PENDING for a new row)
	Status         string // status stored after this call
	Credited       bool   // true only for the call that moved the row to APPROVED
	Credits        int    // user's balance after this call
}

// PaymentTransaction is a stored gateway transaction.
type PaymentTransaction struct {
	ID            int64      `json:"id"`
	TransactionID string     `json:"transactionId"`
	UserID        string     `json:"userId"`
	Reference     string     `json:"reference"`
	Minutes       int        `json:"minutes"`
	AmountInCents int64      `json:"amountInCents"`
	Status        string     `json:"status"`
	CreditedAt    *time.Time `json:"creditedAt,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}

// ApplyPayment records a gateway transaction and credits the user's balance
// exactly once when it is approved.
//
// The transition to APPROVED is a compare-and-swap on the status column; the
// balance is only incremented by the transaction whose update affected the
// row. An APPROVED row is never moved back to another status. A transaction
// already stored for another user fails with ErrPaymentOwnerMismatch and
// changes nothing.
func (db *DB) ApplyPayment(ctx context.Context, rec PaymentRecord) (*PaymentOutcome, error) {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	out := &PaymentOutcome{}

	// The conflict branch takes the row lock, so concurrent callers for the
	// same transaction id serialize here. The first caller owns the row.
	var owner string
	if err := tx.QueryRow(ctx, `
		INSERT INTO payment_transactions (transaction_id, user_id, reference, minutes, amount_in_cents, status)
		VALUES ($1, $2, $3, $4, $5, 'PENDING')
		ON CONFLICT (transaction_id) DO UPDATE SET updated_at = now()
		RETURNING status, user_id
	`, rec.TransactionID, rec.UserID, rec.Reference, rec.Minutes, rec.AmountInCents,
	).Scan(&out.PreviousStatus, &owner); err != nil {
		return nil, fmt.Errorf("upsert payment transaction: %w", err)
	}
	if owner != rec.UserID {
		return nil, ErrPaymentOwnerMismatch
	}

	if rec.Status == PaymentApproved {
		tag, err := tx.Exec(ctx, `
			UPDATE payment_transactions
			SET status = 'APPROVED', credited_at = now(), updated_at = now()
			WHERE transaction_id = $1 AND status <> 'APPROVED'
		`, rec.TransactionID)
		if err != nil {
			return nil, fmt.Errorf("approve payment transaction: %w", err)
		}
		if tag.RowsAffected() == 1 {
			if err := tx.QueryRow(ctx, `
				UPDATE users SET credits = credits + $2, updated_at = now()
				WHERE id = $1
				RETURNING credits
			`, rec.UserID, rec.Minutes).Scan(&out.Credits); err != nil {
				return nil, fmt.Errorf("credit user: %w", notFound(err))
			}
			out.Credited = true
		}
	} else if rec.Status != "" {
		if _, err := tx.Exec(ctx, `
			UPDATE payment_transactions SET status = $2, updated_at = now()
			WHERE transaction_id = $1 AND status <> 'APPROVED'
		`, rec.TransactionID, rec.Status); err != nil {
			return nil, fmt.Errorf("update payment status: %w", err)
		}
	}

	if err := tx.QueryRow(ctx,
		`SELECT status FROM payment_transactions WHERE transaction_id = $1`, rec.TransactionID,
	).Scan(&out.Status); err != nil {
		return nil, fmt.Errorf("read payment status: %w", err)
	}
	if !out.Credited {
		if err := tx.QueryRow(ctx,
			`SELECT credits FROM users WHERE id = $1`, rec.UserID,
		).Scan(&out.Credits); err != nil {
			return nil, fmt.Errorf("read balance: %w", notFound(err))
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit payment: %w", err)
	}
	return out, nil
}

// GetPaymentTransaction returns a stored transaction by gateway id, or ErrNotFound.
func (db *DB) GetPaymentTransaction(ctx context.Context, transactionID string) (*PaymentTransaction, error) {
	var p PaymentTransaction
	err := db.Pool.QueryRow(ctx, `
		SELECT id, transaction_id, user_id, reference, minutes, amount_in_cents, status, credited_at, created_at, updated_at
		FROM payment_transactions WHERE transaction_id = $1
	`, transactionID).Scan(
		&p.ID, &p.TransactionID, &p.UserID, &p.Reference, &p.Minutes,
		&p.AmountInCents, &p.Status, &p.CreditedAt, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}
