package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ErrInsufficientCredits is returned when a debit would take the balance below zero.
var ErrInsufficientCredits = errors.New("insufficient credits")

// User is the persisted account, keyed externally by its Clerk id.
type User struct {
	ID        string    `json:"id"`
	ClerkID   string    `json:"clerkId"`
	Name      string    `json:"name"`
	Credits   int       `json:"credits"`
	Plan      string    `json:"plan"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

const userColumns = `id, clerk_id, name, credits, plan, created_at, updated_at`

func scanUser(row pgx.Row) (*User, error) {
	var u User
	if err := row.Scan(&u.ID, &u.ClerkID, &u.Name, &u.Credits, &u.Plan, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, notFound(err)
	}
	return &u, nil
}

// GetUserByClerkID returns the user for an external identity, or ErrNotFound.
func (db *DB) GetUserByClerkID(ctx context.Context, clerkID string) (*User, error) {
	return scanUser(db.Pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE clerk_id = $1`, clerkID))
}

// CreateUser provisions a user for clerkID. If one already exists it is
// returned unchanged with created=false, so webhook redeliveries are harmless.
func (db *DB) CreateUser(ctx context.Context, clerkID, name string) (*User, bool, error) {
	u, err := scanUser(db.Pool.QueryRow(ctx, `
		INSERT INTO users (id, clerk_id, name)
		VALUES ($1, $2, $3)
		ON CONFLICT (clerk_id) DO NOTHING
		RETURNING `+userColumns,
		uuid.NewString(), clerkID, name,
	))
	if err == nil {
		return u, true, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, false, fmt.Errorf("insert user: %w", err)
	}
	existing, err := db.GetUserByClerkID(ctx, clerkID)
	if err != nil {
		return nil, false, fmt.Errorf("load existing user: %w", err)
	}
	return existing, false, nil
}

// DebitCredits subtracts minutes from the user's balance in a single
// conditional update and returns the updated user. The balance never goes
// negative: ErrInsufficientCredits is returned instead.
func (db *DB) DebitCredits(ctx context.Context, clerkID string, minutes int) (*User, error) {
	u, err := scanUser(db.Pool.QueryRow(ctx, `
		UPDATE users SET credits = credits - $2, updated_at = now()
		WHERE clerk_id = $1 AND credits >= $2
		RETURNING `+userColumns,
		clerkID, minutes,
	))
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("debit credits: %w", err)
	}

	var exists bool
	if err := db.Pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM users WHERE clerk_id = $1)`, clerkID,
	).Scan(&exists); err != nil {
		return nil, fmt.Errorf("check user: %w", err)
	}
	if !exists {
		return nil, ErrNotFound
	}
	return nil, ErrInsufficientCredits
}
