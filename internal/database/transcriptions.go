package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Transcription is a completed transcript owned by a user.
type Transcription struct {
	ID                   string    `json:"id"`
	UserID               string    `json:"userId"`
	Title                string    `json:"title"`
	Content              string    `json:"content"`
	Duration             int       `json:"duration"`
	Language             string    `json:"language"`
	ProviderTranscriptID *string   `json:"providerTranscriptId,omitempty"`
	CreatedAt            time.Time `json:"createdAt"`
}

// TranscriptionRow is the input for inserting a transcription.
type TranscriptionRow struct {
	UserID               string
	Title                string
	Content              string
	Duration             int
	Language             string
	ProviderTranscriptID string // optional; makes the insert idempotent per provider job
}

// TranscriptionFilter specifies filters for listing a user's transcriptions.
type TranscriptionFilter struct {
	UserID string
	Search string // full-text query over title and content
	Limit  int
	Offset int
}

const transcriptionColumns = `id, user_id, title, content, duration, language, provider_transcript_id, created_at`

func scanTranscription(row pgx.Row) (*Transcription, error) {
	var t Transcription
	if err := row.Scan(
		&t.ID, &t.UserID, &t.Title, &t.Content, &t.Duration,
		&t.Language, &t.ProviderTranscriptID, &t.CreatedAt,
	); err != nil {
		return nil, notFound(err)
	}
	return &t, nil
}

// InsertTranscription stores a transcription. When ProviderTranscriptID is set
// and the same user already saved that provider job, the stored row is
// returned with created=false. Other users' rows are never matched.
func (db *DB) InsertTranscription(ctx context.Context, row *TranscriptionRow) (*Transcription, bool, error) {
	t, err := scanTranscription(db.Pool.QueryRow(ctx, `
		INSERT INTO transcriptions (id, user_id, title, content, duration, language, provider_transcript_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id, provider_transcript_id) DO NOTHING
		RETURNING `+transcriptionColumns,
		uuid.NewString(), row.UserID, row.Title, row.Content, row.Duration, row.Language,
		pqString(row.ProviderTranscriptID),
	))
	if err == nil {
		return t, true, nil
	}
	if !errors.Is(err, ErrNotFound) || row.ProviderTranscriptID == "" {
		return nil, false, fmt.Errorf("insert transcription: %w", err)
	}
	existing, err := scanTranscription(db.Pool.QueryRow(ctx,
		`SELECT `+transcriptionColumns+` FROM transcriptions WHERE user_id = $1 AND provider_transcript_id = $2`,
		row.UserID, row.ProviderTranscriptID,
	))
	if err != nil {
		return nil, false, fmt.Errorf("load existing transcription: %w", err)
	}
	return existing, false, nil
}

// GetTranscription returns a transcription by id, or ErrNotFound.
func (db *DB) GetTranscription(ctx context.Context, id string) (*Transcription, error) {
	return scanTranscription(db.Pool.QueryRow(ctx,
		`SELECT `+transcriptionColumns+` FROM transcriptions WHERE id = $1`, id))
}

// ListTranscriptions returns a page of a user's transcriptions, newest first,
// together with the total number of matches.
func (db *DB) ListTranscriptions(ctx context.Context, filter TranscriptionFilter) ([]Transcription, int, error) {
	qb := newQueryBuilder()
	qb.Add("user_id = %s", filter.UserID)
	if filter.Search != "" {
		qb.Add("search_vector @@ plainto_tsquery('simple', %s)", filter.Search)
	}
	where := qb.WhereClause()

	var total int
	if err := db.Pool.QueryRow(ctx, "SELECT count(*) FROM transcriptions"+where, qb.Args()...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count transcriptions: %w", err)
	}

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	query := fmt.Sprintf(`SELECT %s FROM transcriptions%s ORDER BY created_at DESC LIMIT %s OFFSET %s`,
		transcriptionColumns, where, qb.Next(limit), qb.Next(filter.Offset))

	rows, err := db.Pool.Query(ctx, query, qb.Args()...)
	if err != nil {
		return nil, 0, fmt.Errorf("list transcriptions: %w", err)
	}
	defer rows.Close()

	result := []Transcription{}
	for rows.Next() {
		t, err := scanTranscription(rows)
		if err != nil {
			return nil, 0, err
		}
		result = append(result, *t)
	}
	return result, total, rows.Err()
}

// DeleteTranscription removes a transcription. Returns ErrNotFound when nothing was deleted.
func (db *DB) DeleteTranscription(ctx context.Context, id string) error {
	tag, err := db.Pool.Exec(ctx, `DELETE FROM transcriptions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete transcription: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
