package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/snarg/scribe-engine/internal/assemblyai"
	"github.com/snarg/scribe-engine/internal/auth"
	"github.com/snarg/scribe-engine/internal/billing"
	"github.com/snarg/scribe-engine/internal/database"
)

// Store is the persistence used by the HTTP handlers. *database.DB implements it.
type Store interface {
	GetUserByClerkID(ctx context.Context, clerkID string) (*database.User, error)
	CreateUser(ctx context.Context, clerkID, name string) (*database.User, bool, error)
	InsertTranscription(ctx context.Context, row *database.TranscriptionRow) (*database.Transcription, bool, error)
	GetTranscription(ctx context.Context, id string) (*database.Transcription, error)
	ListTranscriptions(ctx context.Context, filter database.TranscriptionFilter) ([]database.Transcription, int, error)
	DeleteTranscription(ctx context.Context, id string) error
}

// Ledger credits and debits minute balances. *billing.Ledger implements it.
type Ledger interface {
	VerifyPayment(ctx context.Context, clerkID, transactionID string) (*billing.Verification, error)
	Debit(ctx context.Context, clerkID string, durationSeconds int) (*database.User, error)
}

// TranscriptionProvider relays audio and job requests to the speech-to-text provider.
type TranscriptionProvider interface {
	Upload(ctx context.Context, audio io.Reader) (string, error)
	Submit(ctx context.Context, req assemblyai.TranscriptRequest) (*assemblyai.Transcript, error)
}

// TranscriptPoller reads and waits on provider jobs. *assemblyai.Poller implements it.
type TranscriptPoller interface {
	Get(ctx context.Context, id string) (*assemblyai.Transcript, json.RawMessage, error)
	Wait(ctx context.Context, id string, onUpdate func(*assemblyai.Transcript)) (*assemblyai.Transcript, json.RawMessage, error)
}

// AudioArchiver queues uploaded audio for storage. *storage.Archiver implements it.
// Enqueue takes ownership of the spooled file at path.
type AudioArchiver interface {
	Enqueue(key, path, contentType string) bool
}

// WebhookVerifier checks webhook signatures. *auth.WebhookVerifier implements it.
type WebhookVerifier interface {
	Verify(payload []byte, header http.Header) error
}

// requireUser returns the caller's Clerk id, writing 401 when there is none.
func requireUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := auth.UserID(r.Context())
	if id == "" {
		WriteError(w, http.StatusUnauthorized, "Unauthorized")
		return "", false
	}
	return id, true
}
