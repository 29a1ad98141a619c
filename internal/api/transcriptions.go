package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/snarg/scribe-engine/internal/database"
	"github.com/snarg/scribe-engine/internal/events"
	"github.com/snarg/scribe-engine/internal/export"
)

type TranscriptionsHandler struct {
	store  Store
	events events.Publisher
	log    zerolog.Logger
}

func NewTranscriptionsHandler(store Store, pub events.Publisher, log zerolog.Logger) *TranscriptionsHandler {
	if pub == nil {
		pub = events.Nop{}
	}
	return &TranscriptionsHandler{
		store:  store,
		events: pub,
		log:    log.With().Str("handler", "transcriptions").Logger(),
	}
}

func (h *TranscriptionsHandler) Routes(r chi.Router) {
	r.Get("/", h.ListTranscriptions)
	r.Get("/{id}", h.GetTranscription)
	r.Delete("/{id}", h.DeleteTranscription)
	r.Get("/{id}/export", h.ExportTranscription)
}

// caller resolves the authenticated user's database row, writing 401/404/500 on failure.
func (h *TranscriptionsHandler) caller(w http.ResponseWriter, r *http.Request) (*database.User, bool) {
	clerkID, ok := requireUser(w, r)
	if !ok {
		return nil, false
	}
	user, err := h.store.GetUserByClerkID(r.Context(), clerkID)
	if errors.Is(err, database.ErrNotFound) {
		WriteError(w, http.StatusNotFound, "User not found")
		return nil, false
	}
	if err != nil {
		h.log.Error().Err(err).Str("clerk_id", clerkID).Msg("load user failed")
		WriteError(w, http.StatusInternalServerError, "Server error")
		return nil, false
	}
	return user, true
}

// owned loads transcription {id} and checks it belongs to user.
func (h *TranscriptionsHandler) owned(w http.ResponseWriter, r *http.Request, user *database.User) (*database.Transcription, bool) {
	t, err := h.store.GetTranscription(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, database.ErrNotFound) {
		WriteError(w, http.StatusNotFound, "Transcription not found")
		return nil, false
	}
	if err != nil {
		h.log.Error().Err(err).Msg("load transcription failed")
		WriteError(w, http.StatusInternalServerError, "Error fetching transcription")
		return nil, false
	}
	if t.UserID != user.ID {
		WriteError(w, http.StatusForbidden, "Forbidden")
		return nil, false
	}
	return t, true
}

type createTranscriptionRequest struct {
	Content      string `json:"content"`
	Title        string `json:"title" validate:"max=500"`
	Duration     int    `json:"duration" validate:"gte=0"`
	Language     string `json:"language" validate:"max=16"`
	TranscriptID string `json:"transcriptId" validate:"max=128"`
}

// CreateTranscription handles POST /api/aai/transcription.
// Stores a finished transcript for the caller. Repeating the request with the
// same transcriptId returns the stored row instead of inserting a duplicate.
func (h *TranscriptionsHandler) CreateTranscription(w http.ResponseWriter, r *http.Request) {
	clerkID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req createTranscriptionRequest
	if !DecodeAndValidate(w, r, &req) {
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

	row := &database.TranscriptionRow{
		UserID:               user.ID,
		Title:                req.Title,
		Content:              req.Content,
		Duration:             req.Duration,
		Language:             req.Language,
		ProviderTranscriptID: req.TranscriptID,
	}

	t, created, err := h.store.InsertTranscription(r.Context(), row)
	if err != nil {
		h.log.Error().Err(err).Str("clerk_id", clerkID).Msg("insert transcription failed")
		WriteError(w, http.StatusInternalServerError, "Server error")
		return
	}
	if !created {
		WriteJSON(w, http.StatusOK, t)
		return
	}

	h.events.Publish(events.TranscriptionCreated, events.TranscriptionCreatedEvent{
		ID:       t.ID,
		ClerkID:  clerkID,
		Duration: t.Duration,
		Language: t.Language,
		At:       time.Now().UTC(),
	})
	WriteJSON(w, http.StatusCreated, t)
}

// ListTranscriptions returns the caller's transcripts, newest first.
// Query params: limit, offset, search.
func (h *TranscriptionsHandler) ListTranscriptions(w http.ResponseWriter, r *http.Request) {
	user, ok := h.caller(w, r)
	if !ok {
		return
	}
	p, err := ParsePagination(r)
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	filter := database.TranscriptionFilter{
		UserID: user.ID,
		Limit:  p.Limit,
		Offset: p.Offset,
	}
	if v, ok := QueryStringAliased(r, "search", "q"); ok {
		filter.Search = v
	}

	list, total, err := h.store.ListTranscriptions(r.Context(), filter)
	if err != nil {
		h.log.Error().Err(err).Msg("list transcriptions failed")
		WriteError(w, http.StatusInternalServerError, "Error fetching transcriptions")
		return
	}
	if list == nil {
		list = []database.Transcription{}
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"transcriptions": list,
		"total":          total,
		"limit":          p.Limit,
		"offset":         p.Offset,
	})
}

func (h *TranscriptionsHandler) GetTranscription(w http.ResponseWriter, r *http.Request) {
	user, ok := h.caller(w, r)
	if !ok {
		return
	}
	t, ok := h.owned(w, r, user)
	if !ok {
		return
	}
	WriteJSON(w, http.StatusOK, t)
}

// DeleteTranscription removes the transcript and returns the deleted row.
func (h *TranscriptionsHandler) DeleteTranscription(w http.ResponseWriter, r *http.Request) {
	user, ok := h.caller(w, r)
	if !ok {
		return
	}
	t, ok := h.owned(w, r, user)
	if !ok {
		return
	}
	err := h.store.DeleteTranscription(r.Context(), t.ID)
	if errors.Is(err, database.ErrNotFound) {
		WriteError(w, http.StatusNotFound, "Transcription not found")
		return
	}
	if err != nil {
		h.log.Error().Err(err).Str("id", t.ID).Msg("delete transcription failed")
		WriteError(w, http.StatusInternalServerError, "Error deleting transcription")
		return
	}
	WriteJSON(w, http.StatusOK, t)
}

// ExportTranscription streams the transcript as a txt, docx or xlsx download.
func (h *TranscriptionsHandler) ExportTranscription(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireUser(w, r); !ok {
		return
	}
	format, ok := export.ParseFormat(r.URL.Query().Get("format"))
	if !ok {
		WriteError(w, http.StatusBadRequest, "Invalid format")
		return
	}
	user, ok := h.caller(w, r)
	if !ok {
		return
	}
	t, ok := h.owned(w, r, user)
	if !ok {
		return
	}

	body, err := export.Render(format, export.Document{
		Title:     t.Title,
		Language:  t.Language,
		Duration:  t.Duration,
		CreatedAt: t.CreatedAt,
		Content:   t.Content,
	})
	if err != nil {
		h.log.Error().Err(err).Str("id", t.ID).Str("format", string(format)).Msg("export failed")
		WriteError(w, http.StatusInternalServerError, "Export failed")
		return
	}

	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", `attachment; filename="`+export.Filename(t.Title, format)+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}
