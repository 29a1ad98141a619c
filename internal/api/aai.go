package api

import (
	"context"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/snarg/scribe-engine/internal/assemblyai"
	"github.com/snarg/scribe-engine/internal/auth"
	"github.com/snarg/scribe-engine/internal/config"
	"github.com/snarg/scribe-engine/internal/storage"
)

// DefaultMaxUploadBytes caps an upload when MAX_UPLOAD_BYTES is unset.
const DefaultMaxUploadBytes = 500 << 20

// writeMargin is kept free of a long-poll so the response is written before
// the server's write deadline.
const writeMargin = 5 * time.Second

// AAILimits bounds the relay's long-running requests.
type AAILimits struct {
	MaxUploadBytes int64         // request body cap for /upload
	UploadTimeout  time.Duration // read and write deadline for /upload; 0 keeps the server's
	MaxWait        time.Duration // cap on status?wait=true; 0 means no cap
}

// LimitsFromConfig derives relay limits from the HTTP server settings.
func LimitsFromConfig(cfg *config.Config) AAILimits {
	return AAILimits{
		MaxUploadBytes: cfg.MaxUploadBytes,
		UploadTimeout:  cfg.UploadTimeout,
		MaxWait:        waitBudget(cfg.WriteTimeout),
	}
}

// waitBudget returns how long a status long-poll may run under writeTimeout.
func waitBudget(writeTimeout time.Duration) time.Duration {
	switch {
	case writeTimeout <= 0:
		return 0
	case writeTimeout > 2*writeMargin:
		return writeTimeout - writeMargin
	default:
		return writeTimeout / 2
	}
}

// AAIHandler relays uploads, job requests and status reads to AssemblyAI.
type AAIHandler struct {
	provider TranscriptionProvider // nil when ASSEMBLYAI_API_KEY is unset
	poller   TranscriptPoller
	archiver AudioArchiver // nil when archiving is disabled
	origins  []string
	limits   AAILimits
	watchers *watcherCount
	log      zerolog.Logger
}

func NewAAIHandler(provider TranscriptionProvider, poller TranscriptPoller, archiver AudioArchiver, origins []string, limits AAILimits, log zerolog.Logger) *AAIHandler {
	if limits.MaxUploadBytes <= 0 {
		limits.MaxUploadBytes = DefaultMaxUploadBytes
	}
	return &AAIHandler{
		provider: provider,
		poller:   poller,
		archiver: archiver,
		origins:  origins,
		limits:   limits,
		watchers: &watcherCount{},
		log:      log.With().Str("handler", "aai").Logger(),
	}
}

// Routes registers the relay endpoints under /api/aai.
func (h *AAIHandler) Routes(r chi.Router) {
	r.Post("/upload", h.Upload)
	r.Post("/transcribe", h.Transcribe)
	r.Get("/status", h.Status)
	r.Get("/watch", h.Watch)
}

// ActiveWatchers returns the number of open WebSocket status streams.
func (h *AAIHandler) ActiveWatchers() int {
	return int(h.watchers.n.Load())
}

func (h *AAIHandler) configured(w http.ResponseWriter) bool {
	if h.provider == nil || h.poller == nil {
		WriteError(w, http.StatusInternalServerError, "Missing ASSEMBLYAI_API_KEY on server")
		return false
	}
	return true
}

// writeProviderError maps a provider failure to 502 with the provider's message.
func (h *AAIHandler) writeProviderError(w http.ResponseWriter, msg string, err error) {
	var apiErr *assemblyai.APIError
	if errors.As(err, &apiErr) {
		WriteErrorDetail(w, http.StatusBadGateway, msg, apiErr.Body)
		return
	}
	WriteErrorDetail(w, http.StatusBadGateway, msg, err.Error())
}

// Upload handles POST /api/aai/upload.
// Accepts a multipart form with the audio in field "file" and returns {upload_url}.
// The file part is streamed to the provider; when archiving is on, a copy is
// spooled to a temp file on the way through and handed to the archiver.
func (h *AAIHandler) Upload(w http.ResponseWriter, r *http.Request) {
	if !h.configured(w) {
		return
	}
	if h.limits.UploadTimeout > 0 {
		deadline := time.Now().Add(h.limits.UploadTimeout)
		rc := http.NewResponseController(w)
		if err := errors.Join(rc.SetReadDeadline(deadline), rc.SetWriteDeadline(deadline)); err != nil {
			h.log.Debug().Err(err).Msg("upload deadlines not extended")
		}
	}
	r.Body = http.MaxBytesReader(w, r.Body, h.limits.MaxUploadBytes)

	mr, err := r.MultipartReader()
	if err != nil {
		WriteErrorDetail(w, http.StatusBadRequest, "No file provided", "invalid multipart form: "+err.Error())
		return
	}
	part, err := filePart(mr, "file")
	if err != nil {
		if tooLarge(err) {
			WriteError(w, http.StatusRequestEntityTooLarge, "File too large")
			return
		}
		WriteError(w, http.StatusBadRequest, "No file provided")
		return
	}
	defer part.Close()
	filename := part.FileName()

	body := &uploadBody{r: part}
	if h.archiver != nil {
		spool, err := os.CreateTemp("", "scribe-upload-*")
		if err != nil {
			h.log.Warn().Err(err).Msg("cannot spool upload, archive skipped")
		} else {
			body.spool = spool
			defer body.discard()
		}
	}

	uploadURL, err := h.provider.Upload(r.Context(), body)
	if err != nil {
		if tooLarge(body.readErr) {
			WriteError(w, http.StatusRequestEntityTooLarge, "File too large")
			return
		}
		h.log.Error().Err(err).Str("filename", filename).Int64("size", body.n).Msg("provider upload failed")
		h.writeProviderError(w, "Upload failed", err)
		return
	}

	if path, ok := body.keep(); ok {
		key := storage.ArchiveKey(auth.UserID(r.Context()), filename, time.Now())
		h.archiver.Enqueue(key, path, audioContentType(filename, part.Header.Get("Content-Type")))
	}

	h.log.Debug().Str("filename", filename).Int64("size", body.n).Msg("audio relayed")
	WriteJSON(w, http.StatusOK, map[string]string{"upload_url": uploadURL})
}

// filePart advances mr to the named file field. Other fields are skipped.
func filePart(mr *multipart.Reader, field string) (*multipart.Part, error) {
	for {
		part, err := mr.NextPart()
		if err != nil {
			return nil, err
		}
		if part.FormName() == field && part.FileName() != "" {
			return part, nil
		}
		part.Close()
	}
}

func tooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr)
}

// uploadBody counts what the provider reads and copies it to spool. A failed
// spool write only drops the archive copy; the relay keeps going.
type uploadBody struct {
	r       io.Reader
	n       int64
	readErr error
	spool   *os.File
	spoolOK bool
	failed  bool
}

func (b *uploadBody) Read(p []byte) (int, error) {
	n, err := b.r.Read(p)
	b.n += int64(n)
	if n > 0 && b.spool != nil && !b.failed {
		if _, werr := b.spool.Write(p[:n]); werr != nil {
			b.failed = true
		}
	}
	if err != nil && err != io.EOF {
		b.readErr = err
	}
	return n, err
}

// keep closes the spool file and returns its path when it holds a full copy.
// Ownership of the file passes to the caller.
func (b *uploadBody) keep() (string, bool) {
	if b.spool == nil || b.failed || b.readErr != nil {
		return "", false
	}
	if err := b.spool.Close(); err != nil {
		return "", false
	}
	b.spoolOK = true
	return b.spool.Name(), true
}

// discard removes the spool file unless keep handed it off.
func (b *uploadBody) discard() {
	if b.spool == nil || b.spoolOK {
		return
	}
	b.spool.Close()
	os.Remove(b.spool.Name())
}

func audioContentType(filename, declared string) string {
	if declared != "" && declared != "application/octet-stream" {
		return declared
	}
	if ct := mime.TypeByExtension(filepath.Ext(filename)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

type transcribeRequest struct {
	UploadURL string `json:"upload_url" validate:"required,url"`
	Language  string `json:"language" validate:"omitempty,max=16"`
}

// Transcribe handles POST /api/aai/transcribe.
// Starts a job for a previously uploaded file and returns {id, status, text}.
func (h *AAIHandler) Transcribe(w http.ResponseWriter, r *http.Request) {
	if !h.configured(w) {
		return
	}
	var req transcribeRequest
	if err := DecodeJSON(r, &req); err != nil {
		WriteErrorDetail(w, http.StatusBadRequest, "Invalid JSON body", err.Error())
		return
	}
	if req.UploadURL == "" {
		WriteError(w, http.StatusBadRequest, "upload_url is required")
		return
	}
	if err := validate.Struct(req); err != nil {
		WriteErrorDetail(w, http.StatusBadRequest, "Invalid payload", validationDetail(err))
		return
	}
	if req.Language == "" {
		req.Language = "auto"
	}

	tr, err := h.provider.Submit(r.Context(), assemblyai.TranscriptRequest{
		AudioURL: req.UploadURL,
		Language: req.Language,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("provider submit failed")
		h.writeProviderError(w, "Transcription request failed", err)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]string{
		"id":     tr.ID,
		"status": tr.Status,
		"text":   tr.Text,
	})
}

// Status handles GET /api/aai/status?id=<job>[&wait=true].
// Returns the provider's transcript document unchanged. With wait=true the
// request is held while the server polls with backoff until the job finishes,
// the poll budget or the wait cap runs out (last state is returned) or the
// client goes away.
func (h *AAIHandler) Status(w http.ResponseWriter, r *http.Request) {
	id, ok := QueryStringAliased(r, "id")
	if !ok {
		WriteError(w, http.StatusBadRequest, "id is required")
		return
	}
	if !h.configured(w) {
		return
	}

	wait, _ := QueryBool(r, "wait")
	var (
		raw []byte
		err error
	)
	if wait {
		ctx := r.Context()
		if h.limits.MaxWait > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, h.limits.MaxWait)
			defer cancel()
		}
		_, raw, err = h.poller.Wait(ctx, id, nil)
		budgetSpent := errors.Is(err, assemblyai.ErrPollExhausted) ||
			(errors.Is(err, context.DeadlineExceeded) && r.Context().Err() == nil)
		if budgetSpent && raw != nil {
			err = nil
		}
	} else {
		_, raw, err = h.poller.Get(r.Context(), id)
	}

	if err != nil {
		if r.Context().Err() != nil {
			return
		}
		if errors.Is(err, context.DeadlineExceeded) {
			WriteError(w, http.StatusGatewayTimeout, "Status lookup timed out")
			return
		}
		h.log.Warn().Err(err).Str("transcript_id", id).Msg("status lookup failed")
		h.writeProviderError(w, "Status lookup failed", err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	w.Write(raw)
}
