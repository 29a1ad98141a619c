package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/snarg/scribe-engine/internal/assemblyai"
	"github.com/snarg/scribe-engine/internal/auth"
	"github.com/snarg/scribe-engine/internal/billing"
	"github.com/snarg/scribe-engine/internal/config"
	"github.com/snarg/scribe-engine/internal/database"
)

// memStore is an in-memory Store.
type memStore struct {
	mu             sync.Mutex
	users          map[string]*database.User // by clerk id
	transcriptions map[string]*database.Transcription
	seq            int
}

func newMemStore() *memStore {
	return &memStore{
		users:          make(map[string]*database.User),
		transcriptions: make(map[string]*database.Transcription),
	}
}

func (s *memStore) addUser(clerkID string, credits int) *database.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	u := &database.User{ID: fmt.Sprintf("user-%d", s.seq), ClerkID: clerkID, Name: clerkID, Credits: credits, Plan: "free"}
	s.users[clerkID] = u
	return u
}

func (s *memStore) addTranscription(userID, title string) *database.Transcription {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	t := &database.Transcription{
		ID:        fmt.Sprintf("tr-%d", s.seq),
		UserID:    userID,
		Title:     title,
		Content:   "hello world",
		Duration:  125,
		Language:  "en",
		CreatedAt: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC).Add(time.Duration(s.seq) * time.Minute),
	}
	s.transcriptions[t.ID] = t
	return t
}

func (s *memStore) GetUserByClerkID(_ context.Context, clerkID string) (*database.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[clerkID]
	if !ok {
		return nil, database.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *memStore) CreateUser(_ context.Context, clerkID, name string) (*database.User, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[clerkID]; ok {
		cp := *u
		return &cp, false, nil
	}
	s.seq++
	u := &database.User{ID: fmt.Sprintf("user-%d", s.seq), ClerkID: clerkID, Name: name, Plan: "free"}
	s.users[clerkID] = u
	cp := *u
	return &cp, true, nil
}

func (s *memStore) InsertTranscription(_ context.Context, row *database.TranscriptionRow) (*database.Transcription, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if row.ProviderTranscriptID != "" {
		for _, t := range s.transcriptions {
			if t.UserID == row.UserID && t.ProviderTranscriptID != nil && *t.ProviderTranscriptID == row.ProviderTranscriptID {
				cp := *t
				return &cp, false, nil
			}
		}
	}
	s.seq++
	t := &database.Transcription{
		ID:        fmt.Sprintf("tr-%d", s.seq),
		UserID:    row.UserID,
		Title:     row.Title,
		Content:   row.Content,
		Duration:  row.Duration,
		Language:  row.Language,
		CreatedAt: time.Now().UTC(),
	}
	if row.ProviderTranscriptID != "" {
		pid := row.ProviderTranscriptID
		t.ProviderTranscriptID = &pid
	}
	s.transcriptions[t.ID] = t
	cp := *t
	return &cp, true, nil
}

func (s *memStore) GetTranscription(_ context.Context, id string) (*database.Transcription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.transcriptions[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (s *memStore) ListTranscriptions(_ context.Context, f database.TranscriptionFilter) ([]database.Transcription, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var all []database.Transcription
	for _, t := range s.transcriptions {
		if t.UserID == f.UserID {
			all = append(all, *t)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	total := len(all)
	if f.Offset >= len(all) {
		return nil, total, nil
	}
	all = all[f.Offset:]
	if f.Limit > 0 && len(all) > f.Limit {
		all = all[:f.Limit]
	}
	return all, total, nil
}

func (s *memStore) DeleteTranscription(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.transcriptions[id]; !ok {
		return database.ErrNotFound
	}
	delete(s.transcriptions, id)
	return nil
}

// stubLedger returns canned results.
type stubLedger struct {
	verification *billing.Verification
	verifyErr    error
	user         *database.User
	debitErr     error

	lastDuration int
}

func (l *stubLedger) VerifyPayment(_ context.Context, _, txID string) (*billing.Verification, error) {
	if l.verifyErr != nil {
		return nil, l.verifyErr
	}
	v := *l.verification
	v.TransactionID = txID
	return &v, nil
}

func (l *stubLedger) Debit(_ context.Context, _ string, durationSeconds int) (*database.User, error) {
	l.lastDuration = durationSeconds
	if l.debitErr != nil {
		return nil, l.debitErr
	}
	return l.user, nil
}

type stubProvider struct {
	uploaded  []byte
	uploadURL string
	submitted assemblyai.TranscriptRequest
	err       error
}

func (p *stubProvider) Upload(_ context.Context, audio io.Reader) (string, error) {
	if p.err != nil {
		return "", p.err
	}
	data, err := io.ReadAll(audio)
	if err != nil {
		return "", err
	}
	p.uploaded = data
	return p.uploadURL, nil
}

func (p *stubProvider) Submit(_ context.Context, req assemblyai.TranscriptRequest) (*assemblyai.Transcript, error) {
	if p.err != nil {
		return nil, p.err
	}
	p.submitted = req
	return &assemblyai.Transcript{ID: "job-1", Status: assemblyai.StatusQueued}, nil
}

// scriptedPoller replays a fixed sequence of transcript states.
type scriptedPoller struct {
	states []assemblyai.Transcript
	err    error // returned after the states are replayed
}

func (p *scriptedPoller) Get(_ context.Context, id string) (*assemblyai.Transcript, json.RawMessage, error) {
	if len(p.states) == 0 {
		return nil, nil, p.err
	}
	tr := p.states[0]
	raw, _ := json.Marshal(tr)
	return &tr, raw, nil
}

func (p *scriptedPoller) Wait(ctx context.Context, id string, onUpdate func(*assemblyai.Transcript)) (*assemblyai.Transcript, json.RawMessage, error) {
	var last *assemblyai.Transcript
	var raw json.RawMessage
	for i := range p.states {
		if err := ctx.Err(); err != nil {
			return last, raw, err
		}
		tr := p.states[i]
		last = &tr
		raw, _ = json.Marshal(tr)
		if onUpdate != nil {
			onUpdate(last)
		}
		if tr.Terminal() {
			return last, raw, nil
		}
	}
	return last, raw, p.err
}

// stallingPoller never finishes a job: Wait holds until ctx ends and returns
// the queued state it saw first.
type stallingPoller struct {
	hadDeadline bool
}

func (p *stallingPoller) Get(_ context.Context, id string) (*assemblyai.Transcript, json.RawMessage, error) {
	tr := assemblyai.Transcript{ID: id, Status: assemblyai.StatusQueued}
	raw, _ := json.Marshal(tr)
	return &tr, raw, nil
}

func (p *stallingPoller) Wait(ctx context.Context, id string, _ func(*assemblyai.Transcript)) (*assemblyai.Transcript, json.RawMessage, error) {
	_, p.hadDeadline = ctx.Deadline()
	tr, raw, _ := p.Get(ctx, id)
	<-ctx.Done()
	return tr, raw, ctx.Err()
}

type recordingArchiver struct {
	mu   sync.Mutex
	keys []string
	data [][]byte
}

// Enqueue reads and removes the spooled file, as the real archiver does
// once the copy is stored.
func (a *recordingArchiver) Enqueue(key, path, _ string) bool {
	data, err := os.ReadFile(path)
	os.Remove(path)
	if err != nil {
		return false
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.keys = append(a.keys, key)
	a.data = append(a.data, data)
	return true
}

func (a *recordingArchiver) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.keys)
}

type stubVerifier struct{ err error }

func (v stubVerifier) Verify([]byte, http.Header) error { return v.err }

type recordingPublisher struct {
	mu     sync.Mutex
	events []string
}

func (p *recordingPublisher) Publish(event string, _ any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

func (p *recordingPublisher) count(event string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, e := range p.events {
		if e == event {
			n++
		}
	}
	return n
}

// testServer wires a router with the given options filled in around defaults.
func testServer(t *testing.T, opts ServerOptions) http.Handler {
	t.Helper()
	if opts.Config == nil {
		opts.Config = &config.Config{HTTPAddr: ":0", WompiIntegritySecret: "test_integrity_secret"}
	}
	if opts.Store == nil {
		opts.Store = newMemStore()
	}
	if opts.Catalog == nil {
		opts.Catalog = billing.NewCatalog(zerolog.Nop())
	}
	if opts.Ledger == nil {
		opts.Ledger = &stubLedger{}
	}
	opts.Log = zerolog.Nop()
	return NewServer(opts).Handler()
}

// do runs req against h, authenticated as clerkID unless it is empty.
func do(h http.Handler, req *http.Request, clerkID string) *httptest.ResponseRecorder {
	if clerkID != "" {
		req = req.WithContext(auth.WithUserID(req.Context(), clerkID))
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &m); err != nil {
		t.Fatalf("decode body %q: %v", rec.Body.String(), err)
	}
	return m
}
