package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/snarg/scribe-engine/internal/events"
)

func TestCreateTranscription(t *testing.T) {
	store := newMemStore()
	store.addUser("user_1", 10)
	pub := &recordingPublisher{}
	h := testServer(t, ServerOptions{Store: store, Events: pub})

	body := `{"content":"hola mundo","title":"Standup","duration":95,"language":"es","transcriptId":"job-9"}`

	rec := do(h, httptest.NewRequest("POST", "/api/aai/transcription", strings.NewReader(body)), "user_1")
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201 (body %s)", rec.Code, rec.Body.String())
	}
	first := decodeBody(t, rec)
	if first["title"] != "Standup" || first["duration"] != float64(95) {
		t.Errorf("body = %v", first)
	}

	t.Run("repeat_returns_existing", func(t *testing.T) {
		rec := do(h, httptest.NewRequest("POST", "/api/aai/transcription", strings.NewReader(body)), "user_1")
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
		if got := decodeBody(t, rec)["id"]; got != first["id"] {
			t.Errorf("id = %v, want %v", got, first["id"])
		}
		if n := pub.count(events.TranscriptionCreated); n != 1 {
			t.Errorf("created events = %d, want 1", n)
		}
	})

	t.Run("same_job_other_user_gets_own_row", func(t *testing.T) {
		store.addUser("user_2", 0)
		other := `{"content":"my notes","title":"Mine","duration":60,"language":"es","transcriptId":"job-9"}`
		rec := do(h, httptest.NewRequest("POST", "/api/aai/transcription", strings.NewReader(other)), "user_2")
		if rec.Code != http.StatusCreated {
			t.Fatalf("status = %d, want 201 (body %s)", rec.Code, rec.Body.String())
		}
		got := decodeBody(t, rec)
		if got["id"] == first["id"] {
			t.Fatalf("user_2 received user_1's row %v", got["id"])
		}
		if got["content"] != "my notes" || got["userId"] == first["userId"] {
			t.Errorf("body = %v", got)
		}
		if strings.Contains(rec.Body.String(), "hola mundo") {
			t.Errorf("response leaks another user's content: %s", rec.Body.String())
		}
	})

	t.Run("unauthenticated", func(t *testing.T) {
		rec := do(h, httptest.NewRequest("POST", "/api/aai/transcription", strings.NewReader(body)), "")
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("status = %d, want 401", rec.Code)
		}
	})

	t.Run("unknown_user", func(t *testing.T) {
		rec := do(h, httptest.NewRequest("POST", "/api/aai/transcription", strings.NewReader(body)), "user_ghost")
		if rec.Code != http.StatusNotFound {
			t.Fatalf("status = %d, want 404", rec.Code)
		}
	})
}

func TestTranscriptionsOwnership(t *testing.T) {
	store := newMemStore()
	alice := store.addUser("alice", 0)
	bob := store.addUser("bob", 0)
	a1 := store.addTranscription(alice.ID, "First")
	a2 := store.addTranscription(alice.ID, "Second")
	b1 := store.addTranscription(bob.ID, "Bob's")
	h := testServer(t, ServerOptions{Store: store})

	t.Run("list_is_owner_scoped_newest_first", func(t *testing.T) {
		rec := do(h, httptest.NewRequest("GET", "/api/transcriptions", nil), "alice")
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		m := decodeBody(t, rec)
		if m["total"] != float64(2) {
			t.Errorf("total = %v, want 2", m["total"])
		}
		list := m["transcriptions"].([]any)
		if len(list) != 2 || list[0].(map[string]any)["id"] != a2.ID {
			t.Errorf("list = %v", list)
		}
	})

	t.Run("list_bad_limit", func(t *testing.T) {
		rec := do(h, httptest.NewRequest("GET", "/api/transcriptions?limit=0", nil), "alice")
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("status = %d, want 400", rec.Code)
		}
	})

	t.Run("get_own", func(t *testing.T) {
		rec := do(h, httptest.NewRequest("GET", "/api/transcriptions/"+a1.ID, nil), "alice")
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
	})

	t.Run("get_foreign_forbidden", func(t *testing.T) {
		rec := do(h, httptest.NewRequest("GET", "/api/transcriptions/"+b1.ID, nil), "alice")
		if rec.Code != http.StatusForbidden {
			t.Fatalf("status = %d, want 403", rec.Code)
		}
	})

	t.Run("get_missing", func(t *testing.T) {
		rec := do(h, httptest.NewRequest("GET", "/api/transcriptions/nope", nil), "alice")
		if rec.Code != http.StatusNotFound {
			t.Fatalf("status = %d, want 404", rec.Code)
		}
	})

	t.Run("delete_foreign_forbidden", func(t *testing.T) {
		rec := do(h, httptest.NewRequest("DELETE", "/api/transcriptions/"+a1.ID, nil), "bob")
		if rec.Code != http.StatusForbidden {
			t.Fatalf("status = %d, want 403", rec.Code)
		}
	})

	t.Run("delete_own", func(t *testing.T) {
		rec := do(h, httptest.NewRequest("DELETE", "/api/transcriptions/"+a1.ID, nil), "alice")
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		if got := decodeBody(t, rec)["id"]; got != a1.ID {
			t.Errorf("deleted id = %v", got)
		}
		rec = do(h, httptest.NewRequest("GET", "/api/transcriptions/"+a1.ID, nil), "alice")
		if rec.Code != http.StatusNotFound {
			t.Errorf("after delete status = %d, want 404", rec.Code)
		}
	})
}

func TestExportTranscription(t *testing.T) {
	store := newMemStore()
	alice := store.addUser("alice", 0)
	store.addUser("bob", 0)
	tr := store.addTranscription(alice.ID, "Weekly Sync!")
	h := testServer(t, ServerOptions{Store: store})

	tests := []struct {
		name       string
		user       string
		format     string
		wantStatus int
		wantType   string
	}{
		{"txt", "alice", "txt", http.StatusOK, "text/plain; charset=utf-8"},
		{"docx", "alice", "docx", http.StatusOK, "application/vnd.openxmlformats-officedocument.wordprocessingml.document"},
		{"xlsx_uppercase", "alice", "XLSX", http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"},
		{"invalid_format", "alice", "pdf", http.StatusBadRequest, ""},
		{"unauthenticated", "", "txt", http.StatusUnauthorized, ""},
		{"foreign", "bob", "txt", http.StatusForbidden, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/api/transcriptions/"+tr.ID+"/export?format="+tt.format, nil)
			rec := do(h, req, tt.user)
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (body %s)", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if tt.wantStatus != http.StatusOK {
				return
			}
			if got := rec.Header().Get("Content-Type"); got != tt.wantType {
				t.Errorf("Content-Type = %q", got)
			}
			ext := strings.ToLower(tt.format)
			if got := rec.Header().Get("Content-Disposition"); got != `attachment; filename="weekly-sync.`+ext+`"` {
				t.Errorf("Content-Disposition = %q", got)
			}
			if rec.Header().Get("Content-Length") == "" || rec.Body.Len() == 0 {
				t.Error("expected a non-empty body with Content-Length")
			}
		})
	}

	t.Run("txt_body_has_header_lines", func(t *testing.T) {
		rec := do(h, httptest.NewRequest("GET", "/api/transcriptions/"+tr.ID+"/export?format=txt", nil), "alice")
		body := rec.Body.String()
		for _, want := range []string{"Weekly Sync!", "hello world"} {
			if !strings.Contains(body, want) {
				t.Errorf("body missing %q:\n%s", want, body)
			}
		}
	})
}
