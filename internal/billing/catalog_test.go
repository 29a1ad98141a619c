package billing

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestParseReference(t *testing.T) {
	tests := []struct {
		name   string
		ref    string
		wantID string
		wantOK bool
	}{
		{"valid", "minutes_creator-90_1700000000000", "creator-90", true},
		{"extra_parts", "minutes_starter-30_1700000000000_retry", "starter-30", true},
		{"too_few_parts", "minutes_creator-90", "", false},
		{"wrong_prefix", "credits_creator-90_1", "", false},
		{"empty", "", "", false},
		{"empty_package", "minutes__1", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, ok := ParseReference(tt.ref)
			if id != tt.wantID || ok != tt.wantOK {
				t.Errorf("ParseReference(%q) = (%q, %v), want (%q, %v)", tt.ref, id, ok, tt.wantID, tt.wantOK)
			}
		})
	}
}

func TestNewReferenceRoundTrip(t *testing.T) {
	now := time.UnixMilli(1700000000123)
	ref := NewReference("studio-180", now)
	if ref != "minutes_studio-180_1700000000123" {
		t.Errorf("NewReference = %q", ref)
	}
	id, ok := ParseReference(ref)
	if !ok || id != "studio-180" {
		t.Errorf("ParseReference(NewReference) = (%q, %v)", id, ok)
	}
}

func TestDefaultCatalog(t *testing.T) {
	c := NewCatalog(zerolog.Nop())

	tests := []struct {
		id      string
		minutes int
		amount  int64
	}{
		{"starter-30", 30, 360000},
		{"creator-90", 90, 900000},
		{"studio-180", 180, 1620000},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			p, ok := c.Lookup(tt.id)
			if !ok {
				t.Fatalf("Lookup(%q) not found", tt.id)
			}
			if p.Minutes != tt.minutes || p.AmountInCents != tt.amount {
				t.Errorf("got %d min / %d cents, want %d / %d", p.Minutes, p.AmountInCents, tt.minutes, tt.amount)
			}
			if p.Currency != "COP" {
				t.Errorf("Currency = %q, want COP", p.Currency)
			}
		})
	}

	if _, ok := c.Lookup("enterprise-1000"); ok {
		t.Error("unknown package should not be found")
	}
	if _, ok := c.PackageForReference("minutes_creator-90_1"); !ok {
		t.Error("PackageForReference should resolve creator-90")
	}
	if c.Len() != 3 {
		t.Errorf("Len() = %d, want 3", c.Len())
	}
}

func TestListReturnsCopy(t *testing.T) {
	c := NewCatalog(zerolog.Nop())
	list := c.List()
	list[0].AmountInCents = 1
	if p, _ := c.Lookup(list[0].ID); p.AmountInCents == 1 {
		t.Error("mutating List() result changed the catalog")
	}
}

func TestParsePackages(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		pkgs, err := ParsePackages([]byte(`
packages:
  - id: mini-10
    title: Mini
    minutes: 10
    amount_in_cents: 150000
  - id: mega-600
    title: Mega
    minutes: 600
    amount_in_cents: 4800000
    currency: USD
`))
		if err != nil {
			t.Fatalf("ParsePackages: %v", err)
		}
		if len(pkgs) != 2 {
			t.Fatalf("len = %d, want 2", len(pkgs))
		}
		if pkgs[0].Currency != "COP" {
			t.Errorf("default currency = %q, want COP", pkgs[0].Currency)
		}
		if pkgs[1].Currency != "USD" {
			t.Errorf("currency = %q, want USD", pkgs[1].Currency)
		}
	})

	invalid := []struct {
		name string
		doc  string
	}{
		{"empty", "packages: []"},
		{"not_yaml", "packages: [:"},
		{"missing_id", "packages:\n  - minutes: 10\n    amount_in_cents: 100"},
		{"underscore_id", "packages:\n  - id: a_b\n    minutes: 10\n    amount_in_cents: 100"},
		{"zero_minutes", "packages:\n  - id: a\n    minutes: 0\n    amount_in_cents: 100"},
		{"zero_amount", "packages:\n  - id: a\n    minutes: 10\n    amount_in_cents: 0"},
		{"duplicate", "packages:\n  - id: a\n    minutes: 10\n    amount_in_cents: 100\n  - id: a\n    minutes: 20\n    amount_in_cents: 200"},
	}
	for _, tt := range invalid {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParsePackages([]byte(tt.doc)); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestLoadCatalogFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "packages.yaml")
	writeFile(t, path, "packages:\n  - id: mini-10\n    minutes: 10\n    amount_in_cents: 150000\n")

	c, err := LoadCatalog(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("LoadCatalog: %v", err)
	}
	if _, ok := c.Lookup("mini-10"); !ok {
		t.Error("mini-10 should be loaded")
	}
	if _, ok := c.Lookup("creator-90"); ok {
		t.Error("file should replace the built-in packages")
	}

	t.Run("invalid_reload_keeps_previous", func(t *testing.T) {
		writeFile(t, path, "packages: []\n")
		if err := c.Reload(); err == nil {
			t.Error("expected reload error")
		}
		if _, ok := c.Lookup("mini-10"); !ok {
			t.Error("previous catalog should survive a bad reload")
		}
	})

	t.Run("missing_file_fails_load", func(t *testing.T) {
		if _, err := LoadCatalog(filepath.Join(dir, "nope.yaml"), zerolog.Nop()); err == nil {
			t.Error("expected error for missing file")
		}
	})
}

func TestCatalogWatchReloads(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "packages.yaml")
	writeFile(t, path, "packages:\n  - id: mini-10\n    minutes: 10\n    amount_in_cents: 150000\n")

	c, err := LoadCatalog(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("LoadCatalog: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := c.Watch(ctx); err != nil {
		t.Fatalf("Watch: %v", err)
	}

	writeFile(t, path, "packages:\n  - id: maxi-500\n    minutes: 500\n    amount_in_cents: 4000000\n")

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if _, ok := c.Lookup("maxi-500"); ok {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatal("catalog was not reloaded after the file changed")
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
