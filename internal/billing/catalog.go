package billing

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"gopkg.in/yaml.v3"
)

// ReferencePrefix starts every checkout reference this service issues.
const ReferencePrefix = "minutes"

// DefaultCurrency is the currency of every built-in package.
const DefaultCurrency = "COP"

// Package is a purchasable bundle of transcription minutes.
type Package struct {
	ID            string `yaml:"id" json:"id"`
	Title         string `yaml:"title" json:"title"`
	Description   string `yaml:"description" json:"description"`
	Minutes       int    `yaml:"minutes" json:"minutes"`
	AmountInCents int64  `yaml:"amount_in_cents" json:"amountInCents"`
	Currency      string `yaml:"currency" json:"currency"`
}

// DefaultPackages is the catalog used when no packages file is configured.
var DefaultPackages = []Package{
	{
		ID:            "starter-30",
		Title:         "Starter",
		Description:   "Ideal for trying out longer audios.",
		Minutes:       30,
		AmountInCents: 360000,
		Currency:      DefaultCurrency,
	},
	{
		ID:            "creator-90",
		Title:         "Creator",
		Description:   "Best value for frequent transcribers.",
		Minutes:       90,
		AmountInCents: 900000,
		Currency:      DefaultCurrency,
	},
	{
		ID:            "studio-180",
		Title:         "Studio",
		Description:   "Designed for teams and power users.",
		Minutes:       180,
		AmountInCents: 1620000,
		Currency:      DefaultCurrency,
	},
}

// Catalog holds the packages currently on sale. It is safe for concurrent use;
// a reload swaps the whole list.
type Catalog struct {
	mu       sync.RWMutex
	packages []Package
	path     string
	loadedAt time.Time
	log      zerolog.Logger
}

// NewCatalog returns a catalog populated with DefaultPackages.
func NewCatalog(log zerolog.Logger) *Catalog {
	return &Catalog{
		packages: append([]Package(nil), DefaultPackages...),
		loadedAt: time.Now(),
		log:      log.With().Str("component", "catalog").Logger(),
	}
}

// LoadCatalog returns a catalog read from path, or the built-in catalog when
// path is empty.
func LoadCatalog(path string, log zerolog.Logger) (*Catalog, error) {
	c := NewCatalog(log)
	if path == "" {
		return c, nil
	}
	c.path = path
	if err := c.Reload(); err != nil {
		return nil, err
	}
	return c, nil
}

type packagesFile struct {
	Packages []Package `yaml:"packages"`
}

// ParsePackages decodes and validates a packages YAML document.
func ParsePackages(data []byte) ([]Package, error) {
	var f packagesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse packages: %w", err)
	}
	if len(f.Packages) == 0 {
		return nil, errors.New("packages file lists no packages")
	}
	for i := range f.Packages {
		p := &f.Packages[i]
		p.ID = strings.TrimSpace(p.ID)
		switch {
		case p.ID == "":
			return nil, fmt.Errorf("package %d: id is required", i)
		case strings.Contains(p.ID, "_"):
			return nil, fmt.Errorf("package %q: id must not contain '_'", p.ID)
		case p.Minutes <= 0:
			return nil, fmt.Errorf("package %q: minutes must be positive", p.ID)
		case p.AmountInCents <= 0:
			return nil, fmt.Errorf("package %q: amount_in_cents must be positive", p.ID)
		}
		if p.Currency == "" {
			p.Currency = DefaultCurrency
		}
	}
	if dups := lo.FindDuplicatesBy(f.Packages, func(p Package) string { return p.ID }); len(dups) > 0 {
		return nil, fmt.Errorf("duplicate package id %q", dups[0].ID)
	}
	return f.Packages, nil
}

// Reload re-reads the packages file. On error the current catalog is kept.
func (c *Catalog) Reload() error {
	if c.path == "" {
		return nil
	}
	data, err := os.ReadFile(c.path)
	if err != nil {
		return fmt.Errorf("read packages file: %w", err)
	}
	pkgs, err := ParsePackages(data)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.packages = pkgs
	c.loadedAt = time.Now()
	c.mu.Unlock()

	c.log.Info().
		Str("path", c.path).
		Strs("packages", lo.Map(pkgs, func(p Package, _ int) string { return p.ID })).
		Msg("package catalog loaded")
	return nil
}

// Lookup returns the package with the given id.
func (c *Catalog) Lookup(id string) (Package, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return lo.Find(c.packages, func(p Package) bool { return p.ID == id })
}

// List returns a copy of the packages on sale.
func (c *Catalog) List() []Package {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]Package(nil), c.packages...)
}

// Len returns the number of packages on sale.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.packages)
}

// LoadedAt returns when the current package list was installed.
func (c *Catalog) LoadedAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loadedAt
}

// PackageForReference resolves a checkout reference to a package on sale.
func (c *Catalog) PackageForReference(reference string) (Package, bool) {
	id, ok := ParseReference(reference)
	if !ok {
		return Package{}, false
	}
	return c.Lookup(id)
}

// ParseReference extracts the package id from a reference of the form
// minutes_<packageId>_<timestamp>.
func ParseReference(reference string) (string, bool) {
	parts := strings.Split(reference, "_")
	if len(parts) < 3 || parts[0] != ReferencePrefix || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

// NewReference builds a checkout reference for packageID at now.
func NewReference(packageID string, now time.Time) string {
	return ReferencePrefix + "_" + packageID + "_" + strconv.FormatInt(now.UnixMilli(), 10)
}
