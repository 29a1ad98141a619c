package storage

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/snarg/scribe-engine/internal/config"
)

// AudioStore abstracts where uploaded audio is archived.
type AudioStore interface {
	// Save streams size bytes of audio from body.
	// key format: {clerk_id}/{YYYY-MM-DD}/{uuid}{ext}
	Save(ctx context.Context, key string, body io.Reader, size int64, contentType string) error

	// Type returns "local" or "s3".
	Type() string
}

// New creates an AudioStore based on config. S3 wins when a bucket is set;
// otherwise audio goes under audioDir. Returns an error if S3 is configured
// but unreachable.
func New(cfg config.S3Config, audioDir string, log zerolog.Logger) (AudioStore, error) {
	if !cfg.Enabled() {
		log.Info().Str("dir", audioDir).Msg("archiving audio to local directory")
		return NewLocalStore(audioDir), nil
	}

	s3store, err := NewS3Store(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("S3 init failed: %w", err)
	}

	// Startup validation: verify credentials and bucket access
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s3store.HeadBucket(ctx); err != nil {
		return nil, fmt.Errorf("S3 startup check failed (bucket=%q endpoint=%q): %w",
			cfg.Bucket, cfg.Endpoint, err)
	}
	log.Info().Str("bucket", cfg.Bucket).Str("endpoint", cfg.Endpoint).Msg("S3 connection verified")
	return s3store, nil
}

// ArchiveKey builds the storage key for an upload made by clerkID at now.
// Anonymous uploads are grouped under "anonymous".
func ArchiveKey(clerkID, filename string, now time.Time) string {
	owner := strings.TrimSpace(clerkID)
	if owner == "" || strings.ContainsAny(owner, `/\`) || owner == "." || owner == ".." {
		owner = "anonymous"
	}
	ext := strings.ToLower(filepath.Ext(filename))
	if len(ext) > 10 || strings.ContainsAny(ext, `/\ `) {
		ext = ""
	}
	return owner + "/" + now.UTC().Format("2006-01-02") + "/" + uuid.NewString() + ext
}
