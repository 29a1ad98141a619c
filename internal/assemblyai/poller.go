package assemblyai

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/snarg/scribe-engine/internal/metrics"
)

// ErrPollExhausted is returned when a job is still running after the last attempt.
var ErrPollExhausted = errors.New("transcript not finished within poll budget")

// Fetcher reads a transcript's current state.
type Fetcher interface {
	Get(ctx context.Context, id string) (*Transcript, json.RawMessage, error)
}

// Backoff is a capped exponential schedule.
type Backoff struct {
	Initial     time.Duration
	Max         time.Duration
	Factor      float64
	MaxAttempts int
}

// DefaultBackoff waits 1s, 2s, 4s, 8s then 15s between polls.
var DefaultBackoff = Backoff{
	Initial:     time.Second,
	Max:         15 * time.Second,
	Factor:      2,
	MaxAttempts: 60,
}

// Delay returns the wait before poll number attempt+1 (attempt counts from 0).
func (b Backoff) Delay(attempt int) time.Duration {
	d := float64(b.Initial)
	for i := 0; i < attempt; i++ {
		d *= b.Factor
		if d >= float64(b.Max) {
			return b.Max
		}
	}
	if time.Duration(d) > b.Max {
		return b.Max
	}
	return time.Duration(d)
}

// Poller reads transcripts through an optional cache and waits for jobs to
// finish using Backoff. Waiting stops as soon as the caller's context ends.
type Poller struct {
	fetcher Fetcher
	cache   Cache
	backoff Backoff
	log     zerolog.Logger
}

func NewPoller(fetcher Fetcher, cache Cache, backoff Backoff, log zerolog.Logger) *Poller {
	if cache == nil {
		cache = noCache{}
	}
	if backoff.MaxAttempts <= 0 {
		backoff.MaxAttempts = DefaultBackoff.MaxAttempts
	}
	return &Poller{
		fetcher: fetcher,
		cache:   cache,
		backoff: backoff,
		log:     log.With().Str("component", "poller").Logger(),
	}
}

// Get returns the transcript once. Terminal transcripts are served from and
// stored in the cache.
func (p *Poller) Get(ctx context.Context, id string) (*Transcript, json.RawMessage, error) {
	if raw, ok := p.cache.Get(ctx, id); ok {
		var tr Transcript
		if err := json.Unmarshal(raw, &tr); err == nil && tr.Terminal() {
			metrics.StatusCacheTotal.WithLabelValues("hit").Inc()
			return &tr, raw, nil
		}
	}
	metrics.StatusCacheTotal.WithLabelValues("miss").Inc()

	tr, raw, err := p.fetcher.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if tr.Terminal() {
		p.cache.Put(ctx, id, raw)
	}
	return tr, raw, nil
}

// Wait polls until the transcript is terminal, the attempt budget is spent
// or ctx is done. onUpdate, if set, is called whenever the status changes.
// On ErrPollExhausted the last observed transcript is returned with the error.
func (p *Poller) Wait(ctx context.Context, id string, onUpdate func(*Transcript)) (*Transcript, json.RawMessage, error) {
	var (
		lastStatus string
		last       *Transcript
		lastRaw    json.RawMessage
	)
	for attempt := 0; attempt < p.backoff.MaxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(p.backoff.Delay(attempt - 1)):
			case <-ctx.Done():
				metrics.TranscriptPollsTotal.WithLabelValues("cancelled").Inc()
				return last, lastRaw, ctx.Err()
			}
		}

		tr, raw, err := p.Get(ctx, id)
		if err != nil {
			if ctx.Err() != nil {
				metrics.TranscriptPollsTotal.WithLabelValues("cancelled").Inc()
				return last, lastRaw, ctx.Err()
			}
			metrics.TranscriptPollsTotal.WithLabelValues("error").Inc()
			return nil, nil, err
		}
		last, lastRaw = tr, raw

		if tr.Status != lastStatus {
			lastStatus = tr.Status
			if onUpdate != nil {
				onUpdate(tr)
			}
		}
		if tr.Terminal() {
			metrics.TranscriptPollsTotal.WithLabelValues(tr.Status).Inc()
			p.log.Debug().Str("transcript_id", id).Str("status", tr.Status).Int("attempts", attempt+1).Msg("transcript finished")
			return tr, raw, nil
		}
	}

	metrics.TranscriptPollsTotal.WithLabelValues("exhausted").Inc()
	p.log.Warn().Str("transcript_id", id).Int("attempts", p.backoff.MaxAttempts).Str("status", lastStatus).Msg("gave up waiting for transcript")
	return last, lastRaw, ErrPollExhausted
}
