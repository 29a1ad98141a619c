package storage

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/snarg/scribe-engine/internal/metrics"
)

// Archiver copies uploaded audio to an AudioStore in the background so the
// upload relay never waits on the archive.
type Archiver struct {
	store    AudioStore
	ch       chan archiveJob
	wg       sync.WaitGroup
	log      zerolog.Logger
	stopped  atomic.Bool
	stopOnce sync.Once
	saved    atomic.Int64
	dropped  atomic.Int64
}

type archiveJob struct {
	key         string
	path        string // spooled upload, removed once handled
	contentType string
}

// NewArchiver creates an archiver with the given queue size.
func NewArchiver(store AudioStore, bufferSize int, log zerolog.Logger) *Archiver {
	return &Archiver{
		store: store,
		ch:    make(chan archiveJob, bufferSize),
		log:   log.With().Str("component", "archiver").Str("backend", store.Type()).Logger(),
	}
}

// Enqueue schedules the spooled file at path to be stored under key and takes
// ownership of it. Non-blocking: when the queue is full or the archiver is
// stopped the job is dropped with a warning and the file removed.
func (a *Archiver) Enqueue(key, path, contentType string) bool {
	if a.stopped.Load() {
		os.Remove(path)
		return false
	}
	select {
	case a.ch <- archiveJob{key: key, path: path, contentType: contentType}:
		return true
	default:
		a.dropped.Add(1)
		os.Remove(path)
		a.log.Warn().Str("key", key).Msg("archive queue full, skipping")
		return false
	}
}

// Start launches worker goroutines.
func (a *Archiver) Start(workers int) {
	for i := 0; i < workers; i++ {
		a.wg.Add(1)
		go a.worker()
	}
	a.log.Info().Int("workers", workers).Int("buffer", cap(a.ch)).Msg("audio archiver started")
}

// Stop closes the queue and waits for queued jobs to drain.
func (a *Archiver) Stop() {
	a.stopped.Store(true)
	a.stopOnce.Do(func() { close(a.ch) })
	a.wg.Wait()
	a.log.Info().Int64("saved", a.saved.Load()).Int64("dropped", a.dropped.Load()).Msg("audio archiver stopped")
}

func (a *Archiver) worker() {
	defer a.wg.Done()
	for job := range a.ch {
		size, err := a.save(job)
		if err != nil {
			a.log.Error().Err(err).Str("key", job.key).Msg("audio archive failed")
		} else {
			a.saved.Add(1)
			metrics.AudioArchivedBytes.Add(float64(size))
		}
		os.Remove(job.path)
	}
}

func (a *Archiver) save(job archiveJob) (int64, error) {
	f, err := os.Open(job.path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return 0, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()
	return info.Size(), a.store.Save(ctx, job.key, f, info.Size(), job.contentType)
}
