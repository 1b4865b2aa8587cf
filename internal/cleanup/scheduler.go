// Package cleanup deletes per-request temporary files after a grace delay.
package cleanup

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"ocrbot/internal/logger"
	"ocrbot/internal/metrics"
)

// DefaultDelay leaves time for the host to finish re-reading its copy of the
// attachment before it is removed.
const DefaultDelay = 3 * time.Second

// Scheduler runs detached delayed deletions. Schedule never blocks; Shutdown
// cuts the remaining delays short and waits for pending deletions.
type Scheduler struct {
	delay  time.Duration
	remove func(string) error
	log    zerolog.Logger

	mu     sync.Mutex
	closed bool
	quit   chan struct{}
	wg     sync.WaitGroup
}

// NewScheduler creates a scheduler that waits delay before deleting.
func NewScheduler(delay time.Duration) *Scheduler {
	return &Scheduler{
		delay:  delay,
		remove: Remove,
		log:    logger.WithComponent("cleanup"),
		quit:   make(chan struct{}),
	}
}

// Schedule deletes paths after the delay without waiting for it.
func (s *Scheduler) Schedule(paths ...string) {
	if len(paths) == 0 {
		return
	}
	paths = append([]string(nil), paths...)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.removeAll(paths)
		return
	}
	s.wg.Add(1)
	s.mu.Unlock()

	metrics.CleanupPending.Inc()
	go func() {
		defer s.wg.Done()
		defer metrics.CleanupPending.Dec()

		timer := time.NewTimer(s.delay)
		defer timer.Stop()

		select {
		case <-timer.C:
		case <-s.quit:
		}
		s.removeAll(paths)
	}()
}

// Shutdown stops accepting delayed work, deletes everything still pending and
// waits until that finishes or ctx is done.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.quit)
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.log.Debug().Msg("Cleanup tasks drained")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) removeAll(paths []string) {
	for _, path := range paths {
		if err := s.remove(path); err != nil {
			metrics.CleanupRemovalsTotal.WithLabelValues("error").Inc()
			s.log.Warn().Err(err).Str("path", path).Msg("Failed to remove temporary file")
			continue
		}
		metrics.CleanupRemovalsTotal.WithLabelValues("success").Inc()
		s.log.Info().Str("path", path).Msg("Removed temporary file")
	}
}

// Remove deletes path. A path that no longer exists is not an error.
func Remove(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Lstat(path); errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
