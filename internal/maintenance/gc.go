// Package maintenance runs the garbage-collection sweeps over persisted
// state: idle sessions, aged job documents, and
// the tool-result overflow directory. Each sweep runs once at startup and
// then on a daily schedule.
package maintenance

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/robfig/cron/v3"
)

// SessionSweeper is the slice of the Session Store the sweeper drives.
type SessionSweeper interface {
	GC(ctx context.Context, maxAge time.Duration) (int, error)
}

// JobSweeper is the slice of the Job Store the sweeper drives.
type JobSweeper interface {
	GC(maxAge time.Duration) (int, error)
}

// Sweeper schedules the periodic sweeps.
type Sweeper struct {
	sessions     SessionSweeper
	jobs         JobSweeper
	overflowRoot string
	sessionAge   time.Duration
	jobAge       time.Duration
	logger       *slog.Logger
	cron         *cron.Cron
}

// New creates a Sweeper. overflowRoot is the data/tool_results directory;
// overflow files older than sessionAge are removed alongside idle sessions.
func New(sessions SessionSweeper, jobs JobSweeper, overflowRoot string, sessionAge, jobAge time.Duration, logger *slog.Logger) *Sweeper {
	return &Sweeper{
		sessions:     sessions,
		jobs:         jobs,
		overflowRoot: overflowRoot,
		sessionAge:   sessionAge,
		jobAge:       jobAge,
		logger:       logger,
		cron:         cron.New(),
	}
}

// Start runs one sweep immediately, then daily at 03:00.
func (s *Sweeper) Start() error {
	s.SweepOnce()
	if _, err := s.cron.AddFunc("0 3 * * *", s.SweepOnce); err != nil {
		return err
	}
	s.cron.Start()
	return nil
}

// Stop halts the schedule; an in-flight sweep finishes.
func (s *Sweeper) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

// SweepOnce performs all three sweeps.
func (s *Sweeper) SweepOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	if s.sessions != nil && s.sessionAge > 0 {
		n, err := s.sessions.GC(ctx, s.sessionAge)
		if err != nil {
			s.logger.Warn("session gc failed", "error", err)
		} else if n > 0 {
			s.logger.Info("session gc", "removed", n)
		}
	}

	if s.jobs != nil && s.jobAge > 0 {
		n, err := s.jobs.GC(s.jobAge)
		if err != nil {
			s.logger.Warn("job gc failed", "error", err)
		} else if n > 0 {
			s.logger.Info("job gc", "removed", n)
		}
	}

	if s.overflowRoot != "" && s.sessionAge > 0 {
		n := sweepOverflow(s.overflowRoot, s.sessionAge)
		if n > 0 {
			s.logger.Info("overflow gc", "removed", n)
		}
	}
}

// sweepOverflow removes overflow files older than maxAge, then any session
// directories left empty.
func sweepOverflow(root string, maxAge time.Duration) int {
	cutoff := time.Now().Add(-maxAge)
	removed := 0

	dirs, err := os.ReadDir(root)
	if err != nil {
		return 0
	}
	for _, d := range dirs {
		if !d.IsDir() {
			continue
		}
		dir := filepath.Join(root, d.Name())
		files, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, f := range files {
			info, err := f.Info()
			if err != nil {
				continue
			}
			if info.ModTime().Before(cutoff) {
				if os.Remove(filepath.Join(dir, f.Name())) == nil {
					removed++
				}
			}
		}
		if rest, err := os.ReadDir(dir); err == nil && len(rest) == 0 {
			_ = os.Remove(dir)
		}
	}
	return removed
}
