package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"webchat/internal/history"
	"webchat/internal/session"
	"webchat/internal/storage"
)

// Scheduler periodically writes each session's transcript export to disk.
type Scheduler struct {
	cron     *cron.Cron
	ctx      context.Context
	cancel   context.CancelFunc
	sessions *session.Manager
	dir      string
	logger   *zap.Logger
}

func New(sessions *session.Manager, dir string, logger *zap.Logger) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		cron:     cron.New(cron.WithLocation(time.UTC)),
		ctx:      ctx,
		cancel:   cancel,
		sessions: sessions,
		dir:      dir,
		logger:   logger,
	}
}

// Start registers the export job under a standard five-field cron spec.
func (s *Scheduler) Start(spec string) error {
	if spec == "" {
		s.logger.Info("export schedule not set, scheduler disabled")
		return nil
	}
	_, err := s.cron.AddFunc(spec, func() {
		n, err := s.ExportAll(s.ctx)
		if err != nil {
			s.logger.Error("scheduled export failed", zap.Error(err))
			return
		}
		s.logger.Info("scheduled export done", zap.Int("sessions", n))
	})
	if err != nil {
		return fmt.Errorf("invalid export schedule %q: %w", spec, err)
	}
	s.cron.Start()
	s.logger.Info("scheduler started", zap.String("schedule", spec), zap.String("dir", s.dir))
	return nil
}

// StartPrune registers a job that drops sessions idle for longer than
// maxIdle. An empty spec or a non-positive maxIdle leaves it off.
func (s *Scheduler) StartPrune(spec string, maxIdle time.Duration) error {
	if spec == "" || maxIdle <= 0 {
		s.logger.Info("session pruning disabled")
		return nil
	}
	_, err := s.cron.AddFunc(spec, func() {
		s.Prune(maxIdle)
	})
	if err != nil {
		return fmt.Errorf("invalid prune schedule %q: %w", spec, err)
	}
	s.cron.Start()
	s.logger.Info("session pruning scheduled", zap.String("schedule", spec), zap.Duration("max_idle", maxIdle))
	return nil
}

// Prune drops idle sessions and returns how many were dropped.
func (s *Scheduler) Prune(maxIdle time.Duration) int {
	n := s.sessions.Prune(maxIdle)
	if n > 0 {
		s.logger.Info("idle sessions pruned", zap.Int("sessions", n), zap.Int("remaining", s.sessions.Len()))
	}
	return n
}

// ExportAll writes every non-empty session and returns how many were written.
// It keeps going past individual failures and reports the first one.
func (s *Scheduler) ExportAll(ctx context.Context) (int, error) {
	var (
		written  int
		firstErr error
	)
	s.sessions.Range(func(sess *session.Session) bool {
		if ctx.Err() != nil {
			if firstErr == nil {
				firstErr = ctx.Err()
			}
			return false
		}
		msgs := sess.Messages()
		if len(msgs) == 0 {
			return true
		}
		path, err := storage.WriteExport(s.dir, sess.ID(), history.ExportFilename, history.ExportBytes(msgs))
		if err != nil {
			s.logger.Warn("failed to export session", zap.String("session", sess.ID()), zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
			return true
		}
		s.logger.Debug("session exported", zap.String("session", sess.ID()), zap.String("path", path))
		written++
		return true
	})
	return written, firstErr
}

func (s *Scheduler) Stop() {
	if s.cron != nil {
		ctx := s.cron.Stop()
		<-ctx.Done()
	}
	if s.cancel != nil {
		s.cancel()
	}
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) IsRunning() bool {
	return s.cron != nil && len(s.cron.Entries()) > 0
}
