package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/impactdao/treasury-engine/internal/metrics"
	apperrors "github.com/impactdao/treasury-engine/pkg/app/errors"
	"github.com/impactdao/treasury-engine/pkg/govstore"
)

// Sweeper periodically closes active proposals whose voting window has
// ended. It is the only path that changes proposal status without an
// explicit governance action.
type Sweeper struct {
	service  Service
	store    govstore.Reader
	interval time.Duration
	logger   *zap.Logger
}

// NewSweeper creates a sweeper closing expired proposals every interval.
func NewSweeper(service Service, store govstore.Reader, interval time.Duration, logger *zap.Logger) *Sweeper {
	return &Sweeper{
		service:  service,
		store:    store,
		interval: interval,
		logger:   logger,
	}
}

// Run blocks until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	s.logger.Info("starting proposal sweeper", zap.Duration("interval", s.interval))

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("stopping proposal sweeper")
			return
		case <-ticker.C:
			if err := s.sweep(ctx); err != nil {
				s.logger.Error("proposal sweep failed", zap.Error(err))
			}
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) error {
	ids, err := s.store.ExpiredActiveProposalIDs(ctx, time.Now().UTC())
	if err != nil {
		return err
	}

	for _, id := range ids {
		_, err := s.service.CloseProposal(ctx, id)
		if apperrors.Is(err, apperrors.CategoryLocked) {
			// Closed concurrently since the listing; nothing to do.
			continue
		}
		if err != nil {
			metrics.ErrorsTotal.WithLabelValues("sweeper", "close_failed").Inc()
			s.logger.Error("failed to close expired proposal",
				zap.Int64("proposal_id", id),
				zap.Error(err))
			continue
		}
		metrics.SweepClosures.Inc()
		s.logger.Info("closed expired proposal", zap.Int64("proposal_id", id))
	}
	return nil
}
