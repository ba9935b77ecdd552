package service

import (
	"context"
	"sync"
	"time"

	"github.com/Harshitk-cp/medgraph/internal/domain"
	"go.uber.org/zap"
)

const defaultSweepInterval = 1 * time.Hour

// SweeperService deletes computed relations produced by a model version other
// than the configured one. Old entries are never served, since lookups key on
// the current version; the sweeper only reclaims their storage.
type SweeperService struct {
	store        domain.ComputedRelationStore
	modelVersion string
	logger       *zap.Logger

	interval time.Duration
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

func NewSweeperService(s domain.ComputedRelationStore, modelVersion string, logger *zap.Logger) *SweeperService {
	return &SweeperService{
		store:        s,
		modelVersion: modelVersion,
		logger:       logger,
		interval:     defaultSweepInterval,
		stopCh:       make(chan struct{}),
	}
}

func (s *SweeperService) SetInterval(d time.Duration) {
	if d > 0 {
		s.interval = d
	}
}

// Start runs the sweeper on a periodic schedule in a background goroutine.
func (s *SweeperService) Start() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.logger.Info("computed relation sweeper started",
			zap.Duration("interval", s.interval),
			zap.String("model_version", s.modelVersion))

		for {
			select {
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				_, _ = s.Sweep(ctx)
				cancel()
			case <-s.stopCh:
				s.logger.Info("computed relation sweeper stopped")
				return
			}
		}
	}()
}

// Stop gracefully stops the sweeper.
func (s *SweeperService) Stop() {
	close(s.stopCh)
	s.wg.Wait()
}

// Sweep runs one pass and returns the number of deleted entries.
func (s *SweeperService) Sweep(ctx context.Context) (int64, error) {
	deleted, err := s.store.DeleteStaleVersions(ctx, s.modelVersion)
	if err != nil {
		s.logger.Error("failed to sweep superseded computed relations", zap.Error(err))
		return 0, err
	}
	if deleted > 0 {
		s.logger.Info("swept superseded computed relations",
			zap.Int64("count", deleted),
			zap.String("model_version", s.modelVersion))
	}
	return deleted, nil
}
