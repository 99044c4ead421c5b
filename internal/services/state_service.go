package services

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron"

	"plantcare-platform/internal/learners"
	"plantcare-platform/internal/repository"
	"plantcare-platform/pkg/logging"
	"plantcare-platform/pkg/metrics"
)

// StateService owns the learner-state lifecycle: restore at startup, a
// periodic checkpoint while serving, and a final save at shutdown. The
// durable representation is whatever the hub marshals; load-after-save
// round-trips the coefficients exactly.
type StateService struct {
	repo      repository.PlantRepository
	hub       *learners.Hub
	logger    *logging.StructuredLogger
	metrics   *metrics.Collector
	scheduler *gocron.Scheduler
}

// NewStateService creates a new state lifecycle service
func NewStateService(repo repository.PlantRepository, hub *learners.Hub, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *StateService {
	return &StateService{
		repo:      repo,
		hub:       hub,
		logger:    logger,
		metrics:   metricsCollector,
		scheduler: gocron.NewScheduler(time.UTC),
	}
}

// Restore loads persisted learner coefficients into the hub. A learner
// with no saved row stays at its prior (cold start).
func (s *StateService) Restore(ctx context.Context) error {
	payloads := make(map[string][]byte)

	for _, name := range []string{learners.StateCalibrator, learners.StateRegressor} {
		raw, err := s.repo.LoadModelState(ctx, name)
		if err != nil {
			return fmt.Errorf("failed to load %s state: %w", name, err)
		}
		if raw != nil {
			payloads[name] = raw
		}
	}

	if err := s.hub.RestoreState(payloads); err != nil {
		return err
	}

	reg := s.hub.RegressorState()
	s.metrics.LearnerSamplesSeen.WithLabelValues("k_regressor").Set(float64(reg.SampleCount))

	s.logger.Info(ctx, "[STATE_RESTORE] Learner state restored", logging.Fields{
		"restored_models":   len(payloads),
		"regressor_trained": reg.Trained(),
		"regressor_samples": reg.SampleCount,
	})

	return nil
}

// Checkpoint persists the hub state if anything changed since the last
// checkpoint. force writes even when clean (used at shutdown).
func (s *StateService) Checkpoint(ctx context.Context, force bool) error {
	payloads, wasDirty, err := s.hub.MarshalState()
	if err != nil {
		return err
	}
	if !wasDirty && !force {
		return nil
	}

	for name, payload := range payloads {
		if err := s.repo.SaveModelState(ctx, name, payload); err != nil {
			return fmt.Errorf("failed to checkpoint %s: %w", name, err)
		}
	}

	s.metrics.StateCheckpointTotal.Inc()
	s.logger.Debug(ctx, "[STATE_CHECKPOINT] Learner state persisted", logging.Fields{
		"forced": force,
	})

	return nil
}

// StartCheckpointJob schedules periodic background checkpoints.
func (s *StateService) StartCheckpointJob(interval time.Duration) error {
	_, err := s.scheduler.Every(interval).Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := s.Checkpoint(ctx, false); err != nil {
			s.logger.Error(ctx, "[STATE_CHECKPOINT_ERROR] Periodic checkpoint failed", logging.Fields{}, err)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule checkpoint job: %w", err)
	}

	s.scheduler.StartAsync()
	return nil
}

// Stop halts the checkpoint job and writes a final state snapshot.
func (s *StateService) Stop(ctx context.Context) error {
	s.scheduler.Stop()
	return s.Checkpoint(ctx, true)
}
