package jobs

import (
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/hibikilabs/hibiki/pkg/database/models"
	"github.com/hibikilabs/hibiki/pkg/database/repository"
	"github.com/hibikilabs/hibiki/pkg/logging"
	"github.com/hibikilabs/hibiki/pkg/radio"
)

// Scheduler owns the periodic maintenance jobs: journal pruning, listener
// count sampling and a queue depth log line
type Scheduler struct {
	cron          *cron.Cron
	engine        radio.BroadcastEngine
	history       repository.HistoryRepository
	retentionDays int
	logger        logging.Logger
}

// NewScheduler creates the scheduler with its jobs unregistered
func NewScheduler(engine radio.BroadcastEngine, history repository.HistoryRepository, retentionDays int, logger logging.Logger) *Scheduler {
	return &Scheduler{
		cron:          cron.New(),
		engine:        engine,
		history:       history,
		retentionDays: retentionDays,
		logger:        logger,
	}
}

// Start registers the jobs and starts the cron loop
func (s *Scheduler) Start() error {
	// Nightly journal prune at 04:00
	if _, err := s.cron.AddFunc("0 4 * * *", s.pruneHistory); err != nil {
		return err
	}

	// Listener count sample every five minutes
	if _, err := s.cron.AddFunc("*/5 * * * *", s.sampleListeners); err != nil {
		return err
	}

	// Hourly queue depth line for trend spotting in the logs
	if _, err := s.cron.AddFunc("0 * * * *", s.logQueueDepth); err != nil {
		return err
	}

	s.cron.Start()

	s.logger.Info("Job scheduler started", map[string]interface{}{
		"retention_days": s.retentionDays,
	})
	return nil
}

// Stop halts the cron loop and waits for running jobs to finish
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()

	s.logger.Info("Job scheduler stopped", nil)
}

func (s *Scheduler) pruneHistory() {
	cutoff := time.Now().AddDate(0, 0, -s.retentionDays)

	pruned, err := s.history.PruneBefore(cutoff)
	if err != nil {
		s.logger.Error("Journal prune failed", err, map[string]interface{}{
			"cutoff": cutoff.Format(time.RFC3339),
		})
		return
	}

	s.logger.Info("Journal pruned", map[string]interface{}{
		"cutoff":      cutoff.Format(time.RFC3339),
		"rows_pruned": pruned,
	})
}

func (s *Scheduler) sampleListeners() {
	sample := &models.ListenerSample{
		ID:        uuid.New(),
		Count:     s.engine.ListenerCount(),
		SampledAt: time.Now(),
	}

	if err := s.history.SaveListenerSample(sample); err != nil {
		s.logger.Warn("Listener sample not persisted", map[string]interface{}{
			"count": sample.Count,
			"error": err.Error(),
		})
	}
}

func (s *Scheduler) logQueueDepth() {
	s.logger.Info("Queue depth", map[string]interface{}{
		"queue_size": s.engine.QueueSize(),
		"listeners":  s.engine.ListenerCount(),
	})
}
