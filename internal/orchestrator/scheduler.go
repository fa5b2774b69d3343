package orchestrator

import (
	"context"

	"github.com/robfig/cron/v3"

	"agroadvisor/internal/logger"
)

// Scheduler drives the weather poll and the evaluation cycle on their
// cron schedules. Job bodies run with a background context so an HTTP
// shutdown does not cut a cycle mid-flight.
type Scheduler struct {
	cron   *cron.Cron
	logger logger.Logger
}

func NewScheduler(log logger.Logger) *Scheduler {
	return &Scheduler{
		cron:   cron.New(),
		logger: log,
	}
}

func (s *Scheduler) AddJob(name, spec string, job func(ctx context.Context)) error {
	_, err := s.cron.AddFunc(spec, func() {
		s.logger.Infow("Scheduled job started", "job", name)
		job(context.Background())
	})
	if err != nil {
		return err
	}
	s.logger.Infow("Scheduled job registered", "job", name, "schedule", spec)
	return nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop waits for running jobs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}
