package backup

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/yourusername/unifi-ops/internal/logging"
	"github.com/yourusername/unifi-ops/internal/models"
)

// Schedule is one recurring backup job.
type Schedule struct {
	SiteID        string
	Cron          string // cron expression or descriptor (@daily, @hourly)
	Type          models.BackupType
	RetentionDays int
	Keep          int // retention enforcement after each run; 0 keeps all
}

// Scheduler runs recurring backups and enforces retention after each.
type Scheduler struct {
	orchestrator *Orchestrator
	registry     *Registry
	runner       *cron.Cron
	jobTimeout   time.Duration
}

// NewScheduler builds an idle scheduler; Add then Start.
func NewScheduler(orchestrator *Orchestrator, registry *Registry) *Scheduler {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	return &Scheduler{
		orchestrator: orchestrator,
		registry:     registry,
		runner:       cron.New(cron.WithParser(parser)),
		jobTimeout:   15 * time.Minute,
	}
}

// Add registers a schedule. Returns an error for an invalid cron
// expression or backup parameters.
func (s *Scheduler) Add(sched Schedule) error {
	if err := validateTrigger(sched.SiteID, TriggerOptions{
		Type:          sched.Type,
		RetentionDays: sched.RetentionDays,
		Confirm:       true,
	}); err != nil {
		return err
	}

	_, err := s.runner.AddFunc(sched.Cron, func() { s.execute(sched) })
	if err != nil {
		return fmt.Errorf("invalid schedule %q for site %s: %w", sched.Cron, sched.SiteID, err)
	}
	return nil
}

// Start begins running schedules in the background.
func (s *Scheduler) Start() {
	s.runner.Start()
}

// Stop halts scheduling and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	ctx := s.runner.Stop()
	<-ctx.Done()
}

func (s *Scheduler) execute(sched Schedule) {
	ctx, cancel := context.WithTimeout(context.Background(), s.jobTimeout)
	defer cancel()

	artifact, err := s.orchestrator.Trigger(ctx, sched.SiteID, TriggerOptions{
		Type:          sched.Type,
		RetentionDays: sched.RetentionDays,
		Confirm:       true,
	})
	if err != nil {
		logging.L().Error("scheduled backup failed", "site", sched.SiteID, "error", err)
		return
	}
	logging.L().Info("scheduled backup complete",
		"site", sched.SiteID,
		"filename", artifact.Filename,
	)

	if sched.Keep > 0 {
		if _, err := s.registry.EnforceRetention(ctx, sched.SiteID, sched.Keep); err != nil {
			logging.L().Error("retention enforcement failed", "site", sched.SiteID, "error", err)
		}
	}
}
