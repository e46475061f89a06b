// Package coordination runs the periodic sweep that reminds psychologists of
// cases left pending too long.
package coordination

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sos-villages/signalement/internal/audit"
	"github.com/sos-villages/signalement/internal/auth"
	"github.com/sos-villages/signalement/internal/case/domain"
	"github.com/sos-villages/signalement/internal/notification"
	"github.com/sos-villages/signalement/internal/shared/config"
	"github.com/sos-villages/signalement/internal/shared/metrics"
	"github.com/sos-villages/signalement/internal/shared/types"
)

const sweepLockKey = "signalement:pending-reminder-sweep"

// Dispatcher accepts delivery intents after commit
type Dispatcher interface {
	Dispatch(intents ...notification.Intent)
}

// ReminderConfig holds the sweep configuration
type ReminderConfig struct {
	// Interval between two sweeps
	Interval time.Duration

	// After is how long a case may stay pending before psychologists are reminded
	After time.Duration

	// LockTTL bounds how long one instance holds the sweep lock
	LockTTL time.Duration
}

// DefaultReminderConfig returns the production defaults
func DefaultReminderConfig() ReminderConfig {
	return ReminderConfig{
		Interval: 15 * time.Minute,
		After:    24 * time.Hour,
		LockTTL:  5 * time.Minute,
	}
}

// FromConfig builds the sweep configuration from application config
func FromConfig(cfg config.ReminderConfig) ReminderConfig {
	rc := DefaultReminderConfig()
	if cfg.Interval > 0 {
		rc.Interval = cfg.Interval
	}
	if cfg.After > 0 {
		rc.After = cfg.After
	}
	if cfg.LockTTL > 0 {
		rc.LockTTL = cfg.LockTTL
	}
	return rc
}

// SweepResult summarizes one sweep iteration
type SweepResult struct {
	Skipped   bool
	Cases     int
	Reminders int
}

// ReminderService sends one WhatsApp reminder per (psychologist, case) for
// cases still pending after the configured delay
type ReminderService struct {
	repo       domain.Repository
	dispatcher Dispatcher
	locker     Locker
	config     ReminderConfig
	logger     *zap.Logger
	now        func() time.Time

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewReminderService creates a sweep. locker may be nil when a single instance runs.
func NewReminderService(repo domain.Repository, dispatcher Dispatcher, locker Locker, cfg ReminderConfig, logger *zap.Logger) *ReminderService {
	if locker == nil {
		locker = noopLocker{}
	}
	return &ReminderService{
		repo:       repo,
		dispatcher: dispatcher,
		locker:     locker,
		config:     cfg,
		logger:     logger.Named("reminder"),
		now:        func() time.Time { return time.Now().UTC() },
		stopCh:     make(chan struct{}),
	}
}

// Start runs a first sweep right away, then one per interval, until ctx is
// done or Stop is called
func (s *ReminderService) Start(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(s.config.Interval)
		defer ticker.Stop()

		s.tick(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopCh:
				return
			case <-ticker.C:
				s.tick(ctx)
			}
		}
	}()

	s.logger.Info("reminder sweep started",
		zap.Duration("interval", s.config.Interval),
		zap.Duration("after", s.config.After),
	)
}

// Stop stops the loop and waits for a running sweep to finish
func (s *ReminderService) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.wg.Wait()
	s.logger.Info("reminder sweep stopped")
}

// tick runs one sweep. Errors are logged and the loop continues.
func (s *ReminderService) tick(ctx context.Context) {
	if _, err := s.SweepOnce(ctx, s.now()); err != nil {
		s.logger.Error("reminder sweep failed", zap.Error(err))
	}
}

// SweepOnce reminds the psychologists assigned to every case pending since
// before now-After. Reminders already recorded are not sent again, and
// psychologists without a WhatsApp number are skipped until they have one.
func (s *ReminderService) SweepOnce(ctx context.Context, now time.Time) (SweepResult, error) {
	release, acquired, err := s.locker.Acquire(ctx, sweepLockKey, s.config.LockTTL)
	if err != nil {
		metrics.RecordReminderSweep("error", 0)
		return SweepResult{}, err
	}
	if !acquired {
		metrics.RecordReminderSweep("skipped", 0)
		s.logger.Debug("reminder sweep held by another instance")
		return SweepResult{Skipped: true}, nil
	}
	defer release()

	cases, err := s.repo.ListPendingCreatedBefore(ctx, now.Add(-s.config.After))
	if err != nil {
		metrics.RecordReminderSweep("error", 0)
		return SweepResult{}, err
	}

	result := SweepResult{Cases: len(cases)}
	var intents []notification.Intent
	for _, c := range cases {
		created, err := s.remind(ctx, c, now)
		if err != nil {
			s.logger.Warn("pending reminder failed",
				zap.String("case_id", c.ID.String()),
				zap.Error(err),
			)
			continue
		}
		result.Reminders += len(created)
		intents = append(intents, created...)
	}

	if len(intents) > 0 {
		s.dispatcher.Dispatch(intents...)
	}

	metrics.RecordReminderSweep("ok", result.Reminders)
	if result.Reminders > 0 {
		s.logger.Info("pending reminders recorded",
			zap.Int("cases", result.Cases),
			zap.Int("reminders", result.Reminders),
		)
	}
	return result, nil
}

// remind records the reminders of one case in a transaction and returns the
// WhatsApp intents of the rows it inserted
func (s *ReminderService) remind(ctx context.Context, c *domain.Case, now time.Time) ([]notification.Intent, error) {
	var intents []notification.Intent
	err := s.repo.WithinTx(ctx, func(ctx context.Context, tx domain.Repository) error {
		assignments, err := tx.ListAssignments(ctx, c.ID)
		if err != nil {
			return err
		}
		if len(assignments) == 0 {
			return nil
		}

		ids := make([]types.ID, len(assignments))
		for i, a := range assignments {
			ids[i] = a.PsychologistID
		}
		recipients, err := tx.FindRecipients(ctx, domain.RecipientQuery{
			Role:    auth.RolePsychologist,
			UserIDs: ids,
		})
		if err != nil {
			return err
		}

		var reminded []notification.Recipient
		for _, r := range recipients {
			if r.WhatsAppNumber == "" {
				continue
			}
			inserted, err := tx.InsertNotification(ctx, notification.New(r.UserID, c.ID, notification.KindPendingReminder24h, now))
			if err != nil {
				return err
			}
			if inserted {
				reminded = append(reminded, r)
			}
		}
		if len(reminded) == 0 {
			return nil
		}

		if err := tx.AppendAudit(ctx, audit.NewEntry(nil, "", audit.ActionPendingReminderRecorded, audit.EntityCase, c.ID.Ptr(),
			map[string]any{"recipients": len(reminded)})); err != nil {
			return err
		}

		intents = notification.Intents(notification.KindPendingReminder24h, c.ID, reminded, notification.ChannelWhatsApp)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return intents, nil
}
