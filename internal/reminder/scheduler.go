package reminder

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/subtrack/internal/clock"
	"github.com/smallbiznis/subtrack/internal/config"
	"github.com/smallbiznis/subtrack/internal/notify"
	obscontext "github.com/smallbiznis/subtrack/internal/observability/context"
	"github.com/smallbiznis/subtrack/internal/observability/logger"
	"github.com/smallbiznis/subtrack/internal/observability/metrics"
	"github.com/smallbiznis/subtrack/internal/period"
	"github.com/smallbiznis/subtrack/internal/reminder/domain"
	subdomain "github.com/smallbiznis/subtrack/internal/subscriber/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	deliveryKind = "reminder"
	fireTimeout  = 30 * time.Second
)

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Clock       clock.Clock
	Config      config.Config
	Store       domain.Store
	Notifier    notify.Notifier
	Subscribers subdomain.Repository
	Metrics     *metrics.Metrics `optional:"true"`
}

type armedJob struct {
	timer clock.Timer
	seq   uint64
}

// Scheduler keeps at most one pending expiry reminder per subscriber. Jobs
// are persisted before their timer is armed and deleted before delivery, so
// a reminder is sent at most once even across restarts.
type Scheduler struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	clock       clock.Clock
	store       domain.Store
	notifier    notify.Notifier
	subscribers subdomain.Repository
	metrics     *metrics.Metrics
	leadDays    int

	mu     sync.Mutex
	seq    uint64
	timers map[string]armedJob
}

func New(p Params) *Scheduler {
	return &Scheduler{
		db:          p.DB,
		log:         p.Log.Named("reminder.scheduler"),
		genID:       p.GenID,
		clock:       p.Clock,
		store:       p.Store,
		notifier:    p.Notifier,
		subscribers: p.Subscribers,
		metrics:     p.Metrics,
		leadDays:    p.Config.ReminderLeadDays,
		timers:      make(map[string]armedJob),
	}
}

// FireTime is the start of the day leadDays before end, in loc.
func FireTime(end period.Date, leadDays int, loc *time.Location) time.Time {
	return end.AddDays(-leadDays).In(loc)
}

// Arm replaces the pending reminder of s. Inactive subscribers, subscribers
// without an end date or a recipient, and fire times already in the past
// leave no pending job behind.
func (s *Scheduler) Arm(ctx context.Context, sub subdomain.Subscriber) error {
	if !sub.IsActive() || !sub.EndDate.Valid {
		return s.Cancel(ctx, sub.CustomerNo)
	}
	recipient := sub.Recipient()
	if recipient == "" {
		s.logger(ctx).Debug("no recipient, reminder not armed", zap.String("customer_no", sub.CustomerNo))
		return s.Cancel(ctx, sub.CustomerNo)
	}

	loc := s.clock.Location()
	now := s.clock.Now()
	fireAt := FireTime(sub.EndDate.Date, s.leadDays, loc)
	if !fireAt.After(now) {
		s.metrics.IncReminderJob(metrics.ReminderPast)
		return s.Cancel(ctx, sub.CustomerNo)
	}

	job := domain.Job{
		ID:         s.genID.Generate(),
		CustomerNo: sub.CustomerNo,
		FireAt:     fireAt,
		Recipient:  recipient,
		Name:       sub.Name,
		Plan:       sub.Plan,
		EndDate:    sub.EndDate.Date,
		CreatedAt:  now,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// A failed save leaves the previous job and its timer in place.
	if err := s.store.Save(ctx, job); err != nil {
		return fmt.Errorf("save reminder job: %w", err)
	}
	s.stopLocked(job.CustomerNo)
	s.scheduleLocked(job, fireAt.Sub(now))
	s.metrics.IncReminderJob(metrics.ReminderArmed)

	s.logger(ctx).Debug("reminder armed",
		zap.String("customer_no", job.CustomerNo),
		zap.Time("fire_at", fireAt),
	)
	return nil
}

// Cancel drops the pending reminder of customerNo, if any.
func (s *Scheduler) Cancel(ctx context.Context, customerNo string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopLocked(customerNo) {
		s.metrics.IncReminderJob(metrics.ReminderCanceled)
	}
	if err := s.store.Delete(ctx, customerNo); err != nil {
		return fmt.Errorf("delete reminder job: %w", err)
	}
	return nil
}

// Restore re-arms persisted jobs. Jobs whose fire time passed while the
// process was down are dropped; the daily sweep reports those subscribers.
func (s *Scheduler) Restore(ctx context.Context) error {
	jobs, err := s.store.List(ctx)
	if err != nil {
		return fmt.Errorf("list reminder jobs: %w", err)
	}
	now := s.clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()
	var errs error
	for _, job := range jobs {
		if !job.FireAt.After(now) {
			if err := s.store.Delete(ctx, job.CustomerNo); err != nil {
				errs = errors.Join(errs, err)
				continue
			}
			s.metrics.IncReminderJob(metrics.ReminderExpired)
			continue
		}
		s.stopLocked(job.CustomerNo)
		s.scheduleLocked(job, job.FireAt.Sub(now))
		s.metrics.IncReminderJob(metrics.ReminderRestored)
	}

	s.log.Info("reminder jobs restored", zap.Int("pending", len(s.timers)), zap.Int("stored", len(jobs)))
	return errs
}

// Stop disarms every timer. Persisted jobs are kept for the next Restore.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, armed := range s.timers {
		armed.timer.Stop()
		delete(s.timers, key)
	}
}

// Pending returns the number of armed timers.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

func (s *Scheduler) stopLocked(customerNo string) bool {
	armed, ok := s.timers[customerNo]
	if !ok {
		return false
	}
	armed.timer.Stop()
	delete(s.timers, customerNo)
	return true
}

func (s *Scheduler) scheduleLocked(job domain.Job, delay time.Duration) {
	s.seq++
	seq := s.seq
	timer := s.clock.AfterFunc(delay, func() { s.fire(job, seq) })
	s.timers[job.CustomerNo] = armedJob{timer: timer, seq: seq}
}

func (s *Scheduler) fire(job domain.Job, seq uint64) {
	ctx, cancel := context.WithTimeout(context.Background(), fireTimeout)
	defer cancel()
	ctx = obscontext.WithActor(ctx, obscontext.ActorScheduler, "reminder")
	log := s.logger(ctx).With(zap.String("customer_no", job.CustomerNo))

	s.mu.Lock()
	armed, ok := s.timers[job.CustomerNo]
	if !ok || armed.seq != seq {
		s.mu.Unlock()
		return
	}
	delete(s.timers, job.CustomerNo)
	err := s.store.Delete(ctx, job.CustomerNo)
	s.mu.Unlock()
	if err != nil {
		log.Warn("reminder job not deleted before delivery", zap.Error(err))
	}

	sub, err := s.subscribers.FindByCustomerNo(ctx, s.db, job.CustomerNo)
	if err != nil {
		s.metrics.IncDelivery(deliveryKind, metrics.DeliveryFailed)
		log.Error("reminder subscriber lookup failed", zap.Error(err))
		return
	}
	if sub == nil || !sub.IsActive() || !sub.EndDate.Valid || !sub.EndDate.Date.Equal(job.EndDate) {
		s.metrics.IncDelivery(deliveryKind, metrics.DeliverySkipped)
		log.Info("reminder skipped, subscription changed")
		return
	}

	recipient := sub.Recipient()
	if recipient == "" {
		recipient = job.Recipient
	}
	if err := s.notifier.Send(ctx, recipient, ReminderText(*sub)); err != nil {
		s.metrics.IncDelivery(deliveryKind, metrics.DeliveryFailed)
		log.Warn("reminder delivery failed", zap.Error(err))
		return
	}
	s.metrics.IncDelivery(deliveryKind, metrics.DeliverySent)
	log.Info("reminder sent", zap.String("end_date", job.EndDate.String()))
}

// ReminderText is the message sent to a subscriber ahead of expiry.
func ReminderText(sub subdomain.Subscriber) string {
	plan := sub.Plan
	if plan == "" {
		plan = "subscription"
	}
	return fmt.Sprintf("Hello %s, your %s (%s) ends on %s. Reply to renew and keep your access.",
		sub.Name, plan, sub.CustomerNo, sub.EndDate.String())
}

func (s *Scheduler) logger(ctx context.Context) *zap.Logger {
	return logger.WithContext(ctx, s.log)
}
