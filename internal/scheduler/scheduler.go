package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/subtrack/internal/clock"
	"github.com/smallbiznis/subtrack/internal/notify"
	"github.com/smallbiznis/subtrack/internal/observability/metrics"
	"github.com/smallbiznis/subtrack/internal/period"
	subdomain "github.com/smallbiznis/subtrack/internal/subscriber/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	jobExpirySweep = "expiry_sweep"
	deliveryKind   = "sweep"
)

var ErrInvalidConfig = errors.New("invalid_scheduler_config")

type Params struct {
	fx.In

	Log         *zap.Logger
	GenID       *snowflake.Node
	Clock       clock.Clock
	Subscribers subdomain.Service
	Notifier    notify.Notifier
	Metrics     *metrics.Metrics `optional:"true"`
	Config      Config           `optional:"true"`
}

// Scheduler runs the daily expiry sweep at a fixed local time and reports
// the subscribers due soon and due today to every operator in one message.
type Scheduler struct {
	log         *zap.Logger
	cfg         Config
	genID       *snowflake.Node
	clock       clock.Clock
	subscribers subdomain.Service
	notifier    notify.Notifier
	metrics     *metrics.Metrics
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.GenID == nil || p.Clock == nil || p.Subscribers == nil || p.Notifier == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		log:         p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:         p.Config.withDefaults(),
		genID:       p.GenID,
		clock:       p.Clock,
		subscribers: p.Subscribers,
		notifier:    p.Notifier,
		metrics:     p.Metrics,
	}, nil
}

// Report is the content of one sweep.
type Report struct {
	Date     period.Date
	LeadDays int
	DueSoon  []subdomain.Subscriber
	DueToday []subdomain.Subscriber
}

func (r Report) Text() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Daily subscription report %s\n", r.Date)
	writeSection(&b, fmt.Sprintf("Due in %d days", r.LeadDays), r.DueSoon)
	writeSection(&b, "Due today", r.DueToday)
	return strings.TrimRight(b.String(), "\n")
}

func writeSection(b *strings.Builder, title string, subs []subdomain.Subscriber) {
	fmt.Fprintf(b, "\n%s (%d):\n", title, len(subs))
	if len(subs) == 0 {
		b.WriteString("- none\n")
		return
	}
	for _, s := range subs {
		fmt.Fprintf(b, "- %s (%s)", s.Name, s.CustomerNo)
		if s.Plan != "" {
			fmt.Fprintf(b, " %s", s.Plan)
		}
		if handle := s.Recipient(); handle != "" {
			fmt.Fprintf(b, " %s", handle)
		}
		fmt.Fprintf(b, " ends %s\n", s.EndDate)
	}
}

func (s *Scheduler) runJob(
	parent context.Context,
	name string,
	timeout time.Duration,
	fn func(ctx context.Context) error,
) error {
	start := s.clock.Now()
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	ctx, run, owner := s.ensureJobRun(ctx, name)
	if owner {
		s.logJobStart(ctx, run)
	}

	err := fn(ctx)
	s.metrics.ObserveSweep(s.clock.Now().Sub(start), err)
	if owner {
		if err != nil && run.errorCount == 0 {
			run.IncError()
		}
		s.logJobFinish(ctx, run)
	}
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		s.logger(ctx).Warn("job timed out",
			zap.String("job", name),
			zap.Duration("timeout", timeout),
			zap.Error(err),
		)
	}
	return fmt.Errorf("%s: %w", name, err)
}

// RunOnce performs one sweep immediately.
func (s *Scheduler) RunOnce(parent context.Context) error {
	return s.runJob(parent, jobExpirySweep, s.cfg.JobTimeout, func(ctx context.Context) error {
		_, err := s.Sweep(ctx)
		return err
	})
}

// Sweep builds the report for today and sends it to every operator. The
// report is sent even when nothing is due. Failed deliveries are reported
// in the returned error and never retried.
func (s *Scheduler) Sweep(ctx context.Context) (Report, error) {
	run := jobRunFromContext(ctx)
	today := s.subscribers.Today()

	dueSoon, err := s.subscribers.ListDueOn(ctx, today.AddDays(s.cfg.LeadDays))
	if err != nil {
		return Report{}, err
	}
	dueToday := dueSoon
	if s.cfg.LeadDays != 0 {
		dueToday, err = s.subscribers.ListDueOn(ctx, today)
		if err != nil {
			return Report{}, err
		}
	}
	report := Report{Date: today, LeadDays: s.cfg.LeadDays, DueSoon: dueSoon, DueToday: dueToday}

	if len(s.cfg.Recipients) == 0 {
		s.logger(ctx).Warn("no operators configured, sweep report not delivered",
			zap.Int("due_soon", len(dueSoon)),
			zap.Int("due_today", len(dueToday)),
		)
		s.metrics.IncDelivery(deliveryKind, metrics.DeliverySkipped)
		return report, nil
	}

	text := report.Text()
	var errs error
	for _, recipient := range s.cfg.Recipients {
		if err := s.notifier.Send(ctx, recipient, text); err != nil {
			run.IncError()
			s.metrics.IncDelivery(deliveryKind, metrics.DeliveryFailed)
			s.logger(ctx).Warn("sweep report delivery failed",
				zap.String("recipient", recipient),
				zap.Error(err),
			)
			errs = errors.Join(errs, err)
			continue
		}
		run.AddProcessed(1)
		s.metrics.IncDelivery(deliveryKind, metrics.DeliverySent)
	}
	return report, errs
}

// NextRun returns the first sweep time strictly after now.
func (s *Scheduler) NextRun(now time.Time) time.Time {
	loc := s.clock.Location()
	local := now.In(loc)
	next := time.Date(local.Year(), local.Month(), local.Day(), s.cfg.Hour, s.cfg.Minute, 0, 0, loc)
	if !next.After(local) {
		next = time.Date(local.Year(), local.Month(), local.Day()+1, s.cfg.Hour, s.cfg.Minute, 0, 0, loc)
	}
	return next
}

func (s *Scheduler) RunForever(ctx context.Context) {
	for {
		now := s.clock.Now()
		next := s.NextRun(now)
		s.log.Debug("next sweep scheduled", zap.Time("at", next))

		select {
		case <-ctx.Done():
			return
		case <-s.clock.After(next.Sub(now)):
		}

		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}
	}
}
