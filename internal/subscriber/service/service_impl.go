package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"github.com/smallbiznis/subtrack/internal/clock"
	"github.com/smallbiznis/subtrack/internal/config"
	"github.com/smallbiznis/subtrack/internal/lock"
	"github.com/smallbiznis/subtrack/internal/observability/logger"
	"github.com/smallbiznis/subtrack/internal/observability/metrics"
	"github.com/smallbiznis/subtrack/internal/observability/tracing"
	"github.com/smallbiznis/subtrack/internal/period"
	"github.com/smallbiznis/subtrack/internal/subscriber/domain"
	"github.com/smallbiznis/subtrack/pkg/db"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	maxCustomerNoLen = 64
	maxRenewMonths   = 120
	maxRenewDays     = 3650
	defaultMethod    = "manual"
)

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Repo      domain.Repository
	Clock     clock.Clock
	Locker    lock.Locker
	Config    config.Config
	Metrics   *metrics.Metrics `optional:"true"`
	Reminders domain.Reminders `optional:"true"`
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	repo      domain.Repository
	clock     clock.Clock
	locker    lock.Locker
	metrics   *metrics.Metrics
	reminders domain.Reminders
	tracer    tracing.Tracer

	policy      period.Policy
	searchLimit int
}

func New(p Params) domain.Service {
	searchLimit := p.Config.SearchLimit
	if searchLimit <= 0 {
		searchLimit = 50
	}
	policy := p.Config.RenewalPolicy
	if policy == "" {
		policy = period.PolicyCalendarMonth
	}
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("subscriber.service"),
		genID:       p.GenID,
		repo:        p.Repo,
		clock:       p.Clock,
		locker:      p.Locker,
		metrics:     p.Metrics,
		reminders:   p.Reminders,
		tracer:      tracing.Named("subscriber.service"),
		policy:      policy,
		searchLimit: searchLimit,
	}
}

// Today is the current calendar date in the deployment time zone.
func (s *Service) Today() period.Date {
	return period.Today(s.clock.Now(), s.clock.Location())
}

func (s *Service) Register(ctx context.Context, f domain.Fields) (res domain.RegisterResult, err error) {
	ctx, end := s.tracer.Start(ctx, "subscriber.Register")
	defer func() { end(err) }()

	sub, _, err := domain.Normalizer{Today: s.Today()}.Subscriber(f)
	if err != nil {
		return domain.RegisterResult{}, err
	}
	customerNo, err := s.customerNo(f.Canonical()[domain.FieldCustomerNo])
	if err != nil {
		return domain.RegisterResult{}, err
	}
	sub.CustomerNo = customerNo

	stored, created, err := s.upsert(ctx, "register", &sub)
	if err != nil {
		return domain.RegisterResult{}, err
	}

	s.metrics.IncRegistration(created)
	s.logger(ctx).Info("subscriber registered",
		zap.String("customer_no", stored.CustomerNo),
		zap.Bool("created", created),
	)
	return domain.RegisterResult{Subscriber: stored, Created: created}, nil
}

func (s *Service) Import(ctx context.Context, f domain.Fields, placeholder string) (domain.ImportResult, error) {
	sub, issues, err := domain.Normalizer{Today: s.Today(), Lenient: true}.Subscriber(f)
	if err != nil {
		return domain.ImportResult{}, err
	}

	customerNo := strings.TrimSpace(f.Canonical()[domain.FieldCustomerNo])
	if customerNo == "" {
		customerNo = placeholder
	}
	if customerNo == "" || len(customerNo) > maxCustomerNoLen {
		return domain.ImportResult{Issues: issues}, &domain.ValidationError{
			Field:   domain.FieldCustomerNo,
			Message: "missing or longer than 64 characters",
			Cause:   domain.ErrInvalidCustomerNo,
		}
	}
	sub.CustomerNo = customerNo

	stored, created, err := s.upsert(ctx, "import", &sub)
	if err != nil {
		return domain.ImportResult{Issues: issues}, err
	}
	return domain.ImportResult{Subscriber: stored, Created: created, Issues: issues}, nil
}

// upsert writes sub under the key lock and reports whether the row is new.
// The existence probe and the write share a transaction, so the outcome is
// exact for writers going through this process and best-effort otherwise.
// The reminder is synced before the lock is released.
func (s *Service) upsert(ctx context.Context, op string, sub *domain.Subscriber) (domain.Subscriber, bool, error) {
	unlock, err := s.locker.Lock(ctx, sub.CustomerNo)
	if err != nil {
		return domain.Subscriber{}, false, err
	}
	defer unlock()

	sub.ID = s.genID.Generate()
	var (
		stored  *domain.Subscriber
		created bool
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		exists, err := s.repo.Exists(ctx, tx, sub.CustomerNo)
		if err != nil {
			return err
		}
		created = !exists
		if err := s.repo.Upsert(ctx, tx, sub); err != nil {
			return err
		}
		stored, err = s.repo.FindByCustomerNo(ctx, tx, sub.CustomerNo)
		return err
	})
	if err != nil {
		return domain.Subscriber{}, false, s.storageErr(op, err)
	}
	if stored == nil {
		return domain.Subscriber{}, false, s.storageErr(op, errors.New("upserted row not readable"))
	}
	s.syncReminder(ctx, *stored)
	return *stored, created, nil
}

func (s *Service) Renew(ctx context.Context, req domain.RenewRequest) (res domain.RenewResult, err error) {
	ctx, end := s.tracer.Start(ctx, "subscriber.Renew", attribute.String("customer_no", req.CustomerNo))
	defer func() { end(err) }()

	req, err = normalizeRenew(req)
	if err != nil {
		return domain.RenewResult{}, err
	}

	unlock, err := s.locker.Lock(ctx, req.CustomerNo)
	if err != nil {
		return domain.RenewResult{}, err
	}
	defer unlock()

	today := s.Today()
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := s.repo.FindByCustomerNoForUpdate(ctx, tx, req.CustomerNo)
		if err != nil {
			return err
		}
		if current == nil {
			return domain.ErrNotFound
		}

		base := today
		if current.EndDate.Valid {
			base = period.Max(today, current.EndDate.Date)
		}
		newEnd := s.policy.Extend(base, req.Months, req.Days)

		if err := s.repo.ApplyRenewal(ctx, tx, req.CustomerNo, newEnd, req.Paid); err != nil {
			return err
		}

		payment := domain.Payment{
			ID:         s.genID.Generate(),
			CustomerNo: req.CustomerNo,
			Amount:     req.Paid,
			PaidAt:     s.clock.Now(),
			Method:     req.Method,
			Reference:  req.Reference,
		}
		if err := s.repo.InsertPayment(ctx, tx, &payment); err != nil {
			if db.IsDuplicateKeyErr(err) {
				return domain.DuplicatePayment(req.Reference)
			}
			return err
		}

		updated, err := s.repo.FindByCustomerNo(ctx, tx, req.CustomerNo)
		if err != nil {
			return err
		}
		if updated == nil {
			return domain.ErrNotFound
		}
		res = domain.RenewResult{
			Subscriber:  *updated,
			Payment:     payment,
			PreviousEnd: current.EndDate,
			Base:        base,
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrDuplicatePayment) {
			return domain.RenewResult{}, err
		}
		return domain.RenewResult{}, s.storageErr("renew", err)
	}

	s.metrics.ObserveRenewal(req.Paid)
	s.syncReminder(ctx, res.Subscriber)
	s.logger(ctx).Info("subscriber renewed",
		zap.String("customer_no", req.CustomerNo),
		zap.String("previous_end", res.PreviousEnd.String()),
		zap.String("end_date", res.Subscriber.EndDate.String()),
		zap.Int64("paid", req.Paid),
	)
	return res, nil
}

func normalizeRenew(req domain.RenewRequest) (domain.RenewRequest, error) {
	req.CustomerNo = strings.TrimSpace(req.CustomerNo)
	if req.CustomerNo == "" {
		return req, &domain.ValidationError{Field: domain.FieldCustomerNo, Message: "required", Cause: domain.ErrInvalidCustomerNo}
	}
	if req.Months < 0 || req.Days < 0 {
		return req, &domain.ValidationError{Field: "months", Message: "period must not be negative", Cause: domain.ErrInvalidPeriod}
	}
	if req.Months > 0 && req.Days > 0 {
		return req, &domain.ValidationError{Field: "months", Message: "months and days are mutually exclusive", Cause: domain.ErrInvalidPeriod}
	}
	if req.Months > maxRenewMonths || req.Days > maxRenewDays {
		return req, &domain.ValidationError{Field: "months", Message: "period too long", Cause: domain.ErrInvalidPeriod}
	}
	if req.Months == 0 && req.Days == 0 {
		req.Months = 1
	}
	if req.Paid < 0 {
		return req, &domain.ValidationError{Field: "paid", Message: "must not be negative", Cause: domain.ErrInvalidAmount}
	}
	req.Method = strings.TrimSpace(req.Method)
	if req.Method == "" {
		req.Method = defaultMethod
	}
	req.Reference = strings.TrimSpace(req.Reference)
	if req.Reference == "" {
		req.Reference = uuid.NewString()
	}
	return req, nil
}

func (s *Service) SetStatus(ctx context.Context, customerNo string, status domain.Status) (domain.Subscriber, error) {
	parsed, ok := domain.ParseStatus(string(status))
	if !ok {
		return domain.Subscriber{}, &domain.ValidationError{Field: domain.FieldStatus, Message: "must be active, expired or suspended", Cause: domain.ErrInvalidStatus}
	}

	sub, err := s.update(ctx, "set_status", customerNo, map[string]any{domain.FieldStatus: parsed}, true)
	if err != nil {
		return domain.Subscriber{}, err
	}
	s.metrics.IncStatusChange(string(parsed))
	return sub, nil
}

func (s *Service) Edit(ctx context.Context, customerNo string, f domain.Fields) (domain.Subscriber, error) {
	set, err := domain.EditSet(f, s.Today())
	if err != nil {
		return domain.Subscriber{}, err
	}

	return s.update(ctx, "edit", customerNo, set, touchesReminder(set))
}

func touchesReminder(set map[string]any) bool {
	for _, field := range []string{domain.FieldEndDate, domain.FieldStatus, domain.FieldContactHandle, domain.FieldExternalID, domain.FieldPlan} {
		if _, ok := set[field]; ok {
			return true
		}
	}
	return false
}

// update applies set under the key lock. With sync the reminder follows the
// committed row before the lock is released.
func (s *Service) update(ctx context.Context, op, customerNo string, set map[string]any, sync bool) (domain.Subscriber, error) {
	customerNo = strings.TrimSpace(customerNo)
	unlock, err := s.locker.Lock(ctx, customerNo)
	if err != nil {
		return domain.Subscriber{}, err
	}
	defer unlock()

	var out domain.Subscriber
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := s.repo.FindByCustomerNoForUpdate(ctx, tx, customerNo)
		if err != nil {
			return err
		}
		if current == nil {
			return domain.ErrNotFound
		}
		if err := s.repo.UpdateColumns(ctx, tx, customerNo, set); err != nil {
			return err
		}
		updated, err := s.repo.FindByCustomerNo(ctx, tx, customerNo)
		if err != nil {
			return err
		}
		if updated == nil {
			return domain.ErrNotFound
		}
		out = *updated
		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Subscriber{}, err
		}
		return domain.Subscriber{}, s.storageErr(op, err)
	}
	if sync {
		s.syncReminder(ctx, out)
	}
	return out, nil
}

func (s *Service) Get(ctx context.Context, customerNo string) (domain.Subscriber, error) {
	sub, err := s.repo.FindByCustomerNo(ctx, s.db, strings.TrimSpace(customerNo))
	if err != nil {
		return domain.Subscriber{}, s.storageErr("get", err)
	}
	if sub == nil {
		return domain.Subscriber{}, domain.ErrNotFound
	}
	return *sub, nil
}

func (s *Service) Payments(ctx context.Context, customerNo string) ([]domain.Payment, error) {
	sub, err := s.Get(ctx, customerNo)
	if err != nil {
		return nil, err
	}
	payments, err := s.repo.ListPayments(ctx, s.db, sub.CustomerNo)
	if err != nil {
		return nil, s.storageErr("payments", err)
	}
	return payments, nil
}

// ListDueSoon returns active subscribers whose end date falls on or before
// today plus withinDays, earliest first.
func (s *Service) ListDueSoon(ctx context.Context, withinDays int) ([]domain.Subscriber, error) {
	if withinDays < 0 {
		return nil, &domain.ValidationError{Field: "days", Message: "must not be negative", Cause: domain.ErrInvalidPeriod}
	}
	today := s.Today()
	return s.listActive(ctx, "list_due_soon", func(end period.Date) bool {
		return period.IsDueWithin(end, today, withinDays)
	})
}

// ListDueOn returns active subscribers ending exactly on day.
func (s *Service) ListDueOn(ctx context.Context, day period.Date) ([]domain.Subscriber, error) {
	return s.listActive(ctx, "list_due_on", func(end period.Date) bool {
		return end.Equal(day)
	})
}

func (s *Service) listActive(ctx context.Context, op string, keep func(period.Date) bool) ([]domain.Subscriber, error) {
	rows, err := s.repo.ListByStatusWithEndDate(ctx, s.db, domain.StatusActive)
	if err != nil {
		return nil, s.storageErr(op, err)
	}
	out := make([]domain.Subscriber, 0, len(rows))
	for _, row := range rows {
		if !row.EndDate.Valid || !keep(row.EndDate.Date) {
			continue
		}
		out = append(out, row)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if c := out[i].EndDate.Date.Compare(out[j].EndDate.Date); c != 0 {
			return c < 0
		}
		return out[i].CustomerNo < out[j].CustomerNo
	})
	return out, nil
}

func (s *Service) Find(ctx context.Context, query string) ([]domain.Subscriber, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, &domain.ValidationError{Field: "q", Message: "required", Cause: domain.ErrValidation}
	}
	rows, err := s.repo.Search(ctx, s.db, query, s.searchLimit)
	if err != nil {
		return nil, s.storageErr("find", err)
	}
	return rows, nil
}

func (s *Service) Export(ctx context.Context) ([]domain.Subscriber, error) {
	rows, err := s.repo.ListAll(ctx, s.db)
	if err != nil {
		return nil, s.storageErr("export", err)
	}
	return rows, nil
}

func (s *Service) customerNo(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "C" + s.genID.Generate().String(), nil
	}
	if len(raw) > maxCustomerNoLen || strings.ContainsAny(raw, " \t\r\n") {
		return "", &domain.ValidationError{Field: domain.FieldCustomerNo, Message: "must be at most 64 characters without spaces", Cause: domain.ErrInvalidCustomerNo}
	}
	return raw, nil
}

// syncReminder arms the expiry reminder for active subscribers with an end
// date and cancels it otherwise. Failures never undo the committed write.
func (s *Service) syncReminder(ctx context.Context, sub domain.Subscriber) {
	if s.reminders == nil {
		return
	}
	var err error
	if sub.IsActive() && sub.EndDate.Valid {
		err = s.reminders.Arm(ctx, sub)
	} else {
		err = s.reminders.Cancel(ctx, sub.CustomerNo)
	}
	if err != nil {
		s.logger(ctx).Warn("reminder sync failed",
			zap.String("customer_no", sub.CustomerNo),
			zap.Error(err),
		)
	}
}

func (s *Service) storageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	s.metrics.IncStorageError(op, err)
	return fmt.Errorf("%w: %s: %w", domain.ErrStorageUnavailable, op, err)
}

func (s *Service) logger(ctx context.Context) *zap.Logger {
	return logger.WithContext(ctx, s.log)
}
