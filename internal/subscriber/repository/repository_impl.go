package repository

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/smallbiznis/subtrack/internal/period"
	"github.com/smallbiznis/subtrack/internal/subscriber/domain"
	"github.com/smallbiznis/subtrack/pkg/db"
	"gorm.io/gorm"
)

const subscriberColumns = `id, customer_no, name, contact_handle, external_id, plan, profiles_count,
		 start_date, end_date, amount_paid, status, note`

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Upsert(ctx context.Context, conn *gorm.DB, s *domain.Subscriber) error {
	_, err := db.Upsert(conn.WithContext(ctx), s, []string{"customer_no"}, domain.UpsertColumns)
	return err
}

func (r *repo) FindByCustomerNo(ctx context.Context, conn *gorm.DB, customerNo string) (*domain.Subscriber, error) {
	return r.find(ctx, conn, customerNo, "")
}

func (r *repo) FindByCustomerNoForUpdate(ctx context.Context, conn *gorm.DB, customerNo string) (*domain.Subscriber, error) {
	return r.find(ctx, conn, customerNo, db.ForUpdate(conn))
}

func (r *repo) find(ctx context.Context, conn *gorm.DB, customerNo, lock string) (*domain.Subscriber, error) {
	var s domain.Subscriber
	err := conn.WithContext(ctx).Raw(
		`SELECT `+subscriberColumns+`
		 FROM subscribers WHERE customer_no = ?`+lock,
		customerNo,
	).Scan(&s).Error
	if err != nil {
		return nil, err
	}
	if s.ID == 0 {
		return nil, nil
	}
	return &s, nil
}

func (r *repo) Exists(ctx context.Context, conn *gorm.DB, customerNo string) (bool, error) {
	rows, err := db.Query(ctx, conn,
		`SELECT COUNT(1) AS n FROM subscribers WHERE customer_no = ?`,
		customerNo,
	)
	if err != nil {
		return false, err
	}
	return len(rows) == 1 && rows[0].String("n") != "0", nil
}

func (r *repo) ApplyRenewal(ctx context.Context, conn *gorm.DB, customerNo string, end period.Date, paid int64) error {
	return conn.WithContext(ctx).Exec(
		`UPDATE subscribers
		 SET end_date = ?, amount_paid = amount_paid + ?, status = ?
		 WHERE customer_no = ?`,
		end,
		paid,
		domain.StatusActive,
		customerNo,
	).Error
}

func (r *repo) UpdateColumns(ctx context.Context, conn *gorm.DB, customerNo string, set map[string]any) error {
	if len(set) == 0 {
		return nil
	}
	columns := make([]string, 0, len(set))
	for column := range set {
		if _, ok := domain.EditableFields[column]; !ok {
			return fmt.Errorf("%w: %s", domain.ErrUnknownField, column)
		}
		columns = append(columns, column)
	}
	sort.Strings(columns)

	assignments := make([]string, 0, len(columns))
	args := make([]any, 0, len(columns)+1)
	for _, column := range columns {
		assignments = append(assignments, column+" = ?")
		args = append(args, set[column])
	}
	args = append(args, customerNo)

	return conn.WithContext(ctx).Exec(
		`UPDATE subscribers SET `+strings.Join(assignments, ", ")+` WHERE customer_no = ?`,
		args...,
	).Error
}

func (r *repo) ListByStatusWithEndDate(ctx context.Context, conn *gorm.DB, status domain.Status) ([]domain.Subscriber, error) {
	var out []domain.Subscriber
	err := conn.WithContext(ctx).Raw(
		`SELECT `+subscriberColumns+`
		 FROM subscribers
		 WHERE status = ? AND end_date IS NOT NULL AND end_date <> ''
		 ORDER BY end_date ASC, customer_no ASC`,
		status,
	).Scan(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *repo) Search(ctx context.Context, conn *gorm.DB, query string, limit int) ([]domain.Subscriber, error) {
	pattern := "%" + escapeLike(strings.ToLower(query)) + "%"
	var out []domain.Subscriber
	err := conn.WithContext(ctx).Raw(
		`SELECT `+subscriberColumns+`
		 FROM subscribers
		 WHERE LOWER(name) LIKE ? ESCAPE '!'
		    OR LOWER(customer_no) LIKE ? ESCAPE '!'
		    OR LOWER(plan) LIKE ? ESCAPE '!'
		    OR LOWER(COALESCE(contact_handle, '')) LIKE ? ESCAPE '!'
		 ORDER BY id DESC
		 LIMIT ?`,
		pattern, pattern, pattern, pattern, limit,
	).Scan(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *repo) ListAll(ctx context.Context, conn *gorm.DB) ([]domain.Subscriber, error) {
	var out []domain.Subscriber
	err := conn.WithContext(ctx).Raw(
		`SELECT ` + subscriberColumns + `
		 FROM subscribers ORDER BY id DESC`,
	).Scan(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *repo) InsertPayment(ctx context.Context, conn *gorm.DB, p *domain.Payment) error {
	return conn.WithContext(ctx).Exec(
		`INSERT INTO payments (id, customer_no, amount, paid_at, method, reference)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		p.ID,
		p.CustomerNo,
		p.Amount,
		p.PaidAt,
		p.Method,
		p.Reference,
	).Error
}

func (r *repo) ListPayments(ctx context.Context, conn *gorm.DB, customerNo string) ([]domain.Payment, error) {
	var out []domain.Payment
	err := conn.WithContext(ctx).Raw(
		`SELECT id, customer_no, amount, paid_at, method, reference
		 FROM payments WHERE customer_no = ?
		 ORDER BY paid_at ASC, id ASC`,
		customerNo,
	).Scan(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func escapeLike(s string) string {
	return strings.NewReplacer("!", "!!", "%", "!%", "_", "!_").Replace(s)
}
