package domain

import (
	"context"

	"github.com/smallbiznis/subtrack/internal/period"
	"gorm.io/gorm"
)

type Repository interface {
	// Upsert writes s, replacing every non-key column when customer_no exists.
	Upsert(ctx context.Context, db *gorm.DB, s *Subscriber) error
	FindByCustomerNo(ctx context.Context, db *gorm.DB, customerNo string) (*Subscriber, error)
	FindByCustomerNoForUpdate(ctx context.Context, db *gorm.DB, customerNo string) (*Subscriber, error)
	Exists(ctx context.Context, db *gorm.DB, customerNo string) (bool, error)
	// ApplyRenewal sets the new end date and status active and increments
	// amount_paid by paid in a single statement.
	ApplyRenewal(ctx context.Context, db *gorm.DB, customerNo string, end period.Date, paid int64) error
	UpdateColumns(ctx context.Context, db *gorm.DB, customerNo string, set map[string]any) error
	ListByStatusWithEndDate(ctx context.Context, db *gorm.DB, status Status) ([]Subscriber, error)
	Search(ctx context.Context, db *gorm.DB, query string, limit int) ([]Subscriber, error)
	ListAll(ctx context.Context, db *gorm.DB) ([]Subscriber, error)

	InsertPayment(ctx context.Context, db *gorm.DB, p *Payment) error
	ListPayments(ctx context.Context, db *gorm.DB, customerNo string) ([]Payment, error)
}
