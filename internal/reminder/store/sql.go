package store

import (
	"context"

	"github.com/smallbiznis/subtrack/internal/reminder/domain"
	"github.com/smallbiznis/subtrack/pkg/db"
	"gorm.io/gorm"
)

var jobUpdateColumns = []string{"id", "fire_at", "recipient", "name", "plan", "end_date", "created_at"}

type SQLStore struct {
	db *gorm.DB
}

func NewSQLStore(conn *gorm.DB) *SQLStore {
	return &SQLStore{db: conn}
}

func (s *SQLStore) Save(ctx context.Context, job domain.Job) error {
	if err := job.Validate(); err != nil {
		return err
	}
	_, err := db.Upsert(s.db.WithContext(ctx), &job, []string{"customer_no"}, jobUpdateColumns)
	return err
}

func (s *SQLStore) Delete(ctx context.Context, customerNo string) error {
	return s.db.WithContext(ctx).Exec(
		`DELETE FROM reminder_jobs WHERE customer_no = ?`,
		customerNo,
	).Error
}

func (s *SQLStore) Get(ctx context.Context, customerNo string) (*domain.Job, error) {
	var job domain.Job
	err := s.db.WithContext(ctx).Raw(
		`SELECT id, customer_no, fire_at, recipient, name, plan, end_date, created_at
		 FROM reminder_jobs WHERE customer_no = ?`,
		customerNo,
	).Scan(&job).Error
	if err != nil {
		return nil, err
	}
	if job.ID == 0 {
		return nil, nil
	}
	return &job, nil
}

func (s *SQLStore) List(ctx context.Context) ([]domain.Job, error) {
	var jobs []domain.Job
	err := s.db.WithContext(ctx).Raw(
		`SELECT id, customer_no, fire_at, recipient, name, plan, end_date, created_at
		 FROM reminder_jobs ORDER BY fire_at ASC, customer_no ASC`,
	).Scan(&jobs).Error
	if err != nil {
		return nil, err
	}
	return jobs, nil
}
