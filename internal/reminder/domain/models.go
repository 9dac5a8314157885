package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/subtrack/internal/period"
)

var ErrInvalidJob = errors.New("invalid_reminder_job")

// Job is the single pending expiry reminder of a subscriber. Saving a job
// for a customer_no replaces any previous one.
type Job struct {
	ID         snowflake.ID `gorm:"primaryKey" json:"id"`
	CustomerNo string       `gorm:"column:customer_no;not null;uniqueIndex;size:64" json:"customer_no"`
	FireAt     time.Time    `gorm:"column:fire_at;not null;index" json:"fire_at"`
	Recipient  string       `gorm:"not null;size:128" json:"recipient"`
	Name       string       `gorm:"not null" json:"name"`
	Plan       string       `gorm:"not null" json:"plan"`
	EndDate    period.Date  `gorm:"column:end_date;size:32" json:"end_date"`
	CreatedAt  time.Time    `gorm:"column:created_at;not null" json:"created_at"`
}

func (Job) TableName() string { return "reminder_jobs" }

func (j Job) Validate() error {
	if j.CustomerNo == "" || j.Recipient == "" || j.FireAt.IsZero() || j.EndDate.IsZero() {
		return ErrInvalidJob
	}
	return nil
}

// Store persists pending jobs so they survive a restart.
type Store interface {
	Save(ctx context.Context, job Job) error
	Delete(ctx context.Context, customerNo string) error
	Get(ctx context.Context, customerNo string) (*Job, error)
	List(ctx context.Context) ([]Job, error)
}
