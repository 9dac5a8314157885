package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/subtrack/internal/period"
)

type Status string

const (
	StatusActive    Status = "active"
	StatusExpired   Status = "expired"
	StatusSuspended Status = "suspended"
)

// ParseStatus accepts one of the three lifecycle states, case-insensitively.
func ParseStatus(raw string) (Status, bool) {
	switch s := Status(lower(raw)); s {
	case StatusActive, StatusExpired, StatusSuspended:
		return s, true
	default:
		return "", false
	}
}

// DefaultName is stored when a subscriber is registered without a name.
const DefaultName = "No name"

// Subscriber is a customer holding a time-bounded subscription. CustomerNo is
// the natural key; rows are never physically deleted.
type Subscriber struct {
	ID            snowflake.ID    `gorm:"primaryKey" json:"id"`
	CustomerNo    string          `gorm:"column:customer_no;not null;uniqueIndex;size:64" json:"customer_no"`
	Name          string          `gorm:"not null" json:"name"`
	ContactHandle *string         `gorm:"column:contact_handle;size:128" json:"contact_handle"`
	ExternalID    *int64          `gorm:"column:external_id" json:"external_id"`
	Plan          string          `gorm:"not null" json:"plan"`
	ProfilesCount int             `gorm:"column:profiles_count;not null" json:"profiles_count"`
	StartDate     period.Date     `gorm:"column:start_date;size:32" json:"start_date"`
	EndDate       period.NullDate `gorm:"column:end_date;size:32" json:"end_date"`
	AmountPaid    int64           `gorm:"column:amount_paid;not null" json:"amount_paid"`
	Status        Status          `gorm:"not null;size:16" json:"status"`
	Note          string          `gorm:"not null" json:"note"`
}

func (Subscriber) TableName() string { return "subscribers" }

// Recipient returns the reminder destination, preferring the numeric
// external id over the contact handle.
func (s Subscriber) Recipient() string {
	if s.ExternalID != nil {
		return formatInt(*s.ExternalID)
	}
	if s.ContactHandle != nil {
		return *s.ContactHandle
	}
	return ""
}

func (s Subscriber) IsActive() bool {
	return s.Status == StatusActive
}

// Payment is an append-only record written on every renewal.
type Payment struct {
	ID         snowflake.ID `gorm:"primaryKey" json:"id"`
	CustomerNo string       `gorm:"column:customer_no;not null;index;size:64" json:"customer_no"`
	Amount     int64        `gorm:"not null" json:"amount"`
	PaidAt     time.Time    `gorm:"column:paid_at;not null" json:"paid_at"`
	Method     string       `gorm:"not null" json:"method"`
	Reference  string       `gorm:"not null;size:255;uniqueIndex:idx_payments_reference" json:"reference"`
}

func (Payment) TableName() string { return "payments" }

// UpsertColumns are overwritten when a registration collides on customer_no.
var UpsertColumns = []string{
	"name",
	"contact_handle",
	"external_id",
	"plan",
	"profiles_count",
	"start_date",
	"end_date",
	"amount_paid",
	"status",
	"note",
}

// ExportColumns is the fixed column order of tabular exports.
var ExportColumns = []string{
	"name",
	"contact_handle",
	"external_id",
	"customer_no",
	"plan",
	"profiles_count",
	"start_date",
	"end_date",
	"amount_paid",
	"status",
	"note",
}
