package domain

import (
	"context"

	"github.com/smallbiznis/subtrack/internal/period"
)

// RenewRequest extends a subscription. Months and Days are mutually
// exclusive; when both are zero one month is added.
type RenewRequest struct {
	CustomerNo string `json:"-"`
	Months     int    `json:"months"`
	Days       int    `json:"days"`
	Paid       int64  `json:"paid"`
	Method     string `json:"method"`
	Reference  string `json:"reference"`
}

type RenewResult struct {
	Subscriber  Subscriber      `json:"subscriber"`
	Payment     Payment         `json:"payment"`
	PreviousEnd period.NullDate `json:"previous_end"`
	Base        period.Date     `json:"base"`
}

type RegisterResult struct {
	Subscriber Subscriber `json:"subscriber"`
	Created    bool       `json:"created"`
}

// ImportResult is the outcome of reconciling one imported row.
type ImportResult struct {
	Subscriber Subscriber `json:"subscriber"`
	Created    bool       `json:"created"`
	Issues     []Issue    `json:"issues,omitempty"`
}

// Reminders arms and cancels the one-shot expiry reminder of a subscriber.
type Reminders interface {
	Arm(ctx context.Context, s Subscriber) error
	Cancel(ctx context.Context, customerNo string) error
}

type Service interface {
	Register(ctx context.Context, f Fields) (RegisterResult, error)
	// Import reconciles one row with lenient normalization. placeholder is
	// used as the key when the row carries none.
	Import(ctx context.Context, f Fields, placeholder string) (ImportResult, error)
	Renew(ctx context.Context, req RenewRequest) (RenewResult, error)
	SetStatus(ctx context.Context, customerNo string, status Status) (Subscriber, error)
	Edit(ctx context.Context, customerNo string, f Fields) (Subscriber, error)
	Get(ctx context.Context, customerNo string) (Subscriber, error)
	Payments(ctx context.Context, customerNo string) ([]Payment, error)
	ListDueSoon(ctx context.Context, withinDays int) ([]Subscriber, error)
	ListDueOn(ctx context.Context, day period.Date) ([]Subscriber, error)
	Find(ctx context.Context, query string) ([]Subscriber, error)
	Export(ctx context.Context) ([]Subscriber, error)
	Today() period.Date
}
