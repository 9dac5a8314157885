package period

import (
	"errors"
	"strings"
)

// Policy controls how a renewal period is added to a base date.
type Policy string

const (
	// PolicyCalendarMonth adds calendar months with end-of-month clamping.
	PolicyCalendarMonth Policy = "calendar_month"
	// PolicyThirtyDay adds fixed blocks of 30 days per month.
	PolicyThirtyDay Policy = "thirty_day"
)

const daysPerBlock = 30

var ErrInvalidPolicy = errors.New("invalid_renewal_policy")

func ParsePolicy(raw string) (Policy, error) {
	switch Policy(strings.ToLower(strings.TrimSpace(raw))) {
	case "", PolicyCalendarMonth:
		return PolicyCalendarMonth, nil
	case PolicyThirtyDay:
		return PolicyThirtyDay, nil
	default:
		return "", ErrInvalidPolicy
	}
}

// Extend adds months and days to base under the policy.
func (p Policy) Extend(base Date, months, days int) Date {
	out := base
	if months != 0 {
		if p == PolicyThirtyDay {
			out = out.AddDays(months * daysPerBlock)
		} else {
			out = out.AddMonths(months)
		}
	}
	if days != 0 {
		out = out.AddDays(days)
	}
	return out
}

// IsDueWithin reports whether end falls on or before ref plus n days.
func IsDueWithin(end, ref Date, n int) bool {
	return !end.After(ref.AddDays(n))
}
