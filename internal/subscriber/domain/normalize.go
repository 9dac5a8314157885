package domain

import (
	"math"
	"strconv"
	"strings"

	"github.com/smallbiznis/subtrack/internal/period"
)

// Fields is the raw, string-keyed input of a registration or import row.
// Absent keys and blank values mean "use the default".
type Fields map[string]string

const (
	FieldCustomerNo    = "customer_no"
	FieldName          = "name"
	FieldContactHandle = "contact_handle"
	FieldExternalID    = "external_id"
	FieldPlan          = "plan"
	FieldProfilesCount = "profiles_count"
	FieldStartDate     = "start_date"
	FieldEndDate       = "end_date"
	FieldAmountPaid    = "amount_paid"
	FieldStatus        = "status"
	FieldNote          = "note"
)

var fieldAliases = map[string]string{
	"tg_username": FieldContactHandle,
	"username":    FieldContactHandle,
	"tg_user_id":  FieldExternalID,
}

// Canonical returns a copy of f with trimmed, lower-cased and de-aliased keys.
func (f Fields) Canonical() Fields {
	out := make(Fields, len(f))
	for k, v := range f {
		key := lower(k)
		if alias, ok := fieldAliases[key]; ok {
			key = alias
		}
		v = strings.TrimSpace(v)
		if existing, ok := out[key]; ok && existing != "" && v == "" {
			continue
		}
		out[key] = v
	}
	return out
}

// Issue is a field that failed validation and was replaced by its default.
type Issue struct {
	Field   string `json:"field"`
	Value   string `json:"value"`
	Message string `json:"message"`
}

// Normalizer applies the registration rules shared by interactive
// registration and bulk import.
type Normalizer struct {
	Today period.Date
	// Lenient degrades invalid fields to defaults instead of failing.
	Lenient bool
}

// Subscriber normalizes f into a Subscriber without key or id. In strict
// mode the first invalid field is returned as a *ValidationError; in lenient
// mode every invalid field is reported as an Issue.
func (n Normalizer) Subscriber(f Fields) (Subscriber, []Issue, error) {
	f = f.Canonical()
	var issues []Issue
	reject := func(field, message string, cause error) error {
		if !n.Lenient {
			return invalid(field, message, cause)
		}
		issues = append(issues, Issue{Field: field, Value: f[field], Message: message})
		return nil
	}

	s := Subscriber{
		Name:          f[FieldName],
		ContactHandle: NormalizeHandle(f[FieldContactHandle]),
		Plan:          f[FieldPlan],
		ProfilesCount: 1,
		StartDate:     n.Today,
		Status:        StatusActive,
		Note:          f[FieldNote],
	}
	if s.Name == "" {
		s.Name = DefaultName
	}

	if raw := f[FieldExternalID]; raw != "" {
		id, err := ParseExternalID(raw)
		if err != nil {
			if e := reject(FieldExternalID, "must be numeric", err); e != nil {
				return Subscriber{}, nil, e
			}
		} else {
			s.ExternalID = &id
		}
	}

	if raw := f[FieldProfilesCount]; raw != "" {
		count, err := ParseProfilesCount(raw)
		if err != nil {
			if e := reject(FieldProfilesCount, "must be an integer >= 1", err); e != nil {
				return Subscriber{}, nil, e
			}
		} else {
			s.ProfilesCount = count
		}
	}

	if raw := f[FieldStartDate]; raw != "" {
		d, ok := period.ParseFlexibleDate(raw)
		if !ok {
			if e := reject(FieldStartDate, "unrecognized date", ErrValidation); e != nil {
				return Subscriber{}, nil, e
			}
		} else {
			s.StartDate = d
		}
	}

	if raw := f[FieldEndDate]; raw != "" {
		d, ok := period.ParseFlexibleDate(raw)
		if !ok {
			if e := reject(FieldEndDate, "unrecognized date", ErrValidation); e != nil {
				return Subscriber{}, nil, e
			}
		} else {
			s.EndDate = period.DateValue(d)
		}
	}

	if raw := f[FieldAmountPaid]; raw != "" {
		amount, err := ParseAmount(raw)
		if err != nil {
			if e := reject(FieldAmountPaid, "must be a non-negative number", err); e != nil {
				return Subscriber{}, nil, e
			}
		} else {
			s.AmountPaid = amount
		}
	}

	if raw := f[FieldStatus]; raw != "" {
		status, ok := ParseStatus(raw)
		if !ok {
			if e := reject(FieldStatus, "must be active, expired or suspended", ErrInvalidStatus); e != nil {
				return Subscriber{}, nil, e
			}
		} else {
			s.Status = status
		}
	}

	return s, issues, nil
}

// NormalizeHandle trims the handle and adds the canonical "@" prefix.
func NormalizeHandle(raw string) *string {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimLeft(raw, "@")
	if raw == "" {
		return nil
	}
	handle := "@" + raw
	return &handle
}

func ParseExternalID(raw string) (int64, error) {
	raw = strings.TrimSpace(raw)
	for _, r := range raw {
		if r < '0' || r > '9' {
			return 0, ErrValidation
		}
	}
	return strconv.ParseInt(raw, 10, 64)
}

func ParseProfilesCount(raw string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, err
	}
	if n < 1 {
		return 0, ErrValidation
	}
	return n, nil
}

// ParseAmount accepts integer or decimal input and truncates toward zero.
func ParseAmount(raw string) (int64, error) {
	raw = strings.TrimSpace(raw)
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		if n < 0 {
			return 0, ErrInvalidAmount
		}
		return n, nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, ErrInvalidAmount
	}
	if f < 0 || f > math.MaxInt64 {
		return 0, ErrInvalidAmount
	}
	return int64(f), nil
}

func lower(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func formatInt(v int64) string {
	return strconv.FormatInt(v, 10)
}
