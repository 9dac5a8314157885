package domain

import (
	"sort"

	"github.com/smallbiznis/subtrack/internal/period"
)

// EditableFields lists the columns an Edit may touch. customer_no is
// immutable and amount_paid only grows through renewals.
var EditableFields = map[string]struct{}{
	FieldName:          {},
	FieldContactHandle: {},
	FieldExternalID:    {},
	FieldPlan:          {},
	FieldProfilesCount: {},
	FieldStartDate:     {},
	FieldEndDate:       {},
	FieldStatus:        {},
	FieldNote:          {},
}

// EditSet converts sparse operator input into column assignments. A blank
// value clears nullable columns and resets the others to their default;
// start_date defaults to today, as on registration.
func EditSet(f Fields, today period.Date) (map[string]any, error) {
	if len(f) == 0 {
		return nil, ErrNothingChanged
	}

	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		key := lower(k)
		if alias, ok := fieldAliases[key]; ok {
			key = alias
		}
		if _, ok := EditableFields[key]; !ok {
			return nil, &ValidationError{Field: k, Message: "field cannot be edited", Cause: ErrUnknownField}
		}
	}

	f = f.Canonical()
	set := make(map[string]any, len(f))
	for field, raw := range f {
		switch field {
		case FieldName:
			if raw == "" {
				raw = DefaultName
			}
			set[field] = raw
		case FieldPlan, FieldNote:
			set[field] = raw
		case FieldContactHandle:
			set[field] = NormalizeHandle(raw)
		case FieldExternalID:
			if raw == "" {
				set[field] = nil
				continue
			}
			id, err := ParseExternalID(raw)
			if err != nil {
				return nil, invalid(field, "must be numeric", err)
			}
			set[field] = id
		case FieldProfilesCount:
			if raw == "" {
				set[field] = 1
				continue
			}
			n, err := ParseProfilesCount(raw)
			if err != nil {
				return nil, invalid(field, "must be an integer >= 1", err)
			}
			set[field] = n
		case FieldStartDate:
			if raw == "" {
				set[field] = today
				continue
			}
			d, ok := period.ParseFlexibleDate(raw)
			if !ok {
				return nil, invalid(field, "unrecognized date", ErrValidation)
			}
			set[field] = d
		case FieldEndDate:
			if raw == "" {
				set[field] = period.NullDate{}
				continue
			}
			d, ok := period.ParseFlexibleDate(raw)
			if !ok {
				return nil, invalid(field, "unrecognized date", ErrValidation)
			}
			set[field] = period.DateValue(d)
		case FieldStatus:
			status, ok := ParseStatus(raw)
			if !ok {
				return nil, invalid(field, "must be active, expired or suspended", ErrInvalidStatus)
			}
			set[field] = status
		}
	}
	return set, nil
}
