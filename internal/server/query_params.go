package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"strconv"
	"strings"

	"github.com/smallbiznis/subtrack/internal/period"
	subdomain "github.com/smallbiznis/subtrack/internal/subscriber/domain"
)

const maxDueDays = 366

func parseOptionalInt(value string) (*int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, nil
	}
	parsed, err := strconv.Atoi(trimmed)
	if err != nil {
		return nil, err
	}
	return &parsed, nil
}

func parseOptionalDate(value string) (*period.Date, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, nil
	}
	parsed, ok := period.ParseFlexibleDate(trimmed)
	if !ok {
		return nil, errors.New("invalid_date")
	}
	return &parsed, nil
}

// fieldsFromJSON flattens a decoded JSON object into registration fields.
// Numbers keep their literal form; null becomes blank.
func fieldsFromJSON(body map[string]json.RawMessage) (subdomain.Fields, error) {
	fields := make(subdomain.Fields, len(body))
	for key, raw := range body {
		var value any
		decoder := json.NewDecoder(bytes.NewReader(raw))
		decoder.UseNumber()
		if err := decoder.Decode(&value); err != nil {
			return nil, newValidationError(key, "invalid_value", "invalid value")
		}
		switch v := value.(type) {
		case nil:
			fields[key] = ""
		case string:
			fields[key] = v
		case json.Number:
			fields[key] = v.String()
		case bool:
			fields[key] = strconv.FormatBool(v)
		default:
			return nil, newValidationError(key, "invalid_value", "must be a string, number or boolean")
		}
	}
	return fields, nil
}
