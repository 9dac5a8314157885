package period

import (
	"strings"
	"time"
)

var flexibleLayouts = []string{
	"2006-1-2",
	"2006/1/2",
	"2-1-2006",
	"2/1/2006",
}

var isoFallbackLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
}

// ParseFlexibleDate parses operator supplied dates. It tries day-first and
// year-first layouts before falling back to ISO timestamps. ok is false when
// nothing matches.
func ParseFlexibleDate(s string) (Date, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Date{}, false
	}
	for _, layout := range flexibleLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return DateOf(t), true
		}
	}
	for _, layout := range isoFallbackLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return DateOf(t), true
		}
	}
	return Date{}, false
}
