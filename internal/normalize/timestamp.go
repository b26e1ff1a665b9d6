package normalize

import (
	"strings"
	"time"
)

// DefaultCivilOffset is the fixed civil timezone applied to naive timestamps.
const DefaultCivilOffset = 9 * time.Hour

var civilLayouts = []string{
	"2006/01/02 15:04:05",
	"2006-01-02 15:04:05",
	"2006/01/02 15:04",
	"2006-01-02 15:04",
	"2006-01-02T15:04:05",
	"2006/01/02",
	"2006-01-02",
}

var zonedLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05Z0700",
	"2006-01-02 15:04:05Z07:00",
}

// TimeParser parses ledger timestamps in a fixed civil timezone.
type TimeParser struct {
	loc *time.Location
}

// NewTimeParser builds a parser whose naive inputs are read at the given UTC offset.
func NewTimeParser(offset time.Duration) TimeParser {
	return TimeParser{loc: time.FixedZone("civil", int(offset/time.Second))}
}

var defaultParser = NewTimeParser(DefaultCivilOffset)

// Timestamp parses v with the default civil offset.
func Timestamp(v any) (time.Time, bool) {
	return defaultParser.Parse(v)
}

// Parse accepts time.Time values or strings in the supported layouts and
// returns the UTC instant. ok is false for empty or unparseable input.
func (p TimeParser) Parse(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		if t.IsZero() {
			return time.Time{}, false
		}
		return t.UTC(), true
	case *time.Time:
		if t == nil || t.IsZero() {
			return time.Time{}, false
		}
		return t.UTC(), true
	case string:
		return p.parseString(t)
	default:
		return time.Time{}, false
	}
}

func (p TimeParser) parseString(raw string) (time.Time, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range zonedLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	loc := p.loc
	if loc == nil {
		loc = defaultParser.loc
	}
	for _, layout := range civilLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// FormatTimestamp renders the canonical ledger cell for t.
func FormatTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

// revisionLayout is fixed width so stamps also order as strings.
const revisionLayout = "2006-01-02T15:04:05.000000Z07:00"

// FormatRevision renders the updated_at stamp of a ledger write. Microsecond
// precision keeps consecutive writes to one row ordered.
func FormatRevision(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(revisionLayout)
}

// CanonicalTimestamp re-renders a cell value, returning "" when it cannot be parsed.
func (p TimeParser) CanonicalTimestamp(raw string) string {
	t, ok := p.Parse(raw)
	if !ok {
		return ""
	}
	return FormatTimestamp(t)
}
