package status

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

// Placeholder is rendered wherever a value is absent.
const Placeholder = "-"

// Numeric timestamps below this are seconds since the epoch; at or above, milliseconds.
const secondsThreshold = 100_000_000_000

// FormatTimestamp renders a numeric or string timestamp as a UTC calendar date.
// Unparseable strings come back verbatim.
func FormatTimestamp(v any) string {
	switch t := v.(type) {
	case nil:
		return Placeholder
	case float64:
		return formatNumber(t)
	case float32:
		return formatNumber(float64(t))
	case int:
		return formatNumber(float64(t))
	case int64:
		return formatNumber(float64(t))
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return t.String()
		}
		return formatNumber(f)
	case time.Time:
		if t.IsZero() {
			return Placeholder
		}
		return formatTime(t)
	case string:
		return formatString(t)
	default:
		return Placeholder
	}
}

func formatNumber(n float64) string {
	ms := n
	if n < secondsThreshold {
		ms = n * 1000
	}
	return formatTime(time.UnixMilli(int64(ms)))
}

func formatString(s string) string {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return Placeholder
	}
	t, err := dateparse.ParseIn(trimmed, time.UTC)
	if err != nil {
		return s
	}
	return formatTime(t)
}

func formatTime(t time.Time) string {
	t = t.UTC()
	if t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 {
		return t.Format("2006-01-02")
	}
	return t.Format("2006-01-02 15:04")
}
