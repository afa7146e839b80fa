package dispatcher

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// MaxRetryInterval bounds any parsed retry delay.
const MaxRetryInterval = 365 * 24 * time.Hour

var (
	intervalPattern = regexp.MustCompile(`^(-?\d+)[.\s]+([a-zA-Z]+)$`)
	leadingCount    = regexp.MustCompile(`^-?\d+`)
)

var intervalUnits = map[string]time.Duration{
	"second": time.Second,
	"minute": time.Minute,
	"hour":   time.Hour,
	"day":    24 * time.Hour,
	"week":   7 * 24 * time.Hour,
}

// ParseRetryInterval reads an engine retry interval: bare seconds ("30"),
// a count with a unit ("5.minutes", "2 hours"), or a Go duration ("1m30s").
// Otherwise a leading integer counts seconds ("30abc"). Anything else, and
// negative values, mean no delay. Results are capped at MaxRetryInterval.
func ParseRetryInterval(raw string) time.Duration {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0
	}
	if m := intervalPattern.FindStringSubmatch(s); m != nil {
		unit, ok := intervalUnits[strings.TrimSuffix(strings.ToLower(m[2]), "s")]
		if !ok {
			unit = time.Second
		}
		return scale(parseCount(m[1]), unit)
	}
	if d, err := time.ParseDuration(s); err == nil {
		return clamp(d)
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
		switch {
		case f <= 0:
			return 0
		case f >= MaxRetryInterval.Seconds():
			return MaxRetryInterval
		}
		return time.Duration(int64(f)) * time.Second
	}
	if lead := leadingCount.FindString(s); lead != "" {
		return scale(parseCount(lead), time.Second)
	}
	return 0
}

// parseCount saturates out of range counts instead of failing.
func parseCount(digits string) int64 {
	n, _ := strconv.ParseInt(digits, 10, 64)
	return n
}

func scale(n int64, unit time.Duration) time.Duration {
	if n <= 0 {
		return 0
	}
	if n > int64(MaxRetryInterval/unit) {
		return MaxRetryInterval
	}
	return time.Duration(n) * unit
}

func clamp(d time.Duration) time.Duration {
	switch {
	case d < 0:
		return 0
	case d > MaxRetryInterval:
		return MaxRetryInterval
	}
	return d
}
