package engine

import (
	"sort"
	"strconv"
	"strings"
)

const (
	TotalTimeKey = "total_time"

	timeThresholdPercent = 5.0 / 100
)

// Benchmark collects instantiate counts and timings (seconds).
type Benchmark map[string]float64

// Merge copies every figure from other, replacing existing ones.
func (b Benchmark) Merge(other map[string]float64) {
	for k, v := range other {
		b[k] = v
	}
}

// FormatCounts renders "*_count" figures as "{a_count=>1, b_count=>2}".
func (b Benchmark) FormatCounts() string {
	return b.format("_count", 0)
}

// FormatTimes renders "*_time" figures, omitting anything below 5% of the
// total time when one is recorded.
func (b Benchmark) FormatTimes() string {
	threshold := 0.0
	if total, ok := b[TotalTimeKey]; ok {
		threshold = total * timeThresholdPercent
	}
	return b.format("_time", threshold)
}

func (b Benchmark) format(suffix string, threshold float64) string {
	keys := make([]string, 0, len(b))
	for k := range b {
		if strings.HasSuffix(strings.ToLower(k), suffix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		if b[k] < threshold {
			continue
		}
		parts = append(parts, k+"=>"+strconv.FormatFloat(b[k], 'f', -1, 64))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}
