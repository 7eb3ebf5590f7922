package rules

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

const (
	MinutesPerHour = 60
	MinutesPerDay  = 24 * MinutesPerHour
	MinutesPerWeek = 7 * MinutesPerDay

	// MaxNativeTimeoutMinutes is the longest timeout the platform accepts (28 days).
	MaxNativeTimeoutMinutes = 28 * MinutesPerDay

	// MaxBoundMinutes caps a configured interval bound at one year.
	MaxBoundMinutes = 365 * MinutesPerDay
	// MaxTotalWeight caps the sum of interval weights.
	MaxTotalWeight = 1<<31 - 1

	zeroDurationLabel = "0 minutes"
	labelGranularity  = 2
)

var unitMinutes = map[string]int{
	"m":       1,
	"min":     1,
	"mins":    1,
	"minute":  1,
	"minutes": 1,
	"h":       MinutesPerHour,
	"hour":    MinutesPerHour,
	"hours":   MinutesPerHour,
	"d":       MinutesPerDay,
	"day":     MinutesPerDay,
	"days":    MinutesPerDay,
	"w":       MinutesPerWeek,
	"week":    MinutesPerWeek,
	"weeks":   MinutesPerWeek,
}

var labelUnits = []struct {
	name    string
	minutes int
}{
	{name: "weeks", minutes: MinutesPerWeek},
	{name: "days", minutes: MinutesPerDay},
	{name: "hours", minutes: MinutesPerHour},
	{name: "minutes", minutes: 1},
}

// ParseBound converts an interval bound such as "15m", "2h", "3d" or "1w" into minutes.
func ParseBound(raw string) (int, error) {
	value := strings.ToLower(strings.TrimSpace(raw))
	if value == "" {
		return 0, fmt.Errorf("empty interval bound")
	}

	split := strings.IndexFunc(value, func(r rune) bool { return !unicode.IsDigit(r) })
	if split <= 0 {
		return 0, fmt.Errorf("interval bound %q must be a number followed by a unit (m, h, d, w)", raw)
	}

	amount, err := strconv.Atoi(value[:split])
	if err != nil {
		return 0, fmt.Errorf("parse interval bound %q: %w", raw, err)
	}

	unit := strings.TrimSpace(value[split:])
	factor, ok := unitMinutes[unit]
	if !ok {
		return 0, fmt.Errorf("interval bound %q has unsupported unit %q", raw, unit)
	}

	if amount > MaxBoundMinutes/factor {
		return 0, fmt.Errorf("interval bound %q exceeds %d minutes", raw, MaxBoundMinutes)
	}

	return amount * factor, nil
}

// DurationLabel renders minutes using at most two non-zero units, e.g. "2 days and 3 hours".
func DurationLabel(minutes int) string {
	if minutes <= 0 {
		return zeroDurationLabel
	}

	parts := make([]string, 0, labelGranularity)
	for _, unit := range labelUnits {
		if len(parts) == labelGranularity {
			break
		}
		value := minutes / unit.minutes
		if value == 0 {
			continue
		}
		minutes -= value * unit.minutes

		name := unit.name
		if value == 1 {
			name = strings.TrimSuffix(name, "s")
		}
		parts = append(parts, fmt.Sprintf("%d %s", value, name))
	}

	return strings.Join(parts, " and ")
}
