// Package duration implements the two wire dialects this system accepts for
// elapsed-time quantities: ISO-8601 ("P1DT2H") and free-form "N unit" phrases
// ("1 hour", "30 minutes"). Both normalize to a canonical whole-second
// Duration.
package duration

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/dag-upb/ts-arena-core/internal/apperr"
)

// Duration is a non-negative elapsed-time quantity at whole-second
// resolution.
type Duration struct {
	seconds int64
}

// FromSeconds builds a Duration from a non-negative second count.
func FromSeconds(seconds int64) Duration { return Duration{seconds: seconds} }

// Seconds returns the whole-second count.
func (d Duration) Seconds() int64 { return d.seconds }

// AsTimeDuration converts to a time.Duration for use with time.Time
// arithmetic and context.WithTimeout-style APIs.
func (d Duration) AsTimeDuration() time.Duration {
	return time.Duration(d.seconds) * time.Second
}

// IsZero reports whether the duration is exactly zero.
func (d Duration) IsZero() bool { return d.seconds == 0 }

var phraseRe = regexp.MustCompile(`(?i)^\s*(\d+)\s*(second|minute|hour|day|week)s?\s*$`)

var unitSeconds = map[string]int64{
	"second": 1,
	"minute": 60,
	"hour":   3600,
	"day":    86400,
	"week":   604800,
}

// ParsePhrase parses a free-form "N unit[s]" phrase, e.g. "1 hour",
// "30 minutes", "7 days". Case-insensitive, whitespace-tolerant.
func ParsePhrase(s string) (Duration, error) {
	m := phraseRe.FindStringSubmatch(s)
	if m == nil {
		return Duration{}, apperr.InvalidDuration(fmt.Errorf("invalid frequency phrase %q: expected '<number> <unit>' (e.g. '1 hour')", s))
	}
	n, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return Duration{}, apperr.InvalidDuration(fmt.Errorf("invalid count in phrase %q: %w", s, err))
	}
	unit := strings.ToLower(m[2])
	mult, ok := unitSeconds[unit]
	if !ok {
		return Duration{}, apperr.InvalidDuration(fmt.Errorf("unsupported time unit %q", unit))
	}
	return Duration{seconds: n * mult}, nil
}

var iso8601Re = regexp.MustCompile(`^P(?:(\d+)Y)?(?:(\d+)M)?(?:(\d+)D)?(?:T(?:(\d+)H)?(?:(\d+)M)?(?:(\d+)S)?)?$`)

// ParseISO8601 parses an ISO-8601 duration of the form
// P[nY][nM][nD][T[nH][nM][nS]]. Years and months are approximated as 365 and
// 30 days respectively, matching this codec's whole-second canonical form
// (calendar-aware Y/M arithmetic is out of scope; no caller needs it).
func ParseISO8601(s string) (Duration, error) {
	if s == "" || s[0] != 'P' {
		return Duration{}, apperr.InvalidDuration(fmt.Errorf("invalid ISO-8601 duration %q: must start with 'P'", s))
	}
	m := iso8601Re.FindStringSubmatch(s)
	if m == nil || s == "P" {
		return Duration{}, apperr.InvalidDuration(fmt.Errorf("invalid ISO-8601 duration %q", s))
	}

	var total int64
	field := func(group string, secondsPerUnit int64) error {
		if group == "" {
			return nil
		}
		v, err := strconv.ParseInt(group, 10, 64)
		if err != nil {
			return err
		}
		total += v * secondsPerUnit
		return nil
	}

	if err := field(m[1], 365*86400); err != nil { // Y
		return Duration{}, apperr.InvalidDuration(err)
	}
	if err := field(m[2], 30*86400); err != nil { // M (calendar months)
		return Duration{}, apperr.InvalidDuration(err)
	}
	if err := field(m[3], 86400); err != nil { // D
		return Duration{}, apperr.InvalidDuration(err)
	}
	if err := field(m[4], 3600); err != nil { // H
		return Duration{}, apperr.InvalidDuration(err)
	}
	if err := field(m[5], 60); err != nil { // M (minutes)
		return Duration{}, apperr.InvalidDuration(err)
	}
	if err := field(m[6], 1); err != nil { // S
		return Duration{}, apperr.InvalidDuration(err)
	}

	return Duration{seconds: total}, nil
}

// Parse accepts either dialect, trying ISO-8601 first (unambiguous leading
// "P") then the "N unit" phrase form. Negative values and syntactic mismatch
// both fail with InvalidDuration.
func Parse(s string) (Duration, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return Duration{}, apperr.InvalidDuration(fmt.Errorf("empty duration string"))
	}
	if strings.HasPrefix(trimmed, "P") || strings.HasPrefix(trimmed, "p") {
		return ParseISO8601(strings.ToUpper(trimmed))
	}
	return ParsePhrase(trimmed)
}

// RenderISO8601 renders the canonical ISO-8601 form used for external JSON,
// decomposed into days/hours/minutes/seconds (no years/months; those are
// lossy on the way in, so they're never produced on the way out).
func (d Duration) RenderISO8601() string {
	if d.seconds == 0 {
		return "PT0S"
	}
	rem := d.seconds
	days := rem / 86400
	rem %= 86400
	hours := rem / 3600
	rem %= 3600
	minutes := rem / 60
	seconds := rem % 60

	var b strings.Builder
	b.WriteByte('P')
	if days > 0 {
		fmt.Fprintf(&b, "%dD", days)
	}
	if hours > 0 || minutes > 0 || seconds > 0 {
		b.WriteByte('T')
		if hours > 0 {
			fmt.Fprintf(&b, "%dH", hours)
		}
		if minutes > 0 {
			fmt.Fprintf(&b, "%dM", minutes)
		}
		if seconds > 0 {
			fmt.Fprintf(&b, "%dS", seconds)
		}
	}
	return b.String()
}

// PGInterval renders the canonical form understood by Postgres's
// `interval` literal syntax, for binding into SQL text (pgx does not have a
// native Go duration-to-interval binding for plain int64 seconds).
func (d Duration) PGInterval() string {
	return fmt.Sprintf("%d seconds", d.seconds)
}

// QuarterFrequency computes a derived update frequency of one quarter of d,
// clamped to a minimum of 1 minute and rounded down to the coarsest natural
// unit it divides evenly (days > hours > minutes).
func (d Duration) QuarterFrequency() Duration {
	quarter := d.seconds / 4
	if quarter < 60 {
		quarter = 60
	}
	switch {
	case quarter%86400 == 0:
		return Duration{seconds: quarter}
	case quarter%3600 == 0:
		return Duration{seconds: quarter}
	default:
		// Round down to the nearest whole minute.
		return Duration{seconds: (quarter / 60) * 60}
	}
}

// AnnounceLeadDefault is the fallback used when a definition's announce_lead
// field is absent.
func AnnounceLeadDefault() Duration { return Duration{seconds: 60} }
