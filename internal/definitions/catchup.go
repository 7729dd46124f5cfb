package definitions

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/teambition/rrule-go"
)

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// CountMissedRuns reports how many times a definition's cron schedule would
// have fired between lastRun (exclusive) and now (inclusive), used for
// catch-up/backfill reporting when the supervisor comes back up after an
// outage. For the common "fixed time of day" cron shapes (minute and hour
// both numeric, day-of-month/month/day-of-week all wildcard) this builds an
// RRULE and asks rrule-go's Between. Any other
// cron shape falls back to stepping the parsed cron.Schedule directly:
// rrule-go has no generic cron-expression constructor, so arbitrary
// expressions (step values, lists, day-of-week combinations) are counted by
// repeated Schedule.Next calls instead.
func CountMissedRuns(cronExpr string, lastRun, now time.Time) (int, error) {
	schedule, err := cronParser.Parse(cronExpr)
	if err != nil {
		return 0, fmt.Errorf("parse cron expression %q: %w", cronExpr, err)
	}

	if rr, ok := asDailyRRule(cronExpr, lastRun); ok {
		// Between includes both endpoints with inc=true; the contract here is
		// (lastRun, now], so drop an occurrence landing exactly on lastRun.
		count := 0
		for _, occ := range rr.Between(lastRun, now, true) {
			if occ.After(lastRun) {
				count++
			}
		}
		return count, nil
	}

	count := 0
	t := lastRun
	for {
		next := schedule.Next(t)
		if next.IsZero() || next.After(now) {
			break
		}
		count++
		t = next
	}
	return count, nil
}

// asDailyRRule recognizes the "fixed minute and hour, every day" cron shape
// (e.g. "0 6 * * *") and builds the equivalent daily RRULE anchored at
// lastRun's date.
func asDailyRRule(cronExpr string, anchor time.Time) (*rrule.RRule, bool) {
	var minute, hour int
	var domTok, monthTok, dowTok string
	n, err := fmt.Sscanf(cronExpr, "%d %d %s %s %s", &minute, &hour, &domTok, &monthTok, &dowTok)
	if n != 5 || err != nil {
		return nil, false
	}
	if domTok != "*" || monthTok != "*" || dowTok != "*" {
		return nil, false
	}

	dtstart := time.Date(anchor.Year(), anchor.Month(), anchor.Day(), hour, minute, 0, 0, anchor.Location())
	rr, err := rrule.NewRRule(rrule.ROption{
		Freq:    rrule.DAILY,
		Dtstart: dtstart,
	})
	if err != nil {
		return nil, false
	}
	return rr, true
}
