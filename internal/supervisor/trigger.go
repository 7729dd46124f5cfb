package supervisor

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Trigger reports the next fire time strictly after a given instant. A zero
// return value means the trigger has no further occurrences.
type Trigger interface {
	Next(after time.Time) time.Time
}

// CronTrigger fires on a standard five-field cron expression.
type CronTrigger struct {
	schedule cron.Schedule
}

func NewCronTrigger(expr string) (CronTrigger, error) {
	schedule, err := cronParser.Parse(expr)
	if err != nil {
		return CronTrigger{}, fmt.Errorf("parse cron expression %q: %w", expr, err)
	}
	return CronTrigger{schedule: schedule}, nil
}

func (t CronTrigger) Next(after time.Time) time.Time { return t.schedule.Next(after) }

// OnceTrigger fires exactly once, at At.
type OnceTrigger struct {
	At time.Time
}

func (t OnceTrigger) Next(after time.Time) time.Time {
	if after.Before(t.At) {
		return t.At
	}
	return time.Time{}
}
