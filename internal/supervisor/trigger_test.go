package supervisor

import (
	"testing"
	"time"
)

func TestCronTrigger_Next(t *testing.T) {
	trigger, err := NewCronTrigger("0 6 * * *")
	if err != nil {
		t.Fatalf("NewCronTrigger: %v", err)
	}

	anchor := time.Date(2026, 3, 1, 5, 0, 0, 0, time.UTC)
	want := time.Date(2026, 3, 1, 6, 0, 0, 0, time.UTC)
	if got := trigger.Next(anchor); !got.Equal(want) {
		t.Errorf("Next(%v) = %v, want %v", anchor, got, want)
	}
}

func TestCronTrigger_InvalidExpression(t *testing.T) {
	if _, err := NewCronTrigger("not a cron expression"); err == nil {
		t.Error("expected error for invalid cron expression")
	}
}

func TestOnceTrigger_FiresOnceThenNever(t *testing.T) {
	at := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	trigger := OnceTrigger{At: at}

	if got := trigger.Next(at.Add(-time.Minute)); !got.Equal(at) {
		t.Errorf("Next before At = %v, want %v", got, at)
	}
	if got := trigger.Next(at); !got.IsZero() {
		t.Errorf("Next at or after At = %v, want zero value", got)
	}
	if got := trigger.Next(at.Add(time.Hour)); !got.IsZero() {
		t.Errorf("Next long after At = %v, want zero value", got)
	}
}
