package duration

import "testing"

func TestParsePhrase(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected int64
	}{
		{name: "one hour", input: "1 hour", expected: 3600},
		{name: "thirty minutes", input: "30 minutes", expected: 1800},
		{name: "one day", input: "1 day", expected: 86400},
		{name: "seven days", input: "7 days", expected: 7 * 86400},
		{name: "case insensitive", input: "1 HOUR", expected: 3600},
		{name: "no trailing s", input: "2 hour", expected: 7200},
		{name: "extra whitespace", input: "  15   minutes  ", expected: 900},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := ParsePhrase(tt.input)
			if err != nil {
				t.Fatalf("ParsePhrase(%q) returned error: %v", tt.input, err)
			}
			if d.Seconds() != tt.expected {
				t.Errorf("ParsePhrase(%q) = %d, want %d", tt.input, d.Seconds(), tt.expected)
			}
		})
	}
}

func TestParsePhraseInvalid(t *testing.T) {
	tests := []string{"", "hour", "1 fortnight", "-1 hour", "1 minuteute"}
	for _, in := range tests {
		if _, err := ParsePhrase(in); err == nil {
			t.Errorf("ParsePhrase(%q) expected an error, got none", in)
		}
	}
}

func TestParseISO8601(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected int64
	}{
		{name: "one hour", input: "PT1H", expected: 3600},
		{name: "one day", input: "P1D", expected: 86400},
		{name: "one day two hours", input: "P1DT2H", expected: 86400 + 7200},
		{name: "complex", input: "PT1H30M", expected: 5400},
		{name: "seconds only", input: "PT45S", expected: 45},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := ParseISO8601(tt.input)
			if err != nil {
				t.Fatalf("ParseISO8601(%q) returned error: %v", tt.input, err)
			}
			if d.Seconds() != tt.expected {
				t.Errorf("ParseISO8601(%q) = %d, want %d", tt.input, d.Seconds(), tt.expected)
			}
		})
	}
}

func TestDurationRoundtrip(t *testing.T) {
	inputs := []string{"PT1H", "P1D", "PT30M", "PT45S", "P1DT2H30M"}
	for _, in := range inputs {
		d, err := ParseISO8601(in)
		if err != nil {
			t.Fatalf("ParseISO8601(%q) returned error: %v", in, err)
		}
		rendered := d.RenderISO8601()
		roundtrip, err := ParseISO8601(rendered)
		if err != nil {
			t.Fatalf("ParseISO8601(%q) (rendered from %q) returned error: %v", rendered, in, err)
		}
		if roundtrip.Seconds() != d.Seconds() {
			t.Errorf("roundtrip mismatch for %q: rendered %q, got %d seconds, want %d", in, rendered, roundtrip.Seconds(), d.Seconds())
		}
	}
}

func TestQuarterFrequency(t *testing.T) {
	tests := []struct {
		name     string
		input    int64
		expected int64
	}{
		{name: "one day quarters to six hours", input: 86400, expected: 21600},
		{name: "one hour quarters to 15 minutes", input: 3600, expected: 900},
		{name: "small duration clamps to one minute", input: 60, expected: 60},
		{name: "non-divisible rounds down to whole minute", input: 3660, expected: 900},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := FromSeconds(tt.input)
			got := d.QuarterFrequency().Seconds()
			if got != tt.expected {
				t.Errorf("FromSeconds(%d).QuarterFrequency() = %d, want %d", tt.input, got, tt.expected)
			}
		})
	}
}

func TestPGInterval(t *testing.T) {
	d := FromSeconds(3661)
	if got, want := d.PGInterval(), "3661 seconds"; got != want {
		t.Errorf("PGInterval() = %q, want %q", got, want)
	}
}
