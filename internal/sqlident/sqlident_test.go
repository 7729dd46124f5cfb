package sqlident

import "testing"

func TestValidateRelationName_Valid(t *testing.T) {
	names := []string{"time_series_data_15min", "time_series_data_1h", "time_series_data_1d", "time_series_data"}
	for _, n := range names {
		if err := ValidateRelationName(n); err != nil {
			t.Errorf("ValidateRelationName(%q) returned error: %v", n, err)
		}
	}
}

func TestValidateRelationName_Invalid(t *testing.T) {
	names := []string{
		"",
		"1abc",
		"time_series_data; DROP TABLE users",
		"time_series_data -- comment",
		"Time_Series_Data",
		"a b",
	}
	for _, n := range names {
		if err := ValidateRelationName(n); err == nil {
			t.Errorf("ValidateRelationName(%q) expected an error, got none", n)
		}
	}
}
