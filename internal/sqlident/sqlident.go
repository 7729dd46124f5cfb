// Package sqlident validates dynamically constructed SQL relation names
// before they are interpolated into query text, using pg_query_go to
// confirm the candidate identifier parses as a single-relation statement.
package sqlident

import (
	"fmt"
	"regexp"

	pgquery "github.com/pganalyze/pg_query_go/v6"
)

// allowedRelation is a conservative allow-list for bare identifiers: this
// guards against the parse step itself being tricked by comment/terminator
// tokens that would still parse as a "valid" single statement.
var allowedRelation = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// ValidateRelationName confirms name is safe to interpolate directly into a
// FROM clause: it must match a conservative identifier pattern, and the
// resulting "SELECT 1 FROM <name>" must parse as exactly one valid
// statement. Round preparation and scoring use this to validate the
// resolution-derived view name (time_series_data_15min / _1h / _1d) before
// building a query string.
func ValidateRelationName(name string) error {
	if !allowedRelation.MatchString(name) {
		return fmt.Errorf("sqlident: relation name %q fails identifier allow-list", name)
	}

	result, err := pgquery.Parse(fmt.Sprintf("SELECT 1 FROM %s", name))
	if err != nil {
		return fmt.Errorf("sqlident: relation name %q does not parse: %w", name, err)
	}
	if len(result.Stmts) != 1 {
		return fmt.Errorf("sqlident: relation name %q produced %d statements, want 1", name, len(result.Stmts))
	}
	return nil
}
