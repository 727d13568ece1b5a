// This file implements the validation gate that runs before any mutating
// statement is issued for a table. It performs read-only checks against the
// database's schema catalog and returns a list of issues; callers skip the
// table when any issue carries error severity.
//
// Validation and shuffling are not atomic with respect to concurrent schema
// changes by other agents: a table dropped between the two surfaces as a
// shuffle failure, not a validation failure. That race is accepted for this
// tool's single-operator use.
package runner

import (
	"context"
	"fmt"

	"shuffle/internal/spec"
	"shuffle/internal/storage"
)

// IssueSeverity represents the severity of a validation issue.
type IssueSeverity string

const (
	// SeverityError indicates an issue that blocks shuffling the table.
	SeverityError IssueSeverity = "error"
	// SeverityWarning indicates an issue surfaced to the user that does not
	// block execution on its own.
	SeverityWarning IssueSeverity = "warning"
)

// Issue describes a single validation finding for a table specification.
//
// Path is a dotted path into the specification (e.g. "users" or
// "orders.bogus_col"). Message is human-readable.
type Issue struct {
	Severity IssueSeverity
	Path     string
	Message  string
}

// Error implements the error interface so an Issue can be treated as a single
// error in contexts that expect one.
func (i Issue) Error() string {
	return fmt.Sprintf("%s at %s: %s", i.Severity, i.Path, i.Message)
}

// ValidateSpec checks a parsed table specification against the live schema
// catalog. It does not mutate anything; it issues schema-introspection
// queries only.
//
// Every missing target column produces its own Issue, so the user sees all
// problems with a table at once rather than the first one.
func ValidateSpec(ctx context.Context, repo storage.Repository, sp spec.Table) []Issue {
	cols, err := repo.TableColumns(ctx, sp.Name)
	if err != nil {
		return []Issue{{
			Severity: SeverityError,
			Path:     sp.Name,
			Message:  err.Error(),
		}}
	}

	have := make(map[string]struct{}, len(cols))
	for _, c := range cols {
		have[c] = struct{}{}
	}

	var issues []Issue
	if _, ok := have[sp.IDColumn]; !ok {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     sp.Name + "." + sp.IDColumn,
			Message:  fmt.Sprintf("identifier column %q does not exist on table %q", sp.IDColumn, sp.Name),
		})
	}
	for _, c := range sp.Columns {
		if _, ok := have[c]; !ok {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     sp.Name + "." + c,
				Message:  fmt.Sprintf("target column %q does not exist on table %q", c, sp.Name),
			})
		}
	}
	return issues
}

// hasError reports whether any issue carries error severity.
func hasError(issues []Issue) bool {
	for _, i := range issues {
		if i.Severity == SeverityError {
			return true
		}
	}
	return false
}
