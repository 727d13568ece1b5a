// Package spec defines the table specification model for the shuffler and the
// parser for its command-line encoding.
//
// A specification names one table, the identifier column used to reattach
// shuffled values to rows, and the ordered list of target columns whose values
// are permuted. On the command line a specification is encoded as
//
//	table:id_column:col1,col2,...
//
// Identifiers (table and column names) cannot be bound as SQL parameters, so
// they are validated here against a strict allow-list pattern before any
// backend is allowed to interpolate them into a statement.
package spec

import (
	"fmt"
	"regexp"
	"strings"
)

// identPattern is the allow-list for table and column names. Anything outside
// alphanumerics and underscore is rejected at parse time, which closes the
// injection window that identifier interpolation would otherwise open.
var identPattern = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// ValidIdent reports whether s is acceptable as a table or column name.
func ValidIdent(s string) bool {
	return identPattern.MatchString(s)
}

// Table is one parsed table specification.
type Table struct {
	// Name is the table whose rows are shuffled.
	Name string

	// IDColumn uniquely identifies a row so that shuffled values can be
	// written back onto it. It is never itself shuffled.
	IDColumn string

	// Columns are the target columns, in the order given by the user. Their
	// values are permuted across rows; every other column is left untouched.
	Columns []string
}

// String renders the spec in its command-line encoding.
func (t Table) String() string {
	return t.Name + ":" + t.IDColumn + ":" + strings.Join(t.Columns, ",")
}

// Parse decodes a single "table:id_column:col1,col2,..." argument.
//
// Rules enforced here (schema existence is checked later, against the live
// database):
//   - exactly three colon-separated fields, all non-empty
//   - at least one target column
//   - every name matches the identifier allow-list
//   - the identifier column is not also a target
//   - no target column appears twice
func Parse(arg string) (Table, error) {
	parts := strings.Split(arg, ":")
	if len(parts) != 3 {
		return Table{}, fmt.Errorf("spec %q: want table:id_column:col1,col2,...", arg)
	}
	name, idCol, colList := parts[0], parts[1], parts[2]

	if name == "" {
		return Table{}, fmt.Errorf("spec %q: empty table name", arg)
	}
	if !ValidIdent(name) {
		return Table{}, fmt.Errorf("spec %q: table name %q is not a valid identifier", arg, name)
	}
	if idCol == "" {
		return Table{}, fmt.Errorf("spec %q: empty identifier column", arg)
	}
	if !ValidIdent(idCol) {
		return Table{}, fmt.Errorf("spec %q: identifier column %q is not a valid identifier", arg, idCol)
	}
	if colList == "" {
		return Table{}, fmt.Errorf("spec %q: no target columns", arg)
	}

	cols := strings.Split(colList, ",")
	seen := make(map[string]struct{}, len(cols))
	for _, c := range cols {
		if c == "" {
			return Table{}, fmt.Errorf("spec %q: empty target column name", arg)
		}
		if !ValidIdent(c) {
			return Table{}, fmt.Errorf("spec %q: target column %q is not a valid identifier", arg, c)
		}
		if c == idCol {
			return Table{}, fmt.Errorf("spec %q: identifier column %q cannot also be a target", arg, c)
		}
		if _, dup := seen[c]; dup {
			return Table{}, fmt.Errorf("spec %q: target column %q listed twice", arg, c)
		}
		seen[c] = struct{}{}
	}

	return Table{Name: name, IDColumn: idCol, Columns: cols}, nil
}
