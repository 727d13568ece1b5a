// Package runner sequences a shuffle run: it parses the table specification
// arguments, gates each table behind schema validation, invokes the shuffle
// engine for the tables that pass, and reports a per-table outcome.
//
// Tables are processed strictly one at a time and their outcomes are
// independent: a table that fails to parse, validate, or shuffle is reported
// and the run moves on to the next one. Only the connection-level probes
// (handled before the runner starts) abort a run.
package runner

import (
	"context"
	"log"
	"time"

	"shuffle/internal/metrics"
	"shuffle/internal/spec"
	"shuffle/internal/storage"
)

// Status classifies the outcome of one table specification.
type Status string

const (
	// StatusShuffled means the table passed validation and the shuffle
	// statement committed.
	StatusShuffled Status = "shuffled"
	// StatusSkipped means the specification failed parsing or validation and
	// no mutating statement was issued for it.
	StatusSkipped Status = "skipped"
	// StatusFailed means validation passed but the shuffle itself errored.
	// The table is left in its pre-shuffle state.
	StatusFailed Status = "failed"
)

// Outcome is the result of processing one table specification.
type Outcome struct {
	// Arg is the raw command-line specification.
	Arg string
	// Spec is the parsed specification; zero when parsing failed.
	Spec spec.Table
	// Status classifies the result.
	Status Status
	// Issues holds parse/validation findings for skipped specs.
	Issues []Issue
	// Err is the shuffle error for failed specs.
	Err error
	// Rows is the number of rows the shuffle update touched.
	Rows int64
	// Duration is the wall time spent on this spec.
	Duration time.Duration
}

// Run processes each table specification argument in order: parse, validate,
// and, only when validation is clean, shuffle. It returns one Outcome per
// argument, in input order. Nothing is retried.
func Run(ctx context.Context, repo storage.Repository, args []string) []Outcome {
	outcomes := make([]Outcome, 0, len(args))

	for _, arg := range args {
		start := time.Now()
		out := Outcome{Arg: arg}

		sp, err := spec.Parse(arg)
		if err != nil {
			out.Status = StatusSkipped
			out.Issues = []Issue{{Severity: SeverityError, Path: arg, Message: err.Error()}}
			log.Printf("skip: spec=%q reason=%v", arg, err)
			finish(&out, start)
			outcomes = append(outcomes, out)
			continue
		}
		out.Spec = sp

		issues := ValidateSpec(ctx, repo, sp)
		for _, iss := range issues {
			log.Printf("validate: table=%s %s", sp.Name, iss)
		}
		if hasError(issues) {
			out.Status = StatusSkipped
			out.Issues = issues
			log.Printf("skip: table=%s columns=%d validation failed", sp.Name, len(sp.Columns))
			finish(&out, start)
			outcomes = append(outcomes, out)
			continue
		}
		log.Printf("validate: table=%s ok", sp.Name)

		rows, err := repo.Shuffle(ctx, storage.ShuffleSpec{
			Table:    sp.Name,
			IDColumn: sp.IDColumn,
			Columns:  sp.Columns,
		})
		if err != nil {
			out.Status = StatusFailed
			out.Err = err
			log.Printf("shuffle: table=%s failed err=%v", sp.Name, err)
			finish(&out, start)
			outcomes = append(outcomes, out)
			continue
		}

		out.Status = StatusShuffled
		out.Rows = rows
		finish(&out, start)
		log.Printf("shuffle: table=%s columns=%d rows=%d elapsed=%s",
			sp.Name, len(sp.Columns), rows, out.Duration.Truncate(time.Millisecond))
		outcomes = append(outcomes, out)
	}

	return outcomes
}

// finish stamps the outcome's duration and records its metrics. The metrics
// table label falls back to the raw argument when parsing never produced a
// table name.
func finish(out *Outcome, start time.Time) {
	out.Duration = time.Since(start)
	table := out.Spec.Name
	if table == "" {
		table = out.Arg
	}
	metrics.RecordTable(table, string(out.Status), out.Duration)
	if out.Status == StatusShuffled {
		metrics.RecordRows(table, out.Rows)
	}
}

// ExitCode maps a run's outcomes onto the process exit code: 0 when every
// table shuffled, 2 when the run completed but at least one table was skipped
// or failed. Fatal conditions (credentials, connectivity, missing database,
// malformed invocation) exit 1 before the runner is reached.
func ExitCode(outcomes []Outcome) int {
	for _, o := range outcomes {
		if o.Status != StatusShuffled {
			return 2
		}
	}
	return 0
}
