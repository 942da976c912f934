// Package config provides configuration models and helpers for the loader.
//
// This file adds a lightweight linter/validator for targets files. It
// performs static checks over a decoded File and returns a list of issues
// (errors and warnings) that callers can surface in a CLI or tests.
package config

import (
	"fmt"
	"strings"
)

// IssueSeverity represents the severity of a configuration issue.
type IssueSeverity string

const (
	// SeverityError indicates a configuration error that should block execution.
	SeverityError IssueSeverity = "error"
	// SeverityWarning indicates a configuration warning that should be surfaced
	// to users but may not necessarily block execution.
	SeverityWarning IssueSeverity = "warning"
)

// Issue describes a single validation/lint finding for a targets file.
//
// Path is a dotted path into the config (e.g. "targets[1].kind"). Message is
// human-readable.
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

// ValidateTargets performs static validation / linting of a targets file.
//
// It does not mutate the config. Callers may decide whether to treat
// warnings as fatal or not; the CLI blocks on errors only.
func ValidateTargets(cfg File) []Issue {
	var issues []Issue

	add := func(sev IssueSeverity, path, format string, a ...any) {
		issues = append(issues, Issue{Severity: sev, Path: path, Message: fmt.Sprintf(format, a...)})
	}

	if len(cfg.Targets) == 0 {
		add(SeverityError, "targets", "at least one target is required")
	}

	for i, t := range cfg.Targets {
		p := fmt.Sprintf("targets[%d]", i)

		if !knownKind(t.Kind) {
			add(SeverityError, p+".kind", "unknown kind %q (want one of %s)", t.Kind, strings.Join(Kinds, ", "))
		}
		if strings.TrimSpace(t.DSN) == "" {
			add(SeverityError, p+".dsn", "dsn must not be empty")
		}
		if strings.TrimSpace(t.Table) == "" {
			add(SeverityError, p+".table", "table must not be empty")
		}
		if strings.TrimSpace(t.Column) == "" {
			add(SeverityError, p+".column", "column must not be empty")
		}

		validateTransportBytes(t, p, add)

		switch t.CopyMode {
		case "", "rows":
		case "raw":
			if t.Kind != "postgres" {
				add(SeverityError, p+".copy_mode", "raw copy mode requires kind=postgres, got %q", t.Kind)
			}
		default:
			add(SeverityError, p+".copy_mode", "unknown copy_mode %q (want rows or raw)", t.CopyMode)
		}

		switch t.Sanitize {
		case "", "nul", "strict":
		default:
			add(SeverityError, p+".sanitize", "unknown sanitize mode %q (want nul or strict)", t.Sanitize)
		}

		if t.MaxParallel < 0 {
			add(SeverityError, p+".max_parallel", "max_parallel must be >= 0")
		}
	}

	validateRuntime(cfg.Runtime, add)

	return issues
}

// HasErrors reports whether any issue carries error severity.
func HasErrors(issues []Issue) bool {
	for _, iss := range issues {
		if iss.Severity == SeverityError {
			return true
		}
	}
	return false
}

// validateTransportBytes checks the raw-mode delimiter/quote invariants:
// both must be valid byte values, they must differ, and printable choices
// undermine the reserved-byte assumption (warning).
func validateTransportBytes(t Target, p string, add func(IssueSeverity, string, string, ...any)) {
	if t.Delimiter < 0 || t.Delimiter > 0xff {
		add(SeverityError, p+".delimiter", "delimiter %d is not a byte value", t.Delimiter)
		return
	}
	if t.Quote < 0 || t.Quote > 0xff {
		add(SeverityError, p+".quote", "quote %d is not a byte value", t.Quote)
		return
	}

	d, q := t.DelimiterByte(), t.QuoteByte()
	if d == q {
		add(SeverityError, p+".delimiter", "delimiter and quote must differ (both are 0x%02x)", d)
	}
	if d == '\n' || q == '\n' {
		add(SeverityError, p+".delimiter", "newline cannot serve as delimiter or quote (it terminates records)")
	}
	if printable(d) {
		add(SeverityWarning, p+".delimiter",
			"delimiter 0x%02x is printable and may occur in payload text; prefer a control byte or sanitize=strict", d)
	}
	if printable(q) {
		add(SeverityWarning, p+".quote",
			"quote 0x%02x is printable and may occur in payload text; prefer a control byte or sanitize=strict", q)
	}
}

func validateRuntime(r Runtime, add func(IssueSeverity, string, string, ...any)) {
	if r.Concurrency < 0 {
		add(SeverityError, "runtime.concurrency", "concurrency must be >= 0")
	}
	if r.BatchSize < 0 {
		add(SeverityError, "runtime.batch_size", "batch_size must be >= 0")
	}
	switch r.OnRowError {
	case "", OnRowErrorAbort, OnRowErrorSkip:
	default:
		add(SeverityError, "runtime.on_row_error", "unknown policy %q (want abort or skip)", r.OnRowError)
	}
}

func knownKind(kind string) bool {
	for _, k := range Kinds {
		if k == kind {
			return true
		}
	}
	return false
}

func printable(b byte) bool { return b >= 0x20 && b < 0x7f }
