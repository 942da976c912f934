// Package config defines the canonical, JSON-serializable configuration model
// for the loader. It is intentionally small, explicit, and dependency-free so
// that target files can be loaded from disk and passed through the program
// without additional glue code.
//
// Design goals:
//
//  1. Stability: changes to this package should be additive and backwards-
//     compatible whenever possible.
//  2. Clarity: field names in Go mirror the JSON structure of targets files.
//  3. Minimalism: no third-party config libraries; decoding is performed by
//     the standard library.
//
// Example targets file (trimmed):
//
//	{
//	  "targets": [
//	    { "kind": "postgres", "dsn": "postgres://...", "table": "tweets_raw", "column": "payload" },
//	    { "kind": "sqlite",   "dsn": "file:load.db",   "table": "tweets_raw", "column": "payload" }
//	  ],
//	  "runtime": { "concurrency": 2, "batch_size": 5000 }
//	}
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Reserved transport bytes used by raw copy mode when a target does not
// override them. Control bytes are chosen because free-form document text is
// assumed never to contain them; see Target.Delimiter.
const (
	DefaultQuote     = 0x01
	DefaultDelimiter = 0x02
)

// Row-error policies for the loader.
const (
	OnRowErrorAbort = "abort"
	OnRowErrorSkip  = "skip"
)

// Kinds enumerates the storage backends a target may select. The storage
// factory registers an implementation for each.
var Kinds = []string{"postgres", "mssql", "mysql", "sqlite"}

// File is the top-level object decoded from a targets file.
type File struct {
	// Targets enumerates the destination stores. Every input file is loaded
	// into every target (one job per file/target pair).
	Targets []Target `json:"targets"`

	// Runtime controls concurrency, batching, and error policy.
	Runtime Runtime `json:"runtime"`
}

// Target describes one destination store.
type Target struct {
	// Name is an optional label used in logs and summaries. Defaults to
	// "<kind>/<table>".
	Name string `json:"name"`

	// Kind selects the storage backend: "postgres", "mssql", "mysql", or
	// "sqlite".
	Kind string `json:"kind"`

	// DSN is the backend connection string. ${VAR} references are expanded
	// from the environment at load time so credentials stay out of the file.
	DSN string `json:"dsn"`

	// Table is the target relation; may be schema-qualified for backends
	// that support it (e.g. "public.tweets_raw").
	Table string `json:"table"`

	// Column is the single text column receiving each record's payload.
	Column string `json:"column"`

	// Delimiter and Quote are the byte values used by raw copy mode's text
	// protocol. The defaults (0x02 and 0x01) are non-printable control bytes
	// assumed never to occur in valid payload content. This is an explicit
	// environment assumption, not an escaping scheme: if the payload can
	// legitimately contain these bytes, raw mode corrupts rows silently.
	// Row copy mode (the default) does protocol-correct escaping instead and
	// ignores both values.
	Delimiter int `json:"delimiter"`
	Quote     int `json:"quote"`

	// Sanitize selects the ingest filter: "" or "nul" strips NUL bytes only;
	// "strict" additionally strips the reserved delimiter/quote bytes so the
	// raw-mode assumption is enforced rather than assumed.
	Sanitize string `json:"sanitize"`

	// CopyMode selects the load path: "rows" (default; driver-escaped bulk
	// copy) or "raw" (postgres only; streams sanitized bytes straight into
	// COPY FROM STDIN using Delimiter/Quote).
	CopyMode string `json:"copy_mode"`

	// MaxParallel bounds how many jobs may load into this target at once.
	// Defaults to 1: cross-target parallelism is always safe, same-target
	// parallelism depends on the store's bulk-load concurrency support.
	MaxParallel int `json:"max_parallel"`

	// AutoCreateTable creates the single-column relation if missing.
	AutoCreateTable bool `json:"auto_create_table"`
}

// Runtime controls the fan-out run. Zero values are resolved by Resolve.
type Runtime struct {
	// Concurrency is the global worker count. Default: number of targets.
	Concurrency int `json:"concurrency"`

	// BatchSize is the number of records per bulk-copy flush.
	BatchSize int `json:"batch_size"`

	// ChannelBuffer sizes the record channels between pipeline stages.
	ChannelBuffer int `json:"channel_buffer"`

	// OnRowError is "abort" (default) or "skip".
	OnRowError string `json:"on_row_error"`

	// LogEvery emits a progress line every N records per job (0 disables).
	LogEvery int `json:"log_every"`
}

// Label returns the target's display name for logs and summaries.
func (t Target) Label() string {
	if t.Name != "" {
		return t.Name
	}
	return t.Kind + "/" + t.Table
}

// DelimiterByte returns the configured delimiter, falling back to the
// default reserved byte.
func (t Target) DelimiterByte() byte {
	if t.Delimiter != 0 {
		return byte(t.Delimiter)
	}
	return DefaultDelimiter
}

// QuoteByte returns the configured quote byte, falling back to the default
// reserved byte.
func (t Target) QuoteByte() byte {
	if t.Quote != 0 {
		return byte(t.Quote)
	}
	return DefaultQuote
}

// Load reads and decodes a targets file, expands ${VAR} references in each
// DSN, and applies runtime env fallbacks. It does not validate; callers run
// ValidateTargets and decide how to surface issues.
func Load(path string) (File, error) {
	f, err := os.Open(path)
	if err != nil {
		return File{}, fmt.Errorf("open targets config: %w", err)
	}
	defer f.Close()

	var cfg File
	dec := json.NewDecoder(f)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return File{}, fmt.Errorf("decode targets config: %w", err)
	}

	for i := range cfg.Targets {
		cfg.Targets[i].DSN = os.ExpandEnv(cfg.Targets[i].DSN)
	}
	cfg.Runtime = cfg.Runtime.withEnvFallbacks(os.Getenv)
	return cfg, nil
}

// Resolve fills runtime defaults given the number of configured targets.
func (r Runtime) Resolve(numTargets int) Runtime {
	if r.Concurrency <= 0 {
		r.Concurrency = numTargets
	}
	if r.Concurrency <= 0 {
		r.Concurrency = 1
	}
	if r.BatchSize <= 0 {
		r.BatchSize = 5000
	}
	if r.ChannelBuffer <= 0 {
		r.ChannelBuffer = 4096
	}
	if r.OnRowError == "" {
		r.OnRowError = OnRowErrorAbort
	}
	return r
}

// withEnvFallbacks seeds unset runtime fields from ZIPLOAD_* environment
// variables (12-factor style). Explicit JSON values win over env.
func (r Runtime) withEnvFallbacks(getenv func(string) string) Runtime {
	if r.Concurrency == 0 {
		r.Concurrency = getenvInt(getenv, "ZIPLOAD_CONCURRENCY", 0)
	}
	if r.BatchSize == 0 {
		r.BatchSize = getenvInt(getenv, "ZIPLOAD_BATCH_SIZE", 0)
	}
	if r.ChannelBuffer == 0 {
		r.ChannelBuffer = getenvInt(getenv, "ZIPLOAD_CH_BUFFER", 0)
	}
	if r.OnRowError == "" {
		r.OnRowError = strings.ToLower(getenv("ZIPLOAD_ON_ROW_ERROR"))
	}
	if r.LogEvery == 0 {
		r.LogEvery = getenvInt(getenv, "ZIPLOAD_LOG_EVERY", 0)
	}
	return r
}

// getenvInt reads an int from getenv, returning def when unset or invalid.
func getenvInt(getenv func(string) string, k string, def int) int {
	if s := getenv(k); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			return n
		}
	}
	return def
}
