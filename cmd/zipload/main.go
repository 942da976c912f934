package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"zipload/internal/config"
	"zipload/internal/metrics"
	"zipload/internal/metrics/datadog"
	"zipload/internal/metrics/prompush"
	"zipload/internal/runner"

	// register all backends with the storage factory.
	// config specifies which to use but we need to build in support for all of them.
	_ "zipload/internal/storage/all"
)

// Exit codes: 0 all jobs succeeded, 1 one or more jobs failed, 2 invalid
// configuration or arguments.
const (
	exitOK         = 0
	exitJobsFailed = 1
	exitBadConfig  = 2
)

// main is the entry point for the loader binary. It loads the targets
// config, optionally initializes a metrics backend, expands the input globs,
// and fans the (file, target) jobs out.
func main() {
	os.Exit(run())
}

func run() int {
	var (
		concurrency       int
		onRowError        string
		logEvery          int
		metricsBackendFlg string
		pushGatewayURLFlg string
		statsdAddrFlg     string
		validate          bool
	)

	flag.IntVar(&concurrency, "concurrency", 0, "worker count (default: number of targets)")
	flag.StringVar(&onRowError, "on-row-error", "", "row-error policy: abort or skip (default abort)")
	flag.IntVar(&logEvery, "log-every", 0, "emit a progress line every N inserted records per job (0 = every batch)")
	flag.StringVar(&metricsBackendFlg, "metrics-backend", "none", "metrics backend to use (pushgateway, datadog, none)")
	flag.StringVar(&pushGatewayURLFlg, "pushgateway-url", "", "Pushgateway base URL (overrides env PUSHGATEWAY_URL)")
	flag.StringVar(&statsdAddrFlg, "statsd-addr", "", "DogStatsD address for the datadog backend (overrides env DOGSTATSD_ADDR)")
	flag.BoolVar(&validate, "validate", false, "validate the configuration and exit")
	verbose := flag.Bool("v", false, "enable verbose logs")

	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(),
			"usage: %s [flags] <targets-config> <file-or-glob>...\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() < 2 && !(validate && flag.NArg() == 1) {
		flag.Usage()
		return exitBadConfig
	}

	// Optional .env next to the working directory keeps credentials out of
	// the targets file; absence is not an error.
	if err := godotenv.Load(); err == nil && *verbose {
		log.Printf("env: loaded .env")
	}

	cfgPath := flag.Arg(0)
	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return exitBadConfig
	}

	issues := config.ValidateTargets(cfg)
	for _, iss := range issues {
		fmt.Fprintf(os.Stderr, "%s: %s: %s\n", iss.Severity, iss.Path, iss.Message)
	}
	if config.HasErrors(issues) {
		log.Printf("configuration is invalid: %v", cfgPath)
		return exitBadConfig
	}

	if validate {
		log.Printf("configuration is valid: %v", cfgPath)
		return exitOK
	}

	files, err := expandInputs(flag.Args()[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return exitBadConfig
	}

	// Flag overrides beat config and env.
	rt := cfg.Runtime
	if concurrency > 0 {
		rt.Concurrency = concurrency
	}
	if onRowError != "" {
		if onRowError != config.OnRowErrorAbort && onRowError != config.OnRowErrorSkip {
			fmt.Fprintf(os.Stderr, "invalid --on-row-error %q (want abort or skip)\n", onRowError)
			return exitBadConfig
		}
		rt.OnRowError = onRowError
	}
	if logEvery > 0 {
		rt.LogEvery = logEvery
	}
	rt = rt.Resolve(len(cfg.Targets))

	setupMetrics(metricsBackendFlg, pushGatewayURLFlg, statsdAddrFlg, *verbose)
	defer func() {
		if err := metrics.Flush(); err != nil {
			log.Printf("metrics: flush error: %v", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *verbose {
		log.Printf("run: files=%d targets=%d concurrency=%d batch_size=%d on_row_error=%s",
			len(files), len(cfg.Targets), rt.Concurrency, rt.BatchSize, rt.OnRowError)
	}

	start := time.Now()
	summary := runner.Run(ctx, files, cfg.Targets, rt)
	runner.LogSummary(summary)

	if *verbose {
		log.Printf("completed in %s", time.Since(start).Truncate(time.Millisecond))
	}

	if !summary.OK() {
		return exitJobsFailed
	}
	return exitOK
}

// expandInputs resolves each argument as a glob pattern, passing plain paths
// through, and returns the sorted, de-duplicated file list. An argument that
// matches nothing is a configuration error: silently loading zero files
// would mask a typo.
func expandInputs(args []string) ([]string, error) {
	seen := map[string]bool{}
	var files []string
	for _, arg := range args {
		matches, err := filepath.Glob(arg)
		if err != nil {
			return nil, fmt.Errorf("bad pattern %q: %w", arg, err)
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("no files match %q", arg)
		}
		for _, m := range matches {
			if !seen[m] {
				seen[m] = true
				files = append(files, m)
			}
		}
	}
	sort.Strings(files)
	return files, nil
}

// setupMetrics installs the selected metrics backend: flag → env → nop.
func setupMetrics(backendName, gatewayURL, statsdAddr string, verbose bool) {
	if backendName == "" {
		backendName = os.Getenv("METRICS_BACKEND")
	}
	switch backendName {
	case "pushgateway":
		if gatewayURL == "" {
			gatewayURL = os.Getenv("PUSHGATEWAY_URL")
		}
		if gatewayURL == "" {
			gatewayURL = "http://localhost:9091"
		}
		b, err := prompush.NewBackend("zipload", gatewayURL)
		if err != nil {
			log.Printf("metrics: failed to init pushgateway backend: %v; using nop", err)
			return
		}
		log.Printf("metrics: backend=pushgateway url=%v", gatewayURL)
		metrics.SetBackend(b)

	case "datadog":
		if statsdAddr == "" {
			statsdAddr = os.Getenv("DOGSTATSD_ADDR")
		}
		if statsdAddr == "" {
			statsdAddr = "127.0.0.1:8125"
		}
		b, err := datadog.NewBackend(datadog.Config{Addr: statsdAddr, Namespace: "zipload."})
		if err != nil {
			log.Printf("metrics: failed to init datadog backend: %v; using nop", err)
			return
		}
		log.Printf("metrics: backend=datadog addr=%v", statsdAddr)
		metrics.SetBackend(b)

	case "", "none":
		// metrics disabled; nop backend remains
		if verbose {
			log.Printf("metrics: disabled (backend=%q)", backendName)
		}

	default:
		log.Printf("metrics: unknown backend %q; metrics disabled", backendName)
	}
}
