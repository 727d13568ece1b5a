// Command shuffle anonymizes tables by permuting the values of selected
// columns across rows, keeping every other column and all row identifiers
// intact.
//
// Usage:
//
//	shuffle [flags] <database> <table:id_column:col1,col2,...> ...
//
// Credentials come from an INI credential file (-defaults-file, default
// ~/.my.cnf or $SHUFFLE_DEFAULTS_FILE). Exit codes: 0 when every table
// shuffled, 1 on fatal errors (credentials, connectivity, missing database,
// malformed invocation), 2 when the run completed but at least one table was
// skipped or failed.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"shuffle/internal/config"
	"shuffle/internal/metrics"
	"shuffle/internal/metrics/prompush"
	"shuffle/internal/runner"
	"shuffle/internal/storage"

	// register all backends with the storage factory.
	_ "shuffle/internal/storage/all"
)

func usage() {
	fmt.Fprintf(os.Stderr, `usage: %s [flags] <database> <table:id_column:col1,col2,...> ...

Shuffles the values of the listed columns across the rows of each table,
reattaching them by the identifier column. Flags:

`, os.Args[0])
	flag.PrintDefaults()
}

func main() {
	var (
		defaultsFile      string
		backendFlg        string
		metricsBackendFlg string
		pushGatewayURLFlg string
	)

	flag.StringVar(&defaultsFile, "defaults-file", "", "credential file path (default $SHUFFLE_DEFAULTS_FILE or ~/.my.cnf)")
	flag.StringVar(&backendFlg, "backend", "mysql", "storage backend (mysql, postgres, mssql, sqlite)")
	flag.StringVar(&metricsBackendFlg, "metrics-backend", "none", "metrics backend to use (pushgateway, none)")
	flag.StringVar(&pushGatewayURLFlg, "pushgateway-url", "", "Pushgateway base URL (overrides env PUSHGATEWAY_URL)")
	verbose := flag.Bool("v", false, "enable verbose logs")

	flag.Usage = usage
	flag.Parse()

	args := flag.Args()
	if len(args) < 2 {
		usage()
		os.Exit(1)
	}
	database, specs := args[0], args[1:]

	if defaultsFile == "" {
		defaultsFile = config.DefaultPath()
	}
	creds, err := config.Load(defaultsFile)
	if err != nil {
		fatalf("%v", err)
	}
	if *verbose {
		log.Printf("credentials: %s file=%s", creds, defaultsFile)
	}

	// Decide metrics backend: flag → env → none.
	switch metricsBackendFlg {
	case "pushgateway":
		gwURL := pushGatewayURLFlg
		if gwURL == "" {
			gwURL = os.Getenv("PUSHGATEWAY_URL")
		}
		if gwURL == "" {
			gwURL = "http://localhost:9091"
		}
		b, err := prompush.NewBackend("shuffle", gwURL)
		if err != nil {
			log.Printf("metrics: failed to init prom push backend: %v; using nop", err)
		} else {
			metrics.SetBackend(b)
			defer func() {
				if err := metrics.Flush(); err != nil {
					log.Printf("metrics: flush error: %v", err)
				}
			}()
		}

	case "", "none":
		if *verbose {
			log.Printf("metrics: disabled")
		}

	default:
		log.Printf("metrics: unknown backend %q; metrics disabled", metricsBackendFlg)
	}

	ctx := context.Background()
	start := time.Now()

	repo, err := storage.New(ctx, storage.Config{
		Kind:     backendFlg,
		Database: database,
		User:     creds.User,
		Password: creds.Password,
		Host:     creds.Host,
		Port:     creds.Port,
		DSN:      creds.DSN,
	})
	if err != nil {
		fatalf("connect (%s): %v", backendFlg, err)
	}
	defer repo.Close()

	ok, err := repo.DatabaseExists(ctx)
	if err != nil {
		fatalf("database probe: %v", err)
	}
	if !ok {
		fatalf("unknown database %q", database)
	}

	outcomes := runner.Run(ctx, repo, specs)

	shuffled, skipped, failed := 0, 0, 0
	for _, o := range outcomes {
		switch o.Status {
		case runner.StatusShuffled:
			shuffled++
		case runner.StatusSkipped:
			skipped++
		case runner.StatusFailed:
			failed++
		}
	}
	log.Printf("done: tables=%d shuffled=%d skipped=%d failed=%d elapsed=%s",
		len(outcomes), shuffled, skipped, failed, time.Since(start).Truncate(time.Millisecond))

	os.Exit(runner.ExitCode(outcomes))
}

func fatalf(format string, a ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", a...)
	os.Exit(1)
}
