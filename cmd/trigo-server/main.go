// Command trigo-server loads an on-disk index and serves it over HTTP, the
// "server binary" half of the engine's CLI surface (spec.md §6).
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/aleksaelezovic/trigo/internal/config"
	"github.com/aleksaelezovic/trigo/internal/engineerr"
	"github.com/aleksaelezovic/trigo/internal/globalvocab"
	"github.com/aleksaelezovic/trigo/internal/logging"
	"github.com/aleksaelezovic/trigo/internal/quadstore"
	"github.com/aleksaelezovic/trigo/internal/storage"
	"github.com/aleksaelezovic/trigo/pkg/server"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("trigo-server", flag.ContinueOnError)
	dbPath := fs.String("db", "./trigo_data", "path to the on-disk index")
	addr := fs.String("addr", "localhost:8080", "HTTP listen address")
	configPath := fs.String("config", "", "path to a YAML config file (optional)")
	logLevel := fs.String("log-level", "info", "log level: debug, info, warn, error")
	if err := fs.Parse(args); err != nil {
		return engineerr.Usage.ExitCode()
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return engineerr.Usage.ExitCode()
	}
	_ = cfg // reserved for tuning cancellation polling and worker counts at serve time

	log := logging.New(*logLevel)
	slog := logging.Component(log, "trigo-server")

	badgerStorage, err := storage.NewBadgerStorage(*dbPath)
	if err != nil {
		slog.WithError(err).Error("failed to open storage")
		return engineerr.IO.ExitCode()
	}
	defer badgerStorage.Close()

	vocab, err := globalvocab.Open(badgerStorage)
	if err != nil {
		slog.WithError(err).Error("failed to open vocabulary")
		return engineerr.IO.ExitCode()
	}
	quads := quadstore.New(badgerStorage, vocab)

	count, err := quads.Count()
	if err != nil {
		slog.WithError(err).Error("failed to count existing triples")
		return engineerr.IO.ExitCode()
	}
	slog.Infof("index loaded with %d triples", count)

	srv := server.NewServer(quads, *addr)
	slog.Infof("SPARQL endpoint listening at http://%s/sparql", *addr)
	if err := srv.Start(); err != nil {
		slog.WithError(err).Error("server stopped")
		return engineerr.IO.ExitCode()
	}
	return 0
}
