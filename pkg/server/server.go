package server

import (
	"log"
	"net/http"
	"time"

	"github.com/aleksaelezovic/trigo/internal/quadstore"
	"github.com/aleksaelezovic/trigo/internal/queryexec"
)

// Server represents the HTTP SPARQL server
type Server struct {
	store    *quadstore.QuadStore
	executor *queryexec.Executor
	addr     string
}

// NewServer creates a new SPARQL HTTP server
func NewServer(store *quadstore.QuadStore, addr string) *Server {
	return &Server{
		store:    store,
		executor: queryexec.New(store),
		addr:     addr,
	}
}

// Start starts the HTTP server
func (s *Server) Start() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/sparql", s.handleSPARQL)
	mux.HandleFunc("/data", s.handleDataUpload)
	mux.HandleFunc("/", s.handleRoot)

	server := &http.Server{
		Addr:         s.addr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	log.Printf("Starting SPARQL endpoint at http://%s/sparql", s.addr)
	return server.ListenAndServe()
}

// Statistics summarizes the index this server is serving.
type Statistics struct {
	TotalTriples int64
}

// Stats returns current index statistics.
func (s *Server) Stats() *Statistics {
	count, _ := s.store.Count()
	return &Statistics{TotalTriples: count}
}
