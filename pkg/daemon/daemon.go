// Package daemon is the HTTP front-end for the orchestrator: it accepts a
// plan over POST /runs, streams progress back as the run executes, and
// lets callers look up run history from the run store.
package daemon

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/pborman/uuid"

	"github.com/loadforge/loadforge/pkg/config"
	"github.com/loadforge/loadforge/pkg/healthcheck"
	"github.com/loadforge/loadforge/pkg/logging"
	"github.com/loadforge/loadforge/pkg/orchestrator"
	"github.com/loadforge/loadforge/pkg/providers"
	"github.com/loadforge/loadforge/pkg/runstore"
)

// Daemon serves the orchestrator over HTTP.
type Daemon struct {
	server *http.Server
	l      net.Listener
	doneCh chan struct{}

	orch    *orchestrator.Orchestrator
	store   *runstore.Store
	checker *healthcheck.Checker
}

// New builds a Daemon bound to cfg.Daemon.Listen, wiring the Container
// Client and Blob Client named in cfg.Provider and opening the run store
// at cfg.RunStore.Path.
//
// Handlers:
//
// * POST /runs: compiles and executes a plan, streaming progress chunks
//   and finishing with the RunOutcome as the terminal result.
// * GET /runs/{run_id}: looks up a finished run's record; a run started
//   through POST /runs has no record until it finishes.
// * GET /runs: lists completed runs within a time window.
// * GET /healthz: reports whether the configured providers are reachable.
func New(cfg *config.EnvConfig) (srv *Daemon, err error) {
	srv = new(Daemon)

	containerClient, err := providers.ContainerClient(cfg.Provider)
	if err != nil {
		return nil, fmt.Errorf("resolving container provider: %w", err)
	}
	blobClient, err := providers.BlobClient(cfg.Provider)
	if err != nil {
		return nil, fmt.Errorf("resolving blob provider: %w", err)
	}
	store, err := runstore.Open(cfg.RunStore.Path)
	if err != nil {
		return nil, fmt.Errorf("opening run store: %w", err)
	}

	srv.orch = orchestrator.New(containerClient, blobClient, nil)
	srv.store = store
	srv.checker = healthcheck.New(containerClient, blobClient)

	r := mux.NewRouter()

	// Set a unique request ID.
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("X-Request-ID") == "" {
				r.Header.Set("X-Request-ID", uuid.New()[:8])
			}
			next.ServeHTTP(w, r)
		})
	})

	r.HandleFunc("/runs", srv.createRunHandler()).Methods("POST")
	r.HandleFunc("/runs", srv.listRunsHandler()).Methods("GET")
	r.HandleFunc("/runs/{run_id}", srv.getRunHandler()).Methods("GET")
	r.HandleFunc("/healthz", srv.healthzHandler()).Methods("GET")

	srv.doneCh = make(chan struct{})
	srv.server = &http.Server{
		Handler:      r,
		WriteTimeout: 1200 * time.Second,
		ReadTimeout:  1200 * time.Second,
	}

	srv.l, err = net.Listen("tcp", cfg.Daemon.Listen)
	if err != nil {
		store.Close()
		return nil, err
	}

	return srv, nil
}

// Serve starts the server and blocks until the server is closed, either
// explicitly via Shutdown, or due to a fault condition. It propagates the
// non-nil err return value from http.Serve.
func (d *Daemon) Serve() error {
	select {
	case <-d.doneCh:
		return fmt.Errorf("tried to reuse a stopped server")
	default:
	}

	logging.S().Infow("daemon listening", "addr", d.Addr())
	return d.server.Serve(d.l)
}

func (d *Daemon) Addr() string {
	return d.l.Addr().String()
}

func (d *Daemon) Port() int {
	return d.l.Addr().(*net.TCPAddr).Port
}

// Shutdown gracefully stops accepting new requests, closes the run store,
// and lets in-flight requests finish within ctx's deadline.
func (d *Daemon) Shutdown(ctx context.Context) error {
	defer close(d.doneCh)
	defer d.store.Close()
	return d.server.Shutdown(ctx)
}
