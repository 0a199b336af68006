package daemon

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/loadforge/loadforge/pkg/api"
	"github.com/loadforge/loadforge/pkg/logging"
	"github.com/loadforge/loadforge/pkg/orchestrator"
	"github.com/loadforge/loadforge/pkg/plan"
	"github.com/loadforge/loadforge/pkg/rpc"
	"github.com/loadforge/loadforge/pkg/runstore"
)

// createRunHandler compiles and executes a plan.Config body, streaming
// progress chunks over the response and finishing with the RunOutcome as
// the terminal result. It always responds with a result, even when the
// run itself failed: the orchestrator never returns a bare transport
// error for a run that was accepted.
func (d *Daemon) createRunHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ruid := r.Header.Get("X-Request-ID")
		log := logging.S().With("req_id", ruid)

		log.Infow("handle request", "command", "run")
		defer log.Infow("request handled", "command", "run")

		ow := rpc.NewOutputWriter(w, r)

		var cfg plan.Config
		if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
			ow.WriteError("failed to decode plan", "err", err.Error())
			return
		}

		started := time.Now()

		outcome := d.orch.Run(r.Context(), cfg, ow)

		rec := &runstore.Record{
			RunID:     outcome.RunID,
			TargetURL: cfg.TargetURL,
			TestKind:  api.TestKind(cfg.TestKind),
			Status:    orchestrator.Status(outcome),
			ExitCode:  orchestrator.ExitCode(outcome),
			StartedAt: started,
			EndedAt:   time.Now(),
		}
		if outcome.Report != nil {
			rec.Grade = outcome.Report.Grade
		}
		if rec.RunID != "" {
			if err := d.store.Complete(rec); err != nil {
				log.Warnw("failed to persist run record", "run_id", rec.RunID, "err", err)
			}
		}

		ow.WriteResult(outcome)
	}
}

// getRunHandler looks up a single run's ledger record by id.
func (d *Daemon) getRunHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ow := rpc.NewOutputWriter(w, r)

		runID := mux.Vars(r)["run_id"]
		rec, err := d.store.Get(runID)
		if err == runstore.ErrNotFound {
			w.WriteHeader(http.StatusNotFound)
			ow.WriteError("run not found", "run_id", runID)
			return
		}
		if err != nil {
			ow.WriteError("failed to look up run", "err", err.Error())
			return
		}

		ow.WriteResult(rec)
	}
}

// listRunsHandler lists completed runs with StartedAt within the
// [since, until) window given by the "since" and "until" unix-seconds
// query parameters, defaulting to the last 24 hours.
func (d *Daemon) listRunsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ow := rpc.NewOutputWriter(w, r)

		until := time.Now()
		since := until.Add(-24 * time.Hour)

		if v := r.URL.Query().Get("since"); v != "" {
			sec, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				ow.WriteError("invalid since parameter", "err", err.Error())
				return
			}
			since = time.Unix(sec, 0)
		}
		if v := r.URL.Query().Get("until"); v != "" {
			sec, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				ow.WriteError("invalid until parameter", "err", err.Error())
				return
			}
			until = time.Unix(sec, 0)
		}

		records, err := d.store.ListCompleted(since, until)
		if err != nil {
			ow.WriteError("failed to list runs", "err", err.Error())
			return
		}

		ow.WriteResult(records)
	}
}

// healthzHandler reports whether the configured Container Client and Blob
// Client are reachable.
func (d *Daemon) healthzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ow := rpc.NewOutputWriter(w, r)

		result := d.checker.Check(r.Context())
		if !result.OK {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		ow.WriteResult(result)
	}
}
