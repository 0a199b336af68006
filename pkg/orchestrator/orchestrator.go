// Package orchestrator wires the Plan Compiler, Workload Distributor,
// Container Manager, Result Aggregator, and Metrics Analyzer into the
// single entry point: Run(plan) -> RunOutcome.
package orchestrator

import (
	"context"
	"time"

	"github.com/loadforge/loadforge/pkg/aggregator"
	"github.com/loadforge/loadforge/pkg/analyzer"
	"github.com/loadforge/loadforge/pkg/api"
	"github.com/loadforge/loadforge/pkg/containermanager"
	"github.com/loadforge/loadforge/pkg/distribute"
	"github.com/loadforge/loadforge/pkg/plan"
	"github.com/loadforge/loadforge/pkg/rpc"
)

// Orchestrator owns the provider clients every run is driven against.
type Orchestrator struct {
	container api.ContainerClient
	blob      api.BlobClient
	cfgFn     func(planDuration time.Duration) containermanager.Config
}

// New builds an Orchestrator over the given Container Client and Blob
// Client. cfgFn, if nil, defaults to containermanager.DefaultConfig.
func New(containerClient api.ContainerClient, blobClient api.BlobClient, cfgFn func(time.Duration) containermanager.Config) *Orchestrator {
	if cfgFn == nil {
		cfgFn = containermanager.DefaultConfig
	}
	return &Orchestrator{container: containerClient, blob: blobClient, cfgFn: cfgFn}
}

// Run executes one end-to-end load test and always returns a RunOutcome,
// even on failure; callers map RunOutcome to a process exit code via
// ExitCode(outcome).
func (o *Orchestrator) Run(ctx context.Context, cfg plan.Config, ow *rpc.OutputWriter) *api.RunOutcome {
	runPlan, err := plan.Compile(cfg)
	if err != nil {
		return &api.RunOutcome{
			OrchestratorError:     err,
			OrchestratorErrorText: err.Error(),
		}
	}
	log := ow.With("run_id", runPlan.RunID)

	assignments, err := distribute.Distribute(runPlan)
	if err != nil {
		return &api.RunOutcome{
			RunID:                 runPlan.RunID,
			OrchestratorError:     err,
			OrchestratorErrorText: err.Error(),
		}
	}

	hardDeadline := runPlan.Duration * 4
	if hardDeadline < 10*time.Minute {
		hardDeadline = 10 * time.Minute
	}
	runCtx, cancel := context.WithTimeout(ctx, hardDeadline)
	defer cancel()

	wasCancelledByCaller := ctx.Err() != nil

	mgr := containermanager.New(o.container, o.blob, o.cfgFn(runPlan.Duration))
	handles := mgr.Run(runCtx, assignments, log)

	deadlineExceeded := runCtx.Err() == context.DeadlineExceeded
	callerCancelled := ctx.Err() != nil && !wasCancelledByCaller

	agg := aggregator.New(o.blob)
	summary, summaryBlob, aggErr := agg.Aggregate(context.Background(), runPlan, handles, log)

	outcome := &api.RunOutcome{
		RunID:                runPlan.RunID,
		TerminalWorkerStates: handles,
		CanonicalSummaryBlob: summaryBlob,
	}

	if aggErr != nil {
		if api.CodeOf(aggErr) == api.ErrBlobUnavailable {
			outcome.OrchestratorError = aggErr
			outcome.OrchestratorErrorText = aggErr.Error()
		} else {
			outcome.OrchestratorError = aggErr
			outcome.OrchestratorErrorText = aggErr.Error()
			return outcome
		}
	}

	if summary != nil {
		analysisCtx := analyzer.Context{
			TestKind:        runPlan.TestKind,
			TargetURL:       runPlan.TargetURL,
			DurationSeconds: runPlan.Duration.Seconds(),
			TotalVUs:        runPlan.TotalVUs,
		}
		report := analyzer.New().Analyze(summary, analysisCtx)

		if deadlineExceeded || callerCancelled {
			report.Findings = append(report.Findings, api.Finding{
				Severity:          api.SeverityLow,
				Category:          "cancelled",
				Title:             "Run was cancelled before completion",
				Detail:            "The run was stopped before every worker reached a terminal state.",
				RecommendedAction: "Re-run with a longer deadline or investigate what triggered cancellation.",
			})
		}

		outcome.Report = report
	}

	return outcome
}

// Status derives the overall run-level result from a RunOutcome, based on
// how many workers reached each terminal state.
func Status(outcome *api.RunOutcome) api.Status {
	if outcome.OrchestratorError != nil {
		switch api.CodeOf(outcome.OrchestratorError) {
		case api.ErrInvalidPlan, api.ErrInvalidDistribution:
			return api.StatusFailed
		case api.ErrCancelled:
			return api.StatusCancelled
		}
	}

	if cancelled(outcome) {
		return api.StatusCancelled
	}

	manifest := outcome.Report
	if manifest == nil || manifest.CanonicalSummary == nil {
		return api.StatusFailed
	}

	rt := manifest.CanonicalSummary.Runtime
	switch {
	case rt.SuccessfulWorkers == 0:
		return api.StatusFailed
	case rt.SuccessfulWorkers < rt.WorkerCount:
		return api.StatusDegraded
	default:
		return api.StatusOK
	}
}

func cancelled(outcome *api.RunOutcome) bool {
	for _, h := range outcome.TerminalWorkerStates {
		if h.State == api.WorkerCancelled {
			return true
		}
	}
	return false
}

// ExitCode implements the full exit-code table, which has two codes
// api.Status.ExitCode alone cannot express: 5 for an
// invalid plan (rejected before any worker was ever provisioned) and 6
// for an infrastructure failure severe enough that no report exists.
func ExitCode(outcome *api.RunOutcome) int {
	if outcome.OrchestratorError != nil {
		switch api.CodeOf(outcome.OrchestratorError) {
		case api.ErrInvalidPlan, api.ErrInvalidDistribution:
			return 5
		}
	}
	if outcome.Report == nil {
		return 6
	}
	return Status(outcome).ExitCode()
}
