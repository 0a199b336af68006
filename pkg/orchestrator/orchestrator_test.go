package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loadforge/loadforge/pkg/api"
	"github.com/loadforge/loadforge/pkg/blob"
	"github.com/loadforge/loadforge/pkg/container"
	"github.com/loadforge/loadforge/pkg/containermanager"
	"github.com/loadforge/loadforge/pkg/plan"
	"github.com/loadforge/loadforge/pkg/rpc"
)

func fastCfgFn(time.Duration) containermanager.Config {
	cfg := containermanager.DefaultConfig(time.Second)
	cfg.PollMinInterval = time.Millisecond
	cfg.PollMaxInterval = 5 * time.Millisecond
	cfg.ProvisionTimeout = 200 * time.Millisecond
	cfg.CompletionTimeout = 200 * time.Millisecond
	cfg.TeardownGrace = time.Second
	cfg.PerCallTimeout = time.Second
	return cfg
}

func baseCfg() plan.Config {
	return plan.Config{
		TargetURL:       "http://example.test",
		TestKind:        "protocol",
		TotalVUs:        10,
		Duration:        "1m",
		PerWorkerVUs:    5,
		WorkerResources: api.WorkerResources{CPUCores: 1, MemoryGiB: 1},
		WorkerImageRef:  "img",
		BlobNamespace:   "ns",
	}
}

func TestOrchestratorAllSucceedGradesA(t *testing.T) {
	cc := container.NewFake()
	cc.RunFor = time.Millisecond
	bc := blob.NewMemory()
	cc.Blob = bc

	o := New(cc, bc, fastCfgFn)
	cfg := baseCfg()

	// Wiring cc.Blob to the same store the orchestrator uses lets the fake
	// upload each worker's completion and summary objects on termination,
	// the way a real worker image would, without this test needing to
	// predict the run_id the Plan Compiler will generate.
	outcome := o.Run(context.Background(), cfg, rpc.Discard())

	require.NotNil(t, outcome.Report)
	assert.Equal(t, 2, outcome.Report.CanonicalSummary.Runtime.WorkerCount)
	assert.Equal(t, 2, outcome.Report.CanonicalSummary.Runtime.SuccessfulWorkers)
	assert.Equal(t, api.StatusOK, Status(outcome))
	assert.Equal(t, 0, ExitCode(outcome))
	assert.Equal(t, api.GradeA, outcome.Report.Grade)
}

func TestOrchestratorPartialFailureIsDegraded(t *testing.T) {
	cc := container.NewFake()
	cc.RunFor = time.Millisecond
	cc.FailFirstN = 1 // exactly one of three workers fails to start

	cfg := baseCfg()
	cfg.TotalVUs = 3
	cfg.PerWorkerVUs = 1

	bc := blob.NewMemory()
	cc.Blob = bc
	o := New(cc, bc, fastCfgFn)

	outcome := o.Run(context.Background(), cfg, rpc.Discard())
	require.NotNil(t, outcome.Report)
	assert.Equal(t, 3, outcome.Report.CanonicalSummary.Runtime.WorkerCount)
	assert.Equal(t, 2, outcome.Report.CanonicalSummary.Runtime.SuccessfulWorkers)
	assert.Equal(t, api.StatusDegraded, Status(outcome))
	assert.Equal(t, 2, ExitCode(outcome))

	var found bool
	for _, f := range outcome.Report.Findings {
		if f.Category == "worker_dropout" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestOrchestratorCancellationPropagates(t *testing.T) {
	cc := container.NewFake()
	cc.RunFor = time.Hour
	bc := blob.NewMemory()
	cc.Blob = bc

	o := New(cc, bc, fastCfgFn)
	cfg := baseCfg()
	cfg.TotalVUs = 3
	cfg.PerWorkerVUs = 1

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	outcome := o.Run(ctx, cfg, rpc.Discard())
	require.NotNil(t, outcome.Report)
	assert.Equal(t, api.StatusCancelled, Status(outcome))
	assert.Equal(t, 4, ExitCode(outcome))

	for _, h := range outcome.TerminalWorkerStates {
		assert.Equal(t, api.WorkerCancelled, h.State)
	}
}

func TestOrchestratorInvalidPlanReturnsExitCode5(t *testing.T) {
	cc := container.NewFake()
	bc := blob.NewMemory()
	o := New(cc, bc, fastCfgFn)

	cfg := baseCfg()
	cfg.TotalVUs = 0 // violates gt=0

	outcome := o.Run(context.Background(), cfg, rpc.Discard())
	require.Nil(t, outcome.Report)
	require.Error(t, outcome.OrchestratorError)
	assert.Equal(t, 5, ExitCode(outcome))
}

func TestOrchestratorAllFailToStartIsFailed(t *testing.T) {
	cc := container.NewFake()
	cc.RunFor = time.Millisecond

	cfg := baseCfg()
	cfg.TotalVUs = 2
	cfg.PerWorkerVUs = 1

	cc.FailFirstN = 2 // every worker in this plan fails to start
	bc := blob.NewMemory()
	cc.Blob = bc
	o := New(cc, bc, fastCfgFn)

	outcome := o.Run(context.Background(), cfg, rpc.Discard())
	require.NotNil(t, outcome.Report)
	assert.Equal(t, api.StatusFailed, Status(outcome))
	assert.Equal(t, 3, ExitCode(outcome))
	assert.Equal(t, api.GradeF, outcome.Report.Grade)

	var found bool
	for _, f := range outcome.Report.Findings {
		if f.Category == "no_successful_workers" {
			found = true
		}
	}
	assert.True(t, found)
}
