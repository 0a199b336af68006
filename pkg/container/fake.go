// Package container implements api.ContainerClient against AWS ECS Fargate
// (the production backend), local Docker (the dev/integration backend), and
// a deterministic in-memory fake for unit tests, each backend behind one
// capability interface.
package container

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/loadforge/loadforge/pkg/api"
)

// FakeBehavior lets a test script a group's outcome deterministically: a
// fake implementation that advances a state machine the same way a real
// provider would, on command instead of on a timer.
type FakeBehavior int

const (
	// FakeSucceeds starts normally and terminates with exit code 0 after
	// RunFor.
	FakeSucceeds FakeBehavior = iota
	// FakeFails starts normally and terminates with a non-zero exit code
	// after RunFor.
	FakeFails
	// FakeFailsToStart never reports ContainerStateRunning; Create fails
	// outright.
	FakeFailsToStart
	// FakeThrottledThenSucceeds fails the first Create call for its group
	// name with a retryable ProviderThrottled error, then behaves like
	// FakeSucceeds.
	FakeThrottledThenSucceeds
	// FakeHangs never reaches a terminal state; used to exercise
	// completion_timeout.
	FakeHangs
)

type fakeGroup struct {
	behavior    FakeBehavior
	createdAt   time.Time
	runFor      time.Duration
	throttled   int // remaining throttled attempts
	deleted     bool
	uploaded    bool

	runID       string
	workerIndex string
	namespace   string
}

// Fake is a deterministic, in-memory api.ContainerClient.
type Fake struct {
	mu     sync.Mutex
	groups map[string]*fakeGroup

	// Scripts maps a groupName to the behavior Create should apply. Workers
	// not present fall back to DefaultBehavior.
	Scripts map[string]FakeBehavior
	// DefaultBehavior is applied to any group name not present in Scripts.
	// Zero value is FakeSucceeds.
	DefaultBehavior FakeBehavior
	// RunFor is how long a group stays "running" before reaching a
	// terminal provider state. Defaults to 10ms, fast enough for tests.
	RunFor time.Duration
	// FailFirstN causes the first N Create calls across all group names to
	// fail to start, regardless of name. Used to exercise partial-failure
	// behavior when the caller (e.g. the Orchestrator) generates group
	// names the test cannot predict in advance.
	FailFirstN int32
	// Blob, when set, makes a group that reaches a terminal provider state
	// upload its summary_<i>.json (and, for exit code 0, completion_<i>.txt)
	// the same way a real worker image would, using the RUN_ID,
	// WORKER_INDEX, and BLOB_NAMESPACE env vars passed to Create. Left nil,
	// Status only reports container-level state and callers are responsible
	// for seeding any blobs the test needs.
	Blob api.BlobClient

	throttleAttempts map[string]int
	createCount      int32
}

var _ api.ContainerClient = (*Fake)(nil)

// NewFake returns an empty fake container client.
func NewFake() *Fake {
	return &Fake{
		groups:           make(map[string]*fakeGroup),
		Scripts:          make(map[string]FakeBehavior),
		throttleAttempts: make(map[string]int),
		RunFor:           10 * time.Millisecond,
	}
}

func (f *Fake) Create(_ context.Context, groupName, _ string, env map[string]string, _ float64, _ float64) (string, error) {
	if atomic.AddInt32(&f.createCount, 1) <= f.FailFirstN {
		return "", api.NewError(api.ErrProviderFatal, "provider refused to start "+groupName, nil)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	behavior, scripted := f.Scripts[groupName]
	if !scripted {
		behavior = f.DefaultBehavior
	}

	if behavior == FakeThrottledThenSucceeds {
		if f.throttleAttempts[groupName] == 0 {
			f.throttleAttempts[groupName]++
			return "", api.NewError(api.ErrProviderThrottled, "provider throttled "+groupName, nil)
		}
		behavior = FakeSucceeds
	}

	if behavior == FakeFailsToStart {
		return "", api.NewError(api.ErrProviderFatal, "provider refused to start "+groupName, nil)
	}

	id := uuid.New().String()
	f.groups[id] = &fakeGroup{
		behavior:    behavior,
		createdAt:   time.Now(),
		runFor:      f.RunFor,
		runID:       env["RUN_ID"],
		workerIndex: env["WORKER_INDEX"],
		namespace:   env["BLOB_NAMESPACE"],
	}
	return id, nil
}

func (f *Fake) Status(_ context.Context, providerID string) (api.ContainerStatus, error) {
	f.mu.Lock()

	g, ok := f.groups[providerID]
	if !ok {
		f.mu.Unlock()
		return api.ContainerStatus{State: api.ContainerStateUnknown}, nil
	}

	if g.behavior == FakeHangs {
		f.mu.Unlock()
		return api.ContainerStatus{State: api.ContainerStateRunning}, nil
	}

	if time.Since(g.createdAt) < g.runFor {
		f.mu.Unlock()
		return api.ContainerStatus{State: api.ContainerStateRunning}, nil
	}

	code := 0
	if g.behavior == FakeFails {
		code = 1
	}

	needsUpload := f.Blob != nil && !g.uploaded && g.runID != ""
	g.uploaded = true
	runID, workerIndex, namespace := g.runID, g.workerIndex, g.namespace
	blobClient := f.Blob
	f.mu.Unlock()

	if needsUpload {
		uploadFakeWorkerResult(blobClient, namespace, runID, workerIndex, code)
	}

	return api.ContainerStatus{State: api.ContainerStateTerminated, ExitCode: &code}, nil
}

// uploadFakeWorkerResult writes the same objects a real worker image writes
// on exit: summary_<i>.json with a trailing Completion record, and
// completion_<i>.txt iff exit_code is 0. This lets tests driving the fake
// through a Container Manager or Orchestrator see the event-style
// completion signal without hand-seeding blobs for an unpredictable run_id.
func uploadFakeWorkerResult(bc api.BlobClient, namespace, runID, workerIndex string, exitCode int) {
	idx, err := strconv.Atoi(workerIndex)
	if err != nil {
		return
	}
	ctx := context.Background()

	point, _ := json.Marshal(map[string]interface{}{
		"kind":   "Point",
		"metric": "http_req_duration",
		"data":   map[string]interface{}{"value": 1.0},
	})
	completion, _ := json.Marshal(struct {
		Kind string `json:"kind"`
		api.WorkerCompletion
	}{
		Kind: "Completion",
		WorkerCompletion: api.WorkerCompletion{
			WorkerIndex:         idx,
			VUsUsed:             1,
			IterationsCompleted: 1,
			WallClockMillis:     1,
			ExitCode:            exitCode,
		},
	})

	summary := append(append(point, '\n'), completion...)
	summaryName := api.BlobName(runID, fmt.Sprintf("summary_%d.json", idx))
	_ = bc.Put(ctx, namespace, summaryName, summary)

	if exitCode == 0 {
		completionName := api.BlobName(runID, fmt.Sprintf("completion_%d.txt", idx))
		_ = bc.Put(ctx, namespace, completionName, []byte("completed"))
	}
}

func (f *Fake) Delete(_ context.Context, providerID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	g, ok := f.groups[providerID]
	if !ok {
		return nil
	}
	g.deleted = true
	delete(f.groups, providerID)
	return nil
}

func (f *Fake) Logs(_ context.Context, providerID string) ([]byte, error) {
	return []byte(fmt.Sprintf("fake logs for %s", providerID)), nil
}

// Exists reports whether providerID is still tracked (used by tests to
// assert full cleanup after Run returns).
func (f *Fake) Exists(providerID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.groups[providerID]
	return ok
}
