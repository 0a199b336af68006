// Package containermanager drives one worker per api.WorkerAssignment
// through the lifecycle state machine: pending → provisioning → running →
// {succeeded, failed, failed_to_start}, with any non-terminal state able to
// fall to cancelled. It fans provisioning and polling out across
// goroutines, bounded by a concurrency gate, and guarantees every created
// group is torn down before Run returns.
package containermanager

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"

	"github.com/loadforge/loadforge/pkg/api"
	"github.com/loadforge/loadforge/pkg/rpc"
)

// Config bundles the timeouts the Container Manager observes, each with a
// sensible default for production use.
type Config struct {
	// MaxConcurrentCreates bounds simultaneous in-flight Create calls.
	MaxConcurrentCreates int
	// ProvisionTimeout is how long a worker may stay in `provisioning`
	// before being marked `failed_to_start`.
	ProvisionTimeout time.Duration
	// CompletionTimeout is how long a worker may stay `running`, counted
	// from when it was observed running, before being marked `failed`.
	CompletionTimeout time.Duration
	// TeardownGrace is how long cancellation waits for Delete calls to be
	// accepted before giving up and marking workers cancelled anyway.
	TeardownGrace time.Duration
	// PollMinInterval and PollMaxInterval bound the doubling gap between
	// provider status polls.
	PollMinInterval time.Duration
	PollMaxInterval time.Duration
	// PerCallTimeout bounds every individual provider/blob call.
	PerCallTimeout time.Duration
}

// DefaultConfig returns the default timeouts for a plan with the given
// duration.
func DefaultConfig(planDuration time.Duration) Config {
	return Config{
		MaxConcurrentCreates: 32,
		ProvisionTimeout:     5 * time.Minute,
		CompletionTimeout:    planDuration*3 + 10*time.Minute,
		TeardownGrace:        60 * time.Second,
		PollMinInterval:      5 * time.Second,
		PollMaxInterval:      30 * time.Second,
		PerCallTimeout:       30 * time.Second,
	}
}

// Manager drives the per-worker state machine for one run.
type Manager struct {
	container api.ContainerClient
	blob      api.BlobClient
	cfg       Config

	mu      sync.Mutex
	handles map[int]*api.WorkerHandle
}

// New builds a Manager for one run.
func New(containerClient api.ContainerClient, blobClient api.BlobClient, cfg Config) *Manager {
	return &Manager{
		container: containerClient,
		blob:      blobClient,
		cfg:       cfg,
		handles:   make(map[int]*api.WorkerHandle),
	}
}

// Run drives every assignment to a terminal state and returns the final
// handle table, indexed by worker index, in ascending order. It always
// tears down every group it created before returning, and always returns
// |assignments| handles, each in exactly one terminal state.
func (m *Manager) Run(ctx context.Context, assignments []api.WorkerAssignment, ow *rpc.OutputWriter) []api.WorkerHandle {
	ow = ow.With("component", "container_manager")

	for _, a := range assignments {
		m.mu.Lock()
		m.handles[a.WorkerIndex] = &api.WorkerHandle{WorkerIndex: a.WorkerIndex, State: api.WorkerPending}
		m.mu.Unlock()
	}

	sem := make(chan struct{}, m.cfg.MaxConcurrentCreates)
	var g errgroup.Group

	for _, a := range assignments {
		a := a
		g.Go(func() error {
			m.driveWorker(ctx, a, sem, ow)
			return nil
		})
	}
	_ = g.Wait()

	m.teardownAll(ow)

	return m.snapshot()
}

func (m *Manager) setState(idx int, mutate func(h *api.WorkerHandle)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h := m.handles[idx]
	mutate(h)
	h.LastObserved = time.Now()
}

func (m *Manager) snapshot() []api.WorkerHandle {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]api.WorkerHandle, 0, len(m.handles))
	for i := 0; i < len(m.handles); i++ {
		if h, ok := m.handles[i]; ok {
			out = append(out, *h)
		}
	}
	return out
}

func (m *Manager) driveWorker(ctx context.Context, a api.WorkerAssignment, sem chan struct{}, ow *rpc.OutputWriter) {
	groupName := fmt.Sprintf("%s-worker-%d", a.RunPlan.RunID, a.WorkerIndex)
	log := ow.With("worker_index", a.WorkerIndex, "group", groupName)

	if ctx.Err() != nil {
		m.cancel(a.WorkerIndex)
		return
	}

	select {
	case sem <- struct{}{}:
	case <-ctx.Done():
		m.cancel(a.WorkerIndex)
		return
	}

	m.setState(a.WorkerIndex, func(h *api.WorkerHandle) { h.State = api.WorkerProvisioning })

	env := buildWorkerEnv(a)
	providerID, err := m.createWithRetry(ctx, groupName, a, env, log)
	<-sem
	if err != nil {
		log.Warnw("worker failed to start", "err", err)
		m.setState(a.WorkerIndex, func(h *api.WorkerHandle) { h.State = api.WorkerFailedToStart })
		return
	}

	m.setState(a.WorkerIndex, func(h *api.WorkerHandle) {
		h.ProviderID = providerID
		h.CreatedAt = time.Now()
	})

	if !m.waitForRunning(ctx, providerID, log) {
		m.setState(a.WorkerIndex, func(h *api.WorkerHandle) { h.State = api.WorkerFailedToStart })
		return
	}

	m.setState(a.WorkerIndex, func(h *api.WorkerHandle) { h.State = api.WorkerRunning })

	terminal := m.waitForTerminal(ctx, a, providerID, log)
	m.setState(a.WorkerIndex, func(h *api.WorkerHandle) {
		h.State = terminal.state
		h.ExitCode = terminal.exitCode
	})
}

// createWithRetry retries a retryable provider error up to 3 times with
// 2/4/8s backoff before giving up.
func (m *Manager) createWithRetry(ctx context.Context, groupName string, a api.WorkerAssignment, env map[string]string, log *rpc.OutputWriter) (string, error) {
	backoffs := []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second}

	var lastErr error
	for attempt := 0; attempt <= len(backoffs); attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, m.cfg.PerCallTimeout)
		id, err := m.container.Create(callCtx, groupName, a.RunPlan.WorkerImageRef, env, a.RunPlan.WorkerResources.CPUCores, a.RunPlan.WorkerResources.MemoryGiB)
		cancel()
		if err == nil {
			return id, nil
		}

		lastErr = err
		apiErr, ok := err.(*api.Error)
		if !ok || !apiErr.Retryable() || attempt == len(backoffs) {
			return "", err
		}

		log.Infow("provider create throttled, retrying", "attempt", attempt+1, "err", err)
		select {
		case <-time.After(backoffs[attempt]):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return "", lastErr
}

// waitForRunning polls (or is cancelled) until the provider reports the
// group running, or provision_timeout elapses.
func (m *Manager) waitForRunning(ctx context.Context, providerID string, log *rpc.OutputWriter) bool {
	deadline := time.Now().Add(m.cfg.ProvisionTimeout)
	interval := m.cfg.PollMinInterval

	for {
		if ctx.Err() != nil {
			return false
		}
		if time.Now().After(deadline) {
			log.Warnw("provision timeout exceeded", "provider_id", providerID)
			return false
		}

		callCtx, cancel := context.WithTimeout(ctx, m.cfg.PerCallTimeout)
		status, err := m.container.Status(callCtx, providerID)
		cancel()
		if err == nil {
			if status.State == api.ContainerStateRunning {
				return true
			}
			if status.State == api.ContainerStateTerminated {
				// Terminated before ever running: treat as failed-to-start.
				return false
			}
		} else {
			log.Debugw("status poll error while waiting to run", "err", err)
		}

		select {
		case <-time.After(interval):
		case <-ctx.Done():
			return false
		}
		interval = nextBackoff(interval, m.cfg.PollMaxInterval)
	}
}

type terminalResult struct {
	state    api.WorkerState
	exitCode *int
}

// waitForTerminal polls provider status until the group terminates; on exit
// code 0 it then polls for the worker's completion blob, and reports
// succeeded only once that blob exists. A non-zero exit code, the
// completion deadline, or cancellation forces a result earlier.
func (m *Manager) waitForTerminal(ctx context.Context, a api.WorkerAssignment, providerID string, log *rpc.OutputWriter) terminalResult {
	deadline := time.Now().Add(m.cfg.CompletionTimeout)
	interval := m.cfg.PollMinInterval
	namespace := a.RunPlan.BlobNamespace
	completionName := api.BlobName(a.RunPlan.RunID, fmt.Sprintf("completion_%d.txt", a.WorkerIndex))

	// terminatedCode is set once the provider reports the group terminated
	// with exit 0; from then on we stop polling provider status and keep
	// polling for the completion blob until it appears or the deadline
	// passes, instead of failing the worker the instant we see it.
	var terminatedCode *int

	for {
		if ctx.Err() != nil {
			return terminalResult{state: api.WorkerCancelled}
		}
		if time.Now().After(deadline) {
			log.Warnw("completion timeout exceeded", "provider_id", providerID)
			return terminalResult{state: api.WorkerFailed, exitCode: terminatedCode}
		}

		if terminatedCode == nil {
			callCtx, cancel := context.WithTimeout(ctx, m.cfg.PerCallTimeout)
			status, err := m.container.Status(callCtx, providerID)
			cancel()

			if err == nil && status.State == api.ContainerStateTerminated {
				code := 0
				if status.ExitCode != nil {
					code = *status.ExitCode
				}
				if code != 0 {
					return terminalResult{state: api.WorkerFailed, exitCode: &code}
				}
				terminatedCode = &code
			}
		}

		if terminatedCode != nil {
			blobCtx, bcancel := context.WithTimeout(ctx, m.cfg.PerCallTimeout)
			exists, _ := m.blob.Exists(blobCtx, namespace, completionName)
			bcancel()
			if exists {
				return terminalResult{state: api.WorkerSucceeded, exitCode: terminatedCode}
			}
		}

		select {
		case <-time.After(interval):
		case <-ctx.Done():
			return terminalResult{state: api.WorkerCancelled}
		}
		interval = nextBackoff(interval, m.cfg.PollMaxInterval)
	}
}

func (m *Manager) cancel(idx int) {
	m.setState(idx, func(h *api.WorkerHandle) {
		if !h.State.IsTerminal() {
			h.State = api.WorkerCancelled
		}
	})
}

// teardownAll marks every still non-terminal worker cancelled and deletes
// every group that has a provider ID, with up to 3 retries at 2/4/8s.
// Deletion failures are logged but never change the run outcome.
func (m *Manager) teardownAll(ow *rpc.OutputWriter) {
	m.mu.Lock()
	toDelete := make([]api.WorkerHandle, 0, len(m.handles))
	for _, h := range m.handles {
		if h.ProviderID != "" {
			toDelete = append(toDelete, *h)
		}
		if !h.State.IsTerminal() {
			h.State = api.WorkerCancelled
		}
	}
	m.mu.Unlock()

	if len(toDelete) == 0 {
		return
	}

	teardownCtx, cancel := context.WithTimeout(context.Background(), m.cfg.TeardownGrace)
	defer cancel()

	var wg sync.WaitGroup
	var mErr error
	var mu sync.Mutex

	for _, h := range toDelete {
		h := h
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := deleteWithRetry(teardownCtx, m.container, h.ProviderID); err != nil {
				mu.Lock()
				mErr = multierror.Append(mErr, fmt.Errorf("worker %d (provider %s): %w", h.WorkerIndex, h.ProviderID, err))
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if mErr != nil {
		ow.Warnw("some worker groups failed to delete during cleanup", "err", mErr)
	}
}

func deleteWithRetry(ctx context.Context, cc api.ContainerClient, providerID string) error {
	backoffs := []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second}
	var lastErr error
	for attempt := 0; attempt <= len(backoffs); attempt++ {
		if err := cc.Delete(ctx, providerID); err == nil {
			return nil
		} else {
			lastErr = err
		}
		if attempt == len(backoffs) {
			break
		}
		select {
		case <-time.After(backoffs[attempt]):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return lastErr
}

func nextBackoff(cur, max time.Duration) time.Duration {
	next := cur * 2
	if next > max {
		return max
	}
	return next
}

func buildWorkerEnv(a api.WorkerAssignment) map[string]string {
	env := map[string]string{
		"WORKER_INDEX":   fmt.Sprintf("%d", a.WorkerIndex),
		"WORKER_COUNT":   fmt.Sprintf("%d", a.WorkerCount),
		"TOTAL_VUS":      fmt.Sprintf("%d", a.RunPlan.TotalVUs),
		"VUS":            fmt.Sprintf("%d", a.VUsForWorker),
		"DURATION":       a.RunPlan.Duration.String(),
		"RUN_ID":         a.RunPlan.RunID,
		"TEST_TYPE":      string(a.RunPlan.TestKind),
		"TARGET_URL":     a.RunPlan.TargetURL,
		"BLOB_NAMESPACE": a.RunPlan.BlobNamespace,
	}
	for k, v := range a.RunPlan.EnvOverrides {
		env[k] = v
	}
	return env
}
