// Package api defines the data model and capability interfaces shared by
// every component of the orchestrator: the compiled plan, the per-worker
// assignment and handle, the blob naming scheme, the raw and aggregated
// metric shapes, and the outcome returned to callers of Orchestrator.Run.
package api

import "time"

// TestKind distinguishes the two supported workloads.
type TestKind string

const (
	TestKindProtocol TestKind = "protocol"
	TestKindBrowser  TestKind = "browser"
)

// WorkerResources is the compute shape requested for every worker in a run.
type WorkerResources struct {
	CPUCores  float64 `json:"cpu_cores" validate:"gt=0"`
	MemoryGiB float64 `json:"memory_gib" validate:"gt=0"`
}

// RunPlan is the compiled, validated test plan. It is immutable once
// produced by the Plan Compiler.
type RunPlan struct {
	RunID           string            `json:"run_id"`
	TargetURL       string            `json:"target_url"`
	TestKind        TestKind          `json:"test_kind"`
	TotalVUs        int               `json:"total_vus"`
	Duration        time.Duration     `json:"duration"`
	PerWorkerVUs    int               `json:"per_worker_vus"`
	WorkerResources WorkerResources   `json:"worker_resources"`
	WorkerImageRef  string            `json:"worker_image_ref"`
	BlobNamespace   string            `json:"blob_namespace"`
	EnvOverrides    map[string]string `json:"env_overrides,omitempty"`
}

// WorkerAssignment is one worker's slice of a RunPlan's total VU count.
type WorkerAssignment struct {
	WorkerIndex  int
	WorkerCount  int
	VUsForWorker int
	RunPlan      *RunPlan
}

// WorkerState is a terminal or non-terminal state in the per-worker
// lifecycle state machine. Represented as a tagged variant rather than a
// bare string so exhaustive handling is a compile-time concern; String
// gives the stable wire tag.
type WorkerState int

const (
	WorkerPending WorkerState = iota
	WorkerProvisioning
	WorkerRunning
	WorkerSucceeded
	WorkerFailed
	WorkerFailedToStart
	WorkerCancelled
)

func (s WorkerState) String() string {
	switch s {
	case WorkerPending:
		return "pending"
	case WorkerProvisioning:
		return "provisioning"
	case WorkerRunning:
		return "running"
	case WorkerSucceeded:
		return "succeeded"
	case WorkerFailed:
		return "failed"
	case WorkerFailedToStart:
		return "failed_to_start"
	case WorkerCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// MarshalJSON serializes a WorkerState to its stable string tag.
func (s WorkerState) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

// IsTerminal reports whether s is one of the four terminal states.
func (s WorkerState) IsTerminal() bool {
	switch s {
	case WorkerSucceeded, WorkerFailed, WorkerFailedToStart, WorkerCancelled:
		return true
	default:
		return false
	}
}

// WorkerHandle is the opaque provider-assigned identifier for a provisioned
// container group, plus its observed lifecycle state. Only the Container
// Manager mutates a WorkerHandle; every other component treats it as
// read-only.
type WorkerHandle struct {
	WorkerIndex  int
	ProviderID   string
	State        WorkerState
	CreatedAt    time.Time
	LastObserved time.Time
	ExitCode     *int
}

// BlobName formats the "<run_id>/<object-name>" key used across the blob
// namespace.
func BlobName(runID, objectName string) string {
	return runID + "/" + objectName
}

// RawSample is a single timing record emitted by a worker, as decoded from
// one NDJSON "Point" line of a worker summary.
type RawSample struct {
	TSMillis   int64             `json:"ts_ms"`
	MetricName string            `json:"metric_name"`
	Value      float64           `json:"value"`
	Tags       map[string]string `json:"tags,omitempty"`
}

// WorkerCompletion is the trailing record of a worker summary.
type WorkerCompletion struct {
	WorkerIndex         int   `json:"worker_index"`
	VUsUsed             int   `json:"vus_used"`
	IterationsCompleted int64 `json:"iterations_completed"`
	WallClockMillis     int64 `json:"wall_clock_ms"`
	ExitCode            int   `json:"exit_code"`
}

// Percentiles holds the fixed set of percentiles the analyzer reports.
type Percentiles struct {
	P50 float64 `json:"p50"`
	P75 float64 `json:"p75"`
	P90 float64 `json:"p90"`
	P95 float64 `json:"p95"`
	P99 float64 `json:"p99"`
}

// SeriesStats is the merged, streaming-computed statistics for one metric
// across all workers.
type SeriesStats struct {
	Count            int64       `json:"count"`
	Sum              float64     `json:"sum"`
	Min              float64     `json:"min"`
	Max              float64     `json:"max"`
	Mean             float64     `json:"mean"`
	Percentiles      Percentiles `json:"percentiles"`
	SamplesPreserved int         `json:"samples_preserved"`
}

// WorkerManifestEntry records how one worker's result contributed (or
// failed to contribute) to the CanonicalSummary.
type WorkerManifestEntry struct {
	Index       int       `json:"index"`
	Status      string    `json:"status"`
	SummaryBlob string    `json:"summary_blob"`
	SizeBytes   int64     `json:"size_bytes"`
	SampleCount int64     `json:"sample_count"`
	StartedAt   time.Time `json:"started_at,omitempty"`
	EndedAt     time.Time `json:"ended_at,omitempty"`
}

// RunManifest describes the provenance of a CanonicalSummary.
type RunManifest struct {
	RunID             string                `json:"run_id"`
	Workers           []WorkerManifestEntry `json:"workers"`
	Partial           bool                  `json:"partial"`
	SuccessfulWorkers int                   `json:"successful_workers"`
	WorkerCount       int                   `json:"worker_count"`
}

// CanonicalSummary is the cross-worker merge of every per-metric accumulator.
type CanonicalSummary struct {
	Metrics map[string]*SeriesStats `json:"metrics"`
	Runtime RunManifest             `json:"manifest"`
}

// Severity is the importance tag attached to a Finding.
type Severity string

const (
	SeverityHigh   Severity = "high"
	SeverityMedium Severity = "medium"
	SeverityLow    Severity = "low"
)

// Finding is one deterministic observation produced by the Metrics Analyzer.
type Finding struct {
	Severity           Severity `json:"severity"`
	Category            string   `json:"category"`
	Title               string   `json:"title"`
	Detail              string   `json:"detail"`
	SupportingMetrics   []string `json:"supporting_metrics,omitempty"`
	RecommendedAction   string   `json:"recommended_action"`
}

// Grade is the letter grade band assigned to a PerformanceReport.
type Grade string

const (
	GradeA Grade = "A"
	GradeB Grade = "B"
	GradeC Grade = "C"
	GradeD Grade = "D"
	GradeF Grade = "F"
)

// PhaseBreakdown is the mean-time attribution across request phases.
type PhaseBreakdown struct {
	BlockedMs     float64 `json:"blocked_ms"`
	ConnectingMs  float64 `json:"connecting_ms"`
	TLSMs         float64 `json:"tls_handshaking_ms"`
	SendingMs     float64 `json:"sending_ms"`
	WaitingMs     float64 `json:"waiting_ms"`
	ReceivingMs   float64 `json:"receiving_ms"`
}

// ResourceBreakdown summarizes request/response payload sizes.
type ResourceBreakdown struct {
	DataSentBytes     float64 `json:"data_sent_bytes"`
	DataReceivedBytes float64 `json:"data_received_bytes"`
	RequestsPerVU     float64 `json:"requests_per_vu"`
}

// PerformanceReport is the final analysis product.
type PerformanceReport struct {
	Grade             Grade             `json:"grade"`
	Score             int               `json:"score"`
	CanonicalSummary  *CanonicalSummary `json:"canonical_summary"`
	Findings          []Finding         `json:"findings"`
	TimingsBreakdown  PhaseBreakdown    `json:"timings_breakdown"`
	ResourceBreakdown ResourceBreakdown `json:"resource_breakdown"`
}

// RunOutcome is the single return value of Orchestrator.Run.
type RunOutcome struct {
	RunID                  string                  `json:"run_id"`
	TerminalWorkerStates   []WorkerHandle          `json:"terminal_worker_states"`
	CanonicalSummaryBlob   string                  `json:"canonical_summary_location"`
	Report                 *PerformanceReport      `json:"report"`
	OrchestratorError      error                   `json:"-"`
	OrchestratorErrorText  string                  `json:"orchestrator_error,omitempty"`
}

// Status is the overall run-level result, derived from how many workers
// succeeded.
type Status string

const (
	StatusOK       Status = "ok"
	StatusDegraded Status = "degraded"
	StatusFailed   Status = "failed"
	StatusCancelled Status = "cancelled"
)

// ExitCode maps a Status to the orchestrator process exit code; any other
// value maps to 6. It has no code for an invalid plan.
func (s Status) ExitCode() int {
	switch s {
	case StatusOK:
		return 0
	case StatusDegraded:
		return 2
	case StatusFailed:
		return 3
	case StatusCancelled:
		return 4
	default:
		return 6
	}
}
