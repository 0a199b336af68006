// Package aggregator pulls each worker's result object from the Blob
// Client, streams its NDJSON records into per-metric accumulators, merges
// them into a single CanonicalSummary, and uploads that summary plus a
// RunManifest.
package aggregator

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/loadforge/loadforge/pkg/api"
	"github.com/loadforge/loadforge/pkg/rpc"
)

// recordKind mirrors the "kind" discriminator of a worker summary's NDJSON
// line format. Unrecognized metric names are still folded into an
// accumulator — only the analyzer is selective about which metrics it
// interprets.
type recordKind string

const (
	kindPoint      recordKind = "Point"
	kindMetric     recordKind = "Metric"
	kindCompletion recordKind = "Completion"
)

type rawRecord struct {
	Kind   recordKind `json:"kind"`
	Metric string     `json:"metric"`
	Data   *pointData `json:"data,omitempty"`
}

type pointData struct {
	Time  string            `json:"time"`
	Value float64           `json:"value"`
	Tags  map[string]string `json:"tags,omitempty"`
}

// Aggregator drives the merge for one run.
type Aggregator struct {
	blob api.BlobClient
}

// New builds an Aggregator over the given Blob Client.
func New(blobClient api.BlobClient) *Aggregator {
	return &Aggregator{blob: blobClient}
}

// Aggregate implements steps 1-5: it fetches every eligible
// worker's summary object, parses it streaming, feeds Point records into
// per-metric accumulators, and returns the merged CanonicalSummary plus the
// blob name it was (or would be) uploaded under. It uploads the summary
// itself; callers that need the RunOutcome's orchestrator_error semantics
// on upload failure should inspect the returned error's api.ErrorCode.
func (a *Aggregator) Aggregate(ctx context.Context, plan *api.RunPlan, handles []api.WorkerHandle, ow *rpc.OutputWriter) (*api.CanonicalSummary, string, error) {
	log := ow.With("component", "result_aggregator")

	// Ascending worker_index, for deterministic merge order.
	sorted := append([]api.WorkerHandle(nil), handles...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].WorkerIndex < sorted[j].WorkerIndex })

	accumulators := make(map[string]*accumulator)
	manifest := api.RunManifest{RunID: plan.RunID, WorkerCount: len(sorted)}

	for _, h := range sorted {
		entry := api.WorkerManifestEntry{Index: h.WorkerIndex}

		eligible := h.State == api.WorkerSucceeded || h.State == api.WorkerFailed
		if !eligible {
			entry.Status = "missing"
			manifest.Workers = append(manifest.Workers, entry)
			continue
		}

		name := fmt.Sprintf("summary_%d.json", h.WorkerIndex)
		blobName := api.BlobName(plan.RunID, name)
		entry.SummaryBlob = blobName

		data, err := a.blob.Get(ctx, plan.BlobNamespace, blobName)
		if err != nil {
			if api.CodeOf(err) == api.ErrBlobNotFound {
				entry.Status = "missing"
				manifest.Workers = append(manifest.Workers, entry)
				continue
			}
			return nil, "", api.NewError(api.ErrAggregatorFatal, "blob store unreachable while fetching "+blobName, err)
		}

		entry.SizeBytes = int64(len(data))
		workerAccumulators := make(map[string]*accumulator)
		count, malformed := parseInto(data, workerAccumulators)
		entry.SampleCount = count
		entry.Status = "ok"
		if malformed > 0 {
			log.Warnw("worker summary had malformed lines", "worker_index", h.WorkerIndex, "malformed_lines", malformed)
		}
		mergeAccumulators(accumulators, workerAccumulators)
		manifest.Workers = append(manifest.Workers, entry)
		manifest.SuccessfulWorkers++
	}

	manifest.Partial = manifest.SuccessfulWorkers < manifest.WorkerCount

	metrics := make(map[string]*api.SeriesStats, len(accumulators))
	for name, acc := range accumulators {
		metrics[name] = acc.seriesStats()
	}

	summary := &api.CanonicalSummary{Metrics: metrics, Runtime: manifest}

	summaryBlob := api.BlobName(plan.RunID, "aggregated_summary.json")
	encoded, err := json.Marshal(summary)
	if err != nil {
		return summary, summaryBlob, api.NewError(api.ErrAggregatorFatal, "could not encode canonical summary", err)
	}
	if err := a.blob.Put(ctx, plan.BlobNamespace, summaryBlob, encoded); err != nil {
		return summary, summaryBlob, api.NewError(api.ErrBlobUnavailable, "could not upload canonical summary", err)
	}

	manifestBlob := api.BlobName(plan.RunID, "manifest.json")
	manifestEncoded, err := json.Marshal(manifest)
	if err == nil {
		_ = a.blob.Put(ctx, plan.BlobNamespace, manifestBlob, manifestEncoded)
	}

	return summary, summaryBlob, nil
}

// mergeAccumulators folds src's per-metric accumulators into dst, one
// worker's contribution at a time. Each worker's own accumulator is built
// independently in parseInto, so this is where cross-worker commutativity
// actually gets exercised: dst ends up the same regardless of the order
// workers are merged in.
func mergeAccumulators(dst, src map[string]*accumulator) {
	for name, acc := range src {
		existing, ok := dst[name]
		if !ok {
			dst[name] = acc
			continue
		}
		existing.mergeFrom(acc)
	}
}

// parseInto streams NDJSON lines from data, folding every well-formed
// Point record with a value into the right accumulator. Malformed lines
// are counted and skipped; it returns the number of Point samples
// successfully folded in and the count of malformed lines.
func parseInto(data []byte, accumulators map[string]*accumulator) (sampleCount int64, malformed int) {
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var rec rawRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			malformed++
			continue
		}

		if rec.Kind != kindPoint || rec.Data == nil {
			continue
		}

		acc, ok := accumulators[rec.Metric]
		if !ok {
			acc = newAccumulator()
			accumulators[rec.Metric] = acc
		}
		acc.observe(rec.Data.Value)
		sampleCount++
	}

	return sampleCount, malformed
}

// ParseCompletion extracts the trailing Completion record from a worker
// summary, if present. It is exposed for callers (e.g. the Container
// Manager's completion-blob check) that need the worker's self-reported
// exit code without re-running the full aggregation pass.
func ParseCompletion(data []byte) (*api.WorkerCompletion, bool) {
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	var last []byte
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) > 0 {
			last = append([]byte(nil), line...)
		}
	}
	if last == nil {
		return nil, false
	}

	var rec struct {
		Kind recordKind `json:"kind"`
		api.WorkerCompletion
	}
	if err := json.Unmarshal(last, &rec); err != nil || rec.Kind != kindCompletion {
		return nil, false
	}
	return &rec.WorkerCompletion, true
}
