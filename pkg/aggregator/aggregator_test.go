package aggregator

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loadforge/loadforge/pkg/api"
	"github.com/loadforge/loadforge/pkg/blob"
	"github.com/loadforge/loadforge/pkg/rpc"
)

func ndjsonLine(t *testing.T, metric string, value float64) string {
	t.Helper()
	rec := map[string]interface{}{
		"kind":   "Point",
		"metric": metric,
		"data":   map[string]interface{}{"value": value},
	}
	b, err := json.Marshal(rec)
	require.NoError(t, err)
	return string(b)
}

func putSummary(t *testing.T, bc *blob.Memory, plan *api.RunPlan, workerIndex int, lines []string) {
	t.Helper()
	body := ""
	for _, l := range lines {
		body += l + "\n"
	}
	blobName := api.BlobName(plan.RunID, fmt.Sprintf("summary_%d.json", workerIndex))
	require.NoError(t, bc.Put(context.Background(), plan.BlobNamespace, blobName, []byte(body)))
}

func testPlan() *api.RunPlan {
	return &api.RunPlan{RunID: "run-agg", BlobNamespace: "ns"}
}

func TestAggregateMergesAcrossWorkers(t *testing.T) {
	bc := blob.NewMemory()
	plan := testPlan()

	putSummary(t, bc, plan, 0, []string{
		ndjsonLine(t, "request_duration_ms", 100),
		ndjsonLine(t, "request_duration_ms", 200),
	})
	putSummary(t, bc, plan, 1, []string{
		ndjsonLine(t, "request_duration_ms", 300),
	})

	handles := []api.WorkerHandle{
		{WorkerIndex: 0, State: api.WorkerSucceeded},
		{WorkerIndex: 1, State: api.WorkerSucceeded},
	}

	agg := New(bc)
	summary, blobName, err := agg.Aggregate(context.Background(), plan, handles, rpc.Discard())
	require.NoError(t, err)
	assert.Equal(t, "run-agg/aggregated_summary.json", blobName)

	stats, ok := summary.Metrics["request_duration_ms"]
	require.True(t, ok)
	assert.Equal(t, int64(3), stats.Count)
	assert.Equal(t, float64(600), stats.Sum)
	assert.Equal(t, float64(100), stats.Min)
	assert.Equal(t, float64(300), stats.Max)
	assert.Equal(t, 2, summary.Runtime.SuccessfulWorkers)
	assert.False(t, summary.Runtime.Partial)
}

func TestAccumulatorMergeIsOrderIndependent(t *testing.T) {
	fresh := func() *accumulator { return newAccumulator() }

	build := func(order []float64) *accumulator {
		per := make([]*accumulator, len(order))
		for i, v := range order {
			per[i] = fresh()
			per[i].observe(v)
			per[i].observe(v + 1)
		}
		merged := fresh()
		for _, acc := range per {
			merged.mergeFrom(acc)
		}
		return merged
	}

	values := []float64{10, 20, 30, 40}
	ascending := build(values)
	descending := build([]float64{40, 30, 20, 10})
	shuffled := build([]float64{30, 10, 40, 20})

	for _, other := range []*accumulator{descending, shuffled} {
		assert.Equal(t, ascending.count, other.count)
		assert.Equal(t, ascending.sum, other.sum)
		assert.Equal(t, ascending.min, other.min)
		assert.Equal(t, ascending.max, other.max)
		assert.InDelta(t, ascending.mean, other.mean, 1e-9)
	}
}

func TestAggregateMarksMissingWorkerAsPartial(t *testing.T) {
	bc := blob.NewMemory()
	plan := testPlan()

	putSummary(t, bc, plan, 0, []string{
		ndjsonLine(t, "request_duration_ms", 100),
	})
	// worker 1 never uploaded a summary

	handles := []api.WorkerHandle{
		{WorkerIndex: 0, State: api.WorkerSucceeded},
		{WorkerIndex: 1, State: api.WorkerFailedToStart},
	}

	agg := New(bc)
	summary, _, err := agg.Aggregate(context.Background(), plan, handles, rpc.Discard())
	require.NoError(t, err)

	assert.True(t, summary.Runtime.Partial)
	assert.Equal(t, 1, summary.Runtime.SuccessfulWorkers)
	assert.Equal(t, 2, summary.Runtime.WorkerCount)

	var missingFound bool
	for _, w := range summary.Runtime.Workers {
		if w.Index == 1 {
			assert.Equal(t, "missing", w.Status)
			missingFound = true
		}
	}
	assert.True(t, missingFound)
}

func TestAggregateToleratesMalformedLines(t *testing.T) {
	bc := blob.NewMemory()
	plan := testPlan()

	lines := []string{
		ndjsonLine(t, "request_duration_ms", 50),
		"{not valid json",
		ndjsonLine(t, "request_duration_ms", 150),
	}
	putSummary(t, bc, plan, 0, lines)

	handles := []api.WorkerHandle{{WorkerIndex: 0, State: api.WorkerSucceeded}}

	agg := New(bc)
	summary, _, err := agg.Aggregate(context.Background(), plan, handles, rpc.Discard())
	require.NoError(t, err)

	stats := summary.Metrics["request_duration_ms"]
	require.NotNil(t, stats)
	assert.Equal(t, int64(2), stats.Count)
}

func TestAggregateUploadsCanonicalSummary(t *testing.T) {
	bc := blob.NewMemory()
	plan := testPlan()
	putSummary(t, bc, plan, 0, []string{ndjsonLine(t, "request_duration_ms", 42)})

	handles := []api.WorkerHandle{{WorkerIndex: 0, State: api.WorkerSucceeded}}

	agg := New(bc)
	_, blobName, err := agg.Aggregate(context.Background(), plan, handles, rpc.Discard())
	require.NoError(t, err)

	exists, err := bc.Exists(context.Background(), plan.BlobNamespace, blobName)
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestParseCompletionExtractsTrailingRecord(t *testing.T) {
	completion := map[string]interface{}{
		"kind":                 "Completion",
		"worker_index":         2,
		"vus_used":             5,
		"iterations_completed": 100,
		"wall_clock_ms":        1234,
		"exit_code":            0,
	}
	b, err := json.Marshal(completion)
	require.NoError(t, err)

	data := []byte(ndjsonLine(t, "request_duration_ms", 1) + "\n" + string(b) + "\n")

	c, ok := ParseCompletion(data)
	require.True(t, ok)
	assert.Equal(t, 2, c.WorkerIndex)
	assert.Equal(t, 0, c.ExitCode)
}

func TestParseCompletionReturnsFalseWithoutCompletionRecord(t *testing.T) {
	data := []byte(ndjsonLine(t, "request_duration_ms", 1) + "\n")
	_, ok := ParseCompletion(data)
	assert.False(t, ok)
}
