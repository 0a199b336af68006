package distribute

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loadforge/loadforge/pkg/api"
)

func planWith(totalVUs, perWorkerVUs int) *api.RunPlan {
	return &api.RunPlan{RunID: "r1", TotalVUs: totalVUs, PerWorkerVUs: perWorkerVUs}
}

func TestDistributeSumInvariant(t *testing.T) {
	cases := []struct{ total, per int }{
		{10, 5}, {3, 1}, {5, 2}, {1, 1}, {100, 7}, {7, 100},
	}
	for _, c := range cases {
		assignments, err := Distribute(planWith(c.total, c.per))
		require.NoError(t, err)

		sum := 0
		for _, a := range assignments {
			sum += a.VUsForWorker
			assert.GreaterOrEqual(t, a.VUsForWorker, 1)
		}
		assert.Equal(t, c.total, sum, "total=%d per=%d", c.total, c.per)
	}
}

func TestDistributeSingleWorker(t *testing.T) {
	assignments, err := Distribute(planWith(1, 1))
	require.NoError(t, err)
	require.Len(t, assignments, 1)
	assert.Equal(t, 1, assignments[0].VUsForWorker)
}

func TestDistributeExactMultiple(t *testing.T) {
	assignments, err := Distribute(planWith(10, 10))
	require.NoError(t, err)
	require.Len(t, assignments, 1)
	assert.Equal(t, 10, assignments[0].VUsForWorker)
}

func TestDistributeRemainderWorker(t *testing.T) {
	assignments, err := Distribute(planWith(11, 10))
	require.NoError(t, err)
	require.Len(t, assignments, 2)
	assert.Equal(t, 10, assignments[0].VUsForWorker)
	assert.Equal(t, 1, assignments[1].VUsForWorker)
}

func TestDistributeFiveTwo(t *testing.T) {
	assignments, err := Distribute(planWith(5, 2))
	require.NoError(t, err)
	require.Len(t, assignments, 3)
	assert.Equal(t, []int{2, 2, 1}, []int{
		assignments[0].VUsForWorker,
		assignments[1].VUsForWorker,
		assignments[2].VUsForWorker,
	})
}

func TestDistributeMonotoneIndexing(t *testing.T) {
	assignments, err := Distribute(planWith(37, 4))
	require.NoError(t, err)
	for i, a := range assignments {
		assert.Equal(t, i, a.WorkerIndex)
		assert.Equal(t, len(assignments), a.WorkerCount)
	}
}

func TestDistributeRejectsNonPositive(t *testing.T) {
	_, err := Distribute(planWith(0, 5))
	require.Error(t, err)
	var apiErr *api.Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, api.ErrInvalidDistribution, apiErr.Code)

	_, err = Distribute(planWith(5, 0))
	require.Error(t, err)

	_, err = Distribute(planWith(-1, 5))
	require.Error(t, err)
}
