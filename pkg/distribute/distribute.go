// Package distribute implements the pure function that partitions a plan's
// total virtual-user count across a worker fleet.
package distribute

import (
	"github.com/loadforge/loadforge/pkg/api"
)

// Distribute computes worker_count = ceil(totalVUs / perWorkerVUs) and
// returns one WorkerAssignment per worker, such that every assignment has
// at least one VU and the assignments sum exactly to totalVUs. The first
// worker_count-1 assignments get perWorkerVUs each; the last absorbs the
// remainder.
func Distribute(plan *api.RunPlan) ([]api.WorkerAssignment, error) {
	totalVUs, perWorkerVUs := plan.TotalVUs, plan.PerWorkerVUs

	if totalVUs <= 0 || perWorkerVUs <= 0 {
		return nil, &api.Error{
			Code:    api.ErrInvalidDistribution,
			Message: "total_vus and per_worker_vus must both be positive",
		}
	}

	workerCount := ceilDiv(totalVUs, perWorkerVUs)

	assignments := make([]api.WorkerAssignment, workerCount)
	remaining := totalVUs
	for i := 0; i < workerCount; i++ {
		vus := perWorkerVUs
		if i == workerCount-1 {
			vus = remaining
		}
		assignments[i] = api.WorkerAssignment{
			WorkerIndex:  i,
			WorkerCount:  workerCount,
			VUsForWorker: vus,
			RunPlan:      plan,
		}
		remaining -= vus
	}

	return assignments, nil
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}
