package aggregator

import (
	"math"
	"sort"

	"github.com/loadforge/loadforge/pkg/api"
)

// accumulator is the per-metric streaming state maintained while decoding
// worker summaries: running count/sum/min/max/mean via Welford's algorithm,
// plus a bounded reservoir for percentile estimation.
type accumulator struct {
	count int64
	mean  float64
	m2    float64 // Welford's running sum of squared deviations; unused beyond mean here but kept for future variance reporting.
	sum   float64
	min   float64
	max   float64
	res   *reservoir
}

func newAccumulator() *accumulator {
	return &accumulator{
		min: math.Inf(1),
		max: math.Inf(-1),
		res: newReservoir(),
	}
}

// observe folds one sample into the accumulator.
func (a *accumulator) observe(v float64) {
	a.count++
	delta := v - a.mean
	a.mean += delta / float64(a.count)
	delta2 := v - a.mean
	a.m2 += delta * delta2

	a.sum += v
	if v < a.min {
		a.min = v
	}
	if v > a.max {
		a.max = v
	}
	a.res.add(v)
}

// mergeFrom additively combines another worker's accumulator into a. The
// merge is strictly additive: count, sum, min, max, and mean are exact
// under any merge order.
func (a *accumulator) mergeFrom(other *accumulator) {
	if other.count == 0 {
		return
	}
	if a.count == 0 {
		*a = accumulator{
			count: other.count,
			mean:  other.mean,
			m2:    other.m2,
			sum:   other.sum,
			min:   other.min,
			max:   other.max,
			res:   other.res,
		}
		return
	}

	totalCount := a.count + other.count
	delta := other.mean - a.mean
	newMean := a.mean + delta*float64(other.count)/float64(totalCount)
	newM2 := a.m2 + other.m2 + delta*delta*float64(a.count)*float64(other.count)/float64(totalCount)

	a.count = totalCount
	a.mean = newMean
	a.m2 = newM2
	a.sum += other.sum
	if other.min < a.min {
		a.min = other.min
	}
	if other.max > a.max {
		a.max = other.max
	}
	a.res.merge(other.res)
}

// seriesStats computes the final api.SeriesStats snapshot, sorting the
// reservoir once to derive percentiles.
func (a *accumulator) seriesStats() *api.SeriesStats {
	if a.count == 0 {
		return &api.SeriesStats{}
	}

	sorted := append([]float64(nil), a.res.samples...)
	sort.Float64s(sorted)

	return &api.SeriesStats{
		Count: a.count,
		Sum:   a.sum,
		Min:   a.min,
		Max:   a.max,
		Mean:  a.mean,
		Percentiles: api.Percentiles{
			P50: percentile(sorted, 0.50),
			P75: percentile(sorted, 0.75),
			P90: percentile(sorted, 0.90),
			P95: percentile(sorted, 0.95),
			P99: percentile(sorted, 0.99),
		},
		SamplesPreserved: len(sorted),
	}
}

// percentile linearly interpolates between the two closest ranks of the
// sorted reservoir.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if len(sorted) == 1 {
		return sorted[0]
	}
	rank := p * float64(len(sorted)-1)
	lo := int(rank)
	hi := lo + 1
	if hi >= len(sorted) {
		return sorted[len(sorted)-1]
	}
	frac := rank - float64(lo)
	return sorted[lo] + frac*(sorted[hi]-sorted[lo])
}
