package aggregator

import (
	"math"
	"math/rand"
	"sort"
)

// reservoirSize bounds the sample size kept for percentile estimation.
const reservoirSize = 10000

// reservoir is an Algorithm-R reservoir sample, used to estimate
// percentiles over an unbounded stream in O(reservoirSize) memory.
type reservoir struct {
	samples []float64
	seen    int64
	rng     *rand.Rand
}

func newReservoir() *reservoir {
	return &reservoir{
		samples: make([]float64, 0, reservoirSize),
		rng:     rand.New(rand.NewSource(1)),
	}
}

func (r *reservoir) add(v float64) {
	r.seen++
	if len(r.samples) < reservoirSize {
		r.samples = append(r.samples, v)
		return
	}
	j := r.rng.Int63n(r.seen)
	if j < reservoirSize {
		r.samples[j] = v
	}
}

// weightedKey is an Efraimidis-Spirakis priority used to merge two
// independently-drawn reservoirs into one uniform sample of the combined
// stream without replaying either stream from scratch.
type weightedKey struct {
	value float64
	key   float64
}

// merge combines other into r, producing a reservoir that is (to the
// Efraimidis-Spirakis approximation) a uniform sample of the union of the
// two underlying streams, weighted by how many elements each stream's
// surviving samples represent. Because workers are independent generators
// against the same target, this is the only merge step accumulators need.
func (r *reservoir) merge(other *reservoir) {
	if other.seen == 0 {
		return
	}
	if r.seen == 0 {
		r.samples = append([]float64(nil), other.samples...)
		r.seen = other.seen
		return
	}

	candidates := make([]weightedKey, 0, len(r.samples)+len(other.samples))
	candidates = append(candidates, keyedSamples(r.samples, r.seen, r.rng)...)
	candidates = append(candidates, keyedSamples(other.samples, other.seen, other.rng)...)

	sort.Slice(candidates, func(i, j int) bool { return candidates[i].key > candidates[j].key })

	n := reservoirSize
	if n > len(candidates) {
		n = len(candidates)
	}
	merged := make([]float64, n)
	for i := 0; i < n; i++ {
		merged[i] = candidates[i].value
	}

	r.samples = merged
	r.seen += other.seen
}

// keyedSamples assigns each sample an Efraimidis-Spirakis key
// u^(1/weight), where weight is how many stream elements that one sample
// represents (seen/len(samples), since a reservoir of size k drawn
// uniformly from n elements gives each surviving sample weight n/k).
func keyedSamples(samples []float64, seen int64, rng *rand.Rand) []weightedKey {
	if len(samples) == 0 {
		return nil
	}
	weight := float64(seen) / float64(len(samples))
	out := make([]weightedKey, len(samples))
	for i, v := range samples {
		u := rng.Float64()
		if u <= 0 {
			u = math.SmallestNonzeroFloat64
		}
		out[i] = weightedKey{value: v, key: math.Pow(u, 1/weight)}
	}
	return out
}
