package churn

import (
	"math/rand/v2"
	"time"
)

// NewRand returns the random source for worker id. A zero seed selects a
// time-based seed. Workers with the same non-zero seed and id draw the same
// sequence.
func NewRand(seed uint64, id int) *rand.Rand {
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return rand.New(rand.NewPCG(seed, uint64(id)))
}

// uniformDuration draws a duration uniformly from [lo, hi].
func uniformDuration(rng *rand.Rand, lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return lo
	}
	return lo + time.Duration(rng.Float64()*float64(hi-lo))
}

// uniformInt draws an integer uniformly from [1, n]. n must be positive.
func uniformInt(rng *rand.Rand, n int) int {
	return rng.IntN(n) + 1
}
