package qnetsim

// rng.go holds the random number plumbing of the simulator.  Every Network
// owns its own rngstream.RngStream, so independent runs draw from
// independent streams and never share generator state.

import (
	"fmt"
	"math"
	"sync"

	"github.com/iti/rngstream"
	"golang.org/x/exp/rand"
)

// Rand is the source of U01 samples the protocol draws from.
// *rngstream.RngStream satisfies it.
type Rand interface {
	RandU01() float64
}

// rngstream hands out successive streams from package state, so
// creation is serialized across concurrently running simulations
var rngMutex sync.Mutex

// newRngStream is a constructor for a named, independent stream
func newRngStream(name string) *rngstream.RngStream {
	rngMutex.Lock()
	defer rngMutex.Unlock()
	return rngstream.New(name)
}

// batchSeed is the initial seed of every batch, the rngstream default
var batchSeed = []uint64{12345, 12345, 12345, 12345, 12345, 12345}

// runStreams creates the streams of count consecutive runs of a batch, the first being
// run first.  Run r draws from substream r of a stream started at batchSeed, so a run
// draws from the same sequence whichever process executes it and whatever streams that
// process created before.
func runStreams(name string, first, count int) []Rand {
	rngMutex.Lock()
	defer rngMutex.Unlock()
	streams := make([]Rand, count)
	for idx := range streams {
		rs := rngstream.New(fmt.Sprintf("%s-run-%d", name, first+idx))
		rs.SetSeed(batchSeed)
		for sub := 0; sub < first+idx; sub++ {
			rs.ResetNextSubstream()
		}
		streams[idx] = rs
	}
	return streams
}

// uniform returns a sample uniformly distributed over [low, high)
func uniform(rng Rand, low, high float64) float64 {
	return low + (high-low)*rng.RandU01()
}

// randIndex returns an integer uniformly distributed over [0, n)
func randIndex(rng Rand, n int) int {
	idx := int(rng.RandU01() * float64(n))

	// guard the (theoretical) u01 == 1.0 case
	if idx >= n {
		idx = n - 1
	}
	return idx
}

// sampleWithoutReplacement selects k distinct elements of pool, in draw order
func sampleWithoutReplacement(rng Rand, pool []int, k int) []int {
	if k > len(pool) {
		k = len(pool)
	}
	remaining := make([]int, len(pool))
	copy(remaining, pool)

	picked := make([]int, 0, k)
	for len(picked) < k {
		idx := randIndex(rng, len(remaining))
		picked = append(picked, remaining[idx])
		remaining = append(remaining[:idx], remaining[idx+1:]...)
	}
	return picked
}

// expSource adapts a Rand to the rand.Source the gonum graph generators consume
type expSource struct {
	rng Rand
}

func (es *expSource) Uint64() uint64 {
	hi := uint64(es.rng.RandU01() * (1 << 32))
	lo := uint64(es.rng.RandU01() * (1 << 32))
	return hi<<32 | lo
}

// Seed is a no-op, the stream carries its own seed
func (es *expSource) Seed(seed uint64) {}

var _ rand.Source = (*expSource)(nil)

var rdigits uint = 12

// roundFloat rounds computed rates to avoid reporting artifacts of
// floating point error
func roundFloat(val float64, precision uint) float64 {
	ratio := math.Pow(10, float64(precision))
	return math.Round(val*ratio) / ratio
}
