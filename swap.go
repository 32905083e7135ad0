package qnetsim

// swap.go holds the entanglement swapping protocol.  Swapping walks a route from its
// Alice end, consuming the pairs of two adjacent hops to produce a virtual pair that
// spans both, until the route collapses to its Alice end.

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// SwapResult is the outcome of swapping along a route
type SwapResult int

const (
	// SwapImpossible means a hop lacks a channel or pairs; not retryable
	SwapImpossible SwapResult = -1
	// SwapFailed means a swap failed after consuming its pairs; retryable
	SwapFailed SwapResult = 0
	// SwapSucceeded means end to end entanglement is established
	SwapSucceeded SwapResult = 1
)

var swapResultToStr map[SwapResult]string = map[SwapResult]string{
	SwapImpossible: "impossible",
	SwapFailed:     "failed",
	SwapSucceeded:  "success",
}

func (sr SwapResult) String() string {
	return swapResultToStr[sr]
}

// swapSuccessProbability is the chance that swapping pairs of fidelities f1 and f2 succeeds
func swapSuccessProbability(f1, f2 float64) float64 {
	return f1*f2 + (1-f1)*(1-f2)
}

// swappedFidelity is the fidelity of the pair a successful swap produces
func swappedFidelity(f1, f2 float64) float64 {
	return (f1 * f2) / (f1*f2 + (1-f1)*(1-f2))
}

// hostFactor is the multiplier a route node contributes, neutral for nodes without a host
func (nl *NetworkLayer) hostFactor(id, alice int) float64 {
	host := nl.net.Host(id)
	if host == nil {
		return 1.0
	}
	return host.EffectiveSwapProbability(alice)
}

// firstPair returns the oldest pair of the edge a-b
func (nl *NetworkLayer) firstPair(a, b int) (*EntangledPair, error) {
	pairs, err := nl.net.PairsOnEdge(a, b)
	if err != nil {
		return nil, err
	}
	if len(pairs) == 0 {
		return nil, fmt.Errorf("edge %d-%d: %w", a, b, ErrNoPairsAvailable)
	}
	return pairs[0], nil
}

// consume takes the swapped pairs out of their channels and counts them as used
func (nl *NetworkLayer) consume(n1, n2, n3 int, pair1, pair2 *EntangledPair) error {
	if err := nl.net.removeSpecificPair(n1, n2, pair1); err != nil {
		return err
	}
	if err := nl.net.removeSpecificPair(n2, n3, pair2); err != nil {
		return err
	}
	nl.usedPairs += 2
	return nil
}

// Swap runs entanglement swapping along the route, whose first node is Alice.  Each
// step advances the timeslot and looks at the first three nodes n1, n2, n3.  With a
// third node the oldest pairs of n1-n2 and n2-n3 are swapped: on success a virtual pair
// is placed on the n1-n3 edge (created if absent, flagged swapped) and n2 leaves the
// route; on failure both pairs are still consumed and SwapFailed is returned.  Without
// a third node, the n1-n2 edge only needs to hold a pair and n2 leaves the route.
// SwapSucceeded is returned once only Alice remains.  A missing channel or an empty
// pool returns SwapImpossible with the error, leaving the pools untouched.
//
// The route is not modified; the returned slice is what is left of it, so the caller
// can retry a SwapFailed outcome from where the chain broke.
func (nl *NetworkLayer) Swap(route []int) (SwapResult, []int, error) {
	if len(route) < 2 {
		return SwapImpossible, route, fmt.Errorf("route %v has fewer than 2 nodes: %w", route, ErrInvalidRoute)
	}
	remaining := append([]int(nil), route...)
	alice := remaining[0]

	for len(remaining) > 1 {
		nl.net.AdvanceTimeslot()
		ts := nl.net.timeslot
		n1, n2 := remaining[0], remaining[1]
		logger := nl.log.WithFields(logrus.Fields{"alice": alice, "timeslot": ts, "route": remaining})

		pair1, err := nl.firstPair(n1, n2)
		if err != nil {
			logger.Debugf("swapping impossible: %v", err)
			return SwapImpossible, remaining, err
		}

		if len(remaining) == 2 {
			nl.net.trace.AddSwapTrace(nl.net.name, ts, alice, []int{n1, n2}, 1.0, pair1.Fidelity, "hop")
			remaining = append(remaining[:1], remaining[2:]...)
			continue
		}

		n3 := remaining[2]
		if n3 == n1 {
			return SwapImpossible, remaining, fmt.Errorf("route %v revisits %d: %w", remaining, n1, ErrInvalidRoute)
		}
		pair2, err := nl.firstPair(n2, n3)
		if err != nil {
			logger.Debugf("swapping impossible: %v", err)
			return SwapImpossible, remaining, err
		}

		f1, f2 := pair1.Fidelity, pair2.Fidelity
		successProb := swapSuccessProbability(f1, f2)
		for _, id := range []int{n1, n2, n3} {
			successProb *= nl.hostFactor(id, alice)
		}

		if nl.net.rng.RandU01() > successProb {
			if err := nl.consume(n1, n2, n3, pair1, pair2); err != nil {
				return SwapImpossible, remaining, err
			}
			nl.net.trace.AddSwapTrace(nl.net.name, ts, alice, []int{n1, n2, n3}, successProb, 0.0, "failed")
			logger.Debugf("swap %d-%d-%d failed", n1, n2, n3)
			return SwapFailed, remaining, nil
		}

		virtual := createPair(n1, n3, swappedFidelity(f1, f2), ts, true)
		nl.net.markSwapped(n1, n3)
		if err := nl.net.AddPair(n1, n3, virtual); err != nil {
			return SwapImpossible, remaining, err
		}
		if err := nl.consume(n1, n2, n3, pair1, pair2); err != nil {
			return SwapImpossible, remaining, err
		}
		nl.net.trace.AddSwapTrace(nl.net.name, ts, alice, []int{n1, n2, n3}, successProb, virtual.Fidelity, "swapped")
		logger.Debugf("swapped %d-%d-%d into %s", n1, n2, n3, virtual)

		remaining = append(remaining[:1], remaining[2:]...)
	}

	nl.log.WithFields(logrus.Fields{"alice": alice, "bob": route[len(route)-1]}).Debug("end to end entanglement established")
	return SwapSucceeded, remaining, nil
}
