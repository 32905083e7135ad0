package qnetsim

// qubit.go holds the passive resource records a quantum network simulation
// moves around: the qubits held in host memory and the entangled (EPR) pairs
// held in the channels between hosts.

import "fmt"

// Qubit is a unit of quantum memory. It is owned by exactly one host's memory
// at a time, and is destroyed when consumed by the heralding protocol.
type Qubit struct {
	ID        int     // unique within a Network
	Fidelity  float64 // in (0,1]
	CreatedAt int     // timeslot of creation, drives decoherence
}

// String returns a short description of the qubit
func (q *Qubit) String() string {
	return fmt.Sprintf("qubit(%d,%.4f)", q.ID, q.Fidelity)
}

// EntangledPair represents one unit of entanglement shared by two hosts.
// A physical pair lives on an edge of the topology, a virtual pair
// lives on an edge materialized by entanglement swapping.
type EntangledPair struct {
	NodeA, NodeB int
	Fidelity     float64
	CreatedAt    int
	Virtual      bool
}

// createPair is a constructor
func createPair(nodeA, nodeB int, fidelity float64, timeslot int, virtual bool) *EntangledPair {
	return &EntangledPair{NodeA: nodeA, NodeB: nodeB, Fidelity: fidelity, CreatedAt: timeslot, Virtual: virtual}
}

// String returns a short description of the pair
func (ep *EntangledPair) String() string {
	return fmt.Sprintf("epr(%d-%d,%.4f)", ep.NodeA, ep.NodeB, ep.Fidelity)
}

// decohere multiplies the fidelity by the factor if the pair was created
// before the given timeslot
func (ep *EntangledPair) decohere(timeslot int, factor float64) {
	if ep.CreatedAt < timeslot {
		ep.Fidelity *= factor
	}
}

func (q *Qubit) decohere(timeslot int, factor float64) {
	if q.CreatedAt < timeslot {
		q.Fidelity *= factor
	}
}
