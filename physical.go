package qnetsim

// physical.go holds the physical layer: the factory of qubits and entangled
// pairs, and the heralding protocol that manufactures one entangled pair between
// two directly connected hosts by consuming a qubit from each.

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/stat"
)

// defaultHeraldingAttempts bounds the attempts Replenish makes for one pair
const defaultHeraldingAttempts = 10000

// PhysicalLayer creates the resources the upper layers consume
type PhysicalLayer struct {
	net        *Network
	usedPairs  int
	usedQubits int

	// fidelities of the pairs heralding produced
	fidelities []float64

	log logrus.FieldLogger
}

// createPhysicalLayer is a constructor
func createPhysicalLayer(net *Network) *PhysicalLayer {
	pl := new(PhysicalLayer)
	pl.net = net
	pl.fidelities = make([]float64, 0)
	pl.log = net.log.WithField("layer", PhysicalLayerKind.String())
	return pl
}

// UsedPairs returns the number of pairs the layer produced on demand
func (pl *PhysicalLayer) UsedPairs() int {
	return pl.usedPairs
}

// UsedQubits returns the number of qubits the layer created or consumed on demand
func (pl *PhysicalLayer) UsedQubits() int {
	return pl.usedQubits
}

// AverageFidelity returns the mean fidelity of heralded pairs, 0 if none
func (pl *PhysicalLayer) AverageFidelity() float64 {
	if len(pl.fidelities) == 0 {
		return 0.0
	}
	return stat.Mean(pl.fidelities, nil)
}

// CreateQubit creates a qubit with a fidelity drawn from the configured range and
// places it in the memory of the host
func (pl *PhysicalLayer) CreateQubit(hostID int, incrTimeslot, countUsage bool) (*Qubit, error) {
	host := pl.net.Host(hostID)
	if host == nil {
		return nil, fmt.Errorf("host %d: %w", hostID, ErrUnknownNode)
	}
	if incrTimeslot {
		pl.net.AdvanceTimeslot()
	}
	if countUsage {
		pl.usedQubits += 1
	}
	cfg := &pl.net.cfg
	q := &Qubit{
		ID:        pl.net.nxtQubit(),
		Fidelity:  uniform(pl.net.rng, cfg.MinQubitFidelity, cfg.MaxQubitFidelity),
		CreatedAt: pl.net.timeslot,
	}
	pl.net.registerQubitCreation(q.ID, q.CreatedAt, PhysicalLayerKind.String())
	host.AddQubit(q)
	return q, nil
}

// CreatePair creates an entangled pair between two hosts, not yet placed in a channel
func (pl *PhysicalLayer) CreatePair(nodeA, nodeB int, fidelity float64, incrTimeslot, countUsage bool) *EntangledPair {
	if incrTimeslot {
		pl.net.AdvanceTimeslot()
	}
	if countUsage {
		pl.usedPairs += 1
	}
	return createPair(nodeA, nodeB, fidelity, pl.net.timeslot, false)
}

// AddPairToChannel places a pair in the pool of the edge a-b
func (pl *PhysicalLayer) AddPairToChannel(pair *EntangledPair, a, b int) error {
	return pl.net.AddPair(a, b, pair)
}

// RemovePairFromChannel takes the most recent pair out of the pool of the edge a-b
func (pl *PhysicalLayer) RemovePairFromChannel(a, b int) (*EntangledPair, error) {
	return pl.net.RemovePair(a, b)
}

// HeraldEntanglement attempts to create one pair on the edge a-b.  The last qubit of
// each host is consumed whatever the outcome and the timeslot advances.  The attempt
// succeeds with the on-demand probability of the channel, producing a pair whose fidelity
// is the product of the fidelities of the consumed qubits.
func (pl *PhysicalLayer) HeraldEntanglement(a, b int) (bool, error) {
	ch, present := pl.net.Channel(a, b)
	if !present {
		return false, fmt.Errorf("edge %d-%d: %w", a, b, ErrNoChannel)
	}
	hostA, hostB := pl.net.Host(a), pl.net.Host(b)
	if hostA == nil || hostB == nil {
		return false, fmt.Errorf("edge %d-%d: %w", a, b, ErrUnknownNode)
	}
	if len(hostA.memory) == 0 {
		return false, fmt.Errorf("host %d: %w", a, ErrEmptyMemory)
	}
	if len(hostB.memory) == 0 {
		return false, fmt.Errorf("host %d: %w", b, ErrEmptyMemory)
	}

	qa, _ := hostA.PopLastQubit()
	qb, _ := hostB.PopLastQubit()
	pl.usedQubits += 2
	pl.net.trace.AddQubitTrace(pl.net.name, pl.net.timeslot, a, qa.ID, "consume")
	pl.net.trace.AddQubitTrace(pl.net.name, pl.net.timeslot, b, qb.ID, "consume")

	pl.net.AdvanceTimeslot()

	if pl.net.rng.RandU01() >= ch.OnDemandProb {
		pl.log.WithFields(logrus.Fields{"alice": a, "bob": b, "timeslot": pl.net.timeslot}).Debug("heralding failed")
		return false, nil
	}

	pair := pl.CreatePair(a, b, qa.Fidelity*qb.Fidelity, false, true)
	if err := pl.AddPairToChannel(pair, a, b); err != nil {
		return false, err
	}
	pl.fidelities = append(pl.fidelities, pair.Fidelity)
	pl.log.WithFields(logrus.Fields{"alice": a, "bob": b, "timeslot": pl.net.timeslot}).Debugf("heralded %s", pair)
	return true, nil
}

// Replenish creates n fresh pairs on every listed edge by running the heralding protocol
// until it succeeds, adding a qubit to both hosts whenever either memory is empty
// or an attempt fails
func (pl *PhysicalLayer) Replenish(edges []Edge, n int) error {
	maxAttempts := pl.net.cfg.HeraldingAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultHeraldingAttempts
	}

	for _, edge := range edges {
		a, b := edge[0], edge[1]
		if !pl.net.HasEdge(a, b) {
			return fmt.Errorf("replenish edge %d-%d: %w", a, b, ErrNoChannel)
		}
		if pl.net.Host(a) == nil || pl.net.Host(b) == nil {
			return fmt.Errorf("replenish edge %d-%d: %w", a, b, ErrUnknownNode)
		}
		for i := 0; i < n; i++ {
			entangled := false
			for attempt := 0; !entangled; attempt++ {
				if attempt == maxAttempts {
					return fmt.Errorf("edge %d-%d after %d attempts: %w", a, b, maxAttempts, ErrHeraldingExhausted)
				}
				if len(pl.net.hosts[a].memory) == 0 || len(pl.net.hosts[b].memory) == 0 {
					if err := pl.addQubitPair(a, b); err != nil {
						return err
					}
				}
				var err error
				entangled, err = pl.HeraldEntanglement(a, b)
				if err != nil {
					return err
				}
				if !entangled {
					if err := pl.addQubitPair(a, b); err != nil {
						return err
					}
				}
			}
		}
	}
	pl.log.WithField("timeslot", pl.net.timeslot).Debugf("replenished %d edges with %d pairs", len(edges), n)
	return nil
}

// addQubitPair gives one fresh qubit to each end of an edge
func (pl *PhysicalLayer) addQubitPair(a, b int) error {
	if _, err := pl.CreateQubit(a, false, false); err != nil {
		return err
	}
	_, err := pl.CreateQubit(b, false, false)
	return err
}
