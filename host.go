package qnetsim

// host.go holds the Host, the quantum network endpoint.  A host owns a
// memory of qubits, the ids of the hosts it connects to, and the settings
// the entanglement swapping protocol consults when the host takes part in a swap.

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/exp/slices"
)

// defaultMemorySize is advisory metadata, nothing enforces it
const defaultMemorySize = 10

// Host is a node of the quantum network
type Host struct {
	id           int
	memory       []*Qubit
	memorySize   int
	connections  []int
	routingTable map[int][]int

	// swapping behavior.  A host that is not an attacker uses swapProb for all traffic.
	// An attacker uses targetedSwapProb for traffic whose Alice endpoint is one of its
	// targets, and swapProb otherwise.  An unset probability is a neutral factor of 1.
	attacker        bool
	targets         []*Host
	swapProb        float64
	swapProbSet     bool
	targetedProb    float64
	targetedProbSet bool

	// name of the network the host belongs to, labels its trace records
	netName string

	log   logrus.FieldLogger
	trace *TraceManager
}

// CreateHost is a constructor.  The logger and trace manager may be nil.
func CreateHost(id int, log logrus.FieldLogger, tm *TraceManager) *Host {
	host := new(Host)
	host.id = id
	host.memory = make([]*Qubit, 0)
	host.memorySize = defaultMemorySize
	host.connections = make([]int, 0)
	host.routingTable = make(map[int][]int)
	host.routingTable[id] = []int{id}
	host.log = orDiscard(log).WithField("host", id)
	host.trace = tm
	return host
}

// ID returns the host identity
func (host *Host) ID() int {
	return host.id
}

func (host *Host) String() string {
	return strconv.Itoa(host.id)
}

// Memory returns the qubits currently held, oldest first
func (host *Host) Memory() []*Qubit {
	return host.memory
}

// MemorySize returns the advisory memory capacity
func (host *Host) MemorySize() int {
	return host.memorySize
}

// Connections returns the ids of the hosts this one declares links to
func (host *Host) Connections() []int {
	return host.connections
}

// RoutingTable returns the host's routing table
func (host *Host) RoutingTable() map[int][]int {
	return host.routingTable
}

// SetRoutingTable replaces the routing table
func (host *Host) SetRoutingTable(rt map[int][]int) {
	host.routingTable = rt
}

// AddConnection declares a link to another host, ignoring repeats
func (host *Host) AddConnection(peer int) {
	if !slices.Contains(host.connections, peer) {
		host.connections = append(host.connections, peer)
	}
}

// AddQubit pushes a qubit into memory.  The memory size is not enforced.
func (host *Host) AddQubit(q *Qubit) {
	host.memory = append(host.memory, q)
	host.log.WithField("qubit", q.ID).Debug("qubit added to memory")
	host.trace.AddQubitTrace(host.netName, q.CreatedAt, host.id, q.ID, "add")
}

// PopLastQubit removes and returns the most recently added qubit
func (host *Host) PopLastQubit() (*Qubit, error) {
	if len(host.memory) == 0 {
		return nil, fmt.Errorf("host %d: %w", host.id, ErrEmptyMemory)
	}
	last := len(host.memory) - 1
	q := host.memory[last]
	host.memory[last] = nil
	host.memory = host.memory[:last]
	return q, nil
}

// IsAttacker reports whether the host is a black hole
func (host *Host) IsAttacker() bool {
	return host.attacker
}

// SetAttacker marks or clears the host as a black hole
func (host *Host) SetAttacker(attacker bool) {
	host.attacker = attacker
}

// SetSwapSuccessProbability sets the probability applied to swaps this host takes part in
func (host *Host) SetSwapSuccessProbability(p float64) {
	host.swapProb = p
	host.swapProbSet = true
}

// SetTargetedSwapSuccessProbability sets the probability an attacker applies to traffic
// destined for one of its targets
func (host *Host) SetTargetedSwapSuccessProbability(p float64) {
	host.targetedProb = p
	host.targetedProbSet = true
}

// SwapSuccessProbability returns the normal probability and whether it was set
func (host *Host) SwapSuccessProbability() (float64, bool) {
	return host.swapProb, host.swapProbSet
}

// TargetedSwapSuccessProbability returns the targeted probability and whether it was set
func (host *Host) TargetedSwapSuccessProbability() (float64, bool) {
	return host.targetedProb, host.targetedProbSet
}

// AddAttackTarget appends a host to the attack targets
func (host *Host) AddAttackTarget(target *Host) {
	host.targets = append(host.targets, target)
}

// AttackTargets returns the declared targets, nil if none
func (host *Host) AttackTargets() []*Host {
	return host.targets
}

// targets reports whether the host with the given id is among the declared targets
func (host *Host) isTarget(id int) bool {
	for _, target := range host.targets {
		if target.id == id {
			return true
		}
	}
	return false
}

// EffectiveSwapProbability is the multiplier this host contributes to a swap
// on a route whose Alice endpoint is alice
func (host *Host) EffectiveSwapProbability(alice int) float64 {
	if host.attacker && host.isTarget(alice) {
		if host.targetedProbSet {
			return host.targetedProb
		}
		return 1.0
	}
	if host.swapProbSet {
		return host.swapProb
	}
	return 1.0
}

// HostInfo is a snapshot of a host for reporting
type HostInfo struct {
	HostID       int           `json:"host_id" yaml:"host_id"`
	Memory       int           `json:"memory" yaml:"memory"`
	RoutingTable map[int][]int `json:"routing_table" yaml:"routing_table"`
}

// Info returns a snapshot of the host
func (host *Host) Info() HostInfo {
	return HostInfo{HostID: host.id, Memory: len(host.memory), RoutingTable: host.routingTable}
}

// matchParam is used to determine whether a run-time parameter description
// should be applied to the host.  Its definition here helps Host satisfy the paramObj interface.
func (host *Host) matchParam(attrbName, attrbValue string) bool {
	switch attrbName {
	case "name":
		return attrbValue == strconv.Itoa(host.id)
	case "attacker":
		return host.attacker
	case "normal":
		return !host.attacker
	}
	return false
}

// paramObjName helps Host satisfy paramObj interface
func (host *Host) paramObjName() string {
	return "Host"
}

// setParam gives a value to a Host parameter.  The type of the value
// has been checked against the parameter when the override was validated.
func (host *Host) setParam(param string, value valueStruct) {
	switch strings.TrimSpace(param) {
	case "swapProb":
		host.SetSwapSuccessProbability(value.floatValue)
	case "targetedSwapProb":
		host.SetTargetedSwapSuccessProbability(value.floatValue)
	case "memorySize":
		host.memorySize = value.intValue
	}
}
