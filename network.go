package qnetsim

// network.go holds the Network, which owns the topology graph, the channels
// (per-edge pools of entangled pairs), the registry of hosts, the logical clock and
// the aggregate usage counters.  The protocol layers hold a pointer to the Network
// they operate on.

import (
	"fmt"
	"io"
	"sort"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/simple"
)

// Channel is the state carried by one edge of the topology: the pool of
// entangled pairs, the creation probabilities of the physical link, and
// whether the edge was materialized (or re-marked) by entanglement swapping.
type Channel struct {
	Pairs        []*EntangledPair
	Swapped      bool
	OnDemandProb float64
	ReplayProb   float64
}

// Len returns the number of pairs in the pool
func (ch *Channel) Len() int {
	return len(ch.Pairs)
}

// edgeKey identifies an undirected edge, smaller id first
type edgeKey struct {
	a, b int
}

func makeEdgeKey(a, b int) edgeKey {
	if a > b {
		a, b = b, a
	}
	return edgeKey{a: a, b: b}
}

// Edge is an undirected pair of host ids, smaller id first
type Edge [2]int

// LayerKind names the protocol layers whose usage the network aggregates
type LayerKind int

const (
	PhysicalLayerKind LayerKind = iota
	LinkLayerKind
	NetworkLayerKind
	TransportLayerKind
	ApplicationLayerKind
)

var layerKindToStr map[LayerKind]string = map[LayerKind]string{
	PhysicalLayerKind:    "physical",
	LinkLayerKind:        "link",
	NetworkLayerKind:     "network",
	TransportLayerKind:   "transport",
	ApplicationLayerKind: "application",
}

func (lk LayerKind) String() string {
	return layerKindToStr[lk]
}

// Layer is the usage-counter contract every protocol layer exposes
type Layer interface {
	UsedPairs() int
	UsedQubits() int
}

// FidelityLayer is a Layer that also reports the average fidelity it observed
type FidelityLayer interface {
	Layer
	AverageFidelity() float64
}

// qubitRecord remembers where and when a qubit was created
type qubitRecord struct {
	timeslot int
	layer    string
}

// Network is one instance of a simulated quantum network.  It is not safe for
// concurrent use; every simulation run builds its own.
type Network struct {
	name     string
	cfg      NetCfg
	graph    *simple.UndirectedGraph
	channels map[edgeKey]*Channel
	hosts    map[int]*Host
	topology string

	timeslot          int
	decoherence       bool
	decoherenceFactor float64
	qubitTimeslots    map[int]qubitRecord
	nxtQubitID        int

	// running blend of the mean pair fidelity of discovered routes, -1 when unset
	avgRouteFidelity float64

	physical *PhysicalLayer
	netLayer *NetworkLayer
	layers   map[LayerKind]Layer

	rng   Rand
	log   logrus.FieldLogger
	trace *TraceManager
}

// CreateNetwork is a constructor.  A nil cfg selects DefaultNetCfg, the logger
// and the trace manager may be nil.
func CreateNetwork(name string, cfg *NetCfg, log logrus.FieldLogger, tm *TraceManager) *Network {
	return createNetwork(name, cfg, log, tm, newRngStream(name))
}

// createNetwork builds a network drawing from the given random source
func createNetwork(name string, cfg *NetCfg, log logrus.FieldLogger, tm *TraceManager, rng Rand) *Network {
	net := new(Network)
	net.name = name
	if cfg == nil {
		cfg = DefaultNetCfg()
	}
	net.cfg = *cfg
	net.graph = simple.NewUndirectedGraph()
	net.channels = make(map[edgeKey]*Channel)
	net.hosts = make(map[int]*Host)
	net.qubitTimeslots = make(map[int]qubitRecord)
	net.decoherenceFactor = cfg.DecoherenceFactor
	net.decoherence = cfg.Decoherence
	net.avgRouteFidelity = -1.0
	net.rng = rng
	net.log = orDiscard(log).WithField("network", name)
	net.trace = tm

	net.physical = createPhysicalLayer(net)
	net.netLayer = createNetworkLayer(net)
	net.layers = map[LayerKind]Layer{
		PhysicalLayerKind: net.physical,
		NetworkLayerKind:  net.netLayer,
	}
	return net
}

// Name returns the name given at construction
func (net *Network) Name() string {
	return net.name
}

// SetRand replaces the network's random source.  Used to script outcomes.
func (net *Network) SetRand(rng Rand) {
	net.rng = rng
}

// Rand returns the network's random source
func (net *Network) Rand() Rand {
	return net.rng
}

// Topology returns the display name of the topology built by SetTopology
func (net *Network) Topology() string {
	return net.topology
}

// Graph exposes the topology graph read-only
func (net *Network) Graph() graph.Undirected {
	return net.graph
}

// Physical returns the physical layer
func (net *Network) Physical() *PhysicalLayer {
	return net.physical
}

// NetworkLayer returns the routing and swapping layer
func (net *Network) NetworkLayer() *NetworkLayer {
	return net.netLayer
}

// AttachLayer registers the usage counters of a collaborating layer
func (net *Network) AttachLayer(kind LayerKind, layer Layer) {
	net.layers[kind] = layer
}

// Hosts returns the host registry
func (net *Network) Hosts() map[int]*Host {
	return net.hosts
}

// Host returns the host with the given id, or nil
func (net *Network) Host(id int) *Host {
	return net.hosts[id]
}

// SortedHostIDs returns all host ids in increasing order
func (net *Network) SortedHostIDs() []int {
	ids := make([]int, 0, len(net.hosts))
	for id := range net.hosts {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// HasNode reports whether the id is a node of the graph
func (net *Network) HasNode(id int) bool {
	return net.graph.Node(int64(id)) != nil
}

// AddHost registers the host and its node, then inserts an edge for every
// connection the host declares
func (net *Network) AddHost(host *Host) error {
	_, present := net.hosts[host.id]
	if present {
		return fmt.Errorf("host %d: %w", host.id, ErrDuplicateHost)
	}
	host.netName = net.name
	net.hosts[host.id] = host
	net.log.WithField("host", host.id).Debug("host added to network")

	if !net.HasNode(host.id) {
		net.graph.AddNode(simple.Node(host.id))
	}
	for _, peer := range host.connections {
		if peer == host.id || net.HasEdge(host.id, peer) {
			continue
		}
		net.addEdge(host.id, peer)
	}
	return nil
}

// addEdge creates the graph edge and its empty channel
func (net *Network) addEdge(a, b int) *Channel {
	net.graph.SetEdge(simple.Edge{F: simple.Node(a), T: simple.Node(b)})
	ch := &Channel{Pairs: make([]*EntangledPair, 0)}
	net.channels[makeEdgeKey(a, b)] = ch
	return ch
}

// HasEdge reports whether a and b are adjacent
func (net *Network) HasEdge(a, b int) bool {
	return net.graph.HasEdgeBetween(int64(a), int64(b))
}

// Channel returns the channel on the edge a-b
func (net *Network) Channel(a, b int) (*Channel, bool) {
	if !net.HasEdge(a, b) {
		return nil, false
	}
	ch, present := net.channels[makeEdgeKey(a, b)]
	return ch, present
}

// Edges returns every edge of the graph, sorted
func (net *Network) Edges() []Edge {
	edges := make([]Edge, 0, len(net.channels))
	for key := range net.channels {
		if net.HasEdge(key.a, key.b) {
			edges = append(edges, Edge{key.a, key.b})
		}
	}
	sort.Slice(edges, func(i, j int) bool {
		if edges[i][0] != edges[j][0] {
			return edges[i][0] < edges[j][0]
		}
		return edges[i][1] < edges[j][1]
	})
	return edges
}

// PairsOnEdge returns the pair pool of the edge a-b, oldest first
func (net *Network) PairsOnEdge(a, b int) ([]*EntangledPair, error) {
	ch, present := net.Channel(a, b)
	if !present {
		return nil, fmt.Errorf("edge %d-%d: %w", a, b, ErrNoChannel)
	}
	return ch.Pairs, nil
}

// AddPair pushes a pair into the pool of the edge a-b
func (net *Network) AddPair(a, b int, pair *EntangledPair) error {
	ch, present := net.Channel(a, b)
	if !present {
		return fmt.Errorf("edge %d-%d: %w", a, b, ErrNoChannel)
	}
	ch.Pairs = append(ch.Pairs, pair)
	return nil
}

// RemovePair removes and returns the most recently added pair of the edge a-b
func (net *Network) RemovePair(a, b int) (*EntangledPair, error) {
	ch, present := net.Channel(a, b)
	if !present {
		return nil, fmt.Errorf("edge %d-%d: %w", a, b, ErrNoChannel)
	}
	if len(ch.Pairs) == 0 {
		return nil, fmt.Errorf("edge %d-%d: %w", a, b, ErrNoPairsAvailable)
	}
	last := len(ch.Pairs) - 1
	pair := ch.Pairs[last]
	ch.Pairs[last] = nil
	ch.Pairs = ch.Pairs[:last]
	return pair, nil
}

// removeSpecificPair takes the given pair out of the pool of the edge a-b
func (net *Network) removeSpecificPair(a, b int, pair *EntangledPair) error {
	ch, present := net.Channel(a, b)
	if !present {
		return fmt.Errorf("edge %d-%d: %w", a, b, ErrNoChannel)
	}
	for idx, held := range ch.Pairs {
		if held == pair {
			ch.Pairs = append(ch.Pairs[:idx], ch.Pairs[idx+1:]...)
			return nil
		}
	}
	return fmt.Errorf("edge %d-%d does not hold %s: %w", a, b, pair, ErrNoPairsAvailable)
}

// markSwapped flags the edge a-b as carrying virtual entanglement,
// creating the edge if it is absent
func (net *Network) markSwapped(a, b int) *Channel {
	ch, present := net.Channel(a, b)
	if !present {
		ch = net.addEdge(a, b)
	}
	ch.Swapped = true
	return ch
}

// Timeslot returns the logical clock
func (net *Network) Timeslot() int {
	return net.timeslot
}

// AdvanceTimeslot moves the logical clock forward by one and, when decoherence
// is active, decays everything created before the new timeslot
func (net *Network) AdvanceTimeslot() {
	net.timeslot += 1
	if net.decoherence {
		net.applyDecoherence(net.decoherenceFactor)
	}
}

// SetDecoherence switches per-timeslot decoherence on or off
func (net *Network) SetDecoherence(active bool, factor float64) {
	net.decoherence = active
	if factor > 0 {
		net.decoherenceFactor = factor
	}
}

// applyDecoherence decays every qubit in host memory and every pair in a channel
func (net *Network) applyDecoherence(factor float64) {
	current := net.timeslot
	for _, host := range net.hosts {
		for _, q := range host.memory {
			q.decohere(current, factor)
		}
	}
	for _, ch := range net.channels {
		for _, pair := range ch.Pairs {
			pair.decohere(current, factor)
		}
	}
}

// registerQubitCreation remembers the timeslot and layer a qubit was created by
func (net *Network) registerQubitCreation(qubitID, timeslot int, layer string) {
	net.qubitTimeslots[qubitID] = qubitRecord{timeslot: timeslot, layer: layer}
}

// QubitCreationTimeslot returns the timeslot the qubit was created in
func (net *Network) QubitCreationTimeslot(qubitID int) (int, bool) {
	rec, present := net.qubitTimeslots[qubitID]
	return rec.timeslot, present
}

// nxtQubit hands out network-unique qubit ids
func (net *Network) nxtQubit() int {
	id := net.nxtQubitID
	net.nxtQubitID += 1
	return id
}

// TotalUsedPairs sums the pair usage of every layer
func (net *Network) TotalUsedPairs() int {
	total := 0
	for _, layer := range net.layers {
		total += layer.UsedPairs()
	}
	return total
}

// TotalUsedQubits sums the qubit usage of every layer
func (net *Network) TotalUsedQubits() int {
	total := 0
	for _, layer := range net.layers {
		total += layer.UsedQubits()
	}
	return total
}

// layerFidelity returns the average fidelity reported by an attached layer, 0 if none
func (net *Network) layerFidelity(kind LayerKind) float64 {
	layer, present := net.layers[kind]
	if !present {
		return 0.0
	}
	fl, ok := layer.(FidelityLayer)
	if !ok {
		return 0.0
	}
	return fl.AverageFidelity()
}

// AverageRouteFidelity returns the blended route fidelity, -1 if no route was measured
func (net *Network) AverageRouteFidelity() float64 {
	return net.avgRouteFidelity
}

// blendRouteFidelity folds the mean fidelity of one route into the running value.
// The result is the midpoint of the previous value and the sample, not a count weighted mean.
func (net *Network) blendRouteFidelity(sample float64) {
	if net.avgRouteFidelity == -1.0 {
		net.avgRouteFidelity = sample
		return
	}
	net.avgRouteFidelity = (sample + net.avgRouteFidelity) / 2
}

// orDiscard returns the logger, or one that discards everything when it is nil
func orDiscard(log logrus.FieldLogger) logrus.FieldLogger {
	if log != nil {
		return log
	}
	discard := logrus.New()
	discard.SetOutput(io.Discard)
	discard.SetLevel(logrus.PanicLevel)
	return discard
}
