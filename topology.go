package qnetsim

// topology.go builds the graph of a Network from one of the named topologies,
// then instantiates and bootstraps the hosts, channels and entangled pairs.

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"gonum.org/v1/gonum/graph/graphs/gen"
	"gonum.org/v1/gonum/graph/simple"
)

// TopologyKind enumerates the topologies SetTopology can build
type TopologyKind int

const (
	GridTopology TopologyKind = iota
	LineTopology
	RingTopology
	StarTopology
	TreeTopology
	ErdosRenyiTopology
	BarabasiAlbertTopology
)

var topologyToStr map[TopologyKind]string = map[TopologyKind]string{
	GridTopology:           "Grid",
	LineTopology:           "Line",
	RingTopology:           "Ring",
	StarTopology:           "Star",
	TreeTopology:           "Tree",
	ErdosRenyiTopology:     "Erdős-Rényi",
	BarabasiAlbertTopology: "Barabási-Albert",
}

// names accepted on input, Portuguese spellings included
var strToTopology map[string]TopologyKind = map[string]TopologyKind{
	"grid": GridTopology, "grade": GridTopology, "mesh": GridTopology,
	"line": LineTopology, "linha": LineTopology,
	"ring": RingTopology, "anel": RingTopology,
	"star": StarTopology, "estrela": StarTopology,
	"tree": TreeTopology, "arvore": TreeTopology, "árvore": TreeTopology,
	"er": ErdosRenyiTopology, "erdos-renyi": ErdosRenyiTopology,
	"ba": BarabasiAlbertTopology, "barabasi-albert": BarabasiAlbertTopology,
}

// number of arguments each topology takes
var topologyArgc map[TopologyKind]int = map[TopologyKind]int{
	GridTopology:           2,
	LineTopology:           1,
	RingTopology:           1,
	StarTopology:           1,
	TreeTopology:           2,
	ErdosRenyiTopology:     2,
	BarabasiAlbertTopology: 2,
}

func (tk TopologyKind) String() string {
	return topologyToStr[tk]
}

// ArgCount returns the number of arguments the topology takes
func (tk TopologyKind) ArgCount() int {
	return topologyArgc[tk]
}

// ParseTopology maps a topology name, case insensitive, to its kind
func ParseTopology(name string) (TopologyKind, error) {
	tk, present := strToTopology[strings.ToLower(strings.TrimSpace(name))]
	if !present {
		return 0, fmt.Errorf("topology %q: %w", name, ErrUnknownTopology)
	}
	return tk, nil
}

// countArg checks that a topology argument is a whole number of at least low
func countArg(tk TopologyKind, arg float64, low int) (int, error) {
	if arg != math.Trunc(arg) || int(arg) < low {
		return 0, fmt.Errorf("%s topology argument %v must be an integer >= %d: %w", tk, arg, low, ErrBadTopologyArgs)
	}
	return int(arg), nil
}

// buildGrid adds the rows x cols lattice to g, node (i,j) having id i*cols+j
// and edges only to its right and lower neighbors
func buildGrid(g *simple.UndirectedGraph, rows, cols int) {
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			g.AddNode(simple.Node(i*cols + j))
		}
	}
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			id := i*cols + j
			if j+1 < cols {
				g.SetEdge(simple.Edge{F: simple.Node(id), T: simple.Node(id + 1)})
			}
			if i+1 < rows {
				g.SetEdge(simple.Edge{F: simple.Node(id), T: simple.Node(id + cols)})
			}
		}
	}
}

// SetTopology builds the graph of the named topology, relabels its nodes to 0..N-1,
// creates one Host per node, and bootstraps qubits, channels and pairs.
//
//	grid            rows, columns
//	line, ring, star  number of nodes
//	tree            number of nodes, branching factor
//	erdos-renyi     number of nodes, edge probability
//	barabasi-albert number of nodes, edges per attached node
func (net *Network) SetTopology(name string, args ...float64) error {
	tk, err := ParseTopology(name)
	if err != nil {
		return err
	}
	if len(args) != tk.ArgCount() {
		return fmt.Errorf("%s topology takes %d arguments, got %d: %w", tk, tk.ArgCount(), len(args), ErrBadTopologyArgs)
	}

	g := simple.NewUndirectedGraph()
	src := &expSource{rng: net.rng}

	switch tk {
	case GridTopology:
		rows, err := countArg(tk, args[0], 1)
		if err != nil {
			return err
		}
		cols, err := countArg(tk, args[1], 1)
		if err != nil {
			return err
		}
		buildGrid(g, rows, cols)
	case LineTopology:
		n, err := countArg(tk, args[0], 1)
		if err != nil {
			return err
		}
		gen.Path(g, gen.IDRange{First: 0, Last: int64(n - 1)})
	case RingTopology:
		n, err := countArg(tk, args[0], 3)
		if err != nil {
			return err
		}
		gen.Cycle(g, gen.IDRange{First: 0, Last: int64(n - 1)})
	case StarTopology:
		n, err := countArg(tk, args[0], 1)
		if err != nil {
			return err
		}
		gen.Star(g, 0, gen.IDRange{First: 1, Last: int64(n - 1)})
	case TreeTopology:
		n, err := countArg(tk, args[0], 1)
		if err != nil {
			return err
		}
		fanout, err := countArg(tk, args[1], 1)
		if err != nil {
			return err
		}
		if n <= fanout {
			// every node beyond the root is a child of the root
			gen.Star(g, 0, gen.IDRange{First: 1, Last: int64(n - 1)})
		} else {
			gen.Tree(g, fanout, gen.IDRange{First: 0, Last: int64(n - 1)})
		}
	case ErdosRenyiTopology:
		n, err := countArg(tk, args[0], 1)
		if err != nil {
			return err
		}
		if args[1] < 0 || args[1] > 1 {
			return fmt.Errorf("%s edge probability %v not in [0,1]: %w", tk, args[1], ErrBadTopologyArgs)
		}
		if err := gen.Gnp(g, n, args[1], src); err != nil {
			return fmt.Errorf("%s topology: %v: %w", tk, err, ErrBadTopologyArgs)
		}
	case BarabasiAlbertTopology:
		n, err := countArg(tk, args[0], 2)
		if err != nil {
			return err
		}
		m, err := countArg(tk, args[1], 1)
		if err != nil {
			return err
		}
		if m >= n {
			return fmt.Errorf("%s needs fewer attachments (%d) than nodes (%d): %w", tk, m, n, ErrBadTopologyArgs)
		}
		if err := gen.PreferentialAttachment(g, n, m, src); err != nil {
			return fmt.Errorf("%s topology: %v: %w", tk, err, ErrBadTopologyArgs)
		}
	}

	net.installGraph(g)
	net.topology = tk.String()

	for _, id := range net.SortedHostIDs() {
		delete(net.hosts, id)
	}
	nodes := net.graph.Nodes()
	for nodes.Next() {
		id := int(nodes.Node().ID())
		host := CreateHost(id, net.log, net.trace)
		host.netName = net.name
		for _, peer := range neighborIDs(net.graph, id) {
			host.AddConnection(peer)
		}
		net.hosts[id] = host
	}

	net.log.WithField("topology", net.topology).Infof("built topology with %d hosts and %d edges",
		len(net.hosts), len(net.channels))

	if err := net.startHosts(net.cfg.InitialQubits); err != nil {
		return err
	}
	net.startChannels()
	return net.startPairs(net.cfg.InitialPairs)
}

// installGraph replaces the network graph with a copy of g whose node ids are
// relabeled to 0..N-1 in increasing order of the original ids, with fresh empty channels
func (net *Network) installGraph(g *simple.UndirectedGraph) {
	ids := make([]int64, 0)
	nodes := g.Nodes()
	for nodes.Next() {
		ids = append(ids, nodes.Node().ID())
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	relabel := make(map[int64]int, len(ids))
	for idx, id := range ids {
		relabel[id] = idx
	}

	net.graph = simple.NewUndirectedGraph()
	net.channels = make(map[edgeKey]*Channel)
	for idx := range ids {
		net.graph.AddNode(simple.Node(idx))
	}
	edges := g.Edges()
	for edges.Next() {
		edge := edges.Edge()
		a, b := relabel[edge.From().ID()], relabel[edge.To().ID()]
		if a == b || net.HasEdge(a, b) {
			continue
		}
		net.addEdge(a, b)
	}
}

// neighborIDs lists the neighbors of a node in increasing order
func neighborIDs(g *simple.UndirectedGraph, id int) []int {
	peers := make([]int, 0)
	nbrs := g.From(int64(id))
	for nbrs.Next() {
		peers = append(peers, int(nbrs.Node().ID()))
	}
	sort.Ints(peers)
	return peers
}

// startHosts seeds every host with qubits, not counted as used
func (net *Network) startHosts(numQubits int) error {
	for _, id := range net.SortedHostIDs() {
		for i := 0; i < numQubits; i++ {
			if _, err := net.physical.CreateQubit(id, false, false); err != nil {
				return err
			}
		}
	}
	net.log.Debug("hosts initialized")
	return nil
}

// startChannels draws independent creation probabilities for every channel
func (net *Network) startChannels() {
	low, high := net.cfg.MinChannelProb, net.cfg.MaxChannelProb
	for _, edge := range net.Edges() {
		ch, _ := net.Channel(edge[0], edge[1])
		ch.OnDemandProb = uniform(net.rng, low, high)
		ch.ReplayProb = uniform(net.rng, low, high)
		ch.Pairs = make([]*EntangledPair, 0)
	}
	net.log.Debug("channels initialized")
}

// startPairs seeds every channel with pairs, not counted as used
func (net *Network) startPairs(numPairs int) error {
	for _, edge := range net.Edges() {
		for i := 0; i < numPairs; i++ {
			pair := net.physical.CreatePair(edge[0], edge[1], net.cfg.PairFidelity, false, false)
			if err := net.physical.AddPairToChannel(pair, edge[0], edge[1]); err != nil {
				return err
			}
		}
	}
	net.log.Debug("entangled pairs initialized")
	return nil
}
