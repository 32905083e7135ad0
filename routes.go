package qnetsim

// routes.go provides the network layer: route discovery over the topology graph and
// the cache of routes used.  Entanglement swapping along a route is in swap.go.

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"golang.org/x/exp/slices"
	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/path"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/stat"
)

// The general approach is to build, for each discovery, a graph.Undirected holding every
// node of the network and every edge that is not flagged as swapped, then let
// path.DijkstraAllFrom compute every shortest path rooted in the source.  With unit
// edge weights a shortest path minimizes the number of hops.  Among equally short
// paths the lexicographically smallest sequence of host ids is chosen, so identical
// networks always choose identical routes.  Edges carrying virtual
// entanglement are outputs of swapping and never inputs of a fresh route, which is why
// the filtered view is rebuilt rather than the network graph used directly.

// rtEndpts is the key of the route cache
type rtEndpts struct {
	srcID, dstID int
}

// NetworkLayer finds routes and extends entanglement along them
type NetworkLayer struct {
	net       *Network
	usedPairs int

	// first route discovered between each (source, destination)
	routesUsed map[rtEndpts][]int

	log logrus.FieldLogger
}

// createNetworkLayer is a constructor
func createNetworkLayer(net *Network) *NetworkLayer {
	nl := new(NetworkLayer)
	nl.net = net
	nl.routesUsed = make(map[rtEndpts][]int)
	nl.log = net.log.WithField("layer", NetworkLayerKind.String())
	return nl
}

// UsedPairs returns the number of pairs swapping consumed
func (nl *NetworkLayer) UsedPairs() int {
	return nl.usedPairs
}

// UsedQubits is always zero, the network layer consumes pairs only
func (nl *NetworkLayer) UsedQubits() int {
	return 0
}

// buildConnGraph returns the view of the network graph without swapped edges.
// Nodes and edges are inserted in increasing id order.
func (nl *NetworkLayer) buildConnGraph() graph.Undirected {
	connGraph := simple.NewUndirectedGraph()
	ids := make([]int64, 0)
	nodes := nl.net.graph.Nodes()
	for nodes.Next() {
		ids = append(ids, nodes.Node().ID())
	}
	slices.Sort(ids)
	for _, id := range ids {
		connGraph.AddNode(simple.Node(id))
	}
	for _, edge := range nl.net.Edges() {
		ch, present := nl.net.Channel(edge[0], edge[1])
		if !present || ch.Swapped {
			continue
		}
		connGraph.SetEdge(simple.Edge{F: simple.Node(edge[0]), T: simple.Node(edge[1])})
	}
	return connGraph
}

// shortestRoute returns the lexicographically smallest of the shortest routes from
// alice to bob in connGraph, nil if bob is unreachable
func shortestRoute(connGraph graph.Undirected, alice, bob int) []int {
	allPaths := path.DijkstraAllFrom(simple.Node(alice), connGraph)
	nodeSeqs, _ := allPaths.AllTo(int64(bob))
	var best []int
	for _, nodeSeq := range nodeSeqs {
		if len(nodeSeq) == 0 {
			continue
		}
		route := convertNodeSeq(nodeSeq)
		if best == nil || slices.Compare(route, best) < 0 {
			best = route
		}
	}
	return best
}

// convertNodeSeq extracts the host ids from a sequence of graph nodes
func convertNodeSeq(nsQ []graph.Node) []int {
	rtn := make([]int, 0, len(nsQ))
	for _, node := range nsQ {
		rtn = append(rtn, int(node.ID()))
	}
	return rtn
}

// routeUsable reports whether every hop of the route is an edge not flagged as swapped
func (nl *NetworkLayer) routeUsable(route []int) bool {
	for idx := 1; idx < len(route); idx++ {
		ch, present := nl.net.Channel(route[idx-1], route[idx])
		if !present || ch.Swapped {
			return false
		}
	}
	return true
}

// FindRoute returns a shortest route from alice to bob over edges that do not carry
// virtual entanglement.  When incrTimeslot is set the timeslot advances once, first.
// The first route discovered between a pair of endpoints is cached and returned by
// later discoveries for as long as none of its edges is missing or flagged as swapped.
// Every hop of the returned route holds at least one pair, and the mean fidelity of the
// pairs on the route has been folded into the network's average route fidelity.
func (nl *NetworkLayer) FindRoute(alice, bob int, incrTimeslot bool) ([]int, error) {
	if incrTimeslot {
		nl.net.AdvanceTimeslot()
	}
	logger := nl.log.WithFields(logrus.Fields{"alice": alice, "bob": bob, "timeslot": nl.net.timeslot})

	if !nl.net.HasNode(alice) {
		return nil, fmt.Errorf("host %d: %w", alice, ErrUnknownNode)
	}
	if !nl.net.HasNode(bob) {
		return nil, fmt.Errorf("host %d: %w", bob, ErrUnknownNode)
	}
	if alice == bob {
		return nil, fmt.Errorf("route from %d to itself: %w", alice, ErrInvalidRoute)
	}

	endpoints := rtEndpts{srcID: alice, dstID: bob}
	var route []int
	cached, found := nl.routesUsed[endpoints]
	if found && nl.routeUsable(cached) {
		route = append([]int(nil), cached...)
	} else {
		route = shortestRoute(nl.buildConnGraph(), alice, bob)
		if route == nil {
			logger.Debug("no route found")
			return nil, fmt.Errorf("%d to %d: %w", alice, bob, ErrNoRouteFound)
		}
	}

	fidelities := make([]float64, 0)
	for idx := 1; idx < len(route); idx++ {
		pairs, err := nl.net.PairsOnEdge(route[idx-1], route[idx])
		if err != nil {
			return nil, err
		}
		if len(pairs) == 0 {
			logger.Debugf("no pairs between %d and %d", route[idx-1], route[idx])
			return nil, fmt.Errorf("hop %d-%d of route %v: %w", route[idx-1], route[idx], route, ErrInsufficientPairs)
		}
		for _, pair := range pairs {
			fidelities = append(fidelities, pair.Fidelity)
		}
	}
	if len(fidelities) > 0 {
		nl.net.blendRouteFidelity(stat.Mean(fidelities, nil))
	}

	if !found {
		nl.routesUsed[endpoints] = append([]int(nil), route...)
	}
	logger.WithField("route", route).Debug("route found")
	return route, nil
}

// CachedRoute returns the first route discovered between the endpoints
func (nl *NetworkLayer) CachedRoute(alice, bob int) ([]int, bool) {
	route, found := nl.routesUsed[rtEndpts{srcID: alice, dstID: bob}]
	return route, found
}

// AverageRouteLength is the mean number of hops of the cached routes, 0 if none
func (nl *NetworkLayer) AverageRouteLength() float64 {
	if len(nl.routesUsed) == 0 {
		return 0.0
	}
	hops := make([]float64, 0, len(nl.routesUsed))
	for _, route := range nl.routesUsed {
		hops = append(hops, float64(len(route)-1))
	}
	return stat.Mean(hops, nil)
}
