package qnetsim

// simulation.go runs one complete simulation: it builds a network, selects the
// black holes, configures swap probabilities, then runs a sequence of communication
// requests, replenishing the physical edges at fixed intervals.

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// RequestOutcome is the record of one communication request
type RequestOutcome struct {
	Index    int        `json:"index" yaml:"index"`
	Alice    int        `json:"alice" yaml:"alice"`
	Bob      int        `json:"bob" yaml:"bob"`
	Route    []int      `json:"route" yaml:"route"`
	Result   SwapResult `json:"result" yaml:"result"`
	Attempts int        `json:"attempts" yaml:"attempts"`
}

// RunRecord is the full detail of one run
type RunRecord struct {
	Run              int              `json:"run" yaml:"run"`
	Topology         string           `json:"topology" yaml:"topology"`
	Nodes            int              `json:"nodes" yaml:"nodes"`
	Attackers        []int            `json:"attackers" yaml:"attackers"`
	AttackTargets    map[int]int      `json:"attacktargets,omitempty" yaml:"attacktargets,omitempty"`
	Requests         []RequestOutcome `json:"requests" yaml:"requests"`
	UsedPairs        int              `json:"usedpairs" yaml:"usedpairs"`
	AvgRouteFidelity float64          `json:"avgroutefidelity" yaml:"avgroutefidelity"`
}

// ResultRow summarizes one run.  Rates are percentages of the requests.
type ResultRow struct {
	Requests         int     `json:"requests" yaml:"requests"`
	Topology         string  `json:"topology" yaml:"topology"`
	Nodes            int     `json:"nodes" yaml:"nodes"`
	SuccessRate      float64 `json:"successrate" yaml:"successrate"`
	FailureRate      float64 `json:"failurerate" yaml:"failurerate"`
	ImpossibleRate   float64 `json:"impossiblerate" yaml:"impossiblerate"`
	AvgAttempts      float64 `json:"avgattempts" yaml:"avgattempts"`
	UsedPairs        int     `json:"usedpairs" yaml:"usedpairs"`
	AvgRouteFidelity float64 `json:"avgroutefidelity" yaml:"avgroutefidelity"`
	Attackers        int     `json:"attackers" yaml:"attackers"`
}

// Summary tallies the request outcomes of the run into a row
func (rr *RunRecord) Summary() ResultRow {
	row := ResultRow{
		Requests:         len(rr.Requests),
		Topology:         rr.Topology,
		Nodes:            rr.Nodes,
		UsedPairs:        rr.UsedPairs,
		AvgRouteFidelity: rr.AvgRouteFidelity,
		Attackers:        len(rr.Attackers),
	}
	if row.Requests == 0 {
		return row
	}

	var success, failed, impossible, attempts int
	for _, req := range rr.Requests {
		switch req.Result {
		case SwapSucceeded:
			success += 1
		case SwapFailed:
			failed += 1
		case SwapImpossible:
			impossible += 1
		}
		attempts += req.Attempts
	}
	n := float64(row.Requests)
	row.SuccessRate = roundFloat(float64(success)/n*100, rdigits)
	row.FailureRate = roundFloat(float64(failed)/n*100, rdigits)
	row.ImpossibleRate = roundFloat(float64(impossible)/n*100, rdigits)
	row.AvgAttempts = roundFloat(float64(attempts)/n, rdigits)
	return row
}

// Simulation runs simulations of one description.  Runs share nothing but the
// description, the trace manager and the collector, all safe for concurrent use.
type Simulation struct {
	cfg       *SimCfg
	log       logrus.FieldLogger
	trace     *TraceManager
	collector *Collector

	// newRand gives the random source of a run's network, nil for a fresh rngstream
	newRand func(run int) Rand
}

// CreateSimulation is a constructor.  The logger, trace manager and collector may be nil.
func CreateSimulation(cfg *SimCfg, log logrus.FieldLogger, tm *TraceManager, collector *Collector) *Simulation {
	sim := new(Simulation)
	sim.cfg = cfg
	sim.log = orDiscard(log)
	sim.trace = tm
	sim.collector = collector
	return sim
}

// SetRandFactory replaces the random sources of the networks the simulation builds
func (sim *Simulation) SetRandFactory(newRand func(run int) Rand) {
	sim.newRand = newRand
}

// BuildNetwork creates the network of a run with its topology in place
func (sim *Simulation) BuildNetwork(run int) (*Network, error) {
	name := fmt.Sprintf("%s-run-%d", sim.cfg.Name, run)
	var rng Rand
	if sim.newRand != nil {
		rng = sim.newRand(run)
	} else {
		rng = newRngStream(name)
	}
	net := createNetwork(name, &sim.cfg.Network, sim.log.WithField("run", run), sim.trace, rng)
	args, err := sim.cfg.TopologyArguments()
	if err != nil {
		return nil, err
	}
	if err := net.SetTopology(sim.cfg.Topology, args...); err != nil {
		return nil, err
	}
	return net, nil
}

// Run executes one complete simulation.  Only configuration problems are returned as
// errors; request failures are outcomes recorded in the RunRecord.
func (sim *Simulation) Run(run int) (*RunRecord, error) {
	start := time.Now()
	logger := sim.log.WithField("run", run)

	net, err := sim.BuildNetwork(run)
	if err != nil {
		return nil, err
	}
	realEdges := net.Edges()

	attackers := SelectAttackers(net, sim.cfg.Attackers, sim.cfg.TargetedAttack)
	SetNetworkSwapProbabilities(net, sim.cfg.NetworkSwapProb, sim.cfg.AttackerSwapProb, sim.cfg.TargetedAttack)
	if err := net.ApplyParameters(sim.cfg.Parameters); err != nil {
		return nil, err
	}

	record := &RunRecord{
		Run:       run,
		Topology:  net.Topology(),
		Nodes:     len(net.Hosts()),
		Attackers: make([]int, 0, len(attackers)),
		Requests:  make([]RequestOutcome, 0, sim.cfg.Requests),
	}
	for _, attacker := range attackers {
		record.Attackers = append(record.Attackers, attacker.ID())
		if targets := attacker.AttackTargets(); len(targets) > 0 {
			if record.AttackTargets == nil {
				record.AttackTargets = make(map[int]int)
			}
			record.AttackTargets[attacker.ID()] = targets[0].ID()
		}
	}
	logger.WithField("attackers", record.Attackers).Infof("simulating %d requests on a %s topology of %d hosts",
		sim.cfg.Requests, record.Topology, record.Nodes)

	nl := net.NetworkLayer()
	for req := 0; req < sim.cfg.Requests; req++ {
		if req != 0 && req%sim.cfg.ReplenishInterval == 0 {
			if err := net.Physical().Replenish(realEdges, sim.cfg.PairsReplenished); err != nil {
				logger.WithField("request", req).Warnf("replenishment incomplete: %v", err)
			}
			sim.collector.ObserveReplenish()
		}

		alice, bob := SelectAliceBob(net, attackers)
		outcome := RequestOutcome{Index: req, Alice: alice, Bob: bob, Result: SwapImpossible}

		route, err := nl.FindRoute(alice, bob, true)
		if err != nil {
			logger.WithFields(logrus.Fields{"alice": alice, "bob": bob}).Debugf("request impossible: %v", err)
		} else {
			outcome.Route = route
			outcome.Result, outcome.Attempts = CreateRequest(nl, route, sim.cfg.Attempts, logger)
		}
		record.Requests = append(record.Requests, outcome)
		sim.collector.ObserveRequest(outcome.Result, outcome.Attempts)
	}

	record.UsedPairs = net.TotalUsedPairs()
	record.AvgRouteFidelity = net.AverageRouteFidelity()
	sim.collector.ObserveRun(record.UsedPairs, time.Since(start))
	logger.WithField("usedpairs", record.UsedPairs).Info("run complete")
	return record, nil
}

// CreateRequest attempts swapping along the route up to attempts times, stopping at the
// first outcome other than SwapFailed.  A retry resumes from what remains of the route.
// It returns the last outcome and the number of failed attempts.
func CreateRequest(nl *NetworkLayer, route []int, attempts int, log logrus.FieldLogger) (SwapResult, int) {
	result := SwapFailed
	counter := 0
	remaining := route
	for attempt := 0; attempt < attempts; attempt++ {
		var err error
		result, remaining, err = nl.Swap(remaining)
		if err != nil {
			orDiscard(log).WithField("route", route).Debugf("swapping impossible: %v", err)
		}
		if result != SwapFailed {
			break
		}
		counter += 1
	}
	return result, counter
}

// SelectAttackers marks k hosts, sampled without replacement, as black holes.  Nothing is
// selected unless 0 < k < number of hosts.  With targeted set each attacker is given one
// target, sampled without replacement from the hosts that are not attackers; when there are
// fewer such hosts than attackers the remaining targets are drawn with replacement.
func SelectAttackers(net *Network, k int, targeted bool) []*Host {
	ids := net.SortedHostIDs()
	attackers := make([]*Host, 0, k)
	if k <= 0 || k >= len(ids) {
		return attackers
	}

	for _, id := range sampleWithoutReplacement(net.rng, ids, k) {
		host := net.Host(id)
		host.SetAttacker(true)
		attackers = append(attackers, host)
	}

	if targeted {
		normal := make([]int, 0, len(ids)-k)
		for _, id := range ids {
			if !net.Host(id).IsAttacker() {
				normal = append(normal, id)
			}
		}
		targets := sampleWithoutReplacement(net.rng, normal, k)
		for len(targets) < k {
			targets = append(targets, normal[randIndex(net.rng, len(normal))])
		}
		for idx, attacker := range attackers {
			attacker.AddAttackTarget(net.Host(targets[idx]))
		}
	}
	return attackers
}

// SetNetworkSwapProbabilities gives every host its swap success probabilities.  An attacker
// that is not targeted uses the attacker probability for all traffic; a targeted attacker uses
// the network probability, and the attacker probability for traffic of its targets.  A nil
// probability leaves the setting unset, a neutral factor.
func SetNetworkSwapProbabilities(net *Network, networkProb, attackerProb *float64, targeted bool) {
	set := func(p *float64, setter func(float64)) {
		if p != nil {
			setter(*p)
		}
	}
	for _, id := range net.SortedHostIDs() {
		host := net.Host(id)
		switch {
		case host.IsAttacker() && !targeted:
			set(attackerProb, host.SetSwapSuccessProbability)
		case host.IsAttacker() && targeted:
			set(networkProb, host.SetSwapSuccessProbability)
			set(attackerProb, host.SetTargetedSwapSuccessProbability)
		default:
			set(networkProb, host.SetSwapSuccessProbability)
		}
	}
}

// SelectAliceBob picks the source uniformly among hosts that are not attackers and the
// destination uniformly among all other hosts
func SelectAliceBob(net *Network, attackers []*Host) (int, int) {
	ids := net.SortedHostIDs()
	normal := make([]int, 0, len(ids))
	for _, id := range ids {
		if !net.Host(id).IsAttacker() {
			normal = append(normal, id)
		}
	}
	alice := normal[randIndex(net.rng, len(normal))]

	others := make([]int, 0, len(ids)-1)
	for _, id := range ids {
		if id != alice {
			others = append(others, id)
		}
	}
	bob := others[randIndex(net.rng, len(others))]
	return alice, bob
}
