package qnetsim

// desc-sim.go holds the descriptions of a simulation experiment: the parameters of the
// networks it builds, of the requests it runs and of how runs are spread over workers,
// plus run-time parameter overrides.  Descriptions are serialized to YAML or JSON, chosen
// by the extension of the file name.

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/exp/slices"
	"gopkg.in/yaml.v3"
)

// NetCfg describes how a Network bootstraps and ages its resources
type NetCfg struct {
	// qubits given to every host, pairs given to every channel, at bootstrap
	InitialQubits int `json:"initialqubits" yaml:"initialqubits"`
	InitialPairs  int `json:"initialpairs" yaml:"initialpairs"`

	// range of the per-channel on-demand and replay creation probabilities
	MinChannelProb float64 `json:"minchannelprob" yaml:"minchannelprob"`
	MaxChannelProb float64 `json:"maxchannelprob" yaml:"maxchannelprob"`

	// fidelity of bootstrap pairs
	PairFidelity float64 `json:"pairfidelity" yaml:"pairfidelity"`

	// range of the fidelity of created qubits
	MinQubitFidelity float64 `json:"minqubitfidelity" yaml:"minqubitfidelity"`
	MaxQubitFidelity float64 `json:"maxqubitfidelity" yaml:"maxqubitfidelity"`

	// per-timeslot decay of fidelities
	Decoherence       bool    `json:"decoherence" yaml:"decoherence"`
	DecoherenceFactor float64 `json:"decoherencefactor" yaml:"decoherencefactor"`

	// bound on heralding attempts for one replenished pair, 0 for the default
	HeraldingAttempts int `json:"heraldingattempts" yaml:"heraldingattempts"`
}

// DefaultNetCfg returns the bootstrap settings of the reference simulator
func DefaultNetCfg() *NetCfg {
	return &NetCfg{
		InitialQubits:     10,
		InitialPairs:      10,
		MinChannelProb:    0.2,
		MaxChannelProb:    1.0,
		PairFidelity:      1.0,
		MinQubitFidelity:  0.8,
		MaxQubitFidelity:  1.0,
		Decoherence:       false,
		DecoherenceFactor: 0.9,
		HeraldingAttempts: defaultHeraldingAttempts,
	}
}

func inUnit(v float64) bool {
	return v >= 0.0 && v <= 1.0
}

// Validate reports every inconsistent setting
func (nc *NetCfg) Validate() error {
	errs := make([]error, 0)
	if nc.InitialQubits < 0 || nc.InitialPairs < 0 {
		errs = append(errs, fmt.Errorf("initial qubits %d and pairs %d must be non-negative", nc.InitialQubits, nc.InitialPairs))
	}
	if !inUnit(nc.MinChannelProb) || !inUnit(nc.MaxChannelProb) || nc.MinChannelProb > nc.MaxChannelProb {
		errs = append(errs, fmt.Errorf("channel probability range [%v,%v] invalid", nc.MinChannelProb, nc.MaxChannelProb))
	}
	if nc.PairFidelity <= 0.0 || nc.PairFidelity > 1.0 {
		errs = append(errs, fmt.Errorf("pair fidelity %v not in (0,1]", nc.PairFidelity))
	}
	if nc.MinQubitFidelity <= 0.0 || nc.MaxQubitFidelity > 1.0 || nc.MinQubitFidelity > nc.MaxQubitFidelity {
		errs = append(errs, fmt.Errorf("qubit fidelity range [%v,%v] invalid", nc.MinQubitFidelity, nc.MaxQubitFidelity))
	}
	if nc.DecoherenceFactor <= 0.0 || nc.DecoherenceFactor > 1.0 {
		errs = append(errs, fmt.Errorf("decoherence factor %v not in (0,1]", nc.DecoherenceFactor))
	}
	if nc.HeraldingAttempts < 0 {
		errs = append(errs, fmt.Errorf("heralding attempts %d negative", nc.HeraldingAttempts))
	}
	if err := ReportErrs(errs); err != nil {
		return fmt.Errorf("%w: %w", ErrBadParameter, err)
	}
	return nil
}

// Backend names
const (
	CooperativeBackend = "cooperative"
	PoolBackend        = "pool"
	ProcessBackend     = "process"
)

var backendNames []string = []string{CooperativeBackend, PoolBackend, ProcessBackend}

// SimCfg describes a batch of independent simulation runs
type SimCfg struct {
	// Name labels the experiment, its random streams and its trace
	Name string `json:"expname" yaml:"expname"`

	// Runs is the number of independent simulations, spread over Workers using Backend
	Runs    int    `json:"runs" yaml:"runs"`
	Workers int    `json:"workers" yaml:"workers"`
	Backend string `json:"backend" yaml:"backend"`

	// Topology names the topology.  Nodes is the node count of every topology except the
	// grid; TopologyArgs holds the remaining arguments (both grid sizes, the tree branching
	// factor, the Erdős-Rényi edge probability, the Barabási-Albert attachment count)
	Topology     string    `json:"topology" yaml:"topology"`
	Nodes        int       `json:"nodes" yaml:"nodes"`
	TopologyArgs []float64 `json:"topologyargs" yaml:"topologyargs"`

	// Requests per run, swapping attempts per request
	Requests int `json:"requests" yaml:"requests"`
	Attempts int `json:"attempts" yaml:"attempts"`

	// every ReplenishInterval requests each original edge gets PairsReplenished pairs
	ReplenishInterval int `json:"replenishinterval" yaml:"replenishinterval"`
	PairsReplenished  int `json:"pairsreplenished" yaml:"pairsreplenished"`

	// swap success probability of every host, unset means neutral
	NetworkSwapProb *float64 `json:"networkswapprob,omitempty" yaml:"networkswapprob,omitempty"`

	// black holes: how many, their swap probability, and whether each targets one host
	Attackers        int      `json:"attackers" yaml:"attackers"`
	AttackerSwapProb *float64 `json:"attackerswapprob,omitempty" yaml:"attackerswapprob,omitempty"`
	TargetedAttack   bool     `json:"targetedattack" yaml:"targetedattack"`

	Network NetCfg `json:"network" yaml:"network"`

	// Trace turns on the trace manager, written to TraceFile when given
	Trace     bool   `json:"trace" yaml:"trace"`
	TraceFile string `json:"tracefile,omitempty" yaml:"tracefile,omitempty"`

	// Parameters is a list of run-time overrides applied to each built network
	Parameters []ParamOverride `json:"parameters" yaml:"parameters"`
}

// DefaultSimCfg returns a description with the defaults of the reference simulator
func DefaultSimCfg(name string) *SimCfg {
	return &SimCfg{
		Name:              name,
		Runs:              1,
		Workers:           1,
		Backend:           CooperativeBackend,
		Topology:          "ba",
		Nodes:             20,
		TopologyArgs:      []float64{3},
		Requests:          100,
		Attempts:          2,
		ReplenishInterval: 10,
		PairsReplenished:  10,
		Attackers:         1,
		Network:           *DefaultNetCfg(),
		Parameters:        make([]ParamOverride, 0),
	}
}

// Float64 is a helper for setting the optional probabilities
func Float64(v float64) *float64 {
	return &v
}

// TopologyArguments returns the arguments SetTopology expects for the configured topology
func (cfg *SimCfg) TopologyArguments() ([]float64, error) {
	tk, err := ParseTopology(cfg.Topology)
	if err != nil {
		return nil, err
	}
	switch tk {
	case GridTopology:
		return append([]float64(nil), cfg.TopologyArgs...), nil
	case LineTopology, RingTopology, StarTopology:
		return []float64{float64(cfg.Nodes)}, nil
	}
	return append([]float64{float64(cfg.Nodes)}, cfg.TopologyArgs...), nil
}

// NodeCount returns the number of hosts the configured topology will have
func (cfg *SimCfg) NodeCount() int {
	tk, err := ParseTopology(cfg.Topology)
	if err == nil && tk == GridTopology && len(cfg.TopologyArgs) == 2 {
		return int(cfg.TopologyArgs[0]) * int(cfg.TopologyArgs[1])
	}
	return cfg.Nodes
}

// Validate reports every inconsistent setting of the description
func (cfg *SimCfg) Validate() error {
	errs := make([]error, 0)
	if cfg.Runs < 1 {
		errs = append(errs, fmt.Errorf("runs %d must be positive", cfg.Runs))
	}
	if cfg.Workers < 1 {
		errs = append(errs, fmt.Errorf("workers %d must be positive", cfg.Workers))
	}
	if !slices.Contains(backendNames, cfg.Backend) {
		errs = append(errs, fmt.Errorf("backend %q is not one of %v", cfg.Backend, backendNames))
	}

	args, err := cfg.TopologyArguments()
	if err != nil {
		errs = append(errs, err)
	} else {
		tk, _ := ParseTopology(cfg.Topology)
		if len(args) != tk.ArgCount() {
			errs = append(errs, fmt.Errorf("%s topology takes %d arguments, configuration gives %v", tk, tk.ArgCount(), args))
		}
	}
	nodes := cfg.NodeCount()
	if nodes < 2 {
		errs = append(errs, fmt.Errorf("a simulation needs at least 2 hosts, has %d", nodes))
	}

	if cfg.Requests < 0 {
		errs = append(errs, fmt.Errorf("requests %d negative", cfg.Requests))
	}
	if cfg.Attempts < 1 {
		errs = append(errs, fmt.Errorf("attempts %d must be positive", cfg.Attempts))
	}
	if cfg.ReplenishInterval < 1 {
		errs = append(errs, fmt.Errorf("replenish interval %d must be positive", cfg.ReplenishInterval))
	}
	if cfg.PairsReplenished < 0 {
		errs = append(errs, fmt.Errorf("pairs replenished %d negative", cfg.PairsReplenished))
	}
	if cfg.Attackers < 0 || (nodes >= 2 && cfg.Attackers >= nodes) {
		errs = append(errs, fmt.Errorf("attackers %d must be in [0,%d)", cfg.Attackers, nodes))
	}
	if cfg.NetworkSwapProb != nil && !inUnit(*cfg.NetworkSwapProb) {
		errs = append(errs, fmt.Errorf("network swap probability %v not in [0,1]", *cfg.NetworkSwapProb))
	}
	if cfg.AttackerSwapProb != nil && !inUnit(*cfg.AttackerSwapProb) {
		errs = append(errs, fmt.Errorf("attacker swap probability %v not in [0,1]", *cfg.AttackerSwapProb))
	}
	for _, param := range cfg.Parameters {
		if err := ValidateParameter(param.ParamObj, param.Attribute, param.Param, param.Value); err != nil {
			errs = append(errs, err)
		}
	}
	if err := cfg.Network.Validate(); err != nil {
		errs = append(errs, err)
	}

	if err := ReportErrs(errs); err != nil {
		if len(errs) == 1 && errors.Is(errs[0], ErrBadParameter) {
			return errs[0]
		}
		return fmt.Errorf("%w: %w", ErrBadParameter, err)
	}
	return nil
}

// AddParameter accepts the four values of a ParamOverride, creates one, and adds it to the list.
// Returns an error if the parameter is not validated.
func (cfg *SimCfg) AddParameter(paramObj, attribute, param, value string) error {
	if err := ValidateParameter(paramObj, attribute, param, value); err != nil {
		return err
	}
	cfg.Parameters = append(cfg.Parameters, *CreateParamOverride(paramObj, attribute, param, value))
	return nil
}

// useYAMLFor selects the serialization from the extension of the file name
func useYAMLFor(filename string) (bool, error) {
	switch path.Ext(filename) {
	case ".yaml", ".YAML", ".yml":
		return true, nil
	case ".json", ".JSON":
		return false, nil
	}
	return false, fmt.Errorf("file %s: extension selects neither YAML nor JSON", filename)
}

// WriteToFile stores the SimCfg struct to the file whose name is given.
// Serialization to json or to yaml is selected based on the extension of this name.
func (cfg *SimCfg) WriteToFile(filename string) error {
	useYAML, err := useYAMLFor(filename)
	if err != nil {
		return err
	}
	var bytes []byte
	if useYAML {
		bytes, err = yaml.Marshal(*cfg)
	} else {
		bytes, err = json.MarshalIndent(*cfg, "", "\t")
	}
	if err != nil {
		return err
	}
	return os.WriteFile(filename, bytes, 0o644)
}

// ReadSimCfg deserializes a byte slice holding a representation of a SimCfg struct.
// If the input argument of dict (those bytes) is empty, the file whose name is given is read
// to acquire them.  Settings the representation leaves out keep their defaults.
func ReadSimCfg(filename string, useYAML bool, dict []byte) (*SimCfg, error) {
	var err error
	if len(dict) == 0 {
		dict, err = os.ReadFile(filename)
		if err != nil {
			return nil, err
		}
	}

	example := DefaultSimCfg(strings.TrimSuffix(filepath.Base(filename), path.Ext(filename)))
	if useYAML {
		err = yaml.Unmarshal(dict, example)
	} else {
		err = json.Unmarshal(dict, example)
	}
	if err != nil {
		return nil, err
	}
	return example, nil
}

// LoadSimCfg reads the file, selecting the serialization by extension, and validates it
func LoadSimCfg(filename string) (*SimCfg, error) {
	useYAML, err := useYAMLFor(filename)
	if err != nil {
		return nil, err
	}
	cfg, err := ReadSimCfg(filename, useYAML, nil)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// A ParamOverride describes a run-time setting of objects of the built network.
//   - ParamObj identifies the kind of thing being configured : Host or Channel
//   - Attribute identifies a class of objects of that type to which the parameter should apply.
//     May be "*" for a wild-card, may be "name%%xxyy" where "xxyy" is the object's identifier
//     (a host id, or "a-b" for the channel between hosts a and b), or a comma-separated list
//     of the other attributes of ParamAttributes
type ParamOverride struct {
	// Type of thing being configured
	ParamObj string `json:"paramObj" yaml:"paramObj"`

	// attribute identifier for this parameter
	Attribute string `json:"attribute" yaml:"attribute"`

	// parameter being set, e.g., "swapProb", "onDemandProb"
	Param string `json:"param" yaml:"param"`

	// string-encoded value
	Value string `json:"value" yaml:"value"`
}

// CreateParamOverride is a constructor.  Completely fills in the struct.
func CreateParamOverride(paramObj, attribute, param, value string) *ParamOverride {
	return &ParamOverride{ParamObj: paramObj, Attribute: attribute, Param: param, Value: value}
}

// Eq reports whether two overrides are identical
func (po *ParamOverride) Eq(other *ParamOverride) bool {
	return po.ParamObj == other.ParamObj && po.Attribute == other.Attribute &&
		po.Param == other.Param && po.Value == other.Value
}

// ParamObjs, ParamAttributes, and ParamNames describe the types of objects that
// overrides configure, for each the attributes an object can be tested for to determine
// whether it receives the parameter, and the parameters defined for each object type
var ParamObjs []string = []string{"Host", "Channel"}

var ParamAttributes map[string][]string = map[string][]string{
	"Host":    {"attacker", "normal", "*"},
	"Channel": {"*"},
}

var ParamNames map[string][]string = map[string][]string{
	"Host":    {"swapProb", "targetedSwapProb", "memorySize"},
	"Channel": {"onDemandProb", "replayProb"},
}

// ValidateParameter returns an error if the paramObj, attribute, param and value don't
// make sense taken together within a ParamOverride.
func ValidateParameter(paramObj, attribute, param, value string) error {
	if !slices.Contains(ParamObjs, paramObj) {
		return fmt.Errorf("parameter paramObj %s is not recognized: %w", paramObj, ErrBadParameter)
	}

	attrbList := strings.Split(attribute, ",")
	for _, attrb := range attrbList {
		attrb = strings.TrimSpace(attrb)

		// name or "*" has to be the only attribute in the list
		if strings.HasPrefix(attrb, "name%%") || attrb == "*" {
			if len(attrbList) != 1 {
				return fmt.Errorf("parameter attribute %s of paramObj %s is included with more attributes: %w",
					attrb, paramObj, ErrBadParameter)
			}
			continue
		}
		if !slices.Contains(ParamAttributes[paramObj], attrb) {
			return fmt.Errorf("parameter attribute %s is not recognized for paramObj %s: %w", attrb, paramObj, ErrBadParameter)
		}
	}

	if !slices.Contains(ParamNames[paramObj], param) {
		return fmt.Errorf("parameter %s is not recognized for paramObj %s: %w", param, paramObj, ErrBadParameter)
	}

	switch param {
	case "memorySize":
		if v, err := strconv.Atoi(value); err != nil || v < 0 {
			return fmt.Errorf("parameter %s value %q is not a non-negative integer: %w", param, value, ErrBadParameter)
		}
	default:
		if v, err := strconv.ParseFloat(value, 64); err != nil || !inUnit(v) {
			return fmt.Errorf("parameter %s value %q is not a probability: %w", param, value, ErrBadParameter)
		}
	}
	return nil
}

// CheckReadableFiles probes the file system to ensure that every
// one of the argument filenames exists and is readable
func CheckReadableFiles(names []string) (bool, error) {
	return CheckFiles(names, true)
}

// CheckOutputFiles probes the file system to ensure that the directory
// of every argument filename exists, so the file can be written.
func CheckOutputFiles(names []string) (bool, error) {
	return CheckFiles(names, false)
}

// CheckFiles probes the file system for permitted access to all the
// argument filenames, optionally checking also for the existence
// of those files for the purposes of reading them.
func CheckFiles(names []string, checkExistence bool) (bool, error) {
	errs := make([]error, 0)

	for _, name := range names {
		if len(name) == 0 {
			continue
		}

		// split off the directory portion of the path
		directory, _ := filepath.Split(name)
		if directory == "" {
			continue
		}
		if _, err := os.Stat(directory); err != nil {
			errs = append(errs, err)
		}
	}

	if checkExistence {
		for _, name := range names {
			if len(name) == 0 {
				continue
			}
			if _, err := os.Stat(name); err != nil {
				errs = append(errs, err)
			}
		}
	}

	if len(errs) == 0 {
		return true, nil
	}
	return false, ReportErrs(errs)
}
