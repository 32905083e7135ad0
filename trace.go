package qnetsim

// trace.go gathers diagnostic records of qubit and swap activity during a run,
// for post-run analysis.  A nil *TraceManager is valid and records nothing.

import (
	"encoding/json"
	"fmt"
	"os"
	"path"
	"strconv"
	"sync"

	"github.com/iti/evt/vrtime"
	"gopkg.in/yaml.v3"
)

type TraceRecordType int

const (
	QubitType TraceRecordType = iota
	SwapType
)

var trtToStr map[TraceRecordType]string = map[TraceRecordType]string{QubitType: "qubit", SwapType: "swap"}

func (trt TraceRecordType) String() string {
	return trtToStr[trt]
}

type TraceInst struct {
	TraceTime string `json:"tracetime" yaml:"tracetime"`
	TraceType string `json:"tracetype" yaml:"tracetype"`
	TraceStr  string `json:"tracestr" yaml:"tracestr"`
}

// NameType is an entry in a dictionary created for a trace
// that maps object id numbers to a (name,type) pair
type NameType struct {
	Name string `json:"name" yaml:"name"`
	Type string `json:"type" yaml:"type"`
}

// traceKey identifies a host within one network
type traceKey struct {
	network string
	hostID  int
}

// TraceManager is used to gather information about the execution of a
// simulation.  Traces are stored by the object id of the host the record concerns.
// Every (network, host) pair gets its own object id, so runs sharing the manager
// keep their records apart.
type TraceManager struct {
	// experiment uses trace
	InUse bool `json:"inuse" yaml:"inuse"`

	// name of experiment
	ExpName string `json:"expname" yaml:"expname"`

	// text name associated with each objID
	NameByID map[int]NameType `json:"namebyid" yaml:"namebyid"`

	// all trace records for this experiment
	Traces map[int][]TraceInst `json:"traces" yaml:"traces"`

	// object id of each (network, host) pair
	objIDs map[traceKey]int

	// runs of one batch may share the manager
	mu sync.Mutex
}

// CreateTraceManager is a constructor.  It saves the name of the experiment
// and a flag indicating whether the trace manager is active.  By testing this
// flag we can inhibit the activity of gathering a trace when we don't want it,
// while embedding calls to its methods everywhere we need them when it is
func CreateTraceManager(expName string, active bool) *TraceManager {
	tm := new(TraceManager)
	tm.InUse = active
	tm.ExpName = expName
	tm.NameByID = make(map[int]NameType)
	tm.Traces = make(map[int][]TraceInst)
	tm.objIDs = make(map[traceKey]int)
	return tm
}

// Active tells the caller whether the Trace Manager is actively being used
func (tm *TraceManager) Active() bool {
	return tm != nil && tm.InUse
}

// AddTrace stores a trace record under the object id
func (tm *TraceManager) AddTrace(vrt vrtime.Time, objID int, trace TraceInst) {
	if !tm.Active() {
		return
	}
	tm.mu.Lock()
	defer tm.mu.Unlock()
	tm.Traces[objID] = append(tm.Traces[objID], trace)
}

// AddName is used to add an element to the id -> (name,type) dictionary for the trace file.
// Repeats of an id already named are ignored.
func (tm *TraceManager) AddName(id int, name string, objDesc string) {
	if !tm.Active() {
		return
	}
	tm.mu.Lock()
	defer tm.mu.Unlock()
	_, present := tm.NameByID[id]
	if present {
		return
	}
	tm.NameByID[id] = NameType{Name: name, Type: objDesc}
}

// hostObjID returns the object id of the host of the named network, naming it
// "<network>/host-<id>" the first time it is seen
func (tm *TraceManager) hostObjID(network string, hostID int) int {
	key := traceKey{network: network, hostID: hostID}
	tm.mu.Lock()
	objID, present := tm.objIDs[key]
	if !present {
		if tm.objIDs == nil {
			tm.objIDs = make(map[traceKey]int)
		}
		objID = len(tm.objIDs)
		tm.objIDs[key] = objID
	}
	tm.mu.Unlock()

	if !present {
		tm.AddName(objID, network+"/host-"+strconv.Itoa(hostID), "Host")
	}
	return objID
}

// HostTraces returns a copy of the records stored for the host of the named network
func (tm *TraceManager) HostTraces(network string, hostID int) []TraceInst {
	if !tm.Active() {
		return nil
	}
	tm.mu.Lock()
	defer tm.mu.Unlock()
	objID, present := tm.objIDs[traceKey{network: network, hostID: hostID}]
	if !present {
		return nil
	}
	return append([]TraceInst(nil), tm.Traces[objID]...)
}

// Len returns the number of trace records held
func (tm *TraceManager) Len() int {
	if tm == nil {
		return 0
	}
	tm.mu.Lock()
	defer tm.mu.Unlock()
	total := 0
	for _, traces := range tm.Traces {
		total += len(traces)
	}
	return total
}

// WriteToFile stores the Traces struct to the file whose name is given.
// Serialization to json or to yaml is selected based on the extension of this name.
func (tm *TraceManager) WriteToFile(filename string) (bool, error) {
	if !tm.Active() {
		return false, nil
	}
	tm.mu.Lock()
	defer tm.mu.Unlock()

	pathExt := path.Ext(filename)
	var bytes []byte
	var merr error = nil

	if pathExt == ".yaml" || pathExt == ".YAML" || pathExt == ".yml" {
		bytes, merr = yaml.Marshal(tm)
	} else if pathExt == ".json" || pathExt == ".JSON" {
		bytes, merr = json.MarshalIndent(tm, "", "\t")
	} else {
		return false, fmt.Errorf("trace file %s: unrecognized extension", filename)
	}

	if merr != nil {
		return false, merr
	}

	if werr := os.WriteFile(filename, bytes, 0o644); werr != nil {
		return false, werr
	}
	return true, nil
}

// QubitTrace saves the arrival or departure of a qubit in host memory
type QubitTrace struct {
	Network  string `yaml:"network"`
	Timeslot int    `yaml:"timeslot"`
	HostID   int    `yaml:"hostid"`
	QubitID  int    `yaml:"qubitid"`
	Op       string `yaml:"op"` // "add", "consume"
}

// SwapTrace saves the outcome of one entanglement swapping step
type SwapTrace struct {
	Network     string  `yaml:"network"`
	Timeslot    int     `yaml:"timeslot"`
	Alice       int     `yaml:"alice"`
	Nodes       []int   `yaml:"nodes"`
	SuccessProb float64 `yaml:"successprob"`
	Fidelity    float64 `yaml:"fidelity"`
	Op          string  `yaml:"op"` // "swapped", "failed", "hop"
}

func serializeTrace(rec any) string {
	bytes, merr := yaml.Marshal(rec)
	if merr != nil {
		return fmt.Sprintf("%v", rec)
	}
	return string(bytes)
}

func traceTime(timeslot int) (vrtime.Time, string) {
	vrt := vrtime.SecondsToTime(float64(timeslot))
	return vrt, strconv.FormatFloat(vrt.Seconds(), 'f', -1, 64)
}

// AddQubitTrace creates a record of a qubit operation at a host of the named network, and stores it
func (tm *TraceManager) AddQubitTrace(network string, timeslot, hostID, qubitID int, op string) {
	if !tm.Active() {
		return
	}
	qtr := QubitTrace{Network: network, Timeslot: timeslot, HostID: hostID, QubitID: qubitID, Op: op}
	vrt, ts := traceTime(timeslot)
	tm.AddTrace(vrt, tm.hostObjID(network, hostID), TraceInst{TraceTime: ts, TraceType: QubitType.String(), TraceStr: serializeTrace(qtr)})
}

// AddSwapTrace creates a record of a swapping step, stored under the first node of the step
func (tm *TraceManager) AddSwapTrace(network string, timeslot, alice int, nodes []int, successProb, fidelity float64, op string) {
	if !tm.Active() || len(nodes) == 0 {
		return
	}
	str := SwapTrace{Network: network, Timeslot: timeslot, Alice: alice, Nodes: append([]int(nil), nodes...),
		SuccessProb: successProb, Fidelity: fidelity, Op: op}
	vrt, ts := traceTime(timeslot)
	tm.AddTrace(vrt, tm.hostObjID(network, nodes[0]), TraceInst{TraceTime: ts, TraceType: SwapType.String(), TraceStr: serializeTrace(str)})
}
