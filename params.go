package qnetsim

// params.go applies the run-time parameter overrides of a SimCfg to the hosts and
// channels of a built network, most general assignment first.

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// A valueStruct type holds the different types a value might have,
// typically only one of these is used, and which one is known by context
type valueStruct struct {
	intValue    int
	floatValue  float64
	stringValue string
	boolValue   bool
}

// paramObj is satisfied by the objects an override can configure
type paramObj interface {
	matchParam(string, string) bool
	setParam(string, valueStruct)
	paramObjName() string
}

// attrbStruct is one element of the comma-separated Attribute of an override
type attrbStruct struct {
	AttrbName, AttrbValue string
}

// parseAttributes splits an override Attribute into its elements.
// "name%%xxyy" becomes (name, xxyy), anything else is a name with an empty value.
func parseAttributes(attribute string) []attrbStruct {
	attrbs := make([]attrbStruct, 0)
	for _, attrb := range strings.Split(attribute, ",") {
		attrb = strings.TrimSpace(attrb)
		if strings.HasPrefix(attrb, "name%%") {
			attrbs = append(attrbs, attrbStruct{AttrbName: "name", AttrbValue: strings.TrimPrefix(attrb, "name%%")})
			continue
		}
		attrbs = append(attrbs, attrbStruct{AttrbName: attrb})
	}
	return attrbs
}

// specificity ranks an override: wildcards 0, attribute classes 1, names 2
func specificity(po *ParamOverride) int {
	for _, attrb := range parseAttributes(po.Attribute) {
		if attrb.AttrbName == "*" {
			return 0
		}
		if attrb.AttrbName == "name" {
			return 2
		}
	}
	return 1
}

// reorderParams is used to put the overrides in an order such that the earlier
// elements in the order have broader range of attributes than later ones that apply
// to the same object.  This is the same idea as choosing the routing rule that has the
// smallest subnet range, when multiple rules apply to the same IP address.
// Identical overrides are removed.
func reorderParams(pL []ParamOverride) []ParamOverride {
	ordered := append([]ParamOverride(nil), pL...)
	sort.SliceStable(ordered, func(i, j int) bool {
		si, sj := specificity(&ordered[i]), specificity(&ordered[j])
		if si != sj {
			return si < sj
		}
		if ordered[i].ParamObj != ordered[j].ParamObj {
			return ordered[i].ParamObj < ordered[j].ParamObj
		}
		if ordered[i].Attribute != ordered[j].Attribute {
			return ordered[i].Attribute < ordered[j].Attribute
		}
		return ordered[i].Param < ordered[j].Param
	})

	for idx := len(ordered) - 1; idx > 0; idx-- {
		if ordered[idx].Eq(&ordered[idx-1]) {
			ordered = append(ordered[:idx], ordered[idx+1:]...)
		}
	}
	return ordered
}

// stringToValueStruct takes a string (used in the run-time configuration phase)
// and determines whether it is an integer, floating point, bool, or a string
func stringToValueStruct(v string) valueStruct {
	vs := valueStruct{}

	ivalue, ierr := strconv.Atoi(v)
	if ierr == nil {
		vs.intValue = ivalue
		vs.floatValue = float64(ivalue)
		return vs
	}

	fvalue, ferr := strconv.ParseFloat(v, 64)
	if ferr == nil {
		vs.floatValue = fvalue
		return vs
	}

	if v == "true" || v == "True" {
		vs.boolValue = true
		return vs
	}

	vs.stringValue = v
	return vs
}

// channelRef lets a channel be configured by an override
type channelRef struct {
	a, b int
	ch   *Channel
}

// matchParam tests the channel against one attribute of an override
func (cr *channelRef) matchParam(attrbName, attrbValue string) bool {
	switch attrbName {
	case "name":
		return attrbValue == fmt.Sprintf("%d-%d", cr.a, cr.b) || attrbValue == fmt.Sprintf("%d-%d", cr.b, cr.a)
	}
	return false
}

func (cr *channelRef) paramObjName() string {
	return "Channel"
}

// setParam gives a value to a channel parameter
func (cr *channelRef) setParam(param string, value valueStruct) {
	switch param {
	case "onDemandProb":
		cr.ch.OnDemandProb = value.floatValue
	case "replayProb":
		cr.ch.ReplayProb = value.floatValue
	}
}

// paramObjects lists the configurable objects of the network by ParamObj type
func (net *Network) paramObjects() map[string][]paramObj {
	objs := map[string][]paramObj{"Host": {}, "Channel": {}}
	for _, id := range net.SortedHostIDs() {
		objs["Host"] = append(objs["Host"], net.hosts[id])
	}
	for _, edge := range net.Edges() {
		ch, _ := net.Channel(edge[0], edge[1])
		objs["Channel"] = append(objs["Channel"], &channelRef{a: edge[0], b: edge[1], ch: ch})
	}
	return objs
}

// ApplyParameters validates the overrides, then applies them to every matching host
// and channel, more general assignments before more specific ones
func (net *Network) ApplyParameters(params []ParamOverride) error {
	errs := make([]error, 0)
	for _, param := range params {
		errs = append(errs, ValidateParameter(param.ParamObj, param.Attribute, param.Param, param.Value))
	}
	if err := ReportErrs(errs); err != nil {
		return fmt.Errorf("%w: %w", ErrBadParameter, err)
	}

	objs := net.paramObjects()
	for _, param := range reorderParams(params) {
		attrbs := parseAttributes(param.Attribute)
		vs := stringToValueStruct(param.Value)
		applied := 0

		// every attribute of a comma-separated list has to match, '*' matches all
		for _, testObj := range objs[param.ParamObj] {
			matched := true
			for _, attrb := range attrbs {
				if attrb.AttrbName == "*" {
					matched = true
					break
				}
				if !testObj.matchParam(attrb.AttrbName, attrb.AttrbValue) {
					matched = false
					break
				}
			}
			if matched {
				testObj.setParam(param.Param, vs)
				applied += 1
			}
		}
		net.log.Debugf("%s %s %s=%s applied to %d objects", param.ParamObj, param.Attribute, param.Param, param.Value, applied)
	}
	return nil
}
