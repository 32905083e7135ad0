package qnetsim

import (
	"errors"
)

// Errors reported by network construction, route discovery and the
// resource pools.  They are wrapped with context, so test with errors.Is.
var (
	ErrUnknownTopology    = errors.New("unknown topology")
	ErrBadTopologyArgs    = errors.New("bad topology arguments")
	ErrDuplicateHost      = errors.New("duplicate host")
	ErrUnknownNode        = errors.New("unknown node")
	ErrNoRouteFound       = errors.New("no route found")
	ErrInsufficientPairs  = errors.New("insufficient entangled pairs on route")
	ErrNoPairsAvailable   = errors.New("no entangled pairs available")
	ErrNoChannel          = errors.New("no channel between nodes")
	ErrEmptyMemory        = errors.New("no qubits in memory")
	ErrInvalidRoute       = errors.New("invalid route")
	ErrHeraldingExhausted = errors.New("heralding protocol exhausted its attempts")
	ErrBadParameter       = errors.New("bad parameter")
)

// ReportErrs joins the non-nil errors of the list into a single error, nil if there are
// none.  The result matches every constituent under errors.Is.
func ReportErrs(errs []error) error {
	return errors.Join(errs...)
}
