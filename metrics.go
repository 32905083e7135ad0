package qnetsim

// metrics.go assembles the fixed set of network metrics and emits them
// on a console, as a CSV table, or as an in-memory map.

import (
	"fmt"
	"io"
	"os"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
	"github.com/apache/arrow/go/v17/arrow/csv"
	"github.com/apache/arrow/go/v17/arrow/memory"
)

// Names of the network metrics
const (
	MetricTimeslotTotal      = "Timeslot Total"
	MetricUsedPairs          = "Used EPRs"
	MetricUsedQubits         = "Used Qubits"
	MetricTransportFidelity  = "Transport Layer Fidelity"
	MetricLinkFidelity       = "Link Layer Fidelity"
	MetricAverageRouteLength = "Average Route Length"
)

// MetricNames lists every metric in reporting order
var MetricNames []string = []string{
	MetricTimeslotTotal,
	MetricUsedPairs,
	MetricUsedQubits,
	MetricTransportFidelity,
	MetricLinkFidelity,
	MetricAverageRouteLength,
}

// MetricsMode selects how Metrics emits its result
type MetricsMode int

const (
	MetricsPrint MetricsMode = iota
	MetricsTable
	MetricsMap
)

var metricsModeToStr map[MetricsMode]string = map[MetricsMode]string{
	MetricsPrint: "print",
	MetricsTable: "csv",
	MetricsMap:   "variable",
}

func (mm MetricsMode) String() string {
	return metricsModeToStr[mm]
}

// metricsSchema is the layout of the metrics table
func metricsSchema() *arrow.Schema {
	return arrow.NewSchema([]arrow.Field{
		{Name: "Metric", Type: arrow.BinaryTypes.String},
		{Name: "Value", Type: arrow.PrimitiveTypes.Float64},
	}, nil)
}

// metricValues evaluates every metric
func (net *Network) metricValues() map[string]float64 {
	return map[string]float64{
		MetricTimeslotTotal:      float64(net.timeslot),
		MetricUsedPairs:          float64(net.TotalUsedPairs()),
		MetricUsedQubits:         float64(net.TotalUsedQubits()),
		MetricTransportFidelity:  net.layerFidelity(TransportLayerKind),
		MetricLinkFidelity:       net.layerFidelity(LinkLayerKind),
		MetricAverageRouteLength: net.netLayer.AverageRouteLength(),
	}
}

// Metrics returns the requested metrics, all of them when requested is empty, and
// emits them according to mode: MetricsPrint writes "name: value" lines, MetricsTable
// writes a CSV table with a header, MetricsMap only returns them.  Unknown names are
// ignored.  A nil writer stands for standard output.
func (net *Network) Metrics(requested []string, mode MetricsMode, w io.Writer) (map[string]float64, error) {
	if len(requested) == 0 {
		requested = MetricNames
	}
	values := net.metricValues()
	names := make([]string, 0, len(requested))
	metrics := make(map[string]float64)
	for _, name := range requested {
		value, present := values[name]
		if !present {
			continue
		}
		if _, dup := metrics[name]; !dup {
			names = append(names, name)
		}
		metrics[name] = value
	}

	if w == nil {
		w = os.Stdout
	}

	switch mode {
	case MetricsPrint:
		for _, name := range names {
			if _, err := fmt.Fprintf(w, "%s: %v\n", name, metrics[name]); err != nil {
				return nil, err
			}
		}
	case MetricsTable:
		if err := writeMetricsTable(w, names, metrics); err != nil {
			return nil, err
		}
	case MetricsMap:
	default:
		return nil, fmt.Errorf("metrics mode %d: %w", mode, ErrBadParameter)
	}
	return metrics, nil
}

// writeMetricsTable writes the metrics as CSV through an Arrow record
func writeMetricsTable(w io.Writer, names []string, metrics map[string]float64) error {
	schema := metricsSchema()
	builder := array.NewRecordBuilder(memory.DefaultAllocator, schema)
	defer builder.Release()

	nameBldr := builder.Field(0).(*array.StringBuilder)
	valueBldr := builder.Field(1).(*array.Float64Builder)
	for _, name := range names {
		nameBldr.Append(name)
		valueBldr.Append(metrics[name])
	}
	rec := builder.NewRecord()
	defer rec.Release()

	writer := csv.NewWriter(w, schema, csv.WithHeader(true))
	if err := writer.Write(rec); err != nil {
		return err
	}
	if err := writer.Flush(); err != nil {
		return err
	}
	return writer.Error()
}
