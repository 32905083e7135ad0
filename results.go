package qnetsim

// results.go holds the combined result table of a batch of runs.  The table is kept as
// []ResultRow and converted to an Arrow record to cross process boundaries (IPC stream)
// and to be exported (CSV).

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
	"github.com/apache/arrow/go/v17/arrow/csv"
	"github.com/apache/arrow/go/v17/arrow/ipc"
	"github.com/apache/arrow/go/v17/arrow/memory"
	"gonum.org/v1/gonum/stat"
)

// Column names of the result table
const (
	ColIndex          = "Index"
	ColRequests       = "Requests"
	ColTopology       = "Topology"
	ColNodes          = "Number of Nodes"
	ColSuccessRate    = "Success Rate"
	ColFailureRate    = "Swap Failure Rate"
	ColImpossibleRate = "Impossible Swap Rate"
	ColAvgAttempts    = "Average Attempts"
	ColUsedPairs      = "Used EPRs"
	ColRouteFidelity  = "Average Route Fidelity"
	ColAttackers      = "Black Holes"
)

// ResultSchema is the layout of the result table
func ResultSchema() *arrow.Schema {
	return arrow.NewSchema(
		[]arrow.Field{
			{Name: ColIndex, Type: arrow.PrimitiveTypes.Int64},
			{Name: ColRequests, Type: arrow.PrimitiveTypes.Int64},
			{Name: ColTopology, Type: arrow.BinaryTypes.String},
			{Name: ColNodes, Type: arrow.PrimitiveTypes.Int64},
			{Name: ColSuccessRate, Type: arrow.PrimitiveTypes.Float64},
			{Name: ColFailureRate, Type: arrow.PrimitiveTypes.Float64},
			{Name: ColImpossibleRate, Type: arrow.PrimitiveTypes.Float64},
			{Name: ColAvgAttempts, Type: arrow.PrimitiveTypes.Float64},
			{Name: ColUsedPairs, Type: arrow.PrimitiveTypes.Int64},
			{Name: ColRouteFidelity, Type: arrow.PrimitiveTypes.Float64},
			{Name: ColAttackers, Type: arrow.PrimitiveTypes.Int64},
		},
		nil,
	)
}

// ResultSet is the combined, contiguously indexed result table of a batch
type ResultSet struct {
	Rows []ResultRow
}

// MergeResults concatenates per-worker row lists in the order given.
// Row i of the merged set has index i.
func MergeResults(shares ...[]ResultRow) *ResultSet {
	rs := new(ResultSet)
	for _, share := range shares {
		rs.Rows = append(rs.Rows, share...)
	}
	return rs
}

// Len gives the number of rows
func (rs *ResultSet) Len() int {
	return len(rs.Rows)
}

// Record converts the rows to an Arrow record.  The caller releases it.
func (rs *ResultSet) Record() arrow.Record {
	builder := array.NewRecordBuilder(memory.DefaultAllocator, ResultSchema())
	defer builder.Release()

	index := builder.Field(0).(*array.Int64Builder)
	requests := builder.Field(1).(*array.Int64Builder)
	topology := builder.Field(2).(*array.StringBuilder)
	nodes := builder.Field(3).(*array.Int64Builder)
	success := builder.Field(4).(*array.Float64Builder)
	failure := builder.Field(5).(*array.Float64Builder)
	impossible := builder.Field(6).(*array.Float64Builder)
	attempts := builder.Field(7).(*array.Float64Builder)
	used := builder.Field(8).(*array.Int64Builder)
	fidelity := builder.Field(9).(*array.Float64Builder)
	attackers := builder.Field(10).(*array.Int64Builder)

	for idx, row := range rs.Rows {
		index.Append(int64(idx))
		requests.Append(int64(row.Requests))
		topology.Append(row.Topology)
		nodes.Append(int64(row.Nodes))
		success.Append(row.SuccessRate)
		failure.Append(row.FailureRate)
		impossible.Append(row.ImpossibleRate)
		attempts.Append(row.AvgAttempts)
		used.Append(int64(row.UsedPairs))
		fidelity.Append(row.AvgRouteFidelity)
		attackers.Append(int64(row.Attackers))
	}
	return builder.NewRecord()
}

// rowsFromRecord converts an Arrow record with the result schema back to rows
func rowsFromRecord(rec arrow.Record) ([]ResultRow, error) {
	if !rec.Schema().Equal(ResultSchema()) {
		return nil, fmt.Errorf("record schema %s is not the result schema", rec.Schema())
	}

	requests := rec.Column(1).(*array.Int64)
	topology := rec.Column(2).(*array.String)
	nodes := rec.Column(3).(*array.Int64)
	success := rec.Column(4).(*array.Float64)
	failure := rec.Column(5).(*array.Float64)
	impossible := rec.Column(6).(*array.Float64)
	attempts := rec.Column(7).(*array.Float64)
	used := rec.Column(8).(*array.Int64)
	fidelity := rec.Column(9).(*array.Float64)
	attackers := rec.Column(10).(*array.Int64)

	rows := make([]ResultRow, 0, rec.NumRows())
	for idx := 0; idx < int(rec.NumRows()); idx++ {
		rows = append(rows, ResultRow{
			Requests:         int(requests.Value(idx)),
			Topology:         topology.Value(idx),
			Nodes:            int(nodes.Value(idx)),
			SuccessRate:      success.Value(idx),
			FailureRate:      failure.Value(idx),
			ImpossibleRate:   impossible.Value(idx),
			AvgAttempts:      attempts.Value(idx),
			UsedPairs:        int(used.Value(idx)),
			AvgRouteFidelity: fidelity.Value(idx),
			Attackers:        int(attackers.Value(idx)),
		})
	}
	return rows, nil
}

// WriteIPC writes the rows as an Arrow IPC stream
func (rs *ResultSet) WriteIPC(w io.Writer) error {
	rec := rs.Record()
	defer rec.Release()

	writer := ipc.NewWriter(w, ipc.WithSchema(rec.Schema()))
	if err := writer.Write(rec); err != nil {
		writer.Close()
		return fmt.Errorf("failed to write record: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to close writer: %w", err)
	}
	return nil
}

// ReadResultsIPC reads the rows of every record of an Arrow IPC stream
func ReadResultsIPC(r io.Reader) (*ResultSet, error) {
	reader, err := ipc.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to create reader: %w", err)
	}
	defer reader.Release()

	rs := new(ResultSet)
	for reader.Next() {
		rows, err := rowsFromRecord(reader.Record())
		if err != nil {
			return nil, err
		}
		rs.Rows = append(rs.Rows, rows...)
	}
	if reader.Err() != nil {
		return nil, reader.Err()
	}
	return rs, nil
}

// WriteCSV writes the rows as a CSV table with a header
func (rs *ResultSet) WriteCSV(w io.Writer) error {
	rec := rs.Record()
	defer rec.Release()

	writer := csv.NewWriter(w, rec.Schema(), csv.WithHeader(true))
	if err := writer.Write(rec); err != nil {
		return err
	}
	if err := writer.Flush(); err != nil {
		return err
	}
	return writer.Error()
}

// WriteToFile stores the rows, as CSV for a .csv extension and as an
// Arrow IPC stream for .arrow or .ipc
func (rs *ResultSet) WriteToFile(filename string) error {
	var buf bytes.Buffer
	var err error

	switch path.Ext(filename) {
	case ".csv":
		err = rs.WriteCSV(&buf)
	case ".arrow", ".ipc":
		err = rs.WriteIPC(&buf)
	default:
		return fmt.Errorf("result file %s: unsupported extension", filename)
	}
	if err != nil {
		return err
	}
	return os.WriteFile(filename, buf.Bytes(), 0644)
}

// ColumnStat is the population mean and standard deviation of one numeric column
type ColumnStat struct {
	Name string
	Mean float64
	Std  float64
}

// Stats gives the mean and standard deviation of every numeric column of the rows.
// It is empty when there are no rows.
func (rs *ResultSet) Stats() []ColumnStat {
	if len(rs.Rows) == 0 {
		return []ColumnStat{}
	}
	columns := []struct {
		name  string
		value func(*ResultRow) float64
	}{
		{ColRequests, func(r *ResultRow) float64 { return float64(r.Requests) }},
		{ColNodes, func(r *ResultRow) float64 { return float64(r.Nodes) }},
		{ColSuccessRate, func(r *ResultRow) float64 { return r.SuccessRate }},
		{ColFailureRate, func(r *ResultRow) float64 { return r.FailureRate }},
		{ColImpossibleRate, func(r *ResultRow) float64 { return r.ImpossibleRate }},
		{ColAvgAttempts, func(r *ResultRow) float64 { return r.AvgAttempts }},
		{ColUsedPairs, func(r *ResultRow) float64 { return float64(r.UsedPairs) }},
		{ColRouteFidelity, func(r *ResultRow) float64 { return r.AvgRouteFidelity }},
		{ColAttackers, func(r *ResultRow) float64 { return float64(r.Attackers) }},
	}

	stats := make([]ColumnStat, 0, len(columns))
	xs := make([]float64, len(rs.Rows))
	for _, col := range columns {
		for idx := range rs.Rows {
			xs[idx] = col.value(&rs.Rows[idx])
		}
		mean, std := stat.PopMeanStdDev(xs, nil)
		stats = append(stats, ColumnStat{Name: col.name, Mean: roundFloat(mean, rdigits), Std: roundFloat(std, rdigits)})
	}
	return stats
}
