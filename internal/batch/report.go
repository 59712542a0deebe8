package batch

import (
	"encoding/csv"
	"io"
)

// Reporter receives every decision of a run
type Reporter interface {
	Report(d Decision) error
}

// CSVReport writes decisions as tile_id,action,reason,region,error rows
type CSVReport struct {
	w *csv.Writer
}

// NewCSVReport writes the header row and returns the report
func NewCSVReport(w io.Writer) (*CSVReport, error) {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"tile_id", "action", "reason", "region", "error"}); err != nil {
		return nil, err
	}
	return &CSVReport{w: cw}, nil
}

// Report implements Reporter
func (r *CSVReport) Report(d Decision) error {
	var msg string
	if d.Err != nil {
		msg = d.Err.Error()
	}
	return r.w.Write([]string{d.TileID, string(d.Action), string(d.Reason), d.Region, msg})
}

// Flush writes buffered rows
func (r *CSVReport) Flush() error {
	r.w.Flush()
	return r.w.Error()
}
