package batch

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/wegman-software/tilefilter/internal/geom"
)

// Tile is one query of the stream: a tile asset and its bounds in the
// dataset CRS
type Tile struct {
	ID  string
	Box geom.BBox
}

// TileSource yields tiles in stream order. Next returns io.EOF at the end.
type TileSource interface {
	Next() (Tile, error)
}

// RowError is a malformed manifest row. It affects only that row.
type RowError struct {
	Line int
	Err  error
}

func (e *RowError) Error() string {
	return fmt.Sprintf("manifest line %d: %v", e.Line, e.Err)
}

func (e *RowError) Unwrap() error { return e.Err }

// ManifestReader reads tiles from CSV rows
//
//	tile_id,min_x,min_y,max_x,max_y[,...]
//
// An optional header row starting with tile_id is skipped, as are lines
// starting with #. Columns after max_y are ignored. Corners may be given in
// any order; tiles cut from images with a downward y axis list maxy first.
type ManifestReader struct {
	r      *csv.Reader
	header bool
}

// NewManifestReader wraps r
func NewManifestReader(r io.Reader) *ManifestReader {
	cr := csv.NewReader(r)
	cr.Comment = '#'
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.ReuseRecord = true
	return &ManifestReader{r: cr}
}

// Offset returns how many input bytes have been consumed
func (m *ManifestReader) Offset() int64 {
	return m.r.InputOffset()
}

// Next implements TileSource
func (m *ManifestReader) Next() (Tile, error) {
	for {
		rec, err := m.r.Read()
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				return Tile{}, &RowError{Line: perr.Line, Err: perr.Err}
			}
			return Tile{}, err
		}
		line, _ := m.r.FieldPos(0)

		if !m.header {
			m.header = true
			if strings.EqualFold(strings.TrimSpace(rec[0]), "tile_id") {
				continue
			}
		}

		tile, err := parseRow(rec)
		if err != nil {
			return Tile{}, &RowError{Line: line, Err: err}
		}
		return tile, nil
	}
}

func parseRow(rec []string) (Tile, error) {
	if len(rec) < 5 {
		return Tile{}, fmt.Errorf("expected at least 5 columns, got %d", len(rec))
	}
	id := strings.TrimSpace(rec[0])
	if id == "" {
		return Tile{}, fmt.Errorf("empty tile id")
	}

	var v [4]float64
	for i := range v {
		f, err := strconv.ParseFloat(strings.TrimSpace(rec[i+1]), 64)
		if err != nil {
			return Tile{}, fmt.Errorf("column %d: %w", i+2, err)
		}
		v[i] = f
	}
	return Tile{ID: id, Box: geom.NewBBox(v[0], v[1], v[2], v[3])}, nil
}

// SliceSource yields a fixed list of tiles
type SliceSource struct {
	tiles []Tile
	pos   int
}

// NewSliceSource creates a source over tiles
func NewSliceSource(tiles ...Tile) *SliceSource {
	return &SliceSource{tiles: tiles}
}

// Next implements TileSource
func (s *SliceSource) Next() (Tile, error) {
	if s.pos >= len(s.tiles) {
		return Tile{}, io.EOF
	}
	t := s.tiles[s.pos]
	s.pos++
	return t, nil
}
