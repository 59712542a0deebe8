package parquet

import (
	"bytes"
	"context"
	"fmt"
	"strconv"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/apache/arrow/go/v14/arrow/array"
	"github.com/apache/arrow/go/v14/parquet/file"
	"github.com/apache/arrow/go/v14/parquet/metadata"
	"github.com/apache/arrow/go/v14/parquet/pqarrow"

	"github.com/wegman-software/tilefilter/internal/dataset"
	"github.com/wegman-software/tilefilter/internal/geom"
)

// DecodeRegions parses a blob written by EncodeRegions
func DecodeRegions(ctx context.Context, data []byte) ([]dataset.Region, Meta, error) {
	meta, tbl, err := decode(ctx, data, KindRegions, regionFields)
	if err != nil {
		return nil, meta, err
	}
	defer tbl.Release()

	ids := stringColumn(tbl, 0)
	boxes := boxColumns(tbl, 1)
	regions := make([]dataset.Region, len(ids))
	for i := range ids {
		regions[i] = dataset.Region{ID: ids[i], Bounds: boxes[i]}
	}
	return regions, meta, nil
}

// DecodeBoxes parses a blob written by EncodeBoxes
func DecodeBoxes(ctx context.Context, data []byte) ([]geom.BBox, Meta, error) {
	meta, tbl, err := decode(ctx, data, KindBoxes, boxFields)
	if err != nil {
		return nil, meta, err
	}
	defer tbl.Release()
	return boxColumns(tbl, 0), meta, nil
}

// DecodeLabels parses a blob written by EncodeLabels
func DecodeLabels(ctx context.Context, data []byte) ([]string, Meta, error) {
	meta, tbl, err := decode(ctx, data, KindLabels, labelFields)
	if err != nil {
		return nil, meta, err
	}
	defer tbl.Release()
	return stringColumn(tbl, 0), meta, nil
}

func decode(ctx context.Context, data []byte, kind string, fields []arrow.Field) (Meta, arrow.Table, error) {
	pf, err := file.NewParquetReader(bytes.NewReader(data))
	if err != nil {
		return Meta{}, nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	defer pf.Close()

	meta, err := readMeta(pf.MetaData().KeyValueMetadata())
	if err != nil {
		return meta, nil, err
	}
	if meta.Version != SchemaVersion {
		return meta, nil, fmt.Errorf("%w: version %d, want %d", ErrSchemaMismatch, meta.Version, SchemaVersion)
	}
	if meta.Kind != kind {
		return meta, nil, fmt.Errorf("%w: kind %q, want %q", ErrSchemaMismatch, meta.Kind, kind)
	}

	arrowReader, err := pqarrow.NewFileReader(pf, pqarrow.ArrowReadProperties{}, nil)
	if err != nil {
		return meta, nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}

	tbl, err := arrowReader.ReadTable(ctx)
	if err != nil {
		return meta, nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}

	if err := checkFields(tbl.Schema(), fields); err != nil {
		tbl.Release()
		return meta, nil, err
	}
	if tbl.NumRows() != int64(meta.Rows) {
		tbl.Release()
		return meta, nil, fmt.Errorf("%w: %d rows, metadata says %d", ErrCorrupt, tbl.NumRows(), meta.Rows)
	}
	return meta, tbl, nil
}

func readMeta(kv metadata.KeyValueMetadata) (Meta, error) {
	var meta Meta
	get := func(key string) (string, error) {
		v := kv.FindValue(key)
		if v == nil {
			return "", fmt.Errorf("%w: missing %s", ErrSchemaMismatch, key)
		}
		return *v, nil
	}

	version, err := get(keyVersion)
	if err != nil {
		return meta, err
	}
	if meta.Version, err = strconv.Atoi(version); err != nil {
		return meta, fmt.Errorf("%w: bad version %q", ErrCorrupt, version)
	}
	if meta.Kind, err = get(keyKind); err != nil {
		return meta, err
	}
	if meta.Region, err = get(keyRegion); err != nil {
		return meta, err
	}
	rows, err := get(keyRows)
	if err != nil {
		return meta, err
	}
	if meta.Rows, err = strconv.Atoi(rows); err != nil || meta.Rows < 0 {
		return meta, fmt.Errorf("%w: bad row count %q", ErrCorrupt, rows)
	}
	return meta, nil
}

func checkFields(schema *arrow.Schema, want []arrow.Field) error {
	got := schema.Fields()
	if len(got) != len(want) {
		return fmt.Errorf("%w: %d columns, want %d", ErrSchemaMismatch, len(got), len(want))
	}
	for i := range want {
		if got[i].Name != want[i].Name || !arrow.TypeEqual(got[i].Type, want[i].Type) {
			return fmt.Errorf("%w: column %d is %s %s, want %s %s", ErrSchemaMismatch,
				i, got[i].Name, got[i].Type, want[i].Name, want[i].Type)
		}
	}
	return nil
}

func stringColumn(tbl arrow.Table, col int) []string {
	out := make([]string, 0, tbl.NumRows())
	for _, chunk := range tbl.Column(col).Data().Chunks() {
		arr := chunk.(*array.String)
		for i := 0; i < arr.Len(); i++ {
			out = append(out, arr.Value(i))
		}
	}
	return out
}

func float64Column(tbl arrow.Table, col int) []float64 {
	out := make([]float64, 0, tbl.NumRows())
	for _, chunk := range tbl.Column(col).Data().Chunks() {
		out = append(out, chunk.(*array.Float64).Float64Values()...)
	}
	return out
}

func boxColumns(tbl arrow.Table, first int) []geom.BBox {
	minX := float64Column(tbl, first)
	minY := float64Column(tbl, first+1)
	maxX := float64Column(tbl, first+2)
	maxY := float64Column(tbl, first+3)

	boxes := make([]geom.BBox, len(minX))
	for i := range boxes {
		boxes[i] = geom.BBox{MinX: minX[i], MinY: minY[i], MaxX: maxX[i], MaxY: maxY[i]}
	}
	return boxes
}
