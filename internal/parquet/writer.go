// Package parquet encodes the persisted land-use indexes as Parquet blobs.
// Every blob carries its schema version, kind, region and row count in the
// file's key/value metadata, so a reader can reject foreign or stale data
// before touching the columns.
package parquet

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/apache/arrow/go/v14/arrow/array"
	"github.com/apache/arrow/go/v14/arrow/memory"
	"github.com/apache/arrow/go/v14/parquet"
	"github.com/apache/arrow/go/v14/parquet/compress"
	"github.com/apache/arrow/go/v14/parquet/pqarrow"

	"github.com/wegman-software/tilefilter/internal/dataset"
	"github.com/wegman-software/tilefilter/internal/geom"
)

// SchemaVersion is bumped whenever a column layout changes
const SchemaVersion = 1

// Blob kinds
const (
	KindRegions = "regions"
	KindBoxes   = "boxes"
	KindLabels  = "labels"
)

const (
	keyVersion = "tilefilter.schema_version"
	keyKind    = "tilefilter.kind"
	keyRegion  = "tilefilter.region"
	keyRows    = "tilefilter.rows"
)

var (
	// ErrCorrupt means the blob could not be parsed or is internally inconsistent
	ErrCorrupt = errors.New("corrupt index blob")
	// ErrSchemaMismatch means the blob was written with another version or kind
	ErrSchemaMismatch = errors.New("index schema mismatch")
)

// Meta describes a persisted blob
type Meta struct {
	Version int
	Kind    string
	Region  string
	Rows    int
}

var (
	regionFields = []arrow.Field{
		{Name: "region_id", Type: arrow.BinaryTypes.String, Nullable: false},
		{Name: "min_x", Type: arrow.PrimitiveTypes.Float64, Nullable: false},
		{Name: "min_y", Type: arrow.PrimitiveTypes.Float64, Nullable: false},
		{Name: "max_x", Type: arrow.PrimitiveTypes.Float64, Nullable: false},
		{Name: "max_y", Type: arrow.PrimitiveTypes.Float64, Nullable: false},
	}
	boxFields = []arrow.Field{
		{Name: "min_x", Type: arrow.PrimitiveTypes.Float64, Nullable: false},
		{Name: "min_y", Type: arrow.PrimitiveTypes.Float64, Nullable: false},
		{Name: "max_x", Type: arrow.PrimitiveTypes.Float64, Nullable: false},
		{Name: "max_y", Type: arrow.PrimitiveTypes.Float64, Nullable: false},
	}
	labelFields = []arrow.Field{
		{Name: "label", Type: arrow.BinaryTypes.String, Nullable: false},
	}
)

// EncodeRegions serializes the region descriptor list
func EncodeRegions(regions []dataset.Region) ([]byte, error) {
	meta := Meta{Kind: KindRegions, Rows: len(regions)}
	return encode(meta, regionFields, func(b *array.RecordBuilder) {
		for _, r := range regions {
			b.Field(0).(*array.StringBuilder).Append(r.ID)
			appendBox(b, 1, r.Bounds)
		}
	})
}

// EncodeBoxes serializes the feature bounding boxes of one region in ordinal order
func EncodeBoxes(regionID string, boxes []geom.BBox) ([]byte, error) {
	meta := Meta{Kind: KindBoxes, Region: regionID, Rows: len(boxes)}
	return encode(meta, boxFields, func(b *array.RecordBuilder) {
		for _, box := range boxes {
			appendBox(b, 0, box)
		}
	})
}

// EncodeLabels serializes the label table of one region in ordinal order
func EncodeLabels(regionID string, labels []string) ([]byte, error) {
	meta := Meta{Kind: KindLabels, Region: regionID, Rows: len(labels)}
	return encode(meta, labelFields, func(b *array.RecordBuilder) {
		b.Field(0).(*array.StringBuilder).AppendValues(labels, nil)
	})
}

func appendBox(b *array.RecordBuilder, first int, box geom.BBox) {
	b.Field(first).(*array.Float64Builder).Append(box.MinX)
	b.Field(first + 1).(*array.Float64Builder).Append(box.MinY)
	b.Field(first + 2).(*array.Float64Builder).Append(box.MaxX)
	b.Field(first + 3).(*array.Float64Builder).Append(box.MaxY)
}

func encode(meta Meta, fields []arrow.Field, fill func(b *array.RecordBuilder)) ([]byte, error) {
	md := arrow.NewMetadata(
		[]string{keyVersion, keyKind, keyRegion, keyRows},
		[]string{strconv.Itoa(SchemaVersion), meta.Kind, meta.Region, strconv.Itoa(meta.Rows)},
	)
	schema := arrow.NewSchema(fields, &md)

	var buf bytes.Buffer
	writerProps := parquet.NewWriterProperties(
		parquet.WithCompression(compress.Codecs.Zstd),
		parquet.WithDictionaryDefault(false),
	)

	writer, err := pqarrow.NewFileWriter(schema, &buf, writerProps, pqarrow.DefaultWriterProps())
	if err != nil {
		return nil, fmt.Errorf("failed to create parquet writer: %w", err)
	}

	builder := array.NewRecordBuilder(memory.DefaultAllocator, schema)
	defer builder.Release()
	fill(builder)

	// An empty record would still create a row group; leave the file without one
	if meta.Rows > 0 {
		rec := builder.NewRecord()
		err := writer.Write(rec)
		rec.Release()
		if err != nil {
			writer.Close()
			return nil, fmt.Errorf("failed to write %s: %w", meta.Kind, err)
		}
	}

	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close parquet writer: %w", err)
	}
	return buf.Bytes(), nil
}
