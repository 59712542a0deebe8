package parquet

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/wegman-software/tilefilter/internal/dataset"
	"github.com/wegman-software/tilefilter/internal/geom"
)

func TestRegionsRoundTrip(t *testing.T) {
	regions := []dataset.Region{
		{ID: "tn_09162", Bounds: geom.BBox{MinX: 680000, MinY: 5320000, MaxX: 700000, MaxY: 5345000}},
		{ID: "tn_09184", Bounds: geom.BBox{MinX: 665000, MinY: 5305000, MaxX: 712000, MaxY: 5355000}},
	}

	data, err := EncodeRegions(regions)
	if err != nil {
		t.Fatalf("EncodeRegions() error: %v", err)
	}

	got, meta, err := DecodeRegions(context.Background(), data)
	if err != nil {
		t.Fatalf("DecodeRegions() error: %v", err)
	}
	if !reflect.DeepEqual(got, regions) {
		t.Errorf("DecodeRegions() = %+v, want %+v", got, regions)
	}
	want := Meta{Version: SchemaVersion, Kind: KindRegions, Rows: 2}
	if meta != want {
		t.Errorf("meta = %+v, want %+v", meta, want)
	}
}

func TestBoxesAndLabelsRoundTrip(t *testing.T) {
	boxes := []geom.BBox{
		{MinX: 0, MinY: 0, MaxX: 5, MaxY: 5},
		{MinX: 6, MinY: 2, MaxX: 10, MaxY: 10},
		{MinX: -1.5, MinY: -2.25, MaxX: 0.125, MaxY: 3},
	}
	labels := []string{"Wohnbaufläche", "Wald", "Friedhof"}

	boxData, err := EncodeBoxes("tn_a", boxes)
	if err != nil {
		t.Fatalf("EncodeBoxes() error: %v", err)
	}
	labelData, err := EncodeLabels("tn_a", labels)
	if err != nil {
		t.Fatalf("EncodeLabels() error: %v", err)
	}

	gotBoxes, boxMeta, err := DecodeBoxes(context.Background(), boxData)
	if err != nil {
		t.Fatalf("DecodeBoxes() error: %v", err)
	}
	if !reflect.DeepEqual(gotBoxes, boxes) {
		t.Errorf("DecodeBoxes() = %+v, want %+v", gotBoxes, boxes)
	}
	if boxMeta.Region != "tn_a" || boxMeta.Kind != KindBoxes || boxMeta.Rows != 3 {
		t.Errorf("box meta = %+v", boxMeta)
	}

	gotLabels, labelMeta, err := DecodeLabels(context.Background(), labelData)
	if err != nil {
		t.Fatalf("DecodeLabels() error: %v", err)
	}
	if !reflect.DeepEqual(gotLabels, labels) {
		t.Errorf("DecodeLabels() = %v, want %v", gotLabels, labels)
	}
	if labelMeta.Region != "tn_a" || labelMeta.Kind != KindLabels {
		t.Errorf("label meta = %+v", labelMeta)
	}
}

func TestEmptyRoundTrip(t *testing.T) {
	data, err := EncodeBoxes("empty", nil)
	if err != nil {
		t.Fatalf("EncodeBoxes() error: %v", err)
	}
	got, meta, err := DecodeBoxes(context.Background(), data)
	if err != nil {
		t.Fatalf("DecodeBoxes() error: %v", err)
	}
	if len(got) != 0 || meta.Rows != 0 {
		t.Errorf("expected empty result, got %d boxes, meta %+v", len(got), meta)
	}
}

func TestDecodeErrors(t *testing.T) {
	labels, err := EncodeLabels("tn_a", []string{"Wald"})
	if err != nil {
		t.Fatalf("EncodeLabels() error: %v", err)
	}

	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"empty", nil, ErrCorrupt},
		{"garbage", []byte("definitely not parquet"), ErrCorrupt},
		{"truncated", labels[:len(labels)/2], ErrCorrupt},
		{"wrong kind", labels, ErrSchemaMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := DecodeBoxes(context.Background(), tt.data)
			if !errors.Is(err, tt.want) {
				t.Errorf("DecodeBoxes() error = %v, want %v", err, tt.want)
			}
		})
	}
}
