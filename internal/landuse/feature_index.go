package landuse

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/wegman-software/tilefilter/internal/dataset"
	"github.com/wegman-software/tilefilter/internal/geom"
	"github.com/wegman-software/tilefilter/internal/logger"
	"github.com/wegman-software/tilefilter/internal/parquet"
	"github.com/wegman-software/tilefilter/internal/store"
)

// FeatureIndex is the spatial index of one region's land-use features.
// Ordinal i in the tree refers to boxes[i] and labels[i].
type FeatureIndex struct {
	region string
	boxes  []geom.BBox
	labels []string
	tree   *geom.Tree
}

// NewFeatureIndex indexes features in source order
func NewFeatureIndex(regionID string, features []dataset.Feature) *FeatureIndex {
	boxes := make([]geom.BBox, len(features))
	labels := make([]string, len(features))
	for i, f := range features {
		boxes[i] = f.Bounds.Normalize()
		labels[i] = f.Label
	}
	return newFeatureIndex(regionID, boxes, labels)
}

func newFeatureIndex(regionID string, boxes []geom.BBox, labels []string) *FeatureIndex {
	return &FeatureIndex{
		region: regionID,
		boxes:  boxes,
		labels: labels,
		tree:   geom.BuildTree(boxes),
	}
}

// BuildFeatureIndex reads all features of a region from the source
func BuildFeatureIndex(ctx context.Context, src dataset.Source, regionID string) (*FeatureIndex, error) {
	features, err := src.Features(ctx, regionID)
	if err != nil {
		return nil, fmt.Errorf("failed to read features of %s: %w", regionID, err)
	}
	return NewFeatureIndex(regionID, features), nil
}

// Region returns the region the index belongs to
func (fi *FeatureIndex) Region() string { return fi.region }

// Len returns the number of indexed features
func (fi *FeatureIndex) Len() int { return len(fi.boxes) }

// Match returns the features whose bounds overlap box, in ordinal order
func (fi *FeatureIndex) Match(box geom.BBox) []dataset.Feature {
	ordinals := fi.tree.Search(box.Normalize())
	out := make([]dataset.Feature, len(ordinals))
	for i, ord := range ordinals {
		out[i] = dataset.Feature{Bounds: fi.boxes[ord], Label: fi.labels[ord]}
	}
	return out
}

// Persist writes the boxes and the label table under the region's keys
func (fi *FeatureIndex) Persist(st store.Store) error {
	boxes, err := parquet.EncodeBoxes(fi.region, fi.boxes)
	if err != nil {
		return err
	}
	labels, err := parquet.EncodeLabels(fi.region, fi.labels)
	if err != nil {
		return err
	}
	if err := st.Put(TreeKey(fi.region), boxes); err != nil {
		return err
	}
	return st.Put(LabelsKey(fi.region), labels)
}

// LoadFeatureIndex reads a persisted feature index. Both halves must exist
// and agree on region and row count. The error is set only for LoadCorrupt.
func LoadFeatureIndex(ctx context.Context, st store.Store, regionID string) (*FeatureIndex, LoadOutcome, error) {
	if st == nil {
		return nil, LoadNotFound, nil
	}

	treeData, err := st.Get(TreeKey(regionID))
	if errors.Is(err, store.ErrNotFound) {
		return nil, LoadNotFound, nil
	}
	if err != nil {
		return nil, LoadCorrupt, err
	}
	labelData, err := st.Get(LabelsKey(regionID))
	if errors.Is(err, store.ErrNotFound) {
		// Tree without labels: an interrupted persist
		return nil, LoadCorrupt, fmt.Errorf("%w: labels of %s missing", parquet.ErrCorrupt, regionID)
	}
	if err != nil {
		return nil, LoadCorrupt, err
	}

	boxes, boxMeta, err := parquet.DecodeBoxes(ctx, treeData)
	if err != nil {
		return nil, LoadCorrupt, err
	}
	labels, labelMeta, err := parquet.DecodeLabels(ctx, labelData)
	if err != nil {
		return nil, LoadCorrupt, err
	}

	if boxMeta.Region != regionID || labelMeta.Region != regionID {
		return nil, LoadCorrupt, fmt.Errorf("%w: blobs belong to %q/%q, want %q",
			parquet.ErrCorrupt, boxMeta.Region, labelMeta.Region, regionID)
	}
	if len(boxes) != len(labels) {
		return nil, LoadCorrupt, fmt.Errorf("%w: %d boxes but %d labels",
			parquet.ErrCorrupt, len(boxes), len(labels))
	}

	return newFeatureIndex(regionID, boxes, labels), LoadHit, nil
}

// LoadOrBuildFeatureIndex uses the persisted feature index when valid and
// otherwise rebuilds it from the source and persists it. The outcome reports
// what the persisted load found. A failure to persist is logged only.
func LoadOrBuildFeatureIndex(ctx context.Context, src dataset.Source, st store.Store, regionID string) (*FeatureIndex, LoadOutcome, error) {
	log := logger.Named("index")

	fi, outcome, err := LoadFeatureIndex(ctx, st, regionID)
	if outcome == LoadHit {
		log.Debug("Loaded feature index",
			zap.String("region", regionID),
			zap.Int("features", fi.Len()))
		return fi, outcome, nil
	}
	if outcome == LoadCorrupt {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, outcome, ctxErr
		}
		log.Warn("Persisted feature index unusable, rebuilding",
			zap.String("region", regionID),
			zap.Error(err))
	}

	start := time.Now()
	fi, err = BuildFeatureIndex(ctx, src, regionID)
	if err != nil {
		return nil, outcome, err
	}
	log.Info("Built feature index",
		zap.String("region", regionID),
		zap.Int("features", fi.Len()),
		zap.Duration("duration", time.Since(start).Round(time.Millisecond)))

	if st != nil {
		if err := fi.Persist(st); err != nil {
			log.Warn("Failed to persist feature index",
				zap.String("region", regionID),
				zap.Error(err))
		}
	}
	return fi, outcome, nil
}
