package landuse

import "github.com/wegman-software/tilefilter/internal/geom"

// Classify tests box against a region's features. matchFound is true when
// any feature overlaps box; usable is true when any overlapping feature
// carries a usable label. The search stops at the first usable match.
func Classify(box geom.BBox, fi *FeatureIndex, usableLabels LabelSet) (usable, matchFound bool) {
	fi.tree.SearchFunc(box.Normalize(), func(ordinal int) bool {
		matchFound = true
		if usableLabels.Contains(fi.labels[ordinal]) {
			usable = true
			return false
		}
		return true
	})
	return usable, matchFound
}
