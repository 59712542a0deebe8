package landuse

import "sort"

// DefaultUsableLabels are the ALKIS "Siedlung" land-use classes a tile must
// touch to be kept
var DefaultUsableLabels = []string{
	"Wohnbaufläche",
	"Industrie- und Gewerbefläche",
	"Halde",
	"Bergbaubetrieb",
	"Tagebau, Grube Steinbruch",
	"Fläche gemischter Nutzung",
	"Fläche besonderer funktionaler Prägung",
	"Sport-, Freizeit- und Erholungsfläche",
	"Friedhof",
}

// LabelSet is an immutable set of usable land-use labels.
// Membership is exact string equality.
type LabelSet struct {
	labels map[string]struct{}
}

// NewLabelSet builds a set from labels
func NewLabelSet(labels ...string) LabelSet {
	s := LabelSet{labels: make(map[string]struct{}, len(labels))}
	for _, l := range labels {
		s.labels[l] = struct{}{}
	}
	return s
}

// DefaultLabelSet returns the set of DefaultUsableLabels
func DefaultLabelSet() LabelSet {
	return NewLabelSet(DefaultUsableLabels...)
}

// Contains reports whether label is usable
func (s LabelSet) Contains(label string) bool {
	_, ok := s.labels[label]
	return ok
}

// Len returns the number of labels
func (s LabelSet) Len() int {
	return len(s.labels)
}

// Labels returns the labels in sorted order
func (s LabelSet) Labels() []string {
	out := make([]string, 0, len(s.labels))
	for l := range s.labels {
		out = append(out, l)
	}
	sort.Strings(out)
	return out
}
