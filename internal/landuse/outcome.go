package landuse

// LoadOutcome is the result of reading a persisted index
type LoadOutcome int

const (
	// LoadHit means a valid persisted index was used
	LoadHit LoadOutcome = iota
	// LoadNotFound means nothing was persisted under the key
	LoadNotFound
	// LoadCorrupt means persisted data existed but was unusable
	LoadCorrupt
)

func (o LoadOutcome) String() string {
	switch o {
	case LoadHit:
		return "hit"
	case LoadNotFound:
		return "not_found"
	case LoadCorrupt:
		return "corrupt"
	default:
		return "unknown"
	}
}

// Persisted-index keys
const (
	regionIndexKey = "region-index"
	treeKeyPrefix  = "tree/"
	labelKeyPrefix = "labels/"
)

// TreeKey is the store key of a region's feature boxes
func TreeKey(regionID string) string { return treeKeyPrefix + regionID }

// LabelsKey is the store key of a region's label table
func LabelsKey(regionID string) string { return labelKeyPrefix + regionID }
