package proj

import (
	"fmt"
	"math"
	"strings"
)

// SRID constants for supported projections
const (
	SRID4326  = 4326  // WGS84 (lat/lon)
	SRID3857  = 3857  // Web Mercator
	SRID25832 = 25832 // ETRS89 / UTM zone 32N (ALKIS Bavaria)
	SRID32632 = 32632 // WGS84 / UTM zone 32N
)

// Transformer handles coordinate transformations from WGS84 into a target projection
type Transformer struct {
	SourceSRID int
	TargetSRID int
}

// NewTransformer creates a transformer from source to target SRID
func NewTransformer(sourceSRID, targetSRID int) (*Transformer, error) {
	if sourceSRID != SRID4326 {
		return nil, fmt.Errorf("unsupported source SRID: %d (only 4326 supported)", sourceSRID)
	}
	switch targetSRID {
	case SRID4326, SRID3857, SRID25832, SRID32632:
	default:
		return nil, fmt.Errorf("unsupported target SRID: %d (supported: 4326, 3857, 25832, 32632)", targetSRID)
	}

	return &Transformer{
		SourceSRID: sourceSRID,
		TargetSRID: targetSRID,
	}, nil
}

// Transform converts a coordinate from source to target projection
// Input: lon, lat in WGS84
// Output: x, y in target projection
func (t *Transformer) Transform(lon, lat float64) (x, y float64) {
	switch t.TargetSRID {
	case SRID3857:
		return lonLatToWebMercator(lon, lat)
	case SRID25832, SRID32632:
		// ETRS89 and WGS84 differ by well under a metre, far below tile size
		return lonLatToUTM(lon, lat, 32)
	default:
		return lon, lat
	}
}

// NeedsTransform returns true if transformation is required
func (t *Transformer) NeedsTransform() bool {
	return t.SourceSRID != t.TargetSRID
}

// Web Mercator constants
const (
	// Semi-major axis of WGS84 ellipsoid in meters
	earthRadius = 6378137.0
	// Maximum extent of Web Mercator
	maxExtent = 20037508.342789244
)

// lonLatToWebMercator converts WGS84 (lon, lat) to Web Mercator (x, y)
func lonLatToWebMercator(lon, lat float64) (x, y float64) {
	// Clamp latitude to avoid infinity at poles
	if lat > 85.06 {
		lat = 85.06
	} else if lat < -85.06 {
		lat = -85.06
	}

	x = lon * maxExtent / 180.0

	// y = R * ln(tan(π/4 + φ/2))
	latRad := lat * math.Pi / 180.0
	y = math.Log(math.Tan(math.Pi/4.0+latRad/2.0)) * earthRadius

	return x, y
}

// UTM constants (GRS80 ellipsoid)
const (
	utmFlattening    = 1 / 298.257222101
	utmScale         = 0.9996
	utmFalseEasting  = 500000.0
	utmFalseNorthing = 10000000.0
)

// lonLatToUTM projects onto the northern or southern UTM grid of the given zone
// using the Krüger series to third order (sub-millimetre inside the zone).
func lonLatToUTM(lon, lat float64, zone int) (x, y float64) {
	n := utmFlattening / (2 - utmFlattening)
	a := earthRadius / (1 + n) * (1 + n*n/4 + n*n*n*n/64)
	alpha := [3]float64{
		n/2 - 2*n*n/3 + 5*n*n*n/16,
		13*n*n/48 - 3*n*n*n/5,
		61 * n * n * n / 240,
	}

	lon0 := float64(zone*6 - 183)
	phi := lat * math.Pi / 180
	lambda := (lon - lon0) * math.Pi / 180

	c := 2 * math.Sqrt(n) / (1 + n)
	t := math.Sinh(math.Atanh(math.Sin(phi)) - c*math.Atanh(c*math.Sin(phi)))
	xi := math.Atan(t / math.Cos(lambda))
	eta := math.Atanh(math.Sin(lambda) / math.Sqrt(1+t*t))

	e, nn := eta, xi
	for j := 0; j < 3; j++ {
		k := float64(2 * (j + 1))
		e += alpha[j] * math.Cos(k*xi) * math.Sinh(k*eta)
		nn += alpha[j] * math.Sin(k*xi) * math.Cosh(k*eta)
	}

	x = utmFalseEasting + utmScale*a*e
	y = utmScale * a * nn
	if lat < 0 {
		y += utmFalseNorthing
	}
	return x, y
}

// ParseSRID parses a projection string to SRID
// Accepts: "4326", "3857", "25832", "32632" with or without an "EPSG:" prefix
func ParseSRID(s string) (int, error) {
	switch strings.TrimPrefix(strings.ToUpper(strings.TrimSpace(s)), "EPSG:") {
	case "4326":
		return SRID4326, nil
	case "3857":
		return SRID3857, nil
	case "25832":
		return SRID25832, nil
	case "32632":
		return SRID32632, nil
	default:
		return 0, fmt.Errorf("unsupported projection: %s (supported: 4326, 3857, 25832, 32632)", s)
	}
}
