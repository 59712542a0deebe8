// Package fetch downloads land-use datasets.
package fetch

import (
	"fmt"
	"net/url"
	"path"
	"sort"
	"strings"
)

// Source is a downloadable dataset file
type Source struct {
	Name        string
	URL         string
	FileName    string // name of the local file
	Description string
	// Hint tells how to make the file readable by a dataset source, empty
	// when a source reads it as downloaded
	Hint string
}

// SourceALKISBayern is the Bavarian ALKIS land-use GeoPackage with one layer
// per district (about 5 GB)
var SourceALKISBayern = &Source{
	Name:        "alkis-bayern",
	URL:         "https://geodaten.bayern.de/odd/m/3/daten/tn/Nutzung_kreis.gpkg",
	FileName:    "Nutzung_kreis.gpkg",
	Description: "ALKIS Tatsächliche Nutzung Bayern, one layer per Kreis",
	Hint:        "GeoPackage is not read directly; load it with `ogr2ogr -f PostgreSQL PG:dbname=alkis Nutzung_kreis.gpkg` and use --source postgis",
}

// Geofabrik extract paths by short name
var geofabrikRegions = map[string]string{
	"germany":                "europe/germany",
	"bayern":                 "europe/germany/bayern",
	"oberbayern":             "europe/germany/bayern/oberbayern",
	"niederbayern":           "europe/germany/bayern/niederbayern",
	"oberpfalz":              "europe/germany/bayern/oberpfalz",
	"oberfranken":            "europe/germany/bayern/oberfranken",
	"mittelfranken":          "europe/germany/bayern/mittelfranken",
	"unterfranken":           "europe/germany/bayern/unterfranken",
	"schwaben":               "europe/germany/bayern/schwaben",
	"baden-wuerttemberg":     "europe/germany/baden-wuerttemberg",
	"austria":                "europe/austria",
	"switzerland":            "europe/switzerland",
	"monaco":                 "europe/monaco",
	"liechtenstein":          "europe/liechtenstein",
	"thueringen":             "europe/germany/thueringen",
	"sachsen":                "europe/germany/sachsen",
	"hessen":                 "europe/germany/hessen",
	"nordrhein-westfalen":    "europe/germany/nordrhein-westfalen",
	"rheinland-pfalz":        "europe/germany/rheinland-pfalz",
	"niedersachsen":          "europe/germany/niedersachsen",
	"schleswig-holstein":     "europe/germany/schleswig-holstein",
	"mecklenburg-vorpommern": "europe/germany/mecklenburg-vorpommern",
	"brandenburg":            "europe/germany/brandenburg",
	"sachsen-anhalt":         "europe/germany/sachsen-anhalt",
	"saarland":               "europe/germany/saarland",
	"berlin":                 "europe/germany/berlin",
	"hamburg":                "europe/germany/hamburg",
	"bremen":                 "europe/germany/bremen",
}

// GeofabrikSource returns the PBF extract of a Geofabrik region. Unknown
// names are used as the extract path directly.
func GeofabrikSource(region string) *Source {
	region = strings.ToLower(strings.Trim(strings.TrimSpace(region), "/"))

	p, ok := geofabrikRegions[region]
	if !ok {
		p = region
	}
	name := path.Base(p)

	return &Source{
		Name:        "geofabrik/" + region,
		URL:         fmt.Sprintf("https://download.geofabrik.de/%s-latest.osm.pbf", p),
		FileName:    name + ".osm.pbf",
		Description: fmt.Sprintf("Geofabrik %s extract", region),
	}
}

// ParseSource resolves a source string
// Formats:
//   - "alkis-bayern"
//   - "geofabrik/bayern", "geofabrik/europe/germany/bayern/schwaben"
//   - a short Geofabrik region name such as "oberbayern"
//   - a URL: "https://example.com/landuse/tn_09162.geojson"
func ParseSource(s string) (*Source, error) {
	s = strings.TrimSpace(s)
	lower := strings.ToLower(s)

	switch lower {
	case "alkis-bayern", "alkis", "alkis/bayern":
		return SourceALKISBayern, nil
	}

	if strings.HasPrefix(lower, "geofabrik/") {
		region := s[len("geofabrik/"):]
		if region == "" {
			return nil, fmt.Errorf("missing geofabrik region")
		}
		return GeofabrikSource(region), nil
	}

	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		u, err := url.Parse(s)
		if err != nil {
			return nil, fmt.Errorf("invalid source URL: %w", err)
		}
		name := path.Base(u.Path)
		if name == "" || name == "/" || name == "." {
			return nil, fmt.Errorf("source URL %s does not name a file", s)
		}
		return &Source{
			Name:        "custom",
			URL:         s,
			FileName:    name,
			Description: "Custom dataset URL",
		}, nil
	}

	if _, ok := geofabrikRegions[lower]; ok {
		return GeofabrikSource(lower), nil
	}

	return nil, fmt.Errorf("unknown dataset source: %s", s)
}

// ListSources describes the predefined sources
func ListSources() []string {
	sources := []string{
		fmt.Sprintf("%-14s - %s", SourceALKISBayern.Name, SourceALKISBayern.Description),
		"                 " + SourceALKISBayern.Hint,
		"",
		"Geofabrik extracts (use as geofabrik/<region>):",
	}

	regions := make([]string, 0, len(geofabrikRegions))
	for region := range geofabrikRegions {
		regions = append(regions, region)
	}
	sort.Strings(regions)
	for _, region := range regions {
		sources = append(sources, "  geofabrik/"+region)
	}
	return sources
}
