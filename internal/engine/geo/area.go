package geo

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/reinetwork/actor-zillow-api-scraper/internal/model"
)

// LoadArea reads a GeoJSON file and collects every polygonal geometry in
// it. FeatureCollections, single Features and bare geometries are all
// accepted.
func LoadArea(path string) (orb.MultiPolygon, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading area file: %w", err)
	}

	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("parsing area file: %w", err)
	}

	var area orb.MultiPolygon
	switch probe.Type {
	case "FeatureCollection":
		fc, err := geojson.UnmarshalFeatureCollection(data)
		if err != nil {
			return nil, fmt.Errorf("parsing feature collection: %w", err)
		}
		for _, f := range fc.Features {
			area = append(area, polygons(f.Geometry)...)
		}
	case "Feature":
		f, err := geojson.UnmarshalFeature(data)
		if err != nil {
			return nil, fmt.Errorf("parsing feature: %w", err)
		}
		area = polygons(f.Geometry)
	default:
		g, err := geojson.UnmarshalGeometry(data)
		if err != nil {
			return nil, fmt.Errorf("parsing geometry: %w", err)
		}
		area = polygons(g.Geometry())
	}

	if len(area) == 0 {
		return nil, fmt.Errorf("area file %s contains no polygons", path)
	}
	return area, nil
}

func polygons(g orb.Geometry) orb.MultiPolygon {
	switch geom := g.(type) {
	case orb.Polygon:
		return orb.MultiPolygon{geom}
	case orb.MultiPolygon:
		return geom
	default:
		return nil
	}
}

// AreaViewport returns the bounding box of the area as a viewport.
func AreaViewport(area orb.MultiPolygon, zoom int) model.Viewport {
	b := area.Bound()
	return model.Viewport{
		North: b.Max.Lat(),
		South: b.Min.Lat(),
		East:  b.Max.Lon(),
		West:  b.Min.Lon(),
		Zoom:  zoom,
	}
}
