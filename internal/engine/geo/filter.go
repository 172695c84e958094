package geo

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"

	"github.com/reinetwork/actor-zillow-api-scraper/internal/model"
)

// Contains reports whether the coordinate falls inside the area.
func Contains(area orb.MultiPolygon, lat, lng float64) bool {
	point := orb.Point{lng, lat} // orb.Point is [lng, lat]
	return planar.MultiPolygonContains(area, point)
}

// FilterRecords drops search records whose coordinates fall outside the
// area. Records without coordinates are kept so detail extraction can
// still resolve them.
func FilterRecords(records []model.ResultRecord, area orb.MultiPolygon) []model.ResultRecord {
	if len(area) == 0 {
		return records
	}
	var kept []model.ResultRecord
	for _, r := range records {
		if r.Lat == 0 && r.Lng == 0 {
			kept = append(kept, r)
			continue
		}
		if Contains(area, r.Lat, r.Lng) {
			kept = append(kept, r)
		}
	}
	return kept
}
