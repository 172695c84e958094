package geo

import (
	"math"

	"github.com/paulmach/orb"

	"github.com/reinetwork/actor-zillow-api-scraper/internal/model"
)

const (
	minZoom = 1
	maxZoom = 19
)

// TileSpanDegrees returns the width in degrees of one map tile at the
// given zoom level.
func TileSpanDegrees(zoom int) float64 {
	return 360.0 / math.Pow(2, float64(zoom))
}

// FitZoom picks the zoom level at which a single tile roughly covers the
// wider axis of the given extent.
func FitZoom(latSpan, lngSpan float64) int {
	span := math.Max(latSpan, lngSpan)
	if span <= 0 {
		return maxZoom
	}
	zoom := int(math.Floor(math.Log2(360.0 / span)))
	if zoom < minZoom {
		zoom = minZoom
	}
	if zoom > maxZoom {
		zoom = maxZoom
	}
	return zoom
}

// WithFittedZoom derives a zoom level from the viewport extent when none
// was supplied. An explicit zoom is kept as-is.
func WithFittedZoom(v model.Viewport) model.Viewport {
	if v.Zoom > 0 {
		return v
	}
	latSpan, lngSpan := v.SpanDegrees()
	v.Zoom = FitZoom(latSpan, lngSpan)
	return v
}

// Bound converts a viewport to an orb bound. orb points are [lng, lat].
func Bound(v model.Viewport) orb.Bound {
	return orb.Bound{
		Min: orb.Point{v.West, v.South},
		Max: orb.Point{v.East, v.North},
	}
}

// Clip intersects the viewport with the bound, keeping the zoom level.
// The second return is false when the two regions are disjoint.
func Clip(v model.Viewport, b orb.Bound) (model.Viewport, bool) {
	clipped := model.Viewport{
		North: math.Min(v.North, b.Max.Lat()),
		South: math.Max(v.South, b.Min.Lat()),
		East:  math.Min(v.East, b.Max.Lon()),
		West:  math.Max(v.West, b.Min.Lon()),
		Zoom:  v.Zoom,
	}
	if !clipped.Valid() {
		return model.Viewport{}, false
	}
	return clipped, true
}
