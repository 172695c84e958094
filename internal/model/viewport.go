package model

// Viewport is a rectangular map region in WGS84 degrees plus the zoom
// level the upstream renders it at.
type Viewport struct {
	North float64 `json:"north"`
	South float64 `json:"south"`
	East  float64 `json:"east"`
	West  float64 `json:"west"`
	Zoom  int     `json:"zoom"`
}

// Center returns the midpoint of the viewport.
func (v Viewport) Center() (lat, lng float64) {
	return (v.North + v.South) / 2, (v.East + v.West) / 2
}

// Valid reports whether the bounds describe a non-empty region.
func (v Viewport) Valid() bool {
	return v.North > v.South && v.East > v.West
}

// SpanDegrees returns the latitudinal and longitudinal extent.
func (v Viewport) SpanDegrees() (latSpan, lngSpan float64) {
	return v.North - v.South, v.East - v.West
}
