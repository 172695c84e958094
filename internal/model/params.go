package model

// Params holds all configuration for a scraping run.
type Params struct {
	// Mode 1: named place, geocoded to a bounding box.
	Place string

	// Mode 2: explicit bounds.
	North float64
	South float64
	East  float64
	West  float64

	// Common.
	Zoom           int
	AreaPath       string   // optional GeoJSON polygon clipping the run
	Addresses      []string // candidate addresses matched against each page
	StartURLs      []string // seed search URLs carrying embedded query state
	FiltersJSON    string   // raw upstream filter document
	MaxItems       int      // stop collecting new entities after this many (0 = unbounded)
	SplitThreshold int      // result count that triggers viewport subdivision
	MaxSplitLevel  int      // subdivision depth bound
	PagesLimit     int      // pagination fan-out bound per region
	Concurrency    int
	BaseURL        string
	ProxyURL       string // HTTP/SOCKS5 proxy URL (optional)
	DBPath         string
	PostgresDSN    string // optional mirror sink
	NoTUI          bool
	Debug          bool
}

// HasBounds reports whether explicit coordinates were supplied.
func (p *Params) HasBounds() bool {
	return p.North != 0 || p.South != 0 || p.East != 0 || p.West != 0
}

// RootViewport assembles the explicit bounds into a viewport.
func (p *Params) RootViewport() Viewport {
	return Viewport{North: p.North, South: p.South, East: p.East, West: p.West, Zoom: p.Zoom}
}
