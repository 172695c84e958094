package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	retry "github.com/avast/retry-go/v4"

	"github.com/reinetwork/actor-zillow-api-scraper/internal/model"
)

const defaultNominatimEndpoint = "https://nominatim.openstreetmap.org/search"

type nominatimResult struct {
	BoundingBox []string `json:"boundingbox"` // [minLat, maxLat, minLng, maxLng]
	DisplayName string   `json:"display_name"`
}

// Geocoder resolves place names to bounding boxes using the OSM
// Nominatim API.
type Geocoder struct {
	Endpoint   string
	UserAgent  string
	Client     *http.Client
	Attempts   uint
	RetryDelay time.Duration
}

func NewGeocoder() *Geocoder {
	return &Geocoder{
		Endpoint:   defaultNominatimEndpoint,
		UserAgent:  "zillow-scraper/1.0 (search region resolver)",
		Client:     &http.Client{Timeout: 10 * time.Second},
		Attempts:   3,
		RetryDelay: 2 * time.Second,
	}
}

// Geocode returns the bounding box of a named place as a viewport. The
// zoom level is left at zero for the caller to fit.
func (g *Geocoder) Geocode(ctx context.Context, place string) (model.Viewport, error) {
	var vp model.Viewport
	err := retry.Do(
		func() error {
			v, err := g.lookup(ctx, place)
			if err != nil {
				return err
			}
			vp = v
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(g.Attempts),
		retry.Delay(g.RetryDelay),
		retry.LastErrorOnly(true),
	)
	return vp, err
}

func (g *Geocoder) lookup(ctx context.Context, place string) (model.Viewport, error) {
	u := g.Endpoint + "?" + url.Values{
		"q":      {place},
		"format": {"json"},
		"limit":  {"1"},
	}.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return model.Viewport{}, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", g.UserAgent)

	resp, err := g.Client.Do(req)
	if err != nil {
		return model.Viewport{}, fmt.Errorf("geocoding request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return model.Viewport{}, fmt.Errorf("geocoding returned status %d", resp.StatusCode)
	}

	var results []nominatimResult
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return model.Viewport{}, fmt.Errorf("decoding geocoding response: %w", err)
	}
	if len(results) == 0 {
		return model.Viewport{}, retry.Unrecoverable(fmt.Errorf("place %q not found", place))
	}

	bb := results[0].BoundingBox
	if len(bb) < 4 {
		return model.Viewport{}, fmt.Errorf("invalid bounding box from geocoder")
	}

	// Nominatim returns [minLat, maxLat, minLng, maxLng] as strings.
	minLat, _ := strconv.ParseFloat(bb[0], 64)
	maxLat, _ := strconv.ParseFloat(bb[1], 64)
	minLng, _ := strconv.ParseFloat(bb[2], 64)
	maxLng, _ := strconv.ParseFloat(bb[3], 64)

	vp := model.Viewport{North: maxLat, South: minLat, East: maxLng, West: minLng}
	if !vp.Valid() {
		return model.Viewport{}, retry.Unrecoverable(fmt.Errorf("degenerate bounding box for %q", place))
	}
	return vp, nil
}
