package geo_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/reinetwork/actor-zillow-api-scraper/internal/engine/geo"
)

func newTestGeocoder(endpoint string) *geo.Geocoder {
	g := geo.NewGeocoder()
	g.Endpoint = endpoint
	g.RetryDelay = 10 * time.Millisecond
	return g
}

func TestGeocode(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("q"); got != "Austin, TX" {
			t.Errorf("q = %q", got)
		}
		if got := r.URL.Query().Get("format"); got != "json" {
			t.Errorf("format = %q", got)
		}
		if got := r.URL.Query().Get("limit"); got != "1" {
			t.Errorf("limit = %q", got)
		}
		if ua := r.Header.Get("User-Agent"); !strings.Contains(ua, "zillow-scraper") {
			t.Errorf("User-Agent = %q", ua)
		}
		w.Write([]byte(`[{"boundingbox":["30.1","30.9","-98.2","-97.5"],"display_name":"Austin, Travis County, Texas"}]`))
	}))
	defer srv.Close()

	vp, err := newTestGeocoder(srv.URL).Geocode(context.Background(), "Austin, TX")
	if err != nil {
		t.Fatalf("Geocode: %v", err)
	}
	if vp.North != 30.9 || vp.South != 30.1 || vp.East != -97.5 || vp.West != -98.2 {
		t.Errorf("viewport = %+v", vp)
	}
	if vp.Zoom != 0 {
		t.Errorf("zoom should be left for the caller to fit, got %d", vp.Zoom)
	}
}

func TestGeocodeRetriesServerErrors(t *testing.T) {
	t.Parallel()

	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`[{"boundingbox":["30.1","30.9","-98.2","-97.5"],"display_name":"Austin"}]`))
	}))
	defer srv.Close()

	if _, err := newTestGeocoder(srv.URL).Geocode(context.Background(), "Austin"); err != nil {
		t.Fatalf("Geocode: %v", err)
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("server called %d times, want 2", got)
	}
}

func TestGeocodeUnknownPlaceDoesNotRetry(t *testing.T) {
	t.Parallel()

	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	_, err := newTestGeocoder(srv.URL).Geocode(context.Background(), "nowhere at all")
	if err == nil {
		t.Fatal("expected error for unknown place")
	}
	if !strings.Contains(err.Error(), "not found") {
		t.Errorf("err = %v", err)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("server called %d times, want 1", got)
	}
}

func TestGeocodeRejectsDegenerateBox(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"boundingbox":["30.5","30.5","-98.0","-98.0"],"display_name":"a point"}]`))
	}))
	defer srv.Close()

	if _, err := newTestGeocoder(srv.URL).Geocode(context.Background(), "a point"); err == nil {
		t.Fatal("expected error for degenerate bounding box")
	}
}
