package extract_test

import (
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/reinetwork/actor-zillow-api-scraper/internal/engine/dedup"
	"github.com/reinetwork/actor-zillow-api-scraper/internal/engine/extract"
	"github.com/reinetwork/actor-zillow-api-scraper/internal/model"
)

func result(zpid, address string) map[string]any {
	return map[string]any{
		"zpid":      zpid,
		"address":   address,
		"detailUrl": "/homedetails/" + zpid + "_zpid/",
		"latLong":   map[string]any{"latitude": 29.76, "longitude": -95.36},
	}
}

func category(total float64, mapResults, listResults []any) map[string]any {
	return map[string]any{
		"searchResults": map[string]any{
			"mapResults":  mapResults,
			"listResults": listResults,
		},
		"searchList": map[string]any{"totalResultCount": total},
	}
}

func TestExtractMergeOrder(t *testing.T) {
	t.Parallel()

	payload := map[string]any{
		"cat1": category(3,
			[]any{result("1", "1 A St"), result("2", "2 B St")},
			[]any{result("3", "3 C St")},
		),
		"cat2": category(2,
			[]any{result("4", "4 D St")},
			[]any{result("5", "5 E St")},
		),
	}

	var hw dedup.Highwater
	e := extract.New(zap.NewNop(), &hw)

	pe, err := e.Extract(payload, model.QueryState{}, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []string{"1", "2", "3", "4", "5"}
	if len(pe.Records) != len(want) {
		t.Fatalf("expected %d records, got %d", len(want), len(pe.Records))
	}
	for i, id := range want {
		if pe.Records[i].ZPID != id {
			t.Errorf("record %d: expected zpid %s, got %s", i, id, pe.Records[i].ZPID)
		}
	}
	if pe.TotalCount != 5 {
		t.Fatalf("expected summed total 5, got %d", pe.TotalCount)
	}
	if pe.Categories[extract.CatPrimary].TotalCount != 3 {
		t.Fatalf("expected cat1 total 3, got %d", pe.Categories[extract.CatPrimary].TotalCount)
	}
	if pe.Categories[extract.CatSecondary].TotalCount != 2 {
		t.Fatalf("expected cat2 total 2, got %d", pe.Categories[extract.CatSecondary].TotalCount)
	}
}

func TestExtractNumericID(t *testing.T) {
	t.Parallel()

	payload := map[string]any{
		"cat1": category(1, []any{map[string]any{
			"zpid":    float64(4567),
			"address": "42 Oak Ave",
		}}, nil),
	}

	var hw dedup.Highwater
	e := extract.New(zap.NewNop(), &hw)

	pe, err := e.Extract(payload, model.QueryState{}, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pe.Records[0].ZPID != "4567" {
		t.Fatalf("expected numeric id coerced to string, got %q", pe.Records[0].ZPID)
	}
}

func TestExtractHighwater(t *testing.T) {
	t.Parallel()

	payload := map[string]any{
		"cat1": category(600, []any{result("1", "1 A St")}, nil),
	}

	var hw dedup.Highwater
	e := extract.New(zap.NewNop(), &hw)

	// A split page must not raise the mark.
	if _, err := e.Extract(payload, model.QueryState{}, 2); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if hw.Load() != 0 {
		t.Fatalf("expected mark untouched by split page, got %d", hw.Load())
	}

	// Neither must a pagination follow-up.
	if _, err := e.Extract(payload, model.QueryState{Page: 3}, 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if hw.Load() != 0 {
		t.Fatalf("expected mark untouched by later page, got %d", hw.Load())
	}

	// An un-split first page does.
	if _, err := e.Extract(payload, model.QueryState{}, 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if hw.Load() != 600 {
		t.Fatalf("expected mark 600, got %d", hw.Load())
	}
}

func TestExtractMissingData(t *testing.T) {
	t.Parallel()

	var hw dedup.Highwater
	e := extract.New(zap.NewNop(), &hw)

	cases := []struct {
		name    string
		payload any
	}{
		{"nil payload", nil},
		{"not a document", []any{"nope"}},
		{"no categories", map[string]any{"user": map[string]any{}}},
		{"category without result set", map[string]any{
			"cat1": map[string]any{"searchList": map[string]any{"totalResultCount": float64(9)}},
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			_, err := e.Extract(tc.payload, model.QueryState{}, 0)
			if !errors.Is(err, extract.ErrMissingPageData) {
				t.Fatalf("expected ErrMissingPageData, got %v", err)
			}
		})
	}
}

func TestExtractTotalsFallback(t *testing.T) {
	t.Parallel()

	payload := map[string]any{
		"cat1": map[string]any{
			"searchResults": map[string]any{
				"mapResults": []any{result("8", "8 Elm St")},
			},
		},
		"categoryTotals": map[string]any{
			"cat1": map[string]any{"totalResultCount": float64(77)},
		},
	}

	var hw dedup.Highwater
	e := extract.New(zap.NewNop(), &hw)

	pe, err := e.Extract(payload, model.QueryState{}, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pe.TotalCount != 77 {
		t.Fatalf("expected fallback total 77, got %d", pe.TotalCount)
	}
}

func TestExtractEmptyPageIsNotMissing(t *testing.T) {
	t.Parallel()

	payload := map[string]any{
		"cat1": category(0, []any{}, []any{}),
	}

	var hw dedup.Highwater
	e := extract.New(zap.NewNop(), &hw)

	pe, err := e.Extract(payload, model.QueryState{}, 0)
	if err != nil {
		t.Fatalf("a present-but-empty result set must extract cleanly, got %v", err)
	}
	if len(pe.Records) != 0 || pe.TotalCount != 0 {
		t.Fatalf("expected genuinely empty extract, got %d records total %d", len(pe.Records), pe.TotalCount)
	}
}
