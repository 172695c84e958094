package plan_test

import (
	"testing"

	"github.com/reinetwork/actor-zillow-api-scraper/internal/engine/plan"
	"github.com/reinetwork/actor-zillow-api-scraper/internal/model"
)

func TestPagerMath(t *testing.T) {
	t.Parallel()

	p := plan.NewPager(40, 20)
	st := model.QueryState{Viewport: houston}

	// ceil(120/40)+1 = 4 => pages 2, 3, 4.
	pages := p.Plan(st, 120, 0, 0)
	if len(pages) != 3 {
		t.Fatalf("expected 3 follow-up pages, got %d", len(pages))
	}
	for i, want := range []int{2, 3, 4} {
		if pages[i].Page != want {
			t.Errorf("follow-up %d: expected page %d, got %d", i, want, pages[i].Page)
		}
		if pages[i].Viewport != st.Viewport {
			t.Errorf("follow-up %d: viewport must not change", i)
		}
	}
}

func TestPagerLimitClamp(t *testing.T) {
	t.Parallel()

	p := plan.NewPager(40, 20)

	pages := p.Plan(model.QueryState{Viewport: houston}, 10000, 0, 0)
	if len(pages) != 19 {
		t.Fatalf("expected fan-out clamped to pages 2..20 (19 jobs), got %d", len(pages))
	}
	if last := pages[len(pages)-1].Page; last != 20 {
		t.Fatalf("expected last page 20, got %d", last)
	}
}

func TestPagerOnlyFromFirstPage(t *testing.T) {
	t.Parallel()

	p := plan.NewPager(40, 20)

	if got := p.Plan(model.QueryState{Viewport: houston, Page: 2}, 120, 0, 0); got != nil {
		t.Fatalf("expected no recursive pagination, got %d", len(got))
	}
}

func TestPagerZeroTotal(t *testing.T) {
	t.Parallel()

	p := plan.NewPager(40, 20)

	if got := p.Plan(model.QueryState{Viewport: houston}, 0, 0, 0); got != nil {
		t.Fatalf("expected no pagination for zero total, got %d", len(got))
	}
}

func TestPagerHighwaterSuppression(t *testing.T) {
	t.Parallel()

	p := plan.NewPager(40, 20)
	st := model.QueryState{Viewport: houston}

	if got := p.Plan(st, 120, 150, 150); got != nil {
		t.Fatalf("expected suppression once the mark is reached, got %d", len(got))
	}
	// Short of the mark, fan-out proceeds.
	if got := p.Plan(st, 120, 149, 150); len(got) != 3 {
		t.Fatalf("expected fan-out short of the mark, got %d", len(got))
	}
	// A zero mark never suppresses.
	if got := p.Plan(st, 120, 9999, 0); len(got) != 3 {
		t.Fatalf("expected fan-out under zero mark, got %d", len(got))
	}
}

func TestPagerSmallTotalStillPaginates(t *testing.T) {
	t.Parallel()

	p := plan.NewPager(40, 20)

	// ceil(30/40)+1 = 2: the +1 compensates the map view under-count.
	pages := p.Plan(model.QueryState{Viewport: houston}, 30, 0, 0)
	if len(pages) != 1 || pages[0].Page != 2 {
		t.Fatalf("expected exactly page 2, got %+v", pages)
	}
}
