package pagenum

import (
	"fmt"
	"testing"
)

func TestResolve_UniformOffsetWithCorruptedPage(t *testing.T) {
	// 20 pages printed 1-20 (offset -1 throughout), except page 10
	// where OCR produced garbage. The corrupted page must still get
	// the group offset, not stay unresolved.
	readings := make([]Reading, 20)
	for i := range readings {
		readings[i] = Reading{Index: i, Raw: fmt.Sprintf("%d", i+1)}
	}
	readings[10].Raw = "#@!"

	pages := NewResolver(2, nil).Resolve(readings)

	if len(pages) != 20 {
		t.Fatalf("expected 20 pages, got %d", len(pages))
	}
	for _, p := range pages {
		if p.Offset != -1 {
			t.Errorf("page %d: offset = %d, want -1", p.Index, p.Offset)
		}
		if p.Group != 0 {
			t.Errorf("page %d: group = %d, want 0", p.Index, p.Group)
		}
		if p.Flagged {
			t.Errorf("page %d unexpectedly flagged", p.Index)
		}
	}
	if pages[10].Strategy != StrategyExtrapolated {
		t.Errorf("corrupted page strategy = %s, want extrapolated", pages[10].Strategy)
	}
	if pages[10].Number != 11 {
		t.Errorf("corrupted page number = %d, want 11", pages[10].Number)
	}
}

func TestResolve_SchemeChangeSplitsGroups(t *testing.T) {
	// Roman front matter i-iv, then the body restarts at 1.
	readings := []Reading{
		{0, "i"}, {1, "ii"}, {2, "iii"}, {3, "iv"},
		{4, "1"}, {5, "2"}, {6, "3"}, {7, "4"},
	}

	pages := NewResolver(2, nil).Resolve(readings)

	for i := 0; i < 4; i++ {
		if pages[i].Group != 0 || pages[i].Offset != -1 {
			t.Errorf("front matter page %d: group %d offset %d, want group 0 offset -1",
				i, pages[i].Group, pages[i].Offset)
		}
		if pages[i].Scheme != SchemeRoman {
			t.Errorf("front matter page %d: scheme %s, want roman", i, pages[i].Scheme)
		}
	}
	for i := 4; i < 8; i++ {
		if pages[i].Group != 1 || pages[i].Offset != 3 {
			t.Errorf("body page %d: group %d offset %d, want group 1 offset 3",
				i, pages[i].Group, pages[i].Offset)
		}
	}
}

func TestResolve_OffsetJumpSplitsGroups(t *testing.T) {
	// A plate section shifts numbering by 8 mid-book.
	readings := []Reading{
		{0, "5"}, {1, "6"}, {2, "7"},
		{3, "16"}, {4, "17"}, {5, "18"},
	}

	pages := NewResolver(2, nil).Resolve(readings)

	if pages[2].Group != 0 || pages[2].Offset != -5 {
		t.Errorf("page 2: group %d offset %d, want group 0 offset -5", pages[2].Group, pages[2].Offset)
	}
	if pages[3].Group != 1 || pages[3].Offset != -13 {
		t.Errorf("page 3: group %d offset %d, want group 1 offset -13", pages[3].Group, pages[3].Offset)
	}
}

func TestResolve_MedianRejectsOutlier(t *testing.T) {
	// Page 2 misreads 8 as 6; the jump is within tolerance so it stays
	// in the group, and the median discards its offset.
	readings := []Reading{
		{0, "6"}, {1, "7"}, {2, "6"}, {3, "9"}, {4, "10"},
	}

	pages := NewResolver(2, nil).Resolve(readings)

	for _, p := range pages {
		if p.Group != 0 {
			t.Fatalf("page %d: group %d, want 0", p.Index, p.Group)
		}
		if p.Offset != -6 {
			t.Errorf("page %d: offset %d, want -6", p.Index, p.Offset)
		}
	}
}

func TestResolve_ZeroEvidenceGroupFlagged(t *testing.T) {
	readings := []Reading{
		{0, ""}, {1, "!!"}, {2, ""},
	}

	pages := NewResolver(2, nil).Resolve(readings)

	for _, p := range pages {
		if !p.Flagged {
			t.Errorf("page %d: expected flagged", p.Index)
		}
		if p.Offset != 0 {
			t.Errorf("page %d: offset %d, want 0", p.Index, p.Offset)
		}
		if p.Strategy != StrategyUnknown {
			t.Errorf("page %d: strategy %s, want unknown", p.Index, p.Strategy)
		}
	}
}

func TestResolve_FuzzyCorrection(t *testing.T) {
	readings := []Reading{
		{0, "3"}, {1, "4"}, {2, "S"}, {3, "6"},
	}

	pages := NewResolver(2, nil).Resolve(readings)

	if pages[2].Strategy != StrategyFuzzy {
		t.Fatalf("page 2 strategy = %s, want fuzzy", pages[2].Strategy)
	}
	if pages[2].Number != 5 {
		t.Errorf("page 2 number = %d, want 5", pages[2].Number)
	}
	if pages[2].Offset != -3 {
		t.Errorf("page 2 offset = %d, want -3", pages[2].Offset)
	}
}

func TestResolve_DecoratedFolios(t *testing.T) {
	readings := []Reading{
		{0, "- 12 -"}, {1, "- 13 -"}, {2, "- 14 -"},
	}

	pages := NewResolver(2, nil).Resolve(readings)

	for _, p := range pages {
		if p.Strategy != StrategyExact {
			t.Errorf("page %d: strategy %s, want exact", p.Index, p.Strategy)
		}
		if p.Offset != -12 {
			t.Errorf("page %d: offset %d, want -12", p.Index, p.Offset)
		}
	}
}

func TestResolve_Empty(t *testing.T) {
	pages := NewResolver(2, nil).Resolve(nil)
	if len(pages) != 0 {
		t.Errorf("expected no pages, got %d", len(pages))
	}
}
