package pagenum

import (
	"log/slog"
	"sort"
)

// Strategy records how a page's printed number was established.
type Strategy int

const (
	StrategyUnknown Strategy = iota
	StrategyExact
	StrategyFuzzy
	StrategyExtrapolated
)

func (s Strategy) String() string {
	switch s {
	case StrategyExact:
		return "exact"
	case StrategyFuzzy:
		return "fuzzy"
	case StrategyExtrapolated:
		return "extrapolated"
	default:
		return "unknown"
	}
}

// Reading is one page's raw OCR result, in physical page order.
type Reading struct {
	Index int
	Raw   string
}

// Resolved is the resolver's verdict for one page.
type Resolved struct {
	Index    int
	Raw      string
	Number   int // printed number, 0 when unknown
	Scheme   Scheme
	Strategy Strategy

	// Offset is the group consensus: physical index minus printed
	// number. Every page in a group carries the same offset.
	Offset int

	// Group identifies the contiguous numbering group, starting at 0.
	Group int

	// Flagged marks pages whose group produced no evidence; their
	// offset of 0 is a placeholder, not a measurement.
	Flagged bool
}

// Resolver maps physical page indices to printed-number offsets.
type Resolver struct {
	// GroupTolerance is the largest offset jump between neighboring
	// resolved pages that still counts as the same numbering group.
	GroupTolerance int

	Logger *slog.Logger
}

// NewResolver returns a resolver with the given group tolerance
// (values below 1 fall back to 2).
func NewResolver(tolerance int, logger *slog.Logger) *Resolver {
	if tolerance < 1 {
		tolerance = 2
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{GroupTolerance: tolerance, Logger: logger.With("component", "pagenum")}
}

// Resolve assigns every page a numbering offset. Readings must be in
// physical page order. The result has one entry per reading, same order.
func (r *Resolver) Resolve(readings []Reading) []Resolved {
	pages := make([]Resolved, len(readings))

	// Strategies 1 and 2: parse what OCR gave us, correcting single
	// confused characters when a clean parse fails.
	for i, rd := range readings {
		pages[i] = Resolved{Index: rd.Index, Raw: rd.Raw}
		s := normalize(rd.Raw)
		if s == "" {
			continue
		}
		if n, scheme, ok := parseNumber(s); ok {
			pages[i].Number = n
			pages[i].Scheme = scheme
			pages[i].Strategy = StrategyExact
			continue
		}
		if n, scheme, ok := parseFuzzy(s); ok {
			pages[i].Number = n
			pages[i].Scheme = scheme
			pages[i].Strategy = StrategyFuzzy
		}
	}

	// Strategy 3: positional extrapolation. A page whose detection was
	// unreadable takes index+offset when its nearest parsed neighbors
	// on both sides agree on the same scheme and local offset. The
	// detection itself is not trusted at all here.
	r.extrapolate(pages)

	// Group consensus: split at offset discontinuities and scheme
	// changes, then assign each group the median of its evidence.
	r.assignGroups(pages)

	return pages
}

func (r *Resolver) extrapolate(pages []Resolved) {
	for i := range pages {
		if pages[i].Strategy != StrategyUnknown {
			continue
		}
		left := nearestResolved(pages, i, -1)
		right := nearestResolved(pages, i, +1)
		if left == nil || right == nil {
			continue
		}
		if left.Scheme != right.Scheme {
			continue
		}
		lo := left.Index - left.Number
		ro := right.Index - right.Number
		if lo != ro {
			continue
		}
		pages[i].Number = pages[i].Index - lo
		pages[i].Scheme = left.Scheme
		pages[i].Strategy = StrategyExtrapolated
	}
}

// nearestResolved scans from i in direction dir for a page resolved by
// parsing (exact or fuzzy); extrapolated pages are not evidence.
func nearestResolved(pages []Resolved, i, dir int) *Resolved {
	for j := i + dir; j >= 0 && j < len(pages); j += dir {
		if pages[j].Strategy == StrategyExact || pages[j].Strategy == StrategyFuzzy {
			return &pages[j]
		}
	}
	return nil
}

func (r *Resolver) assignGroups(pages []Resolved) {
	group := 0
	groupStart := 0
	var prev *Resolved // last resolved page seen in the current group

	flush := func(end int) {
		offset, ok := consensusOffset(pages[groupStart:end])
		for i := groupStart; i < end; i++ {
			pages[i].Group = group
			pages[i].Offset = offset
			pages[i].Flagged = !ok
		}
		if !ok && end > groupStart {
			r.Logger.Warn("numbering group has no readable pages, keeping offset 0",
				"group", group, "pages", end-groupStart)
		}
	}

	for i := range pages {
		p := &pages[i]
		if p.Strategy == StrategyUnknown {
			continue
		}
		if prev != nil {
			jump := (p.Index - p.Number) - (prev.Index - prev.Number)
			if jump < 0 {
				jump = -jump
			}
			if p.Scheme != prev.Scheme || jump > r.GroupTolerance {
				flush(i)
				group++
				groupStart = i
			}
		}
		prev = p
	}
	flush(len(pages))
}

// consensusOffset is the median of (index - number) over the group's
// resolved pages. The median rejects isolated OCR outliers that slipped
// past parsing. Returns ok=false when the group carries no evidence.
func consensusOffset(group []Resolved) (int, bool) {
	var offsets []int
	for _, p := range group {
		if p.Strategy != StrategyUnknown {
			offsets = append(offsets, p.Index-p.Number)
		}
	}
	if len(offsets) == 0 {
		return 0, false
	}
	sort.Ints(offsets)
	return offsets[len(offsets)/2], true
}
