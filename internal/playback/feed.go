package playback

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
)

// ErrInvalidSegments is returned when a page is not start-ascending,
// overlaps, or contains words outside their segment.
var ErrInvalidSegments = errors.New("invalid segments")

// IngestPolicy selects how Feed treats out-of-order pages.
type IngestPolicy int

const (
	// IngestReject refuses any page that is not already ordered.
	IngestReject IngestPolicy = iota
	// IngestSort sorts a page (and each segment's words) by start before
	// validating it. Overlaps are still rejected.
	IngestSort
)

// ParseIngestPolicy maps "sort" to IngestSort; anything else is IngestReject.
func ParseIngestPolicy(s string) IngestPolicy {
	if strings.EqualFold(strings.TrimSpace(s), "sort") {
		return IngestSort
	}
	return IngestReject
}

func (p IngestPolicy) String() string {
	if p == IngestSort {
		return "sort"
	}
	return "reject"
}

// Feed is the append-only, concurrency-safe segment array the engine tracks.
// Ingested segments are copied and never mutated, so slices handed out by
// Segments stay valid after later appends.
type Feed struct {
	mu       sync.RWMutex
	policy   IngestPolicy
	segments []Segment
}

// NewFeed returns an empty feed using policy.
func NewFeed(policy IngestPolicy) *Feed {
	return &Feed{policy: policy}
}

// Append validates page and appends it. The page must start at or after the
// end of the already-ingested tail. Nothing is appended on error.
func (f *Feed) Append(page []Segment) (int, error) {
	if len(page) == 0 {
		return 0, nil
	}
	cp := cloneSegments(page)
	if f.policy == IngestSort {
		sortSegments(cp)
	}
	if err := ValidateSegments(cp); err != nil {
		return 0, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if n := len(f.segments); n > 0 {
		tail := f.segments[n-1]
		if cp[0].Start < tail.End {
			return 0, fmt.Errorf("%w: page starts at %.3f before feed tail ends at %.3f",
				ErrInvalidSegments, cp[0].Start, tail.End)
		}
	}
	f.segments = append(f.segments, cp...)
	return len(cp), nil
}

// Segments returns the ingested segments. The slice is capped so appends by
// the caller cannot write into the feed.
func (f *Feed) Segments() []Segment {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.segments[:len(f.segments):len(f.segments)]
}

// Len returns the number of ingested segments.
func (f *Feed) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.segments)
}

// At returns the segment at index i.
func (f *Feed) At(i int) (Segment, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if i < 0 || i >= len(f.segments) {
		return Segment{}, false
	}
	return f.segments[i], true
}

// End returns the end of the last segment, or 0 for an empty feed.
func (f *Feed) End() float64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if len(f.segments) == 0 {
		return 0
	}
	return f.segments[len(f.segments)-1].End
}

// ValidateSegments checks ordering and bounds for segs and their words.
func ValidateSegments(segs []Segment) error {
	for i, s := range segs {
		if !finite(s.Start) || !finite(s.End) || s.Start < 0 {
			return fmt.Errorf("%w: segment %d: bad bounds [%v, %v)", ErrInvalidSegments, i, s.Start, s.End)
		}
		if s.Start >= s.End {
			return fmt.Errorf("%w: segment %d: start %.3f >= end %.3f", ErrInvalidSegments, i, s.Start, s.End)
		}
		if i > 0 {
			prev := segs[i-1]
			if s.Start < prev.Start {
				return fmt.Errorf("%w: segment %d: not start-ascending", ErrInvalidSegments, i)
			}
			if s.Start < prev.End {
				return fmt.Errorf("%w: segment %d overlaps segment %d", ErrInvalidSegments, i, i-1)
			}
		}
		for j, w := range s.Words {
			if !finite(w.Start) || !finite(w.End) || w.Start >= w.End {
				return fmt.Errorf("%w: segment %d word %d: bad bounds [%v, %v)", ErrInvalidSegments, i, j, w.Start, w.End)
			}
			if w.Start < s.Start || w.End > s.End {
				return fmt.Errorf("%w: segment %d word %d: outside segment range", ErrInvalidSegments, i, j)
			}
			if j > 0 && w.Start < s.Words[j-1].End {
				return fmt.Errorf("%w: segment %d word %d: not ordered or overlapping", ErrInvalidSegments, i, j)
			}
		}
	}
	return nil
}

// sortSegments sorts only when the slice is not already ordered.
func sortSegments(segs []Segment) {
	if !sort.SliceIsSorted(segs, func(i, j int) bool { return segs[i].Start < segs[j].Start }) {
		sort.SliceStable(segs, func(i, j int) bool { return segs[i].Start < segs[j].Start })
	}
	for i := range segs {
		words := segs[i].Words
		if !sort.SliceIsSorted(words, func(a, b int) bool { return words[a].Start < words[b].Start }) {
			sort.SliceStable(words, func(a, b int) bool { return words[a].Start < words[b].Start })
		}
	}
}

func cloneSegments(in []Segment) []Segment {
	out := make([]Segment, len(in))
	for i, s := range in {
		out[i] = s
		if len(s.Words) > 0 {
			out[i].Words = append([]Word(nil), s.Words...)
		}
	}
	return out
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
