package playback

import (
	"math"
	"sort"
)

// Locate returns the index of the item whose [start, end) interval contains t,
// or -1 when t is before the first item, after the last, or in a gap.
// items must be start-ascending and non-overlapping.
func Locate[T any](items []T, t float64, start, end func(T) float64) int {
	if len(items) == 0 || math.IsNaN(t) {
		return -1
	}
	// First item starting after t; its predecessor is the only candidate.
	i := sort.Search(len(items), func(i int) bool { return start(items[i]) > t }) - 1
	if i < 0 {
		return -1
	}
	if t < end(items[i]) {
		return i
	}
	return -1
}

// LocateSegment is Locate over segments.
func LocateSegment(segs []Segment, t float64) int {
	return Locate(segs, t, segmentStart, segmentEnd)
}

// LocateWord is Locate over words. Words inherit the end-exclusive rule.
func LocateWord(words []Word, t float64) int {
	return Locate(words, t, wordStart, wordEnd)
}

func segmentStart(s Segment) float64 { return s.Start }
func segmentEnd(s Segment) float64   { return s.End }
func wordStart(w Word) float64       { return w.Start }
func wordEnd(w Word) float64         { return w.End }

// PositionTracker remembers the last reported active index and emits change
// events only when it moves.
type PositionTracker struct {
	active ActiveIndex
}

// NewPositionTracker returns a tracker with nothing active.
func NewPositionTracker() *PositionTracker {
	return &PositionTracker{active: NoActive}
}

// Active returns the last reported index.
func (p *PositionTracker) Active() ActiveIndex {
	return p.active
}

// Update resolves t against segs and returns the change events, segment event
// first.
func (p *PositionTracker) Update(segs []Segment, t float64) []Event {
	var events []Event

	segIdx := LocateSegment(segs, t)
	if segIdx != p.active.Segment {
		ev := Event{Kind: EventActiveSegmentChanged, LocalIndex: segIdx, GlobalIndex: -1, WordIndex: -1}
		if segIdx >= 0 {
			seg := segs[segIdx]
			ev.Segment = &seg
			ev.GlobalIndex = seg.GlobalIndex(segIdx)
		}
		events = append(events, ev)
	}

	wordIdx := -1
	if segIdx >= 0 {
		wordIdx = LocateWord(segs[segIdx].Words, t)
	}
	if wordIdx != p.active.Word || (segIdx != p.active.Segment && wordIdx >= 0) {
		ev := Event{Kind: EventActiveWordChanged, LocalIndex: segIdx, GlobalIndex: -1, WordIndex: wordIdx}
		if segIdx >= 0 {
			ev.GlobalIndex = segs[segIdx].GlobalIndex(segIdx)
		}
		if wordIdx >= 0 {
			w := segs[segIdx].Words[wordIdx]
			ev.Word = &w
		}
		events = append(events, ev)
	}

	p.active = ActiveIndex{Segment: segIdx, Word: wordIdx}
	return events
}

// Reset forgets the last reported index.
func (p *PositionTracker) Reset() {
	p.active = NoActive
}
