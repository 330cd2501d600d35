package playback

import (
	"fmt"
	"math"
	"strings"
)

const vttContentType = "text/vtt; charset=utf-8"

// BuildWebVTT renders segments as a WebVTT text track. Cue identifiers are the
// segment IDs (or 1-based positions when empty). With translation set, a
// segment's translation is added as a second cue line.
// An empty slice produces a header-only track.
func BuildWebVTT(segments []Segment, translation bool) string {
	var b strings.Builder

	b.WriteString("WEBVTT\n")

	for i, seg := range segments {
		b.WriteString("\n")
		id := strings.TrimSpace(seg.ID)
		if id == "" {
			id = fmt.Sprintf("%d", i+1)
		}
		b.WriteString(id)
		b.WriteString("\n")
		b.WriteString(fmt.Sprintf("%s --> %s\n", formatCueTime(seg.Start), formatCueTime(seg.End)))
		b.WriteString(cueText(seg.Text))
		b.WriteString("\n")
		if translation && strings.TrimSpace(seg.Translation) != "" {
			b.WriteString(cueText(seg.Translation))
			b.WriteString("\n")
		}
	}

	return b.String()
}

// formatCueTime renders seconds as HH:MM:SS.mmm, rounding to the millisecond.
func formatCueTime(sec float64) string {
	if sec < 0 || math.IsNaN(sec) {
		sec = 0
	}
	ms := int64(math.Round(sec * 1000))
	h := ms / 3_600_000
	m := (ms / 60_000) % 60
	s := (ms / 1000) % 60
	return fmt.Sprintf("%02d:%02d:%02d.%03d", h, m, s, ms%1000)
}

// cueText keeps a cue on one block: blank lines would end it early and "-->"
// is reserved for timing lines.
func cueText(s string) string {
	s = strings.ReplaceAll(s, "-->", "->")
	lines := strings.Split(strings.TrimSpace(s), "\n")
	out := lines[:0]
	for _, l := range lines {
		if l = strings.TrimSpace(l); l != "" {
			out = append(out, l)
		}
	}
	return strings.Join(out, "\n")
}
