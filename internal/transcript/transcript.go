// Package transcript loads transcript fixtures (YAML or JSON) into segments.
package transcript

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"

	"transcript-sync/internal/playback"
)

// ErrEmpty is returned when a file holds no segments.
var ErrEmpty = errors.New("transcript has no segments")

// File is a transcript document. A bare list of segments is also accepted.
type File struct {
	Title    string             `yaml:"title"`
	Language string             `yaml:"language"`
	Duration float64            `yaml:"duration"`
	Segments []playback.Segment `yaml:"segments"`
}

// Load reads and parses the transcript at path.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read transcript: %w", err)
	}
	f, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

// Parse decodes YAML or JSON. Segment order is not validated here; the feed
// does that on ingestion.
func Parse(data []byte) (*File, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("parse transcript: %w", err)
	}
	if len(root.Content) == 0 {
		return nil, ErrEmpty
	}

	var f File
	doc := root.Content[0]
	if doc.Kind == yaml.SequenceNode {
		if err := doc.Decode(&f.Segments); err != nil {
			return nil, fmt.Errorf("decode segments: %w", err)
		}
	} else if err := doc.Decode(&f); err != nil {
		return nil, fmt.Errorf("decode transcript: %w", err)
	}

	if len(f.Segments) == 0 {
		return nil, ErrEmpty
	}
	normalize(f.Segments)
	return &f, nil
}

// normalize puts all text in NFC so the same word typed on different systems
// compares and renders identically.
func normalize(segs []playback.Segment) {
	for i := range segs {
		s := &segs[i]
		s.Text = norm.NFC.String(s.Text)
		s.Translation = norm.NFC.String(s.Translation)
		for j := range s.Words {
			s.Words[j].Text = norm.NFC.String(s.Words[j].Text)
		}
	}
}

// TrackEnd returns the declared duration, or the last segment's end.
func (f *File) TrackEnd() float64 {
	if f.Duration > 0 {
		return f.Duration
	}
	if n := len(f.Segments); n > 0 {
		return f.Segments[n-1].End
	}
	return 0
}
