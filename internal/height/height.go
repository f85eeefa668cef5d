// Package height infers an extrusion height for a building from its OSM tags.
package height

import (
	"math"
	"strings"

	"github.com/spf13/cast"
)

// DefaultStoryHeight is the height of one storey in metres.
const DefaultStoryHeight = 4.0

// Inferencer derives heights from tags.
type Inferencer struct {
	StoryHeight float64
}

// New returns an Inferencer. A non-positive story height uses the default.
func New(storyHeight float64) Inferencer {
	if storyHeight <= 0 {
		storyHeight = DefaultStoryHeight
	}
	return Inferencer{StoryHeight: storyHeight}
}

// Infer returns the building height in metres:
//
//  1. building:levels × story height when levels is a positive number;
//  2. else, for anything tagged building, the numeric height tag if present;
//  3. else one story.
func (in Inferencer) Infer(tags map[string]string) float64 {
	story := in.StoryHeight
	if story <= 0 {
		story = DefaultStoryHeight
	}

	if levels, ok := number(tags["building:levels"]); ok && levels > 0 {
		return levels * story
	}

	if _, ok := tags["building"]; ok {
		if h, ok := number(tags["height"]); ok && h > 0 {
			return h
		}
		return story
	}

	return story
}

// number parses OSM numeric values, accepting a trailing metre unit ("12 m").
func number(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	s = strings.TrimSpace(strings.TrimSuffix(s, "m"))

	f, err := cast.ToFloat64E(s)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
