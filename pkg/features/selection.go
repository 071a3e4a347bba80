// Package features describes which per-pixel features are generated and how
// they are laid out in the feature matrix.
package features

import (
	"fmt"
	"strings"
)

// Feature identifies one position of the selection vector. The order is fixed
// and determines the column order of the feature matrix.
type Feature int

const (
	Min Feature = iota
	Max
	Average
	LowProminencePeaks
	HighProminencePeaks
	PeakWidth
	PeakProminence
	PeakDistance
	Direction
	CrossingDirection

	// Count is the length of the selection vector
	Count
)

// CrossingDirections is the number of fiber directions resolved per pixel
const CrossingDirections = 3

var names = [Count]string{
	Min:                 "min",
	Max:                 "max",
	Average:             "avg",
	LowProminencePeaks:  "low_prominence_peaks",
	HighProminencePeaks: "high_prominence_peaks",
	PeakWidth:           "peakwidth",
	PeakProminence:      "peakprominence",
	PeakDistance:        "peakdistance",
	Direction:           "direction",
	CrossingDirection:   "crossing_direction",
}

// String returns the feature name used in config files and output filenames
func (f Feature) String() string {
	if f < 0 || f >= Count {
		return fmt.Sprintf("feature(%d)", int(f))
	}
	return names[f]
}

// Width returns the number of matrix columns the feature occupies
func (f Feature) Width() int {
	if f == CrossingDirection {
		return CrossingDirections
	}
	return 1
}

// Selection is the fixed-order boolean vector of requested features
type Selection [Count]bool

// All returns a selection with every feature enabled
func All() Selection {
	var s Selection
	for i := range s {
		s[i] = true
	}
	return s
}

// Of returns a selection containing the given features
func Of(fs ...Feature) Selection {
	var s Selection
	for _, f := range fs {
		s[f] = true
	}
	return s
}

// Has reports whether f is selected
func (s Selection) Has(f Feature) bool {
	return s[f]
}

// Any reports whether at least one of fs is selected
func (s Selection) Any(fs ...Feature) bool {
	for _, f := range fs {
		if s[f] {
			return true
		}
	}
	return false
}

// Empty reports whether nothing is selected
func (s Selection) Empty() bool {
	for _, v := range s {
		if v {
			return false
		}
	}
	return true
}

// Columns returns the number of output columns: one per selected feature plus
// two extra when the crossing direction is selected.
func (s Selection) Columns() int {
	n := 0
	for f, v := range s {
		if v {
			n += Feature(f).Width()
		}
	}
	return n
}

// Names returns the selected feature names in column order
func (s Selection) Names() []string {
	var out []string
	for f, v := range s {
		if v {
			out = append(out, Feature(f).String())
		}
	}
	return out
}

// Parse looks up a feature by name
func Parse(name string) (Feature, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	for f, n := range names {
		if n == key {
			return Feature(f), nil
		}
	}
	return 0, fmt.Errorf("unknown feature %q", name)
}

// ParseSelection builds a selection from feature names. The special name
// "all" selects every feature.
func ParseSelection(list []string) (Selection, error) {
	var s Selection
	for _, name := range list {
		if strings.EqualFold(strings.TrimSpace(name), "all") {
			return All(), nil
		}
		f, err := Parse(name)
		if err != nil {
			return Selection{}, err
		}
		s[f] = true
	}
	return s, nil
}

// AllNames returns every feature name in column order
func AllNames() []string {
	out := make([]string, Count)
	for f := range names {
		out[f] = names[f]
	}
	return out
}
