package features

// Column describes where a selected feature lives in the feature matrix
type Column struct {
	Feature Feature

	// Offset is the index of the first matrix column
	Offset int

	// Width is the number of contiguous columns (3 for the crossing direction)
	Width int
}

// Layout returns the column layout of the selection in fixed feature order
func (s Selection) Layout() []Column {
	var cols []Column
	offset := 0
	for f, v := range s {
		if !v {
			continue
		}
		w := Feature(f).Width()
		cols = append(cols, Column{Feature: Feature(f), Offset: offset, Width: w})
		offset += w
	}
	return cols
}

// Plan is the per-pixel computation plan derived once from a selection and
// shared read-only by every worker. It decides which intermediate peak sets
// have to be computed so that each is computed at most once per pixel.
type Plan struct {
	Selection Selection
	Layout    []Column
	Columns   int

	// NeedRawPeaks is set when any peak based feature is selected
	NeedRawPeaks bool

	// NeedLowPeaks requests the any-prominence, non-centroid positions
	NeedLowPeaks bool

	// NeedHighPeaks requests the thresholded, non-centroid positions used by
	// the high prominence count, width and prominence
	NeedHighPeaks bool

	// NeedCentroidPeaks requests the thresholded, centroid-refined positions
	// used by distance and both direction features
	NeedCentroidPeaks bool
}

// NewPlan derives the computation plan for s
func NewPlan(s Selection) Plan {
	layout := s.Layout()
	columns := 0
	for _, c := range layout {
		columns += c.Width
	}
	return Plan{
		Selection: s,
		Layout:    layout,
		Columns:   columns,
		NeedRawPeaks: s.Any(LowProminencePeaks, HighProminencePeaks, PeakWidth,
			PeakProminence, PeakDistance, Direction, CrossingDirection),
		NeedLowPeaks:      s.Has(LowProminencePeaks),
		NeedHighPeaks:     s.Any(HighProminencePeaks, PeakWidth, PeakProminence),
		NeedCentroidPeaks: s.Any(PeakDistance, Direction, CrossingDirection),
	}
}
