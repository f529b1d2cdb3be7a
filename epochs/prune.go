package epochs

import "sort"

// pruneEvents filters and re-anchors detected onsets to the data window
// before extraction, in four steps:
//
//  1. drop onsets whose code is not in the allow set (skipped when allow is
//     nil, i.e. for irregular event streams);
//  2. when tsEvents is non-nil the onsets come from a separate stream: map
//     each source-local index to the nearest-left position of its timestamp
//     in the data timeline (assumes both clocks are monotonic and share a
//     time base; no skew bound is applied);
//  3. drop onsets whose epoch would not fit in the available data, on
//     either side;
//  4. drop onsets at or before the watermark lastTS, so an event is never
//     extracted twice across polling cycles.
//
// Surviving onsets are extractable, previously unseen and in ascending
// index order.
func pruneEvents(onsets []Onset, allow map[int]struct{}, epochLen, shift int, ts []float64, lastTS *float64, tsEvents []float64) []Onset {
	out := make([]Onset, 0, len(onsets))
	for _, o := range onsets {
		if allow != nil {
			if _, ok := allow[o.Code]; !ok {
				continue
			}
		}

		idx := o.Index
		if tsEvents != nil {
			idx = searchSortedLeft(ts, tsEvents[o.Index])
		}

		if idx+epochLen > len(ts) {
			continue
		}
		if idx+shift+epochLen > len(ts) {
			// Positive shifts move the slice past the nominal fit check.
			continue
		}
		if idx+shift < 0 {
			// Epoch starts before the window; a negative shift can reach
			// past the oldest retained sample.
			continue
		}
		if lastTS != nil && ts[idx] <= *lastTS {
			continue
		}

		o.Index = idx
		out = append(out, o)
	}
	return out
}

// searchSortedLeft returns the insertion index of v in the ascending slice
// ts, with left bias: the first position whose value is >= v.
func searchSortedLeft(ts []float64, v float64) int {
	return sort.SearchFloat64s(ts, v)
}
