package epochs

import (
	"log/slog"
	"math"
	"sort"
)

// Onset is a detected trigger event: the sample index of the transition, the
// channel value before it, and the event code after it. After deduplication
// no two onsets share a sample index and onsets are sorted by index.
type Onset struct {
	Index int
	Prev  int
	Code  int
}

// findEventsInStimChannels scans one or more stim channel rows for rising
// edges: positions where the channel value changes to a nonzero code and is
// sustained for at least minDuration samples. Transitions to zero are
// offsets and discarded; a nonzero value at the start of the window is not
// an event since its transition was not observed.
//
// Onsets from all channels are concatenated, sorted by sample index and
// deduplicated keeping the largest-magnitude code among simultaneous ones.
// Neighbors closer than shortestEvent samples are reported as suspicious.
func findEventsInStimChannels(data [][]float64, channels []string, minDuration, shortestEvent int, logger *slog.Logger) []Onset {
	var all []Onset
	for k, row := range data {
		onsets := findChannelOnsets(row, minDuration)
		if logger != nil {
			warnShortEvents(onsets, shortestEvent, channels[k], logger)
		}
		all = append(all, onsets...)
	}
	return findUniqueEvents(all)
}

// findChannelOnsets scans a single channel row
func findChannelOnsets(row []float64, minDuration int) []Onset {
	if len(row) == 0 {
		return nil
	}
	if minDuration < 1 {
		minDuration = 1
	}

	var onsets []Onset
	prev := int(math.Round(row[0]))
	i := 1
	for i < len(row) {
		cur := int(math.Round(row[i]))
		if cur == prev {
			i++
			continue
		}
		// Measure how long the new value is sustained.
		j := i + 1
		for j < len(row) && int(math.Round(row[j])) == cur {
			j++
		}
		if cur != 0 && j-i >= minDuration {
			onsets = append(onsets, Onset{Index: i, Prev: prev, Code: cur})
		}
		prev = cur
		i = j
	}
	return onsets
}

// findUniqueEvents sorts onsets by sample index and collapses simultaneous
// ones, keeping the code with the largest magnitude.
func findUniqueEvents(onsets []Onset) []Onset {
	if len(onsets) == 0 {
		return nil
	}

	sort.Slice(onsets, func(a, b int) bool {
		if onsets[a].Index != onsets[b].Index {
			return onsets[a].Index < onsets[b].Index
		}
		return abs(onsets[a].Code) > abs(onsets[b].Code)
	})

	unique := onsets[:1]
	for _, o := range onsets[1:] {
		if o.Index != unique[len(unique)-1].Index {
			unique = append(unique, o)
		}
	}
	return unique
}

// warnShortEvents flags implausibly close neighbor onsets, a signature of
// spurious triggers.
func warnShortEvents(onsets []Onset, shortestEvent int, channel string, logger *slog.Logger) {
	short := 0
	for k := 1; k < len(onsets); k++ {
		if onsets[k].Index-onsets[k-1].Index < shortestEvent {
			short++
		}
	}
	if short > 0 {
		logger.Warn("Detected events shorter than the shortest-event threshold, possible spurious triggers",
			"channel", channel, "count", short, "threshold_samples", shortestEvent)
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
