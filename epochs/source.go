package epochs

// eventSource detects trigger onsets for one acquisition step and prunes
// them against the data timeline ts. The returned onsets are indexed into
// ts, in ascending order, and strictly newer than the watermark.
//
// Three variants cover the supported trigger topologies: stim channels on
// the epoched stream itself, stim channels on a separate regularly sampled
// stream, and a one-hot irregular event stream where every sample is an
// event.
type eventSource interface {
	detectAndPrune(data [][]float64, ts []float64, lastTS *float64) ([]Onset, error)
}

// mainStimSource reads triggers from stim channels of the epoched stream.
// The channel rows are sliced out of the data already fetched for
// extraction, so detection and extraction share one timeline.
type mainStimSource struct {
	es *EpochsStream
}

func (m *mainStimSource) detectAndPrune(data [][]float64, ts []float64, lastTS *float64) ([]Onset, error) {
	rows := make([][]float64, len(m.es.eventIdx))
	for k, idx := range m.es.eventIdx {
		rows[k] = data[idx]
	}
	onsets := findEventsInStimChannels(
		rows, m.es.settings.EventChannels,
		m.es.settings.MinEventDuration, m.es.settings.ShortestEvent,
		m.es.logger,
	)
	return pruneEvents(onsets, m.es.allow, m.es.epochLen, m.es.shift, ts, lastTS, nil), nil
}

// sideStimSource reads triggers from stim channels of a separate regularly
// sampled stream. Onsets are detected on the event stream's own window and
// mapped onto the data timeline by timestamp.
type sideStimSource struct {
	es *EpochsStream
}

func (s *sideStimSource) detectAndPrune(data [][]float64, ts []float64, lastTS *float64) ([]Onset, error) {
	rows, tsEv, err := s.es.events.GetData(s.es.settings.EventChannels)
	if err != nil {
		return nil, err
	}
	onsets := findEventsInStimChannels(
		rows, s.es.settings.EventChannels,
		s.es.settings.MinEventDuration, s.es.settings.ShortestEvent,
		s.es.logger,
	)
	return pruneEvents(onsets, s.es.allow, s.es.epochLen, s.es.shift, ts, lastTS, tsEv), nil
}

// irregularSource treats every sample of an irregularly sampled event
// stream as an event. The code is the row index of the largest value at
// that sample, so a one-hot channel layout maps channel position to event
// code. No allow-list applies; the code carries no configured meaning.
type irregularSource struct {
	es *EpochsStream
}

func (i *irregularSource) detectAndPrune(data [][]float64, ts []float64, lastTS *float64) ([]Onset, error) {
	rows, tsEv, err := i.es.events.GetData(i.es.settings.EventChannels)
	if err != nil {
		return nil, err
	}
	var onsets []Onset
	for k := range tsEv {
		if tsEv[k] == 0 {
			// Zero timestamps mark slots of the event window that were
			// never written.
			continue
		}
		code := 0
		for ch := 1; ch < len(rows); ch++ {
			if rows[ch][k] > rows[code][k] {
				code = ch
			}
		}
		onsets = append(onsets, Onset{Index: k, Code: code})
	}
	return pruneEvents(onsets, nil, i.es.epochLen, i.es.shift, ts, lastTS, tsEv), nil
}
