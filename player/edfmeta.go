package player

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

// fileMeta is the slice of the EDF header the player needs to describe the
// replayed stream. The edf package decodes samples and calibration but does
// not expose its parsed header, so these fields are read separately.
type fileMeta struct {
	labels           []string
	dimensions       []string
	samplesPerRecord []int
	records          int
	recordDuration   time.Duration
}

// sfreq returns the sampling rate of signal i in Hz
func (m *fileMeta) sfreq(i int) float64 {
	if m.recordDuration <= 0 {
		return 0
	}
	return float64(m.samplesPerRecord[i]) / m.recordDuration.Seconds()
}

// Fixed-width field layout of the EDF header, per the EDF/EDF+ spec: a
// 256-byte core header followed by per-signal blocks of labels (16),
// transducer (80), dimension (8), physical min/max (8+8), digital min/max
// (8+8), prefiltering (80), samples per record (8) and reserved (32).
const (
	coreHeaderSize = 256
	labelSize      = 16
	transducerSize = 80
	dimensionSize  = 8
	rangeSize      = 8
	prefilterSize  = 80
	samplesSize    = 8
)

func readMeta(r io.ReadSeeker) (*fileMeta, error) {
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("seek header: %w", err)
	}

	core := make([]byte, coreHeaderSize)
	if _, err := io.ReadFull(r, core); err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	records, err := strconv.Atoi(strings.TrimSpace(string(core[236:244])))
	if err != nil {
		return nil, fmt.Errorf("parse record count: %w", err)
	}
	duration, err := time.ParseDuration(strings.TrimSpace(string(core[244:252])) + "s")
	if err != nil {
		return nil, fmt.Errorf("parse record duration: %w", err)
	}
	count, err := strconv.Atoi(strings.TrimSpace(string(core[252:256])))
	if err != nil {
		return nil, fmt.Errorf("parse signal count: %w", err)
	}
	if count <= 0 {
		return nil, fmt.Errorf("file has no signals")
	}

	meta := &fileMeta{
		labels:           make([]string, count),
		dimensions:       make([]string, count),
		samplesPerRecord: make([]int, count),
		records:          records,
		recordDuration:   duration,
	}

	if err := readStrings(r, meta.labels, labelSize); err != nil {
		return nil, fmt.Errorf("read labels: %w", err)
	}
	if err := skip(r, count*transducerSize); err != nil {
		return nil, err
	}
	if err := readStrings(r, meta.dimensions, dimensionSize); err != nil {
		return nil, fmt.Errorf("read dimensions: %w", err)
	}
	// Physical and digital ranges belong to the sample decoder.
	if err := skip(r, count*4*rangeSize+count*prefilterSize); err != nil {
		return nil, err
	}

	buf := make([]byte, samplesSize)
	for i := 0; i < count; i++ {
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, fmt.Errorf("read samples per record: %w", err)
		}
		n, err := strconv.Atoi(strings.TrimSpace(string(buf)))
		if err != nil {
			return nil, fmt.Errorf("parse samples per record: %w", err)
		}
		meta.samplesPerRecord[i] = n
	}

	return meta, nil
}

func readStrings(r io.Reader, out []string, width int) error {
	buf := make([]byte, width)
	for i := range out {
		if _, err := io.ReadFull(r, buf); err != nil {
			return err
		}
		out[i] = strings.TrimSpace(string(buf))
	}
	return nil
}

func skip(r io.ReadSeeker, n int) error {
	if _, err := r.Seek(int64(n), io.SeekCurrent); err != nil {
		return fmt.Errorf("skip header fields: %w", err)
	}
	return nil
}
