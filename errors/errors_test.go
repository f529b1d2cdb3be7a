package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorClassString(t *testing.T) {
	tests := []struct {
		class    ErrorClass
		expected string
	}{
		{ErrorAcquisition, "acquisition"},
		{ErrorConfiguration, "configuration"},
		{ErrorState, "state"},
		{ErrorClass(99), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.class.String())
		})
	}
}

func TestWrapAddsContext(t *testing.T) {
	base := stderrors.New("boom")
	err := Wrap(base, "EpochsStream", "acquire", "read source data")
	require.Error(t, err)
	assert.Equal(t, "EpochsStream.acquire: read source data failed: boom", err.Error())
	assert.True(t, stderrors.Is(err, base))

	assert.NoError(t, Wrap(nil, "EpochsStream", "acquire", "read source data"))
}

func TestClassifiedWrappers(t *testing.T) {
	base := stderrors.New("boom")

	tests := []struct {
		name  string
		wrap  func(error, string, string, string) error
		class ErrorClass
		check func(error) bool
	}{
		{"configuration", WrapConfiguration, ErrorConfiguration, IsConfiguration},
		{"state", WrapState, ErrorState, IsState},
		{"acquisition", WrapAcquisition, ErrorAcquisition, IsAcquisition},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.wrap(base, "Comp", "Op", "action")
			require.Error(t, err)

			var ce *ClassifiedError
			require.True(t, stderrors.As(err, &ce))
			assert.Equal(t, tt.class, ce.Class)
			assert.Equal(t, "Comp", ce.Component)
			assert.Equal(t, "Op", ce.Operation)
			assert.True(t, tt.check(err))
			assert.Equal(t, tt.class, Classify(err))
			assert.True(t, stderrors.Is(err, base))

			assert.NoError(t, tt.wrap(nil, "Comp", "Op", "action"))
		})
	}
}

func TestStandardErrorClassification(t *testing.T) {
	tests := []struct {
		err   error
		class ErrorClass
	}{
		{ErrInvalidWindow, ErrorConfiguration},
		{ErrInvalidEventID, ErrorConfiguration},
		{ErrUnknownChannel, ErrorConfiguration},
		{ErrBufferTooShort, ErrorConfiguration},
		{ErrNotConnected, ErrorState},
		{ErrManualWhilePolling, ErrorState},
		{ErrStreamEpoched, ErrorState},
		{ErrConnectionLost, ErrorAcquisition},
		{ErrInvalidData, ErrorAcquisition},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.class, Classify(tt.err))
		})
	}
}

func TestClassificationSurvivesWrapping(t *testing.T) {
	err := fmt.Errorf("outer: %w", ErrInvalidBaseline)
	assert.True(t, IsConfiguration(err))
	assert.Equal(t, ErrorConfiguration, Classify(err))
}

func TestUnknownErrorsFailSoft(t *testing.T) {
	// Unknown runtime errors must land in the recovered class.
	err := stderrors.New("something unexpected")
	assert.Equal(t, ErrorAcquisition, Classify(err))
	assert.False(t, IsConfiguration(err))
	assert.False(t, IsState(err))
}
