package batch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultSettingsAreValid(t *testing.T) {
	require.NoError(t, DefaultSettings().Validate())
}

func TestSettingsValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Settings)
	}{
		{"unknown video codec", func(s *Settings) { s.VideoCodecID = "libnotreal" }},
		{"unknown audio codec", func(s *Settings) { s.AudioCodecID = "flac9000" }},
		{"unknown container", func(s *Settings) { s.ContainerID = "avi" }},
		{"quality above range", func(s *Settings) { s.Quality = 52 }},
		{"quality below range", func(s *Settings) { s.Quality = -1 }},
		{"foreign preset", func(s *Settings) { s.Preset = "p4" }},
		{"negative height", func(s *Settings) { s.ScaleHeight = -720 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := DefaultSettings()
			tc.mutate(&s)
			assert.Error(t, s.Validate())
		})
	}
}

func TestNewJobCapturesSettingsByValue(t *testing.T) {
	s := DefaultSettings()
	job := NewJob("/videos/a.mov", nil, s)

	s.Quality = 40
	assert.Equal(t, 23, job.Settings.Quality, "queued jobs must not follow later edits")
}

func TestNewJobIDsAreUnique(t *testing.T) {
	a := NewJob("/videos/a.mov", nil, DefaultSettings())
	b := NewJob("/videos/a.mov", nil, DefaultSettings())
	assert.NotEmpty(t, a.ID)
	assert.NotEqual(t, a.ID, b.ID)
}

func TestStatusTerminal(t *testing.T) {
	assert.False(t, StatusPending.Terminal())
	assert.False(t, StatusRunning.Terminal())
	assert.False(t, StatusPaused.Terminal())
	assert.True(t, StatusSucceeded.Terminal())
	assert.True(t, StatusFailed.Terminal())
	assert.True(t, StatusCancelled.Terminal())
}
