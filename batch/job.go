// Package batch is the encoding orchestrator: it turns queued jobs into
// sequential ffmpeg invocations, tracks live progress from the encoder's
// -progress stream, and supports pausing, resuming, and cancelling the
// active process.
package batch

import (
	"fmt"
	"time"

	"github.com/lithammer/shortuuid/v4"

	"ffbatch/media"
	"ffbatch/probe"
)

// Settings are the encode parameters captured by value when a job is
// queued. Later changes to the live settings never touch queued jobs.
type Settings struct {
	VideoCodecID string
	AudioCodecID string
	ContainerID  string
	// Quality is the quality factor (CRF or CQ depending on the family);
	// lower generally means higher quality and larger output
	Quality int
	// Preset is the family-specific speed preset, "" for families
	// without one
	Preset string
	// AudioBitrate like "128k"; ignored for copy/none
	AudioBitrate string
	// ScaleHeight is the target vertical resolution; 0 keeps the
	// original. Width is always derived to preserve aspect ratio.
	ScaleHeight int
	// OutputDir is the destination directory; "" means alongside the
	// input file
	OutputDir string
	// ExtraArgs are additional raw ffmpeg arguments, shell-style quoted
	ExtraArgs string
}

// DefaultSettings returns the same defaults the original tool starts with.
func DefaultSettings() Settings {
	return Settings{
		VideoCodecID: "libx264",
		AudioCodecID: "aac",
		ContainerID:  "mp4",
		Quality:      23,
		Preset:       "medium",
		AudioBitrate: "128k",
	}
}

// Validate checks the settings against the codec tables.
func (s Settings) Validate() error {
	vc, ok := media.VideoCodecByID(s.VideoCodecID)
	if !ok {
		return fmt.Errorf("unknown video codec %q", s.VideoCodecID)
	}
	if _, ok := media.AudioCodecByID(s.AudioCodecID); !ok {
		return fmt.Errorf("unknown audio codec %q", s.AudioCodecID)
	}
	if _, ok := media.ContainerByID(s.ContainerID); !ok {
		return fmt.Errorf("unknown container %q", s.ContainerID)
	}
	if s.Quality < vc.QualityMin || s.Quality > vc.QualityMax {
		return fmt.Errorf("quality %d outside %s range [%d,%d]",
			s.Quality, vc.ID, vc.QualityMin, vc.QualityMax)
	}
	if s.Preset != "" && len(vc.Presets) > 0 && !vc.HasPreset(s.Preset) {
		return fmt.Errorf("preset %q not valid for %s", s.Preset, vc.ID)
	}
	if s.ScaleHeight < 0 {
		return fmt.Errorf("scale height must not be negative")
	}
	return nil
}

// Job is one file's encode request. Immutable once queued.
type Job struct {
	ID        string
	InputPath string
	Probe     *probe.Result
	Settings  Settings
}

// NewJob creates a queued job, capturing the settings by value.
func NewJob(inputPath string, pr *probe.Result, s Settings) Job {
	return Job{
		ID:        shortuuid.New(),
		InputPath: inputPath,
		Probe:     pr,
		Settings:  s,
	}
}

// Status is the lifecycle state of one job within the batch.
type Status int

const (
	StatusPending Status = iota
	StatusRunning
	StatusPaused
	StatusSucceeded
	StatusFailed
	StatusCancelled
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "Pending"
	case StatusRunning:
		return "Running"
	case StatusPaused:
		return "Paused"
	case StatusSucceeded:
		return "Succeeded"
	case StatusFailed:
		return "Failed"
	case StatusCancelled:
		return "Cancelled"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Terminal reports whether no further transitions are possible.
func (s Status) Terminal() bool {
	switch s {
	case StatusSucceeded, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// Stats are the latest parsed encoder numbers for a running job.
type Stats struct {
	Frame      int64
	FPS        float64
	Speed      float64 // multiplier; 0 when the encoder reports N/A
	SpeedRaw   string
	Bitrate    string
	OutBytes   int64   // encoder's running output size estimate
	OutSeconds float64 // media time encoded so far
}

// RunState is the mutable per-job state, owned exclusively by the
// orchestrator. The UI only ever sees copies.
type RunState struct {
	Status     Status
	OutputPath string // resolved and locked exactly once, pre-spawn
	Elapsed    time.Duration
	// Fraction is in [0,1] and monotonically non-decreasing while the
	// job runs
	Fraction float64
	Stats    Stats
	// InputBytes and OutputBytes are filesystem sizes, set on success
	InputBytes  int64
	OutputBytes int64
	// Tail holds the last diagnostic lines, kept for failed jobs
	Tail []string
	Err  string
}
