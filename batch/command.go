package batch

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/shlex"

	"ffbatch/media"
)

// BuildArgs maps a job and its resolved output path to the ffmpeg argument
// list. Pure: no filesystem access, no process creation, so it can also be
// called at any time to preview the command for the current settings.
//
// statsPeriod controls how often ffmpeg emits a progress record on the
// structured stream (stdout); diagnostics stay on stderr.
func BuildArgs(job Job, outputPath string, statsPeriod time.Duration) ([]string, error) {
	s := job.Settings
	vc, ok := media.VideoCodecByID(s.VideoCodecID)
	if !ok {
		return nil, fmt.Errorf("unknown video codec %q", s.VideoCodecID)
	}
	ac, ok := media.AudioCodecByID(s.AudioCodecID)
	if !ok {
		return nil, fmt.Errorf("unknown audio codec %q", s.AudioCodecID)
	}

	args := []string{
		"-hide_banner",
		"-progress", "pipe:1",
		"-stats_period", formatSeconds(statsPeriod),
		"-i", job.InputPath,
	}

	args = append(args, "-c:v", vc.Encoder)
	args = append(args, vc.QualityFlag, strconv.Itoa(vc.ClampQuality(s.Quality)))

	// Families without presets (or with an empty preset) get no speed flag.
	if s.Preset != "" && vc.SpeedFlag != "" && len(vc.Presets) > 0 {
		args = append(args, vc.SpeedFlag, s.Preset)
	}

	// Fixed height, derived width; -2 keeps the width divisible by two
	// as most encoders require.
	if s.ScaleHeight > 0 {
		args = append(args, "-vf", fmt.Sprintf("scale=-2:%d", s.ScaleHeight))
	}

	switch ac.Encoder {
	case "":
		args = append(args, "-an")
	case "copy":
		args = append(args, "-c:a", "copy")
	default:
		args = append(args, "-c:a", ac.Encoder)
		if s.AudioBitrate != "" {
			args = append(args, "-b:a", s.AudioBitrate)
		}
	}

	if s.ExtraArgs != "" {
		extra, err := shlex.Split(s.ExtraArgs)
		if err != nil {
			return nil, fmt.Errorf("bad extra args: %w", err)
		}
		args = append(args, extra...)
	}

	args = append(args, "-y", outputPath)
	return args, nil
}

// CommandString renders bin+args the way the invocation is echoed at the
// top of a job's diagnostic log.
func CommandString(bin string, args []string) string {
	return bin + " " + strings.Join(args, " ")
}

// formatSeconds renders a duration the way ffmpeg's -stats_period expects,
// e.g. "0.5".
func formatSeconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', -1, 64)
}
