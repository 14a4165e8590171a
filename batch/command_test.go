package batch

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func jobWith(s Settings) Job {
	s2 := DefaultSettings()
	if s.VideoCodecID != "" {
		s2.VideoCodecID = s.VideoCodecID
	}
	if s.AudioCodecID != "" {
		s2.AudioCodecID = s.AudioCodecID
	}
	if s.ContainerID != "" {
		s2.ContainerID = s.ContainerID
	}
	if s.Quality != 0 {
		s2.Quality = s.Quality
	}
	if s.Preset != "" {
		s2.Preset = s.Preset
	}
	if s.AudioBitrate != "" {
		s2.AudioBitrate = s.AudioBitrate
	}
	s2.ScaleHeight = s.ScaleHeight
	s2.ExtraArgs = s.ExtraArgs
	return NewJob("/videos/in.mov", nil, s2)
}

// argPair asserts flag is present and immediately followed by value.
func argPair(t *testing.T, args []string, flag, value string) {
	t.Helper()
	for i, a := range args {
		if a == flag {
			require.Less(t, i+1, len(args), "%s has no value", flag)
			assert.Equal(t, value, args[i+1], "value of %s", flag)
			return
		}
	}
	t.Fatalf("flag %s not found in %v", flag, args)
}

func TestBuildArgs_Deterministic(t *testing.T) {
	job := jobWith(Settings{})
	a, err := BuildArgs(job, "/out/in.mp4", 500*time.Millisecond)
	require.NoError(t, err)
	b, err := BuildArgs(job, "/out/in.mp4", 500*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestBuildArgs_PerformsNoIO(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "in.mp4")

	_, err := BuildArgs(jobWith(Settings{}), out, time.Second)
	require.NoError(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "building a command must not create files")
}

func TestBuildArgs_ProgressStream(t *testing.T) {
	args, err := BuildArgs(jobWith(Settings{}), "/out/in.mp4", 500*time.Millisecond)
	require.NoError(t, err)

	argPair(t, args, "-progress", "pipe:1")
	argPair(t, args, "-stats_period", "0.5")
}

func TestBuildArgs_X264DefaultFlags(t *testing.T) {
	args, err := BuildArgs(jobWith(Settings{VideoCodecID: "libx264", Quality: 20, Preset: "slow"}),
		"/out/in.mp4", time.Second)
	require.NoError(t, err)

	argPair(t, args, "-c:v", "libx264")
	argPair(t, args, "-crf", "20")
	argPair(t, args, "-preset", "slow")
}

func TestBuildArgs_VP9UsesSpeedFlag(t *testing.T) {
	args, err := BuildArgs(jobWith(Settings{VideoCodecID: "libvpx-vp9", ContainerID: "webm", Quality: 30, Preset: "2"}),
		"/out/in.webm", time.Second)
	require.NoError(t, err)

	argPair(t, args, "-c:v", "libvpx-vp9")
	argPair(t, args, "-crf", "30")
	argPair(t, args, "-speed", "2")
	assert.NotContains(t, args, "-preset")
}

func TestBuildArgs_NVENCUsesCQ(t *testing.T) {
	args, err := BuildArgs(jobWith(Settings{VideoCodecID: "h264_nvenc", Quality: 23, Preset: "p4"}),
		"/out/in.mp4", time.Second)
	require.NoError(t, err)

	argPair(t, args, "-c:v", "h264_nvenc")
	argPair(t, args, "-cq", "23")
	argPair(t, args, "-preset", "p4")
	assert.NotContains(t, args, "-crf")
}

func TestBuildArgs_QualityClampedToFamilyRange(t *testing.T) {
	args, err := BuildArgs(jobWith(Settings{VideoCodecID: "libx264", Quality: 99}),
		"/out/in.mp4", time.Second)
	require.NoError(t, err)
	argPair(t, args, "-crf", "51")
}

func TestBuildArgs_ScaleFilterFixesHeightOnly(t *testing.T) {
	args, err := BuildArgs(jobWith(Settings{ScaleHeight: 720}), "/out/in.mp4", time.Second)
	require.NoError(t, err)
	argPair(t, args, "-vf", "scale=-2:720")

	args, err = BuildArgs(jobWith(Settings{}), "/out/in.mp4", time.Second)
	require.NoError(t, err)
	assert.NotContains(t, args, "-vf")
}

func TestBuildArgs_AudioVariants(t *testing.T) {
	args, err := BuildArgs(jobWith(Settings{AudioCodecID: "none"}), "/out/in.mp4", time.Second)
	require.NoError(t, err)
	assert.Contains(t, args, "-an")
	assert.NotContains(t, args, "-b:a")

	args, err = BuildArgs(jobWith(Settings{AudioCodecID: "copy"}), "/out/in.mp4", time.Second)
	require.NoError(t, err)
	argPair(t, args, "-c:a", "copy")
	assert.NotContains(t, args, "-b:a")

	args, err = BuildArgs(jobWith(Settings{AudioCodecID: "libopus", AudioBitrate: "96k", ContainerID: "webm"}),
		"/out/in.webm", time.Second)
	require.NoError(t, err)
	argPair(t, args, "-c:a", "libopus")
	argPair(t, args, "-b:a", "96k")
}

func TestBuildArgs_ExtraArgsAreShellSplit(t *testing.T) {
	args, err := BuildArgs(jobWith(Settings{ExtraArgs: `-metadata title="My Clip"`}),
		"/out/in.mp4", time.Second)
	require.NoError(t, err)
	assert.Contains(t, args, "-metadata")
	assert.Contains(t, args, "title=My Clip")

	_, err = BuildArgs(jobWith(Settings{ExtraArgs: `-metadata "unterminated`}),
		"/out/in.mp4", time.Second)
	require.Error(t, err)
}

func TestBuildArgs_OutputIsLastAfterOverwriteFlag(t *testing.T) {
	args, err := BuildArgs(jobWith(Settings{}), "/out/in.mp4", time.Second)
	require.NoError(t, err)

	require.GreaterOrEqual(t, len(args), 2)
	assert.Equal(t, "-y", args[len(args)-2])
	assert.Equal(t, "/out/in.mp4", args[len(args)-1])
}

func TestCommandString(t *testing.T) {
	args, err := BuildArgs(jobWith(Settings{}), "/out/in.mp4", time.Second)
	require.NoError(t, err)

	got := CommandString("ffmpeg", args)
	assert.True(t, strings.HasPrefix(got, "ffmpeg -hide_banner"))
	assert.True(t, strings.HasSuffix(got, "-y /out/in.mp4"))
}

func TestBuildArgs_UnknownCodecRejected(t *testing.T) {
	job := jobWith(Settings{})
	job.Settings.VideoCodecID = "libnotreal"
	_, err := BuildArgs(job, "/out/in.mp4", time.Second)
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "libnotreal"))
}
