// Package probe wraps ffprobe to extract the metadata the orchestrator
// needs up front: duration for progress percentages and input size for the
// savings statistics. Everything else is carried along for display.
package probe

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// probeTimeout bounds a single ffprobe invocation.
const probeTimeout = 30 * time.Second

// VideoStream is the first video stream of a probed file.
type VideoStream struct {
	Codec       string
	Width       int
	Height      int
	FPS         float64
	PixelFormat string
	Bitrate     int64 // bits/sec, 0 when unknown
}

// Resolution returns "WxH".
func (v VideoStream) Resolution() string {
	return fmt.Sprintf("%dx%d", v.Width, v.Height)
}

// AudioStream is the first audio stream of a probed file.
type AudioStream struct {
	Codec      string
	SampleRate int
	Channels   int
	Bitrate    int64 // bits/sec, 0 when unknown
}

// Result holds the parsed metadata for one media file. Duration may be 0
// for live-style inputs; callers must not divide by it blindly.
type Result struct {
	Path       string
	Duration   float64 // seconds
	Size       int64   // bytes
	FormatName string
	Video      *VideoStream
	Audio      *AudioStream
}

// raw ffprobe JSON shapes
type ffprobeOutput struct {
	Streams []ffprobeStream `json:"streams"`
	Format  ffprobeFormat   `json:"format"`
}

type ffprobeStream struct {
	CodecType    string `json:"codec_type"`
	CodecName    string `json:"codec_name"`
	Width        int    `json:"width"`
	Height       int    `json:"height"`
	PixFmt       string `json:"pix_fmt"`
	RFrameRate   string `json:"r_frame_rate"`
	AvgFrameRate string `json:"avg_frame_rate"`
	SampleRate   string `json:"sample_rate"`
	Channels     int    `json:"channels"`
	BitRate      string `json:"bit_rate"`
}

type ffprobeFormat struct {
	FormatName string `json:"format_name"`
	Duration   string `json:"duration"`
	Size       string `json:"size"`
}

// Probe runs ffprobe on path and returns the parsed metadata. bin is the
// ffprobe executable name or path.
func Probe(ctx context.Context, bin, path string) (*Result, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("input not readable: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, bin,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	)
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("ffprobe failed for %s: %w", path, err)
	}

	return ParseOutput(path, out)
}

// ParseOutput decodes raw ffprobe JSON into a Result. Split out from Probe
// so it can be tested without an ffprobe binary.
func ParseOutput(path string, data []byte) (*Result, error) {
	var raw ffprobeOutput
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse ffprobe output: %w", err)
	}

	res := &Result{
		Path:       path,
		FormatName: raw.Format.FormatName,
	}
	res.Duration, _ = strconv.ParseFloat(raw.Format.Duration, 64)
	res.Size, _ = strconv.ParseInt(raw.Format.Size, 10, 64)

	for _, s := range raw.Streams {
		switch s.CodecType {
		case "video":
			if res.Video != nil {
				continue
			}
			bitrate, _ := strconv.ParseInt(s.BitRate, 10, 64)
			res.Video = &VideoStream{
				Codec:       s.CodecName,
				Width:       s.Width,
				Height:      s.Height,
				FPS:         parseFrameRate(s.RFrameRate, s.AvgFrameRate),
				PixelFormat: s.PixFmt,
				Bitrate:     bitrate,
			}
		case "audio":
			if res.Audio != nil {
				continue
			}
			bitrate, _ := strconv.ParseInt(s.BitRate, 10, 64)
			sampleRate, _ := strconv.Atoi(s.SampleRate)
			res.Audio = &AudioStream{
				Codec:      s.CodecName,
				SampleRate: sampleRate,
				Channels:   s.Channels,
				Bitrate:    bitrate,
			}
		}
	}

	return res, nil
}

// parseFrameRate picks the first parseable rate, handling fractional forms
// like "24000/1001".
func parseFrameRate(rates ...string) float64 {
	for _, raw := range rates {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if num, den, ok := strings.Cut(raw, "/"); ok {
			n, err1 := strconv.ParseFloat(num, 64)
			d, err2 := strconv.ParseFloat(den, 64)
			if err1 == nil && err2 == nil && d > 0 {
				return n / d
			}
			continue
		}
		if fps, err := strconv.ParseFloat(raw, 64); err == nil && fps > 0 {
			return fps
		}
	}
	return 0
}

// Summary is a one-line description for display: resolution, codec,
// duration, and size.
func (r *Result) Summary() string {
	var parts []string
	if r.Video != nil {
		parts = append(parts, r.Video.Resolution(), strings.ToUpper(r.Video.Codec))
	}
	parts = append(parts, FormatDuration(r.Duration), FormatSize(r.Size))
	return strings.Join(parts, " ")
}

// FormatDuration renders seconds as "1h:02m:15s" or "23m:12s".
func FormatDuration(seconds float64) string {
	total := int(seconds)
	h := total / 3600
	m := total % 3600 / 60
	s := total % 60
	if h > 0 {
		return fmt.Sprintf("%dh:%02dm:%02ds", h, m, s)
	}
	return fmt.Sprintf("%dm:%02ds", m, s)
}

// FormatSize renders a byte count with a human unit.
func FormatSize(size int64) string {
	switch {
	case size >= 1<<30:
		return fmt.Sprintf("%.1f GB", float64(size)/float64(1<<30))
	case size >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(size)/float64(1<<20))
	case size >= 1<<10:
		return fmt.Sprintf("%.0f KB", float64(size)/float64(1<<10))
	default:
		return fmt.Sprintf("%d B", size)
	}
}
