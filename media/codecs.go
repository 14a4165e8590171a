// Package media holds the static codec, container, and audio encoder
// tables consulted by the command builder. Adding an encoder family is a
// data change here, not a control-flow change elsewhere.
package media

// VideoCodec describes one video encoder family. QualityFlag and SpeedFlag
// differ between families (NVENC uses -cq, VP9 uses -speed), so the command
// builder consults this table instead of branching on codec IDs.
type VideoCodec struct {
	// ID is the internal key, e.g. "libx264"
	ID string
	// Label is the display name, e.g. "H.264 (libx264)"
	Label string
	// Encoder is the ffmpeg encoder name passed to -c:v
	Encoder string
	// Description is a one-line hint shown in codec listings
	Description string
	// QualityFlag is the ffmpeg flag carrying the quality factor
	QualityFlag string
	// SpeedFlag is the ffmpeg flag carrying the speed preset
	SpeedFlag string
	// QualityMin and QualityMax bound the valid quality factor range
	QualityMin int
	QualityMax int
	// QualityDefault is the suggested quality factor for this family
	QualityDefault int
	// Presets lists valid speed presets, fastest first where ordered.
	// Empty means the family takes no preset at all.
	Presets []string
	// PresetDefault is the suggested preset, "" when Presets is empty
	PresetDefault string
	// Hardware marks GPU encoders
	Hardware bool
}

var x264Presets = []string{
	"ultrafast", "superfast", "veryfast", "faster", "fast",
	"medium", "slow", "slower", "veryslow",
}

// VideoCodecs lists every supported encoder family in menu order.
var VideoCodecs = []VideoCodec{
	{
		ID:          "libx264",
		Label:       "H.264 (libx264)",
		Encoder:     "libx264",
		Description: "Universal. Fast. Good quality.",
		QualityFlag: "-crf", SpeedFlag: "-preset",
		QualityMin: 0, QualityMax: 51, QualityDefault: 23,
		Presets: x264Presets, PresetDefault: "medium",
	},
	{
		ID:          "libx265",
		Label:       "H.265 / HEVC (libx265)",
		Encoder:     "libx265",
		Description: "50% smaller. Slower encode.",
		QualityFlag: "-crf", SpeedFlag: "-preset",
		QualityMin: 0, QualityMax: 51, QualityDefault: 28,
		Presets: x264Presets, PresetDefault: "medium",
	},
	{
		ID:          "libsvtav1",
		Label:       "AV1 (SVT-AV1)",
		Encoder:     "libsvtav1",
		Description: "Best compression. Very slow.",
		QualityFlag: "-crf", SpeedFlag: "-preset",
		QualityMin: 0, QualityMax: 63, QualityDefault: 30,
		Presets: []string{
			"0", "1", "2", "3", "4", "5", "6",
			"7", "8", "9", "10", "11", "12", "13",
		},
		PresetDefault: "6",
	},
	{
		ID:          "libvpx-vp9",
		Label:       "VP9 (libvpx-vp9)",
		Encoder:     "libvpx-vp9",
		Description: "Good for web. Moderate speed.",
		QualityFlag: "-crf", SpeedFlag: "-speed",
		QualityMin: 0, QualityMax: 63, QualityDefault: 30,
		Presets: []string{"0", "1", "2", "3", "4", "5"}, PresetDefault: "1",
	},
	{
		ID:          "h264_nvenc",
		Label:       "H.264 (NVENC)",
		Encoder:     "h264_nvenc",
		Description: "NVIDIA GPU. Very fast.",
		QualityFlag: "-cq", SpeedFlag: "-preset",
		QualityMin: 0, QualityMax: 51, QualityDefault: 23,
		Presets:  []string{"p1", "p2", "p3", "p4", "p5", "p6", "p7"},
		PresetDefault: "p4",
		Hardware: true,
	},
	{
		ID:          "hevc_nvenc",
		Label:       "H.265 (NVENC)",
		Encoder:     "hevc_nvenc",
		Description: "NVIDIA GPU. Very fast.",
		QualityFlag: "-cq", SpeedFlag: "-preset",
		QualityMin: 0, QualityMax: 51, QualityDefault: 28,
		Presets:  []string{"p1", "p2", "p3", "p4", "p5", "p6", "p7"},
		PresetDefault: "p4",
		Hardware: true,
	},
}

// AudioCodec describes one audio encoder choice. Encoder "copy" passes the
// source stream through; "" drops audio entirely.
type AudioCodec struct {
	ID             string
	Label          string
	Encoder        string
	DefaultBitrate string
}

// AudioCodecs lists every supported audio choice in menu order.
var AudioCodecs = []AudioCodec{
	{ID: "aac", Label: "AAC", Encoder: "aac", DefaultBitrate: "128k"},
	{ID: "libopus", Label: "Opus", Encoder: "libopus", DefaultBitrate: "128k"},
	{ID: "copy", Label: "Copy (no re-encode)", Encoder: "copy"},
	{ID: "libmp3lame", Label: "MP3", Encoder: "libmp3lame", DefaultBitrate: "192k"},
	{ID: "none", Label: "No audio", Encoder: ""},
}

// Container describes an output container format.
type Container struct {
	ID    string
	Label string
	// Ext includes the leading dot, e.g. ".mkv"
	Ext         string
	Description string
}

// Containers lists every supported container in menu order.
var Containers = []Container{
	{ID: "mp4", Label: "MP4", Ext: ".mp4", Description: "Most compatible"},
	{ID: "mkv", Label: "MKV", Ext: ".mkv", Description: "Supports everything"},
	{ID: "webm", Label: "WebM", Ext: ".webm", Description: "Web streaming"},
}

// DefaultContainer suggests a container per video codec family.
var DefaultContainer = map[string]string{
	"libx264":    "mp4",
	"libx265":    "mkv",
	"libsvtav1":  "mkv",
	"libvpx-vp9": "webm",
	"h264_nvenc": "mp4",
	"hevc_nvenc": "mkv",
}

var (
	videoByID     = make(map[string]VideoCodec, len(VideoCodecs))
	audioByID     = make(map[string]AudioCodec, len(AudioCodecs))
	containerByID = make(map[string]Container, len(Containers))
)

func init() {
	for _, c := range VideoCodecs {
		videoByID[c.ID] = c
	}
	for _, c := range AudioCodecs {
		audioByID[c.ID] = c
	}
	for _, c := range Containers {
		containerByID[c.ID] = c
	}
}

// VideoCodecByID looks up a video codec family by its internal key.
func VideoCodecByID(id string) (VideoCodec, bool) {
	c, ok := videoByID[id]
	return c, ok
}

// AudioCodecByID looks up an audio codec by its internal key.
func AudioCodecByID(id string) (AudioCodec, bool) {
	c, ok := audioByID[id]
	return c, ok
}

// ContainerByID looks up a container by its internal key.
func ContainerByID(id string) (Container, bool) {
	c, ok := containerByID[id]
	return c, ok
}

// ClampQuality forces q into the codec family's valid quality range.
func (c VideoCodec) ClampQuality(q int) int {
	if q < c.QualityMin {
		return c.QualityMin
	}
	if q > c.QualityMax {
		return c.QualityMax
	}
	return q
}

// HasPreset reports whether p is a valid speed preset for the family.
func (c VideoCodec) HasPreset(p string) bool {
	for _, known := range c.Presets {
		if known == p {
			return true
		}
	}
	return false
}
