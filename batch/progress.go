package batch

import (
	"strconv"
	"strings"
	"sync"
)

// Event is one normalized progress record from the encoder's structured
// stream. Ephemeral: consumed on arrival, never persisted.
type Event struct {
	// OutSeconds is the media time encoded so far, in seconds
	OutSeconds float64
	Frame      int64
	FPS        float64
	Speed      float64 // 0 when the encoder reports N/A
	SpeedRaw   string
	Bitrate    string
	OutBytes   int64
	// End marks the encoder's final record (progress=end)
	End bool
}

// RecordParser accumulates the key=value lines of ffmpeg's -progress
// output. One record spans several lines and is closed by the "progress"
// sentinel key ("progress=continue" or "progress=end").
type RecordParser struct {
	record map[string]string

	outSeconds float64
	outTimeSet bool
	frame      int64
	frameSet   bool
	fps        float64
	fpsSet     bool
	speed      float64
	speedRaw   string
	speedSet   bool
	bitrate    string
	bitrateSet bool
	size       int64
	sizeSet    bool
}

// NewRecordParser returns a parser ready for the first record.
func NewRecordParser() *RecordParser {
	return &RecordParser{record: make(map[string]string)}
}

// ParseLine consumes one line. It returns (event, true, nil) when a record
// completed, (_, false, nil) mid-record, and (_, false, *ParseAnomaly) when
// a record closed without any usable key. An anomalous record is dropped;
// the caller keeps its previous known-good progress.
func (p *RecordParser) ParseLine(line string) (Event, bool, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return Event{}, false, nil
	}
	key, value, found := strings.Cut(line, "=")
	if !found {
		return Event{}, false, nil
	}
	key = strings.TrimSpace(key)
	value = strings.TrimSpace(value)

	if key == "progress" {
		ev, ok := p.finish(value == "end")
		if !ok {
			anomaly := &ParseAnomaly{Record: p.record}
			p.reset()
			return Event{}, false, anomaly
		}
		p.reset()
		return ev, true, nil
	}

	p.record[key] = value

	switch key {
	case "out_time_us":
		// Microseconds.
		if us, err := strconv.ParseInt(value, 10, 64); err == nil && us >= 0 {
			p.outSeconds = float64(us) / 1e6
			p.outTimeSet = true
		}
	case "out_time_ms":
		// Despite the name this field carries MICROSECONDS, same as
		// out_time_us. Dividing by 1000 here would run progress 1000x
		// too fast.
		if us, err := strconv.ParseInt(value, 10, 64); err == nil && us >= 0 {
			p.outSeconds = float64(us) / 1e6
			p.outTimeSet = true
		}
	case "out_time":
		if secs, ok := parseClockTime(value); ok {
			p.outSeconds = secs
			p.outTimeSet = true
		}
	case "frame":
		if n, err := strconv.ParseInt(value, 10, 64); err == nil && n >= 0 {
			p.frame = n
			p.frameSet = true
		}
	case "fps":
		if f, err := strconv.ParseFloat(value, 64); err == nil && f >= 0 {
			p.fps = f
			p.fpsSet = true
		}
	case "total_size":
		if n, err := strconv.ParseInt(value, 10, 64); err == nil && n >= 0 {
			p.size = n
			p.sizeSet = true
		}
	case "bitrate":
		p.bitrate = value
		p.bitrateSet = true
	case "speed":
		p.speedRaw = value
		if value == "N/A" {
			p.speed = 0
			p.speedSet = true
		} else if f, err := strconv.ParseFloat(strings.TrimSuffix(value, "x"), 64); err == nil && f >= 0 {
			p.speed = f
			p.speedSet = true
		}
	}

	return Event{}, false, nil
}

// finish builds the event for the closing record. A record with none of
// the keys the orchestrator depends on is unusable.
func (p *RecordParser) finish(end bool) (Event, bool) {
	if !p.outTimeSet && !p.frameSet && !p.sizeSet {
		// The final record may legitimately repeat nothing new; still
		// surface the end marker.
		if end {
			return Event{End: true}, true
		}
		return Event{}, false
	}
	return Event{
		OutSeconds: p.outSeconds,
		Frame:      p.frame,
		FPS:        p.fps,
		Speed:      p.speed,
		SpeedRaw:   p.speedRaw,
		Bitrate:    p.bitrate,
		OutBytes:   p.size,
		End:        end,
	}, true
}

func (p *RecordParser) reset() {
	*p = RecordParser{record: make(map[string]string)}
}

// parseClockTime parses ffmpeg's "HH:MM:SS.micros" form into seconds.
func parseClockTime(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" || s == "N/A" {
		return 0, false
	}
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return 0, false
	}
	h, err1 := strconv.ParseFloat(parts[0], 64)
	m, err2 := strconv.ParseFloat(parts[1], 64)
	sec, err3 := strconv.ParseFloat(parts[2], 64)
	if err1 != nil || err2 != nil || err3 != nil || h < 0 || m < 0 || sec < 0 {
		return 0, false
	}
	return h*3600 + m*60 + sec, true
}

// Fraction converts encoded media time into a completion fraction. When
// the probed duration is zero or unknown the fraction stays exactly 0; a
// live-style input has no meaningful percentage.
func Fraction(outSeconds, durationSeconds float64) float64 {
	if durationSeconds <= 0 {
		return 0
	}
	f := outSeconds / durationSeconds
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

// Tail is a bounded rolling buffer of the encoder's diagnostic lines.
// Lines are shown verbatim, never parsed for progress.
type Tail struct {
	mu    sync.Mutex
	max   int
	lines []string
}

// NewTail creates a buffer retaining the most recent max lines.
func NewTail(max int) *Tail {
	if max <= 0 {
		max = 100
	}
	return &Tail{max: max}
}

// Append adds a line, evicting the oldest when full.
func (t *Tail) Append(line string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lines = append(t.lines, line)
	if len(t.lines) > t.max {
		t.lines = t.lines[len(t.lines)-t.max:]
	}
}

// Lines returns a copy of the retained lines.
func (t *Tail) Lines() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, len(t.lines))
	copy(out, t.lines)
	return out
}
