package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"ffbatch/batch"
	"ffbatch/config"
	"ffbatch/media"
	"ffbatch/probe"
	"ffbatch/tui"
)

func main() {
	defaults := batch.DefaultSettings()

	codecFlag := flag.String("codec", defaults.VideoCodecID, "Video codec: libx264, libx265, libsvtav1, libvpx-vp9, h264_nvenc, hevc_nvenc")
	qualityFlag := flag.Int("quality", -1, "Quality factor (CRF/CQ); -1 uses the codec's default")
	presetFlag := flag.String("preset", "", "Speed preset; empty uses the codec's default")
	audioFlag := flag.String("audio", defaults.AudioCodecID, "Audio codec: aac, libopus, copy, libmp3lame, none")
	audioBitrateFlag := flag.String("audio-bitrate", defaults.AudioBitrate, "Audio bitrate, e.g. 128k")
	containerFlag := flag.String("container", "", "Output container: mp4, mkv, webm; empty picks the codec's default")
	heightFlag := flag.Int("height", 0, "Target vertical resolution (0 = keep original); width is derived")
	outputDirFlag := flag.String("output-dir", "", "Output directory (empty = alongside each input)")
	extraFlag := flag.String("extra-args", "", "Extra raw ffmpeg arguments, shell-quoted")
	haltFlag := flag.Bool("halt-on-failure", false, "Stop the batch at the first failed job")
	listCodecs := flag.Bool("list-codecs", false, "List supported codecs and exit")

	flag.Usage = func() {
		fmt.Println("Usage: ffbatch [options] <input files...>")
		fmt.Println()
		fmt.Println("Batch-encodes videos with ffmpeg, one at a time, with live progress.")
		fmt.Println()
		fmt.Println("Options:")
		flag.PrintDefaults()
		fmt.Println()
		fmt.Println("Examples:")
		fmt.Println("  ffbatch movie.mkv                                # defaults (H.264, CRF 23)")
		fmt.Println("  ffbatch -codec=libx265 -quality=28 *.mp4         # HEVC batch")
		fmt.Println("  ffbatch -codec=libsvtav1 -height=1080 clip.mov   # AV1, scaled to 1080p")
	}

	flag.Parse()

	if *listCodecs {
		fmt.Println("Video codecs:")
		for _, c := range media.VideoCodecs {
			fmt.Printf("  %-12s %s — %s (quality %d–%d, default %d)\n",
				c.ID, c.Label, c.Description, c.QualityMin, c.QualityMax, c.QualityDefault)
		}
		fmt.Println()
		fmt.Println("Audio codecs:")
		for _, c := range media.AudioCodecs {
			fmt.Printf("  %-12s %s\n", c.ID, c.Label)
		}
		fmt.Println()
		fmt.Println("Containers:")
		for _, c := range media.Containers {
			fmt.Printf("  %-12s %s (%s) — %s\n", c.ID, c.Label, c.Ext, c.Description)
		}
		os.Exit(0)
	}

	inputs := flag.Args()
	if len(inputs) == 0 {
		flag.Usage()
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: bad configuration: %v\n", err)
		os.Exit(1)
	}
	if *haltFlag {
		cfg.HaltOnFailure = true
	}

	vc, ok := media.VideoCodecByID(*codecFlag)
	if !ok {
		fmt.Fprintf(os.Stderr, "Error: unknown video codec %q (see -list-codecs)\n", *codecFlag)
		os.Exit(1)
	}

	// Settings are captured by value here; nothing the user does later can
	// change a job that is already queued.
	settings := batch.Settings{
		VideoCodecID: vc.ID,
		AudioCodecID: *audioFlag,
		ContainerID:  *containerFlag,
		Quality:      *qualityFlag,
		Preset:       *presetFlag,
		AudioBitrate: *audioBitrateFlag,
		ScaleHeight:  *heightFlag,
		OutputDir:    *outputDirFlag,
		ExtraArgs:    *extraFlag,
	}
	if settings.Quality < 0 {
		settings.Quality = vc.QualityDefault
	}
	if settings.Preset == "" {
		settings.Preset = vc.PresetDefault
	}
	if settings.ContainerID == "" {
		settings.ContainerID = media.DefaultContainer[vc.ID]
	}
	if err := settings.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if err := batch.CheckResources(cfg, settings.OutputDir); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	// Probe every input up front. Unreadable files are skipped with a
	// message rather than sinking the whole batch.
	ctx := context.Background()
	jobs := make([]batch.Job, 0, len(inputs))
	for _, input := range inputs {
		pr, err := probe.Probe(ctx, cfg.FFprobeBin, input)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Skipping %s: %v\n", input, err)
			continue
		}
		jobs = append(jobs, batch.NewJob(input, pr, settings))
	}
	if len(jobs) == 0 {
		fmt.Fprintln(os.Stderr, "Error: no usable input files")
		os.Exit(1)
	}

	orch := batch.NewOrchestrator(cfg, jobs)
	p := tea.NewProgram(tui.NewModel(orch), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
