package batch

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ffbatch/config"
	"ffbatch/probe"
)

// fakeEncoder is a stand-in for ffmpeg: it speaks the -progress key=value
// protocol on stdout, complains on stderr for inputs whose name contains
// "bad", and writes the output file last.
const fakeEncoder = `#!/bin/sh
in=""
prev=""
out=""
for a in "$@"; do
  [ "$prev" = "-i" ] && in="$a"
  prev="$a"
  out="$a"
done
echo "$in" >> "${FAKE_ENCODER_LOG:-/dev/null}"
case "$in" in
  *bad*) echo "Conversion failed!" 1>&2; exit 3;;
esac
echo "frame=24"
echo "fps=24.0"
echo "out_time_us=500000"
echo "progress=continue"
echo "frame=48"
echo "out_time_us=1000000"
echo "progress=end"
printf 'encoded' > "$out"
exit 0
`

// slowEncoder emits one progress record, writes a partial output, then
// blocks until signalled.
const slowEncoder = `#!/bin/sh
out=""
for a in "$@"; do out="$a"; done
echo "frame=1"
echo "out_time_us=100000"
echo "progress=continue"
printf 'partial' > "$out"
exec sleep 30 >/dev/null 2>&1
`

func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fake-ffmpeg")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o755))
	return path
}

func writeInput(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("source material"), 0o644))
	return path
}

func testConfig(bin string) *config.Config {
	return &config.Config{
		FFmpegBin:   bin,
		FFprobeBin:  "ffprobe",
		CancelGrace: 2 * time.Second,
		StatsPeriod: 100 * time.Millisecond,
		LogTail:     20,
	}
}

func queueJobs(t *testing.T, outDir string, inputs ...string) []Job {
	t.Helper()
	settings := DefaultSettings()
	settings.OutputDir = outDir
	jobs := make([]Job, 0, len(inputs))
	for _, in := range inputs {
		jobs = append(jobs, NewJob(in, &probe.Result{Path: in, Duration: 1.0}, settings))
	}
	return jobs
}

// waitFor polls the snapshot until cond holds or the deadline passes.
func waitFor(t *testing.T, o *Orchestrator, cond func(Snapshot) bool) Snapshot {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		snap := o.Snapshot()
		if cond(snap) {
			return snap
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not reached within deadline")
	return Snapshot{}
}

func TestOrchestrator_RunsJobsInOrder(t *testing.T) {
	bin := writeScript(t, fakeEncoder)
	inDir := t.TempDir()
	outDir := t.TempDir()
	log := filepath.Join(t.TempDir(), "spawned.log")
	t.Setenv("FAKE_ENCODER_LOG", log)

	a := writeInput(t, inDir, "a.mov")
	b := writeInput(t, inDir, "b.mov")
	orch := NewOrchestrator(testConfig(bin), queueJobs(t, outDir, a, b))

	require.NoError(t, orch.Run())

	snap := orch.Snapshot()
	assert.Equal(t, BatchDone, snap.Batch)
	require.Len(t, snap.Jobs, 2)
	for _, js := range snap.Jobs {
		assert.Equal(t, StatusSucceeded, js.Status, "job %s", js.InputName)
		assert.Equal(t, 1.0, js.Fraction)
		assert.NotEmpty(t, js.OutputPath)
		data, err := os.ReadFile(js.OutputPath)
		require.NoError(t, err)
		assert.Equal(t, "encoded", string(data))
	}
	assert.Equal(t, filepath.Join(outDir, "a.mp4"), snap.Jobs[0].OutputPath)
	assert.Equal(t, filepath.Join(outDir, "b.mp4"), snap.Jobs[1].OutputPath)

	// One process at a time, in queue order.
	spawned, err := os.ReadFile(log)
	require.NoError(t, err)
	assert.Equal(t, []string{a, b}, strings.Fields(string(spawned)))

	// Sizes come from the filesystem, summed over succeeded jobs only.
	assert.Equal(t, 2, snap.Totals.Succeeded)
	assert.Equal(t, int64(2*len("source material")), snap.Totals.InputBytes)
	assert.Equal(t, int64(2*len("encoded")), snap.Totals.OutputBytes)
	assert.Greater(t, snap.Totals.SavedPercent(), 0.0)
}

func TestOrchestrator_FailureDoesNotHaltByDefault(t *testing.T) {
	bin := writeScript(t, fakeEncoder)
	inDir := t.TempDir()
	outDir := t.TempDir()

	bad := writeInput(t, inDir, "bad.mov")
	good := writeInput(t, inDir, "good.mov")
	orch := NewOrchestrator(testConfig(bin), queueJobs(t, outDir, bad, good))

	require.NoError(t, orch.Run())

	snap := orch.Snapshot()
	assert.Equal(t, BatchDone, snap.Batch)
	assert.Equal(t, StatusFailed, snap.Jobs[0].Status)
	assert.Contains(t, strings.Join(snap.Jobs[0].Tail, "\n"), "Conversion failed!")
	assert.Contains(t, snap.Jobs[0].Err, "exited with code 3")
	require.NotEmpty(t, snap.Jobs[0].Tail)
	assert.True(t, strings.HasPrefix(snap.Jobs[0].Tail[0], bin),
		"the invocation is echoed at the top of the log")
	assert.Equal(t, StatusSucceeded, snap.Jobs[1].Status)

	// Failed jobs contribute nothing to the savings totals.
	assert.Equal(t, 1, snap.Totals.Succeeded)
	assert.Equal(t, 1, snap.Totals.Failed)
	assert.Equal(t, int64(len("source material")), snap.Totals.InputBytes)
}

func TestOrchestrator_HaltOnFailure(t *testing.T) {
	bin := writeScript(t, fakeEncoder)
	inDir := t.TempDir()
	outDir := t.TempDir()

	bad := writeInput(t, inDir, "bad.mov")
	good := writeInput(t, inDir, "good.mov")
	cfg := testConfig(bin)
	cfg.HaltOnFailure = true
	orch := NewOrchestrator(cfg, queueJobs(t, outDir, bad, good))

	require.NoError(t, orch.Run())

	snap := orch.Snapshot()
	assert.Equal(t, StatusFailed, snap.Jobs[0].Status)
	assert.Equal(t, StatusCancelled, snap.Jobs[1].Status)
	_, err := os.Stat(filepath.Join(outDir, "good.mp4"))
	assert.True(t, os.IsNotExist(err), "halted job must never spawn")
}

func TestOrchestrator_SpawnErrorBecomesFailedJob(t *testing.T) {
	inDir := t.TempDir()
	in := writeInput(t, inDir, "a.mov")
	orch := NewOrchestrator(testConfig("/nonexistent/ffmpeg-binary"), queueJobs(t, t.TempDir(), in))

	// A job that cannot spawn fails; the batch itself still completes.
	require.NoError(t, orch.Run())

	snap := orch.Snapshot()
	assert.Equal(t, BatchDone, snap.Batch)
	assert.Equal(t, StatusFailed, snap.Jobs[0].Status)
	assert.NotEmpty(t, snap.Jobs[0].Err)
}

func TestOrchestrator_CancelStopsBatchAndKeepsPartialOutput(t *testing.T) {
	bin := writeScript(t, slowEncoder)
	inDir := t.TempDir()
	outDir := t.TempDir()

	a := writeInput(t, inDir, "a.mov")
	b := writeInput(t, inDir, "b.mov")
	orch := NewOrchestrator(testConfig(bin), queueJobs(t, outDir, a, b))

	done := make(chan error, 1)
	go func() { done <- orch.Run() }()

	waitFor(t, orch, func(s Snapshot) bool {
		return len(s.Jobs) == 2 && s.Jobs[0].Fraction > 0
	})

	require.NoError(t, orch.Cancel())
	require.NoError(t, <-done)

	snap := orch.Snapshot()
	assert.Equal(t, BatchCancelled, snap.Batch)
	assert.Equal(t, StatusCancelled, snap.Jobs[0].Status)
	assert.Equal(t, StatusCancelled, snap.Jobs[1].Status)

	// The interrupted file stays on disk for inspection; the never-started
	// job produced nothing.
	data, err := os.ReadFile(filepath.Join(outDir, "a.mp4"))
	require.NoError(t, err)
	assert.Equal(t, "partial", string(data))
	_, err = os.Stat(filepath.Join(outDir, "b.mp4"))
	assert.True(t, os.IsNotExist(err))
}

func TestOrchestrator_PauseResumeAndCancelWhilePaused(t *testing.T) {
	bin := writeScript(t, slowEncoder)
	inDir := t.TempDir()
	in := writeInput(t, inDir, "a.mov")
	orch := NewOrchestrator(testConfig(bin), queueJobs(t, t.TempDir(), in))

	done := make(chan error, 1)
	go func() { done <- orch.Run() }()

	waitFor(t, orch, func(s Snapshot) bool {
		return len(s.Jobs) == 1 && s.Jobs[0].Fraction > 0
	})

	require.NoError(t, orch.Pause())
	assert.Equal(t, StatusPaused, orch.Snapshot().Jobs[0].Status)

	require.NoError(t, orch.Resume())
	assert.Equal(t, StatusRunning, orch.Snapshot().Jobs[0].Status)

	require.NoError(t, orch.Pause())

	// Cancelling a paused job must still bring the process down promptly:
	// the controller resumes it before terminating.
	start := time.Now()
	require.NoError(t, orch.Cancel())
	require.NoError(t, <-done)
	assert.Less(t, time.Since(start), orch.cfg.CancelGrace,
		"a paused process must not need the kill escalation")

	assert.Equal(t, StatusCancelled, orch.Snapshot().Jobs[0].Status)
}

func TestOrchestrator_PauseWithoutActiveJob(t *testing.T) {
	orch := NewOrchestrator(testConfig("ffmpeg"), nil)
	var invalid *InvalidStateError
	require.ErrorAs(t, orch.Pause(), &invalid)
	require.ErrorAs(t, orch.Resume(), &invalid)
}

func TestOrchestrator_CancelDuringHandoffNeverSpawns(t *testing.T) {
	bin := writeScript(t, fakeEncoder)
	inDir := t.TempDir()
	outDir := t.TempDir()
	log := filepath.Join(t.TempDir(), "spawned.log")
	t.Setenv("FAKE_ENCODER_LOG", log)

	a := writeInput(t, inDir, "a.mov")
	orch := NewOrchestrator(testConfig(bin), queueJobs(t, outDir, a))

	// Cancel lands after the run loop's cancelled check but before the
	// job registers its controller: the job must end Cancelled with no
	// process ever spawned.
	require.NoError(t, orch.Cancel())
	orch.runJob(0)

	snap := orch.Snapshot()
	assert.Equal(t, StatusCancelled, snap.Jobs[0].Status)
	_, err := os.Stat(log)
	assert.True(t, os.IsNotExist(err), "the encoder must never have run")
	_, err = os.Stat(filepath.Join(outDir, "a.mp4"))
	assert.True(t, os.IsNotExist(err))
}

func TestOrchestrator_CancelBetweenRegistrationAndSpawn(t *testing.T) {
	// The narrower window: the controller is registered as active but
	// Start has not run yet. Cancel must reach it and forbid the spawn
	// instead of being dropped as an invalid-state request.
	bin := writeScript(t, fakeEncoder)
	inDir := t.TempDir()
	in := writeInput(t, inDir, "a.mov")
	orch := NewOrchestrator(testConfig(bin), queueJobs(t, t.TempDir(), in))

	ctrl := NewController(bin, time.Second, NewTail(5), nil)
	orch.mu.Lock()
	orch.ctrl = ctrl
	orch.active = 0
	orch.mu.Unlock()

	require.NoError(t, orch.Cancel())
	assert.Equal(t, ProcTerminated, ctrl.State())

	var invalid *InvalidStateError
	require.ErrorAs(t, ctrl.Start([]string{"-version"}), &invalid)
}

func TestOrchestrator_CancelBeforeRunIsHarmless(t *testing.T) {
	inDir := t.TempDir()
	in := writeInput(t, inDir, "a.mov")
	orch := NewOrchestrator(testConfig(writeScript(t, fakeEncoder)), queueJobs(t, t.TempDir(), in))

	require.NoError(t, orch.Cancel())
	require.NoError(t, orch.Run())

	snap := orch.Snapshot()
	assert.Equal(t, BatchCancelled, snap.Batch)
	assert.Equal(t, StatusCancelled, snap.Jobs[0].Status)
}

func TestOrchestrator_RunIsOneShot(t *testing.T) {
	inDir := t.TempDir()
	in := writeInput(t, inDir, "a.mov")
	orch := NewOrchestrator(testConfig(writeScript(t, fakeEncoder)), queueJobs(t, t.TempDir(), in))

	require.NoError(t, orch.Run())
	require.Error(t, orch.Run())
}

func TestOrchestrator_ProgressFractionIsMonotonic(t *testing.T) {
	orch := NewOrchestrator(testConfig("ffmpeg"),
		queueJobs(t, "", "/videos/a.mov"))
	orch.states[0].Status = StatusRunning
	orch.jobStart = time.Now()

	orch.applyProgress(0, Event{OutSeconds: 0.5})
	assert.InDelta(t, 0.5, orch.Snapshot().Jobs[0].Fraction, 1e-9)

	// A lower out_time (e.g. after a stream restart) never moves the bar
	// backwards.
	orch.applyProgress(0, Event{OutSeconds: 0.3})
	assert.InDelta(t, 0.5, orch.Snapshot().Jobs[0].Fraction, 1e-9)

	orch.applyProgress(0, Event{OutSeconds: 0.9})
	assert.InDelta(t, 0.9, orch.Snapshot().Jobs[0].Fraction, 1e-9)
}

func TestOrchestrator_UnknownDurationStaysAtZero(t *testing.T) {
	settings := DefaultSettings()
	job := NewJob("/videos/a.mov", &probe.Result{Path: "/videos/a.mov"}, settings)
	orch := NewOrchestrator(testConfig("ffmpeg"), []Job{job})
	orch.states[0].Status = StatusRunning
	orch.jobStart = time.Now()

	orch.applyProgress(0, Event{OutSeconds: 42})
	snap := orch.Snapshot()
	assert.Zero(t, snap.Jobs[0].Fraction)
	// The raw numbers still surface even when no percentage can.
	assert.InDelta(t, 42.0, snap.Jobs[0].Stats.OutSeconds, 1e-9)
}
