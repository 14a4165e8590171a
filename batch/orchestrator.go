package batch

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"ffbatch/config"
	"ffbatch/media"
)

// BatchState is the top-level state of the orchestrator.
type BatchState int

const (
	BatchIdle BatchState = iota
	BatchRunning
	BatchDone
	BatchCancelled
)

func (s BatchState) String() string {
	switch s {
	case BatchIdle:
		return "Idle"
	case BatchRunning:
		return "Running"
	case BatchDone:
		return "Done"
	case BatchCancelled:
		return "Cancelled"
	default:
		return fmt.Sprintf("BatchState(%d)", int(s))
	}
}

// Orchestrator drives an ordered queue of jobs, one encoder process at a
// time. It exclusively owns the per-job run states; the UI layer reads
// published snapshots and never mutates anything.
type Orchestrator struct {
	cfg *config.Config

	mu        sync.Mutex
	jobs      []Job
	states    []RunState
	batch     BatchState
	active    int
	ctrl      *Controller
	cancelled bool
	jobStart  time.Time
}

// NewOrchestrator creates an idle orchestrator over a fixed queue.
func NewOrchestrator(cfg *config.Config, jobs []Job) *Orchestrator {
	return &Orchestrator{
		cfg:    cfg,
		jobs:   jobs,
		states: make([]RunState, len(jobs)),
		batch:  BatchIdle,
		active: -1,
	}
}

// Run processes the whole queue sequentially and returns when the batch is
// finished or cancelled. Per-job errors become terminal job states; Run
// itself only fails if the batch cannot run at all.
func (o *Orchestrator) Run() error {
	o.mu.Lock()
	if o.batch != BatchIdle {
		o.mu.Unlock()
		return fmt.Errorf("batch already %s", o.batch)
	}
	o.batch = BatchRunning
	o.mu.Unlock()

	for i := range o.jobs {
		o.mu.Lock()
		if o.cancelled {
			o.mu.Unlock()
			break
		}
		o.mu.Unlock()

		o.runJob(i)

		o.mu.Lock()
		halt := o.cfg.HaltOnFailure && o.states[i].Status == StatusFailed
		o.mu.Unlock()
		if halt {
			break
		}
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	// Anything still pending was never started; mark it so.
	for i := range o.states {
		if o.states[i].Status == StatusPending && (o.cancelled || o.cfg.HaltOnFailure) {
			o.states[i].Status = StatusCancelled
		}
	}
	if o.cancelled {
		o.batch = BatchCancelled
	} else {
		o.batch = BatchDone
	}
	return nil
}

// runJob executes one job through its whole lifecycle. All failures are
// absorbed into the job's terminal state here, at the orchestrator
// boundary.
func (o *Orchestrator) runJob(i int) {
	job := o.jobs[i]

	container, ok := media.ContainerByID(job.Settings.ContainerID)
	if !ok {
		o.failJob(i, fmt.Errorf("unknown container %q", job.Settings.ContainerID), nil)
		return
	}

	// Resolve and lock the destination exactly once, before any process
	// exists. Once the encoder starts writing there, re-resolution would
	// collide with the file being written.
	outputPath, err := ResolveOutputPath(job.InputPath, job.Settings.OutputDir, container.Ext)
	if err != nil {
		o.failJob(i, err, nil)
		return
	}

	args, err := BuildArgs(job, outputPath, o.cfg.StatsPeriod)
	if err != nil {
		o.failJob(i, err, nil)
		return
	}

	tail := NewTail(o.cfg.LogTail)
	// The exact invocation is echoed at the top of the job's log.
	tail.Append(CommandString(o.cfg.FFmpegBin, args))
	ctrl := NewController(o.cfg.FFmpegBin, o.cfg.CancelGrace, tail, func(ev Event) {
		o.applyProgress(i, ev)
	})

	o.mu.Lock()
	if o.cancelled {
		// A batch cancel can land between the run loop's check and this
		// handoff; the job must never spawn.
		o.states[i].Status = StatusCancelled
		o.states[i].Err = "cancelled"
		o.mu.Unlock()
		return
	}
	o.active = i
	o.ctrl = ctrl
	o.jobStart = time.Now()
	st := &o.states[i]
	st.Status = StatusRunning
	st.OutputPath = outputPath
	o.mu.Unlock()

	startErr := ctrl.Start(args)
	var exitCode int
	var waitErr error
	if startErr == nil {
		exitCode, waitErr = ctrl.Wait()
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	st = &o.states[i]
	st.Elapsed = time.Since(o.jobStart)
	st.Tail = tail.Lines()
	o.ctrl = nil
	o.active = -1

	switch {
	case startErr != nil && ctrl.State() == ProcTerminated:
		// Cancelled in the spawn window; Start refused to run.
		st.Status = StatusCancelled
		st.Err = "cancelled"
	case startErr != nil:
		st.Status = StatusFailed
		st.Err = startErr.Error()
	case ctrl.State() == ProcTerminated:
		// Cancelled mid-encode; the partial output stays on disk for
		// the user to inspect.
		st.Status = StatusCancelled
		st.Err = "cancelled"
	case waitErr == nil && exitCode == 0:
		st.Status = StatusSucceeded
		st.Fraction = 1
		st.InputBytes, st.OutputBytes = finalSizes(job.InputPath, outputPath)
	default:
		st.Status = StatusFailed
		if pf := ctrl.Failure(); pf != nil {
			st.Err = pf.Error()
		} else {
			st.Err = (&ProcessFailure{ExitCode: exitCode, Err: waitErr}).Error()
		}
	}
}

// failJob records a pre-spawn failure (path or command resolution).
func (o *Orchestrator) failJob(i int, err error, tail []string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	st := &o.states[i]
	st.Status = StatusFailed
	st.Err = err.Error()
	st.Tail = tail
}

// applyProgress folds one progress event into the active job's run state.
// Events arrive from a single goroutine in stream order, so the fraction
// only ever moves forward.
func (o *Orchestrator) applyProgress(i int, ev Event) {
	o.mu.Lock()
	defer o.mu.Unlock()

	st := &o.states[i]
	if st.Status != StatusRunning && st.Status != StatusPaused {
		return
	}

	st.Stats = Stats{
		Frame:      ev.Frame,
		FPS:        ev.FPS,
		Speed:      ev.Speed,
		SpeedRaw:   ev.SpeedRaw,
		Bitrate:    ev.Bitrate,
		OutBytes:   ev.OutBytes,
		OutSeconds: ev.OutSeconds,
	}
	st.Elapsed = time.Since(o.jobStart)

	var duration float64
	if o.jobs[i].Probe != nil {
		duration = o.jobs[i].Probe.Duration
	}
	if f := Fraction(ev.OutSeconds, duration); f > st.Fraction {
		st.Fraction = f
	}
}

// Pause stops the active encoder process. Requests in a state that forbids
// them return InvalidStateError for the caller to log and drop.
func (o *Orchestrator) Pause() error {
	ctrl, i := o.activeController()
	if ctrl == nil {
		return &InvalidStateError{Op: "pause", State: ProcNotStarted}
	}
	if err := ctrl.Pause(); err != nil {
		return err
	}
	o.setStatus(i, StatusPaused)
	return nil
}

// Resume continues a paused encoder process.
func (o *Orchestrator) Resume() error {
	ctrl, i := o.activeController()
	if ctrl == nil {
		return &InvalidStateError{Op: "resume", State: ProcNotStarted}
	}
	if err := ctrl.Resume(); err != nil {
		return err
	}
	o.setStatus(i, StatusRunning)
	return nil
}

// Cancel aborts the whole batch: the active process is terminated and all
// jobs not yet started will be marked Cancelled without ever spawning.
// Already-finished jobs keep their results.
func (o *Orchestrator) Cancel() error {
	o.mu.Lock()
	o.cancelled = true
	ctrl := o.ctrl
	o.mu.Unlock()

	if ctrl == nil {
		return nil
	}
	err := ctrl.Cancel()
	if _, invalid := err.(*InvalidStateError); invalid {
		// Process already exited between the check and the signal.
		return nil
	}
	return err
}

func (o *Orchestrator) activeController() (*Controller, int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.ctrl, o.active
}

func (o *Orchestrator) setStatus(i int, s Status) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if i >= 0 && i < len(o.states) && !o.states[i].Status.Terminal() {
		o.states[i].Status = s
	}
}

// JobSnapshot is one job's published view.
type JobSnapshot struct {
	Index     int
	ID        string
	InputPath string
	InputName string
	// Duration is the probed length in seconds, 0 when unknown
	Duration float64
	// InputSummary is the prober's one-line description of the input
	InputSummary string
	Status      Status
	OutputPath  string
	Fraction    float64
	Elapsed     time.Duration
	Stats       Stats
	InputBytes  int64
	OutputBytes int64
	Tail        []string
	Err         string
}

// Totals aggregates the batch. Sizes and elapsed time come from Succeeded
// jobs only.
type Totals struct {
	Succeeded   int
	Failed      int
	Cancelled   int
	InputBytes  int64
	OutputBytes int64
	Elapsed     time.Duration
}

// SavedPercent is the size reduction across succeeded jobs, 0 when unknown.
func (t Totals) SavedPercent() float64 {
	if t.InputBytes <= 0 || t.OutputBytes <= 0 {
		return 0
	}
	return (1 - float64(t.OutputBytes)/float64(t.InputBytes)) * 100
}

// Snapshot is an immutable copy of the whole batch for display.
type Snapshot struct {
	Batch  BatchState
	Active int
	Jobs   []JobSnapshot
	Totals Totals
}

// Snapshot publishes the current state. The returned value shares nothing
// mutable with the orchestrator.
func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()

	snap := Snapshot{
		Batch:  o.batch,
		Active: o.active,
		Jobs:   make([]JobSnapshot, len(o.jobs)),
	}

	for i := range o.jobs {
		job := o.jobs[i]
		st := o.states[i]

		js := JobSnapshot{
			Index:       i,
			ID:          job.ID,
			InputPath:   job.InputPath,
			InputName:   filepath.Base(job.InputPath),
			Status:      st.Status,
			OutputPath:  st.OutputPath,
			Fraction:    st.Fraction,
			Elapsed:     st.Elapsed,
			Stats:       st.Stats,
			InputBytes:  st.InputBytes,
			OutputBytes: st.OutputBytes,
			Err:         st.Err,
		}
		if job.Probe != nil {
			js.Duration = job.Probe.Duration
			js.InputSummary = job.Probe.Summary()
		}
		if i == o.active && (st.Status == StatusRunning || st.Status == StatusPaused) {
			js.Elapsed = time.Since(o.jobStart)
		}
		if len(st.Tail) > 0 {
			js.Tail = make([]string, len(st.Tail))
			copy(js.Tail, st.Tail)
		}
		snap.Jobs[i] = js

		switch st.Status {
		case StatusSucceeded:
			snap.Totals.Succeeded++
			snap.Totals.InputBytes += st.InputBytes
			snap.Totals.OutputBytes += st.OutputBytes
			snap.Totals.Elapsed += st.Elapsed
		case StatusFailed:
			snap.Totals.Failed++
		case StatusCancelled:
			snap.Totals.Cancelled++
		}
	}

	return snap
}

// ActiveTail returns the diagnostic tail of the running job for live
// display; the terminal tail is archived on the run state at job end.
func (o *Orchestrator) ActiveTail() []string {
	o.mu.Lock()
	ctrl := o.ctrl
	o.mu.Unlock()
	if ctrl == nil || ctrl.tail == nil {
		return nil
	}
	return ctrl.tail.Lines()
}

// finalSizes reads the real byte counts from the filesystem; the encoder's
// running size estimate is never trusted for the results table.
func finalSizes(inputPath, outputPath string) (in, out int64) {
	if fi, err := os.Stat(inputPath); err == nil {
		in = fi.Size()
	}
	if fi, err := os.Stat(outputPath); err == nil {
		out = fi.Size()
	}
	return in, out
}
