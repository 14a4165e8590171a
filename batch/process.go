package batch

import (
	"bufio"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"syscall"
	"time"
)

// ProcState is the lifecycle state of one encoder process.
type ProcState int

const (
	ProcNotStarted ProcState = iota
	ProcRunning
	ProcPaused
	ProcCompleted
	ProcFailed
	ProcTerminated
)

func (s ProcState) String() string {
	switch s {
	case ProcNotStarted:
		return "not started"
	case ProcRunning:
		return "running"
	case ProcPaused:
		return "paused"
	case ProcCompleted:
		return "completed"
	case ProcFailed:
		return "failed"
	case ProcTerminated:
		return "terminated"
	default:
		return fmt.Sprintf("ProcState(%d)", int(s))
	}
}

// signaller abstracts the process-control signals so the mechanism stays an
// implementation detail; a platform without stop/continue semantics can
// substitute suspend-equivalents behind the same four operations.
type signaller interface {
	Stop(pid int) error
	Cont(pid int) error
	Term(pid int) error
	Kill(pid int) error
}

type unixSignaller struct{}

func (unixSignaller) Stop(pid int) error { return syscall.Kill(pid, syscall.SIGSTOP) }
func (unixSignaller) Cont(pid int) error { return syscall.Kill(pid, syscall.SIGCONT) }
func (unixSignaller) Term(pid int) error { return syscall.Kill(pid, syscall.SIGTERM) }
func (unixSignaller) Kill(pid int) error { return syscall.Kill(pid, syscall.SIGKILL) }

// Controller owns the lifecycle of one external encoder process. The two
// output streams are drained by independent goroutines so a chatty
// diagnostic stream can never block sparse progress records (or vice
// versa) on a full OS pipe buffer.
type Controller struct {
	bin     string
	grace   time.Duration
	sig     signaller
	tail    *Tail
	onEvent func(Event)

	mu       sync.Mutex
	cmd      *exec.Cmd
	pid      int
	state    ProcState
	exitCode int
	waitErr  error

	done chan struct{}
}

// NewController prepares a controller for a single process. onEvent is
// called from the progress-reading goroutine, one event per completed
// record, in stream order.
func NewController(bin string, grace time.Duration, tail *Tail, onEvent func(Event)) *Controller {
	return &Controller{
		bin:      bin,
		grace:    grace,
		sig:      unixSignaller{},
		tail:     tail,
		onEvent:  onEvent,
		state:    ProcNotStarted,
		exitCode: -1,
		done:     make(chan struct{}),
	}
}

// Start spawns the encoder and returns immediately. The process's exit is
// observed by a background goroutine; use Wait to collect it.
func (c *Controller) Start(args []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != ProcNotStarted {
		return &InvalidStateError{Op: "start", State: c.state}
	}

	cmd := exec.Command(c.bin, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		c.state = ProcFailed
		return &SpawnError{Bin: c.bin, Err: err}
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		c.state = ProcFailed
		return &SpawnError{Bin: c.bin, Err: err}
	}
	if err := cmd.Start(); err != nil {
		c.state = ProcFailed
		return &SpawnError{Bin: c.bin, Err: err}
	}

	c.cmd = cmd
	c.pid = cmd.Process.Pid
	c.state = ProcRunning

	var readers sync.WaitGroup
	readers.Add(2)
	go func() {
		defer readers.Done()
		c.drainProgress(stdout)
	}()
	go func() {
		defer readers.Done()
		c.drainDiagnostics(stderr)
	}()

	go func() {
		// Both pipes must be fully read before Wait per os/exec.
		readers.Wait()
		err := cmd.Wait()

		c.mu.Lock()
		c.waitErr = err
		c.exitCode = exitCodeOf(err)
		if c.state != ProcTerminated {
			if err == nil {
				c.state = ProcCompleted
			} else {
				// Covers non-zero exits and unexpected death by
				// signal alike; the diagnostic tail stays attached.
				c.state = ProcFailed
			}
		}
		c.mu.Unlock()
		close(c.done)
	}()

	return nil
}

// Pause stops the process with SIGSTOP. Valid only while Running.
func (c *Controller) Pause() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != ProcRunning {
		return &InvalidStateError{Op: "pause", State: c.state}
	}
	if err := c.sig.Stop(c.pid); err != nil {
		return err
	}
	c.state = ProcPaused
	return nil
}

// Resume continues a paused process with SIGCONT.
func (c *Controller) Resume() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != ProcPaused {
		return &InvalidStateError{Op: "resume", State: c.state}
	}
	if err := c.sig.Cont(c.pid); err != nil {
		return err
	}
	c.state = ProcRunning
	return nil
}

// Cancel terminates the process and blocks until it has exited. A paused
// process receives SIGCONT strictly before SIGTERM: a stopped process
// cannot act on a termination request, which would otherwise stay pending
// forever. If the process survives the grace period it is killed.
//
// Cancelling before Start marks the controller Terminated so a later Start
// refuses to spawn; a cancel that lands in the spawn window must win.
func (c *Controller) Cancel() error {
	c.mu.Lock()
	switch c.state {
	case ProcNotStarted:
		c.state = ProcTerminated
		c.mu.Unlock()
		return nil
	case ProcPaused:
		_ = c.sig.Cont(c.pid)
	case ProcRunning:
	default:
		state := c.state
		c.mu.Unlock()
		return &InvalidStateError{Op: "cancel", State: state}
	}
	c.state = ProcTerminated
	pid := c.pid
	c.mu.Unlock()

	_ = c.sig.Term(pid)

	timer := time.NewTimer(c.grace)
	defer timer.Stop()
	select {
	case <-c.done:
	case <-timer.C:
		_ = c.sig.Kill(pid)
		<-c.done
	}
	return nil
}

// Wait suspends the caller until the process exits and returns the exit
// code (-1 when the process was killed or never produced one).
func (c *Controller) Wait() (int, error) {
	<-c.done
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.exitCode, c.waitErr
}

// State returns the current process state.
func (c *Controller) State() ProcState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Failure describes a failed process, nil otherwise.
func (c *Controller) Failure() *ProcessFailure {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != ProcFailed {
		return nil
	}
	var tail []string
	if c.tail != nil {
		tail = c.tail.Lines()
	}
	return &ProcessFailure{ExitCode: c.exitCode, Tail: tail, Err: c.waitErr}
}

// drainProgress feeds the structured stream through the record parser.
// Anomalous records are dropped; the previous known-good progress stands.
func (c *Controller) drainProgress(r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	parser := NewRecordParser()
	for scanner.Scan() {
		ev, ok, err := parser.ParseLine(scanner.Text())
		if err != nil || !ok {
			continue
		}
		if c.onEvent != nil {
			c.onEvent(ev)
		}
	}
	if err := scanner.Err(); err != nil && c.tail != nil {
		c.tail.Append(fmt.Sprintf("progress stream error: %v", err))
	}
}

// drainDiagnostics keeps the free-form stream in the rolling tail,
// verbatim. It is never parsed for progress.
func (c *Controller) drainDiagnostics(r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" || c.tail == nil {
			continue
		}
		c.tail.Append(line)
	}
}

func exitCodeOf(err error) int {
	if err == nil {
		return 0
	}
	if ee, ok := err.(*exec.ExitError); ok {
		return ee.ExitCode()
	}
	return -1
}
