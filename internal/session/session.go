// Copyright (c) 2025 iampl
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package session owns an `ampl -g` child process and runs one request at a time over
// its framed standard streams.
//
// The protocol has no request identifiers, so a Session is a small state machine:
//
//	Unstarted -> AwaitingPrompt -> Idle <-> Executing -> Interrupting -> Idle
//
// and any stream failure moves it to Terminated for good. Interrupt may be called from
// any goroutine while Execute blocks; it only signals the child's process group and
// lets the in-flight read find the next prompt, escalating to SIGTERM and SIGKILL when
// the child does not answer within the grace period.
package session

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"iampl/cli/internal/errors"
	"iampl/cli/internal/logging"
	"iampl/cli/internal/protocol"

	"github.com/pterm/pterm"
)

// State is the lifecycle position of a Session.
type State int

const (
	Unstarted State = iota
	AwaitingPrompt
	Idle
	Executing
	Interrupting
	Terminated
)

func (s State) String() string {
	switch s {
	case Unstarted:
		return "unstarted"
	case AwaitingPrompt:
		return "awaiting_prompt"
	case Idle:
		return "idle"
	case Executing:
		return "executing"
	case Interrupting:
		return "interrupting"
	case Terminated:
		return "terminated"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// InterruptOutcome reports how far Interrupt had to escalate.
type InterruptOutcome int

const (
	// OutcomeIdle means nothing was executing.
	OutcomeIdle InterruptOutcome = iota
	// OutcomeInterrupted means the child aborted the statement and the session is idle.
	OutcomeInterrupted
	// OutcomeTerminated means the child exited after SIGTERM or on its own.
	OutcomeTerminated
	// OutcomeKilled means the child had to be killed.
	OutcomeKilled
	// OutcomeAlreadyTerminated means there was no live child to signal.
	OutcomeAlreadyTerminated
)

func (o InterruptOutcome) String() string {
	switch o {
	case OutcomeIdle:
		return "idle"
	case OutcomeInterrupted:
		return "interrupted"
	case OutcomeTerminated:
		return "terminated"
	case OutcomeKilled:
		return "killed"
	case OutcomeAlreadyTerminated:
		return "already_terminated"
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// DefaultGrace is used when Options leave a grace period unset.
const DefaultGrace = 2 * time.Second

// Options configures the child process.
type Options struct {
	Path string
	Args []string
	Dir  string
	// Env is appended to the current environment.
	Env []string
	// Stderr receives the child's standard error. Nil discards it.
	Stderr io.Writer
	// InterruptGrace bounds each step of the interrupt ladder.
	InterruptGrace time.Duration
	// ShutdownGrace bounds the wait for a clean exit after stdin is closed.
	ShutdownGrace time.Duration
	Logger        *pterm.Logger
}

// Session drives one AMPL child process.
type Session struct {
	log *pterm.Logger

	mu          sync.Mutex
	opts        Options
	state       State
	cmd         *exec.Cmd
	stdin       io.WriteCloser
	stdout      *os.File
	reader      *protocol.Reader
	writer      *protocol.Writer
	exited      chan struct{}
	done        chan struct{}
	interrupted bool
	// reading is set while Execute waits for the closing prompt.
	reading bool
}

// New returns an unstarted session.
func New(opts Options) *Session {
	if opts.InterruptGrace <= 0 {
		opts.InterruptGrace = DefaultGrace
	}
	if opts.ShutdownGrace <= 0 {
		opts.ShutdownGrace = DefaultGrace
	}
	log := opts.Logger
	if log == nil {
		log = logging.Discard()
	}
	return &Session{opts: opts, log: log}
}

// SetCommand replaces the executable and arguments. It is only allowed before the
// child has been started, typically after Start failed with ExecutableNotFound.
func (s *Session) SetCommand(path string, args ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Unstarted {
		return errors.Newf(errors.SessionBusy, "cannot change command in state %s", s.state)
	}
	s.opts.Path = path
	s.opts.Args = args
	return nil
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Pid returns the child's process id, or 0 before Start.
func (s *Session) Pid() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cmd == nil || s.cmd.Process == nil {
		return 0
	}
	return s.cmd.Process.Pid
}

// Start spawns the child and consumes its startup output up to the first prompt,
// which is returned as the banner. When the executable cannot be launched the session
// stays Unstarted and Start may be retried.
func (s *Session) Start(ctx context.Context, sink protocol.Sink) (string, error) {
	s.mu.Lock()
	switch s.state {
	case Unstarted:
	case Terminated:
		s.mu.Unlock()
		return "", errors.New(errors.SessionTerminated, "session has terminated")
	default:
		st := s.state
		s.mu.Unlock()
		return "", errors.Newf(errors.SessionBusy, "session already started (%s)", st)
	}
	if err := s.spawnLocked(); err != nil {
		s.mu.Unlock()
		return "", err
	}
	s.state = AwaitingPrompt
	reader := s.reader
	s.mu.Unlock()

	stop := context.AfterFunc(ctx, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.state == AwaitingPrompt {
			s.terminateLocked("start cancelled")
		}
	})
	banner, err := reader.ReadUntilPrompt(sink)
	stop()

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.terminateLocked("startup failed")
		if ctx.Err() != nil {
			return banner, errors.Wrap(errors.SessionTerminated, "start cancelled", ctx.Err())
		}
		return banner, err
	}
	if s.state != AwaitingPrompt {
		return banner, errors.New(errors.SessionTerminated, "session shut down during start")
	}
	s.state = Idle
	s.log.Debug("ampl ready", s.log.Args("pid", s.cmd.Process.Pid, "frames", reader.Frames()))
	return banner, nil
}

func (s *Session) spawnLocked() error {
	cmd := exec.Command(s.opts.Path, s.opts.Args...)
	cmd.Dir = s.opts.Dir
	if len(s.opts.Env) > 0 {
		cmd.Env = append(os.Environ(), s.opts.Env...)
	}
	cmd.Stderr = s.opts.Stderr
	cmd.WaitDelay = s.opts.ShutdownGrace
	configureProcess(cmd)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return errors.Wrap(errors.ExecutableNotFound, "creating stdin pipe", err)
	}
	// stdout is an os.Pipe rather than StdoutPipe so Wait never closes it under a
	// pending read.
	pr, pw, err := os.Pipe()
	if err != nil {
		_ = stdin.Close()
		return errors.Wrap(errors.ExecutableNotFound, "creating stdout pipe", err)
	}
	cmd.Stdout = pw

	if err := cmd.Start(); err != nil {
		_ = stdin.Close()
		_ = pr.Close()
		_ = pw.Close()
		return errors.Wrap(errors.ExecutableNotFound, "starting "+s.opts.Path, err)
	}
	_ = pw.Close()

	s.cmd = cmd
	s.stdin = stdin
	s.stdout = pr
	s.reader = protocol.NewReader(pr)
	s.writer = protocol.NewWriter(stdin)
	s.exited = make(chan struct{})

	pid := cmd.Process.Pid
	s.log.Debug("spawned ampl", s.log.Args("path", s.opts.Path, "args", s.opts.Args, "pid", pid))
	go func(exited chan struct{}) {
		err := cmd.Wait()
		s.log.Debug("ampl exited", s.log.Args("pid", pid, "status", fmt.Sprint(err)))
		close(exited)
	}(s.exited)
	return nil
}

func (s *Session) readyLocked() error {
	switch s.state {
	case Idle:
		return nil
	case Unstarted:
		return errors.New(errors.NotStarted, "session has not been started")
	case Terminated:
		return errors.New(errors.SessionTerminated, "session has terminated")
	}
	return errors.Newf(errors.SessionBusy, "another request is outstanding (%s)", s.state)
}

// Execute sends code as one frame and returns the output collected up to the next
// prompt. Cancelling ctx interrupts the child; the partial output is then returned
// together with an Interrupted error and the session stays usable. There is no timeout
// otherwise.
func (s *Session) Execute(ctx context.Context, code string, sink protocol.Sink) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	if err := s.readyLocked(); err != nil {
		s.mu.Unlock()
		return "", err
	}
	s.state = Executing
	s.interrupted = false
	s.reading = true
	done := make(chan struct{})
	s.done = done
	reader, writer := s.reader, s.writer
	before := reader.Frames()
	s.mu.Unlock()

	if err := writer.WritePayload(code); err != nil {
		s.mu.Lock()
		s.reading = false
		s.terminateLocked("write failed")
		close(done)
		s.mu.Unlock()
		return "", errors.Wrap(errors.SessionTerminated, "writing statement", err)
	}

	stop := context.AfterFunc(ctx, func() {
		outcome, err := s.Interrupt(context.Background())
		s.log.Debug("interrupt after cancellation", s.log.Args("outcome", outcome.String(), "err", fmt.Sprint(err)))
	})
	out, err := reader.ReadUntilPrompt(sink)

	s.mu.Lock()
	defer s.mu.Unlock()
	defer close(done)
	s.reading = false
	stop()

	s.log.Trace("execute finished", s.log.Args("frames", reader.Frames()-before, "bytes", len(out)))
	if err != nil {
		killed := s.state == Terminated || s.interrupted
		s.terminateLocked("stream failure")
		if killed {
			return out, errors.Wrap(errors.SessionTerminated, "session terminated during execution", err)
		}
		return out, err
	}
	if s.state == Terminated {
		return out, errors.New(errors.SessionTerminated, "session shut down during execution")
	}
	s.state = Idle
	if s.interrupted {
		return out, errors.New(errors.Interrupted, "execution interrupted")
	}
	return out, nil
}

// Interrupt stops the statement in flight. The child's process group receives SIGINT
// and the blocked Execute is given InterruptGrace to reach the next prompt; after that
// the group receives SIGTERM and finally SIGKILL. Cancelling ctx skips the remaining
// grace periods. Signal failures are logged and reported as OutcomeAlreadyTerminated.
//
// Once Execute has read the closing prompt the statement counts as finished and
// Interrupt returns OutcomeIdle. A prompt that arrives after the signal was sent still
// yields OutcomeInterrupted, as does one the reader has consumed but Execute has not
// yet recorded.
func (s *Session) Interrupt(ctx context.Context) (InterruptOutcome, error) {
	s.mu.Lock()
	switch s.state {
	case Unstarted, Terminated:
		s.mu.Unlock()
		return OutcomeAlreadyTerminated, nil
	case Idle, AwaitingPrompt:
		s.mu.Unlock()
		return OutcomeIdle, nil
	case Interrupting:
		done := s.done
		s.mu.Unlock()
		select {
		case <-done:
			return s.settled(OutcomeInterrupted), nil
		case <-ctx.Done():
			return OutcomeInterrupted, ctx.Err()
		}
	}
	if !s.reading {
		s.mu.Unlock()
		return OutcomeIdle, nil
	}
	s.state = Interrupting
	s.interrupted = true
	done := s.done
	pid := s.cmd.Process.Pid
	s.mu.Unlock()

	ladder := []struct {
		sig     syscall.Signal
		outcome InterruptOutcome
	}{
		{syscall.SIGINT, OutcomeInterrupted},
		{syscall.SIGTERM, OutcomeTerminated},
		{syscall.SIGKILL, OutcomeKilled},
	}
	for _, step := range ladder {
		s.log.Debug("signalling ampl process group", s.log.Args("pid", pid, "signal", step.sig.String()))
		if err := signalGroup(pid, step.sig); err != nil {
			s.log.Warn("could not signal ampl", s.log.Args("pid", pid, "signal", step.sig.String(), "error", err.Error()))
			s.abort("signal failed")
			<-done
			return OutcomeAlreadyTerminated, nil
		}
		if s.waitDone(ctx, done) {
			return s.settled(step.outcome), nil
		}
	}

	s.log.Warn("ampl still running after SIGKILL, closing its streams", s.log.Args("pid", pid))
	s.abort("kill timed out")
	<-done
	return OutcomeKilled, nil
}

func (s *Session) waitDone(ctx context.Context, done <-chan struct{}) bool {
	t := time.NewTimer(s.opts.InterruptGrace)
	defer t.Stop()
	select {
	case <-done:
		return true
	case <-t.C:
		return false
	case <-ctx.Done():
		return false
	}
}

// settled corrects an optimistic outcome when the child died on the gentler signal.
func (s *Session) settled(o InterruptOutcome) InterruptOutcome {
	if o == OutcomeInterrupted && s.State() == Terminated {
		return OutcomeTerminated
	}
	return o
}

func (s *Session) abort(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.terminateLocked(reason)
}

// terminateLocked kills the process group and closes both pipes so any pending read
// returns. It does not wait for the child.
func (s *Session) terminateLocked(reason string) {
	if s.state == Terminated {
		return
	}
	prev := s.state
	s.state = Terminated
	if s.cmd == nil {
		return
	}
	pid := s.cmd.Process.Pid
	s.log.Debug("terminating ampl session", s.log.Args("pid", pid, "from", prev.String(), "reason", reason))
	if !s.exitedLocked() {
		_ = signalGroup(pid, syscall.SIGKILL)
	}
	_ = s.stdin.Close()
	_ = s.stdout.Close()
}

func (s *Session) exitedLocked() bool {
	if s.exited == nil {
		return false
	}
	select {
	case <-s.exited:
		return true
	default:
		return false
	}
}

// Shutdown closes the child's input and waits ShutdownGrace for it to exit before
// killing its process group. A request still in flight is cut off. Calling Shutdown
// again, or on a session that never started, is a no-op.
func (s *Session) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	switch s.state {
	case Terminated:
		s.mu.Unlock()
		return nil
	case Unstarted:
		s.state = Terminated
		s.mu.Unlock()
		return nil
	case Idle:
	default:
		s.terminateLocked("shutdown during request")
		exited := s.exited
		s.mu.Unlock()
		return waitExit(ctx, exited)
	}
	s.state = Terminated
	stdin, stdout, exited := s.stdin, s.stdout, s.exited
	pid := s.cmd.Process.Pid
	s.mu.Unlock()

	_ = stdin.Close()
	t := time.NewTimer(s.opts.ShutdownGrace)
	defer t.Stop()
	select {
	case <-exited:
	case <-t.C:
		s.log.Warn("ampl did not exit after closing its input, killing", s.log.Args("pid", pid))
		_ = signalGroup(pid, syscall.SIGKILL)
	case <-ctx.Done():
		_ = signalGroup(pid, syscall.SIGKILL)
	}
	_ = stdout.Close()
	return waitExit(ctx, exited)
}

func waitExit(ctx context.Context, exited <-chan struct{}) error {
	select {
	case <-exited:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
