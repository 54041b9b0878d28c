// Copyright (c) 2025 iampl
// Licensed under the MIT License. See LICENSE file in the project root for details.

package session

import (
	"context"
	"os"
	"testing"
	"time"

	"iampl/cli/internal/ampltest"
	"iampl/cli/internal/errors"
	"iampl/cli/internal/protocol"

	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	ampltest.RunIfChild()
	os.Exit(m.Run())
}

func newSession(t *testing.T) *Session {
	t.Helper()
	path, args, env := ampltest.Command()
	s := New(Options{
		Path:           path,
		Args:           args,
		Env:            env,
		InterruptGrace: 300 * time.Millisecond,
		ShutdownGrace:  time.Second,
	})
	t.Cleanup(func() { _ = s.Shutdown(context.Background()) })
	return s
}

func startSession(t *testing.T) *Session {
	t.Helper()
	s := newSession(t)
	banner, err := s.Start(context.Background(), nil)
	require.NoError(t, err)
	require.Equal(t, ampltest.Banner, banner)
	require.Equal(t, Idle, s.State())
	return s
}

// runAsync executes code in the background and returns once the child has emitted
// its first output frame.
func runAsync(t *testing.T, ctx context.Context, s *Session, code string) <-chan result {
	t.Helper()
	seen := make(chan struct{})
	res := make(chan result, 1)
	go func() {
		first := true
		out, err := s.Execute(ctx, code, func(protocol.Frame) {
			if first {
				first = false
				close(seen)
			}
		})
		res <- result{out: out, err: err}
	}()
	select {
	case <-seen:
	case <-time.After(10 * time.Second):
		t.Fatalf("child never started %q", code)
	}
	return res
}

type result struct {
	out string
	err error
}

func wait(t *testing.T, ch <-chan result) result {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(10 * time.Second):
		t.Fatal("execute did not return")
	}
	return result{}
}

func TestStartReadsBanner(t *testing.T) {
	s := startSession(t)
	require.NotZero(t, s.Pid())

	_, err := s.Start(context.Background(), nil)
	require.ErrorIs(t, err, errors.SessionBusy)
}

func TestStartExecutableNotFound(t *testing.T) {
	s := New(Options{Path: "/nonexistent/iampl/ampl", Args: []string{"-g"}})
	_, err := s.Start(context.Background(), nil)
	require.Equal(t, errors.ExecutableNotFound, errors.KindOf(err))
	require.Equal(t, Unstarted, s.State())

	path, args, env := ampltest.Command()
	require.NoError(t, s.SetCommand(path, args...))
	s.opts.Env = env
	t.Cleanup(func() { _ = s.Shutdown(context.Background()) })

	_, err = s.Start(context.Background(), nil)
	require.NoError(t, err)
	require.Equal(t, Idle, s.State())
	require.ErrorIs(t, s.SetCommand("ampl"), errors.SessionBusy)
}

func TestExecuteBeforeStart(t *testing.T) {
	s := newSession(t)
	_, err := s.Execute(context.Background(), "print hi;", nil)
	require.ErrorIs(t, err, errors.NotStarted)
}

func TestExecuteStreamsBlocks(t *testing.T) {
	s := startSession(t)

	var blocks []protocol.Frame
	out, err := s.Execute(context.Background(), "chatty 3;", func(f protocol.Frame) {
		blocks = append(blocks, f)
	})
	require.NoError(t, err)
	require.Equal(t, "line 0\nline 1\nline 2\n", out)
	require.Len(t, blocks, 3)
	require.Equal(t, "print", blocks[0].Command)

	out, err = s.Execute(context.Background(), "option solver cbc;", nil)
	require.NoError(t, err)
	require.Empty(t, out)
	require.Equal(t, Idle, s.State())
}

func TestExecuteWhileBusy(t *testing.T) {
	s := startSession(t)
	res := runAsync(t, context.Background(), s, "sleep;")
	require.Equal(t, Executing, s.State())

	_, err := s.Execute(context.Background(), "print hi;", nil)
	require.ErrorIs(t, err, errors.SessionBusy)

	outcome, err := s.Interrupt(context.Background())
	require.NoError(t, err)
	require.Equal(t, OutcomeInterrupted, outcome)

	r := wait(t, res)
	require.ErrorIs(t, r.err, errors.Interrupted)
	require.Equal(t, "sleeping\ninterrupted\n", r.out)
	require.Equal(t, Idle, s.State())

	out, err := s.Execute(context.Background(), "print still here;", nil)
	require.NoError(t, err)
	require.Equal(t, "still here\n", out)
}

func TestCancelInterrupts(t *testing.T) {
	s := startSession(t)
	ctx, cancel := context.WithCancel(context.Background())
	res := runAsync(t, ctx, s, "sleep;")
	cancel()

	r := wait(t, res)
	require.ErrorIs(t, r.err, errors.Interrupted)
	require.Equal(t, Idle, s.State())
}

func TestInterruptEscalatesToTerminate(t *testing.T) {
	s := startSession(t)
	res := runAsync(t, context.Background(), s, "deaf;")

	outcome, err := s.Interrupt(context.Background())
	require.NoError(t, err)
	require.Equal(t, OutcomeTerminated, outcome)

	r := wait(t, res)
	require.ErrorIs(t, r.err, errors.SessionTerminated)
	require.Equal(t, Terminated, s.State())

	_, err = s.Execute(context.Background(), "print hi;", nil)
	require.ErrorIs(t, err, errors.SessionTerminated)
}

func TestInterruptEscalatesToKill(t *testing.T) {
	s := startSession(t)
	res := runAsync(t, context.Background(), s, "stubborn;")

	outcome, err := s.Interrupt(context.Background())
	require.NoError(t, err)
	require.Equal(t, OutcomeKilled, outcome)

	r := wait(t, res)
	require.ErrorIs(t, r.err, errors.SessionTerminated)
	require.Equal(t, Terminated, s.State())
}

func TestInterruptWithoutExecution(t *testing.T) {
	s := newSession(t)
	outcome, err := s.Interrupt(context.Background())
	require.NoError(t, err)
	require.Equal(t, OutcomeAlreadyTerminated, outcome)

	_, err = s.Start(context.Background(), nil)
	require.NoError(t, err)
	outcome, err = s.Interrupt(context.Background())
	require.NoError(t, err)
	require.Equal(t, OutcomeIdle, outcome)

	require.NoError(t, s.Shutdown(context.Background()))
	for i := 0; i < 2; i++ {
		outcome, err = s.Interrupt(context.Background())
		require.NoError(t, err)
		require.Equal(t, OutcomeAlreadyTerminated, outcome)
	}
}

func TestInterruptAfterPromptRead(t *testing.T) {
	s := startSession(t)
	out, err := s.Execute(context.Background(), "print hi;", nil)
	require.NoError(t, err)
	require.Equal(t, "hi\n", out)

	// Execute has read the closing prompt but not yet moved back to Idle.
	s.mu.Lock()
	require.False(t, s.reading)
	s.state = Executing
	s.mu.Unlock()

	outcome, err := s.Interrupt(context.Background())
	require.NoError(t, err)
	require.Equal(t, OutcomeIdle, outcome)
	require.Equal(t, Executing, s.State())

	s.mu.Lock()
	require.False(t, s.interrupted)
	s.state = Idle
	s.mu.Unlock()

	out, err = s.Execute(context.Background(), "print again;", nil)
	require.NoError(t, err)
	require.Equal(t, "again\n", out)
}

func TestMalformedFrameTerminates(t *testing.T) {
	s := startSession(t)
	_, err := s.Execute(context.Background(), "garbage;", nil)
	require.ErrorIs(t, err, errors.StreamDesync)
	require.True(t, errors.Fatal(err))
	require.Equal(t, Terminated, s.State())

	_, err = s.Execute(context.Background(), "print hi;", nil)
	require.ErrorIs(t, err, errors.SessionTerminated)
}

func TestChildExitTerminates(t *testing.T) {
	s := startSession(t)
	out, err := s.Execute(context.Background(), "exit;", nil)
	require.ErrorIs(t, err, errors.StreamDesync)
	require.Equal(t, "bye\n", out)
	require.Equal(t, Terminated, s.State())
}

func TestShutdownIsIdempotent(t *testing.T) {
	s := startSession(t)
	require.NoError(t, s.Shutdown(context.Background()))
	require.NoError(t, s.Shutdown(context.Background()))
	require.Equal(t, Terminated, s.State())

	_, err := s.Start(context.Background(), nil)
	require.ErrorIs(t, err, errors.SessionTerminated)

	unstarted := newSession(t)
	require.NoError(t, unstarted.Shutdown(context.Background()))
	require.Equal(t, Terminated, unstarted.State())
}

func TestShutdownDuringExecution(t *testing.T) {
	s := startSession(t)
	res := runAsync(t, context.Background(), s, "sleep;")

	require.NoError(t, s.Shutdown(context.Background()))
	r := wait(t, res)
	require.ErrorIs(t, r.err, errors.SessionTerminated)
}

func TestStateStrings(t *testing.T) {
	require.Equal(t, "interrupting", Interrupting.String())
	require.Equal(t, "already_terminated", OutcomeAlreadyTerminated.String())
}
