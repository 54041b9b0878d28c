// Copyright (c) 2025 iampl
// Licensed under the MIT License. See LICENSE file in the project root for details.

package driver

import (
	"context"
	"os"
	"testing"
	"time"

	"iampl/cli/internal/ampltest"
	"iampl/cli/internal/config"
	"iampl/cli/internal/display"
	"iampl/cli/internal/errors"
	"iampl/cli/internal/protocol"
	"iampl/cli/internal/session"

	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	ampltest.RunIfChild()
	os.Exit(m.Run())
}

func startDriver(t *testing.T) *Driver {
	t.Helper()
	path, args, env := ampltest.Command()
	s := session.New(session.Options{
		Path:           path,
		Args:           args,
		Env:            env,
		InterruptGrace: 300 * time.Millisecond,
		ShutdownGrace:  time.Second,
	})
	d := NewWithSession(s, nil)
	t.Cleanup(func() { _ = d.Shutdown(context.Background()) })

	var banner []protocol.Frame
	out, err := d.Start(context.Background(), func(f protocol.Frame) { banner = append(banner, f) })
	require.NoError(t, err)
	require.Equal(t, ampltest.Banner, out)
	require.Len(t, banner, 1)
	require.Empty(t, d.EntityNames())
	return d
}

func TestExecuteRefreshesEntities(t *testing.T) {
	d := startDriver(t)

	_, err := d.Execute(context.Background(), "model demo;", nil)
	require.NoError(t, err)
	require.Equal(t, []string{"S", "cap", "cost", "label", "n", "total", "x"}, d.EntityNames())

	cost, ok := d.Entity("cost")
	require.True(t, ok)
	res, err := cost.Value(context.Background(), nil)
	require.NoError(t, err)
	require.Equal(t, display.ShapeMapping, res.Shape)
	v, ok := res.Lookup(display.Key{"b"})
	require.True(t, ok)
	require.Equal(t, display.Number(2), v)

	res, err = d.ValueOf(context.Background(), "label", nil)
	require.NoError(t, err)
	v, _ = res.Lookup(display.Key{"a"})
	require.Equal(t, display.Text("north"), v)

	res, err = d.ValueOf(context.Background(), "S", nil)
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b"}, res.Members())

	res, err = d.ValueOf(context.Background(), "x", display.Key{"b"})
	require.NoError(t, err)
	require.Equal(t, 4.0, res.Scalar)

	matched, err := d.Match("c*")
	require.NoError(t, err)
	require.Len(t, matched, 2)
}

func TestReplacedEntityIsStale(t *testing.T) {
	d := startDriver(t)
	_, err := d.Execute(context.Background(), "param p := 1;", nil)
	require.NoError(t, err)
	old, ok := d.Entity("p")
	require.True(t, ok)

	_, err = d.Execute(context.Background(), "param p := 2;", nil)
	require.NoError(t, err)

	_, err = old.Value(context.Background(), nil)
	require.ErrorIs(t, err, errors.StaleEntity)

	res, err := d.ValueOf(context.Background(), "p", nil)
	require.NoError(t, err)
	require.Equal(t, 2.0, res.Scalar)
}

func TestUnknownEntityAndBadQuery(t *testing.T) {
	d := startDriver(t)
	_, err := d.Execute(context.Background(), "model demo;", nil)
	require.NoError(t, err)

	_, err = d.ValueOf(context.Background(), "missing", nil)
	require.ErrorIs(t, err, errors.UnknownEntity)

	_, err = d.ValueOf(context.Background(), "cost", display.Key{"zz"})
	require.ErrorIs(t, err, errors.MalformedResponse)
	require.False(t, errors.Fatal(err))
	require.Equal(t, session.Idle, d.State())
}

func TestInterruptedExecutionSkipsRefresh(t *testing.T) {
	d := startDriver(t)
	_, err := d.Execute(context.Background(), "model demo;", nil)
	require.NoError(t, err)
	before := d.Registry().Generation()

	ctx, cancel := context.WithCancel(context.Background())
	_, err = d.Execute(ctx, "sleep;", func(f protocol.Frame) {
		if f.Body == "sleeping\n" {
			cancel()
		}
	})
	require.ErrorIs(t, err, errors.Interrupted)
	require.Equal(t, before, d.Registry().Generation())
	require.Equal(t, session.Idle, d.State())
}

func TestBusyWhileExecuting(t *testing.T) {
	d := startDriver(t)
	started := make(chan struct{})
	res := make(chan error, 1)
	go func() {
		_, err := d.Execute(context.Background(), "sleep;", func(protocol.Frame) {
			select {
			case <-started:
			default:
				close(started)
			}
		})
		res <- err
	}()
	<-started

	_, err := d.ValueOf(context.Background(), "n", nil)
	require.ErrorIs(t, err, errors.SessionBusy)

	outcome, err := d.Interrupt(context.Background())
	require.NoError(t, err)
	require.Equal(t, session.OutcomeInterrupted, outcome)
	require.ErrorIs(t, <-res, errors.Interrupted)
}

func TestSessionOptionsFromConfig(t *testing.T) {
	cfg := config.Default().AMPL
	opts := SessionOptions(cfg, nil)
	require.Equal(t, "ampl", opts.Path)
	require.Equal(t, []string{"-g", "-b"}, opts.Args)
	require.Equal(t, 2*time.Second, opts.InterruptGrace)
}
