// Copyright (c) 2025 iampl
// Licensed under the MIT License. See LICENSE file in the project root for details.

package rpc

import (
	"context"
	stderrors "errors"
	"net"
	"os"
	"testing"
	"time"

	"iampl/cli/internal/ampltest"
	"iampl/cli/internal/display"
	"iampl/cli/internal/driver"
	"iampl/cli/internal/errors"
	"iampl/cli/internal/session"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/test/bufconn"
)

func TestMain(m *testing.M) {
	ampltest.RunIfChild()
	os.Exit(m.Run())
}

func serve(t *testing.T) *Client {
	t.Helper()
	path, args, env := ampltest.Command()
	d := driver.NewWithSession(session.New(session.Options{
		Path:           path,
		Args:           args,
		Env:            env,
		InterruptGrace: 300 * time.Millisecond,
		ShutdownGrace:  time.Second,
	}), nil)
	_, err := d.Start(context.Background(), nil)
	require.NoError(t, err)

	lis := bufconn.Listen(1 << 20)
	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() { served <- Serve(ctx, lis, d, nil) }()

	c, err := Dial("passthrough:///bufnet", grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
		return lis.DialContext(ctx)
	}))
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = c.Close()
		cancel()
		require.NoError(t, <-served)
		_ = d.Shutdown(context.Background())
	})
	return c
}

func TestRemoteExecuteAndValues(t *testing.T) {
	c := serve(t)
	ctx := context.Background()

	state, err := c.State(ctx)
	require.NoError(t, err)
	require.Equal(t, "idle", state)

	_, err = c.Execute(ctx, "model demo;")
	require.NoError(t, err)
	out, err := c.Execute(ctx, "print hello;")
	require.NoError(t, err)
	require.Equal(t, "hello\n", out)

	list, err := c.Entities(ctx)
	require.NoError(t, err)
	require.Len(t, list, 7)
	require.Equal(t, EntityInfo{Name: "S", Class: "_SETS"}, list[0])

	v, err := c.ValueOf(ctx, "n", nil)
	require.NoError(t, err)
	require.Equal(t, "scalar", v["shape"])
	require.Equal(t, 3.0, v["value"])

	v, err = c.ValueOf(ctx, "cost", nil)
	require.NoError(t, err)
	require.Equal(t, "mapping", v["shape"])
	entries := v["entries"].([]any)
	require.Len(t, entries, 2)
	require.Equal(t, map[string]any{"key": []any{"b"}, "value": 2.0}, entries[1])

	v, err = c.ValueOf(ctx, "x", display.Key{"b"})
	require.NoError(t, err)
	require.Equal(t, 4.0, v["value"])
}

func TestRemoteErrorsKeepKind(t *testing.T) {
	c := serve(t)
	ctx := context.Background()

	_, err := c.ValueOf(ctx, "nope", nil)
	require.True(t, stderrors.Is(err, errors.UnknownEntity), "got %v", err)

	_, err = c.ValueOf(ctx, "", nil)
	require.Error(t, err)
	require.Equal(t, errors.Kind(""), errors.KindOf(err))
}

func TestRemoteInterrupt(t *testing.T) {
	c := serve(t)
	ctx := context.Background()

	type result struct {
		out string
		err error
	}
	done := make(chan result, 1)
	go func() {
		out, err := c.Execute(ctx, "sleep;")
		done <- result{out, err}
	}()

	require.Eventually(t, func() bool {
		s, err := c.State(ctx)
		return err == nil && s == "executing"
	}, 5*time.Second, 10*time.Millisecond)
	time.Sleep(100 * time.Millisecond)

	outcome, err := c.Interrupt(ctx)
	require.NoError(t, err)
	require.Equal(t, "interrupted", outcome)

	r := <-done
	require.True(t, stderrors.Is(r.err, errors.Interrupted))
	require.Equal(t, "sleeping\ninterrupted\n", r.out)

	outcome, err = c.Interrupt(ctx)
	require.NoError(t, err)
	require.Equal(t, "idle", outcome)
}

func TestCodeFor(t *testing.T) {
	tests := []struct {
		kind errors.Kind
		want codes.Code
	}{
		{errors.SessionBusy, codes.Aborted},
		{errors.UnknownEntity, codes.NotFound},
		{errors.StreamDesync, codes.Unavailable},
		{errors.Interrupted, codes.Canceled},
		{errors.Kind("other"), codes.Unknown},
	}
	for _, tt := range tests {
		if got := codeFor(tt.kind); got != tt.want {
			t.Errorf("codeFor(%s) = %v, want %v", tt.kind, got, tt.want)
		}
	}
}
