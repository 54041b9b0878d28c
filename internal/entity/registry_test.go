// Copyright (c) 2025 iampl
// Licensed under the MIT License. See LICENSE file in the project root for details.

package entity

import (
	"context"
	stderrors "errors"
	"strconv"
	"testing"

	"iampl/cli/internal/display"
	"iampl/cli/internal/errors"
	"iampl/cli/internal/protocol"

	"github.com/stretchr/testify/require"
)

// scripted answers display queries from a table and records what was asked.
type scripted struct {
	answers map[string]string
	fail    map[string]error
	asked   []string
}

func (s *scripted) Execute(_ context.Context, code string, _ protocol.Sink) (string, error) {
	s.asked = append(s.asked, code)
	if err, ok := s.fail[code]; ok {
		return "", err
	}
	if out, ok := s.answers[code]; ok {
		return out, nil
	}
	return "", nil
}

func listing(class string, names ...string) string {
	out := "_display 1 0 " + strconv.Itoa(len(names)) + "\n" + class + "\n"
	for _, n := range names {
		out += n + "\n"
	}
	return out
}

func newScripted() *scripted {
	return &scripted{
		answers: map[string]string{
			"_display _PARS;":     listing("_PARS", "cost", "n"),
			"_display _SETS;":     listing("_SETS", "S"),
			"_display _VARS;":     listing("_VARS", "x"),
			"_display _OBJS;":     listing("_OBJS", "total"),
			"_display _CONS;":     listing("_CONS"),
			"_display n;":         "_display 0 0 1\nn\n3\n",
			"_display cost;":      "_display 1 1 2\ncost\na,1.5\nb,2\n",
			"_display cost['a'];": "_display 0 0 1\ncost['a']\n1.5\n",
		},
		fail: map[string]error{},
	}
}

func TestRefreshListsEveryClass(t *testing.T) {
	q := newScripted()
	r := NewRegistry(q)
	require.NoError(t, r.Refresh(context.Background()))

	require.Equal(t, []string{"S", "cost", "n", "total", "x"}, r.Names())
	require.Equal(t, []string{
		"_display _PARS;", "_display _SETS;", "_display _VARS;", "_display _OBJS;", "_display _CONS;",
	}, q.asked)

	e, ok := r.Get("x")
	require.True(t, ok)
	require.Equal(t, Variable, e.Class)
	require.Equal(t, "var", e.Class.Label())
	require.Equal(t, uint64(1), e.Generation())

	params := r.ByClass(Parameter)
	require.Len(t, params, 2)
	require.Equal(t, "cost", params[0].Name)
	require.Empty(t, r.ByClass(Constraint))
	require.Len(t, r.All(), 5)
}

func TestValueIsNeverCached(t *testing.T) {
	q := newScripted()
	r := NewRegistry(q)
	require.NoError(t, r.Refresh(context.Background()))
	q.asked = nil

	e, _ := r.Get("n")
	v, err := e.Value(context.Background(), nil)
	require.NoError(t, err)
	require.Equal(t, 3.0, v.Scalar)

	q.answers["_display n;"] = "_display 0 0 1\nn\n4\n"
	v, err = e.Value(context.Background(), nil)
	require.NoError(t, err)
	require.Equal(t, 4.0, v.Scalar)
	require.Equal(t, []string{"_display n;", "_display n;"}, q.asked)
}

func TestValueOfKey(t *testing.T) {
	r := NewRegistry(newScripted())
	require.NoError(t, r.Refresh(context.Background()))

	v, err := r.ValueOf(context.Background(), "cost", display.Key{"a"})
	require.NoError(t, err)
	require.Equal(t, display.ShapeScalar, v.Shape)
	require.Equal(t, 1.5, v.Scalar)

	v, err = r.ValueOf(context.Background(), "cost", nil)
	require.NoError(t, err)
	require.Equal(t, 2, v.Len())
}

func TestValueOfUnknown(t *testing.T) {
	r := NewRegistry(newScripted())
	require.NoError(t, r.Refresh(context.Background()))
	_, err := r.ValueOf(context.Background(), "nope", nil)
	require.ErrorIs(t, err, errors.UnknownEntity)
}

func TestRefreshMakesOldHandlesStale(t *testing.T) {
	q := newScripted()
	r := NewRegistry(q)
	require.NoError(t, r.Refresh(context.Background()))

	old, _ := r.Get("n")
	gone, _ := r.Get("x")
	require.False(t, old.Stale())

	q.answers["_display _VARS;"] = listing("_VARS")
	require.NoError(t, r.Refresh(context.Background()))

	_, err := old.Value(context.Background(), nil)
	require.ErrorIs(t, err, errors.StaleEntity)
	require.ErrorContains(t, err, "n from refresh 1 was replaced by refresh 2")
	require.True(t, gone.Stale())
	_, ok := r.Get("x")
	require.False(t, ok)

	fresh, ok := r.Get("n")
	require.True(t, ok)
	require.NotSame(t, old, fresh)
	require.Equal(t, uint64(2), fresh.Generation())

	v, err := fresh.Value(context.Background(), nil)
	require.NoError(t, err)
	require.Equal(t, 3.0, v.Scalar)
}

func TestRefreshFailureKeepsRegistry(t *testing.T) {
	q := newScripted()
	r := NewRegistry(q)
	require.NoError(t, r.Refresh(context.Background()))
	before, _ := r.Get("n")

	q.fail["_display _OBJS;"] = stderrors.New("boom")
	require.Error(t, r.Refresh(context.Background()))
	require.False(t, before.Stale())
	require.Equal(t, uint64(1), r.Generation())

	delete(q.fail, "_display _OBJS;")
	q.answers["_display _SETS;"] = "_display 0 0 1\n_SETS\n1\n"
	err := r.Refresh(context.Background())
	require.ErrorIs(t, err, errors.MalformedResponse)
}

func TestMatch(t *testing.T) {
	r := NewRegistry(newScripted())
	require.NoError(t, r.Refresh(context.Background()))

	got, err := r.Match("{cost,total}")
	require.NoError(t, err)
	require.Len(t, got, 2)

	got, err = r.Match("c*")
	require.NoError(t, err)
	require.Len(t, got, 1)

	_, err = r.Match("[")
	require.Error(t, err)
}
