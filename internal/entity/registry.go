// Copyright (c) 2025 iampl
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package entity tracks the named model entities (parameters, sets, variables,
// objectives, constraints) known to a running AMPL session.
//
// Handles never cache values: every read issues a fresh display query. A refresh
// replaces every handle, and handles from an earlier refresh report StaleEntity.
package entity

import (
	"context"
	"sort"
	"sync"

	"iampl/cli/internal/display"
	"iampl/cli/internal/errors"
	"iampl/cli/internal/protocol"

	"github.com/bmatcuk/doublestar/v4"
)

// Class is the AMPL built-in set that lists entities of one kind.
type Class string

const (
	Parameter  Class = "_PARS"
	Set        Class = "_SETS"
	Variable   Class = "_VARS"
	Objective  Class = "_OBJS"
	Constraint Class = "_CONS"
)

// Classes lists every class in refresh order.
var Classes = []Class{Parameter, Set, Variable, Objective, Constraint}

// Label returns a short human name for the class.
func (c Class) Label() string {
	switch c {
	case Parameter:
		return "param"
	case Set:
		return "set"
	case Variable:
		return "var"
	case Objective:
		return "objective"
	case Constraint:
		return "constraint"
	}
	return string(c)
}

// Querier runs one statement and returns its output. *session.Session satisfies it.
type Querier interface {
	Execute(ctx context.Context, code string, sink protocol.Sink) (string, error)
}

// Entity is a handle on one named entity as of a particular refresh.
type Entity struct {
	Name  string
	Class Class

	generation uint64
	reg        *Registry
}

// Generation returns the refresh that produced the handle.
func (e *Entity) Generation() uint64 { return e.generation }

// Stale reports whether a later refresh superseded the handle.
func (e *Entity) Stale() bool {
	cur, ok := e.reg.Get(e.Name)
	return !ok || cur.Generation() != e.Generation()
}

// Value queries the current value of the entity, or of one element of it when key is
// non-empty.
func (e *Entity) Value(ctx context.Context, key display.Key) (display.Result, error) {
	if e.Stale() {
		return display.Result{}, errors.Newf(errors.StaleEntity, "%s from refresh %d was replaced by refresh %d", e.Name, e.Generation(), e.reg.Generation())
	}
	out, err := e.reg.q.Execute(ctx, display.Query(e.Name, key), nil)
	if err != nil {
		return display.Result{}, err
	}
	return display.Decode(out)
}

// Registry maps entity names to their current handles.
type Registry struct {
	q Querier

	mu         sync.RWMutex
	entities   map[string]*Entity
	generation uint64
}

// NewRegistry returns an empty registry that queries through q.
func NewRegistry(q Querier) *Registry {
	return &Registry{q: q, entities: map[string]*Entity{}}
}

// Refresh lists every entity class and replaces all handles. On failure the registry
// keeps its previous contents.
func (r *Registry) Refresh(ctx context.Context) error {
	found := make(map[string]Class)
	for _, class := range Classes {
		out, err := r.q.Execute(ctx, display.Query(string(class), nil), nil)
		if err != nil {
			return err
		}
		res, err := display.Decode(out)
		if err != nil {
			return err
		}
		if res.Shape != display.ShapeKeySet {
			return errors.Newf(errors.MalformedResponse, "%s listed as %s, want a set", class, res.Shape)
		}
		for _, name := range res.Members() {
			found[name] = class
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.generation++
	next := make(map[string]*Entity, len(found))
	for name, class := range found {
		next[name] = &Entity{Name: name, Class: class, generation: r.generation, reg: r}
	}
	r.entities = next
	return nil
}

// Generation returns the number of successful refreshes.
func (r *Registry) Generation() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.generation
}

// Names returns every known entity name, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.entities))
	for name := range r.entities {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Get returns the current handle for name.
func (r *Registry) Get(name string) (*Entity, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entities[name]
	return e, ok
}

// All returns every current handle ordered by name.
func (r *Registry) All() []*Entity {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sortedLocked(func(*Entity) bool { return true })
}

// ByClass returns the current handles of one class ordered by name.
func (r *Registry) ByClass(c Class) []*Entity {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sortedLocked(func(e *Entity) bool { return e.Class == c })
}

// Match returns the current handles whose name matches a doublestar pattern such as
// "cost*" or "{x,y}".
func (r *Registry) Match(pattern string) ([]*Entity, error) {
	if !doublestar.ValidatePattern(pattern) {
		return nil, doublestar.ErrBadPattern
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sortedLocked(func(e *Entity) bool {
		ok, _ := doublestar.Match(pattern, e.Name)
		return ok
	}), nil
}

func (r *Registry) sortedLocked(keep func(*Entity) bool) []*Entity {
	var out []*Entity
	for _, e := range r.entities {
		if keep(e) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ValueOf reads the value of the entity currently registered under name.
func (r *Registry) ValueOf(ctx context.Context, name string, key display.Key) (display.Result, error) {
	e, ok := r.Get(name)
	if !ok {
		return display.Result{}, errors.Newf(errors.UnknownEntity, "no entity named %q", name)
	}
	return e.Value(ctx, key)
}
