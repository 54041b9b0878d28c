// Copyright (c) 2025 iampl
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package driver is the entry point for hosts embedding AMPL: it pairs a process
// session with the entity registry and keeps the registry current after every
// statement.
package driver

import (
	"context"
	"sync"
	"time"

	"iampl/cli/internal/config"
	"iampl/cli/internal/display"
	"iampl/cli/internal/entity"
	"iampl/cli/internal/errors"
	"iampl/cli/internal/logging"
	"iampl/cli/internal/protocol"
	"iampl/cli/internal/session"

	"github.com/pterm/pterm"
)

// Driver runs statements and reads entity values over one AMPL session.
type Driver struct {
	sess *session.Session
	reg  *entity.Registry
	log  *pterm.Logger

	// busy covers a statement together with the refresh that follows it.
	busy sync.Mutex
}

// SessionOptions maps the ampl config section onto session options.
func SessionOptions(cfg config.AMPL, log *pterm.Logger) session.Options {
	return session.Options{
		Path:           cfg.Path,
		Args:           cfg.Args,
		Dir:            cfg.Dir,
		InterruptGrace: cfg.InterruptGrace,
		ShutdownGrace:  cfg.ShutdownGrace,
		Logger:         log,
	}
}

// New returns a driver for the configured executable. Nothing is started yet.
func New(cfg config.AMPL, log *pterm.Logger) *Driver {
	return NewWithSession(session.New(SessionOptions(cfg, log)), log)
}

// NewWithSession wraps an existing unstarted session.
func NewWithSession(s *session.Session, log *pterm.Logger) *Driver {
	if log == nil {
		log = logging.Discard()
	}
	return &Driver{sess: s, reg: entity.NewRegistry(s), log: log}
}

// Session exposes the underlying session.
func (d *Driver) Session() *session.Session { return d.sess }

// Registry exposes the entity registry.
func (d *Driver) Registry() *entity.Registry { return d.reg }

// State returns the session state.
func (d *Driver) State() session.State { return d.sess.State() }

// Start launches AMPL and loads the initial entity list. The banner is returned and
// also streamed to sink.
func (d *Driver) Start(ctx context.Context, sink protocol.Sink) (string, error) {
	if !d.busy.TryLock() {
		return "", errors.New(errors.SessionBusy, "another request is outstanding")
	}
	defer d.busy.Unlock()

	banner, err := d.sess.Start(ctx, sink)
	if err != nil {
		return banner, err
	}
	d.log.Info("ampl session started", d.log.Args("pid", d.sess.Pid()))
	return banner, d.reg.Refresh(ctx)
}

// Execute runs code and then refreshes the entity registry. An interrupted statement
// returns its partial output with an Interrupted error and leaves the registry as it
// was.
func (d *Driver) Execute(ctx context.Context, code string, sink protocol.Sink) (string, error) {
	if !d.busy.TryLock() {
		return "", errors.New(errors.SessionBusy, "another request is outstanding")
	}
	defer d.busy.Unlock()

	started := time.Now()
	out, err := d.sess.Execute(ctx, code, sink)
	d.log.Debug("statement finished", d.log.Args("elapsed", time.Since(started).String(), "bytes", len(out)))
	if err != nil {
		return out, err
	}
	if err := d.reg.Refresh(ctx); err != nil {
		return out, err
	}
	return out, nil
}

// Refresh reloads the entity list without running anything else.
func (d *Driver) Refresh(ctx context.Context) error {
	if !d.busy.TryLock() {
		return errors.New(errors.SessionBusy, "another request is outstanding")
	}
	defer d.busy.Unlock()
	return d.reg.Refresh(ctx)
}

// Interrupt stops the statement in flight. It never waits for the driver lock.
func (d *Driver) Interrupt(ctx context.Context) (session.InterruptOutcome, error) {
	outcome, err := d.sess.Interrupt(ctx)
	if outcome != session.OutcomeIdle {
		d.log.Info("interrupt", d.log.Args("outcome", outcome.String()))
	}
	return outcome, err
}

// Shutdown stops AMPL. It is safe to call more than once.
func (d *Driver) Shutdown(ctx context.Context) error {
	return d.sess.Shutdown(ctx)
}

// EntityNames returns the names known after the last refresh, sorted.
func (d *Driver) EntityNames() []string { return d.reg.Names() }

// Entities returns every current entity handle ordered by name.
func (d *Driver) Entities() []*entity.Entity { return d.reg.All() }

// Entity returns the current handle for name.
func (d *Driver) Entity(name string) (*entity.Entity, bool) { return d.reg.Get(name) }

// Match returns the entities whose names match a glob pattern.
func (d *Driver) Match(pattern string) ([]*entity.Entity, error) { return d.reg.Match(pattern) }

// ValueOf reads the current value of name, or of one element of it.
func (d *Driver) ValueOf(ctx context.Context, name string, key display.Key) (display.Result, error) {
	if !d.busy.TryLock() {
		return display.Result{}, errors.New(errors.SessionBusy, "another request is outstanding")
	}
	defer d.busy.Unlock()
	return d.reg.ValueOf(ctx, name, key)
}
