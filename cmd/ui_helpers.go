// Copyright (c) 2025 iampl
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"iampl/cli/internal/driver"
	"iampl/cli/internal/protocol"
	"iampl/cli/internal/render"
)

// source is one chunk of AMPL text to execute.
type source struct {
	name string
	code string
}

// readSources loads the named files, or stdin when there are none or the name is "-".
func readSources(args []string) ([]source, error) {
	if len(args) == 0 {
		args = []string{"-"}
	}
	var out []source
	for _, name := range args {
		var (
			b   []byte
			err error
		)
		if name == "-" {
			b, err = io.ReadAll(os.Stdin)
			name = "stdin"
		} else {
			b, err = os.ReadFile(name)
			name = filepath.Base(name)
		}
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", name, err)
		}
		out = append(out, source{name: name, code: string(b)})
	}
	return out, nil
}

// signalContext is cancelled on SIGINT or SIGTERM. A cancelled context interrupts the
// statement in flight.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// startDriver launches AMPL with the loaded config. The banner is echoed when echo is on.
func startDriver(ctx context.Context) (*driver.Driver, error) {
	d := driver.New(cfg.AMPL, logger)
	var sink protocol.Sink
	if cfg.Echo {
		sink = render.Echo(os.Stdout)
	}
	if _, err := d.Start(ctx, sink); err != nil {
		stopDriver(d)
		return nil, err
	}
	return d, nil
}

// stopDriver shuts AMPL down, bounded by the shutdown grace.
func stopDriver(d *driver.Driver) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*cfg.AMPL.ShutdownGrace+time.Second)
	defer cancel()
	if err := d.Shutdown(ctx); err != nil {
		logger.Warn("shutdown", logger.Args("error", err.Error()))
	}
}

// execute runs code and shows its output: streamed when echo is on, otherwise
// behind a spinner and printed once complete. Partial output of an interrupted
// statement is shown as well.
func execute(ctx context.Context, d *driver.Driver, label, code string) error {
	if cfg.Echo {
		_, err := d.Execute(ctx, code, render.Echo(os.Stdout))
		return err
	}
	sp := render.StartSpinner("running " + label)
	out, err := d.Execute(ctx, code, nil)
	elapsed := sp.Stop()
	fmt.Print(out)
	logger.Debug("executed", logger.Args("source", label, "elapsed", elapsed.Truncate(time.Millisecond).String()))
	return err
}
