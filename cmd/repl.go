// Copyright (c) 2025 iampl
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"bufio"
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync/atomic"

	"iampl/cli/internal/display"
	"iampl/cli/internal/driver"
	"iampl/cli/internal/errors"
	"iampl/cli/internal/logging"
	"iampl/cli/internal/render"
	"iampl/cli/internal/xdg"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

const replHelp = `Statements are sent once a line ends with ';'.
  :entities [PATTERN]   list entities, optionally filtered by a glob
  :show NAME [KEY]      print the value of NAME, or of NAME[KEY] (KEY is a,b,...)
  :help                 show this help
  :quit                 leave (Ctrl-D works too)
Ctrl-C interrupts a running statement and discards a partly typed one.`

// replCmd keeps one AMPL session open and reads statements interactively.
var replCmd = &cobra.Command{
	Use:   "repl",
	Short: "Start an interactive AMPL session",
	Long: `The repl command starts AMPL and reads statements from the terminal. Lines are
collected until one ends with ';' and then executed. Meta commands start with ':'.

` + replHelp,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		d, err := startDriver(ctx)
		if err != nil {
			return err
		}
		defer stopDriver(d)

		r := newREPL(d, os.Stdout)
		if hist, err := openHistory(); err == nil {
			defer hist.Close()
			r.history = hist
		} else {
			logger.Debug("history disabled", logger.Args("error", err.Error()))
		}
		sigs := make(chan os.Signal, 1)
		signal.Notify(sigs, os.Interrupt)
		defer signal.Stop(sigs)
		go func() {
			for range sigs {
				r.onInterrupt(ctx)
			}
		}()

		return r.run(ctx, os.Stdin)
	},
}

type repl struct {
	d         *driver.Driver
	out       io.Writer
	history   io.Writer
	pending   strings.Builder
	executing atomic.Bool
	discard   atomic.Bool
}

func newREPL(d *driver.Driver, out io.Writer) *repl {
	return &repl{d: d, out: out}
}

// onInterrupt interrupts a running statement, or drops the statement being typed.
func (r *repl) onInterrupt(ctx context.Context) {
	if r.executing.Load() {
		outcome, err := r.d.Interrupt(ctx)
		if err != nil {
			logger.Warn("interrupt failed", logger.Args("error", err.Error()))
			return
		}
		logger.Debug("interrupt", logger.Args("outcome", outcome.String()))
		return
	}
	r.discard.Store(true)
	fmt.Fprintln(r.out, "^C (type :quit to leave)")
}

func (r *repl) prompt() string {
	if r.pending.Len() > 0 {
		return "    > "
	}
	return "ampl: "
}

// run reads in until EOF or :quit. Fatal session errors end the loop; other errors
// are shown and the loop continues.
func (r *repl) run(ctx context.Context, in io.Reader) error {
	sc := bufio.NewScanner(in)
	for {
		fmt.Fprint(r.out, r.prompt())
		if !sc.Scan() {
			fmt.Fprintln(r.out)
			return sc.Err()
		}
		if r.discard.Swap(false) {
			r.pending.Reset()
		}
		quit, err := r.line(ctx, sc.Text())
		if err != nil {
			if errors.Fatal(err) {
				return err
			}
			r.report(err)
		}
		if quit {
			return nil
		}
	}
}

// line handles one input line.
func (r *repl) line(ctx context.Context, text string) (bool, error) {
	trimmed := strings.TrimSpace(text)
	if r.pending.Len() == 0 && strings.HasPrefix(trimmed, ":") {
		return r.meta(ctx, trimmed)
	}
	if trimmed == "" && r.pending.Len() == 0 {
		return false, nil
	}
	r.pending.WriteString(text)
	r.pending.WriteByte('\n')
	if !strings.HasSuffix(trimmed, ";") {
		return false, nil
	}

	code := r.pending.String()
	r.pending.Reset()
	if r.history != nil {
		_, _ = io.WriteString(r.history, code)
	}
	r.executing.Store(true)
	_, err := r.d.Execute(ctx, code, render.Echo(r.out))
	r.executing.Store(false)
	return false, err
}

func (r *repl) meta(ctx context.Context, cmdline string) (bool, error) {
	fields := strings.Fields(cmdline)
	switch fields[0] {
	case ":quit", ":q", ":exit":
		return true, nil
	case ":help", ":h":
		fmt.Fprintln(r.out, replHelp)
	case ":entities", ":e":
		list := r.d.Entities()
		if len(fields) > 1 {
			var err error
			if list, err = r.d.Match(fields[1]); err != nil {
				return false, err
			}
		}
		table, err := render.Entities(list)
		if err != nil {
			return false, err
		}
		fmt.Fprintln(r.out, table)
	case ":show", ":s":
		if len(fields) < 2 {
			return false, fmt.Errorf("usage: :show NAME [KEY]")
		}
		var key display.Key
		if len(fields) > 2 {
			key = display.ParseKey(strings.Join(fields[2:], ""))
			whole, err := r.d.ValueOf(ctx, fields[1], nil)
			if err != nil {
				return false, err
			}
			if !whole.Contains(key) {
				return false, fmt.Errorf("%s has no element %s", fields[1], key.Subscript())
			}
		}
		res, err := r.d.ValueOf(ctx, fields[1], key)
		if err != nil {
			return false, err
		}
		text, err := render.Value(res)
		if err != nil {
			return false, err
		}
		fmt.Fprint(r.out, text)
	default:
		return false, fmt.Errorf("unknown command %s (try :help)", fields[0])
	}
	return false, nil
}

// openHistory opens the append-only statement log in the XDG state dir.
func openHistory() (*os.File, error) {
	dir, err := xdg.StateDir()
	if err != nil {
		return nil, err
	}
	return os.OpenFile(filepath.Join(dir, "history"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
}

func (r *repl) report(err error) {
	if stderrors.Is(err, errors.Interrupted) {
		fmt.Fprintln(r.out, pterm.NewStyle(pterm.FgYellow).Sprint("interrupted"))
		return
	}
	fmt.Fprintln(r.out, pterm.NewStyle(pterm.FgRed).Sprint(logging.PresentError("", err)))
}

func init() {
	rootCmd.AddCommand(replCmd)
}
