// Copyright (c) 2025 iampl
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package ampltest provides a scripted stand-in for `ampl -g` that speaks the framed
// protocol on its standard streams. Tests spawn their own binary as the child:
//
//	func TestMain(m *testing.M) {
//		ampltest.RunIfChild()
//		os.Exit(m.Run())
//	}
//
// and point the session at ampltest.Command().
//
// Besides plain statements (answered with nothing but a prompt) the fake understands:
//
//	model demo;          load a small model with one entity of every class
//	reset;               drop every entity
//	param NAME := NUM;   define or replace a scalar parameter
//	print TEXT;          emit TEXT as output
//	chatty N;            emit N output frames
//	sleep;               block until SIGINT, then report the interruption
//	deaf;                ignore SIGINT and block
//	stubborn;            ignore SIGINT and SIGTERM and block
//	garbage;             write bytes that are not a frame
//	exit;                exit in the middle of a response
//	_display ...;        answer display queries from the model
package ampltest

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"time"

	"iampl/cli/internal/protocol"
)

// EnvVar marks a process spawned as the fake child.
const EnvVar = "IAMPL_FAKE_AMPL"

// Banner is the startup output of the fake child.
const Banner = "ampltest fake AMPL\n"

// RunIfChild serves the protocol on stdin/stdout and exits when the current process
// was spawned by Command. It returns immediately otherwise.
func RunIfChild() {
	if os.Getenv(EnvVar) != "1" {
		return
	}
	os.Exit(Serve(os.Stdin, os.Stdout))
}

// Command returns the executable, arguments and extra environment that spawn the
// running test binary as a fake child.
func Command() (path string, args []string, env []string) {
	exe, err := os.Executable()
	if err != nil {
		exe = os.Args[0]
	}
	return exe, []string{"-test.run=^$"}, []string{EnvVar + "=1"}
}

type entity struct {
	class    string
	keyCols  int
	dataCols int
	rows     []string
	scalar   string
}

var classes = []string{"_PARS", "_SETS", "_VARS", "_OBJS", "_CONS"}

func demoModel() map[string]*entity {
	return map[string]*entity{
		"S":     {class: "_SETS", keyCols: 1, rows: []string{"a", "b"}},
		"cost":  {class: "_PARS", keyCols: 1, dataCols: 1, rows: []string{"a,1.5", "b,2"}},
		"label": {class: "_PARS", keyCols: 1, dataCols: 1, rows: []string{"a,north", "b,south"}},
		"n":     {class: "_PARS", scalar: "3"},
		"x":     {class: "_VARS", keyCols: 1, dataCols: 1, rows: []string{"a,0", "b,4"}},
		"total": {class: "_OBJS", scalar: "8"},
		"cap":   {class: "_CONS", keyCols: 1, dataCols: 1, rows: []string{"a,0.5", "b,0"}},
	}
}

type child struct {
	w      *protocol.Writer
	raw    io.Writer
	model  map[string]*entity
	sigint chan os.Signal
}

// Serve runs the fake child until r is exhausted and returns the exit code.
func Serve(r io.Reader, w io.Writer) int {
	c := &child{
		w:      protocol.NewWriter(w),
		raw:    w,
		model:  map[string]*entity{},
		sigint: make(chan os.Signal, 1),
	}
	signal.Notify(c.sigint, os.Interrupt)

	c.out("print", Banner)
	c.prompt()

	fr := protocol.NewReader(bufio.NewReader(r))
	for {
		f, err := fr.ReadFrame()
		if err != nil {
			return 0
		}
		stmt := f.Command
		if f.Body != "" {
			stmt += "\n" + f.Body
		}
		if code, done := c.handle(strings.TrimSpace(stmt)); done {
			return code
		}
		c.prompt()
	}
}

func (c *child) out(command, body string) {
	_ = c.w.WriteFrame(protocol.Frame{Command: command, Body: body})
}

func (c *child) prompt() { c.out("prompt1", "ampl: ") }

func (c *child) handle(stmt string) (int, bool) {
	stmt = strings.TrimSuffix(stmt, ";")
	verb, arg, _ := strings.Cut(stmt, " ")
	arg = strings.TrimSpace(arg)

	switch verb {
	case "model":
		if arg == "demo" {
			c.model = demoModel()
		}
	case "reset":
		c.model = map[string]*entity{}
	case "param":
		name, val, ok := strings.Cut(arg, ":=")
		if !ok {
			c.out("error", "syntax error\n")
			break
		}
		c.model[strings.TrimSpace(name)] = &entity{class: "_PARS", scalar: strings.TrimSpace(val)}
	case "print":
		c.out("print", arg+"\n")
	case "chatty":
		n, _ := strconv.Atoi(arg)
		for i := 0; i < n; i++ {
			c.out("print", fmt.Sprintf("line %d\n", i))
		}
	case "sleep":
		c.drain()
		c.out("print", "sleeping\n")
		select {
		case <-c.sigint:
			c.out("error", "interrupted\n")
		case <-time.After(time.Minute):
		}
	case "deaf":
		signal.Ignore(os.Interrupt)
		c.out("print", "deaf\n")
		time.Sleep(time.Minute)
	case "stubborn":
		signal.Ignore(os.Interrupt, syscall.SIGTERM)
		c.out("print", "stubborn\n")
		time.Sleep(time.Minute)
	case "garbage":
		_, _ = io.WriteString(c.raw, "x!not a frame")
		time.Sleep(time.Minute)
	case "exit":
		c.out("print", "bye\n")
		return 3, true
	case "_display":
		c.display(arg)
	}
	return 0, false
}

func (c *child) drain() {
	for {
		select {
		case <-c.sigint:
		default:
			return
		}
	}
}

func (c *child) display(what string) {
	for _, class := range classes {
		if what == class {
			var names []string
			for name, e := range c.model {
				if e.class == class {
					names = append(names, name)
				}
			}
			sort.Strings(names)
			c.table(class, 1, 0, names)
			return
		}
	}

	name, sub, keyed := strings.Cut(what, "[")
	e, ok := c.model[name]
	if !ok {
		c.out("error", name+" is not defined\n")
		return
	}
	if !keyed {
		if e.keyCols == 0 {
			c.table(name, 0, 0, []string{e.scalar})
			return
		}
		c.table(name, e.keyCols, e.dataCols, e.rows)
		return
	}

	var parts []string
	for _, p := range strings.Split(strings.TrimSuffix(sub, "]"), ",") {
		p = strings.TrimSpace(p)
		if strings.HasPrefix(p, "'") {
			p = strings.ReplaceAll(strings.Trim(p, "'"), "''", "'")
		}
		parts = append(parts, p)
	}
	prefix := strings.Join(parts, ",") + ","
	for _, row := range e.rows {
		if strings.HasPrefix(row, prefix) {
			c.table(what, 0, 0, []string{strings.TrimPrefix(row, prefix)})
			return
		}
	}
	c.out("error", what+" invalid subscript\n")
}

func (c *child) table(name string, keyCols, dataCols int, rows []string) {
	var b strings.Builder
	fmt.Fprintf(&b, "_display %d %d %d\n%s\n", keyCols, dataCols, len(rows), name)
	for _, row := range rows {
		b.WriteString(row)
		b.WriteByte('\n')
	}
	c.out("_display", b.String())
}
