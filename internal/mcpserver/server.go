// Copyright (c) 2025 iampl
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package mcpserver offers an AMPL session to assistants as Model Context Protocol
// tools: execute, entities, value and interrupt.
package mcpserver

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"

	"iampl/cli/internal/display"
	"iampl/cli/internal/driver"
	"iampl/cli/internal/errors"
	"iampl/cli/internal/logging"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/pterm/pterm"
)

// ExecuteInput holds the arguments of the execute tool.
type ExecuteInput struct {
	Code string `json:"code" jsonschema:"AMPL statements to run, each terminated by a semicolon"`
}

// ExecuteOutput is the captured output of execute. Interrupted is set when the statement was cut short.
type ExecuteOutput struct {
	Output      string `json:"output"`
	Interrupted bool   `json:"interrupted"`
}

// EntitiesInput holds the optional name filter of the entities tool.
type EntitiesInput struct {
	Match string `json:"match,omitempty" jsonschema:"glob pattern on entity names, e.g. cost* or x_{a,b}"`
}

// EntityOutput describes one entity by name and class.
type EntityOutput struct {
	Name  string `json:"name"`
	Class string `json:"class"`
}

// EntitiesOutput lists the entities known after the last refresh.
type EntitiesOutput struct {
	Entities []EntityOutput `json:"entities"`
}

// ValueInput names the entity, and optionally the element, read by the value tool.
type ValueInput struct {
	Name string   `json:"name" jsonschema:"entity name"`
	Key  []string `json:"key,omitempty" jsonschema:"key components selecting one element"`
}

// ValueOutput carries a decoded display result as JSON-friendly values.
type ValueOutput struct {
	Result map[string]any `json:"result"`
}

// InterruptInput is the empty argument object of the interrupt tool.
type InterruptInput struct{}

// InterruptOutput reports how far the interrupt had to escalate.
type InterruptOutput struct {
	Outcome string `json:"outcome"`
}

type tools struct {
	d   *driver.Driver
	log *pterm.Logger
}

// New returns an MCP server whose tools run against d. The driver must be started.
func New(d *driver.Driver, version string, log *pterm.Logger) *mcp.Server {
	if log == nil {
		log = logging.Discard()
	}
	t := &tools{d: d, log: log}
	s := mcp.NewServer(&mcp.Implementation{Name: "iampl", Version: version}, nil)

	mcp.AddTool(s, &mcp.Tool{
		Name:        "execute",
		Description: "Run AMPL statements in the shared session and return their output.",
	}, t.execute)
	mcp.AddTool(s, &mcp.Tool{
		Name:        "entities",
		Description: "List the parameters, sets, variables, objectives and constraints currently defined.",
		Annotations: &mcp.ToolAnnotations{ReadOnlyHint: true},
	}, t.entities)
	mcp.AddTool(s, &mcp.Tool{
		Name:        "value",
		Description: "Read the current value of an entity, or of one element when key is given.",
		Annotations: &mcp.ToolAnnotations{ReadOnlyHint: true},
	}, t.value)
	mcp.AddTool(s, &mcp.Tool{
		Name:        "interrupt",
		Description: "Interrupt the statement currently running.",
	}, t.interrupt)
	return s
}

// Run serves the tools on stdin/stdout until the client disconnects or ctx is done.
func Run(ctx context.Context, d *driver.Driver, version string, log *pterm.Logger) error {
	return New(d, version, log).Run(ctx, &mcp.StdioTransport{})
}

func text(s string) *mcp.CallToolResult {
	return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: s}}}
}

func (t *tools) execute(ctx context.Context, _ *mcp.CallToolRequest, in ExecuteInput) (*mcp.CallToolResult, ExecuteOutput, error) {
	out, err := t.d.Execute(ctx, in.Code, nil)
	interrupted := stderrors.Is(err, errors.Interrupted)
	if err != nil && !interrupted {
		t.log.Warn("execute failed", t.log.Args("error", err.Error()))
		return nil, ExecuteOutput{}, err
	}
	return text(out), ExecuteOutput{Output: out, Interrupted: interrupted}, nil
}

func (t *tools) entities(_ context.Context, _ *mcp.CallToolRequest, in EntitiesInput) (*mcp.CallToolResult, EntitiesOutput, error) {
	list := t.d.Entities()
	if in.Match != "" {
		var err error
		if list, err = t.d.Match(in.Match); err != nil {
			return nil, EntitiesOutput{}, err
		}
	}
	out := EntitiesOutput{Entities: make([]EntityOutput, 0, len(list))}
	for _, e := range list {
		out.Entities = append(out.Entities, EntityOutput{Name: e.Name, Class: e.Class.Label()})
	}
	b, err := json.Marshal(out)
	if err != nil {
		return nil, EntitiesOutput{}, err
	}
	return text(string(b)), out, nil
}

func (t *tools) value(ctx context.Context, _ *mcp.CallToolRequest, in ValueInput) (*mcp.CallToolResult, ValueOutput, error) {
	if in.Name == "" {
		return nil, ValueOutput{}, fmt.Errorf("name is required")
	}
	res, err := t.d.ValueOf(ctx, in.Name, display.Key(in.Key))
	if err != nil {
		return nil, ValueOutput{}, err
	}
	m := res.AsMap()
	b, err := json.Marshal(m)
	if err != nil {
		return nil, ValueOutput{}, err
	}
	return text(string(b)), ValueOutput{Result: m}, nil
}

func (t *tools) interrupt(ctx context.Context, _ *mcp.CallToolRequest, _ InterruptInput) (*mcp.CallToolResult, InterruptOutput, error) {
	outcome, err := t.d.Interrupt(ctx)
	if err != nil {
		return nil, InterruptOutput{}, err
	}
	return text(outcome.String()), InterruptOutput{Outcome: outcome.String()}, nil
}
