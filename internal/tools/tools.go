package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/xeipuuv/gojsonschema"

	"github.com/moorebrett0/vernacular/internal/chat"
	"github.com/moorebrett0/vernacular/internal/fault"
)

// Kind is the closed set of tool variants the dispatcher knows about.
type Kind int

const (
	KindNoop Kind = iota
	KindGovernmentScheme
)

// handler runs a tool. A returned error becomes an error result.
type handler func(ctx context.Context, input json.RawMessage) (any, error)

type tool struct {
	kind   Kind
	spec   chat.ToolSpec
	schema *gojsonschema.Schema
	run    handler
}

// Dispatcher declares tools to the reasoning backend and executes them.
type Dispatcher struct {
	tools   map[string]*tool
	order   []string
	timeout time.Duration
}

func newDispatcher(timeout time.Duration) *Dispatcher {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Dispatcher{
		tools:   make(map[string]*tool),
		timeout: timeout,
	}
}

// register adds a tool. The input schema is static, so a schema that
// does not compile is a programming error.
func (d *Dispatcher) register(kind Kind, spec chat.ToolSpec, run handler) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(spec.InputSchema))
	if err != nil {
		panic(fmt.Sprintf("tools: invalid schema for %s: %v", spec.Name, err))
	}
	d.tools[spec.Name] = &tool{kind: kind, spec: spec, schema: schema, run: run}
	d.order = append(d.order, spec.Name)
}

// Specs returns the declared tools in registration order.
func (d *Dispatcher) Specs() []chat.ToolSpec {
	specs := make([]chat.ToolSpec, 0, len(d.order))
	for _, name := range d.order {
		specs = append(specs, d.tools[name].spec)
	}
	return specs
}

// Lookup resolves a tool name to its kind. Unknown names are KindNoop.
func (d *Dispatcher) Lookup(name string) Kind {
	if t, ok := d.tools[name]; ok {
		return t.kind
	}
	return KindNoop
}

// Dispatch executes a tool invocation. It returns false for unknown tool
// names and does nothing for them. Known tools always produce a result:
// failures, including panics, come back as error results.
func (d *Dispatcher) Dispatch(ctx context.Context, use chat.ToolUse) (result chat.ToolResult, ok bool) {
	t, found := d.tools[use.Name]
	if !found {
		slog.Warn("tools: ignoring unknown tool", "name", use.Name, "id", use.ID)
		return chat.ToolResult{}, false
	}

	defer func() {
		if r := recover(); r != nil {
			slog.Error("tools: handler panicked", "name", use.Name, "panic", r)
			result = errorResult(use, fault.ToolExecution(use.Name, fmt.Errorf("panic: %v", r)))
			ok = true
		}
	}()

	if err := validateInput(t.schema, use.Input); err != nil {
		slog.Warn("tools: invalid input", "name", use.Name, "err", err)
		return errorResult(use, err), true
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	out, err := t.run(ctx, use.Input)
	if err != nil {
		slog.Error("tools: execution failed", "name", use.Name, "err", err)
		return errorResult(use, err), true
	}

	slog.Info("tools: executed", "name", use.Name, "id", use.ID)
	return okResult(use, out), true
}

func validateInput(schema *gojsonschema.Schema, input json.RawMessage) error {
	if len(input) == 0 {
		input = json.RawMessage("{}")
	}
	res, err := schema.Validate(gojsonschema.NewBytesLoader(input))
	if err != nil {
		return fmt.Errorf("invalid tool input: %w", err)
	}
	if !res.Valid() {
		var problems []string
		for _, e := range res.Errors() {
			problems = append(problems, e.String())
		}
		return fmt.Errorf("invalid tool input: %s", strings.Join(problems, "; "))
	}
	return nil
}

// okResult wraps a handler's output the way the backend expects it:
// {"result": "Tool Result: <json>"}.
func okResult(use chat.ToolUse, out any) chat.ToolResult {
	encoded, err := json.Marshal(out)
	if err != nil {
		return errorResult(use, fmt.Errorf("encode tool output: %w", err))
	}
	payload, _ := json.Marshal(map[string]string{"result": "Tool Result: " + string(encoded)})
	return chat.ToolResult{
		ToolUseID: use.ID,
		Name:      use.Name,
		Payload:   payload,
		Status:    chat.ToolOK,
	}
}

func errorResult(use chat.ToolUse, err error) chat.ToolResult {
	payload, _ := json.Marshal(map[string]string{"error": "Tool Result: " + userMessage(err)})
	return chat.ToolResult{
		ToolUseID: use.ID,
		Name:      use.Name,
		Payload:   payload,
		Status:    chat.ToolError,
	}
}

// userMessage hides transport detail behind the classified message.
func userMessage(err error) string {
	switch fault.KindOf(err) {
	case fault.KindTransport:
		return "Failed to retrieve information due to internal error."
	default:
		return fault.Message(err)
	}
}
