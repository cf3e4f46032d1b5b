package record

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
)

// Wire structs mirror the JSON layout exactly. They carry no methods so the
// codec below can marshal them without recursing into itself.

type wireBatch struct {
	Items []wireExample `json:"items"`
}

type wireExample struct {
	UserQuery string     `json:"user_query" jsonschema:"minLength=1,description=The simulated user request."`
	Output    wireOutput `json:"output"`
}

type wireOutput struct {
	Status      Status    `json:"status" jsonschema:"enum=running,enum=complete"`
	Thought     string    `json:"thought,omitempty" jsonschema:"description=Reasoning; required when running."`
	ToolUse     *wireTool `json:"tool_use,omitempty"`
	FinalAnswer string    `json:"final_answer,omitempty" jsonschema:"description=Response; required when complete."`
}

type wireTool struct {
	ToolName  ToolName `json:"tool_name" jsonschema:"enum=codebase_search,enum=file_manager,enum=sandbox_exec,enum=ask_human"`
	Arguments wireArgs `json:"arguments"`
}

// wireArgs is the union of every tool's arguments. Which fields apply is
// decided by tool_name.
type wireArgs struct {
	Query       string `json:"query,omitempty"`
	Mode        string `json:"mode,omitempty" jsonschema:"enum=exact,enum=semantic,enum=hybrid"`
	FilePattern string `json:"file_pattern,omitempty"`

	Operation         string  `json:"operation,omitempty" jsonschema:"enum=list,enum=read,enum=write,enum=patch"`
	Path              string  `json:"path,omitempty"`
	Content           string  `json:"content,omitempty"`
	TargetString      string  `json:"target_string,omitempty"`
	ReplacementString *string `json:"replacement_string,omitempty"`

	Code    string  `json:"code,omitempty"`
	Timeout seconds `json:"timeout,omitempty" jsonschema:"minimum=0"`

	Question string `json:"question,omitempty"`
	Context  string `json:"context,omitempty"`
}

// seconds is a whole number of seconds. Models often write 30 as 30.0, so
// any integral JSON number is accepted.
type seconds int

func (s *seconds) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	if i, err := n.Int64(); err == nil {
		*s = seconds(i)
		return nil
	}
	f, err := n.Float64()
	if err != nil || f != math.Trunc(f) || math.Abs(f) > math.MaxInt32 {
		return fmt.Errorf("timeout %s is not a whole number of seconds", n)
	}
	*s = seconds(f)
	return nil
}

func toWireTool(t ToolUse) (*wireTool, error) {
	switch v := t.(type) {
	case Search:
		return &wireTool{ToolName: ToolSearch, Arguments: wireArgs{
			Query: v.Query, Mode: string(v.Mode), FilePattern: v.FilePattern,
		}}, nil
	case FileOp:
		args := wireArgs{Operation: string(v.Operation), Path: v.Path}
		switch v.Operation {
		case OpWrite:
			args.Content = v.Content
		case OpPatch:
			args.TargetString = v.Target
			args.ReplacementString = v.Replacement
		}
		return &wireTool{ToolName: ToolFile, Arguments: args}, nil
	case Exec:
		return &wireTool{ToolName: ToolExec, Arguments: wireArgs{Code: v.Code, Timeout: seconds(v.Timeout)}}, nil
	case Escalate:
		return &wireTool{ToolName: ToolEscalate, Arguments: wireArgs{Question: v.Question, Context: v.Context}}, nil
	case nil:
		return nil, fmt.Errorf("%w: nil tool_use", ErrInvalid)
	default:
		return nil, fmt.Errorf("%w: unsupported tool %T", ErrInvalid, t)
	}
}

func (w *wireTool) toTool() (ToolUse, error) {
	a := w.Arguments
	switch w.ToolName {
	case ToolSearch:
		return NewSearch(a.Query, SearchMode(a.Mode), a.FilePattern)
	case ToolFile:
		return NewFileOp(FileOperation(a.Operation), a.Path, a.Content, a.TargetString, a.ReplacementString)
	case ToolExec:
		return NewExec(a.Code, int(a.Timeout)), nil
	case ToolEscalate:
		return NewEscalate(a.Question, a.Context), nil
	default:
		return nil, fmt.Errorf("%w: unknown tool_name %q", ErrInvalid, w.ToolName)
	}
}

func toWireOutput(o AgentOutput) (wireOutput, error) {
	switch v := o.(type) {
	case Running:
		tool, err := toWireTool(v.Tool)
		if err != nil {
			return wireOutput{}, err
		}
		return wireOutput{Status: StatusRunning, Thought: v.Thought, ToolUse: tool}, nil
	case Complete:
		return wireOutput{Status: StatusComplete, FinalAnswer: v.FinalAnswer}, nil
	case nil:
		return wireOutput{}, fmt.Errorf("%w: nil output", ErrInvalid)
	default:
		return wireOutput{}, fmt.Errorf("%w: unsupported output %T", ErrInvalid, o)
	}
}

func (w wireOutput) toOutput() (AgentOutput, error) {
	switch w.Status {
	case StatusRunning:
		if w.FinalAnswer != "" {
			return nil, fmt.Errorf("%w: running output must not carry final_answer", ErrInvalid)
		}
		if w.ToolUse == nil {
			return nil, fmt.Errorf("%w: running output requires tool_use", ErrInvalid)
		}
		tool, err := w.ToolUse.toTool()
		if err != nil {
			return nil, err
		}
		return NewRunning(w.Thought, tool)
	case StatusComplete:
		if w.Thought != "" {
			return nil, fmt.Errorf("%w: complete output must not carry thought", ErrInvalid)
		}
		if w.ToolUse != nil {
			return nil, fmt.Errorf("%w: complete output must not carry tool_use", ErrInvalid)
		}
		return NewComplete(w.FinalAnswer)
	default:
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalid, w.Status)
	}
}

func (w wireExample) toExample() (TrainingExample, error) {
	out, err := w.Output.toOutput()
	if err != nil {
		return TrainingExample{}, err
	}
	return NewExample(w.UserQuery, out)
}

// MarshalJSON encodes the running wire shape.
func (r Running) MarshalJSON() ([]byte, error) {
	w, err := toWireOutput(r)
	if err != nil {
		return nil, err
	}
	return marshalNoEscape(w)
}

// MarshalJSON encodes the complete wire shape.
func (c Complete) MarshalJSON() ([]byte, error) {
	w, err := toWireOutput(c)
	if err != nil {
		return nil, err
	}
	return marshalNoEscape(w)
}

// MarshalJSON encodes the example with absent optional fields omitted.
func (e TrainingExample) MarshalJSON() ([]byte, error) {
	out, err := toWireOutput(e.Output)
	if err != nil {
		return nil, err
	}
	return marshalNoEscape(wireExample{UserQuery: e.UserQuery, Output: out})
}

// UnmarshalJSON decodes an example and enforces the output invariants.
// Unknown fields are ignored.
func (e *TrainingExample) UnmarshalJSON(data []byte) error {
	var w wireExample
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	ex, err := w.toExample()
	if err != nil {
		return err
	}
	*e = ex
	return nil
}

// Marshal encodes v compactly without HTML escaping, so angle brackets in
// code and chat-template tokens survive unchanged.
func Marshal(v any) ([]byte, error) {
	return marshalNoEscape(v)
}

func marshalNoEscape(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
