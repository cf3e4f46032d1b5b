// Package record defines the training example model: a user query paired
// with the router's expected output, which is either a running tool call or
// a complete direct answer.
//
// The running/complete exclusivity and the per-tool argument rules are
// enforced when values are constructed or decoded, so an AgentOutput that
// exists in memory is always one of the two well-formed states.
package record

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalid is wrapped by every construction and decoding failure.
var ErrInvalid = errors.New("record: invalid")

// Status is the agent state carried by an output.
type Status string

const (
	StatusRunning  Status = "running"
	StatusComplete Status = "complete"
)

// Statuses lists the two states in a stable order.
var Statuses = []Status{StatusRunning, StatusComplete}

// AgentOutput is either Running or Complete.
type AgentOutput interface {
	Status() Status
	isAgentOutput()
}

// Running is an output that invokes a tool and explains why.
type Running struct {
	Thought string
	Tool    ToolUse
}

// Complete is an output that answers directly.
type Complete struct {
	FinalAnswer string
}

func (Running) Status() Status  { return StatusRunning }
func (Complete) Status() Status { return StatusComplete }

func (Running) isAgentOutput()  {}
func (Complete) isAgentOutput() {}

// NewRunning builds a running output. The thought is whitespace-normalised
// and must be non-empty; the tool must be set.
func NewRunning(thought string, tool ToolUse) (Running, error) {
	thought = normalizeSpace(thought)
	if thought == "" {
		return Running{}, fmt.Errorf("%w: running output requires thought", ErrInvalid)
	}
	if tool == nil {
		return Running{}, fmt.Errorf("%w: running output requires tool_use", ErrInvalid)
	}
	return Running{Thought: thought, Tool: tool}, nil
}

// NewComplete builds a complete output with a non-empty answer.
func NewComplete(answer string) (Complete, error) {
	if strings.TrimSpace(answer) == "" {
		return Complete{}, fmt.Errorf("%w: complete output requires final_answer", ErrInvalid)
	}
	return Complete{FinalAnswer: answer}, nil
}

// TrainingExample is one supervised pair.
type TrainingExample struct {
	UserQuery string
	Output    AgentOutput
}

// NewExample pairs a query with an output.
func NewExample(query string, output AgentOutput) (TrainingExample, error) {
	if strings.TrimSpace(query) == "" {
		return TrainingExample{}, fmt.Errorf("%w: user_query is required", ErrInvalid)
	}
	if output == nil {
		return TrainingExample{}, fmt.Errorf("%w: output is required", ErrInvalid)
	}
	return TrainingExample{UserQuery: query, Output: output}, nil
}

// Status returns the output status, or "" when the output is missing.
func (e TrainingExample) Status() Status {
	if e.Output == nil {
		return ""
	}
	return e.Output.Status()
}

// Tool returns the tool of a running example.
func (e TrainingExample) Tool() (ToolUse, bool) {
	r, ok := e.Output.(Running)
	if !ok || r.Tool == nil {
		return nil, false
	}
	return r.Tool, true
}

func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
