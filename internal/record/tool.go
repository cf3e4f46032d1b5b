package record

import (
	"fmt"
	"strings"
)

// ToolName is the wire identifier of a tool.
type ToolName string

const (
	ToolSearch   ToolName = "codebase_search"
	ToolFile     ToolName = "file_manager"
	ToolExec     ToolName = "sandbox_exec"
	ToolEscalate ToolName = "ask_human"
)

// ToolNames lists every tool in a stable order.
var ToolNames = []ToolName{ToolSearch, ToolFile, ToolExec, ToolEscalate}

// ToolUse is the action a running agent takes. It is closed over
// Search, FileOp, Exec and Escalate.
type ToolUse interface {
	Name() ToolName
	isToolUse()
}

// SearchMode selects how codebase_search matches.
type SearchMode string

const (
	ModeExact    SearchMode = "exact"
	ModeSemantic SearchMode = "semantic"
	ModeHybrid   SearchMode = "hybrid"
)

func (m SearchMode) valid() bool {
	switch m {
	case ModeExact, ModeSemantic, ModeHybrid:
		return true
	}
	return false
}

// FileOperation is the verb of a file_manager call.
type FileOperation string

const (
	OpList  FileOperation = "list"
	OpRead  FileOperation = "read"
	OpWrite FileOperation = "write"
	OpPatch FileOperation = "patch"
)

func (o FileOperation) valid() bool {
	switch o {
	case OpList, OpRead, OpWrite, OpPatch:
		return true
	}
	return false
}

// DefaultExecTimeout is the sandbox timeout in seconds when none is given.
const DefaultExecTimeout = 30

// Search looks something up in the codebase.
type Search struct {
	Query       string
	Mode        SearchMode
	FilePattern string
}

// FileOp reads or changes a file. Content is only meaningful for write;
// Target and Replacement only for patch. Replacement is a pointer so an
// intentionally empty replacement differs from a missing one.
type FileOp struct {
	Operation   FileOperation
	Path        string
	Content     string
	Target      string
	Replacement *string
}

// Exec runs code in the sandbox.
type Exec struct {
	Code    string
	Timeout int
}

// Escalate hands the decision to a human.
type Escalate struct {
	Question string
	Context  string
}

func (Search) Name() ToolName   { return ToolSearch }
func (FileOp) Name() ToolName   { return ToolFile }
func (Exec) Name() ToolName     { return ToolExec }
func (Escalate) Name() ToolName { return ToolEscalate }

func (Search) isToolUse()   {}
func (FileOp) isToolUse()   {}
func (Exec) isToolUse()     {}
func (Escalate) isToolUse() {}

// NewSearch builds a search call. An empty mode defaults to hybrid.
func NewSearch(query string, mode SearchMode, filePattern string) (Search, error) {
	if mode == "" {
		mode = ModeHybrid
	}
	if !mode.valid() {
		return Search{}, fmt.Errorf("%w: unknown search mode %q", ErrInvalid, mode)
	}
	return Search{Query: query, Mode: mode, FilePattern: filePattern}, nil
}

// NewFileOp builds a file_manager call, enforcing per-operation arguments.
// Arguments that do not apply to the operation are discarded.
func NewFileOp(op FileOperation, path, content, target string, replacement *string) (FileOp, error) {
	if !op.valid() {
		return FileOp{}, fmt.Errorf("%w: unknown file operation %q", ErrInvalid, op)
	}
	f := FileOp{Operation: op, Path: path}
	switch op {
	case OpWrite:
		if content == "" {
			return FileOp{}, fmt.Errorf("%w: write requires content", ErrInvalid)
		}
		f.Content = content
	case OpPatch:
		if target == "" {
			return FileOp{}, fmt.Errorf("%w: patch requires target_string", ErrInvalid)
		}
		if replacement == nil {
			return FileOp{}, fmt.Errorf("%w: patch requires replacement_string", ErrInvalid)
		}
		r := *replacement
		f.Target = target
		f.Replacement = &r
	}
	return f, nil
}

// NewExec builds a sandbox call. A non-positive timeout becomes DefaultExecTimeout.
func NewExec(code string, timeout int) Exec {
	if timeout <= 0 {
		timeout = DefaultExecTimeout
	}
	return Exec{Code: code, Timeout: timeout}
}

// NewEscalate builds an ask_human call.
func NewEscalate(question, context string) Escalate {
	return Escalate{Question: question, Context: context}
}

// Describe returns a short single-line summary of the call for logs.
func Describe(t ToolUse) string {
	switch v := t.(type) {
	case Search:
		return fmt.Sprintf("%s(%s, %q)", v.Name(), v.Mode, truncate(v.Query, 40))
	case FileOp:
		return fmt.Sprintf("%s(%s %s)", v.Name(), v.Operation, v.Path)
	case Exec:
		return fmt.Sprintf("%s(%d lines)", v.Name(), strings.Count(v.Code, "\n")+1)
	case Escalate:
		return fmt.Sprintf("%s(%q)", v.Name(), truncate(v.Question, 40))
	case nil:
		return "<nil>"
	default:
		return string(t.Name())
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
