package corpus

import (
	"fmt"
	"strings"

	"github.com/haasonsaas/routergen/internal/record"
)

// SystemPrompt is the system turn of every rendered transcript.
const SystemPrompt = `You are the Semantic Brain of an autonomous AI engineer.
Your role is to route user queries to the correct tool or answer directly.

OUTPUT RULES:
1. If the user asks a question you can answer with general knowledge, return status="complete".
2. If the user asks for a specific action (search, file edit, debug), return status="running" and choose the tool.
3. If the request is ambiguous or impossible, return status="running" and use the 'ask_human' tool.
4. Output STRICT JSON only. No markdown, no yapping.`

// Llama-3 chat template tokens.
const (
	tokenBOS         = "<|begin_of_text|>"
	tokenHeaderStart = "<|start_header_id|>"
	tokenHeaderEnd   = "<|end_header_id|>"
	tokenEOT         = "<|eot_id|>"
)

// RenderOptions controls Render.
type RenderOptions struct {
	// AddBOS prefixes <|begin_of_text|>. Most tokenizers add it themselves.
	AddBOS       bool
	SystemPrompt string
}

// Render formats ex as a Llama-3 instruct transcript whose assistant turn is
// the compact output JSON.
func Render(ex record.TrainingExample, opts RenderOptions) (string, error) {
	out, err := record.Marshal(ex.Output)
	if err != nil {
		return "", fmt.Errorf("encode output: %w", err)
	}
	system := opts.SystemPrompt
	if system == "" {
		system = SystemPrompt
	}

	var b strings.Builder
	if opts.AddBOS {
		b.WriteString(tokenBOS)
	}
	writeTurn(&b, "system", system)
	writeTurn(&b, "user", strings.TrimSpace(ex.UserQuery))
	writeTurn(&b, "assistant", string(out))
	return b.String(), nil
}

func writeTurn(b *strings.Builder, role, content string) {
	b.WriteString(tokenHeaderStart)
	b.WriteString(role)
	b.WriteString(tokenHeaderEnd)
	b.WriteString("\n\n")
	b.WriteString(content)
	b.WriteString(tokenEOT)
}
