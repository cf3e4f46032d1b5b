package prompt

import (
	"fmt"

	"github.com/haasonsaas/routergen/internal/record"
)

type shot struct {
	query   string
	thought string
	tool    func() (record.ToolUse, error)
}

func strPtr(s string) *string { return &s }

var toolShots = map[record.ToolName][]shot{
	record.ToolSearch: {
		{
			query:   "where do we set the retry limit for webhook deliveries",
			thought: "Webhook retry limits are configured somewhere in the delivery code; a hybrid search combines the literal term retry with the delivery concept.",
			tool: func() (record.ToolUse, error) {
				return record.NewSearch("webhook delivery retry limit", record.ModeHybrid, "")
			},
		},
		{
			query:   "find every call to parseInvoiceDate in the python services",
			thought: "The user named an exact function, so an exact search restricted to Python files finds its call sites without noise.",
			tool: func() (record.ToolUse, error) {
				return record.NewSearch("parseInvoiceDate", record.ModeExact, "*.py")
			},
		},
	},
	record.ToolFile: {
		{
			query:   "show me config/settings.yaml",
			thought: "The user asked to view one specific configuration file by path, so a file read of config/settings.yaml answers directly.",
			tool: func() (record.ToolUse, error) {
				return record.NewFileOp(record.OpRead, "config/settings.yaml", "", "", nil)
			},
		},
		{
			query:   "in src/app.py change DEBUG = True to DEBUG = False",
			thought: "A single known line in src/app.py must change, so a patch that swaps the debug flag keeps the rest of the file intact.",
			tool: func() (record.ToolUse, error) {
				return record.NewFileOp(record.OpPatch, "src/app.py", "", "DEBUG = True", strPtr("DEBUG = False"))
			},
		},
	},
	record.ToolExec: {
		{
			query:   "what's 2 to the 64th minus one",
			thought: "Large integer arithmetic is exact in Python, so running the expression avoids rounding mistakes in a mental calculation.",
			tool: func() (record.ToolUse, error) {
				return record.NewExec("print(2**64 - 1)", 0), nil
			},
		},
		{
			query:   "convert 1700000000 unix time to an ISO date",
			thought: "Timestamp conversion needs a real datetime library and a timezone, so executing a short UTC conversion gives a precise answer.",
			tool: func() (record.ToolUse, error) {
				return record.NewExec("from datetime import datetime, timezone\nprint(datetime.fromtimestamp(1700000000, tz=timezone.utc).isoformat())", 10), nil
			},
		},
	},
	record.ToolEscalate: {
		{
			query:   "drop the orders table in prod",
			thought: "Dropping a production table destroys data irreversibly, so explicit confirmation and a backup check are required before doing anything.",
			tool: func() (record.ToolUse, error) {
				return record.NewEscalate("Should I take a backup of orders before dropping it, and is this approved for production?", "Irreversible production data loss"), nil
			},
		},
		{
			query:   "make the dashboard faster",
			thought: "Faster could mean query latency, bundle size or caching, and guessing wrong wastes effort, so the goal has to be clarified first.",
			tool: func() (record.ToolUse, error) {
				return record.NewEscalate("Which part feels slow: initial page load, chart rendering or data refresh?", ""), nil
			},
		},
	},
}

var answerShots = []struct{ query, answer string }{
	{"what's the difference between a mutex and a semaphore", "A mutex lets exactly one holder into a critical section and must be released by that holder; a semaphore counts permits, so up to N holders may proceed and any of them may release."},
	{"is http PUT idempotent", "Yes. Repeating the same PUT leaves the resource in the same state as sending it once, which is why clients may safely retry it."},
}

func buildFewShot() (map[record.ToolName][]string, []string, error) {
	out := make(map[record.ToolName][]string, len(toolShots))
	for name, shots := range toolShots {
		for _, s := range shots {
			tool, err := s.tool()
			if err != nil {
				return nil, nil, fmt.Errorf("few-shot %s: %w", name, err)
			}
			running, err := record.NewRunning(s.thought, tool)
			if err != nil {
				return nil, nil, fmt.Errorf("few-shot %s: %w", name, err)
			}
			line, err := renderShot(s.query, running)
			if err != nil {
				return nil, nil, err
			}
			out[name] = append(out[name], line)
		}
	}

	answers := make([]string, 0, len(answerShots))
	for _, a := range answerShots {
		complete, err := record.NewComplete(a.answer)
		if err != nil {
			return nil, nil, fmt.Errorf("few-shot answer: %w", err)
		}
		line, err := renderShot(a.query, complete)
		if err != nil {
			return nil, nil, err
		}
		answers = append(answers, line)
	}
	return out, answers, nil
}

func renderShot(query string, output record.AgentOutput) (string, error) {
	ex, err := record.NewExample(query, output)
	if err != nil {
		return "", fmt.Errorf("few-shot: %w", err)
	}
	data, err := record.Marshal(ex)
	if err != nil {
		return "", fmt.Errorf("few-shot: %w", err)
	}
	return string(data), nil
}
