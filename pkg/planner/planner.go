// Package planner turns a user message into either a task plan or a
// direct conversational response, via classification, scope detection,
// AI-driven decomposition, and tool-name/argument validation against the
// toolbox registry.
package planner

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/QUSEIT/simacode-sub000/pkg/aiprovider"
	"github.com/QUSEIT/simacode-sub000/pkg/session"
	"github.com/QUSEIT/simacode-sub000/pkg/toolbox"
)

// greetingFastPath matches short conversational inputs that never reach
// the AI classifier.
var greetingFastPath = regexp.MustCompile(`(?i)^\s*(hi|hello|hey|thanks|thank you|ok|okay|yo|sup)\s*[.!?]*\s*$`)

// ScopeRule promotes an otherwise-conversational message to a task
// request when its text matches, auto-populating a scope hint.
type ScopeRule struct {
	Pattern *regexp.Regexp
	Scope   string
}

// DefaultScopeRules is the built-in keyword/regex promotion table.
var DefaultScopeRules = []ScopeRule{
	{Pattern: regexp.MustCompile(`(?i)\b(lesson plan|quiz|worksheet|syllabus|curriculum)\b`), Scope: "education_content"},
	{Pattern: regexp.MustCompile(`(?i)\b(write|read|edit)\s+(the\s+)?file\b`), Scope: "file_ops"},
	{Pattern: regexp.MustCompile(`(?i)\brun\s+(the\s+)?(command|script|shell)\b`), Scope: "shell_ops"},
}

// Config bounds the planner's behavior.
type Config struct {
	MaxTasks          int
	MaxToolNameRetries int
	ScopeRules        []ScopeRule
}

func (c *Config) setDefaults() {
	if c.MaxTasks <= 0 {
		c.MaxTasks = 20
	}
	if c.MaxToolNameRetries <= 0 {
		c.MaxToolNameRetries = 2
	}
	if c.ScopeRules == nil {
		c.ScopeRules = DefaultScopeRules
	}
}

// Decision is the planner's verdict: either a plan or a direct reply.
type Decision struct {
	Conversational bool
	Reply          string
	Plan           []session.Task
	Scope          string
}

// Planner classifies, detects scope, decomposes, and validates.
type Planner struct {
	provider aiprovider.Provider
	tools    *toolbox.Registry
	cfg      Config
}

// New constructs a Planner backed by provider for AI calls and tools for
// validation/normalization.
func New(provider aiprovider.Provider, tools *toolbox.Registry, cfg Config) *Planner {
	cfg.setDefaults()
	return &Planner{provider: provider, tools: tools, cfg: cfg}
}

type classification struct {
	Task   bool   `json:"task"`
	Reply  string `json:"reply,omitempty"`
}

var classificationSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"task":  map[string]any{"type": "boolean"},
		"reply": map[string]any{"type": "string"},
	},
	"required": []string{"task"},
}

type candidateTask struct {
	ID          string         `json:"id"`
	Description string         `json:"description"`
	Tool        string         `json:"tool"`
	Args        map[string]any `json:"args"`
	Expected    string         `json:"expected,omitempty"`
	Priority    int            `json:"priority"`
	DependsOn   []string       `json:"depends_on,omitempty"`
	Type        string         `json:"type,omitempty"`
}

type decomposition struct {
	Tasks []candidateTask `json:"tasks"`
}

var decompositionSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"tasks": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"id":          map[string]any{"type": "string"},
					"description": map[string]any{"type": "string"},
					"tool":        map[string]any{"type": "string"},
					"args":        map[string]any{"type": "object"},
					"expected":    map[string]any{"type": "string"},
					"priority":    map[string]any{"type": "integer"},
					"depends_on":  map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
					"type":        map[string]any{"type": "string"},
				},
				"required": []string{"id", "tool"},
			},
		},
	},
	"required": []string{"tasks"},
}

// Plan classifies input and, if it names a task, decomposes it into a
// validated, normalized plan.
func (p *Planner) Plan(ctx context.Context, input string, notes string) (Decision, error) {
	if greetingFastPath.MatchString(input) {
		return Decision{Conversational: true, Reply: "Hello! How can I help?"}, nil
	}

	scope := p.detectScope(input)

	isTask, reply, err := p.classify(ctx, input, scope)
	if err != nil {
		return Decision{}, fmt.Errorf("planner: classify: %w", err)
	}
	if !isTask && scope == "" {
		return Decision{Conversational: true, Reply: reply}, nil
	}

	tasks, err := p.decompose(ctx, input, scope, notes)
	if err != nil {
		return Decision{}, err
	}
	return Decision{Plan: tasks, Scope: scope}, nil
}

func (p *Planner) detectScope(input string) string {
	for _, rule := range p.cfg.ScopeRules {
		if rule.Pattern.MatchString(input) {
			return rule.Scope
		}
	}
	return ""
}

func (p *Planner) classify(ctx context.Context, input, scope string) (bool, string, error) {
	if scope != "" {
		return true, "", nil
	}

	sys := "Classify whether the user's message requires invoking tools (a task) or is purely conversational. Respond with the structured schema."
	var c classification
	if err := p.provider.GenerateStructured(ctx, sys, input, classificationSchema, &c); err != nil {
		return false, "", err
	}
	return c.Task, c.Reply, nil
}

func (p *Planner) decompose(ctx context.Context, input, scope, notes string) ([]session.Task, error) {
	descriptors := p.tools.Descriptors()

	var toolList strings.Builder
	for _, d := range descriptors {
		fmt.Fprintf(&toolList, "- %s: %s\n", d.Qualified, d.Description)
	}

	sys := "Decompose the user's request into an ordered list of tool-invoking tasks. Use only tools from this list:\n" + toolList.String()
	if scope != "" {
		sys += "\nScope hint: " + scope
	}
	if notes != "" {
		sys += "\nPrior evaluation notes: " + notes
	}

	var d decomposition
	var unknown string
	for attempt := 0; attempt <= p.cfg.MaxToolNameRetries; attempt++ {
		d = decomposition{}
		if err := p.provider.GenerateStructured(ctx, sys, input, decompositionSchema, &d); err != nil {
			return nil, fmt.Errorf("planner: decompose: %w", err)
		}

		unknown = p.firstUnknownTool(d.Tasks)
		if unknown == "" {
			break
		}
		sys += fmt.Sprintf("\nNote: %q is not a valid tool name; use the exact names listed above.", unknown)
	}
	if unknown != "" {
		return nil, fmt.Errorf("planner: unresolved tool name %q after %d retries", unknown, p.cfg.MaxToolNameRetries)
	}

	if len(d.Tasks) > p.cfg.MaxTasks {
		return nil, fmt.Errorf("planner: plan has %d tasks, exceeds cap of %d", len(d.Tasks), p.cfg.MaxTasks)
	}

	tasks := make([]session.Task, 0, len(d.Tasks))
	for _, c := range d.Tasks {
		resolved, err := p.tools.Resolve(c.Tool)
		if err != nil {
			return nil, fmt.Errorf("planner: resolving task %q: %w", c.ID, err)
		}
		if err := requireArgs(resolved.InputSchema, c.Args); err != nil {
			return nil, fmt.Errorf("planner: task %q: %w", c.ID, err)
		}
		tasks = append(tasks, session.Task{
			ID:          c.ID,
			Description: c.Description,
			Tool:        resolved.Qualified,
			Args:        toolbox.NormalizeArgs(c.Args),
			Expected:    c.Expected,
			Priority:    c.Priority,
			DependsOn:   c.DependsOn,
			Type:        c.Type,
			Status:      session.TaskPlanned,
		})
	}

	stableSortByPriority(tasks)
	return tasks, nil
}

func (p *Planner) firstUnknownTool(tasks []candidateTask) string {
	for _, t := range tasks {
		if _, err := p.tools.Resolve(t.Tool); err != nil {
			return t.Tool
		}
	}
	return ""
}

// requireArgs checks that every required property in schema is present in
// args, after alias normalization.
func requireArgs(schema map[string]any, args map[string]any) error {
	required, _ := schema["required"].([]string)
	if required == nil {
		if raw, ok := schema["required"].([]any); ok {
			for _, r := range raw {
				if s, ok := r.(string); ok {
					required = append(required, s)
				}
			}
		}
	}
	if len(required) == 0 {
		return nil
	}
	normalized := toolbox.NormalizeArgs(args)
	for _, key := range required {
		if _, ok := normalized[key]; !ok {
			return fmt.Errorf("missing required argument %q", key)
		}
	}
	return nil
}

// stableSortByPriority sorts tasks by descending priority, preserving
// relative order among equal priorities (Go's sort.SliceStable semantics
// implemented directly via insertion so no extra import is needed at call
// sites that already reason about task order).
func stableSortByPriority(tasks []session.Task) {
	for i := 1; i < len(tasks); i++ {
		j := i
		for j > 0 && tasks[j-1].Priority < tasks[j].Priority {
			tasks[j-1], tasks[j] = tasks[j], tasks[j-1]
			j--
		}
	}
}
