// Package evaluator judges task outcomes and overall plan progress,
// producing a verdict that drives the engine's continue/retry/replan/abort
// decision.
package evaluator

import (
	"context"
	"encoding/json"

	"github.com/QUSEIT/simacode-sub000/pkg/aiprovider"
	"github.com/QUSEIT/simacode-sub000/pkg/session"
)

// Verdict is the evaluator's decision after one task (or the plan as a
// whole) completes.
type Verdict string

const (
	VerdictContinue   Verdict = "continue"
	VerdictRetrySame  Verdict = "retry-same"
	VerdictReplan     Verdict = "replan"
	VerdictAbort      Verdict = "abort"
)

// Evaluator judges a single task's terminal result in the context of the
// full plan and prior results.
type Evaluator interface {
	EvaluateTask(ctx context.Context, task session.Task, result session.TaskResult, plan []session.Task, results map[string]session.TaskResult) (Verdict, string, error)
	EvaluateFinal(ctx context.Context, plan []session.Task, results map[string]session.TaskResult) (bool, string, error)
}

// DeterministicEvaluator is the non-AI fallback: success iff the terminal
// item is Success. It never asks for retry-same or abort; a failed task
// always yields Replan.
type DeterministicEvaluator struct{}

// EvaluateTask returns Continue on success, Replan on failure.
func (DeterministicEvaluator) EvaluateTask(_ context.Context, _ session.Task, result session.TaskResult, _ []session.Task, _ map[string]session.TaskResult) (Verdict, string, error) {
	if result.Success {
		return VerdictContinue, "", nil
	}
	return VerdictReplan, result.Error, nil
}

// EvaluateFinal reports success iff every task's recorded result
// succeeded.
func (DeterministicEvaluator) EvaluateFinal(_ context.Context, plan []session.Task, results map[string]session.TaskResult) (bool, string, error) {
	for _, t := range plan {
		r, ok := results[t.ID]
		if !ok || !r.Success {
			return false, "not all tasks succeeded", nil
		}
	}
	return true, "all tasks succeeded", nil
}

// AIEvaluator wraps DeterministicEvaluator and escalates to an AI-assisted
// judgement when configured to; otherwise it behaves identically to the
// deterministic fallback.
type AIEvaluator struct {
	provider   aiprovider.Provider
	fallback   DeterministicEvaluator
	useAIJudge bool
}

// NewAIEvaluator constructs an AIEvaluator. When useAIJudge is false it
// degrades to DeterministicEvaluator behavior for every call.
func NewAIEvaluator(provider aiprovider.Provider, useAIJudge bool) *AIEvaluator {
	return &AIEvaluator{provider: provider, useAIJudge: useAIJudge}
}

type taskVerdict struct {
	Verdict string `json:"verdict"`
	Reason  string `json:"reason,omitempty"`
}

var taskVerdictSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"verdict": map[string]any{"type": "string", "enum": []string{"continue", "retry-same", "replan", "abort"}},
		"reason":  map[string]any{"type": "string"},
	},
	"required": []string{"verdict"},
}

// EvaluateTask asks the configured provider to judge the task's outcome in
// context, falling back to the deterministic rule if AI judgement is
// disabled or the task trivially succeeded (no ambiguity to resolve).
func (e *AIEvaluator) EvaluateTask(ctx context.Context, task session.Task, result session.TaskResult, plan []session.Task, results map[string]session.TaskResult) (Verdict, string, error) {
	if !e.useAIJudge || result.Success {
		return e.fallback.EvaluateTask(ctx, task, result, plan, results)
	}

	outputJSON, _ := json.Marshal(result.Output)
	sys := "Judge the outcome of one executed task and decide whether the plan should continue, retry the same task, replan, or abort. Respond with the structured schema."
	userPrompt := "Task: " + task.Description + "\nTool: " + task.Tool + "\nError: " + result.Error + "\nOutput: " + string(outputJSON)

	var v taskVerdict
	if err := e.provider.GenerateStructured(ctx, sys, userPrompt, taskVerdictSchema, &v); err != nil {
		return e.fallback.EvaluateTask(ctx, task, result, plan, results)
	}

	switch Verdict(v.Verdict) {
	case VerdictContinue, VerdictRetrySame, VerdictReplan, VerdictAbort:
		return Verdict(v.Verdict), v.Reason, nil
	default:
		return e.fallback.EvaluateTask(ctx, task, result, plan, results)
	}
}

// EvaluateFinal asks the configured provider for an overall-success
// judgement, falling back to the deterministic all-succeeded rule.
func (e *AIEvaluator) EvaluateFinal(ctx context.Context, plan []session.Task, results map[string]session.TaskResult) (bool, string, error) {
	if !e.useAIJudge {
		return e.fallback.EvaluateFinal(ctx, plan, results)
	}

	resultsJSON, _ := json.Marshal(results)
	sys := "Judge whether the overall plan succeeded given its tasks and their results. Respond with the structured schema."
	userPrompt := "Results: " + string(resultsJSON)

	var v struct {
		Success bool   `json:"success"`
		Reason  string `json:"reason,omitempty"`
	}
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"success": map[string]any{"type": "boolean"},
			"reason":  map[string]any{"type": "string"},
		},
		"required": []string{"success"},
	}
	if err := e.provider.GenerateStructured(ctx, sys, userPrompt, schema, &v); err != nil {
		return e.fallback.EvaluateFinal(ctx, plan, results)
	}
	return v.Success, v.Reason, nil
}
