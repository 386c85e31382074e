package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/QUSEIT/simacode-sub000/pkg/evaluator"
	"github.com/QUSEIT/simacode-sub000/pkg/protocol"
	"github.com/QUSEIT/simacode-sub000/pkg/session"
)

type outcomeKind int

const (
	outcomeDone outcomeKind = iota
	outcomeReplan
	outcomeAbort
	outcomeCancelled
)

type planOutcome struct {
	kind   outcomeKind
	reason string
}

// executePlan runs every task in plan, in the index order given by order,
// evaluating each terminal result and honoring retry-same/replan/abort
// verdicts from the configured evaluator.
func (e *Engine) executePlan(ctx context.Context, plan []session.Task, order []int) planOutcome {
taskLoop:
	for _, idx := range order {
		task := &plan[idx]

		retries := 0
		for {
			select {
			case <-ctx.Done():
				e.fail(CategoryCancelled, "session cancelled mid-execution")
				return planOutcome{kind: outcomeCancelled}
			default:
			}

			task.Status = session.TaskRunning
			e.emit(Update{
				Kind:        UpdateToolExecution,
				TaskID:      task.ID,
				Tool:        task.Tool,
				ArgsSummary: redactArgs(task.Args),
			})
			e.persist()

			result := e.executeOnce(ctx, task)
			e.sess.RecordResult(result)

			now := time.Now()
			task.CompletedAt = &now
			if result.Success {
				task.Status = session.TaskSucceeded
			} else {
				task.Status = session.TaskFailed
			}

			e.emit(Update{Kind: UpdateSubTaskResult, TaskID: task.ID, OutcomeText: outcomeText(result)})
			e.sess.LogToolSummary(fmt.Sprintf("%s -> %s", task.Tool, outcomeText(result)))
			e.persist()

			e.transition(session.StateEvaluating)
			verdict, reason, err := e.eval.EvaluateTask(ctx, *task, result, plan, e.sess.Results)
			if err != nil {
				return planOutcome{kind: outcomeAbort, reason: err.Error()}
			}

			switch verdict {
			case evaluator.VerdictContinue:
				continue taskLoop
			case evaluator.VerdictRetrySame:
				retries++
				if retries > e.cfg.MaxRetrySame {
					return planOutcome{kind: outcomeAbort, reason: fmt.Sprintf("task %q exceeded retry cap: %s", task.ID, reason)}
				}
				e.transition(session.StateExecuting)
				continue
			case evaluator.VerdictReplan:
				return planOutcome{kind: outcomeReplan, reason: reason}
			case evaluator.VerdictAbort:
				return planOutcome{kind: outcomeAbort, reason: reason}
			default:
				return planOutcome{kind: outcomeAbort, reason: fmt.Sprintf("unknown verdict %q", verdict)}
			}
		}
	}
	return planOutcome{kind: outcomeDone}
}

func outcomeText(result session.TaskResult) string {
	if result.Success {
		return "succeeded"
	}
	return "failed: " + result.Error
}

// executeOnce dispatches one task through the toolbox, streaming progress
// updates for long-running remote tools, and returns the terminal result.
func (e *Engine) executeOnce(ctx context.Context, task *session.Task) session.TaskResult {
	descriptor, err := e.tools.Resolve(task.Tool)
	if err != nil {
		return session.TaskResult{TaskID: task.ID, Success: false, Error: err.Error(), Category: string(CategoryToolNotFound)}
	}

	timeout := time.Duration(e.cfg.ToolTimeoutSeconds) * time.Second
	if !descriptor.Local {
		timeout = time.Duration(e.cfg.AsyncToolTimeoutSeconds) * time.Second
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if descriptor.Local {
		out, err := e.tools.CallLocal(callCtx, descriptor.Qualified, task.Args)
		if err != nil {
			return session.TaskResult{TaskID: task.ID, Success: false, Error: err.Error(), Category: string(CategoryToolExecutionError)}
		}
		return session.TaskResult{TaskID: task.ID, Success: true, Output: out}
	}

	events, err := e.tools.CallRemoteAsync(callCtx, descriptor.Qualified, task.Args, e.cfg.ToolTimeoutSeconds)
	if err != nil {
		return session.TaskResult{TaskID: task.ID, Success: false, Error: err.Error(), Category: string(CategoryTransportError)}
	}

	for ev := range events {
		if ev.Progress != nil {
			e.emit(Update{Kind: UpdateToolProgress, TaskID: task.ID, ProgressPayload: ev.Progress.Payload})
			continue
		}
		if ev.Result != nil {
			if ev.Result.Error != nil {
				return session.TaskResult{TaskID: task.ID, Success: false, Error: ev.Result.Error.Message, Category: string(CategoryToolExecutionError)}
			}
			return session.TaskResult{TaskID: task.ID, Success: true, Output: contentToOutput(ev.Result.Result)}
		}
	}
	return session.TaskResult{TaskID: task.ID, Success: false, Error: "tool stream closed without a terminal result", Category: string(CategoryTransportError)}
}

// contentToOutput flattens a remote tool's content-array result into the
// same shape local tools return directly.
func contentToOutput(result protocol.CallResult) map[string]any {
	var texts []string
	for _, item := range result.Content {
		if item.Text != "" {
			texts = append(texts, item.Text)
		}
	}
	out := map[string]any{"text": strings.Join(texts, "\n")}
	for k, v := range result.Metadata {
		out[k] = v
	}
	return out
}
