// Package engine runs the ReAct state machine: Reasoning, Planning,
// AwaitingConfirmation, Executing, Evaluating, Replanning, terminating in
// Completed or Failed. One Engine owns exactly one session for the
// lifetime of a request.
package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/QUSEIT/simacode-sub000/pkg/confirm"
	"github.com/QUSEIT/simacode-sub000/pkg/evaluator"
	"github.com/QUSEIT/simacode-sub000/pkg/observability"
	"github.com/QUSEIT/simacode-sub000/pkg/planner"
	"github.com/QUSEIT/simacode-sub000/pkg/session"
	"github.com/QUSEIT/simacode-sub000/pkg/toolbox"
)

// Config bounds the engine's behavior, mirroring the react.* and tools.*
// options of the external configuration surface.
type Config struct {
	ConfirmByHuman             bool
	ConfirmationTimeoutSeconds int
	AllowTaskModification      bool
	AutoConfirmSafeTasks       bool
	MaxReplans                 int
	ToolTimeoutSeconds         int
	AsyncToolTimeoutSeconds    int
	MaxRetrySame               int
}

func (c *Config) setDefaults() {
	if c.ConfirmationTimeoutSeconds <= 0 {
		c.ConfirmationTimeoutSeconds = 120
	}
	if c.MaxReplans <= 0 {
		c.MaxReplans = 3
	}
	if c.ToolTimeoutSeconds <= 0 {
		c.ToolTimeoutSeconds = 30
	}
	if c.AsyncToolTimeoutSeconds <= 0 {
		c.AsyncToolTimeoutSeconds = 3600
	}
	if c.MaxRetrySame <= 0 {
		c.MaxRetrySame = 2
	}
}

// safeTaskTypes are task.Type values that auto_confirm_safe_tasks treats
// as never requiring human confirmation.
var safeTaskTypes = map[string]bool{
	"search":  true,
	"content": true,
}

// Engine drives one session from Idle to a terminal state, emitting
// Updates on a bounded channel the service façade drains.
type Engine struct {
	sess      *session.Session
	store     session.Store
	planner   *planner.Planner
	tools     *toolbox.Registry
	confirm   *confirm.Coordinator
	eval      evaluator.Evaluator
	cfg       Config
	updates   chan Update
	recorder  *observability.Recorder
}

// SetRecorder attaches an observability Recorder so state transitions get
// recorded. Optional; a nil or never-set recorder leaves Run's behavior
// unchanged.
func (e *Engine) SetRecorder(r *observability.Recorder) {
	e.recorder = r
}

// New constructs an Engine for sess. store may be nil to skip persistence
// (used by tests).
func New(sess *session.Session, store session.Store, p *planner.Planner, tools *toolbox.Registry, coord *confirm.Coordinator, eval evaluator.Evaluator, cfg Config) *Engine {
	cfg.setDefaults()
	return &Engine{
		sess:    sess,
		store:   store,
		planner: p,
		tools:   tools,
		confirm: coord,
		eval:    eval,
		cfg:     cfg,
		updates: make(chan Update, 32),
	}
}

// Updates returns the engine's output stream. The channel is closed when
// Run returns.
func (e *Engine) Updates() <-chan Update {
	return e.updates
}

func (e *Engine) emit(u Update) {
	u.SessionID = e.sess.ID
	e.updates <- u
}

func (e *Engine) persist() {
	if e.store == nil {
		return
	}
	_ = e.store.Save(e.sess)
}

func (e *Engine) transition(to session.State) {
	from := e.sess.State
	e.sess.Transition(to)
	e.recorder.RecordTransition(context.Background(), e.sess.ID, string(from), string(to))
	e.persist()
}

func (e *Engine) fail(category ErrorCategory, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	e.emit(Update{Kind: UpdateError, ErrorCategory: category, Text: msg})
	e.transition(session.StateFailed)
}

// Run drives the session to completion. It is not safe to call
// concurrently and closes Updates() when it returns. The caller should
// run it in its own goroutine.
func (e *Engine) Run(ctx context.Context) {
	defer close(e.updates)

	e.transition(session.StateReasoning)

	decision, err := e.planner.Plan(ctx, e.sess.Input, "")
	if err != nil {
		e.fail(CategoryPlanningError, "%v", err)
		return
	}
	if decision.Conversational {
		e.emit(Update{Kind: UpdateConversationalResponse, Text: decision.Reply})
		e.transition(session.StateCompleted)
		e.emit(Update{Kind: UpdateFinalResult, Text: decision.Reply})
		return
	}

	plan := decision.Plan
	notes := ""

	for {
		e.sess.Plan = plan
		e.transition(session.StatePlanning)
		e.emit(Update{Kind: UpdateTaskPlan, Tasks: append([]session.Task(nil), plan...)})

		if e.needsConfirmation(plan) {
			verdict, ok := e.awaitConfirmation(ctx, plan)
			if !ok {
				return // terminal failure already recorded
			}
			if verdict.Status == confirm.StatusModified {
				if len(verdict.ModifiedTasks) > 0 {
					plan = verdict.ModifiedTasks
					continue
				}

				e.sess.ReplanCount++
				if e.sess.ReplanCount > e.sess.MaxReplans {
					e.fail(CategoryReplanCapExceeded, "replanning cap (%d) exceeded", e.sess.MaxReplans)
					return
				}
				e.transition(session.StateReplanning)
				notes = verdict.FreeText
				nextDecision, err := e.planner.Plan(ctx, e.sess.Input, notes)
				if err != nil {
					e.fail(CategoryPlanningError, "%v", err)
					return
				}
				if nextDecision.Conversational {
					e.emit(Update{Kind: UpdateConversationalResponse, Text: nextDecision.Reply})
					e.transition(session.StateCompleted)
					e.emit(Update{Kind: UpdateFinalResult, Text: nextDecision.Reply})
					return
				}
				plan = nextDecision.Plan
				continue
			}
		}

		e.transition(session.StateExecuting)
		ids := make([]string, len(plan))
		for i, t := range plan {
			ids[i] = t.ID
		}
		e.emit(Update{Kind: UpdateTaskInit, TaskIDs: ids})

		order, err := topoSort(plan)
		if err != nil {
			e.fail(CategoryPlanningError, "%v", err)
			return
		}

		outcome := e.executePlan(ctx, plan, order)
		switch outcome.kind {
		case outcomeAbort:
			e.fail(CategoryToolExecutionError, "%s", outcome.reason)
			return
		case outcomeReplan:
			e.sess.ReplanCount++
			if e.sess.ReplanCount > e.sess.MaxReplans {
				e.fail(CategoryReplanCapExceeded, "replanning cap (%d) exceeded", e.sess.MaxReplans)
				return
			}
			e.transition(session.StateReplanning)
			notes = outcome.reason
			nextDecision, err := e.planner.Plan(ctx, e.sess.Input, notes)
			if err != nil {
				e.fail(CategoryPlanningError, "%v", err)
				return
			}
			if nextDecision.Conversational {
				e.emit(Update{Kind: UpdateConversationalResponse, Text: nextDecision.Reply})
				e.transition(session.StateCompleted)
				e.emit(Update{Kind: UpdateFinalResult, Text: nextDecision.Reply})
				return
			}
			plan = nextDecision.Plan
			continue
		case outcomeCancelled:
			return
		}

		e.transition(session.StateEvaluating)
		ok, reason, err := e.eval.EvaluateFinal(ctx, plan, e.sess.Results)
		if err != nil {
			e.fail(CategoryInternalError, "%v", err)
			return
		}
		if !ok {
			e.fail(CategoryToolExecutionError, "%s", reason)
			return
		}

		e.emit(Update{Kind: UpdateFinalResult, Text: reason})
		e.transition(session.StateCompleted)
		return
	}
}

func (e *Engine) needsConfirmation(plan []session.Task) bool {
	if !e.cfg.ConfirmByHuman {
		return false
	}
	if e.cfg.AutoConfirmSafeTasks && allSafe(plan) {
		return false
	}
	return true
}

func allSafe(plan []session.Task) bool {
	for _, t := range plan {
		if !safeTaskTypes[t.Type] {
			return false
		}
	}
	return true
}

// awaitConfirmation requests and waits for a verdict, emitting the
// confirmation_request/confirmation_received updates and handling
// timeout/cancel. Returns ok=false once a terminal failure has already
// been recorded.
func (e *Engine) awaitConfirmation(ctx context.Context, plan []session.Task) (confirm.Verdict, bool) {
	e.transition(session.StateAwaitingConfirmation)
	e.sess.ConfirmationRound++

	timeout := time.Duration(e.cfg.ConfirmationTimeoutSeconds) * time.Second
	ch := e.confirm.RequestConfirmation(e.sess.ID, timeout)

	e.emit(Update{
		Kind:           UpdateConfirmationRequest,
		TasksSummary:   summarizeTasks(plan),
		TimeoutSeconds: e.cfg.ConfirmationTimeoutSeconds,
		Round:          e.sess.ConfirmationRound,
	})

	var verdict confirm.Verdict
	select {
	case verdict = <-ch:
	case <-ctx.Done():
		e.fail(CategoryCancelled, "session cancelled while awaiting confirmation")
		return confirm.Verdict{}, false
	}

	e.emit(Update{Kind: UpdateConfirmationReceived, Action: string(verdict.Action)})

	switch verdict.Status {
	case confirm.StatusConfirmed:
		return verdict, true
	case confirm.StatusModified:
		if !e.cfg.AllowTaskModification {
			e.fail(CategoryCancelled, "task modification is disabled; treating modify as cancel")
			return confirm.Verdict{}, false
		}
		return verdict, true
	case confirm.StatusTimedOut:
		e.fail(CategoryConfirmationTimeout, "no confirmation response within %ds", e.cfg.ConfirmationTimeoutSeconds)
		return confirm.Verdict{}, false
	default: // Cancelled
		e.fail(CategoryCancelled, "confirmation cancelled by user")
		return confirm.Verdict{}, false
	}
}

func summarizeTasks(plan []session.Task) string {
	var sb strings.Builder
	for i, t := range plan {
		if i > 0 {
			sb.WriteString("; ")
		}
		fmt.Fprintf(&sb, "%s (%s)", t.Description, t.Tool)
	}
	return sb.String()
}

// redactArgs masks argument values likely to carry secrets before they
// reach an Update the service will render or log.
func redactArgs(args map[string]any) map[string]any {
	out := make(map[string]any, len(args))
	for k, v := range args {
		lower := strings.ToLower(k)
		if strings.Contains(lower, "token") || strings.Contains(lower, "secret") ||
			strings.Contains(lower, "password") || strings.Contains(lower, "api_key") {
			out[k] = "[REDACTED]"
			continue
		}
		if s, ok := v.(string); ok && len(s) > 500 {
			out[k] = s[:500] + "...[truncated]"
			continue
		}
		out[k] = v
	}
	return out
}
