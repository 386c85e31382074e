// Package cliadapter renders the engine's Update stream as human-readable
// lines to an io.Writer and drives the interactive confirmation prompt.
package cliadapter

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/QUSEIT/simacode-sub000/pkg/confirm"
	"github.com/QUSEIT/simacode-sub000/pkg/engine"
	"github.com/QUSEIT/simacode-sub000/pkg/service"
)

// Adapter drains one Engine's Updates onto Out and, on a confirmation
// request, reads a line from In.
type Adapter struct {
	Out io.Writer
	In  io.Reader

	rt *service.Runtime
}

// New constructs an Adapter against rt's shared confirmation coordinator.
func New(rt *service.Runtime, in io.Reader, out io.Writer) *Adapter {
	return &Adapter{Out: out, In: in, rt: rt}
}

// Run drives e to completion, rendering every Update and returning the
// final_result text (or an error built from the terminal error Update).
func (a *Adapter) Run(ctx context.Context, e *engine.Engine) (string, error) {
	go e.Run(ctx)

	reader := bufio.NewReader(a.In)
	var final string
	var failure error

	for u := range e.Updates() {
		switch u.Kind {
		case engine.UpdateStatus:
			fmt.Fprintf(a.Out, "… %s\n", u.Text)
		case engine.UpdateTaskPlan:
			fmt.Fprintf(a.Out, "Plan (%d tasks):\n", len(u.Tasks))
			for _, t := range u.Tasks {
				fmt.Fprintf(a.Out, "  [%s] %s -> %s\n", t.ID, t.Description, t.Tool)
			}
		case engine.UpdateTaskInit:
			fmt.Fprintf(a.Out, "Starting %d task(s)\n", len(u.TaskIDs))
		case engine.UpdateToolExecution:
			fmt.Fprintf(a.Out, "-> [%s] calling %s %v\n", u.TaskID, u.Tool, u.ArgsSummary)
		case engine.UpdateToolProgress:
			fmt.Fprintf(a.Out, "   [%s] progress: %v\n", u.TaskID, u.ProgressPayload)
		case engine.UpdateSubTaskResult:
			fmt.Fprintf(a.Out, "<- [%s] %s\n", u.TaskID, u.OutcomeText)
		case engine.UpdateConfirmationRequest:
			action := a.promptConfirmation(reader, u)
			a.submit(u.SessionID, action)
		case engine.UpdateConfirmationReceived:
			fmt.Fprintf(a.Out, "(confirmation: %s)\n", u.Action)
		case engine.UpdateConversationalResponse:
			fmt.Fprintln(a.Out, u.Text)
		case engine.UpdateFinalResult:
			final = u.Text
			fmt.Fprintf(a.Out, "\n%s\n", u.Text)
		case engine.UpdateError:
			failure = fmt.Errorf("[%s] %s", u.ErrorCategory, u.Text)
			fmt.Fprintf(a.Out, "\nerror: %s\n", failure)
		}
	}

	return final, failure
}

// promptConfirmation renders the tasks summary and reads a single line:
// "y"/"yes" to confirm, "n"/"no"/"cancel" to cancel, or "modify: <text>"
// to request changes.
func (a *Adapter) promptConfirmation(reader *bufio.Reader, u engine.Update) confirmChoice {
	fmt.Fprintf(a.Out, "\nConfirm plan (round %d, timeout %ds)?\n%s\n[y]es / [n]o / modify:<instructions> > ",
		u.Round, u.TimeoutSeconds, u.TasksSummary)

	line, _ := reader.ReadString('\n')
	line = strings.TrimSpace(line)
	lower := strings.ToLower(line)

	switch {
	case lower == "y" || lower == "yes" || lower == "":
		return confirmChoice{action: confirm.ActionConfirm}
	case strings.HasPrefix(lower, "modify"):
		parts := strings.SplitN(line, ":", 2)
		text := ""
		if len(parts) == 2 {
			text = strings.TrimSpace(parts[1])
		}
		return confirmChoice{action: confirm.ActionModify, freeText: text}
	default:
		return confirmChoice{action: confirm.ActionCancel}
	}
}

type confirmChoice struct {
	action   confirm.Action
	freeText string
}

func (a *Adapter) submit(sessionID string, c confirmChoice) {
	a.rt.Confirm.SubmitConfirmation(sessionID, c.action, nil, c.freeText)
}
