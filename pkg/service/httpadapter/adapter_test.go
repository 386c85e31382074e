package httpadapter

import (
	"testing"

	"github.com/QUSEIT/simacode-sub000/pkg/confirm"
	"github.com/QUSEIT/simacode-sub000/pkg/engine"
	"github.com/stretchr/testify/require"
)

func TestParseConfirmActionConfirm(t *testing.T) {
	action, freeText, err := parseConfirmAction("CONFIRM_ACTION:confirm")
	require.NoError(t, err)
	require.Equal(t, confirm.ActionConfirm, action)
	require.Empty(t, freeText)
}

func TestParseConfirmActionModifyWithFreeText(t *testing.T) {
	action, freeText, err := parseConfirmAction("CONFIRM_ACTION:modify:add error handling")
	require.NoError(t, err)
	require.Equal(t, confirm.ActionModify, action)
	require.Equal(t, "add error handling", freeText)
}

func TestParseConfirmActionModifyWithoutFreeText(t *testing.T) {
	action, freeText, err := parseConfirmAction("CONFIRM_ACTION:modify")
	require.NoError(t, err)
	require.Equal(t, confirm.ActionModify, action)
	require.Empty(t, freeText)
}

func TestParseConfirmActionCancel(t *testing.T) {
	action, _, err := parseConfirmAction("CONFIRM_ACTION:cancel")
	require.NoError(t, err)
	require.Equal(t, confirm.ActionCancel, action)
}

func TestParseConfirmActionRejectsMissingPrefix(t *testing.T) {
	_, _, err := parseConfirmAction("confirm")
	require.Error(t, err)
}

func TestParseConfirmActionRejectsUnknownVerb(t *testing.T) {
	_, _, err := parseConfirmAction("CONFIRM_ACTION:frobnicate")
	require.Error(t, err)
}

func TestToChunkConfirmationRequestPausesStream(t *testing.T) {
	a := New(nil)
	c, terminal, paused := a.toChunk("s1", engine.Update{
		Kind: engine.UpdateConfirmationRequest, Round: 2, TimeoutSeconds: 60,
	})

	require.Equal(t, "confirmation_request", c.ChunkType)
	require.True(t, c.RequiresResponse)
	require.True(t, c.StreamPaused)
	require.False(t, terminal)
	require.True(t, paused)
}

func TestToChunkFirstTaskPlanIsTaskInit(t *testing.T) {
	a := New(nil)
	c, terminal, paused := a.toChunk("s2", engine.Update{Kind: engine.UpdateTaskPlan})

	require.Equal(t, "task_init", c.ChunkType)
	require.False(t, terminal)
	require.False(t, paused)
}

func TestToChunkSecondTaskPlanIsTaskReplanned(t *testing.T) {
	a := New(nil)
	a.toChunk("s3", engine.Update{Kind: engine.UpdateTaskPlan})
	c, _, _ := a.toChunk("s3", engine.Update{Kind: engine.UpdateTaskPlan})

	require.Equal(t, "task_replanned", c.ChunkType)
}

func TestToChunkFinalResultIsTerminalCompletion(t *testing.T) {
	a := New(nil)
	c, terminal, paused := a.toChunk("s4", engine.Update{Kind: engine.UpdateFinalResult, Text: "done"})

	require.Equal(t, "completion", c.ChunkType)
	require.Equal(t, "done", c.Content)
	require.True(t, terminal)
	require.False(t, paused)
}

func TestToChunkErrorIsTerminal(t *testing.T) {
	a := New(nil)
	c, terminal, _ := a.toChunk("s5", engine.Update{
		Kind: engine.UpdateError, Text: "boom", ErrorCategory: engine.CategoryTimeout,
	})

	require.Equal(t, "error", c.ChunkType)
	require.Equal(t, string(engine.CategoryTimeout), c.ErrorCategory)
	require.True(t, terminal)
}
