package cliadapter

import (
	"bufio"
	"bytes"
	"strings"
	"testing"

	"github.com/QUSEIT/simacode-sub000/pkg/confirm"
	"github.com/QUSEIT/simacode-sub000/pkg/engine"
	"github.com/stretchr/testify/require"
)

func newTestAdapter() *Adapter {
	return &Adapter{Out: &bytes.Buffer{}}
}

func TestPromptConfirmationDefaultsToConfirmOnBlankLine(t *testing.T) {
	a := newTestAdapter()
	reader := bufio.NewReader(strings.NewReader("\n"))

	choice := a.promptConfirmation(reader, engine.Update{Round: 1, TimeoutSeconds: 30})
	require.Equal(t, confirm.ActionConfirm, choice.action)
}

func TestPromptConfirmationParsesModifyWithFreeText(t *testing.T) {
	a := newTestAdapter()
	reader := bufio.NewReader(strings.NewReader("modify: add error handling\n"))

	choice := a.promptConfirmation(reader, engine.Update{Round: 1, TimeoutSeconds: 30})
	require.Equal(t, confirm.ActionModify, choice.action)
	require.Equal(t, "add error handling", choice.freeText)
}

func TestPromptConfirmationTreatsNoAsCancel(t *testing.T) {
	a := newTestAdapter()
	reader := bufio.NewReader(strings.NewReader("no\n"))

	choice := a.promptConfirmation(reader, engine.Update{Round: 1, TimeoutSeconds: 30})
	require.Equal(t, confirm.ActionCancel, choice.action)
}
