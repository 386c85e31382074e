package planner

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/QUSEIT/simacode-sub000/pkg/localtool"
	"github.com/QUSEIT/simacode-sub000/pkg/manager"
	"github.com/QUSEIT/simacode-sub000/pkg/toolbox"
	"github.com/stretchr/testify/require"
)

type scriptedProvider struct {
	classifyResp string
	decomposeResp string
	calls        int
}

func (s *scriptedProvider) Name() string { return "scripted" }

func (s *scriptedProvider) GenerateText(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return "", nil
}

func (s *scriptedProvider) GenerateStructured(ctx context.Context, systemPrompt, userPrompt string, schema map[string]any, out any) error {
	s.calls++
	var raw string
	if _, ok := schema["properties"].(map[string]any)["task"]; ok {
		raw = s.classifyResp
	} else {
		raw = s.decomposeResp
	}
	return json.Unmarshal([]byte(raw), out)
}

func newTestToolbox(t *testing.T) *toolbox.Registry {
	t.Helper()
	mgr := manager.New(4, 2)
	tb := toolbox.New(mgr)
	require.NoError(t, tb.RegisterLocal(localtool.NewShellTool()))
	require.NoError(t, tb.RegisterLocal(localtool.NewFileTool("")))
	return tb
}

func TestPlanGreetingFastPathSkipsProvider(t *testing.T) {
	prov := &scriptedProvider{}
	p := New(prov, newTestToolbox(t), Config{})

	d, err := p.Plan(context.Background(), "hello", "")
	require.NoError(t, err)
	require.True(t, d.Conversational)
	require.Equal(t, 0, prov.calls)
}

func TestPlanConversationalClassification(t *testing.T) {
	prov := &scriptedProvider{classifyResp: `{"task": false, "reply": "Sure, happy to chat."}`}
	p := New(prov, newTestToolbox(t), Config{})

	d, err := p.Plan(context.Background(), "what do you think about go?", "")
	require.NoError(t, err)
	require.True(t, d.Conversational)
	require.Equal(t, "Sure, happy to chat.", d.Reply)
}

func TestPlanDecomposesIntoValidatedTasks(t *testing.T) {
	prov := &scriptedProvider{
		classifyResp:   `{"task": true}`,
		decomposeResp: `{"tasks": [{"id": "t1", "tool": "shell", "args": {"command": "echo hi"}, "priority": 1}]}`,
	}
	p := New(prov, newTestToolbox(t), Config{})

	d, err := p.Plan(context.Background(), "run echo hi", "")
	require.NoError(t, err)
	require.False(t, d.Conversational)
	require.Len(t, d.Plan, 1)
	require.Equal(t, "shell", d.Plan[0].Tool)
}

func TestPlanRejectsUnknownToolAfterRetries(t *testing.T) {
	prov := &scriptedProvider{
		classifyResp:   `{"task": true}`,
		decomposeResp: `{"tasks": [{"id": "t1", "tool": "does_not_exist", "args": {}}]}`,
	}
	p := New(prov, newTestToolbox(t), Config{MaxToolNameRetries: 1})

	_, err := p.Plan(context.Background(), "do the thing", "")
	require.Error(t, err)
}

func TestPlanEnforcesTaskCap(t *testing.T) {
	prov := &scriptedProvider{
		classifyResp: `{"task": true}`,
		decomposeResp: `{"tasks": [
			{"id": "t1", "tool": "shell", "args": {"command": "echo 1"}},
			{"id": "t2", "tool": "shell", "args": {"command": "echo 2"}}
		]}`,
	}
	p := New(prov, newTestToolbox(t), Config{MaxTasks: 1})

	_, err := p.Plan(context.Background(), "run two commands", "")
	require.Error(t, err)
}

func TestPlanMissingRequiredArgumentAborts(t *testing.T) {
	prov := &scriptedProvider{
		classifyResp:   `{"task": true}`,
		decomposeResp: `{"tasks": [{"id": "t1", "tool": "shell", "args": {}}]}`,
	}
	p := New(prov, newTestToolbox(t), Config{})

	_, err := p.Plan(context.Background(), "run something", "")
	require.Error(t, err)
}

func TestScopeDetectionPromotesWithoutClassifyCall(t *testing.T) {
	prov := &scriptedProvider{
		decomposeResp: `{"tasks": [{"id": "t1", "tool": "shell", "args": {"command": "echo hi"}}]}`,
	}
	p := New(prov, newTestToolbox(t), Config{})

	d, err := p.Plan(context.Background(), "please run the command ls", "")
	require.NoError(t, err)
	require.Equal(t, "shell_ops", d.Scope)
	require.Equal(t, 1, prov.calls)
}

func TestStableSortByPriorityPreservesOrderForTies(t *testing.T) {
	prov := &scriptedProvider{
		classifyResp: `{"task": true}`,
		decomposeResp: `{"tasks": [
			{"id": "a", "tool": "shell", "args": {"command": "echo a"}, "priority": 1},
			{"id": "b", "tool": "shell", "args": {"command": "echo b"}, "priority": 5},
			{"id": "c", "tool": "shell", "args": {"command": "echo c"}, "priority": 1}
		]}`,
	}
	p := New(prov, newTestToolbox(t), Config{})

	d, err := p.Plan(context.Background(), "run three commands", "")
	require.NoError(t, err)
	require.Equal(t, []string{"b", "a", "c"}, []string{d.Plan[0].ID, d.Plan[1].ID, d.Plan[2].ID})
}
