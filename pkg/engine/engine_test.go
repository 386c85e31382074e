package engine

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/QUSEIT/simacode-sub000/pkg/confirm"
	"github.com/QUSEIT/simacode-sub000/pkg/evaluator"
	"github.com/QUSEIT/simacode-sub000/pkg/localtool"
	"github.com/QUSEIT/simacode-sub000/pkg/manager"
	"github.com/QUSEIT/simacode-sub000/pkg/planner"
	"github.com/QUSEIT/simacode-sub000/pkg/session"
	"github.com/QUSEIT/simacode-sub000/pkg/toolbox"
	"github.com/stretchr/testify/require"
)

// scriptedProvider replays canned classify/decompose responses, mirroring
// the fixture used by the planner's own tests.
type scriptedProvider struct {
	classifyResp   string
	decomposeResps []string
	calls          int
}

func (s *scriptedProvider) Name() string { return "scripted" }

func (s *scriptedProvider) GenerateText(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return "", nil
}

func (s *scriptedProvider) GenerateStructured(ctx context.Context, systemPrompt, userPrompt string, schema map[string]any, out any) error {
	if _, ok := schema["properties"].(map[string]any)["task"]; ok {
		return json.Unmarshal([]byte(s.classifyResp), out)
	}
	raw := s.decomposeResps[0]
	if len(s.decomposeResps) > 1 {
		s.decomposeResps = s.decomposeResps[1:]
	}
	s.calls++
	return json.Unmarshal([]byte(raw), out)
}

func newTestToolbox(t *testing.T) *toolbox.Registry {
	t.Helper()
	mgr := manager.New(4, 2)
	tb := toolbox.New(mgr)
	require.NoError(t, tb.RegisterLocal(localtool.NewShellTool()))
	return tb
}

func newTestEngine(t *testing.T, prov *scriptedProvider, cfg Config) (*Engine, *confirm.Coordinator) {
	t.Helper()
	tb := newTestToolbox(t)
	p := planner.New(prov, tb, planner.Config{})
	coord := confirm.New()
	sess := session.New("s1", "run echo hi", 3)
	e := New(sess, nil, p, tb, coord, evaluator.DeterministicEvaluator{}, cfg)
	return e, coord
}

func TestEngineModifyWithFreeTextTriggersReplan(t *testing.T) {
	prov := &scriptedProvider{
		classifyResp: `{"task": true}`,
		decomposeResps: []string{
			`{"tasks": [{"id": "t1", "tool": "shell", "args": {"command": "echo hi"}}]}`,
			`{"tasks": [{"id": "t1", "tool": "shell", "args": {"command": "echo hi || true"}}]}`,
		},
	}
	e, coord := newTestEngine(t, prov, Config{ConfirmByHuman: true, AllowTaskModification: true})

	ctx := context.Background()
	go e.Run(ctx)

	var rounds int
	for u := range e.Updates() {
		if u.Kind == UpdateConfirmationRequest {
			rounds++
			if rounds == 1 {
				require.True(t, coord.HasPending("s1"))
				coord.SubmitConfirmation("s1", confirm.ActionModify, nil, "add error handling")
				continue
			}
			coord.SubmitConfirmation("s1", confirm.ActionConfirm, nil, "")
		}
	}

	require.Equal(t, 2, rounds)
	require.Equal(t, 2, prov.calls)
}

func TestEngineModifyWithNoTasksAndNoFreeTextCancels(t *testing.T) {
	prov := &scriptedProvider{
		classifyResp:   `{"task": true}`,
		decomposeResps: []string{`{"tasks": [{"id": "t1", "tool": "shell", "args": {"command": "echo hi"}}]}`},
	}
	e, coord := newTestEngine(t, prov, Config{ConfirmByHuman: true, AllowTaskModification: true})

	go e.Run(context.Background())

	var lastErr Update
	for u := range e.Updates() {
		if u.Kind == UpdateConfirmationRequest {
			coord.SubmitConfirmation("s1", confirm.ActionModify, nil, "")
		}
		if u.Kind == UpdateError {
			lastErr = u
		}
	}

	require.Equal(t, CategoryCancelled, lastErr.ErrorCategory)
}

func TestEngineReplanCapExceededOnRepeatedModify(t *testing.T) {
	prov := &scriptedProvider{
		classifyResp: `{"task": true}`,
		decomposeResps: []string{
			`{"tasks": [{"id": "t1", "tool": "shell", "args": {"command": "echo 1"}}]}`,
			`{"tasks": [{"id": "t1", "tool": "shell", "args": {"command": "echo 2"}}]}`,
			`{"tasks": [{"id": "t1", "tool": "shell", "args": {"command": "echo 3"}}]}`,
		},
	}
	e, coord := newTestEngine(t, prov, Config{ConfirmByHuman: true, AllowTaskModification: true, MaxReplans: 1})

	go e.Run(context.Background())

	var lastErr Update
	for u := range e.Updates() {
		if u.Kind == UpdateConfirmationRequest {
			coord.SubmitConfirmation("s1", confirm.ActionModify, nil, "try again")
		}
		if u.Kind == UpdateError {
			lastErr = u
		}
	}

	require.Equal(t, CategoryReplanCapExceeded, lastErr.ErrorCategory)
}

// sanity check that the timeout path still produces a distinct
// category from a cancel, guarding against the two collapsing together.
func TestEngineConfirmationTimeoutCategory(t *testing.T) {
	prov := &scriptedProvider{
		classifyResp:   `{"task": true}`,
		decomposeResps: []string{`{"tasks": [{"id": "t1", "tool": "shell", "args": {"command": "echo hi"}}]}`},
	}
	e, _ := newTestEngine(t, prov, Config{ConfirmByHuman: true, ConfirmationTimeoutSeconds: 1})

	start := time.Now()
	go e.Run(context.Background())

	var lastErr Update
	for u := range e.Updates() {
		if u.Kind == UpdateError {
			lastErr = u
		}
	}

	require.Equal(t, CategoryConfirmationTimeout, lastErr.ErrorCategory)
	require.GreaterOrEqual(t, time.Since(start), time.Second)
}
