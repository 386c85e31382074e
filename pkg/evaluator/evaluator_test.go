package evaluator

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/QUSEIT/simacode-sub000/pkg/session"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

type fakeProvider struct {
	structuredJSON string
	err            error
}

func (f *fakeProvider) Name() string { return "fake" }
func (f *fakeProvider) GenerateText(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return "", nil
}
func (f *fakeProvider) GenerateStructured(ctx context.Context, systemPrompt, userPrompt string, schema map[string]any, out any) error {
	if f.err != nil {
		return f.err
	}
	return json.Unmarshal([]byte(f.structuredJSON), out)
}

func TestDeterministicEvaluatorContinueOnSuccess(t *testing.T) {
	var e DeterministicEvaluator
	v, _, err := e.EvaluateTask(context.Background(), session.Task{ID: "t1"}, session.TaskResult{Success: true}, nil, nil)
	require.NoError(t, err)
	require.Equal(t, VerdictContinue, v)
}

func TestDeterministicEvaluatorReplanOnFailure(t *testing.T) {
	var e DeterministicEvaluator
	v, reason, err := e.EvaluateTask(context.Background(), session.Task{ID: "t1"}, session.TaskResult{Success: false, Error: "boom"}, nil, nil)
	require.NoError(t, err)
	require.Equal(t, VerdictReplan, v)
	require.Equal(t, "boom", reason)
}

func TestDeterministicEvaluatorFinalRequiresAllSuccess(t *testing.T) {
	var e DeterministicEvaluator
	plan := []session.Task{{ID: "t1"}, {ID: "t2"}}
	results := map[string]session.TaskResult{
		"t1": {TaskID: "t1", Success: true},
		"t2": {TaskID: "t2", Success: false},
	}
	ok, _, err := e.EvaluateFinal(context.Background(), plan, results)
	require.NoError(t, err)
	require.False(t, ok)

	results["t2"] = session.TaskResult{TaskID: "t2", Success: true}
	ok, _, err = e.EvaluateFinal(context.Background(), plan, results)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestAIEvaluatorDisabledDegradesToDeterministic(t *testing.T) {
	e := NewAIEvaluator(&fakeProvider{}, false)
	v, _, err := e.EvaluateTask(context.Background(), session.Task{ID: "t1"}, session.TaskResult{Success: false, Error: "x"}, nil, nil)
	require.NoError(t, err)
	require.Equal(t, VerdictReplan, v)
}

func TestAIEvaluatorUsesProviderVerdict(t *testing.T) {
	e := NewAIEvaluator(&fakeProvider{structuredJSON: `{"verdict": "retry-same", "reason": "transient"}`}, true)
	v, reason, err := e.EvaluateTask(context.Background(), session.Task{ID: "t1"}, session.TaskResult{Success: false, Error: "timeout"}, nil, nil)
	require.NoError(t, err)
	require.Equal(t, VerdictRetrySame, v)
	require.Equal(t, "transient", reason)
}

func TestAIEvaluatorFallsBackOnProviderError(t *testing.T) {
	e := NewAIEvaluator(&fakeProvider{err: errBoom}, true)
	v, _, err := e.EvaluateTask(context.Background(), session.Task{ID: "t1"}, session.TaskResult{Success: false, Error: "x"}, nil, nil)
	require.NoError(t, err)
	require.Equal(t, VerdictReplan, v)
}

func TestAIEvaluatorSkipsCallOnTrivialSuccess(t *testing.T) {
	e := NewAIEvaluator(&fakeProvider{err: errBoom}, true)
	v, _, err := e.EvaluateTask(context.Background(), session.Task{ID: "t1"}, session.TaskResult{Success: true}, nil, nil)
	require.NoError(t, err)
	require.Equal(t, VerdictContinue, v)
}
