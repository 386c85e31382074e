// Package session defines the per-request Session record the engine owns
// exclusively while a request is in flight, plus its persistence (FileStore
// and the MySQL-backed SQLStore).
package session

import "time"

// State is one point in the engine's state machine, mirrored onto the
// session for persistence and resume.
type State string

const (
	StateIdle                 State = "idle"
	StateReasoning             State = "reasoning"
	StatePlanning              State = "planning"
	StateAwaitingConfirmation State = "awaiting_confirmation"
	StateExecuting             State = "executing"
	StateEvaluating            State = "evaluating"
	StateReplanning            State = "replanning"
	StateCompleted             State = "completed"
	StateFailed                State = "failed"
)

// TaskStatus is one point in a task's lifecycle.
type TaskStatus string

const (
	TaskPlanned   TaskStatus = "planned"
	TaskRunning   TaskStatus = "running"
	TaskSucceeded TaskStatus = "succeeded"
	TaskFailed    TaskStatus = "failed"
)

// Task is one planned tool invocation, one node in the plan's DAG.
type Task struct {
	ID          string         `json:"id"`
	Description string         `json:"description"`
	Tool        string         `json:"tool"`
	Args        map[string]any `json:"args"`
	Expected    string         `json:"expected,omitempty"`
	Priority    int            `json:"priority"`
	DependsOn   []string       `json:"depends_on,omitempty"`
	Type        string         `json:"type,omitempty"`
	Status      TaskStatus     `json:"status"`
	CreatedAt   time.Time      `json:"created_at"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
}

// TaskResult is the terminal outcome recorded for a task.
type TaskResult struct {
	TaskID   string         `json:"task_id"`
	Success  bool           `json:"success"`
	Output   map[string]any `json:"output,omitempty"`
	Error    string         `json:"error,omitempty"`
	Category string         `json:"category,omitempty"`
}

// LogEntry is one line in the session's append-only log.
type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Kind      string    `json:"kind"` // "transition" or "tool_summary"
	Text      string    `json:"text"`
}

// Session is the full durable state of one conversation instance.
type Session struct {
	ID    string `json:"id"`
	State State  `json:"state"`

	Input string `json:"input"`

	Plan    []Task                `json:"plan,omitempty"`
	Results map[string]TaskResult `json:"results,omitempty"`

	Log []LogEntry `json:"log,omitempty"`

	ReplanCount int `json:"replan_count"`
	MaxReplans  int `json:"max_replans"`

	ConfirmationRound int `json:"confirmation_round"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// New creates a fresh Idle session for the given input.
func New(id, input string, maxReplans int) *Session {
	now := time.Now()
	return &Session{
		ID:         id,
		State:      StateIdle,
		Input:      input,
		Results:    make(map[string]TaskResult),
		MaxReplans: maxReplans,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// Transition moves the session to a new state and appends a log entry.
// The engine is the sole caller; this is not safe for concurrent use.
func (s *Session) Transition(to State) {
	s.Log = append(s.Log, LogEntry{
		Timestamp: time.Now(),
		Kind:      "transition",
		Text:      string(s.State) + " -> " + string(to),
	})
	s.State = to
	s.UpdatedAt = time.Now()
}

// LogToolSummary appends a one-line tool-summary entry to the session log,
// which is persisted with the session. The CLI/HTTP adapters render engine
// Updates, not this log.
func (s *Session) LogToolSummary(text string) {
	s.Log = append(s.Log, LogEntry{Timestamp: time.Now(), Kind: "tool_summary", Text: text})
	s.UpdatedAt = time.Now()
}

// RecordResult stores a task's terminal outcome.
func (s *Session) RecordResult(result TaskResult) {
	if s.Results == nil {
		s.Results = make(map[string]TaskResult)
	}
	s.Results[result.TaskID] = result
}

// IsTerminal reports whether the session has reached Completed or Failed.
func (s *Session) IsTerminal() bool {
	return s.State == StateCompleted || s.State == StateFailed
}
