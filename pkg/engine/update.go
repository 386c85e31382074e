package engine

import "github.com/QUSEIT/simacode-sub000/pkg/session"

// UpdateKind tags one variant of the engine's output stream.
type UpdateKind string

const (
	UpdateStatus                 UpdateKind = "status_update"
	UpdateTaskPlan                UpdateKind = "task_plan"
	UpdateTaskInit                UpdateKind = "task_init"
	UpdateToolExecution           UpdateKind = "tool_execution"
	UpdateToolProgress            UpdateKind = "tool_progress"
	UpdateSubTaskResult           UpdateKind = "sub_task_result"
	UpdateConfirmationRequest     UpdateKind = "confirmation_request"
	UpdateConfirmationReceived    UpdateKind = "confirmation_received"
	UpdateConversationalResponse UpdateKind = "conversational_response"
	UpdateFinalResult             UpdateKind = "final_result"
	UpdateError                   UpdateKind = "error"
)

// Update is one item in the engine's output stream, a tagged union over
// the fields relevant to Kind.
type Update struct {
	Kind UpdateKind

	Text string

	Tasks   []session.Task
	TaskIDs []string

	TaskID          string
	Tool            string
	ArgsSummary     map[string]any
	ProgressPayload map[string]any
	OutcomeText     string

	SessionID      string
	TasksSummary   string
	TimeoutSeconds int
	Round          int
	Action         string

	Metadata map[string]any

	ErrorCategory ErrorCategory
}
