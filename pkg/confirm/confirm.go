// Package confirm implements the human-in-the-loop confirmation protocol
// that suspends the engine mid-plan until a verdict arrives, or a timeout
// elapses.
package confirm

import (
	"sync"
	"time"

	"github.com/QUSEIT/simacode-sub000/pkg/session"
)

// Status is the lifecycle of one confirmation record.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusModified  Status = "modified"
	StatusCancelled Status = "cancelled"
	StatusTimedOut  Status = "timed_out"
)

// Action is the verdict a driver submits.
type Action string

const (
	ActionConfirm Action = "confirm"
	ActionModify  Action = "modify"
	ActionCancel  Action = "cancel"
)

// Verdict is what submit_confirmation delivers to the waiting engine.
type Verdict struct {
	Status        Status
	Action        Action
	ModifiedTasks []session.Task
	FreeText      string
}

type pendingRecord struct {
	sessionID string
	round     int
	createdAt time.Time
	expiresAt time.Time
	timer     *time.Timer
	done      chan Verdict
	completed bool
}

// Coordinator is the single mutator of confirmation records, a
// process-local map keyed by session id.
type Coordinator struct {
	mu      sync.Mutex
	pending map[string]*pendingRecord
}

// New constructs an empty Coordinator.
func New() *Coordinator {
	return &Coordinator{pending: make(map[string]*pendingRecord)}
}

// RequestConfirmation creates (or re-enters, incrementing round) a pending
// record for sessionID and returns a channel that receives exactly one
// Verdict: the user's response, or a TimedOut verdict if timeout elapses
// first.
func (c *Coordinator) RequestConfirmation(sessionID string, timeout time.Duration) <-chan Verdict {
	c.mu.Lock()
	defer c.mu.Unlock()

	round := 1
	if existing, ok := c.pending[sessionID]; ok {
		round = existing.round + 1
		if existing.timer != nil {
			existing.timer.Stop()
		}
	}

	rec := &pendingRecord{
		sessionID: sessionID,
		round:     round,
		createdAt: time.Now(),
		expiresAt: time.Now().Add(timeout),
		done:      make(chan Verdict, 1),
	}
	c.pending[sessionID] = rec

	rec.timer = time.AfterFunc(timeout, func() {
		c.timeoutExpired(sessionID, rec)
	})

	return rec.done
}

// Round reports the current confirmation round for sessionID, or 0 if
// there is no pending record.
func (c *Coordinator) Round(sessionID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if rec, ok := c.pending[sessionID]; ok {
		return rec.round
	}
	return 0
}

func (c *Coordinator) timeoutExpired(sessionID string, rec *pendingRecord) {
	c.mu.Lock()
	current, ok := c.pending[sessionID]
	if !ok || current != rec || rec.completed {
		c.mu.Unlock()
		return
	}
	rec.completed = true
	delete(c.pending, sessionID)
	c.mu.Unlock()

	rec.done <- Verdict{Status: StatusTimedOut, Action: ActionCancel}
}

// SubmitConfirmation delivers a verdict for sessionID. A modify verdict
// with zero tasks and no free text is treated as cancel, per the
// confirmation protocol's boundary behavior; a modify with free text but
// no explicit task list is left as a modify so the engine can replan
// from the free text. Returns false if there was no pending record for
// sessionID (a stale or unknown verdict).
func (c *Coordinator) SubmitConfirmation(sessionID string, action Action, modifiedTasks []session.Task, freeText string) bool {
	c.mu.Lock()
	rec, ok := c.pending[sessionID]
	if !ok || rec.completed {
		c.mu.Unlock()
		return false
	}
	rec.completed = true
	delete(c.pending, sessionID)
	if rec.timer != nil {
		rec.timer.Stop()
	}
	c.mu.Unlock()

	if action == ActionModify && len(modifiedTasks) == 0 && freeText == "" {
		action = ActionCancel
	}

	status := StatusCancelled
	switch action {
	case ActionConfirm:
		status = StatusConfirmed
	case ActionModify:
		status = StatusModified
	case ActionCancel:
		status = StatusCancelled
	}

	rec.done <- Verdict{Status: status, Action: action, ModifiedTasks: modifiedTasks, FreeText: freeText}
	return true
}

// HasPending reports whether sessionID currently has an outstanding
// confirmation record.
func (c *Coordinator) HasPending(sessionID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.pending[sessionID]
	return ok
}
