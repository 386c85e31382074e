// Package httpadapter exposes a Runtime over HTTP: a chunked JSON stream
// of engine Updates, paused and resumed in-band through the literal
// "CONFIRM_ACTION:" prefix, plus an equivalent WebSocket stream for
// callers that prefer a persistent connection.
package httpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/QUSEIT/simacode-sub000/pkg/confirm"
	"github.com/QUSEIT/simacode-sub000/pkg/engine"
	"github.com/QUSEIT/simacode-sub000/pkg/service"
)

// Adapter serves a Runtime over HTTP. It tracks in-flight engines by
// session ID so a paused confirmation_request chunk can be resumed by a
// later request against the same session.
type Adapter struct {
	rt *service.Runtime

	mu      sync.Mutex
	engines map[string]*engine.Engine
	seenAny map[string]bool // session has emitted at least one task_plan
}

// New constructs an Adapter bound to rt's shared singletons.
func New(rt *service.Runtime) *Adapter {
	return &Adapter{
		rt:      rt,
		engines: make(map[string]*engine.Engine),
		seenAny: make(map[string]bool),
	}
}

// Router builds the chi mux: POST /v1/sessions to start a turn, POST
// /v1/sessions/{id}/messages to resume a paused one, GET
// /v1/sessions/{id}/ws for the WebSocket equivalent, and GET {metrics
// endpoint} for Prometheus scraping. Every route runs behind the
// observability middleware, which is a no-op when tracing and metrics
// are both disabled.
func (a *Adapter) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(a.rt.Observability.Recorder().HTTPMiddleware)
	r.Post("/v1/sessions", a.handleStart)
	r.Post("/v1/sessions/{id}/messages", a.handleResume)
	r.Get("/v1/sessions/{id}/ws", a.handleWebSocket)
	r.Get(a.rt.Observability.MetricsEndpoint(), a.rt.Observability.MetricsHandler().ServeHTTP)
	return r
}

type startRequest struct {
	Input string `json:"input"`
}

type messageRequest struct {
	Message string `json:"message"`
}

func (a *Adapter) handleStart(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	sessionID := uuid.NewString()
	e := a.rt.NewEngine(sessionID, req.Input)

	a.mu.Lock()
	a.engines[sessionID] = e
	a.mu.Unlock()

	// The engine outlives this request when the stream pauses for
	// confirmation, so it must not stop when the handler returns.
	go e.Run(context.WithoutCancel(r.Context()))
	a.stream(w, sessionID, e)
}

func (a *Adapter) handleResume(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")

	var req messageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	a.mu.Lock()
	e, ok := a.engines[sessionID]
	a.mu.Unlock()
	if !ok {
		http.Error(w, "unknown or completed session", http.StatusNotFound)
		return
	}

	action, freeText, err := parseConfirmAction(req.Message)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	a.rt.Confirm.SubmitConfirmation(sessionID, action, nil, freeText)
	a.stream(w, sessionID, e)
}

// parseConfirmAction parses the literal "CONFIRM_ACTION:" resume prefix:
// confirm, cancel, or modify[:free-text].
func parseConfirmAction(message string) (confirm.Action, string, error) {
	const prefix = "CONFIRM_ACTION:"
	if !strings.HasPrefix(message, prefix) {
		return "", "", errors.New("message must begin with \"CONFIRM_ACTION:\"")
	}
	body := strings.TrimPrefix(message, prefix)
	parts := strings.SplitN(body, ":", 2)
	switch parts[0] {
	case "confirm":
		return confirm.ActionConfirm, "", nil
	case "cancel":
		return confirm.ActionCancel, "", nil
	case "modify":
		freeText := ""
		if len(parts) == 2 {
			freeText = parts[1]
		}
		return confirm.ActionModify, freeText, nil
	default:
		return "", "", errors.New("CONFIRM_ACTION must be confirm, cancel, or modify[:free-text]")
	}
}

// chunk is one NDJSON object in the response body; ChunkType takes one
// of the string values assigned in toChunk.
type chunk struct {
	ChunkType         string         `json:"chunk_type"`
	SessionID         string         `json:"session_id"`
	Content           string         `json:"content,omitempty"`
	ConfirmationData  map[string]any `json:"confirmation_data,omitempty"`
	RequiresResponse  bool           `json:"requires_response,omitempty"`
	StreamPaused      bool           `json:"stream_paused,omitempty"`
	ErrorCategory     string         `json:"error_category,omitempty"`
	Metadata          map[string]any `json:"metadata,omitempty"`
}

// stream drains e's Updates onto w as newline-delimited JSON chunks,
// flushing after each one, until a confirmation_request pauses the
// stream or a terminal update closes it.
func (a *Adapter) stream(w http.ResponseWriter, sessionID string, e *engine.Engine) {
	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	flusher, _ := w.(http.Flusher)
	enc := json.NewEncoder(w)

	for u := range e.Updates() {
		c, terminal, paused := a.toChunk(sessionID, u)
		if err := enc.Encode(c); err != nil {
			slog.Warn("httpadapter: write chunk failed", "session_id", sessionID, "err", err)
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
		if paused {
			return
		}
		if terminal {
			a.mu.Lock()
			delete(a.engines, sessionID)
			delete(a.seenAny, sessionID)
			a.mu.Unlock()
			return
		}
	}
}

// toChunk translates one engine Update into the chunk wire shape,
// reporting whether it ends the turn (terminal) or merely pauses the
// stream pending a confirmation response (paused).
func (a *Adapter) toChunk(sessionID string, u engine.Update) (chunk, bool, bool) {
	c := chunk{SessionID: sessionID, Metadata: u.Metadata}

	switch u.Kind {
	case engine.UpdateConversationalResponse:
		c.ChunkType = "content"
		c.Content = u.Text
	case engine.UpdateStatus:
		c.ChunkType = "status"
		c.Content = u.Text
	case engine.UpdateTaskInit:
		c.ChunkType = "status"
		c.Content = "starting tasks"
	case engine.UpdateTaskPlan:
		a.mu.Lock()
		first := !a.seenAny[sessionID]
		a.seenAny[sessionID] = true
		a.mu.Unlock()
		if first {
			c.ChunkType = "task_init"
		} else {
			c.ChunkType = "task_replanned"
		}
		c.ConfirmationData = map[string]any{"tasks": u.Tasks}
	case engine.UpdateToolExecution:
		c.ChunkType = "status"
		c.Content = u.Tool
		c.ConfirmationData = map[string]any{"task_id": u.TaskID, "args": u.ArgsSummary}
	case engine.UpdateToolProgress:
		c.ChunkType = "mcp_progress"
		c.ConfirmationData = map[string]any{"task_id": u.TaskID, "progress": u.ProgressPayload}
	case engine.UpdateSubTaskResult:
		c.ChunkType = "tool_output"
		c.Content = u.OutcomeText
		c.ConfirmationData = map[string]any{"task_id": u.TaskID}
	case engine.UpdateConfirmationRequest:
		c.ChunkType = "confirmation_request"
		c.RequiresResponse = true
		c.StreamPaused = true
		c.ConfirmationData = map[string]any{
			"round":           u.Round,
			"timeout_seconds": u.TimeoutSeconds,
			"tasks_summary":   u.TasksSummary,
		}
		return c, false, true
	case engine.UpdateConfirmationReceived:
		c.ChunkType = "confirmation_received"
		c.ConfirmationData = map[string]any{"action": u.Action}
	case engine.UpdateFinalResult:
		c.ChunkType = "completion"
		c.Content = u.Text
		return c, true, false
	case engine.UpdateError:
		c.ChunkType = "error"
		c.Content = u.Text
		c.ErrorCategory = string(u.ErrorCategory)
		return c, true, false
	}
	return c, false, false
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// handleWebSocket offers the same turn over a persistent connection: the
// server pushes one chunk JSON object per message, and the client sends
// a "CONFIRM_ACTION:" text message to resume a paused turn. The first
// client message is the initial input.
func (a *Adapter) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("httpadapter: websocket upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		msg := string(data)

		a.mu.Lock()
		e, resuming := a.engines[sessionID]
		a.mu.Unlock()

		if !resuming {
			e = a.rt.NewEngine(sessionID, msg)
			a.mu.Lock()
			a.engines[sessionID] = e
			a.mu.Unlock()
			go e.Run(ctx)
		} else {
			action, freeText, err := parseConfirmAction(msg)
			if err != nil {
				conn.WriteJSON(chunk{ChunkType: "error", SessionID: sessionID, Content: err.Error()})
				continue
			}
			a.rt.Confirm.SubmitConfirmation(sessionID, action, nil, freeText)
		}

		if !a.streamWS(conn, sessionID, e) {
			return
		}
	}
}

// streamWS mirrors stream but writes each chunk as a WebSocket text
// message; it returns false once the turn reaches a terminal chunk, at
// which point the outer read loop should stop (the caller closes the
// connection rather than waiting for another client message).
func (a *Adapter) streamWS(conn *websocket.Conn, sessionID string, e *engine.Engine) bool {
	for u := range e.Updates() {
		c, terminal, paused := a.toChunk(sessionID, u)
		if err := conn.WriteJSON(c); err != nil {
			return false
		}
		if paused {
			return true
		}
		if terminal {
			a.mu.Lock()
			delete(a.engines, sessionID)
			delete(a.seenAny, sessionID)
			a.mu.Unlock()
			return false
		}
	}
	return false
}

// Serve runs the HTTP server on addr until ctx is cancelled, shutting
// down gracefully with a bounded drain.
func Serve(ctx context.Context, addr string, a *Adapter) error {
	srv := &http.Server{Addr: addr, Handler: a.Router()}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
