package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"medrun/internal/agent"
)

// Runner runs one query to completion and exposes its event stream.
type Runner interface {
	Run(ctx context.Context, query string) (*agent.Session, <-chan agent.Event)
}

// AskRequest is the synchronous query request body.
type AskRequest struct {
	Query string `json:"query"`
}

// AskResponse is the synchronous query response.
type AskResponse struct {
	SessionID string       `json:"session_id"`
	Answer    string       `json:"answer"`
	StepsUsed int          `json:"steps_used"`
	Tasks     []TaskResult `json:"tasks"`
}

// TaskResult summarizes one task's outcome.
type TaskResult struct {
	ID          string `json:"id"`
	Description string `json:"description"`
	Status      string `json:"status"`
	Reason      string `json:"reason,omitempty"`
	Steps       int    `json:"steps"`
}

// AskHandler runs a query to completion and returns the answer with the
// per-task outcomes. Clients that want live progress use the WebSocket
// endpoint instead.
func AskHandler(runner Runner) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req AskRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			SendError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "request body must be JSON with a query field")
			return
		}
		if strings.TrimSpace(req.Query) == "" {
			SendError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "query must not be empty")
			return
		}

		sess, events := runner.Run(r.Context(), req.Query)
		for range events {
		}

		resp := AskResponse{
			SessionID: sess.ID,
			Answer:    sess.Answer,
			StepsUsed: sess.StepsUsed,
		}
		for _, t := range sess.Tasks {
			resp.Tasks = append(resp.Tasks, TaskResult{
				ID:          t.ID,
				Description: t.Description,
				Status:      string(t.Status),
				Reason:      t.FailureReason,
				Steps:       t.Steps,
			})
		}
		SendJSON(w, http.StatusOK, resp)
	}
}
