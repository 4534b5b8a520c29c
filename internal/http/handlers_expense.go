package http

import (
	"net/http"
	"strings"

	"fiscalflow/internal/core"
	"fiscalflow/internal/log"
)

func (s *Server) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	params := ParseListParams(r.URL.Query())
	page, err := s.api.ListExpenses(r.Context(), params.Cursor, params.Limit)
	if err != nil {
		s.fail(w, r, err, "Failed to list expenses", log.OpList)
		return
	}
	NewJSONResponse(page).Write(w)
}

func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r)
	if err != nil {
		s.fail(w, r, err, "Failed to create expense record", log.OpCreate)
		return
	}
	e, err := core.DecodeNewExpense(body)
	if err != nil {
		s.fail(w, r, err, "Failed to create expense record", log.OpCreate)
		return
	}
	created, err := s.api.CreateExpense(r.Context(), e)
	if err != nil {
		s.fail(w, r, err, "Failed to create expense record", log.OpCreate)
		return
	}
	NewJSONResponse(created).Write(w)
}

func (s *Server) handleUpdateExpense(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.PathValue("id"))
	body, err := readBody(w, r)
	if err != nil {
		s.fail(w, r, err, "Failed to update record", log.OpUpdate)
		return
	}
	partial, err := core.DecodeExpensePatch(body)
	if err != nil {
		s.fail(w, r, err, "Failed to update record", log.OpUpdate)
		return
	}
	updated, err := s.api.UpdateExpense(r.Context(), id, partial)
	if err != nil {
		s.fail(w, r, err, "Failed to update record", log.OpUpdate)
		return
	}
	NewJSONResponse(updated).Write(w)
}

func (s *Server) handleDeleteExpense(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.PathValue("id"))
	deleted, err := s.api.DeleteExpense(r.Context(), id)
	if err != nil {
		s.fail(w, r, err, "Failed to delete expense record", log.OpDelete)
		return
	}
	NewJSONResponse(struct {
		ID      string `json:"id"`
		Deleted bool   `json:"deleted"`
	}{id, deleted}).Write(w)
}

func (s *Server) handleDeleteAllExpenses(w http.ResponseWriter, r *http.Request) {
	n, err := s.api.DeleteAllExpenses(r.Context())
	if err != nil {
		s.fail(w, r, err, "Failed to wipe transaction history", log.OpDeleteMany)
		return
	}
	NewJSONResponse(struct {
		DeletedCount int `json:"deletedCount"`
	}{n}).Write(w)
}

// fail logs err and writes the matching error response.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error, msg, op string) {
	resp := FromError(err, msg)
	logger := log.FromContext(r.Context())
	if resp.statusCode >= http.StatusInternalServerError {
		logger.ErrorContext(r.Context(), msg, log.FieldOperation, op, log.FieldError, err)
	} else {
		logger.DebugContext(r.Context(), msg, log.FieldOperation, op, log.FieldError, err)
	}
	resp.Write(w)
}
