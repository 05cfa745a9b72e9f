package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/okian/learnpath/internal/adapters/repository"
)

type questionsResponse struct {
	Questions []repository.Question `json:"questions"`
	Missing   []int                 `json:"missing,omitempty"`
	Status    string                `json:"status"`
}

// QuestionsHandler serves questions for a learning path.
type QuestionsHandler struct {
	deps QuestionSource
}

// NewQuestionsHandler creates a new questions handler.
func NewQuestionsHandler(deps QuestionSource) *QuestionsHandler {
	return &QuestionsHandler{deps: deps}
}

// HandleGetQuestions handles GET /questions?path=0,1,2.
func (h *QuestionsHandler) HandleGetQuestions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", ErrMethodNotAllowed)
		return
	}
	path, err := parsePath(r.URL.Query().Get("path"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "malformed_input", err)
		return
	}
	sel, err := h.deps.QuestionsForPath(r.Context(), path)
	switch {
	case errors.Is(err, repository.ErrInvalidDifficulty):
		writeError(w, http.StatusBadRequest, "malformed_input", err)
		return
	case errors.Is(err, repository.ErrNoQuestionBank):
		writeError(w, http.StatusServiceUnavailable, "unavailable", err)
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, "internal", err)
		return
	}
	questions := sel.Questions
	if questions == nil {
		questions = []repository.Question{}
	}
	writeJSON(w, http.StatusOK, questionsResponse{Questions: questions, Missing: sel.Missing, Status: "success"})
}

// parsePath parses a comma separated list of difficulty classes.
func parsePath(raw string) ([]int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrMissingPath
	}
	parts := strings.Split(raw, ",")
	path := make([]int, len(parts))
	for i, p := range parts {
		d, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, errors.Join(ErrBadRequest, err)
		}
		path[i] = d
	}
	return path, nil
}
