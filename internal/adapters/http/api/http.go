// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/okian/learnpath/internal/adapters/repository"
	"github.com/okian/learnpath/internal/domain/model"
	"github.com/okian/learnpath/internal/domain/pipeline"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	Predictor
	QuestionSource
	CaptureSessions
	// Ready reports whether the model is loaded and serving.
	Ready() bool
}

// Predictor runs inference.
type Predictor interface {
	Predict(ctx context.Context, observations []model.Observation, score float64) (*pipeline.Result, error)
	PredictFused(ctx context.Context, fused model.FusedVector) (model.LearningPath, error)
}

// QuestionSource selects questions for a learning path.
type QuestionSource interface {
	QuestionsForPath(ctx context.Context, path []int) (repository.Selection, error)
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler    *HealthHandler
	statsHandler     *StatsHandler
	predictHandler   *PredictHandler
	questionsHandler *QuestionsHandler
	captureHandler   *CaptureHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider) *Server {
	return &Server{
		healthHandler:    NewHealthHandler(deps),
		statsHandler:     NewStatsHandler(statsProvider),
		predictHandler:   NewPredictHandler(deps),
		questionsHandler: NewQuestionsHandler(deps),
		captureHandler:   NewCaptureHandler(deps),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.Handle("/metrics", MetricsHandler())
	mux.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("/predict", MetricsMiddleware(s.predictHandler.HandlePredict, "predict"))
	mux.HandleFunc("/predict/fused", MetricsMiddleware(s.predictHandler.HandlePredictFused, "predict_fused"))
	mux.HandleFunc("/questions", MetricsMiddleware(s.questionsHandler.HandleGetQuestions, "questions"))
	mux.HandleFunc("/capture", MetricsMiddleware(s.captureHandler.HandleOpen, "capture_open"))
	mux.HandleFunc("/capture/{id}", MetricsMiddleware(s.captureHandler.HandleSession, "capture_session"))
	mux.HandleFunc("/capture/{id}/frames", MetricsMiddleware(s.captureHandler.HandleFrames, "capture_frames"))
	mux.HandleFunc("/capture/{id}/close", MetricsMiddleware(s.captureHandler.HandleClose, "capture_close"))
}

// Handler returns the routes wrapped in the request ID middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.Register(mux)
	return RequestIDMiddleware(mux)
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeKindError maps a domain error kind onto a status code.
func writeKindError(w http.ResponseWriter, err error) {
	kind := model.KindName(err)
	writeError(w, statusFor(err), kind, err)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, model.ErrMalformedInput), errors.Is(err, model.ErrShapeMismatch):
		return http.StatusBadRequest
	case errors.Is(err, model.ErrLabelCoverage), errors.Is(err, model.ErrInsufficientObservations):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// decodeBody decodes a bounded JSON body into v.
func decodeBody(w http.ResponseWriter, r *http.Request, op string, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return model.WrapKind(op, model.ErrMalformedInput, err)
	}
	return nil
}
