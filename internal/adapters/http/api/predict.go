package api

import (
	"errors"
	"net/http"

	"github.com/okian/learnpath/internal/domain/model"
)

// predictRequest is the body of POST /predict. Exactly one of the
// expression fields may be set; emotionProbabilities is the camelCase
// spelling older clients send.
type predictRequest struct {
	Score                     *float64            `json:"score"`
	EmotionProbabilities      model.Observation   `json:"emotion_probabilities"`
	EmotionProbabilitiesCamel model.Observation   `json:"emotionProbabilities"`
	Observations              []model.Observation `json:"observations"`
}

func (p *predictRequest) observations() ([]model.Observation, error) {
	single := p.EmotionProbabilities
	if single == nil {
		single = p.EmotionProbabilitiesCamel
	} else if p.EmotionProbabilitiesCamel != nil {
		return nil, errors.New("both emotion_probabilities and emotionProbabilities set")
	}
	switch {
	case single != nil && p.Observations != nil:
		return nil, errors.New("set either emotion_probabilities or observations, not both")
	case single != nil:
		return []model.Observation{single}, nil
	default:
		return p.Observations, nil
	}
}

type predictResponse struct {
	LearningPath model.LearningPath `json:"learning_path"`
	RunID        string             `json:"run_id,omitempty"`
	Snapshots    int                `json:"snapshots,omitempty"`
	Features     model.FusedVector  `json:"features,omitempty"`
	StopReason   string             `json:"stop_reason,omitempty"`
	Status       string             `json:"status"`
}

type fusedRequest struct {
	Features model.FusedVector `json:"features"`
}

// PredictHandler serves learning path predictions.
type PredictHandler struct {
	deps Predictor
}

// NewPredictHandler creates a new predict handler.
func NewPredictHandler(deps Predictor) *PredictHandler {
	return &PredictHandler{deps: deps}
}

// HandlePredict handles POST /predict.
func (h *PredictHandler) HandlePredict(w http.ResponseWriter, r *http.Request) {
	const op = "api.predict"
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", ErrMethodNotAllowed)
		return
	}
	var req predictRequest
	if err := decodeBody(w, r, op, &req); err != nil {
		writeKindError(w, err)
		return
	}
	if req.Score == nil {
		writeKindError(w, model.Errorf(op, model.ErrMalformedInput, "missing score"))
		return
	}
	obs, err := req.observations()
	if err != nil {
		writeKindError(w, model.WrapKind(op, model.ErrMalformedInput, err))
		return
	}

	res, err := h.deps.Predict(r.Context(), obs, *req.Score)
	if err != nil {
		writeKindError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, predictResponse{
		LearningPath: res.LearningPath,
		RunID:        res.RunID,
		Snapshots:    res.Snapshots,
		Features:     res.Fused,
		Status:       "success",
	})
}

// HandlePredictFused handles POST /predict/fused.
func (h *PredictHandler) HandlePredictFused(w http.ResponseWriter, r *http.Request) {
	const op = "api.predict_fused"
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", ErrMethodNotAllowed)
		return
	}
	var req fusedRequest
	if err := decodeBody(w, r, op, &req); err != nil {
		writeKindError(w, err)
		return
	}
	path, err := h.deps.PredictFused(r.Context(), req.Features)
	if err != nil {
		writeKindError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, predictResponse{LearningPath: path, Status: "success"})
}
