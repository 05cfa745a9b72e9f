package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/okian/learnpath/internal/adapters/capture"
	"github.com/okian/learnpath/internal/domain/model"
	"github.com/okian/learnpath/internal/domain/pipeline"
)

const (
	// maxFrameBytes bounds one pushed frame.
	maxFrameBytes = 8 << 20
	// resultWait is how long close and result requests wait for a run.
	resultWait = 5 * time.Second
)

// CaptureSessions runs live captures fed by a remote producer.
type CaptureSessions interface {
	OpenCapture(ctx context.Context, score float64) (string, error)
	PushFrame(ctx context.Context, id string, data []byte) (int, error)
	CloseCapture(ctx context.Context, id string) error
	WaitCapture(ctx context.Context, id string) (*pipeline.Result, error)
	CancelCapture(ctx context.Context, id string) error
}

type openCaptureRequest struct {
	Score *float64 `json:"score"`
}

type captureResponse struct {
	SessionID string `json:"session_id"`
	Status    string `json:"status"`
	Queued    int    `json:"queued,omitempty"`
}

// CaptureHandler serves capture sessions: a producer opens a session,
// pushes encoded frames, and closes it to collect the learning path.
type CaptureHandler struct {
	deps CaptureSessions
}

// NewCaptureHandler creates a new capture handler.
func NewCaptureHandler(deps CaptureSessions) *CaptureHandler {
	return &CaptureHandler{deps: deps}
}

// HandleOpen handles POST /capture.
func (h *CaptureHandler) HandleOpen(w http.ResponseWriter, r *http.Request) {
	const op = "api.capture_open"
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", ErrMethodNotAllowed)
		return
	}
	var req openCaptureRequest
	if err := decodeBody(w, r, op, &req); err != nil {
		writeKindError(w, err)
		return
	}
	if req.Score == nil {
		writeKindError(w, model.Errorf(op, model.ErrMalformedInput, "missing score"))
		return
	}
	id, err := h.deps.OpenCapture(r.Context(), *req.Score)
	if err != nil {
		writeCaptureError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, captureResponse{SessionID: id, Status: "capturing"})
}

// HandleFrames handles POST /capture/{id}/frames. The body is one encoded
// frame.
func (h *CaptureHandler) HandleFrames(w http.ResponseWriter, r *http.Request) {
	const op = "api.capture_frame"
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", ErrMethodNotAllowed)
		return
	}
	id := r.PathValue("id")
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxFrameBytes))
	if err != nil {
		writeKindError(w, model.WrapKind(op, model.ErrMalformedInput, err))
		return
	}
	if len(data) == 0 {
		writeKindError(w, model.Errorf(op, model.ErrMalformedInput, "empty frame"))
		return
	}
	n, err := h.deps.PushFrame(r.Context(), id, data)
	if err != nil {
		writeCaptureError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, captureResponse{SessionID: id, Status: "capturing", Queued: n})
}

// HandleClose handles POST /capture/{id}/close. Buffered frames are still
// captured; the response carries the result when the run finishes in time.
func (h *CaptureHandler) HandleClose(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", ErrMethodNotAllowed)
		return
	}
	id := r.PathValue("id")
	if err := h.deps.CloseCapture(r.Context(), id); err != nil {
		writeCaptureError(w, err)
		return
	}
	h.writeResult(w, r, id)
}

// HandleSession handles GET and DELETE /capture/{id}.
func (h *CaptureHandler) HandleSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	switch r.Method {
	case http.MethodGet:
		h.writeResult(w, r, id)
	case http.MethodDelete:
		if err := h.deps.CancelCapture(r.Context(), id); err != nil {
			writeCaptureError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", ErrMethodNotAllowed)
	}
}

func (h *CaptureHandler) writeResult(w http.ResponseWriter, r *http.Request, id string) {
	ctx, cancel := context.WithTimeout(r.Context(), resultWait)
	defer cancel()

	res, err := h.deps.WaitCapture(ctx, id)
	if errors.Is(err, capture.ErrSessionPending) {
		writeJSON(w, http.StatusAccepted, captureResponse{SessionID: id, Status: "capturing"})
		return
	}
	if err != nil {
		writeCaptureError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, predictResponse{
		LearningPath: res.LearningPath,
		RunID:        res.RunID,
		Snapshots:    res.Snapshots,
		Features:     res.Fused,
		StopReason:   res.StopReason,
		Status:       "success",
	})
}

// writeCaptureError maps session errors before falling back to domain kinds.
func writeCaptureError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, capture.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, "not_found", err)
	case errors.Is(err, capture.ErrTooManySessions):
		writeError(w, http.StatusTooManyRequests, "too_many_sessions", err)
	case errors.Is(err, capture.ErrFrameRejected):
		writeError(w, http.StatusTooManyRequests, "queue_full", err)
	case errors.Is(err, capture.ErrSessionFinished):
		writeError(w, http.StatusConflict, "finished", err)
	case errors.Is(err, capture.ErrSessionsShutdown):
		writeError(w, http.StatusServiceUnavailable, "unavailable", err)
	default:
		writeKindError(w, err)
	}
}
