package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/okian/learnpath/internal/adapters/capture"
	"github.com/okian/learnpath/internal/adapters/http/api"
	"github.com/okian/learnpath/internal/adapters/repository"
	service "github.com/okian/learnpath/internal/app"
	"github.com/okian/learnpath/internal/domain/difficulty/difficultytest"
	"github.com/okian/learnpath/internal/domain/model"
	"github.com/okian/learnpath/internal/domain/pipeline"
	"github.com/okian/learnpath/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

type mockDependencies struct {
	ready       bool
	predictErr  error
	fusedErr    error
	selection   repository.Selection
	questionErr error
	gotScore    float64
	gotObs      []model.Observation
	gotPath     []int

	sessionErr error
	waitErr    error
	gotFrame   []byte
	cancelled  string
}

func (m *mockDependencies) Predict(_ context.Context, obs []model.Observation, score float64) (*pipeline.Result, error) {
	m.gotObs, m.gotScore = obs, score
	if m.predictErr != nil {
		return nil, m.predictErr
	}
	return &pipeline.Result{RunID: "run-1", Snapshots: len(obs), LearningPath: model.LearningPath{1, 1, 1, 1, 1}}, nil
}

func (m *mockDependencies) PredictFused(context.Context, model.FusedVector) (model.LearningPath, error) {
	if m.fusedErr != nil {
		return nil, m.fusedErr
	}
	return model.LearningPath{2, 2, 2, 2, 2}, nil
}

func (m *mockDependencies) QuestionsForPath(_ context.Context, path []int) (repository.Selection, error) {
	m.gotPath = path
	return m.selection, m.questionErr
}

func (m *mockDependencies) Ready() bool { return m.ready }

func (m *mockDependencies) OpenCapture(_ context.Context, score float64) (string, error) {
	m.gotScore = score
	if m.sessionErr != nil {
		return "", m.sessionErr
	}
	return "s-1", nil
}

func (m *mockDependencies) PushFrame(_ context.Context, _ string, data []byte) (int, error) {
	m.gotFrame = data
	if m.sessionErr != nil {
		return 0, m.sessionErr
	}
	return 1, nil
}

func (m *mockDependencies) CloseCapture(context.Context, string) error { return m.sessionErr }

func (m *mockDependencies) WaitCapture(context.Context, string) (*pipeline.Result, error) {
	if m.waitErr != nil {
		return nil, m.waitErr
	}
	return &pipeline.Result{RunID: "run-2", Snapshots: 2, StopReason: pipeline.StopExhausted, LearningPath: model.LearningPath{0, 0, 0, 0, 0}}, nil
}

func (m *mockDependencies) CancelCapture(_ context.Context, id string) error {
	m.cancelled = id
	return m.sessionErr
}

type mockStatsProvider struct {
	stats map[string]interface{}
}

func (m *mockStatsProvider) GetStats() map[string]interface{} {
	return m.stats
}

func do(h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode(w *httptest.ResponseRecorder) map[string]any {
	var out map[string]any
	So(json.Unmarshal(w.Body.Bytes(), &out), ShouldBeNil)
	return out
}

func TestServer_Routes(t *testing.T) {
	Convey("Given an API server over mock dependencies", t, func() {
		deps := &mockDependencies{ready: true}
		stats := &mockStatsProvider{stats: map[string]interface{}{"started": true}}
		h := api.NewServer(deps, stats).Handler()

		Convey("Then /healthz reports readiness", func() {
			w := do(h, http.MethodGet, "/healthz", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(decode(w)["model_loaded"], ShouldEqual, true)
			So(w.Header().Get(api.RequestIDHeader), ShouldNotBeEmpty)
		})

		Convey("Then /healthz is 503 before the model loads", func() {
			deps.ready = false
			w := do(h, http.MethodGet, "/healthz", "")
			So(w.Code, ShouldEqual, http.StatusServiceUnavailable)
			So(decode(w)["status"], ShouldEqual, "unavailable")
		})

		Convey("Then /stats serves the provider's stats", func() {
			w := do(h, http.MethodGet, "/stats", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(decode(w)["started"], ShouldEqual, true)
		})

		Convey("Then /metrics serves Prometheus text", func() {
			do(h, http.MethodGet, "/healthz", "")
			w := do(h, http.MethodGet, "/metrics", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, "learnpath_adaptive_http_requests_total")
		})

		Convey("Then a caller's request id is echoed", func() {
			req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
			req.Header.Set(api.RequestIDHeader, "abc-123")
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)
			So(w.Header().Get(api.RequestIDHeader), ShouldEqual, "abc-123")
		})

		Convey("Then wrong methods are rejected", func() {
			So(do(h, http.MethodGet, "/predict", "").Code, ShouldEqual, http.StatusMethodNotAllowed)
			So(do(h, http.MethodPut, "/predict/fused", "{}").Code, ShouldEqual, http.StatusMethodNotAllowed)
			So(do(h, http.MethodPost, "/questions", "").Code, ShouldEqual, http.StatusMethodNotAllowed)
		})
	})
}

func TestPredictHandler(t *testing.T) {
	Convey("Given the predict endpoint", t, func() {
		deps := &mockDependencies{ready: true}
		h := api.NewServer(deps, &mockStatsProvider{}).Handler()

		Convey("When posting a single distribution", func() {
			w := do(h, http.MethodPost, "/predict", `{"score":0.75,"emotion_probabilities":{"happy":1}}`)

			Convey("Then it is predicted as one observation", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(deps.gotScore, ShouldEqual, 0.75)
				So(deps.gotObs, ShouldResemble, []model.Observation{{"happy": 1}})
				body := decode(w)
				So(body["learning_path"], ShouldResemble, []any{1.0, 1.0, 1.0, 1.0, 1.0})
				So(body["run_id"], ShouldEqual, "run-1")
				So(body["status"], ShouldEqual, "success")
			})
		})

		Convey("When posting the camelCase field", func() {
			w := do(h, http.MethodPost, "/predict", `{"score":0.5,"emotionProbabilities":{"sad":1}}`)
			So(w.Code, ShouldEqual, http.StatusOK)
			So(deps.gotObs, ShouldResemble, []model.Observation{{"sad": 1}})
		})

		Convey("When posting several observations", func() {
			w := do(h, http.MethodPost, "/predict", `{"score":0.1,"observations":[{"happy":1},{"sad":1}]}`)
			So(w.Code, ShouldEqual, http.StatusOK)
			So(len(deps.gotObs), ShouldEqual, 2)
		})

		Convey("When the body is malformed", func() {
			for _, body := range []string{
				`not json`,
				`{"emotion_probabilities":{"happy":1}}`,
				`{"score":0.5,"emotion_probabilities":{"happy":1},"observations":[]}`,
				`{"score":0.5,"unknown":1}`,
			} {
				w := do(h, http.MethodPost, "/predict", body)
				So(w.Code, ShouldEqual, http.StatusBadRequest)
				So(decode(w)["code"], ShouldEqual, "malformed_input")
			}
		})

		Convey("When the pipeline reports domain errors", func() {
			cases := map[error]int{
				model.NewKind("x", model.ErrLabelCoverage):            http.StatusUnprocessableEntity,
				model.NewKind("x", model.ErrInsufficientObservations): http.StatusUnprocessableEntity,
				model.NewKind("x", model.ErrShapeMismatch):            http.StatusBadRequest,
				model.NewKind("x", model.ErrParameterLoad):            http.StatusInternalServerError,
				errors.New("boom"):                                    http.StatusInternalServerError,
			}
			for err, status := range cases {
				deps.predictErr = err
				w := do(h, http.MethodPost, "/predict", `{"score":0.5,"observations":[]}`)
				So(w.Code, ShouldEqual, status)
				So(decode(w)["code"], ShouldEqual, model.KindName(err))
			}
		})

		Convey("When posting a fused vector", func() {
			w := do(h, http.MethodPost, "/predict/fused", `{"features":[0.1,0.6,0.2,0.05,0.05,0.75]}`)
			So(w.Code, ShouldEqual, http.StatusOK)
			So(decode(w)["learning_path"], ShouldResemble, []any{2.0, 2.0, 2.0, 2.0, 2.0})
		})

		Convey("When the fused vector has the wrong shape", func() {
			deps.fusedErr = model.NewKind("x", model.ErrShapeMismatch)
			w := do(h, http.MethodPost, "/predict/fused", `{"features":[0.1]}`)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
			So(decode(w)["code"], ShouldEqual, "shape_mismatch")
		})
	})
}

func TestQuestionsHandler(t *testing.T) {
	Convey("Given the questions endpoint", t, func() {
		deps := &mockDependencies{
			ready: true,
			selection: repository.Selection{
				Questions: []repository.Question{{ID: "e1", Text: "1+1?", Options: []string{"1", "2"}, CorrectAnswer: 1}},
				Missing:   []int{1},
			},
		}
		h := api.NewServer(deps, &mockStatsProvider{}).Handler()

		Convey("When asking for a path", func() {
			w := do(h, http.MethodGet, "/questions?path=0,%201", "")

			Convey("Then the selection is returned", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(deps.gotPath, ShouldResemble, []int{0, 1})
				body := decode(w)
				So(len(body["questions"].([]any)), ShouldEqual, 1)
				So(body["missing"], ShouldResemble, []any{1.0})
			})
		})

		Convey("When the path is missing or invalid", func() {
			So(do(h, http.MethodGet, "/questions", "").Code, ShouldEqual, http.StatusBadRequest)
			So(do(h, http.MethodGet, "/questions?path=0,x", "").Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When no question bank is configured", func() {
			deps.questionErr = repository.ErrNoQuestionBank
			So(do(h, http.MethodGet, "/questions?path=0", "").Code, ShouldEqual, http.StatusServiceUnavailable)
		})

		Convey("When a difficulty is negative", func() {
			deps.questionErr = repository.ErrInvalidDifficulty
			So(do(h, http.MethodGet, "/questions?path=-1", "").Code, ShouldEqual, http.StatusBadRequest)
		})
	})
}

func TestServer_EndToEnd(t *testing.T) {
	Convey("Given the API over a service with the reference model", t, func() {
		svc := service.New(
			service.WithModel(difficultytest.LoadedReference(t)),
			service.WithLogger(logger.Nop()),
		)
		So(svc.Start(context.Background()), ShouldBeNil)
		defer svc.Stop()
		srv := httptest.NewServer(api.NewServer(svc, svc).Handler())
		defer srv.Close()

		Convey("When posting the three recorded observations", func() {
			body := `{"score":0.75,"observations":[
				{"angry":0.1,"happy":0.6,"neutral":0.2,"sad":0.05,"surprise":0.05},
				{"angry":0.0,"happy":0.8,"neutral":0.1,"sad":0.05,"surprise":0.05},
				{"angry":0.2,"happy":0.4,"neutral":0.3,"sad":0.05,"surprise":0.05}]}`
			resp, err := http.Post(srv.URL+"/predict", "application/json", strings.NewReader(body))
			So(err, ShouldBeNil)
			defer resp.Body.Close()

			Convey("Then the reference learning path comes back", func() {
				So(resp.StatusCode, ShouldEqual, http.StatusOK)
				var out struct {
					LearningPath []int `json:"learning_path"`
				}
				So(json.NewDecoder(resp.Body).Decode(&out), ShouldBeNil)
				So(out.LearningPath, ShouldResemble, []int{0, 1, 2, 0, 2})
			})
		})

		Convey("When a distribution misses a target label", func() {
			resp, err := http.Post(srv.URL+"/predict", "application/json",
				strings.NewReader(`{"score":0.75,"emotion_probabilities":{"happy":0.9,"sad":0.1}}`))
			So(err, ShouldBeNil)
			defer resp.Body.Close()

			So(resp.StatusCode, ShouldEqual, http.StatusUnprocessableEntity)
		})
	})
}

func TestCaptureHandler(t *testing.T) {
	Convey("Given the capture endpoints", t, func() {
		deps := &mockDependencies{ready: true}
		h := api.NewServer(deps, &mockStatsProvider{}).Handler()

		Convey("When opening a session", func() {
			w := do(h, http.MethodPost, "/capture", `{"score":0.5}`)

			Convey("Then the session id comes back", func() {
				So(w.Code, ShouldEqual, http.StatusCreated)
				out := decode(w)
				So(out["session_id"], ShouldEqual, "s-1")
				So(out["status"], ShouldEqual, "capturing")
				So(deps.gotScore, ShouldEqual, 0.5)
			})
		})

		Convey("When opening without a score", func() {
			w := do(h, http.MethodPost, "/capture", `{}`)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
			So(decode(w)["code"], ShouldEqual, "malformed_input")
		})

		Convey("When pushing a frame", func() {
			w := do(h, http.MethodPost, "/capture/s-1/frames", "jpeg-bytes")
			So(w.Code, ShouldEqual, http.StatusAccepted)
			So(decode(w)["queued"], ShouldEqual, 1)
			So(string(deps.gotFrame), ShouldEqual, "jpeg-bytes")
		})

		Convey("When pushing an empty frame", func() {
			w := do(h, http.MethodPost, "/capture/s-1/frames", "")
			So(w.Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When closing a session", func() {
			w := do(h, http.MethodPost, "/capture/s-1/close", "")

			Convey("Then the run's result is returned", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				out := decode(w)
				So(out["run_id"], ShouldEqual, "run-2")
				So(out["stop_reason"], ShouldEqual, pipeline.StopExhausted)
				So(out["learning_path"], ShouldResemble, []any{0.0, 0.0, 0.0, 0.0, 0.0})
			})
		})

		Convey("When the run is still going", func() {
			deps.waitErr = capture.ErrSessionPending
			w := do(h, http.MethodGet, "/capture/s-1", "")
			So(w.Code, ShouldEqual, http.StatusAccepted)
			So(decode(w)["status"], ShouldEqual, "capturing")
		})

		Convey("When the run failed with too few snapshots", func() {
			deps.waitErr = model.Errorf("pipeline.run", model.ErrInsufficientObservations, "0 of 1")
			w := do(h, http.MethodGet, "/capture/s-1", "")
			So(w.Code, ShouldEqual, http.StatusUnprocessableEntity)
		})

		Convey("When cancelling a session", func() {
			w := do(h, http.MethodDelete, "/capture/s-9", "")
			So(w.Code, ShouldEqual, http.StatusNoContent)
			So(deps.cancelled, ShouldEqual, "s-9")
		})

		Convey("When using the wrong method", func() {
			So(do(h, http.MethodGet, "/capture", "").Code, ShouldEqual, http.StatusMethodNotAllowed)
			So(do(h, http.MethodGet, "/capture/s-1/frames", "").Code, ShouldEqual, http.StatusMethodNotAllowed)
		})

		Convey("Then session errors map to status codes", func() {
			cases := []struct {
				err  error
				code int
			}{
				{capture.ErrSessionNotFound, http.StatusNotFound},
				{capture.ErrTooManySessions, http.StatusTooManyRequests},
				{capture.ErrFrameRejected, http.StatusTooManyRequests},
				{capture.ErrSessionFinished, http.StatusConflict},
				{capture.ErrSessionsShutdown, http.StatusServiceUnavailable},
				{model.WrapKind("service.push_frame", model.ErrCapture, errors.New("boom")), http.StatusInternalServerError},
			}
			for _, c := range cases {
				deps.sessionErr = c.err
				So(do(h, http.MethodPost, "/capture/s-1/frames", "x").Code, ShouldEqual, c.code)
			}
		})
	})
}

func TestServer_CaptureEndToEnd(t *testing.T) {
	Convey("Given the API over a service with a classifier", t, func() {
		first := model.Observation{"angry": 0.1, "happy": 0.6, "neutral": 0.2, "sad": 0.05, "surprise": 0.05}
		cls := pipeline.ClassifierFunc(func(context.Context, model.Frame) (model.Observation, error) {
			return first, nil
		})
		svc := service.New(
			service.WithModel(difficultytest.LoadedReference(t)),
			service.WithClassifier(cls),
			service.WithPipelineOptions(pipeline.WithInterval(0), pipeline.WithSnapshotCount(5)),
			service.WithLogger(logger.Nop()),
		)
		So(svc.Start(context.Background()), ShouldBeNil)
		defer svc.Stop()
		srv := httptest.NewServer(api.NewServer(svc, svc).Handler())
		defer srv.Close()

		Convey("When a producer pushes three frames and closes the session", func() {
			resp, err := http.Post(srv.URL+"/capture", "application/json", strings.NewReader(`{"score":0.75}`))
			So(err, ShouldBeNil)
			var opened struct {
				SessionID string `json:"session_id"`
			}
			So(json.NewDecoder(resp.Body).Decode(&opened), ShouldBeNil)
			resp.Body.Close()
			So(resp.StatusCode, ShouldEqual, http.StatusCreated)

			for i := 0; i < 3; i++ {
				resp, err := http.Post(srv.URL+"/capture/"+opened.SessionID+"/frames", "image/jpeg", strings.NewReader("frame"))
				So(err, ShouldBeNil)
				resp.Body.Close()
				So(resp.StatusCode, ShouldEqual, http.StatusAccepted)
			}

			resp, err = http.Post(srv.URL+"/capture/"+opened.SessionID+"/close", "", nil)
			So(err, ShouldBeNil)
			defer resp.Body.Close()

			Convey("Then the run ends as source exhausted with the reference path", func() {
				So(resp.StatusCode, ShouldEqual, http.StatusOK)
				var out struct {
					LearningPath []int  `json:"learning_path"`
					Snapshots    int    `json:"snapshots"`
					StopReason   string `json:"stop_reason"`
				}
				So(json.NewDecoder(resp.Body).Decode(&out), ShouldBeNil)
				So(out.Snapshots, ShouldEqual, 3)
				So(out.StopReason, ShouldEqual, pipeline.StopExhausted)
				So(out.LearningPath, ShouldResemble, []int{0, 1, 2, 0, 2})
			})

			Convey("Then the collected session is gone", func() {
				resp, err := http.Get(srv.URL + "/capture/" + opened.SessionID)
				So(err, ShouldBeNil)
				resp.Body.Close()
				So(resp.StatusCode, ShouldEqual, http.StatusNotFound)
			})
		})
	})
}
