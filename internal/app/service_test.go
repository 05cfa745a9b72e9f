package service_test

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/okian/learnpath/internal/adapters/capture"
	"github.com/okian/learnpath/internal/adapters/repository"
	service "github.com/okian/learnpath/internal/app"
	"github.com/okian/learnpath/internal/config"
	"github.com/okian/learnpath/internal/domain/difficulty/difficultytest"
	"github.com/okian/learnpath/internal/domain/model"
	"github.com/okian/learnpath/internal/domain/pipeline"
	"github.com/okian/learnpath/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	if err := logger.Init(logger.WithWriter(io.Discard)); err != nil {
		panic(err)
	}
}

var observations = []model.Observation{
	{"angry": 0.1, "happy": 0.6, "neutral": 0.2, "sad": 0.05, "surprise": 0.05},
	{"angry": 0.0, "happy": 0.8, "neutral": 0.1, "sad": 0.05, "surprise": 0.05},
	{"angry": 0.2, "happy": 0.4, "neutral": 0.3, "sad": 0.05, "surprise": 0.05},
}

const bankYAML = `questions:
  - {id: e1, question: "1+1?", options: ["1", "2"], correct_answer: 1, difficulty: 0}
  - {id: m1, question: "6x7?", options: ["42", "48"], correct_answer: 0, difficulty: 1}
  - {id: h1, question: "144/12?", options: ["11", "12"], correct_answer: 1, difficulty: 2}
`

func writeBank(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "questions.yaml")
	if err := os.WriteFile(path, []byte(bankYAML), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestService_Start(t *testing.T) {
	Convey("Given a service pointed at the reference parameters", t, func() {
		dir := t.TempDir()
		params := difficultytest.WriteReference(t, dir, "adaptive.json")
		svc := service.New(
			service.WithParamsPath(params),
			service.WithQuestionBankPath(writeBank(t, dir)),
			service.WithQuestionSeed(1),
		)
		defer svc.Stop()

		So(svc.Ready(), ShouldBeFalse)

		Convey("When starting the service", func() {
			err := svc.Start(context.Background())

			Convey("Then the model and question bank are loaded", func() {
				So(err, ShouldBeNil)
				So(svc.Ready(), ShouldBeTrue)
				So(svc.Model().Loaded(), ShouldBeTrue)
				stats := svc.GetStats()
				So(stats["started"], ShouldEqual, true)
				So(stats["modelLoaded"], ShouldEqual, true)
				So(stats["questionBankSize"], ShouldEqual, 3)
				So(stats["questionBankGaps"], ShouldBeEmpty)
			})

			Convey("And starting again is a no-op", func() {
				So(svc.Start(context.Background()), ShouldBeNil)
			})
		})
	})

	Convey("Given a missing parameter file", t, func() {
		svc := service.New(service.WithParamsPath(filepath.Join(t.TempDir(), "missing.json")))

		err := svc.Start(context.Background())

		Convey("Then Start fails with a parameter load error", func() {
			So(errors.Is(err, model.ErrParameterLoad), ShouldBeTrue)
			So(svc.Ready(), ShouldBeFalse)
		})
	})

	Convey("Given parameters that disagree with the configured dimensions", t, func() {
		cfg := config.New()
		cfg.HiddenDim = 16
		cfg.ParamsPath = difficultytest.WriteReference(t, t.TempDir(), "adaptive.yaml")
		svc := service.NewFromConfig(cfg)

		err := svc.Start(context.Background())

		Convey("Then Start fails with a shape mismatch", func() {
			So(errors.Is(err, model.ErrShapeMismatch), ShouldBeTrue)
		})
	})
}

func TestService_Predict(t *testing.T) {
	Convey("Given a started service", t, func() {
		svc := service.New(service.WithModel(difficultytest.LoadedReference(t)))
		So(svc.Start(context.Background()), ShouldBeNil)
		defer svc.Stop()
		ctx := context.Background()

		Convey("When predicting from observations", func() {
			res, err := svc.Predict(ctx, observations, 0.75)

			Convey("Then the reference learning path is returned", func() {
				So(err, ShouldBeNil)
				So(res.LearningPath, ShouldResemble, model.LearningPath{0, 1, 2, 0, 2})
				So(res.RunID, ShouldNotBeEmpty)
			})
		})

		Convey("When predicting from a fused vector and a batch", func() {
			one, err := svc.PredictFused(ctx, model.FusedVector{0.02, 0.9, 0.04, 0.02, 0.02, 0.2})
			So(err, ShouldBeNil)
			batch, err := svc.PredictBatch(ctx, []model.FusedVector{
				{0.1, 0.6, 0.2, 0.05, 0.05, 0.75},
				{0.02, 0.9, 0.04, 0.02, 0.02, 0.2},
			})

			Convey("Then the results agree", func() {
				So(err, ShouldBeNil)
				So(one, ShouldResemble, model.LearningPath{0, 2, 2, 0, 0})
				So(batch, ShouldResemble, []model.LearningPath{{0, 1, 2, 0, 2}, {0, 2, 2, 0, 0}})
			})
		})

		Convey("When the fused vector is too short", func() {
			_, err := svc.PredictFused(ctx, model.FusedVector{0.1, 0.2})
			So(errors.Is(err, model.ErrShapeMismatch), ShouldBeTrue)
			So(svc.GetStats()["failures"], ShouldEqual, int64(1))
		})

		Convey("When asking for questions without a bank", func() {
			_, err := svc.QuestionsForPath(ctx, []int{0, 1})
			So(errors.Is(err, repository.ErrNoQuestionBank), ShouldBeTrue)
		})
	})

	Convey("Given a service that was never started", t, func() {
		svc := service.New()

		_, err := svc.PredictFused(context.Background(), model.FusedVector{0, 0, 0, 0, 0, 0})
		So(errors.Is(err, service.ErrNotStarted), ShouldBeTrue)
		So(errors.Is(err, model.ErrParameterLoad), ShouldBeTrue)
	})
}

func TestService_Capture(t *testing.T) {
	Convey("Given a service with a classifier and a channel frame source", t, func() {
		cls := pipeline.ClassifierFunc(func(_ context.Context, f model.Frame) (model.Observation, error) {
			return observations[(f.Seq-1)%len(observations)], nil
		})
		svc := service.New(
			service.WithModel(difficultytest.LoadedReference(t)),
			service.WithClassifier(cls),
			service.WithPipelineOptions(pipeline.WithInterval(0), pipeline.WithSnapshotCount(3)),
		)
		So(svc.Start(context.Background()), ShouldBeNil)
		defer svc.Stop()

		src := capture.NewChannelSource(capture.WithCapacity(8))
		for i := 0; i < 5; i++ {
			So(src.Push(context.Background(), []byte{byte(i)}, "cam"), ShouldBeTrue)
		}

		Convey("When capturing", func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			res, err := svc.Capture(ctx, src, 0.75)

			Convey("Then the pipeline takes the configured number of snapshots", func() {
				So(err, ShouldBeNil)
				So(res.Snapshots, ShouldEqual, 3)
				So(res.StopReason, ShouldEqual, pipeline.StopCount)
				So(res.LearningPath, ShouldResemble, model.LearningPath{0, 1, 2, 0, 2})
				So(svc.GetStats()["captures"], ShouldEqual, int64(1))
			})
		})
	})
}

func TestService_CaptureSession(t *testing.T) {
	cls := pipeline.ClassifierFunc(func(_ context.Context, f model.Frame) (model.Observation, error) {
		return observations[(f.Seq-1)%len(observations)], nil
	})

	Convey("Given a started service with a classifier", t, func() {
		svc := service.New(
			service.WithModel(difficultytest.LoadedReference(t)),
			service.WithClassifier(cls),
			service.WithFrameQueueSize(4),
			service.WithPipelineOptions(pipeline.WithInterval(0), pipeline.WithSnapshotCount(3)),
		)
		So(svc.Start(context.Background()), ShouldBeNil)
		defer svc.Stop()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		Convey("When a producer pushes frames and closes the session", func() {
			id, err := svc.OpenCapture(ctx, 0.75)
			So(err, ShouldBeNil)
			So(svc.GetStats()["captureSessions"], ShouldEqual, 1)
			for i := 0; i < 3; i++ {
				_, err := svc.PushFrame(ctx, id, []byte{byte(i)})
				So(err, ShouldBeNil)
			}
			So(svc.CloseCapture(ctx, id), ShouldBeNil)
			res, err := svc.WaitCapture(ctx, id)

			Convey("Then the pushed frames flow through the pipeline", func() {
				So(err, ShouldBeNil)
				So(res.Snapshots, ShouldEqual, 3)
				So(res.LearningPath, ShouldResemble, model.LearningPath{0, 1, 2, 0, 2})
				So(svc.GetStats()["captureSessions"], ShouldEqual, 0)
			})
		})

		Convey("When the session id is unknown", func() {
			_, err := svc.PushFrame(ctx, "missing", []byte{1})
			So(errors.Is(err, capture.ErrSessionNotFound), ShouldBeTrue)
		})

		Convey("When the service stops with a session waiting for frames", func() {
			_, err := svc.OpenCapture(ctx, 0.5)
			So(err, ShouldBeNil)

			stopped := make(chan struct{})
			go func() {
				svc.Stop()
				close(stopped)
			}()

			Convey("Then Stop cancels the run instead of hanging", func() {
				select {
				case <-stopped:
				case <-time.After(2 * time.Second):
					t.Fatal("stop did not return")
				}
				_, err := svc.OpenCapture(ctx, 0.5)
				So(errors.Is(err, service.ErrNotStarted), ShouldBeTrue)
			})
		})
	})

	Convey("Given a started service without a classifier", t, func() {
		svc := service.New(service.WithModel(difficultytest.LoadedReference(t)))
		So(svc.Start(context.Background()), ShouldBeNil)
		defer svc.Stop()

		_, err := svc.OpenCapture(context.Background(), 0.5)
		So(errors.Is(err, service.ErrNoClassifier), ShouldBeTrue)
		So(errors.Is(err, model.ErrCapture), ShouldBeTrue)
	})

	Convey("Given a service that was never started", t, func() {
		svc := service.New()
		_, err := svc.OpenCapture(context.Background(), 0.5)
		So(errors.Is(err, service.ErrNotStarted), ShouldBeTrue)
	})
}

func TestService_Questions(t *testing.T) {
	Convey("Given a service with a question bank", t, func() {
		dir := t.TempDir()
		svc := service.New(
			service.WithModel(difficultytest.LoadedReference(t)),
			service.WithQuestionBankPath(writeBank(t, dir)),
		)
		So(svc.Start(context.Background()), ShouldBeNil)
		defer svc.Stop()

		sel, err := svc.QuestionsForPath(context.Background(), []int{0, 1, 2, 0, 2})

		Convey("Then each difficulty maps to its only question", func() {
			So(err, ShouldBeNil)
			ids := make([]string, len(sel.Questions))
			for i, q := range sel.Questions {
				ids[i] = q.ID
			}
			So(ids, ShouldResemble, []string{"e1", "m1", "h1", "e1", "h1"})
		})
	})

	Convey("Given a question bank without hard questions", t, func() {
		bank, err := repository.NewQuestionBank([]repository.Question{
			{ID: "e1", Text: "1+1?", Options: []string{"1", "2"}, CorrectAnswer: 1, Difficulty: model.DifficultyEasy},
			{ID: "m1", Text: "6x7?", Options: []string{"42", "48"}, Difficulty: model.DifficultyMedium},
		})
		So(err, ShouldBeNil)
		svc := service.New(
			service.WithModel(difficultytest.LoadedReference(t)),
			service.WithQuestionBank(bank),
		)
		So(svc.Start(context.Background()), ShouldBeNil)
		defer svc.Stop()

		Convey("Then the stats name the uncovered class", func() {
			So(svc.GetStats()["questionBankGaps"], ShouldResemble, []string{"hard"})
		})

		Convey("And hard positions are reported missing", func() {
			sel, err := svc.QuestionsForPath(context.Background(), []int{0, 2, 1})
			So(err, ShouldBeNil)
			So(sel.Missing, ShouldResemble, []int{1})
		})
	})
}
