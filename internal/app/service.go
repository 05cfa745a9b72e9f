// Package service owns the process-wide lifecycle of the learning path
// engine: it loads the difficulty model once, wires the pipeline and
// question bank, and implements the dependencies of the HTTP API and CLI.
package service

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/learnpath/internal/adapters/capture"
	"github.com/okian/learnpath/internal/adapters/classifier"
	"github.com/okian/learnpath/internal/adapters/repository"
	"github.com/okian/learnpath/internal/config"
	"github.com/okian/learnpath/internal/domain/difficulty"
	"github.com/okian/learnpath/internal/domain/expression"
	"github.com/okian/learnpath/internal/domain/model"
	"github.com/okian/learnpath/internal/domain/pipeline"
	"github.com/okian/learnpath/pkg/logger"
	"github.com/okian/learnpath/pkg/metrics"
)

// Service implements the API dependencies for the learning path engine.
type Service struct {
	mu sync.RWMutex

	// Configuration
	modelCfg         difficulty.Config
	paramsPath       string
	questionBankPath string
	questionSeed     *int64
	targetLabels     []string
	classifierURL    string
	classifierTTL    time.Duration
	pipelineOpts     []pipeline.Option
	frameQueueSize   int
	maxSessions      int

	// Core components
	model      *difficulty.Model
	aggregator *expression.Aggregator
	classifier pipeline.Classifier
	pipeline   *pipeline.Pipeline
	questions  repository.Store
	sessions   *capture.Sessions

	// State
	started   bool
	startedAt time.Time

	predictions atomic.Int64
	captures    atomic.Int64
	failures    atomic.Int64

	logger logger.Logger
}

// New constructs a Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		modelCfg:     difficulty.DefaultConfig(),
		paramsPath:   "adaptive_transformer.json",
		targetLabels: config.DefaultTargetLabels(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewFromConfig maps cfg onto service options. Extra options win.
func NewFromConfig(cfg *config.Config, opts ...Option) *Service {
	base := []Option{
		WithModelConfig(ModelConfig(cfg)),
		WithParamsPath(cfg.ParamsPath),
		WithQuestionBankPath(cfg.QuestionBankPath),
		WithTargetLabels(cfg.TargetLabels),
		WithClassifierURL(cfg.ClassifierURL, cfg.ClassifierTimeout),
		WithFrameQueueSize(cfg.FrameQueueSize),
		WithMaxCaptureSessions(cfg.MaxCaptureSessions),
		WithPipelineOptions(
			pipeline.WithInterval(cfg.SnapshotInterval),
			pipeline.WithSnapshotCount(cfg.SnapshotCount),
			pipeline.WithMinSnapshots(cfg.MinSnapshots),
			pipeline.WithCaptureTimeout(cfg.EffectiveCaptureTimeout()),
		),
	}
	return New(append(base, opts...)...)
}

// ModelConfig extracts the model dimensions from cfg.
func ModelConfig(cfg *config.Config) difficulty.Config {
	return difficulty.Config{
		InputDim:     cfg.InputDim,
		EmbedDim:     cfg.EmbedDim,
		NumHeads:     cfg.NumHeads,
		HiddenDim:    cfg.HiddenDim,
		NumLayers:    cfg.NumLayers,
		NumQuestions: cfg.NumQuestions,
		NumClasses:   cfg.NumClasses,
		LayerNormEps: cfg.LayerNormEps,
	}
}

// Start loads the model parameters and the question bank and wires the
// pipeline. A missing or incompatible parameter file fails Start.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}

	s.logger.Info(ctx, "starting learning path service...")

	if s.model == nil {
		m, err := difficulty.Load(s.paramsPath, s.modelCfg)
		if err != nil {
			s.logger.Error(ctx, "failed to load model parameters",
				logger.String("path", s.paramsPath),
				logger.Error(err),
			)
			return err
		}
		s.model = m
		s.logger.Info(ctx, "model parameters loaded", logger.String("path", s.paramsPath))
	}
	if !s.model.Loaded() {
		return model.Errorf("service.start", model.ErrParameterLoad, "model has no parameters")
	}
	metrics.UpdateModelLoaded(true)

	if s.questions == nil && s.questionBankPath != "" {
		opts := []repository.Option{repository.WithLogger(s.logger.Named("questions"))}
		if s.questionSeed != nil {
			opts = append(opts, repository.WithSeed(*s.questionSeed))
		}
		bank, err := repository.LoadQuestionBank(s.questionBankPath, opts...)
		if err != nil {
			s.logger.Error(ctx, "failed to load question bank", logger.Error(err))
			return err
		}
		s.questions = bank
		s.logger.Info(ctx, "question bank loaded",
			logger.String("path", s.questionBankPath),
			logger.Int("questions", bank.Count(ctx)),
		)
		if gaps := s.bankGaps(ctx, bank); len(gaps) > 0 {
			s.logger.Warn(ctx, "question bank has no questions for some difficulties",
				logger.Any("difficulties", gaps),
			)
		}
	}

	if s.classifier == nil && s.classifierURL != "" {
		c, err := classifier.NewHTTPClassifier(s.classifierURL,
			classifier.WithTimeout(s.classifierTTL),
			classifier.WithLogger(s.logger.Named("classifier")),
		)
		if err != nil {
			return err
		}
		s.classifier = c
	}

	s.aggregator = expression.NewAggregator(s.targetLabels)
	opts := append([]pipeline.Option{pipeline.WithLogger(s.logger.Named("pipeline"))}, s.pipelineOpts...)
	s.pipeline = pipeline.New(s.aggregator, s.classifier, s.model, opts...)
	s.sessions = capture.NewSessions(s.Capture,
		capture.WithSessionCapacity(s.frameQueueSize),
		capture.WithMaxSessions(s.maxSessions),
		capture.WithSessionLogger(s.logger.Named("sessions")),
	)

	s.started = true
	s.startedAt = time.Now()
	s.logger.Info(ctx, "learning path service started",
		logger.Int("questions", s.modelCfg.NumQuestions),
		logger.Int("classes", s.modelCfg.NumClasses),
		logger.Any("target_labels", s.targetLabels),
	)
	return nil
}

// Stop marks the service stopped and cancels live capture sessions.
// Loaded parameters are kept.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	sessions := s.sessions
	s.sessions = nil
	s.mu.Unlock()

	// Session runs take the read lock, so wait for them unlocked.
	if sessions != nil {
		sessions.Shutdown()
	}
	s.logger.Info(context.Background(), "learning path service stopped")
}

func (s *Service) ready(op string) (*pipeline.Pipeline, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return nil, model.WrapKind(op, model.ErrParameterLoad, ErrNotStarted)
	}
	return s.pipeline, nil
}

// Predict infers a learning path from classified observations and score.
func (s *Service) Predict(ctx context.Context, observations []model.Observation, score float64) (*pipeline.Result, error) {
	p, err := s.ready("service.predict")
	if err != nil {
		return nil, err
	}
	res, err := p.FromObservations(ctx, observations, score)
	s.count(err)
	return res, err
}

// PredictFused infers a learning path from an already fused vector.
func (s *Service) PredictFused(ctx context.Context, fused model.FusedVector) (model.LearningPath, error) {
	if _, err := s.ready("service.predict_fused"); err != nil {
		return nil, err
	}
	path, err := s.model.Infer(fused)
	s.count(err)
	if err != nil {
		s.logger.Debug(ctx, "fused prediction rejected", logger.Error(err))
	}
	return path, err
}

// PredictBatch infers each fused vector independently.
func (s *Service) PredictBatch(ctx context.Context, batch []model.FusedVector) ([]model.LearningPath, error) {
	if _, err := s.ready("service.predict_batch"); err != nil {
		return nil, err
	}
	paths, err := s.model.InferBatch(batch)
	s.count(err)
	if err != nil {
		s.logger.Debug(ctx, "batch prediction rejected", logger.Error(err))
	}
	return paths, err
}

// Capture runs the full pipeline over src.
func (s *Service) Capture(ctx context.Context, src pipeline.FrameSource, score float64) (*pipeline.Result, error) {
	p, err := s.ready("service.capture")
	if err != nil {
		return nil, err
	}
	s.captures.Add(1)
	res, err := p.Run(ctx, src, score)
	s.count(err)
	return res, err
}

func (s *Service) captureSessions(op string) (*capture.Sessions, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return nil, model.WrapKind(op, model.ErrParameterLoad, ErrNotStarted)
	}
	if s.classifier == nil {
		return nil, model.WrapKind(op, model.ErrCapture, ErrNoClassifier)
	}
	return s.sessions, nil
}

// OpenCapture starts a live capture run for score whose frames are pushed
// with PushFrame. It returns the session id.
func (s *Service) OpenCapture(_ context.Context, score float64) (string, error) {
	sessions, err := s.captureSessions("service.open_capture")
	if err != nil {
		return "", err
	}
	return sessions.Open(score)
}

// PushFrame hands one encoded frame to session id and returns the number
// of buffered frames.
func (s *Service) PushFrame(ctx context.Context, id string, data []byte) (int, error) {
	sessions, err := s.captureSessions("service.push_frame")
	if err != nil {
		return 0, err
	}
	return sessions.Push(ctx, id, data)
}

// CloseCapture ends the producer side of session id.
func (s *Service) CloseCapture(_ context.Context, id string) error {
	sessions, err := s.captureSessions("service.close_capture")
	if err != nil {
		return err
	}
	return sessions.Close(id)
}

// WaitCapture waits for session id to finish and returns its result.
func (s *Service) WaitCapture(ctx context.Context, id string) (*pipeline.Result, error) {
	sessions, err := s.captureSessions("service.wait_capture")
	if err != nil {
		return nil, err
	}
	return sessions.Wait(ctx, id)
}

// CancelCapture stops session id and discards its result.
func (s *Service) CancelCapture(_ context.Context, id string) error {
	sessions, err := s.captureSessions("service.cancel_capture")
	if err != nil {
		return err
	}
	return sessions.Cancel(id)
}

// QuestionsForPath selects one question per difficulty in path.
func (s *Service) QuestionsForPath(ctx context.Context, path []int) (repository.Selection, error) {
	s.mu.RLock()
	bank := s.questions
	s.mu.RUnlock()
	if bank == nil {
		return repository.Selection{}, repository.ErrNoQuestionBank
	}
	return bank.ForPath(ctx, path)
}

func (s *Service) count(err error) {
	if err != nil {
		s.failures.Add(1)
		return
	}
	s.predictions.Add(1)
}

// Labels returns the target label order.
func (s *Service) Labels() []string {
	return append([]string(nil), s.targetLabels...)
}

// Ready reports whether the service is started with a loaded model.
func (s *Service) Ready() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.started && s.model != nil && s.model.Loaded()
}

// Model returns the loaded model, nil before Start.
func (s *Service) Model() *difficulty.Model {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.model
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]interface{}{
		"started":      s.started,
		"modelLoaded":  s.model != nil && s.model.Loaded(),
		"paramsPath":   s.paramsPath,
		"targetLabels": s.targetLabels,
		"numQuestions": s.modelCfg.NumQuestions,
		"numClasses":   s.modelCfg.NumClasses,
		"predictions":  s.predictions.Load(),
		"captures":     s.captures.Load(),
		"failures":     s.failures.Load(),
	}
	if s.started {
		stats["uptimeSeconds"] = time.Since(s.startedAt).Seconds()
		stats["captureTimeoutSeconds"] = s.pipeline.CaptureTimeout().Seconds()
	}
	if s.sessions != nil {
		stats["captureSessions"] = s.sessions.Len()
	}
	if s.questions != nil {
		stats["questionBankSize"] = s.questions.Count(context.Background())
		stats["questionBankGaps"] = s.bankGaps(context.Background(), s.questions)
	}
	return stats
}

// bankGaps names the difficulty classes the model can emit that have no
// questions in store.
func (s *Service) bankGaps(ctx context.Context, store repository.Store) []string {
	gaps := []string{}
	for d := 0; d < s.modelCfg.NumClasses; d++ {
		if len(store.ByDifficulty(ctx, d)) == 0 {
			gaps = append(gaps, model.DifficultyName(d))
		}
	}
	return gaps
}
