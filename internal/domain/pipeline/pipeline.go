// Package pipeline sequences snapshot capture, expression classification,
// aggregation, fusion and difficulty inference into one run.
//
// A run is sequential: frames are acquired at a fixed interval, the first
// one interval after the run begins, until the target count is reached,
// the source is exhausted, the caller cancels or the capture deadline
// passes. Cancellation is only observed while
// acquiring; once capture ends the collected observations are either
// enough (min snapshots) and flow on to inference, or the run fails with
// ErrInsufficientObservations.
package pipeline

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/okian/learnpath/internal/domain/fusion"
	"github.com/okian/learnpath/internal/domain/model"
	"github.com/okian/learnpath/pkg/logger"
	"github.com/okian/learnpath/pkg/metrics"
)

// Default capture policy.
const (
	defaultInterval     = 5 * time.Second
	defaultCount        = 20
	defaultMinSnapshots = 1
	captureGrace        = 30 * time.Second
)

// FrameSource yields raw frames lazily. Next returns io.EOF once the
// source is exhausted; Stop releases the source and ends the sequence.
type FrameSource interface {
	HasMore() bool
	Next(ctx context.Context) (model.Frame, error)
	Stop()
}

// Classifier scores one frame into an expression distribution.
type Classifier interface {
	Classify(ctx context.Context, frame model.Frame) (model.Observation, error)
}

// ClassifierFunc adapts a function to Classifier.
type ClassifierFunc func(ctx context.Context, frame model.Frame) (model.Observation, error)

// Classify calls f.
func (f ClassifierFunc) Classify(ctx context.Context, frame model.Frame) (model.Observation, error) {
	return f(ctx, frame)
}

// Aggregator reduces observations to a positional expression vector.
type Aggregator interface {
	Aggregate(observations []model.Observation) (model.ExpressionVector, error)
	Labels() []string
}

// Inferer maps a fused vector to a learning path.
type Inferer interface {
	Infer(fused model.FusedVector) (model.LearningPath, error)
}

// Result is the outcome of one run.
type Result struct {
	RunID        string
	Snapshots    int
	StopReason   string
	Expression   model.ExpressionVector
	Fused        model.FusedVector
	LearningPath model.LearningPath
}

// Pipeline wires the collaborators of a run. It holds no per-run state
// and may serve concurrent runs over distinct frame sources.
type Pipeline struct {
	aggregator Aggregator
	classifier Classifier
	model      Inferer

	interval       time.Duration
	count          int
	minSnapshots   int
	captureTimeout time.Duration

	logger logger.Logger
}

// New builds a pipeline. The classifier may be nil when only
// FromObservations is used.
func New(aggregator Aggregator, classifier Classifier, inferer Inferer, opts ...Option) *Pipeline {
	p := &Pipeline{
		aggregator:   aggregator,
		classifier:   classifier,
		model:        inferer,
		interval:     defaultInterval,
		count:        defaultCount,
		minSnapshots: defaultMinSnapshots,
		logger:       logger.Nop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.minSnapshots > p.count {
		p.minSnapshots = p.count
	}
	return p
}

// CaptureTimeout returns the overall wall-clock cap on acquisition.
func (p *Pipeline) CaptureTimeout() time.Duration {
	if p.captureTimeout > 0 {
		return p.captureTimeout
	}
	return p.interval*time.Duration(p.count) + captureGrace
}

// Run captures frames from src, classifies them and infers the learning
// path for score. src is stopped before Run returns.
func (p *Pipeline) Run(ctx context.Context, src FrameSource, score float64) (*Result, error) {
	runID := uuid.NewString()
	log := p.logger.With(logger.String("run_id", runID))
	start := time.Now()

	observations, reason, err := p.capture(ctx, src, log)
	if err != nil {
		p.fail(ctx, log, "capture", err)
		return nil, err
	}
	log.Info(ctx, "capture finished",
		logger.Int("snapshots", len(observations)),
		logger.String("reason", reason),
	)

	res, err := p.infer(observations, score)
	if err != nil {
		p.fail(ctx, log, "inference", err)
		return nil, err
	}
	res.RunID = runID
	res.StopReason = reason

	metrics.RecordPipelineRun(time.Since(start).Seconds())
	log.Info(ctx, "learning path inferred",
		logger.Ints("learning_path", res.LearningPath),
		logger.Float64("score", res.Fused.Score()),
		logger.Duration("elapsed", time.Since(start)),
	)
	return res, nil
}

// FromObservations runs aggregation, fusion and inference over
// observations that were classified elsewhere.
func (p *Pipeline) FromObservations(ctx context.Context, observations []model.Observation, score float64) (*Result, error) {
	runID := uuid.NewString()
	log := p.logger.With(logger.String("run_id", runID))
	start := time.Now()

	res, err := p.infer(observations, score)
	if err != nil {
		p.fail(ctx, log, "inference", err)
		return nil, err
	}
	res.RunID = runID
	metrics.RecordPipelineRun(time.Since(start).Seconds())
	log.Debug(ctx, "learning path inferred", logger.Ints("learning_path", res.LearningPath))
	return res, nil
}

func (p *Pipeline) infer(observations []model.Observation, score float64) (*Result, error) {
	expr, err := p.aggregator.Aggregate(observations)
	if err != nil {
		return nil, err
	}
	fused, err := fusion.FuseChecked(expr, score, len(p.aggregator.Labels()))
	if err != nil {
		return nil, err
	}
	path, err := p.model.Infer(fused)
	if err != nil {
		return nil, err
	}
	return &Result{
		Snapshots:    len(observations),
		Expression:   expr,
		Fused:        fused,
		LearningPath: path,
	}, nil
}

func (p *Pipeline) fail(ctx context.Context, log logger.Logger, stage string, err error) {
	kind := model.KindName(err)
	metrics.RecordPipelineError(kind)
	metrics.RecordErrorByComponent("pipeline", kind)
	log.Error(ctx, "pipeline run failed", logger.String("stage", stage), logger.Error(err))
}

// Stop reasons reported in Result.StopReason.
const (
	StopCount     = "count_reached"
	StopExhausted = "source_exhausted"
	StopCancelled = "cancelled"
	StopDeadline  = "deadline"
)

func (p *Pipeline) capture(ctx context.Context, src FrameSource, log logger.Logger) ([]model.Observation, string, error) {
	const op = "pipeline.capture"
	defer src.Stop()
	if p.classifier == nil {
		return nil, "", model.Errorf(op, model.ErrCapture, "no classifier configured")
	}

	cctx, cancel := context.WithTimeout(ctx, p.CaptureTimeout())
	defer cancel()

	observations := make([]model.Observation, 0, p.count)
	reason := StopCount
	// Every snapshot, the first included, is taken one interval after the
	// previous point in time, so the subject settles before the first frame.
	for i := 0; i < p.count; i++ {
		if !wait(cctx, p.interval) {
			reason = stopReason(ctx)
			break
		}
		if cctx.Err() != nil {
			reason = stopReason(ctx)
			break
		}
		if !src.HasMore() {
			reason = StopExhausted
			break
		}

		frame, err := src.Next(cctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				reason = StopExhausted
				break
			}
			if cctx.Err() != nil {
				reason = stopReason(ctx)
				break
			}
			metrics.RecordCaptureError()
			return nil, "", model.WrapKind(op, model.ErrCapture, err)
		}

		obs, err := p.classify(cctx, frame)
		if err != nil {
			return nil, "", err
		}
		observations = append(observations, obs)
		metrics.RecordSnapshotCaptured()
		log.Debug(ctx, "snapshot classified", logger.Int("seq", frame.Seq), logger.String("source", frame.Source))
	}

	if len(observations) == 0 {
		return nil, "", model.Errorf(op, model.ErrInsufficientObservations, "no snapshots captured (%s)", reason)
	}
	if len(observations) < p.minSnapshots {
		return nil, "", model.Errorf(op, model.ErrInsufficientObservations,
			"captured %d snapshots, need %d (%s)", len(observations), p.minSnapshots, reason)
	}
	return observations, reason, nil
}

func (p *Pipeline) classify(ctx context.Context, frame model.Frame) (model.Observation, error) {
	start := time.Now()
	obs, err := p.classifier.Classify(ctx, frame)
	metrics.RecordClassificationLatency(float64(time.Since(start).Microseconds()) / 1000)
	if err != nil {
		metrics.RecordClassificationError()
		if model.KindName(err) == "internal" {
			return nil, model.WrapKind("pipeline.classify", model.ErrClassification, err)
		}
		return nil, err
	}
	return obs, nil
}

// wait blocks for d or until ctx is done, reporting whether d elapsed.
func wait(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// stopReason tells a caller cancellation apart from the capture deadline.
func stopReason(parent context.Context) string {
	if errors.Is(parent.Err(), context.Canceled) {
		return StopCancelled
	}
	return StopDeadline
}
