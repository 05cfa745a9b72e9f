// Package difficulty holds the adaptive difficulty model: a linear input
// projection, a stack of self-attention encoder layers and a multi-head
// linear classifier mapping one fused feature vector to per-question
// difficulty classes.
//
// The fused vector is fed as a sequence of length one, so attention never
// mixes positions. The structure is kept intact because persisted parameters
// depend on it.
package difficulty

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/okian/learnpath/internal/domain/model"
	"github.com/okian/learnpath/pkg/metrics"
)

// Model is the adaptive difficulty transformer. Construct with New, load
// parameters once with LoadSnapshot, then share freely: inference never
// mutates the model.
type Model struct {
	cfg      Config
	inputFC  *linear
	layers   []*encoderLayer
	outputFC *linear
	loaded   atomic.Bool
}

// New constructs an unloaded model for cfg.
func New(cfg Config) (*Model, error) {
	if err := cfg.validate(); err != nil {
		return nil, model.WrapKind("difficulty.new", model.ErrShapeMismatch, err)
	}
	m := &Model{
		cfg:      cfg,
		inputFC:  newLinear(cfg.InputDim, cfg.EmbedDim),
		layers:   make([]*encoderLayer, cfg.NumLayers),
		outputFC: newLinear(cfg.EmbedDim, cfg.OutputDim()),
	}
	for i := range m.layers {
		m.layers[i] = newEncoderLayer(cfg)
	}
	return m, nil
}

// Config returns the model's structural configuration.
func (m *Model) Config() Config { return m.cfg }

// Loaded reports whether parameters have been loaded.
func (m *Model) Loaded() bool { return m.loaded.Load() }

// Logits runs the forward pass and returns one row of class scores per
// question. A vector of the wrong length fails with ErrShapeMismatch before
// any computation.
func (m *Model) Logits(fused model.FusedVector) (model.Logits, error) {
	const op = "difficulty.logits"
	if len(fused) != m.cfg.InputDim {
		return nil, model.Errorf(op, model.ErrShapeMismatch, "fused vector has %d values, want %d", len(fused), m.cfg.InputDim)
	}
	if !m.loaded.Load() {
		return nil, model.Errorf(op, model.ErrParameterLoad, "parameters not loaded")
	}

	x := make([]float32, len(fused))
	for i, v := range fused {
		x[i] = float32(v)
	}

	seq := [][]float32{m.inputFC.forward(x)}
	for _, layer := range m.layers {
		seq = layer.forward(seq)
	}
	flat := m.outputFC.forward(seq[0])

	logits := make(model.Logits, m.cfg.NumQuestions)
	for q := range logits {
		logits[q] = flat[q*m.cfg.NumClasses : (q+1)*m.cfg.NumClasses]
	}
	return logits, nil
}

// Infer maps a fused vector to a learning path.
func (m *Model) Infer(fused model.FusedVector) (model.LearningPath, error) {
	start := time.Now()
	logits, err := m.Logits(fused)
	if err != nil {
		metrics.RecordInferenceError(model.KindName(err))
		return nil, err
	}
	path := Decode(logits)
	metrics.RecordInference(float64(time.Since(start).Microseconds()) / 1000)
	metrics.RecordLearningPath(path)
	return path, nil
}

// InferBatch infers each vector independently, in order. The first failing
// vector aborts the batch.
func (m *Model) InferBatch(batch []model.FusedVector) ([]model.LearningPath, error) {
	paths := make([]model.LearningPath, len(batch))
	for i, fused := range batch {
		p, err := m.Infer(fused)
		if err != nil {
			return nil, fmt.Errorf("batch item %d: %w", i, err)
		}
		paths[i] = p
	}
	return paths, nil
}
