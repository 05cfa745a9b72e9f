// Package difficultytest builds parameter snapshots with known behavior for
// tests of the difficulty model and everything that depends on it.
package difficultytest

import (
	"fmt"
	"math/rand"
	"path/filepath"
	"testing"

	"github.com/okian/learnpath/internal/domain/difficulty"
)

// Feature indices of the default fused vector.
const (
	angry = iota
	happy
	neutral
	sad
	surprise
	score
)

// row is one affine readout of the fused vector: logit = w·x + b.
type row struct {
	w map[int]float32
	b float32
}

// referenceRows are the 15 readouts (question-major, three classes each)
// of the reference parameters.
var referenceRows = []row{
	// question 0: easy when happy dominates
	{w: map[int]float32{happy: 1}},
	{w: map[int]float32{angry: 1}},
	{w: map[int]float32{neutral: 1}},
	// question 1: 0.3 threshold, score, happy
	{b: 0.3},
	{w: map[int]float32{score: 1}},
	{w: map[int]float32{happy: 1}},
	// question 2: sad, surprise, angry+neutral
	{w: map[int]float32{sad: 1}},
	{w: map[int]float32{surprise: 1}},
	{w: map[int]float32{angry: 1, neutral: 1}},
	// question 3: constant tie between classes 0 and 1
	{b: 0.5},
	{b: 0.5},
	{},
	// question 4: zero, score-happy, 2*score-1
	{},
	{w: map[int]float32{score: 1, happy: -1}},
	{w: map[int]float32{score: 2}, b: -1},
}

// ReferencePath returns the learning path the reference parameters yield
// for fused, computed directly from the readout rows. Golden paths derived
// from it follow from the readout construction; no run of a trained
// checkpoint was recorded for them.
func ReferencePath(fused []float64) []int {
	path := make([]int, len(referenceRows)/3)
	for q := range path {
		best, bestV := 0, 0.0
		for c := 0; c < 3; c++ {
			r := referenceRows[3*q+c]
			v := float64(r.b)
			for i, w := range r.w {
				v += float64(w) * float64(float32(fused[i]))
			}
			if c == 0 || v > bestV {
				best, bestV = c, v
			}
		}
		path[q] = best
	}
	return path
}

// ReferenceSnapshot returns parameters for the default configuration whose
// encoder reduces to a positive rescaling of its input. Each embedding pair
// (2r, 2r+1) holds (u_r, -u_r) for readout r, so every LayerNorm sees a
// zero-mean vector and only rescales it; attention and feed-forward blocks
// are identities, so the residual sums double the signal. The output layer
// reads u_r back, making the learning path computable by hand.
func ReferenceSnapshot() *difficulty.Snapshot {
	cfg := difficulty.DefaultConfig()
	m, err := difficulty.New(cfg)
	if err != nil {
		panic(err)
	}
	s := m.Snapshot()
	e, h := cfg.EmbedDim, cfg.HiddenDim

	in := s.Tensors["input_fc.weight"]
	inBias := s.Tensors["input_fc.bias"]
	for r, rw := range referenceRows {
		for i, w := range rw.w {
			in.Data[(2*r)*cfg.InputDim+i] = w
			in.Data[(2*r+1)*cfg.InputDim+i] = -w
		}
		inBias.Data[2*r] = rw.b
		inBias.Data[2*r+1] = -rw.b
	}

	for l := 0; l < cfg.NumLayers; l++ {
		p := fmt.Sprintf("transformer_encoder.layers.%d.", l)
		inProj := s.Tensors[p+"self_attn.in_proj_weight"]
		for block := 0; block < 3; block++ {
			for i := 0; i < e; i++ {
				inProj.Data[(block*e+i)*e+i] = 1
			}
		}
		outProj := s.Tensors[p+"self_attn.out_proj.weight"]
		for i := 0; i < e; i++ {
			outProj.Data[i*e+i] = 1
		}
		l1 := s.Tensors[p+"linear1.weight"]
		l2 := s.Tensors[p+"linear2.weight"]
		for i := 0; i < e; i++ {
			l1.Data[i*e+i] = 1
			l1.Data[(e+i)*e+i] = -1
			l2.Data[i*h+i] = 1
			l2.Data[i*h+e+i] = -1
		}
	}

	out := s.Tensors["output_fc.weight"]
	for r := range referenceRows {
		out.Data[r*e+2*r] = 1
	}
	return s
}

// RandomSnapshot returns parameters drawn from a seeded normal
// distribution scaled down to keep activations small.
func RandomSnapshot(cfg difficulty.Config, seed int64) *difficulty.Snapshot {
	m, err := difficulty.New(cfg)
	if err != nil {
		panic(err)
	}
	rng := rand.New(rand.NewSource(seed)) //nolint:gosec // deterministic test fixture
	s := m.Snapshot()
	for _, name := range s.Names() {
		t := s.Tensors[name]
		for i := range t.Data {
			t.Data[i] = float32(rng.NormFloat64() * 0.3)
		}
	}
	return s
}

// LoadedReference returns a default-config model loaded with the reference
// parameters.
func LoadedReference(t testing.TB) *difficulty.Model {
	t.Helper()
	m, err := difficulty.New(difficulty.DefaultConfig())
	if err != nil {
		t.Fatalf("new model: %v", err)
	}
	if err := m.LoadSnapshot(ReferenceSnapshot()); err != nil {
		t.Fatalf("load reference: %v", err)
	}
	return m
}

// WriteReference writes the reference snapshot into dir as name and
// returns its path.
func WriteReference(t testing.TB, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := difficulty.WriteSnapshot(path, ReferenceSnapshot()); err != nil {
		t.Fatalf("write reference: %v", err)
	}
	return path
}
