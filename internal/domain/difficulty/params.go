package difficulty

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/okian/learnpath/internal/domain/model"
)

// Tensor is one named parameter, row-major.
type Tensor struct {
	Shape []int     `json:"shape" yaml:"shape"`
	Data  []float32 `json:"data" yaml:"data,flow"`
}

// Snapshot is a persisted set of model parameters keyed by the same names
// the training code used (e.g. "transformer_encoder.layers.0.linear1.weight").
type Snapshot struct {
	Tensors map[string]Tensor `json:"tensors" yaml:"tensors"`
}

// Names returns tensor names in sorted order.
func (s *Snapshot) Names() []string {
	names := make([]string, 0, len(s.Tensors))
	for n := range s.Tensors {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

type param struct {
	name  string
	shape []int
	dst   []float32
}

// params lists every learned tensor with its expected shape and the slice
// it loads into.
func (m *Model) params() []param {
	e, h := m.cfg.EmbedDim, m.cfg.HiddenDim
	ps := []param{
		{"input_fc.weight", []int{e, m.cfg.InputDim}, m.inputFC.weight},
		{"input_fc.bias", []int{e}, m.inputFC.bias},
	}
	for i, l := range m.layers {
		p := fmt.Sprintf("transformer_encoder.layers.%d.", i)
		ps = append(ps,
			param{p + "self_attn.in_proj_weight", []int{3 * e, e}, l.attn.inProj.weight},
			param{p + "self_attn.in_proj_bias", []int{3 * e}, l.attn.inProj.bias},
			param{p + "self_attn.out_proj.weight", []int{e, e}, l.attn.outProj.weight},
			param{p + "self_attn.out_proj.bias", []int{e}, l.attn.outProj.bias},
			param{p + "linear1.weight", []int{h, e}, l.ff.linear1.weight},
			param{p + "linear1.bias", []int{h}, l.ff.linear1.bias},
			param{p + "linear2.weight", []int{e, h}, l.ff.linear2.weight},
			param{p + "linear2.bias", []int{e}, l.ff.linear2.bias},
			param{p + "norm1.weight", []int{e}, l.norm1.weight},
			param{p + "norm1.bias", []int{e}, l.norm1.bias},
			param{p + "norm2.weight", []int{e}, l.norm2.weight},
			param{p + "norm2.bias", []int{e}, l.norm2.bias},
		)
	}
	return append(ps,
		param{"output_fc.weight", []int{m.cfg.OutputDim(), e}, m.outputFC.weight},
		param{"output_fc.bias", []int{m.cfg.OutputDim()}, m.outputFC.bias},
	)
}

// LoadSnapshot copies s into the model. Loading is strict and atomic: a
// missing, unexpected or corrupt tensor fails with ErrParameterLoad, a
// tensor whose shape disagrees with the configuration fails with
// ErrShapeMismatch, and in both cases the model stays unloaded. A model
// loads at most once.
func (m *Model) LoadSnapshot(s *Snapshot) error {
	const op = "difficulty.load"
	if m.loaded.Load() {
		return model.Errorf(op, model.ErrParameterLoad, "parameters already loaded")
	}
	if s == nil || len(s.Tensors) == 0 {
		return model.Errorf(op, model.ErrParameterLoad, "snapshot has no tensors")
	}

	ps := m.params()
	expected := make(map[string]struct{}, len(ps))
	var missing []string
	for _, p := range ps {
		expected[p.name] = struct{}{}
		if _, ok := s.Tensors[p.name]; !ok {
			missing = append(missing, p.name)
		}
	}
	var unexpected []string
	for _, name := range s.Names() {
		if _, ok := expected[name]; !ok {
			unexpected = append(unexpected, name)
		}
	}
	if len(missing) > 0 || len(unexpected) > 0 {
		return model.Errorf(op, model.ErrParameterLoad, "missing keys [%s], unexpected keys [%s]",
			strings.Join(missing, ", "), strings.Join(unexpected, ", "))
	}

	for _, p := range ps {
		t := s.Tensors[p.name]
		if n := numElements(t.Shape); n != len(t.Data) {
			return model.Errorf(op, model.ErrParameterLoad, "%s: shape %v holds %d values, data has %d", p.name, t.Shape, n, len(t.Data))
		}
		if !equalShape(t.Shape, p.shape) {
			return model.Errorf(op, model.ErrShapeMismatch, "%s: snapshot shape %v, model expects %v", p.name, t.Shape, p.shape)
		}
		for i, v := range t.Data {
			if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
				return model.Errorf(op, model.ErrParameterLoad, "%s: non-finite value at %d", p.name, i)
			}
		}
	}

	for _, p := range ps {
		copy(p.dst, s.Tensors[p.name].Data)
	}
	m.loaded.Store(true)
	return nil
}

// Snapshot exports a copy of the model's current parameters.
func (m *Model) Snapshot() *Snapshot {
	ps := m.params()
	s := &Snapshot{Tensors: make(map[string]Tensor, len(ps))}
	for _, p := range ps {
		s.Tensors[p.name] = Tensor{
			Shape: append([]int(nil), p.shape...),
			Data:  append([]float32(nil), p.dst...),
		}
	}
	return s
}

// ReadSnapshot reads a snapshot file. The extension selects the codec:
// .yaml/.yml for YAML, anything else is JSON.
func ReadSnapshot(path string) (*Snapshot, error) {
	const op = "difficulty.read_snapshot"
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, model.WrapKind(op, model.ErrParameterLoad, err)
	}
	s, err := DecodeSnapshot(raw, formatOf(path))
	if err != nil {
		return nil, model.WrapKind(op, model.ErrParameterLoad, fmt.Errorf("%s: %w", path, err))
	}
	return s, nil
}

// DecodeSnapshot decodes raw as "json" or "yaml".
func DecodeSnapshot(raw []byte, format string) (*Snapshot, error) {
	var s Snapshot
	switch format {
	case "yaml":
		if err := yaml.Unmarshal(raw, &s); err != nil {
			return nil, fmt.Errorf("decode yaml: %w", err)
		}
	case "json":
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&s); err != nil {
			return nil, fmt.Errorf("decode json: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown snapshot format %q", format)
	}
	return &s, nil
}

// WriteSnapshot persists s to path using the codec chosen by extension.
func WriteSnapshot(path string, s *Snapshot) error {
	var (
		raw []byte
		err error
	)
	if formatOf(path) == "yaml" {
		raw, err = yaml.Marshal(s)
	} else {
		raw, err = json.Marshal(s)
	}
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	return nil
}

// Load constructs a model for cfg and loads the snapshot at path.
func Load(path string, cfg Config) (*Model, error) {
	m, err := New(cfg)
	if err != nil {
		return nil, err
	}
	s, err := ReadSnapshot(path)
	if err != nil {
		return nil, err
	}
	if err := m.LoadSnapshot(s); err != nil {
		return nil, err
	}
	return m, nil
}

func formatOf(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return "yaml"
	default:
		return "json"
	}
}

func numElements(shape []int) int {
	if len(shape) == 0 {
		return 0
	}
	n := 1
	for _, d := range shape {
		if d < 0 {
			return -1
		}
		n *= d
	}
	return n
}

func equalShape(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
