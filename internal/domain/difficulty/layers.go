package difficulty

import "math"

// linear is y = W·x + b with W stored row-major as out×in.
type linear struct {
	in, out int
	weight  []float32
	bias    []float32
}

func newLinear(in, out int) *linear {
	return &linear{in: in, out: out, weight: make([]float32, in*out), bias: make([]float32, out)}
}

func (l *linear) forward(x []float32) []float32 {
	y := make([]float32, l.out)
	for o := 0; o < l.out; o++ {
		row := l.weight[o*l.in : (o+1)*l.in]
		var s float64
		for i, w := range row {
			s += float64(w) * float64(x[i])
		}
		y[o] = float32(s + float64(l.bias[o]))
	}
	return y
}

// layerNorm normalizes over the last dimension with a learned affine map.
type layerNorm struct {
	dim    int
	eps    float64
	weight []float32
	bias   []float32
}

func newLayerNorm(dim int, eps float64) *layerNorm {
	ln := &layerNorm{dim: dim, eps: eps, weight: make([]float32, dim), bias: make([]float32, dim)}
	for i := range ln.weight {
		ln.weight[i] = 1
	}
	return ln
}

func (ln *layerNorm) forward(x []float32) []float32 {
	var sum float64
	for _, v := range x {
		sum += float64(v)
	}
	mean := sum / float64(len(x))

	var sq float64
	for _, v := range x {
		d := float64(v) - mean
		sq += d * d
	}
	inv := 1 / math.Sqrt(sq/float64(len(x))+ln.eps)

	y := make([]float32, len(x))
	for i, v := range x {
		y[i] = float32((float64(v)-mean)*inv*float64(ln.weight[i]) + float64(ln.bias[i]))
	}
	return y
}

// selfAttention is multi-head scaled dot-product attention with a packed
// Q|K|V input projection, as laid out in the persisted parameters.
type selfAttention struct {
	embed, heads int
	inProj       *linear // 3E × E
	outProj      *linear // E × E
}

func newSelfAttention(embed, heads int) *selfAttention {
	return &selfAttention{
		embed:   embed,
		heads:   heads,
		inProj:  newLinear(embed, 3*embed),
		outProj: newLinear(embed, embed),
	}
}

func (a *selfAttention) forward(seq [][]float32) [][]float32 {
	n, e := len(seq), a.embed
	d := e / a.heads
	scale := 1 / math.Sqrt(float64(d))

	q := make([][]float32, n)
	k := make([][]float32, n)
	v := make([][]float32, n)
	for i, x := range seq {
		p := a.inProj.forward(x)
		q[i], k[i], v[i] = p[:e], p[e:2*e], p[2*e:]
	}

	out := make([][]float32, n)
	scores := make([]float64, n)
	for i := 0; i < n; i++ {
		merged := make([]float32, e)
		for h := 0; h < a.heads; h++ {
			lo, hi := h*d, (h+1)*d
			for j := 0; j < n; j++ {
				scores[j] = dot(q[i][lo:hi], k[j][lo:hi]) * scale
			}
			weights := softmax(scores)
			for c := lo; c < hi; c++ {
				var s float64
				for j := 0; j < n; j++ {
					s += weights[j] * float64(v[j][c])
				}
				merged[c] = float32(s)
			}
		}
		out[i] = a.outProj.forward(merged)
	}
	return out
}

// feedForward is Linear → ReLU → Linear.
type feedForward struct {
	linear1 *linear
	linear2 *linear
}

func (f *feedForward) forward(x []float32) []float32 {
	h := f.linear1.forward(x)
	for i, v := range h {
		if v < 0 {
			h[i] = 0
		}
	}
	return f.linear2.forward(h)
}

// encoderLayer is a post-norm transformer encoder block:
// x = norm1(x + attn(x)); x = norm2(x + ff(x)). Dropout is inactive.
type encoderLayer struct {
	attn  *selfAttention
	ff    *feedForward
	norm1 *layerNorm
	norm2 *layerNorm
}

func newEncoderLayer(cfg Config) *encoderLayer {
	return &encoderLayer{
		attn: newSelfAttention(cfg.EmbedDim, cfg.NumHeads),
		ff: &feedForward{
			linear1: newLinear(cfg.EmbedDim, cfg.HiddenDim),
			linear2: newLinear(cfg.HiddenDim, cfg.EmbedDim),
		},
		norm1: newLayerNorm(cfg.EmbedDim, cfg.LayerNormEps),
		norm2: newLayerNorm(cfg.EmbedDim, cfg.LayerNormEps),
	}
}

func (l *encoderLayer) forward(seq [][]float32) [][]float32 {
	attended := l.attn.forward(seq)
	out := make([][]float32, len(seq))
	for i, x := range seq {
		h := l.norm1.forward(add(x, attended[i]))
		out[i] = l.norm2.forward(add(h, l.ff.forward(h)))
	}
	return out
}

func add(a, b []float32) []float32 {
	y := make([]float32, len(a))
	for i := range a {
		y[i] = a[i] + b[i]
	}
	return y
}

func dot(a, b []float32) float64 {
	var s float64
	for i := range a {
		s += float64(a[i]) * float64(b[i])
	}
	return s
}

// softmax is numerically stable: exponents are shifted by the maximum.
func softmax(scores []float64) []float64 {
	out := make([]float64, len(scores))
	if len(scores) == 0 {
		return out
	}
	maxScore := scores[0]
	for _, s := range scores[1:] {
		if s > maxScore {
			maxScore = s
		}
	}
	var sum float64
	for i, s := range scores {
		out[i] = math.Exp(s - maxScore)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}
