package difficulty

import "fmt"

// Config fixes the model's structure. Every field must match the persisted
// parameter snapshot; a mismatch is a load-time error.
type Config struct {
	InputDim     int     // fused vector length
	EmbedDim     int     // encoder width
	NumHeads     int     // attention heads per layer
	HiddenDim    int     // feed-forward width
	NumLayers    int     // encoder layers
	NumQuestions int     // output heads
	NumClasses   int     // difficulty classes per question
	LayerNormEps float64 // LayerNorm epsilon
}

// DefaultConfig returns the dimensions the shipped parameters use.
func DefaultConfig() Config {
	return Config{
		InputDim:     6,
		EmbedDim:     32,
		NumHeads:     2,
		HiddenDim:    64,
		NumLayers:    2,
		NumQuestions: 5,
		NumClasses:   3,
		LayerNormEps: 1e-5,
	}
}

// OutputDim is the width of the final projection, questions × classes.
func (c Config) OutputDim() int { return c.NumQuestions * c.NumClasses }

// HeadDim is the per-head attention width.
func (c Config) HeadDim() int { return c.EmbedDim / c.NumHeads }

func (c Config) validate() error {
	switch {
	case c.InputDim <= 0, c.EmbedDim <= 0, c.NumHeads <= 0, c.HiddenDim <= 0,
		c.NumLayers <= 0, c.NumQuestions <= 0, c.NumClasses <= 0:
		return fmt.Errorf("all dimensions must be positive: %+v", c)
	case c.EmbedDim%c.NumHeads != 0:
		return fmt.Errorf("embed dim %d not divisible by %d heads", c.EmbedDim, c.NumHeads)
	case c.LayerNormEps <= 0:
		return fmt.Errorf("layer norm eps must be positive")
	}
	return nil
}
