// Package model contains domain models passed between layers.
package model

import (
	"strconv"
	"time"
)

// Difficulty classes emitted per question. The model may be configured with
// more classes; these name the three the original question bank uses.
const (
	DifficultyEasy   = 0
	DifficultyMedium = 1
	DifficultyHard   = 2
)

// DifficultyName names difficulty class d. Classes past DifficultyHard are
// named by their index.
func DifficultyName(d int) string {
	switch d {
	case DifficultyEasy:
		return "easy"
	case DifficultyMedium:
		return "medium"
	case DifficultyHard:
		return "hard"
	default:
		return "level_" + strconv.Itoa(d)
	}
}

// Observation is one probability distribution over expression labels,
// produced by the image classifier for a single snapshot.
type Observation map[string]float64

// Frame is a raw captured snapshot handed to the classifier.
type Frame struct {
	Seq        int       // capture order, starting at 1
	Data       []byte    // encoded image bytes
	Source     string    // file name or device id, informational
	CapturedAt time.Time // wall-clock capture time
}

// ExpressionVector is the averaged observation restricted to the target
// labels, positional in canonical label order.
type ExpressionVector []float64

// FusedVector is the model input: expression values followed by the
// performance score.
type FusedVector []float64

// Logits holds per-question class scores, one row per question.
type Logits [][]float32

// LearningPath is one difficulty class index per question, in question order.
type LearningPath []int

// Score returns the performance score, the last element of the vector.
func (f FusedVector) Score() float64 {
	if len(f) == 0 {
		return 0
	}
	return f[len(f)-1]
}
