// Package fusion assembles the model input from the expression signal and
// the learner's performance score.
package fusion

import "github.com/okian/learnpath/internal/domain/model"

// Fuse appends score after the expression values. The layout is a contract
// with the trained model; values are passed through without clipping or
// scaling, range checks belong to the caller.
func Fuse(expr model.ExpressionVector, score float64) model.FusedVector {
	out := make(model.FusedVector, len(expr)+1)
	copy(out, expr)
	out[len(expr)] = score
	return out
}

// FuseChecked is Fuse with a length check against the configured label
// count, failing with ErrShapeMismatch.
func FuseChecked(expr model.ExpressionVector, score float64, labels int) (model.FusedVector, error) {
	if len(expr) != labels {
		return nil, model.Errorf("fusion.fuse", model.ErrShapeMismatch, "expression vector has %d values, want %d", len(expr), labels)
	}
	return Fuse(expr, score), nil
}
