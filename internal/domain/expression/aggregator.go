// Package expression reduces repeated expression-probability observations
// into one stable, positional vector.
package expression

import (
	"errors"
	"fmt"
	"strings"

	"github.com/okian/learnpath/internal/domain/model"
	"github.com/okian/learnpath/pkg/metrics"
)

// Aggregator averages observations over a fixed, ordered set of target
// labels. It holds no mutable state and is safe for concurrent use.
type Aggregator struct {
	labels []string
}

// NewAggregator returns an Aggregator for labels in canonical order.
// Labels are compared case-insensitively.
func NewAggregator(labels []string) *Aggregator {
	ls := make([]string, len(labels))
	for i, l := range labels {
		ls[i] = normalize(l)
	}
	return &Aggregator{labels: ls}
}

// Labels returns a copy of the canonical label order.
func (a *Aggregator) Labels() []string {
	return append([]string(nil), a.labels...)
}

// Aggregate restricts every observation to the target labels and returns
// the elementwise arithmetic mean in label order. Labels outside the target
// set are dropped. An empty sequence fails with ErrInsufficientObservations,
// a missing target label with ErrLabelCoverage and two keys that normalize
// to the same label with ErrMalformedInput; no value is defaulted.
func (a *Aggregator) Aggregate(observations []model.Observation) (model.ExpressionVector, error) {
	const op = "expression.aggregate"
	if len(observations) == 0 {
		return nil, model.NewKind(op, model.ErrInsufficientObservations)
	}

	sums := make([]float64, len(a.labels))
	for i, obs := range observations {
		restricted, err := a.Restrict(obs)
		if err != nil {
			var coverage *CoverageError
			if errors.As(err, &coverage) {
				return nil, model.Errorf(op, model.ErrLabelCoverage, "observation %d: %v", i, err)
			}
			return nil, model.Errorf(op, model.ErrMalformedInput, "observation %d: %v", i, err)
		}
		for j, v := range restricted {
			sums[j] += v
		}
	}

	n := float64(len(observations))
	out := make(model.ExpressionVector, len(sums))
	for j, s := range sums {
		out[j] = s / n
	}
	metrics.RecordObservationsAggregated(len(observations))
	return out, nil
}

// Restrict maps a single observation onto the target labels. Keys that
// collide after normalization ("happy", " Happy") are rejected.
func (a *Aggregator) Restrict(obs model.Observation) ([]float64, error) {
	byLabel := make(map[string]float64, len(obs))
	for k, v := range obs {
		l := normalize(k)
		if _, dup := byLabel[l]; dup {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateLabel, l)
		}
		byLabel[l] = v
	}

	out := make([]float64, len(a.labels))
	var missing []string
	for j, l := range a.labels {
		v, ok := byLabel[l]
		if !ok {
			missing = append(missing, l)
			continue
		}
		out[j] = v
	}
	if len(missing) > 0 {
		return nil, &CoverageError{Missing: missing}
	}
	return out, nil
}

func normalize(label string) string {
	return strings.ToLower(strings.TrimSpace(label))
}
