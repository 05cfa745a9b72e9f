package model

import (
	"errors"
	"fmt"
)

// Sentinel error kinds shared by the inference pipeline. All of them are
// fatal to the current run.
var (
	ErrInsufficientObservations = errors.New("insufficient observations")
	ErrLabelCoverage            = errors.New("label coverage")
	ErrShapeMismatch            = errors.New("shape mismatch")
	ErrParameterLoad            = errors.New("parameter load")
	ErrMalformedInput           = errors.New("malformed input")
	ErrClassification           = errors.New("classification failed")
	ErrCapture                  = errors.New("capture failed")
)

var kinds = []struct {
	err  error
	name string
}{
	{ErrInsufficientObservations, "insufficient_observations"},
	{ErrLabelCoverage, "label_coverage"},
	{ErrShapeMismatch, "shape_mismatch"},
	{ErrParameterLoad, "parameter_load"},
	{ErrMalformedInput, "malformed_input"},
	{ErrClassification, "classification"},
	{ErrCapture, "capture"},
}

// KindError annotates a failure with the operation that produced it and
// its kind. Both Kind and Err are visible to errors.Is.
type KindError struct {
	Op   string
	Kind error
	Err  error
}

func (e *KindError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Kind)
}

// Unwrap exposes both the kind and the cause.
func (e *KindError) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Kind, e.Err}
	}
	return []error{e.Kind}
}

// NewKind returns an error of the given kind with no further cause.
func NewKind(op string, kind error) error {
	return &KindError{Op: op, Kind: kind}
}

// WrapKind tags err with op and kind. A nil err yields NewKind.
func WrapKind(op string, kind, err error) error {
	return &KindError{Op: op, Kind: kind, Err: err}
}

// Errorf is WrapKind with a formatted cause.
func Errorf(op string, kind error, format string, args ...any) error {
	return &KindError{Op: op, Kind: kind, Err: fmt.Errorf(format, args...)}
}

// KindName returns the snake_case name of err's kind. The outermost
// KindError wins; otherwise the first known sentinel in the chain is used,
// and "internal" when none matches.
func KindName(err error) string {
	if err == nil {
		return ""
	}
	var ke *KindError
	if errors.As(err, &ke) {
		for _, k := range kinds {
			if ke.Kind == k.err {
				return k.name
			}
		}
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.name
		}
	}
	return "internal"
}
