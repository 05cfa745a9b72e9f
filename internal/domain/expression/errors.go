package expression

import (
	"errors"
	"strings"

	"github.com/okian/learnpath/internal/domain/model"
)

// ErrDuplicateLabel reports two observation keys naming the same label
// once case and surrounding space are ignored.
var ErrDuplicateLabel = errors.New("duplicate label")

// CoverageError lists target labels absent from a classifier observation.
type CoverageError struct {
	Missing []string
}

func (e *CoverageError) Error() string {
	return "missing target labels: " + strings.Join(e.Missing, ", ")
}

// Is lets errors.Is(err, model.ErrLabelCoverage) match a bare CoverageError.
func (e *CoverageError) Is(target error) bool {
	return target == model.ErrLabelCoverage
}
