package repository

import (
	"bytes"
	"context"
	"fmt"
	"math/rand"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/okian/learnpath/pkg/logger"
	"github.com/okian/learnpath/pkg/metrics"
)

// bankFile is the on-disk layout of a question bank.
type bankFile struct {
	Questions []Question `yaml:"questions"`
}

// QuestionBank is an in-memory Store loaded once and never mutated.
type QuestionBank struct {
	byDifficulty map[int][]Question
	total        int

	seed   int64
	rngMu  sync.Mutex
	rng    *rand.Rand
	logger logger.Logger
}

// LoadQuestionBank reads a YAML question bank from path.
func LoadQuestionBank(path string, opts ...Option) (*QuestionBank, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadQuestionBank, err)
	}
	var f bankFile
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrLoadQuestionBank, path, err)
	}
	return NewQuestionBank(f.Questions, opts...)
}

// NewQuestionBank validates questions and indexes them by difficulty.
func NewQuestionBank(questions []Question, opts ...Option) (*QuestionBank, error) {
	b := &QuestionBank{
		byDifficulty: make(map[int][]Question),
		seed:         time.Now().UnixNano(),
		logger:       logger.Nop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.rng = rand.New(rand.NewSource(b.seed)) //nolint:gosec // question sampling, not security

	seen := make(map[string]struct{}, len(questions))
	for i, q := range questions {
		if err := validateQuestion(q); err != nil {
			return nil, fmt.Errorf("%w: question %d: %w", ErrInvalidQuestion, i, err)
		}
		if q.ID != "" {
			if _, dup := seen[q.ID]; dup {
				return nil, fmt.Errorf("%w: duplicate id %q", ErrInvalidQuestion, q.ID)
			}
			seen[q.ID] = struct{}{}
		}
		b.byDifficulty[q.Difficulty] = append(b.byDifficulty[q.Difficulty], q)
	}
	b.total = len(questions)
	return b, nil
}

func validateQuestion(q Question) error {
	switch {
	case strings.TrimSpace(q.Text) == "":
		return fmt.Errorf("empty question text")
	case len(q.Options) < 2:
		return fmt.Errorf("need at least two options, got %d", len(q.Options))
	case q.CorrectAnswer < 0 || q.CorrectAnswer >= len(q.Options):
		return fmt.Errorf("correct answer %d out of range", q.CorrectAnswer)
	case q.Difficulty < 0:
		return fmt.Errorf("%w: %d", ErrInvalidDifficulty, q.Difficulty)
	}
	return nil
}

// ForPath picks one random question per difficulty in path order.
// Difficulties without questions are skipped and reported in Missing.
func (b *QuestionBank) ForPath(ctx context.Context, path []int) (Selection, error) {
	for i, d := range path {
		if d < 0 {
			return Selection{}, fmt.Errorf("%w: position %d is %d", ErrInvalidDifficulty, i, d)
		}
	}

	sel := Selection{Questions: make([]Question, 0, len(path))}
	b.rngMu.Lock()
	for i, d := range path {
		pool := b.byDifficulty[d]
		if len(pool) == 0 {
			sel.Missing = append(sel.Missing, i)
			continue
		}
		sel.Questions = append(sel.Questions, pool[b.rng.Intn(len(pool))])
	}
	b.rngMu.Unlock()

	if len(sel.Missing) > 0 {
		b.logger.Warn(ctx, "some difficulties did not match available questions",
			logger.Ints("path", path),
			logger.Ints("missing_positions", sel.Missing),
		)
	}
	metrics.RecordQuestionsServed(len(sel.Questions))
	return sel, nil
}

// ByDifficulty returns a copy of the questions of difficulty d.
func (b *QuestionBank) ByDifficulty(_ context.Context, d int) []Question {
	return append([]Question(nil), b.byDifficulty[d]...)
}

// Count returns the number of questions in the bank.
func (b *QuestionBank) Count(context.Context) int {
	return b.total
}

// Difficulties returns the difficulties present, ascending.
func (b *QuestionBank) Difficulties() []int {
	ds := make([]int, 0, len(b.byDifficulty))
	for d := range b.byDifficulty {
		ds = append(ds, d)
	}
	sort.Ints(ds)
	return ds
}
