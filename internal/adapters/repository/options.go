package repository

import "github.com/okian/learnpath/pkg/logger"

// Option applies a configuration option to the QuestionBank.
type Option func(*QuestionBank)

// WithSeed fixes the sampling seed, making selections reproducible.
func WithSeed(seed int64) Option {
	return func(b *QuestionBank) {
		b.seed = seed
	}
}

// WithLogger sets the question bank logger.
func WithLogger(l logger.Logger) Option {
	return func(b *QuestionBank) {
		if l != nil {
			b.logger = l
		}
	}
}
