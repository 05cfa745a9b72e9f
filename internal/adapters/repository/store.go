// Package repository serves questions for a learning path from a read-only
// question bank.
package repository

import "context"

// Question is one quiz item.
type Question struct {
	ID            string   `json:"id" yaml:"id"`
	Text          string   `json:"question" yaml:"question"`
	Options       []string `json:"options" yaml:"options"`
	CorrectAnswer int      `json:"correct_answer" yaml:"correct_answer"`
	Difficulty    int      `json:"difficulty" yaml:"difficulty"`
	Category      string   `json:"category,omitempty" yaml:"category"`
}

// Selection is the result of picking questions for a path. Questions are
// in path order; Missing lists the positions whose difficulty had no
// question and were skipped.
type Selection struct {
	Questions []Question
	Missing   []int
}

// Store provides read access to the question bank.
type Store interface {
	// ForPath picks one random question per difficulty in path order.
	ForPath(ctx context.Context, path []int) (Selection, error)

	// ByDifficulty returns every question of difficulty d.
	ByDifficulty(ctx context.Context, d int) []Question

	// Count returns the number of questions in the bank.
	Count(ctx context.Context) int
}
