package repository

import "errors"

// Sentinel kinds for question bank errors.
var (
	ErrLoadQuestionBank  = errors.New("load question bank")
	ErrInvalidQuestion   = errors.New("invalid question")
	ErrInvalidDifficulty = errors.New("invalid difficulty")
	ErrNoQuestionBank    = errors.New("question bank not configured")
)
