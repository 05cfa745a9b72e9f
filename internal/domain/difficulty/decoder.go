package difficulty

import "github.com/okian/learnpath/internal/domain/model"

// Decode picks the highest-scoring class for each question, preserving
// question order. Ties go to the lowest class index.
func Decode(logits model.Logits) model.LearningPath {
	path := make(model.LearningPath, len(logits))
	for q, row := range logits {
		path[q] = argmax(row)
	}
	return path
}

func argmax(row []float32) int {
	best := 0
	for c := 1; c < len(row); c++ {
		if row[c] > row[best] {
			best = c
		}
	}
	return best
}
