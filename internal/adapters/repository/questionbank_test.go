package repository_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/okian/learnpath/internal/adapters/repository"
	. "github.com/smartystreets/goconvey/convey"
)

func q(id string, difficulty int) repository.Question {
	return repository.Question{
		ID:         id,
		Text:       "question " + id,
		Options:    []string{"a", "b", "c"},
		Difficulty: difficulty,
	}
}

func TestQuestionBank_ForPath(t *testing.T) {
	Convey("Given a bank with easy and hard questions only", t, func() {
		ctx := context.Background()
		bank, err := repository.NewQuestionBank([]repository.Question{
			q("e1", 0), q("e2", 0), q("h1", 2),
		}, repository.WithSeed(7))
		So(err, ShouldBeNil)
		So(bank.Count(ctx), ShouldEqual, 3)
		So(bank.Difficulties(), ShouldResemble, []int{0, 2})

		Convey("When selecting for a path", func() {
			sel, err := bank.ForPath(ctx, []int{0, 2, 0, 2})

			Convey("Then one question per difficulty comes back in path order", func() {
				So(err, ShouldBeNil)
				So(len(sel.Questions), ShouldEqual, 4)
				So(sel.Missing, ShouldBeEmpty)
				So(sel.Questions[0].Difficulty, ShouldEqual, 0)
				So(sel.Questions[1].ID, ShouldEqual, "h1")
				So(sel.Questions[2].Difficulty, ShouldEqual, 0)
				So(sel.Questions[3].ID, ShouldEqual, "h1")
			})
		})

		Convey("When the path asks for a missing difficulty", func() {
			sel, err := bank.ForPath(ctx, []int{0, 1, 2, 1})

			Convey("Then those positions are skipped and reported", func() {
				So(err, ShouldBeNil)
				So(len(sel.Questions), ShouldEqual, 2)
				So(sel.Missing, ShouldResemble, []int{1, 3})
			})
		})

		Convey("When the path holds a negative difficulty", func() {
			_, err := bank.ForPath(ctx, []int{0, -1})
			So(errors.Is(err, repository.ErrInvalidDifficulty), ShouldBeTrue)
		})

		Convey("When listing by difficulty", func() {
			easy := bank.ByDifficulty(ctx, 0)
			easy[0].ID = "mutated"

			Convey("Then a copy is returned", func() {
				So(len(easy), ShouldEqual, 2)
				So(bank.ByDifficulty(ctx, 0)[0].ID, ShouldEqual, "e1")
			})
		})
	})

	Convey("Given two banks with the same seed", t, func() {
		ctx := context.Background()
		qs := []repository.Question{q("e1", 0), q("e2", 0), q("e3", 0), q("e4", 0)}
		a, err := repository.NewQuestionBank(qs, repository.WithSeed(42))
		So(err, ShouldBeNil)
		b, err := repository.NewQuestionBank(qs, repository.WithSeed(42))
		So(err, ShouldBeNil)

		path := []int{0, 0, 0, 0, 0, 0}
		selA, _ := a.ForPath(ctx, path)
		selB, _ := b.ForPath(ctx, path)

		Convey("Then selections are identical", func() {
			So(selA.Questions, ShouldResemble, selB.Questions)
		})
	})
}

func TestNewQuestionBank_Validation(t *testing.T) {
	Convey("Given invalid questions", t, func() {
		bad := map[string]repository.Question{
			"empty text":    {Options: []string{"a", "b"}},
			"one option":    {Text: "x", Options: []string{"a"}},
			"answer range":  {Text: "x", Options: []string{"a", "b"}, CorrectAnswer: 2},
			"negative diff": {Text: "x", Options: []string{"a", "b"}, Difficulty: -1},
		}
		for name, question := range bad {
			_, err := repository.NewQuestionBank([]repository.Question{question})
			So(errors.Is(err, repository.ErrInvalidQuestion), ShouldBeTrue)
			if name == "negative diff" {
				So(errors.Is(err, repository.ErrInvalidDifficulty), ShouldBeTrue)
			}
		}
	})

	Convey("Given duplicate ids", t, func() {
		_, err := repository.NewQuestionBank([]repository.Question{q("x", 0), q("x", 1)})
		So(errors.Is(err, repository.ErrInvalidQuestion), ShouldBeTrue)
		So(err.Error(), ShouldContainSubstring, `"x"`)
	})
}

func TestLoadQuestionBank(t *testing.T) {
	Convey("Given the bundled question bank", t, func() {
		bank, err := repository.LoadQuestionBank(filepath.Join("..", "..", "..", "configs", "questions.yaml"))

		Convey("Then every difficulty is covered", func() {
			So(err, ShouldBeNil)
			So(bank.Count(context.Background()), ShouldEqual, 6)
			So(bank.Difficulties(), ShouldResemble, []int{0, 1, 2})
		})
	})

	Convey("Given broken files", t, func() {
		dir := t.TempDir()

		Convey("When the file is missing", func() {
			_, err := repository.LoadQuestionBank(filepath.Join(dir, "none.yaml"))
			So(errors.Is(err, repository.ErrLoadQuestionBank), ShouldBeTrue)
			So(errors.Is(err, os.ErrNotExist), ShouldBeTrue)
		})

		Convey("When the file has unknown fields", func() {
			path := filepath.Join(dir, "bank.yaml")
			So(os.WriteFile(path, []byte("questions:\n  - question: x\n    answers: [a, b]\n"), 0o600), ShouldBeNil)
			_, err := repository.LoadQuestionBank(path)
			So(errors.Is(err, repository.ErrLoadQuestionBank), ShouldBeTrue)
		})
	})
}
