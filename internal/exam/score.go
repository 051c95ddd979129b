package exam

import (
	"errors"

	"github.com/pavelanni/examtaker/internal/model"
)

// ErrNoQuestions is returned by Score for a test without questions.
var ErrNoQuestions = errors.New("test has no questions")

// Answers maps a 1-based question ordinal to the selected option key.
// An absent key means the question was left unanswered.
type Answers map[int]string

// Score compares answers against the answer key of questions.
// Questions are expected to have had their defaults applied.
func Score(questions []model.Question, answers Answers) (model.ScoreReport, error) {
	total := len(questions)
	if total == 0 {
		return model.ScoreReport{}, ErrNoQuestions
	}

	correct := 0
	results := make([]model.QuestionOutcome, 0, total)
	for i, q := range questions {
		n := i + 1
		var studentAnswer *string
		if a, ok := answers[n]; ok {
			studentAnswer = &a
		}
		isCorrect := studentAnswer != nil && *studentAnswer == q.CorrectAnswer
		if isCorrect {
			correct++
		}

		q = QuestionWithDefaults(q)
		results = append(results, model.QuestionOutcome{
			Number:        n,
			Text:          q.Text,
			Options:       q.Options,
			StudentAnswer: studentAnswer,
			CorrectAnswer: q.CorrectAnswer,
			IsCorrect:     isCorrect,
			Explanation:   q.Explanation,
			Topic:         q.Topic,
			Subtopic:      q.Subtopic,
			Difficulty:    q.Difficulty,
		})
	}

	return model.ScoreReport{
		TotalQuestions:  total,
		CorrectAnswers:  correct,
		ScorePercentage: float64(100*correct) / float64(total),
		Results:         results,
	}, nil
}
