// Package exam implements the exam-taking core: parsing a test definition,
// scoring a submission, the countdown timer and the per-student session state.
package exam

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/pavelanni/examtaker/internal/model"
)

// ErrInvalidTest is returned when a test document breaks the Question invariants.
var ErrInvalidTest = errors.New("invalid test definition")

// MaxDurationMinutes bounds exam_duration_minutes (one week).
const MaxDurationMinutes = 7 * 24 * 60

// ParseTestDefinition decodes a test document, applies defaults to optional
// fields and checks that every question has options and a valid answer key.
func ParseTestDefinition(raw []byte) (model.TestDefinition, error) {
	var def model.TestDefinition
	if err := json.Unmarshal(raw, &def); err != nil {
		return model.TestDefinition{}, fmt.Errorf("decode test definition: %w", err)
	}
	def = WithDefaults(def)
	if err := Validate(def); err != nil {
		return model.TestDefinition{}, err
	}
	return def, nil
}

// WithDefaults returns a copy of def with every absent optional field filled in.
func WithDefaults(def model.TestDefinition) model.TestDefinition {
	if def.DurationMinutes <= 0 {
		def.DurationMinutes = model.DefaultDurationMinutes
	}
	if def.TeacherName == "" {
		def.TeacherName = model.DefaultTeacherName
	}
	if def.Topics == nil {
		def.Topics = []string{}
	}
	qs := make([]model.Question, len(def.Questions))
	for i, q := range def.Questions {
		qs[i] = QuestionWithDefaults(q)
	}
	def.Questions = qs
	return def
}

// QuestionWithDefaults fills in explanation, topic, subtopic and difficulty.
func QuestionWithDefaults(q model.Question) model.Question {
	if q.Explanation == "" {
		q.Explanation = model.DefaultExplanation
	}
	if q.Topic == "" {
		q.Topic = model.DefaultTopic
	}
	if q.Subtopic == "" {
		q.Subtopic = model.DefaultSubtopic
	}
	if q.Difficulty == "" {
		q.Difficulty = model.DefaultDifficulty
	}
	return q
}

// Validate checks the Question invariants of a test definition.
func Validate(def model.TestDefinition) error {
	if def.DurationMinutes > MaxDurationMinutes {
		return fmt.Errorf("%w: duration %d minutes exceeds %d", ErrInvalidTest, def.DurationMinutes, MaxDurationMinutes)
	}
	for i, q := range def.Questions {
		n := i + 1
		if strings.TrimSpace(q.Text) == "" {
			return fmt.Errorf("%w: question %d has no text", ErrInvalidTest, n)
		}
		if len(q.Options) == 0 {
			return fmt.Errorf("%w: question %d has no options", ErrInvalidTest, n)
		}
		if _, ok := q.Options[q.CorrectAnswer]; !ok {
			return fmt.Errorf("%w: question %d answer %q is not an option", ErrInvalidTest, n, q.CorrectAnswer)
		}
	}
	return nil
}

// OptionKeys returns the option keys of q in stable (sorted) order.
func OptionKeys(q model.Question) []string {
	keys := make([]string, 0, len(q.Options))
	for k := range q.Options {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// TestInfo builds the summary embedded in a result record.
func TestInfo(def model.TestDefinition) model.TestInfo {
	total := len(def.Questions)
	if def.TotalQuestions != nil {
		total = *def.TotalQuestions
	}
	return model.TestInfo{
		Subject:         def.Subject,
		Topics:          def.Topics,
		Difficulty:      def.Difficulty,
		CreatedAt:       def.CreatedAt,
		TotalQuestions:  total,
		DurationMinutes: def.DurationMinutes,
	}
}
