package exam

import (
	"errors"
	"fmt"
	"reflect"
	"testing"

	"github.com/pavelanni/examtaker/internal/model"
)

const sampleTest = `{
  "subject": "Physics",
  "difficulty": "Hard",
  "topics": ["Mechanics", "Optics"],
  "teacher_name": "Amit",
  "created_at": "2025-01-05T10:30:00Z",
  "exam_duration_minutes": 45,
  "total_questions": 2,
  "questions": [
    {"question_text": "Unit of force?", "options": {"B": "Joule", "A": "Newton"}, "correct_answer": "A",
     "explanation": "F = ma", "topic": "Mechanics", "subtopic": "Units", "difficulty": "Easy"},
    {"question_text": "Speed of light?", "options": {"A": "3e8 m/s", "B": "3e5 m/s"}, "correct_answer": "A"}
  ]
}`

func TestParseTestDefinition(t *testing.T) {
	def, err := ParseTestDefinition([]byte(sampleTest))
	if err != nil {
		t.Fatalf("ParseTestDefinition: %v", err)
	}
	if def.Subject != "Physics" || def.TeacherName != "Amit" || def.DurationMinutes != 45 {
		t.Errorf("unexpected header: %+v", def)
	}
	if len(def.Questions) != 2 {
		t.Fatalf("expected 2 questions, got %d", len(def.Questions))
	}
	q2 := def.Questions[1]
	if q2.Topic != model.DefaultTopic || q2.Subtopic != model.DefaultSubtopic ||
		q2.Difficulty != model.DefaultDifficulty || q2.Explanation != model.DefaultExplanation {
		t.Errorf("defaults not applied: %+v", q2)
	}
	if def.Questions[0].Explanation != "F = ma" {
		t.Errorf("explanation overwritten: %q", def.Questions[0].Explanation)
	}
	if got := OptionKeys(def.Questions[0]); !reflect.DeepEqual(got, []string{"A", "B"}) {
		t.Errorf("OptionKeys = %v, want [A B]", got)
	}
	info := TestInfo(def)
	if info.TotalQuestions != 2 || info.DurationMinutes != 45 || len(info.Topics) != 2 {
		t.Errorf("unexpected test info: %+v", info)
	}
}

func TestParseTestDefinitionDefaults(t *testing.T) {
	def, err := ParseTestDefinition([]byte(`{"subject":"Math","questions":[]}`))
	if err != nil {
		t.Fatalf("ParseTestDefinition: %v", err)
	}
	if def.DurationMinutes != model.DefaultDurationMinutes {
		t.Errorf("duration = %d, want %d", def.DurationMinutes, model.DefaultDurationMinutes)
	}
	if def.TeacherName != model.DefaultTeacherName {
		t.Errorf("teacher = %q, want %q", def.TeacherName, model.DefaultTeacherName)
	}
	if def.Topics == nil {
		t.Error("topics should be an empty list, not nil")
	}
	if got := TestInfo(def).TotalQuestions; got != 0 {
		t.Errorf("total questions = %d, want 0", got)
	}
}

func TestParseTestDefinitionInvalid(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"no options", `{"questions":[{"question_text":"Q","options":{},"correct_answer":"A"}]}`},
		{"answer not an option", `{"questions":[{"question_text":"Q","options":{"A":"x"},"correct_answer":"B"}]}`},
		{"empty text", `{"questions":[{"question_text":" ","options":{"A":"x"},"correct_answer":"A"}]}`},
		{"duration too long", `{"exam_duration_minutes":200000000,"questions":[{"question_text":"Q","options":{"A":"x"},"correct_answer":"A"}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseTestDefinition([]byte(tt.doc))
			if !errors.Is(err, ErrInvalidTest) {
				t.Errorf("expected ErrInvalidTest, got %v", err)
			}
		})
	}

	if _, err := ParseTestDefinition([]byte(`not json`)); err == nil {
		t.Error("expected decode error")
	}
}

func TestMaxDurationFitsTimer(t *testing.T) {
	doc := fmt.Sprintf(`{"exam_duration_minutes":%d,"questions":[{"question_text":"Q","options":{"A":"x"},"correct_answer":"A"}]}`, MaxDurationMinutes)
	def, err := ParseTestDefinition([]byte(doc))
	if err != nil {
		t.Fatalf("ParseTestDefinition: %v", err)
	}
	st := Evaluate(def.DurationMinutes, t0, t0)
	if st.Expired() || st.Tier != TierSafe {
		t.Errorf("longest allowed exam at start = %+v, want a running safe timer", st)
	}
}
