package views

import (
	"time"

	"github.com/pavelanni/examtaker/internal/exam"
	"github.com/pavelanni/examtaker/internal/model"
)

// OptionView is one selectable option.
type OptionView struct {
	Key     string
	Text    string
	Checked bool
}

// QuestionView is one rendered question.
type QuestionView struct {
	Number  int
	Total   int
	Text    string
	Options []OptionView
}

// ExamData is the view of an in-progress exam.
type ExamData struct {
	Test         model.TestDefinition
	Started      bool
	Timer        exam.TimerState
	DurationText string
	Topics       string
	CreatedText  string
	Questions    []QuestionView
	Warning      string
}

// NewExamData builds the exam view from a session snapshot at now.
func NewExamData(snap exam.Snapshot, now time.Time, warning string) ExamData {
	def := snap.Test
	d := ExamData{
		Test:         def,
		Started:      snap.Started(),
		DurationText: exam.DurationText(def.DurationMinutes),
		Topics:       joinTopics(def.Topics),
		CreatedText:  CreatedText(def.CreatedAt),
		Warning:      warning,
	}
	if snap.StartedAt != nil {
		d.Timer = exam.Evaluate(def.DurationMinutes, *snap.StartedAt, now)
	}
	for i, q := range def.Questions {
		n := i + 1
		qv := QuestionView{Number: n, Total: len(def.Questions), Text: q.Text}
		selected, answered := snap.Answers[n]
		for _, k := range exam.OptionKeys(q) {
			qv.Options = append(qv.Options, OptionView{Key: k, Text: q.Options[k], Checked: answered && selected == k})
		}
		d.Questions = append(d.Questions, qv)
	}
	return d
}
