package views

import (
	"github.com/pavelanni/examtaker/internal/exam"
	"github.com/pavelanni/examtaker/internal/model"
)

// OutcomeOption is one option in the detailed result of a question.
type OutcomeOption struct {
	Key       string
	Text      string
	IsCorrect bool
	IsStudent bool
}

// Mark classifies the option for styling: the key is "correct", the student's
// wrong pick is "incorrect", anything else is unmarked.
func (o OutcomeOption) Mark() string {
	switch {
	case o.IsCorrect:
		return "correct"
	case o.IsStudent:
		return "incorrect"
	default:
		return ""
	}
}

// OutcomeView is the detailed result of one question.
type OutcomeView struct {
	Number        int
	Text          string
	IsCorrect     bool
	StudentAnswer string
	CorrectAnswer string
	Topic         string
	Difficulty    string
	Explanation   string
	Options       []OutcomeOption
}

// ResultData is the view of a scored attempt.
type ResultData struct {
	Report        model.ScoreReport
	AutoSubmitted bool
	Save          *exam.SaveOutcome
	Band          string
	BandClass     string
	Outcomes      []OutcomeView
}

// Band returns the message id and style class of the performance band for pct.
func Band(pct float64) (msgID, class string) {
	switch {
	case pct >= 80:
		return "PerformanceExcellent", "success"
	case pct >= 60:
		return "PerformanceGood", "warning"
	default:
		return "PerformanceKeepStudying", "error"
	}
}

// NewResultData builds the result view of a submission.
func NewResultData(sub *exam.Submission, save *exam.SaveOutcome) ResultData {
	band, class := Band(sub.Report.ScorePercentage)
	d := ResultData{
		Report:        sub.Report,
		AutoSubmitted: sub.Record.AutoSubmitted,
		Save:          save,
		Band:          band,
		BandClass:     class,
	}
	for _, r := range sub.Report.Results {
		ov := OutcomeView{
			Number:        r.Number,
			Text:          r.Text,
			IsCorrect:     r.IsCorrect,
			CorrectAnswer: r.CorrectAnswer,
			Topic:         r.Topic,
			Difficulty:    r.Difficulty,
			Explanation:   r.Explanation,
		}
		if r.StudentAnswer != nil {
			ov.StudentAnswer = *r.StudentAnswer
		}
		q := model.Question{Options: r.Options}
		for _, k := range exam.OptionKeys(q) {
			ov.Options = append(ov.Options, OutcomeOption{
				Key:       k,
				Text:      r.Options[k],
				IsCorrect: k == r.CorrectAnswer,
				IsStudent: r.StudentAnswer != nil && k == *r.StudentAnswer,
			})
		}
		d.Outcomes = append(d.Outcomes, ov)
	}
	return d
}
