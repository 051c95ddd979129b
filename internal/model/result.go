package model

// ScoreReport is the scored outcome of one submission.
type ScoreReport struct {
	TotalQuestions  int               `json:"total_questions"`
	CorrectAnswers  int               `json:"correct_answers"`
	ScorePercentage float64           `json:"score_percentage"`
	Results         []QuestionOutcome `json:"results"`
}

// Incorrect returns the number of questions not answered correctly.
func (r ScoreReport) Incorrect() int {
	return r.TotalQuestions - r.CorrectAnswers
}

// QuestionOutcome holds per-question data of a ScoreReport.
// StudentAnswer is nil when the question was left unanswered.
type QuestionOutcome struct {
	Number        int               `json:"question_number"`
	Text          string            `json:"question_text"`
	Options       map[string]string `json:"options"`
	StudentAnswer *string           `json:"student_answer"`
	CorrectAnswer string            `json:"correct_answer"`
	IsCorrect     bool              `json:"is_correct"`
	Explanation   string            `json:"explanation"`
	Topic         string            `json:"topic"`
	Subtopic      string            `json:"subtopic"`
	Difficulty    string            `json:"difficulty"`
}

// TestInfo is the test summary embedded in a ResultRecord.
type TestInfo struct {
	Subject         string   `json:"subject"`
	Topics          []string `json:"topics"`
	Difficulty      string   `json:"difficulty"`
	CreatedAt       string   `json:"created_at"`
	TotalQuestions  int      `json:"total_questions"`
	DurationMinutes int      `json:"exam_duration_minutes"`
}

// ResultRecord is the document written to the results collection, once per attempt.
type ResultRecord struct {
	StudentName      string      `json:"student_name"`
	StudentEmail     string      `json:"student_email"`
	StudentID        string      `json:"student_id"`
	TestID           string      `json:"test_id"`
	TeacherName      string      `json:"teacher_name"`
	TestInfo         TestInfo    `json:"test_info"`
	CompletedAt      string      `json:"completed_at"`
	TimeTakenMinutes int         `json:"time_taken_minutes"`
	AutoSubmitted    bool        `json:"auto_submitted"`
	Score            ScoreReport `json:"score"`
}
