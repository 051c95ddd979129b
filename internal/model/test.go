package model

// TestDefinition is the question set and metadata of one exam instance as
// fetched from the questions collection. It is never mutated after parsing.
type TestDefinition struct {
	Subject         string     `json:"subject"`
	Difficulty      string     `json:"difficulty"`
	Topics          []string   `json:"topics"`
	TeacherName     string     `json:"teacher_name"`
	CreatedAt       string     `json:"created_at"`
	DurationMinutes int        `json:"exam_duration_minutes"`
	TotalQuestions  *int       `json:"total_questions,omitempty"`
	Questions       []Question `json:"questions"`
}

// Question is a single-choice question. Options maps a one-letter key to its text.
type Question struct {
	Text          string            `json:"question_text"`
	Options       map[string]string `json:"options"`
	CorrectAnswer string            `json:"correct_answer"`
	Explanation   string            `json:"explanation,omitempty"`
	Topic         string            `json:"topic,omitempty"`
	Subtopic      string            `json:"subtopic,omitempty"`
	Difficulty    string            `json:"difficulty,omitempty"`
}

// StudentIdentity is what the student types into the identity form.
// AccessToken authorizes the remote store calls and is never written out.
type StudentIdentity struct {
	Name        string `json:"name" validate:"required"`
	Email       string `json:"email" validate:"omitempty,email"`
	StudentID   string `json:"student_id"`
	TestID      string `json:"test_id" validate:"required"`
	AccessToken string `json:"-" validate:"required"`
}
