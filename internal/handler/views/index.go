package views

// IndexData fills the identity form. The access token is never echoed back.
type IndexData struct {
	Name      string
	Email     string
	StudentID string
	TestID    string
	Error     string
}
