package exam

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/pavelanni/examtaker/internal/model"
)

var t0 = time.Date(2025, 1, 5, 9, 0, 0, 0, time.UTC)

func testIdentity() model.StudentIdentity {
	return model.StudentIdentity{
		Name:        "Ada Lovelace",
		Email:       "ada@example.com",
		StudentID:   "S-1",
		TestID:      "AMIT_20250105_33",
		AccessToken: "secret-token",
	}
}

func startedSession(t *testing.T) *Session {
	t.Helper()
	s := NewSession("sess", t0)
	def := WithDefaults(model.TestDefinition{Subject: "Physics", Questions: fiveQuestions()})
	if err := s.Load(testIdentity(), def); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := s.Start(t0); err != nil {
		t.Fatalf("Start: %v", err)
	}
	return s
}

func selectAll(t *testing.T, s *Session, answers Answers, at time.Time) {
	t.Helper()
	for n, k := range answers {
		if err := s.Select(n, k, at); err != nil {
			t.Fatalf("Select(%d, %q): %v", n, k, err)
		}
	}
}

func TestSessionFlow(t *testing.T) {
	s := startedSession(t)
	selectAll(t, s, Answers{1: "A", 2: "B", 3: "C", 4: "D", 5: "B"}, t0.Add(time.Minute))

	sub, err := s.Finish(t0.Add(25*time.Minute + 40*time.Second))
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if sub.Report.CorrectAnswers != 4 {
		t.Errorf("correct = %d, want 4", sub.Report.CorrectAnswers)
	}
	if sub.Record.AutoSubmitted {
		t.Error("explicit finish marked as auto-submitted")
	}
	if sub.Record.TimeTakenMinutes != 25 {
		t.Errorf("time taken = %d, want 25", sub.Record.TimeTakenMinutes)
	}
	if sub.Record.TeacherName != model.DefaultTeacherName {
		t.Errorf("teacher = %q, want default", sub.Record.TeacherName)
	}
	if !strings.HasPrefix(sub.Filename, "Ada_Lovelace_AMIT_20250105_33_") {
		t.Errorf("unexpected filename %q", sub.Filename)
	}

	snap := s.Snapshot()
	if snap.Phase != PhaseCompleted {
		t.Errorf("phase = %q, want completed", snap.Phase)
	}

	// Write-once: a second finish or auto-submit must not produce another record.
	if _, err := s.Finish(t0.Add(26 * time.Minute)); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("second Finish: expected ErrInvalidTransition, got %v", err)
	}
	if again, err := s.AutoSubmitIfExpired(t0.Add(2 * time.Hour)); again != nil || err != nil {
		t.Errorf("AutoSubmitIfExpired after completion = %v, %v", again, err)
	}

	if err := s.Reset(); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	snap = s.Snapshot()
	if snap.Phase != PhaseAwaitingIdentity || snap.Submission != nil || snap.Started() {
		t.Errorf("reset left state behind: %+v", snap)
	}
}

func TestFinishWithUnansweredRejected(t *testing.T) {
	s := startedSession(t)
	selectAll(t, s, Answers{1: "A", 2: "B", 3: "C", 4: "D"}, t0.Add(time.Minute))

	sub, err := s.Finish(t0.Add(10 * time.Minute))
	if !errors.Is(err, ErrUnanswered) {
		t.Fatalf("expected ErrUnanswered, got %v", err)
	}
	if sub != nil {
		t.Error("rejected finish returned a submission")
	}
	snap := s.Snapshot()
	if snap.Phase != PhaseInProgress {
		t.Errorf("phase = %q, want in_progress", snap.Phase)
	}
	if snap.Submission != nil {
		t.Error("rejected finish stored a submission")
	}
}

func TestAutoSubmitOnExpiry(t *testing.T) {
	s := startedSession(t)
	selectAll(t, s, Answers{1: "A", 2: "C"}, t0.Add(time.Minute))

	if sub, err := s.AutoSubmitIfExpired(t0.Add(59*time.Minute + 59*time.Second)); sub != nil || err != nil {
		t.Fatalf("auto-submit fired early: %v, %v", sub, err)
	}

	sub, err := s.AutoSubmitIfExpired(t0.Add(60 * time.Minute))
	if err != nil {
		t.Fatalf("AutoSubmitIfExpired: %v", err)
	}
	if sub == nil {
		t.Fatal("expected a submission at expiry")
	}
	if !sub.Record.AutoSubmitted {
		t.Error("expected auto_submitted = true")
	}
	if sub.Report.CorrectAnswers != 1 {
		t.Errorf("correct = %d, want 1", sub.Report.CorrectAnswers)
	}
	if sub.Record.TimeTakenMinutes != 60 {
		t.Errorf("time taken = %d, want full duration 60", sub.Record.TimeTakenMinutes)
	}
	for _, r := range sub.Report.Results[2:] {
		if r.IsCorrect {
			t.Errorf("unanswered question %d counted correct", r.Number)
		}
	}
	if s.Snapshot().Phase != PhaseCompleted {
		t.Error("expected completed phase after auto-submit")
	}
}

func TestFinishAfterExpiryAutoSubmits(t *testing.T) {
	s := startedSession(t)
	sub, err := s.Finish(t0.Add(61 * time.Minute))
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if !sub.Record.AutoSubmitted {
		t.Error("finish after expiry should be auto-submitted")
	}
	if sub.Report.CorrectAnswers != 0 {
		t.Errorf("correct = %d, want 0", sub.Report.CorrectAnswers)
	}
}

func TestSelect(t *testing.T) {
	s := startedSession(t)
	at := t0.Add(time.Minute)

	if err := s.Select(2, "A", at); err != nil {
		t.Fatalf("Select: %v", err)
	}
	if err := s.Select(2, "C", at); err != nil {
		t.Fatalf("Select overwrite: %v", err)
	}
	if err := s.Select(3, "B", at); err != nil {
		t.Fatalf("Select: %v", err)
	}
	got := s.Snapshot().Answers
	if len(got) != 2 || got[2] != "C" || got[3] != "B" {
		t.Errorf("answers = %v, want {2:C 3:B}", got)
	}

	tests := []struct {
		name    string
		ordinal int
		key     string
		at      time.Time
		want    error
	}{
		{"zero ordinal", 0, "A", at, ErrOrdinalRange},
		{"past last", 6, "A", at, ErrOrdinalRange},
		{"unknown key", 1, "Z", at, ErrUnknownOption},
		{"after expiry", 1, "A", t0.Add(time.Hour), ErrTimeExpired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := s.Select(tt.ordinal, tt.key, tt.at); !errors.Is(err, tt.want) {
				t.Errorf("Select = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestIllegalTransitions(t *testing.T) {
	s := NewSession("x", t0)
	if err := s.Start(t0); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Start before Load: %v", err)
	}
	if _, err := s.Finish(t0); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Finish before Load: %v", err)
	}
	if err := s.Reset(); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Reset before Load: %v", err)
	}

	def := WithDefaults(model.TestDefinition{Questions: fiveQuestions()})
	if err := s.Load(testIdentity(), def); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := s.Load(testIdentity(), def); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("second Load: %v", err)
	}
	if err := s.Select(1, "A", t0); !errors.Is(err, ErrNotStarted) {
		t.Errorf("Select before Start: %v", err)
	}
	if _, err := s.Finish(t0); !errors.Is(err, ErrNotStarted) {
		t.Errorf("Finish before Start: %v", err)
	}
	if _, ok := s.Timer(t0); ok {
		t.Error("timer reported before Start")
	}
	if err := s.Start(t0); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := s.Start(t0.Add(time.Minute)); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("second Start: %v", err)
	}
	state, ok := s.Timer(t0.Add(time.Minute))
	if !ok || state.Clock != "00:59:00" {
		t.Errorf("timer = %+v, %v", state, ok)
	}
}

func TestResetAbandonsInProgress(t *testing.T) {
	s := startedSession(t)
	if err := s.Reset(); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if sub, _ := s.AutoSubmitIfExpired(t0.Add(2 * time.Hour)); sub != nil {
		t.Error("abandoned attempt was auto-submitted")
	}
}

func TestRecordExcludesToken(t *testing.T) {
	s := startedSession(t)
	sub, err := s.Finish(t0.Add(time.Hour))
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if strings.Contains(sub.Filename, "secret-token") {
		t.Error("token leaked into filename")
	}
	if s.AccessToken() != "secret-token" {
		t.Error("session lost its credential")
	}
}
