package store

import (
	"testing"
	"time"

	"github.com/pavelanni/examtaker/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("newTestStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testEntry(attemptID, testID string, pct float64, at time.Time) JournalEntry {
	answer := "A"
	return JournalEntry{
		AttemptID:   attemptID,
		Filename:    "Ada_" + testID + "_1_" + attemptID + ".json",
		RemoteSaved: true,
		SubmittedAt: at,
		Record: model.ResultRecord{
			StudentName: "Ada",
			TestID:      testID,
			TeacherName: "Amit",
			CompletedAt: at.Format(time.RFC3339),
			Score: model.ScoreReport{
				TotalQuestions:  1,
				CorrectAnswers:  1,
				ScorePercentage: pct,
				Results: []model.QuestionOutcome{{
					Number:        1,
					Text:          "Q1",
					Options:       map[string]string{"A": "x"},
					StudentAnswer: &answer,
					CorrectAnswer: "A",
					IsCorrect:     true,
				}},
			},
		},
	}
}

func TestSaveAndGetResult(t *testing.T) {
	s := newTestStore(t)
	at := time.Date(2025, 1, 5, 9, 0, 0, 0, time.UTC)

	count, err := s.ResultCount()
	if err != nil {
		t.Fatalf("ResultCount: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected 0 results, got %d", count)
	}

	if err := s.SaveResult(testEntry("a1", "T1", 100, at)); err != nil {
		t.Fatalf("SaveResult: %v", err)
	}

	got, err := s.GetResult("a1")
	if err != nil {
		t.Fatalf("GetResult: %v", err)
	}
	if got.StudentName != "Ada" || got.TestID != "T1" || got.Score != 100 || !got.RemoteSaved {
		t.Errorf("unexpected entry: %+v", got)
	}
	if got.Record.Score.Results[0].StudentAnswer == nil || *got.Record.Score.Results[0].StudentAnswer != "A" {
		t.Errorf("record not preserved: %+v", got.Record.Score)
	}

	// Write-once per attempt.
	if err := s.SaveResult(testEntry("a1", "T1", 0, at)); err == nil {
		t.Error("expected duplicate attempt to be rejected")
	}
}

func TestListResults(t *testing.T) {
	s := newTestStore(t)
	at := time.Date(2025, 1, 5, 9, 0, 0, 0, time.UTC)
	for i, e := range []JournalEntry{
		testEntry("a1", "T1", 40, at),
		testEntry("a2", "T2", 60, at.Add(time.Minute)),
		testEntry("a3", "T1", 80, at.Add(2*time.Minute)),
	} {
		if err := s.SaveResult(e); err != nil {
			t.Fatalf("SaveResult %d: %v", i, err)
		}
	}

	tests := []struct {
		name   string
		testID string
		want   []string
	}{
		{"all", "", []string{"a1", "a2", "a3"}},
		{"by test", "T1", []string{"a1", "a3"}},
		{"no match", "T9", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entries, err := s.ListResults(tt.testID)
			if err != nil {
				t.Fatalf("ListResults: %v", err)
			}
			if len(entries) != len(tt.want) {
				t.Fatalf("expected %d entries, got %d", len(tt.want), len(entries))
			}
			for i, e := range entries {
				if e.AttemptID != tt.want[i] {
					t.Errorf("entry %d = %s, want %s", i, e.AttemptID, tt.want[i])
				}
			}
		})
	}
}

func TestExportResults(t *testing.T) {
	s := newTestStore(t)
	at := time.Date(2025, 1, 5, 9, 0, 0, 0, time.UTC)
	failed := testEntry("a1", "T1", 50, at)
	failed.RemoteSaved = false
	failed.RemoteError = "write students_solution/x.json: 403 - forbidden"
	if err := s.SaveResult(failed); err != nil {
		t.Fatalf("SaveResult: %v", err)
	}

	out, err := s.ExportResults("")
	if err != nil {
		t.Fatalf("ExportResults: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("expected 1 exported result, got %d", len(out))
	}
	if out[0].RemoteSaved || out[0].RemoteError == "" {
		t.Errorf("remote outcome lost: %+v", out[0])
	}
	if out[0].Result.Score.ScorePercentage != 50 {
		t.Errorf("score = %v, want 50", out[0].Result.Score.ScorePercentage)
	}
}

func TestSaveResultIndexesFromRecord(t *testing.T) {
	s := newTestStore(t)
	at := time.Date(2025, 1, 5, 9, 0, 0, 0, time.UTC)
	e := testEntry("a1", "T1", 75, at)
	e.Record.AutoSubmitted = true
	// Stale summary fields must not reach the indexed columns.
	e.StudentName = "Someone Else"
	e.TestID = "T9"
	e.Score = 1

	if err := s.SaveResult(e); err != nil {
		t.Fatalf("SaveResult: %v", err)
	}
	got, err := s.GetResult("a1")
	if err != nil {
		t.Fatalf("GetResult: %v", err)
	}
	if got.StudentName != "Ada" || got.TestID != "T1" || got.Score != 75 || !got.AutoSubmit {
		t.Errorf("summary = %q %q %v %v, want Ada T1 75 true", got.StudentName, got.TestID, got.Score, got.AutoSubmit)
	}
	if list, _ := s.ListResults("T9"); len(list) != 0 {
		t.Errorf("entry indexed under caller-supplied test id")
	}
}
