package exam

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pavelanni/examtaker/internal/model"
)

// NewResultRecord assembles the result document for a scored attempt.
// The access token of id is deliberately not part of the record.
func NewResultRecord(id model.StudentIdentity, def model.TestDefinition, report model.ScoreReport,
	completedAt time.Time, timeTakenMinutes int, auto bool,
) model.ResultRecord {
	return model.ResultRecord{
		StudentName:      id.Name,
		StudentEmail:     id.Email,
		StudentID:        id.StudentID,
		TestID:           id.TestID,
		TeacherName:      def.TeacherName,
		TestInfo:         TestInfo(def),
		CompletedAt:      completedAt.Format(time.RFC3339),
		TimeTakenMinutes: timeTakenMinutes,
		AutoSubmitted:    auto,
		Score:            report,
	}
}

// ResultFilename names a result document as
// {name}_{test_id}_{unixtime}_{suffix}.json, with spaces in the name replaced
// by underscores. The random suffix keeps two writes in the same second apart.
func ResultFilename(studentName, testID string, at time.Time, suffix string) string {
	name := strings.ReplaceAll(strings.TrimSpace(studentName), " ", "_")
	return fmt.Sprintf("%s_%s_%d_%s.json", name, testID, at.Unix(), suffix)
}

// NewSuffix returns a short random suffix for ResultFilename.
func NewSuffix() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// CommitMessage is the message attached to a result write.
func CommitMessage(studentName, testID string) string {
	return fmt.Sprintf("Add student result: %s - %s", studentName, testID)
}
