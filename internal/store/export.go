package store

import (
	"fmt"

	"github.com/pavelanni/examtaker/internal/model"
)

// ExportedResult is one journaled attempt in export form.
type ExportedResult struct {
	AttemptID   string             `json:"attempt_id"`
	Filename    string             `json:"filename"`
	RemoteSaved bool               `json:"remote_saved"`
	RemoteError string             `json:"remote_error,omitempty"`
	Result      model.ResultRecord `json:"result"`
}

// ExportResults builds export-ready results for testID (all tests when empty).
func (s *Store) ExportResults(testID string) ([]ExportedResult, error) {
	entries, err := s.ListResults(testID)
	if err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}

	results := make([]ExportedResult, 0, len(entries))
	for _, e := range entries {
		results = append(results, ExportedResult{
			AttemptID:   e.AttemptID,
			Filename:    e.Filename,
			RemoteSaved: e.RemoteSaved,
			RemoteError: e.RemoteError,
			Result:      e.Record,
		})
	}
	return results, nil
}
