package record

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/LegalCornerLawOffice/AI-Voice/internal/session"
)

func TestJSONFileRecorder_WritesRecord(t *testing.T) {
	dir := t.TempDir()
	r := NewJSONFileRecorder(filepath.Join(dir, "records"))

	rec := &session.Record{
		SessionID: "call-42",
		StartedAt: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
		EndedAt:   time.Date(2026, 3, 1, 10, 12, 30, 0, time.UTC),
		Status:    session.StatusCompleted,
		Sections:  []session.SectionRecord{{Name: "Basics", Status: session.SectionCompleted}},
		Answers: []session.AnswerRecord{
			{QuestionID: "Job_Title", Value: "dispatcher", Confirmed: true, Source: session.SourceSpoken},
		},
	}
	require.NoError(t, r.Finalize(context.Background(), rec))

	entries, err := os.ReadDir(filepath.Join(dir, "records"))
	require.NoError(t, err)
	require.Len(t, entries, 1)

	data, err := os.ReadFile(filepath.Join(dir, "records", entries[0].Name()))
	require.NoError(t, err)

	var got session.Record
	require.NoError(t, json.Unmarshal(data, &got))
	require.Equal(t, "call-42", got.SessionID)
	require.Equal(t, session.StatusCompleted, got.Status)
	require.Len(t, got.Answers, 1)
	require.True(t, got.Answers[0].Confirmed)
}
