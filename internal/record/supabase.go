// Package record persists finalized call records. Supabase backs
// production; a JSON file sink covers development.
package record

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/supabase-community/supabase-go"

	"github.com/LegalCornerLawOffice/AI-Voice/internal/session"
)

// SupabaseRecorder inserts one row per completed call into a Postgres table
// through the Supabase REST API.
type SupabaseRecorder struct {
	client *supabase.Client
	table  string
}

type recordRow struct {
	SessionID string          `json:"session_id"`
	StartedAt time.Time       `json:"started_at"`
	EndedAt   time.Time       `json:"ended_at"`
	Status    string          `json:"status"`
	Payload   json.RawMessage `json:"payload"`
}

func NewSupabaseRecorder(url, serviceRoleKey, table string) (*SupabaseRecorder, error) {
	client, err := supabase.NewClient(url, serviceRoleKey, &supabase.ClientOptions{})
	if err != nil {
		return nil, fmt.Errorf("record: create supabase client: %w", err)
	}
	if table == "" {
		table = "call_records"
	}
	return &SupabaseRecorder{client: client, table: table}, nil
}

func (r *SupabaseRecorder) Finalize(ctx context.Context, rec *session.Record) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("record: encode %s: %w", rec.SessionID, err)
	}
	row := recordRow{
		SessionID: rec.SessionID,
		StartedAt: rec.StartedAt,
		EndedAt:   rec.EndedAt,
		Status:    string(rec.Status),
		Payload:   payload,
	}
	if _, _, err := r.client.From(r.table).Insert(row, false, "", "", "").Execute(); err != nil {
		return fmt.Errorf("record: insert %s: %w", rec.SessionID, err)
	}
	return nil
}
