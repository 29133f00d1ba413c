package record

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/LegalCornerLawOffice/AI-Voice/internal/session"
)

// JSONFileRecorder writes one pretty-printed JSON file per call. Development
// sink; not safe against concurrent calls sharing a session id.
type JSONFileRecorder struct {
	dir string
}

func NewJSONFileRecorder(dir string) *JSONFileRecorder {
	return &JSONFileRecorder{dir: dir}
}

func (r *JSONFileRecorder) Finalize(_ context.Context, rec *session.Record) error {
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return fmt.Errorf("record: create dir %s: %w", r.dir, err)
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("record: encode %s: %w", rec.SessionID, err)
	}
	name := fmt.Sprintf("%s_%s.json", rec.EndedAt.UTC().Format("20060102T150405"), rec.SessionID)
	path := filepath.Join(r.dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("record: write %s: %w", path, err)
	}
	return nil
}
