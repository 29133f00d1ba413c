package record

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/supabase-community/supabase-go"
)

// BucketStorage archives call audio in a Supabase storage bucket.
type BucketStorage struct {
	client *supabase.Client
	bucket string
}

func NewBucketStorage(url, serviceRoleKey, bucket string) (*BucketStorage, error) {
	client, err := supabase.NewClient(url, serviceRoleKey, &supabase.ClientOptions{})
	if err != nil {
		return nil, fmt.Errorf("record: create supabase client: %w", err)
	}
	return &BucketStorage{client: client, bucket: bucket}, nil
}

func (s *BucketStorage) Upload(key, contentType string, data []byte) error {
	if _, err := s.client.Storage.UploadFile(s.bucket, key, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("record: upload %s: %w", key, err)
	}
	return nil
}

// DirStorage keeps call audio on local disk. Development fallback.
type DirStorage struct {
	dir string
}

func NewDirStorage(dir string) *DirStorage { return &DirStorage{dir: dir} }

func (s *DirStorage) Upload(key, _ string, data []byte) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("record: create dir %s: %w", s.dir, err)
	}
	path := filepath.Join(s.dir, filepath.Base(key))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("record: write %s: %w", path, err)
	}
	return nil
}
