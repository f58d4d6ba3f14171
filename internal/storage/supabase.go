package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	storage_go "github.com/supabase-community/storage-go"
)

// SupabaseOptions configures the object-storage client.
type SupabaseOptions struct {
	ProjectURL string
	ServiceKey string
	Bucket     string
}

// SupabaseStore persists job artifacts in a Supabase storage bucket.
type SupabaseStore struct {
	client *storage_go.Client
	bucket string
}

// NewSupabaseStore builds a store against the given project and bucket.
func NewSupabaseStore(opts SupabaseOptions) (*SupabaseStore, error) {
	url := strings.TrimRight(strings.TrimSpace(opts.ProjectURL), "/")
	if url == "" {
		return nil, errors.New("storage: project url is required")
	}
	if strings.TrimSpace(opts.Bucket) == "" {
		return nil, errors.New("storage: bucket is required")
	}
	client := storage_go.NewClient(url+"/storage/v1", opts.ServiceKey, nil)
	return &SupabaseStore{client: client, bucket: opts.Bucket}, nil
}

// Get downloads the object at path.
func (s *SupabaseStore) Get(ctx context.Context, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cleanPath, err := sanitizeKey(path)
	if err != nil {
		return nil, err
	}
	data, err := s.client.DownloadFile(s.bucket, cleanPath)
	if err != nil {
		return nil, fmt.Errorf("storage: download %s: %w", cleanPath, err)
	}
	return data, nil
}

// Put uploads PNG bytes at path, overwriting any prior object, and returns
// the object's public URL.
func (s *SupabaseStore) Put(ctx context.Context, path string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	cleanPath, err := sanitizeKey(path)
	if err != nil {
		return "", err
	}
	contentType := "image/png"
	upsert := true
	_, err = s.client.UploadFile(s.bucket, cleanPath, bytes.NewReader(data), storage_go.FileOptions{
		ContentType: &contentType,
		Upsert:      &upsert,
	})
	if err != nil {
		return "", fmt.Errorf("storage: upload %s: %w", cleanPath, err)
	}
	return s.client.GetPublicUrl(s.bucket, cleanPath).SignedURL, nil
}
