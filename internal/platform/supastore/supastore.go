package supastore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	supabase "github.com/antoineross/supabase-go"
	storage_go "github.com/supabase-community/storage-go"

	"reelforge/internal/config"
	"reelforge/internal/core/progress"
	"reelforge/internal/logger"
)

// Service is the durable side of the dual progress store plus the artifact
// bucket. Both are best effort outside production.
type Service struct {
	client *supabase.Client
	cfg    config.Config
	log    *logger.Logger
}

// New returns nil (no error) when Supabase is not configured so callers can
// treat the durable store as absent. Production requires it.
func New(cfg config.Config) (*Service, error) {
	if cfg.SupabaseURL == "" || cfg.SupabaseServiceKey == "" {
		if cfg.AppEnv == "production" {
			return nil, fmt.Errorf("production environment requires Supabase configuration: SUPABASE_URL and SUPABASE_SERVICE_ROLE_KEY must be set")
		}
		return nil, nil
	}
	client, err := supabase.NewClient(cfg.SupabaseURL, cfg.SupabaseServiceKey, nil)
	if err != nil {
		if cfg.AppEnv == "production" {
			return nil, fmt.Errorf("failed to initialize Supabase client: %w", err)
		}
		logger.New("Supastore").LogWarnf("failed to initialize Supabase client: %v", err)
		return nil, nil
	}
	return &Service{client: client, cfg: cfg, log: logger.New("Supastore")}, nil
}

// UpsertJob writes the job row keyed by job_id. Implements
// progress.DurableStore.
func (s *Service) UpsertJob(ctx context.Context, row progress.JobRow) error {
	_, _, err := s.client.From(s.cfg.SupabaseJobsTable).
		Upsert(row, "job_id", "", "").
		ExecuteString()
	if err != nil {
		return fmt.Errorf("upsert job %s: %w", row.JobID, err)
	}
	return nil
}

// FetchJob reads a single job row, nil when unknown.
func (s *Service) FetchJob(ctx context.Context, jobID string) (*progress.JobRow, error) {
	var rows []progress.JobRow
	_, err := s.client.From(s.cfg.SupabaseJobsTable).
		Select("*", "", false).
		Eq("job_id", jobID).
		Limit(1, "").
		ExecuteTo(&rows)
	if err != nil {
		return nil, fmt.Errorf("fetch job %s: %w", jobID, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

// UploadFile pushes a local artifact into the bucket and returns a signed
// URL valid for expiresIn.
func (s *Service) UploadFile(ctx context.Context, localPath, bucketPath string, expiresIn time.Duration) (string, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("open artifact: %w", err)
	}
	defer f.Close()

	mimeType := mime.TypeByExtension(filepath.Ext(bucketPath))
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	bucketPath = filepath.ToSlash(bucketPath)

	if _, err := s.client.Storage.UploadFile(s.cfg.SupabaseBucket, bucketPath, f, storage_go.FileOptions{ContentType: &mimeType}); err != nil {
		return "", fmt.Errorf("upload %s: %w", bucketPath, err)
	}
	signed, err := s.createSignedURL(s.cfg.SupabaseBucket, bucketPath, int(expiresIn.Seconds()))
	if err != nil {
		return "", fmt.Errorf("sign %s: %w", bucketPath, err)
	}
	return signed, nil
}

// RemoveFiles deletes uploaded artifacts, used by the delayed cleanup task.
func (s *Service) RemoveFiles(ctx context.Context, bucketPaths []string) error {
	if len(bucketPaths) == 0 {
		return nil
	}
	if _, err := s.client.Storage.RemoveFile(s.cfg.SupabaseBucket, bucketPaths); err != nil {
		return fmt.Errorf("remove artifacts: %w", err)
	}
	return nil
}

// createSignedURL signs objects via a direct REST call; the storage client's
// own signer sends stale auth headers against newer gateways.
func (s *Service) createSignedURL(bucket, objectPath string, expiresIn int) (string, error) {
	signURL := fmt.Sprintf("%s/storage/v1/object/sign/%s/%s", strings.TrimRight(s.cfg.SupabaseURL, "/"), bucket, objectPath)
	body := map[string]int{"expiresIn": expiresIn}
	buf := new(bytes.Buffer)
	if err := json.NewEncoder(buf).Encode(body); err != nil {
		return "", fmt.Errorf("failed to encode sign body: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, signURL, buf)
	if err != nil {
		return "", fmt.Errorf("failed to build sign request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.cfg.SupabaseServiceKey)
	req.Header.Set("apikey", s.cfg.SupabaseServiceKey)

	httpClient := &http.Client{Timeout: 15 * time.Second}
	resp, err := httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to request signed URL: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("failed to create signed URL: status %d", resp.StatusCode)
	}

	var signed struct {
		SignedURL string `json:"signedURL"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&signed); err != nil {
		return "", fmt.Errorf("failed to decode signed URL response: %w", err)
	}

	base := strings.TrimRight(s.cfg.SupabaseURL, "/")
	path := signed.SignedURL
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	if !strings.HasPrefix(path, "/storage/v1") {
		path = "/storage/v1" + path
	}
	return base + path, nil
}
