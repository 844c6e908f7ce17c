// Package imagestore wraps the externally-hosted image collection the
// crawler walks (spec.md §1: "The image-store adapter (cloud drive/object
// store)"). The store is explicitly out of scope as a domain to implement —
// it is referenced only through its interface — so this package is a thin
// net/http client, grounded on the teacher's pkg/central.Client shape
// (http.Client + zap logger + do-and-decode helpers), matching whatever
// backend exposes the list/fetch contract behind an HTTP facade.
package imagestore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"time"

	"go.uber.org/zap"

	"github.com/piclocate/piclocate-engine/pkg/apperrors"
)

// Entry is one file returned by ListFolder.
type Entry struct {
	FileID string
	Path   string
	Name   string
	Mime   string
}

// Store is the crawler's view of the source collection (spec.md §1).
type Store interface {
	// ListFolder enumerates entries directly under folderID, non-recursive;
	// the crawler recurses by re-calling ListFolder on subfolder entries.
	ListFolder(ctx context.Context, folderID string) ([]Entry, error)
	// FetchBytes downloads one file's raw bytes and its source-reported
	// modification time.
	FetchBytes(ctx context.Context, fileID string) ([]byte, time.Time, error)
	// SignedURL returns a time-limited, publicly fetchable URL for fileID,
	// used to hand images to the VLM without proxying bytes through this
	// service (spec.md §4.6 "signed fetch URLs").
	SignedURL(ctx context.Context, fileID string) (string, error)
}

// HTTPStore talks to a backend exposing list/fetch/sign over HTTP. No pack
// dependency wraps a cloud-drive SDK, so this follows the ambient
// net/http-client idiom rather than importing one.
type HTTPStore struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	logger     *zap.Logger
}

// Config configures an HTTPStore.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// New constructs an HTTPStore over cfg.
func New(cfg Config, logger *zap.Logger) (*HTTPStore, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("image store base URL is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &HTTPStore{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		logger:     logger.Named("imagestore"),
	}, nil
}

var _ Store = (*HTTPStore)(nil)

func (s *HTTPStore) ListFolder(ctx context.Context, folderID string) ([]Entry, error) {
	endpoint, err := s.buildURL("v1", "folders", folderID, "children")
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build list request: %w", err)
	}
	s.authorize(req)

	body, err := s.do(req)
	if err != nil {
		return nil, fmt.Errorf("list folder %s: %w", folderID, err)
	}

	var payload struct {
		Entries []struct {
			FileID string `json:"file_id"`
			Path   string `json:"path"`
			Name   string `json:"name"`
			Mime   string `json:"mime"`
		} `json:"entries"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("parse list response: %w", err)
	}

	out := make([]Entry, 0, len(payload.Entries))
	for _, e := range payload.Entries {
		out = append(out, Entry{FileID: e.FileID, Path: e.Path, Name: e.Name, Mime: e.Mime})
	}
	return out, nil
}

func (s *HTTPStore) FetchBytes(ctx context.Context, fileID string) ([]byte, time.Time, error) {
	endpoint, err := s.buildURL("v1", "files", fileID, "content")
	if err != nil {
		return nil, time.Time{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("build fetch request: %w", err)
	}
	s.authorize(req)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("fetch file %s: %w", fileID, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("read file %s body: %w", fileID, err)
	}
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, time.Time{}, apperrors.New(apperrors.KindAuth, fmt.Sprintf("image store credential rejected fetching %s", fileID))
	}
	if resp.StatusCode != http.StatusOK {
		s.logger.Error("image store returned error",
			zap.String("file_id", fileID), zap.Int("status", resp.StatusCode))
		return nil, time.Time{}, fmt.Errorf("fetch file %s: status %d", fileID, resp.StatusCode)
	}

	mtime := time.Now()
	if lm := resp.Header.Get("Last-Modified"); lm != "" {
		if parsed, err := http.ParseTime(lm); err == nil {
			mtime = parsed
		}
	}
	return data, mtime, nil
}

func (s *HTTPStore) SignedURL(ctx context.Context, fileID string) (string, error) {
	endpoint, err := s.buildURL("v1", "files", fileID, "sign")
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(nil))
	if err != nil {
		return "", fmt.Errorf("build sign request: %w", err)
	}
	s.authorize(req)

	body, err := s.do(req)
	if err != nil {
		return "", fmt.Errorf("sign file %s: %w", fileID, err)
	}

	var payload struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", fmt.Errorf("parse sign response: %w", err)
	}
	return payload.URL, nil
}

func (s *HTTPStore) do(req *http.Request) ([]byte, error) {
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, apperrors.New(apperrors.KindAuth, fmt.Sprintf("image store credential rejected (status %d)", resp.StatusCode))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, string(body))
	}
	return body, nil
}

func (s *HTTPStore) authorize(req *http.Request) {
	req.Header.Set("Accept", "application/json")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}
}

func (s *HTTPStore) buildURL(segments ...string) (string, error) {
	u, err := url.Parse(s.baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid image store base URL: %w", err)
	}
	u.Path = path.Join(append([]string{u.Path}, segments...)...)
	return u.String(), nil
}
