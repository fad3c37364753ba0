// Package download refreshes reference files (the CTY country database) over
// HTTP. Requests are conditional on the last ETag/Last-Modified recorded in a
// JSON sidecar, and a file is only replaced after the caller's check accepts
// the new content.
package download

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// MetadataSuffix names the sidecar next to the destination file.
const MetadataSuffix = ".status.json"

// Status says whether the destination changed.
type Status string

const (
	StatusUpdated     Status = "updated"
	StatusNotModified Status = "not_modified"
	StatusSameContent Status = "same_content"
)

// Metadata is the sidecar record of the last successful check.
type Metadata struct {
	URL          string    `json:"url,omitempty"`
	ETag         string    `json:"etag,omitempty"`
	LastModified string    `json:"last_modified,omitempty"`
	DownloadedAt time.Time `json:"downloaded_at,omitempty"`
	CheckedAt    time.Time `json:"checked_at,omitempty"`
	SizeBytes    int64     `json:"size_bytes,omitempty"`
	SHA256       string    `json:"sha256,omitempty"`
}

// Request describes one refresh.
type Request struct {
	URL         string
	Destination string
	Timeout     time.Duration
	// Force skips the conditional headers and the same-content shortcut.
	Force     bool
	UserAgent string
	// Check, when set, runs on the downloaded temp file; an error leaves the
	// current destination in place.
	Check func(path string) error
}

// Result summarizes the outcome.
type Result struct {
	Status Status
	Meta   Metadata
	Bytes  int64
}

// MetadataPath returns the sidecar path for dest.
func MetadataPath(dest string) string {
	if strings.TrimSpace(dest) == "" {
		return ""
	}
	return dest + MetadataSuffix
}

// Purpose: Fetch a file if it changed and install it atomically.
// Key aspects: Conditional GET from the sidecar; SHA-256 detects a server
// that ignores conditional headers; Check gates the rename.
// Upstream: cmd/vcl cty -update.
// Downstream: net/http, ReadMetadata, WriteMetadata.
func Fetch(ctx context.Context, req Request) (Result, error) {
	var result Result
	url := strings.TrimSpace(req.URL)
	dest := strings.TrimSpace(req.Destination)
	if url == "" {
		return result, errors.New("download: URL is empty")
	}
	if dest == "" {
		return result, errors.New("download: destination is empty")
	}
	metaPath := MetadataPath(dest)

	_, err := os.Stat(dest)
	destExists := err == nil
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return result, fmt.Errorf("download: stat destination: %w", err)
	}
	prev, _ := ReadMetadata(metaPath)
	conditional := !req.Force && destExists && prev != nil

	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return result, fmt.Errorf("download: build request: %w", err)
	}
	if conditional {
		if prev.ETag != "" {
			httpReq.Header.Set("If-None-Match", prev.ETag)
		}
		if prev.LastModified != "" {
			httpReq.Header.Set("If-Modified-Since", prev.LastModified)
		}
	}
	if req.UserAgent != "" {
		httpReq.Header.Set("User-Agent", req.UserAgent)
	}

	resp, err := http.DefaultClient.Do(httpReq)
	if err != nil {
		return result, fmt.Errorf("download: fetch failed: %w", err)
	}
	defer resp.Body.Close()

	now := time.Now().UTC()
	meta := nextMetadata(prev, url, resp, now)
	if resp.StatusCode == http.StatusNotModified && conditional {
		result.Status = StatusNotModified
		result.Meta = meta
		return result, WriteMetadata(metaPath, meta)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return result, fmt.Errorf("download: fetch failed: status %s", resp.Status)
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return result, fmt.Errorf("download: create directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(dest), filepath.Base(dest)+".*.tmp")
	if err != nil {
		return result, fmt.Errorf("download: create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	hasher := sha256.New()
	written, err := io.Copy(io.MultiWriter(tmp, hasher), resp.Body)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return result, fmt.Errorf("download: copy body: %w", err)
	}
	if written == 0 {
		return result, errors.New("download: empty response body")
	}
	sum := hex.EncodeToString(hasher.Sum(nil))
	result.Bytes = written
	meta.SHA256 = sum

	if !req.Force && destExists && prev != nil && prev.SHA256 == sum {
		result.Status = StatusSameContent
		result.Meta = meta
		return result, WriteMetadata(metaPath, meta)
	}
	if req.Check != nil {
		if err := req.Check(tmpName); err != nil {
			return result, fmt.Errorf("download: rejected %s: %w", url, err)
		}
	}
	if err := os.Rename(tmpName, dest); err != nil {
		return result, fmt.Errorf("download: replace file: %w", err)
	}
	meta.DownloadedAt = now
	meta.SizeBytes = written
	result.Status = StatusUpdated
	result.Meta = meta
	return result, WriteMetadata(metaPath, meta)
}

// ReadMetadata loads the sidecar.
func ReadMetadata(path string) (*Metadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var meta Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("download: parse %s: %w", path, err)
	}
	return &meta, nil
}

// WriteMetadata stores the sidecar as indented JSON.
func WriteMetadata(path string, meta Metadata) error {
	if strings.TrimSpace(path) == "" {
		return errors.New("download: metadata path is empty")
	}
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("download: write metadata: %w", err)
	}
	return nil
}

func nextMetadata(prev *Metadata, url string, resp *http.Response, now time.Time) Metadata {
	var meta Metadata
	if prev != nil {
		meta = *prev
	}
	meta.URL = url
	meta.CheckedAt = now
	if etag := strings.TrimSpace(resp.Header.Get("ETag")); etag != "" {
		meta.ETag = etag
	}
	if last := strings.TrimSpace(resp.Header.Get("Last-Modified")); last != "" {
		meta.LastModified = last
	}
	return meta
}
