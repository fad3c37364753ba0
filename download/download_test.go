package download

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

func TestFetchUpdated(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("ETag", `"v1"`)
		w.Header().Set("Last-Modified", time.Now().UTC().Format(http.TimeFormat))
		_, _ = w.Write([]byte("hello"))
	}))
	t.Cleanup(server.Close)

	dest := filepath.Join(t.TempDir(), "cty", "cty.plist")
	res, err := Fetch(testContext(t), Request{URL: server.URL, Destination: dest, Timeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if res.Status != StatusUpdated || res.Bytes != 5 {
		t.Fatalf("result = %+v", res)
	}
	data, err := os.ReadFile(dest)
	if err != nil || string(data) != "hello" {
		t.Fatalf("dest = %q, %v", data, err)
	}
	meta, err := ReadMetadata(MetadataPath(dest))
	if err != nil || meta.ETag != `"v1"` || meta.SHA256 == "" || meta.DownloadedAt.IsZero() {
		t.Fatalf("metadata = %+v, %v", meta, err)
	}
}

func TestFetchNotModified(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("If-None-Match") == `"v1"` {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"v1"`)
		_, _ = w.Write([]byte("same"))
	}))
	t.Cleanup(server.Close)

	dest := filepath.Join(t.TempDir(), "cty.plist")
	if res, err := Fetch(testContext(t), Request{URL: server.URL, Destination: dest}); err != nil || res.Status != StatusUpdated {
		t.Fatalf("first fetch = %+v, %v", res, err)
	}
	before, _ := ReadMetadata(MetadataPath(dest))

	second, err := Fetch(testContext(t), Request{URL: server.URL, Destination: dest})
	if err != nil {
		t.Fatalf("second fetch: %v", err)
	}
	if second.Status != StatusNotModified {
		t.Fatalf("expected not modified, got %s", second.Status)
	}
	after, _ := ReadMetadata(MetadataPath(dest))
	if after == nil || !after.DownloadedAt.Equal(before.DownloadedAt) {
		t.Fatalf("DownloadedAt changed on a 304")
	}

	forced, err := Fetch(testContext(t), Request{URL: server.URL, Destination: dest, Force: true})
	if err != nil || forced.Status != StatusUpdated {
		t.Fatalf("forced fetch = %+v, %v", forced, err)
	}
}

func TestFetchSameContent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("repeat"))
	}))
	t.Cleanup(server.Close)

	dest := filepath.Join(t.TempDir(), "cty.plist")
	if _, err := Fetch(testContext(t), Request{URL: server.URL, Destination: dest}); err != nil {
		t.Fatalf("first fetch: %v", err)
	}
	second, err := Fetch(testContext(t), Request{URL: server.URL, Destination: dest})
	if err != nil {
		t.Fatalf("second fetch: %v", err)
	}
	if second.Status != StatusSameContent {
		t.Fatalf("expected same content, got %s", second.Status)
	}
}

func TestFetchCheckRejects(t *testing.T) {
	var body atomic.Value
	body.Store("good")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(body.Load().(string)))
	}))
	t.Cleanup(server.Close)

	dest := filepath.Join(t.TempDir(), "cty.plist")
	if _, err := Fetch(testContext(t), Request{URL: server.URL, Destination: dest}); err != nil {
		t.Fatalf("first fetch: %v", err)
	}

	body.Store("corrupt")
	errBad := errors.New("not a plist")
	_, err := Fetch(testContext(t), Request{
		URL:         server.URL,
		Destination: dest,
		Check:       func(string) error { return errBad },
	})
	if !errors.Is(err, errBad) {
		t.Fatalf("expected check error, got %v", err)
	}
	data, _ := os.ReadFile(dest)
	if string(data) != "good" {
		t.Fatalf("rejected content replaced the file: %q", data)
	}
	matches, _ := filepath.Glob(filepath.Join(filepath.Dir(dest), "*.tmp"))
	if len(matches) != 0 {
		t.Fatalf("temp files left behind: %v", matches)
	}
}

func TestFetchHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	t.Cleanup(server.Close)
	if _, err := Fetch(testContext(t), Request{URL: server.URL, Destination: filepath.Join(t.TempDir(), "x")}); err == nil {
		t.Fatalf("expected error for 404")
	}
	if _, err := Fetch(testContext(t), Request{Destination: "x"}); err == nil {
		t.Fatalf("expected error for empty URL")
	}
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}
