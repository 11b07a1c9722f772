package mirror

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cockroachdb/errors"
)

func newTestHTTPClient(t *testing.T, bars bool, out io.Writer) *HTTPClient {
	t.Helper()

	h, err := NewHTTPClient(&TLSConfig{}, "appmirror/test", NewConsole(out, false, false), bars)
	if err != nil {
		t.Fatal(err)
	}
	return h
}

func TestFetchToFile(t *testing.T) {
	t.Parallel()

	body := bytes.Repeat([]byte("catalog"), 10000)
	userAgents := make(chan string, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userAgents <- r.Header.Get("User-Agent")
		w.Write(body)
	}))
	defer server.Close()

	var out bytes.Buffer
	h := newTestHTTPClient(t, true, &out)
	dst := filepath.Join(t.TempDir(), "file")

	fi, err := h.FetchToFile(context.Background(), server.URL+"/packages/x", dst, true)
	if err != nil {
		t.Fatal(err)
	}
	if fi.Size() != uint64(len(body)) {
		t.Errorf("fi.Size() = %d, want %d", fi.Size(), len(body))
	}
	if len(fi.SHA256()) != 64 {
		t.Errorf("fi.SHA256() = %q", fi.SHA256())
	}
	got, err := os.ReadFile(dst)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, body) {
		t.Error("downloaded content differs")
	}
	if userAgent := <-userAgents; userAgent != "appmirror/test" {
		t.Errorf("User-Agent = %q", userAgent)
	}
	if !strings.Contains(out.String(), "Get "+server.URL+"/packages/x") {
		t.Errorf("console output = %q", out.String())
	}
}

func TestFetchToFileOverwrites(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("new"))
	}))
	defer server.Close()

	dst := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(dst, []byte("old content that is longer"), 0644); err != nil {
		t.Fatal(err)
	}

	h := newTestHTTPClient(t, false, io.Discard)
	if _, err := h.FetchToFile(context.Background(), server.URL, dst, false); err != nil {
		t.Fatal(err)
	}
	got, _ := os.ReadFile(dst)
	if string(got) != "new" {
		t.Errorf("content = %q, want %q", got, "new")
	}
}

func TestFetchToFileStatus(t *testing.T) {
	t.Parallel()

	for _, status := range []int{http.StatusNotFound, http.StatusInternalServerError, http.StatusNotModified} {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(status)
		}))

		dst := filepath.Join(t.TempDir(), "file")
		h := newTestHTTPClient(t, false, io.Discard)
		_, err := h.FetchToFile(context.Background(), server.URL+"/a", dst, false)
		server.Close()

		var fetchErr *FetchError
		if !errors.As(err, &fetchErr) {
			t.Fatalf("status %d: expected *FetchError, got %v", status, err)
		}
		if fetchErr.StatusCode != status {
			t.Errorf("fetchErr.StatusCode = %d, want %d", fetchErr.StatusCode, status)
		}
		if fetchErr.URL != server.URL+"/a" {
			t.Errorf("fetchErr.URL = %q", fetchErr.URL)
		}
		if _, err := os.Stat(dst); !os.IsNotExist(err) {
			t.Errorf("status %d: file should not be created", status)
		}
	}
}

func TestFetchToFileTruncated(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Length", "1000")
		w.Write([]byte("short"))
	}))
	defer server.Close()

	dst := filepath.Join(t.TempDir(), "file")
	h := newTestHTTPClient(t, false, io.Discard)
	_, err := h.FetchToFile(context.Background(), server.URL, dst, false)

	var fetchErr *FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("expected *FetchError, got %v", err)
	}
	if fetchErr.Path != dst {
		t.Errorf("fetchErr.Path = %q, want %q", fetchErr.Path, dst)
	}
	if !strings.Contains(err.Error(), "(removed "+dst+")") {
		t.Errorf("error %q does not name the removed file", err)
	}
	if _, err := os.Stat(dst); !os.IsNotExist(err) {
		t.Error("partial file should be removed")
	}
}

func TestFetchToFileConnectionRefused(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	h := newTestHTTPClient(t, false, io.Discard)
	_, err := h.FetchToFile(context.Background(), url, filepath.Join(t.TempDir(), "file"), false)
	var fetchErr *FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("expected *FetchError, got %v", err)
	}
	if fetchErr.StatusCode != 0 {
		t.Errorf("fetchErr.StatusCode = %d, want 0", fetchErr.StatusCode)
	}
	if fetchErr.Path != "" {
		t.Errorf("fetchErr.Path = %q, nothing was written", fetchErr.Path)
	}
}

func TestFetchErrorMessage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  *FetchError
		want string
	}{
		{&FetchError{URL: "https://x/a", StatusCode: 500}, "GET https://x/a: 500 Internal Server Error"},
		{&FetchError{URL: "https://x/a", Err: errors.New("boom")}, "GET https://x/a: boom"},
		{&FetchError{URL: "https://x/a", Path: "/srv/images/a", Err: errors.New("truncated body: got 5 of 1000 bytes")},
			"GET https://x/a: truncated body: got 5 of 1000 bytes (removed /srv/images/a)"},
	}
	for _, tt := range tests {
		if got := tt.err.Error(); got != tt.want {
			t.Errorf("Error() = %q, want %q", got, tt.want)
		}
	}
}

func TestFetchToFileUnwritable(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("data"))
	}))
	defer server.Close()

	dst := filepath.Join(t.TempDir(), "missing-dir", "file")
	h := newTestHTTPClient(t, false, io.Discard)
	_, err := h.FetchToFile(context.Background(), server.URL, dst, false)

	var fsErr *FilesystemError
	if !errors.As(err, &fsErr) {
		t.Fatalf("expected *FilesystemError, got %v", err)
	}
	if fsErr.Path != dst {
		t.Errorf("fsErr.Path = %q, want %q", fsErr.Path, dst)
	}
	if msg := FailureMessage(err); msg != "Cannot create "+dst+". Exit." {
		t.Errorf("FailureMessage() = %q", msg)
	}
}

func TestCopyWithFileInfo(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	fi, err := CopyWithFileInfo(&buf, strings.NewReader("hello"), "apps/a.json")
	if err != nil {
		t.Fatal(err)
	}
	if buf.String() != "hello" {
		t.Errorf("copied %q", buf.String())
	}
	if fi.Path() != "apps/a.json" || fi.Size() != 5 {
		t.Errorf("fi = %+v", fi)
	}
	if want := "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824"; fi.SHA256() != want {
		t.Errorf("fi.SHA256() = %s, want %s", fi.SHA256(), want)
	}
}
