package mirror

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/cheggaaa/pb/v3"
	"github.com/cockroachdb/errors"
)

// HTTPClient downloads catalog resources into files.
type HTTPClient struct {
	client    *http.Client
	userAgent string
	console   *Console
	bars      bool
}

// NewHTTPClient creates a new HTTP client for downloads.
//
// If bars is true, a byte-count progress bar is rendered
// on the console writer for every download.
func NewHTTPClient(tlsConfig *TLSConfig, userAgent string, console *Console, bars bool) (*HTTPClient, error) {
	client, err := clonedTransport(tlsConfig)
	if err != nil {
		return nil, err
	}
	return &HTTPClient{
		client:    client,
		userAgent: userAgent,
		console:   console,
		bars:      bars && !console.Quiet(),
	}, nil
}

// FetchToFile streams the body of url into localPath.
//
// The file is created only after a 2xx response has been received and
// is removed again if the transfer fails.  If leave is false the progress
// bar is erased when the transfer finishes.
func (h *HTTPClient) FetchToFile(ctx context.Context, url, localPath string, leave bool) (*FileInfo, error) {
	h.console.Fetch(url)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &FetchError{URL: url, Err: err}
	}
	if h.userAgent != "" {
		req.Header.Set("User-Agent", h.userAgent)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, &FetchError{URL: url, Err: err}
	}
	defer closeRespBody(resp)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &FetchError{URL: url, StatusCode: resp.StatusCode}
	}

	f, err := os.OpenFile(localPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644) // #nosec G304,G302 - localPath is resolved by Tree.Path
	if err != nil {
		return nil, &FilesystemError{Op: "create", Path: localPath, Err: err}
	}

	fi, err := h.copyBody(f, resp, filepath.ToSlash(localPath), leave)
	if err != nil {
		closeAndRemoveFile(f)
		return nil, err
	}

	if err := f.Sync(); err != nil {
		closeAndRemoveFile(f)
		return nil, &FilesystemError{Op: "sync", Path: localPath, Err: err}
	}
	if err := f.Close(); err != nil {
		if rmErr := os.Remove(localPath); rmErr != nil {
			slog.Warn("failed to remove partial file", "file", localPath, "error", rmErr)
		}
		return nil, &FilesystemError{Op: "close", Path: localPath, Err: err}
	}

	slog.Debug("file downloaded successfully", "url", url, "path", localPath, "size", fi.Size(), "sha256", fi.SHA256())
	return fi, nil
}

// copyBody copies the response body into f, reporting progress.
func (h *HTTPClient) copyBody(f *os.File, resp *http.Response, p string, leave bool) (*FileInfo, error) {
	url := resp.Request.URL.String()

	var body io.Reader = resp.Body
	if h.bars {
		bar := pb.Full.New(0)
		if resp.ContentLength > 0 {
			bar.SetTotal(resp.ContentLength)
		}
		bar.Set(pb.Bytes, true)
		bar.Set(pb.CleanOnFinish, !leave)
		bar.SetWriter(h.console.Writer())
		bar.Start()
		defer bar.Finish()
		body = bar.NewProxyReader(resp.Body)
	}

	fi, err := CopyWithFileInfo(f, body, p)
	if err != nil {
		var pathErr *os.PathError
		if errors.As(err, &pathErr) {
			return nil, &FilesystemError{Op: "write", Path: f.Name(), Err: err}
		}
		return nil, &FetchError{URL: url, Path: f.Name(), Err: err}
	}

	if resp.ContentLength >= 0 && uint64(resp.ContentLength) != fi.Size() {
		return nil, &FetchError{
			URL:  url,
			Path: f.Name(),
			Err:  errors.Newf("truncated body: got %d of %d bytes", fi.Size(), resp.ContentLength),
		}
	}
	return fi, nil
}

// closeRespBody closes HTTP response body.
func closeRespBody(resp *http.Response) {
	if err := resp.Body.Close(); err != nil {
		slog.Warn("failed to close response body", "error", err)
	}
}

// closeAndRemoveFile closes and removes a partially written file.
func closeAndRemoveFile(f *os.File) {
	filename := f.Name()
	if err := f.Close(); err != nil {
		slog.Warn("failed to close file", "file", filename, "error", err)
	}
	if err := os.Remove(filename); err != nil {
		slog.Warn("failed to remove partial file", "file", filename, "error", err)
	}
}

// clonedTransport creates a new HTTP client with the TLS configuration applied.
func clonedTransport(tlsConfig *TLSConfig) (*http.Client, error) {
	tr := http.DefaultTransport.(*http.Transport).Clone()
	tr.MaxIdleConns = 100
	tr.MaxIdleConnsPerHost = 10
	tr.IdleConnTimeout = 90 * time.Second

	if tlsConfig != nil {
		customTLSConfig, err := tlsConfig.BuildTLSConfig()
		if err != nil {
			return nil, errors.Wrap(err, "tls")
		}
		tr.TLSClientConfig = customTLSConfig
	}

	return &http.Client{
		Transport: tr,
		Timeout:   0, // no timeout; timeout is controlled by context
	}, nil
}
