package mirror

import (
	"fmt"
	"net/http"
)

// FetchError reports a failed download: a transport error,
// a non-2xx status or a truncated body.
// Path is set when a partially written file was removed.
type FetchError struct {
	URL        string
	StatusCode int
	Path       string
	Err        error
}

func (e *FetchError) Error() string {
	var msg string
	if e.StatusCode != 0 && e.Err == nil {
		msg = fmt.Sprintf("GET %s: %d %s", e.URL, e.StatusCode, http.StatusText(e.StatusCode))
	} else {
		msg = fmt.Sprintf("GET %s: %v", e.URL, e.Err)
	}
	if e.Path != "" {
		msg += " (removed " + e.Path + ")"
	}
	return msg
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// FilesystemError reports a failure to clear, create, write
// or sync a path of the destination tree.
type FilesystemError struct {
	Op   string
	Path string
	Err  error
}

func (e *FilesystemError) Error() string {
	return e.Op + " " + e.Path + ": " + e.Err.Error()
}

func (e *FilesystemError) Unwrap() error {
	return e.Err
}
