// Package catalog implements the app market index format.
package catalog

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"strings"

	"github.com/cockroachdb/errors"
)

const (
	// IndexPath is the relative path of the index document
	// under both the remote base URL and the local tree.
	IndexPath = "apps/index.json"

	appsKey = "apps"
)

// App is one entry of the catalog index.
type App struct {
	AppID     string `json:"appId"`
	Name      string `json:"name"`
	Version   string `json:"version"`
	ImageID   string `json:"imageId"`
	PackageID string `json:"packageId"`
}

// MetadataPath returns the relative path of the per-app metadata file.
func (a *App) MetadataPath() string {
	return "apps/" + a.AppID + ".json"
}

// ImagePath returns the relative path of the app image.
func (a *App) ImagePath() string {
	return "images/" + a.ImageID
}

// PackagePath returns the relative path of the app package.
func (a *App) PackagePath() string {
	return "packages/" + a.PackageID
}

// Index is a parsed catalog index.
// Apps keeps the order of the document.
type Index struct {
	Apps []App
}

// ParseError is returned when an index document is malformed.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	if e.Path == "" {
		return "parse index: " + e.Err.Error()
	}
	return "parse index " + e.Path + ": " + e.Err.Error()
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// validIdentifier reports whether id can name a single file.
func validIdentifier(id string) bool {
	if id == "" || id == "." || id == ".." {
		return false
	}
	return !strings.ContainsAny(id, `/\`) && !strings.ContainsRune(id, 0)
}

// Parse reads an index document from r.
func Parse(r io.Reader) (*Index, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, &ParseError{Err: errors.Wrap(err, "read")}
	}

	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, &ParseError{Err: err}
	}

	raw, ok := doc[appsKey]
	if !ok || isNull(raw) {
		return nil, &ParseError{Err: errors.Newf("missing %q key", appsKey)}
	}

	var entries []json.RawMessage
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, &ParseError{Err: errors.Wrapf(err, "decode %q", appsKey)}
	}

	idx := &Index{Apps: make([]App, len(entries))}
	for i, entry := range entries {
		if err := idx.Apps[i].decode(entry); err != nil {
			return nil, &ParseError{Err: errors.Wrapf(err, "entry %d", i+1)}
		}
	}
	return idx, nil
}

// ParseFile parses the index document stored at p.
func ParseFile(p string) (*Index, error) {
	f, err := os.Open(p) // #nosec G304 - p is the index path inside the destination tree
	if err != nil {
		return nil, &ParseError{Path: p, Err: err}
	}
	defer f.Close()

	idx, err := Parse(f)
	if err != nil {
		var pe *ParseError
		if errors.As(err, &pe) {
			pe.Path = p
		}
		return nil, err
	}
	return idx, nil
}

// requiredKeys lists the keys every entry must carry with a non-null value.
var requiredKeys = []string{"appId", "name", "version", "imageId", "packageId"}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

// decode fills a from one entry of the apps array.
// name and version may be empty strings but must be present.
func (a *App) decode(entry json.RawMessage) error {
	var keys map[string]json.RawMessage
	if err := json.Unmarshal(entry, &keys); err != nil {
		return err
	}
	if keys == nil {
		return errors.New("entry is null")
	}
	for _, k := range requiredKeys {
		if raw, ok := keys[k]; !ok || isNull(raw) {
			return errors.Newf("missing %s", k)
		}
	}
	if err := json.Unmarshal(entry, a); err != nil {
		return err
	}
	return a.validate()
}

func (a *App) validate() error {
	fields := []struct {
		name  string
		value string
	}{
		{"appId", a.AppID},
		{"imageId", a.ImageID},
		{"packageId", a.PackageID},
	}
	for _, f := range fields {
		if !validIdentifier(f.value) {
			return errors.Newf("invalid %s %q", f.name, f.value)
		}
	}
	return nil
}
