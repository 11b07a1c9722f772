package mirror

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
)

const (
	appsDir     = "apps"
	packagesDir = "packages"
	imagesDir   = "images"
)

// treeDirs lists the subdirectories in creation order.
var treeDirs = []string{appsDir, packagesDir, imagesDir}

// validatePath validates that a path is safe for use within the tree.
// It rejects parent directory references and absolute paths.
func validatePath(path string) error {
	cleanPath := filepath.Clean(filepath.FromSlash(path))

	if cleanPath == ".." || strings.HasPrefix(cleanPath, ".."+string(filepath.Separator)) {
		return errors.New("unsafe path (contains directory traversal): " + path)
	}

	if filepath.IsAbs(cleanPath) {
		return errors.New("unsafe path (absolute path not allowed): " + path)
	}

	return nil
}

// Tree manages the destination directory of a mirror.
//
//	<root>/apps/index.json
//	<root>/apps/<appId>.json
//	<root>/images/<imageId>
//	<root>/packages/<packageId>
type Tree struct {
	root string
}

// NewTree constructs Tree rooted at root.  root need not exist.
func NewTree(root string) (*Tree, error) {
	if root == "" {
		return nil, errors.New("empty destination root")
	}
	return &Tree{root: filepath.Clean(root)}, nil
}

// Root returns the root directory of the Tree.
func (t *Tree) Root() string {
	return t.root
}

// Exists returns true if the root directory (or any file) exists.
func (t *Tree) Exists() (bool, error) {
	_, err := os.Lstat(t.root)
	switch {
	case err == nil:
		return true, nil
	case os.IsNotExist(err):
		return false, nil
	default:
		return false, &FilesystemError{Op: "stat", Path: t.root, Err: err}
	}
}

// Reset removes the root with everything beneath it and
// creates the empty subdirectories.
func (t *Tree) Reset() error {
	if err := os.RemoveAll(t.root); err != nil {
		return &FilesystemError{Op: "remove", Path: t.root, Err: err}
	}

	for _, d := range treeDirs {
		p := filepath.Join(t.root, d)
		if err := os.MkdirAll(p, 0755); err != nil { // #nosec G301 - the tree is served publicly
			return &FilesystemError{Op: "mkdir", Path: p, Err: err}
		}
	}
	return nil
}

// Path returns the local path for a slash-separated relative path
// such as "images/foo.png".
func (t *Tree) Path(rel string) (string, error) {
	if err := validatePath(rel); err != nil {
		return "", &FilesystemError{Op: "resolve", Path: rel, Err: err}
	}
	return filepath.Join(t.root, filepath.FromSlash(rel)), nil
}

// Sync flushes directory entries of the whole tree.
func (t *Tree) Sync() error {
	if err := DirSyncTree(t.root); err != nil {
		return &FilesystemError{Op: "sync", Path: t.root, Err: err}
	}
	return nil
}
