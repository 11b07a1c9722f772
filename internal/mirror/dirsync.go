package mirror

import (
	"os"
	"path/filepath"
)

// DirSync calls fsync(2) on the directory to save changes in the directory.
//
// This should be called after os.Create, os.Rename and so on.
func DirSync(d string) error {
	f, err := os.Open(d) // #nosec G304 - d is a directory of the destination tree
	if err != nil {
		return err
	}
	err = f.Sync()
	if err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func dirSyncFunc(path string, entry os.DirEntry, err error) error {
	if err != nil {
		return err
	}

	if !entry.IsDir() {
		return nil
	}

	return DirSync(path)
}

// DirSyncTree calls DirSync recursively on a directory tree
// rooted from d.
func DirSyncTree(d string) error {
	// filepath.WalkDir includes d.
	return filepath.WalkDir(d, dirSyncFunc)
}
