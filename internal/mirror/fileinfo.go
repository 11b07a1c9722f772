package mirror

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
)

// FileInfo is a set of meta data of a downloaded file.
type FileInfo struct {
	path   string
	size   uint64
	sha256 []byte
}

// Path returns the slash-separated relative path of the file.
func (fi *FileInfo) Path() string {
	return fi.path
}

// Size returns the number of bytes of the file body.
func (fi *FileInfo) Size() uint64 {
	return fi.size
}

// SHA256 returns the hex encoded SHA-256 checksum.
func (fi *FileInfo) SHA256() string {
	return hex.EncodeToString(fi.sha256)
}

// CopyWithFileInfo copies from src to dst until either EOF is reached
// on src or an error occurs, and returns FileInfo calculated while copying.
func CopyWithFileInfo(dst io.Writer, src io.Reader, p string) (*FileInfo, error) {
	sha256hash := sha256.New()

	w := io.MultiWriter(sha256hash, dst)
	n, err := io.Copy(w, src)
	if err != nil {
		return nil, err
	}

	return &FileInfo{
		path:   p,
		size:   uint64(n), // #nosec G115 - io.Copy returns n >= 0
		sha256: sha256hash.Sum(nil),
	}, nil
}
