package quictransport

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
)

func joinRoot(root, path string) string {
	return filepath.Join(root, filepath.FromSlash(path))
}

func readLocalFile(root, path string) ([]byte, error) {
	return os.ReadFile(joinRoot(root, path))
}

func byteReaderFrom(bs []byte) io.Reader {
	if len(bs) == 0 {
		return nil
	}
	return bytes.NewReader(bs)
}
