package storage

import (
	"io"
	"path/filepath"

	"github.com/google/uuid"
)

// Storage holds certificate documents. The core only depends on the opaque
// path reference plus the content type and byte size recorded on the
// certificate row.
type Storage interface {
	Read(path string) (io.ReadCloser, error)

	Write(path string, data io.Reader) error

	Delete(path string) error

	Exists(path string) (bool, error)

	Location() string
}

func DocumentPath(certificateId uuid.UUID, filename string) string {
	return filepath.Join("documents", certificateId.String(), filename)
}
