package files

import (
	"io"
	"io/fs"
)

// Object is an open handle on stored file content.
type Object interface {
	io.ReaderAt
	io.Closer
	Stat() (fs.FileInfo, error)
}

// FileStorage defines the interface for the physical file storage
type FileStorage interface {
	// Save writes content under id and returns the number of bytes written.
	// It never overwrites an existing object.
	Save(id string, content io.Reader) (int64, error)

	// Open returns a handle on the object. Errors wrap fs.ErrNotExist when absent.
	Open(id string) (Object, error)

	// Remove deletes the object. Errors wrap fs.ErrNotExist when absent.
	Remove(id string) error
}

// Persister loads and saves the full record set as one document.
type Persister interface {
	Load() ([]Record, error)
	Save(records []Record) error
}
