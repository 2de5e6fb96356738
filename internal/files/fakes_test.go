package files

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"sync"
	"time"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// memStorage is an in-memory FileStorage.
type memStorage struct {
	mu        sync.Mutex
	objects   map[string][]byte
	removeErr error
	removed   []string
}

func newMemStorage() *memStorage {
	return &memStorage{objects: map[string][]byte{}}
}

func (m *memStorage) Save(id string, content io.Reader) (int64, error) {
	data, err := io.ReadAll(content)
	if err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.objects[id]; ok {
		return 0, fs.ErrExist
	}
	m.objects[id] = data
	return int64(len(data)), nil
}

func (m *memStorage) Open(id string) (Object, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[id]
	if !ok {
		return nil, fmt.Errorf("open %s: %w", id, fs.ErrNotExist)
	}
	return &memObject{Reader: bytes.NewReader(data), name: id}, nil
}

func (m *memStorage) Remove(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.removeErr != nil {
		return m.removeErr
	}
	if _, ok := m.objects[id]; !ok {
		return fmt.Errorf("remove %s: %w", id, fs.ErrNotExist)
	}
	delete(m.objects, id)
	m.removed = append(m.removed, id)
	return nil
}

func (m *memStorage) has(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[id]
	return ok
}

func (m *memStorage) put(id string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[id] = data
}

type memObject struct {
	*bytes.Reader
	name   string
	closed bool
}

func (o *memObject) Close() error {
	o.closed = true
	return nil
}

func (o *memObject) Stat() (fs.FileInfo, error) {
	return memInfo{name: o.name, size: o.Reader.Size()}, nil
}

type memInfo struct {
	name string
	size int64
}

func (i memInfo) Name() string       { return i.name }
func (i memInfo) Size() int64        { return i.size }
func (i memInfo) Mode() fs.FileMode  { return 0o644 }
func (i memInfo) ModTime() time.Time { return time.Time{} }
func (i memInfo) IsDir() bool        { return false }
func (i memInfo) Sys() any           { return nil }

// memPersister records saved snapshots.
type memPersister struct {
	mu      sync.Mutex
	loaded  []Record
	loadErr error
	saveErr error
	saved   [][]Record
}

func (p *memPersister) Load() ([]Record, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.loaded, p.loadErr
}

func (p *memPersister) Save(records []Record) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.saveErr != nil {
		return p.saveErr
	}
	p.saved = append(p.saved, records)
	return nil
}

func (p *memPersister) last() []Record {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.saved) == 0 {
		return nil
	}
	return p.saved[len(p.saved)-1]
}

func (p *memPersister) saveCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.saved)
}

var errDiskFull = errors.New("disk full")

// testClock is a settable time source for Store.now.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestStore(p Persister, clock *testClock) *Store {
	s := NewStore(p, 10, discardLogger())
	s.now = clock.Now
	return s
}

func floatPtr(v float64) *float64 { return &v }
