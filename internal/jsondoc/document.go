// Package jsondoc persists the record set as a single JSON array on disk.
// Writes go through a temp file, fsync and rename, so a crash leaves either
// the previous document or the new one.
package jsondoc

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/pavel-fokin/media-drop/internal/files"
)

// ErrNotArray is returned when the document holds valid JSON that is not an array.
var ErrNotArray = errors.New("metadata document is not an array")

// Document implements files.Persister over a JSON file.
type Document struct {
	path   string
	logger *slog.Logger
}

var _ files.Persister = (*Document)(nil)

// New creates a document persister at path.
func New(path string, logger *slog.Logger) *Document {
	return &Document{
		path:   path,
		logger: logger.With(slog.String("component", "jsondoc")),
	}
}

// Load reads every record it can decode. Entries with fields of the wrong
// type lose those fields rather than the whole record.
func (d *Document) Load() ([]files.Record, error) {
	data, err := os.ReadFile(d.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read metadata document: %w", err)
	}

	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse metadata document: %w", err)
	}
	if _, ok := raw.([]any); !ok {
		return nil, ErrNotArray
	}

	var entries []json.RawMessage
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse metadata document: %w", err)
	}

	records := make([]files.Record, 0, len(entries))
	for i, entry := range entries {
		rec, err := decodeRecord(entry)
		if err != nil {
			d.logger.Warn("Skipping unreadable record", "index", i, "error", err)
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

// decodeRecord decodes entry, dropping individual fields that do not fit
// the record type so normalisation can fill them in.
func decodeRecord(entry json.RawMessage) (files.Record, error) {
	var rec files.Record
	if err := json.Unmarshal(entry, &rec); err == nil {
		return rec, nil
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(entry, &fields); err != nil {
		return files.Record{}, err
	}
	for key, value := range fields {
		single, _ := json.Marshal(map[string]json.RawMessage{key: value})
		var probe files.Record
		if json.Unmarshal(single, &probe) != nil {
			delete(fields, key)
		}
	}

	cleaned, err := json.Marshal(fields)
	if err != nil {
		return files.Record{}, err
	}
	rec = files.Record{}
	if err := json.Unmarshal(cleaned, &rec); err != nil {
		return files.Record{}, err
	}
	return rec, nil
}

// Save atomically replaces the document with records.
func (d *Document) Save(records []files.Record) error {
	if records == nil {
		records = []files.Record{}
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode records: %w", err)
	}

	dir := filepath.Dir(d.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(d.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write metadata: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to sync metadata: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close metadata: %w", err)
	}
	if err := os.Rename(tmpPath, d.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to replace metadata document: %w", err)
	}
	return nil
}
