package files

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"path"
	"path/filepath"
	"strconv"
	"strings"
)

var contentTypes = map[string]string{
	".mp4": "video/mp4",
	".mov": "video/quicktime",
	".avi": "video/x-msvideo",
}

// ContentType returns the media type served for name.
func ContentType(name string) string {
	if ct, ok := contentTypes[strings.ToLower(filepath.Ext(name))]; ok {
		return ct
	}
	return "application/octet-stream"
}

// Response describes what to send back for a retrieval request.
// Body is nil when the response carries no content; otherwise the caller closes it.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       io.ReadCloser
}

// Streamer serves stored objects, honouring single byte-range requests.
type Streamer struct {
	storage FileStorage
}

// NewStreamer creates a streamer over storage.
func NewStreamer(storage FileStorage) *Streamer {
	return &Streamer{storage: storage}
}

// Respond resolves id to a stored object and describes the full or partial
// response for rangeHeader. Every call opens its own handle.
func (s *Streamer) Respond(id, rangeHeader string) (*Response, error) {
	name := SanitizeID(id)
	if name == "" {
		return nil, Errorf(KindNotFound, "file not found")
	}

	obj, err := s.storage.Open(name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, Errorf(KindNotFound, "file not found")
		}
		return nil, Internal("failed to open file", err)
	}

	info, err := obj.Stat()
	if err != nil {
		obj.Close()
		return nil, Internal("failed to stat file", err)
	}
	size := info.Size()

	header := http.Header{}
	header.Set("Content-Type", ContentType(name))
	header.Set("Accept-Ranges", "bytes")

	if rangeHeader == "" {
		header.Set("Content-Length", strconv.FormatInt(size, 10))
		return &Response{
			StatusCode: http.StatusOK,
			Header:     header,
			Body:       section(obj, 0, size),
		}, nil
	}

	start, end, ok := parseRange(rangeHeader, size)
	if !ok {
		obj.Close()
		return &Response{
			StatusCode: http.StatusRequestedRangeNotSatisfiable,
			Header:     http.Header{"Content-Range": {fmt.Sprintf("bytes */%d", size)}},
		}, nil
	}

	length := end - start + 1
	header.Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end, size))
	header.Set("Content-Length", strconv.FormatInt(length, 10))
	return &Response{
		StatusCode: http.StatusPartialContent,
		Header:     header,
		Body:       section(obj, start, length),
	}, nil
}

// parseRange accepts "bytes=<start>-<end>" with end optional.
func parseRange(header string, size int64) (start, end int64, ok bool) {
	byteRange, found := strings.CutPrefix(strings.TrimSpace(header), "bytes=")
	if !found {
		return 0, 0, false
	}
	startStr, endStr, found := strings.Cut(byteRange, "-")
	if !found {
		return 0, 0, false
	}

	start, err := strconv.ParseInt(strings.TrimSpace(startStr), 10, 64)
	if err != nil || start < 0 {
		return 0, 0, false
	}
	end = size - 1
	if endStr = strings.TrimSpace(endStr); endStr != "" {
		end, err = strconv.ParseInt(endStr, 10, 64)
		if err != nil || end < 0 {
			return 0, 0, false
		}
	}

	if start >= size || end >= size || start > end {
		return 0, 0, false
	}
	return start, end, true
}

// SanitizeID reduces id to its base name. It returns "" for names that
// cannot refer to a stored object, including hidden names such as
// in-progress uploads.
func SanitizeID(id string) string {
	name := path.Base(strings.ReplaceAll(id, `\`, "/"))
	if name == "/" || strings.HasPrefix(name, ".") {
		return ""
	}
	return name
}

type sectionReadCloser struct {
	*io.SectionReader
	io.Closer
}

func section(obj Object, off, n int64) io.ReadCloser {
	return sectionReadCloser{SectionReader: io.NewSectionReader(obj, off, n), Closer: obj}
}
