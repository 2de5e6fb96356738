package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pavel-fokin/media-drop/internal/files"
)

// multipart parts above this size are spooled to disk while parsing
const multipartMemory = 32 << 20

type healthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

func healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Timestamp: time.Now().UTC()})
}

type uploadResponse struct {
	Success       bool      `json:"success"`
	URL           string    `json:"url"`
	Filename      string    `json:"filename"`
	Size          int64     `json:"size"`
	ExpiresAt     time.Time `json:"expiresAt"`
	ExpiryMinutes float64   `json:"expiryMinutes"`
}

// uploadFile is the public upload endpoint. Expiry is always the default.
func (s *Server) uploadFile(w http.ResponseWriter, r *http.Request) {
	req, file, err := s.readUpload(r)
	if err != nil {
		writeError(w, err)
		return
	}
	defer file.Close()

	rec, err := s.uploads.Upload(req)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, uploadResponse{
		Success:       true,
		URL:           s.fileURL(r, rec.ID),
		Filename:      rec.ID,
		Size:          rec.Size,
		ExpiresAt:     rec.ExpiresAt,
		ExpiryMinutes: rec.ExpiryMinutes,
	})
}

// createFile uploads with an optional expiry_minutes and JSON meta field.
// An invalid expiry rejects the whole request.
func (s *Server) createFile(w http.ResponseWriter, r *http.Request) {
	req, file, err := s.readUpload(r)
	if err != nil {
		writeError(w, err)
		return
	}
	defer file.Close()

	if v, ok := formValue(r, "expiry_minutes"); ok {
		minutes, err := parseMinutes(v)
		if err != nil {
			writeError(w, err)
			return
		}
		req.ExpiryMinutes = &minutes
	}
	if v, ok := formValue(r, "meta"); ok {
		var meta map[string]any
		if err := json.Unmarshal([]byte(v), &meta); err != nil {
			writeError(w, files.Errorf(files.KindValidation, "meta must be a JSON object"))
			return
		}
		req.Metadata = meta
	}

	rec, err := s.uploads.Upload(req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

// readUpload parses the multipart form and checks the "file" part before
// any bytes reach storage.
func (s *Server) readUpload(r *http.Request) (*files.UploadRequest, multipart.File, error) {
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		if isTooLarge(err) {
			return nil, nil, files.Errorf(files.KindTooLarge, "file exceeds the %d byte limit", s.uploads.MaxSize())
		}
		return nil, nil, files.Errorf(files.KindValidation, "failed to parse multipart form")
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, nil, files.Errorf(files.KindValidation, "no file provided")
	}
	if header.Size > s.uploads.MaxSize() {
		file.Close()
		return nil, nil, files.Errorf(files.KindTooLarge, "file exceeds the %d byte limit", s.uploads.MaxSize())
	}

	name := filepath.Base(header.Filename)
	mimeType := header.Header.Get("Content-Type")
	if err := files.CheckUpload(name, mimeType); err != nil {
		file.Close()
		return nil, nil, err
	}

	return &files.UploadRequest{
		Name:     name,
		MimeType: mimeType,
		Content:  file,
	}, file, nil
}

func (s *Server) listFiles(w http.ResponseWriter, r *http.Request) {
	status, err := files.ParseStatus(r.URL.Query().Get("status"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.store.List(status))
}

func (s *Server) getFile(w http.ResponseWriter, r *http.Request) {
	rec, err := s.store.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

type updateFileRequest struct {
	ExpiryMinutes *minutesValue  `json:"expiry_minutes"`
	Metadata      map[string]any `json:"metadata"`
}

func (s *Server) updateFile(w http.ResponseWriter, r *http.Request) {
	var body updateFileRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		if isTooLarge(err) {
			writeError(w, files.Errorf(files.KindTooLarge, "request body too large"))
			return
		}
		writeError(w, files.Errorf(files.KindValidation, "invalid request body: expiry_minutes must be a number and metadata an object"))
		return
	}

	req := files.UpdateRequest{Metadata: body.Metadata}
	if body.ExpiryMinutes != nil {
		minutes := float64(*body.ExpiryMinutes)
		req.ExpiryMinutes = &minutes
	}

	rec, err := s.store.Update(chi.URLParam(r, "id"), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) deleteFile(w http.ResponseWriter, r *http.Request) {
	rec, err := s.lifecycle.DeleteNow(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) sweep(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.lifecycle.Sweep())
}

// streamFile serves stored media, full or by byte range.
func (s *Server) streamFile(w http.ResponseWriter, r *http.Request) {
	resp, err := s.streamer.Respond(chi.URLParam(r, "filename"), r.Header.Get("Range"))
	if err != nil {
		if files.KindOf(err) == files.KindNotFound {
			writeJSON(w, http.StatusNotFound, errorResponse{Message: "File tidak ditemukan"})
			return
		}
		writeError(w, err)
		return
	}

	for key, values := range resp.Header {
		w.Header()[key] = values
	}
	w.WriteHeader(resp.StatusCode)

	if resp.Body == nil {
		return
	}
	defer resp.Body.Close()
	if r.Method == http.MethodHead {
		return
	}
	if _, err := io.Copy(w, resp.Body); err != nil {
		// usually the client went away mid-stream
		slog.Debug("Stream interrupted", "file_id", chi.URLParam(r, "filename"), "error", err)
	}
}

// fileURL builds the public retrieval URL of id.
func (s *Server) fileURL(r *http.Request, id string) string {
	base := strings.TrimRight(s.cfg.PublicURL, "/")
	if base == "" {
		scheme := "http"
		if r.TLS != nil {
			scheme = "https"
		}
		if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
			scheme = proto
		}
		base = scheme + "://" + r.Host
	}
	return base + "/files/" + url.PathEscape(id)
}

// formValue returns a non-empty multipart field value.
func formValue(r *http.Request, key string) (string, bool) {
	if r.MultipartForm == nil {
		return "", false
	}
	values := r.MultipartForm.Value[key]
	if len(values) == 0 || strings.TrimSpace(values[0]) == "" {
		return "", false
	}
	return values[0], true
}

func parseMinutes(v string) (float64, error) {
	minutes, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil || !files.ValidExpiry(minutes) {
		return 0, files.Errorf(files.KindValidation, "expiry_minutes must be a positive number")
	}
	return minutes, nil
}

// minutesValue accepts a JSON number or a numeric string.
type minutesValue float64

func (m *minutesValue) UnmarshalJSON(data []byte) error {
	var n float64
	if err := json.Unmarshal(data, &n); err == nil {
		*m = minutesValue(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	n, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return err
	}
	*m = minutesValue(n)
	return nil
}

func isTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr) || strings.Contains(err.Error(), "request body too large")
}
