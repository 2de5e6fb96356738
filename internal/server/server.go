package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"golang.org/x/sync/errgroup"

	"github.com/pavel-fokin/media-drop/internal/files"
	"github.com/pavel-fokin/media-drop/internal/fs"
	"github.com/pavel-fokin/media-drop/internal/jsondoc"
	"github.com/pavel-fokin/media-drop/internal/sqlite"
)

const (
	// multipart framing and form fields on top of the file itself
	multipartOverhead = 1 << 20
	// PATCH bodies only carry expiry and metadata
	maxJSONBody = 1 << 20

	shutdownTimeout = 15 * time.Second
)

// Server bundles the HTTP server with the file lifecycle it serves.
type Server struct {
	*http.Server

	cfg       *Config
	store     *files.Store
	uploads   *files.Service
	lifecycle *files.Manager
	streamer  *files.Streamer
	closers   []io.Closer
}

func New(cfg *Config) (*Server, error) {
	// Initialize structured logger with JSON handler
	level, err := parseLogLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	// Initialize storage and metadata persistence
	storage, err := fs.NewStorage(cfg.UploadDir)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	s := &Server{cfg: cfg}

	var persister files.Persister
	switch cfg.MetadataBackend {
	case BackendSQLite:
		repo, err := sqlite.NewRepository(cfg.MetadataFile())
		if err != nil {
			return nil, fmt.Errorf("failed to initialize repository: %w", err)
		}
		s.closers = append(s.closers, repo)
		persister = repo
	default:
		persister = jsondoc.New(cfg.MetadataFile(), logger)
	}

	s.store = files.NewStore(persister, cfg.DefaultExpiryMinutes, logger)
	s.store.Load()

	s.uploads = files.NewService(storage, s.store, cfg.MaxUploadBytes, logger)
	s.lifecycle = files.NewManager(s.store, storage, cfg.CleanupInterval(), logger)
	s.streamer = files.NewStreamer(storage)

	s.Server = &http.Server{
		Addr:              cfg.Addr(),
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
		// no read/write timeouts: uploads and video streams run as long as the client needs
	}
	return s, nil
}

func (s *Server) routes() http.Handler {
	uploadLimit := s.uploads.MaxSize() + multipartOverhead

	r := chi.NewRouter()
	r.Use(loggingMiddleware)
	r.Use(cors.New(cors.Options{
		AllowedOrigins: s.cfg.CORSOrigins,
		AllowedMethods: []string{
			http.MethodGet, http.MethodHead, http.MethodPost,
			http.MethodPatch, http.MethodDelete, http.MethodOptions,
		},
		AllowedHeaders: []string{"Content-Type", "Authorization", "X-API-Key", "Range"},
		ExposedHeaders: []string{"Content-Range", "Accept-Ranges", "Content-Length"},
	}).Handler)

	r.Get("/health", healthz)
	r.Handle("/metrics", promhttp.Handler())

	r.Get("/files/{filename}", s.streamFile)
	r.Head("/files/{filename}", s.streamFile)
	r.With(limitBody(uploadLimit)).Post("/upload", s.uploadFile)

	r.Route("/api", func(r chi.Router) {
		r.Use(auth(s.cfg.APIKey))

		r.With(limitBody(uploadLimit)).Post("/files", s.createFile)
		r.Get("/files", s.listFiles)
		r.Get("/files/{id}", s.getFile)
		r.With(limitBody(maxJSONBody)).Patch("/files/{id}", s.updateFile)
		r.Delete("/files/{id}", s.deleteFile)
		r.Post("/sweep", s.sweep)
	})

	if s.cfg.PublicDir != "" {
		r.Handle("/*", http.FileServer(http.Dir(s.cfg.PublicDir)))
	} else {
		r.NotFound(func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusNotFound, errorResponse{Message: "Not found"})
		})
	}

	return r
}

// Run serves HTTP and runs the expiry sweep until ctx is cancelled or
// either of them fails, then shuts down and flushes pending saves.
func (s *Server) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return s.lifecycle.Run(gctx)
	})

	g.Go(func() error {
		slog.Info("Starting server", "addr", s.Addr)
		if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("failed to serve: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to shut down: %w", err)
		}
		return nil
	})

	err := g.Wait()
	if closeErr := s.CloseBackends(); closeErr != nil && err == nil {
		err = closeErr
	}
	return err
}

// CloseBackends waits for pending metadata saves and releases the persistence
// backend. It does not stop a running HTTP server; cancel the Run context for that.
func (s *Server) CloseBackends() error {
	s.store.Flush()

	var errs []error
	for _, c := range s.closers {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}
