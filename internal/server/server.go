// Package server exposes the receipt pipeline over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"receipt-geometry/internal/config"
	"receipt-geometry/internal/logging"
	"receipt-geometry/internal/scan"
	"receipt-geometry/internal/version"
	"receipt-geometry/pkg/geometry"
)

// HeaderCropped reports whether /autocrop returned a flattened receipt.
const HeaderCropped = "X-Receipt-Cropped"

// Scanner is the part of scan.Engine the handlers use.
type Scanner interface {
	DetectFile(data []byte) (geometry.NormalizedQuad, error)
	FlattenFile(name string, data []byte, q geometry.NormalizedQuad) (*scan.File, error)
	AutoCropFile(name string, data []byte) (*scan.File, bool)
}

// DetectResponse is the body of a /detect reply. Corners holds the default
// quad when Detected is false.
type DetectResponse struct {
	Detected bool                    `json:"detected"`
	Corners  geometry.NormalizedQuad `json:"corners"`
}

// Handler serves the receipt endpoints.
type Handler struct {
	scanner Scanner
	cfg     config.Server
	log     *logrus.Entry
}

// NewHandler creates a Handler. A nil log discards request logs.
func NewHandler(s Scanner, cfg config.Server, log *logrus.Entry) *Handler {
	return &Handler{scanner: s, cfg: cfg, log: logging.OrDiscard(log)}
}

// Routes returns the full handler chain: routing, timeout and CORS.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("POST /detect", h.Detect)
	mux.HandleFunc("POST /flatten", h.Flatten)
	mux.HandleFunc("POST /autocrop", h.AutoCrop)

	timed := http.TimeoutHandler(mux, h.cfg.RequestTimeout, `{"error":"request timed out"}`)
	return h.logRequests(corsMiddleware(h.cfg.AllowedOrigin, timed))
}

// Health reports liveness and the build version.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]any{
		"status":  "ok",
		"version": version.Get(),
	}, http.StatusOK)
}

// Detect handles POST /detect.
func (h *Handler) Detect(w http.ResponseWriter, r *http.Request) {
	_, data, ok := h.readUpload(w, r)
	if !ok {
		return
	}
	q, err := h.scanner.DetectFile(data)
	switch {
	case err == nil:
		respondJSON(w, DetectResponse{Detected: true, Corners: q}, http.StatusOK)
	case scan.IsSoft(err):
		h.log.WithError(err).Debug("no receipt detected")
		respondJSON(w, DetectResponse{Corners: geometry.DefaultNormalizedQuad()}, http.StatusOK)
	default:
		h.fail(w, err)
	}
}

// Flatten handles POST /flatten.
func (h *Handler) Flatten(w http.ResponseWriter, r *http.Request) {
	name, data, ok := h.readUpload(w, r)
	if !ok {
		return
	}
	raw := r.FormValue("corners")
	if raw == "" {
		respondError(w, "missing corners", http.StatusBadRequest)
		return
	}
	q, err := geometry.ParseNormalizedQuad([]byte(raw))
	if err != nil {
		respondError(w, "bad corners: "+err.Error(), http.StatusBadRequest)
		return
	}

	f, err := h.scanner.FlattenFile(name, data, q)
	if err != nil {
		if scan.IsSoft(err) {
			respondError(w, err.Error(), http.StatusUnprocessableEntity)
			return
		}
		h.fail(w, err)
		return
	}
	respondFile(w, f)
}

// AutoCrop handles POST /autocrop. It never fails on the image itself: when
// nothing can be flattened the upload is echoed back.
func (h *Handler) AutoCrop(w http.ResponseWriter, r *http.Request) {
	name, data, ok := h.readUpload(w, r)
	if !ok {
		return
	}
	f, cropped := h.scanner.AutoCropFile(name, data)
	w.Header().Set(HeaderCropped, strconv.FormatBool(cropped))
	respondFile(w, f)
}

// readUpload pulls the multipart "file" field, enforcing the upload limit.
func (h *Handler) readUpload(w http.ResponseWriter, r *http.Request) (string, []byte, bool) {
	if r.ContentLength > h.cfg.MaxUploadBytes {
		respondError(w, "upload too large", http.StatusRequestEntityTooLarge)
		return "", nil, false
	}
	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxUploadBytes)
	if err := r.ParseMultipartForm(h.cfg.MaxUploadBytes); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			respondError(w, "upload too large", http.StatusRequestEntityTooLarge)
			return "", nil, false
		}
		respondError(w, "failed to parse form", http.StatusBadRequest)
		return "", nil, false
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		respondError(w, "no file uploaded", http.StatusBadRequest)
		return "", nil, false
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		respondError(w, "failed to read file", http.StatusBadRequest)
		return "", nil, false
	}
	return header.Filename, data, true
}

func (h *Handler) fail(w http.ResponseWriter, err error) {
	h.log.WithError(err).Error("request failed")
	respondError(w, err.Error(), http.StatusInternalServerError)
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (s *statusWriter) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (h *Handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		h.log.WithFields(logrus.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"status":   sw.status,
			"duration": time.Since(start),
		}).Info("request")
	})
}

func corsMiddleware(origin string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.Header().Set("Access-Control-Expose-Headers", HeaderCropped)

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func respondJSON(w http.ResponseWriter, data any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, message string, status int) {
	respondJSON(w, map[string]string{"error": message}, status)
}

func respondFile(w http.ResponseWriter, f *scan.File) {
	mt := f.MIME
	if mt == "" {
		mt = "application/octet-stream"
	}
	w.Header().Set("Content-Type", mt)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": f.Name}))
	w.Header().Set("Content-Length", strconv.Itoa(len(f.Data)))
	w.WriteHeader(http.StatusOK)
	w.Write(f.Data)
}

// Server wraps http.Server with graceful shutdown.
type Server struct {
	srv *http.Server
	log *logrus.Entry
}

// New builds a Server listening on cfg.Addr.
func New(s Scanner, cfg config.Server, log *logrus.Entry) *Server {
	log = logging.OrDiscard(log)
	h := NewHandler(s, cfg, log)
	return &Server{
		srv: &http.Server{
			Addr:              cfg.Addr,
			Handler:           h.Routes(),
			ReadHeaderTimeout: 10 * time.Second,
		},
		log: log,
	}
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	errc := make(chan error, 1)
	go func() {
		s.log.WithField("addr", s.srv.Addr).Info("listening")
		errc <- s.srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdown, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	s.log.Info("shutting down")
	if err := s.srv.Shutdown(shutdown); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
