package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/MikeSquared-Agency/arogya/internal/consult"
	"github.com/MikeSquared-Agency/arogya/internal/keys"
	"github.com/MikeSquared-Agency/arogya/internal/locales"
	"github.com/MikeSquared-Agency/arogya/internal/report"
)

// Options configures the HTTP surface.
type Options struct {
	Port int
	// Keys are served by the key relay endpoint.
	Keys keys.Keys
	// RelayToken, when set, guards GET /api/keys with a bearer token.
	RelayToken string
	// StaticDir holds index.html and its assets.
	StaticDir string
}

type Server struct {
	router *chi.Mux
	port   int
	svc    *consult.Service
	opts   Options
	logger *slog.Logger
	http   *http.Server
}

func NewServer(svc *consult.Service, opts Options, logger *slog.Logger) *Server {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)

	s := &Server{
		router: router,
		port:   opts.Port,
		svc:    svc,
		opts:   opts,
		logger: logger,
	}

	router.Get("/health", s.health)
	router.With(BearerAuthMiddleware(opts.RelayToken)).Get("/api/keys", s.relayKeys)

	router.Route("/api/v1", func(r chi.Router) {
		r.Get("/locales", s.listLocales)
		r.Get("/locales/{lang}", s.getLocale)

		r.Post("/sessions", s.startSession)
		r.Route("/sessions/{id}", func(r chi.Router) {
			r.Get("/", s.getSession)
			r.Delete("/", s.endSession)
			r.Post("/messages", s.sendMessage)
			r.Put("/language", s.setLanguage)
			r.Get("/report", s.getReport)
			r.Get("/report/download", s.downloadReport)
		})
	})

	router.Get("/*", s.static)

	return s
}

// Handler exposes the router, mainly for tests and embedding.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.port)
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("API server starting", "addr", addr)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

// BearerAuthMiddleware rejects requests without the expected bearer token.
// An empty token disables the check.
func BearerAuthMiddleware(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}
			got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) relayKeys(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.opts.Keys)
}

func (s *Server) listLocales(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"languages": locales.Supported()})
}

func (s *Server) getLocale(w http.ResponseWriter, r *http.Request) {
	lang, ok := locales.Parse(chi.URLParam(r, "lang"))
	if !ok {
		writeError(w, http.StatusNotFound, "unsupported language")
		return
	}
	writeJSON(w, http.StatusOK, locales.Get(lang))
}

type startRequest struct {
	Language string `json:"language"`
}

func (s *Server) startSession(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	// the body is optional
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	snap, err := s.svc.Start(r.Context(), req.Language)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, snap)
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	snap, err := s.svc.Snapshot(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) endSession(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.End(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type messageRequest struct {
	Message string `json:"message"`
}

func (s *Server) sendMessage(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	turn, err := s.svc.Send(r.Context(), chi.URLParam(r, "id"), req.Message)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, turn)
}

type languageRequest struct {
	Language string `json:"language"`
}

func (s *Server) setLanguage(w http.ResponseWriter, r *http.Request) {
	var req languageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	snap, err := s.svc.SetLanguage(r.Context(), chi.URLParam(r, "id"), req.Language)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

type reportResponse struct {
	Report *report.Report `json:"report"`
	Text   string         `json:"text"`
}

func (s *Server) getReport(w http.ResponseWriter, r *http.Request) {
	rep, err := s.svc.Report(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reportResponse{Report: rep, Text: report.RenderText(rep)})
}

func (s *Server) downloadReport(w http.ResponseWriter, r *http.Request) {
	format, err := report.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	doc, err := s.svc.Export(r.Context(), chi.URLParam(r, "id"), format)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", doc.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", doc.Name))
	w.Header().Set("Content-Length", strconv.Itoa(len(doc.Data)))
	if doc.Degraded {
		w.Header().Set("X-Report-Degraded", "true")
	}
	w.WriteHeader(http.StatusOK)
	w.Write(doc.Data)
}

// static serves files from StaticDir. Any other GET outside /api falls back
// to the entry page so client-side routes load the application.
func (s *Server) static(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/api" || strings.HasPrefix(r.URL.Path, "/api/") {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	dir := s.opts.StaticDir
	if dir == "" {
		writeError(w, http.StatusNotFound, "no entry page configured")
		return
	}
	name := path.Clean("/" + chi.URLParam(r, "*"))
	if name != "/" {
		file := filepath.Join(dir, filepath.FromSlash(name))
		if info, err := os.Stat(file); err == nil && !info.IsDir() {
			http.ServeFile(w, r, file)
			return
		}
	}
	index := filepath.Join(dir, "index.html")
	if _, err := os.Stat(index); err != nil {
		s.logger.Error("entry page missing", "path", index, "error", err)
		writeError(w, http.StatusNotFound, "entry page not found")
		return
	}
	http.ServeFile(w, r, index)
}

// fail maps service errors onto status codes.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	var notReady *consult.NotReadyError
	switch {
	case errors.As(err, &notReady):
		writeJSON(w, http.StatusConflict, map[string]any{
			"error":   notReady.Message,
			"missing": notReady.Missing,
		})
	case errors.Is(err, consult.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, consult.ErrEmptyMessage),
		errors.Is(err, consult.ErrUnsupportedLanguage),
		errors.Is(err, report.ErrUnknownFormat):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusServiceUnavailable, "request cancelled")
	default:
		s.logger.Error("request failed", "path", r.URL.Path, "request_id", middleware.GetReqID(r.Context()), "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
