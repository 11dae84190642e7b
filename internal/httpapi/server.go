package httpapi

import (
	"context"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/MimeLyc/jobhunt-companion/internal/config"
	"github.com/MimeLyc/jobhunt-companion/internal/feedback"
	"github.com/MimeLyc/jobhunt-companion/internal/service"
	"github.com/MimeLyc/jobhunt-companion/internal/session"
)

type runtimeSettingsStore interface {
	GetRuntimeSettings() (config.RuntimeSettings, error)
	UpdateRuntimeSettings(next config.RuntimeSettings) (config.RuntimeSettings, error)
}

type runtimeSettingsApplier func(next config.RuntimeSettings) error

// HealthStatus is the last result of the backend health probe.
type HealthStatus struct {
	BackendURL string    `json:"backend_url"`
	Reachable  bool      `json:"reachable"`
	CheckedAt  time.Time `json:"checked_at,omitempty"`
	Error      string    `json:"error,omitempty"`
}

type Server struct {
	svc      *service.Service
	feedback *feedback.Submitter
	store    *session.Store
	settings runtimeSettingsStore
	apply    runtimeSettingsApplier
	health   func() HealthStatus

	uiEnabled   bool
	uiStaticDir string
	keepAlive   time.Duration

	mux    *http.ServeMux
	server *http.Server

	closeOnce sync.Once
	done      chan struct{}
}

type Option func(*Server)

func WithUI(staticDir string, enabled bool) Option {
	return func(s *Server) {
		s.uiStaticDir = staticDir
		s.uiEnabled = enabled
	}
}

func WithRuntimeSettingsStore(store runtimeSettingsStore) Option {
	return func(s *Server) {
		s.settings = store
	}
}

func WithRuntimeSettingsApplier(apply runtimeSettingsApplier) Option {
	return func(s *Server) {
		s.apply = apply
	}
}

// WithHealth sets the source of /api/health.
func WithHealth(fn func() HealthStatus) Option {
	return func(s *Server) {
		s.health = fn
	}
}

// WithKeepAlive sets how often an idle state stream sends a comment line.
func WithKeepAlive(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.keepAlive = d
		}
	}
}

func NewServer(svc *service.Service, fb *feedback.Submitter, store *session.Store, opts ...Option) *Server {
	s := &Server{
		svc:       svc,
		feedback:  fb,
		store:     store,
		uiEnabled: false,
		keepAlive: 15 * time.Second,
		mux:       http.NewServeMux(),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) ListenAndServe(addr string) error {
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	// streams only end when the client leaves; release them on shutdown
	s.server.RegisterOnShutdown(s.closeStreams)
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.closeStreams()
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) closeStreams() {
	s.closeOnce.Do(func() { close(s.done) })
}

func (s *Server) routes() {
	s.mux.HandleFunc("/api/state", s.handleState)
	s.mux.HandleFunc("/api/state/stream", s.handleStateStream)
	s.mux.HandleFunc("/api/inputs", s.handleInputs)
	s.mux.HandleFunc("/api/page", s.handlePage)
	s.mux.HandleFunc("/api/workflow/start", s.handleWorkflowStart)
	s.mux.HandleFunc("/api/workflow/retry", s.handleWorkflowRetry)
	s.mux.HandleFunc("/api/workflow/views", s.handleWorkflowViews)
	s.mux.HandleFunc("/api/dashboard", s.handleDashboard)
	s.mux.HandleFunc("/api/interview/prepare", s.handleInterviewPrepare)
	s.mux.HandleFunc("/api/interview/views", s.handleInterviewViews)
	s.mux.HandleFunc("/api/feedback", s.handleFeedback)
	s.mux.HandleFunc("/api/feedback/accept-all", s.handleAcceptAll)
	s.mux.HandleFunc("/api/feedback/status", s.handleFeedbackStatus)
	s.mux.HandleFunc("/api/feedback/export.xlsx", s.handleFeedbackExport)
	s.mux.HandleFunc("/api/resume/generate", s.handleResumeGenerate)
	s.mux.HandleFunc("/api/resume/export", s.handleResumeExport)
	s.mux.HandleFunc("/api/upload/resume-pdf", s.handleUploadResume)
	s.mux.HandleFunc("/api/reset", s.handleReset)
	s.mux.HandleFunc("/api/health", s.handleHealth)
	s.mux.HandleFunc("/api/settings", s.handleSettings)
	s.mux.HandleFunc("/", s.handleStatic)
}

func (s *Server) handleStatic(w http.ResponseWriter, r *http.Request) {
	if strings.HasPrefix(r.URL.Path, "/api/") || !s.uiEnabled || s.uiStaticDir == "" {
		http.NotFound(w, r)
		return
	}

	rel := strings.TrimPrefix(path.Clean(r.URL.Path), "/")
	indexPath := filepath.Join(s.uiStaticDir, "index.html")

	if rel == "" || !strings.Contains(filepath.Base(rel), ".") {
		http.ServeFile(w, r, indexPath)
		return
	}

	filePath := filepath.Join(s.uiStaticDir, rel)
	if _, err := os.Stat(filePath); err != nil {
		// SPA fallback: non-existing static file path returns index
		http.ServeFile(w, r, indexPath)
		return
	}
	http.ServeFile(w, r, filePath)
}
