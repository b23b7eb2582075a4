package daemon

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"tipflow/internal/approval"
	"tipflow/internal/logging"
	"tipflow/internal/services"
	"tipflow/internal/textutil"
	"tipflow/internal/workflow"
)

const serviceName = "tipflow-approval-server"

//go:embed templates/*.html
var templateFS embed.FS

var pages = template.Must(template.ParseFS(templateFS, "templates/*.html"))

// Decider is the approval surface the HTTP handlers drive.
type Decider interface {
	Approve(ctx context.Context, token string) (workflow.Outcome, error)
	Reject(ctx context.Context, token string) (workflow.Outcome, error)
	Pending(ctx context.Context) ([]*approval.Record, error)
	Stats(ctx context.Context) (approval.Stats, error)
}

// Server serves the approval endpoints.
type Server struct {
	decider Decider
	topic   string
	ids     services.IDGenerator
	logger  *slog.Logger

	listener net.Listener
	server   *http.Server
}

// NewServer builds the approval HTTP surface.
func NewServer(decider Decider, topic string, logger *slog.Logger) *Server {
	s := &Server{
		decider: decider,
		topic:   topic,
		ids:     services.UUIDGenerator{},
		logger:  logging.NewComponentLogger(logger, "approval-server"),
	}
	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		// Approvals push to the remote inside the request.
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Handler returns the routed mux.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /approve/{token}", s.handleApprove)
	mux.HandleFunc("GET /reject/{token}", s.handleReject)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /api/pending", s.handlePending)
	return s.withRequestID(mux)
}

// Start listens on addr and serves until ctx is cancelled or Stop is called.
func (s *Server) Start(ctx context.Context, addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("approval server listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("approval server error", logging.Error(err))
		}
	}()
	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	s.logger.Info("approval server listening", logging.String("address", listener.Addr().String()))
	return nil
}

// Stop shuts the server down, waiting briefly for in-flight requests.
func (s *Server) Stop() {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = s.server.Shutdown(shutdownCtx)
}

// Addr returns the bound address once started.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *Server) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := services.WithRequestID(r.Context(), s.ids.New())
		logging.WithContext(ctx, s.logger).Debug("request",
			logging.String("method", r.Method),
			logging.String("path", redactPath(r.URL.Path)))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type resultPage struct {
	Title       string
	Class       string
	Message     string
	Headline    string
	Filename    string
	Explanation template.HTML
	RemoteURL   string
}

type indexPage struct {
	Title string
	Topic string
	Stats approval.Stats
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	stats, err := s.decider.Stats(r.Context())
	if err != nil {
		s.log(r).Error("load stats failed", logging.Error(err))
		s.renderResult(w, r, http.StatusInternalServerError, resultPage{
			Title:   "Store Unavailable",
			Class:   "error",
			Message: "The approval store could not be read.",
		})
		return
	}
	s.render(w, r, http.StatusOK, "index", indexPage{
		Title: s.topic + " Tip Approval System",
		Topic: s.topic,
		Stats: stats,
	})
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	out, err := s.decider.Approve(r.Context(), r.PathValue("token"))
	var decided *approval.AlreadyDecidedError
	switch {
	case errors.Is(err, approval.ErrNotFound):
		s.renderResult(w, r, http.StatusNotFound, invalidToken("approval"))
	case errors.As(err, &decided):
		s.renderResult(w, r, http.StatusOK, alreadyProcessed(out.Record, decided.Status))
	case err != nil:
		page := withItem(resultPage{
			Title:   "Push Failed",
			Class:   "error",
			Message: "There was an error publishing the tip: " + err.Error(),
		}, out.Record)
		s.renderResult(w, r, http.StatusInternalServerError, page)
	default:
		page := withItem(resultPage{
			Title:     "Tip Approved & Published!",
			Class:     "success",
			Message:   "The tip has been pushed to the repository.",
			RemoteURL: out.RemoteURL,
		}, out.Record)
		page.Explanation = s.explanation(r, out.Record)
		s.renderResult(w, r, http.StatusOK, page)
	}
}

func (s *Server) handleReject(w http.ResponseWriter, r *http.Request) {
	out, err := s.decider.Reject(r.Context(), r.PathValue("token"))
	var decided *approval.AlreadyDecidedError
	switch {
	case errors.Is(err, approval.ErrNotFound):
		s.renderResult(w, r, http.StatusNotFound, invalidToken("rejection"))
	case errors.As(err, &decided):
		s.renderResult(w, r, http.StatusOK, alreadyProcessed(out.Record, decided.Status))
	case err != nil:
		s.log(r).Error("rejection failed", logging.Error(err))
		s.renderResult(w, r, http.StatusInternalServerError, withItem(resultPage{
			Title:   "Rejection Failed",
			Class:   "error",
			Message: err.Error(),
		}, out.Record))
	default:
		s.renderResult(w, r, http.StatusOK, withItem(resultPage{
			Title:   "Tip Rejected",
			Class:   "rejected",
			Message: "The tip has been rejected and will not be published.",
		}, out.Record))
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, r, http.StatusOK, map[string]string{"status": "healthy", "service": serviceName})
}

type pendingEntry struct {
	Headline  string    `json:"headline"`
	Shortname string    `json:"shortname"`
	Filename  string    `json:"filename"`
	CreatedAt time.Time `json:"created_at"`
}

func (s *Server) handlePending(w http.ResponseWriter, r *http.Request) {
	records, err := s.decider.Pending(r.Context())
	if err != nil {
		s.writeJSON(w, r, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	out := make([]pendingEntry, 0, len(records))
	for _, rec := range records {
		out = append(out, pendingEntry{
			Headline:  rec.Item.Headline,
			Shortname: rec.Item.Shortname,
			Filename:  rec.Item.Filename,
			CreatedAt: rec.CreatedAt,
		})
	}
	s.writeJSON(w, r, http.StatusOK, map[string]any{"pending": out})
}

func invalidToken(kind string) resultPage {
	return resultPage{
		Title:   "Invalid or Expired Token",
		Class:   "error",
		Message: "This " + kind + " link is invalid or has expired.",
	}
}

func alreadyProcessed(rec *approval.Record, status approval.Status) resultPage {
	return withItem(resultPage{
		Title:   "Already Processed",
		Class:   "error",
		Message: fmt.Sprintf("This tip was already processed, currently %s.", status),
	}, rec)
}

func withItem(page resultPage, rec *approval.Record) resultPage {
	if rec != nil {
		page.Headline = rec.Item.Headline
		page.Filename = rec.Item.Filename
	}
	return page
}

func (s *Server) explanation(r *http.Request, rec *approval.Record) template.HTML {
	if rec == nil || rec.Item.Explanation == "" {
		return ""
	}
	html, err := textutil.MarkdownHTML(rec.Item.Explanation)
	if err != nil {
		s.log(r).Debug("render explanation failed", logging.Error(err))
		return ""
	}
	return template.HTML(html) //nolint:gosec
}

func (s *Server) renderResult(w http.ResponseWriter, r *http.Request, status int, page resultPage) {
	s.render(w, r, status, "result", page)
}

func (s *Server) render(w http.ResponseWriter, r *http.Request, status int, name string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := pages.ExecuteTemplate(w, name, data); err != nil {
		s.log(r).Error("render page failed", logging.String("template", name), logging.Error(err))
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log(r).Error("failed to encode response", logging.Error(err))
	}
}

func (s *Server) log(r *http.Request) *slog.Logger {
	return logging.WithContext(r.Context(), s.logger)
}

// redactPath shortens tokens in approval paths before logging.
func redactPath(path string) string {
	for _, prefix := range []string{"/approve/", "/reject/"} {
		if token, ok := strings.CutPrefix(path, prefix); ok {
			return prefix + logging.TokenPrefix(token)
		}
	}
	return path
}
