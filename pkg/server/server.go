// Package server exposes the AI capabilities as an HTTP microservice.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/sidv1711/slack-bot/pkg/chat"
	"github.com/sidv1711/slack-bot/pkg/codegen"
	"github.com/sidv1711/slack-bot/pkg/config"
	"github.com/sidv1711/slack-bot/pkg/identity"
	"github.com/sidv1711/slack-bot/pkg/metrics"
	"github.com/sidv1711/slack-bot/pkg/router"
	"github.com/sidv1711/slack-bot/pkg/service"
	"github.com/sidv1711/slack-bot/pkg/sqlgen"
)

const (
	serviceName = "slack-bot-ai"
	version     = "1.0.0"
	maxBody     = 1 << 20
	apiPrefix   = "/api/v1"
)

// Converter turns a question into SQL without running it.
type Converter interface {
	Convert(ctx context.Context, input string) (sql, explanation string, err error)
}

// Pinger reports database health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server serves the HTTP API.
type Server struct {
	cfg        config.ServerConfig
	dispatcher *router.Dispatcher
	linker     *identity.Linker
	db         Pinger
	logger     *zap.Logger
	handler    http.Handler
}

// Option configures a Server.
type Option func(*Server)

// WithLinker enables the OAuth connect and callback routes.
func WithLinker(l *identity.Linker) Option {
	return func(s *Server) {
		s.linker = l
	}
}

// WithDatabase reports database health on /health.
func WithDatabase(db Pinger) Option {
	return func(s *Server) {
		s.db = db
	}
}

// WithLogger sets the server logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New builds the server and its routes.
func New(cfg config.ServerConfig, dispatcher *router.Dispatcher, opts ...Option) *Server {
	s := &Server{cfg: cfg, dispatcher: dispatcher, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}

	r := mux.NewRouter()
	r.Use(baseMiddleware(s.logger)...)
	if cfg.RateLimit > 0 {
		r.Use(newRateLimiter(cfg.RateLimit, cfg.RateBurst).middleware)
	}

	r.HandleFunc("/", s.handleRoot).Methods(http.MethodGet)
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	if s.linker != nil {
		r.HandleFunc("/auth/connect", s.handleConnect).Methods(http.MethodGet)
		r.HandleFunc("/auth/callback", s.handleCallback).Methods(http.MethodGet)
	}

	// Flat routes so a wrong method on a known path yields 405.
	r.HandleFunc(apiPrefix+"/ai/process", s.handleProcess).Methods(http.MethodPost)
	r.HandleFunc(apiPrefix+"/nl2sql/convert", s.handleNL2SQL).Methods(http.MethodPost)
	r.HandleFunc(apiPrefix+"/code/generate", s.handleCode).Methods(http.MethodPost)
	r.HandleFunc(apiPrefix+"/chat/respond", s.handleChat).Methods(http.MethodPost)
	r.HandleFunc(apiPrefix+"/ai/services", s.handleServices).Methods(http.MethodGet)
	r.HandleFunc(apiPrefix+"/ai/services/{name}/examples", s.handleExamples).Methods(http.MethodGet)
	r.HandleFunc(apiPrefix+"/ai/examples", s.handleExamples).Methods(http.MethodGet)
	r.HandleFunc(apiPrefix+"/ai/validate", s.handleValidate).Methods(http.MethodPost)
	r.HandleFunc(apiPrefix+"/ai/stats", s.handleStats).Methods(http.MethodGet)

	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	s.handler = handlers.CORS(
		handlers.AllowedOrigins(origins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Content-Type", "Authorization", "X-Request-Id"}),
	)(r)
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Run serves on cfg.Addr until ctx is canceled.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.cfg.Addr,
		Handler:      s.handler,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", zap.String("addr", s.cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.logger.Info("shutting down http server")
	return srv.Shutdown(shutdownCtx)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"error": msg})
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody))
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return false
	}
	return true
}

func requestContext(r *http.Request, extra map[string]any) service.RequestContext {
	rc := service.RequestContext{}
	for k, v := range extra {
		rc[k] = v
	}
	if _, ok := rc["request_id"]; !ok {
		rc["request_id"] = RequestID(r.Context())
	}
	if _, ok := rc[service.KeyTimestamp]; !ok {
		rc[service.KeyTimestamp] = time.Now().UTC().Format(time.RFC3339)
	}
	return rc
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"service": serviceName,
		"version": version,
		"status":  "running",
		"endpoints": []string{
			"/api/v1/ai/process",
			"/api/v1/nl2sql/convert",
			"/api/v1/code/generate",
			"/api/v1/chat/respond",
			"/api/v1/ai/services",
			"/api/v1/ai/validate",
			"/api/v1/ai/stats",
			"/health",
			"/metrics",
		},
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	db := "not_configured"
	if s.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.db.Ping(ctx); err != nil {
			s.logger.Warn("database health check failed", zap.Error(err))
			db = "unavailable"
		} else {
			db = "connected"
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"service":   serviceName,
		"version":   version,
		"database":  db,
		"services":  s.dispatcher.Registry().Names(),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

type processRequest struct {
	UserInput    string         `json:"user_input"`
	Context      map[string]any `json:"context"`
	ForceService string         `json:"force_service"`
}

func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	var req processRequest
	if !decode(w, r, &req) {
		return
	}
	resp := s.dispatcher.Route(r.Context(), req.UserInput, requestContext(r, req.Context), req.ForceService)

	out := map[string]any{
		"success":       resp.Success(),
		"service":       resp.Routing.Service,
		"confidence":    resp.Routing.Confidence,
		"response_data": resp.Fields(),
	}
	if !resp.Success() && resp.Result != nil {
		out["error"] = resp.Result.Error
	}
	if resp.Suggestion != "" {
		out["suggestion"] = resp.Suggestion
	}
	writeJSON(w, http.StatusOK, out)
}

// direct invokes a named service without classification or validation.
func (s *Server) direct(w http.ResponseWriter, r *http.Request, name, input string, rc service.RequestContext) {
	svc, ok := s.dispatcher.Registry().Get(name)
	if !ok {
		writeError(w, http.StatusServiceUnavailable, fmt.Sprintf("service %s is not available", name))
		return
	}
	result := svc.Process(r.Context(), input, rc)
	if result == nil {
		result = service.Failure(name, "", errors.New("service returned no result"))
	}
	writeJSON(w, http.StatusOK, result.Fields())
}

type nl2sqlRequest struct {
	NaturalQuery string         `json:"natural_query"`
	ExecuteQuery *bool          `json:"execute_query"`
	Context      map[string]any `json:"context"`
}

func (s *Server) handleNL2SQL(w http.ResponseWriter, r *http.Request) {
	var req nl2sqlRequest
	if !decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.NaturalQuery) == "" {
		writeError(w, http.StatusBadRequest, "natural_query is required")
		return
	}
	if req.ExecuteQuery != nil && !*req.ExecuteQuery {
		svc, ok := s.dispatcher.Registry().Get(sqlgen.Name)
		conv, canConvert := svc.(Converter)
		if !ok || !canConvert {
			writeError(w, http.StatusServiceUnavailable, "service nl2sql is not available")
			return
		}
		sql, explanation, err := conv.Convert(r.Context(), req.NaturalQuery)
		out := map[string]any{
			"success":    err == nil,
			"user_query": req.NaturalQuery,
			"row_count":  0,
		}
		if err != nil {
			out["error"] = err.Error()
		} else {
			out["sql_query"] = sql
			out["explanation"] = explanation
		}
		writeJSON(w, http.StatusOK, out)
		return
	}
	s.direct(w, r, sqlgen.Name, req.NaturalQuery, requestContext(r, req.Context))
}

type codeRequest struct {
	Description string         `json:"description"`
	Language    string         `json:"language"`
	Context     map[string]any `json:"context"`
}

func (s *Server) handleCode(w http.ResponseWriter, r *http.Request) {
	var req codeRequest
	if !decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Description) == "" {
		writeError(w, http.StatusBadRequest, "description is required")
		return
	}
	rc := requestContext(r, req.Context)
	if req.Language != "" {
		rc[service.KeyPreferredLanguage] = req.Language
	}
	s.direct(w, r, codegen.Name, req.Description, rc)
}

type chatRequest struct {
	Message        string         `json:"message"`
	ConversationID string         `json:"conversation_id"`
	Context        map[string]any `json:"context"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if !decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}
	rc := requestContext(r, req.Context)
	if req.ConversationID != "" {
		rc["conversation_id"] = req.ConversationID
	}
	s.direct(w, r, chat.Name, req.Message, rc)
}

func (s *Server) handleServices(w http.ResponseWriter, r *http.Request) {
	caps := s.dispatcher.ListCapabilities()
	writeJSON(w, http.StatusOK, map[string]any{
		"services": caps,
		"total":    len(caps),
	})
}

func (s *Server) handleExamples(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	examples, err := s.dispatcher.Examples(name)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"examples": examples})
}

type validateRequest struct {
	Query       string `json:"query"`
	ServiceName string `json:"service_name"`
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	var req validateRequest
	if !decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.ServiceName) == "" {
		writeError(w, http.StatusBadRequest, "service_name is required")
		return
	}
	verdict := s.dispatcher.Validate(req.Query, req.ServiceName)
	writeJSON(w, http.StatusOK, map[string]any{
		"service_name": req.ServiceName,
		"query":        req.Query,
		"validation":   verdict,
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.dispatcher.Stats())
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	user := r.URL.Query().Get("slack_user_id")
	team := r.URL.Query().Get("team_id")
	if user == "" || team == "" {
		writeError(w, http.StatusBadRequest, "slack_user_id and team_id are required")
		return
	}
	http.Redirect(w, r, s.linker.AuthURL(user, team), http.StatusFound)
}

func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if e := q.Get("error"); e != "" {
		s.logger.Warn("auth provider returned error",
			zap.String("error", e), zap.String("description", q.Get("error_description")))
		writeError(w, http.StatusBadRequest, "Authentication failed: "+e)
		return
	}
	if q.Get("code") == "" || q.Get("state") == "" {
		writeError(w, http.StatusBadRequest, "Missing required parameters")
		return
	}
	m, err := s.linker.Complete(r.Context(), q.Get("state"), q.Get("code"))
	if err != nil {
		s.logger.Warn("account link failed", zap.Error(err), zap.String("request_id", RequestID(r.Context())))
		if errors.Is(err, identity.ErrInvalidState) {
			writeError(w, http.StatusBadRequest, "Invalid state parameter")
			return
		}
		writeError(w, http.StatusBadRequest, "Failed to link account")
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "Connected! Slack user %s is now linked to %s. You can close this window and return to Slack.\n",
		m.SlackUserID, m.ProviderEmail)
}
