package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/SnellerInc/sneller/expr"
	"github.com/google/uuid"
	"github.com/valyala/fastjson"
	"go.uber.org/zap"

	"github.com/coffersTech/redlogic/internal/controller"
	"github.com/coffersTech/redlogic/internal/engine"
	"github.com/coffersTech/redlogic/internal/metric"
	"github.com/coffersTech/redlogic/internal/pkg/filterlogic"
	"github.com/coffersTech/redlogic/internal/registry"
)

const maxBody = 1 << 20

type ctxKey int

const keyCtxKey ctxKey = 0

// APIServer serves the parsing and rule set API.
type APIServer struct {
	engine       *engine.Engine
	keys         *controller.Store // nil disables authentication
	logger       *zap.Logger
	rulesets     *registry.Server
	mu           sync.Mutex // protects srv
	srv          *http.Server
	parser       fastjson.ParserPool
	requestCount int64
}

func NewAPIServer(eng *engine.Engine, keys *controller.Store, logger *zap.Logger) *APIServer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &APIServer{
		engine:   eng,
		keys:     keys,
		logger:   logger,
		rulesets: registry.NewServer(eng.Store(), eng.ValidateRuleSet),
	}
}

// Handler returns the routed handler.
func (s *APIServer) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/health", s.handleHealth)

	mux.Handle("/api/filter/parse", s.AuthMiddleware(http.HandlerFunc(s.handleFilterParse)))
	mux.Handle("/api/metric", s.AuthMiddleware(http.HandlerFunc(s.handleMetric)))
	mux.Handle("/api/rulesets", s.AuthMiddleware(http.HandlerFunc(s.rulesets.HandleList)))
	mux.Handle("/api/rulesets/", s.AuthMiddleware(http.HandlerFunc(s.rulesets.HandleItem)))
	mux.Handle("/api/stats", s.AuthMiddleware(http.HandlerFunc(s.handleStats)))

	return s.LogMiddleware(mux)
}

// Start listens on addr and serves until Shutdown.
func (s *APIServer) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve serves on ln until Shutdown.
func (s *APIServer) Serve(ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.mu.Lock()
	s.srv = srv
	s.mu.Unlock()
	s.logger.Info("API server listening", zap.String("addr", ln.Addr().String()))

	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *APIServer) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.srv
	s.mu.Unlock()
	if srv != nil {
		return srv.Shutdown(ctx)
	}
	return nil
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// LogMiddleware tags each request with an ID and logs its outcome.
func (s *APIServer) LogMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&s.requestCount, 1)
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)

		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(sw, r)

		s.logger.Info("request",
			zap.String("request_id", id),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", sw.status),
			zap.Duration("duration", time.Since(start)))
	})
}

// AuthMiddleware checks for a valid API key in the Authorization header.
func (s *APIServer) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.keys == nil {
			next.ServeHTTP(w, r)
			return
		}

		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || token == "" {
			w.Header().Set("WWW-Authenticate", `Bearer realm="redlogic"`)
			http.Error(w, "Unauthorized: Missing token", http.StatusUnauthorized)
			return
		}

		key, ok := s.keys.Authenticate(token)
		if !ok {
			w.Header().Set("WWW-Authenticate", `Bearer realm="redlogic"`)
			http.Error(w, "Unauthorized: Invalid token", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), keyCtxKey, key.Name)))
	})
}

// KeyName returns the name of the API key that authenticated the request.
func KeyName(ctx context.Context) string {
	name, _ := ctx.Value(keyCtxKey).(string)
	return name
}

func (s *APIServer) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("JSON encode error", zap.Error(err))
	}
}

type errorBody struct {
	Error  string `json:"error"`
	Code   string `json:"code,omitempty"`
	Offset *int   `json:"offset,omitempty"`
}

func errorResponse(err error) errorBody {
	body := errorBody{Error: err.Error()}
	var pe *filterlogic.Error
	if errors.As(err, &pe) {
		pos := pe.Pos
		body.Code = pe.Code.String()
		body.Offset = &pos
	}
	return body
}

// readJSON reads and parses a request body with a pooled parser. The
// returned value is only valid until release is called.
func (s *APIServer) readJSON(w http.ResponseWriter, r *http.Request) (v *fastjson.Value, release func(), err error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBody))
	if err != nil {
		return nil, nil, err
	}
	p := s.parser.Get()
	v, err = p.ParseBytes(body)
	if err != nil {
		s.parser.Put(p)
		return nil, nil, err
	}
	return v, func() { s.parser.Put(p) }, nil
}

// bodyError answers a failed readJSON: 413 for an oversized body, 400
// otherwise.
func (s *APIServer) bodyError(w http.ResponseWriter, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		http.Error(w, "Request body too large", http.StatusRequestEntityTooLarge)
		return
	}
	http.Error(w, "Invalid JSON: "+err.Error(), http.StatusBadRequest)
}

func (s *APIServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type conditionResult struct {
	Condition *filterlogic.Condition `json:"condition,omitempty"`
	Column    string                 `json:"column,omitempty"`
	Where     string                 `json:"where,omitempty"`
	Canonical string                 `json:"canonical,omitempty"`
	*errorBody
}

func (s *APIServer) parseOne(logic string) (conditionResult, bool) {
	cond, err := s.engine.ParseCondition(logic)
	if err != nil {
		eb := errorResponse(err)
		return conditionResult{errorBody: &eb}, false
	}
	return conditionResult{
		Condition: cond,
		Column:    cond.Column(),
		Where:     expr.ToString(cond.Expr()),
		Canonical: cond.String(),
	}, true
}

// handleFilterParse parses filter logic.
// POST /api/filter/parse  {"logic": "..."} or [{"logic": "..."}, ...]
func (s *APIServer) handleFilterParse(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	v, release, err := s.readJSON(w, r)
	if err != nil {
		s.bodyError(w, err)
		return
	}
	defer release()

	if v.Type() == fastjson.TypeArray {
		arr, _ := v.Array()
		results := make([]conditionResult, 0, len(arr))
		for _, item := range arr {
			res, _ := s.parseOne(string(item.GetStringBytes("logic")))
			results = append(results, res)
		}
		s.writeJSON(w, http.StatusOK, results)
		return
	}

	if v.Get("logic") == nil {
		http.Error(w, "logic is required", http.StatusBadRequest)
		return
	}
	res, ok := s.parseOne(string(v.GetStringBytes("logic")))
	if !ok {
		s.writeJSON(w, http.StatusUnprocessableEntity, res.errorBody)
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}

// handleMetric builds a metric query.
// POST /api/metric  {"spec": "RATIO(patients, studies)"} or
// {"action": "RATIO", "first": "patients", "second": "studies"}
func (s *APIServer) handleMetric(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	v, release, err := s.readJSON(w, r)
	if err != nil {
		s.bodyError(w, err)
		return
	}
	defer release()

	spec := string(v.GetStringBytes("spec"))
	action := string(v.GetStringBytes("action"))
	first := string(v.GetStringBytes("first"))
	second := string(v.GetStringBytes("second"))

	var m *metric.Metric
	switch {
	case spec != "":
		m, err = s.engine.ParseMetric(spec)
	case action != "":
		m, err = s.engine.BuildMetric(action, first, second)
	default:
		http.Error(w, "spec or action is required", http.StatusBadRequest)
		return
	}
	if err != nil {
		s.writeJSON(w, http.StatusUnprocessableEntity, errorResponse(err))
		return
	}
	s.writeJSON(w, http.StatusOK, m)
}

type statsResponse struct {
	engine.SystemStats
	Requests int64 `json:"requests"`
}

func (s *APIServer) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.writeJSON(w, http.StatusOK, statsResponse{
		SystemStats: s.engine.Stats(),
		Requests:    atomic.LoadInt64(&s.requestCount),
	})
}
