package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/notabene-labs/notabene/internal/embedding"
	"github.com/notabene-labs/notabene/internal/extract"
	"github.com/notabene-labs/notabene/internal/observability"
	"github.com/notabene-labs/notabene/internal/rag"
	"github.com/notabene-labs/notabene/internal/vector"
)

const defaultMaxUploadBytes = 32 << 20 // 32 MiB

// Service is the slice of the RAG pipeline the HTTP layer depends on.
type Service interface {
	Ingest(ctx context.Context, name, text, model string) (*rag.IngestResult, error)
	Ask(ctx context.Context, question, model string, topK int) (*rag.Answer, error)
	ListDocuments(ctx context.Context) ([]rag.DocumentInfo, error)
	DeleteDocument(ctx context.Context, documentID string) error
	CheckHealth(ctx context.Context) rag.Health
}

// APIConfig holds API server configuration.
type APIConfig struct {
	ListenAddr     string // e.g. ":8000"
	MaxUploadBytes int64
	AllowedOrigins []string
	DefaultModel   string
	DefaultTopK    int
}

// DefaultAPIConfig returns sensible defaults.
func DefaultAPIConfig() *APIConfig {
	return &APIConfig{
		ListenAddr:     ":8000",
		MaxUploadBytes: defaultMaxUploadBytes,
		AllowedOrigins: []string{"*"},
		DefaultModel:   "all-MiniLM-L6-v2",
		DefaultTopK:    5,
	}
}

// APIServer is the document Q&A HTTP server.
type APIServer struct {
	config  *APIConfig
	svc     Service
	metrics *observability.Metrics
	server  *http.Server
}

// NewAPIServer creates the API server. metrics may be nil when the
// Prometheus registry is not set up, e.g. in tests.
func NewAPIServer(config *APIConfig, svc Service, metrics *observability.Metrics) *APIServer {
	if config == nil {
		config = DefaultAPIConfig()
	}
	if config.MaxUploadBytes <= 0 {
		config.MaxUploadBytes = defaultMaxUploadBytes
	}
	if config.DefaultTopK <= 0 {
		config.DefaultTopK = 5
	}

	s := &APIServer{
		config:  config,
		svc:     svc,
		metrics: metrics,
	}

	mux := http.NewServeMux()

	// API routes
	mux.HandleFunc("/api/upload", s.handleUpload)
	mux.HandleFunc("/api/ask", s.handleAsk)
	mux.HandleFunc("/api/documents", s.handleDocuments)
	mux.HandleFunc("/api/documents/", s.handleDocumentDetail)
	mux.HandleFunc("/api/health", s.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())

	// Wrap with CORS, metrics and logging middleware
	handler := corsMiddleware(config.AllowedOrigins, metricsMiddleware(metrics, loggingMiddleware(mux)))

	s.server = &http.Server{
		Addr:         config.ListenAddr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Handler exposes the full middleware-wrapped handler.
func (s *APIServer) Handler() http.Handler {
	return s.server.Handler
}

// Start begins serving requests. It blocks until the server stops.
func (s *APIServer) Start() error {
	slog.Info("Starting API server", "addr", s.config.ListenAddr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("api server error: %w", err)
	}
	return nil
}

// Stop gracefully shuts down the server.
func (s *APIServer) Stop(ctx context.Context) error {
	slog.Info("Stopping API server")
	return s.server.Shutdown(ctx)
}

// handleUpload handles POST /api/upload (multipart form with a "file" part
// and an optional "model" field).
func (s *APIServer) handleUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxUploadBytes)
	if err := r.ParseMultipartForm(s.config.MaxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "upload too large or malformed multipart form")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, `missing "file" form field`)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "could not read uploaded file")
		return
	}

	text, err := extract.Text(data, extract.TypeFromFilename(header.Filename))
	if err != nil {
		if errors.Is(err, extract.ErrUnsupportedType) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusBadRequest, "could not extract text: "+err.Error())
		return
	}

	model := r.FormValue("model")
	if model == "" {
		model = s.config.DefaultModel
	}

	start := time.Now()
	res, err := s.svc.Ingest(r.Context(), header.Filename, text, model)
	if err != nil {
		if s.metrics != nil {
			s.metrics.RecordIngest(model, "error", 0)
		}
		writeError(w, statusForError(err), err.Error())
		return
	}

	if s.metrics != nil {
		s.metrics.RecordIngest(model, "success", res.ChunkCount)
	}
	observability.Audit().LogDocumentIngest(r.Context(), res.DocumentID, header.Filename, model, res.ChunkCount, time.Since(start))

	respondJSON(w, uploadResponse{
		DocumentID: res.DocumentID,
		Name:       header.Filename,
		ChunkCount: res.ChunkCount,
	})
}

type uploadResponse struct {
	DocumentID string `json:"document_id"`
	Name       string `json:"name"`
	ChunkCount int    `json:"chunk_count"`
}

type askRequest struct {
	Question string `json:"question"`
	Model    string `json:"model,omitempty"`
	TopK     int    `json:"top_k,omitempty"`
}

// handleAsk handles POST /api/ask.
func (s *APIServer) handleAsk(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		writeError(w, http.StatusBadRequest, "question must not be empty")
		return
	}
	if req.Model == "" {
		req.Model = s.config.DefaultModel
	}
	if req.TopK == 0 {
		req.TopK = s.config.DefaultTopK
	}

	start := time.Now()
	answer, err := s.svc.Ask(r.Context(), req.Question, req.Model, req.TopK)
	if err != nil {
		observability.Audit().LogAsk(r.Context(), req.Model, req.TopK, 0, time.Since(start), false)
		writeError(w, statusForError(err), err.Error())
		return
	}

	if s.metrics != nil {
		s.metrics.RecordRetrieval(req.Model, time.Since(start).Seconds())
	}
	observability.Audit().LogAsk(r.Context(), req.Model, req.TopK, answer.ContextChunkCount, time.Since(start), true)

	respondJSON(w, answer)
}

// handleDocuments handles GET /api/documents.
func (s *APIServer) handleDocuments(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	docs, err := s.svc.ListDocuments(r.Context())
	if err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}
	if docs == nil {
		docs = []rag.DocumentInfo{}
	}
	respondJSON(w, docs)
}

// handleDocumentDetail handles DELETE /api/documents/{id}.
func (s *APIServer) handleDocumentDetail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/api/documents/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, http.StatusBadRequest, "document ID required")
		return
	}

	if err := s.svc.DeleteDocument(r.Context(), id); err != nil {
		observability.Audit().LogDocumentDelete(r.Context(), id, false, err.Error())
		writeError(w, statusForError(err), err.Error())
		return
	}

	observability.Audit().LogDocumentDelete(r.Context(), id, true, "")
	respondJSON(w, map[string]any{"document_id": id, "deleted": true})
}

// handleHealth handles GET /api/health.
func (s *APIServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	h := s.svc.CheckHealth(r.Context())
	status := "ok"
	if !h.StoreConnected {
		status = "degraded"
	}

	respondJSON(w, map[string]any{
		"status":          status,
		"store_connected": h.StoreConnected,
		"loaded_models":   h.LoadedModels,
		"time":            time.Now().UTC().Format(time.RFC3339),
	})
}

// statusForError maps pipeline errors onto HTTP status codes. Client
// faults map to 400, an empty index to 404 and infrastructure failures
// to 503; everything else is a plain 500.
func statusForError(err error) int {
	switch {
	case errors.Is(err, rag.ErrEmptyDocument),
		errors.Is(err, rag.ErrInvalidTopK),
		errors.Is(err, extract.ErrUnsupportedType):
		return http.StatusBadRequest
	case errors.Is(err, rag.ErrNoRelevantDocuments):
		return http.StatusNotFound
	}

	var loadErr *embedding.ProviderLoadError
	var unavailErr *vector.UnavailableError
	if errors.As(err, &loadErr) || errors.As(err, &unavailErr) {
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(errorResponse{Error: msg})
}

// respondJSON writes a JSON response
func respondJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Failed to encode JSON response", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

// corsMiddleware adds CORS headers for browser clients.
func corsMiddleware(origins []string, next http.Handler) http.Handler {
	allowAll := len(origins) == 0
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		if o == "*" {
			allowAll = true
		}
		allowed[o] = true
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		switch {
		case allowAll:
			w.Header().Set("Access-Control-Allow-Origin", "*")
		case origin != "" && allowed[origin]:
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Vary", "Origin")
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs HTTP requests
func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		slog.Debug("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"duration", time.Since(start),
		)
	})
}

// statusRecorder captures the response status for metrics.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// metricsMiddleware records request counts and latency per route.
func metricsMiddleware(m *observability.Metrics, next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)
		m.RecordHTTPRequest(r.Method, metricPath(r.URL.Path), fmt.Sprintf("%d", rec.status), time.Since(start).Seconds())
	})
}

// metricPath collapses per-document paths so label cardinality stays bounded.
func metricPath(path string) string {
	if strings.HasPrefix(path, "/api/documents/") {
		return "/api/documents/{id}"
	}
	return path
}
