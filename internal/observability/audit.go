package observability

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// AuditEventType categorizes audit events.
type AuditEventType string

const (
	AuditEventDocumentIngest AuditEventType = "document.ingest"
	AuditEventDocumentDelete AuditEventType = "document.delete"
	AuditEventAsk            AuditEventType = "ask"
	AuditEventLLMResponse    AuditEventType = "llm.response"
	AuditEventLLMFallback    AuditEventType = "llm.fallback"
	AuditEventStoreConnect   AuditEventType = "store.connect"
)

// AuditEvent represents a single audit log entry.
type AuditEvent struct {
	Timestamp   time.Time              `json:"timestamp"`
	EventType   AuditEventType         `json:"event_type"`
	SessionID   string                 `json:"session_id"`
	DocumentID  string                 `json:"document_id,omitempty"`
	UserID      string                 `json:"user_id,omitempty"`
	Success     bool                   `json:"success"`
	Duration    time.Duration          `json:"duration_ms,omitempty"`
	Message     string                 `json:"message,omitempty"`
	Details     map[string]interface{} `json:"details,omitempty"`
	ErrorDetail string                 `json:"error_detail,omitempty"`
}

// AuditLogger handles audit event logging.
type AuditLogger struct {
	mu        sync.Mutex
	writer    io.Writer
	sessionID string
	userID    string
	enabled   bool
}

// AuditConfig configures the audit logger.
type AuditConfig struct {
	Enabled    bool
	OutputPath string // File path or "stdout"/"stderr"
	SessionID  string
	UserID     string
}

// DefaultAuditConfig returns default audit configuration.
func DefaultAuditConfig() *AuditConfig {
	return &AuditConfig{
		Enabled:    true,
		OutputPath: "stdout",
	}
}

// NewAuditLogger creates a new audit logger.
func NewAuditLogger(config *AuditConfig) (*AuditLogger, error) {
	if config == nil {
		config = DefaultAuditConfig()
	}

	var writer io.Writer
	switch config.OutputPath {
	case "stdout", "":
		writer = os.Stdout
	case "stderr":
		writer = os.Stderr
	default:
		f, err := os.OpenFile(config.OutputPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return nil, fmt.Errorf("open audit log: %w", err)
		}
		writer = f
	}

	sessionID := config.SessionID
	if sessionID == "" {
		sessionID = fmt.Sprintf("session-%d", time.Now().UnixNano())
	}

	return &AuditLogger{
		writer:    writer,
		sessionID: sessionID,
		userID:    config.UserID,
		enabled:   config.Enabled,
	}, nil
}

// Log writes an audit event.
func (l *AuditLogger) Log(event *AuditEvent) error {
	if !l.enabled {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	// Fill in defaults
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if event.SessionID == "" {
		event.SessionID = l.sessionID
	}
	if event.UserID == "" {
		event.UserID = l.userID
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}

	_, err = fmt.Fprintf(l.writer, "%s\n", data)
	return err
}

// LogDocumentIngest logs a document ingestion event.
func (l *AuditLogger) LogDocumentIngest(ctx context.Context, documentID, name, model string, chunkCount int, duration time.Duration) {
	l.Log(&AuditEvent{
		EventType:  AuditEventDocumentIngest,
		DocumentID: documentID,
		Success:    true,
		Duration:   duration,
		Message:    fmt.Sprintf("Ingested document %s", name),
		Details: map[string]interface{}{
			"name":        name,
			"model":       model,
			"chunk_count": chunkCount,
		},
	})
}

// LogDocumentDelete logs a document deletion event.
func (l *AuditLogger) LogDocumentDelete(ctx context.Context, documentID string, success bool, errMsg string) {
	event := &AuditEvent{
		EventType:  AuditEventDocumentDelete,
		DocumentID: documentID,
		Success:    success,
		Message:    fmt.Sprintf("Deleted document %s", documentID),
	}
	if errMsg != "" {
		event.ErrorDetail = errMsg
	}
	l.Log(event)
}

// LogAsk logs a question-answer event.
func (l *AuditLogger) LogAsk(ctx context.Context, model string, topK, matchCount int, duration time.Duration, success bool) {
	l.Log(&AuditEvent{
		EventType: AuditEventAsk,
		Success:   success,
		Duration:  duration,
		Message:   fmt.Sprintf("Ask answered with %d context chunks", matchCount),
		Details: map[string]interface{}{
			"model":       model,
			"top_k":       topK,
			"match_count": matchCount,
		},
	})
}

// LogLLMResponse logs an LLM response event.
func (l *AuditLogger) LogLLMResponse(ctx context.Context, provider, model string, duration time.Duration, inputTokens, outputTokens int) {
	l.Log(&AuditEvent{
		EventType: AuditEventLLMResponse,
		Success:   true,
		Duration:  duration,
		Message:   fmt.Sprintf("LLM response from %s/%s", provider, model),
		Details: map[string]interface{}{
			"provider":      provider,
			"model":         model,
			"input_tokens":  inputTokens,
			"output_tokens": outputTokens,
			"total_tokens":  inputTokens + outputTokens,
		},
	})
}

// LogLLMFallback logs a generation failure recovered by the fallback answer.
func (l *AuditLogger) LogLLMFallback(ctx context.Context, provider, model string, err error) {
	event := &AuditEvent{
		EventType: AuditEventLLMFallback,
		Success:   false,
		Message:   fmt.Sprintf("LLM failure from %s/%s, fallback answer served", provider, model),
		Details: map[string]interface{}{
			"provider": provider,
			"model":    model,
		},
	}
	if err != nil {
		event.ErrorDetail = err.Error()
	}
	l.Log(event)
}

// LogStoreConnect logs a vector store connection event.
func (l *AuditLogger) LogStoreConnect(ctx context.Context, target, collection string, success bool, errMsg string) {
	event := &AuditEvent{
		EventType: AuditEventStoreConnect,
		Success:   success,
		Message:   fmt.Sprintf("Vector store connection to %s", target),
		Details: map[string]interface{}{
			"target":     target,
			"collection": collection,
		},
	}
	if errMsg != "" {
		event.ErrorDetail = errMsg
	}
	l.Log(event)
}

// Close closes the audit logger (if using a file).
func (l *AuditLogger) Close() error {
	if closer, ok := l.writer.(io.Closer); ok {
		if closer != os.Stdout && closer != os.Stderr {
			return closer.Close()
		}
	}
	return nil
}

// Global audit logger instance
var globalAuditLogger *AuditLogger
var auditOnce sync.Once

// InitGlobalAuditLogger initializes the global audit logger.
func InitGlobalAuditLogger(config *AuditConfig) error {
	var err error
	auditOnce.Do(func() {
		globalAuditLogger, err = NewAuditLogger(config)
	})
	return err
}

// Audit returns the global audit logger.
func Audit() *AuditLogger {
	if globalAuditLogger == nil {
		// Return a disabled logger if not initialized
		return &AuditLogger{enabled: false}
	}
	return globalAuditLogger
}
