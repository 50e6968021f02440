package observability

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

const (
	// LogFieldRunID is the field name for the sync run ID.
	LogFieldRunID = "run_id"
	// LogFieldResource is the field name for the resource key.
	LogFieldResource = "resource"
	// LogFieldKind is the field name for the resource kind.
	LogFieldKind = "kind"
	// LogFieldDuration is the field name for duration in milliseconds.
	LogFieldDuration = "duration_ms"
	// LogFieldErrorCode is the field name for error code.
	LogFieldErrorCode = "error_code"
	// LogFieldOutcome is the field name for the tri-state result.
	LogFieldOutcome = "outcome"
	// LogFieldLocation is the field name for the remote location.
	LogFieldLocation = "location"
)

// SyncContext represents one fetch-validate-commit run with structured logging.
type SyncContext struct {
	RunID     string
	Resource  string
	Kind      string
	StartTime time.Time
	Logger    *slog.Logger
}

// NewSyncContext creates a new sync context with a generated run ID.
func NewSyncContext(logger *slog.Logger, kind, resource string) *SyncContext {
	return NewSyncContextWithID(logger, generateRunID(), kind, resource)
}

// NewSyncContextWithID creates a new sync context with a specific run ID.
func NewSyncContextWithID(logger *slog.Logger, runID, kind, resource string) *SyncContext {
	if logger == nil {
		logger = slog.Default()
	}
	return &SyncContext{
		RunID:     runID,
		Resource:  resource,
		Kind:      kind,
		StartTime: time.Now(),
		Logger:    logger,
	}
}

// WithFields returns a new logger with additional fields.
func (s *SyncContext) WithFields(attrs ...slog.Attr) *slog.Logger {
	combined := s.baseAttrsAppended(attrs...)
	result := make([]any, 0, len(combined))
	for _, attr := range combined {
		result = append(result, attr)
	}
	return s.Logger.With(result...)
}

// Info logs an info message.
func (s *SyncContext) Info(msg string, attrs ...slog.Attr) {
	s.Logger.LogAttrs(context.Background(), slog.LevelInfo, msg, s.baseAttrsAppended(attrs...)...)
}

// Debug logs a debug message.
func (s *SyncContext) Debug(msg string, attrs ...slog.Attr) {
	s.Logger.LogAttrs(context.Background(), slog.LevelDebug, msg, s.baseAttrsAppended(attrs...)...)
}

// Warn logs a warning message.
func (s *SyncContext) Warn(msg string, attrs ...slog.Attr) {
	s.Logger.LogAttrs(context.Background(), slog.LevelWarn, msg, s.baseAttrsAppended(attrs...)...)
}

// Error logs an error message with the error.
func (s *SyncContext) Error(msg string, err error, attrs ...slog.Attr) {
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
	}
	s.Logger.LogAttrs(context.Background(), slog.LevelError, msg, s.baseAttrsAppended(attrs...)...)
}

// Duration returns the elapsed time since the run started.
func (s *SyncContext) Duration() time.Duration {
	return time.Since(s.StartTime)
}

// DurationMs returns the elapsed time in milliseconds.
func (s *SyncContext) DurationMs() int64 {
	return s.Duration().Milliseconds()
}

func (s *SyncContext) baseAttrs() []slog.Attr {
	return []slog.Attr{
		slog.String(LogFieldRunID, s.RunID),
		slog.String(LogFieldKind, s.Kind),
		slog.String(LogFieldResource, s.Resource),
	}
}

func (s *SyncContext) baseAttrsAppended(attrs ...slog.Attr) []slog.Attr {
	return append(s.baseAttrs(), attrs...)
}

func generateRunID() string {
	return uuid.New().String()
}

type ctxKey struct{}

// WithSyncContext adds the sync context to the context.
func WithSyncContext(ctx context.Context, syncCtx *SyncContext) context.Context {
	return context.WithValue(ctx, ctxKey{}, syncCtx)
}

// FromContext extracts the sync context from the context.
func FromContext(ctx context.Context) (*SyncContext, bool) {
	syncCtx, ok := ctx.Value(ctxKey{}).(*SyncContext)
	return syncCtx, ok
}
