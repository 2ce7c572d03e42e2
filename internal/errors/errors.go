package errors

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"

	"github.com/fulmenhq/gofulmen/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/karmalens/karmalens/internal/core"
	"github.com/karmalens/karmalens/internal/metrics"
	"github.com/karmalens/karmalens/internal/observability"
	"github.com/karmalens/karmalens/internal/server/middleware"
)

// Error creation helpers for common error types

// User Errors (400-level)
func NewInvalidInputError(message string) *errors.ErrorEnvelope {
	return errors.NewErrorEnvelope("INVALID_INPUT", message)
}

func NewNotFoundError(message string) *errors.ErrorEnvelope {
	return errors.NewErrorEnvelope("NOT_FOUND", message)
}

func NewUnauthorizedError(message string) *errors.ErrorEnvelope {
	return errors.NewErrorEnvelope("UNAUTHORIZED", message)
}

func NewMethodNotAllowedError(message string) *errors.ErrorEnvelope {
	return errors.NewErrorEnvelope("METHOD_NOT_ALLOWED", message)
}

// Server Errors (500-level)
func NewInternalError(message string) *errors.ErrorEnvelope {
	return errors.NewErrorEnvelope("INTERNAL_ERROR", message)
}

func NewServiceUnavailableError(message string) *errors.ErrorEnvelope {
	return errors.NewErrorEnvelope("SERVICE_UNAVAILABLE", message)
}

func NewConfigInvalidError(message string) *errors.ErrorEnvelope {
	return errors.NewErrorEnvelope("CONFIG_INVALID", message)
}

// Wrap functions for existing errors
// These functions accept a context to extract correlation/trace IDs from the request context

func WrapInvalidInput(ctx context.Context, err error, message string) *errors.ErrorEnvelope {
	return wrap(ctx, "INVALID_INPUT", err, message)
}

func WrapNotFound(ctx context.Context, err error, message string) *errors.ErrorEnvelope {
	return wrap(ctx, "NOT_FOUND", err, message)
}

func WrapInternal(ctx context.Context, err error, message string) *errors.ErrorEnvelope {
	return wrap(ctx, "INTERNAL_ERROR", err, message)
}

func WrapConfigInvalid(ctx context.Context, err error, message string) *errors.ErrorEnvelope {
	return wrap(ctx, "CONFIG_INVALID", err, message)
}

func WrapDatabaseError(ctx context.Context, err error, message string) *errors.ErrorEnvelope {
	return wrap(ctx, string(core.ErrorDatabase), err, message)
}

func wrap(ctx context.Context, code string, err error, message string) *errors.ErrorEnvelope {
	envelope := errors.NewErrorEnvelope(code, message)
	envelope = envelope.WithCorrelationID(extractCorrelationID(ctx))
	envelope = envelope.WithTraceID(extractTraceID(ctx))
	envelope = withWrappedError(envelope, err)
	return envelope
}

// FromClassified converts a classified collection failure into an envelope
// carrying the category code and its user-facing message.
func FromClassified(ctx context.Context, classified *core.ClassifiedError) *errors.ErrorEnvelope {
	if classified == nil {
		return NewInternalError("unexpected nil error")
	}

	envelope := errors.NewErrorEnvelope(string(classified.Type), classified.Message)
	envelope = envelope.WithCorrelationID(extractCorrelationID(ctx))
	envelope = envelope.WithTraceID(extractTraceID(ctx))

	details := map[string]interface{}{
		"retryable": classified.Retryable,
	}
	if classified.Username != "" {
		details["username"] = classified.Username
	}
	if classified.Cause != nil {
		details["wrapped_error"] = classified.Cause.Error()
	}
	if updated, err := envelope.WithContext(details); err == nil {
		envelope = updated
	}

	severity := errors.SeverityMedium
	if classified.Type == core.ErrorDatabase || classified.Type == core.ErrorUnknown {
		severity = errors.SeverityHigh
	}
	if updated, err := envelope.WithSeverity(severity); err == nil {
		envelope = updated
	}
	return envelope
}

// Helper functions for ID generation

// extractCorrelationID gets correlation ID from context, falls back to generating new UUID
func extractCorrelationID(ctx context.Context) string {
	if ctx != nil {
		if requestID := middleware.GetRequestID(ctx); requestID != "" {
			return requestID
		}
	}
	return uuid.New().String()
}

// extractTraceID uses the correlation ID; no tracing system is wired.
func extractTraceID(ctx context.Context) string {
	return extractCorrelationID(ctx)
}

// EnsureEnvelope normalizes any error into a gofulmen ErrorEnvelope.
// Classified collection failures keep their category code.
func EnsureEnvelope(err error) *errors.ErrorEnvelope {
	if err == nil {
		env := errors.NewErrorEnvelope("INTERNAL_ERROR", "unexpected nil error")
		env, _ = env.WithSeverity(errors.SeverityCritical)
		return env
	}

	if envelope, ok := err.(*errors.ErrorEnvelope); ok && envelope != nil {
		return envelope
	}

	var classified *core.ClassifiedError
	if stderrors.As(err, &classified) {
		return FromClassified(context.Background(), classified)
	}

	env := errors.NewErrorEnvelope("INTERNAL_ERROR", "unexpected error")
	env, _ = env.WithContext(map[string]interface{}{
		"wrapped_error": err.Error(),
	})
	env, _ = env.WithSeverity(errors.SeverityHigh)
	return env
}

// EnsureCorrelationID attaches a correlation ID to the envelope using the context when available.
func EnsureCorrelationID(envelope *errors.ErrorEnvelope, ctx context.Context) *errors.ErrorEnvelope {
	if envelope == nil {
		return nil
	}

	if envelope.CorrelationID != "" {
		return envelope
	}

	var correlationID string
	if ctx != nil {
		correlationID = middleware.GetRequestID(ctx)
	}

	if correlationID == "" {
		correlationID = "fallback-" + errors.GenerateCorrelationID()
	}

	return envelope.WithCorrelationID(correlationID)
}

// HTTPStatusFromEnvelope resolves the HTTP status code corresponding to an error envelope.
func HTTPStatusFromEnvelope(envelope *errors.ErrorEnvelope) int {
	if envelope == nil {
		return http.StatusInternalServerError
	}
	return HTTPStatusFromCode(envelope.Code)
}

// HTTPStatusFromCode resolves the HTTP status code corresponding to an error
// code. Collection error categories use their fixed status.
func HTTPStatusFromCode(code string) int {
	for _, errType := range core.ErrorTypes {
		if code == string(errType) {
			return errType.HTTPStatus()
		}
	}

	switch code {
	case "INVALID_INPUT", "VALIDATION_FAILED":
		return http.StatusBadRequest
	case "NOT_FOUND":
		return http.StatusNotFound
	case "UNAUTHORIZED":
		return http.StatusUnauthorized
	case "METHOD_NOT_ALLOWED":
		return http.StatusMethodNotAllowed
	case "SERVICE_UNAVAILABLE":
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func withWrappedError(envelope *errors.ErrorEnvelope, err error) *errors.ErrorEnvelope {
	if envelope == nil || err == nil {
		return envelope
	}

	updated, updateErr := envelope.WithContext(map[string]interface{}{
		"wrapped_error": err.Error(),
	})
	if updateErr != nil {
		return envelope
	}
	return updated
}

// internalContextKeys are logged but never returned to callers.
var internalContextKeys = map[string]bool{
	"wrapped_error": true,
	"stack_trace":   true,
}

// ResponseDetails constructs API-safe details map by merging envelope details and context.
func ResponseDetails(envelope *errors.ErrorEnvelope) map[string]interface{} {
	if envelope == nil {
		return nil
	}

	details := make(map[string]interface{})

	for key, value := range envelope.Details {
		details[key] = value
	}

	for key, value := range envelope.Context {
		if internalContextKeys[key] {
			continue
		}
		if _, exists := details[key]; !exists {
			details[key] = value
		}
	}

	if len(details) == 0 {
		return nil
	}

	return details
}

// HTTPErrorResponse is the failure body: {success:false, error:<message>}.
type HTTPErrorResponse struct {
	Success   bool                   `json:"success"`
	Error     string                 `json:"error"`
	Code      string                 `json:"code"`
	Details   map[string]interface{} `json:"details,omitempty"`
	RequestID string                 `json:"request_id,omitempty"`
}

// RespondWithError normalizes the supplied error and writes a JSON response.
func RespondWithError(w http.ResponseWriter, r *http.Request, err error) {
	var classified *core.ClassifiedError
	if r != nil && stderrors.As(err, &classified) {
		RespondWithEnvelope(w, r, FromClassified(r.Context(), classified))
		return
	}
	RespondWithEnvelope(w, r, EnsureEnvelope(err))
}

// RespondWithEnvelope finalizes the provided envelope, logging and emitting metrics.
func RespondWithEnvelope(w http.ResponseWriter, r *http.Request, envelope *errors.ErrorEnvelope) {
	if w == nil {
		return
	}

	if r != nil {
		envelope = EnsureCorrelationID(envelope, r.Context())
	} else {
		envelope = EnsureCorrelationID(envelope, nil)
	}
	if envelope == nil {
		envelope = EnsureEnvelope(nil)
	}

	statusCode := HTTPStatusFromEnvelope(envelope)

	response := HTTPErrorResponse{
		Success:   false,
		Error:     envelope.Message,
		Code:      envelope.Code,
		Details:   ResponseDetails(envelope),
		RequestID: envelope.CorrelationID,
	}

	logHTTPError(envelope, statusCode)
	emitErrorMetrics(r, envelope, statusCode)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(response)
}

func logHTTPError(envelope *errors.ErrorEnvelope, statusCode int) {
	logger := observability.Logger()
	if logger == nil || envelope == nil {
		return
	}

	fields := []zap.Field{
		zap.String("error_code", envelope.Code),
		zap.Int("http_status", statusCode),
	}

	if envelope.Severity != "" {
		fields = append(fields, zap.String("severity", string(envelope.Severity)))
	}

	for key, value := range envelope.Context {
		fields = append(fields, zap.Any(key, value))
	}

	if envelope.CorrelationID != "" {
		fields = append(fields, zap.String("request_id", envelope.CorrelationID))
	}

	switch envelope.Severity {
	case errors.SeverityCritical, errors.SeverityHigh:
		logger.Error(envelope.Message, fields...)
	case errors.SeverityMedium:
		logger.Warn(envelope.Message, fields...)
	default:
		logger.Info(envelope.Message, fields...)
	}
}

func emitErrorMetrics(r *http.Request, envelope *errors.ErrorEnvelope, statusCode int) {
	if envelope == nil {
		return
	}

	metrics.RecordError(envelope.Code, statusCode)
	if r != nil {
		metrics.RecordErrorByEndpoint(r.URL.Path, envelope.Code)
	}
}
