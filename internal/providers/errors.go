package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/haasonsaas/routergen/internal/record"
)

// FailureReason categorizes why a provider request failed.
type FailureReason string

const (
	// ReasonBilling indicates payment or quota issues (HTTP 402).
	ReasonBilling FailureReason = "billing"

	// ReasonRateLimit indicates rate limiting (HTTP 429, resource exhausted, throttling).
	ReasonRateLimit FailureReason = "rate_limit"

	// ReasonAuth indicates authentication failure (HTTP 401, 403).
	ReasonAuth FailureReason = "auth"

	// ReasonTimeout indicates the request did not finish in time.
	ReasonTimeout FailureReason = "timeout"

	// ReasonServerError indicates server-side issues (HTTP 5xx).
	ReasonServerError FailureReason = "server_error"

	// ReasonInvalidRequest indicates client-side issues (HTTP 400).
	ReasonInvalidRequest FailureReason = "invalid_request"

	// ReasonModelUnavailable indicates the model is not available.
	ReasonModelUnavailable FailureReason = "model_unavailable"

	// ReasonContentFilter indicates content was blocked by safety filters.
	ReasonContentFilter FailureReason = "content_filter"

	// ReasonSchema indicates the reply arrived but did not fit the batch schema.
	ReasonSchema FailureReason = "schema"

	// ReasonUnknown indicates an unclassified error.
	ReasonUnknown FailureReason = "unknown"
)

// Class is the coarse bucket the orchestrator acts on.
type Class string

const (
	ClassRateLimit Class = "rate_limit"
	ClassSchema    Class = "schema"
	ClassAPI       Class = "api"
	ClassUnknown   Class = "unknown"
)

// ProviderError represents a structured error from an LLM provider.
type ProviderError struct {
	// Reason categorizes the error.
	Reason FailureReason

	// Provider is the name of the provider (e.g., "groq", "anthropic").
	Provider string

	// Model is the model that was requested.
	Model string

	// Status is the HTTP status code, if applicable.
	Status int

	// Code is the provider-specific error code.
	Code string

	// Message is the human-readable error message.
	Message string

	// RequestID is the provider's request ID for debugging.
	RequestID string

	// Cause is the underlying error.
	Cause error
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	var parts []string

	parts = append(parts, fmt.Sprintf("[%s]", e.Reason))

	if e.Provider != "" {
		parts = append(parts, e.Provider)
	}
	if e.Model != "" {
		parts = append(parts, fmt.Sprintf("model=%s", e.Model))
	}
	if e.Status != 0 {
		parts = append(parts, fmt.Sprintf("status=%d", e.Status))
	}
	if e.Code != "" {
		parts = append(parts, fmt.Sprintf("code=%s", e.Code))
	}
	if e.RequestID != "" {
		parts = append(parts, fmt.Sprintf("request_id=%s", e.RequestID))
	}

	if e.Message != "" {
		parts = append(parts, e.Message)
	} else if e.Cause != nil {
		parts = append(parts, e.Cause.Error())
	}

	return strings.Join(parts, " ")
}

// Unwrap returns the underlying error.
func (e *ProviderError) Unwrap() error {
	return e.Cause
}

// NewProviderError creates a ProviderError and classifies cause.
func NewProviderError(provider, model string, cause error) *ProviderError {
	err := &ProviderError{
		Provider: provider,
		Model:    model,
		Cause:    cause,
		Reason:   ReasonUnknown,
	}

	if cause != nil {
		err.Message = cause.Error()
		err.Reason = ClassifyError(cause)
	}

	return err
}

// newSchemaError wraps a batch that failed to parse.
func newSchemaError(provider, model string, cause error) *ProviderError {
	return &ProviderError{
		Provider: provider,
		Model:    model,
		Reason:   ReasonSchema,
		Message:  cause.Error(),
		Cause:    cause,
	}
}

// WithStatus adds HTTP status to the error and reclassifies if needed.
func (e *ProviderError) WithStatus(status int) *ProviderError {
	e.Status = status
	if reason := classifyStatusCode(status); reason != ReasonUnknown {
		e.Reason = reason
	}
	return e
}

// WithCode adds a provider-specific error code.
func (e *ProviderError) WithCode(code string) *ProviderError {
	e.Code = code
	if reason := classifyErrorCode(code); reason != ReasonUnknown {
		e.Reason = reason
	}
	return e
}

// WithRequestID adds the provider's request ID.
func (e *ProviderError) WithRequestID(id string) *ProviderError {
	e.RequestID = id
	return e
}

// WithMessage sets the error message.
func (e *ProviderError) WithMessage(msg string) *ProviderError {
	e.Message = msg
	return e
}

// ClassifyError inspects an error message and returns a FailureReason.
func ClassifyError(err error) FailureReason {
	if err == nil {
		return ReasonUnknown
	}
	if record.IsSchemaError(err) {
		return ReasonSchema
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ReasonTimeout
	}

	errStr := strings.ToLower(err.Error())

	switch {
	case containsAny(errStr, "rate limit", "rate_limit", "too many requests", "429",
		"resource exhausted", "resource_exhausted", "resourceexhausted", "throttl", "overloaded"):
		return ReasonRateLimit
	case containsAny(errStr, "timeout", "deadline exceeded", "etimedout"):
		return ReasonTimeout
	case containsAny(errStr, "unauthorized", "invalid api key", "invalid_api_key", "authentication", "401", "403"):
		return ReasonAuth
	case containsAny(errStr, "billing", "payment", "quota", "insufficient", "402"):
		return ReasonBilling
	case containsAny(errStr, "content_filter", "content policy", "safety", "blocked"):
		return ReasonContentFilter
	case containsAny(errStr, "model not found", "model_not_found", "does not exist", "decommissioned"):
		return ReasonModelUnavailable
	case containsAny(errStr, "validation", "json_validate_failed"):
		return ReasonSchema
	case containsAny(errStr, "internal server", "server error", "500", "502", "503", "504"):
		return ReasonServerError
	case containsAny(errStr, "invalid_request", "bad request", "400"):
		return ReasonInvalidRequest
	}

	return ReasonUnknown
}

// classifyStatusCode returns a FailureReason based on HTTP status code.
func classifyStatusCode(status int) FailureReason {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return ReasonAuth
	case status == http.StatusPaymentRequired:
		return ReasonBilling
	case status == http.StatusTooManyRequests:
		return ReasonRateLimit
	case status == 529: // anthropic overloaded
		return ReasonRateLimit
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		return ReasonInvalidRequest
	case status == http.StatusNotFound:
		return ReasonModelUnavailable
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return ReasonTimeout
	case status >= 500:
		return ReasonServerError
	default:
		return ReasonUnknown
	}
}

// classifyErrorCode returns a FailureReason based on provider-specific error codes.
func classifyErrorCode(code string) FailureReason {
	switch strings.ToLower(code) {
	case "rate_limit_error", "rate_limit_exceeded", "overloaded_error", "throttlingexception",
		"resource_exhausted", "servicequotaexceededexception":
		return ReasonRateLimit
	case "authentication_error", "invalid_api_key", "permission_error", "accessdeniedexception":
		return ReasonAuth
	case "billing_error", "insufficient_quota":
		return ReasonBilling
	case "model_not_found", "model_not_available", "resourcenotfoundexception", "modelnotreadyexception":
		return ReasonModelUnavailable
	case "content_policy_violation", "content_filter":
		return ReasonContentFilter
	case "json_validate_failed":
		return ReasonSchema
	case "server_error", "internal_error", "api_error", "internalserverexception", "serviceunavailableexception":
		return ReasonServerError
	case "invalid_request_error", "validationexception":
		return ReasonInvalidRequest
	case "modeltimeoutexception":
		return ReasonTimeout
	default:
		return ReasonUnknown
	}
}

// GetProviderError extracts a ProviderError from an error chain.
func GetProviderError(err error) (*ProviderError, bool) {
	var providerErr *ProviderError
	if errors.As(err, &providerErr) {
		return providerErr, true
	}
	return nil, false
}

// Reason returns the failure reason of err, classifying raw errors.
func Reason(err error) FailureReason {
	if err == nil {
		return ReasonUnknown
	}
	if providerErr, ok := GetProviderError(err); ok {
		return providerErr.Reason
	}
	return ClassifyError(err)
}

// Classify maps any error to the class the orchestrator acts on: rate
// limits are retried with backoff, schema failures are retried without
// waiting, everything else ends the attempt.
func Classify(err error) Class {
	if err == nil {
		return ClassUnknown
	}
	switch Reason(err) {
	case ReasonRateLimit:
		return ClassRateLimit
	case ReasonSchema:
		return ClassSchema
	case ReasonUnknown:
		return ClassUnknown
	default:
		return ClassAPI
	}
}

func containsAny(s string, needles ...string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}
