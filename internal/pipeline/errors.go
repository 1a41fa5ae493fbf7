package pipeline

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/Lllllllleong/eligibilityreview/internal/models"
)

// Kind is the caller-visible classification of a pipeline failure.
type Kind string

const (
	KindValidation        Kind = "ValidationError"
	KindAuth              Kind = "AuthError"
	KindNotFound          Kind = "NotFoundError"
	KindPayloadTooLarge   Kind = "PayloadTooLarge"
	KindTransient         Kind = "TransientError"
	KindParse             Kind = "ParseError"
	KindContractViolation Kind = "ContractViolation"
)

// Retryable reports whether the caller may repeat the whole review.
func (k Kind) Retryable() bool {
	return k == KindTransient
}

// HTTPStatus maps a kind to the status code the review functions answer with.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindValidation:
		return http.StatusBadRequest
	case KindPayloadTooLarge:
		return http.StatusRequestEntityTooLarge
	case KindTransient:
		return http.StatusServiceUnavailable
	case KindAuth, KindNotFound, KindParse, KindContractViolation:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// PipelineError is the only error type that crosses the Pipeline boundary.
type PipelineError struct {
	Kind    Kind
	Message string
	// Fields names the offending file or decision fields, when known.
	Fields []string
	// RawText is the unparsed service answer for ParseError and ContractViolation.
	RawText string
	// Candidate is the offending decision for ContractViolation.
	Candidate *models.Candidate
	Err       error
}

func (e *PipelineError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Kind, e.Message)
	if len(e.Fields) > 0 && e.Kind == KindContractViolation {
		msg += " [" + strings.Join(e.Fields, ", ") + "]"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *PipelineError) Unwrap() error {
	return e.Err
}

// Response converts the error into the body the review functions return.
func (e *PipelineError) Response() models.ErrorResponse {
	return models.ErrorResponse{Kind: string(e.Kind), Message: e.Message, Fields: e.Fields}
}

func newError(kind Kind, err error, format string, args ...any) *PipelineError {
	return &PipelineError{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// ValidationError reports a rejected input or missing configuration.
func ValidationError(field, format string, args ...any) *PipelineError {
	e := newError(KindValidation, nil, format, args...)
	if field != "" {
		e.Fields = []string{field}
	}
	return e
}

// PayloadTooLargeError reports an upload or request above a size bound.
func PayloadTooLargeError(format string, args ...any) *PipelineError {
	return newError(KindPayloadTooLarge, nil, format, args...)
}

// AsPipelineError extracts the *PipelineError from err, if there is one.
func AsPipelineError(err error) (*PipelineError, bool) {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

// KindOf returns the kind of err, treating untranslated errors as transient.
func KindOf(err error) Kind {
	if pe, ok := AsPipelineError(err); ok {
		return pe.Kind
	}
	return KindTransient
}
