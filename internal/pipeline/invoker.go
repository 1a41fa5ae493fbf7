package pipeline

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/Lllllllleong/eligibilityreview/internal/models"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Reasoner is a reasoning service backend. Implementations make exactly one call and
// return the service's own error values untranslated.
type Reasoner interface {
	Reason(ctx context.Context, req *models.ReviewRequest, model string) (*models.ReasoningResult, error)
}

// Invoker performs the single bounded call to the reasoning service and classifies
// its failures.
type Invoker struct {
	Reasoner Reasoner
	// Timeout bounds the call; zero leaves only the caller's deadline.
	Timeout time.Duration
}

// Invoke sends req to the reasoning service. There is no retry loop: a failed call is
// reported once so the caller decides whether a costly repeat is worth it.
func (inv *Invoker) Invoke(ctx context.Context, req *models.ReviewRequest, model string) (*models.ReasoningResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, classifyFailure(err, model)
	}

	callCtx := ctx
	if inv.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, inv.Timeout)
		defer cancel()
	}

	res, err := inv.Reasoner.Reason(callCtx, req, model)
	if err != nil {
		return nil, classifyFailure(err, model)
	}
	if res == nil {
		return nil, newError(KindTransient, nil, "reasoning service returned no result")
	}
	// An answer that raced with cancellation is discarded rather than parsed.
	if err := ctx.Err(); err != nil {
		return nil, classifyFailure(err, model)
	}
	return res, nil
}

// classifyFailure inspects the signaled status of a failure, never its prose.
func classifyFailure(err error, model string) *PipelineError {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return newError(KindTransient, err, "reasoning service call timed out")
	case errors.Is(err, context.Canceled):
		return newError(KindTransient, err, "review cancelled before the reasoning service answered")
	}

	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return classifyHTTPStatus(gerr.Code, err, model)
	}

	if st, ok := status.FromError(err); ok {
		switch st.Code() {
		case codes.Unauthenticated, codes.PermissionDenied:
			return authError(err)
		case codes.NotFound:
			return notFoundError(err, model)
		case codes.InvalidArgument, codes.FailedPrecondition, codes.OutOfRange:
			return rejectedError(err)
		}
	}
	return newError(KindTransient, err, "reasoning service call failed")
}

func classifyHTTPStatus(code int, err error, model string) *PipelineError {
	switch code {
	case http.StatusUnauthorized, http.StatusForbidden:
		return authError(err)
	case http.StatusNotFound:
		return notFoundError(err, model)
	case http.StatusRequestEntityTooLarge:
		return newError(KindPayloadTooLarge, err, "assembled request exceeds the reasoning service limit")
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return rejectedError(err)
	}
	return newError(KindTransient, err, "reasoning service call failed with HTTP %d", code)
}

func authError(err error) *PipelineError {
	return newError(KindAuth, err, "reasoning service rejected the credentials; check the service account has the Vertex AI User role and the Vertex AI API is enabled")
}

// rejectedError covers requests the service refused as malformed. They are never retryable.
func rejectedError(err error) *PipelineError {
	e := newError(KindValidation, err, "reasoning service rejected the request as invalid")
	e.Fields = []string{"request"}
	return e
}

func notFoundError(err error, model string) *PipelineError {
	return newError(KindNotFound, err, "model %q not found; ensure it is enabled in Vertex AI Model Garden and available in the configured region", model)
}
