package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	"github.com/Lllllllleong/eligibilityreview/internal/services"
)

// multipartMemory is how much of a form is held in memory before spilling to disk.
const multipartMemory = 8 << 20

var (
	reviewerInstance *services.ReviewerFunction
	once             sync.Once
	initErr          error
)

func init() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// "HandleReview" is the entry point name configured in GCP.
	functions.HTTP("HandleReview", handleReview)
}

// main is required by the Go Functions Framework.
func main() {}

// handleReview accepts a multipart submission and answers with a validated decision.
func handleReview(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		services.WriteMethodNotAllowed(w, r, http.MethodPost)
		return
	}

	once.Do(func() {
		reviewerInstance, initErr = services.NewReviewer(context.Background())
	})
	if initErr != nil {
		slog.Error("CRITICAL: Reviewer initialization failed.", "error", initErr)
		// Missing credentials surface as a ValidationError; anything else is a 500.
		services.WriteError(w, initErr)
		return
	}

	// The encoded request is checked again after assembly.
	if limit := reviewerInstance.MaxRequestBytes(); limit > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, limit)
	}
	job, err := services.ParseReviewForm(r, multipartMemory)
	if err != nil {
		slog.Warn("Rejected review request.", "error", err)
		services.WriteError(w, err)
		return
	}

	res, err := reviewerInstance.Review(r.Context(), job)
	if err != nil {
		// The failure is already logged and recorded inside Review.
		services.WriteError(w, err)
		return
	}
	services.WriteJSON(w, http.StatusOK, res)
}
