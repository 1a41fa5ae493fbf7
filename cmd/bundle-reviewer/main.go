package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	"github.com/Lllllllleong/eligibilityreview/internal/services"
	cloudevents "github.com/cloudevents/sdk-go/v2"
)

var (
	bundleReviewerInstance *services.ReviewerFunction
	once                   sync.Once
	initErr                error
)

func init() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Triggered by GCS finalize events on the submissions bucket.
	functions.CloudEvent("ReviewBundle", reviewBundle)
}

// main is required by the Go Functions Framework.
func main() {}

// reviewBundle reviews a submission once its manifest lands in the bucket.
func reviewBundle(ctx context.Context, e cloudevents.Event) error {
	once.Do(func() {
		bundleReviewerInstance, initErr = services.NewBundleReviewer(context.Background())
	})
	if initErr != nil {
		slog.Error("Critical error during function initialization", "error", initErr)
		return initErr
	}

	var gcsEvent services.GCSEvent
	if err := json.Unmarshal(e.Data(), &gcsEvent); err != nil {
		slog.Error("Failed to unmarshal event data", "error", err, "data", string(e.Data()))
		return fmt.Errorf("json.Unmarshal: %w", err)
	}

	// Returning an error marks the invocation as failed.
	return bundleReviewerInstance.ProcessBundle(ctx, gcsEvent)
}
