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

var (
	defaultsInstance *services.DefaultsFunction
	once             sync.Once
	initErr          error
)

func init() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	functions.HTTP("HandleDefaults", handleDefaults)
}

// main is required by the Go Functions Framework.
func main() {}

// handleDefaults returns the default prompt and criteria so staff can edit them before
// submitting a review.
func handleDefaults(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		services.WriteMethodNotAllowed(w, r, http.MethodGet)
		return
	}

	once.Do(func() {
		defaultsInstance, initErr = services.NewDefaultsFunction(context.Background())
	})
	if initErr != nil {
		slog.Error("CRITICAL: Defaults initialization failed.", "error", initErr)
		services.WriteError(w, initErr)
		return
	}

	res, err := defaultsInstance.Process(r.Context())
	if err != nil {
		slog.Error("Failed to load defaults.", "error", err)
		services.WriteError(w, err)
		return
	}
	services.WriteJSON(w, http.StatusOK, res)
}
