package gcp

import (
	"context"
	"fmt"

	"golang.org/x/oauth2/google"
)

// CloudPlatformScope is the OAuth scope used for Vertex AI calls.
const CloudPlatformScope = "https://www.googleapis.com/auth/cloud-platform"

// FindCredentials locates Application Default Credentials: the file named by
// GOOGLE_APPLICATION_CREDENTIALS, gcloud user credentials or the metadata server.
func FindCredentials(ctx context.Context) (*google.Credentials, error) {
	creds, err := google.FindDefaultCredentials(ctx, CloudPlatformScope)
	if err != nil {
		return nil, fmt.Errorf("google.FindDefaultCredentials: %w", err)
	}
	return creds, nil
}

// ResolveProjectID prefers an explicit project ID and otherwise falls back to the one
// recorded in the service account credentials.
func ResolveProjectID(explicit string, creds *google.Credentials) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	if creds != nil && creds.ProjectID != "" {
		return creds.ProjectID, nil
	}
	return "", fmt.Errorf("PROJECT_ID is not set and the credentials do not name a project")
}
