package gcp

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	"github.com/Lllllllleong/eligibilityreview/internal/models"
)

// NewFirestoreClient creates and returns a new Firestore client for the given project ID.
func NewFirestoreClient(ctx context.Context, projectID string) (*firestore.Client, error) {
	if projectID == "" {
		return nil, fmt.Errorf("projectID must be provided to create a firestore client")
	}

	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create Firestore client: %w", err)
	}

	return client, nil
}

// SaveReviewRecord stores rec under its review ID so that a repeated write is idempotent.
func SaveReviewRecord(ctx context.Context, client *firestore.Client, collection string, rec *models.ReviewRecord) error {
	if rec.ReviewID == "" {
		return fmt.Errorf("review record has no review ID")
	}
	if _, err := client.Collection(collection).Doc(rec.ReviewID).Set(ctx, rec); err != nil {
		return fmt.Errorf("failed to save review record %s: %w", rec.ReviewID, err)
	}
	return nil
}
