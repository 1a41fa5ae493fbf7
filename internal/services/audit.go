package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/storage"
	executions "cloud.google.com/go/workflows/executions/apiv1"
	"github.com/Lllllllleong/eligibilityreview/internal/gcp"
	"github.com/Lllllllleong/eligibilityreview/internal/models"
)

// Recorder persists the diagnostic audit record of a review.
type Recorder interface {
	Record(ctx context.Context, rec *models.ReviewRecord) error
}

// Archiver keeps raw answers that could not be turned into a decision.
type Archiver interface {
	Archive(ctx context.Context, reviewID, rawText string) (uri string, err error)
}

// Handoff passes an accepted decision to downstream staff routing.
type Handoff interface {
	Handoff(ctx context.Context, payload *models.HandoffPayload) (execution string, err error)
}

type firestoreRecorder struct {
	client     *firestore.Client
	collection string
}

func (r *firestoreRecorder) Record(ctx context.Context, rec *models.ReviewRecord) error {
	return gcp.SaveReviewRecord(ctx, r.client, r.collection, rec)
}

type gcsArchiver struct {
	bucket     *storage.BucketHandle
	bucketName string
}

func (a *gcsArchiver) Archive(ctx context.Context, reviewID, rawText string) (string, error) {
	objectName := fmt.Sprintf("raw-responses/%s.txt", reviewID)
	if err := gcp.SaveToGCSAtomically(ctx, a.bucket, objectName, "text/plain; charset=utf-8", rawText); err != nil {
		return "", err
	}
	return fmt.Sprintf("gs://%s/%s", a.bucketName, objectName), nil
}

type workflowHandoff struct {
	client *executions.Client
	target gcp.WorkflowTarget
}

func (h *workflowHandoff) Handoff(ctx context.Context, payload *models.HandoffPayload) (string, error) {
	return gcp.TriggerExecution(ctx, h.client, h.target, payload)
}

// documentHashes fingerprints each document so audit records never hold content.
func documentHashes(files []models.InputDocument) []string {
	hashes := make([]string, 0, len(files))
	for _, doc := range files {
		sum := sha256.Sum256(doc.Data)
		hashes = append(hashes, hex.EncodeToString(sum[:]))
	}
	return hashes
}
