package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"slices"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/Lllllllleong/eligibilityreview/internal/gcp"
	"github.com/Lllllllleong/eligibilityreview/internal/models"
	"github.com/Lllllllleong/eligibilityreview/internal/pipeline"
	"golang.org/x/sync/errgroup"
)

const (
	manifestObjectName = "submission.json"
	decisionObjectName = "decision.json"
	errorObjectName    = "error.json"

	maxManifestBytes = 1024 * 1024
	bundleDownloads  = 8
)

// GCSEvent is the payload of a GCS object finalize event.
type GCSEvent struct {
	Bucket string `json:"bucket"`
	Name   string `json:"name"`
}

// BundlePrefix returns the folder of a submission manifest and whether name is one.
func BundlePrefix(name string) (string, bool) {
	if path.Base(name) != manifestObjectName {
		return "", false
	}
	prefix := path.Dir(name)
	if prefix == "." || prefix == "/" {
		return "", false
	}
	return prefix, true
}

// bundleCategory returns the upload slot of an object inside a bundle folder.
func bundleCategory(prefix, name string) (models.Category, bool) {
	rel, ok := strings.CutPrefix(name, prefix+"/")
	if !ok {
		return "", false
	}
	slot, file, ok := strings.Cut(rel, "/")
	if !ok || file == "" {
		return "", false
	}
	c := models.Category(slot)
	return c, c.Valid()
}

type bundleObject struct {
	name        string
	category    models.Category
	size        int64
	contentType string
	created     time.Time
}

// bundleObjects orders the document objects of a bundle by category, then by upload
// time. Objects created at the same instant keep their listing order.
func bundleObjects(prefix string, objects []*storage.ObjectAttrs) []bundleObject {
	byCategory := make(map[models.Category][]bundleObject)
	for _, attrs := range objects {
		if c, ok := bundleCategory(prefix, attrs.Name); ok {
			byCategory[c] = append(byCategory[c], bundleObject{
				name:        attrs.Name,
				category:    c,
				size:        attrs.Size,
				contentType: attrs.ContentType,
				created:     attrs.Created,
			})
		}
	}
	var out []bundleObject
	for _, c := range models.Categories {
		group := byCategory[c]
		slices.SortStableFunc(group, func(a, b bundleObject) int {
			return a.created.Compare(b.created)
		})
		out = append(out, group...)
	}
	return out
}

// NewBundleReviewer creates a ReviewerFunction able to read submission bundles from GCS.
func NewBundleReviewer(ctx context.Context) (*ReviewerFunction, error) {
	f, err := NewReviewer(ctx)
	if err != nil {
		return nil, err
	}
	if f.storageClient == nil {
		f.storageClient, err = storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to create storage client: %w", err)
		}
	}
	return f, nil
}

// ProcessBundle reviews the submission whose manifest triggered e and writes the outcome
// next to it. Permanent failures are written as error.json and are not returned, so the
// event is not redelivered. Retryable failures and failures to read or write the bundle
// are returned and leave no outcome behind.
func (f *ReviewerFunction) ProcessBundle(ctx context.Context, e GCSEvent) error {
	logCtx := slog.With("gcsBucket", e.Bucket, "gcsObject", e.Name)

	prefix, ok := BundlePrefix(e.Name)
	if !ok {
		logCtx.Info("Object is not a submission manifest. Skipping.")
		return nil
	}
	bucket := f.storageClient.Bucket(e.Bucket)

	done, err := outcomeExists(ctx, bucket, prefix)
	if err != nil {
		logCtx.Error("Failed to check for an existing outcome.", "error", err)
		return err
	}
	if done {
		logCtx.Info("Submission already reviewed. Skipping.")
		return nil
	}

	job, err := f.loadBundle(ctx, bucket, prefix, e.Name)
	if err != nil {
		pe, ok := pipeline.AsPipelineError(err)
		if !ok || pe.Kind.Retryable() {
			logCtx.Error("Failed to load submission bundle.", "error", err)
			return err
		}
		logCtx.Warn("Submission bundle rejected.", "kind", pe.Kind, "error", pe)
		return saveErrorOutcome(ctx, logCtx, bucket, prefix, pe)
	}
	logCtx = logCtx.With("submissionId", job.SubmissionID)

	res, reviewErr := f.Review(ctx, job)
	if reviewErr != nil {
		pe, _ := pipeline.AsPipelineError(reviewErr)
		if pe.Kind.Retryable() {
			logCtx.Warn("Submission review failed with a retryable error. Leaving it for redelivery.", "kind", pe.Kind)
			return pe
		}
		return saveErrorOutcome(ctx, logCtx, bucket, prefix, pe)
	}

	body, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("failed to marshal decision: %w", err)
	}
	if err := gcp.SaveToGCSAtomically(ctx, bucket, path.Join(prefix, decisionObjectName), "application/json", string(body)); err != nil {
		logCtx.Error("Failed to save decision.", "error", err)
		return err
	}
	logCtx.Info("Submission reviewed. Decision saved.", "reviewId", res.ReviewID, "status", res.Decision.Status())
	return nil
}

func saveErrorOutcome(ctx context.Context, logCtx *slog.Logger, bucket *storage.BucketHandle, prefix string, pe *pipeline.PipelineError) error {
	body, err := json.Marshal(pe.Response())
	if err != nil {
		return fmt.Errorf("failed to marshal error outcome: %w", err)
	}
	if err := gcp.SaveToGCSAtomically(ctx, bucket, path.Join(prefix, errorObjectName), "application/json", string(body)); err != nil {
		logCtx.Error("Failed to save error outcome.", "error", err)
		return err
	}
	logCtx.Warn("Submission review failed. Outcome saved.", "kind", pe.Kind)
	return nil
}

func outcomeExists(ctx context.Context, bucket *storage.BucketHandle, prefix string) (bool, error) {
	for _, name := range []string{decisionObjectName, errorObjectName} {
		_, err := bucket.Object(path.Join(prefix, name)).Attrs(ctx)
		if err == nil {
			return true, nil
		}
		if !errors.Is(err, storage.ErrObjectNotExist) {
			return false, fmt.Errorf("failed to stat %s: %w", name, err)
		}
	}
	return false, nil
}

func (f *ReviewerFunction) loadBundle(ctx context.Context, bucket *storage.BucketHandle, prefix, manifestName string) (*ReviewJob, error) {
	obj, err := gcp.ReadObject(ctx, bucket, manifestName, maxManifestBytes)
	if errors.Is(err, gcp.ErrObjectTooLarge) {
		return nil, pipeline.ValidationError(manifestObjectName, "submission manifest is larger than %d bytes", maxManifestBytes)
	}
	if err != nil {
		return nil, err
	}
	var manifest models.SubmissionManifest
	if err := json.Unmarshal(obj.Data, &manifest); err != nil {
		return nil, pipeline.ValidationError(manifestObjectName, "submission manifest is not valid JSON: %v", err)
	}
	if manifest.SubmissionID == "" {
		manifest.SubmissionID = path.Base(prefix)
	}

	listed, err := gcp.ListObjects(ctx, bucket, prefix+"/")
	if err != nil {
		return nil, err
	}
	objects := bundleObjects(prefix, listed)

	// Oversized uploads are rejected from their listed size, before any download.
	var total int64
	for _, o := range objects {
		stub := models.InputDocument{Category: o.category, Filename: path.Base(o.name), DeclaredMediaType: o.contentType}
		if err := f.config.Limits.CheckSize(stub, o.size); err != nil {
			return nil, err
		}
		total += o.size
	}
	if err := f.config.Limits.CheckTotal(total); err != nil {
		return nil, err
	}

	// Files larger than the request bound could never be sent, so reading stops there.
	readCap := f.config.Limits.MaxRequestBytes
	files := make([]models.InputDocument, len(objects))
	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(bundleDownloads)
	for i, o := range objects {
		eg.Go(func() error {
			stored, err := gcp.ReadObject(gctx, bucket, o.name, readCap)
			if errors.Is(err, gcp.ErrObjectTooLarge) {
				// The object grew after it was listed.
				return pipeline.PayloadTooLargeError("%s is larger than the %d bytes the reasoning service accepts", path.Base(o.name), readCap)
			}
			if err != nil {
				return err
			}
			files[i] = models.InputDocument{
				Category:          o.category,
				Filename:          path.Base(o.name),
				DeclaredMediaType: stored.ContentType,
				Data:              stored.Data,
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	return &ReviewJob{
		SubmissionID: manifest.SubmissionID,
		Files:        files,
		Input: pipeline.ReviewInput{
			Patient:      manifest.Patient,
			Instructions: manifest.SystemPrompt,
			Reference:    manifest.CriteriaMatrix,
			Model:        manifest.Model,
		},
	}, nil
}
