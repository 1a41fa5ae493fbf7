package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"cloud.google.com/go/storage"
	"github.com/Lllllllleong/eligibilityreview/internal/gcp"
	"github.com/Lllllllleong/eligibilityreview/internal/models"
	"github.com/Lllllllleong/eligibilityreview/internal/pipeline"
	"github.com/google/uuid"
)

// Reasoning backends selectable through REASONING_BACKEND.
const (
	BackendClaude = "claude"
	BackendGemini = "gemini"
)

const (
	outcomeAccepted = "accepted"
	outcomeFailed   = "failed"

	// sideEffectTimeout bounds recording, archiving and hand-off after a review.
	sideEffectTimeout = 15 * time.Second
)

// ReviewerConfig holds all configuration for the review functions.
type ReviewerConfig struct {
	ProjectID        string
	Region           string
	Backend          string
	Model            string
	Limits           pipeline.Limits
	InvokeTimeout    time.Duration
	StrictMediaTypes bool

	ReviewsCollection string
	RawResponseBucket string
	HandoffWorkflowID string
	WorkflowLocation  string

	Defaults DefaultsConfig
}

// loadReviewerConfig loads and validates the environment variables of the review functions.
func loadReviewerConfig() (*ReviewerConfig, error) {
	cfg := &ReviewerConfig{
		ProjectID:         gcp.GetEnv("PROJECT_ID", ""),
		Region:            gcp.GetEnv("VERTEX_AI_REGION", "us-east5"),
		Backend:           gcp.GetEnv("REASONING_BACKEND", BackendClaude),
		Model:             gcp.GetEnv("LLM_MODEL", ""),
		Limits:            pipeline.DefaultLimits(),
		ReviewsCollection: gcp.GetEnv("REVIEWS_COLLECTION", ""),
		RawResponseBucket: gcp.GetEnv("RAW_RESPONSE_BUCKET", ""),
		HandoffWorkflowID: gcp.GetEnv("HANDOFF_WORKFLOW_ID", ""),
		WorkflowLocation:  gcp.GetEnv("WORKFLOW_LOCATION", "us-central1"),
		Defaults:          loadDefaultsConfig(),
	}

	switch cfg.Backend {
	case BackendClaude:
		if cfg.Model == "" {
			cfg.Model = pipeline.DefaultModel
		}
	case BackendGemini:
		if cfg.Model == "" {
			cfg.Model = gcp.DefaultGeminiModel
		}
	default:
		return nil, fmt.Errorf("REASONING_BACKEND must be %q or %q, got %q", BackendClaude, BackendGemini, cfg.Backend)
	}

	var err error
	if cfg.Limits.MaxFileSize, err = envInt64("MAX_FILE_BYTES", pipeline.DefaultMaxFileSize); err != nil {
		return nil, err
	}
	if cfg.Limits.MaxRequestBytes, err = envInt64("MAX_REQUEST_BYTES", pipeline.DefaultMaxRequestBytes); err != nil {
		return nil, err
	}
	pages, err := envInt64("MAX_PDF_PAGES", pipeline.DefaultMaxPDFPages)
	if err != nil {
		return nil, err
	}
	cfg.Limits.MaxPDFPages = int(pages)
	if cfg.InvokeTimeout, err = envDuration("INVOKE_TIMEOUT", 120*time.Second); err != nil {
		return nil, err
	}
	if cfg.StrictMediaTypes, err = envBool("STRICT_MEDIA_TYPES", false); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ReviewJob is one submission ready for review.
type ReviewJob struct {
	SubmissionID string
	Files        []models.InputDocument
	Input        pipeline.ReviewInput
}

// ReviewerFunction holds the dependencies of the review functions.
type ReviewerFunction struct {
	pipeline      *pipeline.Pipeline
	storageClient *storage.Client
	recorder      Recorder
	archiver      Archiver
	handoff       Handoff
	config        ReviewerConfig

	newID func() string
	now   func() time.Time
}

// NewReviewer creates a ReviewerFunction from the environment.
func NewReviewer(ctx context.Context) (*ReviewerFunction, error) {
	config, err := loadReviewerConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	var reasoner pipeline.Reasoner
	creds, credErr := gcp.FindCredentials(ctx)
	projectID, projErr := gcp.ResolveProjectID(config.ProjectID, creds)
	switch {
	case credErr != nil:
		slog.Error("Reasoning service credentials not found.", "error", credErr)
	case projErr != nil:
		slog.Error("Could not determine the Google Cloud project.", "error", projErr)
	case config.Backend == BackendGemini:
		gemini, err := gcp.NewGeminiClient(ctx, projectID, config.Region)
		if err != nil {
			return nil, err
		}
		reasoner = gemini
	default:
		claude, err := gcp.NewClaudeClient(ctx, creds, projectID, config.Region)
		if err != nil {
			return nil, err
		}
		reasoner = claude
	}
	config.ProjectID = projectID

	var storageClient *storage.Client
	if config.Defaults.Bucket != "" || config.RawResponseBucket != "" {
		storageClient, err = storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to create storage client: %w", err)
		}
	}

	defaults, err := NewDefaultsSource(config.Defaults, storageClient)
	if err != nil {
		return nil, fmt.Errorf("failed to set up defaults: %w", err)
	}

	p, err := pipeline.New(reasoner, defaults, pipeline.Config{
		Model:            config.Model,
		Limits:           config.Limits,
		InvokeTimeout:    config.InvokeTimeout,
		StrictMediaTypes: config.StrictMediaTypes,
	})
	if err != nil {
		return nil, err
	}

	f := newReviewerFunction(p, *config)
	f.storageClient = storageClient

	if config.ReviewsCollection != "" && config.ProjectID != "" {
		firestoreClient, err := gcp.NewFirestoreClient(ctx, config.ProjectID)
		if err != nil {
			return nil, err
		}
		f.recorder = &firestoreRecorder{client: firestoreClient, collection: config.ReviewsCollection}
	}
	if config.RawResponseBucket != "" {
		f.archiver = &gcsArchiver{bucket: storageClient.Bucket(config.RawResponseBucket), bucketName: config.RawResponseBucket}
	}
	if config.HandoffWorkflowID != "" && config.ProjectID != "" {
		executionsClient, err := gcp.NewExecutionsClient(ctx)
		if err != nil {
			return nil, err
		}
		f.handoff = &workflowHandoff{
			client: executionsClient,
			target: gcp.WorkflowTarget{ProjectID: config.ProjectID, Location: config.WorkflowLocation, WorkflowID: config.HandoffWorkflowID},
		}
	}

	slog.Info("Reviewer initialized.",
		"backend", config.Backend,
		"model", config.Model,
		"region", config.Region,
		"recording", f.recorder != nil,
		"archiving", f.archiver != nil,
		"handoff", f.handoff != nil,
	)
	return f, nil
}

func newReviewerFunction(p *pipeline.Pipeline, config ReviewerConfig) *ReviewerFunction {
	return &ReviewerFunction{
		pipeline: p,
		config:   config,
		newID:    uuid.NewString,
		now:      time.Now,
	}
}

// MaxRequestBytes bounds an inbound review request body.
func (f *ReviewerFunction) MaxRequestBytes() int64 {
	return f.config.Limits.MaxRequestBytes
}

// Review runs one job through the pipeline and records the outcome. The returned error
// is always a *pipeline.PipelineError.
func (f *ReviewerFunction) Review(ctx context.Context, job *ReviewJob) (*models.ReviewResponse, error) {
	reviewID := f.newID()
	logCtx := slog.With("reviewId", reviewID, "submissionId", job.SubmissionID)
	logCtx.Info("Starting review.", "documentCount", len(job.Files))

	start := f.now()
	rec := &models.ReviewRecord{
		ReviewID:       reviewID,
		SubmissionID:   job.SubmissionID,
		Model:          f.pipeline.Model(),
		DocumentCount:  len(job.Files),
		DocumentHashes: documentHashes(job.Files),
		CreatedAt:      start.UTC(),
	}

	res, err := f.pipeline.Review(ctx, job.Files, job.Input)

	// Side effects outlive a cancelled request so the audit trail stays complete.
	sideCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sideEffectTimeout)
	defer cancel()

	if err != nil {
		pe, ok := pipeline.AsPipelineError(err)
		if !ok {
			pe = &pipeline.PipelineError{Kind: pipeline.KindTransient, Message: "review failed", Err: err}
		}
		rec.Outcome = outcomeFailed
		rec.ErrorKind = string(pe.Kind)
		rec.ErrorDetails = pe.Message
		if pe.Kind == pipeline.KindContractViolation {
			rec.ViolatedFields = pe.Fields
		}
		rec.DurationMillis = f.now().Sub(start).Milliseconds()
		if pe.RawText != "" {
			rec.RawResponseURI = f.archive(sideCtx, logCtx, reviewID, pe.RawText)
		}
		logCtx.Warn("Review failed.", "kind", pe.Kind, "retryable", pe.Kind.Retryable(), "error", pe)
		f.record(sideCtx, logCtx, rec)
		return nil, pe
	}

	candidate := res.Decision.Candidate()
	rec.Outcome = outcomeAccepted
	rec.Status = string(res.Decision.Status())
	if candidate.StatusConfidence != nil {
		rec.StatusConfidence = *candidate.StatusConfidence
	}
	rec.InputTokens = res.Usage.InputTokens
	rec.OutputTokens = res.Usage.OutputTokens
	rec.CacheCreationInputTokens = res.Usage.CacheCreationInputTokens
	rec.CacheReadInputTokens = res.Usage.CacheReadInputTokens
	rec.DurationMillis = res.Duration.Milliseconds()

	if f.handoff != nil {
		payload := &models.HandoffPayload{
			ReviewID:     reviewID,
			SubmissionID: job.SubmissionID,
			Status:       res.Decision.Status(),
			Confidence:   rec.StatusConfidence,
			Decision:     candidate,
		}
		execution, herr := f.handoff.Handoff(sideCtx, payload)
		if herr != nil {
			logCtx.Error("Failed to hand off decision.", "error", herr)
		} else {
			rec.HandoffExecution = execution
			logCtx.Info("Decision handed off.", "execution", execution)
		}
	}
	f.record(sideCtx, logCtx, rec)

	logCtx.Info("Review accepted.", "status", rec.Status, "confidence", rec.StatusConfidence)
	return &models.ReviewResponse{
		ReviewID: reviewID,
		Model:    res.Model,
		Decision: res.Decision,
		Usage:    res.Usage,
		CacheHit: res.Usage.CacheHit(),
	}, nil
}

func (f *ReviewerFunction) record(ctx context.Context, logCtx *slog.Logger, rec *models.ReviewRecord) {
	if f.recorder == nil {
		return
	}
	if err := f.recorder.Record(ctx, rec); err != nil {
		logCtx.Error("Failed to save review record.", "error", err)
	}
}

func (f *ReviewerFunction) archive(ctx context.Context, logCtx *slog.Logger, reviewID, raw string) string {
	if f.archiver == nil {
		return ""
	}
	uri, err := f.archiver.Archive(ctx, reviewID, raw)
	if err != nil {
		logCtx.Error("Failed to archive raw response.", "error", err)
		return ""
	}
	return uri
}
