// Package pipeline turns a bundle of uploaded documents into a validated eligibility
// decision: normalize, assemble, invoke, parse, enforce.
package pipeline

import (
	"context"
	"log/slog"
	"runtime"
	"time"

	"github.com/Lllllllleong/eligibilityreview/internal/models"
	"golang.org/x/sync/errgroup"
)

// DefaultModel is the only model identifier accepted unless configured otherwise.
const DefaultModel = "claude-sonnet-4-5"

// Defaults are the instructions and reference material used when a submission does not
// override them.
type Defaults struct {
	Instructions string
	Reference    Reference
}

// DefaultsSource is the external configuration collaborator that owns default prompt
// and criteria text.
type DefaultsSource interface {
	Defaults(ctx context.Context) (*Defaults, error)
}

// ReviewInput is the per-call context record.
type ReviewInput struct {
	Patient models.PatientContext
	// Instructions and Reference override the defaults when non-empty.
	Instructions string
	Reference    string
	// Model must equal the accepted model when set.
	Model string
}

// Result is an accepted decision plus diagnostic metadata.
type Result struct {
	Decision models.StructuredDecision
	Usage    models.UsageStats
	Model    string
	RawText  string
	Duration time.Duration
}

// Config holds the pipeline's injected settings.
type Config struct {
	Model         string
	Limits        Limits
	InvokeTimeout time.Duration
	// StrictMediaTypes rejects files whose type cannot be resolved instead of
	// sending them as PDFs.
	StrictMediaTypes bool
	// NormalizeWorkers bounds concurrent normalization; zero means GOMAXPROCS.
	NormalizeWorkers int
	Logger           *slog.Logger
}

// Pipeline composes the review stages behind Review. It holds no per-call state and is
// safe for concurrent use.
type Pipeline struct {
	invoker  *Invoker
	defaults DefaultsSource
	cfg      Config
	logger   *slog.Logger
}

// New builds a pipeline. A nil reasoner means the service credentials are missing.
func New(reasoner Reasoner, defaults DefaultsSource, cfg Config) (*Pipeline, error) {
	if reasoner == nil {
		return nil, ValidationError("credentials", "reasoning service credentials are not configured")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.NormalizeWorkers <= 0 {
		cfg.NormalizeWorkers = runtime.GOMAXPROCS(0)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		invoker:  &Invoker{Reasoner: reasoner, Timeout: cfg.InvokeTimeout},
		defaults: defaults,
		cfg:      cfg,
		logger:   logger,
	}, nil
}

// Model returns the accepted model identifier.
func (p *Pipeline) Model() string {
	return p.cfg.Model
}

// Review runs one submission through the pipeline. It is all-or-nothing: either an
// accepted decision or a *PipelineError is returned, never both.
func (p *Pipeline) Review(ctx context.Context, files []models.InputDocument, in ReviewInput) (*Result, error) {
	start := time.Now()
	logCtx := p.logger.With("documentCount", len(files))

	model := in.Model
	if model == "" {
		model = p.cfg.Model
	}
	if model != p.cfg.Model {
		return nil, ValidationError("llmModel", "model %q is not accepted; use %q", model, p.cfg.Model)
	}
	logCtx = logCtx.With("model", model)

	if err := p.validateFiles(files); err != nil {
		logCtx.Warn("Submission rejected before invoking the reasoning service.", "error", err)
		return nil, err
	}

	defaults, err := p.resolveDefaults(ctx, in)
	if err != nil {
		logCtx.Error("Failed to resolve default instructions.", "error", err)
		return nil, err
	}

	blocks, err := p.normalizeAll(ctx, files)
	if err != nil {
		return nil, err
	}

	byCategory := make(map[models.Category][]models.ContentBlock, len(models.Categories))
	var pdfs [][]byte
	if len(defaults.Reference.PDF) > 0 {
		pdfs = append(pdfs, defaults.Reference.PDF)
	}
	for i, doc := range files {
		byCategory[doc.Category] = append(byCategory[doc.Category], blocks[i])
		if blocks[i].Kind == models.BlockDocument {
			pdfs = append(pdfs, doc.Data)
		}
	}

	req := Assemble(AssembleInput{
		Reference:    defaults.Reference,
		Instructions: defaults.Instructions,
		Patient:      in.Patient,
		Documents:    byCategory,
	})

	if err := p.cfg.Limits.Preflight(req, pdfs); err != nil {
		logCtx.Warn("Assembled request rejected before invoking the reasoning service.", "error", err)
		return nil, err
	}

	logCtx.Info("Invoking reasoning service.", "blockCount", len(req.Blocks), "encodedBytes", req.EncodedSize())
	res, err := p.invoker.Invoke(ctx, req, model)
	if err != nil {
		logCtx.Error("Reasoning service call failed.", "error", err, "kind", KindOf(err))
		return nil, err
	}
	logCtx = logCtx.With(
		"inputTokens", res.Usage.InputTokens,
		"outputTokens", res.Usage.OutputTokens,
		"cacheCreationInputTokens", res.Usage.CacheCreationInputTokens,
		"cacheReadInputTokens", res.Usage.CacheReadInputTokens,
		"cacheHit", res.Usage.CacheHit(),
	)

	candidate, err := Parse(res.RawText)
	if err != nil {
		logCtx.Error("Failed to parse reasoning service answer.", "error", err, "responseBody", res.RawText)
		return nil, err
	}

	decision, err := Enforce(candidate)
	if err != nil {
		if pe, ok := AsPipelineError(err); ok {
			pe.RawText = res.RawText
		}
		logCtx.Error("Decision violates the field population contract.", "error", err, "status", candidate.Status)
		return nil, err
	}

	duration := time.Since(start)
	logCtx.Info("Review complete.", "status", decision.Status(), "duration", duration.String())
	return &Result{
		Decision: decision,
		Usage:    res.Usage,
		Model:    model,
		RawText:  res.RawText,
		Duration: duration,
	}, nil
}

func (p *Pipeline) validateFiles(files []models.InputDocument) error {
	for _, doc := range files {
		if !doc.Category.Valid() {
			return ValidationError(doc.Filename, "file %s has unknown category %q", doc.Filename, doc.Category)
		}
	}
	if err := p.cfg.Limits.CheckFiles(files); err != nil {
		return err
	}
	if p.cfg.StrictMediaTypes {
		for _, doc := range files {
			if ResolveMediaType(doc.Filename, doc.DeclaredMediaType).Fallback {
				return ValidationError(doc.Filename, "file %s has an unrecognized media type %q", doc.Filename, doc.DeclaredMediaType)
			}
		}
	}
	return nil
}

func (p *Pipeline) resolveDefaults(ctx context.Context, in ReviewInput) (*Defaults, error) {
	resolved := &Defaults{
		Instructions: in.Instructions,
		Reference:    Reference{Text: in.Reference},
	}
	if resolved.Instructions != "" && resolved.Reference.Text != "" {
		return resolved, nil
	}
	if p.defaults == nil {
		return nil, ValidationError("defaults", "no default instructions are configured and the submission did not provide them")
	}

	d, err := p.defaults.Defaults(ctx)
	if err != nil {
		if _, ok := AsPipelineError(err); ok {
			return nil, err
		}
		return nil, newError(KindTransient, err, "failed to load default instructions")
	}
	if resolved.Instructions == "" {
		resolved.Instructions = d.Instructions
	}
	if resolved.Reference.Text == "" {
		resolved.Reference = d.Reference
	}
	if resolved.Instructions == "" {
		return nil, ValidationError("systemPrompt", "no instructions available for the review")
	}
	if resolved.Reference.Text == "" && len(resolved.Reference.PDF) == 0 {
		return nil, ValidationError("criteriaMatrix", "no reference criteria available for the review")
	}
	return resolved, nil
}

// normalizeAll encodes every file concurrently; blocks[i] belongs to files[i].
func (p *Pipeline) normalizeAll(ctx context.Context, files []models.InputDocument) ([]models.ContentBlock, error) {
	blocks := make([]models.ContentBlock, len(files))
	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(p.cfg.NormalizeWorkers)
	for i := range files {
		eg.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			blocks[i] = Normalize(files[i])
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, classifyFailure(err, p.cfg.Model)
	}
	return blocks, nil
}
