package services

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/Lllllllleong/eligibilityreview/internal/gcp"
	"github.com/Lllllllleong/eligibilityreview/internal/models"
	"github.com/Lllllllleong/eligibilityreview/internal/pipeline"
	"gopkg.in/yaml.v3"
)

//go:embed defaults/prompt.md
var builtinPrompt string

//go:embed defaults/criteria.md
var builtinCriteria string

// maxDefaultsObjectBytes caps default prompt and criteria objects read from GCS.
const maxDefaultsObjectBytes = 8 * 1024 * 1024

// StaticDefaults serves a fixed prompt and reference.
type StaticDefaults struct {
	defaults pipeline.Defaults
}

// BuiltinDefaults returns the prompt and criteria compiled into the binary.
func BuiltinDefaults() *StaticDefaults {
	return &StaticDefaults{defaults: pipeline.Defaults{
		Instructions: builtinPrompt,
		Reference:    pipeline.Reference{Text: builtinCriteria},
	}}
}

func (s *StaticDefaults) Defaults(ctx context.Context) (*pipeline.Defaults, error) {
	d := s.defaults
	return &d, nil
}

// defaultsFile is the YAML layout of DEFAULTS_FILE. criteriaPdf is a path relative to
// the YAML file and takes precedence over criteria.
type defaultsFile struct {
	Prompt      string `yaml:"prompt"`
	Criteria    string `yaml:"criteria"`
	CriteriaPDF string `yaml:"criteriaPdf"`
}

// LoadDefaultsFile reads defaults from a YAML file. Fields the file leaves empty keep the
// built-in values; an empty path returns the built-in defaults.
func LoadDefaultsFile(path string) (*StaticDefaults, error) {
	builtin := BuiltinDefaults()
	if path == "" {
		return builtin, nil
	}
	content, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("failed to read defaults file: %w", err)
	}

	var file defaultsFile
	if err := yaml.Unmarshal(content, &file); err != nil {
		return nil, fmt.Errorf("failed to parse defaults file %s: %w", path, err)
	}

	d := builtin.defaults
	if strings.TrimSpace(file.Prompt) != "" {
		d.Instructions = file.Prompt
	}
	if strings.TrimSpace(file.Criteria) != "" {
		d.Reference = pipeline.Reference{Text: file.Criteria}
	}
	if file.CriteriaPDF != "" {
		pdfPath := file.CriteriaPDF
		if !filepath.IsAbs(pdfPath) {
			pdfPath = filepath.Join(filepath.Dir(path), pdfPath)
		}
		pdf, err := os.ReadFile(pdfPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read criteria PDF: %w", err)
		}
		d.Reference = pipeline.Reference{PDF: pdf}
	}
	return &StaticDefaults{defaults: d}, nil
}

// GCSDefaults reads the prompt and criteria from objects in a bucket on every call so
// staff edits apply without a redeploy. Missing objects fall back to Fallback.
type GCSDefaults struct {
	Bucket         *storage.BucketHandle
	PromptObject   string
	CriteriaObject string
	Fallback       pipeline.DefaultsSource
}

func (g *GCSDefaults) Defaults(ctx context.Context) (*pipeline.Defaults, error) {
	var fallback *pipeline.Defaults
	useFallback := func() (*pipeline.Defaults, error) {
		if fallback != nil {
			return fallback, nil
		}
		if g.Fallback == nil {
			return nil, fmt.Errorf("default object missing and no fallback configured")
		}
		d, err := g.Fallback.Defaults(ctx)
		if err != nil {
			return nil, err
		}
		fallback = d
		return d, nil
	}

	out := &pipeline.Defaults{}

	prompt, err := gcp.ReadObject(ctx, g.Bucket, g.PromptObject, maxDefaultsObjectBytes)
	switch {
	case errors.Is(err, storage.ErrObjectNotExist):
		d, ferr := useFallback()
		if ferr != nil {
			return nil, fmt.Errorf("prompt object %s: %w", g.PromptObject, ferr)
		}
		out.Instructions = d.Instructions
	case err != nil:
		return nil, err
	default:
		out.Instructions = string(prompt.Data)
	}

	criteria, err := gcp.ReadObject(ctx, g.Bucket, g.CriteriaObject, maxDefaultsObjectBytes)
	switch {
	case errors.Is(err, storage.ErrObjectNotExist):
		d, ferr := useFallback()
		if ferr != nil {
			return nil, fmt.Errorf("criteria object %s: %w", g.CriteriaObject, ferr)
		}
		out.Reference = d.Reference
	case err != nil:
		return nil, err
	case isPDFObject(criteria):
		out.Reference = pipeline.Reference{PDF: criteria.Data}
	default:
		out.Reference = pipeline.Reference{Text: string(criteria.Data)}
	}
	return out, nil
}

func isPDFObject(obj *gcp.StoredObject) bool {
	res := pipeline.ResolveMediaType(obj.Name, obj.ContentType)
	return res.MediaType == models.MediaTypePDF && !res.Fallback
}

// DefaultsConfig selects where default prompt and criteria come from.
type DefaultsConfig struct {
	File           string
	Bucket         string
	PromptObject   string
	CriteriaObject string
}

func loadDefaultsConfig() DefaultsConfig {
	return DefaultsConfig{
		File:           gcp.GetEnv("DEFAULTS_FILE", ""),
		Bucket:         gcp.GetEnv("DEFAULTS_BUCKET", ""),
		PromptObject:   gcp.GetEnv("DEFAULTS_PROMPT_OBJECT", "prompt.md"),
		CriteriaObject: gcp.GetEnv("DEFAULTS_CRITERIA_OBJECT", "criteria.md"),
	}
}

// NewDefaultsSource layers the configured sources: GCS objects over a YAML file over the
// built-in text. storageClient may be nil when no bucket is configured.
func NewDefaultsSource(cfg DefaultsConfig, storageClient *storage.Client) (pipeline.DefaultsSource, error) {
	base, err := LoadDefaultsFile(cfg.File)
	if err != nil {
		return nil, err
	}
	if cfg.Bucket == "" {
		return base, nil
	}
	if storageClient == nil {
		return nil, fmt.Errorf("DEFAULTS_BUCKET is set but no storage client is available")
	}
	return &GCSDefaults{
		Bucket:         storageClient.Bucket(cfg.Bucket),
		PromptObject:   cfg.PromptObject,
		CriteriaObject: cfg.CriteriaObject,
		Fallback:       base,
	}, nil
}

func defaultsResponse(ctx context.Context, source pipeline.DefaultsSource) (*models.DefaultsResponse, error) {
	d, err := source.Defaults(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}
	// A PDF reference has no editable text form.
	return &models.DefaultsResponse{Prompt: d.Instructions, Criteria: d.Reference.Text}, nil
}

// DefaultsFunction serves the default prompt and criteria without a reasoning backend.
type DefaultsFunction struct {
	source pipeline.DefaultsSource
}

// NewDefaultsFunction creates a DefaultsFunction from the environment.
func NewDefaultsFunction(ctx context.Context) (*DefaultsFunction, error) {
	cfg := loadDefaultsConfig()
	var storageClient *storage.Client
	if cfg.Bucket != "" {
		var err error
		storageClient, err = storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to create storage client: %w", err)
		}
	}
	source, err := NewDefaultsSource(cfg, storageClient)
	if err != nil {
		return nil, err
	}
	return &DefaultsFunction{source: source}, nil
}

// Process returns the current defaults.
func (f *DefaultsFunction) Process(ctx context.Context) (*models.DefaultsResponse, error) {
	return defaultsResponse(ctx, f.source)
}
