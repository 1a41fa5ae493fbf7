package gcp

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"cloud.google.com/go/vertexai/genai"
	"github.com/Lllllllleong/eligibilityreview/internal/models"
)

// DefaultGeminiModel is the model accepted when the Gemini backend is selected.
const DefaultGeminiModel = "gemini-1.5-pro"

// GeminiClient runs reviews against Gemini models through the Vertex AI SDK.
type GeminiClient struct {
	baseClient *genai.Client
}

// NewGeminiClient creates a new Gemini backend.
func NewGeminiClient(ctx context.Context, projectID, region string) (*GeminiClient, error) {
	if projectID == "" || region == "" {
		return nil, fmt.Errorf("NewGeminiClient: projectID and region cannot be empty")
	}

	baseClient, err := genai.NewClient(ctx, projectID, region)
	if err != nil {
		return nil, fmt.Errorf("genai.NewClient: %w", err)
	}
	return &GeminiClient{baseClient: baseClient}, nil
}

// reviewModel configures a model for a single JSON answer.
func (c *GeminiClient) reviewModel(name string) *genai.GenerativeModel {
	model := c.baseClient.GenerativeModel(name)
	model.GenerationConfig = genai.GenerationConfig{
		ResponseMIMEType: "application/json",
		Temperature:      genai.Ptr[float32](0.0),
		MaxOutputTokens:  genai.Ptr[int32](DefaultMaxTokens),
	}
	// Medical records routinely trip the default filters.
	model.SafetySettings = []*genai.SafetySetting{
		{Category: genai.HarmCategoryHateSpeech, Threshold: genai.HarmBlockNone},
		{Category: genai.HarmCategoryDangerousContent, Threshold: genai.HarmBlockNone},
		{Category: genai.HarmCategorySexuallyExplicit, Threshold: genai.HarmBlockNone},
		{Category: genai.HarmCategoryHarassment, Threshold: genai.HarmBlockNone},
	}
	return model
}

// geminiParts converts canonical blocks into SDK parts, keeping their order.
func geminiParts(req *models.ReviewRequest) ([]genai.Part, error) {
	parts := make([]genai.Part, 0, len(req.Blocks))
	for i, b := range req.Blocks {
		switch b.Kind {
		case models.BlockImage, models.BlockDocument:
			data, err := base64.StdEncoding.DecodeString(b.Data)
			if err != nil {
				return nil, fmt.Errorf("block %d: invalid base64 payload: %w", i, err)
			}
			parts = append(parts, genai.Blob{MIMEType: b.MediaType, Data: data})
		default:
			parts = append(parts, genai.Text(b.Text))
		}
	}
	return parts, nil
}

// Reason sends one GenerateContent call. Gemini has no explicit prompt cache, so the
// cache counters stay zero.
func (c *GeminiClient) Reason(ctx context.Context, req *models.ReviewRequest, model string) (*models.ReasoningResult, error) {
	parts, err := geminiParts(req)
	if err != nil {
		return nil, err
	}

	resp, err := c.reviewModel(model).GenerateContent(ctx, parts...)
	if err != nil {
		return nil, fmt.Errorf("failed to generate content from gemini: %w", err)
	}

	result := &models.ReasoningResult{Model: model, RawText: extractText(resp)}
	if len(resp.Candidates) > 0 {
		result.StopReason = resp.Candidates[0].FinishReason.String()
	}
	if resp.UsageMetadata != nil {
		result.Usage = models.UsageStats{
			InputTokens:  int(resp.UsageMetadata.PromptTokenCount),
			OutputTokens: int(resp.UsageMetadata.CandidatesTokenCount),
		}
	}
	return result, nil
}

// extractText concatenates the text parts of the first candidate.
func extractText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			sb.WriteString(string(txt))
		}
	}
	return sb.String()
}

func (c *GeminiClient) Close() error {
	if c.baseClient != nil {
		return c.baseClient.Close()
	}
	return nil
}
