package gcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/Lllllllleong/eligibilityreview/internal/models"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/googleapi"
)

const (
	claudeAnthropicVersion = "vertex-2023-10-16"
	// DefaultMaxTokens bounds the length of the decision answer.
	DefaultMaxTokens = 4096
)

// ClaudeClient calls Anthropic models published in Vertex AI Model Garden through the
// rawPredict endpoint.
type ClaudeClient struct {
	httpClient *http.Client
	baseURL    string
	projectID  string
	region     string
	maxTokens  int
}

// NewClaudeClient creates a client authenticated with creds.
func NewClaudeClient(ctx context.Context, creds *google.Credentials, projectID, region string) (*ClaudeClient, error) {
	if creds == nil {
		return nil, fmt.Errorf("NewClaudeClient: credentials must be provided")
	}
	return NewClaudeClientWithHTTP(oauth2.NewClient(ctx, creds.TokenSource), VertexBaseURL(region), projectID, region)
}

// NewClaudeClientWithHTTP creates a client on top of an already authenticated HTTP client.
func NewClaudeClientWithHTTP(httpClient *http.Client, baseURL, projectID, region string) (*ClaudeClient, error) {
	if projectID == "" || region == "" {
		return nil, fmt.Errorf("NewClaudeClient: projectID and region cannot be empty")
	}
	return &ClaudeClient{
		httpClient: httpClient,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		projectID:  projectID,
		region:     region,
		maxTokens:  DefaultMaxTokens,
	}, nil
}

// VertexBaseURL returns the regional Vertex AI REST root.
func VertexBaseURL(region string) string {
	if region == "global" {
		return "https://aiplatform.googleapis.com/v1"
	}
	return fmt.Sprintf("https://%s-aiplatform.googleapis.com/v1", region)
}

type claudeRequest struct {
	AnthropicVersion string          `json:"anthropic_version"`
	MaxTokens        int             `json:"max_tokens"`
	Messages         []claudeMessage `json:"messages"`
}

type claudeMessage struct {
	Role    string        `json:"role"`
	Content []claudeBlock `json:"content"`
}

type claudeBlock struct {
	Type         string        `json:"type"`
	Text         string        `json:"text,omitempty"`
	Source       *claudeSource `json:"source,omitempty"`
	CacheControl *cacheControl `json:"cache_control,omitempty"`
}

type claudeSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

type cacheControl struct {
	Type string `json:"type"`
}

type claudeResponse struct {
	Model      string `json:"model"`
	StopReason string `json:"stop_reason"`
	Content    []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens              int `json:"input_tokens"`
		OutputTokens             int `json:"output_tokens"`
		CacheCreationInputTokens int `json:"cache_creation_input_tokens"`
		CacheReadInputTokens     int `json:"cache_read_input_tokens"`
	} `json:"usage"`
}

// claudeContent maps canonical blocks one-to-one onto Messages API content blocks.
func claudeContent(req *models.ReviewRequest) []claudeBlock {
	out := make([]claudeBlock, 0, len(req.Blocks))
	for _, b := range req.Blocks {
		var cb claudeBlock
		switch b.Kind {
		case models.BlockImage, models.BlockDocument:
			cb = claudeBlock{
				Type:   string(b.Kind),
				Source: &claudeSource{Type: "base64", MediaType: b.MediaType, Data: b.Data},
			}
		default:
			cb = claudeBlock{Type: "text", Text: b.Text}
		}
		if b.Cache {
			cb.CacheControl = &cacheControl{Type: "ephemeral"}
		}
		out = append(out, cb)
	}
	return out
}

func (c *ClaudeClient) endpoint(model string) string {
	return fmt.Sprintf("%s/projects/%s/locations/%s/publishers/anthropic/models/%s:rawPredict",
		c.baseURL, c.projectID, c.region, model)
}

// Reason sends one Messages API request. HTTP failures are returned as *googleapi.Error.
func (c *ClaudeClient) Reason(ctx context.Context, req *models.ReviewRequest, model string) (*models.ReasoningResult, error) {
	body, err := json.Marshal(claudeRequest{
		AnthropicVersion: claudeAnthropicVersion,
		MaxTokens:        c.maxTokens,
		Messages:         []claudeMessage{{Role: "user", Content: claudeContent(req)}},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal claude request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(model), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build claude request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("claude rawPredict: %w", err)
	}
	defer googleapi.CloseBody(resp)

	if err := googleapi.CheckResponse(resp); err != nil {
		return nil, err
	}

	var out claudeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode claude response: %w", err)
	}

	var text strings.Builder
	for _, block := range out.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	return &models.ReasoningResult{
		RawText:    text.String(),
		Model:      out.Model,
		StopReason: out.StopReason,
		Usage: models.UsageStats{
			InputTokens:              out.Usage.InputTokens,
			OutputTokens:             out.Usage.OutputTokens,
			CacheCreationInputTokens: out.Usage.CacheCreationInputTokens,
			CacheReadInputTokens:     out.Usage.CacheReadInputTokens,
		},
	}, nil
}
