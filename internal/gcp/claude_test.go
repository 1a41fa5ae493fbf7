package gcp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Lllllllleong/eligibilityreview/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/googleapi"
)

func testRequest() *models.ReviewRequest {
	ref := models.TextBlock("# Reference: Qualification Criteria Matrix\n\ncriteria")
	ref.Cache = true
	return &models.ReviewRequest{Blocks: []models.ContentBlock{
		ref,
		models.TextBlock("anchor"),
		models.ImageBlock(models.MediaTypePNG, "aWQ="),
		models.DocumentBlock("cGRm"),
	}}
}

func TestClaudeClientReason(t *testing.T) {
	var got map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/projects/p1/locations/us-east5/publishers/anthropic/models/claude-sonnet-4-5:rawPredict", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"model": "claude-sonnet-4-5",
			"stop_reason": "end_turn",
			"content": [{"type": "text", "text": "{\"application_status\":"}, {"type": "text", "text": "\"approved\"}"}],
			"usage": {"input_tokens": 1500, "output_tokens": 420, "cache_read_input_tokens": 1200}
		}`))
	}))
	defer server.Close()

	client, err := NewClaudeClientWithHTTP(server.Client(), server.URL+"/", "p1", "us-east5")
	require.NoError(t, err)

	res, err := client.Reason(context.Background(), testRequest(), "claude-sonnet-4-5")
	require.NoError(t, err)
	assert.Equal(t, `{"application_status":"approved"}`, res.RawText)
	assert.Equal(t, "end_turn", res.StopReason)
	assert.Equal(t, models.UsageStats{InputTokens: 1500, OutputTokens: 420, CacheReadInputTokens: 1200}, res.Usage)

	assert.Equal(t, "vertex-2023-10-16", got["anthropic_version"])
	assert.Equal(t, float64(DefaultMaxTokens), got["max_tokens"])

	messages := got["messages"].([]any)
	require.Len(t, messages, 1)
	msg := messages[0].(map[string]any)
	assert.Equal(t, "user", msg["role"])

	content := msg["content"].([]any)
	require.Len(t, content, 4)
	first := content[0].(map[string]any)
	assert.Equal(t, "text", first["type"])
	assert.Equal(t, map[string]any{"type": "ephemeral"}, first["cache_control"])
	assert.NotContains(t, content[1].(map[string]any), "cache_control")

	image := content[2].(map[string]any)
	assert.Equal(t, "image", image["type"])
	assert.Equal(t, map[string]any{"type": "base64", "media_type": "image/png", "data": "aWQ="}, image["source"])

	document := content[3].(map[string]any)
	assert.Equal(t, "document", document["type"])
	assert.Equal(t, "application/pdf", document["source"].(map[string]any)["media_type"])
}

func TestClaudeClientHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"code":404,"message":"Publisher Model not found"}}`, http.StatusNotFound)
	}))
	defer server.Close()

	client, err := NewClaudeClientWithHTTP(server.Client(), server.URL, "p1", "us-east5")
	require.NoError(t, err)

	_, err = client.Reason(context.Background(), testRequest(), "claude-sonnet-4-5")
	var gerr *googleapi.Error
	require.True(t, errors.As(err, &gerr))
	assert.Equal(t, http.StatusNotFound, gerr.Code)
}

func TestNewClaudeClientValidation(t *testing.T) {
	_, err := NewClaudeClientWithHTTP(http.DefaultClient, "http://x", "", "us-east5")
	assert.Error(t, err)
	_, err = NewClaudeClient(context.Background(), nil, "p", "r")
	assert.Error(t, err)
}

func TestVertexBaseURL(t *testing.T) {
	assert.Equal(t, "https://us-east5-aiplatform.googleapis.com/v1", VertexBaseURL("us-east5"))
	assert.Equal(t, "https://aiplatform.googleapis.com/v1", VertexBaseURL("global"))
}

func TestResolveProjectID(t *testing.T) {
	id, err := ResolveProjectID("explicit", &google.Credentials{ProjectID: "from-creds"})
	require.NoError(t, err)
	assert.Equal(t, "explicit", id)

	id, err = ResolveProjectID("", &google.Credentials{ProjectID: "from-creds"})
	require.NoError(t, err)
	assert.Equal(t, "from-creds", id)

	_, err = ResolveProjectID("", nil)
	assert.Error(t, err)
}

func TestGeminiParts(t *testing.T) {
	parts, err := geminiParts(testRequest())
	require.NoError(t, err)
	require.Len(t, parts, 4)
	assert.Contains(t, parts[0], "criteria")

	_, err = geminiParts(&models.ReviewRequest{Blocks: []models.ContentBlock{models.DocumentBlock("not base64!")}})
	assert.Error(t, err)
}

func TestWorkflowTargetParent(t *testing.T) {
	target := WorkflowTarget{ProjectID: "p1", Location: "us-central1", WorkflowID: "staff-routing"}
	assert.Equal(t, "projects/p1/locations/us-central1/workflows/staff-routing", target.Parent())
}
