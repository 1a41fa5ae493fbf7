package models

// BlockKind discriminates the three canonical content block shapes.
type BlockKind string

const (
	BlockImage    BlockKind = "image"
	BlockDocument BlockKind = "document"
	BlockText     BlockKind = "text"
)

// Media types accepted by the reasoning service for binary blocks.
const (
	MediaTypeJPEG = "image/jpeg"
	MediaTypePNG  = "image/png"
	MediaTypeGIF  = "image/gif"
	MediaTypeWEBP = "image/webp"
	MediaTypePDF  = "application/pdf"
	MediaTypeText = "text/plain"
)

// IsImageMediaType reports whether mediaType is one of the four accepted image types.
func IsImageMediaType(mediaType string) bool {
	switch mediaType {
	case MediaTypeJPEG, MediaTypePNG, MediaTypeGIF, MediaTypeWEBP:
		return true
	}
	return false
}

// ContentBlock is the canonical normalized unit sent to the reasoning service.
// Image and Document blocks carry base64 data; Text blocks carry Text.
type ContentBlock struct {
	Kind      BlockKind `json:"kind"`
	MediaType string    `json:"mediaType,omitempty"`
	Data      string    `json:"data,omitempty"`
	Text      string    `json:"text,omitempty"`
	Cache     bool      `json:"cache,omitempty"`
}

// ImageBlock builds an image block from already encoded data.
func ImageBlock(mediaType, base64Data string) ContentBlock {
	return ContentBlock{Kind: BlockImage, MediaType: mediaType, Data: base64Data}
}

// DocumentBlock builds a PDF document block from already encoded data.
func DocumentBlock(base64Data string) ContentBlock {
	return ContentBlock{Kind: BlockDocument, MediaType: MediaTypePDF, Data: base64Data}
}

// TextBlock builds a plain text block.
func TextBlock(body string) ContentBlock {
	return ContentBlock{Kind: BlockText, Text: body}
}

// EncodedSize approximates the bytes this block contributes to the request body.
func (b ContentBlock) EncodedSize() int64 {
	return int64(len(b.Data) + len(b.Text))
}

// ReviewRequest is the ordered payload handed to a reasoning backend.
// Cached blocks always form a contiguous prefix of Blocks.
type ReviewRequest struct {
	Blocks       []ContentBlock
	Instructions string
	Patient      PatientContext
}

// EncodedSize sums EncodedSize over all blocks.
func (r *ReviewRequest) EncodedSize() int64 {
	var total int64
	for _, b := range r.Blocks {
		total += b.EncodedSize()
	}
	return total
}

// UsageStats carries token accounting reported by the reasoning service.
// Fields the service does not report are zero.
type UsageStats struct {
	InputTokens              int `json:"inputTokens"`
	OutputTokens             int `json:"outputTokens"`
	CacheCreationInputTokens int `json:"cacheCreationInputTokens"`
	CacheReadInputTokens     int `json:"cacheReadInputTokens"`
}

// CacheHit reports whether any prompt tokens were served from the service cache.
func (u UsageStats) CacheHit() bool {
	return u.CacheReadInputTokens > 0
}

// ReasoningResult is the raw answer of a single reasoning call.
type ReasoningResult struct {
	RawText    string
	Usage      UsageStats
	Model      string
	StopReason string
}
