package pipeline

import (
	"encoding/base64"
	"fmt"
	"mime"
	"path"
	"strings"
	"unicode/utf8"

	"github.com/Lllllllleong/eligibilityreview/internal/models"
)

// declaredTypes maps recognized declared media types to their canonical form.
var declaredTypes = map[string]string{
	"image/jpeg":      models.MediaTypeJPEG,
	"image/jpg":       models.MediaTypeJPEG,
	"image/png":       models.MediaTypePNG,
	"image/gif":       models.MediaTypeGIF,
	"image/webp":      models.MediaTypeWEBP,
	"application/pdf": models.MediaTypePDF,
}

// extensionTypes is the fixed extension fallback table.
var extensionTypes = map[string]string{
	"jpg":  models.MediaTypeJPEG,
	"jpeg": models.MediaTypeJPEG,
	"png":  models.MediaTypePNG,
	"gif":  models.MediaTypeGIF,
	"webp": models.MediaTypeWEBP,
	"pdf":  models.MediaTypePDF,
}

var textExtensions = map[string]bool{
	"json": true, "txt": true, "md": true, "markdown": true,
	"csv": true, "xml": true, "html": true, "htm": true,
}

// Resolution records how a media type was chosen.
type Resolution struct {
	MediaType string
	// Fallback is set when neither the declared type nor the extension was recognized.
	Fallback bool
}

// ResolveMediaType picks the media type for an uploaded file. A recognized declared type
// wins over the extension; text-like uploads resolve to text/plain; anything else is
// treated as a PDF.
func ResolveMediaType(filename, declared string) Resolution {
	declared = canonicalDeclared(declared)
	if mt, ok := declaredTypes[declared]; ok {
		return Resolution{MediaType: mt}
	}

	ext := strings.TrimPrefix(strings.ToLower(path.Ext(filename)), ".")
	if mt, ok := extensionTypes[ext]; ok {
		return Resolution{MediaType: mt}
	}

	if isTextDeclared(declared) || textExtensions[ext] {
		return Resolution{MediaType: models.MediaTypeText}
	}
	return Resolution{MediaType: models.MediaTypePDF, Fallback: true}
}

func canonicalDeclared(declared string) string {
	declared = strings.TrimSpace(strings.ToLower(declared))
	if declared == "" {
		return ""
	}
	if mt, _, err := mime.ParseMediaType(declared); err == nil {
		return mt
	}
	return declared
}

func isTextDeclared(mt string) bool {
	switch {
	case strings.HasPrefix(mt, "text/"):
		return true
	case mt == "application/json", mt == "application/xml":
		return true
	case strings.HasSuffix(mt, "+json"), strings.HasSuffix(mt, "+xml"):
		return true
	}
	return false
}

// Normalize maps one uploaded document to exactly one content block. It is pure:
// the same document always yields an identical block.
func Normalize(doc models.InputDocument) models.ContentBlock {
	res := ResolveMediaType(doc.Filename, doc.DeclaredMediaType)
	switch {
	case models.IsImageMediaType(res.MediaType):
		return models.ImageBlock(res.MediaType, base64.StdEncoding.EncodeToString(doc.Data))
	case res.MediaType == models.MediaTypePDF:
		return models.DocumentBlock(base64.StdEncoding.EncodeToString(doc.Data))
	}
	return models.TextBlock(fmt.Sprintf("# %s: %s\n\n%s", doc.Category.Label(), doc.Filename, decodeText(doc.Data)))
}

// decodeText is lossy: invalid UTF-8 sequences become U+FFFD so malformed text never
// blocks a review.
func decodeText(data []byte) string {
	if utf8.Valid(data) {
		return string(data)
	}
	return strings.ToValidUTF8(string(data), "�")
}
