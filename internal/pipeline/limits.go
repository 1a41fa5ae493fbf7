package pipeline

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/Lllllllleong/eligibilityreview/internal/models"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

const (
	// DefaultMaxFileSize is the per-file ceiling; intake PDFs are exempt.
	DefaultMaxFileSize int64 = 3 * 1024 * 1024
	// DefaultMaxRequestBytes bounds the encoded payload sent to the reasoning service.
	DefaultMaxRequestBytes int64 = 32 * 1024 * 1024
	// DefaultMaxPDFPages bounds the total PDF pages of one request.
	DefaultMaxPDFPages = 100
)

// Limits are the only resource constraints enforced in-process. All of them are checked
// before any network call.
type Limits struct {
	MaxFileSize     int64
	MaxRequestBytes int64
	MaxPDFPages     int
}

// DefaultLimits returns the limits used when nothing is configured.
func DefaultLimits() Limits {
	return Limits{
		MaxFileSize:     DefaultMaxFileSize,
		MaxRequestBytes: DefaultMaxRequestBytes,
		MaxPDFPages:     DefaultMaxPDFPages,
	}
}

// SizeExempt reports whether doc may exceed the per-file ceiling: only intake documents
// already typed as PDFs are.
func SizeExempt(doc models.InputDocument) bool {
	if doc.Category != models.CategoryIntake {
		return false
	}
	res := ResolveMediaType(doc.Filename, doc.DeclaredMediaType)
	return res.MediaType == models.MediaTypePDF && !res.Fallback
}

// CheckFiles rejects the first document over the per-file ceiling. A file of exactly
// the ceiling is accepted.
func (l Limits) CheckFiles(docs []models.InputDocument) error {
	for _, doc := range docs {
		if err := l.CheckSize(doc, doc.Size()); err != nil {
			return err
		}
	}
	return nil
}

// CheckSize applies the per-file ceiling to doc as if it held size bytes, so stored
// uploads can be rejected before they are downloaded.
func (l Limits) CheckSize(doc models.InputDocument, size int64) error {
	if l.MaxFileSize <= 0 || size <= l.MaxFileSize || SizeExempt(doc) {
		return nil
	}
	return ValidationError(doc.Filename, "File %s exceeds %s limit. Size: %.2fMB",
		doc.Filename, formatMB(l.MaxFileSize), float64(size)/1024/1024)
}

// CheckTotal rejects raw uploads whose combined size already exceeds the request bound.
// Encoding only grows them, so the assembled request could never fit.
func (l Limits) CheckTotal(total int64) error {
	if l.MaxRequestBytes <= 0 || total <= l.MaxRequestBytes {
		return nil
	}
	return PayloadTooLargeError("uploads total %.2fMB, above the %s the reasoning service accepts",
		float64(total)/1024/1024, formatMB(l.MaxRequestBytes))
}

// Preflight checks the assembled request against the reasoning service's own bounds.
// pdfs are the raw bytes of every PDF carried by the request.
func (l Limits) Preflight(req *models.ReviewRequest, pdfs [][]byte) error {
	if l.MaxRequestBytes > 0 {
		if size := req.EncodedSize(); size > l.MaxRequestBytes {
			return newError(KindPayloadTooLarge, nil, "assembled request is %.2fMB, above the %s the reasoning service accepts",
				float64(size)/1024/1024, formatMB(l.MaxRequestBytes))
		}
	}
	if l.MaxPDFPages > 0 {
		pages := 0
		for _, pdf := range pdfs {
			n, err := countPages(pdf)
			if err != nil {
				// Unreadable PDFs are left for the reasoning service to judge.
				continue
			}
			pages += n
		}
		if pages > l.MaxPDFPages {
			return newError(KindPayloadTooLarge, nil, "submission has %d PDF pages, above the %d the reasoning service accepts", pages, l.MaxPDFPages)
		}
	}
	return nil
}

// countPages is swapped in tests.
var countPages = CountPDFPages

var pdfConfig = sync.OnceValue(func() *model.Configuration {
	api.DisableConfigDir()
	cfg := model.NewDefaultConfiguration()
	cfg.ValidationMode = model.ValidationRelaxed
	return cfg
})

// CountPDFPages returns the page count of an in-memory PDF.
func CountPDFPages(data []byte) (n int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pdfcpu panicked while reading PDF: %v", r)
		}
	}()
	return api.PageCount(bytes.NewReader(data), pdfConfig())
}

func formatMB(n int64) string {
	return fmt.Sprintf("%gMB", float64(n)/1024/1024)
}
