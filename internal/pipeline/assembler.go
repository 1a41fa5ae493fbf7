package pipeline

import (
	"encoding/base64"
	"strings"

	"github.com/Lllllllleong/eligibilityreview/internal/models"
)

const referenceHeading = "# Reference: Qualification Criteria Matrix\n\n"

// AnchorText follows the cached reference material.
const AnchorText = "Above is the reference qualification criteria guide that you should use as context for reviewing the following files."

// FinalInstruction closes every request. It restates the output contract so that an
// operator-supplied system prompt cannot drift from what the parser accepts.
const FinalInstruction = `Please review the uploaded files (intake form, identity document, and medical records) and return ONLY valid JSON matching the schema below. Do not include markdown code blocks or any text before or after the JSON.

{
  "application_status": "missing_documents | admin_review | provider_review | decline | approved",
  "application_status_reasoning": "string",
  "application_status_confidence": 0-100,
  "warnings": ["string"],
  "qualifying_criteria": ["string"],
  "admin_recommendations": ["string"] or null,
  "admin_patient_followup": "string" or null,
  "provider_recommendations": ["string"] or null,
  "provider_patient_followup": "string" or null,
  "patient_profile": "string",
  "admin_summary": "string",
  "provider_summary": "string" or null,
  "provider_visit_note": "string" or null,
  "analysis": "HTML string"
}

Field population by status:
- missing_documents: admin_recommendations and admin_patient_followup populated; all provider_* fields null; qualifying_criteria empty.
- admin_review: admin_recommendations populated; admin_patient_followup optional; all provider_* fields null.
- provider_review: admin_recommendations = []; admin_patient_followup null; provider_recommendations, provider_summary and provider_visit_note populated; qualifying_criteria non-empty.
- decline: admin_recommendations and admin_patient_followup populated; all provider_* fields null; qualifying_criteria empty.
- approved: admin_recommendations populated; admin_patient_followup null; provider_recommendations, provider_summary and provider_visit_note populated; qualifying_criteria non-empty.`

// Reference is the criteria material placed at the cached front of every request.
// When PDF is set it takes precedence over Text.
type Reference struct {
	Text string
	PDF  []byte
}

// AssembleInput is everything the assembler orders into a request.
type AssembleInput struct {
	Reference    Reference
	Instructions string
	Patient      models.PatientContext
	// Documents holds normalized blocks per category, each in upload order.
	Documents map[models.Category][]models.ContentBlock
}

// Assemble orders blocks deterministically. The order is what makes the reference
// prefix cacheable; blocks are never reordered or deduplicated by content.
func Assemble(in AssembleInput) *models.ReviewRequest {
	blocks := make([]models.ContentBlock, 0, 8)

	blocks = append(blocks, referenceBlock(in.Reference))
	blocks = append(blocks, models.TextBlock(AnchorText))
	blocks = append(blocks, models.TextBlock("# System Instructions\n\n"+in.Instructions))

	if !in.Patient.IsEmpty() {
		blocks = append(blocks, models.TextBlock("# Patient Context\n\n"+patientLines(in.Patient)))
	}

	for _, category := range models.Categories {
		blocks = append(blocks, in.Documents[category]...)
	}

	blocks = append(blocks, models.TextBlock(FinalInstruction))

	return &models.ReviewRequest{
		Blocks:       blocks,
		Instructions: in.Instructions,
		Patient:      in.Patient,
	}
}

func referenceBlock(ref Reference) models.ContentBlock {
	var b models.ContentBlock
	if len(ref.PDF) > 0 {
		b = models.DocumentBlock(base64.StdEncoding.EncodeToString(ref.PDF))
	} else {
		b = models.TextBlock(referenceHeading + ref.Text)
	}
	b.Cache = true
	return b
}

func patientLines(p models.PatientContext) string {
	var lines []string
	if p.Name != "" {
		lines = append(lines, "Patient Name: "+p.Name)
	}
	if p.State != "" {
		lines = append(lines, "State: "+p.State)
	}
	if p.Age != "" {
		lines = append(lines, "Age: "+p.Age)
	}
	return strings.Join(lines, "\n")
}

// CachedPrefixLen returns the number of leading cached blocks, or -1 when a cached block
// appears after a non-cached one.
func CachedPrefixLen(req *models.ReviewRequest) int {
	n := 0
	for n < len(req.Blocks) && req.Blocks[n].Cache {
		n++
	}
	for _, b := range req.Blocks[n:] {
		if b.Cache {
			return -1
		}
	}
	return n
}
