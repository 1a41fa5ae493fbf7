package services

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/Lllllllleong/eligibilityreview/internal/models"
	"github.com/Lllllllleong/eligibilityreview/internal/pipeline"
)

// Multipart field names of the review form.
const (
	FieldIntakeFiles         = "intakeFiles"
	FieldMedicalRecordsFiles = "medicalRecordsFiles"
	FieldIDProofFiles        = "idProofFiles"
	FieldPatientName         = "patientName"
	FieldPatientState        = "patientState"
	FieldPatientAge          = "patientAge"
	FieldSystemPrompt        = "systemPrompt"
	FieldCriteriaMatrix      = "criteriaMatrix"
	FieldModel               = "llmModel"
	FieldSubmissionID        = "submissionId"
)

// formFileFields maps upload slots to categories in payload order.
var formFileFields = []struct {
	field    string
	category models.Category
}{
	{FieldIntakeFiles, models.CategoryIntake},
	{FieldMedicalRecordsFiles, models.CategoryMedicalRecord},
	{FieldIDProofFiles, models.CategoryIdentityProof},
}

// ParseReviewForm reads a multipart review submission. Files keep their upload order
// within each slot.
func ParseReviewForm(r *http.Request, maxMemory int64) (*ReviewJob, error) {
	if err := r.ParseMultipartForm(maxMemory); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return nil, pipeline.PayloadTooLargeError("request body exceeds %d bytes", maxErr.Limit)
		}
		return nil, pipeline.ValidationError("form", "could not parse multipart form: %v", err)
	}

	job := &ReviewJob{
		SubmissionID: strings.TrimSpace(r.FormValue(FieldSubmissionID)),
		Input: pipeline.ReviewInput{
			Patient: models.PatientContext{
				Name:  strings.TrimSpace(r.FormValue(FieldPatientName)),
				State: strings.TrimSpace(r.FormValue(FieldPatientState)),
				Age:   strings.TrimSpace(r.FormValue(FieldPatientAge)),
			},
			Instructions: r.FormValue(FieldSystemPrompt),
			Reference:    r.FormValue(FieldCriteriaMatrix),
			Model:        strings.TrimSpace(r.FormValue(FieldModel)),
		},
	}

	for _, slot := range formFileFields {
		for _, fh := range r.MultipartForm.File[slot.field] {
			doc, err := readFormFile(fh, slot.category)
			if err != nil {
				return nil, pipeline.ValidationError(fh.Filename, "could not read uploaded file %s: %v", fh.Filename, err)
			}
			job.Files = append(job.Files, doc)
		}
	}
	return job, nil
}

func readFormFile(fh *multipart.FileHeader, category models.Category) (models.InputDocument, error) {
	file, err := fh.Open()
	if err != nil {
		return models.InputDocument{}, fmt.Errorf("open: %w", err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return models.InputDocument{}, fmt.Errorf("read: %w", err)
	}
	return models.InputDocument{
		Category:          category,
		Filename:          fh.Filename,
		DeclaredMediaType: fh.Header.Get("Content-Type"),
		Data:              data,
	}, nil
}
