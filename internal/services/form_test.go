package services

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"

	"github.com/Lllllllleong/eligibilityreview/internal/models"
	"github.com/Lllllllleong/eligibilityreview/internal/pipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type formFile struct {
	field, filename, contentType, body string
}

func newFormRequest(t *testing.T, values map[string]string, files []formFile) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range values {
		require.NoError(t, mw.WriteField(k, v))
	}
	for _, f := range files {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="`+f.field+`"; filename="`+f.filename+`"`)
		if f.contentType != "" {
			h.Set("Content-Type", f.contentType)
		}
		part, err := mw.CreatePart(h)
		require.NoError(t, err)
		_, err = part.Write([]byte(f.body))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	r := httptest.NewRequest(http.MethodPost, "/", &buf)
	r.Header.Set("Content-Type", mw.FormDataContentType())
	return r
}

func TestParseReviewForm(t *testing.T) {
	r := newFormRequest(t, map[string]string{
		FieldPatientName:    "  Jane Doe ",
		FieldPatientState:   "CA",
		FieldPatientAge:     " 70",
		FieldSystemPrompt:   "custom prompt",
		FieldModel:          " claude-sonnet-4-5 ",
		FieldSubmissionID:   "sub-1",
		FieldCriteriaMatrix: "",
	}, []formFile{
		{FieldIDProofFiles, "license.jpg", "image/jpeg", "id"},
		{FieldMedicalRecordsFiles, "visit.pdf", "application/pdf", "%PDF"},
		{FieldMedicalRecordsFiles, "notes.txt", "", "notes"},
		{FieldIntakeFiles, "intake.json", "application/json", "{}"},
	})

	job, err := ParseReviewForm(r, 1<<20)
	require.NoError(t, err)

	assert.Equal(t, "sub-1", job.SubmissionID)
	assert.Equal(t, models.PatientContext{Name: "Jane Doe", State: "CA", Age: "70"}, job.Input.Patient)
	assert.Equal(t, "custom prompt", job.Input.Instructions)
	assert.Empty(t, job.Input.Reference)
	assert.Equal(t, "claude-sonnet-4-5", job.Input.Model)

	require.Len(t, job.Files, 4)
	names := make([]string, 0, len(job.Files))
	for _, f := range job.Files {
		names = append(names, f.Filename)
	}
	assert.Equal(t, []string{"intake.json", "visit.pdf", "notes.txt", "license.jpg"}, names)
	assert.Equal(t, models.CategoryIntake, job.Files[0].Category)
	assert.Equal(t, models.CategoryMedicalRecord, job.Files[2].Category)
	assert.Equal(t, models.CategoryIdentityProof, job.Files[3].Category)
	assert.Equal(t, "application/pdf", job.Files[1].DeclaredMediaType)
	assert.Equal(t, []byte("%PDF"), job.Files[1].Data)
}

func TestParseReviewFormIgnoresUnknownSlots(t *testing.T) {
	r := newFormRequest(t, nil, []formFile{{"selfieFiles", "me.png", "image/png", "x"}})
	job, err := ParseReviewForm(r, 1<<20)
	require.NoError(t, err)
	assert.Empty(t, job.Files)
	assert.True(t, job.Input.Patient.IsEmpty())
}

func TestParseReviewFormErrors(t *testing.T) {
	t.Run("not multipart", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("{}"))
		r.Header.Set("Content-Type", "application/json")
		_, err := ParseReviewForm(r, 1<<20)
		assert.Equal(t, pipeline.KindValidation, pipeline.KindOf(err))
	})

	t.Run("body above the limit", func(t *testing.T) {
		r := newFormRequest(t, nil, []formFile{{FieldMedicalRecordsFiles, "big.pdf", "application/pdf", strings.Repeat("a", 4096)}})
		w := httptest.NewRecorder()
		r.Body = http.MaxBytesReader(w, r.Body, 1024)
		_, err := ParseReviewForm(r, 1<<20)
		assert.Equal(t, pipeline.KindPayloadTooLarge, pipeline.KindOf(err))
	})
}
