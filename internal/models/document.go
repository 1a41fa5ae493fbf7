package models

import "time"

// Category is the upload slot a document arrived in. It is never inferred from content.
type Category string

const (
	CategoryIntake        Category = "intake"
	CategoryMedicalRecord Category = "medical_record"
	CategoryIdentityProof Category = "identity_proof"
)

// Categories lists the upload slots in payload order.
var Categories = []Category{CategoryIntake, CategoryMedicalRecord, CategoryIdentityProof}

// Valid reports whether c is one of the three known upload slots.
func (c Category) Valid() bool {
	switch c {
	case CategoryIntake, CategoryMedicalRecord, CategoryIdentityProof:
		return true
	}
	return false
}

// Label is the heading used when a document of this category is inlined as text.
func (c Category) Label() string {
	switch c {
	case CategoryIntake:
		return "Intake Document"
	case CategoryMedicalRecord:
		return "Medical Record"
	case CategoryIdentityProof:
		return "ID Document"
	}
	return "Document"
}

// InputDocument is one uploaded file. It is read-only for the lifetime of a review.
type InputDocument struct {
	Category          Category
	Filename          string
	DeclaredMediaType string
	Data              []byte
}

// Size returns the document size in bytes.
func (d InputDocument) Size() int64 {
	return int64(len(d.Data))
}

// PatientContext is the small free-text record that accompanies a submission.
// Any subset of the fields may be empty.
type PatientContext struct {
	Name  string `json:"name,omitempty" yaml:"name,omitempty"`
	State string `json:"state,omitempty" yaml:"state,omitempty"`
	Age   string `json:"age,omitempty" yaml:"age,omitempty"`
}

// IsEmpty reports whether none of name, state or age is present.
func (p PatientContext) IsEmpty() bool {
	return p.Name == "" && p.State == "" && p.Age == ""
}

// ReviewRecord is the diagnostic audit entry written to Firestore after each review.
// It never carries document content or the decision narrative.
type ReviewRecord struct {
	ReviewID                 string    `firestore:"reviewId"`
	SubmissionID             string    `firestore:"submissionId,omitempty"`
	Model                    string    `firestore:"model"`
	Outcome                  string    `firestore:"outcome"`
	Status                   string    `firestore:"status,omitempty"`
	StatusConfidence         int       `firestore:"statusConfidence,omitempty"`
	ErrorKind                string    `firestore:"errorKind,omitempty"`
	ErrorDetails             string    `firestore:"errorDetails,omitempty"`
	ViolatedFields           []string  `firestore:"violatedFields,omitempty"`
	RawResponseURI           string    `firestore:"rawResponseUri,omitempty"`
	DocumentCount            int       `firestore:"documentCount"`
	DocumentHashes           []string  `firestore:"documentHashes,omitempty"`
	InputTokens              int       `firestore:"inputTokens"`
	OutputTokens             int       `firestore:"outputTokens"`
	CacheCreationInputTokens int       `firestore:"cacheCreationInputTokens"`
	CacheReadInputTokens     int       `firestore:"cacheReadInputTokens"`
	DurationMillis           int64     `firestore:"durationMillis"`
	HandoffExecution         string    `firestore:"handoffExecution,omitempty"`
	CreatedAt                time.Time `firestore:"createdAt"`
}
