package models

import "encoding/json"

// Status is the terminal classification of an application. It is produced once per review.
type Status string

const (
	StatusMissingDocuments Status = "missing_documents"
	StatusAdminReview      Status = "admin_review"
	StatusProviderReview   Status = "provider_review"
	StatusDecline          Status = "decline"
	StatusApproved         Status = "approved"
)

// Statuses is the closed set of accepted statuses.
var Statuses = []Status{
	StatusMissingDocuments,
	StatusAdminReview,
	StatusProviderReview,
	StatusDecline,
	StatusApproved,
}

// Valid reports whether s belongs to the closed status taxonomy.
func (s Status) Valid() bool {
	for _, known := range Statuses {
		if s == known {
			return true
		}
	}
	return false
}

// Candidate is the flat wire form of a decision as produced by the reasoning service.
// Nullable fields are pointers or slices so that null and absent can be told apart from empty.
type Candidate struct {
	Status                  Status   `json:"application_status"`
	StatusReasoning         string   `json:"application_status_reasoning"`
	StatusConfidence        *int     `json:"application_status_confidence"`
	Warnings                []string `json:"warnings"`
	QualifyingCriteria      []string `json:"qualifying_criteria"`
	AdminRecommendations    []string `json:"admin_recommendations"`
	AdminPatientFollowup    *string  `json:"admin_patient_followup"`
	ProviderRecommendations []string `json:"provider_recommendations"`
	ProviderPatientFollowup *string  `json:"provider_patient_followup"`
	PatientProfile          string   `json:"patient_profile"`
	AdminSummary            string   `json:"admin_summary"`
	ProviderSummary         *string  `json:"provider_summary"`
	ProviderVisitNote       *string  `json:"provider_visit_note"`
	AnalysisHTML            string   `json:"analysis"`
}

// StructuredDecision is a validated decision. The concrete type is selected by the
// status, and each variant only has room for the fields its status allows.
type StructuredDecision interface {
	Status() Status
	// Candidate flattens the decision back to its wire form.
	Candidate() *Candidate
	isStructuredDecision()
}

// Assessment holds the fields every decision carries regardless of status.
type Assessment struct {
	Reasoning      string
	Confidence     int
	Warnings       []string
	PatientProfile string
	AdminSummary   string
	AnalysisHTML   string
}

func (a Assessment) candidate(status Status) *Candidate {
	confidence := a.Confidence
	return &Candidate{
		Status:           status,
		StatusReasoning:  a.Reasoning,
		StatusConfidence: &confidence,
		Warnings:         a.Warnings,
		PatientProfile:   a.PatientProfile,
		AdminSummary:     a.AdminSummary,
		AnalysisHTML:     a.AnalysisHTML,
	}
}

// ProviderNotes is the physician-facing part of decisions routed to a provider.
type ProviderNotes struct {
	Recommendations []string
	PatientFollowup *string
	Summary         string
	VisitNote       string
}

func (p ProviderNotes) fill(c *Candidate) {
	summary, note := p.Summary, p.VisitNote
	c.ProviderRecommendations = p.Recommendations
	c.ProviderPatientFollowup = p.PatientFollowup
	c.ProviderSummary = &summary
	c.ProviderVisitNote = &note
}

// MissingDocumentsDecision asks the patient for more documentation.
type MissingDocumentsDecision struct {
	Assessment
	AdminRecommendations []string
	PatientFollowup      string
}

func (MissingDocumentsDecision) Status() Status { return StatusMissingDocuments }
func (MissingDocumentsDecision) isStructuredDecision() {}

func (d MissingDocumentsDecision) Candidate() *Candidate {
	c := d.Assessment.candidate(StatusMissingDocuments)
	followup := d.PatientFollowup
	c.QualifyingCriteria = []string{}
	c.AdminRecommendations = d.AdminRecommendations
	c.AdminPatientFollowup = &followup
	return c
}

func (d MissingDocumentsDecision) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Candidate())
}

// AdminReviewDecision routes an edge case to a human administrator.
type AdminReviewDecision struct {
	Assessment
	QualifyingCriteria   []string
	AdminRecommendations []string
	PatientFollowup      *string
}

func (AdminReviewDecision) Status() Status { return StatusAdminReview }
func (AdminReviewDecision) isStructuredDecision() {}

func (d AdminReviewDecision) Candidate() *Candidate {
	c := d.Assessment.candidate(StatusAdminReview)
	c.QualifyingCriteria = d.QualifyingCriteria
	c.AdminRecommendations = d.AdminRecommendations
	c.AdminPatientFollowup = d.PatientFollowup
	return c
}

func (d AdminReviewDecision) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Candidate())
}

// ProviderReviewDecision is ready for a physician's clinical determination.
type ProviderReviewDecision struct {
	Assessment
	QualifyingCriteria []string
	Provider           ProviderNotes
}

func (ProviderReviewDecision) Status() Status { return StatusProviderReview }
func (ProviderReviewDecision) isStructuredDecision() {}

func (d ProviderReviewDecision) Candidate() *Candidate {
	c := d.Assessment.candidate(StatusProviderReview)
	c.QualifyingCriteria = d.QualifyingCriteria
	c.AdminRecommendations = []string{}
	d.Provider.fill(c)
	return c
}

func (d ProviderReviewDecision) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Candidate())
}

// DeclineDecision closes an application with no pathway to approval.
type DeclineDecision struct {
	Assessment
	AdminRecommendations []string
	PatientFollowup      string
}

func (DeclineDecision) Status() Status { return StatusDecline }
func (DeclineDecision) isStructuredDecision() {}

func (d DeclineDecision) Candidate() *Candidate {
	c := d.Assessment.candidate(StatusDecline)
	followup := d.PatientFollowup
	c.QualifyingCriteria = []string{}
	c.AdminRecommendations = d.AdminRecommendations
	c.AdminPatientFollowup = &followup
	return c
}

func (d DeclineDecision) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Candidate())
}

// ApprovedDecision is a clear-cut case where the provider signature is a formality.
type ApprovedDecision struct {
	Assessment
	QualifyingCriteria   []string
	AdminRecommendations []string
	Provider             ProviderNotes
}

func (ApprovedDecision) Status() Status { return StatusApproved }
func (ApprovedDecision) isStructuredDecision() {}

func (d ApprovedDecision) Candidate() *Candidate {
	c := d.Assessment.candidate(StatusApproved)
	c.QualifyingCriteria = d.QualifyingCriteria
	c.AdminRecommendations = d.AdminRecommendations
	d.Provider.fill(c)
	return c
}

func (d ApprovedDecision) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Candidate())
}
