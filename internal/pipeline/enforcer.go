package pipeline

import (
	"strings"

	"github.com/Lllllllleong/eligibilityreview/internal/models"
)

// presence is what the contract demands of one nullable field.
type presence int

const (
	mustBeNull presence = iota
	anyValue
	// mustBeSet: non-null, and non-empty for lists and non-blank for text.
	mustBeSet
	// mustBeEmpty: a non-null list with no entries.
	mustBeEmpty
	// mustBeList: a non-null list, possibly empty.
	mustBeList
)

// fieldContract is one row of the status table.
type fieldContract struct {
	qualifyingCriteria      presence
	adminRecommendations    presence
	adminPatientFollowup    presence
	providerRecommendations presence
	providerPatientFollowup presence
	providerSummary         presence
	providerVisitNote       presence
}

// contractTable is the field population contract keyed by status.
var contractTable = map[models.Status]fieldContract{
	models.StatusMissingDocuments: {
		qualifyingCriteria:      mustBeEmpty,
		adminRecommendations:    mustBeSet,
		adminPatientFollowup:    mustBeSet,
		providerRecommendations: mustBeNull,
		providerPatientFollowup: mustBeNull,
		providerSummary:         mustBeNull,
		providerVisitNote:       mustBeNull,
	},
	models.StatusAdminReview: {
		qualifyingCriteria:      mustBeList,
		adminRecommendations:    mustBeSet,
		adminPatientFollowup:    anyValue,
		providerRecommendations: mustBeNull,
		providerPatientFollowup: mustBeNull,
		providerSummary:         mustBeNull,
		providerVisitNote:       mustBeNull,
	},
	models.StatusProviderReview: {
		qualifyingCriteria:      mustBeSet,
		adminRecommendations:    mustBeEmpty,
		adminPatientFollowup:    mustBeNull,
		providerRecommendations: mustBeList,
		providerPatientFollowup: anyValue,
		providerSummary:         mustBeSet,
		providerVisitNote:       mustBeSet,
	},
	models.StatusDecline: {
		qualifyingCriteria:      mustBeEmpty,
		adminRecommendations:    mustBeSet,
		adminPatientFollowup:    mustBeSet,
		providerRecommendations: mustBeNull,
		providerPatientFollowup: mustBeNull,
		providerSummary:         mustBeNull,
		providerVisitNote:       mustBeNull,
	},
	models.StatusApproved: {
		qualifyingCriteria:      mustBeSet,
		adminRecommendations:    mustBeSet,
		adminPatientFollowup:    mustBeNull,
		providerRecommendations: mustBeList,
		providerPatientFollowup: anyValue,
		providerSummary:         mustBeSet,
		providerVisitNote:       mustBeSet,
	},
}

func listSatisfies(v []string, p presence) bool {
	switch p {
	case mustBeNull:
		return v == nil
	case mustBeSet:
		return len(v) > 0
	case mustBeEmpty:
		return v != nil && len(v) == 0
	case mustBeList:
		return v != nil
	}
	return true
}

func textSatisfies(v *string, p presence) bool {
	switch p {
	case mustBeNull:
		return v == nil
	case mustBeSet:
		return v != nil && strings.TrimSpace(*v) != ""
	}
	return true
}

// Enforce validates a candidate against the field population contract and converts it
// into the decision variant for its status. A violation is reported with every failing
// field; the candidate is never repaired.
func Enforce(c *models.Candidate) (models.StructuredDecision, error) {
	if c == nil {
		return nil, contractViolation(nil, []string{"application_status"}, "no decision to validate")
	}

	contract, ok := contractTable[c.Status]
	if !ok {
		return nil, contractViolation(c, []string{"application_status"}, "unknown application status %q", c.Status)
	}

	var failed []string
	check := func(field string, ok bool) {
		if !ok {
			failed = append(failed, field)
		}
	}

	check("application_status_confidence", c.StatusConfidence != nil && *c.StatusConfidence >= 0 && *c.StatusConfidence <= 100)
	check("warnings", c.Warnings != nil)
	check("analysis", strings.TrimSpace(c.AnalysisHTML) != "")
	check("qualifying_criteria", listSatisfies(c.QualifyingCriteria, contract.qualifyingCriteria))
	check("admin_recommendations", listSatisfies(c.AdminRecommendations, contract.adminRecommendations))
	check("admin_patient_followup", textSatisfies(c.AdminPatientFollowup, contract.adminPatientFollowup))
	check("provider_recommendations", listSatisfies(c.ProviderRecommendations, contract.providerRecommendations))
	check("provider_patient_followup", textSatisfies(c.ProviderPatientFollowup, contract.providerPatientFollowup))
	check("provider_summary", textSatisfies(c.ProviderSummary, contract.providerSummary))
	check("provider_visit_note", textSatisfies(c.ProviderVisitNote, contract.providerVisitNote))

	if len(failed) > 0 {
		return nil, contractViolation(c, failed, "decision for status %q violates the field population contract", c.Status)
	}
	return buildDecision(c), nil
}

// buildDecision assumes c has passed the contract checks.
func buildDecision(c *models.Candidate) models.StructuredDecision {
	base := models.Assessment{
		Reasoning:      c.StatusReasoning,
		Confidence:     *c.StatusConfidence,
		Warnings:       c.Warnings,
		PatientProfile: c.PatientProfile,
		AdminSummary:   c.AdminSummary,
		AnalysisHTML:   c.AnalysisHTML,
	}

	switch c.Status {
	case models.StatusMissingDocuments:
		return models.MissingDocumentsDecision{
			Assessment:           base,
			AdminRecommendations: c.AdminRecommendations,
			PatientFollowup:      *c.AdminPatientFollowup,
		}
	case models.StatusAdminReview:
		return models.AdminReviewDecision{
			Assessment:           base,
			QualifyingCriteria:   c.QualifyingCriteria,
			AdminRecommendations: c.AdminRecommendations,
			PatientFollowup:      c.AdminPatientFollowup,
		}
	case models.StatusProviderReview:
		return models.ProviderReviewDecision{
			Assessment:         base,
			QualifyingCriteria: c.QualifyingCriteria,
			Provider:           providerNotes(c),
		}
	case models.StatusDecline:
		return models.DeclineDecision{
			Assessment:           base,
			AdminRecommendations: c.AdminRecommendations,
			PatientFollowup:      *c.AdminPatientFollowup,
		}
	default:
		return models.ApprovedDecision{
			Assessment:           base,
			QualifyingCriteria:   c.QualifyingCriteria,
			AdminRecommendations: c.AdminRecommendations,
			Provider:             providerNotes(c),
		}
	}
}

func providerNotes(c *models.Candidate) models.ProviderNotes {
	return models.ProviderNotes{
		Recommendations: c.ProviderRecommendations,
		PatientFollowup: c.ProviderPatientFollowup,
		Summary:         *c.ProviderSummary,
		VisitNote:       *c.ProviderVisitNote,
	}
}

func contractViolation(c *models.Candidate, fields []string, format string, args ...any) *PipelineError {
	e := newError(KindContractViolation, nil, format, args...)
	e.Fields = fields
	e.Candidate = c
	return e
}
