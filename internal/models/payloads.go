package models

// These structs define the JSON payloads exchanged between the review functions,
// the staff tooling that calls them and the hand-off workflow.

// ReviewResponse is the success body of the review functions.
type ReviewResponse struct {
	ReviewID string             `json:"reviewId"`
	Model    string             `json:"model"`
	Decision StructuredDecision `json:"decision"`
	Usage    UsageStats         `json:"usage"`
	CacheHit bool               `json:"cacheHit"`
}

// ErrorResponse is the failure body of the review functions. No decision accompanies it.
type ErrorResponse struct {
	Kind    string   `json:"kind"`
	Message string   `json:"message"`
	Fields  []string `json:"fields,omitempty"`
}

// DefaultsResponse is the output of the defaults function.
type DefaultsResponse struct {
	Prompt   string `json:"prompt"`
	Criteria string `json:"criteria"`
}

// SubmissionManifest is the submission.json object that triggers a bundle review.
// Documents are discovered under <submissionId>/<category>/ next to it.
type SubmissionManifest struct {
	SubmissionID   string         `json:"submissionId"`
	Patient        PatientContext `json:"patient"`
	SystemPrompt   string         `json:"systemPrompt,omitempty"`
	CriteriaMatrix string         `json:"criteriaMatrix,omitempty"`
	Model          string         `json:"model,omitempty"`
}

// HandoffPayload is the argument of the staff routing workflow execution.
type HandoffPayload struct {
	ReviewID     string     `json:"reviewId"`
	SubmissionID string     `json:"submissionId,omitempty"`
	Status       Status     `json:"status"`
	Confidence   int        `json:"confidence"`
	Decision     *Candidate `json:"decision"`
}
