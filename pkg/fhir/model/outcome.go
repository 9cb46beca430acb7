package model

// OperationOutcome reports the outcome of a failed operation.
type OperationOutcome struct {
	ResourceTypeName string                  `json:"resourceType"`
	Issue            []OperationOutcomeIssue `json:"issue"`
}

// OperationOutcomeIssue is a single issue within an OperationOutcome.
type OperationOutcomeIssue struct {
	Severity    string `json:"severity"`
	Code        string `json:"code"`
	Diagnostics string `json:"diagnostics,omitempty"`
}

// NewOperationOutcome builds a single-issue error outcome.
func NewOperationOutcome(code, diagnostics string) *OperationOutcome {
	return &OperationOutcome{
		ResourceTypeName: "OperationOutcome",
		Issue: []OperationOutcomeIssue{
			{Severity: "error", Code: code, Diagnostics: diagnostics},
		},
	}
}
