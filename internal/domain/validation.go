package domain

// ValidationCategory further classifies an Accepted or Rejected outcome.
type ValidationCategory string

const (
	// Accepted categories.
	CategoryMethodBodyOnly ValidationCategory = "method-body-only"
	CategoryMethodBodyPlus ValidationCategory = "method-body-plus"

	// Rejected categories.
	CategorySchemaFieldAdd    ValidationCategory = "schema-change-field-add"
	CategorySchemaFieldRemove ValidationCategory = "schema-change-field-remove"
	CategorySignatureChange   ValidationCategory = "signature-change"
	CategoryIncompatibleOther ValidationCategory = "incompatible-other"
)

// ValidationStatus is the tag of the ValidationOutcome variant.
type ValidationStatus string

const (
	ValidationAccepted  ValidationStatus = "accepted"
	ValidationRejected  ValidationStatus = "rejected"
	ValidationMalformed ValidationStatus = "malformed"
)

// ValidationOutcome is the result of classifying a candidate bytecode
// change. Accepted and Rejected are mutually exclusive and both reference
// the exact artifact that was validated.
type ValidationOutcome struct {
	Status   ValidationStatus   `json:"status"`
	Artifact ArtifactPath       `json:"artifact"`
	Category ValidationCategory `json:"category,omitempty"`

	// Details describes why the change was accepted (e.g. "3 method bodies changed").
	Details string `json:"details,omitempty"`
	// Reason describes why the change was rejected.
	Reason string `json:"reason,omitempty"`
	// Cause describes why a malformed artifact could not be parsed at all.
	Cause string `json:"cause,omitempty"`
}

// Accepted reports whether the validator approved the candidate change.
func (v ValidationOutcome) Accepted() bool { return v.Status == ValidationAccepted }

// NewAccepted builds an Accepted ValidationOutcome.
func NewAccepted(artifact ArtifactPath, category ValidationCategory, details string) ValidationOutcome {
	return ValidationOutcome{Status: ValidationAccepted, Artifact: artifact, Category: category, Details: details}
}

// NewRejected builds a Rejected ValidationOutcome.
func NewRejected(artifact ArtifactPath, category ValidationCategory, reason string) ValidationOutcome {
	return ValidationOutcome{Status: ValidationRejected, Artifact: artifact, Category: category, Reason: reason}
}

// NewMalformed builds a Malformed ValidationOutcome.
func NewMalformed(artifact ArtifactPath, cause string) ValidationOutcome {
	return ValidationOutcome{Status: ValidationMalformed, Artifact: artifact, Cause: cause}
}
