package model

import "time"

// Identifier is a business identifier for a resource.
type Identifier struct {
	Use    string `json:"use,omitempty"`
	System string `json:"system,omitempty"`
	Value  string `json:"value,omitempty"`
}

// HumanName is a name of a human, split into parts.
type HumanName struct {
	Use    string   `json:"use,omitempty"`
	Text   string   `json:"text,omitempty"`
	Family string   `json:"family,omitempty"`
	Given  []string `json:"given,omitempty"`
}

// Coding is a reference to a code defined by a terminology system.
type Coding struct {
	System  string `json:"system,omitempty"`
	Code    string `json:"code,omitempty"`
	Display string `json:"display,omitempty"`
}

// CodeableConcept is a concept, possibly coded in one or more systems.
type CodeableConcept struct {
	Coding []Coding `json:"coding,omitempty"`
	Text   string   `json:"text,omitempty"`
}

// Reference points from one resource to another, e.g. "Patient/1".
type Reference struct {
	Reference string `json:"reference,omitempty"`
	Display   string `json:"display,omitempty"`
}

// Quantity is a measured amount.
type Quantity struct {
	Value  *float64 `json:"value,omitempty"`
	Unit   string   `json:"unit,omitempty"`
	System string   `json:"system,omitempty"`
	Code   string   `json:"code,omitempty"`
}

// Period is a time range.
type Period struct {
	Start *DateTime `json:"start,omitempty"`
	End   *DateTime `json:"end,omitempty"`
}

// ContactPoint is a contact detail such as a phone number or email address.
type ContactPoint struct {
	System string `json:"system,omitempty"`
	Value  string `json:"value,omitempty"`
	Use    string `json:"use,omitempty"`
}

// Patient is a person receiving care.
type Patient struct {
	Base
	Identifier []Identifier   `json:"identifier,omitempty"`
	Active     *bool          `json:"active,omitempty"`
	Name       []HumanName    `json:"name,omitempty"`
	Telecom    []ContactPoint `json:"telecom,omitempty"`
	Gender     string         `json:"gender,omitempty"`
	// BirthDate is a FHIR date, "YYYY-MM-DD".
	BirthDate string `json:"birthDate,omitempty"`
}

// ResourceType returns "Patient".
func (*Patient) ResourceType() string { return TypePatient }

// Observation is a measurement or assertion about a patient.
type Observation struct {
	Base
	Identifier        []Identifier      `json:"identifier,omitempty"`
	Status            string            `json:"status,omitempty"`
	Category          []CodeableConcept `json:"category,omitempty"`
	Code              *CodeableConcept  `json:"code,omitempty"`
	Subject           *Reference        `json:"subject,omitempty"`
	EffectiveDateTime *DateTime         `json:"effectiveDateTime,omitempty"`
	EffectivePeriod   *Period           `json:"effectivePeriod,omitempty"`
	Issued            *time.Time        `json:"issued,omitempty"`
	Performer         []Reference       `json:"performer,omitempty"`
	ValueQuantity     *Quantity         `json:"valueQuantity,omitempty"`
	ValueString       string            `json:"valueString,omitempty"`
	Note              []Annotation      `json:"note,omitempty"`
}

// ResourceType returns "Observation".
func (*Observation) ResourceType() string { return TypeObservation }

// Annotation is a text note with optional attribution.
type Annotation struct {
	AuthorString string    `json:"authorString,omitempty"`
	Time         *DateTime `json:"time,omitempty"`
	Text         string    `json:"text,omitempty"`
}

// Questionnaire is a structured set of questions. Questionnaires are shared
// definitions, not user data, and live in the static registry.
type Questionnaire struct {
	Base
	URL         string              `json:"url,omitempty"`
	Identifier  []Identifier        `json:"identifier,omitempty"`
	Version     string              `json:"version,omitempty"`
	Name        string              `json:"name,omitempty"`
	Title       string              `json:"title,omitempty"`
	Status      string              `json:"status,omitempty"`
	Date        string              `json:"date,omitempty"`
	Publisher   string              `json:"publisher,omitempty"`
	Description string              `json:"description,omitempty"`
	Item        []QuestionnaireItem `json:"item,omitempty"`
}

// ResourceType returns "Questionnaire".
func (*Questionnaire) ResourceType() string { return TypeQuestionnaire }

// QuestionnaireItem is a question or group within a Questionnaire.
type QuestionnaireItem struct {
	LinkID   string              `json:"linkId,omitempty"`
	Text     string              `json:"text,omitempty"`
	ItemType string              `json:"type,omitempty"`
	Required *bool               `json:"required,omitempty"`
	Item     []QuestionnaireItem `json:"item,omitempty"`
}

// QuestionnaireResponse is a user's completed or in-progress answers to a
// Questionnaire. Unlike Questionnaire itself this is session-scoped user data.
type QuestionnaireResponse struct {
	Base
	Identifier    *Identifier                 `json:"identifier,omitempty"`
	Questionnaire string                      `json:"questionnaire,omitempty"`
	Status        string                      `json:"status,omitempty"`
	Subject       *Reference                  `json:"subject,omitempty"`
	Authored      *DateTime                   `json:"authored,omitempty"`
	Author        *Reference                  `json:"author,omitempty"`
	Item          []QuestionnaireResponseItem `json:"item,omitempty"`
}

// ResourceType returns "QuestionnaireResponse".
func (*QuestionnaireResponse) ResourceType() string { return TypeQuestionnaireResponse }

// QuestionnaireResponseItem is an answered question or group.
type QuestionnaireResponseItem struct {
	LinkID string                        `json:"linkId,omitempty"`
	Text   string                        `json:"text,omitempty"`
	Answer []QuestionnaireResponseAnswer `json:"answer,omitempty"`
	Item   []QuestionnaireResponseItem   `json:"item,omitempty"`
}

// QuestionnaireResponseAnswer is a single answer value.
type QuestionnaireResponseAnswer struct {
	ValueBoolean *bool    `json:"valueBoolean,omitempty"`
	ValueDecimal *float64 `json:"valueDecimal,omitempty"`
	ValueInteger *int     `json:"valueInteger,omitempty"`
	ValueString  string   `json:"valueString,omitempty"`
	ValueCoding  *Coding  `json:"valueCoding,omitempty"`
}

// StructureDefinition is a conformance profile describing the shape of a
// resource. Served from the static registry.
type StructureDefinition struct {
	Base
	URL            string `json:"url,omitempty"`
	Version        string `json:"version,omitempty"`
	Name           string `json:"name,omitempty"`
	Title          string `json:"title,omitempty"`
	Status         string `json:"status,omitempty"`
	Kind           string `json:"kind,omitempty"`
	Abstract       *bool  `json:"abstract,omitempty"`
	FHIRType       string `json:"type,omitempty"`
	BaseDefinition string `json:"baseDefinition,omitempty"`
	Derivation     string `json:"derivation,omitempty"`
	Description    string `json:"description,omitempty"`
}

// ResourceType returns "StructureDefinition".
func (*StructureDefinition) ResourceType() string { return TypeStructureDefinition }

// ImplementationGuide is the metadata of a packaged implementation guide.
// Served from the static registry.
type ImplementationGuide struct {
	Base
	URL         string `json:"url,omitempty"`
	Version     string `json:"version,omitempty"`
	Name        string `json:"name,omitempty"`
	Title       string `json:"title,omitempty"`
	Status      string `json:"status,omitempty"`
	PackageID   string `json:"packageId,omitempty"`
	Description string `json:"description,omitempty"`
}

// ResourceType returns "ImplementationGuide".
func (*ImplementationGuide) ResourceType() string { return TypeImplementationGuide }
