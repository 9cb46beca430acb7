// Package model defines the FHIR R4 resource types served by the WellData
// server, together with the supporting datatypes, bundle and outcome
// structures, and the clone discipline used across the provider boundary.
package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// Resource type names. Storage keys resources by these strings.
const (
	TypePatient               = "Patient"
	TypeObservation           = "Observation"
	TypeQuestionnaire         = "Questionnaire"
	TypeQuestionnaireResponse = "QuestionnaireResponse"
	TypeStructureDefinition   = "StructureDefinition"
	TypeImplementationGuide   = "ImplementationGuide"
)

// UserDataTypes are the session-scoped resource types. Everything else is
// served from the static registries.
var UserDataTypes = []string{TypePatient, TypeObservation, TypeQuestionnaireResponse}

// StaticTypes are the shared conformance resource types loaded once at startup.
var StaticTypes = []string{TypeQuestionnaire, TypeStructureDefinition, TypeImplementationGuide}

// Resource is the common header shared by every FHIR resource kind.
type Resource interface {
	ResourceType() string
	GetID() string
	SetID(id string)
	GetMeta() *Meta
	SetMeta(m *Meta)
}

// Meta carries the resource metadata sub-structure.
type Meta struct {
	VersionID   string     `json:"versionId,omitempty"`
	LastUpdated *time.Time `json:"lastUpdated,omitempty"`
	Profile     []string   `json:"profile,omitempty"`
}

// Base is embedded by every resource struct and implements the Resource
// header accessors. Type holds the wire-level "resourceType" discriminator.
type Base struct {
	Type string `json:"resourceType"`
	ID   string `json:"id,omitempty"`
	Meta *Meta  `json:"meta,omitempty"`
}

// GetID returns the resource id.
func (b *Base) GetID() string { return b.ID }

// SetID sets the resource id.
func (b *Base) SetID(id string) { b.ID = id }

// GetMeta returns the resource metadata, or nil.
func (b *Base) GetMeta() *Meta { return b.Meta }

// SetMeta sets the resource metadata.
func (b *Base) SetMeta(m *Meta) { b.Meta = m }

// New constructs an empty resource of the named type with the discriminator
// populated. Unknown types return nil.
func New(resourceType string) Resource {
	var r Resource
	switch resourceType {
	case TypePatient:
		r = &Patient{}
	case TypeObservation:
		r = &Observation{}
	case TypeQuestionnaire:
		r = &Questionnaire{}
	case TypeQuestionnaireResponse:
		r = &QuestionnaireResponse{}
	case TypeStructureDefinition:
		r = &StructureDefinition{}
	case TypeImplementationGuide:
		r = &ImplementationGuide{}
	default:
		return nil
	}
	setType(r)
	return r
}

func setType(r Resource) {
	switch v := r.(type) {
	case *Patient:
		v.Type = TypePatient
	case *Observation:
		v.Type = TypeObservation
	case *Questionnaire:
		v.Type = TypeQuestionnaire
	case *QuestionnaireResponse:
		v.Type = TypeQuestionnaireResponse
	case *StructureDefinition:
		v.Type = TypeStructureDefinition
	case *ImplementationGuide:
		v.Type = TypeImplementationGuide
	}
}

// ParseByType unmarshals data as a resource of the named type. A body whose
// resourceType disagrees with the requested type is rejected.
func ParseByType(resourceType string, data []byte) (Resource, error) {
	r := New(resourceType)
	if r == nil {
		return nil, fmt.Errorf("unknown resource type %q", resourceType)
	}

	var header struct {
		Type string `json:"resourceType"`
	}
	if err := json.Unmarshal(data, &header); err != nil {
		return nil, fmt.Errorf("failed to parse resource body: %w", err)
	}
	if header.Type != "" && header.Type != resourceType {
		return nil, fmt.Errorf("resource type %q does not match expected %q", header.Type, resourceType)
	}

	if err := json.Unmarshal(data, r); err != nil {
		return nil, fmt.Errorf("failed to parse %s body: %w", resourceType, err)
	}
	setType(r)
	return r, nil
}

// Clone returns a deep copy of the resource via a JSON round-trip. Mutating
// the copy never affects the original.
func Clone[T Resource](src T) (T, error) {
	var dst T
	data, err := json.Marshal(src)
	if err != nil {
		return dst, fmt.Errorf("failed to clone %s: %w", src.ResourceType(), err)
	}
	if err := json.Unmarshal(data, &dst); err != nil {
		return dst, fmt.Errorf("failed to clone %s: %w", src.ResourceType(), err)
	}
	return dst, nil
}

// CloneResource deep-copies a resource held behind the interface.
func CloneResource(src Resource) (Resource, error) {
	dst := New(src.ResourceType())
	data, err := json.Marshal(src)
	if err != nil {
		return nil, fmt.Errorf("failed to clone %s: %w", src.ResourceType(), err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return nil, fmt.Errorf("failed to clone %s: %w", src.ResourceType(), err)
	}
	return dst, nil
}

// ToJSON serializes a resource to its wire representation.
func ToJSON(r Resource) ([]byte, error) {
	setType(r)
	return json.Marshal(r)
}
