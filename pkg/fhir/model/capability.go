package model

import "time"

// CapabilityStatement is the server conformance document served at /metadata.
type CapabilityStatement struct {
	ResourceTypeName string           `json:"resourceType"`
	Status           string           `json:"status"`
	Date             time.Time        `json:"date"`
	Kind             string           `json:"kind"`
	Software         *CapabilitySoftware `json:"software,omitempty"`
	FHIRVersion      string           `json:"fhirVersion"`
	Format           []string         `json:"format"`
	Rest             []CapabilityRest `json:"rest"`
}

// CapabilitySoftware names the server implementation.
type CapabilitySoftware struct {
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
}

// CapabilityRest describes the REST surface.
type CapabilityRest struct {
	Mode     string               `json:"mode"`
	Resource []CapabilityResource `json:"resource"`
}

// CapabilityResource describes one supported resource type.
type CapabilityResource struct {
	ResourceType string                  `json:"type"`
	Interaction  []CapabilityInteraction `json:"interaction,omitempty"`
	SearchParam  []CapabilitySearchParam `json:"searchParam,omitempty"`
}

// CapabilityInteraction names a supported interaction (read, create, ...).
type CapabilityInteraction struct {
	Code string `json:"code"`
}

// CapabilitySearchParam names a supported search parameter.
type CapabilitySearchParam struct {
	Name      string `json:"name"`
	ParamType string `json:"type"`
}
