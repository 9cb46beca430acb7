package server

import (
	"time"

	"github.com/gidsopenstandaarden/welldata-fhir/pkg/fhir/model"
	"github.com/gidsopenstandaarden/welldata-fhir/pkg/versions"
)

var userDataInteractions = []model.CapabilityInteraction{
	{Code: "read"}, {Code: "vread"}, {Code: "create"},
	{Code: "update"}, {Code: "delete"}, {Code: "search-type"},
}

var staticInteractions = []model.CapabilityInteraction{
	{Code: "read"}, {Code: "search-type"},
}

var conformanceSearchParams = []model.CapabilitySearchParam{
	{Name: "_id", ParamType: "token"},
	{Name: "url", ParamType: "uri"},
	{Name: "name", ParamType: "string"},
	{Name: "title", ParamType: "string"},
	{Name: "status", ParamType: "token"},
}

var searchParamsByType = map[string][]model.CapabilitySearchParam{
	model.TypePatient: {
		{Name: "_id", ParamType: "token"},
		{Name: "identifier", ParamType: "token"},
		{Name: "name", ParamType: "string"},
		{Name: "family", ParamType: "string"},
		{Name: "given", ParamType: "string"},
		{Name: "gender", ParamType: "token"},
		{Name: "birthdate", ParamType: "date"},
	},
	model.TypeObservation: {
		{Name: "_id", ParamType: "token"},
		{Name: "subject", ParamType: "reference"},
		{Name: "patient", ParamType: "reference"},
		{Name: "code", ParamType: "token"},
		{Name: "category", ParamType: "token"},
		{Name: "status", ParamType: "token"},
		{Name: "date", ParamType: "date"},
	},
	model.TypeQuestionnaireResponse: {
		{Name: "_id", ParamType: "token"},
		{Name: "subject", ParamType: "reference"},
		{Name: "patient", ParamType: "reference"},
		{Name: "questionnaire", ParamType: "reference"},
		{Name: "status", ParamType: "token"},
		{Name: "author", ParamType: "reference"},
		{Name: "authored", ParamType: "date"},
		{Name: "identifier", ParamType: "token"},
	},
}

// newCapabilityStatement builds the conformance document. The capability
// surface is fixed at compile time, only the date moves.
func newCapabilityStatement() *model.CapabilityStatement {
	resources := make([]model.CapabilityResource, 0, len(model.UserDataTypes)+len(model.StaticTypes))
	for _, resourceType := range model.UserDataTypes {
		resources = append(resources, model.CapabilityResource{
			ResourceType: resourceType,
			Interaction:  userDataInteractions,
			SearchParam:  searchParamsByType[resourceType],
		})
	}
	for _, resourceType := range model.StaticTypes {
		params := conformanceSearchParams
		if resourceType == model.TypeStructureDefinition {
			params = append(append([]model.CapabilitySearchParam{}, params...),
				model.CapabilitySearchParam{Name: "type", ParamType: "token"})
		}
		resources = append(resources, model.CapabilityResource{
			ResourceType: resourceType,
			Interaction:  staticInteractions,
			SearchParam:  params,
		})
	}

	return &model.CapabilityStatement{
		ResourceTypeName: "CapabilityStatement",
		Status:           "active",
		Date:             time.Now().UTC(),
		Kind:             "instance",
		Software: &model.CapabilitySoftware{
			Name:    "welldata-fhir",
			Version: versions.Version,
		},
		FHIRVersion: "4.0.1",
		Format:      []string{"application/fhir+json"},
		Rest: []model.CapabilityRest{
			{Mode: "server", Resource: resources},
		},
	}
}
