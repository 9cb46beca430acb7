// Package registry holds the shared conformance resources: Questionnaires,
// StructureDefinitions and ImplementationGuides. These are the same for
// every caller, live for the lifetime of the process and are served without
// authentication.
package registry

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/gidsopenstandaarden/welldata-fhir/pkg/errors"
	"github.com/gidsopenstandaarden/welldata-fhir/pkg/fhir/model"
)

// Registry is a read-mostly store of static resources, keyed by type and id.
type Registry struct {
	mu        sync.RWMutex
	resources map[string]map[string]model.Resource
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{resources: make(map[string]map[string]model.Resource)}
}

// Add inserts a resource, replacing any previous resource with the same id.
// A resource without an id gets one derived from its canonical url or name.
func (r *Registry) Add(resource model.Resource) {
	id := resource.GetID()
	if id == "" {
		id = deriveID(resource)
		resource.SetID(id)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	typeMap, ok := r.resources[resource.ResourceType()]
	if !ok {
		typeMap = make(map[string]model.Resource)
		r.resources[resource.ResourceType()] = typeMap
	}
	typeMap[id] = resource
}

// Get returns a resource by type and id.
func (r *Registry) Get(resourceType, id string) (model.Resource, error) {
	r.mu.RLock()
	resource, ok := r.resources[resourceType][id]
	r.mu.RUnlock()
	if !ok {
		return nil, errors.NewNotFoundError(fmt.Sprintf("%s/%s not found", resourceType, id), nil)
	}
	return model.CloneResource(resource)
}

// All returns every resource of a type, ordered by id.
func (r *Registry) All(resourceType string) ([]model.Resource, error) {
	return r.Search(resourceType, nil)
}

// Len returns the number of resources stored for a type.
func (r *Registry) Len(resourceType string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.resources[resourceType])
}

// Search filters resources of a type by the conformance search parameters:
// url, name, title, status, type, identifier and _id. Unknown parameters are
// ignored.
func (r *Registry) Search(resourceType string, params map[string][]string) ([]model.Resource, error) {
	r.mu.RLock()
	typeMap := r.resources[resourceType]
	ids := make([]string, 0, len(typeMap))
	for id := range typeMap {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	candidates := make([]model.Resource, 0, len(ids))
	for _, id := range ids {
		candidates = append(candidates, typeMap[id])
	}
	r.mu.RUnlock()

	results := make([]model.Resource, 0, len(candidates))
	for _, resource := range candidates {
		if !matchesConformance(resource, params) {
			continue
		}
		clone, err := model.CloneResource(resource)
		if err != nil {
			return nil, err
		}
		results = append(results, clone)
	}
	return results, nil
}

func matchesConformance(resource model.Resource, params map[string][]string) bool {
	for name, values := range params {
		if strings.HasPrefix(name, "_") && name != "_id" {
			continue
		}
		for _, value := range values {
			if !matchConformanceParam(resource, name, value) {
				return false
			}
		}
	}
	return true
}

func matchConformanceParam(resource model.Resource, name, value string) bool {
	switch name {
	case "_id":
		return resource.GetID() == value
	case "url":
		return canonicalURL(resource) == value
	case "name":
		return strings.Contains(strings.ToLower(resourceName(resource)), strings.ToLower(value))
	case "title":
		return strings.Contains(strings.ToLower(resourceTitle(resource)), strings.ToLower(value))
	case "status":
		return strings.EqualFold(resourceStatus(resource), value)
	case "type":
		sd, ok := resource.(*model.StructureDefinition)
		return ok && sd.FHIRType == value
	case "identifier":
		q, ok := resource.(*model.Questionnaire)
		if !ok {
			return false
		}
		system, val, scoped := strings.Cut(value, "|")
		for _, ident := range q.Identifier {
			if !scoped && ident.Value == value {
				return true
			}
			if scoped && ident.System == system && (val == "" || ident.Value == val) {
				return true
			}
		}
		return false
	}
	return true
}

func canonicalURL(resource model.Resource) string {
	switch r := resource.(type) {
	case *model.Questionnaire:
		return r.URL
	case *model.StructureDefinition:
		return r.URL
	case *model.ImplementationGuide:
		return r.URL
	}
	return ""
}

func resourceName(resource model.Resource) string {
	switch r := resource.(type) {
	case *model.Questionnaire:
		return r.Name
	case *model.StructureDefinition:
		return r.Name
	case *model.ImplementationGuide:
		return r.Name
	}
	return ""
}

func resourceTitle(resource model.Resource) string {
	switch r := resource.(type) {
	case *model.Questionnaire:
		return r.Title
	case *model.StructureDefinition:
		return r.Title
	case *model.ImplementationGuide:
		return r.Title
	}
	return ""
}

func resourceStatus(resource model.Resource) string {
	switch r := resource.(type) {
	case *model.Questionnaire:
		return r.Status
	case *model.StructureDefinition:
		return r.Status
	case *model.ImplementationGuide:
		return r.Status
	}
	return ""
}

// deriveID builds a stable id from the canonical url's last segment, or the
// resource name when there is no url.
func deriveID(resource model.Resource) string {
	if u := canonicalURL(resource); u != "" {
		if idx := strings.LastIndex(u, "/"); idx >= 0 && idx < len(u)-1 {
			return u[idx+1:]
		}
		return u
	}
	return resourceName(resource)
}
