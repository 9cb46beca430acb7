package server

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/gidsopenstandaarden/welldata-fhir/pkg/errors"
	"github.com/gidsopenstandaarden/welldata-fhir/pkg/fhir/model"
	"github.com/gidsopenstandaarden/welldata-fhir/pkg/logger"
)

const fhirContentType = "application/fhir+json"

// maxBodySize caps request bodies at 4 MiB. FHIR resources in this service
// are small; anything larger is a client error.
const maxBodySize = 4 << 20

// fhirRouter builds the /fhir subtree. Everything passes through the auth
// middleware, which skips the public conformance endpoints itself.
func fhirRouter(deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(deps.Auth.Handler)

	r.Get("/metadata", handleMetadata)

	for _, resourceType := range model.UserDataTypes {
		r.Route("/"+resourceType, userDataRoutes(deps, resourceType))
	}
	for _, resourceType := range model.StaticTypes {
		r.Route("/"+resourceType, staticRoutes(deps, resourceType))
	}
	return r
}

func userDataRoutes(deps Deps, resourceType string) func(chi.Router) {
	return func(r chi.Router) {
		r.Get("/", handleSearch(deps, resourceType))
		r.Post("/", handleCreate(deps, resourceType))
		r.Get("/{id}", handleRead(deps, resourceType))
		r.Put("/{id}", handleUpdate(deps, resourceType))
		r.Delete("/{id}", handleDelete(deps, resourceType))
		r.Get("/{id}/_history/{vid}", handleVRead(deps, resourceType))
	}
}

func staticRoutes(deps Deps, resourceType string) func(chi.Router) {
	return func(r chi.Router) {
		r.Get("/", handleStaticSearch(deps, resourceType))
		r.Get("/{id}", handleStaticRead(deps, resourceType))
	}
}

func handleRead(deps Deps, resourceType string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resource, err := deps.Provider.Read(r.Context(), resourceType, chi.URLParam(r, "id"), nil)
		if err != nil {
			writeError(w, err)
			return
		}
		writeResource(w, http.StatusOK, resource)
	}
}

func handleVRead(deps Deps, resourceType string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		version, err := strconv.ParseInt(chi.URLParam(r, "vid"), 10, 64)
		if err != nil {
			writeError(w, errors.NewInvalidError("version id must be an integer", err))
			return
		}
		resource, err := deps.Provider.Read(r.Context(), resourceType, chi.URLParam(r, "id"), &version)
		if err != nil {
			writeError(w, err)
			return
		}
		writeResource(w, http.StatusOK, resource)
	}
}

func handleCreate(deps Deps, resourceType string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resource, err := readBody(r, resourceType)
		if err != nil {
			writeError(w, err)
			return
		}
		created, err := deps.Provider.Create(r.Context(), resource)
		if err != nil {
			writeError(w, err)
			return
		}
		w.Header().Set("Location", versionLocation(requestBaseURL(r), created))
		writeResource(w, http.StatusCreated, created)
	}
}

func handleUpdate(deps Deps, resourceType string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resource, err := readBody(r, resourceType)
		if err != nil {
			writeError(w, err)
			return
		}
		id := chi.URLParam(r, "id")
		if resource.GetID() == "" {
			resource.SetID(id)
		} else if resource.GetID() != id {
			writeError(w, errors.NewInvalidError("resource id does not match request path", nil))
			return
		}

		updated, created, err := deps.Provider.Update(r.Context(), resource)
		if err != nil {
			writeError(w, err)
			return
		}
		status := http.StatusOK
		if created {
			status = http.StatusCreated
			w.Header().Set("Location", versionLocation(requestBaseURL(r), updated))
		}
		writeResource(w, status, updated)
	}
}

func handleDelete(deps Deps, resourceType string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := deps.Provider.Delete(r.Context(), resourceType, chi.URLParam(r, "id")); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func handleSearch(deps Deps, resourceType string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		results, err := deps.Provider.Search(r.Context(), resourceType, r.URL.Query())
		if err != nil {
			writeError(w, err)
			return
		}
		writeResource(w, http.StatusOK, model.NewSearchSet(requestBaseURL(r), results))
	}
}

func handleStaticRead(deps Deps, resourceType string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resource, err := deps.Registry.Get(resourceType, chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeResource(w, http.StatusOK, resource)
	}
}

func handleStaticSearch(deps Deps, resourceType string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		results, err := deps.Registry.Search(resourceType, r.URL.Query())
		if err != nil {
			writeError(w, err)
			return
		}
		writeResource(w, http.StatusOK, model.NewSearchSet(requestBaseURL(r), results))
	}
}

func handleMetadata(w http.ResponseWriter, r *http.Request) {
	writeResource(w, http.StatusOK, newCapabilityStatement())
}

// readBody parses a FHIR JSON body of the expected resource type.
func readBody(r *http.Request, resourceType string) (model.Resource, error) {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		return nil, errors.NewInvalidError("failed to read request body", err)
	}
	resource, err := model.ParseByType(resourceType, data)
	if err != nil {
		return nil, errors.NewInvalidError(err.Error(), err)
	}
	return resource, nil
}

func requestBaseURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}
	return scheme + "://" + r.Host + "/fhir"
}

func versionLocation(baseURL string, resource model.Resource) string {
	location := baseURL + "/" + resource.ResourceType() + "/" + resource.GetID()
	if meta := resource.GetMeta(); meta != nil && meta.VersionID != "" {
		location += "/_history/" + meta.VersionID
	}
	return location
}

func writeResource(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", fhirContentType)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Errorf("Failed to write response: %v", err)
	}
}

// writeError maps the error taxonomy onto HTTP status codes and FHIR issue
// codes, responding with an OperationOutcome.
func writeError(w http.ResponseWriter, err error) {
	status := errors.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		logger.Errorf("Request failed: %v", err)
	} else {
		logger.Debugf("Request failed: %v", err)
	}
	writeResource(w, status, model.NewOperationOutcome(issueCode(err), err.Error()))
}

func issueCode(err error) string {
	switch {
	case errors.IsType(err, errors.ErrUnauthenticated):
		return "security"
	case errors.IsType(err, errors.ErrNotFound):
		return "not-found"
	case errors.IsType(err, errors.ErrGone):
		return "deleted"
	case errors.IsType(err, errors.ErrInvalid):
		return "invalid"
	case errors.IsType(err, errors.ErrUpstream):
		return "transient"
	}
	return "exception"
}
