// Package hydrate fills a fresh session with the user's existing health
// data: from the Solid pod when pod integration is enabled, otherwise from
// the bundled development data set.
package hydrate

import (
	"net/http"
	"strconv"

	"github.com/gidsopenstandaarden/welldata-fhir/pkg/auth"
	"github.com/gidsopenstandaarden/welldata-fhir/pkg/fhir/model"
	"github.com/gidsopenstandaarden/welldata-fhir/pkg/logger"
	"github.com/gidsopenstandaarden/welldata-fhir/pkg/pod"
	"github.com/gidsopenstandaarden/welldata-fhir/pkg/session"
	"github.com/gidsopenstandaarden/welldata-fhir/pkg/testdata"
)

// Hydrator sources a session's initial resources.
type Hydrator struct {
	pods *pod.Client
	// devDataPath overrides the embedded development data when set.
	devDataPath string
}

// New creates a Hydrator. devDataPath may be empty.
func New(pods *pod.Client, devDataPath string) *Hydrator {
	return &Hydrator{pods: pods, devDataPath: devDataPath}
}

// Initializer adapts the hydrator to the auth middleware. Hydration runs at
// most once per session, within the first authenticated request. Failures
// leave the session empty but usable; the hydrated flag is set regardless so
// a flapping pod cannot trigger a hydration stampede.
func (h *Hydrator) Initializer() auth.SessionInitializer {
	return func(r *http.Request, sess *session.Session) {
		token, ok := auth.AccessTokenFromContext(r.Context())
		if !ok {
			logger.Warn("Session hydration skipped: no access token in context")
			return
		}
		h.Hydrate(r, token, sess)
	}
}

// Hydrate loads the user's resources into the session and marks it hydrated.
func (h *Hydrator) Hydrate(r *http.Request, token *auth.AccessToken, sess *session.Session) {
	defer sess.SetHydrated(true)

	if h.pods.Enabled() {
		h.hydrateFromPod(r, token, sess)
		return
	}
	h.hydrateFromTestData(sess)
}

func (h *Hydrator) hydrateFromPod(r *http.Request, token *auth.AccessToken, sess *session.Session) {
	logger.Infof("Hydrating session %s from pod", sess.Key())
	h.pods.EnsureContainers(r.Context(), token.Subject, token.Raw)

	total := 0
	for _, resourceType := range model.UserDataTypes {
		resources, err := h.pods.List(r.Context(), token.Subject, token.Raw, resourceType)
		if err != nil {
			logger.Warnf("Failed to load %s resources from pod: %v", resourceType, err)
			continue
		}
		total += storeAll(sess, resources)
	}
	logger.Infof("Hydrated session %s with %d resources from pod", sess.Key(), total)
}

func (h *Hydrator) hydrateFromTestData(sess *session.Session) {
	logger.Infof("Hydrating session %s from development data", sess.Key())

	var (
		resources []model.Resource
		err       error
	)
	if h.devDataPath != "" {
		resources, err = testdata.FromPath(h.devDataPath)
	} else {
		resources, err = testdata.Default()
	}
	if err != nil {
		logger.Warnf("Failed to load development data: %v", err)
		return
	}
	storeAll(sess, resources)
}

// storeAll inserts resources at the version from their metadata, defaulting
// to 1, and keeps the id counters clear of numeric ids already in use.
func storeAll(sess *session.Session, resources []model.Resource) int {
	stored := 0
	for _, resource := range resources {
		id := resource.GetID()
		if id == "" {
			id = strconv.FormatInt(sess.NextID(resource.ResourceType()), 10)
			resource.SetID(id)
		}
		sess.Store(resource.ResourceType(), id, resourceVersion(resource), resource)
		if n, err := strconv.ParseInt(id, 10, 64); err == nil {
			sess.EnsureNextID(resource.ResourceType(), n)
		}
		stored++
	}
	return stored
}

func resourceVersion(resource model.Resource) int64 {
	meta := resource.GetMeta()
	if meta == nil || meta.VersionID == "" {
		return 1
	}
	version, err := strconv.ParseInt(meta.VersionID, 10, 64)
	if err != nil || version < 1 {
		return 1
	}
	return version
}
