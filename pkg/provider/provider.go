// Package provider implements the FHIR CRUD and search operations over
// per-token sessions, with write-through to the user's Solid pod.
package provider

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/gidsopenstandaarden/welldata-fhir/pkg/auth"
	"github.com/gidsopenstandaarden/welldata-fhir/pkg/errors"
	"github.com/gidsopenstandaarden/welldata-fhir/pkg/fhir/model"
	"github.com/gidsopenstandaarden/welldata-fhir/pkg/logger"
	"github.com/gidsopenstandaarden/welldata-fhir/pkg/pod"
	"github.com/gidsopenstandaarden/welldata-fhir/pkg/session"
)

// Provider serves user data resources from the caller's session. Resources
// are cloned at every boundary so callers can never mutate session state
// through a shared pointer.
type Provider struct {
	store *session.Store
	pods  *pod.Client
}

// New creates a Provider backed by the given session store and pod client.
func New(store *session.Store, pods *pod.Client) *Provider {
	return &Provider{store: store, pods: pods}
}

// caller resolves the access token and session for the request context.
func (p *Provider) caller(ctx context.Context) (*auth.AccessToken, *session.Session, error) {
	token, ok := auth.AccessTokenFromContext(ctx)
	if !ok {
		return nil, nil, errors.NewUnauthenticatedError("no access token in request context", nil)
	}
	return token, p.store.GetOrCreate(token.SessionKey()), nil
}

// Read returns a resource by id. A nil version selects the latest version; a
// deleted resource reads as gone rather than not found, also when a specific
// version is asked for.
func (p *Provider) Read(ctx context.Context, resourceType, id string, version *int64) (model.Resource, error) {
	_, sess, err := p.caller(ctx)
	if err != nil {
		return nil, err
	}

	if sess.IsDeleted(resourceType, id) {
		return nil, errors.NewGoneError(fmt.Sprintf("%s/%s has been deleted", resourceType, id), nil)
	}
	resource := sess.Get(resourceType, id, version)
	if resource == nil {
		if version != nil {
			return nil, errors.NewNotFoundError(
				fmt.Sprintf("%s/%s version %d not found", resourceType, id, *version), nil)
		}
		return nil, errors.NewNotFoundError(fmt.Sprintf("%s/%s not found", resourceType, id), nil)
	}
	return model.CloneResource(resource)
}

// Create stores a new resource with a server-assigned id at version 1 and
// writes it through to the pod. The returned resource carries the assigned
// id and version metadata.
func (p *Provider) Create(ctx context.Context, resource model.Resource) (model.Resource, error) {
	token, sess, err := p.caller(ctx)
	if err != nil {
		return nil, err
	}

	stored, err := model.CloneResource(resource)
	if err != nil {
		return nil, errors.NewInternalError("failed to clone resource", err)
	}
	id := strconv.FormatInt(sess.NextID(stored.ResourceType()), 10)
	stored.SetID(id)
	stampMeta(stored, 1)
	sess.Store(stored.ResourceType(), id, 1, stored)
	logger.Debugf("Created %s/%s in session %s", stored.ResourceType(), id, sess.Key())

	p.writeThrough(ctx, token, stored)
	return model.CloneResource(stored)
}

// Update stores a new version of an existing resource. Updating an unknown
// id creates it at version 1 with the client-supplied id; updating a deleted
// id revives it and continues its version history.
func (p *Provider) Update(ctx context.Context, resource model.Resource) (model.Resource, bool, error) {
	token, sess, err := p.caller(ctx)
	if err != nil {
		return nil, false, err
	}
	if resource.GetID() == "" {
		return nil, false, errors.NewInvalidError("update requires a resource id", nil)
	}

	stored, err := model.CloneResource(resource)
	if err != nil {
		return nil, false, errors.NewInternalError("failed to clone resource", err)
	}
	resourceType := stored.ResourceType()
	id := stored.GetID()

	version, existed := sess.StoreNext(resourceType, id, stored, func(version int64) {
		stampMeta(stored, version)
	})
	logger.Debugf("Updated %s/%s to version %d in session %s", resourceType, id, version, sess.Key())

	p.writeThrough(ctx, token, stored)
	clone, err := model.CloneResource(stored)
	if err != nil {
		return nil, false, err
	}
	return clone, !existed, nil
}

// Delete tombstones a resource and removes it from the pod. Deleting an
// unknown id is an error; deleting an already deleted id is not.
func (p *Provider) Delete(ctx context.Context, resourceType, id string) error {
	token, sess, err := p.caller(ctx)
	if err != nil {
		return err
	}

	if sess.IsDeleted(resourceType, id) {
		return nil
	}
	if !sess.Exists(resourceType, id) {
		return errors.NewNotFoundError(fmt.Sprintf("%s/%s not found", resourceType, id), nil)
	}
	sess.Delete(resourceType, id)
	logger.Debugf("Deleted %s/%s from session %s", resourceType, id, sess.Key())

	if err := p.pods.Delete(ctx, token.Subject, token.Raw, resourceType, id); err != nil {
		logger.Warnf("Failed to delete %s/%s from pod: %v", resourceType, id, err)
	}
	return nil
}

// Search returns the latest versions of all resources of the given type that
// match the query parameters. Unknown parameters are ignored. An id filter
// that matches nothing yields an empty result, not an error.
func (p *Provider) Search(ctx context.Context, resourceType string, params map[string][]string) ([]model.Resource, error) {
	_, sess, err := p.caller(ctx)
	if err != nil {
		return nil, err
	}

	candidates := sess.GetAll(resourceType)
	results := make([]model.Resource, 0, len(candidates))
	for _, resource := range candidates {
		match, err := matches(resource, params)
		if err != nil {
			return nil, err
		}
		if !match {
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

// writeThrough saves a resource to the pod. Pod failures are logged and
// swallowed so the in-session write still succeeds; a serialization bug is
// the one case that surfaces as an error in the log at error level.
func (p *Provider) writeThrough(ctx context.Context, token *auth.AccessToken, resource model.Resource) {
	err := p.pods.Save(ctx, token.Subject, token.Raw, resource)
	if err == nil {
		return
	}
	if errors.IsType(err, errors.ErrInternal) {
		logger.Errorf("Failed to serialize %s/%s for pod: %v", resource.ResourceType(), resource.GetID(), err)
		return
	}
	logger.Warnf("Failed to save %s/%s to pod: %v", resource.ResourceType(), resource.GetID(), err)
}

func stampMeta(resource model.Resource, version int64) {
	now := time.Now().UTC()
	meta := resource.GetMeta()
	if meta == nil {
		meta = &model.Meta{}
	}
	meta.VersionID = strconv.FormatInt(version, 10)
	meta.LastUpdated = &now
	resource.SetMeta(meta)
}
