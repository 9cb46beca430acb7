// Package pod implements the HTTP client for the user's Solid pod: an
// LDP-style server that stores FHIR resources as RDF/Turtle documents under
// URLs derived from the user's WebID.
//
// Pod layout:
//
//	<pod>/weare/fhir/Patient/<id>.ttl
//	<pod>/weare/fhir/Observation/<id>.ttl
//	...
package pod

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	rdf2go "github.com/deiu/rdf2go"
	"github.com/sony/gobreaker/v2"

	"github.com/gidsopenstandaarden/welldata-fhir/pkg/errors"
	"github.com/gidsopenstandaarden/welldata-fhir/pkg/fhir/model"
	"github.com/gidsopenstandaarden/welldata-fhir/pkg/logger"
	"github.com/gidsopenstandaarden/welldata-fhir/pkg/rdf"
)

const (
	ldpContains  = "http://www.w3.org/ns/ldp#contains"
	ldpContainer = "http://www.w3.org/ns/ldp#BasicContainer"

	connectTimeout = 30 * time.Second
	maxRetries     = 3
)

// Client talks to a Solid pod. The zero value is not usable; construct with
// NewClient. A disabled client turns every operation into a no-op.
type Client struct {
	enabled       bool
	containerPath string
	httpClient    *http.Client
	breaker       *gobreaker.CircuitBreaker[int]
	onFailure     func()
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client, mainly for tests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithFailureHook registers a callback invoked on every failed pod
// operation.
func WithFailureHook(fn func()) Option {
	return func(c *Client) { c.onFailure = fn }
}

// NewClient creates a pod client. containerPath is the path under the pod
// root where FHIR resources live, e.g. "/weare/fhir".
func NewClient(enabled bool, containerPath string, opts ...Option) *Client {
	c := &Client{
		enabled:       enabled,
		containerPath: containerPath,
		httpClient:    &http.Client{Timeout: connectTimeout},
		breaker: gobreaker.NewCircuitBreaker[int](gobreaker.Settings{
			Name: "solid-pod",
		}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Enabled reports whether pod integration is switched on.
func (c *Client) Enabled() bool { return c.enabled }

// BaseURLFromWebID derives the pod base URL from a WebID such as
// "https://pod-host/profile/card#me".
func BaseURLFromWebID(webID string) (string, error) {
	u, err := url.Parse(webID)
	if err != nil {
		return "", fmt.Errorf("failed to parse WebID %q: %w", webID, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("WebID %q has no scheme or host", webID)
	}
	return u.Scheme + "://" + u.Host, nil
}

func (c *Client) containerURL(base, resourceType string) string {
	return base + c.containerPath + "/" + resourceType + "/"
}

func (c *Client) resourceURL(base, resourceType, id string) string {
	return c.containerURL(base, resourceType) + id + ".ttl"
}

// Save writes a resource to the pod as Turtle. The serialized form is parsed
// back locally first; a parse failure indicates a serialization bug and is
// returned as an internal error rather than corrupting the pod.
func (c *Client) Save(ctx context.Context, subject, accessToken string, resource model.Resource) error {
	if !c.enabled {
		logger.Debug("Solid pod integration disabled, skipping resource save")
		return nil
	}

	base, err := BaseURLFromWebID(subject)
	if err != nil {
		return c.fail(errors.NewUpstreamError("cannot determine pod URL", err))
	}
	resourceURL := c.resourceURL(base, resource.ResourceType(), resource.GetID())
	logger.Debugf("Saving %s/%s to %s", resource.ResourceType(), resource.GetID(), resourceURL)

	turtle, err := rdf.Serialize(resource, resourceURL)
	if err != nil {
		return errors.NewInternalError("failed to serialize resource as Turtle", err)
	}
	if err := rdf.Validate(turtle); err != nil {
		return errors.NewInternalError(
			fmt.Sprintf("invalid Turtle generated for %s/%s", resource.ResourceType(), resource.GetID()), err)
	}

	status, err := c.do(ctx, http.MethodPut, resourceURL, accessToken, strings.NewReader(turtle), map[string]string{
		"Content-Type": "text/turtle",
	})
	if err != nil {
		return c.fail(errors.NewUpstreamError("failed to save resource to pod", err))
	}
	if status < 200 || status >= 300 {
		return c.fail(errors.NewUpstreamError(fmt.Sprintf("failed to save resource to pod: %d", status), nil))
	}
	logger.Debugf("Successfully saved %s to pod", resourceURL)
	return nil
}

// Delete removes a resource from the pod. A 404 counts as success, so the
// operation is idempotent.
func (c *Client) Delete(ctx context.Context, subject, accessToken, resourceType, id string) error {
	if !c.enabled {
		logger.Debug("Solid pod integration disabled, skipping resource delete")
		return nil
	}

	base, err := BaseURLFromWebID(subject)
	if err != nil {
		return c.fail(errors.NewUpstreamError("cannot determine pod URL", err))
	}
	resourceURL := c.resourceURL(base, resourceType, id)
	logger.Debugf("Deleting %s from pod", resourceURL)

	status, err := c.do(ctx, http.MethodDelete, resourceURL, accessToken, nil, nil)
	if err != nil {
		return c.fail(errors.NewUpstreamError("failed to delete resource from pod", err))
	}
	if (status < 200 || status >= 300) && status != http.StatusNotFound {
		return c.fail(errors.NewUpstreamError(fmt.Sprintf("failed to delete resource from pod: %d", status), nil))
	}
	return nil
}

// List loads all resources of a type from the pod: it fetches the LDP
// container, follows every ldp:contains link ending in .ttl and parses each
// document back into a resource. A missing container yields an empty list.
func (c *Client) List(ctx context.Context, subject, accessToken, resourceType string) ([]model.Resource, error) {
	if !c.enabled {
		logger.Debug("Solid pod integration disabled, skipping resource loading")
		return nil, nil
	}

	base, err := BaseURLFromWebID(subject)
	if err != nil {
		return nil, c.fail(errors.NewUpstreamError("cannot determine pod URL", err))
	}
	containerURL := c.containerURL(base, resourceType)
	logger.Debugf("Loading %s resources from %s", resourceType, containerURL)

	urls, err := c.listContainer(ctx, containerURL, accessToken)
	if err != nil {
		return nil, c.fail(err)
	}

	resources := make([]model.Resource, 0, len(urls))
	for _, resourceURL := range urls {
		if !strings.HasSuffix(resourceURL, ".ttl") {
			continue
		}
		resource, err := c.fetchResource(ctx, resourceURL, accessToken, resourceType)
		if err != nil {
			logger.Warnf("Failed to load resource from %s: %v", resourceURL, err)
			continue
		}
		if resource != nil {
			resources = append(resources, resource)
		}
	}
	logger.Debugf("Found %d %s resources in pod", len(resources), resourceType)
	return resources, nil
}

func (c *Client) listContainer(ctx context.Context, containerURL, accessToken string) ([]string, error) {
	body, status, err := c.get(ctx, containerURL, accessToken)
	if err != nil {
		return nil, errors.NewUpstreamError("failed to list container", err)
	}
	switch {
	case status == http.StatusOK:
	case status == http.StatusNotFound:
		logger.Debugf("Container %s does not exist yet", containerURL)
		return nil, nil
	default:
		return nil, errors.NewUpstreamError(fmt.Sprintf("failed to list container %s: %d", containerURL, status), nil)
	}

	g := rdf2go.NewGraph(containerURL)
	if err := g.Parse(strings.NewReader(body), "text/turtle"); err != nil {
		return nil, errors.NewUpstreamError("failed to parse container listing", err)
	}

	var contents []string
	for _, triple := range g.All(nil, rdf2go.NewResource(ldpContains), nil) {
		contents = append(contents, absoluteURL(containerURL, triple.Object.RawValue()))
	}
	return contents, nil
}

// absoluteURL resolves a possibly relative ldp:contains target.
func absoluteURL(base, target string) string {
	baseURL, err := url.Parse(base)
	if err != nil {
		return target
	}
	targetURL, err := url.Parse(target)
	if err != nil {
		return target
	}
	return baseURL.ResolveReference(targetURL).String()
}

func (c *Client) fetchResource(ctx context.Context, resourceURL, accessToken, resourceType string) (model.Resource, error) {
	body, status, err := c.get(ctx, resourceURL, accessToken)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", status)
	}
	return rdf.Parse(body, resourceURL, resourceType)
}

// EnsureContainers creates the container hierarchy required for writes:
// /weare/, the FHIR container and one container per user-data resource type.
func (c *Client) EnsureContainers(ctx context.Context, subject, accessToken string) {
	if !c.enabled {
		return
	}

	base, err := BaseURLFromWebID(subject)
	if err != nil {
		logger.Warnf("Cannot ensure container structure - no WebID available: %v", err)
		return
	}
	logger.Infof("Ensuring pod container structure exists at %s...", base)

	containers := []struct {
		url   string
		title string
	}{
		{base + "/weare/", "WellData Health Data"},
		{base + c.containerPath + "/", "FHIR Resources"},
	}
	for _, resourceType := range model.UserDataTypes {
		containers = append(containers, struct {
			url   string
			title string
		}{c.containerURL(base, resourceType), resourceType + " Resources"})
	}

	for _, container := range containers {
		if err := c.createContainerIfAbsent(ctx, container.url, container.title, accessToken); err != nil {
			logger.Errorf("Failed to ensure container %s: %v", container.url, err)
			return
		}
	}
	logger.Info("Pod container structure ready")
}

func (c *Client) createContainerIfAbsent(ctx context.Context, containerURL, title, accessToken string) error {
	status, err := c.do(ctx, http.MethodHead, containerURL, accessToken, nil, nil)
	if err != nil {
		return err
	}
	if status != http.StatusNotFound {
		return nil
	}

	turtle := fmt.Sprintf("@prefix ldp: <http://www.w3.org/ns/ldp#> .\n"+
		"@prefix dcterms: <http://purl.org/dc/terms/> .\n"+
		"<> a ldp:BasicContainer ;\n"+
		"   dcterms:title %q .\n", title)

	status, err = c.do(ctx, http.MethodPut, containerURL, accessToken, strings.NewReader(turtle), map[string]string{
		"Content-Type": "text/turtle",
		"Link":         "<" + ldpContainer + `>; rel="type"`,
	})
	if err != nil {
		return err
	}
	if status < 200 || status >= 300 {
		return fmt.Errorf("failed to create container %s: %d", containerURL, status)
	}
	logger.Debugf("Created container: %s", containerURL)
	return nil
}

// do issues a request through the circuit breaker, retrying transport
// failures with exponential backoff. Status codes are returned as-is; only
// transport errors count as retryable failures.
func (c *Client) do(ctx context.Context, method, rawURL, accessToken string, body io.Reader, headers map[string]string) (int, error) {
	var payload []byte
	if body != nil {
		var err error
		payload, err = io.ReadAll(body)
		if err != nil {
			return 0, err
		}
	}

	return c.breaker.Execute(func() (int, error) {
		operation := func() (int, error) {
			var reqBody io.Reader
			if payload != nil {
				reqBody = strings.NewReader(string(payload))
			}
			req, err := http.NewRequestWithContext(ctx, method, rawURL, reqBody)
			if err != nil {
				return 0, backoff.Permanent(err)
			}
			req.Header.Set("Authorization", "Bearer "+accessToken)
			for k, v := range headers {
				req.Header.Set(k, v)
			}

			resp, err := c.httpClient.Do(req)
			if err != nil {
				if ctx.Err() != nil {
					return 0, backoff.Permanent(err)
				}
				return 0, err
			}
			defer resp.Body.Close()
			_, _ = io.Copy(io.Discard, resp.Body)
			return resp.StatusCode, nil
		}
		return backoff.Retry(ctx, operation,
			backoff.WithBackOff(backoff.NewExponentialBackOff()),
			backoff.WithMaxTries(maxRetries))
	})
}

// get issues a Turtle GET through the circuit breaker and returns the body.
func (c *Client) get(ctx context.Context, rawURL, accessToken string) (string, int, error) {
	var body string
	status, err := c.breaker.Execute(func() (int, error) {
		operation := func() (int, error) {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
			if err != nil {
				return 0, backoff.Permanent(err)
			}
			req.Header.Set("Accept", "text/turtle")
			req.Header.Set("Authorization", "Bearer "+accessToken)

			resp, err := c.httpClient.Do(req)
			if err != nil {
				if ctx.Err() != nil {
					return 0, backoff.Permanent(err)
				}
				return 0, err
			}
			defer resp.Body.Close()
			data, err := io.ReadAll(resp.Body)
			if err != nil {
				return 0, err
			}
			body = string(data)
			return resp.StatusCode, nil
		}
		return backoff.Retry(ctx, operation,
			backoff.WithBackOff(backoff.NewExponentialBackOff()),
			backoff.WithMaxTries(maxRetries))
	})
	if err != nil {
		return "", 0, err
	}
	return body, status, nil
}

func (c *Client) fail(err error) error {
	if c.onFailure != nil {
		c.onFailure()
	}
	return err
}
