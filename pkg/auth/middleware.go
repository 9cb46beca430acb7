package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/gidsopenstandaarden/welldata-fhir/pkg/errors"
	"github.com/gidsopenstandaarden/welldata-fhir/pkg/fhir/model"
	"github.com/gidsopenstandaarden/welldata-fhir/pkg/logger"
	"github.com/gidsopenstandaarden/welldata-fhir/pkg/session"
)

// SessionInitializer loads initial data into a new session. It runs
// synchronously within the first authenticated request and receives that
// request's context, which carries the AccessToken.
type SessionInitializer func(r *http.Request, sess *session.Session)

// Middleware extracts the Bearer token, decodes it, derives the session key,
// resolves (or creates) the session and dispatches first-use hydration.
//
// The token signature is NOT verified unless a Verifier is configured;
// verification is otherwise the responsibility of an upstream layer. The
// middleware only decodes the token to extract claims for session scoping.
type Middleware struct {
	store       *session.Store
	verifier    *Verifier
	initializer SessionInitializer
}

// NewMiddleware creates the authentication middleware. verifier may be nil
// (decode-only mode).
func NewMiddleware(store *session.Store, verifier *Verifier) *Middleware {
	return &Middleware{store: store, verifier: verifier}
}

// SetSessionInitializer registers a callback to initialize new sessions
// (e.g. load initial data from the pod).
func (m *Middleware) SetSessionInitializer(initializer SessionInitializer) {
	m.initializer = initializer
}

// Handler wraps next with bearer authentication and session binding. The
// request context is request-scoped, so the published AccessToken dies with
// the request on every exit path.
func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if IsPublicEndpoint(r.URL.Path) {
			logger.Debugf("Skipping token extraction for public endpoint: %s", r.URL.Path)
			next.ServeHTTP(w, r)
			return
		}

		token, err := m.authenticate(r)
		if err != nil {
			writeUnauthenticated(w, err)
			return
		}

		r = r.WithContext(WithAccessToken(r.Context(), token))

		sess := m.store.GetOrCreate(token.SessionKey())
		sess.SetExpiry(token.Expiry)

		if !sess.Hydrated() && m.initializer != nil {
			sess.HydrateOnce(func() {
				m.initializer(r, sess)
			})
		}

		logger.Debugf("Access token context set for subject: %s, session: %s", token.Subject, token.SessionKey())
		next.ServeHTTP(w, r)
	})
}

func (m *Middleware) authenticate(r *http.Request) (*AccessToken, error) {
	authorization := strings.TrimSpace(r.Header.Get("Authorization"))
	if authorization == "" {
		logger.Debugf("No Authorization header on %s", r.URL.Path)
		return nil, errors.NewUnauthenticatedError("Unauthorized", nil)
	}

	raw, ok := stripBearerScheme(authorization)
	if !ok || raw == "" {
		logger.Warnf("No Bearer token found in Authorization header on %s", r.URL.Path)
		return nil, errors.NewUnauthenticatedError("Unauthorized", nil)
	}

	token, err := DecodeToken(raw)
	if err != nil {
		logger.Warnf("Failed to decode JWT token on %s: %v", r.URL.Path, err)
		return nil, errors.NewUnauthenticatedError("Unauthorized", err)
	}

	if token.IsExpired(time.Now()) {
		logger.Warnf("Token expired for subject %s on %s", token.Subject, r.URL.Path)
		return nil, errors.NewUnauthenticatedError("Token expired", nil)
	}

	if m.verifier != nil {
		if err := m.verifier.Verify(r.Context(), raw); err != nil {
			logger.Warnf("Token signature verification failed on %s: %v", r.URL.Path, err)
			return nil, errors.NewUnauthenticatedError("Unauthorized", err)
		}
	}

	return token, nil
}

// stripBearerScheme removes a case-insensitive "Bearer" scheme prefix. The
// scheme must be followed by whitespace, so "BearerXYZ" is not a credential.
func stripBearerScheme(authorization string) (string, bool) {
	const scheme = "bearer"
	if len(authorization) <= len(scheme) || !strings.EqualFold(authorization[:len(scheme)], scheme) {
		return "", false
	}
	rest := authorization[len(scheme):]
	if trimmed := strings.TrimLeft(rest, " \t"); trimmed == rest {
		return "", false
	}
	return strings.TrimSpace(rest), true
}

// DecodeToken parses the structural JWT envelope without verifying the
// signature and extracts the claims used for session scoping.
func DecodeToken(raw string) (*AccessToken, error) {
	parser := jwt.NewParser(jwt.WithoutClaimsValidation())
	parsed, _, err := parser.ParseUnverified(raw, jwt.MapClaims{})
	if err != nil {
		return nil, err
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errors.NewUnauthenticatedError("failed to extract claims", nil)
	}

	token := &AccessToken{Raw: raw}
	if jti, ok := claims["jti"].(string); ok {
		token.TokenID = jti
	}
	if sub, ok := claims["sub"].(string); ok {
		token.Subject = sub
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		t := exp.Time
		token.Expiry = &t
	}

	// Use a token hash as fallback if jti is not present.
	if token.TokenID == "" {
		token.TokenID = hashToken(raw)
	}
	return token, nil
}

func hashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:8])
}

// IsPublicEndpoint reports whether the path is served without
// authentication: the capability document, conformance resources, shared
// questionnaire definitions (but not questionnaire responses, which are user
// data) and API documentation.
func IsPublicEndpoint(path string) bool {
	if strings.HasSuffix(path, "/metadata") {
		return true
	}
	if strings.Contains(path, "/StructureDefinition") || strings.Contains(path, "/ImplementationGuide") {
		return true
	}
	if strings.Contains(path, "/Questionnaire") && !strings.Contains(path, "/QuestionnaireResponse") {
		return true
	}
	if strings.Contains(path, "/swagger-ui") || strings.Contains(path, "/api-docs") {
		return true
	}
	return false
}

func writeUnauthenticated(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/fhir+json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(model.NewOperationOutcome("security", err.Error()))
}
