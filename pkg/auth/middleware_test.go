package auth

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gidsopenstandaarden/welldata-fhir/pkg/session"
)

func signToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return signed
}

func newTestMiddleware(t *testing.T) (*Middleware, *session.Store) {
	t.Helper()
	store := session.NewStore(time.Hour)
	t.Cleanup(store.Stop)
	return NewMiddleware(store, nil), store
}

func okHandler(hit *atomic.Bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if hit != nil {
			hit.Store(true)
		}
		w.WriteHeader(http.StatusOK)
	})
}

func TestDecodeToken(t *testing.T) {
	t.Parallel()

	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	raw := signToken(t, jwt.MapClaims{
		"jti": "token-1",
		"sub": "https://pod.example/u1#me",
		"exp": exp.Unix(),
	})

	token, err := DecodeToken(raw)
	require.NoError(t, err)
	assert.Equal(t, "token-1", token.TokenID)
	assert.Equal(t, "https://pod.example/u1#me", token.Subject)
	require.NotNil(t, token.Expiry)
	assert.Equal(t, exp.Unix(), token.Expiry.Unix())
	assert.Equal(t, raw, token.Raw)
}

func TestDecodeTokenHashFallback(t *testing.T) {
	t.Parallel()

	raw := signToken(t, jwt.MapClaims{"sub": "https://pod.example/u1#me"})
	token, err := DecodeToken(raw)
	require.NoError(t, err)
	assert.NotEmpty(t, token.TokenID, "token id falls back to a hash of the token")
	assert.Nil(t, token.Expiry)

	again, err := DecodeToken(raw)
	require.NoError(t, err)
	assert.Equal(t, token.TokenID, again.TokenID, "hash fallback is stable")
}

func TestDecodeTokenGarbage(t *testing.T) {
	t.Parallel()

	_, err := DecodeToken("not-a-jwt")
	assert.Error(t, err)
}

func TestMiddlewareRejectsMissingHeader(t *testing.T) {
	t.Parallel()
	m, _ := newTestMiddleware(t)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/fhir/Patient", nil)
	m.Handler(okHandler(nil)).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "OperationOutcome")
}

func TestMiddlewareRejectsEmptyBearer(t *testing.T) {
	t.Parallel()
	m, _ := newTestMiddleware(t)

	for _, header := range []string{"Bearer ", "Bearer", "Basic abc", "bearer   "} {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/fhir/Patient", nil)
		req.Header.Set("Authorization", header)
		m.Handler(okHandler(nil)).ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, "header %q", header)
	}
}

func TestMiddlewareRequiresSpaceAfterScheme(t *testing.T) {
	t.Parallel()
	m, _ := newTestMiddleware(t)

	raw := signToken(t, jwt.MapClaims{"jti": "glued-1", "sub": "https://pod.example/u1#me"})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/fhir/Patient", nil)
	req.Header.Set("Authorization", "Bearer"+raw)
	m.Handler(okHandler(nil)).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMiddlewareRejectsExpiredToken(t *testing.T) {
	t.Parallel()
	m, store := newTestMiddleware(t)

	raw := signToken(t, jwt.MapClaims{
		"jti": "expired-1",
		"sub": "https://pod.example/u1#me",
		"exp": time.Now().Add(-time.Minute).Unix(),
	})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/fhir/Patient", nil)
	req.Header.Set("Authorization", "Bearer "+raw)
	m.Handler(okHandler(nil)).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "Token expired")
	assert.Nil(t, store.Get("expired-1"), "no session is created for an expired token")
}

func TestMiddlewareAcceptsCaseInsensitiveScheme(t *testing.T) {
	t.Parallel()
	m, _ := newTestMiddleware(t)

	raw := signToken(t, jwt.MapClaims{"jti": "t1", "sub": "https://pod.example/u1#me"})

	var hit atomic.Bool
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/fhir/Patient", nil)
	req.Header.Set("Authorization", "bearer "+raw)
	m.Handler(okHandler(&hit)).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, hit.Load())
}

func TestMiddlewareBindsSessionAndContext(t *testing.T) {
	t.Parallel()
	m, store := newTestMiddleware(t)

	exp := time.Now().Add(time.Hour)
	raw := signToken(t, jwt.MapClaims{
		"jti": "bind-1",
		"sub": "https://pod.example/u1#me",
		"exp": exp.Unix(),
	})

	var seen *AccessToken
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = AccessTokenFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/fhir/Patient", nil)
	req.Header.Set("Authorization", "Bearer "+raw)
	m.Handler(handler).ServeHTTP(rec, req)

	require.NotNil(t, seen)
	assert.Equal(t, "bind-1", seen.TokenID)

	sess := store.Get("bind-1")
	require.NotNil(t, sess)
	require.NotNil(t, sess.Expiry())
	assert.Equal(t, exp.Unix(), sess.Expiry().Unix())
}

func TestMiddlewareHydratesOnce(t *testing.T) {
	t.Parallel()
	m, _ := newTestMiddleware(t)

	var calls atomic.Int32
	m.SetSessionInitializer(func(r *http.Request, sess *session.Session) {
		calls.Add(1)
		sess.SetHydrated(true)
	})

	raw := signToken(t, jwt.MapClaims{"jti": "hyd-1", "sub": "https://pod.example/u1#me"})
	handler := m.Handler(okHandler(nil))

	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/fhir/Patient", nil)
		req.Header.Set("Authorization", "Bearer "+raw)
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	}

	assert.Equal(t, int32(1), calls.Load())
}

func TestMiddlewareSkipsPublicEndpoints(t *testing.T) {
	t.Parallel()
	m, store := newTestMiddleware(t)

	var hit atomic.Bool
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/fhir/metadata", nil)
	m.Handler(okHandler(&hit)).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, hit.Load())
	assert.Zero(t, store.Len())
}

func TestIsPublicEndpoint(t *testing.T) {
	t.Parallel()

	tests := []struct {
		path   string
		public bool
	}{
		{"/fhir/metadata", true},
		{"/fhir/StructureDefinition", true},
		{"/fhir/StructureDefinition/abc", true},
		{"/fhir/ImplementationGuide/ig", true},
		{"/fhir/Questionnaire", true},
		{"/fhir/Questionnaire/q1", true},
		{"/fhir/QuestionnaireResponse", false},
		{"/fhir/QuestionnaireResponse/1", false},
		{"/fhir/Patient", false},
		{"/fhir/Observation/3", false},
		{"/swagger-ui/index.html", true},
		{"/api-docs", true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.public, IsPublicEndpoint(tt.path), tt.path)
	}
}
