package hydrate

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gidsopenstandaarden/welldata-fhir/pkg/auth"
	"github.com/gidsopenstandaarden/welldata-fhir/pkg/fhir/model"
	"github.com/gidsopenstandaarden/welldata-fhir/pkg/pod"
	"github.com/gidsopenstandaarden/welldata-fhir/pkg/rdf"
	"github.com/gidsopenstandaarden/welldata-fhir/pkg/session"
)

func requestWithToken(t *testing.T, subject string) (*http.Request, *auth.AccessToken) {
	t.Helper()
	token := &auth.AccessToken{Raw: "raw", TokenID: "jti-1", Subject: subject}
	req := httptest.NewRequest(http.MethodGet, "/fhir/Patient", nil)
	return req.WithContext(auth.WithAccessToken(req.Context(), token)), token
}

func newSessionForTest(t *testing.T) *session.Session {
	t.Helper()
	store := session.NewStore(0)
	t.Cleanup(store.Stop)
	return store.GetOrCreate("test-session")
}

func TestHydrateFromTestData(t *testing.T) {
	t.Parallel()

	h := New(pod.NewClient(false, "/weare/fhir"), "")
	sess := newSessionForTest(t)
	req, token := requestWithToken(t, "user-1")

	h.Hydrate(req, token, sess)

	assert.True(t, sess.Hydrated())
	assert.Len(t, sess.GetAll(model.TypePatient), 1)
	assert.Len(t, sess.GetAll(model.TypeObservation), 2)
	assert.Len(t, sess.GetAll(model.TypeQuestionnaireResponse), 1)

	// Development data occupies ids 1 and 2, so assignment continues at 3.
	assert.Equal(t, int64(3), sess.NextID(model.TypeObservation))
}

func TestHydrateFromPod(t *testing.T) {
	t.Parallel()

	patient := &model.Patient{Name: []model.HumanName{{Family: "Jansen"}}}
	patient.SetID("12")

	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodHead:
			w.WriteHeader(http.StatusOK)
		case r.URL.Path == "/weare/fhir/Patient/":
			_, _ = io.WriteString(w, `@prefix ldp: <http://www.w3.org/ns/ldp#> .
<> ldp:contains <12.ttl> .
`)
		case r.URL.Path == "/weare/fhir/Patient/12.ttl":
			turtle, err := rdf.Serialize(patient, server.URL+r.URL.Path)
			require.NoError(t, err)
			_, _ = io.WriteString(w, turtle)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	h := New(pod.NewClient(true, "/weare/fhir"), "")
	sess := newSessionForTest(t)
	req, token := requestWithToken(t, server.URL+"/profile/card#me")

	h.Hydrate(req, token, sess)

	assert.True(t, sess.Hydrated())
	patients := sess.GetAll(model.TypePatient)
	require.Len(t, patients, 1)
	assert.Equal(t, "12", patients[0].GetID())
	assert.Empty(t, sess.GetAll(model.TypeObservation))

	// Pod data occupied id 12, so assignment continues past it.
	assert.Equal(t, int64(13), sess.NextID(model.TypePatient))
}

func TestHydratePodFailureLeavesUsableSession(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	h := New(pod.NewClient(true, "/weare/fhir"), "")
	sess := newSessionForTest(t)
	req, token := requestWithToken(t, server.URL+"/profile/card#me")

	h.Hydrate(req, token, sess)

	assert.True(t, sess.Hydrated(), "failed hydration must not retrigger")
	assert.Empty(t, sess.GetAll(model.TypePatient))
}

func TestInitializerRequiresToken(t *testing.T) {
	t.Parallel()

	h := New(pod.NewClient(false, "/weare/fhir"), "")
	sess := newSessionForTest(t)
	req := httptest.NewRequest(http.MethodGet, "/fhir/Patient", nil)

	h.Initializer()(req, sess)

	assert.False(t, sess.Hydrated())
	assert.Empty(t, sess.GetAll(model.TypePatient))
}
