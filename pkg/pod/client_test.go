package pod

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gidsopenstandaarden/welldata-fhir/pkg/errors"
	"github.com/gidsopenstandaarden/welldata-fhir/pkg/fhir/model"
	"github.com/gidsopenstandaarden/welldata-fhir/pkg/rdf"
)

const fhirPath = "/weare/fhir"

func webIDFor(server *httptest.Server) string {
	return server.URL + "/profile/card#me"
}

func testPatient(id string) *model.Patient {
	active := true
	p := &model.Patient{
		Active: &active,
		Name: []model.HumanName{
			{Family: "Jansen", Given: []string{"Piet"}},
		},
	}
	p.SetID(id)
	return p
}

func TestBaseURLFromWebID(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		webID   string
		want    string
		wantErr bool
	}{
		{
			name:  "https with fragment",
			webID: "https://alice.solidcommunity.net/profile/card#me",
			want:  "https://alice.solidcommunity.net",
		},
		{
			name:  "host with port",
			webID: "http://localhost:3000/profile/card#me",
			want:  "http://localhost:3000",
		},
		{
			name:    "opaque subject",
			webID:   "user-1234",
			wantErr: true,
		},
		{
			name:    "empty",
			webID:   "",
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := BaseURLFromWebID(tt.webID)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSaveWritesTurtle(t *testing.T) {
	t.Parallel()

	var (
		mu      sync.Mutex
		gotPath string
		gotBody string
		gotCT   string
		gotAuth string
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		gotPath = r.URL.Path
		gotBody = string(body)
		gotCT = r.Header.Get("Content-Type")
		gotAuth = r.Header.Get("Authorization")
		mu.Unlock()
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	client := NewClient(true, fhirPath)
	err := client.Save(context.Background(), webIDFor(server), "tok-123", testPatient("7"))
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "/weare/fhir/Patient/7.ttl", gotPath)
	assert.Equal(t, "text/turtle", gotCT)
	assert.Equal(t, "Bearer tok-123", gotAuth)
	assert.Contains(t, gotBody, "Patient")
	require.NoError(t, rdf.Validate(gotBody))
}

func TestSaveDisabledIsNoOp(t *testing.T) {
	t.Parallel()

	client := NewClient(false, fhirPath)
	err := client.Save(context.Background(), "not-a-url", "tok", testPatient("1"))
	assert.NoError(t, err)
}

func TestSaveUpstreamFailure(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	failures := 0
	client := NewClient(true, fhirPath, WithFailureHook(func() { failures++ }))
	err := client.Save(context.Background(), webIDFor(server), "tok", testPatient("1"))
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrUpstream))
	assert.Equal(t, 1, failures)
}

func TestSaveBadWebID(t *testing.T) {
	t.Parallel()

	client := NewClient(true, fhirPath)
	err := client.Save(context.Background(), "user-1234", "tok", testPatient("1"))
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrUpstream))
}

func TestDelete(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		status  int
		wantErr bool
	}{
		{name: "deleted", status: http.StatusOK},
		{name: "no content", status: http.StatusNoContent},
		{name: "already gone", status: http.StatusNotFound},
		{name: "server error", status: http.StatusInternalServerError, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var gotMethod, gotPath string
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotMethod = r.Method
				gotPath = r.URL.Path
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			client := NewClient(true, fhirPath)
			err := client.Delete(context.Background(), webIDFor(server), "tok", "Observation", "42")
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, http.MethodDelete, gotMethod)
			assert.Equal(t, "/weare/fhir/Observation/42.ttl", gotPath)
		})
	}
}

func TestListFollowsContainment(t *testing.T) {
	t.Parallel()

	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "text/turtle", r.Header.Get("Accept"))
		switch r.URL.Path {
		case "/weare/fhir/Patient/":
			w.Header().Set("Content-Type", "text/turtle")
			_, _ = io.WriteString(w, `@prefix ldp: <http://www.w3.org/ns/ldp#> .
<> a ldp:BasicContainer ;
   ldp:contains <1.ttl>, <2.ttl>, <notes.txt> .
`)
		case "/weare/fhir/Patient/1.ttl", "/weare/fhir/Patient/2.ttl":
			id := strings.TrimSuffix(r.URL.Path[len("/weare/fhir/Patient/"):], ".ttl")
			turtle, err := rdf.Serialize(testPatient(id), server.URL+r.URL.Path)
			require.NoError(t, err)
			w.Header().Set("Content-Type", "text/turtle")
			_, _ = io.WriteString(w, turtle)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	client := NewClient(true, fhirPath)
	resources, err := client.List(context.Background(), webIDFor(server), "tok", "Patient")
	require.NoError(t, err)
	require.Len(t, resources, 2)

	ids := []string{resources[0].GetID(), resources[1].GetID()}
	assert.ElementsMatch(t, []string{"1", "2"}, ids)
	for _, r := range resources {
		assert.Equal(t, model.TypePatient, r.ResourceType())
	}
}

func TestListMissingContainerIsEmpty(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := NewClient(true, fhirPath)
	resources, err := client.List(context.Background(), webIDFor(server), "tok", "Patient")
	require.NoError(t, err)
	assert.Empty(t, resources)
}

func TestListDisabledIsNoOp(t *testing.T) {
	t.Parallel()

	client := NewClient(false, fhirPath)
	resources, err := client.List(context.Background(), "not-a-url", "tok", "Patient")
	require.NoError(t, err)
	assert.Empty(t, resources)
}

func TestListSkipsUnparsableResources(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/weare/fhir/Patient/":
			_, _ = io.WriteString(w, `@prefix ldp: <http://www.w3.org/ns/ldp#> .
<> ldp:contains <broken.ttl> .
`)
		case "/weare/fhir/Patient/broken.ttl":
			_, _ = io.WriteString(w, "this is not turtle {{{")
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	client := NewClient(true, fhirPath)
	resources, err := client.List(context.Background(), webIDFor(server), "tok", "Patient")
	require.NoError(t, err)
	assert.Empty(t, resources)
}

func TestEnsureContainers(t *testing.T) {
	t.Parallel()

	var (
		mu   sync.Mutex
		puts []string
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodHead:
			w.WriteHeader(http.StatusNotFound)
		case http.MethodPut:
			assert.Contains(t, r.Header.Get("Link"), "ldp#BasicContainer")
			assert.Equal(t, "text/turtle", r.Header.Get("Content-Type"))
			mu.Lock()
			puts = append(puts, r.URL.Path)
			mu.Unlock()
			w.WriteHeader(http.StatusCreated)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	}))
	defer server.Close()

	client := NewClient(true, fhirPath)
	client.EnsureContainers(context.Background(), webIDFor(server), "tok")

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{
		"/weare/",
		"/weare/fhir/",
		"/weare/fhir/Patient/",
		"/weare/fhir/Observation/",
		"/weare/fhir/QuestionnaireResponse/",
	}, puts)
}

func TestEnsureContainersExistingSkipped(t *testing.T) {
	t.Parallel()

	var putCount int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodHead:
			w.WriteHeader(http.StatusOK)
		case http.MethodPut:
			putCount++
			w.WriteHeader(http.StatusCreated)
		}
	}))
	defer server.Close()

	client := NewClient(true, fhirPath)
	client.EnsureContainers(context.Background(), webIDFor(server), "tok")
	assert.Zero(t, putCount)
}
