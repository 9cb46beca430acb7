package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gidsopenstandaarden/welldata-fhir/pkg/errors"
	"github.com/gidsopenstandaarden/welldata-fhir/pkg/fhir/model"
)

func seedRegistry() *Registry {
	reg := New()
	reg.Add(&model.Questionnaire{
		URL:    "https://welldata.example.org/Questionnaire/intake",
		Name:   "IntakeQuestionnaire",
		Title:  "WellData Intake",
		Status: "active",
		Identifier: []model.Identifier{
			{System: "urn:welldata", Value: "intake-v1"},
		},
	})
	reg.Add(&model.Questionnaire{
		URL:    "https://welldata.example.org/Questionnaire/followup",
		Name:   "FollowupQuestionnaire",
		Title:  "WellData Followup",
		Status: "draft",
	})
	reg.Add(&model.StructureDefinition{
		URL:      "https://welldata.example.org/StructureDefinition/wd-observation",
		Name:     "WellDataObservation",
		Status:   "active",
		FHIRType: "Observation",
	})
	reg.Add(&model.ImplementationGuide{
		URL:       "https://welldata.example.org/ImplementationGuide/welldata",
		Name:      "WellDataIG",
		Status:    "active",
		PackageID: "org.example.welldata",
	})
	return reg
}

func TestAddDerivesID(t *testing.T) {
	t.Parallel()

	reg := seedRegistry()
	q, err := reg.Get(model.TypeQuestionnaire, "intake")
	require.NoError(t, err)
	assert.Equal(t, "IntakeQuestionnaire", q.(*model.Questionnaire).Name)
}

func TestAddKeepsExplicitID(t *testing.T) {
	t.Parallel()

	reg := New()
	sd := &model.StructureDefinition{Name: "Explicit"}
	sd.SetID("my-id")
	reg.Add(sd)

	got, err := reg.Get(model.TypeStructureDefinition, "my-id")
	require.NoError(t, err)
	assert.Equal(t, "my-id", got.GetID())
}

func TestGetUnknown(t *testing.T) {
	t.Parallel()

	reg := seedRegistry()
	_, err := reg.Get(model.TypeQuestionnaire, "nope")
	assert.True(t, errors.IsType(err, errors.ErrNotFound))
}

func TestGetReturnsIsolatedCopy(t *testing.T) {
	t.Parallel()

	reg := seedRegistry()
	first, err := reg.Get(model.TypeQuestionnaire, "intake")
	require.NoError(t, err)
	first.(*model.Questionnaire).Title = "Mutated"

	second, err := reg.Get(model.TypeQuestionnaire, "intake")
	require.NoError(t, err)
	assert.Equal(t, "WellData Intake", second.(*model.Questionnaire).Title)
}

func TestSearchConformanceParams(t *testing.T) {
	t.Parallel()

	reg := seedRegistry()
	tests := []struct {
		name         string
		resourceType string
		params       map[string][]string
		want         int
	}{
		{name: "all questionnaires", resourceType: model.TypeQuestionnaire, want: 2},
		{
			name:         "by url",
			resourceType: model.TypeQuestionnaire,
			params:       map[string][]string{"url": {"https://welldata.example.org/Questionnaire/intake"}},
			want:         1,
		},
		{
			name:         "by name case insensitive",
			resourceType: model.TypeQuestionnaire,
			params:       map[string][]string{"name": {"intakequestionnaire"}},
			want:         1,
		},
		{
			name:         "by partial name",
			resourceType: model.TypeQuestionnaire,
			params:       map[string][]string{"name": {"intake"}},
			want:         1,
		},
		{
			name:         "partial name spans resources",
			resourceType: model.TypeQuestionnaire,
			params:       map[string][]string{"name": {"questionnaire"}},
			want:         2,
		},
		{
			name:         "by title substring",
			resourceType: model.TypeQuestionnaire,
			params:       map[string][]string{"title": {"followup"}},
			want:         1,
		},
		{
			name:         "by status",
			resourceType: model.TypeQuestionnaire,
			params:       map[string][]string{"status": {"draft"}},
			want:         1,
		},
		{
			name:         "by identifier token",
			resourceType: model.TypeQuestionnaire,
			params:       map[string][]string{"identifier": {"urn:welldata|intake-v1"}},
			want:         1,
		},
		{
			name:         "by id",
			resourceType: model.TypeQuestionnaire,
			params:       map[string][]string{"_id": {"followup"}},
			want:         1,
		},
		{
			name:         "structure definition by type",
			resourceType: model.TypeStructureDefinition,
			params:       map[string][]string{"type": {"Observation"}},
			want:         1,
		},
		{
			name:         "structure definition type mismatch",
			resourceType: model.TypeStructureDefinition,
			params:       map[string][]string{"type": {"Patient"}},
			want:         0,
		},
		{
			name:         "implementation guides",
			resourceType: model.TypeImplementationGuide,
			want:         1,
		},
		{
			name:         "no match is empty not error",
			resourceType: model.TypeQuestionnaire,
			params:       map[string][]string{"url": {"https://other.example.org/x"}},
			want:         0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			results, err := reg.Search(tt.resourceType, tt.params)
			require.NoError(t, err)
			assert.Len(t, results, tt.want)
		})
	}
}

func TestSearchOrderedByID(t *testing.T) {
	t.Parallel()

	reg := seedRegistry()
	results, err := reg.All(model.TypeQuestionnaire)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "followup", results[0].GetID())
	assert.Equal(t, "intake", results[1].GetID())
}
