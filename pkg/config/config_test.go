package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	t.Parallel()

	cfg := Default()
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.False(t, cfg.WellData.Solid.Enabled)
	assert.Equal(t, "/weare/fhir", cfg.WellData.Solid.FHIRContainerPath)
	assert.Empty(t, cfg.WellData.IG.URL)
	assert.Equal(t, 5*time.Minute, cfg.WellData.Session.SweepInterval)
	assert.Empty(t, cfg.WellData.OIDC.JWKSURL)
}

func TestLoadFromFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "welldata.yaml")
	content := `
server:
  port: 9090
welldata:
  solid:
    enabled: true
    fhir-container-path: /custom/fhir
  ig:
    url: https://example.org/ig/package.tgz
  session:
    sweep-interval: 30s
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.True(t, cfg.WellData.Solid.Enabled)
	assert.Equal(t, "/custom/fhir", cfg.WellData.Solid.FHIRContainerPath)
	assert.Equal(t, "https://example.org/ig/package.tgz", cfg.WellData.IG.URL)
	assert.Equal(t, 30*time.Second, cfg.WellData.Session.SweepInterval)
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadRejectsBadPort(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "welldata.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: -1\n"), 0o600))

	_, err := Load(path)
	assert.ErrorContains(t, err, "invalid server port")
}
