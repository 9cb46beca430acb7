// Package config contains the definition of the application config structure
// and logic required to load it from file and environment.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the configuration of the application.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	WellData WellDataConfig `mapstructure:"welldata"`
}

// ServerConfig contains the HTTP server settings.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// WellDataConfig groups the WellData-specific settings.
type WellDataConfig struct {
	Solid          SolidConfig          `mapstructure:"solid"`
	IG             IGConfig             `mapstructure:"ig"`
	Questionnaires QuestionnairesConfig `mapstructure:"questionnaires"`
	TestData       TestDataConfig       `mapstructure:"testdata"`
	Session        SessionConfig        `mapstructure:"session"`
	OIDC           OIDCConfig           `mapstructure:"oidc"`
}

// SolidConfig configures the Solid pod integration.
type SolidConfig struct {
	// Enabled toggles pod write-through and hydration. When false all pod
	// operations are no-ops and sessions hydrate from dev data.
	Enabled bool `mapstructure:"enabled"`

	// FHIRContainerPath is the path under the pod root where FHIR resources live.
	FHIRContainerPath string `mapstructure:"fhir-container-path"`
}

// IGConfig configures the Implementation Guide package loader.
type IGConfig struct {
	// URL points at a packaged IG archive (.tgz). Empty skips the IG load.
	URL string `mapstructure:"url"`
}

// QuestionnairesConfig configures the shared questionnaire definitions.
type QuestionnairesConfig struct {
	// Path is a directory of Questionnaire JSON documents to register at
	// startup. Empty loads none.
	Path string `mapstructure:"path"`
}

// TestDataConfig configures the embedded dev data loader.
type TestDataConfig struct {
	// Path overrides the embedded test data with a filesystem directory.
	Path string `mapstructure:"path"`
}

// SessionConfig configures the session store.
type SessionConfig struct {
	// SweepInterval is how often expired sessions are reclaimed.
	SweepInterval time.Duration `mapstructure:"sweep-interval"`
}

// OIDCConfig configures optional token signature verification. When JWKSURL
// is empty tokens are decoded without verification; verification is then the
// responsibility of an upstream layer.
type OIDCConfig struct {
	JWKSURL  string `mapstructure:"jwks-url"`
	Issuer   string `mapstructure:"issuer"`
	Audience string `mapstructure:"audience"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("welldata.solid.enabled", false)
	v.SetDefault("welldata.solid.fhir-container-path", "/weare/fhir")
	v.SetDefault("welldata.ig.url", "")
	v.SetDefault("welldata.questionnaires.path", "")
	v.SetDefault("welldata.testdata.path", "")
	v.SetDefault("welldata.session.sweep-interval", 5*time.Minute)
	v.SetDefault("welldata.oidc.jwks-url", "")
	v.SetDefault("welldata.oidc.issuer", "")
	v.SetDefault("welldata.oidc.audience", "")
}

// Load reads configuration from the given file (optional) and the
// environment. Environment variables use the WELLDATA prefix with dots and
// dashes mapped to underscores, e.g. WELLDATA_WELLDATA_SOLID_ENABLED=true.
func Load(configFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("WELLDATA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return nil, fmt.Errorf("invalid server port: %d", cfg.Server.Port)
	}
	if cfg.WellData.Session.SweepInterval <= 0 {
		return nil, fmt.Errorf("invalid sweep interval: %s", cfg.WellData.Session.SweepInterval)
	}
	return &cfg, nil
}

// Default returns the configuration with all defaults applied and no file or
// environment input. Intended for tests.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	// Unmarshal of pure defaults cannot fail.
	_ = v.Unmarshal(&cfg)
	return &cfg
}
