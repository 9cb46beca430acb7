package app

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/gidsopenstandaarden/welldata-fhir/pkg/auth"
	"github.com/gidsopenstandaarden/welldata-fhir/pkg/config"
	"github.com/gidsopenstandaarden/welldata-fhir/pkg/hydrate"
	"github.com/gidsopenstandaarden/welldata-fhir/pkg/logger"
	"github.com/gidsopenstandaarden/welldata-fhir/pkg/pod"
	"github.com/gidsopenstandaarden/welldata-fhir/pkg/provider"
	"github.com/gidsopenstandaarden/welldata-fhir/pkg/registry"
	"github.com/gidsopenstandaarden/welldata-fhir/pkg/server"
	"github.com/gidsopenstandaarden/welldata-fhir/pkg/session"
	"github.com/gidsopenstandaarden/welldata-fhir/pkg/telemetry"
)

func newServeCmd() *cobra.Command {
	var configFile string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the FHIR server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, configFile)
		},
	}
	cmd.Flags().StringVar(&configFile, "config", "", "Path to a configuration file")
	return cmd
}

func runServe(cmd *cobra.Command, configFile string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// Metrics hook into the session store lifecycle, so the store has to be
	// created around them.
	var store *session.Store
	metrics := telemetry.NewMetrics(func() int {
		if store == nil {
			return 0
		}
		return store.Len()
	})
	store = session.NewStore(cfg.WellData.Session.SweepInterval,
		session.WithCreateHook(metrics.SessionCreated),
		session.WithSweepHook(metrics.SessionsSwept),
	)
	defer store.Stop()

	pods := pod.NewClient(cfg.WellData.Solid.Enabled, cfg.WellData.Solid.FHIRContainerPath,
		pod.WithFailureHook(metrics.PodSyncFailure))
	if cfg.WellData.Solid.Enabled {
		logger.Infof("Solid pod integration enabled, container path %s", cfg.WellData.Solid.FHIRContainerPath)
	} else {
		logger.Info("Solid pod integration disabled, sessions hydrate from development data")
	}

	var verifier *auth.Verifier
	if cfg.WellData.OIDC.JWKSURL != "" {
		verifier, err = auth.NewVerifier(ctx, auth.VerifierConfig{
			JWKSURL:  cfg.WellData.OIDC.JWKSURL,
			Issuer:   cfg.WellData.OIDC.Issuer,
			Audience: cfg.WellData.OIDC.Audience,
		})
		if err != nil {
			return fmt.Errorf("failed to set up token verification: %w", err)
		}
		logger.Infof("Token signature verification enabled against %s", cfg.WellData.OIDC.JWKSURL)
	} else {
		logger.Info("Token signature verification disabled, tokens are decoded only")
	}

	authMiddleware := auth.NewMiddleware(store, verifier)
	authMiddleware.SetSessionInitializer(
		hydrate.New(pods, cfg.WellData.TestData.Path).Initializer())

	reg := registry.New()
	if cfg.WellData.IG.URL != "" {
		if err := registry.LoadIGPackage(ctx, reg, cfg.WellData.IG.URL); err != nil {
			// The server still works without conformance resources.
			logger.Errorf("Failed to load implementation guide: %v", err)
		}
	}
	if cfg.WellData.Questionnaires.Path != "" {
		if err := registry.LoadQuestionnaires(reg, os.DirFS(cfg.WellData.Questionnaires.Path)); err != nil {
			logger.Errorf("Failed to load questionnaires: %v", err)
		}
	}

	return server.Serve(ctx, cfg.Server.Port, server.Deps{
		Provider: provider.New(store, pods),
		Registry: reg,
		Auth:     authMiddleware,
		Metrics:  metrics,
	})
}
