// Package app provides the commands of the welldata-fhir service.
package app

import (
	"github.com/spf13/cobra"

	"github.com/gidsopenstandaarden/welldata-fhir/pkg/logger"
)

var rootCmd = &cobra.Command{
	Use:               "welldata-fhir",
	DisableAutoGenTag: true,
	Short:             "Ephemeral FHIR server over Solid pods",
	Long: `welldata-fhir serves a FHIR R4 REST API whose data lives in per-token,
in-memory sessions. Durable storage is the user's own Solid pod: writes go
through to the pod as RDF/Turtle documents and new sessions hydrate from it.
Nothing is persisted on the server side; when a session expires its data is
gone.`,
	Run: func(cmd *cobra.Command, _ []string) {
		// If no subcommand is provided, print help.
		if err := cmd.Help(); err != nil {
			logger.Errorf("Error displaying help: %v", err)
		}
	},
}

// NewRootCmd creates the root command of the service.
func NewRootCmd() *cobra.Command {
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newVersionCmd())
	return rootCmd
}
