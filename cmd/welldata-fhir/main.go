// Package main is the entry point for the WellData FHIR service.
package main

import (
	"os"

	"github.com/gidsopenstandaarden/welldata-fhir/cmd/welldata-fhir/app"
	"github.com/gidsopenstandaarden/welldata-fhir/pkg/logger"
)

func main() {
	logger.Initialize()

	if err := app.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
