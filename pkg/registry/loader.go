package registry

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/gidsopenstandaarden/welldata-fhir/pkg/errors"
	"github.com/gidsopenstandaarden/welldata-fhir/pkg/fhir/model"
	"github.com/gidsopenstandaarden/welldata-fhir/pkg/logger"
)

const downloadTimeout = 60 * time.Second

// LoadIGPackage downloads a FHIR NPM package (a .tgz with resources under
// package/) and registers every StructureDefinition and ImplementationGuide
// found at the package root. Files under subdirectories such as
// package/example/ are skipped.
func LoadIGPackage(ctx context.Context, reg *Registry, packageURL string) error {
	logger.Infof("Loading implementation guide package from %s", packageURL)

	data, err := downloadPackage(ctx, packageURL)
	if err != nil {
		return errors.NewUpstreamError(fmt.Sprintf("failed to download IG package %s", packageURL), err)
	}
	defer data.Close()

	definitions, guides, err := loadPackageArchive(reg, data)
	if err != nil {
		return err
	}
	logger.Infof("Loaded %d StructureDefinitions and %d ImplementationGuides from package", definitions, guides)
	return nil
}

func downloadPackage(ctx context.Context, packageURL string) (io.ReadCloser, error) {
	client := &http.Client{Timeout: downloadTimeout}
	operation := func() (io.ReadCloser, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, packageURL, nil)
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		resp, err := client.Do(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			err := fmt.Errorf("unexpected status %d", resp.StatusCode)
			if resp.StatusCode >= 400 && resp.StatusCode < 500 {
				return nil, backoff.Permanent(err)
			}
			return nil, err
		}
		return resp.Body, nil
	}
	return backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(3))
}

// loadPackageArchive walks the gzipped tarball and registers conformance
// resources. Malformed entries are logged and skipped so one bad file does
// not sink the whole package.
func loadPackageArchive(reg *Registry, archive io.Reader) (definitions, guides int, err error) {
	gz, err := gzip.NewReader(archive)
	if err != nil {
		return 0, 0, errors.NewUpstreamError("IG package is not a gzip archive", err)
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return definitions, guides, errors.NewUpstreamError("failed to read IG package archive", err)
		}
		if header.Typeflag != tar.TypeReg {
			continue
		}

		resourceType, ok := packageEntryType(header.Name)
		if !ok {
			continue
		}
		data, err := io.ReadAll(tr)
		if err != nil {
			return definitions, guides, errors.NewUpstreamError("failed to read IG package entry", err)
		}
		resource, err := model.ParseByType(resourceType, data)
		if err != nil {
			logger.Warnf("Skipping malformed package entry %s: %v", header.Name, err)
			continue
		}
		reg.Add(resource)
		switch resourceType {
		case model.TypeStructureDefinition:
			definitions++
		case model.TypeImplementationGuide:
			guides++
		}
	}
	return definitions, guides, nil
}

// packageEntryType recognizes package-root conformance files by their HAPI
// naming convention, e.g. package/StructureDefinition-vital-signs.json.
func packageEntryType(name string) (string, bool) {
	if path.Dir(name) != "package" {
		return "", false
	}
	base := path.Base(name)
	if !strings.HasSuffix(base, ".json") {
		return "", false
	}
	switch {
	case strings.HasPrefix(base, "StructureDefinition-"):
		return model.TypeStructureDefinition, true
	case strings.HasPrefix(base, "ImplementationGuide-"):
		return model.TypeImplementationGuide, true
	}
	return "", false
}

// LoadQuestionnaires registers every Questionnaire JSON document in the
// given filesystem. Non-JSON files and files that are not Questionnaires are
// skipped with a warning.
func LoadQuestionnaires(reg *Registry, fsys fs.FS) error {
	count := 0
	err := fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(p, ".json") {
			return nil
		}
		data, err := fs.ReadFile(fsys, p)
		if err != nil {
			return err
		}

		var probe struct {
			ResourceType string `json:"resourceType"`
		}
		if err := json.Unmarshal(data, &probe); err != nil || probe.ResourceType != model.TypeQuestionnaire {
			logger.Warnf("Skipping %s: not a Questionnaire", p)
			return nil
		}
		questionnaire, err := model.ParseByType(model.TypeQuestionnaire, data)
		if err != nil {
			logger.Warnf("Skipping malformed questionnaire %s: %v", p, err)
			return nil
		}
		reg.Add(questionnaire)
		count++
		return nil
	})
	if err != nil {
		return err
	}
	logger.Infof("Loaded %d questionnaires", count)
	return nil
}
