// Package testdata ships a small development data set that hydrates a
// session when Solid pod integration is disabled, so the API is usable out
// of the box.
package testdata

import (
	"embed"
	"encoding/json"
	"io/fs"
	"os"
	"sort"
	"strings"

	"github.com/gidsopenstandaarden/welldata-fhir/pkg/fhir/model"
	"github.com/gidsopenstandaarden/welldata-fhir/pkg/logger"
)

//go:embed data
var embedded embed.FS

// Default returns the built-in development resources.
func Default() ([]model.Resource, error) {
	sub, err := fs.Sub(embedded, "data")
	if err != nil {
		return nil, err
	}
	return Load(sub)
}

// FromPath loads development resources from a directory on disk, overriding
// the built-in set.
func FromPath(path string) ([]model.Resource, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	return Load(os.DirFS(path))
}

// Load parses every JSON document in the filesystem into a resource.
// Documents of unknown resource types are skipped with a warning. Files are
// visited in path order so ids stay stable between runs.
func Load(fsys fs.FS) ([]model.Resource, error) {
	var paths []string
	err := fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(p, ".json") {
			paths = append(paths, p)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)

	resources := make([]model.Resource, 0, len(paths))
	for _, p := range paths {
		data, err := fs.ReadFile(fsys, p)
		if err != nil {
			return nil, err
		}
		var probe struct {
			ResourceType string `json:"resourceType"`
		}
		if err := json.Unmarshal(data, &probe); err != nil {
			logger.Warnf("Skipping test data file %s: %v", p, err)
			continue
		}
		resource, err := model.ParseByType(probe.ResourceType, data)
		if err != nil {
			logger.Warnf("Skipping test data file %s: %v", p, err)
			continue
		}
		resources = append(resources, resource)
	}
	return resources, nil
}
