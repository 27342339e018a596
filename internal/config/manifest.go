package config

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"

	"github.com/ossanalytics/ossanalytics/internal/core"
	"github.com/ossanalytics/ossanalytics/internal/core/github"
)

//go:embed schemas/packages.schema.json
var manifestSchema []byte

// Manifest lists the packages to collect.
type Manifest struct {
	Defaults struct {
		Group string `yaml:"group,omitempty" json:"group,omitempty"`
	} `yaml:"defaults,omitempty" json:"defaults,omitempty"`
	Packages []core.Package `yaml:"packages" json:"packages"`
}

// ErrDuplicatePackage is returned when a manifest names a package twice.
var ErrDuplicatePackage = errors.New("duplicate package")

// LoadManifest reads and validates the manifest at path.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	return ParseManifest(data)
}

// ParseManifest validates YAML manifest data against the embedded schema
// and fills in derived fields.
func ParseManifest(data []byte) (*Manifest, error) {
	if err := validateManifest(data); err != nil {
		return nil, err
	}

	var manifest Manifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}

	seen := make(map[string]struct{}, len(manifest.Packages))
	for i := range manifest.Packages {
		pkg := &manifest.Packages[i]
		if _, dup := seen[pkg.Name]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicatePackage, pkg.Name)
		}
		seen[pkg.Name] = struct{}{}

		if pkg.Group == "" {
			pkg.Group = manifest.Defaults.Group
		}
		if pkg.Repo == "" {
			repo, ok := github.RepoFromHref(pkg.Href)
			if !ok {
				return nil, fmt.Errorf("package %s: repo is required when href is not a github.com URL", pkg.Name)
			}
			pkg.Repo = repo
		}
		if pkg.Href == "" {
			pkg.Href = "https://github.com/" + pkg.Repo
		}
	}
	return &manifest, nil
}

// Filter keeps packages whose name matches any of the glob patterns.
// No patterns keeps everything.
func (m *Manifest) Filter(patterns []string) ([]core.Package, error) {
	if m == nil {
		return nil, nil
	}
	var cleaned []string
	for _, pattern := range patterns {
		pattern = strings.TrimSpace(pattern)
		if pattern == "" {
			continue
		}
		if !doublestar.ValidatePattern(pattern) {
			return nil, fmt.Errorf("invalid package pattern %q", pattern)
		}
		cleaned = append(cleaned, pattern)
	}
	if len(cleaned) == 0 {
		return append([]core.Package(nil), m.Packages...), nil
	}

	var out []core.Package
	for _, pkg := range m.Packages {
		for _, pattern := range cleaned {
			if ok, _ := doublestar.Match(pattern, pkg.Name); ok {
				out = append(out, pkg)
				break
			}
		}
	}
	return out, nil
}

func validateManifest(data []byte) error {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parse manifest: %w", err)
	}
	if doc == nil {
		return errors.New("manifest is empty")
	}
	jsonData, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("convert manifest to json: %w", err)
	}

	schema, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(manifestSchema))
	if err != nil {
		return fmt.Errorf("load manifest schema: %w", err)
	}
	result, err := schema.Validate(gojsonschema.NewBytesLoader(jsonData))
	if err != nil {
		return fmt.Errorf("validate manifest: %w", err)
	}
	if result.Valid() {
		return nil
	}

	messages := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		messages = append(messages, desc.String())
	}
	return fmt.Errorf("invalid manifest: %s", strings.Join(messages, "; "))
}
