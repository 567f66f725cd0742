package roles

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// ParseDefinitionYAML decodes and validates a catalog definition.
func ParseDefinitionYAML(data []byte) (CatalogDefinition, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return CatalogDefinition{}, fmt.Errorf("roles: catalog payload is empty")
	}
	var def CatalogDefinition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return CatalogDefinition{}, fmt.Errorf("roles: decode catalog: %w", err)
	}
	if err := def.Validate(); err != nil {
		return CatalogDefinition{}, err
	}
	return def, nil
}

// LoadDefinitionReader reads catalog data from an io.Reader.
func LoadDefinitionReader(r io.Reader) (CatalogDefinition, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return CatalogDefinition{}, fmt.Errorf("roles: read catalog: %w", err)
	}
	return ParseDefinitionYAML(content)
}

// LoadDefinitionFile loads a catalog definition from an explicit path.
func LoadDefinitionFile(path string) (CatalogDefinition, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return CatalogDefinition{}, fmt.Errorf("roles: read %s: %w", path, err)
	}
	def, parseErr := ParseDefinitionYAML(content)
	if parseErr != nil {
		return CatalogDefinition{}, fmt.Errorf("roles: %s: %w", path, parseErr)
	}
	return def, nil
}

// LoadDefinitionDir merges every *.yaml / *.yml catalog in dir, in path order.
// A missing directory means "no extra roles".
func LoadDefinitionDir(dir string) (CatalogDefinition, error) {
	trimmed := strings.TrimSpace(dir)
	if trimmed == "" {
		return CatalogDefinition{}, nil
	}
	entries, err := os.ReadDir(trimmed)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return CatalogDefinition{}, nil
		}
		return CatalogDefinition{}, fmt.Errorf("roles: read %s: %w", trimmed, err)
	}
	var paths []string
	for _, entry := range entries {
		if entry.IsDir() || !isYAMLFile(entry.Name()) {
			continue
		}
		paths = append(paths, filepath.Join(trimmed, entry.Name()))
	}
	sort.Strings(paths)
	merged := CatalogDefinition{Name: filepath.Base(trimmed)}
	for _, path := range paths {
		def, err := LoadDefinitionFile(path)
		if err != nil {
			return CatalogDefinition{}, err
		}
		merged = merged.Merge(def)
	}
	return merged, nil
}

func isYAMLFile(name string) bool {
	lower := strings.ToLower(strings.TrimSpace(name))
	return strings.HasSuffix(lower, ".yaml") || strings.HasSuffix(lower, ".yml")
}

// LoadCatalog builds a catalog from a base definition file, or the built-in
// line-up when path is empty, with every file of rolesDir merged on top.
func LoadCatalog(path, rolesDir string) (*Catalog, error) {
	base := DefaultDefinition()
	if strings.TrimSpace(path) != "" {
		def, err := LoadDefinitionFile(path)
		if err != nil {
			return nil, err
		}
		base = def
	}
	extra, err := LoadDefinitionDir(rolesDir)
	if err != nil {
		return nil, err
	}
	merged := base.Merge(extra)
	if err := merged.Validate(); err != nil {
		return nil, err
	}
	catalog := NewCatalog()
	if err := catalog.Load(merged); err != nil {
		return nil, err
	}
	return catalog, nil
}
