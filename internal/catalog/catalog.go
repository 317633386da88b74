// Package catalog loads the safe-location catalog from a YAML file and keeps
// the hazard index's copy fresh on a cron schedule.
package catalog

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/couchcryptid/storm-escape-service/internal/domain"
)

// ErrInvalidCatalog is returned when a catalog file parses but describes
// locations that cannot be used as destinations.
var ErrInvalidCatalog = errors.New("invalid safe location catalog")

type file struct {
	SafeLocations []domain.SafeLocation `yaml:"safe_locations"`
}

// Load reads and validates the catalog at path.
func Load(path string) ([]domain.SafeLocation, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return Parse(data)
}

// Parse decodes a YAML catalog document. Every location needs a unique ID, a
// name, a known kind and valid coordinates; an empty catalog is rejected.
func Parse(data []byte) ([]domain.SafeLocation, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	if len(f.SafeLocations) == 0 {
		return nil, fmt.Errorf("%w: no safe locations", ErrInvalidCatalog)
	}

	seen := make(map[string]struct{}, len(f.SafeLocations))
	for i, loc := range f.SafeLocations {
		loc.ID = strings.TrimSpace(loc.ID)
		loc.Name = strings.TrimSpace(loc.Name)
		switch {
		case loc.ID == "":
			return nil, fmt.Errorf("%w: entry %d has no id", ErrInvalidCatalog, i)
		case loc.Name == "":
			return nil, fmt.Errorf("%w: %s has no name", ErrInvalidCatalog, loc.ID)
		case !loc.Kind.Valid():
			return nil, fmt.Errorf("%w: %s has unknown kind %q", ErrInvalidCatalog, loc.ID, loc.Kind)
		case !loc.Position.Valid():
			return nil, fmt.Errorf("%w: %s coordinates out of range", ErrInvalidCatalog, loc.ID)
		}
		if _, dup := seen[loc.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate id %s", ErrInvalidCatalog, loc.ID)
		}
		seen[loc.ID] = struct{}{}
		f.SafeLocations[i] = loc
	}
	return f.SafeLocations, nil
}
