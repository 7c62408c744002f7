// Package deps implements the dependency map that pins remote include
// references to concrete commit IDs, making a build reproducible even when
// remote branch heads move.
//
// On disk the map is a JSON object: key = include reference as resolved by
// the preprocessor, value = the pinned commit ID.
package deps

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"os"
)

// Map pins include references to commit IDs.
type Map map[string]string

// Load reads a dependency map from path.
//
// A missing file is not an error, it loads as an empty map so that the
// first ever run with --save-dependencies just works.
func Load(path string) (Map, error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return make(Map), nil
		}
		return nil, fmt.Errorf("could not read dependency map %s: %w", path, err)
	}

	var m Map
	if err := json.Unmarshal(contents, &m); err != nil {
		return nil, fmt.Errorf("could not parse dependency map %s: %w", path, err)
	}
	if m == nil {
		m = make(Map)
	}

	return m, nil
}

// Save writes the dependency map to path.
//
// The written map is the union of whatever is already in the file and m,
// with m winning on conflicts, so pins recorded by earlier runs survive.
func Save(path string, m Map) error {
	merged, err := Load(path)
	if err != nil {
		return err
	}
	maps.Copy(merged, m)

	contents, err := json.MarshalIndent(merged, "", "  ")
	if err != nil {
		return fmt.Errorf("could not marshal dependency map: %w", err)
	}
	contents = append(contents, '\n')

	if err := os.WriteFile(path, contents, 0o644); err != nil {
		return fmt.Errorf("could not write dependency map %s: %w", path, err)
	}

	return nil
}
