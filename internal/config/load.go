package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
)

// Loaded is a resolved config file and the config built from it. When the
// file is absent Exists is false and Config holds Default().
type Loaded struct {
	Path     string
	Exists   bool
	Config   Config
	Warnings []Warning
}

// Load reads the file ResolvePath picks and layers it over Default(). A
// missing file is reported as a warning, not an error, so the daemon can
// run unconfigured.
func Load(explicitPath string) (Loaded, error) {
	path, err := ResolvePath(explicitPath)
	if err != nil {
		return Loaded{}, err
	}
	loaded := Loaded{Path: path, Config: Default()}

	raw, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		loaded.Warnings = append(loaded.Warnings, Warning{
			Message: fmt.Sprintf("config %q not found, running on defaults", path),
		})
		defaults, _ := Validate(loaded.Config)
		loaded.Warnings = append(loaded.Warnings, defaults...)
		return loaded, nil
	case err != nil:
		return Loaded{}, fmt.Errorf("read config %q: %w", path, err)
	}

	loaded.Config, loaded.Warnings, err = Parse(raw, loaded.Config)
	if err != nil {
		return Loaded{}, fmt.Errorf("parse config %q: %w", path, err)
	}
	loaded.Exists = true
	return loaded, nil
}
