package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// Parse decodes YAML content over base, rejecting unknown keys, and validates
// the result.
func Parse(content []byte, base Config) (Config, []Warning, error) {
	cfg := base
	cfg.TTS.Voices = append([]string(nil), base.TTS.Voices...)

	dec := yaml.NewDecoder(bytes.NewReader(content))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, nil, fmt.Errorf("decode yaml: %w", err)
	}

	var extra yaml.Node
	if err := dec.Decode(&extra); err == nil {
		return Config{}, nil, fmt.Errorf("decode yaml: multiple documents are not supported (line %d)", extra.Line)
	}

	warnings, err := Validate(cfg)
	if err != nil {
		return Config{}, nil, err
	}
	return cfg, warnings, nil
}
