package config

import (
	"bytes"
	"encoding/json"
	"io"

	"github.com/a8m/envsubst"
	"github.com/pkg/errors"
)

// Read reads a config from the given JSON file. ${VAR} references are substituted from the
// environment before parsing.
func Read(filePath string) (*Config, error) {
	buf, err := envsubst.ReadFile(filePath)
	if err != nil {
		return nil, err
	}
	return FromReader(bytes.NewReader(buf))
}

// FromReader reads a config from the given reader, applies defaults and validates it.
func FromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	decoder := json.NewDecoder(r)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(cfg); err != nil {
		return nil, errors.Wrap(err, "cannot parse config")
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(""); err != nil {
		return nil, err
	}
	return cfg, nil
}
