package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"jobassign/internal/model"
)

// LoadCompanyProfile reads a YAML company profile. Keys that are absent keep
// their default value. An empty path returns the defaults.
func LoadCompanyProfile(path string) (model.CompanyConfig, error) {
	c := model.DefaultCompany()
	if path == "" {
		return c, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return c, fmt.Errorf("read company profile: %w", err)
	}
	return ParseCompanyProfile(b)
}

// ParseCompanyProfile decodes a YAML profile over the defaults.
func ParseCompanyProfile(b []byte) (model.CompanyConfig, error) {
	c := model.DefaultCompany()
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil && !errors.Is(err, io.EOF) {
		return c, fmt.Errorf("parse company profile: %w", err)
	}
	if err := c.Validate(); err != nil {
		return c, fmt.Errorf("company profile: %w", err)
	}
	return c, nil
}
