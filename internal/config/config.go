// Package config handles configuration loading and shared data structures.
package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

// Config represents the root configuration file structure.
type Config struct {
	// DataDir is where project documents and sheet images are stored.
	DataDir string `yaml:"data_dir,omitempty" json:"data_dir,omitempty"`

	Cadastre Cadastre `yaml:"cadastre,omitempty" json:"cadastre,omitempty"`

	// SheetMaxDim caps the longer edge of processed sheet images in pixels.
	// Zero keeps full resolution.
	SheetMaxDim int `yaml:"sheet_max_dim,omitempty" json:"sheet_max_dim,omitempty"`
}

// Cadastre configures the boundary-data service.
type Cadastre struct {
	// URL of an ArcGIS-style feature service query endpoint.
	URL string `yaml:"url,omitempty" json:"url,omitempty"`

	// CacheTTL in seconds for fetched boundary sets. Zero means one hour.
	CacheTTL int `yaml:"cache_ttl,omitempty" json:"cache_ttl,omitempty"`
}

// Load reads and parses the YAML configuration file from the specified path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
