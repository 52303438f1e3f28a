// Package worker implements the control-plane-facing worker node: node
// configuration, dataset preprocessing, container task execution, and
// result commit.
package worker

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// NodeConfig is the on-disk node.yml document a worker reads at
// startup.
type NodeConfig struct {
	LocationID string `yaml:"location_id" validate:"required"`

	Paths struct {
		Packages     string `yaml:"packages" validate:"required"`
		Data         string `yaml:"data" validate:"required"`
		Results      string `yaml:"results" validate:"required"`
		TempData     string `yaml:"temp_data" validate:"required"`
		TempResults  string `yaml:"temp_results" validate:"required"`
		Creds        string `yaml:"creds" validate:"required"`
		Certs        string `yaml:"certs" validate:"required"`
		Hashes       string `yaml:"hashes" validate:"required"`
	} `yaml:"paths"`

	Endpoints struct {
		Registry string `yaml:"reg" validate:"required"`
		API      string `yaml:"api" validate:"required"`
		Proxy    string `yaml:"proxy"`
	} `yaml:"endpoints"`

	KeepContainers bool `yaml:"keep_containers"`
}

var validate = validator.New()

// LoadNodeConfig reads and validates node.yml at path.
func LoadNodeConfig(path string) (*NodeConfig, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading node config: %w", err)
	}
	var cfg NodeConfig
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parsing node config: %w", err)
	}
	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("validating node config: %w", err)
	}
	return &cfg, nil
}

// EnsureDirs creates every path directory the config references, so
// callers can treat the node's working tree as present after startup.
func (c *NodeConfig) EnsureDirs() error {
	dirs := []string{
		c.Paths.Packages, c.Paths.Data, c.Paths.Results,
		c.Paths.TempData, c.Paths.TempResults, c.Paths.Creds, c.Paths.Certs,
	}
	for _, d := range dirs {
		if d == "" {
			continue
		}
		if err := os.MkdirAll(d, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", d, err)
		}
	}
	return nil
}
