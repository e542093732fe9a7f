package main

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const defaultAddress = "http://127.0.0.1:8080"

// CLIConfig holds the settings `share config set` persists between runs.
type CLIConfig struct {
	Address   string `yaml:"address"`
	TLSCACert string `yaml:"tls_ca_cert,omitempty"`
	Format    string `yaml:"format,omitempty"` // default for --format
}

var cfg CLIConfig

// configPath is SECRETSHARE_CLI_CONFIG, or ~/.secretshare/config.yaml.
func configPath() string {
	if v := os.Getenv("SECRETSHARE_CLI_CONFIG"); v != "" {
		return v
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".secretshare", "config.yaml")
}

// loadConfig reads path over the defaults. A missing file is not an error.
func loadConfig(path string) (CLIConfig, error) {
	c := CLIConfig{Address: defaultAddress}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return c, nil
	}
	if err != nil {
		return c, err
	}
	if err := yaml.Unmarshal(data, &c); err != nil {
		return CLIConfig{Address: defaultAddress}, fmt.Errorf("parsing %s: %w", path, err)
	}
	return c, nil
}

// set updates one setting by its yaml name.
func (c *CLIConfig) set(key, value string) error {
	switch key {
	case "address":
		c.Address = value
	case "tls_ca_cert":
		c.TLSCACert = value
	case "format":
		switch value {
		case "table", "json", "raw":
		default:
			return fmt.Errorf("unknown format %q", value)
		}
		c.Format = value
	default:
		return fmt.Errorf("unknown setting %q", key)
	}
	return nil
}

// saveConfig writes c to path with owner-only permissions.
func saveConfig(path string, c CLIConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	data, err := yaml.Marshal(&c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}
