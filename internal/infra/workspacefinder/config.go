package workspacefinder

import (
	"os"
	"path/filepath"

	"github.com/cigrirepo/Floww/internal/domain"
	"gopkg.in/yaml.v3"
)

// LoadConfig loads floww.yaml from the workspace root and applies defaults.
func LoadConfig(root string) (domain.Config, error) {
	cfg := domain.DefaultConfig()

	path := filepath.Join(root, "floww.yaml")
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, &domain.OpError{
			Op:   "workspacefinder.loadconfig",
			Kind: domain.KindNotFound,
			Path: path,
			Err:  err,
		}
	}

	var y yamlConfig
	if err := yaml.Unmarshal(b, &y); err != nil {
		return cfg, &domain.OpError{
			Op:   "workspacefinder.loadconfig",
			Kind: domain.KindInvalidConfig,
			Path: path,
			Err:  err,
		}
	}

	// Apply parsed values on top of defaults.
	if y.Floww.Masking.Enabled != nil {
		cfg.Masking.Enabled = *y.Floww.Masking.Enabled
	}
	if y.Floww.Defaults.Env != "" {
		cfg.Defaults.Environment = y.Floww.Defaults.Env
	}
	if y.Floww.Paths.PipelinesDir != "" {
		cfg.Paths.PipelinesDir = y.Floww.Paths.PipelinesDir
	}
	if y.Floww.Paths.EnvironmentsDir != "" {
		cfg.Paths.EnvironmentsDir = y.Floww.Paths.EnvironmentsDir
	}
	if y.Floww.Paths.RunsDir != "" {
		cfg.Paths.RunsDir = y.Floww.Paths.RunsDir
	}

	return cfg, nil
}

type yamlConfig struct {
	Floww struct {
		Masking struct {
			Enabled *bool `yaml:"enabled"`
		} `yaml:"masking"`

		Defaults struct {
			Env string `yaml:"env"`
		} `yaml:"defaults"`

		Paths struct {
			PipelinesDir    string `yaml:"pipelines_dir"`
			EnvironmentsDir string `yaml:"environments_dir"`
			RunsDir         string `yaml:"runs_dir"`
		} `yaml:"paths"`
	} `yaml:"floww"`
}
