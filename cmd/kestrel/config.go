// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// For commercial licensing, contact: licensing@kraklabs.com
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/kestrel-lang/kestrel/internal/errors"
)

const configVersion = "1"

// Config is the parsed .kestrel/project.yaml.
type Config struct {
	Version   string `yaml:"version"`
	ProjectID string `yaml:"project_id"`

	Source struct {
		// Entry is the program's entry file, relative to the project root.
		Entry string `yaml:"entry"`
		// Roots lists additional source roots, relative to the project
		// root. They are stored and shown by `kestrel config`; the compiler
		// does not read them, and imports resolve only against the
		// importing file's sub-project.
		Roots []string `yaml:"roots,omitempty"`
	} `yaml:"source"`

	// LibraryPaths lists library directories. They are stored and shown by
	// `kestrel config`; the compiler does not read them, and `from <lib>`
	// imports are not looked up in them.
	LibraryPaths []string `yaml:"library_paths,omitempty"`

	Cache struct {
		// Engine selects the compile-cache storage engine: "rocksdb",
		// "sqlite", "mem", or "off" to disable caching entirely.
		Engine string `yaml:"engine,omitempty"`
		// LocalDataDir overrides the per-project cache directory.
		LocalDataDir string `yaml:"local_data_dir,omitempty"`
	} `yaml:"cache"`

	// Exclude lists glob patterns of source files. They are stored and shown
	// by `kestrel config`; the compiler does not read them, so a matching
	// file that is imported is still compiled.
	Exclude []string `yaml:"exclude,omitempty"`

	// ConfigPath records where this config was loaded from (not persisted).
	ConfigPath string `yaml:"-"`
}

// findConfigFile walks the current directory upward looking for
// .kestrel/project.yaml, so commands work from anywhere inside a project.
func findConfigFile() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", errors.NewInternalError(
			"Cannot determine working directory",
			"Operating system did not provide the current directory",
			"Check that the current directory still exists",
			err,
		)
	}

	for {
		candidate := filepath.Join(dir, ".kestrel", "project.yaml")
		if _, statErr := os.Stat(candidate); statErr == nil {
			return candidate, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return "", errors.NewConfigError(
		"No configuration found",
		"Could not find .kestrel/project.yaml in this directory or any parent",
		"Run 'kestrel init' to create a configuration",
		nil,
	)
}

// LoadConfig reads and validates the configuration. An empty configPath
// triggers upward discovery from the current directory.
func LoadConfig(configPath string) (*Config, error) {
	if configPath == "" {
		if envPath := os.Getenv("KESTREL_CONFIG_PATH"); envPath != "" {
			configPath = envPath
		} else {
			found, err := findConfigFile()
			if err != nil {
				return nil, err // findConfigFile returns UserError
			}
			configPath = found
		}
	}

	data, err := os.ReadFile(configPath) //nolint:gosec // G304: Path comes from user config or discovery
	if err != nil {
		return nil, errors.NewConfigError(
			"Cannot read configuration file",
			fmt.Sprintf("Failed to read %s", configPath),
			"Check file permissions and ensure the file exists",
			err,
		)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.NewConfigError(
			"Invalid configuration format",
			"YAML parsing failed - the config file contains syntax errors",
			fmt.Sprintf("Edit %s to fix syntax errors, or run 'kestrel init --force' to recreate", configPath),
			err,
		)
	}

	if cfg.Version != configVersion {
		return nil, errors.NewConfigError(
			"Unsupported configuration version",
			fmt.Sprintf("Config version '%s' is not supported (expected '%s')", cfg.Version, configVersion),
			"Run 'kestrel init --force' to regenerate the configuration file",
			nil,
		)
	}
	if cfg.Source.Entry == "" {
		return nil, errors.NewConfigError(
			"Missing entry file",
			"source.entry is not set in the configuration",
			"Set source.entry to your program's entry file (e.g. src/main.h64)",
			nil,
		)
	}

	cfg.ConfigPath = configPath
	cfg.applyEnvOverrides()

	return &cfg, nil
}

// applyEnvOverrides lets the environment override persisted settings, for
// CI runs that share one config file.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("KESTREL_PROJECT_ID"); v != "" {
		c.ProjectID = v
	}
	if v := os.Getenv("KESTREL_CACHE_ENGINE"); v != "" {
		c.Cache.Engine = v
	}
	if v := os.Getenv("KESTREL_DATA_DIR"); v != "" {
		c.Cache.LocalDataDir = v
	}
}

// SaveConfig writes the configuration as YAML, creating the .kestrel
// directory if needed.
func SaveConfig(cfg *Config, configPath string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return errors.NewInternalError(
			"Cannot encode configuration",
			"YAML marshaling failed unexpectedly",
			"This is a bug. Please report it with your configuration details",
			err,
		)
	}

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return errors.NewPermissionError(
			"Cannot create configuration directory",
			fmt.Sprintf("Permission denied creating %s", dir),
			"Check directory permissions or run with appropriate privileges",
			err,
		)
	}

	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return errors.NewPermissionError(
			"Cannot write configuration file",
			fmt.Sprintf("Permission denied writing to %s", configPath),
			"Check file permissions and ensure sufficient disk space",
			err,
		)
	}

	return nil
}

// ConfigPathIn returns the config file path inside dir.
func ConfigPathIn(dir string) string {
	return filepath.Join(dir, ".kestrel", "project.yaml")
}

// projectRoot is the directory containing the .kestrel directory.
func projectRoot(cfg *Config) string {
	return filepath.Dir(filepath.Dir(cfg.ConfigPath))
}

// entryFilePath resolves the configured entry file to an absolute path.
func entryFilePath(cfg *Config) (string, error) {
	entry := cfg.Source.Entry
	if !filepath.IsAbs(entry) {
		entry = filepath.Join(projectRoot(cfg), entry)
	}
	abs, err := filepath.Abs(entry)
	if err != nil {
		return "", errors.NewInternalError(
			"Cannot resolve entry file path",
			fmt.Sprintf("filepath.Abs failed for %s", entry),
			"",
			err,
		)
	}
	if _, err := os.Stat(abs); err != nil {
		return "", errors.NewInputError(
			"Entry file not found",
			fmt.Sprintf("source.entry points at %s, which does not exist", abs),
			"Fix source.entry in .kestrel/project.yaml or create the file",
			err,
		)
	}
	return abs, nil
}
