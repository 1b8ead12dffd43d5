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
	"os"
	"path/filepath"
	"sync"

	"github.com/kestrel-lang/kestrel/internal/errors"
)

// documentsPath and appDataPath are process-global one-shot caches:
// initialized lazily on first use, read-only afterwards. Only this
// OS-integration layer consults them; the compiler and VM never do.
var (
	documentsOnce sync.Once
	documentsPath string

	appDataOnce sync.Once
	appDataPath string
)

// DocumentsPath returns the user's documents directory, falling back to the
// home directory and finally to ".".
func DocumentsPath() string {
	documentsOnce.Do(func() {
		home, err := os.UserHomeDir()
		if err != nil {
			documentsPath = "."
			return
		}
		docs := filepath.Join(home, "Documents")
		if info, err := os.Stat(docs); err == nil && info.IsDir() {
			documentsPath = docs
			return
		}
		documentsPath = home
	})
	return documentsPath
}

// AppDataPath returns kestrel's per-user data directory: $XDG_DATA_HOME/kestrel
// when set, otherwise ~/.kestrel.
func AppDataPath() string {
	appDataOnce.Do(func() {
		if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
			appDataPath = filepath.Join(xdg, "kestrel")
			return
		}
		home, err := os.UserHomeDir()
		if err != nil {
			appDataPath = "."
			return
		}
		appDataPath = filepath.Join(home, ".kestrel")
	})
	return appDataPath
}

// dataRootFromConfig resolves the compile-cache root directory:
// KESTREL_DATA_DIR, then the config override, then <appdata>/data.
func dataRootFromConfig(cfg *Config, configPath string) (string, error) {
	if envDir := os.Getenv("KESTREL_DATA_DIR"); envDir != "" {
		return absPath(envDir)
	}

	if cfg != nil && cfg.Cache.LocalDataDir != "" {
		custom := cfg.Cache.LocalDataDir
		if filepath.IsAbs(custom) {
			return filepath.Clean(custom), nil
		}

		cfgFilePath, err := resolvedConfigPath(cfg, configPath)
		if err == nil {
			baseDir := filepath.Dir(filepath.Dir(cfgFilePath))
			return filepath.Clean(filepath.Join(baseDir, custom)), nil
		}

		return absPath(custom)
	}

	return filepath.Join(AppDataPath(), "data"), nil
}

// projectDataDir resolves the effective per-project data directory.
func projectDataDir(cfg *Config, configPath string) (string, error) {
	root, err := dataRootFromConfig(cfg, configPath)
	if err != nil {
		return "", err
	}
	if cfg == nil || cfg.ProjectID == "" {
		return root, nil
	}
	return filepath.Join(root, cfg.ProjectID), nil
}

func resolvedConfigPath(cfg *Config, configPath string) (string, error) {
	if cfg != nil && cfg.ConfigPath != "" {
		return absPath(cfg.ConfigPath)
	}
	if configPath != "" {
		return absPath(configPath)
	}
	if envPath := os.Getenv("KESTREL_CONFIG_PATH"); envPath != "" {
		return absPath(envPath)
	}
	path, err := findConfigFile()
	if err != nil {
		return "", errors.NewConfigError(
			"Cannot resolve config path",
			"No configuration file was found for this project",
			"Run 'kestrel init' first",
			err,
		)
	}
	return absPath(path)
}

func absPath(path string) (string, error) {
	if filepath.IsAbs(path) {
		return filepath.Clean(path), nil
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	return filepath.Clean(abs), nil
}
