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

// Package loader locates source files for the resolver: it maps a project
// root (the directory walked up to from an entry file, the way
// cmd/kestrel's config search walks up looking for .kestrel/project.yaml)
// and a dotted import path to a concrete file, and derives a file's module
// path relative to its owning sub-project.
package loader

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/kestrel-lang/kestrel/pkg/ast"
	"github.com/kestrel-lang/kestrel/pkg/fsutil"
)

// SourceExtension is the recognized source file extension.
const SourceExtension = ".h64"

// ProjectMarkerDir is the directory name a Loader walks upward looking for,
// matching the project-config search cmd/kestrel performs for
// .kestrel/project.yaml.
const ProjectMarkerDir = ".kestrel"

// ParseFunc parses file contents into an *ast.File. Supplied by the caller
// (pkg/parser in this repository) so this package stays independent of the
// lexer/parser.
type ParseFunc func(uri string, src []byte) (*ast.File, error)

// Loader resolves imports to files and caches parsed ASTs so a module
// imported from several places is parsed exactly once.
type Loader struct {
	parse ParseFunc

	mu      sync.RWMutex
	byURI   map[string]*ast.File
	loading map[string]bool // set for a uri while its source is being parsed
}

// New creates a Loader that parses files with parse.
func New(parse ParseFunc) *Loader {
	return &Loader{
		parse:   parse,
		byURI:   make(map[string]*ast.File),
		loading: make(map[string]bool),
	}
}

// SubProject returns the directory containing the nearest ancestor
// .kestrel directory above path (path itself if it is a directory, else its
// parent), and the library name declared there if any. If no .kestrel
// directory is found, the filesystem root reached during the walk is
// returned as the sub-project directory with an empty library name.
func (l *Loader) SubProject(path string) (dir string, library string, err error) {
	dir = path
	if info, statErr := os.Stat(path); statErr == nil && !info.IsDir() {
		dir = filepath.Dir(path)
	}
	dir, err = filepath.Abs(dir)
	if err != nil {
		return "", "", err
	}

	for {
		marker := filepath.Join(dir, ProjectMarkerDir)
		if info, statErr := os.Stat(marker); statErr == nil && info.IsDir() {
			return dir, libraryNameOf(marker), nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return dir, "", nil
		}
		dir = parent
	}
}

func libraryNameOf(markerDir string) string {
	// The library name, if any, is recorded by cmd/kestrel's `init` command
	// as a single line in .kestrel/library_name; absence means "no library".
	b, err := os.ReadFile(filepath.Join(markerDir, "library_name"))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(b))
}

// ModulePath derives the module path for fileURI relative to its
// sub-project, per spec.md §4.B.1.
func (l *Loader) ModulePath(fileURI string) (modulePath, library string, err error) {
	path := strings.TrimPrefix(fileURI, "file://")
	subProjectDir, library, err := l.SubProject(path)
	if err != nil {
		return "", "", err
	}

	rel, err := filepath.Rel(subProjectDir, path)
	if err != nil {
		return "", "", fmt.Errorf("loader: %s is not under sub-project %s: %w", path, subProjectDir, err)
	}
	rel = strings.TrimSuffix(rel, SourceExtension)
	rel = fsutil.Normalize(filepath.ToSlash(rel))

	if fsutil.HasDottedComponent(rel) {
		return "", "", fmt.Errorf("loader: module path component of %q contains '.'", rel)
	}

	modulePath = strings.ReplaceAll(rel, "/", ".")
	return modulePath, library, nil
}

// Resolve turns a dotted import path into a concrete file URI, relative to
// the sub-project directory that owns fromURI. The library argument is not
// consulted: an import with a library name resolves exactly as one without.
func (l *Loader) Resolve(fromURI string, elements []string, library string) (string, error) {
	fromPath := strings.TrimPrefix(fromURI, "file://")
	subProjectDir, _, err := l.SubProject(fromPath)
	if err != nil {
		return "", err
	}

	rel := filepath.Join(elements...) + SourceExtension
	target := filepath.Join(subProjectDir, rel)
	if _, statErr := os.Stat(target); statErr != nil {
		return "", fmt.Errorf("loader: module %s not found (looked for %s)", strings.Join(elements, "."), target)
	}
	return "file://" + target, nil
}

// All returns every AST parsed so far, in unspecified order.
func (l *Loader) All() []*ast.File {
	l.mu.RLock()
	defer l.mu.RUnlock()
	files := make([]*ast.File, 0, len(l.byURI))
	for _, f := range l.byURI {
		files = append(files, f)
	}
	return files
}

// GetAST returns the parsed, cached *ast.File for uri, parsing it the first
// time it is requested. It does not itself run module-path derivation or
// resolution; callers (pkg/resolver) do that once the AST comes back.
func (l *Loader) GetAST(uri string) (*ast.File, error) {
	l.mu.RLock()
	if f, ok := l.byURI[uri]; ok {
		l.mu.RUnlock()
		return f, nil
	}
	l.mu.RUnlock()

	l.mu.Lock()
	defer l.mu.Unlock()
	if f, ok := l.byURI[uri]; ok {
		return f, nil
	}
	if l.loading[uri] {
		return nil, fmt.Errorf("loader: import cycle detected at %s", uri)
	}

	path := strings.TrimPrefix(uri, "file://")
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("loader: cannot read %s: %w", uri, err)
	}

	l.loading[uri] = true
	f, err := l.parse(uri, src)
	delete(l.loading, uri)
	if err != nil {
		return nil, err
	}
	f.URI = uri
	l.byURI[uri] = f
	return f, nil
}
