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

package debug

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/kestrel-lang/kestrel/pkg/object"
)

// SearchSymbolsArgs holds arguments for symbol search.
type SearchSymbolsArgs struct {
	Pattern string
	Kind    string // "func", "class", "global", or "all"
	Literal bool   // If true, treat pattern as a literal substring
	Limit   int
}

// SymbolMatch is one search hit.
type SymbolMatch struct {
	Kind       string
	Name       string
	ModulePath string
	GlobalID   int64
	FileURI    string
}

// SearchSymbols matches Pattern against every registered function, class
// and global name across all modules, including the builtin module.
func SearchSymbols(p *object.Program, args SearchSymbolsArgs) (*ToolResult, error) {
	if args.Pattern == "" {
		return NewError("Error: 'pattern' is required"), nil
	}
	if args.Kind == "" {
		args.Kind = "all"
	}
	if args.Limit <= 0 {
		args.Limit = 20
	}

	var matches func(string) bool
	if args.Literal {
		needle := strings.ToLower(args.Pattern)
		matches = func(s string) bool { return strings.Contains(strings.ToLower(s), needle) }
	} else {
		re, err := regexp.Compile(args.Pattern)
		if err != nil {
			return NewError(fmt.Sprintf(
				"Invalid regex pattern %q: %v. Pass literal=true for exact substring matches.",
				args.Pattern, err)), nil
		}
		matches = re.MatchString
	}

	hits := collectMatches(p, args.Kind, matches)
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Kind != hits[j].Kind {
			return hits[i].Kind < hits[j].Kind
		}
		return hits[i].Name < hits[j].Name
	})
	truncated := false
	if len(hits) > args.Limit {
		hits = hits[:args.Limit]
		truncated = true
	}

	if len(hits) == 0 {
		return NewResult(fmt.Sprintf("No symbols matching %q.", args.Pattern)), nil
	}

	var out strings.Builder
	fmt.Fprintf(&out, "Symbols matching %q:\n\n", args.Pattern)
	for _, h := range hits {
		module := h.ModulePath
		if module == object.BuiltinModulePath {
			module = "(builtin)"
		}
		fmt.Fprintf(&out, "  %-7s %-30s module=%s id=%d\n", h.Kind, h.Name, module, h.GlobalID)
	}
	if truncated {
		fmt.Fprintf(&out, "\n(limited to %d results)\n", args.Limit)
	}
	return NewResult(out.String()), nil
}

func collectMatches(p *object.Program, kind string, matches func(string) bool) []SymbolMatch {
	var hits []SymbolMatch
	wantAll := kind == "all"
	for _, m := range p.Symbols.Modules {
		if wantAll || kind == "func" {
			for _, fs := range m.FuncSymbols {
				if matches(fs.Name) {
					hits = append(hits, SymbolMatch{
						Kind: "func", Name: fs.Name, ModulePath: m.ModulePath,
						GlobalID: fs.GlobalID, FileURI: fileURIAt(p, fs.FileURIIndex),
					})
				}
			}
		}
		if wantAll || kind == "class" {
			for _, cs := range m.ClassSymbols {
				if matches(cs.Name) {
					hits = append(hits, SymbolMatch{
						Kind: "class", Name: cs.Name, ModulePath: m.ModulePath,
						GlobalID: cs.GlobalID, FileURI: fileURIAt(p, cs.FileURIIndex),
					})
				}
			}
		}
		if wantAll || kind == "global" {
			for _, gs := range m.GlobalVarSymbols {
				if matches(gs.Name) {
					hits = append(hits, SymbolMatch{
						Kind: "global", Name: gs.Name, ModulePath: m.ModulePath,
						GlobalID: gs.GlobalID, FileURI: fileURIAt(p, gs.FileURIIndex),
					})
				}
			}
		}
	}
	return hits
}

func fileURIAt(p *object.Program, idx int) string {
	if idx < 0 || idx >= len(p.Symbols.FileURIs) {
		return ""
	}
	return p.Symbols.FileURIs[idx]
}

// FindFunction resolves a bare function name to its global id, preferring
// non-builtin modules when the name is ambiguous.
func FindFunction(p *object.Program, name string) (int64, bool) {
	found := int64(-1)
	for i, m := range p.Symbols.Modules {
		if idx, ok := m.FuncNameToEntry[name]; ok {
			if i != p.Symbols.BuiltinModuleIndex {
				return m.FuncSymbols[idx].GlobalID, true
			}
			found = m.FuncSymbols[idx].GlobalID
		}
	}
	return found, found >= 0
}

// FindClass resolves a bare class name to its global id, with the same
// builtin-last preference as FindFunction.
func FindClass(p *object.Program, name string) (int64, bool) {
	found := int64(-1)
	for i, m := range p.Symbols.Modules {
		if idx, ok := m.ClassNameToEntry[name]; ok {
			if i != p.Symbols.BuiltinModuleIndex {
				return m.ClassSymbols[idx].GlobalID, true
			}
			found = m.ClassSymbols[idx].GlobalID
		}
	}
	return found, found >= 0
}
