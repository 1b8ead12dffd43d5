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

package object

import "fmt"

// Global is one entry in Program.Globals.
type Global struct {
	Name       string
	ModulePath string
	Library    string
	IsConst    bool
	Initial    Value
}

// AddGlobalVar registers a global variable and returns its id.
func (p *Program) AddGlobalVar(name, modulePath, library string, isConst bool, fileURI string) (int64, error) {
	module, _ := p.Symbols.ModuleFor(modulePath, library)
	if _, exists := module.GlobalVarNameToEntry[name]; exists {
		return -1, fmt.Errorf("object: duplicate global %q in module %q", name, modulePath)
	}

	g := Global{Name: name, ModulePath: modulePath, Library: library, IsConst: isConst, Initial: None()}
	sym := GlobalVarSymbol{Name: name, IsConst: isConst}
	if fileURI != "" {
		sym.FileURIIndex = p.Symbols.FileURIIndex(fileURI)
	}

	globalID := int64(len(p.Globals))
	sym.GlobalID = globalID
	p.Globals = append(p.Globals, g)

	entryIdx := len(module.GlobalVarSymbols)
	module.GlobalVarSymbols = append(module.GlobalVarSymbols, sym)
	module.GlobalVarNameToEntry[name] = entryIdx

	return globalID, nil
}

// SetGlobalInitial sets the compile-time initial value of a global. No code
// in this repository calls it: every global starts as none, and a
// non-trivial initializer runs in the global init function.
func (p *Program) SetGlobalInitial(globalID int64, v Value) error {
	if globalID < 0 || int(globalID) >= len(p.Globals) {
		return fmt.Errorf("object: invalid global id %d", globalID)
	}
	p.Globals[globalID].Initial = v
	return nil
}
