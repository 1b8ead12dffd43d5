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

package lower_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrel-lang/kestrel/pkg/ast"
	"github.com/kestrel-lang/kestrel/pkg/corelib"
	"github.com/kestrel-lang/kestrel/pkg/loader"
	"github.com/kestrel-lang/kestrel/pkg/lower"
	"github.com/kestrel-lang/kestrel/pkg/object"
	"github.com/kestrel-lang/kestrel/pkg/parser"
	"github.com/kestrel-lang/kestrel/pkg/resolver"
	"github.com/kestrel-lang/kestrel/pkg/vm"
)

// compileSource runs the full pipeline over a set of source files and
// returns the compiled program, the lowered stream, and print's output
// buffer.
func compileSource(t *testing.T, sources map[string]string, entry string) (*object.Program, []vm.Instruction, *bytes.Buffer, *ast.File) {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, loader.ProjectMarkerDir), 0o755))
	for name, src := range sources {
		require.NoError(t, os.WriteFile(filepath.Join(root, name), []byte(src), 0o644))
	}

	var stdout bytes.Buffer
	p := object.NewProgram()
	_, err := corelib.RegisterErrorClasses(p)
	require.NoError(t, err)
	require.NoError(t, corelib.RegisterFuncs(p, &stdout))

	ld := loader.New(parser.Parse)
	entryAST, err := ld.GetAST("file://" + filepath.Join(root, entry))
	require.NoError(t, err)

	res := resolver.New(p, ld)
	require.NoError(t, res.ResolveAST(entryAST, true))
	for _, f := range ld.All() {
		for _, d := range f.Diagnostics {
			t.Fatalf("diagnostic on %s: %s", f.URI, d.Message)
		}
	}

	code, err := lower.Program(p, ld.All())
	require.NoError(t, err)
	return p, code, &stdout, entryAST
}

func runMain(t *testing.T, p *object.Program, code []vm.Instruction) {
	t.Helper()
	th := vm.NewThread(p, code)
	if p.GlobalInitFuncID >= 0 {
		_, err := th.Run(p.GlobalInitFuncID)
		require.NoError(t, err)
	}
	require.GreaterOrEqual(t, p.MainFuncID, int64(0), "main was not extracted")
	_, err := th.Run(p.MainFuncID)
	require.NoError(t, err)
}

func TestEndToEndImportedFunctionCall(t *testing.T) {
	p, code, stdout, entryAST := compileSource(t, map[string]string{
		"b.h64":    "func f { return 42 }",
		"main.h64": "import b\nfunc main { print(b.f()) }",
	}, "main.h64")

	// Spec scenario: the call site b.f resolves to B.f's function slot, and
	// the import is marked used.
	mainFn := entryAST.Body[0].(*ast.FuncDef)
	call := mainFn.Body[0].(*ast.Call).Args[0].(*ast.Call)
	member := call.Callee.(*ast.BinaryOp)
	rhs := member.Right.(*ast.IdentifierRef)
	require.True(t, rhs.Storage.Set)
	assert.Equal(t, object.GlobalFuncSlot, rhs.Storage.Kind)

	impDef, ok := entryAST.RootScope.Local("b")
	require.True(t, ok)
	assert.True(t, impDef.EverUsed)

	runMain(t, p, code)
	assert.Equal(t, "42\n", stdout.String())
}

func TestEndToEndGlobalInitializer(t *testing.T) {
	p, code, stdout, _ := compileSource(t, map[string]string{
		"main.h64": "var greeting = \"hello\"\nfunc main { print(greeting) }",
	}, "main.h64")

	require.GreaterOrEqual(t, p.GlobalInitFuncID, int64(0), "a non-trivial global initializer should synthesize $$globalinit")
	runMain(t, p, code)
	assert.Equal(t, "hello\n", stdout.String())
}

func TestEndToEndArithmeticAndLocals(t *testing.T) {
	p, code, stdout, _ := compileSource(t, map[string]string{
		"main.h64": "func add(a, b) { return a + b }\nfunc main { var x = add(40, 2)\nprint(x) }",
	}, "main.h64")

	runMain(t, p, code)
	assert.Equal(t, "42\n", stdout.String())
}

func TestEndToEndClassConstructionAndMethod(t *testing.T) {
	p, code, stdout, _ := compileSource(t, map[string]string{
		"main.h64": `
class Counter {
	var start = 40
	func bump(by) { return self.start + by }
}
func main {
	var c = Counter()
	print(c.bump(2))
}
`,
	}, "main.h64")

	runMain(t, p, code)
	assert.Equal(t, "42\n", stdout.String())
}

func TestEndToEndNestedFunction(t *testing.T) {
	p, code, stdout, _ := compileSource(t, map[string]string{
		"main.h64": "func main { func twice(n) { return n * 2 }\nprint(twice(21)) }",
	}, "main.h64")

	runMain(t, p, code)
	assert.Equal(t, "42\n", stdout.String())
}

func TestEndToEndKeywordArgumentsAndDefaults(t *testing.T) {
	p, code, stdout, _ := compileSource(t, map[string]string{
		"main.h64": "func total(a, b = 30, c = 4) { return a + b + c }\n" +
			"func main { print(total(8))\nprint(total(10, b = 2)) }",
	}, "main.h64")

	runMain(t, p, code)
	assert.Equal(t, "42\n16\n", stdout.String())
}

func TestEndToEndUncaughtErrorSurfaces(t *testing.T) {
	p, code, _, _ := compileSource(t, map[string]string{
		"main.h64": "func main { return 1 / 0 }",
	}, "main.h64")

	th := vm.NewThread(p, code)
	_, err := th.Run(p.MainFuncID)
	require.Error(t, err)
	re, ok := err.(*vm.RuntimeError)
	require.True(t, ok)
	sym, found := p.Symbols.ClassSymbolByID(re.ClassID)
	require.True(t, found)
	assert.Equal(t, corelib.ClassMathError, sym.Name)
}
