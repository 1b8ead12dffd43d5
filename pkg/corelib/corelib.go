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

// Package corelib populates the builtin module before any user code is
// loaded (spec.md §6): the error class hierarchy the VM raises into, and the
// language-provided functions visible by bare name in every source file.
package corelib

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/kestrel-lang/kestrel/pkg/object"
)

// Error class names, base class first. Every other class extends Error and
// inherits its single "message" variable.
const (
	ClassError          = "Error"
	ClassRuntimeError   = "RuntimeError"
	ClassTypeError      = "TypeError"
	ClassMathError      = "MathError"
	ClassIndexError     = "IndexError"
	ClassAttributeError = "AttributeError"
	ClassArgumentError  = "ArgumentError"
	ClassIOError        = "IOError"
)

var derivedErrorClasses = []string{
	ClassRuntimeError, ClassTypeError, ClassMathError,
	ClassIndexError, ClassAttributeError, ClassArgumentError, ClassIOError,
}

// RegisterErrorClasses registers the error hierarchy on the builtin module
// and returns the base Error class id. Must run before user code is
// resolved so the identifier resolver can find the classes by bare name.
func RegisterErrorClasses(p *object.Program) (int64, error) {
	baseID, err := p.AddClass(ClassError, "", "", "")
	if err != nil {
		return -1, err
	}
	if _, err := p.RegisterClassVariable(baseID, "message"); err != nil {
		return -1, err
	}
	for _, name := range derivedErrorClasses {
		id, err := p.AddClass(name, "", "", "")
		if err != nil {
			return -1, err
		}
		p.Classes[id].BaseClassID = baseID
	}
	return baseID, nil
}

// RegisterFuncs registers the builtin functions. stdout receives print's
// output; passing a buffer here is how tests capture program output.
func RegisterFuncs(p *object.Program, stdout io.Writer) error {
	type builtin struct {
		name       string
		argCount   int
		multiArg   bool
		threadable bool
		fn         object.CFunc
	}
	builtins := []builtin{
		{"print", 1, true, false, printFunc(stdout)},
		{"str", 1, false, true, strFunc},
		{"int", 1, false, true, intFunc},
		{"float", 1, false, true, floatFunc},
		{"assert", 1, true, true, assertFunc},
	}
	for _, b := range builtins {
		if _, err := p.RegisterCFunction(b.name, "", "", b.argCount, nil, b.multiArg, b.fn); err != nil {
			return fmt.Errorf("corelib: %w", err)
		}
	}
	return nil
}

// printFunc writes its arguments separated by spaces, newline-terminated.
// Arguments arrive exported: heap strings come in as inline string
// payloads, so no heap access is needed here.
func printFunc(w io.Writer) object.CFunc {
	return func(args []object.Value, kwargs map[string]object.Value) (object.Value, error) {
		parts := make([]string, 0, len(args))
		for _, a := range args {
			parts = append(parts, formatValue(a))
		}
		if _, err := fmt.Fprintln(w, strings.Join(parts, " ")); err != nil {
			return object.None(), fmt.Errorf("print: %w", err)
		}
		return object.None(), nil
	}
}

func strFunc(args []object.Value, kwargs map[string]object.Value) (object.Value, error) {
	if len(args) != 1 {
		return object.None(), fmt.Errorf("str takes 1 argument, got %d", len(args))
	}
	return object.PreallocStr(formatValue(args[0])), nil
}

func intFunc(args []object.Value, kwargs map[string]object.Value) (object.Value, error) {
	if len(args) != 1 {
		return object.None(), fmt.Errorf("int takes 1 argument, got %d", len(args))
	}
	switch v := args[0]; v.Type {
	case object.ValInt64, object.ValBool:
		return object.Int64(v.IntValue), nil
	case object.ValFloat64:
		return object.Int64(int64(v.FloatValue)), nil
	case object.ValConstPreallocStr:
		n, err := strconv.ParseInt(strings.TrimSpace(v.StrValue), 10, 64)
		if err != nil {
			return object.None(), fmt.Errorf("int: cannot parse %q", v.StrValue)
		}
		return object.Int64(n), nil
	default:
		return object.None(), fmt.Errorf("int: cannot convert %s", v.Type)
	}
}

func floatFunc(args []object.Value, kwargs map[string]object.Value) (object.Value, error) {
	if len(args) != 1 {
		return object.None(), fmt.Errorf("float takes 1 argument, got %d", len(args))
	}
	switch v := args[0]; v.Type {
	case object.ValInt64, object.ValBool:
		return object.Float64(float64(v.IntValue)), nil
	case object.ValFloat64:
		return v, nil
	case object.ValConstPreallocStr:
		f, err := strconv.ParseFloat(strings.TrimSpace(v.StrValue), 64)
		if err != nil {
			return object.None(), fmt.Errorf("float: cannot parse %q", v.StrValue)
		}
		return object.Float64(f), nil
	default:
		return object.None(), fmt.Errorf("float: cannot convert %s", v.Type)
	}
}

func assertFunc(args []object.Value, kwargs map[string]object.Value) (object.Value, error) {
	if len(args) == 0 || !args[0].IsTruthy() {
		msg := "assertion failed"
		if len(args) > 1 && args[1].Type == object.ValConstPreallocStr {
			msg = args[1].StrValue
		}
		return object.None(), fmt.Errorf("%s", msg)
	}
	return object.None(), nil
}

func formatValue(v object.Value) string {
	switch v.Type {
	case object.ValNone:
		return "none"
	case object.ValBool:
		if v.IntValue != 0 {
			return "true"
		}
		return "false"
	case object.ValInt64:
		return strconv.FormatInt(v.IntValue, 10)
	case object.ValFloat64:
		return strconv.FormatFloat(v.FloatValue, 'g', -1, 64)
	case object.ValConstPreallocStr:
		return v.StrValue
	case object.ValFuncRef:
		return fmt.Sprintf("<function %d>", v.IntValue)
	case object.ValClassRef:
		return fmt.Sprintf("<class %d>", v.IntValue)
	case object.ValGCVal:
		return fmt.Sprintf("<object %d>", v.GCHandle)
	default:
		return "<invalid>"
	}
}
