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

// Package ui centralizes the CLI's colored terminal output. Colors are
// disabled when --no-color is passed, NO_COLOR is set, or stdout is not a
// TTY.
package ui

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
)

// Shared color values for callers that format inline (e.g.
// ui.Cyan.Sprint("kestrel build")).
var (
	Cyan   = color.New(color.FgCyan)
	Yellow = color.New(color.FgYellow)
	Green  = color.New(color.FgGreen)
	Red    = color.New(color.FgRed)
	Dim    = color.New(color.Faint)
	Bold   = color.New(color.Bold)
)

// InitColors enables or disables color output globally. Call once at
// startup, before any output.
func InitColors(noColor bool) {
	if noColor || os.Getenv("NO_COLOR") != "" {
		color.NoColor = true
		return
	}
	if !isatty.IsTerminal(os.Stdout.Fd()) && !isatty.IsCygwinTerminal(os.Stdout.Fd()) {
		color.NoColor = true
	}
}

// Header prints a bold top-level section header followed by an underline.
func Header(text string) {
	_, _ = Bold.Println(text)
	fmt.Println(underline(len(text)))
}

// SubHeader prints a secondary section header.
func SubHeader(text string) {
	fmt.Println()
	_, _ = Bold.Println(text)
}

func underline(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = '='
	}
	return string(b)
}

// Label formats a field label for aligned key/value output.
func Label(text string) string {
	return Bold.Sprint(text)
}

// DimText formats de-emphasized detail text.
func DimText(text string) string {
	return Dim.Sprint(text)
}

// CountText formats a numeric counter for emphasis in summaries.
func CountText(n int) string {
	return Cyan.Sprintf("%d", n)
}

// Success prints a green success line.
func Success(text string) {
	_, _ = Green.Printf("✓ %s\n", text)
}

// Successf is Success with formatting.
func Successf(format string, args ...any) {
	Success(fmt.Sprintf(format, args...))
}

// Warning prints a yellow warning line to stderr.
func Warning(text string) {
	_, _ = Yellow.Fprintf(os.Stderr, "warning: %s\n", text)
}

// Warningf is Warning with formatting.
func Warningf(format string, args ...any) {
	Warning(fmt.Sprintf(format, args...))
}

// Info prints a neutral informational line.
func Info(text string) {
	fmt.Println(text)
}

// Infof is Info with formatting.
func Infof(format string, args ...any) {
	Info(fmt.Sprintf(format, args...))
}
