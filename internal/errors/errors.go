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

// Package errors defines the CLI's user-facing error type: a categorized
// error with a title, a detail line, and an actionable suggestion, rendered
// either as colored text or as JSON depending on the output mode.
//
// Compiler diagnostics are NOT this type: they are non-fatal values
// collected on an AST's diagnostics list, and only the driver's decision
// that the whole build failed is promoted to a fatal UserError here.
package errors

import (
	"encoding/json"
	"fmt"
	"os"
)

// Kind categorizes a UserError for exit reporting and JSON output.
type Kind string

const (
	KindConfig     Kind = "config"
	KindInput      Kind = "input"
	KindPermission Kind = "permission"
	KindDatabase   Kind = "database"
	KindNetwork    Kind = "network"
	KindInternal   Kind = "internal"
)

// UserError is an error meant to be shown to the CLI user.
type UserError struct {
	Kind       Kind   `json:"kind"`
	Title      string `json:"title"`
	Detail     string `json:"detail"`
	Suggestion string `json:"suggestion,omitempty"`
	Cause      error  `json:"-"`
}

func (e *UserError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Title, e.Detail, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Title, e.Detail)
}

func (e *UserError) Unwrap() error { return e.Cause }

func newError(kind Kind, title, detail, suggestion string, cause error) *UserError {
	return &UserError{Kind: kind, Title: title, Detail: detail, Suggestion: suggestion, Cause: cause}
}

// NewConfigError reports a problem with the project configuration.
func NewConfigError(title, detail, suggestion string, cause error) *UserError {
	return newError(KindConfig, title, detail, suggestion, cause)
}

// NewInputError reports invalid command-line input or source arguments.
func NewInputError(title, detail, suggestion string, cause error) *UserError {
	return newError(KindInput, title, detail, suggestion, cause)
}

// NewPermissionError reports a filesystem permission problem.
func NewPermissionError(title, detail, suggestion string, cause error) *UserError {
	return newError(KindPermission, title, detail, suggestion, cause)
}

// NewDatabaseError reports a compile-cache storage problem.
func NewDatabaseError(title, detail, suggestion string, cause error) *UserError {
	return newError(KindDatabase, title, detail, suggestion, cause)
}

// NewNetworkError reports a failure reaching the query server.
func NewNetworkError(title, detail, suggestion string, cause error) *UserError {
	return newError(KindNetwork, title, detail, suggestion, cause)
}

// NewInternalError reports a bug: an invariant the program itself violated.
func NewInternalError(title, detail, suggestion string, cause error) *UserError {
	return newError(KindInternal, title, detail, suggestion, cause)
}

// fatalJSON is the JSON shape emitted in --json mode.
type fatalJSON struct {
	Error *UserError `json:"error"`
	Cause string     `json:"cause,omitempty"`
}

// FatalError prints err and exits nonzero. In jsonMode the error is emitted
// as a single JSON object on stdout (so MCP-style callers always get
// parseable output); otherwise a human-readable block goes to stderr.
func FatalError(err error, jsonMode bool) {
	ue, ok := err.(*UserError)
	if !ok {
		ue = NewInternalError("Unexpected error", err.Error(), "", err)
	}

	if jsonMode {
		out := fatalJSON{Error: ue}
		if ue.Cause != nil {
			out.Cause = ue.Cause.Error()
		}
		enc := json.NewEncoder(os.Stdout)
		_ = enc.Encode(out)
		os.Exit(1)
	}

	fmt.Fprintf(os.Stderr, "Error: %s\n", ue.Title)
	if ue.Detail != "" {
		fmt.Fprintf(os.Stderr, "  %s\n", ue.Detail)
	}
	if ue.Cause != nil {
		fmt.Fprintf(os.Stderr, "  cause: %v\n", ue.Cause)
	}
	if ue.Suggestion != "" {
		fmt.Fprintf(os.Stderr, "\n%s\n", ue.Suggestion)
	}
	os.Exit(1)
}
