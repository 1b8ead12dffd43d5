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

// Package metrics holds the process-wide Prometheus collectors for the
// compiler and VM. cmd/kestrel exposes them on /metrics via promhttp when
// serving or building with --metrics-addr.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// InstructionsExecuted counts VM instructions dispatched, added in bulk
	// at frame exit so the dispatch hot path stays allocation- and
	// atomic-free per instruction.
	InstructionsExecuted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "kestrel_vm_instructions_executed_total",
		Help: "VM instructions dispatched across all threads.",
	})

	// HeapLiveValues is a gauge for live GC values in a VM heap pool. No
	// code samples a heap into it: `kestrel run` sets it to 0 once the
	// program has finished.
	HeapLiveValues = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "kestrel_vm_heap_live_values",
		Help: "Live GC values in a VM heap pool (set to 0 after a run; not sampled from the heap).",
	})

	// FilesCompiled counts source files parsed and resolved.
	FilesCompiled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "kestrel_compile_files_total",
		Help: "Source files parsed and resolved.",
	})

	// CompileCacheHits / CompileCacheMisses track per-file compile-cache
	// outcomes during a build.
	CompileCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "kestrel_compile_cache_hits_total",
		Help: "Files whose content hash was already recorded in the compile cache.",
	})
	CompileCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "kestrel_compile_cache_misses_total",
		Help: "Files not yet recorded in the compile cache and written to it.",
	})

	// Registered program-object entities, set from the program tables after
	// a build completes.
	FunctionsRegistered = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "kestrel_program_functions",
		Help: "Functions registered in the program object model.",
	})
	ClassesRegistered = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "kestrel_program_classes",
		Help: "Classes registered in the program object model.",
	})
	GlobalsRegistered = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "kestrel_program_globals",
		Help: "Global variables registered in the program object model.",
	})
)
