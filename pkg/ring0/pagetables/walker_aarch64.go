// Copyright 2026 The gVisor Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package pagetables

import (
	"fmt"

	"gvisor.dev/bootmap/pkg/errors"
	"gvisor.dev/bootmap/pkg/hostarch"
)

// ErrConflict is returned when a walk meets an entry it may not replace, such
// as a block or a malformed descriptor where a table is required.
var ErrConflict = errors.New(errors.Range, "region overlaps an existing non-table entry")

// Walker walks page tables.
type Walker struct {
	// Allocator materializes and resolves tables.
	Allocator Allocator

	// Encoder produces the descriptors written by Map.
	Encoder Encoder
}

// MapStats describes the work done by a single Map call.
type MapStats struct {
	// Tables is the number of tables materialized.
	Tables int

	// Pages is the number of leaf entries written.
	Pages int

	// ContiguousRuns is the number of contiguous-hinted runs written.
	ContiguousRuns int

	// Replaced is the number of valid leaf entries overwritten.
	Replaced int
}

// Install stores child's table descriptor at index of ptes.
func (w *Walker) Install(ptes *PTEs, index int, child *PTEs) {
	ptes[index] = w.Encoder.Table(w.Allocator.PhysicalFor(child))
}

// materialize returns the L3 table covering addr, creating any missing
// intermediate tables on the way down from root.
func (w *Walker) materialize(root *PTEs, top Level, addr uintptr, stats *MapStats) (*PTEs, error) {
	ptes := root
	for l := top; l < L3; l++ {
		index := l.Index(addr)
		entry := ptes[index]
		switch {
		case entry == 0:
			child, err := w.Allocator.NewPTEs()
			if err != nil {
				return nil, err
			}
			w.Install(ptes, index, child)
			stats.Tables++
			ptes = child
		case entry.Kind(l) == Table:
			child := w.Allocator.LookupPTEs(entry.Address())
			if child == nil {
				return nil, fmt.Errorf("%v entry %d for %#x names unknown table %#x", l, index, addr, entry.Address())
			}
			ptes = child
		default:
			return nil, errors.Detailf(ErrConflict, "%v entry %d for %#x is %v (%v)", l, index, addr, entry.Kind(l), entry)
		}
	}
	return ptes, nil
}

// leafRun returns the number of pages to write as one unit at virtual and
// physical with remaining bytes left, and whether they carry the contiguous
// hint. A run is contiguous iff both addresses are aligned to a contiguous
// block and at least a full block remains.
func leafRun(virtual, physical, remaining uintptr) (int, bool) {
	const mask = hostarch.ContiguousSize - 1
	if virtual&mask == 0 && physical&mask == 0 && remaining >= hostarch.ContiguousSize {
		return hostarch.ContiguousPages, true
	}
	return 1, false
}

// Map installs page entries translating [start, end) to physical, creating
// tables below root as needed.
//
// Precondition: start, end and physical are page aligned, start < end, and
// [start, end) lies within the range translated by root.
func (w *Walker) Map(root *PTEs, top Level, start, end, physical uintptr, opts MapOpts) (MapStats, error) {
	var stats MapStats
	for start < end {
		ptes, err := w.materialize(root, top, start, &stats)
		if err != nil {
			return stats, err
		}
		for index := L3.Index(start); start < end && index < entriesPerPage; {
			n, hint := leafRun(start, physical, end-start)
			for i := 0; i < n; i++ {
				if ptes[index].Valid() {
					stats.Replaced++
				}
				ptes[index] = w.Encoder.Page(physical, opts, hint)
				index++
				start += hostarch.PageSize
				physical += hostarch.PageSize
			}
			stats.Pages += n
			if hint {
				stats.ContiguousRuns++
			}
		}
	}
	return stats, nil
}

// Lookup returns the entry that terminates the walk for addr starting at
// root, and the level it was found at. ok is false if the walk ended at an
// invalid entry.
func (w *Walker) Lookup(root *PTEs, top Level, addr uintptr) (pte PTE, level Level, ok bool) {
	ptes := root
	for l := top; ; l++ {
		entry := ptes[l.Index(addr)]
		switch entry.Kind(l) {
		case Invalid:
			return entry, l, false
		case Block, Page:
			return entry, l, true
		default:
			if ptes = w.Allocator.LookupPTEs(entry.Address()); ptes == nil {
				return entry, l, false
			}
		}
	}
}

// Translate returns the physical address for addr, or false if addr is not
// mapped below root.
func (w *Walker) Translate(root *PTEs, top Level, addr uintptr) (uintptr, bool) {
	pte, l, ok := w.Lookup(root, top, addr)
	if !ok {
		return 0, false
	}
	return pte.Address() + addr&(l.Size()-1), true
}

// Visit calls fn for every valid leaf below root, in address order. base is
// the address translated by entry 0 of root. Tables reachable more than once,
// such as recursive self-mappings, are visited only the first time.
func (w *Walker) Visit(root *PTEs, top Level, base uintptr, fn func(addr uintptr, pte PTE, l Level)) {
	seen := map[*PTEs]struct{}{root: {}}
	w.visit(root, top, base, seen, fn)
}

func (w *Walker) visit(ptes *PTEs, l Level, base uintptr, seen map[*PTEs]struct{}, fn func(addr uintptr, pte PTE, l Level)) {
	for index, entry := range ptes {
		addr := base + uintptr(index)<<l.Shift()
		switch entry.Kind(l) {
		case Block, Page:
			fn(addr, entry, l)
		case Table:
			child := w.Allocator.LookupPTEs(entry.Address())
			if child == nil {
				continue
			}
			if _, ok := seen[child]; ok {
				continue
			}
			seen[child] = struct{}{}
			w.visit(child, l+1, addr, seen, fn)
		}
	}
}
