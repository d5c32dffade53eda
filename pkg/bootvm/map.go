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

package bootvm

import (
	"gvisor.dev/bootmap/pkg/errors"
	"gvisor.dev/bootmap/pkg/hostarch"
	"gvisor.dev/bootmap/pkg/ring0/pagetables"
)

var (
	// ErrAlignment is returned when an explicit virtual address does not
	// share its page offset with the physical address.
	ErrAlignment = errors.New(errors.Alignment, "virtual and physical page offsets differ")

	// ErrRange is returned when a region crosses the gap between the low
	// range and the system window, enters a recursive window, exhausts
	// automatic assignment, or wraps.
	ErrRange = errors.New(errors.Range, "region outside the ranges owned by the roots")
)

// root is a table to walk from and the level of that table.
type root struct {
	table
	top pagetables.Level
}

// selectRoot returns the root translating [start, end). MapRegion and
// Translate both use it, so they always agree on which root owns an address.
//
// Precondition: start < end, or end == 0 for a range reaching the top of the
// address space.
func (b *AddressSpaceBuilder) selectRoot(start, end hostarch.Addr) (root, error) {
	switch {
	case end != 0 && end <= LowerTop:
		return root{table: b.low, top: pagetables.L0}, nil
	case start >= UpperBottom:
		return root{table: b.system, top: pagetables.L1}, nil
	default:
		return root{}, errors.Detailf(ErrRange, "[%#x, %#x) is not within [0, %#x) or [%#x, 2^64)", start, end, LowerTop, UpperBottom)
	}
}

// window is an automatic assignment window.
type window struct {
	cursor *hostarch.Addr
	limit  hostarch.Addr
}

// MapRegion maps size bytes at physical and returns the virtual address
// holding physical. vaddr is either Auto or an explicit address whose page
// offset equals that of physical.
//
// Auto-assigned regions come from the system window in increasing order and
// never overlap. In pass-through mode, physical is returned unchanged.
//
// Any error is fatal.
func (b *AddressSpaceBuilder) MapRegion(vaddr hostarch.Addr, physical uintptr, size uint64, opts pagetables.MapOpts) (hostarch.Addr, error) {
	return b.mapRegion(vaddr, physical, size, opts, window{cursor: &b.cursor, limit: AutoLimit})
}

// MapMetadata maps boot metadata, such as the boot parameter block and
// callout tables, at the next free address of the metadata window.
func (b *AddressSpaceBuilder) MapMetadata(physical uintptr, size uint64, opts pagetables.MapOpts) (hostarch.Addr, error) {
	return b.mapRegion(Auto, physical, size, opts, window{cursor: &b.metadataCursor, limit: MetadataLimit})
}

func (b *AddressSpaceBuilder) mapRegion(vaddr hostarch.Addr, physical uintptr, size uint64, opts pagetables.MapOpts, w window) (hostarch.Addr, error) {
	if b.cfg.DisablePaging {
		return hostarch.Addr(physical), nil
	}

	// Normalize.
	offset := hostarch.Addr(physical).PageOffset()
	pbase := physical - uintptr(offset)
	length, ok := hostarch.PageRoundUp(offset + size)
	if !ok || length < size {
		return 0, errors.Detailf(ErrRange, "size %#x at %#x wraps", size, physical)
	}
	if _, ok := hostarch.Addr(pbase).AddLength(length); !ok {
		return 0, errors.Detailf(ErrRange, "physical [%#x, +%#x) wraps", pbase, length)
	}
	if uint64(pbase)+length > b.paLimit {
		return 0, errors.Detailf(ErrRange, "physical [%#x, +%#x) is beyond the %#x output address limit", pbase, length, b.paLimit)
	}

	// Assign.
	var vbase hostarch.Addr
	if vaddr == Auto {
		vbase = *w.cursor
		end, ok := vbase.AddLength(length)
		if !ok || end > w.limit {
			return 0, errors.Detailf(ErrRange, "automatic assignment of %#x bytes at %#x passes %#x", length, vbase, w.limit)
		}
		*w.cursor = end
	} else {
		if vaddr.PageOffset() != offset {
			return 0, errors.Detailf(ErrAlignment, "vaddr %#x, paddr %#x", vaddr, physical)
		}
		vbase = vaddr.RoundDown()
	}

	// Select the root. An empty region still has to name an address that
	// some root owns.
	if length == 0 {
		if _, err := b.selectRoot(vbase, vbase+1); err != nil {
			return 0, err
		}
		return vbase + hostarch.Addr(offset), nil
	}
	vr, ok := vbase.ToRange(length)
	if !ok {
		return 0, errors.Detailf(ErrRange, "virtual [%#x, +%#x) wraps", vbase, length)
	}
	r, err := b.selectRoot(vr.Start, vr.End)
	if err != nil {
		return 0, err
	}
	if r.top == pagetables.L1 && vr.End > MetadataLimit {
		return 0, errors.Detailf(ErrRange, "%v reaches the recursive windows at %#x", vr, MetadataLimit)
	}

	// Walk, create and populate.
	stats, err := b.walker.Map(r.ptes, r.top, uintptr(vr.Start), uintptr(vr.End), pbase, opts)
	if err != nil {
		return 0, err
	}
	if stats.Replaced > 0 {
		b.warn.Warningf("Mapping %v -> %#x replaced %d existing pages", vr, pbase, stats.Replaced)
	}
	b.log.Debugf("Mapped %v -> %#x %v: %d pages, %d contiguous runs, %d new tables", vr, pbase, opts, stats.Pages, stats.ContiguousRuns, stats.Tables)

	b.regions.ReplaceOrInsert(Region{
		Virtual:        vr,
		Physical:       pbase,
		Opts:           opts,
		ContiguousRuns: stats.ContiguousRuns,
	})
	return vbase + hostarch.Addr(offset), nil
}
