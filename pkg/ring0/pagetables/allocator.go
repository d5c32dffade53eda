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

	"gvisor.dev/bootmap/pkg/hostarch"
)

// Allocator is used to allocate and map PTEs.
//
// Allocators are not safe for concurrent use; the boot stage builds tables
// from a single execution context.
type Allocator interface {
	// NewPTEs returns a new, empty set of PTEs.
	NewPTEs() (*PTEs, error)

	// PhysicalFor gives the physical address for a set of PTEs.
	PhysicalFor(ptes *PTEs) uintptr

	// LookupPTEs looks up PTEs by physical address. It returns nil if no
	// table lives at physical.
	LookupPTEs(physical uintptr) *PTEs
}

// FrameSource supplies page-aligned physical frames and access to their
// contents.
type FrameSource interface {
	// AllocFrame returns a fresh frame, or an error if none is left.
	AllocFrame() (uintptr, error)

	// Frame returns the bytes of the frame containing physical.
	Frame(physical uintptr) ([]byte, bool)
}

// FrameAllocator is an Allocator that places tables in frames obtained from
// a FrameSource.
type FrameAllocator struct {
	frames FrameSource

	// physical maps each table to its frame.
	physical map[*PTEs]uintptr

	// tables maps frames back to tables. Only frames allocated as tables
	// are present.
	tables map[uintptr]*PTEs
}

// NewFrameAllocator returns an allocator drawing from frames.
func NewFrameAllocator(frames FrameSource) *FrameAllocator {
	return &FrameAllocator{
		frames:   frames,
		physical: make(map[*PTEs]uintptr),
		tables:   make(map[uintptr]*PTEs),
	}
}

// NewPTEs implements Allocator.NewPTEs.
//
// The frame is zeroed before use, so a table is always empty when first
// installed.
func (a *FrameAllocator) NewPTEs() (*PTEs, error) {
	physical, err := a.frames.AllocFrame()
	if err != nil {
		return nil, err
	}
	b, ok := a.frames.Frame(physical)
	if !ok || len(b) < hostarch.PageSize {
		return nil, fmt.Errorf("frame %#x has no backing memory", physical)
	}
	clear(b)
	ptes := ptesFor(b)
	a.physical[ptes] = physical
	a.tables[physical] = ptes
	return ptes, nil
}

// PhysicalFor implements Allocator.PhysicalFor.
func (a *FrameAllocator) PhysicalFor(ptes *PTEs) uintptr {
	return a.physical[ptes]
}

// LookupPTEs implements Allocator.LookupPTEs.
func (a *FrameAllocator) LookupPTEs(physical uintptr) *PTEs {
	return a.tables[physical&addrMask]
}

// Tables returns the number of tables allocated.
func (a *FrameAllocator) Tables() int {
	return len(a.tables)
}
