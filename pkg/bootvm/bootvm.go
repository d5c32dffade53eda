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

// Package bootvm builds the address space handed from the boot stage to the
// kernel.
//
// An AddressSpaceBuilder owns two independently rooted windows:
//
//   - the low range [0, LowerTop), walked from an L0 table and used only to
//     identity map the boot program so enabling the MMU does not move it;
//
//   - the system window [UpperBottom, 2^64), walked from a shared L1
//     "root-of-roots" table. Every execution context gets its own upper-half
//     L0 table whose SystemSlot names that same L1 table, so all contexts see
//     identical system mappings.
//
// The root-of-roots maps itself at SelfSlot and a boot-metadata L2 table at
// MetadataSlot; the metadata table maps itself at MetadataSelfSlot. Both
// tables are therefore reachable through ordinary translation once the MMU is
// live.
//
// The builder is additive and monotonic: nothing is ever unmapped or freed.
// Any error it returns from construction or mapping is fatal (see
// gvisor.dev/bootmap/pkg/errors), and the caller is expected to abort
// bring-up rather than retry.
package bootvm

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/google/btree"
	"gvisor.dev/bootmap/pkg/hostarch"
	"gvisor.dev/bootmap/pkg/log"
	"gvisor.dev/bootmap/pkg/ring0/pagetables"
)

// Fixed table slots.
const (
	// SystemSlot is the slot of every per-context L0 table that names the
	// shared root-of-roots.
	SystemSlot = 511

	// SelfSlot is the slot of the root-of-roots that names itself.
	SelfSlot = 511

	// MetadataSlot is the slot of the root-of-roots that names the
	// boot-metadata table.
	MetadataSlot = 510

	// MetadataSelfSlot is the slot of the boot-metadata table that names
	// itself.
	MetadataSelfSlot = 511
)

// MaxContexts bounds the number of execution contexts that receive a
// top-level table. It reflects the width of the per-context array the next
// stage expects, not a discovered property of the machine.
const MaxContexts = 32

// Address space layout.
const (
	// LowerTop is the end of the low range.
	LowerTop = hostarch.Addr(pagetables.LowerTop)

	// UpperBottom is the start of the system window.
	UpperBottom = hostarch.Addr(pagetables.UpperBottom)

	// MetadataBase is the start of the window translated by the
	// boot-metadata table.
	MetadataBase = UpperBottom + MetadataSlot<<30

	// MetadataLimit is the end of the metadata window that may be mapped;
	// the last 2MiB belong to the metadata table's self-mapping.
	MetadataLimit = MetadataBase + MetadataSelfSlot<<21

	// AutoLimit is the end of the window used by automatic assignment.
	AutoLimit = MetadataBase

	// Auto requests automatic virtual address assignment from MapRegion.
	Auto = ^hostarch.Addr(0)
)

// Config configures an AddressSpaceBuilder.
type Config struct {
	// Contexts is the number of execution contexts that get a top-level
	// table. Zero means MaxContexts.
	Contexts int

	// SMP is set when more than one execution context will run. It selects
	// inner shareable normal memory.
	SMP bool

	// DisablePaging selects pass-through mode: mapping returns the physical
	// address unchanged and touches no table.
	DisablePaging bool

	// ASIDBits is the ASID width, 8 or 16. Zero means 8.
	ASIDBits int

	// PARange is the ID_AA64MMFR0_EL1.PARange field of the boot CPU.
	PARange int

	// Logger receives progress and warnings. Nil means the global logger.
	Logger log.Logger
}

// table is a table and its physical address.
type table struct {
	ptes     *pagetables.PTEs
	physical uintptr
}

// AddressSpaceBuilder builds the boot address space. It must be created with
// New before the MMU is enabled, and is not safe for concurrent mutation.
type AddressSpaceBuilder struct {
	cfg    Config
	tcr    uint64
	walker pagetables.Walker
	alloc  *pagetables.FrameAllocator
	frames pagetables.FrameSource

	// paLimit is the first physical address beyond the output address
	// width.
	paLimit uint64

	// low is the low-range root.
	low table

	// system is the root-of-roots.
	system table

	// metadata is the boot-metadata table.
	metadata table

	// contexts are the per-context top-level tables.
	contexts []table

	// cursor is the next automatically assigned system address.
	cursor hostarch.Addr

	// metadataCursor is the next automatically assigned metadata address.
	metadataCursor hostarch.Addr

	// scratch is the virtual address of the bookkeeping page, and
	// scratchPhysical its frame. The page holds the per-context root array
	// in the layout the next stage reads.
	scratch         hostarch.Addr
	scratchPhysical uintptr

	// regions records every mapping, ordered by virtual address.
	regions *btree.BTreeG[Region]

	log  log.Logger
	warn log.Logger
}

// New builds the roots, the recursive self-mappings and the per-context
// tables, and reserves the scratch page. It must be called exactly once,
// before any mapping and before the MMU is enabled.
func New(cfg Config, frames pagetables.FrameSource) (*AddressSpaceBuilder, error) {
	if cfg.Contexts == 0 {
		cfg.Contexts = MaxContexts
	}
	if cfg.Contexts < 0 || cfg.Contexts > MaxContexts {
		return nil, fmt.Errorf("context count %d out of range [1, %d]", cfg.Contexts, MaxContexts)
	}
	if cfg.ASIDBits == 0 {
		cfg.ASIDBits = 8
	}
	tcr, err := TranslationControl(cfg.ASIDBits, cfg.PARange)
	if err != nil {
		return nil, err
	}
	paBits, _ := PhysicalAddressBits(cfg.PARange)
	if cfg.Logger == nil {
		cfg.Logger = log.Log()
	}

	alloc := pagetables.NewFrameAllocator(frames)
	b := &AddressSpaceBuilder{
		cfg:     cfg,
		tcr:     tcr,
		paLimit: 1 << paBits,
		walker: pagetables.Walker{
			Allocator: alloc,
			Encoder:   pagetables.Encoder{Shareable: cfg.SMP},
		},
		alloc:          alloc,
		frames:         frames,
		cursor:         UpperBottom,
		metadataCursor: MetadataBase,
		regions:        btree.NewG[Region](8, regionLess),
		log:            cfg.Logger,
		warn:           log.BurstRateLimitedLogger(cfg.Logger, time.Second, 4),
	}
	if err := b.init(); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *AddressSpaceBuilder) newTable() (table, error) {
	ptes, err := b.alloc.NewPTEs()
	if err != nil {
		return table{}, err
	}
	return table{ptes: ptes, physical: b.alloc.PhysicalFor(ptes)}, nil
}

func (b *AddressSpaceBuilder) init() error {
	var err error

	// The low root stays empty; the caller identity maps the boot program
	// into it.
	if b.low, err = b.newTable(); err != nil {
		return err
	}

	if b.system, err = b.newTable(); err != nil {
		return err
	}
	b.walker.Install(b.system.ptes, SelfSlot, b.system.ptes)

	if b.metadata, err = b.newTable(); err != nil {
		return err
	}
	b.walker.Install(b.system.ptes, MetadataSlot, b.metadata.ptes)
	b.walker.Install(b.metadata.ptes, MetadataSelfSlot, b.metadata.ptes)

	b.contexts = make([]table, b.cfg.Contexts)
	for i := range b.contexts {
		if b.contexts[i], err = b.newTable(); err != nil {
			return err
		}
		b.walker.Install(b.contexts[i].ptes, SystemSlot, b.system.ptes)
	}

	frame, err := b.frames.AllocFrame()
	if err != nil {
		return err
	}
	if b.scratch, err = b.MapRegion(Auto, frame, hostarch.PageSize, pagetables.MapOpts{AccessType: hostarch.ReadWrite}); err != nil {
		return err
	}
	b.scratchPhysical = frame
	b.recordContextRoots()

	b.log.Debugf("Address space: low root %#x, system root %#x, metadata table %#x, %d contexts, scratch %#x -> %#x",
		b.low.physical, b.system.physical, b.metadata.physical, len(b.contexts), b.scratch, frame)
	return nil
}

// recordContextRoots writes the per-context root array into the scratch
// page as little-endian 64-bit physical addresses.
func (b *AddressSpaceBuilder) recordContextRoots() {
	page, ok := b.frames.Frame(b.scratchPhysical)
	if !ok {
		// The frame source keeps the contents of this frame elsewhere.
		return
	}
	for i, t := range b.contexts {
		binary.LittleEndian.PutUint64(page[i*8:], uint64(t.physical))
	}
}

// LowRoot returns the physical address of the low-range root.
func (b *AddressSpaceBuilder) LowRoot() uintptr {
	return b.low.physical
}

// SystemRoot returns the physical address of the root-of-roots.
func (b *AddressSpaceBuilder) SystemRoot() uintptr {
	return b.system.physical
}

// MetadataTable returns the physical address of the boot-metadata table.
func (b *AddressSpaceBuilder) MetadataTable() uintptr {
	return b.metadata.physical
}

// ContextRoots returns the physical address of each context's top-level
// table, indexed by context.
func (b *AddressSpaceBuilder) ContextRoots() []uintptr {
	roots := make([]uintptr, len(b.contexts))
	for i, t := range b.contexts {
		roots[i] = t.physical
	}
	return roots
}

// ScratchAddr returns the virtual address of the bookkeeping page.
func (b *AddressSpaceBuilder) ScratchAddr() hostarch.Addr {
	return b.scratch
}

// ScratchPhysical returns the frame backing the bookkeeping page.
func (b *AddressSpaceBuilder) ScratchPhysical() uintptr {
	return b.scratchPhysical
}

// TCR returns the translation control value for the next stage.
func (b *AddressSpaceBuilder) TCR() uint64 {
	return b.tcr
}

// Tables returns the number of tables allocated so far.
func (b *AddressSpaceBuilder) Tables() int {
	return b.alloc.Tables()
}

// Paging returns false in pass-through mode.
func (b *AddressSpaceBuilder) Paging() bool {
	return !b.cfg.DisablePaging
}
