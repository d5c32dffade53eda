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

	"gvisor.dev/bootmap/pkg/bits"
	"gvisor.dev/bootmap/pkg/hostarch"
)

// Descriptor bits.
const (
	typeMask  = 0x3
	typeTable = 0x3
	typeSect  = 0x1
	typePage  = 0x3

	validBit = 1 << 0

	attrIndxShift = 2
	attrIndxMask  = 0x7 << attrIndxShift

	user         = 1 << 6 // AP[1]
	readOnly     = 1 << 7 // AP[2]
	shareability = 0x3 << 8
	innerShare   = 0x3 << 8
	accessed     = 1 << 10
	nG           = 1 << 11
	contiguous   = 1 << 52
	pxn          = 1 << 53
	xn           = 1 << 54

	// addrMask covers output address bits [47:12].
	addrMask = 0x0000fffffffff000
)

// MAIR attribute indices, one per hostarch.MemoryType.
const (
	attrNormal            = 0
	attrNormalNonCachable = 1
	attrDevice            = 2
	attrDeviceStrong      = 3
)

// MAIR is the MAIR_EL1 value matching the attribute indices used in leaf
// descriptors.
var MAIR = bits.Field64(0xff, attrNormal*8, 8) | // Normal, inner/outer write-back non-transient.
	bits.Field64(0x44, attrNormalNonCachable*8, 8) | // Normal, inner/outer non-cacheable.
	bits.Field64(0x04, attrDevice*8, 8) | // Device-nGnRE.
	bits.Field64(0x00, attrDeviceStrong*8, 8) // Device-nGnRnE.

var attrForMemoryType = [hostarch.NumMemoryTypes]uint64{
	hostarch.MemoryTypeWriteBack:    attrNormal,
	hostarch.MemoryTypeWriteCombine: attrNormalNonCachable,
	hostarch.MemoryTypeDevice:       attrDevice,
	hostarch.MemoryTypeUncached:     attrDeviceStrong,
}

// MapOpts are page table options.
type MapOpts struct {
	// AccessType defines permissions.
	AccessType hostarch.AccessType

	// User indicates the page is accessible from EL0.
	User bool

	// MemoryType is the memory type.
	MemoryType hostarch.MemoryType
}

// String implements fmt.Stringer.String.
func (o MapOpts) String() string {
	u := "k"
	if o.User {
		u = "u"
	}
	return fmt.Sprintf("%s%s/%s", u, o.AccessType, o.MemoryType.ShortString())
}

// Kind classifies a descriptor.
type Kind int

// Descriptor kinds.
const (
	// Invalid descriptors terminate a walk with no translation.
	Invalid Kind = iota

	// Table descriptors name the next level table.
	Table

	// Block descriptors terminate a walk above L3.
	Block

	// Page descriptors terminate a walk at L3.
	Page
)

// String implements fmt.Stringer.String.
func (k Kind) String() string {
	switch k {
	case Invalid:
		return "invalid"
	case Table:
		return "table"
	case Block:
		return "block"
	case Page:
		return "page"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// PTE is a translation table descriptor.
type PTE uint64

// PTEs is a collection of entries.
type PTEs [entriesPerPage]PTE

// Valid returns true iff this entry is valid.
func (p PTE) Valid() bool {
	return p&validBit != 0
}

// Kind returns the kind of this entry when read at level l. The same bits
// mean different things at different levels: 0b11 is a table above L3 and a
// page at L3, and 0b01 is a block at L1 and L2 only.
func (p PTE) Kind(l Level) Kind {
	if !p.Valid() {
		return Invalid
	}
	switch {
	case l == L3 && p&typeMask == typePage:
		return Page
	case l == L3:
		return Invalid
	case p&typeMask == typeTable:
		return Table
	case l == L0:
		// No blocks at L0 with the 4KiB granule.
		return Invalid
	default:
		return Block
	}
}

// Address extracts the address. This should only be valid if Valid returns
// true.
func (p PTE) Address() uintptr {
	return uintptr(p & addrMask)
}

// Contiguous returns true iff the contiguous hint is set.
func (p PTE) Contiguous() bool {
	return p&contiguous != 0
}

// Shareable returns true iff the inner shareable attribute is set.
func (p PTE) Shareable() bool {
	return p&shareability == innerShare
}

// Opts returns the options of a leaf entry.
func (p PTE) Opts() MapOpts {
	if !p.Valid() {
		return MapOpts{}
	}
	attr := (uint64(p) & attrIndxMask) >> attrIndxShift
	mt := hostarch.MemoryTypeWriteBack
	for t, a := range attrForMemoryType {
		if a == attr {
			mt = hostarch.MemoryType(t)
			break
		}
	}
	return MapOpts{
		AccessType: hostarch.AccessType{
			Read:    true,
			Write:   p&readOnly == 0,
			Execute: p&(xn|pxn) == 0,
		},
		User:       p&user != 0,
		MemoryType: mt,
	}
}

// String implements fmt.Stringer.String.
func (p PTE) String() string {
	return fmt.Sprintf("%#016x", uint64(p))
}

// Encoder produces descriptors.
//
// Encoder is a pure value: the same inputs always produce the same
// descriptor.
type Encoder struct {
	// Shareable marks normal memory inner shareable. It should be set only
	// when more than one execution context will run with these tables.
	Shareable bool
}

// leafBits returns the attribute bits shared by pages and blocks.
func (e Encoder) leafBits(opts MapOpts) uint64 {
	v := uint64(validBit | accessed)
	if !opts.AccessType.Write {
		v |= readOnly
	}
	if opts.User {
		v |= user
	}
	if !opts.AccessType.Execute {
		v |= xn | pxn
	}
	v |= attrForMemoryType[opts.MemoryType] << attrIndxShift
	if e.Shareable && !opts.MemoryType.IsDevice() {
		v |= innerShare
	}
	return v
}

// Page returns an L3 page descriptor for the frame at physical.
func (e Encoder) Page(physical uintptr, opts MapOpts, contiguousHint bool) PTE {
	v := e.leafBits(opts) | typePage | (uint64(physical) & addrMask)
	if contiguousHint {
		v |= contiguous
	}
	return PTE(v)
}

// Block returns an L1 or L2 block descriptor for the region at physical.
//
// Precondition: physical is aligned to the size of the level it is
// installed at.
func (e Encoder) Block(physical uintptr, opts MapOpts) PTE {
	v := (e.leafBits(opts) &^ typeMask) | typeSect | (uint64(physical) & addrMask)
	return PTE(v)
}

// Table returns a kernel read-write table descriptor naming the table at
// physical.
func (e Encoder) Table(physical uintptr) PTE {
	return PTE(validBit | typeTable | accessed | (uint64(physical) & addrMask))
}
