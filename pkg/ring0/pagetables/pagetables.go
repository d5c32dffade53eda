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

// Package pagetables builds and walks arm64 translation tables for the boot
// stage.
//
// Tables are 4KiB arrays of 512 descriptors living in frames handed out by an
// Allocator. Tables reference each other only through the physical addresses
// stored in table descriptors; the Allocator resolves those addresses back to
// tables, so the structure can be walked exactly as the hardware will walk it
// once the MMU is enabled, recursive self-mappings included.
package pagetables

import (
	"fmt"
)

// Level is a translation table level. L0 is the coarsest.
type Level int

// Translation levels for the 4KiB granule with 48-bit addresses.
const (
	L0 Level = iota
	L1
	L2
	L3

	// NumLevels is the number of levels in a full walk.
	NumLevels = 4
)

// Address space layout constants.
const (
	entriesPerPage = 512
	entryBits      = 9

	l0Shift = 39
	l1Shift = 30
	l2Shift = 21
	l3Shift = 12

	// LowerTop is the end of the range translated through the low root.
	LowerTop = uintptr(1) << 48

	// UpperBottom is the start of the system window: the 512GiB covered by
	// the last slot of an upper-half L0 table.
	UpperBottom = ^uintptr(0) - (uintptr(1) << l0Shift) + 1
)

var levelShifts = [NumLevels]uint{l0Shift, l1Shift, l2Shift, l3Shift}

// Shift returns the binary log of the size mapped by one entry at l.
func (l Level) Shift() uint {
	return levelShifts[l]
}

// Size returns the size mapped by one entry at l.
func (l Level) Size() uintptr {
	return uintptr(1) << levelShifts[l]
}

// Index returns the index of the entry at l covering addr.
func (l Level) Index(addr uintptr) int {
	return int((addr >> levelShifts[l]) & (entriesPerPage - 1))
}

// String implements fmt.Stringer.String.
func (l Level) String() string {
	if l < L0 || l > L3 {
		return fmt.Sprintf("Level(%d)", int(l))
	}
	return fmt.Sprintf("L%d", int(l))
}
