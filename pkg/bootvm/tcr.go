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
	"fmt"

	"gvisor.dev/bootmap/pkg/bits"
)

// paRangeBits maps ID_AA64MMFR0_EL1.PARange to a physical address width.
// Widths above 48 bits need the 52-bit descriptor formats and are not
// supported.
var paRangeBits = [...]int{32, 36, 40, 42, 44, 48}

// TCR_EL1 fields.
const (
	tcrT0SZShift  = 0
	tcrIRGN0Shift = 8
	tcrORGN0Shift = 10
	tcrSH0Shift   = 12
	tcrTG0Shift   = 14
	tcrT1SZShift  = 16
	tcrIRGN1Shift = 24
	tcrORGN1Shift = 26
	tcrSH1Shift   = 28
	tcrTG1Shift   = 30
	tcrIPSShift   = 32
	tcrASBit      = 36

	tcrTSZ       = 64 - 48
	tcrWBWA      = 1 // Normal, write-back read/write-allocate cacheable walks.
	tcrInner     = 3
	tcrTG0Gran4K = 0
	tcrTG1Gran4K = 2
)

// TranslationControl returns the TCR_EL1 value matching the tables built by
// this package: 48-bit low and high ranges, 4KiB granules, cacheable inner
// shareable walks, the output size given by paRange, and 16-bit ASIDs when
// asidBits is 16.
func TranslationControl(asidBits, paRange int) (uint64, error) {
	if asidBits != 8 && asidBits != 16 {
		return 0, fmt.Errorf("ASID width %d, want 8 or 16", asidBits)
	}
	if paRange < 0 || paRange >= len(paRangeBits) {
		return 0, fmt.Errorf("PARange %d unsupported, want [0, %d]", paRange, len(paRangeBits)-1)
	}
	tcr := bits.Field64(tcrTSZ, tcrT0SZShift, 6) |
		bits.Field64(tcrWBWA, tcrIRGN0Shift, 2) |
		bits.Field64(tcrWBWA, tcrORGN0Shift, 2) |
		bits.Field64(tcrInner, tcrSH0Shift, 2) |
		bits.Field64(tcrTG0Gran4K, tcrTG0Shift, 2) |
		bits.Field64(tcrTSZ, tcrT1SZShift, 6) |
		bits.Field64(tcrWBWA, tcrIRGN1Shift, 2) |
		bits.Field64(tcrWBWA, tcrORGN1Shift, 2) |
		bits.Field64(tcrInner, tcrSH1Shift, 2) |
		bits.Field64(tcrTG1Gran4K, tcrTG1Shift, 2) |
		bits.Field64(uint64(paRange), tcrIPSShift, 3)
	if asidBits == 16 {
		tcr |= bits.MaskOf64(tcrASBit)
	}
	return tcr, nil
}

// PhysicalAddressBits returns the physical address width for paRange.
func PhysicalAddressBits(paRange int) (int, bool) {
	if paRange < 0 || paRange >= len(paRangeBits) {
		return 0, false
	}
	return paRangeBits[paRange], true
}
