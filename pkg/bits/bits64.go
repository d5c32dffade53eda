// Copyright 2018 Google LLC
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

// Package bits includes all bit related types and operations.
package bits

// IsOn64 returns true if *all* bits set in 'bits' are set in 'mask'.
func IsOn64(mask, bits uint64) bool {
	return mask&bits == bits
}

// IsAnyOn64 returns true if *any* bit set in 'bits' is set in 'mask'.
func IsAnyOn64(mask, bits uint64) bool {
	return mask&bits != 0
}

// Mask64 returns a uint64 with all of the given bits set.
func Mask64(is ...int) uint64 {
	ret := uint64(0)
	for _, i := range is {
		ret |= MaskOf64(i)
	}
	return ret
}

// MaskOf64 is like Mask64, but sets only a single bit (more efficiently).
func MaskOf64(i int) uint64 {
	return uint64(1) << uint64(i)
}

// FieldMask64 returns a mask of width bits starting at shift.
func FieldMask64(shift, width int) uint64 {
	if width >= 64 {
		return ^uint64(0) << uint64(shift)
	}
	return ((uint64(1) << uint64(width)) - 1) << uint64(shift)
}

// Field64 places v in the width-bit field at shift. Bits of v that do not
// fit are discarded.
func Field64(v uint64, shift, width int) uint64 {
	return (v << uint64(shift)) & FieldMask64(shift, width)
}

// IsPowerOfTwo64 returns true if v is a power of 2.
func IsPowerOfTwo64(v uint64) bool {
	return v != 0 && v&(v-1) == 0
}

// IsAligned64 returns true if v is a multiple of align.
//
// Precondition: align must be a power of 2.
func IsAligned64(v, align uint64) bool {
	return v&(align-1) == 0
}

// AlignDown64 returns v rounded down to a multiple of align.
//
// Precondition: align must be a power of 2.
func AlignDown64(v, align uint64) uint64 {
	return v &^ (align - 1)
}
