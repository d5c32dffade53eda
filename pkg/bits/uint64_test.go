// Copyright 2018 The gVisor Authors.
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

package bits

import (
	"testing"
)

func TestIsOn(t *testing.T) {
	type testCase struct {
		mask uint64
		bits uint64
		any  bool
		all  bool
	}
	for _, s := range []testCase{
		{Mask64(0), Mask64(0), true, true},
		{Mask64(63), Mask64(63), true, true},
		{Mask64(0), Mask64(1), false, false},
		{Mask64(0), Mask64(0, 1), true, false},

		{Mask64(1, 63), Mask64(1), true, true},
		{Mask64(1, 63), Mask64(1, 63), true, true},
		{Mask64(1, 63), Mask64(0, 1, 63), true, false},
		{Mask64(1, 63), Mask64(0, 62), false, false},
	} {
		if ok := IsAnyOn64(s.mask, s.bits); ok != s.any {
			t.Errorf("IsAnyOn64(%#x, %#x) = %v, wanted: %v", s.mask, s.bits, ok, s.any)
		}
		if ok := IsOn64(s.mask, s.bits); ok != s.all {
			t.Errorf("IsOn64(%#x, %#x) = %v, wanted: %v", s.mask, s.bits, ok, s.all)
		}
	}
}

func TestField64(t *testing.T) {
	for _, s := range []struct {
		v     uint64
		shift int
		width int
		want  uint64
	}{
		{0x10, 0, 6, 0x10},
		{0x10, 16, 6, 0x10 << 16},
		{0x7f, 0, 6, 0x3f},
		{0x2, 32, 3, 0x2 << 32},
		{0x1, 63, 1, 1 << 63},
		{0xff, 8, 64, 0xff << 8},
	} {
		if got := Field64(s.v, s.shift, s.width); got != s.want {
			t.Errorf("Field64(%#x, %d, %d) = %#x, wanted %#x", s.v, s.shift, s.width, got, s.want)
		}
	}
}

func TestAlignment(t *testing.T) {
	for i := 0; i < 64; i++ {
		if !IsPowerOfTwo64(MaskOf64(i)) {
			t.Errorf("IsPowerOfTwo64(%#x) = false, wanted true", MaskOf64(i))
		}
	}
	for _, v := range []uint64{0, 3, 0x1001, ^uint64(0)} {
		if IsPowerOfTwo64(v) {
			t.Errorf("IsPowerOfTwo64(%#x) = true, wanted false", v)
		}
	}
	if !IsAligned64(0x10000, 0x10000) || IsAligned64(0x11000, 0x10000) {
		t.Errorf("IsAligned64 mismatch for 64KiB alignment")
	}
	if got, want := AlignDown64(0x1ffff, 0x10000), uint64(0x10000); got != want {
		t.Errorf("AlignDown64(0x1ffff, 0x10000) = %#x, wanted %#x", got, want)
	}
}
