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

package hostarch

import (
	"testing"
)

func TestAddLength(t *testing.T) {
	for _, test := range []struct {
		start  Addr
		length uint64
		end    Addr
		ok     bool
	}{
		{start: 0x1000, length: 0x2000, end: 0x3000, ok: true},
		{start: ^Addr(0) - 0xfff, length: 0x1000, end: 0, ok: false},
		{start: ^Addr(0) - 0x1fff, length: 0x1000, end: ^Addr(0) - 0xfff, ok: true},
	} {
		end, ok := test.start.AddLength(test.length)
		if end != test.end || ok != test.ok {
			t.Errorf("%#x.AddLength(%#x) = %#x, %v, want %#x, %v", test.start, test.length, end, ok, test.end, test.ok)
		}
	}
}

func TestRounding(t *testing.T) {
	if got := Addr(0x40000123).RoundDown(); got != 0x40000000 {
		t.Errorf("RoundDown = %#x, want 0x40000000", got)
	}
	if got, ok := Addr(0x40000123).RoundUp(); got != 0x40001000 || !ok {
		t.Errorf("RoundUp = %#x, %v, want 0x40001000, true", got, ok)
	}
	if _, ok := (^Addr(0)).RoundUp(); ok {
		t.Errorf("RoundUp of the last address did not report wrapping")
	}
	if got, ok := PageRoundUp(0x3001); got != 0x4000 || !ok {
		t.Errorf("PageRoundUp(0x3001) = %#x, %v, want 0x4000, true", got, ok)
	}
	if got := Addr(0x40000123).PageOffset(); got != 0x123 {
		t.Errorf("PageOffset = %#x, want 0x123", got)
	}
}

func TestAddrRange(t *testing.T) {
	r := AddrRange{Start: 0x1000, End: 0x3000}
	if !r.Contains(0x2fff) || r.Contains(0x3000) {
		t.Errorf("%v.Contains is not half-open", r)
	}
	if !r.Overlaps(AddrRange{Start: 0x2000, End: 0x4000}) {
		t.Errorf("%v does not overlap [0x2000, 0x4000)", r)
	}
	if r.Overlaps(AddrRange{Start: 0x3000, End: 0x4000}) {
		t.Errorf("%v overlaps an adjacent range", r)
	}
	if !r.IsSupersetOf(AddrRange{Start: 0x1000, End: 0x2000}) {
		t.Errorf("%v is not a superset of [0x1000, 0x2000)", r)
	}
	if got, want := r.String(), "[0x1000, 0x3000)"; got != want {
		t.Errorf("String = %q, want %q", got, want)
	}
}

func TestMemoryTypeFor(t *testing.T) {
	for _, test := range []struct {
		device, noCache bool
		want            MemoryType
	}{
		{false, false, MemoryTypeWriteBack},
		{false, true, MemoryTypeWriteCombine},
		{true, false, MemoryTypeDevice},
		{true, true, MemoryTypeUncached},
	} {
		if got := MemoryTypeFor(test.device, test.noCache); got != test.want {
			t.Errorf("MemoryTypeFor(%v, %v) = %v, want %v", test.device, test.noCache, got, test.want)
		}
	}
}
