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
	"testing"
)

func TestFrameAllocator(t *testing.T) {
	_, a := newWalker(t, 4)
	first := newRoot(t, a)
	second := newRoot(t, a)

	if got, want := a.PhysicalFor(first), uintptr(0x80000000); got != want {
		t.Errorf("PhysicalFor(first) = %#x, want %#x", got, want)
	}
	if got, want := a.PhysicalFor(second), uintptr(0x80001000); got != want {
		t.Errorf("PhysicalFor(second) = %#x, want %#x", got, want)
	}
	if got := a.LookupPTEs(0x80001403); got != second {
		t.Errorf("LookupPTEs ignored descriptor bits")
	}
	if got := a.LookupPTEs(0x80002000); got != nil {
		t.Errorf("LookupPTEs(unallocated) = %p, want nil", got)
	}
	if got := a.Tables(); got != 2 {
		t.Errorf("Tables() = %d, want 2", got)
	}
	for i, pte := range second {
		if pte != 0 {
			t.Fatalf("fresh table entry %d = %v, want 0", i, pte)
		}
	}
}
