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
	"gvisor.dev/bootmap/pkg/hostarch"
	"gvisor.dev/bootmap/pkg/ring0/pagetables"
)

// Region is a mapping installed by MapRegion or MapMetadata.
type Region struct {
	// Virtual is the page-aligned virtual range.
	Virtual hostarch.AddrRange

	// Physical is the physical address of Virtual.Start.
	Physical uintptr

	// Opts are the mapping options.
	Opts pagetables.MapOpts

	// ContiguousRuns is the number of contiguous-hinted runs used.
	ContiguousRuns int
}

// Regions returns every recorded region in virtual address order.
func (b *AddressSpaceBuilder) Regions() []Region {
	rs := make([]Region, 0, b.regions.Len())
	b.regions.Ascend(func(r Region) bool {
		rs = append(rs, r)
		return true
	})
	return rs
}

// regionLess orders regions by start, then end. A remap that starts where an
// earlier region starts keeps both records.
func regionLess(a, b Region) bool {
	if a.Virtual.Start != b.Virtual.Start {
		return a.Virtual.Start < b.Virtual.Start
	}
	return a.Virtual.End < b.Virtual.End
}

// regionPivot sorts after every region starting at or below addr.
func regionPivot(addr hostarch.Addr) Region {
	return Region{Virtual: hostarch.AddrRange{Start: addr, End: ^hostarch.Addr(0)}}
}

// RegionFor returns the recorded region containing addr. If remaps left
// more than one, the one starting closest below addr is returned.
func (b *AddressSpaceBuilder) RegionFor(addr hostarch.Addr) (Region, bool) {
	var (
		found Region
		ok    bool
	)
	b.regions.DescendLessOrEqual(regionPivot(addr), func(r Region) bool {
		found, ok = r, r.Virtual.Contains(addr)
		return !ok
	})
	return found, ok
}
