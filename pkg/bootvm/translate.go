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
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
	"gvisor.dev/bootmap/pkg/hostarch"
	"gvisor.dev/bootmap/pkg/ring0/pagetables"
)

// Translate returns the physical address mapped at vaddr. ok is false if
// vaddr is unmapped; that is an ordinary result. An error means vaddr is
// owned by neither root, and is fatal.
//
// Addresses in the recursive windows translate to table frames.
func (b *AddressSpaceBuilder) Translate(vaddr hostarch.Addr) (physical uintptr, ok bool, err error) {
	if b.cfg.DisablePaging {
		return uintptr(vaddr), true, nil
	}
	r, err := b.selectRoot(vaddr, vaddr+1)
	if err != nil {
		return 0, false, err
	}
	physical, ok = b.walker.Translate(r.ptes, r.top, uintptr(vaddr))
	return physical, ok, nil
}

// TranslateContext is like Translate, but walks system addresses from the
// top-level table of execution context ctx, as that context's MMU will.
func (b *AddressSpaceBuilder) TranslateContext(ctx int, vaddr hostarch.Addr) (physical uintptr, ok bool, err error) {
	if ctx < 0 || ctx >= len(b.contexts) {
		return 0, false, fmt.Errorf("context %d out of range [0, %d)", ctx, len(b.contexts))
	}
	if b.cfg.DisablePaging {
		return uintptr(vaddr), true, nil
	}
	r, err := b.selectRoot(vaddr, vaddr+1)
	if err != nil {
		return 0, false, err
	}
	if r.top == pagetables.L1 {
		r = root{table: b.contexts[ctx], top: pagetables.L0}
	}
	physical, ok = b.walker.Translate(r.ptes, r.top, uintptr(vaddr))
	return physical, ok, nil
}

// Verify checks that every leaf reachable from the roots lies within a
// recorded region, and that every execution context observes the system
// mappings recorded so far exactly as the root-of-roots does. Checks run
// concurrently; the tables must not be mutated while Verify runs.
func (b *AddressSpaceBuilder) Verify(ctx context.Context) error {
	if b.cfg.DisablePaging {
		return nil
	}
	var system []Region
	for _, r := range b.Regions() {
		if r.Virtual.Start >= UpperBottom {
			system = append(system, r)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := b.checkLeaves(b.low.ptes, pagetables.L0, 0); err != nil {
			return err
		}
		return b.checkLeaves(b.system.ptes, pagetables.L1, uintptr(UpperBottom))
	})
	for i, t := range b.contexts {
		g.Go(func() error {
			entry := t.ptes[SystemSlot]
			if entry.Kind(pagetables.L0) != pagetables.Table || entry.Address() != b.system.physical {
				return fmt.Errorf("context %d: system slot holds %v, want table %#x", i, entry, b.system.physical)
			}
			for _, r := range system {
				if err := gctx.Err(); err != nil {
					return err
				}
				for _, addr := range []hostarch.Addr{r.Virtual.Start, r.Virtual.End - 1} {
					want, wantOK, err := b.Translate(addr)
					if err != nil {
						return err
					}
					got, ok, err := b.TranslateContext(i, addr)
					if err != nil {
						return err
					}
					if ok != wantOK || got != want {
						return fmt.Errorf("context %d: %#x translates to %#x (mapped %v), want %#x (mapped %v)", i, addr, got, ok, want, wantOK)
					}
				}
			}
			return nil
		})
	}
	return g.Wait()
}

// checkLeaves returns an error naming the first leaf below root that no
// recorded region covers. The recursive windows are skipped.
func (b *AddressSpaceBuilder) checkLeaves(root *pagetables.PTEs, top pagetables.Level, base uintptr) error {
	var err error
	b.walker.Visit(root, top, base, func(addr uintptr, pte pagetables.PTE, l pagetables.Level) {
		if err != nil {
			return
		}
		leaf, ok := hostarch.Addr(addr).ToRange(uint64(l.Size()))
		if !ok || !b.covered(leaf) {
			err = fmt.Errorf("%v leaf %#x at %v is outside every recorded region", l, uint64(pte), leaf)
		}
	})
	return err
}

// covered returns true if a single recorded region contains r.
func (b *AddressSpaceBuilder) covered(r hostarch.AddrRange) bool {
	found := false
	b.regions.DescendLessOrEqual(regionPivot(r.Start), func(region Region) bool {
		found = region.Virtual.IsSupersetOf(r)
		return !found
	})
	return found
}
