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

	"gvisor.dev/bootmap/pkg/hostarch"
)

func TestEncoderPage(t *testing.T) {
	for _, test := range []struct {
		name       string
		enc        Encoder
		physical   uintptr
		opts       MapOpts
		contiguous bool
		want       PTE
	}{
		{
			name:     "kernel data",
			physical: 0x40001000,
			opts:     MapOpts{AccessType: hostarch.ReadWrite},
			want:     0x0060000040001403,
		},
		{
			name:     "user read-only device",
			physical: 0x09000000,
			opts:     MapOpts{AccessType: hostarch.Read, User: true, MemoryType: hostarch.MemoryTypeDevice},
			want:     0x00600000090004cb,
		},
		{
			name:       "shareable contiguous text",
			enc:        Encoder{Shareable: true},
			physical:   0x1000,
			opts:       MapOpts{AccessType: hostarch.ReadExec},
			contiguous: true,
			want:       0x0010000000001783,
		},
		{
			name:     "shareable device is not shareable",
			enc:      Encoder{Shareable: true},
			physical: 0x09000000,
			opts:     MapOpts{AccessType: hostarch.ReadWrite, MemoryType: hostarch.MemoryTypeUncached},
			want:     0x006000000900040f,
		},
		{
			name:     "offset bits are dropped",
			physical: 0x40001234,
			opts:     MapOpts{AccessType: hostarch.ReadWrite},
			want:     0x0060000040001403,
		},
	} {
		t.Run(test.name, func(t *testing.T) {
			if got := test.enc.Page(test.physical, test.opts, test.contiguous); got != test.want {
				t.Errorf("Page(%#x, %v, %v) = %v, want %v", test.physical, test.opts, test.contiguous, got, test.want)
			}
		})
	}
}

func TestEncoderTableAndBlock(t *testing.T) {
	var e Encoder
	if got, want := e.Table(0x5000), PTE(0x5403); got != want {
		t.Errorf("Table(0x5000) = %v, want %v", got, want)
	}
	if got, want := e.Block(0x40000000, MapOpts{AccessType: hostarch.ReadWrite}), PTE(0x0060000040000401); got != want {
		t.Errorf("Block(0x40000000) = %v, want %v", got, want)
	}
}

func TestKind(t *testing.T) {
	var e Encoder
	table := e.Table(0x5000)
	block := e.Block(0x40000000, MapOpts{AccessType: hostarch.ReadWrite})
	page := e.Page(0x40000000, MapOpts{AccessType: hostarch.ReadWrite}, false)
	for _, test := range []struct {
		pte   PTE
		level Level
		want  Kind
	}{
		{0, L0, Invalid},
		{0, L3, Invalid},
		{table, L0, Table},
		{table, L2, Table},
		{table, L3, Page},
		{page, L3, Page},
		{block, L0, Invalid},
		{block, L1, Block},
		{block, L2, Block},
		{block, L3, Invalid},
	} {
		if got := test.pte.Kind(test.level); got != test.want {
			t.Errorf("%v.Kind(%v) = %v, want %v", test.pte, test.level, got, test.want)
		}
	}
}

func TestOpts(t *testing.T) {
	e := Encoder{Shareable: true}
	for _, opts := range []MapOpts{
		{AccessType: hostarch.ReadWrite},
		{AccessType: hostarch.ReadExec},
		{AccessType: hostarch.Read, User: true},
		{AccessType: hostarch.ReadWrite, MemoryType: hostarch.MemoryTypeWriteCombine},
		{AccessType: hostarch.ReadWrite, MemoryType: hostarch.MemoryTypeDevice},
		{AccessType: hostarch.ReadWrite, MemoryType: hostarch.MemoryTypeUncached},
	} {
		pte := e.Page(0x1000, opts, false)
		if got := pte.Opts(); got != opts {
			t.Errorf("Page(%v).Opts() = %v", opts, got)
		}
		if got, want := pte.Shareable(), !opts.MemoryType.IsDevice(); got != want {
			t.Errorf("Page(%v).Shareable() = %v, want %v", opts, got, want)
		}
	}
}

func TestMAIR(t *testing.T) {
	if got, want := MAIR, uint64(0x0004_44ff); got != want {
		t.Errorf("MAIR = %#x, want %#x", got, want)
	}
}
