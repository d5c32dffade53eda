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

package cmd

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gofrs/flock"
	"github.com/google/go-cmp/cmp"
	"gvisor.dev/bootmap/bootmap/config"
	"gvisor.dev/bootmap/pkg/bootvm"
	"gvisor.dev/bootmap/pkg/hostarch"
	"gvisor.dev/bootmap/pkg/physmem"
)

const plan = `
[platform]
memory_base = 0x80000000
memory_size = "1M"
contexts = 2

[[region]]
name = "boot"
paddr = 0x40080000
size = "64K"
exec = true
identity = true

[[region]]
name = "kernel"
paddr = 0x40200000
size = 0x21000
exec = true

[[region]]
name = "uart"
paddr = 0x09000000
size = 0x1000
write = true
device = true

[[region]]
name = "bootinfo"
paddr = 0x48000040
size = 0x100
metadata = true
`

func parsePlan(t *testing.T, data string) *config.Plan {
	t.Helper()
	p, err := config.ParsePlan(data)
	if err != nil {
		t.Fatalf("ParsePlan failed: %v", err)
	}
	return p
}

func TestBuildPlan(t *testing.T) {
	b, mem, mappings, err := BuildPlan(context.Background(), parsePlan(t, plan))
	if err != nil {
		t.Fatalf("BuildPlan failed: %v", err)
	}
	defer mem.Close()

	var got []hostarch.Addr
	for _, m := range mappings {
		got = append(got, m.Virtual)
	}
	// The scratch page takes the first automatic page.
	want := []hostarch.Addr{
		0x40080000,
		bootvm.UpperBottom + 0x1000,
		bootvm.UpperBottom + 0x22000,
		bootvm.MetadataBase + 0x40,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("mapped addresses mismatch (-want +got):\n%s", diff)
	}

	for _, test := range []struct {
		vaddr hostarch.Addr
		want  uintptr
	}{
		{0x4008f000, 0x4008f000},
		{bootvm.UpperBottom + 0x21fff, 0x40220fff},
		{bootvm.UpperBottom + 0x22010, 0x09000010},
		{bootvm.MetadataBase + 0xff, 0x480000ff},
	} {
		for ctx := -1; ctx < 2; ctx++ {
			var (
				physical uintptr
				ok       bool
			)
			if ctx < 0 {
				physical, ok, err = b.Translate(test.vaddr)
			} else {
				physical, ok, err = b.TranslateContext(ctx, test.vaddr)
			}
			if err != nil || !ok || physical != test.want {
				t.Errorf("context %d: %#x translates to %#x, %v, %v, want %#x", ctx, test.vaddr, physical, ok, err, test.want)
			}
		}
	}
}

func TestBuildPlanExhausted(t *testing.T) {
	small := strings.Replace(plan, `memory_size = "1M"`, `memory_size = "16K"`, 1)
	_, _, _, err := BuildPlan(context.Background(), parsePlan(t, small))
	if !errors.Is(err, physmem.ErrExhausted) {
		t.Errorf("BuildPlan with four frames = %v, want %v", err, physmem.ErrExhausted)
	}
}

func TestBuildPlanRange(t *testing.T) {
	bad := plan + `
[[region]]
name = "gap"
vaddr = "0x0001000000000000"
paddr = 0x1000
size = 0x1000
`
	_, _, _, err := BuildPlan(context.Background(), parsePlan(t, bad))
	if !errors.Is(err, bootvm.ErrRange) || !strings.Contains(err.Error(), `"gap"`) {
		t.Errorf("BuildPlan = %v, want %v naming the region", err, bootvm.ErrRange)
	}
}

func TestTranslateOutput(t *testing.T) {
	b, mem, _, err := BuildPlan(context.Background(), parsePlan(t, plan))
	if err != nil {
		t.Fatalf("BuildPlan failed: %v", err)
	}
	defer mem.Close()

	var buf bytes.Buffer
	tr := &Translate{context: 1}
	if err := tr.translate(&buf, b, []hostarch.Addr{0x40080010, bootvm.UpperBottom + 0x30000}); err != nil {
		t.Fatalf("translate failed: %v", err)
	}
	want := "0x40080010 -> 0x40080010 kr-x/WB\n0xffffff8000030000 unmapped\n"
	if diff := cmp.Diff(want, buf.String()); diff != "" {
		t.Errorf("output mismatch (-want +got):\n%s", diff)
	}

	if err := tr.translate(&buf, b, []hostarch.Addr{bootvm.LowerTop}); !errors.Is(err, bootvm.ErrRange) {
		t.Errorf("translate outside both roots = %v, want %v", err, bootvm.ErrRange)
	}
}

func TestHandoffAndImage(t *testing.T) {
	b, mem, _, err := BuildPlan(context.Background(), parsePlan(t, plan))
	if err != nil {
		t.Fatalf("BuildPlan failed: %v", err)
	}
	defer mem.Close()

	dir := t.TempDir()
	data, err := b.Handoff().Marshal()
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	handoffPath := filepath.Join(dir, "handoff.yaml")
	if err := writeOutput(handoffPath, data); err != nil {
		t.Fatalf("writeOutput failed: %v", err)
	}
	written, err := os.ReadFile(handoffPath)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	h, err := bootvm.ParseHandoff(written)
	if err != nil {
		t.Fatalf("ParseHandoff failed: %v", err)
	}
	if h.SystemRoot != bootvm.Hex(b.SystemRoot()) || len(h.ContextRoots) != 2 {
		t.Errorf("handoff = %+v, want system root %#x and two contexts", h, b.SystemRoot())
	}

	imagePath := filepath.Join(dir, "tables.img")
	if err := writeImage(imagePath, mem); err != nil {
		t.Fatalf("writeImage failed: %v", err)
	}
	fi, err := os.Stat(imagePath)
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}
	if got, want := uint64(fi.Size()), mem.Allocated().Length(); got != want {
		t.Errorf("image size = %#x, want %#x", got, want)
	}
}

func TestOutputLocked(t *testing.T) {
	path := filepath.Join(t.TempDir(), "handoff.yaml")
	l := flock.NewFlock(path + ".lock")
	if locked, err := l.TryLock(); err != nil || !locked {
		t.Fatalf("TryLock() = %v, %v, want true, nil", locked, err)
	}
	if err := writeOutput(path, []byte("paging: false\n")); err == nil {
		t.Errorf("writeOutput succeeded while another build holds the lock")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("Stat(%q) = %v, want not exist", path, err)
	}

	if err := l.Unlock(); err != nil {
		t.Fatalf("Unlock failed: %v", err)
	}
	if err := writeOutput(path, []byte("paging: false\n")); err != nil {
		t.Errorf("writeOutput after unlock failed: %v", err)
	}
}

func TestTCROutput(t *testing.T) {
	var buf bytes.Buffer
	if err := (&TCR{asidBits: 16, paRange: 5}).print(&buf); err != nil {
		t.Fatalf("print failed: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"15b5103510", "444ff", "48-bit PA", "16-bit ASID"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if err := (&TCR{asidBits: 8, paRange: 9}).print(&buf); err == nil {
		t.Errorf("print accepted PARange 9")
	}
}
