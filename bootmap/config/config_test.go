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

package config

import (
	"flag"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"gvisor.dev/bootmap/pkg/bootvm"
	"gvisor.dev/bootmap/pkg/hostarch"
	"gvisor.dev/bootmap/pkg/ring0/pagetables"
)

func TestDefault(t *testing.T) {
	testFlags := flag.NewFlagSet("test", flag.ContinueOnError)
	RegisterFlags(testFlags)
	c, err := NewFromFlags(testFlags)
	if err != nil {
		t.Fatal(err)
	}
	if flags := c.ToFlags(); len(flags) > 0 {
		t.Errorf("default flags not set correctly for: %s", flags)
	}
}

func TestFromFlags(t *testing.T) {
	testFlags := flag.NewFlagSet("test", flag.ContinueOnError)
	RegisterFlags(testFlags)
	if err := testFlags.Parse([]string{"--debug", "--log-format=json", "--debug-log=/tmp/logs/"}); err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	c, err := NewFromFlags(testFlags)
	if err != nil {
		t.Fatal(err)
	}
	want := &Config{
		LogFormat:      "json",
		Debug:          true,
		DebugLog:       "/tmp/logs/",
		DebugLogFormat: "text",
	}
	if diff := cmp.Diff(want, c); diff != "" {
		t.Errorf("Config mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"--log-format=json", "--debug=true", "--debug-log=/tmp/logs/"}, c.ToFlags()); diff != "" {
		t.Errorf("ToFlags mismatch (-want +got):\n%s", diff)
	}
}

func TestInvalidLogFormat(t *testing.T) {
	testFlags := flag.NewFlagSet("test", flag.ContinueOnError)
	RegisterFlags(testFlags)
	if err := testFlags.Parse([]string{"--log-format=xml"}); err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if _, err := NewFromFlags(testFlags); err == nil {
		t.Errorf("NewFromFlags accepted log format xml")
	}
}

func TestAddr(t *testing.T) {
	for _, test := range []struct {
		in   string
		want Addr
	}{
		{"0x40000000", 0x40000000},
		{"4096", 0x1000},
		{"0xffff_ff80_0000_0000", 0xffffff8000000000},
		{"2M", 2 << 20},
		{"64k", 64 << 10},
		{"1G", 1 << 30},
		{"auto", Addr(bootvm.Auto)},
	} {
		var a Addr
		if err := a.UnmarshalText([]byte(test.in)); err != nil {
			t.Errorf("UnmarshalText(%q) failed: %v", test.in, err)
			continue
		}
		if a != test.want {
			t.Errorf("UnmarshalText(%q) = %v, want %v", test.in, a, test.want)
		}
	}
	for _, in := range []string{"", "-1", "0x1g0", "0xffffffffffffffffK", "lots"} {
		var a Addr
		if err := a.UnmarshalText([]byte(in)); err == nil {
			t.Errorf("UnmarshalText(%q) = %v, want error", in, a)
		}
	}
}

const testPlan = `
[platform]
memory_base = 0x80000000
memory_size = "1M"
contexts = 4
smp = true

[[region]]
name = "kernel"
vaddr = "0xffffff8000200000"
paddr = 0x40080000
size = "2M"
exec = true

[[region]]
name = "uart"
paddr = 0x09000000
size = 0x1000
write = true
device = true

[[region]]
name = "boot"
paddr = 0x40000000
size = "64K"
exec = true
identity = true

[[region]]
paddr = 0x48000000
size = 0x1000
metadata = true
`

func TestParsePlan(t *testing.T) {
	p, err := ParsePlan(testPlan)
	if err != nil {
		t.Fatalf("ParsePlan failed: %v", err)
	}
	kernel := Addr(0xffffff8000200000)
	want := &Plan{
		Platform: Platform{
			MemoryBase: 0x80000000,
			MemorySize: 1 << 20,
			Contexts:   4,
			SMP:        true,
			Paging:     true,
			ASIDBits:   8,
			PARange:    5,
		},
		Regions: []Region{
			{Name: "kernel", VAddr: &kernel, PAddr: 0x40080000, Size: 2 << 20, Exec: true},
			{Name: "uart", PAddr: 0x09000000, Size: 0x1000, Write: true, Device: true},
			{Name: "boot", PAddr: 0x40000000, Size: 64 << 10, Exec: true, Identity: true},
			{Name: "region3", PAddr: 0x48000000, Size: 0x1000, Metadata: true},
		},
	}
	if diff := cmp.Diff(want, p); diff != "" {
		t.Errorf("Plan mismatch (-want +got):\n%s", diff)
	}

	targets := []hostarch.Addr{0xffffff8000200000, bootvm.Auto, 0x40000000, bootvm.Auto}
	for i, r := range p.Regions {
		if got := r.Target(); got != targets[i] {
			t.Errorf("region %q Target() = %#x, want %#x", r.Name, got, targets[i])
		}
	}
	if got, want := p.Regions[1].Opts(), (pagetables.MapOpts{AccessType: hostarch.ReadWrite, MemoryType: hostarch.MemoryTypeDevice}); got != want {
		t.Errorf("uart Opts() = %v, want %v", got, want)
	}
	if got, want := p.BuilderConfig(), (bootvm.Config{Contexts: 4, SMP: true, ASIDBits: 8, PARange: 5}); got != want {
		t.Errorf("BuilderConfig() = %+v, want %+v", got, want)
	}
}

func TestParsePlanErrors(t *testing.T) {
	for _, test := range []struct {
		name string
		plan string
		want string
	}{
		{
			name: "no memory",
			plan: "[platform]\ncontexts = 1\n",
			want: "memory_size",
		},
		{
			name: "unaligned memory",
			plan: "[platform]\nmemory_base = 0x80000100\nmemory_size = 0x1000\n",
			want: "not page aligned",
		},
		{
			name: "too many contexts",
			plan: "[platform]\nmemory_size = 0x1000\ncontexts = 33\n",
			want: "out of range",
		},
		{
			name: "unknown key",
			plan: "[platform]\nmemory_size = 0x1000\nmmu = false\n",
			want: "unknown boot plan keys",
		},
		{
			name: "duplicate region",
			plan: "[platform]\nmemory_size = 0x1000\n[[region]]\nname = \"a\"\n[[region]]\nname = \"a\"\n",
			want: "duplicate region",
		},
		{
			name: "conflicting placement",
			plan: "[platform]\nmemory_size = 0x1000\n[[region]]\nname = \"a\"\nidentity = true\nmetadata = true\n",
			want: "exclusive",
		},
	} {
		t.Run(test.name, func(t *testing.T) {
			_, err := ParsePlan(test.plan)
			if err == nil || !strings.Contains(err.Error(), test.want) {
				t.Errorf("ParsePlan = %v, want error containing %q", err, test.want)
			}
		})
	}
}

func TestAutoVAddr(t *testing.T) {
	p, err := ParsePlan("[platform]\nmemory_size = 0x1000\npaging = false\n[[region]]\nvaddr = \"auto\"\npaddr = 0x1000\nsize = 0x1000\n")
	if err != nil {
		t.Fatalf("ParsePlan failed: %v", err)
	}
	if p.Regions[0].VAddr != nil || p.Regions[0].Target() != bootvm.Auto {
		t.Errorf("vaddr = \"auto\" did not select automatic assignment")
	}
	if !p.BuilderConfig().DisablePaging {
		t.Errorf("paging = false did not disable paging")
	}
}

func TestLoadPlan(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plan.toml")
	if err := os.WriteFile(path, []byte(testPlan), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	p, err := LoadPlan(path)
	if err != nil {
		t.Fatalf("LoadPlan failed: %v", err)
	}
	if len(p.Regions) != 4 {
		t.Errorf("loaded %d regions, want 4", len(p.Regions))
	}
	if _, err := LoadPlan(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Errorf("LoadPlan of a missing file succeeded")
	}
}
