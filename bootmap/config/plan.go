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
	"fmt"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"gvisor.dev/bootmap/pkg/bootvm"
	"gvisor.dev/bootmap/pkg/hostarch"
	"gvisor.dev/bootmap/pkg/ring0/pagetables"
)

// Addr is an address or size in a boot plan. It may be written as a TOML
// integer or as a string, which allows addresses above 2^63 and the K, M and
// G suffixes (e.g. "0xffffff8000000000" or "2M").
type Addr uint64

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Addr) UnmarshalText(text []byte) error {
	s := strings.ReplaceAll(strings.TrimSpace(string(text)), "_", "")
	if strings.EqualFold(s, "auto") {
		*a = Addr(bootvm.Auto)
		return nil
	}
	shift := 0
	if n := len(s); n > 0 {
		switch s[n-1] {
		case 'K', 'k':
			shift = 10
		case 'M', 'm':
			shift = 20
		case 'G', 'g':
			shift = 30
		}
		if shift != 0 {
			s = s[:n-1]
		}
	}
	v, err := strconv.ParseUint(s, 0, 64)
	if err != nil {
		return fmt.Errorf("invalid address %q: %w", text, err)
	}
	if shift != 0 && v > ^uint64(0)>>shift {
		return fmt.Errorf("address %q overflows", text)
	}
	*a = Addr(v << shift)
	return nil
}

// String implements fmt.Stringer.String.
func (a Addr) String() string {
	if hostarch.Addr(a) == bootvm.Auto {
		return "auto"
	}
	return fmt.Sprintf("%#x", uint64(a))
}

// Platform describes the machine the address space is built for.
type Platform struct {
	// MemoryBase and MemorySize give the physical window that page tables
	// are allocated from.
	MemoryBase Addr `toml:"memory_base"`
	MemorySize Addr `toml:"memory_size"`

	// Contexts is the number of execution contexts. Zero means
	// bootvm.MaxContexts.
	Contexts int `toml:"contexts"`

	// SMP is set when more than one context will run.
	SMP bool `toml:"smp"`

	// Paging is false for machines that boot with the MMU off.
	Paging bool `toml:"paging"`

	// ASIDBits is 8 or 16.
	ASIDBits int `toml:"asid_bits"`

	// PARange is the ID_AA64MMFR0_EL1.PARange value of the boot CPU.
	PARange int `toml:"pa_range"`
}

// Region is a region to map.
type Region struct {
	// Name identifies the region in logs and errors.
	Name string `toml:"name"`

	// VAddr is the virtual address, or nil (or "auto") for automatic
	// assignment.
	VAddr *Addr `toml:"vaddr"`

	// PAddr is the physical address.
	PAddr Addr `toml:"paddr"`

	// Size is the size in bytes.
	Size Addr `toml:"size"`

	// Write, Exec and User select permissions. Regions are always
	// readable.
	Write bool `toml:"write"`
	Exec  bool `toml:"exec"`
	User  bool `toml:"user"`

	// Device and NoCache select the memory type.
	Device  bool `toml:"device"`
	NoCache bool `toml:"nocache"`

	// Identity maps the region at its physical address.
	Identity bool `toml:"identity"`

	// Metadata maps the region in the boot-metadata window.
	Metadata bool `toml:"metadata"`
}

// Opts returns the mapping options for r.
func (r *Region) Opts() pagetables.MapOpts {
	return pagetables.MapOpts{
		AccessType: hostarch.AccessType{
			Read:    true,
			Write:   r.Write,
			Execute: r.Exec,
		},
		User:       r.User,
		MemoryType: hostarch.MemoryTypeFor(r.Device, r.NoCache),
	}
}

// Target returns the virtual address to pass to MapRegion. It is
// bootvm.Auto for automatically assigned regions.
func (r *Region) Target() hostarch.Addr {
	switch {
	case r.Identity:
		return hostarch.Addr(r.PAddr)
	case r.VAddr == nil:
		return bootvm.Auto
	default:
		return hostarch.Addr(*r.VAddr)
	}
}

// Plan is a boot plan: the platform and the regions to map, in order.
type Plan struct {
	Platform Platform `toml:"platform"`
	Regions  []Region `toml:"region"`
}

// BuilderConfig returns the bootvm configuration for p.
func (p *Plan) BuilderConfig() bootvm.Config {
	return bootvm.Config{
		Contexts:      p.Platform.Contexts,
		SMP:           p.Platform.SMP,
		DisablePaging: !p.Platform.Paging,
		ASIDBits:      p.Platform.ASIDBits,
		PARange:       p.Platform.PARange,
	}
}

func defaultPlan() Plan {
	return Plan{
		Platform: Platform{
			Paging:   true,
			ASIDBits: 8,
			PARange:  5,
		},
	}
}

// ParsePlan parses a TOML boot plan.
func ParsePlan(data string) (*Plan, error) {
	p := defaultPlan()
	md, err := toml.Decode(data, &p)
	if err != nil {
		return nil, err
	}
	return finish(&p, md)
}

// LoadPlan loads a TOML boot plan from path.
func LoadPlan(path string) (*Plan, error) {
	p := defaultPlan()
	md, err := toml.DecodeFile(path, &p)
	if err != nil {
		return nil, fmt.Errorf("loading boot plan %q: %w", path, err)
	}
	return finish(&p, md)
}

func finish(p *Plan, md toml.MetaData) (*Plan, error) {
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("unknown boot plan keys: %v", undecoded)
	}
	if err := p.validate(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Plan) validate() error {
	if p.Platform.MemorySize == 0 {
		return fmt.Errorf("platform.memory_size must be set")
	}
	if !hostarch.Addr(p.Platform.MemoryBase).IsPageAligned() || !hostarch.Addr(p.Platform.MemorySize).IsPageAligned() {
		return fmt.Errorf("platform memory window %v+%v is not page aligned", p.Platform.MemoryBase, p.Platform.MemorySize)
	}
	if p.Platform.Contexts < 0 || p.Platform.Contexts > bootvm.MaxContexts {
		return fmt.Errorf("platform.contexts %d out of range [0, %d]", p.Platform.Contexts, bootvm.MaxContexts)
	}
	names := make(map[string]struct{}, len(p.Regions))
	for i := range p.Regions {
		r := &p.Regions[i]
		if r.Name == "" {
			r.Name = fmt.Sprintf("region%d", i)
		}
		if _, ok := names[r.Name]; ok {
			return fmt.Errorf("duplicate region %q", r.Name)
		}
		names[r.Name] = struct{}{}

		placements := 0
		for _, set := range []bool{r.VAddr != nil, r.Identity, r.Metadata} {
			if set {
				placements++
			}
		}
		if placements > 1 {
			return fmt.Errorf("region %q: vaddr, identity and metadata are exclusive", r.Name)
		}
		if r.VAddr != nil && hostarch.Addr(*r.VAddr) == bootvm.Auto {
			r.VAddr = nil
		}
	}
	return nil
}
