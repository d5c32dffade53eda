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
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"
	"gvisor.dev/bootmap/bootmap/cmd/util"
	"gvisor.dev/bootmap/bootmap/config"
	"gvisor.dev/bootmap/pkg/physmem"
)

// Build implements subcommands.Command for the "build" command.
type Build struct {
	handoff string
	image   string
}

// Name implements subcommands.Command.Name.
func (*Build) Name() string {
	return "build"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Build) Synopsis() string {
	return "build the boot address space described by a plan"
}

// Usage implements subcommands.Command.Usage.
func (*Build) Usage() string {
	return `build [flags] <plan.toml> - build the boot address space described by a plan.

The handoff manifest (roots, TCR and MAIR values, mapped regions) is written
as YAML. The table frames can be written out as a raw image starting at the
plan's memory_base.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (b *Build) SetFlags(f *flag.FlagSet) {
	f.StringVar(&b.handoff, "handoff", "-", "path to write the handoff manifest to, - for stdout.")
	f.StringVar(&b.image, "image", "", "path to write the table frame image to.")
}

// Execute implements subcommands.Command.Execute.
func (b *Build) Execute(ctx context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if f.NArg() != 1 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	plan, err := config.LoadPlan(f.Arg(0))
	if err != nil {
		util.Fatalf("%v", err)
	}
	builder, mem, _, err := BuildPlan(ctx, plan)
	if err != nil {
		util.Abort("building address space", err)
	}
	defer mem.Close()

	data, err := builder.Handoff().Marshal()
	if err != nil {
		util.Fatalf("marshaling handoff: %v", err)
	}
	if err := writeOutput(b.handoff, data); err != nil {
		util.Fatalf("writing handoff: %v", err)
	}
	if b.handoff != "" && b.handoff != "-" {
		util.Writef("Wrote handoff for %d contexts to %q", len(builder.ContextRoots()), b.handoff)
	}
	if b.image != "" {
		if err := writeImage(b.image, mem); err != nil {
			util.Fatalf("writing table image: %v", err)
		}
		util.Writef("Wrote table image %v to %q", mem.Allocated(), b.image)
	}
	return subcommands.ExitSuccess
}

func writeImage(path string, mem *physmem.Memory) error {
	unlock, err := lockOutput(path)
	if err != nil {
		return err
	}
	defer unlock()

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := mem.WriteTo(f); err != nil {
		f.Close()
		return fmt.Errorf("writing %q: %w", path, err)
	}
	return f.Close()
}
