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
	"io"
	"os"

	"github.com/google/subcommands"
	"gvisor.dev/bootmap/bootmap/cmd/util"
	"gvisor.dev/bootmap/bootmap/config"
	"gvisor.dev/bootmap/pkg/bootvm"
	"gvisor.dev/bootmap/pkg/hostarch"
)

// Translate implements subcommands.Command for the "translate" command.
type Translate struct {
	context int
}

// Name implements subcommands.Command.Name.
func (*Translate) Name() string {
	return "translate"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Translate) Synopsis() string {
	return "translate virtual addresses through the tables built from a plan"
}

// Usage implements subcommands.Command.Usage.
func (*Translate) Usage() string {
	return `translate [flags] <plan.toml> <vaddr>... - translate virtual addresses through the tables built from a plan.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (t *Translate) SetFlags(f *flag.FlagSet) {
	f.IntVar(&t.context, "context", -1, "execution context whose top-level table is walked; -1 walks the root-of-roots.")
}

// Execute implements subcommands.Command.Execute.
func (t *Translate) Execute(ctx context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if f.NArg() < 2 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	plan, err := config.LoadPlan(f.Arg(0))
	if err != nil {
		util.Fatalf("%v", err)
	}
	var addrs []hostarch.Addr
	for _, arg := range f.Args()[1:] {
		var a config.Addr
		if err := a.UnmarshalText([]byte(arg)); err != nil {
			util.Fatalf("%v", err)
		}
		addrs = append(addrs, hostarch.Addr(a))
	}

	builder, mem, _, err := BuildPlan(ctx, plan)
	if err != nil {
		util.Abort("building address space", err)
	}
	defer mem.Close()

	if err := t.translate(os.Stdout, builder, addrs); err != nil {
		util.Abort("translating", err)
	}
	return subcommands.ExitSuccess
}

// translate writes one line per address to w.
func (t *Translate) translate(w io.Writer, b *bootvm.AddressSpaceBuilder, addrs []hostarch.Addr) error {
	for _, addr := range addrs {
		var (
			physical uintptr
			ok       bool
			err      error
		)
		if t.context < 0 {
			physical, ok, err = b.Translate(addr)
		} else {
			physical, ok, err = b.TranslateContext(t.context, addr)
		}
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintf(w, "%#x unmapped\n", addr)
			continue
		}
		line := fmt.Sprintf("%#x -> %#x", addr, physical)
		if r, ok := b.RegionFor(addr); ok {
			line += " " + r.Opts.String()
		}
		fmt.Fprintln(w, line)
	}
	return nil
}
