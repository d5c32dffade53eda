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
	"gvisor.dev/bootmap/pkg/bootvm"
	"gvisor.dev/bootmap/pkg/ring0/pagetables"
)

// TCR implements subcommands.Command for the "tcr" command.
type TCR struct {
	asidBits int
	paRange  int
}

// Name implements subcommands.Command.Name.
func (*TCR) Name() string {
	return "tcr"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*TCR) Synopsis() string {
	return "print the TCR_EL1 and MAIR_EL1 values matching the built tables"
}

// Usage implements subcommands.Command.Usage.
func (*TCR) Usage() string {
	return `tcr [flags] - print the TCR_EL1 and MAIR_EL1 values matching the built tables.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (t *TCR) SetFlags(f *flag.FlagSet) {
	f.IntVar(&t.asidBits, "asid-bits", 8, "ASID width: 8 or 16.")
	f.IntVar(&t.paRange, "pa-range", 5, "ID_AA64MMFR0_EL1.PARange of the boot CPU.")
}

// Execute implements subcommands.Command.Execute.
func (t *TCR) Execute(_ context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if f.NArg() != 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	if err := t.print(os.Stdout); err != nil {
		util.Fatalf("%v", err)
	}
	return subcommands.ExitSuccess
}

func (t *TCR) print(w io.Writer) error {
	tcr, err := bootvm.TranslationControl(t.asidBits, t.paRange)
	if err != nil {
		return err
	}
	bits, _ := bootvm.PhysicalAddressBits(t.paRange)
	fmt.Fprintf(w, "TCR_EL1  %#016x\n", tcr)
	fmt.Fprintf(w, "MAIR_EL1 %#016x\n", pagetables.MAIR)
	fmt.Fprintf(w, "# %d-bit VA, %d-bit PA, %d-bit ASID, 4KiB granule\n", 48, bits, t.asidBits)
	return nil
}
