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

// Package cmd holds implementations of the bootmap commands.
package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/gofrs/flock"
	"gvisor.dev/bootmap/bootmap/config"
	"gvisor.dev/bootmap/pkg/bootvm"
	"gvisor.dev/bootmap/pkg/hostarch"
	"gvisor.dev/bootmap/pkg/log"
	"gvisor.dev/bootmap/pkg/physmem"
)

// Mapping is a plan region and the virtual address it was given.
type Mapping struct {
	Region  config.Region
	Virtual hostarch.Addr
}

// String implements fmt.Stringer.String.
func (m Mapping) String() string {
	r := &m.Region
	return fmt.Sprintf("%s: %#x -> %v+%v %v", r.Name, m.Virtual, r.PAddr, r.Size, r.Opts())
}

// BuildPlan builds and verifies the address space described by plan. The
// caller must close the returned memory once it is done with the builder.
func BuildPlan(ctx context.Context, plan *config.Plan) (*bootvm.AddressSpaceBuilder, *physmem.Memory, []Mapping, error) {
	mem, err := physmem.New(uintptr(plan.Platform.MemoryBase), uint64(plan.Platform.MemorySize))
	if err != nil {
		return nil, nil, nil, err
	}
	b, mappings, err := build(ctx, plan, mem)
	if err != nil {
		mem.Close()
		return nil, nil, nil, err
	}
	return b, mem, mappings, nil
}

func build(ctx context.Context, plan *config.Plan, mem *physmem.Memory) (*bootvm.AddressSpaceBuilder, []Mapping, error) {
	b, err := bootvm.New(plan.BuilderConfig(), mem)
	if err != nil {
		return nil, nil, fmt.Errorf("initializing address space: %w", err)
	}
	mappings := make([]Mapping, 0, len(plan.Regions))
	for _, r := range plan.Regions {
		var v hostarch.Addr
		if r.Metadata {
			v, err = b.MapMetadata(uintptr(r.PAddr), uint64(r.Size), r.Opts())
		} else {
			v, err = b.MapRegion(r.Target(), uintptr(r.PAddr), uint64(r.Size), r.Opts())
		}
		if err != nil {
			return nil, nil, fmt.Errorf("mapping region %q: %w", r.Name, err)
		}
		m := Mapping{Region: r, Virtual: v}
		log.Infof("Mapped %v", m)
		mappings = append(mappings, m)
	}
	if err := b.Verify(ctx); err != nil {
		return nil, nil, fmt.Errorf("verifying contexts: %w", err)
	}
	s := mem.Stats()
	log.Infof("Address space ready: %d tables, %d of %d frames used", b.Tables(), s.Allocated, s.Allocated+s.Remaining)
	return b, mappings, nil
}

// writeOutput writes data to path, or to stdout if path is empty or "-".
func writeOutput(path string, data []byte) error {
	if path == "" || path == "-" {
		_, err := os.Stdout.Write(data)
		return err
	}
	unlock, err := lockOutput(path)
	if err != nil {
		return err
	}
	defer unlock()
	return os.WriteFile(path, data, 0644)
}

// lockOutput takes the lock guarding output file path, so that concurrent
// builds never interleave their output. The lock file is left in place.
func lockOutput(path string) (func() error, error) {
	f := path + ".lock"
	l := flock.NewFlock(f)
	locked, err := l.TryLock()
	if err != nil {
		return nil, fmt.Errorf("error acquiring lock on output lock file %q: %v", f, err)
	}
	if !locked {
		return nil, fmt.Errorf("output %q is being written by another build", path)
	}
	return l.Unlock, nil
}
