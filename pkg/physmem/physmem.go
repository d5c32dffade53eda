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

// Package physmem provides the physical frame pool used while building boot
// page tables.
//
// A Memory stands in for a window of guest physical RAM. It is backed by an
// anonymous host mapping so that tables written into it are real bytes that
// can be inspected or written out, and it hands out frames with a bump
// allocator: frames are never returned.
package physmem

import (
	"fmt"
	"io"

	"golang.org/x/sys/unix"
	"gvisor.dev/bootmap/pkg/errors"
	"gvisor.dev/bootmap/pkg/hostarch"
)

// ErrExhausted is returned when no frame is left in the pool.
var ErrExhausted = errors.New(errors.Exhausted, "physical frame pool exhausted")

// Memory is a bump-allocated window of physical memory.
//
// Memory is not safe for concurrent use.
type Memory struct {
	// base is the physical address of data[0].
	base uintptr

	// data is the host mapping backing [base, base+len(data)).
	data []byte

	// next is the next physical frame to hand out.
	next uintptr

	// allocated counts frames handed out.
	allocated uint64
}

// Stats describes pool usage.
type Stats struct {
	Base      uintptr
	Size      uint64
	Allocated uint64
	Remaining uint64
}

// New maps a pool covering physical [base, base+size).
//
// Precondition: base and size are page aligned, size is non-zero.
func New(base uintptr, size uint64) (*Memory, error) {
	if !hostarch.Addr(base).IsPageAligned() || !hostarch.Addr(size).IsPageAligned() {
		return nil, fmt.Errorf("physical window base %#x size %#x is not page aligned", base, size)
	}
	if size == 0 {
		return nil, fmt.Errorf("physical window at %#x is empty", base)
	}
	if _, ok := hostarch.Addr(base).AddLength(size); !ok {
		return nil, fmt.Errorf("physical window base %#x size %#x wraps", base, size)
	}
	data, err := unix.Mmap(-1, 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		return nil, fmt.Errorf("mapping %#x bytes for physical window: %w", size, err)
	}
	return &Memory{
		base: base,
		data: data,
		next: base,
	}, nil
}

// Close releases the host mapping. Frames must not be used afterwards.
func (m *Memory) Close() error {
	if m.data == nil {
		return nil
	}
	err := unix.Munmap(m.data)
	m.data = nil
	return err
}

// Base returns the physical address of the start of the window.
func (m *Memory) Base() uintptr {
	return m.base
}

// End returns the physical address just past the window.
func (m *Memory) End() uintptr {
	return m.base + uintptr(len(m.data))
}

// Contains returns true if physical lies in the window.
func (m *Memory) Contains(physical uintptr) bool {
	return physical >= m.base && physical < m.End()
}

// AllocFrame returns the next free, zero-filled, page-aligned frame.
func (m *Memory) AllocFrame() (uintptr, error) {
	if m.next >= m.End() {
		return 0, errors.Detailf(ErrExhausted, "%d frames allocated from [%#x, %#x)", m.allocated, m.base, m.End())
	}
	frame := m.next
	m.next += hostarch.PageSize
	m.allocated++
	return frame, nil
}

// Frame returns the bytes of the frame containing physical, or false if the
// frame lies outside the window.
func (m *Memory) Frame(physical uintptr) ([]byte, bool) {
	if !m.Contains(physical) {
		return nil, false
	}
	off := uint64(physical-m.base) &^ (hostarch.PageSize - 1)
	return m.data[off : off+hostarch.PageSize : off+hostarch.PageSize], true
}

// Allocated returns the frames handed out so far, in allocation order, as
// one contiguous range.
func (m *Memory) Allocated() hostarch.AddrRange {
	return hostarch.AddrRange{Start: hostarch.Addr(m.base), End: hostarch.Addr(m.next)}
}

// Stats returns pool usage.
func (m *Memory) Stats() Stats {
	size := uint64(len(m.data))
	used := m.allocated * hostarch.PageSize
	return Stats{
		Base:      m.base,
		Size:      size,
		Allocated: m.allocated,
		Remaining: (size - used) / hostarch.PageSize,
	}
}

// WriteTo implements io.WriterTo.WriteTo. It writes the frames allocated so
// far, which form an image of [Base, Allocated().End).
func (m *Memory) WriteTo(w io.Writer) (int64, error) {
	n, err := w.Write(m.data[:m.next-m.base])
	return int64(n), err
}
