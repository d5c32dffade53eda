// Copyright 2025 The gVisor Authors.
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

package hostarch

import "fmt"

// MemoryType specifies CPU memory access behavior for a mapping.
type MemoryType uint8

const (
	// MemoryTypeWriteBack is normal write-back cacheable memory. This
	// memory type is appropriate for loaded images and boot metadata and
	// must be the zero value for MemoryType.
	MemoryTypeWriteBack MemoryType = iota

	// MemoryTypeWriteCombine is normal non-cacheable memory, e.g. frame
	// buffers.
	MemoryTypeWriteCombine

	// MemoryTypeDevice is Device-nGnRE: device memory that still permits
	// early write acknowledgement.
	MemoryTypeDevice

	// MemoryTypeUncached is Device-nGnRnE, the strongest ordering for
	// peripheral registers.
	MemoryTypeUncached

	// NumMemoryTypes is the number of memory types.
	NumMemoryTypes
)

// MemoryTypeFor selects a memory type from the device and no-cache flags
// used by boot-stage mapping callers.
func MemoryTypeFor(device, noCache bool) MemoryType {
	switch {
	case device && noCache:
		return MemoryTypeUncached
	case device:
		return MemoryTypeDevice
	case noCache:
		return MemoryTypeWriteCombine
	default:
		return MemoryTypeWriteBack
	}
}

// IsDevice returns true if mt is one of the device memory types.
func (mt MemoryType) IsDevice() bool {
	return mt == MemoryTypeDevice || mt == MemoryTypeUncached
}

// String implements fmt.Stringer.String.
func (mt MemoryType) String() string {
	switch mt {
	case MemoryTypeWriteBack:
		return "WriteBack"
	case MemoryTypeWriteCombine:
		return "WriteCombine"
	case MemoryTypeDevice:
		return "Device"
	case MemoryTypeUncached:
		return "Uncached"
	default:
		return fmt.Sprintf("%d", mt)
	}
}

// ShortString returns a two-character string describing the memory type.
func (mt MemoryType) ShortString() string {
	switch mt {
	case MemoryTypeWriteBack:
		return "WB"
	case MemoryTypeWriteCombine:
		return "WC"
	case MemoryTypeDevice:
		return "DE"
	case MemoryTypeUncached:
		return "UC"
	default:
		return fmt.Sprintf("%02d", mt)
	}
}
