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

package hostarch

// The builder always targets the arm64 4KiB translation granule, regardless
// of the host it runs on.
const (
	// PageShift is the binary log of the granule size.
	PageShift = 12

	// PageSize is the granule size.
	PageSize = 1 << PageShift

	// ContiguousShift is the binary log of a contiguous run of pages that
	// may share one TLB entry when every entry carries the contiguous
	// hint. For the 4KiB granule this is 16 pages.
	ContiguousShift = PageShift + 4

	// ContiguousSize is the size of a contiguous run.
	ContiguousSize = 1 << ContiguousShift

	// ContiguousPages is the number of pages in a contiguous run.
	ContiguousPages = ContiguousSize / PageSize
)
