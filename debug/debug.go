/*
 * Copyright 2022 CloudWeGo Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */


package debug

import (
	"sync/atomic"

	"github.com/cloudwego/flowopt/internal/flowgraph"
)

// A Stats records statistics about the flow graph optimizer.
type Stats struct {
	Graphs GraphStats
	Blocks BlockStats
}

// A GraphStats records how many graphs went through the pass pipeline.
type GraphStats struct {
	Optimized int
	Disabled  int
}

// A BlockStats records the block level rewrites done so far.
type BlockStats struct {
	Removed   int
	Compacted int
	Moved     int
	TailDup   int
	Merged    int
}

func load(p *uint32) int {
	return int(atomic.LoadUint32(p))
}

// GetStats returns statistics of the flow graph optimizer.
func GetStats() Stats {
	return Stats{
		Graphs: GraphStats{
			Optimized: load(&flowgraph.GraphCount),
			Disabled:  load(&flowgraph.DisabledCount),
		},
		Blocks: BlockStats{
			Removed:   load(&flowgraph.RemovedCount),
			Compacted: load(&flowgraph.CompactedCount),
			Moved:     load(&flowgraph.MovedCount),
			TailDup:   load(&flowgraph.TailDupCount),
			Merged:    load(&flowgraph.MergedCount),
		},
	}
}
