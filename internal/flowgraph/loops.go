/*
 * Copyright 2022 ByteDance Inc.
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

package flowgraph

// Loop is a natural loop descriptor found by an earlier phase. The
// optimizer never discovers loops, it only keeps the references valid as
// blocks are compacted, moved or removed.
type Loop struct {
    Head    *Block
    Top     *Block
    Entry   *Block
    Bottom  *Block
    Exit    *Block
    Removed bool
}

type LoopTable struct {
    Loops []*Loop
}

// Get returns the loop with the 1-based number n.
func (self *LoopTable) Get(n int) *Loop {
    if n <= 0 || n > len(self.Loops) {
        return nil
    } else {
        return self.Loops[n - 1]
    }
}

// IsEntry checks whether bb is the entry of any live loop.
func (self *LoopTable) IsEntry(bb *Block) bool {
    for _, lp := range self.Loops {
        if !lp.Removed && lp.Entry == bb {
            return true
        }
    }
    return false
}

// UpdateAfterCompacting redirects references to the folded block bNext to
// block.
func (self *LoopTable) UpdateAfterCompacting(block *Block, bNext *Block) {
    for _, lp := range self.Loops {
        if lp.Removed {
            continue
        }
        if lp.Head == bNext {
            lp.Head = block
        }
        if lp.Bottom == bNext {
            lp.Bottom = block
        }
        if lp.Exit == bNext {
            lp.Exit = block
        }
        if lp.Entry == bNext {
            lp.Entry = block
        }
        if lp.Top == bNext {
            lp.Top = block
        }
    }
}

// UpdateBeforeRemoveBlock drops references to bb, loops whose shape
// depends on it are marked removed.
func (self *LoopTable) UpdateBeforeRemoveBlock(bb *Block) {
    for _, lp := range self.Loops {
        if lp.Removed {
            continue
        }
        if lp.Entry == bb || lp.Bottom == bb || lp.Top == bb {
            lp.Removed = true
            continue
        }
        if lp.Exit == bb {
            lp.Exit = nil
        }
        if lp.Head == bb {
            lp.Head = nil
        }
    }
}

// InDifferentLoops checks whether a and b belong to two distinct loops.
func InDifferentLoops(a *Block, b *Block) bool {
    return a.LoopNum != 0 && b.LoopNum != 0 && a.LoopNum != b.LoopNum
}
