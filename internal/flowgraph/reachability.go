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

import (
    `tlog.app/go/errors`
)

// ComputeReturnBlocks collects the blocks returning from the method.
func (self *Graph) ComputeReturnBlocks() []*Block {
    self.ReturnBlocks = self.ReturnBlocks[:0]
    for bb := self.First; bb != nil; bb = bb.next {
        if bb.Kind() == KindReturn {
            self.ReturnBlocks = append(self.ReturnBlocks, bb)
        }
    }
    return self.ReturnBlocks
}

// ComputeEnterBlocks builds the set of flow graph roots: the method entry
// and the begin blocks of every handler and filter.
func (self *Graph) ComputeEnterBlocks() *BitSet {
    self.EnterBlocks = NewBitSet(self.Count + 1)
    self.EnterBlocks.Add(self.First.Id)
    if self.OsrEntry != nil {
        self.EnterBlocks.Add(self.OsrEntry.Id)
    }

    /* handlers and filters are entered by the runtime */
    for _, e := range self.Eh.Clauses {
        if e.HasFilter() {
            self.EnterBlocks.Add(e.FilterBeg.Id)
        }
        self.EnterBlocks.Add(e.HndBeg.Id)
    }
    return self.EnterBlocks
}

// ComputeReachabilitySets computes, for every block, the set of blocks that
// can reach it. The same fixpoint propagates BBF_GC_SAFE_POINT to blocks
// whose predecessors all have it.
func (self *Graph) ComputeReachabilitySets() error {
    if err := self.Require(LevelDfs); err != nil {
        return errors.Wrap(err, "reachability")
    }

    /* every block reaches itself */
    n := self.Count
    for bb := self.First; bb != nil; bb = bb.next {
        bb.Reach = NewBitSet(n + 1)
        bb.Reach.Add(bb.Id)
    }

    /* iterate to a fixpoint in reverse postorder */
    for iter := 0; ; iter++ {
        changed := false
        if iter > n + 1 {
            return errors.Wrap(ErrIterationLimit, "reachability after %d rounds", iter)
        }

        /* union the predecessor sets */
        for i := 1; i <= n; i++ {
            bb := self.Rpo[i]
            if len(bb.Preds) == 0 {
                continue
            }

            /* the safe point flag needs all predecessors */
            gcs := BBF_GC_SAFE_POINT
            for _, e := range bb.Preds {
                changed = bb.Reach.UnionWith(e.Source.Reach) || changed
                gcs &= e.Source.Flags
            }
            bb.Flags |= gcs
        }

        /* stop when nothing changed */
        if !changed {
            break
        }
    }

    /* mark as valid */
    self.Cache.validate(LevelReach, self.epoch)
    self.Cache.DomCount = n
    return nil
}

// isNew checks whether bb was created after the flow analyses were computed.
func (self *Graph) isNew(bb *Block) bool {
    return bb.Id > self.Cache.DomCount
}

// Reachable checks whether there is a path from a to b. Blocks created after
// the last computation are answered by walking their edges.
func (self *Graph) Reachable(a *Block, b *Block) bool {
    if err := self.Require(LevelReach); err != nil {
        panic(errors.Wrap(err, "reachable"))
    }
    return self.reachable(a, b, make(map[*Block]bool))
}

func (self *Graph) reachable(a *Block, b *Block, seen map[*Block]bool) bool {
    if seen[a] && seen[b] {
        return false
    }

    /* new target: reachable through any of its predecessors */
    if self.isNew(b) {
        if a == b {
            return true
        }
        seen[b] = true
        for _, e := range b.Preds {
            if !seen[e.Source] && self.reachable(a, e.Source, seen) {
                return true
            }
        }
        return false
    }

    /* new source: new blocks only jump or branch */
    if self.isNew(a) {
        seen[a] = true
        switch a.Kind() {
            case KindCond   : return self.reachable(a.next, b, seen) || self.reachable(a.JumpDest(), b, seen)
            case KindAlways : return self.reachable(a.JumpDest(), b, seen)
            default         : return false
        }
    }

    /* both are known */
    return b.Reach.Has(a.Id)
}

// Dominate checks whether a dominates b. Blocks created after the last
// computation are answered conservatively from their predecessors.
func (self *Graph) Dominate(a *Block, b *Block) bool {
    if err := self.Require(LevelDoms); err != nil {
        panic(errors.Wrap(err, "dominate"))
    }
    return self.dominate(a, b, make(map[*Block]bool))
}

func (self *Graph) dominate(a *Block, b *Block, seen map[*Block]bool) bool {
    if self.isNew(b) {
        if a == b {
            return true
        }

        /* cycles among new blocks are not dominated */
        if seen[b] {
            return false
        }

        /* a must dominate every predecessor */
        seen[b] = true
        for _, e := range b.Preds {
            if !self.dominate(a, e.Source, seen) {
                return false
            }
        }
        return len(b.Preds) != 0
    }

    /* a new block never dominates an old one */
    if self.isNew(a) {
        return false
    }

    /* dominator tree interval test */
    return a.DomPre <= b.DomPre && a.DomPost >= b.DomPost
}

// FlowGraphUpdates selects the extra analyses of UpdateChangedFlowGraph.
type FlowGraphUpdates uint8

const (
    UpdateReach   FlowGraphUpdates = 0
    UpdateDoms    FlowGraphUpdates = 1 << 0
    UpdateReturns FlowGraphUpdates = 1 << 1
)

// UpdateChangedFlowGraph recomputes the numbering, the DFS order and the
// reachability sets after the graph was edited, and the dominators too if
// asked for.
func (self *Graph) UpdateChangedFlowGraph(updates FlowGraphUpdates) error {
    self.Cache.Invalidate()
    if updates & UpdateReturns != 0 {
        self.ComputeReturnBlocks()
    }

    /* number, order and propagate */
    self.Renumber()
    self.ComputeEnterBlocks()
    self.DfsReversePostorder()

    /* reachability sets */
    if err := self.ComputeReachabilitySets(); err != nil {
        return err
    }

    /* dominators */
    if updates & UpdateDoms != 0 {
        return self.ComputeDoms()
    } else {
        return nil
    }
}
