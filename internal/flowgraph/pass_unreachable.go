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
    `github.com/oleiade/lane`
    `tlog.app/go/errors`
)

// removeUnreachableBlocks retires every block the predicate selects.
// Protected blocks are kept as empty throws, everything else is unlinked.
// It reports whether the graph changed.
func (self *Graph) removeUnreachableBlocks(canRemove func(bb *Block) bool) bool {
    changed := false
    unreachable := false

    /* record the unreachable blocks */
    for bb := self.First; bb != nil; bb = bb.next {
        if bb == self.First || bb == self.GenReturn || bb.Flags & BBF_THROW_HELPER != 0 {
            continue
        }

        /* already converted to a throw */
        if bb.Flags & BBF_DONT_REMOVE != 0 && bb.IsEmpty() && bb.Kind() == KindThrow {
            continue
        }

        /* check for removal */
        if bb.Flags & BBF_REMOVED != 0 || !canRemove(bb) {
            continue
        }

        /* remove all the code, and the out edges */
        pair := bb.IsCallAlwaysPair()
        leave := bb.next
        nsucc := NumSucc(bb)
        self.UnreachableBlock(bb)

        /* protected blocks become empty throws */
        if bb.Flags & BBF_DONT_REMOVE != 0 {
            changed = changed || nsucc > 0
            bb.Flags &^= BBF_REMOVED | BBF_INTERNAL
            bb.Flags |= BBF_IMPORTED
            bb.Jump = &JThrow{}
            bb.SetRunRarely()
            self.Span.Printw("converted protected block to throw", "block", bb.Id)
        } else {
            unreachable = true
            changed = true
        }

        /* the continuation of a call pair is now dead */
        if pair {
            if bb.Kind() != KindThrow {
                bb.Jump = &JAlways{To: leave}
            }

            /* the finally returns no longer reach it */
            leave.Flags &^= BBF_DONT_REMOVE
            for _, e := range append([]*FlowEdge(nil), leave.Preds...) {
                self.removeFinallyRetSucc(e.Source, leave)
            }

            /* remove the continuation */
            self.RemoveBlock(leave, true)
        }
    }

    /* unlink the blocks marked as removed */
    if unreachable {
        for bb := self.First; bb != nil; {
            next := bb.next
            if bb.Flags & BBF_REMOVED != 0 {
                self.RemoveBlock(bb, true)
                self.Span.Printw("removed unreachable block", "block", bb.Id)
            }
            bb = next
        }
    }

    /* the analyses no longer describe the graph */
    if changed {
        self.Cache.Invalidate()
    }
    return changed
}

// removeFinallyRetSucc drops the continuation bb from the successors of a
// finally return block.
func (self *Graph) removeFinallyRetSucc(src *Block, bb *Block) {
    j, ok := src.Jump.(*JEhFinallyRet)
    if !ok {
        panic(errors.Wrap(ErrInconsistentGraph, "%v reaches call pair continuation %v", src, bb))
    }

    /* remove every occurrence */
    succs := j.Succs[:0]
    for _, v := range j.Succs {
        if v != bb {
            succs = append(succs, v)
        }
    }

    /* and the edge */
    j.Succs = succs
    RemoveAllPreds(bb, src)
}

// ComputeReachability computes the reachability sets, removes every block
// no flow graph root can reach, then computes the dominators. Removing a
// block may orphan more of them, so this repeats until nothing changes.
func (self *Graph) ComputeReachability() (bool, error) {
    modified := false
    self.ComputeReturnBlocks()

    /* unreachable from any root */
    canRemove := func(bb *Block) bool {
        return !self.EnterBlocks.Intersects(bb.Reach)
    }

    /* repeat until stable */
    for pass := 1; ; pass++ {
        if pass > self.Opts.MaxReachPasses {
            return modified, errors.Wrap(ErrIterationLimit, "unreachable block removal after %d passes", pass - 1)
        }

        /* number the blocks, then compute the reachability */
        modified = self.Renumber() || modified
        self.ComputeEnterBlocks()
        self.DfsReversePostorder()

        /* propagate the reachability sets */
        if err := self.ComputeReachabilitySets(); err != nil {
            return modified, err
        }

        /* remove whatever is left unreachable */
        if !self.removeUnreachableBlocks(canRemove) {
            break
        }

        /* the graph changed, start over */
        modified = true
        self.Span.Printw("reachability pass removed blocks", "pass", pass)
    }

    /* finally the dominators */
    if err := self.ComputeDoms(); err != nil {
        return modified, err
    } else {
        return modified, nil
    }
}

// RemoveDeadBlocks removes the blocks not reachable from the entry through
// flow edges or through the handlers of the try regions it enters. It
// reports whether any unreachable block was found.
func (self *Graph) RemoveDeadBlocks() (bool, error) {
    found := false
    visited := NewBitSet(self.maxId + 1)

    /* breadth first walk from the entry */
    wl := lane.NewQueue()
    wl.Enqueue(self.First)

    /* visit all the reachable blocks */
    for !wl.Empty() {
        bb := wl.Dequeue().(*Block)
        if visited.Has(bb.Id) {
            continue
        }

        /* mark the block, queue the successors */
        visited.Add(bb.Id)
        for _, succ := range Successors(bb) {
            wl.Enqueue(succ)
        }

        /* entering a try makes its handlers reachable */
        if self.Eh.IsTryBeg(bb) {
            for e := self.Eh.Get(bb.TryIndex); e != nil; {
                wl.Enqueue(e.HndBeg)
                if e.HasFilter() {
                    wl.Enqueue(e.FilterBeg)
                }

                /* mutually protecting regions share the try begin */
                if e = self.Eh.Get(e.Enclosing); e != nil && e.TryBeg != bb {
                    break
                }
            }
        }
    }

    /* not visited, or nothing refers to it any more */
    canRemove := func(bb *Block) bool {
        ok := !visited.Has(bb.Id) || bb.RefCount() == 0
        found = found || ok
        return ok
    }

    /* repeat until stable */
    for pass := 1; self.removeUnreachableBlocks(canRemove); pass++ {
        if pass >= self.Opts.MaxReachPasses {
            return found, errors.Wrap(ErrIterationLimit, "dead block removal after %d passes", pass)
        }
    }

    /* done */
    return found, nil
}
