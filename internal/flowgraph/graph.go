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
    `sort`

    `github.com/cloudwego/flowopt/internal/ir`
    `github.com/cloudwego/flowopt/internal/opts`
    `tlog.app/go/tlog`
)

// Graph is the control flow graph of one method. It owns every block ever
// created for the method, blocks are linked into an ordered list which
// defines the code layout.
type Graph struct {
    First        *Block
    Last         *Block
    OsrEntry     *Block
    GenReturn    *Block
    Scratch      *Block
    FirstCold    *Block
    FirstFunclet *Block
    Eh           EhTable
    Loops        LoopTable
    Locals       ir.Locals

    /* profile and pipeline state */
    HasProfile           bool
    EdgeWeightsComputed  bool
    EdgeWeightsValid     bool
    RequirePreheaders    bool
    OptimizationDisabled bool

    /* flow analysis results */
    Cache        FlowAnalysisCache
    Count        int
    Rpo          []*Block
    EnterBlocks  *BitSet
    ReturnBlocks []*Block

    Opts     opts.Options
    Span     tlog.Span
    epoch    int
    maxId    int
    numbered int
    blocks   []*Block
}

func NewGraph() *Graph {
    return &Graph {
        Opts: opts.GetDefaultOptions(),
        Span: tlog.Root(),
    }
}

// Entry is the method entry, always the first block.
func (self *Graph) Entry() *Block {
    return self.First
}

func (self *Graph) Epoch() int {
    return self.epoch
}

// Require checks that the analysis lv is valid for the current numbering.
func (self *Graph) Require(lv Level) error {
    return self.Cache.Require(lv, self.epoch)
}

// Blocks returns a snapshot of the linked blocks in layout order.
func (self *Graph) Blocks() []*Block {
    ret := make([]*Block, 0, self.Count)
    for bb := self.First; bb != nil; bb = bb.next {
        ret = append(ret, bb)
    }
    return ret
}

// AllBlocks returns every block ever allocated, removed ones included.
func (self *Graph) AllBlocks() []*Block {
    return self.blocks
}

// NewBlock allocates an unlinked block. Its id is above every id of the
// last numbering, which marks it as new to the flow analyses.
func (self *Graph) NewBlock(jmp Jump) *Block {
    self.maxId++
    bb := &Block {
        Id     : self.maxId,
        Jump   : jmp,
        Weight : Unity,
    }
    self.blocks = append(self.blocks, bb)
    return bb
}

func (self *Graph) Append(bb *Block) {
    if self.Last == nil {
        self.First, self.Last = bb, bb
        bb.prev, bb.next = nil, nil
        self.Count++
    } else {
        self.InsertAfter(bb, self.Last)
    }
}

func (self *Graph) InsertAfter(bb *Block, after *Block) {
    bb.prev = after
    bb.next = after.next

    /* fix the links */
    if after.next != nil {
        after.next.prev = bb
    } else {
        self.Last = bb
    }

    /* link the new block */
    after.next = bb
    self.Count++
}

func (self *Graph) InsertBefore(bb *Block, before *Block) {
    if before.prev != nil {
        self.InsertAfter(bb, before.prev)
    } else {
        bb.prev = nil
        bb.next = before
        before.prev = bb
        self.First = bb
        self.Count++
    }
}

// Unlink removes bb from the block list, leaving its fields intact.
func (self *Graph) Unlink(bb *Block) {
    self.UnlinkRange(bb, bb)
}

// UnlinkRange removes the contiguous blocks [start, end] from the list.
func (self *Graph) UnlinkRange(start *Block, end *Block) {
    n := 0
    for p := start; ; p = p.next {
        if n++; p == end {
            break
        }
    }

    /* predecessor link */
    if start.prev != nil {
        start.prev.next = end.next
    } else {
        self.First = end.next
    }

    /* successor link */
    if end.next != nil {
        end.next.prev = start.prev
    } else {
        self.Last = start.prev
    }

    /* detach the range */
    start.prev = nil
    end.next = nil
    self.Count -= n
}

// MoveBlocksAfter relocates the contiguous blocks [start, end] right after
// the block after.
func (self *Graph) MoveBlocksAfter(start *Block, end *Block, after *Block) {
    self.UnlinkRange(start, end)
    self.InsertRangeAfter(start, end, after)
    count(&MovedCount)
}

// InsertRangeAfter links the detached blocks [start, end] after the block
// after.
func (self *Graph) InsertRangeAfter(start *Block, end *Block, after *Block) {
    n := 0
    for p := start; ; p = p.next {
        if n++; p == end {
            break
        }
    }

    /* fix the neighbours */
    start.prev = after
    end.next = after.next
    if after.next != nil {
        after.next.prev = end
    } else {
        self.Last = end
    }

    /* link the range */
    after.next = start
    self.Count += n
}

// NewBlockAfter creates a block after the given one. With extendRegion the
// new block joins the EH regions of after, growing the regions after ends.
func (self *Graph) NewBlockAfter(jmp Jump, after *Block, extendRegion bool) *Block {
    bb := self.NewBlock(jmp)
    self.InsertAfter(bb, after)

    /* copy the region */
    if extendRegion {
        bb.TryIndex = after.TryIndex
        bb.HndIndex = after.HndIndex
        self.Eh.UpdateLastBlocks(after, bb)
    }
    return bb
}

// InheritWeight copies the weight of src, along with the profile and
// rarity flags.
func (self *Block) InheritWeight(src *Block) {
    self.Weight = src.Weight
    self.Flags &^= BBF_PROF_WEIGHT | BBF_RUN_RARELY
    self.Flags |= src.Flags & (BBF_PROF_WEIGHT | BBF_RUN_RARELY)
}

const (
    _BBF_SPLIT_LOST = BBF_DONT_REMOVE | BBF_LOOP_HEAD | BBF_LOOP_PREHEADER | BBF_FUNCLET_BEG | BBF_CLONED_FINALLY_BEGIN
    _BBF_SPLIT_JUMP = BBF_KEEP_ALWAYS | BBF_RETLESS_CALL | BBF_NONE_QUIRK
)

// SplitAfterStmt moves the statements from index n on, together with the
// jump, into a new block following bb, which then jumps to it.
func (self *Graph) SplitAfterStmt(bb *Block, n int) *Block {
    nb := self.NewBlockAfter(bb.Jump, bb, true)
    nb.Stmts = append([]*ir.Node(nil), bb.Stmts[n:]...)
    nb.Flags = bb.Flags &^ _BBF_SPLIT_LOST
    nb.LoopNum = bb.LoopNum
    nb.InheritWeight(bb)

    /* copy the liveness */
    if bb.LiveOut != nil {
        nb.LiveOut = bb.LiveOut.Clone()
    }

    /* the successors now come from the new block */
    for _, succ := range UniqueSuccs(nb) {
        ReplacePred(succ, bb, nb)
    }

    /* the old block jumps to the new one */
    bb.Stmts = bb.Stmts[:n:n]
    bb.Jump = &JAlways{To: nb}
    bb.Flags = bb.Flags &^ _BBF_SPLIT_JUMP | BBF_NONE_QUIRK
    AddRefPred(nb, bb)
    return nb
}

// SplitAtBeginning moves all the statements of bb into a new block after it.
func (self *Graph) SplitAtBeginning(bb *Block) *Block {
    return self.SplitAfterStmt(bb, 0)
}

// ReplaceJumpTarget makes the jumps of bb to oldTarget go to newTarget,
// updating the pred lists. The implicit fall-through is not a jump.
func (self *Graph) ReplaceJumpTarget(bb *Block, newTarget *Block, oldTarget *Block) {
    switch j := bb.Jump.(type) {
        case *JSwitch: {
            for i, v := range j.Table {
                if v == oldTarget {
                    j.Table[i] = newTarget
                    AddRefPredWithWeights(newTarget, bb, RemoveRefPred(oldTarget, bb))
                }
            }
        }
        case *JEhFinallyRet: {
            for i, v := range j.Succs {
                if v == oldTarget {
                    j.Succs[i] = newTarget
                    AddRefPredWithWeights(newTarget, bb, RemoveRefPred(oldTarget, bb))
                }
            }
        }
        default: {
            if bb.JumpDest() == oldTarget {
                bb.SetJumpDest(newTarget)
                AddRefPredWithWeights(newTarget, bb, RemoveRefPred(oldTarget, bb))
            }
        }
    }
}

// RemoveBlockAsPred drops every edge leaving bb.
func RemoveBlockAsPred(bb *Block) {
    for _, succ := range UniqueSuccs(bb) {
        RemoveAllPreds(succ, bb)
    }
}

// UnreachableBlock retires bb: statements are dropped, loop references are
// cleared, the block is marked removed and its out edges are deleted. It
// stays linked until RemoveBlock is called.
func (self *Graph) UnreachableBlock(bb *Block) {
    if bb.Flags & BBF_REMOVED != 0 {
        return
    }
    if bb == self.First {
        panic("flowgraph: cannot retire the entry block")
    }
    bb.Stmts = nil
    self.Loops.UpdateBeforeRemoveBlock(bb)
    bb.Flags |= BBF_REMOVED
    RemoveBlockAsPred(bb)
}

// RemoveBlock deletes bb from the graph. An unreachable block is retired
// and unlinked. Otherwise bb must be an empty unconditional jump, all its
// predecessors are redirected to its target.
func (self *Graph) RemoveBlock(bb *Block, unreachable bool) {
    prev := bb.prev
    if bb.Flags & BBF_DONT_REMOVE != 0 {
        panic("flowgraph: removing a protected block " + bb.String())
    }

    /* the canonical return block is never deleted */
    if bb == self.GenReturn {
        panic("flowgraph: removing the canonical return block")
    }

    /* empty blocks are bypassed */
    count(&RemovedCount)
    if !unreachable {
        self.removeEmptyBlock(bb)
        return
    }

    /* retire the block first */
    self.UnreachableBlock(bb)
    if bb.IsCallAlwaysPairTail() {
        prev.Flags |= BBF_RETLESS_CALL
    } else if prev != nil && prev.Kind() == KindAlways && prev.HasJumpTo(bb.next) && prev.Flags & BBF_KEEP_ALWAYS == 0 && bb != self.FirstCold {
        prev.Flags |= BBF_NONE_QUIRK
    }

    /* update the cold section start */
    if bb == self.FirstCold {
        self.FirstCold = bb.next
    }

    /* unlink the block */
    self.Eh.UpdateForDeletedBlock(bb)
    self.Unlink(bb)
    bb.Preds = nil
}

func (self *Graph) removeEmptyBlock(bb *Block) {
    prev := bb.prev
    succ := bb.JumpDest()

    /* sanity checks */
    if !bb.IsEmpty() || bb.Kind() != KindAlways || bb.IsCallAlwaysPairTail() {
        panic("flowgraph: not an empty jump block " + bb.String())
    }

    /* update the cold section start */
    if bb == self.FirstCold {
        self.FirstCold = bb.next
    }

    /* the entry reference moves along */
    if bb == self.First {
        succ.ImplicitRefs += bb.ImplicitRefs
        bb.ImplicitRefs = 0
    }

    /* every predecessor now reaches the target instead */
    RemoveRefPred(succ, bb)
    for _, e := range append([]*FlowEdge(nil), bb.Preds...) {
        pred := e.Source

        /* switches move their references while replacing */
        if pred.Kind() != KindSwitch {
            for i := 0; i < e.Dup; i++ {
                AddRefPred(succ, pred)
            }
        }

        /* change all the jumps to the removed block */
        switch j := pred.Jump.(type) {
            case *JSwitch: {
                for i, v := range j.Table {
                    if v == bb {
                        j.Table[i] = succ
                        AddRefPred(succ, pred)
                    }
                }
            }
            case *JEhFinallyRet: {
                for i, v := range j.Succs {
                    if v == bb {
                        j.Succs[i] = succ
                    }
                }
            }
            case *JCond: {
                if j.Taken == bb {
                    j.Taken = succ
                }
            }
            default: {
                if pred.JumpDest() == bb {
                    pred.SetJumpDest(succ)
                }
            }
        }
    }

    /* unlink and retire the block */
    self.Eh.UpdateForDeletedBlock(bb)
    self.Loops.UpdateBeforeRemoveBlock(bb)
    self.Unlink(bb)
    bb.Preds = nil
    bb.Flags |= BBF_REMOVED

    /* a conditional before it may now jump to its own fall-through */
    if prev != nil && prev.Kind() == KindCond && prev.JumpsToNext() {
        self.RemoveConditionalJump(prev)
    }
}

// RemoveConditionalJump turns a conditional jump whose both arms reach the
// next block into an unconditional one, keeping the side effects of the
// condition.
func (self *Graph) RemoveConditionalJump(bb *Block) {
    next := bb.next
    if bb.Kind() != KindCond || !bb.JumpsToNext() {
        panic("flowgraph: not a conditional jump to next " + bb.String())
    }

    /* one of the two references goes away */
    e := GetPredEdge(next, bb)
    if e == nil || e.Dup != 2 {
        panic("flowgraph: bad pred edge for conditional jump " + bb.String())
    }

    /* switch to an unconditional jump */
    e.Dup--
    bb.Jump = &JAlways{To: next}
    bb.Flags |= BBF_NONE_QUIRK
    self.dropTerminator(bb)
}

// dropTerminator removes the terminating statement, if any, keeping its side
// effects as separate statements.
func (self *Graph) dropTerminator(bb *Block) {
    if n := len(bb.Stmts); n != 0 && bb.Terminator() != nil {
        se := ir.ExtractSideEffects(bb.Stmts[n - 1])
        bb.Stmts = append(bb.Stmts[:n - 1:n - 1], se...)
    }
}

// Renumber assigns dense ids 1..N in layout order. Any change in the
// numbering starts a new epoch, which invalidates the flow analyses.
func (self *Graph) Renumber() bool {
    id := 0
    changed := false

    /* number the blocks */
    for bb := self.First; bb != nil; bb = bb.next {
        if id++; bb.Id != id {
            bb.Id = id
            changed = true
        }
    }

    /* retired blocks get ids past the live ones */
    n := id
    for _, bb := range self.blocks {
        if bb.Flags & BBF_REMOVED != 0 {
            n++
            bb.Id = n
        }
    }

    /* keep the pred lists sorted */
    for bb := self.First; bb != nil; bb = bb.next {
        sort.SliceStable(bb.Preds, func(i int, j int) bool {
            return bb.Preds[i].Source.Id < bb.Preds[j].Source.Id
        })
    }

    /* start a new epoch if anything moved */
    if changed || id != self.numbered || self.epoch == 0 {
        self.epoch++
        self.Cache.Invalidate()
    }

    /* the numbering itself is now valid */
    if self.Cache.Level() < LevelNumbering {
        self.Cache.validate(LevelNumbering, self.epoch)
    }

    /* new blocks are numbered after everything */
    self.maxId = n
    self.numbered = id
    return changed
}

// GrabTemp allocates a new local variable.
func (self *Graph) GrabTemp(name string) int {
    self.Locals = append(self.Locals, ir.Local{Name: name})
    return len(self.Locals) - 1
}

// IsScratch checks for the scratch entry block, which must stay in place.
func (self *Graph) IsScratch(bb *Block) bool {
    return self.Scratch != nil && self.Scratch == bb
}

// IsCold checks whether bb lies in the cold section.
func (self *Graph) IsCold(bb *Block) bool {
    for p := self.FirstCold; p != nil; p = p.next {
        if p == bb {
            return true
        }
    }
    return false
}

// InDifferentRegions checks whether a and b sit on different sides of the
// hot/cold split.
func (self *Graph) InDifferentRegions(a *Block, b *Block) bool {
    return self.FirstCold != nil && self.IsCold(a) != self.IsCold(b)
}

// IsLastHotBlock checks whether bb is the last block before the cold section.
func (self *Graph) IsLastHotBlock(bb *Block) bool {
    return self.FirstCold != nil && bb.next == self.FirstCold
}

// LastBlockOfMainFunction returns the last block before the funclets.
func (self *Graph) LastBlockOfMainFunction() *Block {
    if self.FirstFunclet != nil {
        return self.FirstFunclet.prev
    } else {
        return self.Last
    }
}

// IsForwardBranch checks whether the jump of bJump targets a block placed
// after src (bJump itself when src is nil).
func (self *Graph) IsForwardBranch(bJump *Block, src *Block) bool {
    dest := bJump.JumpDest()
    if src == nil {
        src = bJump
    }
    for p := src; p != nil; p = p.next {
        if p == dest {
            return true
        }
    }
    return false
}
