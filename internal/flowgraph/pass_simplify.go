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
    `tlog.app/go/errors`
)

// CanCompactBlocks checks whether bNext can be folded into block, which must
// be an unconditional jump to it.
func (self *Graph) CanCompactBlocks(block *Block, bNext *Block) bool {
    if block == nil || bNext == nil || block.next != bNext {
        return false
    }

    /* only unconditional jumps to the next block */
    if block.Kind() != KindAlways || !block.HasJumpTo(bNext) || block.Flags & BBF_KEEP_ALWAYS != 0 {
        return false
    }

    /* a call pair continuation stays with its call */
    if block.IsCallAlwaysPairTail() {
        return false
    }

    /* bNext has other predecessors, only an empty block may absorb it */
    if bNext.RefCount() != 1 && (!block.IsEmpty() || block.Flags & BBF_FUNCLET_BEG != 0 || self.Eh.IsHandlerBeg(block)) {
        return false
    }

    /* protected blocks stay */
    if bNext.Flags & BBF_DONT_REMOVE != 0 {
        return false
    }

    /* a pre-header must stay a single-successor block */
    if self.RequirePreheaders && block.Flags & BBF_LOOP_PREHEADER != 0 && bNext.RefCount() != 1 {
        return false
    }

    /* scratch and loop entry blocks keep their identity */
    if self.IsScratch(block) || self.Loops.IsEntry(block) {
        return false
    }

    /* never cross the hot/cold split or an EH region boundary */
    if self.InDifferentRegions(block, bNext) || !SameEHRegion(block, bNext) {
        return false
    }

    /* keep alignment of loop heads reached from elsewhere */
    if bNext.RefCount() > 1 && bNext.IsLoopAlign() {
        return false
    }

    /* never merge across loops */
    if InDifferentLoops(block, bNext) {
        return false
    }

    /* switch tables are not retargeted here */
    for _, e := range bNext.Preds {
        if e.Source.Kind() == KindSwitch {
            return false
        }
    }
    return true
}

// CompactBlocks folds bNext into block: statements are appended, the jump
// and the out edges are taken over, and bNext is unlinked.
func (self *Graph) CompactBlocks(block *Block, bNext *Block) {
    if !self.CanCompactBlocks(block, bNext) {
        panic("flowgraph: cannot compact " + block.String() + " with " + bNext.String())
    }

    /* drop the jump edge, other predecessors now jump to block */
    RemoveRefPred(bNext, block)
    if bNext.RefCount() > 0 {
        block.Flags &^= BBF_LOOP_PREHEADER
        for _, p := range bNext.PredBlocks() {
            self.ReplaceJumpTarget(p, block, bNext)
        }
    }

    /* move the statements */
    block.Stmts = append(block.Stmts, bNext.Stmts...)
    bNext.Stmts = nil
    self.mergeWeights(block, bNext)

    /* liveness, flags */
    block.LiveOut = bNext.LiveOut
    block.Flags |= bNext.Flags & BBF_COMPACT_UPD

    /* internal blocks absorbing real code become real */
    if block.Flags & BBF_INTERNAL != 0 && bNext.Flags & BBF_INTERNAL == 0 {
        block.Flags &^= BBF_INTERNAL
        block.Flags |= BBF_IMPORTED
    }

    /* unlink bNext */
    bNext.Flags |= BBF_REMOVED
    self.Eh.UpdateForDeletedBlock(bNext)
    self.Unlink(bNext)

    /* take over the jump flags */
    switch bNext.Kind() {
        case KindCallFinally : block.Flags |= bNext.Flags & (BBF_RETLESS_CALL | BBF_NONE_QUIRK)
        case KindAlways      : block.Flags |= bNext.Flags & BBF_NONE_QUIRK
    }

    /* take over the jump and the out edges */
    block.Jump = bNext.Jump
    for _, succ := range UniqueSuccs(block) {
        ReplacePred(succ, bNext, block)
    }

    /* keep the loop alignment */
    if bNext.KindIs(KindAlways, KindCond) && bNext.JumpDest().IsLoopAlign() {
        block.LoopNum = bNext.LoopNum
    }
    if bNext.IsLoopAlign() {
        block.Flags |= BBF_LOOP_ALIGN
    }

    /* a new block inherits the analysis results of the old one */
    if self.Cache.Level() >= LevelDoms && self.isNew(block) {
        self.inheritAnalysis(block, bNext)
    }

    /* fix the loop table */
    self.Loops.UpdateAfterCompacting(block, bNext)
    count(&CompactedCount)
}

func (self *Graph) mergeWeights(block *Block, bNext *Block) {
    if bNext.Kind() == KindThrow {
        block.SetRunRarely()
        return
    }

    /* keep the heavier of the two */
    prof := block.HasProfileWeight() || bNext.HasProfileWeight()
    nonzero := block.Weight > ZeroWeight || bNext.Weight > ZeroWeight

    /* update the weight */
    if !prof && !nonzero {
        block.SetRunRarely()
    } else if w := maxWeight(block.Weight, bNext.Weight); prof {
        block.SetProfileWeight(w)
    } else {
        block.Weight = w
        block.Flags &^= BBF_RUN_RARELY
    }
}

func (self *Graph) inheritAnalysis(block *Block, old *Block) {
    block.Id = old.Id
    block.Reach, old.Reach = old.Reach, nil
    block.Idom, old.Idom = old.Idom, nil
    block.PreOrder, block.PostOrder = old.PreOrder, old.PostOrder
    block.DomPre, block.DomPost = old.DomPre, old.DomPost
    block.DomChild, block.DomSibling = old.DomChild, old.DomSibling

    /* the ids changed, keep the pred lists ordered */
    for bb := self.First; bb != nil; bb = bb.next {
        sort.SliceStable(bb.Preds, func(i int, j int) bool {
            return bb.Preds[i].Source.Id < bb.Preds[j].Source.Id
        })
    }
}

func maxWeight(a Weight, b Weight) Weight {
    if a > b {
        return a
    } else {
        return b
    }
}

// threadTarget returns where a jump to the empty unconditional block bDest
// can be redirected, or nil. Chains of empty jumps closing a cycle are
// never threaded.
func threadTarget(bDest *Block) *Block {
    if !bDest.IsEmpty() || bDest.Kind() != KindAlways || bDest.HasJumpTo(bDest) {
        return nil
    }

    /* walk the chain of empty jumps */
    seen := map[*Block]bool { bDest: true }
    for p := bDest.JumpDest(); p.IsEmpty() && p.Kind() == KindAlways && !p.HasJumpTo(p); p = p.JumpDest() {
        if seen[p] {
            return nil
        }
        seen[p] = true
    }
    return bDest.JumpDest()
}

// OptimizeBranchToEmptyUnconditional redirects the jump of block to bDest,
// an empty unconditional block, straight to the target of bDest.
func (self *Graph) OptimizeBranchToEmptyUnconditional(block *Block, bDest *Block) bool {
    target := threadTarget(bDest)
    if target == nil {
        return false
    }

    /* check for the conditions */
    ok := true
    if bDest.HasTryIndex() && !SameTryRegion(block, bDest) {
        ok = false
    }
    if target.Flags & BBF_REMOVED != 0 || bDest.Flags & BBF_CLONED_FINALLY_BEGIN != 0 {
        ok = false
    }
    if bDest.Flags & BBF_REMOVED != 0 {
        ok = true
    }

    /* not this time */
    if !ok {
        return false
    }

    /* the flow no longer goes through bDest */
    if self.EdgeWeightsValid && bDest.HasProfileWeight() {
        e1 := GetPredEdge(bDest, block)
        w := e1.WeightMin

        /* unknown exact weight, bDest is no longer profiled */
        if e1.WeightMin != e1.WeightMax {
            w = e1.Avg()
            bDest.Flags &^= BBF_PROF_WEIGHT
        }

        /* lighten bDest */
        if bDest.Weight > w {
            bDest.Weight -= w
        } else {
            bDest.Weight = ZeroWeight
            bDest.Flags |= BBF_RUN_RARELY
        }

        /* and its out edge */
        if e2 := GetPredEdge(target, bDest); e2 != nil {
            e2.SetWeights(subWeight(e2.WeightMin, e1.WeightMin), subWeight(e2.WeightMax, e1.WeightMin))
        }
    }

    /* redirect the jump */
    block.SetJumpDest(target)
    AddRefPredWithWeights(target, block, RemoveRefPred(bDest, block))
    return true
}

func subWeight(a Weight, b Weight) Weight {
    if a > b {
        return a - b
    } else {
        return ZeroWeight
    }
}

// OptimizeEmptyBlock removes the empty block if every predecessor can be
// redirected to its target. It reports whether anything changed.
func (self *Graph) OptimizeEmptyBlock(block *Block) bool {
    bPrev := block.prev
    if !block.IsEmpty() {
        panic("flowgraph: block is not empty " + block.String())
    }

    /* conditionals and switches always have a terminator, others stay */
    if block.Kind() != KindAlways {
        return false
    }

    /* the fall-through into block must be preserved */
    if bPrev == nil {
        if !block.JumpsToNext() {
            return false
        }
    } else if bPrev.Kind() == KindCallFinally || (bPrev.FallsThrough() && !block.JumpsToNext()) {
        return false
    }

    /* self loops, the last hot block and the OSR entry stay */
    if block.HasJumpTo(block) || self.IsLastHotBlock(block) || block == self.OsrEntry {
        return false
    }

    /* catch returns must land in the right EH region */
    if succ := block.JumpDest(); succ != nil && !SameEHRegion(block, succ) {
        for _, e := range block.Preds {
            if e.Source.Kind() == KindEhCatchRet {
                block.Stmts = append(block.Stmts, ir.Nop())
                return true
            }
        }
    }

    /* regions must keep at least one block */
    if !self.Eh.CanDeleteEmptyBlock(block) {
        return false
    }

    /* loop pre-headers are needed later */
    if self.RequirePreheaders && block.Flags & BBF_LOOP_PREHEADER != 0 {
        return false
    }

    /* the last block needs a previous one */
    if block == self.Last && bPrev == nil {
        return false
    }

    /* keep a profiled block unless a real block precedes it */
    if self.HasProfile && block.HasProfileWeight() && block.Flags & BBF_INTERNAL == 0 {
        if n := block.next; n == nil || n.Flags & BBF_INTERNAL != 0 || !n.HasProfileWeight() {
            p := bPrev
            for p != nil && p.Flags & BBF_INTERNAL != 0 {
                p = p.prev
            }
            if p == nil {
                return false
            }
        }
    }

    /* remove the block */
    self.RemoveBlock(block, false)
    return true
}

// OptimizeSwitchBranches threads the switch cases through empty jumps, then
// turns degenerate switches into plain or conditional jumps.
func (self *Graph) OptimizeSwitchBranches(block *Block) bool {
    ret := false
    sw := block.Jump.(*JSwitch)

    /* redirect the cases */
    for i := 0; i < len(sw.Table); {
        bDest := sw.Table[i]
        bNew := threadTarget(bDest)

        /* different try regions can't be threaded */
        if bNew != nil && bDest.HasTryIndex() && !SameTryRegion(block, bDest) {
            bNew = nil
        }

        /* nothing to do */
        if bNew == nil {
            i++
            continue
        }

        /* the flow no longer goes through bDest */
        if self.HasProfile && bDest.HasProfileWeight() && self.EdgeWeightsValid {
            if w := GetPredEdge(bDest, block).WeightMin; bDest.Weight > w {
                bDest.Weight -= w
            } else {
                bDest.Weight = ZeroWeight
                bDest.Flags |= BBF_RUN_RARELY
            }
        }

        /* retarget the case, try it again */
        sw.Table[i] = bNew
        AddRefPredWithWeights(bNew, block, RemoveRefPred(bDest, block))
        ret = true
    }

    /* a single target, this is an unconditional jump */
    if NumSucc(block) == 1 {
        self.dropTerminator(block)
        block.Jump = &JAlways{To: sw.Table[0]}
        for _, v := range sw.Table[1:] {
            RemoveRefPred(v, block)
        }
        return true
    }

    /* one case besides the default which falls through */
    if len(sw.Table) == 2 && sw.Table[1] == block.next {
        if n := len(block.Stmts); n != 0 && block.Stmts[n - 1].Op == ir.OP_switch {
            block.Stmts[n - 1] = ir.JTrue(ir.Binary(ir.OP_eq, block.Stmts[n - 1].X, ir.Cns(0)))
        }
        block.Jump = &JCond{Taken: sw.Table[0]}
        return true
    }
    return ret
}

// OptimizeBranchToNext removes a conditional jump whose target is the next
// block anyway.
func (self *Graph) OptimizeBranchToNext(block *Block, bNext *Block) bool {
    if block.Kind() != KindCond || !block.HasJumpTo(bNext) || block.next != bNext {
        return false
    }
    self.RemoveConditionalJump(block)
    return true
}

// reverseAroundEmptyJump handles a conditional block that falls into an
// empty unconditional jump: reversing the condition lets block jump to the
// target of the empty block directly, which is then removed.
func (self *Graph) reverseAroundEmptyJump(block *Block, bDest *Block) bool {
    bNext := block.next
    if block.Kind() != KindCond || bNext == nil || bNext.RefCount() != 1 {
        return false
    }

    /* bNext must be an empty jump elsewhere */
    if bNext.Kind() != KindAlways || bNext.JumpsToNext() || !bNext.IsEmpty() || bNext.HasJumpTo(bNext) {
        return false
    }

    /* never cross into the cold section */
    if bDest == self.FirstCold || self.InDifferentRegions(block, bDest) {
        return false
    }

    /* jumping around the empty block, or to a join free block */
    target := bNext.JumpDest()
    around := bNext.next == bDest
    joinFree := !around &&
        bDest.RefCount() == 1 &&
        target.RefCount() > 1 &&
        bDest.Id > block.Id &&
        block.IsRunRarely() == bDest.IsRunRarely()

    /* check for the regions */
    ok := around || joinFree
    if bDest.HasTryIndex() && !SameTryRegion(block, bDest) {
        ok = false
    }
    if bNext.HasTryIndex() && !SameTryRegion(block, bNext) {
        ok = false
    }

    /* profile weights need the edge weights first */
    if self.HasProfile && !self.EdgeWeightsComputed {
        ok = false
    }

    /* not this time */
    if !ok {
        return false
    }

    /* the join free block must move right after bNext */
    if joinFree {
        if !self.Eh.AllowsMoveBlock(bNext, bDest) || bDest.IsCallAlwaysPair() {
            return false
        }
        self.moveJoinFreeBlock(bNext, bDest)
    }

    /* reverse the condition, jump to the target of bNext */
    if p := block.Terminator(); p != nil {
        ir.ReverseCond(p)
    }

    /* update the edges */
    block.SetJumpDest(target)
    AddRefPredWithWeights(target, block, RemoveRefPred(target, bNext))
    RemoveRefPred(bNext, block)

    /* unlink bNext */
    if bNext == self.FirstCold {
        self.FirstCold = bNext.next
    }

    /* remove the block */
    self.Eh.UpdateForDeletedBlock(bNext)
    self.Unlink(bNext)
    self.Loops.UpdateAfterCompacting(block, bNext)
    bNext.Flags |= BBF_REMOVED
    bNext.Flags &^= BBF_LOOP_ALIGN
    return true
}

func (self *Graph) moveJoinFreeBlock(bNext *Block, bDest *Block) {
    bDestNext := bDest.next
    if self.Eh.IsBlockEHLast(bDest) {
        self.Eh.UpdateLastBlocks(bDest, bDest.prev)
    }

    /* move bDest */
    self.MoveBlocksAfter(bDest, bDest, bNext)
    if self.Eh.IsBlockEHLast(bNext) {
        self.Eh.UpdateLastBlocks(bNext, bDest)
    }

    /* the fall-through of bDest needs a jump now */
    if bDest.Kind() == KindCond {
        fix := self.NewBlockAfter(&JAlways{To: bDestNext}, bDest, true)
        fix.InheritWeight(bDestNext)
        RemoveRefPred(bDestNext, bDest)
        AddRefPred(fix, bDest)
        AddRefPred(bDestNext, fix)
    }
}

// optimizeBlock applies the local rewrites to block until none applies. It
// returns the block to continue with, and whether block was removed.
func (self *Graph) optimizeBlock(block *Block, doTailDup bool) (*Block, bool, bool) {
    change := false
    for {
        var bDest *Block
        bNext := block.next

        /* tail duplication */
        if doTailDup && block.Kind() == KindAlways {
            if self.OptimizeUncondBranchToSimpleCond(block, block.JumpDest()) {
                change = true
                bNext = block.next
            }
        }

        /* remove jumps to the following block */
        switch block.Kind() {
            case KindAlways: {
                if bDest = block.JumpDest(); bDest == bNext {
                    block.Flags |= BBF_NONE_QUIRK
                    bDest = nil
                }
            }
            case KindCond: {
                if bDest = block.JumpDest(); bDest == bNext && self.OptimizeBranchToNext(block, bNext) {
                    change = true
                    bDest = nil
                }
            }
        }

        /* jumps to jumps */
        if bDest != nil {
            if bDest.IsEmpty() && bDest.Kind() == KindAlways && !bDest.HasJumpTo(bDest) {
                if !bDest.JumpsToNext() || bDest.Flags & BBF_NONE_QUIRK == 0 {
                    if self.OptimizeBranchToEmptyUnconditional(block, bDest) {
                        change = true
                        continue
                    }
                }
            }

            /* reversing the condition may enable more */
            if self.reverseAroundEmptyJump(block, bDest) {
                change = true
                continue
            }
        }

        /* switch tables follow jumps to jumps */
        if block.Kind() == KindSwitch && self.OptimizeSwitchBranches(block) {
            change = true
            continue
        }

        /* compact blocks */
        if self.CanCompactBlocks(block, bNext) {
            self.CompactBlocks(block, bNext)
            change = true
            continue
        }

        /* protected blocks are never removed */
        if block.Flags & BBF_DONT_REMOVE != 0 || block == self.GenReturn {
            return block.next, false, change
        }

        /* unreachable blocks, and self loops nothing else enters */
        if n := block.RefCount(); n == 0 || (n == 1 && block.KindIs(KindAlways, KindCond) && block.HasJumpTo(block)) {
            next := block.next
            self.RemoveBlock(block, true)
            return next, true, true
        }

        /* empty blocks */
        if block.IsEmpty() {
            next := block.next
            if self.OptimizeEmptyBlock(block) {
                change = true
            }
            if block.Flags & BBF_REMOVED != 0 {
                return next, true, change
            }
        }

        /* done with this block */
        return block.next, false, change
    }
}

// UpdateFlowGraph simplifies the flow graph until nothing changes: jumps
// to jumps are threaded, blocks are compacted, and unreachable or empty
// blocks are removed. With doTailDup, small conditional blocks are also
// duplicated into their unconditional predecessors.
func (self *Graph) UpdateFlowGraph(doTailDup bool) (bool, error) {
    modified := false
    if self.OptimizationDisabled {
        return false, nil
    }

    /* repeat until stable */
    for pass := 1; ; pass++ {
        change := false
        if pass > self.Opts.MaxUpdatePasses {
            return modified, errors.Wrap(ErrIterationLimit, "flow graph update after %d passes", pass - 1)
        }

        /* visit every block */
        for block := self.First; block != nil; {
            if block.Flags & BBF_REMOVED != 0 {
                block = block.next
                continue
            }

            /* optimize the block */
            next, _, ch := self.optimizeBlock(block, doTailDup)
            change = change || ch
            block = next
        }

        /* stop when nothing changed */
        if modified = modified || change; !change {
            break
        }
    }

    /* the numbering no longer matches */
    if modified {
        self.Cache.Downgrade(LevelNone)
        self.Span.Printw("flow graph updated", "blocks", self.Count, "taildup", doTailDup)
    }
    return modified, nil
}

// CodeEstimate estimates the code size of the block, its jump included.
func CodeEstimate(block *Block) int {
    var ret int
    switch block.Kind() {
        case KindAlways, KindEhCatchRet, KindCond              : ret = 2
        case KindCallFinally                                   : ret = 5
        case KindSwitch                                        : ret = 10
        case KindThrow                                         : ret = 1
        case KindEhFinallyRet, KindEhFaultRet, KindEhFilterRet : ret = 1
        case KindReturn                                        : ret = 3
    }

    /* add up the statements */
    for _, p := range block.Stmts {
        ret += ir.CostSz(p)
    }
    return ret
}
