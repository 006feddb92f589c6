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
    `github.com/cloudwego/flowopt/internal/ir`
)

const (
    _RarityScale  = 100
    _HotThreshold = 0.51
)

// ExpandRarelyRunBlocks propagates the rarely-run property. A block whose
// every way out is rare becomes rare, then a block only rare blocks enter
// becomes rare too. Blocks that can be compacted on the way are.
func (self *Graph) ExpandRarelyRunBlocks() bool {
    if self.First == nil {
        return false
    }

    /* backwards, rare successors make a rare block */
    result := false
    for bPrev, block := self.First, self.First.next; block != nil; bPrev, block = block, block.next {
        if bPrev.IsRunRarely() || bPrev.HasProfileWeight() {
            continue
        }

        /* check the ways out of bPrev */
        rare := false
        switch bPrev.Kind() {
            case KindAlways      : rare = bPrev.JumpDest().IsRunRarely()
            case KindCallFinally : rare = bPrev.IsCallAlwaysPair() && block.IsRunRarely()
            case KindCond        : rare = block.IsRunRarely() && bPrev.JumpDest().IsRunRarely()
        }

        /* nothing to do */
        if !rare {
            continue
        }

        /* mark it, and revisit its earliest predecessor */
        result = true
        bPrev.SetRunRarely()
        self.Span.Printw("block is rarely run", "block", bPrev.Id)

        /* backtrack to the earliest block that may change */
        if bContinue := self.earliestPredBefore(bPrev); bContinue != nil {
            block = bContinue
        }
    }

    /* forwards, rare predecessors make a rare block */
    for bPrev, block := self.First, self.First.next; block != nil; bPrev, block = block, block.next {
        if !block.IsRunRarely() && !self.Eh.IsHandlerBeg(block) {
            rare := true
            for _, e := range block.Preds {
                if !e.Source.IsRunRarely() {
                    rare = false
                    break
                }
            }

            /* the pair tail goes along with the call */
            if rare {
                if block.IsCallAlwaysPair() {
                    block.next.SetRunRarely()
                }
                result = true
                block.SetRunRarely()
            }
        }

        /* compact the blocks if possible */
        if self.CanCompactBlocks(bPrev, block) {
            self.CompactBlocks(bPrev, block)
            result = true
            block = bPrev
            continue
        }

        /* a call pair keeps a single weight */
        if bPrev.IsCallAlwaysPair() && bPrev.Weight != block.Weight && !bPrev.HasProfileWeight() {
            switch {
                case block.IsRunRarely() : bPrev.SetRunRarely()
                case bPrev.IsRunRarely() : block.SetRunRarely()
                default                  : bPrev.Weight = block.Weight
            }
        }
    }
    return result
}

// earliestPredBefore finds the first block in layout order that reaches bb
// and sits before it. The call of a call pair counts as a predecessor of
// its tail.
func (self *Graph) earliestPredBefore(bb *Block) *Block {
    for p := self.First; p != nil && p != bb; p = p.next {
        if GetPredEdge(bb, p) != nil {
            return p
        }
        if bb.Flags & BBF_KEEP_ALWAYS != 0 && p == bb.prev {
            return p
        }
    }
    return nil
}

// OptimizeBranch duplicates the conditional block bDest into bJump, which
// jumps over it to bDest. With the condition reversed, bJump branches to
// the fall-through of bDest and falls into its own next block.
//
//     bJump : jmp bDest         bJump : cond; jcc !cond, bDest.next
//     ...                  =>   ...
//     bDest : cond; jcc next    bDest : cond; jcc next
//
func (self *Graph) OptimizeBranch(bJump *Block) bool {
    if bJump.Kind() != KindAlways || bJump.JumpsToNext() || bJump.Flags & BBF_KEEP_ALWAYS != 0 {
        return false
    }

    /* the scratch entry stays as it is */
    if self.IsScratch(bJump) {
        return false
    }

    /* bDest must jump to the block after bJump */
    bDest := bJump.JumpDest()
    if bDest.Kind() != KindCond || bJump.next != bDest.JumpDest() {
        return false
    }

    /* all three blocks stay in the same try region */
    if !SameTryRegion(bJump, bDest) || bDest.next == nil || !SameTryRegion(bJump, bDest.next) {
        return false
    }

    /* the condition must be a compare */
    last := bDest.LastStmt()
    if last == nil || last.Op != ir.OP_jtrue || !last.X.Op.IsCompare() {
        return false
    }

    /* estimate the cost of the duplicate */
    cost := 0
    for _, p := range bDest.Stmts {
        cost += ir.CostSz(p)
    }

    /* rarity of the blocks involved */
    rareJump := bJump.IsRunRarely()
    rareDest := bDest.IsRunRarely()
    rareNext := bJump.next.IsRunRarely()

    /* with profile data, compare the weights instead */
    if self.HasProfile {
        allProfileWeighted := true
        for _, bb := range []*Block { bJump, bDest, bJump.next } {
            if !bb.HasProfileWeight() && !bb.IsRunRarely() {
                allProfileWeighted = false
            }
        }

        /* a block a hundred times colder is rare */
        if allProfileWeighted {
            rareJump = rareJump || bJump.Weight * _RarityScale < bDest.Weight
            rareJump = rareJump || bJump.Weight * _RarityScale < bJump.next.Weight
            rareDest = rareDest || bDest.Weight * _RarityScale < bJump.Weight
            rareDest = rareDest || bDest.Weight * _RarityScale < bJump.next.Weight
            rareNext = rareNext || bJump.next.Weight * _RarityScale < bJump.Weight
            rareNext = rareNext || bJump.next.Weight * _RarityScale < bDest.Weight
        }
    }

    /* rarity differences allow more code */
    maxDup := self.Opts.MaxDupCost
    if rareDest != rareJump {
        maxDup += self.Opts.MaxDupCost
    }
    if rareDest != rareNext {
        maxDup += self.Opts.MaxDupCost
    }

    /* too expensive */
    if cost > maxDup {
        return false
    }

    /* copy the statements, with the condition reversed */
    for _, p := range bDest.Stmts {
        bJump.Stmts = append(bJump.Stmts, ir.Clone(p))
    }

    /* reverse the copied condition */
    ir.ReverseCond(bJump.LastStmt())
    bJump.Flags |= bDest.Flags & BBF_COPY_PROPAGATE

    /* bJump is now conditional */
    bJump.Jump = &JCond{Taken: bDest.next}
    bJump.Flags &^= BBF_NONE_QUIRK
    AddRefPred(bJump.next, bJump)
    RemoveRefPred(bDest, bJump)
    AddRefPred(bDest.next, bJump)

    /* bDest is entered less often */
    if weightJump := bJump.Weight; weightJump > 0 {
        if self.EdgeWeightsValid && bDest.HasProfileWeight() {
            if bDest.IsRunRarely() {
                bDest.Weight = subWeight(bDest.Weight, weightJump)
            } else {
                bDest.Weight = maxWeight(Unity, subWeight(bDest.Weight, weightJump))
            }
        } else {
            w := bDest.Weight - weightJump
            if w <= 0 && bDest.Weight >= LoopScale * Unity / 2 {
                w = bDest.Weight * 2 / (LoopScale * Unity)
            }
            if w > 0 {
                bDest.Weight = w
            }
        }
    }

    /* done */
    self.Span.Printw("duplicated conditional into jump", "jump", bJump.Id, "dest", bDest.Id, "cost", cost)
    return true
}

// OptimizeSwitchJumps peels the dominant case out of profiled switches: the
// switch block tests for the dominant value first, and the switch itself
// moves into a new block taking the remaining cases.
func (self *Graph) OptimizeSwitchJumps() bool {
    modified := false
    if !self.HasProfile {
        return false
    }

    /* find switches with a dominant case */
    for block := self.First; block != nil; block = block.next {
        sw, ok := block.Jump.(*JSwitch)
        if !ok || block.IsRunRarely() || !sw.HasDominant {
            continue
        }

        /* the switch statement must be the terminator */
        stmt := block.Terminator()
        if stmt == nil || stmt.Op != ir.OP_switch {
            continue
        }

        /* move the switch into a new block */
        n := len(block.Stmts) - 1
        target := sw.Table[sw.Dominant]
        newBlock := self.SplitAfterStmt(block, n)

        /* the switch value is used twice */
        val := stmt.X
        if !val.IsLocalOrConst() {
            tmp := self.GrabTemp("switch value")
            block.Stmts = append(block.Stmts, ir.Store(tmp, val))
            val = ir.Lcl(tmp)
        }

        /* test for the dominant case first */
        stmt.X = ir.Clone(val)
        stmt.UpdateFlags()
        block.Stmts = append(block.Stmts, ir.JTrue(ir.Binary(ir.OP_eq, val, ir.Cns(int64(sw.Dominant)))))
        block.Jump = &JCond{Taken: target}
        block.Flags &^= BBF_NONE_QUIRK

        /* route the weights */
        toTarget := block.Weight * sw.DominantFraction
        toNew := block.Weight - toTarget
        newBlock.SetProfileWeight(toNew)
        AddRefPred(target, block).SetWeights(toTarget, toTarget)
        GetPredEdge(newBlock, block).SetWeights(toNew, toNew)

        /* the switch rarely takes the dominant case now */
        if e := GetPredEdge(target, newBlock); e.Dup == 1 {
            e.SetWeights(ZeroWeight, ZeroWeight)
        } else {
            e.SetWeights(subWeight(e.WeightMin, toTarget), subWeight(e.WeightMax, toTarget))
        }

        /* the new switch has no dominant case */
        modified = true
        sw.HasDominant = false
        self.Span.Printw("peeled dominant switch case", "block", block.Id, "switch", newBlock.Id, "case", sw.Dominant)
        block = newBlock
    }
    return modified
}

// ConnectFallThrough makes sure the flow from bSrc to bDst that used to be
// implicit still happens after the layout changed. A new jump block is
// inserted after bSrc when needed, and returned.
func (self *Graph) ConnectFallThrough(bSrc *Block, bDst *Block) *Block {
    if bSrc == nil || bDst == nil {
        return nil
    }

    /* an unconditional jump to the next block is no longer a quirk */
    if bSrc.Kind() == KindAlways {
        if bSrc.Flags & BBF_NONE_QUIRK != 0 && !bSrc.JumpsToNext() {
            bSrc.Flags &^= BBF_NONE_QUIRK
        }
        return nil
    }

    /* only conditional fall-throughs can be fixed */
    if bSrc.Kind() != KindCond || bSrc.next == bDst {
        return nil
    }

    /* the implicit edge moves to a new jump block */
    jmp := self.NewBlockAfter(&JAlways{To: bDst}, bSrc, true)
    old := RemoveRefPred(bDst, bSrc)
    AddRefPredWithWeights(jmp, bSrc, old)
    AddRefPredWithWeights(bDst, jmp, old)

    /* weight the new block */
    if self.EdgeWeightsValid && self.HasProfile {
        jmp.SetProfileWeight(old.Avg())
    } else if bSrc.Weight < bDst.Weight {
        jmp.InheritWeight(bSrc)
    } else {
        jmp.InheritWeight(bDst)
    }

    /* done */
    self.Span.Printw("connected fall-through", "src", bSrc.Id, "dst", bDst.Id, "jump", jmp.Id)
    return jmp
}

// FindInsertPoint picks the block after which to place code that belongs to
// try region tryIndex, looking at [startBlk, endBlk). Blocks without a
// fall-through are preferred, the search favours nearBlk if given, then the
// end of the range. runRarely prefers rarely-run neighbours.
func (self *Graph) FindInsertPoint(tryIndex int, startBlk *Block, endBlk *Block, nearBlk *Block, jumpBlk *Block, runRarely bool) *Block {
    var bestBlk *Block
    var goodBlk *Block

    /* nearBlk must be in the range */
    if nearBlk != nil {
        found := false
        for p := startBlk; p != nil && p != endBlk; p = p.next {
            if p == nearBlk {
                found = true
                break
            }
        }
        if !found {
            nearBlk = nil
        }
    }

    /* scan the range */
    reachedNear := false
    for blk := startBlk; blk != nil && blk != endBlk; blk = blk.next {
        if blk == nearBlk {
            reachedNear = true
        }

        /* never split a call pair */
        if blk.IsCallAlwaysPair() {
            continue
        }

        /* the candidate must be in the region */
        if blk.TryIndex != tryIndex || blk.HasHndIndex() {
            continue
        }

        /* blocks without fall-through, or the hint */
        if !blk.FallsThrough() || blk == nearBlk {
            update := true
            if blk.FallsThrough() {
                update = jumpBlk != nil && self.isBetterFallThrough(blk, jumpBlk)
            }

            /* keep rare code next to rare code, and hot code next to hot code */
            if bestBlk != nil && update && bestBlk.IsRunRarely() != blk.IsRunRarely() && bestBlk.IsRunRarely() == runRarely {
                update = false
            }

            /* having passed the hint, this is the best we can get */
            if update {
                bestBlk = blk
                if reachedNear {
                    break
                }
            }
        }

        /* the last acceptable block */
        goodBlk = blk
    }

    /* fall back to the last acceptable block */
    if bestBlk == nil {
        bestBlk = goodBlk
    }
    return bestBlk
}

// isBetterFallThrough checks whether bAlt jumping to its target is a hotter
// flow than bCur falling through into its next block.
func (self *Graph) isBetterFallThrough(bCur *Block, bAlt *Block) bool {
    if bCur.Kind() != KindCond || bAlt.Kind() != KindAlways {
        return false
    }

    /* compare the edges if possible */
    if self.EdgeWeightsValid {
        eCur := GetPredEdge(bCur.next, bCur)
        eAlt := GetPredEdge(bAlt.JumpDest(), bAlt)
        if eCur != nil && eAlt != nil {
            return eAlt.Avg() > eCur.Avg()
        }
    }

    /* otherwise the block weights */
    return bAlt.Weight > bCur.Weight
}

// _Reorder is the plan for one relocation: either [block, bEnd] moves down
// out of the way (bDest becomes the fall-through of bPrev), or bDest moves
// up right after bPrev.
type _Reorder struct {
    bPrev    *Block
    block    *Block
    bDest    *Block
    hot      Weight
    isRare   bool
    backward bool
}

// planReorder decides whether the layout around bPrev and block should
// change, and computes the hot weight threshold for the blocks to move.
func (self *Graph) planReorder(bPrev *Block, block *Block, useProfile bool) (*_Reorder, bool) {
    forward := false
    reorder := useProfile
    plan := &_Reorder {
        bPrev  : bPrev,
        block  : block,
        hot    : -1,
        isRare : block.IsRunRarely(),
    }

    /* the jump target of bPrev */
    if bPrev.KindIs(KindCond, KindAlways) {
        plan.bDest = bPrev.JumpDest()
        forward = self.IsForwardBranch(bPrev, nil)
        plan.backward = !forward
    }

    /* a rarely run bPrev is not worth the trouble */
    if bPrev.IsRunRarely() {
        reorder = false
    }

    /* with profile weights everywhere, use them */
    checkRare := true
    if useProfile && bPrev.HasProfileWeight() && block.HasProfileWeight() && (plan.bDest == nil || plan.bDest.HasProfileWeight()) {
        checkRare = false
        switch {
            case forward && bPrev.Kind() == KindAlways : checkRare = self.planForwardJump(plan, &reorder)
            case forward                               : self.planForwardCond(plan, &reorder)
            case bPrev.FallsThrough()                  : checkRare = true
            default                                    : self.planBackwardJump(plan, &reorder)
        }
    }

    /* without profile data, only rarity counts */
    if checkRare {
        if !plan.isRare {
            if block.next != plan.bDest || block.Kind() != KindReturn || bPrev.Kind() != KindAlways {
                reorder = false
            }
        } else if plan.bDest != nil && plan.bDest.IsRunRarely() {
            reorder = false
        } else {
            plan.hot = ZeroWeight
        }
    }
    return plan, reorder
}

func (self *Graph) planForwardJump(plan *_Reorder, reorder *bool) bool {
    bPrev := plan.bPrev
    bDest := plan.bDest

    /* nothing to gain */
    if bPrev.JumpsToNext() {
        plan.bDest = nil
        return true
    }

    /* the target is colder than the fall-through */
    if bDest.Weight < plan.block.Weight || bDest.Weight == ZeroWeight {
        *reorder = false
        return false
    }

    /* bDest moves up if bPrev is its hottest predecessor */
    moveUp := true
    if self.EdgeWeightsValid {
        ef := GetPredEdge(bDest, bPrev)
        for _, e := range bDest.Preds {
            if e != ef && e.WeightMax >= ef.WeightMin {
                moveUp = false
                break
            }
        }
    } else {
        for _, e := range bDest.Preds {
            if e.Source != bPrev && e.Source.Weight >= bPrev.Weight {
                moveUp = false
                break
            }
        }
    }

    /* compute the threshold */
    if moveUp {
        plan.hot = bDest.Weight - 1
    } else {
        if plan.block.IsRunRarely() {
            plan.hot = ZeroWeight
        } else {
            plan.hot = plan.block.Weight + 1
        }
        plan.bDest = nil
    }
    return false
}

func (self *Graph) planForwardCond(plan *_Reorder, reorder *bool) {
    bPrev := plan.bPrev
    bDest := plan.bDest

    /* edge weights tell the taken ratio */
    if self.EdgeWeightsValid {
        eDest := GetPredEdge(bDest, bPrev)
        eBlock := GetPredEdge(plan.block, bPrev)
        taken := eDest.Avg()
        notTaken := eBlock.Avg()

        /* the branch must be taken more than half of the time */
        if taken < _HotThreshold * (taken + notTaken) {
            *reorder = false
        } else {
            plan.hot = notTaken - 1
        }
        return
    }

    /* otherwise guess from the block weights */
    weightDest := bDest.Weight
    if !bDest.IsMaxWeight() {
        weightDest = (weightDest + 1) / 2
    }

    /* two thirds of bPrev */
    weightPrev := bPrev.Weight
    if !bPrev.IsMaxWeight() {
        weightPrev = (weightPrev + 2) / 3
    }

    /* the fall-through must be colder */
    if weightDest < weightPrev {
        plan.hot = weightDest
    } else {
        plan.hot = weightPrev
    }
    if plan.block.Weight >= plan.hot {
        *reorder = false
    }
}

func (self *Graph) planBackwardJump(plan *_Reorder, reorder *bool) {
    var cand *Block
    var highest Weight

    /* find the hottest block that may follow bPrev */
    lastNonFall := plan.bPrev
    for p := plan.bPrev.next; p != nil; p = p.next {
        if p.IsCallAlwaysPair() {
            p = p.next
        }

        /* a hotter candidate */
        if p.Weight > highest && self.Eh.AllowsMoveBlock(plan.bPrev, p) {
            if cand == nil || !cand.KindIs(KindCond, KindAlways) || !cand.HasJumpTo(p) || (cand.Kind() == KindAlways && cand.JumpsToNext()) {
                highest = p.Weight
                cand = lastNonFall.next
            }
        }

        /* the run starts after the last block without fall-through */
        if (!p.FallsThrough() && !(p.Kind() == KindAlways && p.JumpsToNext())) || p.Weight == ZeroWeight {
            lastNonFall = p
        }
    }

    /* nothing better than the current layout */
    if highest == ZeroWeight || cand == plan.block {
        *reorder = false
    } else {
        plan.bDest = cand
        plan.hot = highest - 1
    }
}

// coldRun extends [bStart, bEnd] with the following blocks colder than the
// plan threshold (rare ones for a rare plan). It returns the end of the run
// and whether the run is followed by bDest.
func (self *Graph) coldRun(plan *_Reorder, bStart *Block) (*Block, *Block, bool) {
    bEnd := bStart
    bNext := bEnd.next

    /* extend the run */
    for {
        if bEnd.IsCallAlwaysPair() {
            bEnd = bNext
            bNext = bNext.next
        }

        /* stop at the end of the main function */
        if bNext == nil || (self.FirstFunclet != nil && bEnd.next == self.FirstFunclet) {
            break
        }

        /* reached the jump target */
        if bNext == plan.bDest {
            return bEnd, bNext, true
        }

        /* stay in the region */
        if !SameTryRegion(bStart, bNext) || bNext.Flags & BBF_DONT_REMOVE != 0 {
            break
        }

        /* only cold blocks go along */
        if plan.isRare {
            if !bNext.IsRunRarely() {
                break
            }
        } else if bNext.Weight >= plan.hot {
            break
        }

        /* next one */
        bEnd = bNext
        bNext = bNext.next
    }
    return bEnd, bNext, bNext == plan.bDest
}

// hotRun extends [bDest, bEnd] with the hot blocks bDest falls into.
func (self *Graph) hotRun(plan *_Reorder, bStart *Block) (*Block, *Block) {
    bEnd := bStart
    bNext := bEnd.next

    /* extend the run */
    for {
        if bEnd.IsCallAlwaysPair() {
            bEnd = bNext
            bNext = bNext.next
        }

        /* must fall into the next block */
        if bNext == nil || (!(bEnd.Kind() == KindAlways && bEnd.JumpsToNext()) && !bEnd.FallsThrough()) {
            break
        }

        /* stay in the region */
        if !SameTryRegion(bStart, bNext) || bNext.Flags & BBF_DONT_REMOVE != 0 {
            break
        }

        /* only hot blocks go along */
        if plan.isRare {
            if bNext.IsRunRarely() {
                break
            }
        } else if bNext.Weight <= plan.hot {
            break
        }

        /* next one */
        bEnd = bNext
        bNext = bNext.next
    }
    return bEnd, bNext
}

// relocationPoint picks where the detached run [bStart, bEnd] goes. The
// run used to fall into bNext. A nil result means it cannot move.
func (self *Graph) relocationPoint(plan *_Reorder, bStart *Block, bEnd *Block, bNext *Block) *Block {
    if !bStart.HasTryIndex() && plan.isRare {
        return self.LastBlockOfMainFunction()
    }

    /* the range to search */
    var startBlk *Block
    var endBlk *Block

    /* inside a try, stay within it */
    if e := self.Eh.Get(bStart.TryIndex); e != nil {
        startBlk = e.TryBeg
        endBlk = e.TryLast.next

        /* skip the nested regions */
        for startBlk != endBlk && !SameTryRegion(startBlk, bStart) {
            startBlk = startBlk.next
        }
        if startBlk == endBlk {
            return nil
        }
    } else {
        startBlk = self.First
        endBlk = self.FirstFunclet
    }

    /* try to land right before the jump target of bEnd */
    var nearBlk *Block
    var jumpBlk *Block
    if bEnd.Kind() == KindAlways && bEnd.JumpDest() != bNext && (!plan.isRare || bEnd.JumpDest().IsRunRarely()) && self.IsForwardBranch(bEnd, plan.bPrev) {
        jumpBlk = bEnd
        for nearBlk = startBlk; nearBlk != nil; nearBlk = nearBlk.next {
            if nearBlk != plan.bPrev && nearBlk.next == bEnd.JumpDest() {
                break
            }
            if nearBlk == endBlk {
                nearBlk = nil
                break
            }
        }
    }

    /* otherwise near the target of bPrev */
    if nearBlk == nil {
        if plan.bDest != nil {
            nearBlk = plan.bDest
        } else {
            nearBlk = plan.bPrev
        }
    }

    /* search */
    return self.FindInsertPoint(bStart.TryIndex, startBlk, endBlk, nearBlk, jumpBlk, bStart.Weight == ZeroWeight)
}

// ReorderBlocks improves the code layout. Rarely run blocks move out of
// the way of the hot code, and with profile data the hot successors are
// placed right after their predecessors.
func (self *Graph) ReorderBlocks(useProfile bool) (bool, error) {
    if self.First == nil || self.First.next == nil {
        return false, nil
    }

    /* propagate the rarity first */
    newRarelyRun := self.ExpandRarelyRunBlocks()
    optimizedSwitches := false
    optimizedBranches := false
    movedBlocks := false

    /* peel the dominant switch cases */
    if useProfile && self.HasProfile {
        if optimizedSwitches = self.OptimizeSwitchJumps(); optimizedSwitches {
            if _, err := self.UpdateFlowGraph(false); err != nil {
                return true, err
            }
        }
    }

    /* walk the block pairs */
    for bPrev, block := self.First, self.First.next; block != nil; bPrev, block = block, block.next {
        if block.Flags & BBF_KEEP_ALWAYS != 0 || block.HasHndIndex() {
            continue
        }

        /* decide whether to move anything */
        plan, reorder := self.planReorder(bPrev, block, useProfile)
        if !reorder {
            if self.OptimizeBranch(bPrev) {
                optimizedBranches = true
            }
            continue
        }

        /* move the blocks */
        if self.relocate(plan) {
            movedBlocks = true
            block = bPrev.next
            if block == nil {
                break
            }
        }
    }

    /* the numbering no longer matches */
    changed := newRarelyRun || movedBlocks || optimizedSwitches || optimizedBranches
    if changed {
        self.Cache.Downgrade(LevelNone)
        self.Span.Printw("blocks reordered", "moved", movedBlocks, "rare", newRarelyRun, "switches", optimizedSwitches, "branches", optimizedBranches)
    }
    return changed, nil
}

// relocate carries out a reorder plan, and reports whether anything moved.
func (self *Graph) relocate(plan *_Reorder) bool {
    var bEnd *Block
    var bNext *Block
    var bStart *Block
    var bStart2 *Block
    var bEnd2 *Block
    var bPrev2 *Block

    /* option 1: move [block, bEnd] out of the way */
    connected := false
    block, bPrev, bDest := plan.block, plan.bPrev, plan.bDest
    if !(plan.backward && !plan.isRare) && block.Flags & BBF_DONT_REMOVE == 0 {
        bStart = block
        bEnd, bNext, connected = self.coldRun(plan, bStart)
    }

    /* option 2: move [bDest, bEnd2] up after bPrev */
    if !connected && bDest != nil && bDest.Flags & BBF_DONT_REMOVE == 0 {
        for bPrev2 = block; bPrev2 != nil && bPrev2.next != bDest; bPrev2 = bPrev2.next {}
        if bPrev2 != nil && self.Eh.AllowsMoveBlock(bPrev, bDest) {
            bStart2 = bDest
            bEnd2, bNext = self.hotRun(plan, bStart2)
        }
    }

    /* pick an option */
    bStartPrev := bPrev
    if bStart2 != nil {
        bStart, bEnd = bStart2, bEnd2
        bStartPrev = bPrev2
    } else if bStart == nil || bEnd == self.LastBlockOfMainFunction() {
        return false
    }

    /* the regions the run belongs to */
    inTry := make([]bool, self.Eh.Len())
    inHnd := make([]bool, self.Eh.Len())
    for i := range self.Eh.Clauses {
        inTry[i] = self.Eh.InTryRange(i + 1, bStart)
        inHnd[i] = self.Eh.InHndRange(i + 1, bStart)
    }

    /* regions ending with the run now end before it */
    var endTry []*EhClause
    var endHnd []*EhClause
    for _, e := range self.Eh.Clauses {
        if e.TryLast == bEnd {
            e.TryLast = bStartPrev
            endTry = append(endTry, e)
        }
        if e.HndLast == bEnd {
            e.HndLast = bStartPrev
            endHnd = append(endHnd, e)
        }
    }

    /* detach the run */
    quirk := bStartPrev.Flags & BBF_NONE_QUIRK
    jumpedToNext := bStartPrev.Kind() == KindAlways && bStartPrev.JumpsToNext()
    self.UnlinkRange(bStart, bEnd)

    /* a jump that used to go to the next block is no longer a quirk */
    if bStartPrev.Kind() == KindAlways && jumpedToNext != bStartPrev.JumpsToNext() {
        bStartPrev.Flags &^= BBF_NONE_QUIRK
    }

    /* find where the run goes */
    insertAfter := bPrev
    if bStart2 == nil {
        if insertAfter = self.relocationPoint(plan, bStart, bEnd, bNext); insertAfter == nil || insertAfter == bPrev {
            self.InsertRangeAfter(bStart, bEnd, bPrev)
            bStartPrev.Flags |= quirk
            for _, e := range endTry {
                e.TryLast = bEnd
            }
            for _, e := range endHnd {
                e.HndLast = bEnd
            }
            return false
        }
    }

    /* reverse the condition of bPrev */
    if bPrev.Kind() == KindCond {
        ir.ReverseCond(bPrev.LastStmt())
        if bStart2 == nil {
            bPrev.SetJumpDest(bStart)
        } else {
            bPrev.SetJumpDest(block)
        }
    }

    /* regions ending at the insertion point now end with the run */
    for i, e := range self.Eh.Clauses {
        if e.TryLast == insertAfter && inTry[i] {
            e.TryLast = bEnd
        }
        if e.HndLast == insertAfter && inHnd[i] {
            e.HndLast = bEnd
        }
    }

    /* link the run */
    self.InsertRangeAfter(bStart, bEnd, insertAfter)
    count(&MovedCount)
    self.Span.Printw("moved blocks", "start", bStart.Id, "end", bEnd.Id, "after", insertAfter.Id)

    /* fix up the fall-through of bPrev */
    if bDest != nil {
        self.ConnectFallThrough(bPrev, bDest)
    } else {
        self.ConnectFallThrough(bPrev, block)
    }

    /* and of the run, and of where it came from or went to */
    bSkip := bEnd.next
    self.ConnectFallThrough(bEnd, bNext)
    if bStart2 == nil {
        self.ConnectFallThrough(insertAfter, bSkip)
    } else {
        self.ConnectFallThrough(bPrev2, bStart)
    }
    return true
}
