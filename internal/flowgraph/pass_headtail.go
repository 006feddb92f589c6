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
    `github.com/oleiade/lane`
)

// _MergeCand is a block whose statement at index stmt is a merge candidate.
type _MergeCand struct {
    bb   *Block
    stmt int
    hash uint64
}

func newMergeCand(bb *Block, stmt int) _MergeCand {
    return _MergeCand {
        bb   : bb,
        stmt : stmt,
        hash : ir.Hash(bb.Stmts[stmt]),
    }
}

func (self _MergeCand) node() *ir.Node {
    return self.bb.Stmts[self.stmt]
}

// lastRealStmt returns the index of the last statement that is not a nop,
// or -1 if there is none.
func lastRealStmt(bb *Block) int {
    for i := len(bb.Stmts) - 1; i >= 0; i-- {
        if !bb.Stmts[i].IsNop() {
            return i
        }
    }
    return -1
}

// firstRealStmt returns the index of the first statement that is not a nop,
// or -1 if there is none.
func firstRealStmt(bb *Block) int {
    for i, p := range bb.Stmts {
        if !p.IsNop() {
            return i
        }
    }
    return -1
}

type _TailMerger struct {
    g       *Graph
    retry   *lane.PQueue
    changed bool
}

// mergePreds tries one tail merge among the candidates. When every
// reference of commSucc comes from a matching candidate, the statement
// moves into commSucc. Otherwise the matching candidates jump to a single
// copy of it. A nil commSucc means the candidates are return blocks.
func (self *_TailMerger) mergePreds(commSucc *Block, cands []_MergeCand) bool {
    if len(cands) < 2 || !self.g.Opts.CanMerge(len(cands)) {
        return false
    }

    /* find a set of matching statements */
    for i := 0; i < len(cands) - 1; i++ {
        matched := []_MergeCand { cands[i] }
        for _, c := range cands[i + 1:] {
            if c.hash == cands[i].hash && ir.Compare(cands[i].node(), c.node()) {
                matched = append(matched, c)
            }
        }

        /* no match for this one */
        if len(matched) < 2 {
            continue
        }

        /* all the predecessors agree, hoist the statement */
        if commSucc != nil && len(matched) == commSucc.RefCount() {
            self.hoist(commSucc, matched)
            return true
        }

        /* otherwise cross-jump */
        if self.crossJump(commSucc, matched) {
            return true
        }
    }
    return false
}

func (self *_TailMerger) hoist(commSucc *Block, matched []_MergeCand) {
    stmt := matched[0].node()
    self.changed = true

    /* drop the statement from every predecessor */
    for _, c := range matched {
        c.bb.RemoveStmt(c.stmt)
    }

    /* keep one copy */
    commSucc.InsertStmt(0, stmt)
    commSucc.Flags |= matched[0].bb.Flags & BBF_COPY_PROPAGATE
    count(&MergedCount)
    self.g.Span.Printw("tail merged into successor", "block", commSucc.Id, "preds", len(matched))
}

func (self *_TailMerger) crossJump(commSucc *Block, matched []_MergeCand) bool {
    var victim *_MergeCand
    var noSplit bool
    var fallThrough bool

    /* pick the block to keep, preferably one without a split */
    for i := range matched {
        c := &matched[i]
        if self.g.IsScratch(c.bb) {
            continue
        }

        /* check the candidate */
        isNoSplit := c.stmt == 0
        isFallThrough := c.bb.Kind() == KindAlways && c.bb.JumpsToNext()

        /* better than what we have */
        switch {
            case victim == nil                                : break
            case isNoSplit && isFallThrough                   : break
            case !noSplit && isNoSplit                        : break
            case !noSplit && !fallThrough && isFallThrough    : break
            default                                           : continue
        }

        /* use this one */
        victim = c
        noSplit = isNoSplit
        fallThrough = isFallThrough

        /* the perfect victim */
        if noSplit && fallThrough {
            break
        }
    }

    /* every candidate is the scratch block */
    if victim == nil {
        return false
    }

    /* split if needed */
    target := victim.bb
    if !noSplit {
        target = self.g.SplitAfterStmt(victim.bb, victim.stmt)
    }

    /* the others jump to the remaining copy */
    for _, c := range matched {
        if c.bb == victim.bb {
            continue
        }

        /* drop the statement */
        c.bb.RemoveStmt(c.stmt)
        if commSucc != nil {
            RemoveRefPred(commSucc, c.bb)
        }

        /* and jump instead */
        c.bb.Jump = &JAlways{To: target}
        c.bb.Flags &^= BBF_NONE_QUIRK
        AddRefPred(target, c.bb)
    }

    /* the target may merge further */
    count(&MergedCount)
    self.changed = true
    self.retry.Push(target, target.Id)
    self.g.Span.Printw("cross-jumped to common tail", "target", target.Id, "preds", len(matched) - 1)
    return true
}

// tailMerge looks at the predecessors of block that only go there.
func (self *_TailMerger) tailMerge(block *Block) bool {
    if block.RefCount() < 2 {
        return false
    }

    /* collect the candidates */
    var cands []_MergeCand
    for _, e := range block.Preds {
        pred := e.Source
        if pred.Kind() != KindAlways || GetUniqueSucc(pred) != block || !SameEHRegion(block, pred) {
            continue
        }

        /* the last statement, nops excluded */
        if i := lastRealStmt(pred); i >= 0 {
            cands = append(cands, newMergeCand(pred, i))
        }
    }

    /* try to merge */
    return self.mergePreds(block, cands)
}

func (self *_TailMerger) iterate(block *Block) {
    n := 0
    for block.Flags & BBF_REMOVED == 0 && self.tailMerge(block) {
        n++
    }
    if n > 0 {
        self.g.Span.Printw("tail merges", "block", block.Id, "count", n)
    }
}

// HeadTailMerge merges identical statements across blocks. Predecessors of
// a block ending with the same statement share a single copy of it, as do
// return blocks; then the successors of a conditional starting with the
// same statement have it hoisted into the conditional block.
func (self *Graph) HeadTailMerge(early bool) bool {
    if !self.Opts.EnableHeadTailMerge {
        return false
    }

    /* the retry queue visits lower ids first */
    tm := &_TailMerger {
        g     : self,
        retry : lane.NewPQueue(lane.MINPQ),
    }

    /* visit each block */
    for block := self.First; block != nil; block = block.next {
        tm.iterate(block)
    }

    /* the return blocks */
    var rets []_MergeCand
    for block := self.First; block != nil; block = block.next {
        if block.Kind() == KindReturn && len(block.Stmts) == 1 && block != self.GenReturn {
            rets = append(rets, newMergeCand(block, 0))
        }
    }

    /* merge them once */
    tm.mergePreds(nil, rets)

    /* work through the retries */
    for tm.retry.Size() > 0 {
        v, _ := tm.retry.Pop()
        tm.iterate(v.(*Block))
    }

    /* head merging */
    for block := self.First; block != nil; block = block.next {
        if self.HeadMerge(block, early) {
            tm.changed = true
        }
    }

    /* the numbering may no longer match */
    if tm.changed {
        self.Cache.Downgrade(LevelNone)
    }
    return tm.changed
}

// HeadMerge repeatedly hoists the common first statement of the two
// successors of block into it.
func (self *Graph) HeadMerge(block *Block, early bool) bool {
    n := 0
    for self.TryOneHeadMerge(block, early) {
        n++
    }
    if n > 0 {
        self.Span.Printw("head merges", "block", block.Id, "count", n)
    }
    return n > 0
}

// headMergeCandidate returns the index of the first statement of succ that
// may be hoisted into block.
func (self *Graph) headMergeCandidate(block *Block, succ *Block) int {
    if GetUniquePred(succ) != block || !SameEHRegion(block, succ) {
        return -1
    }

    /* the first real statement */
    i := firstRealStmt(succ)
    if i < 0 {
        return -1
    }

    /* the terminator cannot move */
    if i == len(succ.Stmts) - 1 && succ.Terminator() != nil {
        return -1
    } else {
        return i
    }
}

// TryOneHeadMerge hoists the first statement of both successors of the
// conditional block if they are the same.
func (self *Graph) TryOneHeadMerge(block *Block, early bool) bool {
    if block.Kind() != KindCond || block.JumpsToNext() {
        return false
    }

    /* both successors need a candidate */
    next, dest := block.next, block.JumpDest()
    i := self.headMergeCandidate(block, next)
    j := self.headMergeCandidate(block, dest)
    if i < 0 || j < 0 {
        return false
    }

    /* they must be the same */
    p, q := next.Stmts[i], dest.Stmts[j]
    if !ir.Compare(p, q) || ir.ContainsTailCall(p) || ir.ContainsTailCall(q) {
        return false
    }

    /* it must go before the branch */
    if !self.CanMoveFirstStatementIntoPred(early, p, block) {
        return false
    }

    /* move one, drop the other */
    next.RemoveStmt(i)
    dest.RemoveStmt(j)
    block.InsertStmtNearEnd(p)
    block.Flags |= next.Flags & BBF_COPY_PROPAGATE
    count(&MergedCount)
    return true
}

// hasExposedLocalRef checks whether the tree touches an address exposed
// local.
func (self *Graph) hasExposedLocalRef(p *ir.Node) bool {
    ret := false
    p.Walk(func(v *ir.Node) {
        if (v.Op == ir.OP_lcl || v.Op == ir.OP_store) && self.Locals.IsExposed(v.Lcl) {
            ret = true
        }
    })
    return ret
}

// CanMoveFirstStatementIntoPred checks whether stmt may be evaluated before
// the terminator of pred instead of after it.
func (self *Graph) CanMoveFirstStatementIntoPred(early bool, stmt *ir.Node, pred *Block) bool {
    term := pred.Terminator()
    if term == nil {
        return true
    }

    /* the effects of both trees */
    f1 := term.Flags
    f2 := stmt.Flags

    /* early on, exposed locals count as global references */
    if early {
        if self.hasExposedLocalRef(term) {
            f1 |= ir.F_GLOB_REF
        }
        if self.hasExposedLocalRef(stmt) {
            f2 |= ir.F_GLOB_REF
        }
    }

    /* no stores within the terminator */
    if f1.Has(ir.F_ASG) {
        return false
    }

    /* only a plain top level local store may move */
    if f2.Has(ir.F_ASG) {
        if !stmt.IsLocalStore() || stmt.X.Flags.Has(ir.F_ASG) {
            return false
        }

        /* an exposed local must not be reordered with side effects */
        if f1.Has(ir.F_ALL_EFFECT) {
            if self.Locals.IsExposed(stmt.Lcl) {
                return false
            }
            if f1.Has(ir.F_CALL | ir.F_EXCEPT) && pred.HasTryIndex() {
                return false
            }
        }

        /* the terminator must not read the local */
        if self.Locals.Interferes(term, stmt.Lcl) {
            return false
        }

        /* the store itself is fine */
        f2 &^= ir.F_ASG
    }

    /* the remaining effects must commute */
    switch {
        case f1.Has(ir.F_CALL) && f2.Has(ir.F_ALL_EFFECT)                          : return false
        case f1.Has(ir.F_GLOB_REF) && f2.Has(ir.F_PERSISTENT)                      : return false
        case f1.Has(ir.F_ORDER_SIDEEFF) && f2.Has(ir.F_GLOB_REF | ir.F_ORDER_SIDEEFF) : return false
        case f2.Has(ir.F_ORDER_SIDEEFF) && f1.Has(ir.F_GLOB_REF | ir.F_ORDER_SIDEEFF) : return false
        case f1.Has(ir.F_EXCEPT) && f2.Has(ir.F_SIDE_EFFECT)                       : return false
        default                                                                    : return true
    }
}
