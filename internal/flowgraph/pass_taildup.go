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
    _TailDupScanLimit = 2
)

// BlockEndFavorsTailDuplication checks whether one of the last statements
// of block stores a constant, an array length or a comparison into local n,
// which the duplicated test could then fold.
func (self *Graph) BlockEndFavorsTailDuplication(block *Block, n int) bool {
    if block.IsRunRarely() || self.Locals.IsExposed(n) {
        return false
    }

    /* scan the last few statements */
    for i, k := len(block.Stmts) - 1, 0; i >= 0 && k < _TailDupScanLimit; i, k = i - 1, k + 1 {
        if p := block.Stmts[i]; p.IsLocalStore() && p.Lcl == n {
            switch {
                case p.X.Op == ir.OP_arrlen  : return true
                case p.X.Op == ir.OP_cns     : return true
                case p.X.Op.IsCompare()      : return true
            }
        }
    }
    return false
}

// simpleLocalOperand picks the local a simple binary tree tests: one side
// must be a local and the other a constant, or both the same local. Casts
// are looked through.
func simpleLocalOperand(x *ir.Node, y *ir.Node) (int, bool) {
    if x = ir.SkipCasts(x); x == nil || !x.IsLocalOrConst() {
        return 0, false
    }
    if y = ir.SkipCasts(y); y == nil || !y.IsLocalOrConst() {
        return 0, false
    }

    /* pick the local */
    switch {
        case x.Op == ir.OP_lcl && y.Op == ir.OP_cns                  : return x.Lcl, true
        case y.Op == ir.OP_lcl && x.Op == ir.OP_cns                  : return y.Lcl, true
        case x.Op == ir.OP_lcl && y.Op == ir.OP_lcl && x.Lcl == y.Lcl : return x.Lcl, true
        default                                                      : return 0, false
    }
}

// BlockIsGoodTailDuplicationCandidate checks whether target is a small join
// block testing a local against a constant. It returns the tested local.
func (self *Graph) BlockIsGoodTailDuplicationCandidate(target *Block) (int, bool) {
    if target.Kind() != KindCond || target.RefCount() < 2 {
        return 0, false
    }

    /* at most one statement besides the branch */
    ns := len(target.Stmts)
    if ns == 0 || ns > 2 {
        return 0, false
    }

    /* the branch must be a simple compare */
    last := target.Stmts[ns - 1]
    if last.Op != ir.OP_jtrue || !last.X.Op.IsCompare() {
        return 0, false
    }

    /* find the local */
    lcl, ok := simpleLocalOperand(last.X.X, last.X.Y)
    if !ok || ns == 1 {
        return lcl, ok
    }

    /* the other statement must compute the same local */
    first := target.Stmts[0]
    if !first.IsLocalStore() || first.Lcl != lcl || !first.X.Op.IsBinary() || first.X.Y == nil {
        return 0, false
    }

    /* from a simple binary tree */
    return simpleLocalOperand(first.X.X, first.X.Y)
}

// OptimizeUncondBranchToSimpleCond duplicates a small conditional target
// into block when block ends by storing something the test may fold. Block
// becomes conditional, and a new jump block after it takes the fall-through.
func (self *Graph) OptimizeUncondBranchToSimpleCond(block *Block, target *Block) bool {
    if !SameEHRegion(block, target) || self.IsScratch(block) {
        return false
    }

    /* must be a good candidate */
    lcl, ok := self.BlockIsGoodTailDuplicationCandidate(target)
    if !ok {
        return false
    }

    /* OSR methods keep the flow into loops simple */
    if self.OsrEntry != nil {
        if target.next.Flags & BBF_BACKWARD_JUMP != 0 || target.JumpDest().Flags & BBF_BACKWARD_JUMP != 0 {
            return false
        }
    }

    /* block must store into the tested local */
    if !self.BlockEndFavorsTailDuplication(block, lcl) {
        return false
    }

    /* copy the target */
    for _, p := range target.Stmts {
        block.Stmts = append(block.Stmts, ir.Clone(p))
    }

    /* block now branches on its own */
    block.Jump = &JCond{Taken: target.JumpDest()}
    AddRefPred(target.JumpDest(), block)
    RemoveRefPred(target, block)

    /* a new block takes the fall-through of target */
    next := self.NewBlockAfter(&JAlways{To: target.next}, block, true)
    next.InheritWeight(block)
    AddRefPred(next, block)
    AddRefPred(target.next, next)

    /* done */
    count(&TailDupCount)
    self.Span.Printw("duplicated conditional tail", "block", block.Id, "target", target.Id, "new", next.Id)
    return true
}
