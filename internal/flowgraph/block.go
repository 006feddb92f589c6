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
    `fmt`
    `math`

    `github.com/cloudwego/flowopt/internal/ir`
)

type Weight = float64

const (
    ZeroWeight Weight = 0
    Unity      Weight = 100
    LoopScale  Weight = 8
    MaxWeight  Weight = math.MaxFloat32
)

type Kind uint8

const (
    KindAlways Kind = iota
    KindCond
    KindSwitch
    KindReturn
    KindThrow
    KindCallFinally
    KindEhFinallyRet
    KindEhFilterRet
    KindEhFaultRet
    KindEhCatchRet
)

var _KindNames = [...]string {
    KindAlways       : "always",
    KindCond         : "cond",
    KindSwitch       : "switch",
    KindReturn       : "return",
    KindThrow        : "throw",
    KindCallFinally  : "callfinally",
    KindEhFinallyRet : "finallyret",
    KindEhFilterRet  : "filterret",
    KindEhFaultRet   : "faultret",
    KindEhCatchRet   : "catchret",
}

func (self Kind) String() string {
    if int(self) < len(_KindNames) {
        return _KindNames[self]
    } else {
        return fmt.Sprintf("kind(%d)", self)
    }
}

// Jump is the terminating control transfer of a block. The fall-through
// successor of JCond and the continuation of JCallFinally is always the
// lexically next block.
type Jump interface {
    Kind() Kind
}

type (
    JAlways       struct { To *Block }
    JCond         struct { Taken *Block }
    JReturn       struct {}
    JThrow        struct {}
    JCallFinally  struct { Handler *Block }
    JEhFinallyRet struct { Succs []*Block }
    JEhFilterRet  struct { Handler *Block }
    JEhFaultRet   struct {}
    JEhCatchRet   struct { To *Block }
)

// JSwitch is a jump table. When HasDominant is set, profile data says that
// case Dominant is taken with probability DominantFraction.
type JSwitch struct {
    Table            []*Block
    HasDominant      bool
    Dominant         int
    DominantFraction Weight
}

func (*JAlways)       Kind() Kind { return KindAlways }
func (*JCond)         Kind() Kind { return KindCond }
func (*JSwitch)       Kind() Kind { return KindSwitch }
func (*JReturn)       Kind() Kind { return KindReturn }
func (*JThrow)        Kind() Kind { return KindThrow }
func (*JCallFinally)  Kind() Kind { return KindCallFinally }
func (*JEhFinallyRet) Kind() Kind { return KindEhFinallyRet }
func (*JEhFilterRet)  Kind() Kind { return KindEhFilterRet }
func (*JEhFaultRet)   Kind() Kind { return KindEhFaultRet }
func (*JEhCatchRet)   Kind() Kind { return KindEhCatchRet }

type BlockFlags uint64

const (
    BBF_REMOVED BlockFlags = 1 << iota
    BBF_INTERNAL
    BBF_IMPORTED
    BBF_DONT_REMOVE
    BBF_RUN_RARELY
    BBF_PROF_WEIGHT
    BBF_LOOP_PREHEADER
    BBF_KEEP_ALWAYS
    BBF_GC_SAFE_POINT
    BBF_LOOP_HEAD
    BBF_LOOP_ALIGN
    BBF_THROW_HELPER
    BBF_CLONED_FINALLY_BEGIN
    BBF_RETLESS_CALL
    BBF_COPY_PROPAGATE
    BBF_DOM_BY_EXCEPTIONAL_ENTRY
    BBF_NONE_QUIRK
    BBF_FUNCLET_BEG
    BBF_HAS_CALL
    BBF_HAS_IDX_LEN
    BBF_BACKWARD_JUMP
)

// BBF_COMPACT_UPD are the flags a block inherits when its successor is
// folded into it.
const BBF_COMPACT_UPD = BBF_GC_SAFE_POINT | BBF_HAS_CALL | BBF_HAS_IDX_LEN | BBF_BACKWARD_JUMP | BBF_COPY_PROPAGATE

var _FlagNames = [...]string {
    "removed", "internal", "imported", "dont_remove", "run_rarely", "prof_weight", "loop_preheader",
    "keep_always", "gc_safe_point", "loop_head", "loop_align", "throw_helper", "cloned_finally_begin",
    "retless_call", "copy_propagate", "dom_by_exceptional_entry", "none_quirk", "funclet_beg",
    "has_call", "has_idx_len", "backward_jump",
}

// FlagByName maps the lower-case flag names to flags.
func FlagByName(name string) (BlockFlags, bool) {
    for i, v := range _FlagNames {
        if v == name {
            return 1 << i, true
        }
    }
    return 0, false
}

func (self BlockFlags) String() string {
    var ret string
    for i, v := range _FlagNames {
        if self & (1 << i) != 0 {
            if ret != "" {
                ret += "|"
            }
            ret += v
        }
    }
    return ret
}

// Block is a basic block. Blocks are owned by the arena of a Graph and are
// never freed, removal unlinks them and sets BBF_REMOVED.
type Block struct {
    Id           int
    Jump         Jump
    Stmts        []*ir.Node
    Preds        []*FlowEdge
    Weight       Weight
    Flags        BlockFlags
    TryIndex     int
    HndIndex     int
    LoopNum      int
    ImplicitRefs int

    /* flow analysis results */
    PreOrder  int
    PostOrder int
    Reach     *BitSet
    LiveIn    *BitSet
    LiveOut   *BitSet

    /* dominator tree */
    Idom       *Block
    DomChild   *Block
    DomSibling *Block
    DomPre     int
    DomPost    int

    next *Block
    prev *Block
}

func (self *Block) String() string {
    return fmt.Sprintf("BB%02d", self.Id)
}

func (self *Block) Next() *Block {
    return self.next
}

func (self *Block) Prev() *Block {
    return self.prev
}

func (self *Block) Kind() Kind {
    return self.Jump.Kind()
}

func (self *Block) KindIs(kinds ...Kind) bool {
    k := self.Kind()
    for _, v := range kinds {
        if v == k {
            return true
        }
    }
    return false
}

// JumpDest returns the explicit single jump target, if the kind has one.
func (self *Block) JumpDest() *Block {
    switch j := self.Jump.(type) {
        case *JAlways      : return j.To
        case *JCond        : return j.Taken
        case *JCallFinally : return j.Handler
        case *JEhFilterRet : return j.Handler
        case *JEhCatchRet  : return j.To
        default            : return nil
    }
}

// SetJumpDest retargets the explicit jump, it does not touch the pred lists.
func (self *Block) SetJumpDest(to *Block) {
    switch j := self.Jump.(type) {
        case *JAlways      : j.To = to
        case *JCond        : j.Taken = to
        case *JCallFinally : j.Handler = to
        case *JEhFilterRet : j.Handler = to
        case *JEhCatchRet  : j.To = to
        default            : panic("flowgraph: block has no jump target: " + self.String())
    }
}

func (self *Block) HasJumpTo(bb *Block) bool {
    return self.JumpDest() == bb
}

// JumpsToNext checks whether an unconditional or conditional jump targets
// the lexically next block.
func (self *Block) JumpsToNext() bool {
    return self.KindIs(KindAlways, KindCond) && self.JumpDest() == self.next
}

// FallsThrough checks whether control may flow into the next block
// without an explicit jump.
func (self *Block) FallsThrough() bool {
    switch self.Kind() {
        case KindCond        : return true
        case KindCallFinally : return self.Flags & BBF_RETLESS_CALL == 0
        default              : return false
    }
}

func (self *Block) IsEmpty() bool {
    return len(self.Stmts) == 0
}

func (self *Block) IsRunRarely() bool {
    return self.Flags & BBF_RUN_RARELY != 0
}

func (self *Block) SetRunRarely() {
    self.Weight = ZeroWeight
    self.Flags |= BBF_RUN_RARELY
}

func (self *Block) HasProfileWeight() bool {
    return self.Flags & BBF_PROF_WEIGHT != 0
}

func (self *Block) SetProfileWeight(w Weight) {
    self.Weight = w
    self.Flags |= BBF_PROF_WEIGHT

    /* zero weight means rarely run */
    if w == ZeroWeight {
        self.Flags |= BBF_RUN_RARELY
    } else {
        self.Flags &^= BBF_RUN_RARELY
    }
}

// IsMaxWeight is true for blocks whose weight saturated.
func (self *Block) IsMaxWeight() bool {
    return self.Weight >= MaxWeight
}

// RefCount counts the incoming control flow paths, including the implicit
// reference held on method and handler entries.
func (self *Block) RefCount() int {
    n := self.ImplicitRefs
    for _, e := range self.Preds {
        n += e.Dup
    }
    return n
}

// PredBlocks lists the distinct predecessor blocks.
func (self *Block) PredBlocks() []*Block {
    ret := make([]*Block, len(self.Preds))
    for i, e := range self.Preds {
        ret[i] = e.Source
    }
    return ret
}

// IsCallAlwaysPair checks whether the block calls a finally and is followed
// by its paired continuation.
func (self *Block) IsCallAlwaysPair() bool {
    return self.Kind() == KindCallFinally &&
        self.Flags & BBF_RETLESS_CALL == 0 &&
        self.next != nil &&
        self.next.Kind() == KindAlways
}

func (self *Block) IsCallAlwaysPairTail() bool {
    return self.prev != nil && self.prev.IsCallAlwaysPair()
}

func (self *Block) HasTryIndex() bool {
    return self.TryIndex != 0
}

func (self *Block) HasHndIndex() bool {
    return self.HndIndex != 0
}

func (self *Block) IsLoopAlign() bool {
    return self.Flags & BBF_LOOP_ALIGN != 0
}

func (self *Block) FirstStmt() *ir.Node {
    if len(self.Stmts) == 0 {
        return nil
    } else {
        return self.Stmts[0]
    }
}

func (self *Block) LastStmt() *ir.Node {
    if len(self.Stmts) == 0 {
        return nil
    } else {
        return self.Stmts[len(self.Stmts) - 1]
    }
}

// Terminator returns the statement ending a cond, switch or return block.
func (self *Block) Terminator() *ir.Node {
    if p := self.LastStmt(); p != nil && p.IsTerminator() {
        return p
    } else {
        return nil
    }
}

// RemoveStmt deletes the i-th statement.
func (self *Block) RemoveStmt(i int) {
    self.Stmts = append(self.Stmts[:i:i], self.Stmts[i + 1:]...)
}

// InsertStmt inserts p in front of the i-th statement.
func (self *Block) InsertStmt(i int, p *ir.Node) {
    self.Stmts = append(self.Stmts[:i:i], append([]*ir.Node{p}, self.Stmts[i:]...)...)
}

// InsertStmtNearEnd inserts p before the terminator, if any.
func (self *Block) InsertStmtNearEnd(p *ir.Node) {
    if self.Terminator() != nil {
        self.InsertStmt(len(self.Stmts) - 1, p)
    } else {
        self.Stmts = append(self.Stmts, p)
    }
}
