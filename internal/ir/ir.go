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

package ir

type Oper uint8

const (
    OP_nop Oper = iota
    OP_cns
    OP_lcl
    OP_store
    OP_ind
    OP_storeind
    OP_add
    OP_sub
    OP_mul
    OP_div
    OP_and
    OP_or
    OP_xor
    OP_eq
    OP_ne
    OP_lt
    OP_le
    OP_gt
    OP_ge
    OP_cast
    OP_arrlen
    OP_call
    OP_jtrue
    OP_switch
    OP_return
)

var _OpNames = [...]string {
    OP_nop      : "nop",
    OP_cns      : "cns",
    OP_lcl      : "lcl",
    OP_store    : "store",
    OP_ind      : "ind",
    OP_storeind : "storeind",
    OP_add      : "add",
    OP_sub      : "sub",
    OP_mul      : "mul",
    OP_div      : "div",
    OP_and      : "and",
    OP_or       : "or",
    OP_xor      : "xor",
    OP_eq       : "eq",
    OP_ne       : "ne",
    OP_lt       : "lt",
    OP_le       : "le",
    OP_gt       : "gt",
    OP_ge       : "ge",
    OP_cast     : "cast",
    OP_arrlen   : "arrlen",
    OP_call     : "call",
    OP_jtrue    : "jtrue",
    OP_switch   : "switch",
    OP_return   : "return",
}

func (self Oper) String() string {
    if int(self) < len(_OpNames) && _OpNames[self] != "" {
        return _OpNames[self]
    } else {
        return "???"
    }
}

func (self Oper) IsCompare() bool {
    return self >= OP_eq && self <= OP_ge
}

func (self Oper) IsBinary() bool {
    return self >= OP_add && self <= OP_ge
}

func (self Oper) IsLeaf() bool {
    return self == OP_cns || self == OP_lcl || self == OP_nop
}

// Flags summarizes the side effects of a tree, each node carries the union of
// its own effects and the effects of all its operands.
type Flags uint8

const (
    F_ASG Flags = 1 << iota
    F_CALL
    F_EXCEPT
    F_GLOB_REF
    F_ORDER_SIDEEFF
)

const (
    F_SIDE_EFFECT = F_ASG | F_CALL | F_EXCEPT
    F_PERSISTENT  = F_ASG | F_CALL
    F_ALL_EFFECT  = F_SIDE_EFFECT | F_GLOB_REF | F_ORDER_SIDEEFF
)

func (self Flags) Has(f Flags) bool {
    return self & f != 0
}

// Node is a statement or expression tree.
type Node struct {
    Op    Oper
    Lcl   int
    Val   int64
    Tail  bool
    X     *Node
    Y     *Node
    Args  []*Node
    Flags Flags
}

func (self *Node) ownFlags() Flags {
    switch self.Op {
        case OP_store    : return F_ASG
        case OP_ind      : return F_EXCEPT | F_GLOB_REF
        case OP_storeind : return F_ASG | F_EXCEPT | F_GLOB_REF
        case OP_div      : return F_EXCEPT
        case OP_arrlen   : return F_EXCEPT
        case OP_call     : return F_CALL | F_EXCEPT | F_GLOB_REF
        default          : return 0
    }
}

// UpdateFlags recomputes the effect summary of this node from its operands.
func (self *Node) UpdateFlags() *Node {
    fv := self.ownFlags() | (self.Flags & F_ORDER_SIDEEFF)
    self.Operands(func(p *Node) { fv |= p.Flags })
    self.Flags = fv
    return self
}

// Operands calls fn for every direct operand in evaluation order.
func (self *Node) Operands(fn func(p *Node)) {
    if self.X != nil { fn(self.X) }
    if self.Y != nil { fn(self.Y) }
    for _, p := range self.Args { fn(p) }
}

// Walk visits the tree in pre-order.
func (self *Node) Walk(fn func(p *Node)) {
    fn(self)
    self.Operands(func(p *Node) { p.Walk(fn) })
}

func (self *Node) IsNop() bool {
    return self.Op == OP_nop
}

// IsTerminator reports whether the node ends a block.
func (self *Node) IsTerminator() bool {
    return self.Op == OP_jtrue || self.Op == OP_switch || self.Op == OP_return
}

func (self *Node) IsLocalStore() bool {
    return self.Op == OP_store
}

func (self *Node) IsLocalOrConst() bool {
    return self.Op == OP_lcl || self.Op == OP_cns
}

func Nop() *Node {
    return &Node{Op: OP_nop}
}

func Cns(v int64) *Node {
    return &Node{Op: OP_cns, Val: v}
}

func Lcl(n int) *Node {
    return &Node{Op: OP_lcl, Lcl: n}
}

func Store(n int, v *Node) *Node {
    return (&Node{Op: OP_store, Lcl: n, X: v}).UpdateFlags()
}

func Ind(addr *Node) *Node {
    return (&Node{Op: OP_ind, X: addr}).UpdateFlags()
}

func StoreInd(addr *Node, v *Node) *Node {
    return (&Node{Op: OP_storeind, X: addr, Y: v}).UpdateFlags()
}

func Binary(op Oper, x *Node, y *Node) *Node {
    if !op.IsBinary() {
        panic("ir: not a binary operator: " + op.String())
    }
    return (&Node{Op: op, X: x, Y: y}).UpdateFlags()
}

func Cast(x *Node) *Node {
    return (&Node{Op: OP_cast, X: x}).UpdateFlags()
}

func ArrLen(x *Node) *Node {
    return (&Node{Op: OP_arrlen, X: x}).UpdateFlags()
}

func Call(fn int64, args ...*Node) *Node {
    return (&Node{Op: OP_call, Val: fn, Args: args}).UpdateFlags()
}

func TailCall(fn int64, args ...*Node) *Node {
    return (&Node{Op: OP_call, Val: fn, Args: args, Tail: true}).UpdateFlags()
}

func JTrue(cond *Node) *Node {
    return (&Node{Op: OP_jtrue, X: cond}).UpdateFlags()
}

func Switch(v *Node) *Node {
    return (&Node{Op: OP_switch, X: v}).UpdateFlags()
}

func Return(v *Node) *Node {
    return (&Node{Op: OP_return, X: v}).UpdateFlags()
}

// Ordered marks the node as having an ordering side effect (a fence or a
// volatile access), which forbids reordering across it.
func (self *Node) Ordered() *Node {
    self.Flags |= F_ORDER_SIDEEFF
    return self
}
