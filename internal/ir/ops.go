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

import (
    `encoding/binary`

    `github.com/bytedance/gopkg/util/xxhash3`
)

// Compare checks two trees for structural equality.
func Compare(a *Node, b *Node) bool {
    if a == nil || b == nil {
        return a == b
    }

    /* the node itself */
    if a.Op != b.Op || a.Lcl != b.Lcl || a.Val != b.Val || a.Tail != b.Tail {
        return false
    }

    /* operands */
    if len(a.Args) != len(b.Args) || !Compare(a.X, b.X) || !Compare(a.Y, b.Y) {
        return false
    }

    /* call arguments */
    for i := range a.Args {
        if !Compare(a.Args[i], b.Args[i]) {
            return false
        }
    }
    return true
}

// Clone makes a deep copy of the tree.
func Clone(p *Node) *Node {
    if p == nil {
        return nil
    }

    /* copy the node and its operands */
    ret := *p
    ret.X = Clone(p.X)
    ret.Y = Clone(p.Y)

    /* copy the arguments */
    if p.Args != nil {
        ret.Args = make([]*Node, len(p.Args))
        for i, v := range p.Args {
            ret.Args[i] = Clone(v)
        }
    }
    return &ret
}

var _ReversedOps = [...]Oper {
    OP_eq: OP_ne,
    OP_ne: OP_eq,
    OP_lt: OP_ge,
    OP_le: OP_gt,
    OP_gt: OP_le,
    OP_ge: OP_lt,
}

// ReverseCond negates the condition of a conditional jump in place.
func ReverseCond(p *Node) *Node {
    c := p
    if p.Op == OP_jtrue {
        c = p.X
    }

    /* compare nodes are simply flipped */
    if c.Op.IsCompare() {
        c.Op = _ReversedOps[c.Op]
        return p
    }

    /* anything else becomes a test against zero */
    if p.Op == OP_jtrue {
        p.X = Binary(OP_eq, c, Cns(0))
        return p.UpdateFlags()
    } else {
        return Binary(OP_eq, p, Cns(0))
    }
}

// ExtractSideEffects collects the sub-trees of p that must survive when p
// itself is discarded, in evaluation order. The root's own effect is not
// kept for control roots (jtrue, switch and return).
func ExtractSideEffects(p *Node) []*Node {
    var ret []*Node
    extractSideEffects(p, &ret, p.IsTerminator())
    return ret
}

func extractSideEffects(p *Node, ret *[]*Node, ignoreRoot bool) {
    if !p.Flags.Has(F_SIDE_EFFECT) {
        return
    }

    /* nodes with effects of their own are kept as a whole */
    if !ignoreRoot && p.ownFlags().Has(F_SIDE_EFFECT) {
        *ret = append(*ret, p)
        return
    }

    /* otherwise look into the operands */
    p.Operands(func(v *Node) {
        extractSideEffects(v, ret, false)
    })
}

// HasLocalRef checks whether the tree reads or writes local n.
func HasLocalRef(p *Node, n int) bool {
    found := false
    p.Walk(func(v *Node) {
        if (v.Op == OP_lcl || v.Op == OP_store) && v.Lcl == n {
            found = true
        }
    })
    return found
}

// ContainsTailCall checks for a tail-prefixed call anywhere in the tree.
func ContainsTailCall(p *Node) bool {
    found := false
    p.Walk(func(v *Node) {
        if v.Op == OP_call && v.Tail {
            found = true
        }
    })
    return found
}

// SkipCasts strips any number of cast nodes.
func SkipCasts(p *Node) *Node {
    for p != nil && p.Op == OP_cast {
        p = p.X
    }
    return p
}

// CostSz estimates the code size of the tree.
func CostSz(p *Node) int {
    var ret int
    p.Walk(func(v *Node) {
        switch v.Op {
            case OP_nop                     : break
            case OP_cns                     : if v.Val < -128 || v.Val > 127 { ret += 4 } else { ret += 1 }
            case OP_div                     : ret += 3
            case OP_ind, OP_storeind        : ret += 2
            case OP_call                    : ret += 5
            case OP_switch                  : ret += 10
            default                         : ret += 1
        }
    })
    return ret
}

// Hash computes a structural hash, equal trees (per Compare) hash equally.
func Hash(p *Node) uint64 {
    return xxhash3.Hash(appendHash(make([]byte, 0, 64), p))
}

func appendHash(buf []byte, p *Node) []byte {
    if p == nil {
        return append(buf, 0xff)
    }

    /* encode the node */
    buf = append(buf, byte(p.Op))
    buf = binary.AppendVarint(buf, int64(p.Lcl))
    buf = binary.AppendVarint(buf, p.Val)

    /* tail call marker */
    if p.Tail {
        buf = append(buf, 1)
    } else {
        buf = append(buf, 0)
    }

    /* encode the operands */
    buf = appendHash(buf, p.X)
    buf = appendHash(buf, p.Y)
    buf = binary.AppendUvarint(buf, uint64(len(p.Args)))

    /* encode the arguments */
    for _, v := range p.Args {
        buf = appendHash(buf, v)
    }
    return buf
}
