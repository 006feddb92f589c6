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

// FlowEdge is a predecessor edge, owned by the target block. Dup counts how
// many control transfers of Source reach the target (a switch may list the
// same target more than once).
type FlowEdge struct {
    Source    *Block
    Dup       int
    WeightMin Weight
    WeightMax Weight
}

func (self *FlowEdge) SetWeights(min Weight, max Weight) {
    self.WeightMin = min
    self.WeightMax = max
}

func (self *FlowEdge) Avg() Weight {
    return (self.WeightMin + self.WeightMax) / 2
}

// GetPredEdge finds the edge from src into dst.
func GetPredEdge(dst *Block, src *Block) *FlowEdge {
    for _, e := range dst.Preds {
        if e.Source == src {
            return e
        }
    }
    return nil
}

// AddRefPred adds one reference from src to dst, keeping the pred list
// ordered by block id.
func AddRefPred(dst *Block, src *Block) *FlowEdge {
    if e := GetPredEdge(dst, src); e != nil {
        e.Dup++
        return e
    }

    /* find the insertion point */
    i := 0
    for i < len(dst.Preds) && dst.Preds[i].Source.Id <= src.Id {
        i++
    }

    /* new edges carry no weight information */
    e := &FlowEdge {
        Source    : src,
        Dup       : 1,
        WeightMin : ZeroWeight,
        WeightMax : MaxWeight,
    }

    /* insert the edge */
    dst.Preds = append(dst.Preds, nil)
    copy(dst.Preds[i + 1:], dst.Preds[i:])
    dst.Preds[i] = e
    return e
}

// AddRefPredWithWeights is AddRefPred, except that a newly created edge
// takes the weights of old.
func AddRefPredWithWeights(dst *Block, src *Block, old *FlowEdge) *FlowEdge {
    e := AddRefPred(dst, src)
    if e.Dup == 1 && old != nil {
        e.SetWeights(old.WeightMin, old.WeightMax)
    }
    return e
}

// RemoveRefPred drops one reference from src to dst, and the edge itself
// once the last reference is gone. The (possibly detached) edge is returned.
func RemoveRefPred(dst *Block, src *Block) *FlowEdge {
    for i, e := range dst.Preds {
        if e.Source == src {
            if e.Dup--; e.Dup == 0 {
                dst.Preds = append(dst.Preds[:i:i], dst.Preds[i + 1:]...)
            }
            return e
        }
    }
    panic("flowgraph: missing pred edge " + src.String() + " -> " + dst.String())
}

// RemoveAllPreds drops every reference from src to dst.
func RemoveAllPreds(dst *Block, src *Block) *FlowEdge {
    for i, e := range dst.Preds {
        if e.Source == src {
            dst.Preds = append(dst.Preds[:i:i], dst.Preds[i + 1:]...)
            return e
        }
    }
    return nil
}

// ReplacePred makes the edge from old into dst come from src instead.
func ReplacePred(dst *Block, old *Block, src *Block) {
    e := RemoveAllPreds(dst, old)
    if e == nil {
        panic("flowgraph: missing pred edge " + old.String() + " -> " + dst.String())
    }

    /* merge with an existing edge */
    if ne := GetPredEdge(dst, src); ne != nil {
        ne.Dup += e.Dup
        return
    }

    /* re-insert in order */
    ne := AddRefPred(dst, src)
    ne.Dup = e.Dup
    ne.SetWeights(e.WeightMin, e.WeightMax)
}

// Successors lists the control flow successors of a block, with one entry
// per control transfer (duplicates included).
func Successors(bb *Block) []*Block {
    switch j := bb.Jump.(type) {
        case *JAlways       : return []*Block { j.To }
        case *JCond         : return []*Block { j.Taken, bb.next }
        case *JSwitch       : return j.Table
        case *JCallFinally  : return []*Block { j.Handler }
        case *JEhFinallyRet : return j.Succs
        case *JEhFilterRet  : return []*Block { j.Handler }
        case *JEhCatchRet   : return []*Block { j.To }
        default             : return nil
    }
}

// UniqueSuccs is like Successors with duplicates removed, first occurrence
// order preserved.
func UniqueSuccs(bb *Block) []*Block {
    succ := Successors(bb)
    ret := make([]*Block, 0, len(succ))

    /* remove duplicates */
    for _, v := range succ {
        dup := false
        for _, p := range ret {
            if p == v {
                dup = true
                break
            }
        }
        if !dup {
            ret = append(ret, v)
        }
    }
    return ret
}

func NumSucc(bb *Block) int {
    return len(UniqueSuccs(bb))
}

// GetUniqueSucc returns the only successor of bb, if it has exactly one.
func GetUniqueSucc(bb *Block) *Block {
    if s := UniqueSuccs(bb); len(s) == 1 {
        return s[0]
    } else {
        return nil
    }
}

// GetUniquePred returns the only predecessor of bb, if it has exactly one
// reference.
func GetUniquePred(bb *Block) *Block {
    if len(bb.Preds) == 1 && bb.Preds[0].Dup == 1 && bb.ImplicitRefs == 0 {
        return bb.Preds[0].Source
    } else {
        return nil
    }
}
