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

    `gonum.org/v1/gonum/graph`
    `gonum.org/v1/gonum/graph/flow`
    `gonum.org/v1/gonum/graph/simple`
    `gonum.org/v1/gonum/graph/topo`
    `tlog.app/go/errors`
)

// GraphError is a broken invariant found at a block.
type GraphError struct {
    Block *Block
    Note  string
}

func (self *GraphError) Error() string {
    return fmt.Sprintf("GraphError(%v): %s", self.Block, self.Note)
}

func (self *GraphError) Unwrap() error {
    return ErrInconsistentGraph
}

func inconsistent(bb *Block, format string, args ...interface{}) error {
    return &GraphError {
        Block : bb,
        Note  : fmt.Sprintf(format, args...),
    }
}

// Verify checks the structural invariants of the graph: the block list is
// well linked, pred lists agree with the jumps, removed blocks are gone,
// and every EH region is a contiguous range of linked blocks.
func Verify(g *Graph) error {
    n := 0
    linked := make(map[*Block]bool, g.Count)

    /* the block list */
    var prev *Block
    for bb := g.First; bb != nil; bb = bb.next {
        if bb.prev != prev {
            return inconsistent(bb, "bad prev link")
        }
        if bb.Flags & BBF_REMOVED != 0 {
            return inconsistent(bb, "removed block is still linked")
        }
        n++
        prev = bb
        linked[bb] = true
    }

    /* the list ends */
    if g.Last != prev {
        return errors.Wrap(ErrInconsistentGraph, "last block is %v, list ends at %v", g.Last, prev)
    }
    if g.Count != n {
        return errors.Wrap(ErrInconsistentGraph, "block count is %d, list has %d", g.Count, n)
    }

    /* jumps and pred lists agree */
    for bb := g.First; bb != nil; bb = bb.next {
        if err := verifyBlock(g, bb, linked); err != nil {
            return err
        }
    }

    /* EH regions */
    for i, e := range g.Eh.Clauses {
        if err := verifyRange(e.TryBeg, e.TryLast, linked); err != nil {
            return errors.Wrap(err, "try of clause %d", i + 1)
        }
        if err := verifyRange(e.HndBeg, e.HndLast, linked); err != nil {
            return errors.Wrap(err, "handler of clause %d", i + 1)
        }
    }
    return nil
}

func verifyBlock(g *Graph, bb *Block, linked map[*Block]bool) error {
    refs := make(map[*Block]int)
    for _, s := range Successors(bb) {
        if !linked[s] {
            return inconsistent(bb, "jumps to unlinked block %v", s)
        }
        refs[s]++
    }

    /* the implicit fall-throughs need a next block */
    if bb.Kind() == KindCond && bb.next == nil {
        return inconsistent(bb, "conditional jump falls off the end")
    }
    if bb.Kind() == KindCallFinally && bb.Flags & BBF_RETLESS_CALL == 0 && !bb.IsCallAlwaysPair() {
        return inconsistent(bb, "call of finally without its continuation")
    }

    /* every jump has a pred edge with the same count */
    for s, dup := range refs {
        if e := GetPredEdge(s, bb); e == nil {
            return inconsistent(bb, "missing pred edge into %v", s)
        } else if e.Dup != dup {
            return inconsistent(bb, "pred edge into %v has %d references, jumps have %d", s, e.Dup, dup)
        }
    }

    /* and every pred edge has the jumps */
    for _, e := range bb.Preds {
        if !linked[e.Source] {
            return inconsistent(bb, "pred %v is not linked", e.Source)
        }
        if e.Dup <= 0 {
            return inconsistent(bb, "pred edge from %v without references", e.Source)
        }
        if c := countJumps(e.Source, bb); c != e.Dup {
            return inconsistent(bb, "pred edge from %v has %d references, jumps have %d", e.Source, e.Dup, c)
        }
    }
    return nil
}

func countJumps(src *Block, dst *Block) int {
    n := 0
    for _, s := range Successors(src) {
        if s == dst {
            n++
        }
    }
    return n
}

func verifyRange(beg *Block, last *Block, linked map[*Block]bool) error {
    if !linked[beg] || !linked[last] {
        return errors.Wrap(ErrInconsistentGraph, "region bounds %v..%v are not linked", beg, last)
    }
    for p := beg; p != nil; p = p.next {
        if p == last {
            return nil
        }
    }
    return errors.Wrap(ErrInconsistentGraph, "region %v..%v is not contiguous", beg, last)
}

// flowRoots lists the blocks the dominator computation hangs off its
// synthetic root.
func (self *Graph) flowRoots() []*Block {
    var ret []*Block
    for bb := self.First; bb != nil; bb = bb.next {
        if bb == self.First || len(bb.Preds) == 0 {
            ret = append(ret, bb)
        }
    }

    /* handler and filter entries */
    for _, e := range self.Eh.Clauses {
        if e.FilterBeg != nil {
            ret = append(ret, e.FilterBeg)
        }
        ret = append(ret, e.HndBeg)
    }
    return ret
}

// directedGraph converts the linked blocks into a gonum graph, with node 0
// standing for the synthetic root.
func (self *Graph) directedGraph() *simple.DirectedGraph {
    dg := simple.NewDirectedGraph()
    dg.AddNode(simple.Node(0))
    for bb := self.First; bb != nil; bb = bb.next {
        dg.AddNode(simple.Node(bb.Id))
    }

    /* the root edges */
    for _, bb := range self.flowRoots() {
        dg.SetEdge(dg.NewEdge(simple.Node(0), simple.Node(bb.Id)))
    }

    /* the flow edges, self loops excluded */
    for bb := self.First; bb != nil; bb = bb.next {
        for _, s := range UniqueSuccs(bb) {
            if s != bb {
                dg.SetEdge(dg.NewEdge(simple.Node(bb.Id), simple.Node(s.Id)))
            }
        }
    }
    return dg
}

// VerifyAnalyses cross-checks the immediate dominators and the reachability
// sets against an independent computation over the same graph.
func VerifyAnalyses(g *Graph) error {
    if err := g.Require(LevelDoms); err != nil {
        return errors.Wrap(err, "verify analyses")
    }

    /* compute the dominators independently */
    dg := g.directedGraph()
    dt := flow.Dominators(simple.Node(0), dg)

    /* compare the immediate dominators */
    for bb := g.First; bb != nil; bb = bb.next {
        var want graph.Node
        if want = dt.DominatorOf(int64(bb.Id)); want == nil {
            continue
        }

        /* tree roots hang off the synthetic root */
        if want.ID() == 0 {
            if bb.Idom != nil {
                return inconsistent(bb, "immediate dominator is %v, expected none", bb.Idom)
            }
        } else if bb.Idom == nil || int64(bb.Idom.Id) != want.ID() {
            return inconsistent(bb, "immediate dominator is %v, expected BB%02d", bb.Idom, want.ID())
        }
    }

    /* compare the reachability */
    for a := g.First; a != nil; a = a.next {
        for b := g.First; b != nil; b = b.next {
            want := a == b || topo.PathExistsIn(dg, simple.Node(a.Id), simple.Node(b.Id))
            if g.Reachable(a, b) != want {
                return inconsistent(a, "reachability of %v is %t, expected %t", b, !want, want)
            }
        }
    }
    return nil
}
