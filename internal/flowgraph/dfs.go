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
    `github.com/oleiade/lane`
    `tlog.app/go/errors`
)

type _DfsEntry struct {
    bb   *Block
    succ []*Block
    idx  int
}

func (self *_DfsEntry) nextSucc() *Block {
    if self.idx >= len(self.succ) {
        return nil
    } else {
        self.idx++
        return self.succ[self.idx - 1]
    }
}

type _DfsState struct {
    g       *Graph
    pre     int
    post    int
    visited *BitSet
}

// walk runs an iterative depth-first search from root, assigning preorder
// numbers when a block is first reached and postorder numbers once all its
// successors are done.
func (self *_DfsState) walk(root *Block) {
    st := lane.NewStack()
    st.Push(self.enter(root))

    /* explicit stack, deep graphs must not exhaust the goroutine stack */
    for !st.Empty() {
        top := st.Head().(*_DfsEntry)
        succ := top.nextSucc()

        /* all successors done, assign the postorder number */
        if succ == nil {
            n := self.g.Count
            top.bb.PostOrder = self.post
            self.g.Rpo[n - self.post + 1] = top.bb
            self.post++
            st.Pop()
            continue
        }

        /* descend into unvisited successors */
        if !self.visited.Has(succ.Id) {
            st.Push(self.enter(succ))
        }
    }
}

func (self *_DfsState) enter(bb *Block) *_DfsEntry {
    self.visited.Add(bb.Id)
    bb.PreOrder = self.pre
    self.pre++
    return &_DfsEntry{bb: bb, succ: UniqueSuccs(bb)}
}

func (self *_DfsState) root(bb *Block) {
    if bb != nil && !self.visited.Has(bb.Id) {
        self.walk(bb)
    }
}

// DfsReversePostorder numbers the blocks in DFS pre and post order and
// builds the reverse postorder array Rpo[1..N]. The search starts from the
// entry, then the OSR entry and the EH entries, then any block not reached
// yet. It returns the highest postorder number among the blocks reachable
// from those roots.
func (self *Graph) DfsReversePostorder() int {
    if err := self.Require(LevelNumbering); err != nil {
        panic(errors.Wrap(err, "dfs"))
    }

    /* initialize the state */
    n := self.Count
    self.Rpo = make([]*Block, n + 1)
    ds := &_DfsState {
        g       : self,
        pre     : 1,
        post    : 1,
        visited : NewBitSet(n + 1),
    }

    /* the method entry, then the OSR entry */
    ds.walk(self.First)
    ds.root(self.OsrEntry)

    /* the EH entries, filters first */
    if ds.pre != n + 1 {
        for _, e := range self.Eh.Clauses {
            ds.root(e.FilterBeg)
            ds.root(e.HndBeg)
        }
    }

    /* anything left is unreachable */
    highest := ds.post - 1
    if highest != n {
        for bb := self.First; bb != nil; bb = bb.next {
            ds.root(bb)
        }
    }

    /* every block must be visited exactly once */
    if ds.pre != n + 1 || ds.post != n + 1 {
        panic(errors.Wrap(ErrInconsistentGraph, "dfs visited %d of %d blocks", ds.pre - 1, n))
    }

    /* mark as valid */
    self.Cache.validate(LevelDfs, self.epoch)
    return highest
}
