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

// IntersectDom finds the nearest common dominator of a and b by walking
// both idom chains by postorder number.
func IntersectDom(a *Block, b *Block) *Block {
    for a != b {
        for a != nil && b != nil && a.PostOrder < b.PostOrder {
            a = a.Idom
        }
        for a != nil && b != nil && b.PostOrder < a.PostOrder {
            b = b.Idom
        }
        if a == nil || b == nil {
            return nil
        }
    }
    return a
}

// ComputeDoms computes the immediate dominators with the Cooper-Harvey-Kennedy
// iteration over the reverse postorder, then builds and numbers the dominator
// tree. All flow graph roots hang off a synthetic root block.
func (self *Graph) ComputeDoms() error {
    if err := self.Require(LevelReach); err != nil {
        return errors.Wrap(err, "dominators")
    }

    /* the synthetic root dominates itself */
    n := self.Count
    root := &Block{Id: 0, PostOrder: n + 1}
    root.Idom = root

    /* reset the results of any previous run */
    done := NewBitSet(n + 1)
    done.Add(root.Id)
    for bb := self.First; bb != nil; bb = bb.next {
        bb.Idom = nil
        bb.DomChild = nil
        bb.DomSibling = nil
    }

    /* the entry and blocks without predecessors hang off the root */
    for bb := self.First; bb != nil; bb = bb.next {
        if bb == self.First || len(bb.Preds) == 0 {
            bb.Idom = root
            done.Add(bb.Id)
        }
    }

    /* so do the EH entries */
    for _, e := range self.Eh.Clauses {
        for _, bb := range []*Block { e.FilterBeg, e.HndBeg } {
            if bb != nil {
                bb.Idom = root
                done.Add(bb.Id)
            }
        }
    }

    /* iterate to a fixpoint */
    for rounds := 1; ; rounds++ {
        if rounds > self.Opts.MaxDomRounds {
            return errors.Wrap(ErrIterationLimit, "dominators after %d rounds", rounds - 1)
        }

        /* one pass in reverse postorder */
        changed := false
        for i := 1; i <= n; i++ {
            var idom *Block
            bb := self.Rpo[i]

            /* the roots are already final */
            if bb.Idom == root {
                continue
            }

            /* start from the first processed predecessor */
            for _, e := range bb.Preds {
                if done.Has(e.Source.Id) {
                    idom = e.Source
                    break
                }
            }

            /* only reached from an unreachable cycle */
            if idom == nil {
                idom = root
            }

            /* intersect with every other predecessor that has one */
            for _, e := range bb.Preds {
                if p := e.Source; p != idom && p.Idom != nil && idom != root {
                    if idom = IntersectDom(p, idom); idom == nil {
                        idom = root
                    }
                }
            }

            /* update the dominator */
            if bb.Idom != idom {
                bb.Idom = idom
                changed = true
            }

            /* mark as processed */
            done.Add(bb.Id)
        }

        /* stop when nothing changed */
        if !changed {
            break
        }
    }

    /* build the tree, then number it */
    self.markExceptionalEntries(root)
    self.buildDomTree(root)
    self.numberDomTree()

    /* mark as valid */
    self.Cache.validate(LevelDoms, self.epoch)
    return nil
}

// markExceptionalEntries flags the blocks dominated by a handler or filter
// entry. Nothing is flagged when the method has a single entry.
func (self *Graph) markExceptionalEntries(root *Block) {
    for bb := self.First; bb != nil; bb = bb.next {
        bb.Flags &^= BBF_DOM_BY_EXCEPTIONAL_ENTRY
    }

    /* single entry, nothing to do */
    if self.EnterBlocks == nil || self.EnterBlocks.Len() <= 1 {
        return
    }

    /* dominators come first in reverse postorder */
    for i := 1; i <= self.Count; i++ {
        bb := self.Rpo[i]
        if self.EnterBlocks.Has(bb.Id) {
            if bb != self.First {
                bb.Flags |= BBF_DOM_BY_EXCEPTIONAL_ENTRY
            }
        } else if bb.Idom != nil && bb.Idom != root {
            bb.Flags |= bb.Idom.Flags & BBF_DOM_BY_EXCEPTIONAL_ENTRY
        }
    }
}

// buildDomTree links the children of every block. The entry is the first
// tree root, the other roots are chained as its siblings.
func (self *Graph) buildDomTree(root *Block) {
    last := self.First
    self.First.Idom = nil

    /* children are prepended, roots are appended */
    for bb := self.First.next; bb != nil; bb = bb.next {
        if p := bb.Idom; p != root {
            bb.DomSibling = p.DomChild
            p.DomChild = bb
        } else {
            bb.Idom = nil
            last.DomSibling = bb
            last = bb
        }
    }
}

type _DomFrame struct {
    bb    *Block
    child *Block
}

// numberDomTree assigns pre and post order numbers to the dominator forest,
// so that dominance becomes an interval check.
func (self *Graph) numberDomTree() {
    pre := 1
    post := 1
    st := lane.NewStack()

    /* walk every tree of the forest */
    for r := self.First; r != nil; r = r.DomSibling {
        r.DomPre = pre
        pre++
        st.Push(&_DomFrame{bb: r, child: r.DomChild})

        /* iterative DFS over the tree */
        for !st.Empty() {
            fr := st.Head().(*_DomFrame)
            ch := fr.child

            /* all children done */
            if ch == nil {
                fr.bb.DomPost = post
                post++
                st.Pop()
                continue
            }

            /* enter the next child */
            fr.child = ch.DomSibling
            ch.DomPre = pre
            pre++
            st.Push(&_DomFrame{bb: ch, child: ch.DomChild})
        }
    }
}

// DominatorSet returns the set of blocks dominating bb, bb included.
func (self *Graph) DominatorSet(bb *Block) *BitSet {
    if err := self.Require(LevelDoms); err != nil {
        panic(errors.Wrap(err, "dominator set"))
    }

    /* walk up the idom chain */
    ret := NewBitSet(self.Count + 1)
    for p := bb; p != nil; p = p.Idom {
        ret.Add(p.Id)
    }
    return ret
}
