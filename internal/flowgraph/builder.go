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
    `tlog.app/go/errors`
)

// Builder assembles a graph from named blocks. Jumps may refer to blocks
// that are added later, Build links everything and derives the pred lists,
// the EH membership and the implicit references.
type Builder struct {
    g     *Graph
    names map[string]*Block
    added map[*Block]bool
    order []string
    eh    []_EhDecl
}

type _EhDecl struct {
    kind    EhKind
    tryBeg  string
    tryLast string
    hndBeg  string
    hndLast string
    filter  string
}

func NewBuilder() *Builder {
    return &Builder {
        g     : NewGraph(),
        names : make(map[string]*Block),
        added : make(map[*Block]bool),
    }
}

// Graph returns the graph under construction.
func (self *Builder) Graph() *Graph {
    return self.g
}

// Ref returns the block with the given name, allocating it if needed.
func (self *Builder) Ref(name string) *Block {
    if bb, ok := self.names[name]; ok {
        return bb
    }

    /* allocate a placeholder */
    bb := self.g.NewBlock(nil)
    self.names[name] = bb
    return bb
}

// Add appends the named block to the layout.
func (self *Builder) Add(name string, jmp Jump, stmts ...*ir.Node) *Block {
    bb := self.Ref(name)
    if self.added[bb] {
        panic("flowgraph: duplicated block " + name)
    }

    /* fill the block */
    bb.Jump = jmp
    bb.Stmts = stmts
    bb.Flags |= BBF_IMPORTED
    self.added[bb] = true
    self.order = append(self.order, name)
    self.g.Append(bb)
    return bb
}

// Try declares an EH clause. Clauses must be declared innermost first, an
// empty filter means the clause has none.
func (self *Builder) Try(kind EhKind, tryBeg string, tryLast string, hndBeg string, hndLast string, filter string) {
    self.eh = append(self.eh, _EhDecl {
        kind    : kind,
        tryBeg  : tryBeg,
        tryLast : tryLast,
        hndBeg  : hndBeg,
        hndLast : hndLast,
        filter  : filter,
    })
}

// Name returns the name bb was declared with.
func (self *Builder) Name(bb *Block) string {
    for k, v := range self.names {
        if v == bb {
            return k
        }
    }
    return bb.String()
}

func (self *Builder) lookup(name string) (*Block, error) {
    if bb, ok := self.names[name]; !ok || !self.added[bb] {
        return nil, errors.Wrap(ErrInconsistentGraph, "undefined block %q", name)
    } else {
        return bb, nil
    }
}

// Build finishes the graph.
func (self *Builder) Build() (*Graph, error) {
    g := self.g
    if g.First == nil {
        return nil, errors.Wrap(ErrInconsistentGraph, "no blocks")
    }

    /* every referenced block must be defined */
    for name, bb := range self.names {
        if !self.added[bb] {
            return nil, errors.Wrap(ErrInconsistentGraph, "undefined block %q", name)
        }
    }

    /* the EH table */
    if err := self.buildEh(); err != nil {
        return nil, err
    }

    /* pair tails stay unconditional jumps */
    for bb := g.First; bb != nil; bb = bb.next {
        if bb.IsCallAlwaysPair() {
            bb.next.Flags |= BBF_KEEP_ALWAYS
        }
    }

    /* the finally returns go to every continuation */
    self.buildFinallyRets()

    /* derive the pred lists */
    g.Renumber()
    for bb := g.First; bb != nil; bb = bb.next {
        for _, s := range Successors(bb) {
            AddRefPred(s, bb)
        }
    }

    /* the entry is referenced by the caller */
    g.First.ImplicitRefs = 1
    return g, Verify(g)
}

func (self *Builder) buildEh() error {
    g := self.g
    for _, d := range self.eh {
        var err error
        var e EhClause

        /* resolve the bounds */
        e.Kind = d.kind
        if e.TryBeg, err = self.lookup(d.tryBeg); err != nil {
            return err
        }
        if e.TryLast, err = self.lookup(d.tryLast); err != nil {
            return err
        }
        if e.HndBeg, err = self.lookup(d.hndBeg); err != nil {
            return err
        }
        if e.HndLast, err = self.lookup(d.hndLast); err != nil {
            return err
        }

        /* the optional filter */
        if d.filter != "" {
            if e.FilterBeg, err = self.lookup(d.filter); err != nil {
                return err
            }
        }

        /* add the clause */
        g.Eh.Clauses = append(g.Eh.Clauses, &e)
    }

    /* assign the regions, outermost first so inner ones win */
    for i := len(g.Eh.Clauses) - 1; i >= 0; i-- {
        e := g.Eh.Clauses[i]
        if err := markRange(e.TryBeg, e.TryLast, func(bb *Block) { bb.TryIndex = i + 1 }); err != nil {
            return errors.Wrap(err, "try of clause %d", i + 1)
        }

        /* the filter runs up to the handler */
        beg := e.HndBeg
        if e.FilterBeg != nil {
            beg = e.FilterBeg
        }

        /* the handler */
        if err := markRange(beg, e.HndLast, func(bb *Block) { bb.HndIndex = i + 1 }); err != nil {
            return errors.Wrap(err, "handler of clause %d", i + 1)
        }
    }

    /* enclosing clauses, and the protected entries */
    for i, e := range g.Eh.Clauses {
        e.TryBeg.Flags |= BBF_DONT_REMOVE
        e.HndBeg.Flags |= BBF_DONT_REMOVE
        e.HndBeg.ImplicitRefs = 1

        /* the filter is entered by the runtime too */
        if e.FilterBeg != nil {
            e.FilterBeg.Flags |= BBF_DONT_REMOVE
            e.FilterBeg.ImplicitRefs = 1
        }

        /* the closest clause whose try covers this one */
        for j := i + 1; j < len(g.Eh.Clauses); j++ {
            if g.Eh.InTryRange(j + 1, e.TryBeg) && g.Eh.InTryRange(j + 1, e.TryLast) {
                e.Enclosing = j + 1
                break
            }
        }
    }
    return nil
}

func markRange(beg *Block, last *Block, fn func(*Block)) error {
    for p := beg; p != nil; p = p.next {
        if fn(p); p == last {
            return nil
        }
    }
    return errors.Wrap(ErrInconsistentGraph, "%v does not come before %v", beg, last)
}

func (self *Builder) buildFinallyRets() {
    g := self.g
    for bb := g.First; bb != nil; bb = bb.next {
        j, ok := bb.Jump.(*JEhFinallyRet)
        if !ok || j.Succs != nil {
            continue
        }

        /* the finally it returns from */
        e := g.Eh.Get(bb.HndIndex)
        if e == nil || e.Kind != EH_finally {
            continue
        }

        /* every continuation of a call to it */
        for p := g.First; p != nil; p = p.next {
            if p.IsCallAlwaysPair() && p.JumpDest() == e.HndBeg {
                j.Succs = append(j.Succs, p.next)
            }
        }
    }
}
