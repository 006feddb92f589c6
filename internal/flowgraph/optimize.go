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
    `context`
    `fmt`

    `tlog.app/go/errors`
    `tlog.app/go/tlog`
)

// Status tells whether a pass changed the flow graph.
type Status uint8

const (
    ModifiedNothing Status = iota
    ModifiedEverything
)

func (self Status) String() string {
    switch self {
        case ModifiedNothing    : return "modified nothing"
        case ModifiedEverything : return "modified everything"
        default                 : return fmt.Sprintf("status(%d)", uint8(self))
    }
}

func statusOf(changed bool) Status {
    if changed {
        return ModifiedEverything
    } else {
        return ModifiedNothing
    }
}

type Pass interface {
    Apply(*Graph) (bool, error)
}

type PassDescriptor struct {
    Pass Pass
    Name string
}

type (
    Reachability  struct{}
    Simplify      struct { TailDup bool }
    Layout        struct{}
    DeadBlocks    struct{}
    HeadTailMerge struct { Early bool }
)

func (Reachability) Apply(g *Graph) (bool, error) {
    return g.ComputeReachability()
}

func (self Simplify) Apply(g *Graph) (bool, error) {
    return g.UpdateFlowGraph(self.TailDup && g.Opts.EnableTailDup)
}

func (Layout) Apply(g *Graph) (bool, error) {
    return g.ReorderBlocks(g.Opts.UseProfile)
}

func (DeadBlocks) Apply(g *Graph) (bool, error) {
    return g.RemoveDeadBlocks()
}

func (self HeadTailMerge) Apply(g *Graph) (bool, error) {
    return g.HeadTailMerge(self.Early), nil
}

var Passes = [...]PassDescriptor {
    { Name: "Reachability"             , Pass: new(Reachability) },
    { Name: "Flow Graph Simplification", Pass: &Simplify { TailDup: false } },
    { Name: "Block Layout"             , Pass: new(Layout) },
    { Name: "Tail Duplication"         , Pass: &Simplify { TailDup: true } },
    { Name: "Dead Block Removal"       , Pass: new(DeadBlocks) },
    { Name: "Head and Tail Merging"    , Pass: &HeadTailMerge { Early: false } },
}

// PassResult records the outcome of one pass.
type PassResult struct {
    Name   string
    Status Status
}

// Optimize runs the flow graph passes in order. A pass that exceeds its
// iteration cap disables further optimization of the graph instead of
// failing: the graph is left as the pass left it, which is valid.
func Optimize(ctx context.Context, g *Graph) (res []PassResult, err error) {
    tr, ctx := tlog.SpawnFromContextAndWrap(ctx, "flowgraph: optimize", "blocks", g.Count)
    defer tr.Finish("err", &err)

    /* nothing to do */
    if g.First == nil || g.OptimizationDisabled {
        return nil, nil
    }

    /* run every pass */
    count(&GraphCount)
    for _, p := range Passes {
        if err = ctx.Err(); err != nil {
            return
        }

        /* apply the pass */
        st, perr := runPass(ctx, g, p)
        if errors.Is(perr, ErrIterationLimit) {
            count(&DisabledCount)
            g.OptimizationDisabled = true
            tr.Printw("optimization disabled", "pass", p.Name, "reason", perr)
            break
        }

        /* real failures */
        if perr != nil {
            return res, errors.Wrap(perr, "pass %s", p.Name)
        }

        /* check the graph after each pass */
        res = append(res, PassResult { Name: p.Name, Status: st })
        if g.Opts.Verify {
            if err = Verify(g); err != nil {
                return res, errors.Wrap(err, "after pass %s", p.Name)
            }
        }

        /* and the analyses, while they are still valid */
        if g.Opts.Verify && g.Require(LevelDoms) == nil {
            if err = VerifyAnalyses(g); err != nil {
                return res, errors.Wrap(err, "analyses after pass %s", p.Name)
            }
        }
    }
    return
}

func runPass(ctx context.Context, g *Graph, p PassDescriptor) (st Status, err error) {
    tr, _ := tlog.SpawnFromContextAndWrap(ctx, "flowgraph: pass", "name", p.Name)
    defer tr.Finish("err", &err)

    /* helpers log into the pass span */
    span := g.Span
    g.Span = tr
    defer func() { g.Span = span }()

    /* apply the pass */
    changed, err := p.Pass.Apply(g)
    st = statusOf(changed)
    tr.Printw("pass done", "status", st, "blocks", g.Count)

    /* dump the graph if asked to */
    if tr.If("dump_graph") {
        tr.Printw("graph", "dump", Dump(g))
    }
    return
}
