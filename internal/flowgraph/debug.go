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
    `io`
    `strings`

    `github.com/davecgh/go-spew/spew`
)

type _BlockDump struct {
    Id      int
    Kind    string
    Succs   []int
    Preds   []string
    Weight  Weight
    Flags   string
    Try     int
    Hnd     int
    Idom    int
    Stmts   []string
}

func dumpBlock(bb *Block) _BlockDump {
    ret := _BlockDump {
        Id     : bb.Id,
        Kind   : bb.Kind().String(),
        Weight : bb.Weight,
        Flags  : bb.Flags.String(),
        Try    : bb.TryIndex,
        Hnd    : bb.HndIndex,
    }

    /* the dominator */
    if bb.Idom != nil {
        ret.Idom = bb.Idom.Id
    }

    /* the edges */
    for _, s := range Successors(bb) {
        ret.Succs = append(ret.Succs, s.Id)
    }
    for _, e := range bb.Preds {
        ret.Preds = append(ret.Preds, fmt.Sprintf("%v*%d", e.Source, e.Dup))
    }

    /* the statements */
    for _, p := range bb.Stmts {
        ret.Stmts = append(ret.Stmts, p.String())
    }
    return ret
}

var _DumpConfig = spew.ConfigState {
    Indent                  : "    ",
    DisablePointerAddresses : true,
    DisableCapacities       : true,
    SortKeys                : true,
}

// Dump renders the linked blocks for debugging.
func Dump(g *Graph) string {
    ret := make([]_BlockDump, 0, g.Count)
    for bb := g.First; bb != nil; bb = bb.next {
        ret = append(ret, dumpBlock(bb))
    }
    return _DumpConfig.Sdump(ret)
}

func dotLabel(bb *Block) string {
    sb := strings.Builder{}
    fmt.Fprintf(&sb, "%v %v w=%g", bb, bb.Kind(), bb.Weight)

    /* the statements */
    for _, p := range bb.Stmts {
        sb.WriteString(`\l`)
        sb.WriteString(strings.ReplaceAll(p.String(), `"`, `\"`))
    }
    sb.WriteString(`\l`)
    return sb.String()
}

// WriteDot writes the graph in Graphviz format. Fall-through edges are
// dashed, rarely run blocks are grey.
func WriteDot(w io.Writer, g *Graph) error {
    sb := strings.Builder{}
    sb.WriteString("digraph flowgraph {\n    node [shape=box, fontname=monospace];\n")

    /* the blocks */
    for bb := g.First; bb != nil; bb = bb.next {
        style := ""
        if bb.IsRunRarely() {
            style = ", style=filled, fillcolor=lightgray"
        }
        fmt.Fprintf(&sb, "    bb%d [label=\"%s\"%s];\n", bb.Id, dotLabel(bb), style)
    }

    /* the edges */
    for bb := g.First; bb != nil; bb = bb.next {
        for _, s := range UniqueSuccs(bb) {
            if bb.Kind() == KindCond && s == bb.next && s != bb.JumpDest() {
                fmt.Fprintf(&sb, "    bb%d -> bb%d [style=dashed];\n", bb.Id, s.Id)
            } else {
                fmt.Fprintf(&sb, "    bb%d -> bb%d;\n", bb.Id, s.Id)
            }
        }
    }

    /* done */
    sb.WriteString("}\n")
    _, err := io.WriteString(w, sb.String())
    return err
}
