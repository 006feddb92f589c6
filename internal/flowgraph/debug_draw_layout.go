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

    `github.com/ajstarks/svgo`
)

const (
    _LayoutRowH   = 28
    _LayoutBoxW   = 360
    _LayoutMargin = 40
    _LayoutArcW   = 12
)

// DrawLayout draws the block order as an SVG: one row per block, shaded by
// temperature, with the jumps as arcs on the right.
func DrawLayout(w io.Writer, g *Graph) {
    row := make(map[*Block]int, g.Count)
    blocks := g.Blocks()
    for i, bb := range blocks {
        row[bb] = i
    }

    /* the canvas */
    p := svg.New(w)
    p.Start(_LayoutBoxW + _LayoutMargin * 3 + len(blocks) * _LayoutArcW, len(blocks) * _LayoutRowH + _LayoutMargin * 2)
    p.Rect(0, 0, _LayoutBoxW + _LayoutMargin * 3 + len(blocks) * _LayoutArcW, len(blocks) * _LayoutRowH + _LayoutMargin * 2, "fill:white")

    /* the blocks */
    for i, bb := range blocks {
        y := _LayoutMargin + i * _LayoutRowH
        p.Rect(_LayoutMargin, y, _LayoutBoxW, _LayoutRowH - 4, "stroke:black;fill:" + layoutColor(g, bb))
        p.Text(_LayoutMargin + 8, y + 18, fmt.Sprintf("%v %v w=%g", bb, bb.Kind(), bb.Weight), "fill:black;font-size:14px;font-family:monospace")

        /* EH regions */
        if bb.HasTryIndex() || bb.HasHndIndex() {
            p.Text(_LayoutMargin + _LayoutBoxW - 8, y + 18, fmt.Sprintf("try=%d hnd=%d", bb.TryIndex, bb.HndIndex), "fill:gray;font-size:12px;font-family:monospace;text-anchor:end")
        }
    }

    /* the jumps */
    x0 := _LayoutMargin + _LayoutBoxW
    for i, bb := range blocks {
        for k, s := range UniqueSuccs(bb) {
            j, ok := row[s]
            if !ok || (j == i + 1 && bb.Kind() == KindCond && s != bb.JumpDest()) {
                continue
            }

            /* an arc from the source row to the target row */
            x := x0 + ((i + k) % len(blocks) + 1) * _LayoutArcW
            y1 := _LayoutMargin + i * _LayoutRowH + _LayoutRowH / 2
            y2 := _LayoutMargin + j * _LayoutRowH + _LayoutRowH / 2
            p.Polyline([]int { x0, x, x, x0 }, []int { y1, y1, y2, y2 }, "fill:none;stroke:steelblue;stroke-width:1.5")
            p.Circle(x0 + 3, y2, 3, "fill:steelblue")
        }
    }
    p.End()
}

func layoutColor(g *Graph, bb *Block) string {
    switch {
        case bb.IsRunRarely()        : return "lightgray"
        case g.IsCold(bb)            : return "lightblue"
        case bb.HasProfileWeight()   : return "moccasin"
        default                      : return "white"
    }
}
