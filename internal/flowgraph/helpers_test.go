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
    `testing`

    `github.com/cloudwego/flowopt/internal/ir`
    `github.com/stretchr/testify/require`
)

func jcc(lcl int) *ir.Node {
    return ir.MustParse(fmt.Sprintf("(jtrue (eq (lcl %d) (cns 0)))", lcl))
}

func stmt(src string) *ir.Node {
    return ir.MustParse(src)
}

func ret() *ir.Node {
    return ir.MustParse("(return)")
}

func mustBuild(t *testing.T, b *Builder) *Graph {
    g, err := b.Build()
    require.NoError(t, err)
    return g
}

// layoutOf lists the block names in layout order.
func layoutOf(b *Builder, g *Graph) []string {
    var ret []string
    for bb := g.First; bb != nil; bb = bb.next {
        ret = append(ret, b.Name(bb))
    }
    return ret
}

func stmtsOf(bb *Block) []string {
    ret := make([]string, 0, len(bb.Stmts))
    for _, p := range bb.Stmts {
        ret = append(ret, p.String())
    }
    return ret
}

func isRemoved(bb *Block) bool {
    return bb.Flags & BBF_REMOVED != 0
}
