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
    `testing`

    `github.com/cloudwego/flowopt/internal/ir`
    `github.com/stretchr/testify/assert`
    `github.com/stretchr/testify/require`
)

func buildTailDup(t *testing.T, store string) (*Builder, *Graph) {
    b := NewBuilder()
    b.Add("E", &JCond{Taken: b.Ref("P")}, jcc(5))
    b.Add("F", &JAlways{To: b.Ref("T")}, stmt("(store 0 (cns 4))"))
    b.Add("P", &JAlways{To: b.Ref("T")}, stmt(store))
    b.Add("T", &JCond{Taken: b.Ref("X")}, stmt("(jtrue (eq (lcl 0) (cns 3)))"))
    b.Add("Y", &JReturn{}, stmt("(return (cns 1))"))
    b.Add("X", &JReturn{}, stmt("(return (cns 2))"))
    return b, mustBuild(t, b)
}

func TestTailDup_SimpleCond(t *testing.T) {
    b, g := buildTailDup(t, "(store 0 (cns 3))")
    p, tb := b.Ref("P"), b.Ref("T")
    lcl, ok := g.BlockIsGoodTailDuplicationCandidate(tb)
    require.True(t, ok)
    assert.Equal(t, 0, lcl)

    /* P tests the constant it just stored */
    require.True(t, g.OptimizeUncondBranchToSimpleCond(p, tb))
    assert.Equal(t, KindCond, p.Kind())
    assert.Equal(t, b.Ref("X"), p.JumpDest())
    assert.Equal(t, []string { "(store 0 (cns 3))", "(jtrue (eq (lcl 0) (cns 3)))" }, stmtsOf(p))
    assert.NotSame(t, tb.Stmts[0], p.Stmts[1])
    assert.Equal(t, 1, tb.RefCount())

    /* a new block takes the fall-through of T */
    nb := p.Next()
    assert.Equal(t, KindAlways, nb.Kind())
    assert.Equal(t, b.Ref("Y"), nb.JumpDest())
    assert.Equal(t, 2, b.Ref("Y").RefCount())
    require.NoError(t, Verify(g))
}

func TestTailDup_Rejected(t *testing.T) {
    for name, fn := range map[string]func(*Builder, *Graph) {
        "exposed" : func(b *Builder, g *Graph) { g.Locals = ir.Locals { { Name: "v", AddrExposed: true } } },
        "rare"    : func(b *Builder, g *Graph) { b.Ref("P").SetRunRarely() },
        "scratch" : func(b *Builder, g *Graph) { g.Scratch = b.Ref("P") },
        "region"  : func(b *Builder, g *Graph) { b.Ref("P").TryIndex = 1 },
    } {
        t.Run(name, func(t *testing.T) {
            b, g := buildTailDup(t, "(store 0 (cns 3))")
            fn(b, g)
            assert.False(t, g.OptimizeUncondBranchToSimpleCond(b.Ref("P"), b.Ref("T")))
            assert.Equal(t, KindAlways, b.Ref("P").Kind())
        })
    }

    /* storing something the test cannot fold */
    b, g := buildTailDup(t, "(store 0 (lcl 1))")
    assert.False(t, g.OptimizeUncondBranchToSimpleCond(b.Ref("P"), b.Ref("T")))
    assert.True(t, g.BlockEndFavorsTailDuplication(b.Ref("F"), 0))
    assert.False(t, g.BlockEndFavorsTailDuplication(b.Ref("F"), 1))
}

func TestTailDup_Candidates(t *testing.T) {
    b := NewBuilder()
    b.Add("E", &JCond{Taken: b.Ref("T")}, jcc(5))
    b.Add("F", &JAlways{To: b.Ref("T")})
    b.Add("T", &JCond{Taken: b.Ref("X")}, stmt("(store 0 (add (lcl 0) (cns 1)))"), stmt("(jtrue (lt (cast (lcl 0)) (cns 8)))"))
    b.Add("X", &JReturn{}, ret())
    g := mustBuild(t, b)

    /* a local update feeding the test is allowed */
    lcl, ok := g.BlockIsGoodTailDuplicationCandidate(b.Ref("T"))
    assert.True(t, ok)
    assert.Equal(t, 0, lcl)

    /* but not an update of another local */
    b.Ref("T").Stmts[0] = stmt("(store 1 (add (lcl 0) (cns 1)))")
    _, ok = g.BlockIsGoodTailDuplicationCandidate(b.Ref("T"))
    assert.False(t, ok)

    /* nor a test of two different locals */
    b.Ref("T").Stmts = b.Ref("T").Stmts[1:]
    b.Ref("T").Stmts[0] = stmt("(jtrue (lt (lcl 0) (lcl 1)))")
    _, ok = g.BlockIsGoodTailDuplicationCandidate(b.Ref("T"))
    assert.False(t, ok)
}

func TestTailDup_UpdateFlowGraph(t *testing.T) {
    b, g := buildTailDup(t, "(store 0 (cns 3))")
    changed, err := g.UpdateFlowGraph(true)
    require.NoError(t, err)
    assert.True(t, changed)

    /* F took a copy of T, then P absorbed T */
    f, p := b.Ref("F"), b.Ref("P")
    assert.Equal(t, KindCond, f.Kind())
    assert.Equal(t, b.Ref("X"), f.JumpDest())
    assert.Equal(t, KindCond, p.Kind())
    assert.Equal(t, b.Ref("X"), p.JumpDest())
    assert.True(t, isRemoved(b.Ref("T")))
    assert.Equal(t, 6, g.Count)
    require.NoError(t, Verify(g))

    /* without tail duplication nothing applies */
    _, g = buildTailDup(t, "(store 0 (cns 3))")
    changed, err = g.UpdateFlowGraph(false)
    require.NoError(t, err)
    assert.False(t, changed)
}
