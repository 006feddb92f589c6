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

func TestLayout_ExpandRarelyRunBackwards(t *testing.T) {
    b := NewBuilder()
    b.Add("B0", &JAlways{To: b.Ref("B1")}, stmt("(store 0 (cns 1))"))
    b.Add("B1", &JCond{Taken: b.Ref("B3")}, jcc(1))
    b.Add("B2", &JReturn{}, stmt("(return (cns 1))")).SetRunRarely()
    b.Add("B3", &JReturn{}, stmt("(return (cns 2))")).SetRunRarely()
    g := mustBuild(t, b)

    /* both arms are rare, so is the branch and the block before it */
    require.True(t, g.ExpandRarelyRunBlocks())
    assert.True(t, g.First.IsRunRarely())
    assert.Equal(t, ZeroWeight, g.First.Weight)

    /* B0 and B1 got compacted on the way */
    assert.True(t, isRemoved(b.Ref("B1")))
    assert.Equal(t, KindCond, g.First.Kind())
    assert.Equal(t, []string { "B0", "B2", "B3" }, layoutOf(b, g))
    require.NoError(t, Verify(g))
}

func TestLayout_ExpandRarelyRunForwards(t *testing.T) {
    b := NewBuilder()
    b.Add("E", &JCond{Taken: b.Ref("R")}, jcc(0))
    b.Add("F", &JReturn{}, stmt("(return (cns 1))"))
    b.Add("R", &JAlways{To: b.Ref("S")}, stmt("(store 0 (call 9))")).SetRunRarely()
    b.Add("S", &JReturn{}, stmt("(return (lcl 0))"))
    g := mustBuild(t, b)

    /* S is only entered from a rare block */
    require.True(t, g.ExpandRarelyRunBlocks())
    assert.False(t, b.Ref("E").IsRunRarely())
    assert.True(t, isRemoved(b.Ref("S")))
    r := b.Ref("R")
    assert.True(t, r.IsRunRarely())
    assert.Equal(t, KindReturn, r.Kind())
    assert.Equal(t, []string { "(store 0 (call 9))", "(return (lcl 0))" }, stmtsOf(r))
    require.NoError(t, Verify(g))

    /* nothing more to find */
    assert.False(t, g.ExpandRarelyRunBlocks())
}

func buildJumpOverCond(t *testing.T) (*Builder, *Graph) {
    b := NewBuilder()
    b.Add("E", &JAlways{To: b.Ref("D")}, stmt("(store 1 (cns 0))"))
    b.Add("N", &JReturn{}, stmt("(return (cns 1))"))
    b.Add("D", &JCond{Taken: b.Ref("N")}, jcc(0))
    b.Add("Z", &JReturn{}, stmt("(return (cns 2))"))
    return b, mustBuild(t, b)
}

func TestLayout_OptimizeBranch(t *testing.T) {
    b, g := buildJumpOverCond(t)
    e, d := b.Ref("E"), b.Ref("D")

    /* E tests the reversed condition itself */
    require.True(t, g.OptimizeBranch(e))
    assert.Equal(t, KindCond, e.Kind())
    assert.Equal(t, b.Ref("Z"), e.JumpDest())
    assert.Equal(t, []string { "(store 1 (cns 0))", "(jtrue (ne (lcl 0) (cns 0)))" }, stmtsOf(e))
    assert.Equal(t, []string { "(jtrue (eq (lcl 0) (cns 0)))" }, stmtsOf(d))
    assert.Equal(t, 0, d.RefCount())
    assert.Equal(t, 2, b.Ref("N").RefCount())
    require.NoError(t, Verify(g))

    /* no longer an unconditional jump */
    assert.False(t, g.OptimizeBranch(e))
}

func TestLayout_OptimizeBranchTooExpensive(t *testing.T) {
    b, g := buildJumpOverCond(t)
    g.Opts.MaxDupCost = 1
    assert.False(t, g.OptimizeBranch(b.Ref("E")))

    /* a rare target buys more room */
    b.Ref("D").SetRunRarely()
    g.Opts.MaxDupCost = 2
    assert.True(t, g.OptimizeBranch(b.Ref("E")))
}

func TestLayout_ReorderWithoutProfile(t *testing.T) {
    b, g := buildJumpOverCond(t)
    changed, err := g.ReorderBlocks(false)
    require.NoError(t, err)
    assert.True(t, changed)

    /* nothing moved, but the jump over D was optimized */
    assert.Equal(t, []string { "E", "N", "D", "Z" }, layoutOf(b, g))
    assert.Equal(t, KindCond, b.Ref("E").Kind())
    assert.Equal(t, LevelNone, g.Cache.Level())
    require.NoError(t, Verify(g))
}

func TestLayout_MoveRareBlock(t *testing.T) {
    b := NewBuilder()
    b.Add("E", &JCond{Taken: b.Ref("H")}, jcc(0))
    b.Add("R", &JThrow{}, stmt("(call 1)")).SetRunRarely()
    b.Add("H", &JReturn{}, ret())
    g := mustBuild(t, b)

    /* without profile data nothing moves */
    changed, err := g.ReorderBlocks(false)
    require.NoError(t, err)
    assert.False(t, changed)
    assert.Equal(t, []string { "E", "R", "H" }, layoutOf(b, g))

    /* the rare block goes to the end, E falls into H */
    moved := MovedCount
    changed, err = g.ReorderBlocks(true)
    require.NoError(t, err)
    assert.True(t, changed)
    assert.Greater(t, MovedCount, moved)
    e := b.Ref("E")
    assert.Equal(t, []string { "E", "H", "R" }, layoutOf(b, g))
    assert.Equal(t, b.Ref("R"), e.JumpDest())
    assert.Equal(t, "(jtrue (ne (lcl 0) (cns 0)))", e.LastStmt().String())
    require.NoError(t, Verify(g))
}

func TestLayout_ConnectFallThrough(t *testing.T) {
    b := NewBuilder()
    b.Add("E", &JCond{Taken: b.Ref("X")}, jcc(0))
    b.Add("A", &JReturn{}, stmt("(return (cns 1))"))
    b.Add("X", &JReturn{}, stmt("(return (cns 2))"))
    g := mustBuild(t, b)
    e, a := b.Ref("E"), b.Ref("A")

    /* move A away, E now needs a jump to it */
    g.MoveBlocksAfter(a, a, b.Ref("X"))
    jmp := g.ConnectFallThrough(e, a)
    require.NotNil(t, jmp)
    assert.Equal(t, jmp, e.Next())
    assert.Equal(t, a, jmp.JumpDest())
    assert.Nil(t, GetPredEdge(a, e))
    assert.Equal(t, 1, GetPredEdge(a, jmp).Dup)
    assert.Equal(t, 1, GetPredEdge(jmp, e).Dup)
    require.NoError(t, Verify(g))

    /* already connected */
    assert.Nil(t, g.ConnectFallThrough(e, jmp))
    assert.Nil(t, g.ConnectFallThrough(a, nil))
}

func TestLayout_OptimizeSwitchJumps(t *testing.T) {
    b := NewBuilder()
    b.Add("S", &JSwitch {
        Table            : []*Block { b.Ref("A"), b.Ref("B"), b.Ref("C") },
        HasDominant      : true,
        Dominant         : 1,
        DominantFraction : 0.75,
    }, stmt("(switch (add (lcl 0) (cns 1)))"))
    b.Add("A", &JReturn{}, stmt("(return (cns 1))"))
    b.Add("B", &JReturn{}, stmt("(return (cns 2))"))
    b.Add("C", &JReturn{}, stmt("(return (cns 3))"))
    g := mustBuild(t, b)
    g.HasProfile = true
    g.Locals = ir.Locals { { Name: "x" } }
    s, bb := b.Ref("S"), b.Ref("B")
    s.SetProfileWeight(1000)

    /* the dominant case is tested first */
    require.True(t, g.OptimizeSwitchJumps())
    assert.Equal(t, KindCond, s.Kind())
    assert.Equal(t, bb, s.JumpDest())
    assert.Equal(t, []string { "(store 1 (add (lcl 0) (cns 1)))", "(jtrue (eq (lcl 1) (cns 1)))" }, stmtsOf(s))
    assert.Equal(t, Weight(750), GetPredEdge(bb, s).WeightMin)

    /* the switch moved into a new block */
    sw := s.Next()
    require.Equal(t, KindSwitch, sw.Kind())
    assert.Equal(t, []string { "(switch (lcl 1))" }, stmtsOf(sw))
    assert.Equal(t, Weight(250), sw.Weight)
    assert.False(t, sw.Jump.(*JSwitch).HasDominant)
    assert.Equal(t, ZeroWeight, GetPredEdge(bb, sw).WeightMax)
    require.NoError(t, Verify(g))

    /* done once */
    assert.False(t, g.OptimizeSwitchJumps())
}
