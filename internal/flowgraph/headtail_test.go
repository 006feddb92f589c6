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

func TestHeadTail_HoistIntoJoin(t *testing.T) {
    b := NewBuilder()
    b.Add("E", &JCond{Taken: b.Ref("P2")}, jcc(2))
    b.Add("P1", &JAlways{To: b.Ref("J")}, stmt("(store 0 (cns 5))"))
    b.Add("P2", &JAlways{To: b.Ref("J")}, stmt("(store 1 (cns 2))"), stmt("(store 0 (cns 5))"))
    b.Add("J", &JReturn{}, stmt("(return (lcl 0))"))
    g := mustBuild(t, b)

    /* every way into J ends with the same store */
    require.True(t, g.HeadTailMerge(false))
    assert.Empty(t, b.Ref("P1").Stmts)
    assert.Equal(t, []string { "(store 1 (cns 2))" }, stmtsOf(b.Ref("P2")))
    assert.Equal(t, []string { "(store 0 (cns 5))", "(return (lcl 0))" }, stmtsOf(b.Ref("J")))
    assert.Equal(t, LevelNone, g.Cache.Level())
    require.NoError(t, Verify(g))

    /* nothing left to merge */
    assert.False(t, g.HeadTailMerge(false))
}

func TestHeadTail_CrossJump(t *testing.T) {
    b := NewBuilder()
    b.Add("E", &JSwitch{Table: []*Block { b.Ref("P1"), b.Ref("P2"), b.Ref("P3") }}, stmt("(switch (lcl 3))"))
    b.Add("P1", &JAlways{To: b.Ref("J")}, stmt("(store 0 (cns 5))"))
    b.Add("P2", &JAlways{To: b.Ref("J")}, stmt("(store 1 (cns 1))"), stmt("(store 0 (cns 5))"))
    b.Add("P3", &JAlways{To: b.Ref("J")}, stmt("(store 0 (cns 7))"))
    b.Add("J", &JReturn{}, stmt("(return (lcl 0))"))
    g := mustBuild(t, b)
    p1, p2, j := b.Ref("P1"), b.Ref("P2"), b.Ref("J")

    /* P2 jumps into P1 for the shared store */
    require.True(t, g.HeadTailMerge(false))
    assert.Equal(t, KindAlways, p2.Kind())
    assert.Equal(t, p1, p2.JumpDest())
    assert.Equal(t, []string { "(store 1 (cns 1))" }, stmtsOf(p2))
    assert.Equal(t, []string { "(store 0 (cns 5))" }, stmtsOf(p1))
    assert.Equal(t, 2, p1.RefCount())
    assert.Equal(t, 2, j.RefCount())
    assert.Nil(t, GetPredEdge(j, p2))
    require.NoError(t, Verify(g))
}

func TestHeadTail_CrossJumpSplits(t *testing.T) {
    b := NewBuilder()
    b.Add("E", &JSwitch{Table: []*Block { b.Ref("P1"), b.Ref("P2"), b.Ref("P3") }}, stmt("(switch (lcl 3))"))
    b.Add("P1", &JAlways{To: b.Ref("J")}, stmt("(store 2 (cns 4))"), stmt("(store 0 (cns 5))"))
    b.Add("P2", &JAlways{To: b.Ref("J")}, stmt("(store 1 (cns 1))"), stmt("(store 0 (cns 5))"))
    b.Add("P3", &JAlways{To: b.Ref("J")}, stmt("(store 0 (cns 7))"))
    b.Add("J", &JReturn{}, stmt("(return (lcl 0))"))
    g := mustBuild(t, b)
    p1, p2 := b.Ref("P1"), b.Ref("P2")

    /* the shared store is split off P1 into a new block */
    require.True(t, g.HeadTailMerge(false))
    tail := p1.Next()
    assert.Equal(t, tail, p1.JumpDest())
    assert.Equal(t, []string { "(store 0 (cns 5))" }, stmtsOf(tail))
    assert.Equal(t, []string { "(store 2 (cns 4))" }, stmtsOf(p1))
    assert.Equal(t, tail, p2.JumpDest())
    assert.Equal(t, 2, tail.RefCount())
    require.NoError(t, Verify(g))
}

func TestHeadTail_MergeReturns(t *testing.T) {
    b := NewBuilder()
    b.Add("E", &JCond{Taken: b.Ref("R2")}, jcc(1))
    b.Add("R1", &JReturn{}, stmt("(return (lcl 0))"))
    b.Add("R2", &JReturn{}, stmt("(return (lcl 0))"))
    g := mustBuild(t, b)
    r1, r2 := b.Ref("R1"), b.Ref("R2")

    /* R2 jumps back to R1 */
    require.True(t, g.HeadTailMerge(false))
    assert.Equal(t, KindAlways, r2.Kind())
    assert.Equal(t, r1, r2.JumpDest())
    assert.Empty(t, r2.Stmts)
    assert.Equal(t, KindReturn, r1.Kind())
    assert.Equal(t, 2, r1.RefCount())
    require.NoError(t, Verify(g))

    /* the empty jump is then threaded away, leaving a single return */
    changed, err := g.UpdateFlowGraph(false)
    require.NoError(t, err)
    assert.True(t, changed)
    assert.True(t, isRemoved(r2))
    assert.Equal(t, 1, g.Count)
    assert.Equal(t, KindReturn, g.First.Kind())
    assert.Equal(t, []string { "(return (lcl 0))" }, stmtsOf(g.First))
    require.NoError(t, Verify(g))
}

func TestHeadTail_HeadMerge(t *testing.T) {
    b := NewBuilder()
    b.Add("E", &JCond{Taken: b.Ref("B")}, jcc(2))
    b.Add("A", &JReturn{}, stmt("(store 0 (cns 1))"), stmt("(return (lcl 0))"))
    b.Add("B", &JReturn{}, stmt("(store 0 (cns 1))"), stmt("(return (lcl 1))"))
    g := mustBuild(t, b)

    /* the common store moves in front of the branch */
    require.True(t, g.HeadTailMerge(false))
    assert.Equal(t, []string { "(store 0 (cns 1))", "(jtrue (eq (lcl 2) (cns 0)))" }, stmtsOf(b.Ref("E")))
    assert.Equal(t, []string { "(return (lcl 0))" }, stmtsOf(b.Ref("A")))
    assert.Equal(t, []string { "(return (lcl 1))" }, stmtsOf(b.Ref("B")))
    require.NoError(t, Verify(g))
}

func TestHeadTail_HeadMergeInterference(t *testing.T) {
    b := NewBuilder()
    b.Add("E", &JCond{Taken: b.Ref("B")}, jcc(0))
    b.Add("A", &JReturn{}, stmt("(store 0 (cns 1))"), stmt("(return (lcl 0))"))
    b.Add("B", &JReturn{}, stmt("(store 0 (cns 1))"), stmt("(return (lcl 1))"))
    g := mustBuild(t, b)

    /* the branch reads the stored local */
    assert.False(t, g.HeadTailMerge(false))
    assert.Len(t, b.Ref("A").Stmts, 2)
}

func TestHeadTail_Disabled(t *testing.T) {
    b := NewBuilder()
    b.Add("E", &JCond{Taken: b.Ref("R2")}, jcc(1))
    b.Add("R1", &JReturn{}, stmt("(return (lcl 0))"))
    b.Add("R2", &JReturn{}, stmt("(return (lcl 0))"))
    g := mustBuild(t, b)
    g.Opts.EnableHeadTailMerge = false
    assert.False(t, g.HeadTailMerge(false))
    assert.Equal(t, KindReturn, b.Ref("R2").Kind())
}

func TestHeadTail_CanMoveFirstStatement(t *testing.T) {
    b := NewBuilder()
    b.Add("E", &JCond{Taken: b.Ref("X")}, stmt("(jtrue (eq (call 1) (cns 0)))"))
    b.Add("N", &JReturn{}, ret())
    b.Add("X", &JReturn{}, ret())
    g := mustBuild(t, b)
    g.Locals = ir.Locals { { Name: "a" }, { Name: "p", AddrExposed: true } }
    e := b.Ref("E")

    /* a call in the branch does not commute with memory effects */
    assert.True(t, g.CanMoveFirstStatementIntoPred(false, stmt("(store 0 (cns 1))"), e))
    assert.False(t, g.CanMoveFirstStatementIntoPred(false, stmt("(store 1 (cns 1))"), e))
    assert.False(t, g.CanMoveFirstStatementIntoPred(false, stmt("(storeind (lcl 0) (cns 1))"), e))
    assert.False(t, g.CanMoveFirstStatementIntoPred(false, stmt("(store 0 (ind (lcl 0)))"), e))

    /* inside a try, the call may throw past the store */
    e.TryIndex = 1
    assert.False(t, g.CanMoveFirstStatementIntoPred(false, stmt("(store 0 (cns 1))"), e))

    /* a plain branch lets anything through, unless early on it reads an exposed local */
    e.TryIndex = 0
    e.Stmts[0] = jcc(0)
    assert.True(t, g.CanMoveFirstStatementIntoPred(false, stmt("(store 2 (call 4))"), e))
    assert.True(t, g.CanMoveFirstStatementIntoPred(false, stmt("(store 1 (cns 1))"), e))
    e.Stmts[0] = stmt("(jtrue (eq (lcl 1) (cns 0)))")
    assert.True(t, g.CanMoveFirstStatementIntoPred(false, stmt("(store 2 (call 4))"), e))
    assert.False(t, g.CanMoveFirstStatementIntoPred(true, stmt("(store 2 (call 4))"), e))
}
