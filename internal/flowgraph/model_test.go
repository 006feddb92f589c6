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

    `github.com/stretchr/testify/assert`
    `github.com/stretchr/testify/require`
)

func TestModel_BitSet(t *testing.T) {
    a := NewBitSet(4)
    a.Add(1)
    a.Add(130)
    assert.True(t, a.Has(130))
    assert.False(t, a.Has(2))
    assert.False(t, a.Has(1000))
    assert.Equal(t, 2, a.Len())

    /* unions report growth */
    b := NewBitSet(0)
    b.Add(3)
    assert.True(t, b.UnionWith(a))
    assert.False(t, b.UnionWith(a))
    assert.Equal(t, []int { 1, 3, 130 }, b.Slice())
    assert.True(t, a.Intersects(b))

    /* clones are independent */
    c := b.Clone()
    c.Remove(3)
    assert.True(t, b.Has(3))
    c.Clear()
    assert.True(t, c.IsEmpty())
    assert.False(t, a.Intersects(c))
}

func TestModel_SwitchDuplicates(t *testing.T) {
    b := NewBuilder()
    b.Add("E", &JSwitch{Table: []*Block { b.Ref("A"), b.Ref("A"), b.Ref("B") }}, stmt("(switch (lcl 0))"))
    b.Add("A", &JReturn{}, ret())
    b.Add("B", &JReturn{}, ret())
    mustBuild(t, b)
    e, a, bb := b.Ref("E"), b.Ref("A"), b.Ref("B")

    /* one edge, counted twice */
    require.Len(t, a.Preds, 1)
    assert.Equal(t, 2, GetPredEdge(a, e).Dup)
    assert.Equal(t, 2, a.RefCount())
    assert.Len(t, Successors(e), 3)
    assert.Equal(t, []*Block { a, bb }, UniqueSuccs(e))
    assert.Nil(t, GetUniqueSucc(e))
    assert.Equal(t, e, GetUniquePred(bb))

    /* dropping one reference keeps the edge */
    RemoveRefPred(a, e)
    assert.Equal(t, 1, GetPredEdge(a, e).Dup)
    RemoveRefPred(a, e)
    assert.Nil(t, GetPredEdge(a, e))
}

func TestModel_EhTable(t *testing.T) {
    b := NewBuilder()
    b.Add("E", &JAlways{To: b.Ref("T")})
    b.Add("T", &JAlways{To: b.Ref("X")}, stmt("(store 0 (call 1))"))
    b.Add("H", &JEhCatchRet{To: b.Ref("X")})
    b.Add("X", &JReturn{}, ret())
    b.Try(EH_catch, "T", "T", "H", "H", "")
    g := mustBuild(t, b)
    e, t1, h, x := b.Ref("E"), b.Ref("T"), b.Ref("H"), b.Ref("X")

    /* the regions */
    assert.Nil(t, g.Eh.Get(0))
    assert.True(t, g.Eh.IsTryBeg(t1))
    assert.True(t, g.Eh.IsHandlerBeg(h))
    assert.False(t, g.Eh.IsHandlerBeg(t1))
    assert.True(t, g.Eh.IsBlockTryLast(t1))
    assert.True(t, g.Eh.IsBlockHndLast(h))
    assert.True(t, g.Eh.IsBlockEHLast(h))
    assert.True(t, g.Eh.InTryRange(1, t1))
    assert.False(t, g.Eh.InTryRange(1, h))
    assert.True(t, g.Eh.InHndRange(1, h))

    /* region queries */
    assert.True(t, SameEHRegion(e, x))
    assert.False(t, SameEHRegion(e, t1))
    assert.False(t, g.Eh.CanDeleteEmptyBlock(t1))
    assert.True(t, g.Eh.CanDeleteEmptyBlock(e))
    assert.False(t, g.Eh.AllowsMoveBlock(e, t1))
    assert.True(t, g.Eh.AllowsMoveBlock(e, x))

    /* the protected entries */
    assert.NotZero(t, t1.Flags & BBF_DONT_REMOVE)
    assert.Equal(t, 1, h.ImplicitRefs)
    assert.Equal(t, "catch", g.Eh.Get(1).Kind.String())

    /* roots and exits */
    assert.Equal(t, []int { e.Id, h.Id }, g.ComputeEnterBlocks().Slice())
    assert.Equal(t, []*Block { x }, g.ComputeReturnBlocks())

    /* insertion points stay within the region */
    assert.Equal(t, x, g.FindInsertPoint(0, g.First, nil, nil, nil, false))
    assert.Equal(t, e, g.FindInsertPoint(0, g.First, x, nil, nil, false))
    assert.Equal(t, t1, g.FindInsertPoint(1, g.First, nil, nil, nil, false))
    assert.Nil(t, g.FindInsertPoint(1, x, nil, nil, nil, false))
}

func TestModel_LoopTable(t *testing.T) {
    a, b, c := new(Block), new(Block), new(Block)
    lt := LoopTable{Loops: []*Loop { { Head: a, Top: a, Entry: a, Bottom: b, Exit: c } }}
    lp := lt.Get(1)
    assert.Nil(t, lt.Get(2))
    assert.True(t, lt.IsEntry(a))

    /* compaction moves the references */
    lt.UpdateAfterCompacting(a, b)
    assert.Equal(t, a, lp.Bottom)

    /* an exit may go away, the entry may not */
    lt.UpdateBeforeRemoveBlock(c)
    assert.Nil(t, lp.Exit)
    assert.False(t, lp.Removed)
    lt.UpdateBeforeRemoveBlock(a)
    assert.True(t, lp.Removed)
    assert.False(t, lt.IsEntry(a))

    /* loop membership */
    a.LoopNum, b.LoopNum = 1, 2
    assert.True(t, InDifferentLoops(a, b))
    assert.False(t, InDifferentLoops(a, c))
}

func TestModel_Renumber(t *testing.T) {
    b, g := buildDiamond(t)
    _, err := g.ComputeReachability()
    require.NoError(t, err)
    require.NoError(t, g.Require(LevelDoms))
    epoch := g.Epoch()

    /* moving a block changes the numbering */
    g.MoveBlocksAfter(b.Ref("A"), b.Ref("A"), b.Ref("B"))
    assert.True(t, g.Renumber())
    assert.NotEqual(t, epoch, g.Epoch())
    assert.ErrorIs(t, g.Require(LevelDoms), ErrStaleAnalysis)
    assert.NoError(t, g.Require(LevelNumbering))
    assert.False(t, g.Renumber())
}
