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
    `errors`
    `testing`

    `github.com/stretchr/testify/assert`
    `github.com/stretchr/testify/require`
)

func TestVerify_MissingPredEdge(t *testing.T) {
    b, g := buildDiamond(t)
    RemoveRefPred(b.Ref("C"), b.Ref("B"))

    /* B still jumps to C */
    err := Verify(g)
    require.Error(t, err)
    assert.ErrorIs(t, err, ErrInconsistentGraph)

    /* the error names the block */
    var ge *GraphError
    require.True(t, errors.As(err, &ge))
    assert.Equal(t, b.Ref("B"), ge.Block)
    assert.Contains(t, ge.Note, "missing pred edge")
}

func TestVerify_ExtraPredEdge(t *testing.T) {
    b, g := buildDiamond(t)
    AddRefPred(b.Ref("A"), b.Ref("C"))

    /* C never jumps to A */
    var ge *GraphError
    require.True(t, errors.As(Verify(g), &ge))
    assert.Equal(t, b.Ref("A"), ge.Block)
}

func TestVerify_BrokenList(t *testing.T) {
    _, g := buildDiamond(t)
    g.Count++
    assert.ErrorIs(t, Verify(g), ErrInconsistentGraph)
}

func TestVerify_RemovedBlockLinked(t *testing.T) {
    b, g := buildDiamond(t)
    b.Ref("A").Flags |= BBF_REMOVED
    assert.ErrorIs(t, Verify(g), ErrInconsistentGraph)
}
