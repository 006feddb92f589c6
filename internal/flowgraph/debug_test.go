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
    `bytes`
    `strings`
    `testing`

    `github.com/stretchr/testify/assert`
    `github.com/stretchr/testify/require`
)

func TestDebug_Dump(t *testing.T) {
    _, g := buildDiamond(t)
    s := Dump(g)
    assert.Contains(t, s, "(return (lcl 1))")
    assert.Contains(t, s, "(jtrue (eq (lcl 0) (cns 0)))")
    assert.Equal(t, 4, strings.Count(s, "Kind:"))
}

func TestDebug_WriteDot(t *testing.T) {
    b, g := buildDiamond(t)
    b.Ref("B").SetRunRarely()
    buf := new(bytes.Buffer)
    require.NoError(t, WriteDot(buf, g))

    /* the fall-through of the branch is dashed */
    s := buf.String()
    assert.True(t, strings.HasPrefix(s, "digraph flowgraph {"))
    assert.Contains(t, s, "[style=dashed]")
    assert.Contains(t, s, "fillcolor=lightgray")
    assert.Equal(t, 1, strings.Count(s, "[style=dashed]"))
}

func TestDebug_DrawLayout(t *testing.T) {
    _, g := buildDiamond(t)
    buf := new(bytes.Buffer)
    DrawLayout(buf, g)

    /* one box per block */
    s := buf.String()
    assert.Contains(t, s, "<svg")
    assert.Contains(t, s, "</svg>")
    assert.Contains(t, s, "polyline")
}
