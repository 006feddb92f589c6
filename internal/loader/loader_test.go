/*
 * Copyright 2022 CloudWeGo Authors
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


package loader

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloudwego/flowopt/internal/flowgraph"
)

const _ProfiledDoc = `
profile: true
blocks:
  - name: B1
    jump: cond
    target: B3
    weight: 100
    stmts: ["(jtrue (eq (lcl 0) (cns 0)))"]
  - name: B2
    jump: switch
    table: [B3, B4]
    dominant: 1
    fraction: 0.75
    weight: 60
    stmts: ["(switch (lcl 1))"]
  - name: B3
    jump: always
    target: B4
    flags: [run_rarely]
    stmts: ["(store 0 (cns 5))"]
  - name: B4
    jump: return
    stmts: ["(return (lcl 0))"]
loops:
  - {head: B2, top: B2, entry: B2, bottom: B3, exit: B4}
locals: [{name: x}, {name: p, addr_exposed: true}, {name: f, parent: 1}]
`

func TestLoader_Profiled(t *testing.T) {
	u, err := Load(strings.NewReader(_ProfiledDoc))
	require.NoError(t, err)
	g := u.Graph
	b1, b2, b3, b4 := u.Block("B1"), u.Block("B2"), u.Block("B3"), u.Block("B4")

	/* the layout and the jumps */
	assert.Equal(t, []*flowgraph.Block{b1, b2, b3, b4}, g.Blocks())
	assert.Equal(t, flowgraph.KindCond, b1.Kind())
	assert.Equal(t, b3, b1.JumpDest())
	assert.Equal(t, "(switch (lcl 1))", b2.Stmts[0].String())
	assert.Equal(t, 2, b4.RefCount())
	assert.Equal(t, "B3", u.Name(b3))

	/* the dominant case */
	sw := b2.Jump.(*flowgraph.JSwitch)
	assert.True(t, sw.HasDominant)
	assert.Equal(t, 1, sw.Dominant)
	assert.Equal(t, 0.75, sw.DominantFraction)

	/* the weights */
	assert.True(t, g.HasProfile)
	assert.True(t, b1.HasProfileWeight())
	assert.Equal(t, flowgraph.Weight(60), b2.Weight)
	assert.True(t, b3.IsRunRarely())
	assert.Equal(t, flowgraph.Unity, b4.Weight)

	/* the loop and the locals */
	require.Len(t, g.Loops.Loops, 1)
	assert.Equal(t, b4, g.Loops.Loops[0].Exit)
	assert.Equal(t, 1, b2.LoopNum)
	assert.Equal(t, 1, b3.LoopNum)
	assert.Equal(t, 0, b4.LoopNum)
	assert.True(t, g.Locals.IsExposed(2))
	assert.False(t, g.Locals.IsExposed(0))
	require.NoError(t, flowgraph.Verify(g))
}

func TestLoader_Handlers(t *testing.T) {
	u, err := Load(strings.NewReader(`
blocks:
  - {name: E, jump: always, target: T}
  - {name: T, jump: always, target: X, stmts: ["(store 0 (call 1))"]}
  - {name: H, jump: catchret, target: X}
  - {name: X, jump: return, stmts: ["(return)"]}
eh:
  - {kind: catch, try: [T, T], handler: [H, H]}
`))
	require.NoError(t, err)
	t1, h := u.Block("T"), u.Block("H")

	/* the regions */
	require.Len(t, u.Graph.Eh.Clauses, 1)
	assert.Equal(t, 1, t1.TryIndex)
	assert.Equal(t, 1, h.HndIndex)
	assert.Equal(t, 1, h.ImplicitRefs)
	assert.NotZero(t, h.Flags & flowgraph.BBF_DONT_REMOVE)
	assert.Equal(t, flowgraph.EH_catch, u.Graph.Eh.Clauses[0].Kind)
}

func TestLoader_OsrEntry(t *testing.T) {
	u, err := Load(strings.NewReader(`
osr_entry: L
blocks:
  - {name: E, jump: always, target: L}
  - {name: L, jump: cond, target: L, stmts: ["(jtrue (eq (lcl 0) (cns 0)))"]}
  - {name: X, jump: return, stmts: ["(return)"]}
`))
	require.NoError(t, err)
	l := u.Block("L")
	assert.Equal(t, l, u.Graph.OsrEntry)
	assert.Equal(t, 1, l.ImplicitRefs)
	assert.Equal(t, 3, l.RefCount())
}

func TestLoader_Errors(t *testing.T) {
	cases := []struct {
		name string
		doc  string
		msg  string
	}{
		{"unknown jump", `{blocks: [{name: A, jump: goto}]}`, "unknown jump kind"},
		{"undefined target", `{blocks: [{name: A, jump: always, target: B}]}`, "undefined block"},
		{"stray target", `{blocks: [{name: A, jump: return, target: A}]}`, "does not take a target"},
		{"stray table", `{blocks: [{name: A, jump: return, table: [A]}]}`, "does not take a table"},
		{"empty table", `{blocks: [{name: A, jump: switch}]}`, "empty switch table"},
		{"bad dominant", `{blocks: [{name: A, jump: switch, table: [A], dominant: 3, fraction: 0.5}]}`, "out of range"},
		{"unknown flag", `{blocks: [{name: A, jump: return, flags: [shiny]}]}`, "unknown flag"},
		{"bad statement", `{blocks: [{name: A, jump: return, stmts: ["(frob)"]}]}`, "unknown operator"},
		{"duplicated block", `{blocks: [{name: A, jump: return}, {name: A, jump: return}]}`, "duplicated block"},
		{"unknown field", `{blocks: [{name: A, jump: return, colour: red}]}`, "colour"},
		{"no blocks", `{profile: true}`, "no blocks"},
		{"bad clause", `{blocks: [{name: A, jump: return}], eh: [{kind: catch, try: [A], handler: [A, A]}]}`, "pairs"},
		{"unknown clause", `{blocks: [{name: A, jump: return}], eh: [{kind: except, try: [A, A], handler: [A, A]}]}`, "unknown clause kind"},
		{"reversed loop", `{blocks: [{name: A, jump: always, target: B}, {name: B, jump: return}], loops: [{head: B, top: B, entry: B, bottom: A}]}`, "does not come before"},
	}

	/* every case fails with a message naming the problem */
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, err := Load(strings.NewReader(c.doc))
			require.Error(t, err)
			assert.Contains(t, err.Error(), c.msg)
		})
	}
}
