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


package debug

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloudwego/flowopt"
)

func TestDebug_GetStats(t *testing.T) {
	u, err := flowopt.Load(strings.NewReader(`
blocks:
  - {name: A, jump: always, target: B, stmts: ["(store 0 (cns 1))"]}
  - {name: B, jump: return, stmts: ["(return (lcl 0))"]}
  - {name: D, jump: return, stmts: ["(return)"]}
`))
	require.NoError(t, err)
	old := GetStats()

	/* D goes away and A absorbs B */
	_, err = flowopt.Optimize(context.Background(), u.Graph)
	require.NoError(t, err)
	st := GetStats()
	assert.Equal(t, old.Graphs.Optimized+1, st.Graphs.Optimized)
	assert.GreaterOrEqual(t, st.Blocks.Removed, old.Blocks.Removed+1)
	assert.GreaterOrEqual(t, st.Blocks.Compacted, old.Blocks.Compacted+1)
	assert.Equal(t, old.Graphs.Disabled, st.Graphs.Disabled)
}

func TestDebug_MovedBlocks(t *testing.T) {
	u, err := flowopt.Load(strings.NewReader(`
blocks:
  - {name: E, jump: cond, target: H, stmts: ["(jtrue (eq (lcl 0) (cns 0)))"]}
  - {name: R, jump: throw, flags: [run_rarely], stmts: ["(call 1)"]}
  - {name: H, jump: return, stmts: ["(return)"]}
`))
	require.NoError(t, err)
	old := GetStats()

	/* the rare throw moves to the end */
	_, err = flowopt.Optimize(context.Background(), u.Graph)
	require.NoError(t, err)
	assert.Equal(t, u.Block("R"), u.Graph.Last)
	assert.Greater(t, GetStats().Blocks.Moved, old.Blocks.Moved)
}
