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


// Package flowopt optimizes the control flow graph of one method: it removes
// unreachable blocks, simplifies jumps, lays out blocks by profile weight,
// duplicates small conditional tails and merges identical statements across
// blocks.
package flowopt

import (
	"context"
	"io"

	"github.com/cloudwego/flowopt/internal/flowgraph"
	"github.com/cloudwego/flowopt/internal/loader"
	"github.com/cloudwego/flowopt/internal/opts"
)

type (
	Graph      = flowgraph.Graph
	Block      = flowgraph.Block
	PassResult = flowgraph.PassResult
	Unit       = loader.Unit
)

// Optimize runs the flow graph passes over g with the default options
// adjusted by options. A pass that does not converge disables further
// optimization of g, which is reported through g.OptimizationDisabled
// rather than as an error.
func Optimize(ctx context.Context, g *Graph, options ...Option) ([]PassResult, error) {
	o := opts.GetDefaultOptions()
	for _, fn := range options {
		fn(&o)
	}
	g.Opts = o
	return flowgraph.Optimize(ctx, g)
}

// Verify checks the structural invariants of g. A broken invariant found at
// a block is reported as a *GraphError.
func Verify(g *Graph) error {
	return flowgraph.Verify(g)
}

// Load reads a YAML flow graph description.
func Load(r io.Reader) (*Unit, error) {
	return loader.Load(r)
}

// LoadFile reads a YAML flow graph description from the named file.
func LoadFile(fn string) (*Unit, error) {
	return loader.LoadFile(fn)
}
