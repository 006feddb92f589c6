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


package flowopt

import (
	"fmt"

	"github.com/cloudwego/flowopt/internal/opts"
)

// Option is the property setter function for opts.Options.
type Option func(*opts.Options)

// WithMaxDupCost sets the base code size limit for duplicating a
// conditional block into an unconditional jump to it.
//
// Blocks run rarely get a larger limit, since duplicating them costs
// nothing at runtime.
//
// The default value of this option is "6".
func WithMaxDupCost(cost int) Option {
	if cost < 0 {
		panic(fmt.Sprintf("flowopt: invalid duplication cost: %d", cost))
	} else {
		return func(o *opts.Options) { o.MaxDupCost = cost }
	}
}

// WithMergeLimit sets the maximum number of predecessors considered by a
// single tail merge.
//
// Set this option to "0" disables this limit.
//
// The default value of this option is "50".
func WithMergeLimit(n int) Option {
	if n < 0 {
		panic(fmt.Sprintf("flowopt: invalid merge limit: %d", n))
	} else {
		return func(o *opts.Options) { o.MergeLimit = n }
	}
}

// WithMaxUpdatePasses caps the rounds of flow graph simplification. A graph
// that has not settled after that many rounds is left unoptimized.
//
// The default value of this option is "64".
func WithMaxUpdatePasses(n int) Option {
	if n <= 0 {
		panic(fmt.Sprintf("flowopt: invalid update passes: %d", n))
	} else {
		return func(o *opts.Options) { o.MaxUpdatePasses = n }
	}
}

// WithHeadTailMerge enables or disables merging of identical statements at
// the heads and tails of blocks.
func WithHeadTailMerge(enable bool) Option {
	return func(o *opts.Options) { o.EnableHeadTailMerge = enable }
}

// WithTailDuplication enables or disables duplication of small conditional
// blocks into their unconditional predecessors.
func WithTailDuplication(enable bool) Option {
	return func(o *opts.Options) { o.EnableTailDup = enable }
}

// WithProfile controls whether block layout uses the profile weights of the
// graph. Without it, blocks are never moved.
func WithProfile(enable bool) Option {
	return func(o *opts.Options) { o.UseProfile = enable }
}

// WithVerify checks the graph invariants after every pass.
func WithVerify(enable bool) Option {
	return func(o *opts.Options) { o.Verify = enable }
}

// SetMaxDupCost sets the default duplication limit for all graphs from now
// on.
//
// This value can also be configured with the `FLOWOPT_MAX_DUP_COST`
// environment variable.
//
// Returns the old opts.MaxDupCost value.
func SetMaxDupCost(cost int) int {
	cost, opts.MaxDupCost = opts.MaxDupCost, cost
	return cost
}

// SetMergeLimit sets the default tail merge limit for all graphs from now
// on.
//
// This value can also be configured with the `FLOWOPT_MERGE_LIMIT`
// environment variable.
//
// Returns the old opts.MergeLimit value.
func SetMergeLimit(n int) int {
	n, opts.MergeLimit = opts.MergeLimit, n
	return n
}

// SetMaxReachPasses sets the default number of unreachable block removal
// rounds for all graphs from now on.
//
// This value can also be configured with the `FLOWOPT_MAX_REACH_PASSES`
// environment variable.
//
// Returns the old opts.MaxReachPasses value.
func SetMaxReachPasses(n int) int {
	n, opts.MaxReachPasses = opts.MaxReachPasses, n
	return n
}

// SetVerify turns the per-pass graph verification on or off for all graphs
// from now on.
//
// This value can also be configured with the `FLOWOPT_VERIFY` environment
// variable.
//
// Returns the old opts.VerifyGraph value.
func SetVerify(enable bool) bool {
	enable, opts.VerifyGraph = opts.VerifyGraph, enable
	return enable
}
