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

package opts

import (
	"os"
	"strconv"
)

const (
	_DefaultMaxReachPasses  = 10   // give up after 10 rounds of unreachable block removal
	_DefaultMaxUpdatePasses = 64   // flow graph simplification rounds
	_DefaultMaxDomRounds    = 1024 // dominator fixpoint iterations
	_DefaultMaxDupCost      = 6    // base limit for branch duplication
	_DefaultMergeLimit      = 50   // max predecessors considered by tail merge
)

var (
	MaxReachPasses      = parseOrDefault("FLOWOPT_MAX_REACH_PASSES", _DefaultMaxReachPasses, 0)
	MaxUpdatePasses     = parseOrDefault("FLOWOPT_MAX_UPDATE_PASSES", _DefaultMaxUpdatePasses, 0)
	MaxDomRounds        = parseOrDefault("FLOWOPT_MAX_DOM_ROUNDS", _DefaultMaxDomRounds, 1)
	MaxDupCost          = parseOrDefault("FLOWOPT_MAX_DUP_COST", _DefaultMaxDupCost, -1)
	MergeLimit          = parseOrDefault("FLOWOPT_MERGE_LIMIT", _DefaultMergeLimit, 1)
	EnableHeadTailMerge = parseBoolOrDefault("FLOWOPT_HEAD_TAIL_MERGE", true)
	EnableTailDup       = parseBoolOrDefault("FLOWOPT_TAIL_DUP", true)
	VerifyGraph         = parseBoolOrDefault("FLOWOPT_VERIFY", false)
)

func parseOrDefault(key string, def int, min int) int {
	if env := os.Getenv(key); env == "" {
		return def
	} else if val, err := strconv.ParseUint(env, 0, 64); err != nil {
		panic("flowopt: invalid value for " + key)
	} else if ret := int(val); ret <= min {
		panic("flowopt: value too small for " + key)
	} else {
		return ret
	}
}

func parseBoolOrDefault(key string, def bool) bool {
	if env := os.Getenv(key); env == "" {
		return def
	} else if val, err := strconv.ParseBool(env); err != nil {
		panic("flowopt: invalid value for " + key)
	} else {
		return val
	}
}
