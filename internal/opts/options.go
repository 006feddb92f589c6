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

type Options struct {
	MaxReachPasses      int
	MaxUpdatePasses     int
	MaxDomRounds        int
	MaxDupCost          int
	MergeLimit          int
	UseProfile          bool
	EnableHeadTailMerge bool
	EnableTailDup       bool
	Verify              bool
}

// CanMerge reports whether a tail merge over n predecessors is within the limit.
func (self *Options) CanMerge(n int) bool {
	return self.EnableHeadTailMerge && (self.MergeLimit == 0 || n <= self.MergeLimit)
}

func GetDefaultOptions() Options {
	return Options{
		MaxReachPasses:      MaxReachPasses,
		MaxUpdatePasses:     MaxUpdatePasses,
		MaxDomRounds:        MaxDomRounds,
		MaxDupCost:          MaxDupCost,
		MergeLimit:          MergeLimit,
		UseProfile:          true,
		EnableHeadTailMerge: EnableHeadTailMerge,
		EnableTailDup:       EnableTailDup,
		Verify:              VerifyGraph,
	}
}
