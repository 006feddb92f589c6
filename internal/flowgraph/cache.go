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
    `tlog.app/go/errors`
)

var (
    ErrStaleAnalysis     = errors.New("flow analysis is stale")
    ErrIterationLimit    = errors.New("iteration limit exceeded")
    ErrInconsistentGraph = errors.New("inconsistent flow graph")
)

// Level orders the flow analyses, each one depends on all of the lower ones.
type Level uint8

const (
    LevelNone Level = iota
    LevelNumbering
    LevelDfs
    LevelReach
    LevelDoms
)

var _LevelNames = [...]string {
    LevelNone      : "none",
    LevelNumbering : "numbering",
    LevelDfs       : "dfs",
    LevelReach     : "reachability",
    LevelDoms      : "dominators",
}

func (self Level) String() string {
    return _LevelNames[self]
}

// FlowAnalysisCache tracks which flow analyses are valid for the current
// block numbering. Nothing is inferred, passes must invalidate explicitly
// after structural edits.
type FlowAnalysisCache struct {
    Epoch    int
    DomCount int
    level    Level
}

func (self *FlowAnalysisCache) Invalidate() {
    self.level = LevelNone
}

// Downgrade drops every analysis above lv.
func (self *FlowAnalysisCache) Downgrade(lv Level) {
    if self.level > lv {
        self.level = lv
    }
}

func (self *FlowAnalysisCache) Level() Level {
    return self.level
}

func (self *FlowAnalysisCache) validate(lv Level, epoch int) {
    self.level = lv
    self.Epoch = epoch
}

// Require checks that the analysis lv was computed for the given epoch.
func (self *FlowAnalysisCache) Require(lv Level, epoch int) error {
    if self.Epoch != epoch {
        return errors.Wrap(ErrStaleAnalysis, "numbering epoch %d, analysis epoch %d", epoch, self.Epoch)
    } else if self.level < lv {
        return errors.Wrap(ErrStaleAnalysis, "need %v, have %v", lv, self.level)
    } else {
        return nil
    }
}
