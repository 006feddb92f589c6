/*
 * Copyright 2021 ByteDance Inc.
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
    `github.com/cloudwego/flowopt/internal/flowgraph`
)

var (
    ErrIterationLimit    = flowgraph.ErrIterationLimit
    ErrStaleAnalysis     = flowgraph.ErrStaleAnalysis
    ErrInconsistentGraph = flowgraph.ErrInconsistentGraph
)

// GraphError occures when a flow graph invariant does not hold at a block.
type GraphError = flowgraph.GraphError
