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
    `sync/atomic`
)

// Counters shared by every graph, updated atomically.
var (
    GraphCount     uint32
    DisabledCount  uint32
    RemovedCount   uint32
    CompactedCount uint32
    MovedCount     uint32
    TailDupCount   uint32
    MergedCount    uint32
)

func count(p *uint32) {
    atomic.AddUint32(p, 1)
}
