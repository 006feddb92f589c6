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
    `math/bits`
)

// BitSet is a growable set of small non-negative integers, used for
// block id sets.
type BitSet struct {
    data []uint64
}

func NewBitSet(n int) *BitSet {
    return &BitSet{data: make([]uint64, (n + 63) / 64)}
}

func (self *BitSet) grow(i int) {
    if x := i / 64; x >= len(self.data) {
        self.data = append(self.data, make([]uint64, x - len(self.data) + 1)...)
    }
}

func (self *BitSet) Add(i int) {
    self.grow(i)
    x, y := i / 64, i % 64
    self.data[x] |= 1 << y
}

func (self *BitSet) Remove(i int) {
    if x, y := i / 64, i % 64; x < len(self.data) {
        self.data[x] &^= 1 << y
    }
}

func (self *BitSet) Has(i int) bool {
    if self == nil {
        return false
    } else if x, y := i / 64, i % 64; x >= len(self.data) {
        return false
    } else {
        return self.data[x] & (1 << y) != 0
    }
}

// UnionWith adds all elements of other and reports whether anything changed.
func (self *BitSet) UnionWith(other *BitSet) bool {
    changed := false
    if n := len(other.data); n > len(self.data) {
        self.grow(n * 64 - 1)
    }
    for i, v := range other.data {
        if nv := self.data[i] | v; nv != self.data[i] {
            self.data[i] = nv
            changed = true
        }
    }
    return changed
}

func (self *BitSet) Intersects(other *BitSet) bool {
    n := len(self.data)
    if len(other.data) < n {
        n = len(other.data)
    }
    for i := 0; i < n; i++ {
        if self.data[i] & other.data[i] != 0 {
            return true
        }
    }
    return false
}

func (self *BitSet) Len() int {
    n := 0
    for _, v := range self.data {
        n += bits.OnesCount64(v)
    }
    return n
}

func (self *BitSet) IsEmpty() bool {
    for _, v := range self.data {
        if v != 0 {
            return false
        }
    }
    return true
}

func (self *BitSet) Clone() *BitSet {
    return &BitSet{data: append([]uint64(nil), self.data...)}
}

func (self *BitSet) Clear() {
    for i := range self.data {
        self.data[i] = 0
    }
}

// ForEach calls fn with every element in ascending order.
func (self *BitSet) ForEach(fn func(i int)) {
    for x, v := range self.data {
        for v != 0 {
            y := bits.TrailingZeros64(v)
            fn(x * 64 + y)
            v &= v - 1
        }
    }
}

func (self *BitSet) Slice() []int {
    ret := make([]int, 0, self.Len())
    self.ForEach(func(i int) { ret = append(ret, i) })
    return ret
}
