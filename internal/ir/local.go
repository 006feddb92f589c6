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

package ir

// Local describes a local variable slot of the method being optimized.
type Local struct {
    Name        string
    AddrExposed bool
    IsField     bool
    Parent      int
    Promoted    bool
    FieldStart  int
    FieldCount  int
}

// Locals is the local variable table.
type Locals []Local

func (self Locals) Get(n int) *Local {
    if n >= 0 && n < len(self) {
        return &self[n]
    } else {
        return nil
    }
}

// AnyAddrExposed reports whether any local has its address taken.
func (self Locals) AnyAddrExposed() bool {
    for _, v := range self {
        if v.AddrExposed {
            return true
        }
    }
    return false
}

// IsExposed checks if local n or its parent struct is address exposed.
func (self Locals) IsExposed(n int) bool {
    if v := self.Get(n); v == nil {
        return false
    } else if v.AddrExposed {
        return true
    } else if v.IsField {
        return self.IsExposed(v.Parent)
    } else {
        return false
    }
}

// Interferes checks whether the tree references local n, the struct that n
// is a field of, or any field promoted out of n.
func (self Locals) Interferes(p *Node, n int) bool {
    if HasLocalRef(p, n) {
        return true
    }

    /* the parent struct */
    v := self.Get(n)
    if v == nil {
        return false
    }
    if v.IsField && HasLocalRef(p, v.Parent) {
        return true
    }

    /* all the promoted fields */
    if v.Promoted {
        for i := v.FieldStart; i < v.FieldStart + v.FieldCount; i++ {
            if HasLocalRef(p, i) {
                return true
            }
        }
    }
    return false
}
