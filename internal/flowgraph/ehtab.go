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

type EhKind uint8

const (
    EH_catch EhKind = iota
    EH_filter
    EH_finally
    EH_fault
)

var _EhKindNames = [...]string {
    EH_catch   : "catch",
    EH_filter  : "filter",
    EH_finally : "finally",
    EH_fault   : "fault",
}

func (self EhKind) String() string {
    return _EhKindNames[self]
}

// EhClause describes one protected region with its handler. Regions are
// lexically contiguous ranges of blocks, [TryBeg, TryLast] and
// [HndBeg, HndLast]; the filter (if any) runs [FilterBeg, HndBeg).
type EhClause struct {
    Kind      EhKind
    TryBeg    *Block
    TryLast   *Block
    HndBeg    *Block
    HndLast   *Block
    FilterBeg *Block
    Enclosing int
}

func (self *EhClause) HasFilter() bool {
    return self.FilterBeg != nil
}

// EhTable is the exception handling table, innermost clauses first. Blocks
// refer to clauses by 1-based index, 0 meaning no region.
type EhTable struct {
    Clauses []*EhClause
}

func (self *EhTable) Len() int {
    return len(self.Clauses)
}

func (self *EhTable) Get(i int) *EhClause {
    if i <= 0 || i > len(self.Clauses) {
        return nil
    } else {
        return self.Clauses[i - 1]
    }
}

// IsTryBeg checks whether bb starts its innermost try region.
func (self *EhTable) IsTryBeg(bb *Block) bool {
    if e := self.Get(bb.TryIndex); e != nil {
        return e.TryBeg == bb
    } else {
        return false
    }
}

// IsHandlerBeg checks whether bb starts a handler or a filter.
func (self *EhTable) IsHandlerBeg(bb *Block) bool {
    for _, e := range self.Clauses {
        if e.HndBeg == bb || e.FilterBeg == bb {
            return true
        }
    }
    return false
}

// IsBlockEHLast checks whether bb ends any try or handler region.
func (self *EhTable) IsBlockEHLast(bb *Block) bool {
    for _, e := range self.Clauses {
        if e.TryLast == bb || e.HndLast == bb {
            return true
        }
    }
    return false
}

// IsBlockTryLast checks whether bb ends its innermost try region.
func (self *EhTable) IsBlockTryLast(bb *Block) bool {
    if e := self.Get(bb.TryIndex); e != nil {
        return e.TryLast == bb
    } else {
        return false
    }
}

// IsBlockHndLast checks whether bb ends its innermost handler region.
func (self *EhTable) IsBlockHndLast(bb *Block) bool {
    if e := self.Get(bb.HndIndex); e != nil {
        return e.HndLast == bb
    } else {
        return false
    }
}

func SameTryRegion(a *Block, b *Block) bool {
    return a.TryIndex == b.TryIndex
}

func SameHndRegion(a *Block, b *Block) bool {
    return a.HndIndex == b.HndIndex
}

func SameEHRegion(a *Block, b *Block) bool {
    return SameTryRegion(a, b) && SameHndRegion(a, b)
}

// CanDeleteEmptyBlock checks that removing the empty block bb does not
// leave a region without blocks.
func (self *EhTable) CanDeleteEmptyBlock(bb *Block) bool {
    for _, e := range self.Clauses {
        if (e.TryBeg == bb && e.TryLast == bb) || (e.HndBeg == bb && e.HndLast == bb) {
            return false
        }
        if e.FilterBeg == bb && e.HndBeg == bb.next {
            return false
        }
    }
    return true
}

// AllowsMoveBlock checks whether bAfter may be placed right after bBefore.
func (self *EhTable) AllowsMoveBlock(bBefore *Block, bAfter *Block) bool {
    return SameEHRegion(bBefore, bAfter) && !self.IsTryBeg(bAfter) && !bAfter.IsCallAlwaysPairTail()
}

// UpdateLastBlocks makes every region ending at oldLast end at newLast.
func (self *EhTable) UpdateLastBlocks(oldLast *Block, newLast *Block) {
    for _, e := range self.Clauses {
        if e.TryLast == oldLast {
            e.TryLast = newLast
        }
        if e.HndLast == oldLast {
            e.HndLast = newLast
        }
    }
}

// UpdateForDeletedBlock fixes the region boundaries before bb is unlinked.
func (self *EhTable) UpdateForDeletedBlock(bb *Block) {
    for _, e := range self.Clauses {
        if e.TryBeg == bb && e.TryLast != bb {
            e.TryBeg = bb.next
        }
        if e.TryLast == bb && e.TryBeg != bb {
            e.TryLast = bb.prev
        }
        if e.HndBeg == bb && e.HndLast != bb {
            e.HndBeg = bb.next
        }
        if e.HndLast == bb && e.HndBeg != bb {
            e.HndLast = bb.prev
        }
        if e.FilterBeg == bb && e.HndBeg != bb.next {
            e.FilterBeg = bb.next
        }
    }
}

// InTryRange checks whether bb lies lexically within the try of clause i.
func (self *EhTable) InTryRange(i int, bb *Block) bool {
    e := self.Get(i)
    if e == nil {
        return false
    }
    for p := e.TryBeg; p != nil; p = p.next {
        if p == bb {
            return true
        }
        if p == e.TryLast {
            break
        }
    }
    return false
}

// InHndRange checks whether bb lies lexically within the handler of clause i.
func (self *EhTable) InHndRange(i int, bb *Block) bool {
    e := self.Get(i)
    if e == nil {
        return false
    }
    for p := e.HndBeg; p != nil; p = p.next {
        if p == bb {
            return true
        }
        if p == e.HndLast {
            break
        }
    }
    return false
}
