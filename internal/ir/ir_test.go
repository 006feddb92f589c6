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

import (
    `testing`

    `github.com/stretchr/testify/assert`
    `github.com/stretchr/testify/require`
)

func TestIR_ParseFormat(t *testing.T) {
    for _, src := range []string {
        "(nop)",
        "(store 0 (cns 5))",
        "(jtrue (eq (lcl 0) (cns 0)))",
        "(storeind (lcl 1) (add (lcl 2) (cns -3)))",
        "(tailcall 7 (lcl 0) (cns 1))",
        "(return)",
        "(return (lcl 2))",
        "(store 1 (ind! (lcl 0)))",
        "(switch (cast (lcl 4)))",
    } {
        p, err := Parse(src)
        require.NoError(t, err, src)
        assert.Equal(t, src, p.String())
    }
}

func TestIR_ParseErrors(t *testing.T) {
    for _, src := range []string {
        "",
        "(",
        "(bogus)",
        "(add (lcl 0))",
        "(cns x)",
        "(lcl 0) (lcl 1)",
        "(return (lcl 0) (lcl 1))",
    } {
        _, err := Parse(src)
        assert.Error(t, err, src)
    }
    require.Panics(t, func() { MustParse("(") })
}

func TestIR_Flags(t *testing.T) {
    assert.Equal(t, F_ASG, MustParse("(store 0 (cns 5))").Flags)
    assert.Equal(t, Flags(0), MustParse("(jtrue (eq (lcl 0) (cns 0)))").Flags)
    assert.Equal(t, F_CALL | F_EXCEPT | F_GLOB_REF, MustParse("(store 0 (call 1))").Flags &^ F_ASG)
    assert.True(t, MustParse("(add (lcl 0) (div (lcl 1) (lcl 2)))").Flags.Has(F_EXCEPT))
    assert.True(t, MustParse("(add (lcl 0) (ind! (lcl 1)))").Flags.Has(F_ORDER_SIDEEFF))
    assert.False(t, MustParse("(add (lcl 0) (lcl 1))").Flags.Has(F_ALL_EFFECT))
}

func TestIR_CompareClone(t *testing.T) {
    a := MustParse("(store 0 (add (lcl 1) (cns 5)))")
    b := MustParse("(store 0 (add (lcl 1) (cns 5)))")
    c := MustParse("(store 0 (add (lcl 1) (cns 6)))")
    assert.True(t, Compare(a, b))
    assert.False(t, Compare(a, c))
    assert.Equal(t, Hash(a), Hash(b))
    assert.NotEqual(t, Hash(a), Hash(c))
    assert.False(t, Compare(MustParse("(call 1)"), MustParse("(tailcall 1)")))

    /* clones are deep */
    d := Clone(a)
    require.True(t, Compare(a, d))
    d.X.Y.Val = 9
    assert.Equal(t, int64(5), a.X.Y.Val)
}

func TestIR_ReverseCond(t *testing.T) {
    p := MustParse("(jtrue (lt (lcl 0) (cns 3)))")
    ReverseCond(p)
    assert.Equal(t, "(jtrue (ge (lcl 0) (cns 3)))", p.String())
    ReverseCond(p)
    assert.Equal(t, "(jtrue (lt (lcl 0) (cns 3)))", p.String())
    q := MustParse("(jtrue (lcl 2))")
    ReverseCond(q)
    assert.Equal(t, "(jtrue (eq (lcl 2) (cns 0)))", q.String())
}

func TestIR_ExtractSideEffects(t *testing.T) {
    assert.Empty(t, ExtractSideEffects(MustParse("(jtrue (eq (lcl 0) (cns 0)))")))
    ret := ExtractSideEffects(MustParse("(jtrue (lt (ind (lcl 1)) (div (lcl 2) (lcl 3))))"))
    require.Len(t, ret, 2)
    assert.Equal(t, "(ind (lcl 1))", ret[0].String())
    assert.Equal(t, "(div (lcl 2) (lcl 3))", ret[1].String())
    ret = ExtractSideEffects(MustParse("(switch (add (call 4) (lcl 0)))"))
    require.Len(t, ret, 1)
    assert.Equal(t, "(call 4)", ret[0].String())
    ret = ExtractSideEffects(MustParse("(store 0 (cns 1))"))
    require.Len(t, ret, 1)
    assert.Equal(t, OP_store, ret[0].Op)
}

func TestIR_Queries(t *testing.T) {
    p := MustParse("(store 3 (add (cast (lcl 1)) (tailcall 2)))")
    assert.True(t, HasLocalRef(p, 3))
    assert.True(t, HasLocalRef(p, 1))
    assert.False(t, HasLocalRef(p, 2))
    assert.True(t, ContainsTailCall(p))
    assert.Equal(t, OP_lcl, SkipCasts(p.X.X).Op)
    assert.Equal(t, 1 + 1 + 1 + 1 + 5, CostSz(p))
    assert.Equal(t, 4, CostSz(MustParse("(cns 1000)")))
}

func TestIR_Locals(t *testing.T) {
    lv := Locals {
        { Name: "s", Promoted: true, FieldStart: 1, FieldCount: 2 },
        { Name: "s.a", IsField: true, Parent: 0 },
        { Name: "s.b", IsField: true, Parent: 0 },
        { Name: "p", AddrExposed: true },
    }
    assert.True(t, lv.AnyAddrExposed())
    assert.True(t, lv.IsExposed(3))
    assert.False(t, lv.IsExposed(1))
    assert.True(t, lv.Interferes(MustParse("(lcl 0)"), 1))
    assert.True(t, lv.Interferes(MustParse("(lcl 2)"), 0))
    assert.False(t, lv.Interferes(MustParse("(lcl 2)"), 1))
    assert.Nil(t, lv.Get(9))
}
