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
    `strconv`
    `strings`
    `unicode`

    `tlog.app/go/errors`
)

var _OpByName = func() map[string]Oper {
    ret := make(map[string]Oper, len(_OpNames))
    for i, v := range _OpNames {
        if v != "" {
            ret[v] = Oper(i)
        }
    }
    return ret
}()

func (self *Node) String() string {
    var sb strings.Builder
    self.format(&sb)
    return sb.String()
}

func (self *Node) format(sb *strings.Builder) {
    sb.WriteByte('(')

    /* operator name */
    if self.Op == OP_call && self.Tail {
        sb.WriteString("tailcall")
    } else {
        sb.WriteString(self.Op.String())
    }

    /* ordering marker */
    if self.Flags & F_ORDER_SIDEEFF != 0 && !self.childOrdered() {
        sb.WriteByte('!')
    }

    /* immediate operands */
    switch self.Op {
        case OP_cns   : sb.WriteString(" " + strconv.FormatInt(self.Val, 10))
        case OP_call  : sb.WriteString(" " + strconv.FormatInt(self.Val, 10))
        case OP_lcl   : sb.WriteString(" " + strconv.Itoa(self.Lcl))
        case OP_store : sb.WriteString(" " + strconv.Itoa(self.Lcl))
    }

    /* tree operands */
    self.Operands(func(p *Node) {
        sb.WriteByte(' ')
        p.format(sb)
    })
    sb.WriteByte(')')
}

func (self *Node) childOrdered() bool {
    ret := false
    self.Operands(func(p *Node) { ret = ret || p.Flags.Has(F_ORDER_SIDEEFF) })
    return ret
}

type _Parser struct {
    src string
    pos int
}

// Parse reads a tree written in the s-expression form produced by String,
// e.g. "(store 0 (add (lcl 1) (cns 5)))".
func Parse(src string) (*Node, error) {
    p := &_Parser{src: src}
    ret, err := p.node()
    if err != nil {
        return nil, err
    }

    /* nothing may follow the tree */
    if p.skip(); p.pos != len(p.src) {
        return nil, errors.New("trailing characters at %d: %q", p.pos, p.src[p.pos:])
    }
    return ret, nil
}

// MustParse is like Parse but panics on error.
func MustParse(src string) *Node {
    if ret, err := Parse(src); err != nil {
        panic(err)
    } else {
        return ret
    }
}

func (self *_Parser) skip() {
    for self.pos < len(self.src) && unicode.IsSpace(rune(self.src[self.pos])) {
        self.pos++
    }
}

func (self *_Parser) token() string {
    self.skip()
    i := self.pos

    /* scan until a delimiter */
    for self.pos < len(self.src) {
        if c := self.src[self.pos]; c == '(' || c == ')' || unicode.IsSpace(rune(c)) {
            break
        }
        self.pos++
    }
    return self.src[i:self.pos]
}

func (self *_Parser) expect(c byte) error {
    if self.skip(); self.pos >= len(self.src) || self.src[self.pos] != c {
        return errors.New("expected %q at %d", c, self.pos)
    } else {
        self.pos++
        return nil
    }
}

func (self *_Parser) peek() byte {
    if self.skip(); self.pos < len(self.src) {
        return self.src[self.pos]
    } else {
        return 0
    }
}

func (self *_Parser) int() (int64, error) {
    tk := self.token()
    if v, err := strconv.ParseInt(tk, 0, 64); err != nil {
        return 0, errors.Wrap(err, "integer at %d", self.pos)
    } else {
        return v, nil
    }
}

func (self *_Parser) node() (*Node, error) {
    if err := self.expect('('); err != nil {
        return nil, err
    }

    /* operator name, optionally marked as ordered */
    name := self.token()
    ordered := strings.HasSuffix(name, "!")
    name = strings.TrimSuffix(name, "!")

    /* tail calls are calls */
    ret := new(Node)
    if name == "tailcall" {
        ret.Op, ret.Tail = OP_call, true
    } else if op, ok := _OpByName[name]; ok {
        ret.Op = op
    } else {
        return nil, errors.New("unknown operator %q at %d", name, self.pos)
    }

    /* immediate operands */
    switch ret.Op {
        case OP_cns, OP_call: {
            v, err := self.int()
            if err != nil {
                return nil, err
            }
            ret.Val = v
        }
        case OP_lcl, OP_store: {
            v, err := self.int()
            if err != nil {
                return nil, err
            }
            ret.Lcl = int(v)
        }
    }

    /* tree operands */
    var args []*Node
    for self.peek() == '(' {
        v, err := self.node()
        if err != nil {
            return nil, err
        }
        args = append(args, v)
    }

    /* check the arity */
    if err := ret.bind(args); err != nil {
        return nil, errors.Wrap(err, "%s at %d", name, self.pos)
    }

    /* closing paren */
    if err := self.expect(')'); err != nil {
        return nil, err
    }

    /* compute the effect flags */
    if ret.UpdateFlags(); ordered {
        ret.Ordered()
    }
    return ret, nil
}

func (self *Node) bind(args []*Node) error {
    nargs := -1
    switch {
        case self.Op == OP_call                 : self.Args = args; return nil
        case self.Op == OP_return               : nargs = len(args); if nargs > 1 { nargs = -1 }
        case self.Op.IsLeaf()                   : nargs = 0
        case self.Op.IsBinary()                 : nargs = 2
        case self.Op == OP_storeind             : nargs = 2
        default                                 : nargs = 1
    }

    /* bind the operands */
    if nargs != len(args) {
        return errors.New("wrong number of operands: %d", len(args))
    }
    if nargs > 0 {
        self.X = args[0]
    }
    if nargs > 1 {
        self.Y = args[1]
    }
    return nil
}
