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


package loader

import (
	"io"
	"os"

	"golang.org/x/exp/slices"
	"gopkg.in/yaml.v3"
	"tlog.app/go/errors"

	"github.com/cloudwego/flowopt/internal/flowgraph"
	"github.com/cloudwego/flowopt/internal/ir"
)

// Document is the YAML description of a flow graph.
type Document struct {
	Profile   bool        `yaml:"profile"`
	OsrEntry  string      `yaml:"osr_entry"`
	GenReturn string      `yaml:"gen_return"`
	Blocks    []BlockDecl `yaml:"blocks"`
	Eh        []EhDecl    `yaml:"eh"`
	Loops     []LoopDecl  `yaml:"loops"`
	Locals    []LocalDecl `yaml:"locals"`
}

type BlockDecl struct {
	Name     string   `yaml:"name"`
	Jump     string   `yaml:"jump"`
	Target   string   `yaml:"target"`
	Table    []string `yaml:"table"`
	Dominant *int     `yaml:"dominant"`
	Fraction float64  `yaml:"fraction"`
	Weight   *float64 `yaml:"weight"`
	Flags    []string `yaml:"flags"`
	Stmts    []string `yaml:"stmts"`
}

// EhDecl is a protected region, Try and Handler are [first, last] pairs.
type EhDecl struct {
	Kind    string   `yaml:"kind"`
	Try     []string `yaml:"try"`
	Handler []string `yaml:"handler"`
	Filter  string   `yaml:"filter"`
}

type LoopDecl struct {
	Head   string `yaml:"head"`
	Top    string `yaml:"top"`
	Entry  string `yaml:"entry"`
	Bottom string `yaml:"bottom"`
	Exit   string `yaml:"exit"`
}

type LocalDecl struct {
	Name        string `yaml:"name"`
	AddrExposed bool   `yaml:"addr_exposed"`
	Parent      *int   `yaml:"parent"`
	Promoted    bool   `yaml:"promoted"`
	FieldStart  int    `yaml:"field_start"`
	FieldCount  int    `yaml:"field_count"`
}

// Unit is a loaded flow graph together with the names of its blocks.
type Unit struct {
	Graph  *flowgraph.Graph
	blocks map[string]*flowgraph.Block
	names  map[*flowgraph.Block]string
}

// Block returns the block declared with name, or nil.
func (self *Unit) Block(name string) *flowgraph.Block {
	return self.blocks[name]
}

// Name returns the declared name of bb. Blocks created by the optimizer
// have no name and are shown by their id.
func (self *Unit) Name(bb *flowgraph.Block) string {
	if name, ok := self.names[bb]; ok {
		return name
	} else {
		return bb.String()
	}
}

var (
	_JumpsWithTarget = []string{"always", "cond", "callfinally", "filterret", "catchret"}
	_JumpsWithTable  = []string{"switch"}
)

func LoadFile(fn string) (*Unit, error) {
	fp, err := os.Open(fn)
	if err != nil {
		return nil, err
	}
	defer fp.Close()
	return Load(fp)
}

// Load decodes a YAML document and builds the flow graph it describes.
// Unknown keys are rejected.
func Load(r io.Reader) (*Unit, error) {
	var doc Document
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	/* decode the document */
	if err := dec.Decode(&doc); err != nil {
		return nil, errors.Wrap(err, "decode")
	}
	return Build(&doc)
}

// Build assembles the flow graph described by doc.
func Build(doc *Document) (*Unit, error) {
	b := flowgraph.NewBuilder()
	ret := &Unit{
		blocks: make(map[string]*flowgraph.Block, len(doc.Blocks)),
		names:  make(map[*flowgraph.Block]string, len(doc.Blocks)),
	}

	/* declare the blocks first, jumps may refer forward */
	for _, d := range doc.Blocks {
		if d.Name == "" {
			return nil, errors.New("unnamed block")
		}
		if _, ok := ret.blocks[d.Name]; ok {
			return nil, errors.New("duplicated block %q", d.Name)
		}
		ret.blocks[d.Name] = b.Ref(d.Name)
		ret.names[ret.blocks[d.Name]] = d.Name
	}

	/* add the blocks in layout order */
	for i := range doc.Blocks {
		if err := ret.addBlock(b, &doc.Blocks[i], doc.Profile); err != nil {
			return nil, errors.Wrap(err, "block %q", doc.Blocks[i].Name)
		}
	}

	/* the EH clauses */
	for i, d := range doc.Eh {
		if err := ret.addClause(b, d); err != nil {
			return nil, errors.Wrap(err, "eh clause %d", i+1)
		}
	}

	/* link everything */
	g, err := b.Build()
	if err != nil {
		return nil, err
	}

	/* the rest refers to linked blocks */
	ret.Graph = g
	g.HasProfile = doc.Profile
	g.Locals = makeLocals(doc.Locals)

	/* the special blocks */
	if doc.OsrEntry != "" {
		if g.OsrEntry = ret.blocks[doc.OsrEntry]; g.OsrEntry == nil {
			return nil, errors.New("undefined osr entry %q", doc.OsrEntry)
		}
		g.OsrEntry.ImplicitRefs++
		g.OsrEntry.Flags |= flowgraph.BBF_DONT_REMOVE
	}
	if doc.GenReturn != "" {
		if g.GenReturn = ret.blocks[doc.GenReturn]; g.GenReturn == nil {
			return nil, errors.New("undefined merged return %q", doc.GenReturn)
		}
	}

	/* the loops */
	for i, d := range doc.Loops {
		if err := ret.addLoop(g, i+1, d); err != nil {
			return nil, errors.Wrap(err, "loop %d", i+1)
		}
	}
	return ret, nil
}

func (self *Unit) ref(name string) (*flowgraph.Block, error) {
	if bb, ok := self.blocks[name]; !ok {
		return nil, errors.New("undefined block %q", name)
	} else {
		return bb, nil
	}
}

func (self *Unit) makeJump(d *BlockDecl) (flowgraph.Jump, error) {
	var err error
	var to *flowgraph.Block

	/* resolve the target */
	if slices.Contains(_JumpsWithTarget, d.Jump) {
		if to, err = self.ref(d.Target); err != nil {
			return nil, err
		}
	} else if d.Target != "" {
		return nil, errors.New("%s jump does not take a target", d.Jump)
	}

	/* only switches have tables */
	if len(d.Table) != 0 && !slices.Contains(_JumpsWithTable, d.Jump) {
		return nil, errors.New("%s jump does not take a table", d.Jump)
	}

	/* build the jump */
	switch d.Jump {
	case "always":
		return &flowgraph.JAlways{To: to}, nil
	case "cond":
		return &flowgraph.JCond{Taken: to}, nil
	case "switch":
		return self.makeSwitch(d)
	case "return":
		return &flowgraph.JReturn{}, nil
	case "throw":
		return &flowgraph.JThrow{}, nil
	case "callfinally":
		return &flowgraph.JCallFinally{Handler: to}, nil
	case "finallyret":
		return &flowgraph.JEhFinallyRet{}, nil
	case "filterret":
		return &flowgraph.JEhFilterRet{Handler: to}, nil
	case "faultret":
		return &flowgraph.JEhFaultRet{}, nil
	case "catchret":
		return &flowgraph.JEhCatchRet{To: to}, nil
	default:
		return nil, errors.New("unknown jump kind %q", d.Jump)
	}
}

func (self *Unit) makeSwitch(d *BlockDecl) (flowgraph.Jump, error) {
	if len(d.Table) == 0 {
		return nil, errors.New("empty switch table")
	}

	/* resolve the cases */
	ret := &flowgraph.JSwitch{Table: make([]*flowgraph.Block, len(d.Table))}
	for i, name := range d.Table {
		bb, err := self.ref(name)
		if err != nil {
			return nil, errors.Wrap(err, "case %d", i)
		}
		ret.Table[i] = bb
	}

	/* the profile may single out a case */
	if d.Dominant != nil {
		if *d.Dominant < 0 || *d.Dominant >= len(d.Table) {
			return nil, errors.New("dominant case %d out of range", *d.Dominant)
		}
		if d.Fraction <= 0 || d.Fraction > 1 {
			return nil, errors.New("dominant fraction %g out of range", d.Fraction)
		}
		ret.HasDominant = true
		ret.Dominant = *d.Dominant
		ret.DominantFraction = d.Fraction
	}
	return ret, nil
}

func (self *Unit) addBlock(b *flowgraph.Builder, d *BlockDecl, profile bool) error {
	jmp, err := self.makeJump(d)
	if err != nil {
		return err
	}

	/* parse the statements */
	stmts := make([]*ir.Node, 0, len(d.Stmts))
	for i, src := range d.Stmts {
		p, err := ir.Parse(src)
		if err != nil {
			return errors.Wrap(err, "statement %d", i)
		}
		stmts = append(stmts, p)
	}

	/* the block itself */
	bb := b.Add(d.Name, jmp, stmts...)
	for _, name := range d.Flags {
		if fv, ok := flowgraph.FlagByName(name); !ok {
			return errors.New("unknown flag %q", name)
		} else if fv == flowgraph.BBF_RUN_RARELY {
			bb.SetRunRarely()
		} else {
			bb.Flags |= fv
		}
	}

	/* the weight, measured when there is a profile */
	if d.Weight != nil {
		if *d.Weight < 0 {
			return errors.New("negative weight %g", *d.Weight)
		} else if profile {
			bb.SetProfileWeight(*d.Weight)
		} else {
			bb.Weight = *d.Weight
		}
	}
	return nil
}

func parseEhKind(name string) (flowgraph.EhKind, error) {
	for _, k := range []flowgraph.EhKind{flowgraph.EH_catch, flowgraph.EH_filter, flowgraph.EH_finally, flowgraph.EH_fault} {
		if k.String() == name {
			return k, nil
		}
	}
	return 0, errors.New("unknown clause kind %q", name)
}

func (self *Unit) addClause(b *flowgraph.Builder, d EhDecl) error {
	kind, err := parseEhKind(d.Kind)
	if err != nil {
		return err
	}

	/* both ranges are [first, last] */
	if len(d.Try) != 2 || len(d.Handler) != 2 {
		return errors.New("try and handler must be [first, last] pairs")
	}

	/* a filter only goes with a filter clause */
	if (d.Filter != "") != (kind == flowgraph.EH_filter) {
		return errors.New("filter block given for a %v clause", kind)
	}

	/* check the names, the builder resolves them */
	for _, name := range append(append([]string{}, d.Try...), d.Handler...) {
		if _, err := self.ref(name); err != nil {
			return err
		}
	}
	b.Try(kind, d.Try[0], d.Try[1], d.Handler[0], d.Handler[1], d.Filter)
	return nil
}

func (self *Unit) addLoop(g *flowgraph.Graph, num int, d LoopDecl) error {
	lp := new(flowgraph.Loop)
	refs := []struct {
		name string
		dst  **flowgraph.Block
	}{
		{d.Head, &lp.Head},
		{d.Top, &lp.Top},
		{d.Entry, &lp.Entry},
		{d.Bottom, &lp.Bottom},
		{d.Exit, &lp.Exit},
	}

	/* resolve the blocks, the exit is optional */
	for _, v := range refs {
		if v.name == "" && v.dst == &lp.Exit {
			continue
		}
		bb, err := self.ref(v.name)
		if err != nil {
			return err
		}
		*v.dst = bb
	}

	/* the blocks from top to bottom belong to the loop, inner loops come first */
	for p := lp.Top; ; p = p.Next() {
		if p == nil {
			return errors.New("loop top %q does not come before bottom %q", d.Top, d.Bottom)
		}
		if p.LoopNum == 0 {
			p.LoopNum = num
		}
		if p == lp.Bottom {
			break
		}
	}

	/* add the loop */
	lp.Head.Flags |= flowgraph.BBF_LOOP_HEAD
	g.Loops.Loops = append(g.Loops.Loops, lp)
	return nil
}

func makeLocals(decls []LocalDecl) ir.Locals {
	ret := make(ir.Locals, len(decls))
	for i, d := range decls {
		ret[i] = ir.Local{
			Name:        d.Name,
			AddrExposed: d.AddrExposed,
			Promoted:    d.Promoted,
			FieldStart:  d.FieldStart,
			FieldCount:  d.FieldCount,
		}
		if d.Parent != nil {
			ret[i].IsField = true
			ret[i].Parent = *d.Parent
		}
	}
	return ret
}
