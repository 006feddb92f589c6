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


package main

import (
	"context"
	"os"

	"nikand.dev/go/cli"
	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/cloudwego/flowopt"
	"github.com/cloudwego/flowopt/internal/flowgraph"
)

func main() {
	optCmd := &cli.Command{
		Name:        "opt",
		Description: "optimize flow graphs and print the result",
		Action:      optAct,
		Args:        cli.Args{},
		Flags: []*cli.Flag{
			cli.NewFlag("verify", false, "check the graph invariants after every pass"),
			cli.NewFlag("profile", true, "lay blocks out by profile weight"),
			cli.NewFlag("tail-dup", true, "duplicate small conditional blocks"),
			cli.NewFlag("merge", true, "merge identical statements across blocks"),
			cli.NewFlag("max-dup-cost", 6, "code size limit for branch duplication"),
		},
	}

	dotCmd := &cli.Command{
		Name:        "dot",
		Description: "print flow graphs in Graphviz format",
		Action:      dotAct,
		Args:        cli.Args{},
	}

	drawCmd := &cli.Command{
		Name:        "draw",
		Description: "draw the block layout of a flow graph as SVG",
		Action:      drawAct,
		Args:        cli.Args{},
	}

	domsCmd := &cli.Command{
		Name:        "doms",
		Description: "print the immediate dominators of every block",
		Action:      domsAct,
		Args:        cli.Args{},
	}

	app := &cli.Command{
		Name:        "flowopt",
		Description: "flowopt optimizes the control flow graphs described in YAML files",
		Commands: []*cli.Command{
			optCmd,
			dotCmd,
			drawCmd,
			domsCmd,
		},
	}

	cli.RunAndExit(app, os.Args, os.Environ())
}

func optAct(c *cli.Command) (err error) {
	ctx := context.Background()
	ctx = tlog.ContextWithSpan(ctx, tlog.Root())

	/* the options are shared by every file */
	options := []flowopt.Option{
		flowopt.WithVerify(c.Bool("verify")),
		flowopt.WithProfile(c.Bool("profile")),
		flowopt.WithTailDuplication(c.Bool("tail-dup")),
		flowopt.WithHeadTailMerge(c.Bool("merge")),
		flowopt.WithMaxDupCost(c.Int("max-dup-cost")),
	}

	for _, a := range c.Args {
		u, err := flowopt.LoadFile(a)
		if err != nil {
			return errors.Wrap(err, "load %v", a)
		}

		res, err := flowopt.Optimize(ctx, u.Graph, options...)
		if err != nil {
			return errors.Wrap(err, "optimize %v", a)
		}

		printResults(os.Stdout, res, u.Graph.OptimizationDisabled)
		printGraph(os.Stdout, u)
	}

	return nil
}

func dotAct(c *cli.Command) (err error) {
	for _, a := range c.Args {
		u, err := flowopt.LoadFile(a)
		if err != nil {
			return errors.Wrap(err, "load %v", a)
		}

		if err = flowgraph.WriteDot(os.Stdout, u.Graph); err != nil {
			return errors.Wrap(err, "write %v", a)
		}
	}

	return nil
}

func drawAct(c *cli.Command) (err error) {
	if len(c.Args) != 2 {
		return errors.New("usage: draw <graph.yaml> <out.svg>")
	}

	u, err := flowopt.LoadFile(c.Args[0])
	if err != nil {
		return errors.Wrap(err, "load %v", c.Args[0])
	}

	fp, err := os.Create(c.Args[1])
	if err != nil {
		return errors.Wrap(err, "create %v", c.Args[1])
	}

	defer func() {
		if e := fp.Close(); err == nil {
			err = e
		}
	}()

	flowgraph.DrawLayout(fp, u.Graph)

	return nil
}

func domsAct(c *cli.Command) (err error) {
	for _, a := range c.Args {
		u, err := flowopt.LoadFile(a)
		if err != nil {
			return errors.Wrap(err, "load %v", a)
		}

		if _, err = u.Graph.ComputeReachability(); err != nil {
			return errors.Wrap(err, "dominators of %v", a)
		}

		printDoms(os.Stdout, u)
	}

	return nil
}
