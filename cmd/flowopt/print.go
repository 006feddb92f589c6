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
	"fmt"
	"io"
	"strings"

	"github.com/cloudwego/flowopt"
	"github.com/cloudwego/flowopt/internal/flowgraph"
)

func printResults(w io.Writer, res []flowopt.PassResult, disabled bool) {
	for _, r := range res {
		fmt.Fprintf(w, "# %-26s %v\n", r.Name, r.Status)
	}
	if disabled {
		fmt.Fprintf(w, "# optimization disabled\n")
	}
}

// formatBlock renders the head line of bb: its name, jump kind, successors
// and weight.
func formatBlock(u *flowopt.Unit, bb *flowgraph.Block) string {
	var succs []string
	for _, s := range flowgraph.Successors(bb) {
		succs = append(succs, u.Name(s))
	}

	/* the head line */
	sb := strings.Builder{}
	fmt.Fprintf(&sb, "%s %v", u.Name(bb), bb.Kind())
	if len(succs) != 0 {
		fmt.Fprintf(&sb, " -> %s", strings.Join(succs, ", "))
	}
	fmt.Fprintf(&sb, " w=%g", bb.Weight)

	/* the interesting flags */
	if bb.IsRunRarely() {
		sb.WriteString(" rare")
	}
	if bb.HasTryIndex() || bb.HasHndIndex() {
		fmt.Fprintf(&sb, " try=%d hnd=%d", bb.TryIndex, bb.HndIndex)
	}
	return sb.String()
}

func printGraph(w io.Writer, u *flowopt.Unit) {
	for _, bb := range u.Graph.Blocks() {
		fmt.Fprintln(w, formatBlock(u, bb))
		for _, p := range bb.Stmts {
			fmt.Fprintf(w, "    %v\n", p)
		}
	}
}

func printDoms(w io.Writer, u *flowopt.Unit) {
	for _, bb := range u.Graph.Blocks() {
		if bb.Idom == nil {
			fmt.Fprintf(w, "%s: -\n", u.Name(bb))
		} else {
			fmt.Fprintf(w, "%s: %s\n", u.Name(bb), u.Name(bb.Idom))
		}
	}
}
