package regalloc

import (
	"fmt"
	"io"

	"github.com/lyre-lang/lyre/pkg/abi"
	"github.com/lyre-lang/lyre/pkg/bitset"
	"github.com/lyre-lang/lyre/pkg/mir"
	"github.com/xyproto/env/v2"
)

// debugRA turns on the allocator's diagnostic dumps to stderr.
var debugRA = env.Bool("LYRE_DEBUG_RA")

// Graph is the read-only diagnostic view of an interference graph.
type Graph struct {
	nodes []node
}

// BuildGraph materializes the reserved argument registers, runs
// liveness analysis and returns the interference graph of p for
// inspection. It mutates p the same way the allocator would before
// coloring.
func BuildGraph(p *mir.Proc, d *abi.Desc) *Graph {
	p.ReserveAll()
	spillArgs(p, d)
	return &Graph{nodes: buildGraph(p, nil)}
}

// Dump renders the graph as an undirected graph description, one
// vertex per node with at least one neighbor, labeled with its color.
func (g *Graph) Dump(w io.Writer) { dumpGraph(w, g.nodes) }

// DumpLifetime renders each block of p with its liveness sets and the
// per-instruction interference neighborhoods.
func (g *Graph) DumpLifetime(w io.Writer, p *mir.Proc) { dumpLifetime(w, p, g.nodes) }

func dumpGraph(w io.Writer, gr []node) {
	fmt.Fprintf(w, "graph {\n node [colorscheme=set312 penwidth=5]\n")
	for i := range gr {
		if gr[i].vtx.Popcount() > 1 {
			fmt.Fprintf(w, "r%d [color=%d label=%q];\n", i, gr[i].color, mir.FromUID(uint32(i)).String())
		}
	}
	for i := range gr {
		gr[i].vtx.ForEach(func(j int) {
			if i < j {
				fmt.Fprintf(w, "r%d -- r%d;\n", i, j)
			}
		})
	}
	fmt.Fprintf(w, "}\n")
}

func regsIn(w io.Writer, bs bitset.Set) {
	bs.ForEach(func(i int) {
		fmt.Fprintf(w, " %s", mir.FromUID(uint32(i)))
	})
}

func dumpLifetime(w io.Writer, p *mir.Proc, gr []node) {
	fmt.Fprintln(w)
	for _, bb := range p.Blocks {
		fmt.Fprintf(w, "-- Block $%d", bb.UID)
		if bb.Hot < 0 {
			fmt.Fprintf(w, " [COLD %d]", -bb.Hot)
		}
		if bb.Hot > 0 {
			fmt.Fprintf(w, " [HOT %d]", bb.Hot)
		}
		fmt.Fprintln(w)

		fmt.Fprintf(w, "Out-Live =")
		regsIn(w, bb.DfOutLive)
		fmt.Fprintln(w)
		fmt.Fprintf(w, "Def =")
		regsIn(w, bb.DfDef)
		fmt.Fprintln(w)
		fmt.Fprintf(w, "Ref =")
		regsIn(w, bb.DfRef)
		fmt.Fprintln(w)

		for i := range bb.Insns {
			fmt.Fprintf(w, "\t%s ", bb.Insns[i].String())
			bb.Insns[i].ForEachReg(func(r *mir.Reg, _ bool) {
				if int(r.UID()) >= len(gr) {
					return
				}
				fmt.Fprintf(w, "|I[%s]:", r)
				self := *r
				gr[r.UID()].vtx.ForEach(func(j int) {
					if uint32(j) != self.UID() {
						fmt.Fprintf(w, " %s", mir.FromUID(uint32(j)))
					}
				})
			})
			fmt.Fprintln(w)
		}
	}
}
