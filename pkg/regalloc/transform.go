package regalloc

import (
	"fmt"
	"os"

	"github.com/lyre-lang/lyre/pkg/abi"
	"github.com/lyre-lang/lyre/pkg/mir"
)

// maxSteps caps the widen-or-spill loop. Reaching it is a bug: from
// minimum budgets, widening to the full register file plus one spill
// pass must terminate.
const maxSteps = 32

// Allocate lowers p to physical registers under the default ABI.
func Allocate(p *mir.Proc) { AllocateFor(p, abi.Default) }

// AllocateFor lowers p to physical registers under d: materializes the
// reserved argument registers, colors the interference graph, widens
// the color budgets before resorting to stack spills, substitutes
// physical registers into the instruction stream and records the
// used-register masks and spill area size. Malformed input is a
// programmer error and panics.
func AllocateFor(p *mir.Proc, d *abi.Desc) {
	p.ReserveAll()
	spillArgs(p, d)

	gr := buildGraph(p, nil)
	if debugRA {
		dumpGraph(os.Stderr, gr)
		dumpLifetime(os.Stderr, p, gr)
	}

	maxK, maxM := d.NumGP(), d.NumFP()
	k := clamp(len(d.GPVolatile), 2, maxK)
	m := clamp(len(d.FPVolatile), 2, maxM)
	base := cloneGraph(gr)

	var numSlots int32
	for step := 0; ; step++ {
		if step >= maxSteps {
			panic(fmt.Sprintf("regalloc: no coloring after %d iterations", maxSteps))
		}

		spillGP, spillFP := tryColor(gr, k, m)
		if debugRA {
			fmt.Fprintf(os.Stderr, "try_color (K=%d, M=%d) spills (%d, %d) registers\n", k, m, spillGP, spillFP)
		}
		if spillGP == 0 && spillFP == 0 {
			break
		}

		// Widen the budgets into the callee-saved registers before
		// paying for stack traffic.
		incK := spillGP > 0 && k != maxK
		incM := spillFP > 0 && m != maxM
		if incK {
			k++
		}
		if incM {
			m++
		}
		if incK || incM {
			gr = cloneGraph(base)
			continue
		}

		numSlots = insertSpills(p, gr, numSlots)
		gr = buildGraph(p, gr)
		base = cloneGraph(gr)
	}
	p.UsedStackLength = ((numSlots + 1) &^ 1) * 8

	assignPhys(p, gr)
	removeSelfMoves(p)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		v = lo
	}
	if v > hi {
		v = hi
	}
	return v
}

// assignPhys substitutes every virtual operand with the physical
// register of its color and accumulates the used-register masks.
func assignPhys(p *mir.Proc, gr []node) {
	for _, bb := range p.Blocks {
		for i := range bb.Insns {
			bb.Insns[i].ForEachReg(func(r *mir.Reg, _ bool) {
				if r.IsPseudo() || !r.IsVirt() {
					return
				}
				c := abi.Index(gr[r.UID()].color)
				if c == 0 {
					panic(fmt.Sprintf("regalloc: register %s left uncolored", r))
				}
				if r.IsFP() {
					p.UsedFPMask |= 1 << (c - 1)
					c = -c
				} else {
					p.UsedGPMask |= 1 << (c - 1)
				}
				*r = mir.FromPhys(c)
			})
		}
	}
}

// removeSelfMoves deletes moves whose source and destination collapsed
// onto the same register.
func removeSelfMoves(p *mir.Proc) {
	for _, bb := range p.Blocks {
		kept := bb.Insns[:0]
		for _, in := range bb.Insns {
			if in.Op.IsMove() && in.Args[0].IsReg() && in.Args[0].Reg == in.Out {
				continue
			}
			kept = append(kept, in)
		}
		bb.Insns = kept
	}
}
