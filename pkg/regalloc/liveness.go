// Package regalloc lowers MIR procedures from virtual-register form to
// the physical registers of an ABI, via live-variable analysis, a
// Chaitin-style interference graph coloring with coalescing hints, and
// spill-slot rewriting when coloring fails.
package regalloc

import (
	"github.com/lyre-lang/lyre/pkg/bitset"
	"github.com/lyre-lang/lyre/pkg/mir"
)

// useCounts tallies per-register read counts and returns them with one
// past the highest register id. Every register of a load/store
// instruction, read or written, gains an extra 100: spilling them
// would only move the memory traffic around.
func useCounts(p *mir.Proc) ([]int, int) {
	counts := make([]int, 1)
	max := uint32(0)
	for _, bb := range p.Blocks {
		for i := range bb.Insns {
			in := &bb.Insns[i]
			in.ForEachReg(func(r *mir.Reg, isRead bool) {
				if r.UID() > max {
					max = r.UID()
					counts = append(counts, make([]int, int(max)+1-len(counts))...)
				}
				if isRead {
					counts[r.UID()]++
				}
				if in.Op.IsMemOp() {
					counts[r.UID()] += 100
				}
			})
		}
	}
	return counts, int(max) + 1
}

// analyzeLiveness computes the per-block def, ref, in-live and
// out-live bitsets by backward data-flow to fixed point. Pseudo
// registers never enter the sets.
func analyzeLiveness(p *mir.Proc, maxRegID int) {
	for _, bb := range p.Blocks {
		bb.DfDef = bitset.New(maxRegID)
		bb.DfRef = bitset.New(maxRegID)
		bb.DfInLive = bitset.New(maxRegID)
		bb.DfOutLive = bitset.New(maxRegID)

		for i := range bb.Insns {
			bb.Insns[i].ForEachReg(func(r *mir.Reg, isRead bool) {
				if r.IsPseudo() {
					return
				}
				if isRead {
					if !bb.DfDef.Test(int(r.UID())) {
						bb.DfRef.Set(int(r.UID()))
					}
				} else {
					bb.DfDef.Set(int(r.UID()))
				}
			})
		}
	}

	// in-live(n) = (out-live(n) \ def(n)) U ref(n)
	// out-live(n) = U over succ s of in-live(s)
	for changed := true; changed; {
		changed = false
		for _, bb := range p.Blocks {
			newLive := bitset.New(maxRegID)
			for _, s := range bb.Successors {
				newLive.Union(s.DfInLive)
			}
			newLive.Difference(bb.DfDef)
			newLive.Union(bb.DfRef)
			if !newLive.Equal(bb.DfInLive) {
				changed = true
				newLive.Swap(&bb.DfInLive)
			}
		}
	}

	for _, bb := range p.Blocks {
		for _, s := range bb.Successors {
			bb.DfOutLive.Union(s.DfInLive)
		}
	}
}
