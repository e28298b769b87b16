package regalloc

import (
	"github.com/lyre-lang/lyre/pkg/bitset"
	"github.com/lyre-lang/lyre/pkg/mir"
)

// prioHotBias scales use counts into spill priorities.
const prioHotBias = 12.0

// node is one interference graph vertex, arena-indexed by register id.
// The adjacency set includes the self bit, so popcount == degree + 1.
type node struct {
	vtx      bitset.Set
	priority float32
	// hints holds index offsets to move-related nodes, ring-replaced.
	hints     [4]int32
	hintID    uint8
	color     uint8
	isFP      bool
	spillSlot int32
}

// addHint records a coalescing hint from node a to node b.
func addHint(gr []node, a, b int) {
	n := &gr[a]
	n.hints[n.hintID%uint8(len(n.hints))] = int32(b - a)
	n.hintID++
}

// interferes reports whether two registers can share an interference
// edge. Pseudo registers and cross-class pairs never interfere.
func interferes(a, b mir.Reg) bool {
	if a.IsPseudo() || b.IsPseudo() {
		return false
	}
	if a.IsFP() != b.IsFP() {
		return false
	}
	return true
}

// buildGraph runs liveness analysis and builds the interference graph:
// one node per register id, pre-colored nodes carrying their physical
// index as color. The reuse arena, if any, is recycled.
func buildGraph(p *mir.Proc, reuse []node) []node {
	counts, maxRegID := useCounts(p)
	analyzeLiveness(p, maxRegID)

	gr := reuse[:0]
	if cap(gr) < maxRegID {
		gr = make([]node, maxRegID)
	} else {
		gr = gr[:maxRegID]
		for i := range gr {
			gr[i] = node{}
		}
	}
	for i := range gr {
		r := mir.FromUID(uint32(i))
		gr[i].vtx = bitset.New(maxRegID)
		gr[i].vtx.Set(i)
		gr[i].priority = float32(counts[i]+1) * prioHotBias
		gr[i].isFP = r.IsFP()
		if r.IsPhys() {
			c := r.Phys()
			if c < 0 {
				c = -c
			}
			gr[i].color = uint8(c)
		}
	}

	addVertex := func(a, b mir.Reg) {
		if !interferes(a, b) {
			return
		}
		gr[a.UID()].vtx.Set(int(b.UID()))
		gr[b.UID()].vtx.Set(int(a.UID()))
	}
	addSet := func(live bitset.Set, def mir.Reg) {
		live.ForEach(func(i int) {
			addVertex(def, mir.FromUID(uint32(i)))
		})
	}

	for _, bb := range p.Blocks {
		live := bb.DfOutLive.Copy()
		for ii := len(bb.Insns) - 1; ii >= 0; ii-- {
			in := &bb.Insns[ii]

			if in.Op.IsMove() && in.Args[0].IsReg() {
				src := int(in.Args[0].Reg.UID())
				dst := int(in.Out.UID())
				addHint(gr, src, dst)
				addHint(gr, dst, src)
			}

			if !in.Out.IsNone() {
				live.Clear(int(in.Out.UID()))
				addSet(live, in.Out)
			}

			in.ForEachReg(func(r *mir.Reg, isRead bool) {
				if isRead {
					live.Set(int(r.UID()))
				}
			})
			in.ForEachReg(func(r *mir.Reg, isRead bool) {
				if isRead {
					addSet(live, *r)
				}
			})
		}
	}
	return gr
}

// cloneGraph deep-copies a graph arena.
func cloneGraph(gr []node) []node {
	out := make([]node, len(gr))
	copy(out, gr)
	for i := range out {
		out[i].vtx = gr[i].vtx.Copy()
	}
	return out
}
