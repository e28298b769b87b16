package regalloc

import (
	"math/bits"

	"github.com/lyre-lang/lyre/pkg/bitset"
)

// tryColor colors the graph with k GP and m FP colors. On return every
// node is either colored or carries a spill slot; the counts report
// how many nodes of each class spilled.
//
// This is the Chaitin simplify/select recursion, run on an explicit
// stack: the push phase removes nodes from the graph until none
// remain, the pop phase re-inserts them and picks colors. Removal
// order prefers any node whose degree fits the class budget; when none
// fits, the over-degree node with the lowest priority is removed as
// the spill candidate (it may still find a color on the way back).
func tryColor(gr []node, k, m int) (spillGP, spillFP int) {
	type removed struct {
		idx int
		adj bitset.Set
	}
	var stack []removed

	for {
		it := -1
		over := -1
		for i := range gr {
			n := &gr[i]
			if n.color != 0 {
				continue
			}
			deg := n.vtx.Popcount()
			if deg == 0 {
				continue
			}
			deg--
			budget := k
			if n.isFP {
				budget = m
			}
			if deg >= budget {
				if over < 0 || gr[over].priority > n.priority {
					over = i
				}
				continue
			}
			it = i
			break
		}
		if it < 0 {
			if over < 0 {
				break
			}
			it = over
		}

		adj := bitset.New(len(gr))
		adj.Swap(&gr[it].vtx)
		adj.ForEach(func(j int) {
			gr[j].vtx.Clear(it)
		})
		stack = append(stack, removed{idx: it, adj: adj})
	}

	for len(stack) > 0 {
		fr := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		it := &gr[fr.idx]

		budget := k
		if it.isFP {
			budget = m
		}
		colorMask := uint64(1)<<budget - 1
		fr.adj.ForEach(func(j int) {
			if j == fr.idx {
				return
			}
			gr[j].vtx.Set(fr.idx)
			if gr[j].color != 0 {
				colorMask &^= 1 << (gr[j].color - 1)
			}
		})
		fr.adj.Swap(&it.vtx)

		if coalesce(gr, fr.idx, colorMask) {
			continue
		}

		if colorMask == 0 {
			if it.isFP {
				spillFP++
			} else {
				spillGP++
			}
			it.color = 0
			it.spillSlot = findSpillSlot(gr, fr.idx)
		} else {
			it.color = uint8(bits.TrailingZeros64(colorMask)) + 1
		}
	}
	return spillGP, spillFP
}

// coalesce tries to adopt the color of a move-related node, so that
// the move becomes redundant. Returns true if a hint color was taken.
func coalesce(gr []node, idx int, colorMask uint64) bool {
	it := &gr[idx]
	for _, off := range it.hints {
		if off == 0 {
			continue
		}
		h := idx + int(off)
		if h < 0 || h >= len(gr) {
			continue
		}
		if c := gr[h].color; c != 0 && colorMask&(1<<(c-1)) != 0 {
			it.color = c
			return true
		}
	}
	return false
}

// findSpillSlot returns the smallest positive slot not taken by any
// interfering neighbor; interfering spilled registers never share a
// slot.
func findSpillSlot(gr []node, idx int) int32 {
	slot := int32(1)
	for changed := true; changed; {
		changed = false
		for i := range gr {
			if i != idx && gr[i].spillSlot == slot && gr[i].vtx.Test(idx) {
				slot++
				changed = true
				break
			}
		}
	}
	return slot
}
