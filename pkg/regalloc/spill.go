package regalloc

import (
	"slices"

	"github.com/lyre-lang/lyre/pkg/abi"
	"github.com/lyre-lang/lyre/pkg/mir"
)

// spillArgs rewrites the reserved argument registers (vm, tos, nargs)
// to fresh GP virtuals and prepends entry moves from the ABI argument
// registers. This keeps pre-colored nodes off the argument path; the
// coalescer usually deletes the moves again.
func spillArgs(p *mir.Proc, d *abi.Desc) {
	var repl [3]mir.Reg
	for _, bb := range p.Blocks {
		for i := range bb.Insns {
			bb.Insns[i].ForEachReg(func(r *mir.Reg, _ bool) {
				var fresh *mir.Reg
				switch *r {
				case mir.VRegVM:
					fresh = &repl[0]
				case mir.VRegTOS:
					fresh = &repl[1]
				case mir.VRegNArgs:
					fresh = &repl[2]
				default:
					return
				}
				if fresh.IsNone() {
					*fresh = p.NewGP()
				}
				*r = *fresh
			})
		}
	}

	var prefix []mir.Insn
	for i, r := range repl {
		if r.IsNone() {
			continue
		}
		src := mir.FromPhys(d.MapArgument(i, 0, false))
		prefix = append(prefix, mir.NewInsn(mir.MovGP, r, mir.RegOp(src)))
	}
	if len(prefix) > 0 {
		entry := p.Entry()
		entry.Insns = append(prefix, entry.Insns...)
	}
}

// spillEntry records one reload or store rewrite within a single
// instruction.
type spillEntry struct {
	src  mir.Reg
	dst  mir.Reg
	slot int32
}

// insertSpills rewrites every instruction that touches a spilled
// register: reads reload into a fresh virtual beforehand, writes store
// the fresh virtual afterwards, both against [sp + slot*8]. Returns
// the updated spill slot count.
func insertSpills(p *mir.Proc, gr []node, numSlots int32) int32 {
	slotOffset := numSlots
	for _, bb := range p.Blocks {
		for idx := 0; idx < len(bb.Insns); idx++ {
			var reloads [4]spillEntry
			var spills [1]spillEntry
			rewrote := false

			// At most four reloads and one store per instruction;
			// repeated reads of one spilled register within the
			// instruction share the fresh register.
			swap := func(r *mir.Reg, list []spillEntry, slot int32) {
				rewrote = true
				for e := range list {
					if list[e].src.IsNone() {
						dst := p.NewGP()
						if r.IsFP() {
							dst = p.NewFP()
						}
						list[e] = spillEntry{src: *r, dst: dst, slot: slot + slotOffset - 1}
						if list[e].slot+1 > numSlots {
							numSlots = list[e].slot + 1
						}
						*r = dst
						return
					}
					if list[e].src == *r {
						*r = list[e].dst
						return
					}
				}
				panic("regalloc: spill entry list exhausted")
			}

			bb.Insns[idx].ForEachReg(func(r *mir.Reg, isRead bool) {
				if r.IsPseudo() || !r.IsVirt() {
					return
				}
				if int(r.UID()) >= len(gr) {
					return
				}
				info := &gr[r.UID()]
				if info.spillSlot == 0 {
					return
				}
				if isRead {
					swap(r, reloads[:], info.spillSlot)
				} else {
					swap(r, spills[:], info.spillSlot)
				}
			})
			if !rewrote {
				continue
			}

			var pre, post []mir.Insn
			for _, e := range reloads {
				if e.src.IsNone() {
					break
				}
				op := mir.LoadGP
				if e.src.IsFP() {
					op = mir.LoadFP
				}
				mem := mir.Mem{Base: mir.RegSP, Disp: e.slot * 8}
				pre = append(pre, mir.NewInsn(op, e.dst, mir.MemOp(mem)))
			}
			for _, e := range spills {
				if e.src.IsNone() {
					break
				}
				op := mir.StoreGP
				if e.src.IsFP() {
					op = mir.StoreFP
				}
				mem := mir.Mem{Base: mir.RegSP, Disp: e.slot * 8}
				post = append(post, mir.NewInsn(op, mir.RegNone, mir.MemOp(mem), mir.RegOp(e.dst)))
			}

			bb.Insns = slices.Insert(bb.Insns, idx, pre...)
			bb.Insns = slices.Insert(bb.Insns, idx+len(pre)+1, post...)
			idx += len(pre) + len(post)
		}
	}
	return numSlots
}
