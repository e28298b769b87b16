package regalloc

import (
	"testing"

	"github.com/lyre-lang/lyre/pkg/abi"
	"github.com/lyre-lang/lyre/pkg/mir"
)

// countVirts returns the number of virtual register operands left in
// the stream.
func countVirts(p *mir.Proc) int {
	n := 0
	for _, b := range p.Blocks {
		for i := range b.Insns {
			b.Insns[i].ForEachReg(func(r *mir.Reg, _ bool) {
				if r.IsVirt() {
					n++
				}
			})
		}
	}
	return n
}

func countOps(p *mir.Proc, op mir.Op) int {
	n := 0
	for _, b := range p.Blocks {
		for i := range b.Insns {
			if b.Insns[i].Op == op {
				n++
			}
		}
	}
	return n
}

func popcount64(v uint64) int {
	n := 0
	for ; v != 0; v &= v - 1 {
		n++
	}
	return n
}

func TestAllocateStraightLine(t *testing.T) {
	// v100 = movi 1; v101 = movi 2; v100 = add v100 v101; ret v100
	p := &mir.Proc{}
	b := p.NewBlock()
	b.Push(mir.NewInsn(mir.MovGP, gp(100), mir.ImmOp(1)))
	b.Push(mir.NewInsn(mir.MovGP, gp(101), mir.ImmOp(2)))
	b.Push(mir.NewInsn(mir.Add, gp(100), mir.RegOp(gp(100)), mir.RegOp(gp(101))))
	b.Push(mir.NewInsn(mir.Ret, mir.RegNone, mir.RegOp(gp(100))))

	AllocateFor(p, abi.SysV64)

	if p.UsedStackLength != 0 {
		t.Errorf("UsedStackLength = %d, want 0", p.UsedStackLength)
	}
	if got := popcount64(p.UsedGPMask); got != 2 {
		t.Errorf("UsedGPMask has %d bits, want 2", got)
	}
	if p.UsedFPMask != 0 {
		t.Error("no FP registers were used")
	}
	if countVirts(p) != 0 {
		t.Error("virtual registers remain after allocation")
	}
	if countOps(p, mir.LoadGP)+countOps(p, mir.StoreGP) != 0 {
		t.Error("no spill traffic expected")
	}
}

func TestAllocateForcedSpill(t *testing.T) {
	// num_gp_reg + 1 mutually live GP values force exactly one spill.
	d := abi.SysV64
	n := uint32(d.NumGP())

	p := &mir.Proc{}
	b := p.NewBlock()
	for i := uint32(0); i <= n; i++ {
		b.Push(mir.NewInsn(mir.MovGP, gp(i), mir.ImmOp(int64(i))))
	}
	// Consume pairwise; the first-defined register is read last so its
	// reload does not recreate the over-full clique.
	for i := uint32(1); i+1 <= n; i += 2 {
		b.Push(mir.NewInsn(mir.Cmp, mir.RegFlags, mir.RegOp(gp(i)), mir.RegOp(gp(i+1))))
	}
	b.Push(mir.NewInsn(mir.Cmp, mir.RegFlags, mir.RegOp(gp(n)), mir.RegOp(gp(0))))

	AllocateFor(p, d)

	if p.UsedStackLength != 16 {
		t.Errorf("UsedStackLength = %d, want 16 (one slot rounded up)", p.UsedStackLength)
	}
	if got := countOps(p, mir.LoadGP); got != 1 {
		t.Errorf("%d reloads inserted, want 1", got)
	}
	if got := countOps(p, mir.StoreGP); got != 1 {
		t.Errorf("%d spill stores inserted, want 1", got)
	}
	if got := popcount64(p.UsedGPMask); got != int(n) {
		t.Errorf("UsedGPMask has %d bits, want %d", got, n)
	}
	if countVirts(p) != 0 {
		t.Error("virtual registers remain after allocation")
	}
}

func TestAllocateCoalescing(t *testing.T) {
	// v0 = movi imm; v1 = mov v0; ret v1
	p := &mir.Proc{}
	b := p.NewBlock()
	b.Push(mir.NewInsn(mir.MovGP, gp(0), mir.ImmOp(5)))
	b.Push(mir.NewInsn(mir.MovGP, gp(1), mir.RegOp(gp(0))))
	b.Push(mir.NewInsn(mir.Ret, mir.RegNone, mir.RegOp(gp(1))))

	AllocateFor(p, abi.SysV64)

	if len(b.Insns) != 2 {
		t.Fatalf("coalesced move should be deleted, %d instructions remain", len(b.Insns))
	}
	if got := popcount64(p.UsedGPMask); got != 1 {
		t.Errorf("UsedGPMask has %d bits, want 1 shared color", got)
	}
	if b.Insns[0].Out != b.Insns[1].Args[0].Reg {
		t.Error("the definition and the return should use one register")
	}
}

func TestSpillArgs(t *testing.T) {
	p := &mir.Proc{}
	b := p.NewBlock()
	b.Push(mir.NewInsn(mir.Add, gp(0), mir.RegOp(mir.VRegVM), mir.ImmOp(1)))
	b.Push(mir.NewInsn(mir.Add, gp(1), mir.RegOp(mir.VRegVM), mir.RegOp(gp(0))))
	b.Push(mir.NewInsn(mir.Add, gp(2), mir.RegOp(mir.VRegVM), mir.RegOp(gp(1))))
	b.Push(mir.NewInsn(mir.Ret, mir.RegNone, mir.RegOp(gp(2))))
	p.ReserveAll()

	spillArgs(p, abi.SysV64)

	if len(b.Insns) != 5 {
		t.Fatalf("expected exactly one prepended move, got %d instructions", len(b.Insns))
	}
	entry := b.Insns[0]
	if entry.Op != mir.MovGP {
		t.Fatalf("entry instruction is %s, want movgp", entry.Op)
	}
	wantSrc := mir.FromPhys(abi.SysV64.MapArgument(0, 0, false))
	if entry.Args[0].Reg != wantSrc {
		t.Errorf("entry copy reads %s, want the first GP argument register %s",
			entry.Args[0].Reg, wantSrc)
	}
	fresh := entry.Out
	if !fresh.IsVirt() || fresh.IsFP() {
		t.Fatalf("fresh register %s should be a GP virtual", fresh)
	}
	for i := 1; i <= 3; i++ {
		if b.Insns[i].Args[0].Reg != fresh {
			t.Errorf("use %d still reads %s", i, b.Insns[i].Args[0].Reg)
		}
	}
	for _, in := range b.Insns {
		in.ForEachReg(func(r *mir.Reg, _ bool) {
			if *r == mir.VRegVM {
				t.Error("vm pseudo register survived materialization")
			}
		})
	}
}

func TestAllocateClassIndependence(t *testing.T) {
	p := &mir.Proc{}
	b := p.NewBlock()
	b.Push(mir.NewInsn(mir.MovGP, gp(0), mir.ImmOp(1)))
	b.Push(mir.NewInsn(mir.MovFP, fp(0), mir.ImmOp(1)))
	b.Push(mir.NewInsn(mir.MovGP, gp(1), mir.ImmOp(2)))
	b.Push(mir.NewInsn(mir.MovFP, fp(1), mir.ImmOp(2)))
	b.Push(mir.NewInsn(mir.Cmp, mir.RegFlags, mir.RegOp(gp(0)), mir.RegOp(gp(1))))
	b.Push(mir.NewInsn(mir.Cmp, mir.RegFlags, mir.RegOp(fp(0)), mir.RegOp(fp(1))))

	gr := buildGraph(p, nil)
	if hasEdge(gr, gp(0), fp(0)) || hasEdge(gr, gp(1), fp(1)) ||
		hasEdge(gr, gp(0), fp(1)) || hasEdge(gr, gp(1), fp(0)) {
		t.Error("no cross-class interference edges may exist")
	}

	AllocateFor(p, abi.SysV64)

	if got := popcount64(p.UsedGPMask); got != 2 {
		t.Errorf("UsedGPMask has %d bits, want 2", got)
	}
	if got := popcount64(p.UsedFPMask); got != 2 {
		t.Errorf("UsedFPMask has %d bits, want 2", got)
	}
	for i := range b.Insns {
		in := &b.Insns[i]
		in.ForEachReg(func(r *mir.Reg, _ bool) {
			if !r.IsPhys() {
				return
			}
			switch in.Op {
			case mir.MovFP:
				if r.Phys() > 0 {
					t.Errorf("%s carries a GP register", in)
				}
			case mir.MovGP:
				if r.Phys() < 0 {
					t.Errorf("%s carries an FP register", in)
				}
			}
		})
	}
}

func TestAllocateWidensBeforeSpilling(t *testing.T) {
	// Eight GP registers, three volatile: five simultaneously live
	// values color after widening without touching the stack.
	d := &abi.Desc{
		Name:          "gp8",
		GPVolatile:    []abi.Native{abi.RAX, abi.RCX, abi.RDX},
		GPNonvolatile: []abi.Native{abi.RBX, abi.RSI, abi.RDI, abi.R8, abi.R9},
		GPArgument:    []abi.Native{abi.RDI, abi.RSI},
		GPRetval:      abi.RAX,
		FPVolatile:    []abi.Native{abi.XMM0, abi.XMM1},
		FPArgument:    []abi.Native{abi.XMM0},
		FPRetval:      abi.XMM0,
		SP:            abi.RSP,
		BP:            abi.RBP,
	}

	p := &mir.Proc{}
	b := p.NewBlock()
	for i := uint32(0); i < 5; i++ {
		b.Push(mir.NewInsn(mir.MovGP, gp(i), mir.ImmOp(int64(i))))
	}
	b.Push(mir.NewInsn(mir.Cmp, mir.RegFlags, mir.RegOp(gp(1)), mir.RegOp(gp(2))))
	b.Push(mir.NewInsn(mir.Cmp, mir.RegFlags, mir.RegOp(gp(3)), mir.RegOp(gp(4))))
	b.Push(mir.NewInsn(mir.Cmp, mir.RegFlags, mir.RegOp(gp(0)), mir.RegOp(gp(1))))

	AllocateFor(p, d)

	if p.UsedStackLength != 0 {
		t.Errorf("UsedStackLength = %d, want no stack spill", p.UsedStackLength)
	}
	if countOps(p, mir.LoadGP)+countOps(p, mir.StoreGP) != 0 {
		t.Error("widening should avoid spill traffic entirely")
	}
	if got := popcount64(p.UsedGPMask); got != 5 {
		t.Errorf("UsedGPMask has %d bits, want 5 (widened past the 3 volatiles)", got)
	}
}

func TestAllocateIdempotentOnPhysical(t *testing.T) {
	// A procedure with no virtual registers passes through untouched.
	ax := mir.FromPhys(1)
	cx := mir.FromPhys(5)
	p := &mir.Proc{}
	b := p.NewBlock()
	b.Push(mir.NewInsn(mir.MovGP, ax, mir.ImmOp(1)))
	b.Push(mir.NewInsn(mir.Add, cx, mir.RegOp(ax), mir.ImmOp(2)))
	b.Push(mir.NewInsn(mir.Ret, mir.RegNone, mir.RegOp(cx)))

	before := make([]mir.Insn, len(b.Insns))
	copy(before, b.Insns)

	AllocateFor(p, abi.SysV64)

	if len(b.Insns) != len(before) {
		t.Fatalf("instruction count changed: %d -> %d", len(before), len(b.Insns))
	}
	for i := range before {
		if b.Insns[i] != before[i] {
			t.Errorf("instruction %d changed: %s -> %s", i, before[i], b.Insns[i])
		}
	}
	if p.UsedStackLength != 0 {
		t.Error("no spill slots expected")
	}
}

func TestAllocateRemovesSelfMoves(t *testing.T) {
	ax := mir.FromPhys(1)
	p := &mir.Proc{}
	b := p.NewBlock()
	b.Push(mir.NewInsn(mir.MovGP, ax, mir.RegOp(ax)))
	b.Push(mir.NewInsn(mir.Ret, mir.RegNone, mir.RegOp(ax)))

	AllocateFor(p, abi.SysV64)

	for _, in := range b.Insns {
		if in.Op.IsMove() && in.Args[0].IsReg() && in.Args[0].Reg == in.Out {
			t.Errorf("self-move survived: %s", in)
		}
	}
	if len(b.Insns) != 1 {
		t.Errorf("%d instructions remain, want just the return", len(b.Insns))
	}
}

func TestAllocateValidColoring(t *testing.T) {
	// Looped control flow with enough pressure to exercise edges, then
	// check the final coloring against the graph built before
	// allocation.
	p := &mir.Proc{}
	b0 := p.NewBlock()
	b1 := p.NewBlock()
	b2 := p.NewBlock()
	b0.AddSuccessor(b1)
	b1.AddSuccessor(b1)
	b1.AddSuccessor(b2)

	for i := uint32(0); i < 6; i++ {
		b0.Push(mir.NewInsn(mir.MovGP, gp(i), mir.ImmOp(int64(i))))
	}
	b1.Push(mir.NewInsn(mir.Add, gp(0), mir.RegOp(gp(0)), mir.RegOp(gp(1))))
	b1.Push(mir.NewInsn(mir.Add, gp(2), mir.RegOp(gp(2)), mir.RegOp(gp(3))))
	b1.Push(mir.NewInsn(mir.Cmp, mir.RegFlags, mir.RegOp(gp(0)), mir.RegOp(gp(4))))
	b2.Push(mir.NewInsn(mir.Add, gp(5), mir.RegOp(gp(5)), mir.RegOp(gp(0))))
	b2.Push(mir.NewInsn(mir.Ret, mir.RegNone, mir.RegOp(gp(5))))

	pre := buildGraph(p, nil)
	var before [][]mir.Insn
	for _, blk := range p.Blocks {
		before = append(before, append([]mir.Insn(nil), blk.Insns...))
	}

	AllocateFor(p, abi.SysV64)

	// Valid coloring: virtual registers that interfere before
	// allocation end up in different physical registers.
	assigned := map[mir.Reg]mir.Reg{}
	for bi, blk := range p.Blocks {
		if len(blk.Insns) != len(before[bi]) {
			t.Fatalf("block %d: instruction count changed: %d -> %d", bi, len(before[bi]), len(blk.Insns))
		}
		for i := range blk.Insns {
			var from, to []mir.Reg
			before[bi][i].ForEachReg(func(r *mir.Reg, _ bool) { from = append(from, *r) })
			blk.Insns[i].ForEachReg(func(r *mir.Reg, _ bool) { to = append(to, *r) })
			for k := range from {
				if from[k].IsVirt() {
					assigned[from[k]] = to[k]
				}
			}
		}
	}
	for a, ra := range assigned {
		pre[a.UID()].vtx.ForEach(func(j int) {
			o := mir.FromUID(uint32(j))
			if o != a && o.IsVirt() && assigned[o] == ra {
				t.Errorf("interfering %s and %s share register %s", a, o, ra)
			}
		})
	}
	if countVirts(p) != 0 {
		t.Error("virtual registers remain after allocation")
	}
}
