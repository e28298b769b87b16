package mir

import "github.com/lyre-lang/lyre/pkg/bitset"

// Block is a basic block: an ordered instruction list, successor
// links, a static hotness weight and the liveness bitsets the
// allocator maintains.
type Block struct {
	UID        uint32
	Insns      []Insn
	Successors []*Block

	// Hot weights the block: negative is cold, positive is hot.
	Hot int32

	DfDef     bitset.Set
	DfRef     bitset.Set
	DfInLive  bitset.Set
	DfOutLive bitset.Set
}

// Push appends an instruction to the block.
func (b *Block) Push(i Insn) { b.Insns = append(b.Insns, i) }

// Proc is one procedure under compilation. The first block is the
// entry. The allocator populates the Used* fields.
type Proc struct {
	Blocks []*Block

	nextGP uint32
	nextFP uint32

	// UsedStackLength is the spill area size in bytes.
	UsedStackLength int32
	// UsedGPMask / UsedFPMask have bit c-1 set when some register was
	// assigned GP / FP color c. The prologue saves the callee-saved
	// subset.
	UsedGPMask uint64
	UsedFPMask uint64
}

// NewBlock appends and returns a fresh empty block.
func (p *Proc) NewBlock() *Block {
	b := &Block{UID: uint32(len(p.Blocks))}
	p.Blocks = append(p.Blocks, b)
	return b
}

// Entry returns the entry block.
func (p *Proc) Entry() *Block { return p.Blocks[0] }

// NewGP allocates a fresh GP virtual register.
func (p *Proc) NewGP() Reg {
	r := VirtGP(p.nextGP)
	p.nextGP++
	return r
}

// NewFP allocates a fresh FP virtual register.
func (p *Proc) NewFP() Reg {
	r := VirtFP(p.nextFP)
	p.nextFP++
	return r
}

// AddSuccessor links a control-flow edge from b to s.
func (b *Block) AddSuccessor(s *Block) {
	for _, old := range b.Successors {
		if old == s {
			return
		}
	}
	b.Successors = append(b.Successors, s)
}

// Reserve advances the fresh-register counters past r, so that NewGP
// and NewFP never collide with registers introduced by hand.
func (p *Proc) Reserve(r Reg) {
	if !r.IsVirt() {
		return
	}
	n := r.Virt() + 1
	if r.IsFP() {
		if n > p.nextFP {
			p.nextFP = n
		}
	} else if n > p.nextGP {
		p.nextGP = n
	}
}

// ReserveAll reserves every register referenced by the instruction
// stream.
func (p *Proc) ReserveAll() {
	for _, b := range p.Blocks {
		for i := range b.Insns {
			b.Insns[i].ForEachReg(func(r *Reg, _ bool) {
				p.Reserve(*r)
			})
		}
	}
}

// MaxRegID returns one past the highest register id referenced by any
// instruction.
func (p *Proc) MaxRegID() int {
	max := uint32(0)
	for _, b := range p.Blocks {
		for i := range b.Insns {
			b.Insns[i].ForEachReg(func(r *Reg, _ bool) {
				if r.UID() > max {
					max = r.UID()
				}
			})
		}
	}
	return int(max) + 1
}
