package mir

import "fmt"

// Op is a MIR opcode.
type Op uint8

const (
	Nop Op = iota
	// MovGP copies a GP register or immediate into a GP register.
	MovGP
	// MovFP copies an FP register or immediate into an FP register.
	MovFP
	// LoadGP / StoreGP / LoadFP / StoreFP move 8 bytes between a
	// register and memory. The rewriter synthesizes them for spill
	// traffic.
	LoadGP
	StoreGP
	LoadFP
	StoreFP
	Add
	Sub
	Mul
	Div
	And
	Or
	Xor
	Shr
	Cmp
	Test
	Jmp
	Jcc
	Call
	Ret
)

var opNames = [...]string{
	Nop:     "nop",
	MovGP:   "movgp",
	MovFP:   "movfp",
	LoadGP:  "loadgp",
	StoreGP: "storegp",
	LoadFP:  "loadfp",
	StoreFP: "storefp",
	Add:     "add",
	Sub:     "sub",
	Mul:     "mul",
	Div:     "div",
	And:     "and",
	Or:      "or",
	Xor:     "xor",
	Shr:     "shr",
	Cmp:     "cmp",
	Test:    "test",
	Jmp:     "jmp",
	Jcc:     "jcc",
	Call:    "call",
	Ret:     "ret",
}

func (o Op) String() string {
	if int(o) < len(opNames) && opNames[o] != "" {
		return opNames[o]
	}
	return fmt.Sprintf("op%d", uint8(o))
}

// IsMove reports whether the opcode is a register move and thus a
// coalescing candidate.
func (o Op) IsMove() bool { return o == MovGP || o == MovFP }

// IsMemOp reports whether the opcode reads or writes memory through a
// register; such uses weight the addressing registers heavily.
func (o Op) IsMemOp() bool {
	switch o {
	case LoadGP, StoreGP, LoadFP, StoreFP:
		return true
	}
	return false
}

// Mem is a base-plus-displacement memory reference.
type Mem struct {
	Base Reg
	Disp int32
}

func (m Mem) String() string {
	if m.Disp == 0 {
		return fmt.Sprintf("[%s]", m.Base)
	}
	return fmt.Sprintf("[%s+%d]", m.Base, m.Disp)
}

// OperandKind discriminates Operand.
type OperandKind uint8

const (
	KindNone OperandKind = iota
	KindReg
	KindImm
	KindMem
)

// Operand is a tagged variant over register, immediate and memory.
type Operand struct {
	Kind OperandKind
	Reg  Reg
	Imm  int64
	Mem  Mem
}

// RegOp wraps a register operand.
func RegOp(r Reg) Operand { return Operand{Kind: KindReg, Reg: r} }

// ImmOp wraps an immediate operand.
func ImmOp(v int64) Operand { return Operand{Kind: KindImm, Imm: v} }

// MemOp wraps a memory operand.
func MemOp(m Mem) Operand { return Operand{Kind: KindMem, Mem: m} }

// IsReg reports whether the operand is a register.
func (o Operand) IsReg() bool { return o.Kind == KindReg }

// IsNone reports whether the operand is absent.
func (o Operand) IsNone() bool { return o.Kind == KindNone }

func (o Operand) String() string {
	switch o.Kind {
	case KindReg:
		return o.Reg.String()
	case KindImm:
		return fmt.Sprintf("%#x", o.Imm)
	case KindMem:
		return o.Mem.String()
	}
	return "_"
}

// Insn is one MIR instruction: an opcode, a defined register and up to
// four source operands.
type Insn struct {
	Op   Op
	Out  Reg
	Args [4]Operand
}

// NewInsn builds an instruction from the given source operands.
func NewInsn(op Op, out Reg, args ...Operand) Insn {
	i := Insn{Op: op, Out: out}
	copy(i.Args[:], args)
	return i
}

// ForEachReg visits every register field of the instruction with a
// mutable reference: source registers and memory base registers first
// with isRead=true, then the definition with isRead=false. Absent
// registers are skipped.
func (i *Insn) ForEachReg(fn func(r *Reg, isRead bool)) {
	for a := range i.Args {
		switch i.Args[a].Kind {
		case KindReg:
			fn(&i.Args[a].Reg, true)
		case KindMem:
			if !i.Args[a].Mem.Base.IsNone() {
				fn(&i.Args[a].Mem.Base, true)
			}
		}
	}
	if !i.Out.IsNone() {
		fn(&i.Out, false)
	}
}

func (i Insn) String() string {
	s := i.Op.String()
	if !i.Out.IsNone() {
		s = i.Out.String() + " = " + s
	}
	for a := range i.Args {
		if i.Args[a].IsNone() {
			break
		}
		s += " " + i.Args[a].String()
	}
	return s
}
