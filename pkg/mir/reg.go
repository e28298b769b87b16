// Package mir defines the machine-level intermediate representation.
// MIR is the final IR before encoding: instructions carry concrete
// opcodes and addressing but operate on an unbounded supply of virtual
// registers until the allocator rewrites them to physical ones.
package mir

import (
	"fmt"

	"github.com/lyre-lang/lyre/pkg/abi"
)

// Reg identifies a register. The 32-bit id space is banded:
//
//	0                  none
//	[1, physFPBase)    pseudo registers (flags, reserved virtuals, sp)
//	[physFPBase, ...)  pre-colored FP then GP physical registers
//	[VRegFirst, ...)   allocatable virtuals, GP on even offsets, FP on odd
type Reg uint32

const (
	// RegNone is the absent register.
	RegNone Reg = 0
	// RegFlags is the condition flag register. Opaque to allocation.
	RegFlags Reg = 1
	// VRegVM holds the interpreter context on procedure entry.
	VRegVM Reg = 2
	// VRegTOS holds the incoming top-of-stack pointer.
	VRegTOS Reg = 3
	// VRegNArgs holds the incoming argument count.
	VRegNArgs Reg = 4
	// RegSP names the stack pointer for spill-slot addressing. The
	// emitter resolves it; the allocator treats it as pseudo.
	RegSP Reg = 5

	physFPBase Reg = 32
	physGPBase Reg = physFPBase + 32

	// VRegFirst is the first freely allocatable register id.
	VRegFirst Reg = physGPBase + 32
)

// FromUID reconstructs a register from its raw id.
func FromUID(uid uint32) Reg { return Reg(uid) }

// FromPhys returns the pre-colored register for a nonzero ABI index.
func FromPhys(i abi.Index) Reg {
	if i == 0 {
		return RegNone
	}
	if i < 0 {
		return physFPBase + Reg(-i-1)
	}
	return physGPBase + Reg(i-1)
}

// VirtGP returns the n-th GP virtual register.
func VirtGP(n uint32) Reg { return VRegFirst + Reg(2*n) }

// VirtFP returns the n-th FP virtual register.
func VirtFP(n uint32) Reg { return VRegFirst + Reg(2*n+1) }

// UID returns the raw id.
func (r Reg) UID() uint32 { return uint32(r) }

// IsNone reports whether the register is absent.
func (r Reg) IsNone() bool { return r == RegNone }

// IsFlag reports whether the register is the condition flag register.
func (r Reg) IsFlag() bool { return r == RegFlags }

// IsPhys reports whether the register is pre-colored.
func (r Reg) IsPhys() bool { return r >= physFPBase && r < VRegFirst }

// IsVirt reports whether the register is freely allocatable.
func (r Reg) IsVirt() bool { return r >= VRegFirst }

// IsPseudo reports whether the register does not participate in
// allocation: flags, the reserved virtuals and the stack pointer.
func (r Reg) IsPseudo() bool { return r >= RegFlags && r < physFPBase }

// IsFP reports whether the register belongs to the FP class.
func (r Reg) IsFP() bool {
	if r.IsPhys() {
		return r < physGPBase
	}
	return r.IsVirt() && (r-VRegFirst)&1 == 1
}

// Phys returns the signed ABI index of a pre-colored register, 0 for
// anything else.
func (r Reg) Phys() abi.Index {
	switch {
	case r >= physFPBase && r < physGPBase:
		return -abi.Index(r-physFPBase) - 1
	case r >= physGPBase && r < VRegFirst:
		return abi.Index(r-physGPBase) + 1
	}
	return 0
}

// Virt returns the ordinal of a virtual register within its class.
func (r Reg) Virt() uint32 {
	if !r.IsVirt() {
		return 0
	}
	return uint32(r-VRegFirst) / 2
}

func (r Reg) String() string {
	switch r {
	case RegNone:
		return "_"
	case RegFlags:
		return "flags"
	case VRegVM:
		return "vm"
	case VRegTOS:
		return "tos"
	case VRegNArgs:
		return "nargs"
	case RegSP:
		return "sp"
	}
	switch {
	case r.IsPseudo():
		return fmt.Sprintf("pseudo%d", uint32(r))
	case r.IsPhys():
		return "$" + abi.Default.RegName(r.Phys())
	case r.IsFP():
		return fmt.Sprintf("f%d", r.Virt())
	default:
		return fmt.Sprintf("g%d", r.Virt())
	}
}
