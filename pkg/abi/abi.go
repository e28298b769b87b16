// Package abi describes the target calling conventions consumed by the
// back-end. A Desc enumerates the physical register sets of one ABI and
// derives a signed index space over them: FP registers sit at negative
// indices, 0 is the none sentinel, GP registers sit at positive indices.
// ToNative/FromNative are the single source of truth for that mapping;
// everything downstream of the allocator consumes it unchanged.
package abi

// Native identifies a hardware register of the target.
type Native uint8

// x86-64 register identities.
const (
	NoReg Native = iota
	RAX
	RCX
	RDX
	RBX
	RSP
	RBP
	RSI
	RDI
	R8
	R9
	R10
	R11
	R12
	R13
	R14
	R15
	XMM0
	XMM1
	XMM2
	XMM3
	XMM4
	XMM5
	XMM6
	XMM7
	XMM8
	XMM9
	XMM10
	XMM11
	XMM12
	XMM13
	XMM14
	XMM15
)

var nativeNames = map[Native]string{
	RAX: "AX", RCX: "CX", RDX: "DX", RBX: "BX",
	RSP: "SP", RBP: "BP", RSI: "SI", RDI: "DI",
	R8: "8", R9: "9", R10: "10", R11: "11",
	R12: "12", R13: "13", R14: "14", R15: "15",
	XMM0: "X0", XMM1: "X1", XMM2: "X2", XMM3: "X3",
	XMM4: "X4", XMM5: "X5", XMM6: "X6", XMM7: "X7",
	XMM8: "X8", XMM9: "X9", XMM10: "X10", XMM11: "X11",
	XMM12: "X12", XMM13: "X13", XMM14: "X14", XMM15: "X15",
}

// Index is a register in the signed index space:
// fp_nonvolatile ++ fp_volatile at [-NumFP, -1], 0 none,
// gp_volatile ++ gp_nonvolatile at [1, NumGP].
type Index = int32

// Desc describes one calling convention.
type Desc struct {
	Name string

	GPVolatile    []Native
	GPNonvolatile []Native
	FPVolatile    []Native
	FPNonvolatile []Native

	GPArgument []Native
	FPArgument []Native
	GPRetval   Native
	FPRetval   Native

	SP Native
	BP Native

	// ShadowStack is the byte reserve the caller leaves above the
	// return address for the callee's use.
	ShadowStack int32

	// CombinedArgCounter indicates GP and FP argument positions share
	// one counter (Win64) instead of class-local counters (SysV).
	CombinedArgCounter bool
}

// SysV64 is the System V AMD64 calling convention.
var SysV64 = &Desc{
	Name:          "sysv64",
	GPNonvolatile: []Native{RBP, RBX, R12, R13, R14, R15},
	GPVolatile:    []Native{RAX, RDI, RSI, RDX, RCX, R8, R9, R10, R11},
	GPArgument:    []Native{RDI, RSI, RDX, RCX, R8, R9},
	GPRetval:      RAX,
	FPNonvolatile: nil,
	FPVolatile:    []Native{XMM0, XMM1, XMM2, XMM3, XMM4, XMM5, XMM6, XMM7, XMM8, XMM9, XMM10, XMM11, XMM12, XMM13, XMM14, XMM15},
	FPArgument:    []Native{XMM0, XMM1, XMM2, XMM3, XMM4, XMM5, XMM6, XMM7},
	FPRetval:      XMM0,
	SP:            RSP,
	BP:            RBP,
	ShadowStack:   0x20,
}

// Win64 is the Microsoft x64 calling convention.
var Win64 = &Desc{
	Name:               "win64",
	GPNonvolatile:      []Native{RBP, RSI, RDI, RBX, R12, R13, R14, R15},
	GPVolatile:         []Native{RAX, RCX, RDX, R8, R9, R10, R11},
	GPArgument:         []Native{RCX, RDX, R8, R9},
	GPRetval:           RAX,
	FPNonvolatile:      []Native{XMM6, XMM7, XMM8, XMM9, XMM10, XMM11, XMM12, XMM13, XMM14, XMM15},
	FPVolatile:         []Native{XMM0, XMM1, XMM2, XMM3, XMM4, XMM5},
	FPArgument:         []Native{XMM0, XMM1, XMM2, XMM3},
	FPRetval:           XMM0,
	SP:                 RSP,
	BP:                 RBP,
	ShadowStack:        0x20,
	CombinedArgCounter: true,
}

// Default is the descriptor used when the caller does not pick one.
var Default = SysV64

// ByName returns the descriptor with the given name, or nil.
func ByName(name string) *Desc {
	switch name {
	case SysV64.Name:
		return SysV64
	case Win64.Name:
		return Win64
	}
	return nil
}

// NumGP returns the number of allocatable GP registers.
func (d *Desc) NumGP() int { return len(d.GPVolatile) + len(d.GPNonvolatile) }

// NumFP returns the number of allocatable FP registers.
func (d *Desc) NumFP() int { return len(d.FPVolatile) + len(d.FPNonvolatile) }

// ToNative translates an index to the native register, NoReg if out of
// range. Positive indices walk gp_volatile then gp_nonvolatile;
// negative indices walk fp_nonvolatile then fp_volatile, with -1 being
// the last FP volatile register.
func (d *Desc) ToNative(i Index) Native {
	switch {
	case i > 0:
		n := int(i) - 1
		if n < len(d.GPVolatile) {
			return d.GPVolatile[n]
		}
		n -= len(d.GPVolatile)
		if n < len(d.GPNonvolatile) {
			return d.GPNonvolatile[n]
		}
	case i < 0:
		n := d.NumFP() + int(i)
		if n < 0 {
			return NoReg
		}
		if n < len(d.FPNonvolatile) {
			return d.FPNonvolatile[n]
		}
		n -= len(d.FPNonvolatile)
		if n < len(d.FPVolatile) {
			return d.FPVolatile[n]
		}
	}
	return NoReg
}

// FromNative is the reverse lookup; 0 if the register is not part of
// the allocatable sets.
func (d *Desc) FromNative(n Native) Index {
	if n == NoReg {
		return 0
	}
	for i := -Index(d.NumFP()); i <= Index(d.NumGP()); i++ {
		if i != 0 && d.ToNative(i) == n {
			return i
		}
	}
	return 0
}

// IsVolatile reports whether index i names a caller-saved register.
func (d *Desc) IsVolatile(i Index) bool {
	lim := Index(len(d.GPVolatile))
	if i < 0 {
		lim = Index(len(d.FPVolatile))
		i = -i
	}
	return i > 0 && i <= lim
}

// MapArgument returns the index of the register receiving the
// (gpIdx, fpIdx)-th argument of the requested class, 0 if the argument
// is passed on the stack.
func (d *Desc) MapArgument(gpIdx, fpIdx int, fp bool) Index {
	if !fp {
		idx := gpIdx
		if d.CombinedArgCounter {
			idx = gpIdx + fpIdx
		}
		if idx < len(d.GPArgument) {
			return d.FromNative(d.GPArgument[idx])
		}
		return 0
	}
	idx := fpIdx
	if d.CombinedArgCounter {
		idx = gpIdx + fpIdx
	}
	if idx < len(d.FPArgument) {
		return d.FromNative(d.FPArgument[idx])
	}
	return 0
}

// NameNative returns the diagnostic name of a native register.
func NameNative(n Native) string {
	if s, ok := nativeNames[n]; ok {
		return s
	}
	return "?"
}

// RegName returns the diagnostic name of the register at index i.
func (d *Desc) RegName(i Index) string {
	return NameNative(d.ToNative(i))
}
