// Package miryaml loads MIR procedures from YAML descriptions. The
// format exists for the driver CLI and for test fixtures; the real
// front-end builds procedures in memory.
//
// Registers are written "g<n>" / "f<n>" for virtuals, "$<name>" for a
// physical register under the active ABI, and "vm", "tos", "nargs",
// "flags", "sp", "_" for the reserved identities. Operands are a
// number (immediate), a register string, or {mem: {base: ..., disp: ...}}.
package miryaml

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/lyre-lang/lyre/pkg/abi"
	"github.com/lyre-lang/lyre/pkg/mir"
	"gopkg.in/yaml.v3"
)

// NamedProc pairs a procedure with its fixture name.
type NamedProc struct {
	Name string
	Proc *mir.Proc
}

type fileSpec struct {
	Procedures []procSpec `yaml:"procedures"`
}

type procSpec struct {
	Name   string      `yaml:"name"`
	Blocks []blockSpec `yaml:"blocks"`
}

type blockSpec struct {
	ID    uint32     `yaml:"id"`
	Hot   int32      `yaml:"hot,omitempty"`
	Succ  []uint32   `yaml:"succ,omitempty"`
	Insns []insnSpec `yaml:"insns"`
}

type insnSpec struct {
	Op   string `yaml:"op"`
	Out  string `yaml:"out,omitempty"`
	Args []any  `yaml:"args,omitempty"`
}

var opNames = map[string]mir.Op{
	"nop":     mir.Nop,
	"movgp":   mir.MovGP,
	"movfp":   mir.MovFP,
	"loadgp":  mir.LoadGP,
	"storegp": mir.StoreGP,
	"loadfp":  mir.LoadFP,
	"storefp": mir.StoreFP,
	"add":     mir.Add,
	"sub":     mir.Sub,
	"mul":     mir.Mul,
	"div":     mir.Div,
	"and":     mir.And,
	"or":      mir.Or,
	"xor":     mir.Xor,
	"shr":     mir.Shr,
	"cmp":     mir.Cmp,
	"test":    mir.Test,
	"jmp":     mir.Jmp,
	"jcc":     mir.Jcc,
	"call":    mir.Call,
	"ret":     mir.Ret,
}

// Load parses every procedure in data against the given ABI.
func Load(data []byte, d *abi.Desc) ([]NamedProc, error) {
	var spec fileSpec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return nil, fmt.Errorf("miryaml: %w", err)
	}
	procs := make([]NamedProc, 0, len(spec.Procedures))
	for _, ps := range spec.Procedures {
		p, err := buildProc(&ps, d)
		if err != nil {
			return nil, fmt.Errorf("miryaml: procedure %q: %w", ps.Name, err)
		}
		procs = append(procs, NamedProc{Name: ps.Name, Proc: p})
	}
	return procs, nil
}

func buildProc(ps *procSpec, d *abi.Desc) (*mir.Proc, error) {
	if len(ps.Blocks) == 0 {
		return nil, fmt.Errorf("no blocks")
	}
	p := &mir.Proc{}
	byID := make(map[uint32]*mir.Block, len(ps.Blocks))
	for _, bs := range ps.Blocks {
		if _, dup := byID[bs.ID]; dup {
			return nil, fmt.Errorf("duplicate block id %d", bs.ID)
		}
		b := p.NewBlock()
		b.UID = bs.ID
		b.Hot = bs.Hot
		byID[bs.ID] = b
	}
	for _, bs := range ps.Blocks {
		b := byID[bs.ID]
		for _, sid := range bs.Succ {
			s, ok := byID[sid]
			if !ok {
				return nil, fmt.Errorf("block %d: unknown successor %d", bs.ID, sid)
			}
			b.AddSuccessor(s)
		}
		for i, is := range bs.Insns {
			in, err := buildInsn(&is, d)
			if err != nil {
				return nil, fmt.Errorf("block %d, insn %d: %w", bs.ID, i, err)
			}
			b.Push(in)
		}
	}
	p.ReserveAll()
	return p, nil
}

func buildInsn(is *insnSpec, d *abi.Desc) (mir.Insn, error) {
	op, ok := opNames[strings.ToLower(is.Op)]
	if !ok {
		return mir.Insn{}, fmt.Errorf("unknown opcode %q", is.Op)
	}
	out := mir.RegNone
	if is.Out != "" {
		r, err := ParseReg(is.Out, d)
		if err != nil {
			return mir.Insn{}, err
		}
		out = r
	}
	in := mir.Insn{Op: op, Out: out}
	if len(is.Args) > len(in.Args) {
		return mir.Insn{}, fmt.Errorf("too many operands (%d)", len(is.Args))
	}
	for i, a := range is.Args {
		o, err := buildOperand(a, d)
		if err != nil {
			return mir.Insn{}, err
		}
		in.Args[i] = o
	}
	return in, nil
}

func buildOperand(v any, d *abi.Desc) (mir.Operand, error) {
	switch a := v.(type) {
	case int:
		return mir.ImmOp(int64(a)), nil
	case int64:
		return mir.ImmOp(a), nil
	case uint64:
		return mir.ImmOp(int64(a)), nil
	case string:
		r, err := ParseReg(a, d)
		if err != nil {
			return mir.Operand{}, err
		}
		return mir.RegOp(r), nil
	case map[string]any:
		mv, ok := a["mem"]
		if !ok {
			return mir.Operand{}, fmt.Errorf("operand map must have a mem key")
		}
		mm, ok := mv.(map[string]any)
		if !ok {
			return mir.Operand{}, fmt.Errorf("mem operand must be a mapping")
		}
		var m mir.Mem
		if bv, ok := mm["base"]; ok {
			bs, ok := bv.(string)
			if !ok {
				return mir.Operand{}, fmt.Errorf("mem base must be a register")
			}
			r, err := ParseReg(bs, d)
			if err != nil {
				return mir.Operand{}, err
			}
			m.Base = r
		}
		if dv, ok := mm["disp"]; ok {
			di, ok := dv.(int)
			if !ok {
				return mir.Operand{}, fmt.Errorf("mem disp must be an integer")
			}
			m.Disp = int32(di)
		}
		return mir.MemOp(m), nil
	}
	return mir.Operand{}, fmt.Errorf("bad operand %v (%T)", v, v)
}

// ParseReg parses one register name under the given ABI.
func ParseReg(s string, d *abi.Desc) (mir.Reg, error) {
	switch s {
	case "_", "":
		return mir.RegNone, nil
	case "flags":
		return mir.RegFlags, nil
	case "vm":
		return mir.VRegVM, nil
	case "tos":
		return mir.VRegTOS, nil
	case "nargs":
		return mir.VRegNArgs, nil
	case "sp":
		return mir.RegSP, nil
	}
	if name, ok := strings.CutPrefix(s, "$"); ok {
		for i := -abi.Index(d.NumFP()); i <= abi.Index(d.NumGP()); i++ {
			if i != 0 && d.RegName(i) == name {
				return mir.FromPhys(i), nil
			}
		}
		return mir.RegNone, fmt.Errorf("unknown physical register %q", s)
	}
	if len(s) > 1 && (s[0] == 'g' || s[0] == 'f') {
		n, err := strconv.ParseUint(s[1:], 10, 32)
		if err == nil {
			if s[0] == 'f' {
				return mir.VirtFP(uint32(n)), nil
			}
			return mir.VirtGP(uint32(n)), nil
		}
	}
	return mir.RegNone, fmt.Errorf("bad register %q", s)
}

// FormatReg renders a register in the syntax ParseReg accepts.
func FormatReg(r mir.Reg, d *abi.Desc) string {
	if r.IsPhys() {
		return "$" + d.RegName(r.Phys())
	}
	return r.String()
}
