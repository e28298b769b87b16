// Package mir printing. Format loosely follows the interpreter's
// bytecode dumps: one block header per basic block with successor
// links, one indented instruction per line.
package mir

import (
	"fmt"
	"io"
)

// Printer outputs MIR procedures.
type Printer struct {
	w io.Writer
}

// NewPrinter creates a new MIR printer.
func NewPrinter(w io.Writer) *Printer {
	return &Printer{w: w}
}

// PrintProc prints a procedure.
func (p *Printer) PrintProc(proc *Proc) {
	for _, b := range proc.Blocks {
		p.PrintBlock(b)
	}
	if proc.UsedStackLength != 0 || proc.UsedGPMask != 0 || proc.UsedFPMask != 0 {
		fmt.Fprintf(p.w, "; stack=%d gp_mask=%#x fp_mask=%#x\n",
			proc.UsedStackLength, proc.UsedGPMask, proc.UsedFPMask)
	}
}

// PrintBlock prints one basic block.
func (p *Printer) PrintBlock(b *Block) {
	fmt.Fprintf(p.w, "$%d:", b.UID)
	if len(b.Successors) > 0 {
		fmt.Fprintf(p.w, " ->")
		for _, s := range b.Successors {
			fmt.Fprintf(p.w, " $%d", s.UID)
		}
	}
	if b.Hot > 0 {
		fmt.Fprintf(p.w, " [hot %d]", b.Hot)
	}
	if b.Hot < 0 {
		fmt.Fprintf(p.w, " [cold %d]", -b.Hot)
	}
	fmt.Fprintln(p.w)
	for i := range b.Insns {
		fmt.Fprintf(p.w, "\t%s\n", b.Insns[i].String())
	}
}
