// lyre-ra runs the back-end register allocator over MIR procedures
// described in YAML. It exists for testing the allocation passes
// rather than practical use: each stage of the pipeline can be dumped
// on its own.
package main

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"runtime"

	"github.com/lyre-lang/lyre/pkg/abi"
	"github.com/lyre-lang/lyre/pkg/mir"
	"github.com/lyre-lang/lyre/pkg/miryaml"
	"github.com/lyre-lang/lyre/pkg/regalloc"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var version = "0.1.0"

var (
	abiName string
	jobs    int

	dMIR   bool // dump the input MIR
	dLive  bool // dump liveness and interference neighborhoods
	dGraph bool // dump the interference graph
	dColor bool // dump the allocated MIR
)

func main() {
	os.Exit(run())
}

func run() int {
	rootCmd := newRootCmd(os.Stdout, os.Stderr)
	rootCmd.SetArgs(os.Args[1:])
	if err := rootCmd.Execute(); err != nil {
		return 1
	}
	return 0
}

func newRootCmd(out, errOut io.Writer) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "lyre-ra [file...]",
		Short: "lyre-ra allocates registers for MIR procedures",
		Long: `lyre-ra runs the lyre back-end register allocator over MIR
procedures described in YAML, one result per procedure. It is a
testing tool for the allocation passes; the interpreter drives the
same pipeline in memory.`,
		Version:       version,
		Args:          cobra.MinimumNArgs(0),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				cmd.Help()
				return nil
			}
			d := abi.ByName(abiName)
			if d == nil {
				return fmt.Errorf("lyre-ra: unknown ABI %q", abiName)
			}
			for _, filename := range args {
				if err := processFile(filename, d, out, errOut); err != nil {
					fmt.Fprintf(errOut, "lyre-ra: %v\n", err)
					return err
				}
			}
			return nil
		},
	}
	rootCmd.SetOut(out)
	rootCmd.SetErr(errOut)

	rootCmd.Flags().StringVar(&abiName, "abi", abi.Default.Name, "Target ABI (sysv64 or win64)")
	rootCmd.Flags().IntVar(&jobs, "jobs", runtime.NumCPU(), "Procedures to allocate in parallel")
	rootCmd.Flags().BoolVar(&dMIR, "dmir", false, "Dump the input MIR")
	rootCmd.Flags().BoolVar(&dLive, "dlive", false, "Dump liveness and interference neighborhoods")
	rootCmd.Flags().BoolVar(&dGraph, "dgraph", false, "Dump the interference graph")
	rootCmd.Flags().BoolVar(&dColor, "dcolor", true, "Dump the allocated MIR")

	return rootCmd
}

// processFile allocates every procedure in one YAML file. Procedures
// are independent, so they are allocated in parallel; output is
// buffered per procedure and emitted in file order.
func processFile(filename string, d *abi.Desc, out, errOut io.Writer) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return err
	}
	procs, err := miryaml.Load(data, d)
	if err != nil {
		return fmt.Errorf("%s: %w", filename, err)
	}

	bufs := make([]bytes.Buffer, len(procs))
	var g errgroup.Group
	g.SetLimit(jobs)
	for i := range procs {
		i := i
		g.Go(func() error {
			return processProc(&procs[i], d, &bufs[i])
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("%s: %w", filename, err)
	}
	for i := range bufs {
		io.Copy(out, &bufs[i])
	}
	return nil
}

func processProc(np *miryaml.NamedProc, d *abi.Desc, w io.Writer) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("procedure %q: %v", np.Name, r)
		}
	}()

	printer := mir.NewPrinter(w)
	if dMIR {
		fmt.Fprintf(w, "-- %s (input)\n", np.Name)
		printer.PrintProc(np.Proc)
	}
	if dLive || dGraph {
		g := regalloc.BuildGraph(np.Proc, d)
		if dGraph {
			fmt.Fprintf(w, "-- %s (interference)\n", np.Name)
			g.Dump(w)
		}
		if dLive {
			fmt.Fprintf(w, "-- %s (liveness)\n", np.Name)
			g.DumpLifetime(w, np.Proc)
		}
	}

	regalloc.AllocateFor(np.Proc, d)

	if dColor {
		fmt.Fprintf(w, "-- %s\n", np.Name)
		printer.PrintProc(np.Proc)
	}
	return nil
}
