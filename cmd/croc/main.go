// Croc CLI - runs compiled Croc modules.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"github.com/croclang/croc/manifest"
	"github.com/croclang/croc/vm"
	"github.com/croclang/croc/wire"
)

func main() {
	verbose := flag.Int("v", 0, "Log verbosity (0-2)")
	disassemble := flag.Bool("d", false, "Disassemble the module instead of running it")
	trace := flag.Bool("trace", false, "Trace line execution to the log")
	noCache := flag.Bool("no-cache", false, "Skip the module cache")
	gcStats := flag.Bool("gc-stats", false, "Print GC statistics after the run")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: croc [options] module.crocm [args...]\n\n")
		fmt.Fprintf(os.Stderr, "Runs a compiled Croc module. String arguments after the module\n")
		fmt.Fprintf(os.Stderr, "path are passed to the module's main function.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  croc hello.crocm            # Run a module\n")
		fmt.Fprintf(os.Stderr, "  croc -d hello.crocm         # Show its bytecode\n")
		fmt.Fprintf(os.Stderr, "  croc -trace -v 2 app.crocm  # Run with line tracing\n")
	}
	flag.Parse()

	commonlog.Configure(*verbose, nil)

	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(2)
	}
	modPath := flag.Arg(0)

	data, err := os.ReadFile(modPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading module: %v\n", err)
		os.Exit(1)
	}

	mod, err := wire.UnmarshalModule(data)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error decoding module: %v\n", err)
		os.Exit(1)
	}

	def, err := wire.DecodeModule(mod)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error decoding module: %v\n", err)
		os.Exit(1)
	}

	if *disassemble {
		fmt.Print(vm.Disassemble(def))
		return
	}

	// Project manifest, if any, configures limits and the cache.
	limits := vm.DefaultLimits
	m, err := manifest.FindAndLoad(filepath.Dir(modPath))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading croc.toml: %v\n", err)
		os.Exit(1)
	}
	if m != nil {
		if m.Runtime.MaxStack > 0 {
			limits.MaxStack = m.Runtime.MaxStack
		}
		if m.Runtime.MaxCallDepth > 0 {
			limits.MaxCallDepth = m.Runtime.MaxCallDepth
		}
		if m.Runtime.MaxEHFrames > 0 {
			limits.MaxEHFrames = m.Runtime.MaxEHFrames
		}
		if m.Runtime.GCThreshold > 0 {
			limits.GCThreshold = m.Runtime.GCThreshold
		}
	}

	if m != nil && !*noCache {
		if cache, err := vm.OpenModuleCache(m.CachePath()); err == nil {
			defer cache.Close()
			if _, err := cache.Put(mod.Name, data); err != nil {
				commonlog.GetLogger("croc.cli").Errorf("module cache: %v", err)
			}
		}
	}

	vmInst := vm.NewWithLimits(limits)
	if *trace || (m != nil && m.Hooks.Trace) {
		vmInst.MainThread().EnableTrace()
	}

	var args []vm.Value
	for _, a := range flag.Args()[1:] {
		args = append(args, vmInst.NewString(a))
	}

	results, err := vmInst.RunModule(def, args...)
	if serr, ok := err.(*vm.ScriptError); ok {
		fmt.Fprintln(os.Stderr, serr.TracebackString())
		os.Exit(1)
	} else if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	for _, r := range results {
		fmt.Println(vmInst.Display(r))
	}

	if *gcStats {
		cycles, swept, live := vmInst.Memory().Stats()
		fmt.Fprintf(os.Stderr, "gc: %d cycles, %d swept last, %d live\n", cycles, swept, live)
	}
}
