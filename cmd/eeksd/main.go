// Command eeksd is a thin wiring demo for the extension runtime: it
// assembles a Registry over a bare in-memory World and exposes the reload
// pass and command router as a tiny verb-based CLI, the same funcmain/
// verbs-map shape the teacher's own cmd/distri binary uses.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"sort"
	"time"

	"golang.org/x/xerrors"

	"github.com/eeks-rt/eeks"
	"github.com/eeks-rt/eeks/internal/dispatch"
	"github.com/eeks-rt/eeks/internal/progress"
	"github.com/eeks-rt/eeks/internal/registry"
)

var (
	debug          = flag.Bool("debug", false, "enable debug mode: format error messages with additional detail")
	interval       = flag.Duration("interval", 2*time.Second, "how often the watch verb re-runs the reload pass")
	maxConcurrency = flag.Int("max_concurrency", 0, "bound how many systems of a stage run at once (0 = unbounded)")
)

func funcmain() error {
	flag.Parse()

	logger := log.Default()
	cfg := eeks.LoadConfig(logger)

	reg, err := registry.New(cfg, newMemWorld(), logger)
	if err != nil {
		return err
	}
	defer reg.Close()

	renderer := progress.NewRenderer(os.Stdout)
	reg.Observer = renderer.Observer()

	type cmd struct {
		fn func(ctx context.Context, args []string) error
	}
	verbs := map[string]cmd{
		"watch":   {cmdWatch(reg)},
		"reload":  {cmdReload(reg)},
		"command": {cmdCommand(reg)},
	}

	args := flag.Args()
	verb := "watch"
	if len(args) > 0 {
		verb, args = args[0], args[1:]
	}
	v, ok := verbs[verb]
	if !ok {
		return xerrors.Errorf("unknown command %q (syntax: eeksd <watch|reload|command> [args])", verb)
	}

	ctx, canc := eeks.InterruptibleContext()
	defer canc()
	if err := v.fn(ctx, args); err != nil {
		if *debug {
			return fmt.Errorf("%s: %+v", verb, err)
		}
		return fmt.Errorf("%s: %v", verb, err)
	}
	return eeks.RunAtExit()
}

// cmdReload runs exactly one discover-then-reload pass and exits.
func cmdReload(reg *registry.Registry) func(context.Context, []string) error {
	return func(ctx context.Context, args []string) error {
		if err := reg.Discover(ctx); err != nil {
			return err
		}
		return reg.Reload(ctx)
	}
}

// cmdWatch repeatedly discovers and reloads extensions, dispatching every
// compiled workload group after each pass, until interrupted.
func cmdWatch(reg *registry.Registry) func(context.Context, []string) error {
	return func(ctx context.Context, args []string) error {
		eng := dispatch.New(reg.World, reg.Logger, *maxConcurrency)
		for {
			if err := reg.Discover(ctx); err != nil {
				return err
			}
			if err := reg.Reload(ctx); err != nil {
				return err
			}
			for _, group := range sortedGroups(reg.Workloads) {
				if err := eng.Run(ctx, reg.Workloads[group]); err != nil {
					return err
				}
			}
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(*interval):
			}
		}
	}
}

// cmdCommand discovers and reloads once, then evaluates args as a single
// command (spec.md §6) and prints its result.
func cmdCommand(reg *registry.Registry) func(context.Context, []string) error {
	return func(ctx context.Context, args []string) error {
		if err := reg.Discover(ctx); err != nil {
			return err
		}
		if err := reg.Reload(ctx); err != nil {
			return err
		}
		result, err := reg.Command(ctx, args)
		if err != nil {
			return err
		}
		fmt.Println(result)
		return nil
	}
}

func sortedGroups(workloads map[string]*eeks.Workload) []string {
	names := make([]string, 0, len(workloads))
	for name := range workloads {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func main() {
	if err := funcmain(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
