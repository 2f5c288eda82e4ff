// shapectl drives and inspects the shapegraph object model.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/peterh/liner"
	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"
	"golang.org/x/sync/errgroup"

	"github.com/chazu/shapegraph/config"
	"github.com/chazu/shapegraph/driver"
	"github.com/chazu/shapegraph/shape"
	"github.com/chazu/shapegraph/snapshot"
	"github.com/chazu/shapegraph/worker"
)

const (
	appName     = "shapectl"
	historyFile = ".shapectl_history"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	cmd := os.Args[1]
	switch cmd {
	case "run":
		os.Exit(cmdRun(os.Args[2:]))
	case "repl":
		os.Exit(cmdRepl(os.Args[2:]))
	case "dump":
		os.Exit(cmdDump(os.Args[2:]))
	case "inspect":
		os.Exit(cmdInspect(os.Args[2:]))
	case "stress":
		os.Exit(cmdStress(os.Args[2:]))
	case "-h", "--help", "help":
		usage()
		os.Exit(0)
	default:
		fmt.Fprintf(os.Stderr, "%s: unknown command %q\n", appName, cmd)
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Printf(`Usage:
  %s run [-config file] [-v n] [-stats] <script>...   Run shape scripts.
  %s repl [-config file] [-v n]                       Start an interactive session.
  %s dump [-config file] -o <out.cbor> <script>...    Run scripts and write a shape graph snapshot.
  %s inspect [-shape id] <snapshot.cbor>              Print a snapshot, or one shape's lineage.
  %s stress [-goroutines n] [-objects n] [-props n] [-worker]
                                                      Build shapes from many goroutines.

Configuration is read from -config, or from the nearest shapegraph.toml
above the working directory.
`, appName, appName, appName, appName, appName)
}

// common holds the flags shared by the script-running commands.
type common struct {
	configPath *string
	verbosity  *int
}

func commonFlags(fs *flag.FlagSet) *common {
	return &common{
		configPath: fs.String("config", "", "path to shapegraph.toml"),
		verbosity:  fs.Int("v", -1, "log verbosity (overrides [log] verbosity)"),
	}
}

// setup loads the configuration and configures logging.
func (c *common) setup() (*config.Config, error) {
	var cfg *config.Config
	var err error
	if *c.configPath != "" {
		cfg, err = config.LoadFile(*c.configPath)
	} else {
		cfg, err = config.FindAndLoad(".")
	}
	if err != nil {
		return nil, err
	}
	verbosity := cfg.Log.Verbosity
	if *c.verbosity >= 0 {
		verbosity = *c.verbosity
	}
	commonlog.Configure(verbosity, cfg.LogPath())
	return cfg, nil
}

func newDriver(cfg *config.Config, out io.Writer) *driver.Driver {
	a := shape.NewArena(cfg.ShapePolicy(), nil)
	return driver.New(a, cfg.CachePolicy(), out)
}

func runScripts(d *driver.Driver, paths []string) error {
	for _, path := range paths {
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		err = d.Run(f)
		_ = f.Close()
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
	}
	return nil
}

// -----------------------------------------------------------------------------
// run
// -----------------------------------------------------------------------------

func cmdRun(args []string) int {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	c := commonFlags(fs)
	stats := fs.Bool("stats", false, "print arena and cache statistics afterwards")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() == 0 {
		fmt.Fprintf(os.Stderr, "usage: %s run [-config file] [-stats] <script>...\n", appName)
		return 2
	}
	cfg, err := c.setup()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	d := newDriver(cfg, os.Stdout)
	defer d.Close()
	if err := runScripts(d, fs.Args()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	if *stats {
		_ = d.Exec("stats")
	}
	return 0
}

// -----------------------------------------------------------------------------
// repl
// -----------------------------------------------------------------------------

func cmdRepl(args []string) int {
	fs := flag.NewFlagSet("repl", flag.ContinueOnError)
	c := commonFlags(fs)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	cfg, err := c.setup()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	home, _ := os.UserHomeDir()
	histPath := filepath.Join(home, historyFile)

	ln := liner.NewLiner()
	defer ln.Close()
	ln.SetCtrlCAborts(true)

	if f, err := os.Open(histPath); err == nil {
		_, _ = ln.ReadHistory(f)
		_ = f.Close()
	}
	defer func() {
		if f, err := os.Create(histPath); err == nil {
			_, _ = ln.WriteHistory(f)
			_ = f.Close()
		}
	}()

	d := newDriver(cfg, os.Stdout)
	defer d.Close()
	fmt.Println("shapegraph repl. Type :quit to exit.")

	for {
		line, err := ln.Prompt("shape> ")
		if errors.Is(err, io.EOF) || errors.Is(err, liner.ErrPromptAborted) {
			fmt.Println()
			return 0
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		line = strings.TrimSpace(line)
		switch line {
		case "":
			continue
		case ":quit", ":q":
			return 0
		}
		ln.AppendHistory(line)
		if err := d.Exec(line); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
	}
}

// -----------------------------------------------------------------------------
// dump / inspect
// -----------------------------------------------------------------------------

func cmdDump(args []string) int {
	fs := flag.NewFlagSet("dump", flag.ContinueOnError)
	c := commonFlags(fs)
	out := fs.String("o", "shapes.cbor", "output file")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() == 0 {
		fmt.Fprintf(os.Stderr, "usage: %s dump [-config file] -o <out.cbor> <script>...\n", appName)
		return 2
	}
	cfg, err := c.setup()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	d := newDriver(cfg, io.Discard)
	defer d.Close()
	if err := runScripts(d, fs.Args()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	snap := snapshot.Capture(d.Arena())
	if err := snapshot.WriteFile(*out, snap); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	fmt.Printf("wrote %s shapes to %s\n", humanize.Comma(int64(len(snap.Shapes))), *out)
	return 0
}

func cmdInspect(args []string) int {
	fs := flag.NewFlagSet("inspect", flag.ContinueOnError)
	id := fs.Uint64("shape", 0, "print the lineage of this shape ID (raw number)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "usage: %s inspect [-shape id] <snapshot.cbor>\n", appName)
		return 2
	}
	snap, err := snapshot.ReadFile(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	if *id == 0 {
		if err := snap.WriteText(os.Stdout); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		return 0
	}
	path, err := snap.Lineage(*id)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	for i, n := range path {
		edge := n.Edge
		if edge == "" {
			edge = "root"
		}
		fmt.Printf("%s%s %s (%d props)\n", strings.Repeat("  ", i), shape.ID(n.ID), edge, len(n.Properties))
	}
	return 0
}

// -----------------------------------------------------------------------------
// stress
// -----------------------------------------------------------------------------

func cmdStress(args []string) int {
	fs := flag.NewFlagSet("stress", flag.ContinueOnError)
	c := commonFlags(fs)
	goroutines := fs.Int("goroutines", 8, "number of concurrent builders")
	objects := fs.Int("objects", 1000, "objects built per goroutine")
	props := fs.Int("props", 8, "properties added to each object")
	useWorker := fs.Bool("worker", false, "serialize through a worker instead of a concurrent arena")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	cfg, err := c.setup()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	policy := cfg.ShapePolicy()
	policy.Concurrent = !*useWorker
	a := shape.NewArena(policy, nil)
	names := make([]string, *props)
	for i := range names {
		names[i] = fmt.Sprintf("p%d", i)
	}

	// Each builder returns the final shape of its last object; all of them
	// must agree since they add the same properties in the same order.
	finals := make([]shape.ID, *goroutines)
	build := func(a *shape.Arena) shape.ID {
		var last *shape.Object
		for i := 0; i < *objects; i++ {
			o := shape.NewObject(a, nil)
			for j, name := range names {
				o.Put(name, int64(j))
			}
			if last != nil {
				last.Release()
			}
			last = o
		}
		if last == nil {
			return shape.InvalidID
		}
		id := last.ShapeID()
		a.Retain(id)
		last.Release()
		return id
	}

	ctx := context.Background()
	var w *worker.Worker
	if *useWorker {
		w = worker.New(a)
		defer w.Stop()
	}
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < *goroutines; i++ {
		i := i
		g.Go(func() error {
			if w == nil {
				finals[i] = build(a)
				return nil
			}
			v, err := w.Do(ctx, func(a *shape.Arena) (any, error) { return build(a), nil })
			if err != nil {
				return err
			}
			finals[i] = v.(shape.ID)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	for i, id := range finals {
		if id != finals[0] {
			fmt.Fprintf(os.Stderr, "Error: builder %d ended on %s, builder 0 on %s\n", i, id, finals[0])
			return 1
		}
	}
	st := a.Stats()
	fmt.Printf("built %s objects on %d goroutines\n", humanize.Comma(int64(*goroutines**objects)), *goroutines)
	fmt.Printf("shapes: %s allocated, %s live, %s discarded races\n",
		humanize.Comma(int64(st.Allocated)), humanize.Comma(int64(st.Live)), humanize.Comma(int64(st.Discarded)))
	fmt.Printf("transitions: %s hits, %s misses\n",
		humanize.Comma(int64(st.TransitionHits)), humanize.Comma(int64(st.TransitionMisses)))
	return 0
}
