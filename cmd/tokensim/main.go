// Command tokensim runs the tokenomics simulations, sweeps and the run API.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	cli "gopkg.in/urfave/cli.v1"

	"github.com/talgya/token-sim/internal/params"
)

const version = "0.3.0"

var (
	envFlag = cli.StringFlag{
		Name:  "env",
		Usage: "`FILE` of KEY=value parameter overrides",
	}
	setFlag = cli.StringSliceFlag{
		Name:  "set",
		Usage: "parameter override `KEY=VALUE` (repeatable, applied after --env)",
	}
	verboseFlag = cli.BoolFlag{
		Name:  "verbose",
		Usage: "log per-quarter engine detail",
	}
	yearsFlag = cli.IntFlag{
		Name:  "years",
		Usage: "simulation horizon in years (default from parameters)",
	}
	seedFlag = cli.Int64Flag{
		Name:  "seed",
		Usage: "seed for the engines' random draws",
		Value: 42,
	}
	marketSeedFlag = cli.Int64Flag{
		Name:  "market-seed",
		Usage: "seed for the synthetic market index (default: --seed)",
	}
	dbFlag = cli.StringFlag{
		Name:  "db",
		Usage: "SQLite database `PATH`",
	}
)

func main() {
	app := cli.NewApp()
	app.Name = "tokensim"
	app.Usage = "compare tokenomics designs by simulation"
	app.Version = version
	app.Writer = os.Stdout
	app.Flags = []cli.Flag{envFlag, setFlag, verboseFlag}
	app.Before = func(c *cli.Context) error {
		setupLogging(os.Stderr, c.GlobalBool("verbose"))
		return nil
	}
	app.Commands = []cli.Command{
		runCommand,
		sweepCommand,
		serveCommand,
		scenariosCommand,
		paramsCommand,
	}

	if err := app.Run(os.Args); err != nil {
		slog.Error("tokensim failed", "error", err)
		os.Exit(1)
	}
}

// setupLogging installs a text handler on terminals and JSON elsewhere.
func setupLogging(w *os.File, verbose bool) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}

	var h slog.Handler
	if isatty.IsTerminal(w.Fd()) || isatty.IsCygwinTerminal(w.Fd()) {
		h = slog.NewTextHandler(w, opts)
	} else {
		h = slog.NewJSONHandler(w, opts)
	}
	slog.SetDefault(slog.New(h))
}

// loadSet builds the parameter set from defaults, --env, --set and --years.
func loadSet(c *cli.Context) (params.Set, error) {
	set := params.DefaultSet()
	if path := c.GlobalString("env"); path != "" {
		if err := set.LoadOverrides(path); err != nil {
			return set, err
		}
		slog.Info("parameter overrides loaded", "file", path)
	}
	if pairs := c.GlobalStringSlice("set"); len(pairs) > 0 {
		values, err := parsePairs(pairs)
		if err != nil {
			return set, err
		}
		if err := set.ApplyStrings(values); err != nil {
			return set, err
		}
	}
	if c.IsSet("years") {
		set.Years = c.Int("years")
	}
	if err := set.Validate(); err != nil {
		return set, err
	}
	return set, nil
}

func parsePairs(pairs []string) (map[string]string, error) {
	values := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("--set %q: want KEY=VALUE", p)
		}
		values[k] = v
	}
	return values, nil
}

// marketSeed falls back to --seed when --market-seed is absent.
func marketSeed(c *cli.Context) int64 {
	if c.IsSet("market-seed") {
		return c.Int64("market-seed")
	}
	return c.Int64("seed")
}

func out(c *cli.Context) io.Writer {
	return c.App.Writer
}
