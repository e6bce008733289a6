package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	cli "gopkg.in/urfave/cli.v1"

	"github.com/talgya/token-sim/internal/api"
	"github.com/talgya/token-sim/internal/engine"
	"github.com/talgya/token-sim/internal/entropy"
	"github.com/talgya/token-sim/internal/market"
	"github.com/talgya/token-sim/internal/params"
	"github.com/talgya/token-sim/internal/persistence"
	"github.com/talgya/token-sim/internal/sweep"
)

var runCommand = cli.Command{
	Name:  "run",
	Usage: "run one or more variants and print yearly results",
	Flags: []cli.Flag{
		cli.StringFlag{
			Name:  "variant",
			Usage: "original, proposal, bme, a comma list, or all",
			Value: "all",
		},
		cli.StringFlag{
			Name:  "scenario",
			Usage: "market scenario (Baseline, Bull, Bear, HighVol)",
			Value: market.Baseline.Name,
		},
		yearsFlag,
		seedFlag,
		marketSeedFlag,
		dbFlag,
	},
	Action: runAction,
}

var sweepCommand = cli.Command{
	Name:  "sweep",
	Usage: "run every variant over a parameter grid and market scenarios",
	Flags: []cli.Flag{
		cli.StringFlag{
			Name:  "scenarios",
			Usage: "comma list of market scenarios, or all",
			Value: "all",
		},
		cli.StringFlag{
			Name:  "variant",
			Usage: "original, proposal, bme, a comma list, or all",
			Value: "all",
		},
		cli.IntFlag{
			Name:  "workers",
			Usage: "parallel members (0 = GOMAXPROCS)",
		},
		cli.BoolFlag{
			Name:  "full",
			Usage: "use the full robustness grid instead of the quick one",
		},
		cli.Float64Flag{
			Name:  "min-price",
			Usage: "final price below this counts as a failure",
			Value: 0.01,
		},
		cli.Float64Flag{
			Name:  "min-nodes",
			Usage: "final node count below this counts as a failure",
			Value: 100,
		},
		cli.StringFlag{
			Name:  "json",
			Usage: "write every member's result to `FILE`",
		},
		yearsFlag,
		seedFlag,
	},
	Action: sweepAction,
}

var serveCommand = cli.Command{
	Name:  "serve",
	Usage: "serve stored runs over HTTP",
	Flags: []cli.Flag{
		cli.IntFlag{
			Name:  "port",
			Usage: "HTTP listen port",
			Value: 8080,
		},
		cli.StringFlag{
			Name:  "db",
			Usage: "SQLite database `PATH`",
			Value: "data/tokensim.db",
		},
		cli.StringFlag{
			Name:   "admin-key",
			Usage:  "bearer token for POST /api/v1/runs (empty disables it)",
			EnvVar: "TOKENSIM_ADMIN_KEY",
		},
		cli.IntFlag{
			Name:  "runs-per-hour",
			Usage: "POST /api/v1/runs limit per client",
			Value: 30,
		},
	},
	Action: serveAction,
}

var scenariosCommand = cli.Command{
	Name:  "scenarios",
	Usage: "summarize the synthetic market under each scenario",
	Flags: []cli.Flag{yearsFlag, seedFlag, marketSeedFlag},
	Action: func(c *cli.Context) error {
		years := params.DefaultYears
		if c.IsSet("years") {
			years = c.Int("years")
		}
		if years < 1 {
			return fmt.Errorf("years must be >= 1, got %d", years)
		}
		base := market.Synthetic(market.DefaultSyntheticConfig(years*engine.MonthsPerYear, marketSeed(c)))
		return writeScenarios(out(c), base)
	},
}

var paramsCommand = cli.Command{
	Name:  "params",
	Usage: "print the effective parameter set as JSON",
	Flags: []cli.Flag{
		cli.BoolFlag{
			Name:  "names",
			Usage: "list the override names instead",
		},
	},
	Action: func(c *cli.Context) error {
		if c.Bool("names") {
			for _, n := range params.Names() {
				fmt.Fprintln(out(c), n)
			}
			return nil
		}
		set, err := loadSet(c)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(out(c))
		enc.SetIndent("", "  ")
		return enc.Encode(set)
	},
}

func runAction(c *cli.Context) error {
	set, err := loadSet(c)
	if err != nil {
		return err
	}
	variants, err := engine.ParseVariants(c.String("variant"))
	if err != nil {
		return err
	}
	series, sc, err := market.ScenarioSeries(c.String("scenario"), set.Years*engine.MonthsPerYear, marketSeed(c))
	if err != nil {
		return err
	}

	var db *persistence.DB
	if path := c.String("db"); path != "" {
		if db, err = openDB(path); err != nil {
			return err
		}
		defer db.Close()
	}

	seed := c.Int64("seed")
	root := entropy.NewSeeded(seed)
	slog.Info("simulation starting",
		"variants", len(variants),
		"years", set.Years,
		"scenario", sc.Name,
		"seed", seed,
	)

	outcomes := make([]engine.Outcome, 0, len(variants))
	for _, v := range variants {
		start := time.Now()
		o, err := engine.RunVariant(v, set, engine.Env{
			Source: root.Derive(v.Stream()),
			Market: series,
		})
		if err != nil {
			return fmt.Errorf("run %s: %w", v, err)
		}
		slog.Info("variant finished", "variant", v, "elapsed", time.Since(start).Round(time.Millisecond))

		if db != nil {
			id := uuid.New()
			info := persistence.RunInfo{
				ID:       id,
				Scenario: sc.Name,
				Seed:     seed,
				Years:    set.Years,
				Params:   engine.VariantParams(v, set),
			}
			if err := db.SaveRun(context.Background(), info, o); err != nil {
				return fmt.Errorf("store %s run: %w", v, err)
			}
			slog.Info("run stored", "variant", v, "id", id)
		}

		writeYearly(out(c), o)
		outcomes = append(outcomes, o)
	}

	writeMetrics(out(c), outcomes)
	return nil
}

func sweepAction(c *cli.Context) error {
	set, err := loadSet(c)
	if err != nil {
		return err
	}
	variants, err := engine.ParseVariants(c.String("variant"))
	if err != nil {
		return err
	}
	scenarios, err := parseScenarios(c.String("scenarios"))
	if err != nil {
		return err
	}
	axes := sweep.QuickAxes()
	if c.Bool("full") {
		axes = sweep.DefaultAxes()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	members, err := sweep.Run(ctx, sweep.Config{
		Base:      set,
		Axes:      axes,
		Scenarios: scenarios,
		Variants:  variants,
		Seed:      c.Int64("seed"),
		Workers:   c.Int("workers"),
		Logger:    slog.Default(),
	})
	if err != nil {
		return err
	}

	writeSweep(out(c), members, variants, scenarios, c.Float64("min-price"), c.Float64("min-nodes"))

	if path := c.String("json"); path != "" {
		data, err := json.MarshalIndent(members, "", "  ")
		if err != nil {
			return fmt.Errorf("encode sweep: %w", err)
		}
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return fmt.Errorf("write sweep: %w", err)
		}
		slog.Info("sweep written", "file", path, "members", len(members))
	}
	return nil
}

func serveAction(c *cli.Context) error {
	set, err := loadSet(c)
	if err != nil {
		return err
	}
	db, err := openDB(c.String("db"))
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.SaveMeta("version", version); err != nil {
		return fmt.Errorf("save meta: %w", err)
	}
	if err := db.SaveMeta("started_at", time.Now().UTC().Format(time.RFC3339)); err != nil {
		return fmt.Errorf("save meta: %w", err)
	}

	srv, err := api.NewServer(db, set, c.String("admin-key"), c.Int("port"), c.Int("runs-per-hour"))
	if err != nil {
		return err
	}
	defer srv.Close()
	httpSrv := srv.Start()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	slog.Info("shutting down", "signal", sig.String())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpSrv.Shutdown(ctx)
}

// openDB creates the database's parent directory if needed.
func openDB(path string) (*persistence.DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}
	db, err := persistence.Open(path)
	if err != nil {
		return nil, err
	}
	slog.Info("database opened", "path", path)
	return db, nil
}

func parseScenarios(s string) ([]market.Scenario, error) {
	if strings.TrimSpace(s) == "" || strings.EqualFold(strings.TrimSpace(s), "all") {
		return market.Scenarios(), nil
	}
	var out []market.Scenario
	for _, name := range strings.Split(s, ",") {
		sc, err := market.ScenarioByName(strings.TrimSpace(name))
		if err != nil {
			return nil, err
		}
		out = append(out, sc)
	}
	return out, nil
}
