package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/urfave/cli/v2"

	"TariffIntel/internal/app"
	"TariffIntel/internal/config"
	"TariffIntel/internal/duty"
	"TariffIntel/internal/logging"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newCLI().RunContext(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

func newCLI() *cli.App {
	run := runCommand()
	return &cli.App{
		Name:  "tariffintel",
		Usage: "Aggregate tariff-policy signals and estimate landed-cost duty",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to YAML configuration",
				EnvVars: []string{"TARIFF_INTEL_CONFIG"},
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Log level (debug, info, warn, error)",
			},
			&cli.StringFlag{
				Name:  "log-format",
				Usage: "Log format (text, json)",
			},
		},
		Commands: []*cli.Command{
			run,
			dutyCommand(),
			serveCommand(),
		},
		Action: run.Action,
	}
}

func runCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Fetch every source once and write the artifact",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Artifact path",
			},
			&cli.StringFlag{
				Name:  "keywords",
				Usage: "Comma-separated relevance keywords replacing the configured list",
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "Per-request timeout",
			},
			&cli.DurationFlag{
				Name:  "run-timeout",
				Usage: "Deadline for the whole run",
			},
			&cli.DurationFlag{
				Name:  "every",
				Usage: "Repeat the run on this interval until interrupted",
			},
		},
		Action: runAggregate,
	}
}

func runAggregate(c *cli.Context) error {
	cfg := loadConfig(c)
	if v := c.String("output"); v != "" {
		cfg.Output.Path = v
	}
	if v := c.String("keywords"); v != "" {
		cfg.Relevance.Keywords = splitList(v)
	}
	if v := c.Duration("timeout"); v > 0 {
		cfg.Fetch.Timeout = v
	}
	if v := c.Duration("run-timeout"); v > 0 {
		cfg.Fetch.RunTimeout = v
	}

	logger := logging.NewWithFormat(cfg.Logging.Level, cfg.Logging.Format)
	application := app.New(c.Context, cfg, logger)
	defer application.Close()

	if every := c.Duration("every"); every > 0 {
		return application.Schedule(c.Context, every)
	}

	if _, err := application.Run(c.Context); err != nil {
		logger.Error("run failed", "error", err)
		return cli.Exit(err.Error(), 1)
	}
	return nil
}

func dutyCommand() *cli.Command {
	return &cli.Command{
		Name:  "duty",
		Usage: "Estimate duty and landed cost for one scenario",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "scenario", Usage: "Path to a JSON scenario (- for stdin); flags override its fields"},
			&cli.StringFlag{Name: "country", Usage: "ISO-2 country of origin"},
			&cli.StringFlag{Name: "program", Usage: "Commodity or tariff-program code"},
			&cli.StringFlag{Name: "customs-value", Usage: "Customs value in USD"},
			&cli.StringFlag{Name: "freight-insurance", Usage: "Freight and insurance in USD"},
			&cli.StringFlag{Name: "mfn-rate", Usage: "MFN rate as a fraction (0.025)"},
			&cli.StringFlag{Name: "section301-rate", Usage: "Section 301 rate as a fraction"},
			&cli.BoolFlag{Name: "ieepa", Usage: "Include the contested IEEPA duty"},
			&cli.StringFlag{Name: "ieepa-rate", Usage: "IEEPA rate; country default when omitted"},
			&cli.BoolFlag{Name: "non-stacking", Usage: "Apply only the highest special duty"},
			&cli.BoolFlag{Name: "usmca", Usage: "USMCA-qualifying goods (CA, MX)"},
			&cli.BoolFlag{Name: "energy-potash", Usage: "Energy or potash carve-out (CA)"},
			&cli.BoolFlag{Name: "brazil-targeted", Usage: "Targeted Brazilian product (BR)"},
		},
		Action: runDuty,
	}
}

// dutyFlags maps CLI flags to scenario JSON fields.
var dutyFlags = map[string]string{
	"country":           "country",
	"program":           "program",
	"customs-value":     "customs_value",
	"freight-insurance": "freight_insurance",
	"mfn-rate":          "mfn_rate",
	"section301-rate":   "section301_rate",
	"ieepa":             "ieepa_included",
	"ieepa-rate":        "ieepa_rate",
	"non-stacking":      "non_stacking",
	"usmca":             "usmca",
	"energy-potash":     "energy_potash",
	"brazil-targeted":   "brazil_targeted",
}

func runDuty(c *cli.Context) error {
	fields := map[string]interface{}{}

	if path := c.String("scenario"); path != "" {
		raw, err := readScenario(c, path)
		if err != nil {
			return cli.Exit(err.Error(), 1)
		}
		var fromFile map[string]json.RawMessage
		if err := json.Unmarshal(raw, &fromFile); err != nil {
			return cli.Exit(fmt.Sprintf("scenario %s: %v", path, err), 1)
		}
		for field, value := range fromFile {
			fields[field] = value
		}
	}

	for flag, field := range dutyFlags {
		if !c.IsSet(flag) {
			continue
		}
		if _, isBool := boolFlags[flag]; isBool {
			fields[field] = c.Bool(flag)
		} else {
			fields[field] = c.String(flag)
		}
	}

	raw, err := json.Marshal(fields)
	if err != nil {
		return err
	}
	var scenario duty.Scenario
	if err := json.Unmarshal(raw, &scenario); err != nil {
		return cli.Exit(err.Error(), 1)
	}

	enc := json.NewEncoder(c.App.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(duty.Compute(scenario))
}

var boolFlags = map[string]struct{}{
	"ieepa":           {},
	"non-stacking":    {},
	"usmca":           {},
	"energy-potash":   {},
	"brazil-targeted": {},
}

func readScenario(c *cli.Context, path string) ([]byte, error) {
	if path == "-" {
		reader := c.App.Reader
		if reader == nil {
			reader = os.Stdin
		}
		return io.ReadAll(reader)
	}
	return os.ReadFile(path)
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the artifact and the duty calculator over HTTP",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "addr",
				Usage:   "Listen address",
				EnvVars: []string{"TARIFF_INTEL_ADDR"},
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Artifact path to serve",
			},
		},
		Action: func(c *cli.Context) error {
			cfg := loadConfig(c)
			if v := c.String("output"); v != "" {
				cfg.Output.Path = v
			}
			logger := logging.NewWithFormat(cfg.Logging.Level, cfg.Logging.Format)
			application := app.New(c.Context, cfg, logger)
			defer application.Close()
			return application.Serve(c.Context, c.String("addr"))
		},
	}
}

func loadConfig(c *cli.Context) config.Config {
	var cfg config.Config
	if path := c.String("config"); path != "" {
		cfg = config.LoadFrom(path)
	} else {
		cfg = config.Load()
	}
	if v := c.String("log-level"); v != "" {
		cfg.Logging.Level = v
	}
	if v := c.String("log-format"); v != "" {
		cfg.Logging.Format = v
	}
	return cfg
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
