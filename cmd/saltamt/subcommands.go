package main

import (
	"errors"
	"fmt"
	"math"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/3cpo-dev/saltamt/internal/api"
	"github.com/3cpo-dev/saltamt/internal/chart"
	"github.com/3cpo-dev/saltamt/internal/core"
	"github.com/3cpo-dev/saltamt/internal/engine"
	"github.com/3cpo-dev/saltamt/internal/engine/policyengine"
	"github.com/3cpo-dev/saltamt/internal/household"
	"github.com/3cpo-dev/saltamt/internal/impacts"
	"github.com/3cpo-dev/saltamt/internal/policy"
	"github.com/3cpo-dev/saltamt/internal/ssh"
	"github.com/3cpo-dev/saltamt/internal/telemetry"
)

// app is the configuration and resources shared by a command run.
type app struct {
	cfg   engine.Config
	store *core.Store
}

// loadApp reads the config named by --config and starts telemetry.
func loadApp(cmd *cobra.Command) (*app, error) {
	cfgPath, _ := cmd.Flags().GetString("config")
	cfg, err := core.LoadConfig(cfgPath)
	if err != nil {
		return nil, err
	}
	telemetry.InitGlobal(cfg.Telemetry.Enabled, time.Duration(cfg.Telemetry.MetricsInterval)*time.Second)
	return &app{cfg: cfg}, nil
}

// openStore opens the local store, creating its directory if needed.
func (a *app) openStore() (*core.Store, error) {
	if a.store != nil {
		return a.store, nil
	}
	if err := os.MkdirAll(filepath.Dir(a.cfg.Cache.Path), 0o700); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	s, err := core.NewStore(a.cfg.Cache.Path)
	if err != nil {
		return nil, err
	}
	a.store = s
	return s, nil
}

// calculator resolves the engine named by --engine and wires the result
// cache when enabled.
func (a *app) calculator(cmd *cobra.Command) (*core.Calculator, error) {
	reg, err := policyengine.NewRegistry(a.cfg)
	if err != nil {
		return nil, err
	}
	name, _ := cmd.Flags().GetString("engine")
	sim, err := reg.Get(name)
	if err != nil {
		return nil, err
	}
	opts := core.OptionsFromConfig(a.cfg)
	if a.cfg.Cache.Enabled {
		if opts.Store, err = a.openStore(); err != nil {
			return nil, err
		}
	}
	return core.NewCalculator(sim, opts), nil
}

func (a *app) Close() {
	if a.store != nil {
		_ = a.store.Close()
	}
	telemetry.Shutdown()
}

// List the built-in reform scenarios
func newPresetsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "presets",
		Short: "List the built-in reform scenarios",
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := outputFormat(cmd)
			if err != nil {
				return err
			}
			presets := policy.Presets()
			switch format {
			case formatJSON:
				return printJSON(os.Stdout, presets)
			case formatJSONL:
				return printJSONL(os.Stdout, presets)
			}
			tw := newTable()
			fmt.Fprintln(tw, "NAME\tKEY\tDESCRIPTION\t")
			for _, p := range presets {
				fmt.Fprintf(tw, "%s\t%s\t%s\t\n", p.Name, p.Config.Key(), p.Description)
			}
			return tw.Flush()
		},
	}
}

// Print the engine parameter overrides of a reform
func newReformCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reform",
		Short: "Print the engine parameter overrides of a reform",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			format, err := outputFormat(cmd)
			if err != nil {
				return err
			}
			in, err := readInput(cmd, a.cfg)
			if err != nil {
				return err
			}
			cfg := in.Policy.Normalize()
			reform, err := policy.Translate(cfg)
			if err != nil {
				return err
			}
			if format != formatTable {
				return printJSON(os.Stdout, map[string]interface{}{
					"key":      cfg.Key(),
					"policy":   cfg,
					"reform":   reform,
					"baseline": policy.BaselineReform(cfg.Baseline, cfg.Year),
				})
			}
			fmt.Printf("reform %s\n", cfg.Key())
			tw := newTable()
			fmt.Fprintln(tw, "PARAMETER\tPERIOD\tVALUE\t")
			for _, path := range reform.Paths() {
				periods := make([]string, 0, len(reform[path]))
				for p := range reform[path] {
					periods = append(periods, p)
				}
				sort.Strings(periods)
				for _, p := range periods {
					fmt.Fprintf(tw, "%s\t%s\t%s\t\n", path, p, paramValue(reform[path][p]))
				}
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringP("input", "f", "", "YAML or JSON file with household, policy and outputs")
	addPolicyFlags(cmd)
	return cmd
}

func paramValue(v interface{}) string {
	switch x := v.(type) {
	case float64:
		if math.IsInf(x, 1) {
			return "Infinity"
		}
		return humanize.Commaf(x)
	default:
		return fmt.Sprint(x)
	}
}

// Print the engine situation built for a household
func newSituationCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "situation",
		Short: "Print the engine situation built for a household",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			in, err := readInput(cmd, a.cfg)
			if err != nil {
				return err
			}
			var axes []household.Axis
			specs, _ := cmd.Flags().GetStringSlice("axis")
			for _, spec := range specs {
				ax, err := parseAxis(spec)
				if err != nil {
					return err
				}
				axes = append(axes, ax)
			}
			outputs, err := core.ResolveOutputs(in.Outputs)
			if err != nil {
				return err
			}
			h := in.Household
			if h.Year == 0 {
				h.Year = in.Policy.Normalize().Year
			}
			sit, err := household.Build(h, outputs, axes...)
			if err != nil {
				return err
			}
			return printJSON(os.Stdout, sit)
		},
	}
	addHouseholdFlags(cmd)
	addPolicyFlags(cmd)
	cmd.Flags().StringSlice("axis", nil, "axis to sweep as name:min:max:count (repeatable)")
	return cmd
}

// Evaluate one household under baseline and reform
func newCalcCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "calc",
		Short: "Evaluate one household under baseline and reform",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			format, err := outputFormat(cmd)
			if err != nil {
				return err
			}
			in, err := readInput(cmd, a.cfg)
			if err != nil {
				return err
			}
			calc, err := a.calculator(cmd)
			if err != nil {
				return err
			}
			p, err := calc.Single(cmd.Context(), in)
			if err != nil {
				return err
			}
			switch format {
			case formatJSON:
				return printJSON(os.Stdout, p)
			case formatJSONL:
				return printJSONL(os.Stdout, chart.Table(p))
			}
			fmt.Printf("%d, reform %s\n", p.Year, p.ReformKey)
			return printRows(chart.Table(p), "variable")
		},
	}
	addHouseholdFlags(cmd)
	addPolicyFlags(cmd)
	return cmd
}

// sweepPoint is one jsonl line of a sweep.
type sweepPoint struct {
	X        float64            `json:"x"`
	Baseline map[string]float64 `json:"baseline"`
	Reform   map[string]float64 `json:"reform"`
	Change   map[string]float64 `json:"change"`
}

// Sweep one household variable over a range
func newSweepCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "sweep",
		Short:   "Evaluate a household over a range of one variable",
		Example: "  saltamt sweep --state NJ --married --axis employment_income:0:1000000:201 --salt-cap 40000",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			format, err := outputFormat(cmd)
			if err != nil {
				return err
			}
			spec, _ := cmd.Flags().GetString("axis")
			axis, err := parseAxis(spec)
			if err != nil {
				return err
			}
			in, err := readInput(cmd, a.cfg)
			if err != nil {
				return err
			}
			calc, err := a.calculator(cmd)
			if err != nil {
				return err
			}
			s, err := calc.Sweep(cmd.Context(), in, axis)
			if err != nil {
				return err
			}

			switch format {
			case formatJSON:
				return printJSON(os.Stdout, s)
			case formatJSONL:
				pts := make([]sweepPoint, len(s.X))
				for i, x := range s.X {
					pts[i] = sweepPoint{X: x, Baseline: at(s.Baseline, i), Reform: at(s.Reform, i), Change: at(s.Change, i)}
				}
				return printJSONL(os.Stdout, pts)
			}

			variable, _ := cmd.Flags().GetString("variable")
			if _, ok := s.Baseline[variable]; !ok {
				return fmt.Errorf("sweep has no %s; add it to --outputs", variable)
			}
			var mtrBase, mtrReform []chart.Point
			if marginal, _ := cmd.Flags().GetBool("marginal"); marginal {
				if mtrBase, err = chart.MarginalRates(s.X, s.Baseline[variable]); err != nil {
					return err
				}
				if mtrReform, err = chart.MarginalRates(s.X, s.Reform[variable]); err != nil {
					return err
				}
			}
			fmt.Printf("%s by %s, %d, reform %s\n", chart.Label(variable), chart.Label(axis.Name), s.Year, s.ReformKey)
			tw := newTable()
			if mtrBase != nil {
				fmt.Fprintln(tw, "X\tBASELINE\tREFORM\tCHANGE\tMTR BASELINE\tMTR REFORM\t")
			} else {
				fmt.Fprintln(tw, "X\tBASELINE\tREFORM\tCHANGE\t")
			}
			for i, x := range s.X {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t", dollars(x), dollars(s.Baseline[variable][i]), dollars(s.Reform[variable][i]), signedDollars(s.Change[variable][i]))
				if mtrBase != nil {
					if i < len(mtrBase) {
						fmt.Fprintf(tw, "%s\t%s\t", percent(mtrBase[i].Y), percent(mtrReform[i].Y))
					} else {
						fmt.Fprint(tw, "\t\t")
					}
				}
				fmt.Fprintln(tw)
			}
			return tw.Flush()
		},
	}
	addHouseholdFlags(cmd)
	addPolicyFlags(cmd)
	cmd.Flags().String("axis", "", "axis to sweep as name:min:max:count")
	cmd.Flags().String("variable", "income_tax", "variable shown in table output")
	cmd.Flags().Bool("marginal", false, "add marginal rates of the variable along the axis")
	_ = cmd.MarkFlagRequired("axis")
	return cmd
}

func at(m map[string][]float64, i int) map[string]float64 {
	out := make(map[string]float64, len(m))
	for k, v := range m {
		out[k] = v[i]
	}
	return out
}

// gridCell is one jsonl line of a grid.
type gridCell struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Value float64 `json:"value"`
}

// Evaluate a household over two variables
func newGridCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "grid",
		Short:   "Evaluate a household over a grid of two variables",
		Example: "  saltamt grid --state NY --x employment_income:0:1000000:51 --y real_estate_taxes:0:100000:21 --salt-mode uncapped",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			format, err := outputFormat(cmd)
			if err != nil {
				return err
			}
			xs, _ := cmd.Flags().GetString("x")
			ys, _ := cmd.Flags().GetString("y")
			x, err := parseAxis(xs)
			if err != nil {
				return err
			}
			y, err := parseAxis(ys)
			if err != nil {
				return err
			}
			in, err := readInput(cmd, a.cfg)
			if err != nil {
				return err
			}
			variable, _ := cmd.Flags().GetString("variable")
			if len(in.Outputs) > 0 {
				in.Outputs = append(in.Outputs, variable)
			}
			calc, err := a.calculator(cmd)
			if err != nil {
				return err
			}
			g, err := calc.Grid(cmd.Context(), in, x, y)
			if err != nil {
				return err
			}
			which, _ := cmd.Flags().GetString("which")
			heat, err := chart.Heatmap(g, variable, chart.Which(which))
			if err != nil {
				return err
			}

			switch format {
			case formatJSON:
				return printJSON(os.Stdout, map[string]interface{}{"grid": g, "heatmap": heat})
			case formatJSONL:
				var cells []gridCell
				for i, row := range heat.Z {
					for j, v := range row {
						cells = append(cells, gridCell{X: heat.X[i], Y: heat.Y[j], Value: v})
					}
				}
				return printJSONL(os.Stdout, cells)
			}

			fmt.Printf("%s, rows %s, columns %s\n", heat.Title, heat.XAxis, heat.YAxis)
			tw := newTable()
			fmt.Fprint(tw, "\t")
			for _, yv := range heat.Y {
				fmt.Fprintf(tw, "%s\t", dollars(yv))
			}
			fmt.Fprintln(tw)
			for i, row := range heat.Z {
				fmt.Fprintf(tw, "%s\t", dollars(heat.X[i]))
				for _, v := range row {
					fmt.Fprintf(tw, "%s\t", dollars(v))
				}
				fmt.Fprintln(tw)
			}
			return tw.Flush()
		},
	}
	addHouseholdFlags(cmd)
	addPolicyFlags(cmd)
	cmd.Flags().String("x", "", "row axis as name:min:max:count")
	cmd.Flags().String("y", "", "column axis as name:min:max:count")
	cmd.Flags().String("variable", "income_tax", "variable to show")
	cmd.Flags().String("which", string(chart.Change), "baseline, reform or change")
	_ = cmd.MarkFlagRequired("x")
	_ = cmd.MarkFlagRequired("y")
	return cmd
}

// Compare several reforms for one household
func newCompareCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "compare",
		Short:   "Compare several reforms for one household",
		Example: "  saltamt compare --state CA --income 400000 --property-tax 30000 --presets salt_repeal,salt_uncapped,amt_repeal",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			format, err := outputFormat(cmd)
			if err != nil {
				return err
			}
			in, err := readInput(cmd, a.cfg)
			if err != nil {
				return err
			}
			var scenarios []core.Scenario
			if path, _ := cmd.Flags().GetString("scenarios"); path != "" {
				if scenarios, err = readScenarios(path); err != nil {
					return err
				}
			}
			names, _ := cmd.Flags().GetStringSlice("presets")
			for _, name := range names {
				p, ok := policy.LookupPreset(name)
				if !ok {
					return fmt.Errorf("unknown preset %q", name)
				}
				scenarios = append(scenarios, core.Scenario{Name: p.Name, Policy: p.Config})
			}
			baseline, _ := cmd.Flags().GetString("baseline")
			if baseline == "" {
				baseline = a.cfg.Defaults.Baseline
			}
			calc, err := a.calculator(cmd)
			if err != nil {
				return err
			}
			c, err := calc.Compare(cmd.Context(), in.Household, policy.Baseline(baseline), scenarios, in.Outputs)
			if err != nil {
				return err
			}
			switch format {
			case formatJSON:
				return printJSON(os.Stdout, c)
			case formatJSONL:
				return printJSONL(os.Stdout, c.Scenarios)
			}
			variable, _ := cmd.Flags().GetString("variable")
			fmt.Printf("%s against %s, %d\n", chart.Label(variable), c.BaselineName, c.Year)
			tw := newTable()
			fmt.Fprintln(tw, "SCENARIO\tKEY\tBASELINE\tREFORM\tCHANGE\t")
			for _, r := range chart.ScenarioTable(c, variable) {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t\n", r.Variable, r.Label, dollars(r.Baseline), dollars(r.Reform), signedDollars(r.Change))
			}
			return tw.Flush()
		},
	}
	addHouseholdFlags(cmd)
	cmd.Flags().String("baseline", "", "current_law or current_policy (default from config)")
	cmd.Flags().StringSlice("presets", nil, "preset scenarios to compare")
	cmd.Flags().String("scenarios", "", "YAML file with a list of named scenarios")
	cmd.Flags().String("variable", "income_tax", "variable shown in table output")
	return cmd
}

// Manage the precomputed impacts table
func newImpactsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "impacts",
		Short: "Manage precomputed nationwide reform impacts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	cmd.AddCommand(newImpactsImportCmd())
	cmd.AddCommand(newImpactsShowCmd())
	cmd.AddCommand(newImpactsSyncCmd())
	cmd.AddCommand(newImpactsKeygenCmd())
	cmd.AddCommand(newImpactsTrustCmd())
	return cmd
}

func newImpactsImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import [file.csv]",
		Short: "Import an impacts CSV into the local store",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			path := a.cfg.Impacts.CSV
			if len(args) == 1 {
				path = args[0]
			}
			if path == "" {
				return errors.New("no impacts file given and impacts.csv not configured")
			}
			store, err := a.openStore()
			if err != nil {
				return err
			}
			n, err := impacts.ImportFile(cmd.Context(), store, path)
			if err != nil {
				return err
			}
			fmt.Printf("imported %s impact records from %s\n", humanize.Comma(int64(n)), path)
			return nil
		},
	}
}

func newImpactsShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the stored impacts of a reform",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			format, err := outputFormat(cmd)
			if err != nil {
				return err
			}
			key, _ := cmd.Flags().GetString("key")
			baseline, _ := cmd.Flags().GetString("baseline")
			year, _ := cmd.Flags().GetInt("year")
			if name, _ := cmd.Flags().GetString("preset"); name != "" {
				p, ok := policy.LookupPreset(name)
				if !ok {
					return fmt.Errorf("unknown preset %q", name)
				}
				cfg := p.Config.Normalize()
				key = cfg.Key()
				if baseline == "" {
					baseline = string(cfg.Baseline)
				}
				if year == 0 {
					year = cfg.Year
				}
			}
			if key == "" {
				return errors.New("--key or --preset is required")
			}
			if baseline == "" {
				baseline = a.cfg.Defaults.Baseline
			}
			if year == 0 {
				year = a.cfg.Defaults.Year
			}
			store, err := a.openStore()
			if err != nil {
				return err
			}
			rec, ok, err := impacts.Lookup(cmd.Context(), store, key, baseline, year)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("no impacts for %s against %s in %d", key, baseline, year)
			}
			if format != formatTable {
				return printJSON(os.Stdout, rec)
			}
			fmt.Printf("%s against %s, %d\n", rec.ReformKey, rec.Baseline, rec.Year)
			tw := newTable()
			fmt.Fprintln(tw, "METRIC\tVALUE\t")
			for _, name := range rec.MetricNames() {
				fmt.Fprintf(tw, "%s\t%s\t\n", name, humanize.Commaf(rec.Metrics[name]))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().String("key", "", "reform key")
	cmd.Flags().String("preset", "", "preset whose reform key to look up")
	cmd.Flags().String("baseline", "", "baseline the impacts are measured against")
	cmd.Flags().Int("year", 0, "year of the impacts")
	return cmd
}

func newImpactsSyncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Download the impacts table from the configured data host over SFTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			local, _ := cmd.Flags().GetString("out")
			if local == "" {
				local = a.cfg.Impacts.CSV
			}
			if local == "" {
				local = filepath.Join(core.ConfigDir(), "impacts.csv")
			}
			digest, err := impacts.Sync(cmd.Context(), a.cfg.Impacts.Remote, local)
			if err != nil {
				return err
			}
			fmt.Printf("downloaded %s (sha256 %s)\n", local, digest)
			if skip, _ := cmd.Flags().GetBool("no-import"); skip {
				return nil
			}
			store, err := a.openStore()
			if err != nil {
				return err
			}
			n, err := impacts.ImportFile(cmd.Context(), store, local)
			if err != nil {
				return err
			}
			fmt.Printf("imported %s impact records\n", humanize.Comma(int64(n)))
			return nil
		},
	}
	cmd.Flags().String("out", "", "local path (default impacts.csv from config)")
	cmd.Flags().Bool("no-import", false, "download only")
	return cmd
}

func newImpactsKeygenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate the SSH key used to reach the data host",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			path := a.cfg.Impacts.Remote.KeyPath
			if path == "" {
				path = filepath.Join(core.ConfigDir(), "id_ed25519")
			}
			force, _ := cmd.Flags().GetBool("force")
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s exists; use --force to replace it", path)
			}
			if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
				return err
			}
			pub, err := ssh.GenerateEd25519Keypair(path, "saltamt")
			if err != nil {
				return err
			}
			log.Info().Str("path", path).Msg("Generated SSH key")
			fmt.Print(pub)
			return nil
		},
	}
	cmd.Flags().Bool("force", false, "replace an existing key")
	return cmd
}

func newImpactsTrustCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trust <authorized-key>",
		Short: "Record the data host's public key in known_hosts",
		Long:  "Record the data host's public key, as printed by ssh-keyscan, in the configured known_hosts file.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			remote := a.cfg.Impacts.Remote
			host, _ := cmd.Flags().GetString("host")
			if host == "" {
				host = remote.Host
			}
			if host == "" {
				return errors.New("--host is required when impacts.remote.host is not configured")
			}
			port := remote.Port
			if cmd.Flags().Changed("port") {
				port, _ = cmd.Flags().GetInt("port")
			}
			path := remote.KnownHosts
			if path == "" {
				path = filepath.Join(core.ConfigDir(), "known_hosts")
			}
			hashed, _ := cmd.Flags().GetBool("hash")
			fp, err := ssh.AppendKnownHost(path, host, port, args[0], hashed)
			if err != nil {
				return err
			}
			fmt.Printf("trusted %s:%d (%s) in %s\n", host, port, fp, path)
			return nil
		},
	}
	cmd.Flags().String("host", "", "data host (default impacts.remote.host)")
	cmd.Flags().Int("port", 22, "data host SSH port")
	cmd.Flags().Bool("hash", true, "store the host name hashed")
	return cmd
}

// Maintain the local result cache
func newCacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and prune the local store",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "stats",
		Short: "Show the size of the local store",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			store, err := a.openStore()
			if err != nil {
				return err
			}
			n, err := store.ImpactCount(cmd.Context())
			if err != nil {
				return err
			}
			var size uint64
			if fi, err := os.Stat(a.cfg.Cache.Path); err == nil {
				size = uint64(fi.Size())
			}
			fmt.Printf("store:   %s (%s)\n", a.cfg.Cache.Path, humanize.Bytes(size))
			fmt.Printf("caching: %t, ttl %s\n", a.cfg.Cache.Enabled, time.Duration(a.cfg.Cache.TTLHours)*time.Hour)
			fmt.Printf("impacts: %s rows\n", humanize.Comma(int64(n)))
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "purge",
		Short: "Delete cached engine results older than the TTL",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			store, err := a.openStore()
			if err != nil {
				return err
			}
			n, err := store.PurgeResults(cmd.Context(), time.Duration(a.cfg.Cache.TTLHours)*time.Hour)
			if err != nil {
				return err
			}
			fmt.Printf("purged %s cached results\n", humanize.Comma(n))
			return nil
		},
	})
	return cmd
}

// Serve the HTTP API
func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the calculator over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath, _ := cmd.Flags().GetString("config")
			cfg, err := core.LoadConfig(cfgPath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("addr") {
				cfg.Server.Addr, _ = cmd.Flags().GetString("addr")
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return api.Run(ctx, version, cfg)
		},
	}
	cmd.Flags().String("addr", "", "listen address (default server.addr from config)")
	return cmd
}
