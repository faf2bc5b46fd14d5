package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/guptarohit/asciigraph"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/san-kum/qclab/internal/automation"
	"github.com/san-kum/qclab/internal/config"
	"github.com/san-kum/qclab/internal/driver"
	"github.com/san-kum/qclab/internal/dynamo"
	"github.com/san-kum/qclab/internal/experiment"
	"github.com/san-kum/qclab/internal/logging"
	"github.com/san-kum/qclab/internal/metrics"
	"github.com/san-kum/qclab/internal/models"
	"github.com/san-kum/qclab/internal/observability"
	"github.com/san-kum/qclab/internal/optim"
	"github.com/san-kum/qclab/internal/storage"
	"github.com/san-kum/qclab/internal/tui"
)

var (
	dataDir string

	configFile string
	preset     string
	algorithm  string
	numTrajs   int
	batchSize  int
	tmax       float64
	dt         float64
	dtOutput   float64
	workers    int
	parallel   bool
	seeds      []int
	initState  int
	constants  []string

	progressMode string
	metricsAddr  string
	jsonOut      string
	samples      int
	noSave       bool

	plotVar    string
	plotHeight int

	sweepParam string
	sweepMin   float64
	sweepMax   float64
	sweepSteps int
	gridSpecs  []string
	gridMetric string
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "qclab",
		Short:         "quantum-classical ensemble dynamics",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&dataDir, "data", ".qclab", "data directory")

	runCmd := &cobra.Command{
		Use:   "run [model]",
		Short: "run an ensemble",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runEnsemble,
	}
	runCmd.Flags().StringVar(&configFile, "config", "", "config file path (yaml)")
	runCmd.Flags().StringVar(&preset, "preset", "", "use preset configuration")
	runCmd.Flags().StringVar(&algorithm, "algorithm", config.DefaultAlgorithm, "algorithm")
	runCmd.Flags().IntVar(&numTrajs, "trajs", config.DefaultNumTrajs, "number of trajectories")
	runCmd.Flags().IntVar(&batchSize, "batch", config.DefaultBatchSize, "trajectories per batch")
	runCmd.Flags().Float64Var(&tmax, "tmax", config.DefaultTmax, "final time")
	runCmd.Flags().Float64Var(&dt, "dt", config.DefaultDt, "propagation timestep")
	runCmd.Flags().Float64Var(&dtOutput, "dt-output", config.DefaultDtOutput, "output interval")
	runCmd.Flags().IntVar(&workers, "workers", 0, "parallel workers (default num_tasks or GOMAXPROCS)")
	runCmd.Flags().BoolVar(&parallel, "parallel", false, "use the parallel driver")
	runCmd.Flags().IntSliceVar(&seeds, "seeds", nil, "explicit trajectory seeds")
	runCmd.Flags().IntVar(&initState, "state", 0, "initially occupied diabatic state")
	runCmd.Flags().StringArrayVar(&constants, "set", nil, "model constant override key=value")
	runCmd.Flags().StringVar(&progressMode, "progress", "tui", "progress display: tui, plain or none")
	runCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve prometheus metrics on this address")
	runCmd.Flags().StringVar(&jsonOut, "json", "", "also write a JSON export to this path (- for stdout)")
	runCmd.Flags().IntVar(&samples, "samples", 0, "per-trajectory samples in the JSON export")
	runCmd.Flags().BoolVar(&noSave, "no-save", false, "do not store the run")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list runs",
		RunE:  listRuns,
	}

	plotCmd := &cobra.Command{
		Use:   "plot [run_id]",
		Short: "plot ensemble means of a run",
		Args:  cobra.ExactArgs(1),
		RunE:  plotRun,
	}
	plotCmd.Flags().StringVar(&plotVar, "var", "dm_db", "output variable to plot")
	plotCmd.Flags().IntVar(&plotHeight, "height", 10, "plot height")

	exportCmd := &cobra.Command{
		Use:   "export [run_id]",
		Short: "export run metadata",
		Args:  cobra.ExactArgs(1),
		RunE:  exportRun,
	}

	benchCmd := &cobra.Command{
		Use:   "bench [model]",
		Short: "benchmark serial and parallel drivers",
		Args:  cobra.ExactArgs(1),
		RunE:  benchModel,
	}
	benchCmd.Flags().IntVar(&numTrajs, "trajs", 64, "number of trajectories")
	benchCmd.Flags().IntVar(&batchSize, "batch", 8, "trajectories per batch")
	benchCmd.Flags().Float64Var(&tmax, "tmax", 1.0, "final time")
	benchCmd.Flags().IntVar(&workers, "workers", 0, "parallel workers")

	presetsCmd := &cobra.Command{
		Use:   "presets [model]",
		Short: "list available presets",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			names := config.ListPresetModels()
			if len(args) == 1 {
				names = args
			}
			for _, model := range names {
				presets := config.ListPresets(model)
				if len(presets) == 0 {
					fmt.Printf("no presets for model: %s\n", model)
					continue
				}
				fmt.Printf("presets for %s:\n", model)
				for _, p := range presets {
					fmt.Printf("  %s\n", p)
				}
			}
			return nil
		},
	}

	modelsCmd := &cobra.Command{
		Use:   "models",
		Short: "list models, their constants and algorithms",
		RunE:  listModels,
	}

	scenarioCmd := &cobra.Command{
		Use:   "scenario [file]",
		Short: "run every step of a scenario file and store the results",
		Args:  cobra.ExactArgs(1),
		RunE:  runScenario,
	}

	sweepCmd := &cobra.Command{
		Use:   "sweep [model]",
		Short: "sweep one model constant over evenly spaced values",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runSweep,
	}
	sweepCmd.Flags().StringVar(&configFile, "config", "", "base config file path (yaml)")
	sweepCmd.Flags().StringVar(&preset, "preset", "", "base preset")
	sweepCmd.Flags().StringVar(&sweepParam, "param", "kBT", "model constant to sweep")
	sweepCmd.Flags().Float64Var(&sweepMin, "min", 0.5, "first value")
	sweepCmd.Flags().Float64Var(&sweepMax, "max", 2.0, "last value")
	sweepCmd.Flags().IntVar(&sweepSteps, "steps", 4, "number of values")

	searchCmd := &cobra.Command{
		Use:   "search [model]",
		Short: "grid search model constants minimizing a metric",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runSearch,
	}
	searchCmd.Flags().StringVar(&configFile, "config", "", "base config file path (yaml)")
	searchCmd.Flags().StringVar(&preset, "preset", "", "base preset")
	searchCmd.Flags().StringArrayVar(&gridSpecs, "grid", nil, "constant=v1,v2,... (repeatable)")
	searchCmd.Flags().StringVar(&gridMetric, "metric", "energy_drift", "metric to minimize")

	rootCmd.AddCommand(runCmd, listCmd, plotCmd, exportCmd, benchCmd, presetsCmd, modelsCmd, scenarioCmd, sweepCmd, searchCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// buildConfig layers preset, config file and changed flags, in that order.
func buildConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	cfg := config.DefaultConfig()
	model := ""
	if len(args) > 0 {
		model = args[0]
	}

	if preset != "" {
		m := model
		if m == "" {
			m = config.DefaultModel
		}
		p := config.GetPreset(m, preset)
		if p == nil {
			return nil, fmt.Errorf("unknown preset: %s (available: %v)", preset, config.ListPresets(m))
		}
		cfg = p
	}

	if configFile != "" {
		loaded, err := config.Load(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = loaded
	}

	if model != "" {
		cfg.Model.Name = model
	}
	flags := cmd.Flags()
	if flags.Changed("algorithm") {
		cfg.Algorithm.Name = algorithm
	}
	if flags.Changed("trajs") {
		cfg.Simulation.NumTrajs = numTrajs
	}
	if flags.Changed("batch") {
		cfg.Simulation.BatchSize = batchSize
	}
	if flags.Changed("tmax") {
		cfg.Simulation.Tmax = tmax
	}
	if flags.Changed("dt") {
		cfg.Simulation.Dt = dt
	}
	if flags.Changed("dt-output") {
		cfg.Simulation.DtOutput = dtOutput
	}
	if flags.Changed("seeds") {
		cfg.Simulation.Seeds = seeds
	}
	if flags.Changed("workers") {
		cfg.Driver.Workers = workers
	}
	if flags.Changed("parallel") || flags.Changed("workers") {
		cfg.Driver.Mode = "serial"
		if parallel || workers > 0 {
			cfg.Driver.Mode = "parallel"
		}
	}
	if flags.Changed("state") {
		cfg.InitialState = config.InitialState{State: initState}
	}
	if len(constants) > 0 {
		if cfg.Model.Constants == nil {
			cfg.Model.Constants = make(map[string]any)
		}
		for _, kv := range constants {
			k, v, err := parseConstant(kv)
			if err != nil {
				return nil, err
			}
			cfg.Model.Constants[k] = v
		}
	}
	return cfg, cfg.Validate()
}

func runEnsemble(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig(cmd, args)
	if err != nil {
		return err
	}

	logCfg := cfg.Log
	if v := os.Getenv("QCLAB_LOG_LEVEL"); v != "" {
		logCfg.Level = v
	}
	log := logging.New(logCfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logging.ContextWithLogger(ctx, log)

	shutdown, err := observability.InitTracing(ctx, observability.TracingConfigFromEnv(), log)
	if err != nil {
		return err
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdown, log)

	opts := []driver.Option{}
	if metricsAddr != "" {
		collector, err := observability.NewDriverCollector(prometheus.DefaultRegisterer)
		if err != nil {
			return err
		}
		srv := &http.Server{Addr: metricsAddr, Handler: collector.Handler(), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error(ctx, "metrics server stopped", logging.Err(err))
			}
		}()
		defer srv.Close()
		opts = append(opts, driver.WithCollector(collector))
		log.Info(ctx, "serving metrics", logging.String("addr", metricsAddr))
	}

	exp := experiment.New(cfg, experiment.NewRegistry(), log)
	if err := exp.Setup(); err != nil {
		return err
	}
	sim := exp.Simulation()
	total := (sim.NumTrajs() + sim.BatchSize() - 1) / sim.BatchSize()
	if n := len(cfg.Simulation.Seeds); n > 0 {
		total = (n + sim.BatchSize() - 1) / sim.BatchSize()
	}
	title := fmt.Sprintf("%s/%s", sim.Model.Name, sim.Algorithm.Name)

	start := time.Now()
	var data *dynamo.Data
	switch progressMode {
	case "tui":
		data, err = tui.Run(ctx, title, total, func(ctx context.Context, progress func(driver.Progress)) (*dynamo.Data, error) {
			return exp.Run(ctx, append(opts, driver.WithProgress(progress))...)
		}, tea.WithContext(ctx))
	case "plain":
		lr := tui.NewLineRenderer(os.Stderr, title, 10)
		lr.Start()
		data, err = exp.Run(ctx, append(opts, driver.WithProgress(lr.OnBatch))...)
		lr.Stop()
	case "none":
		data, err = exp.Run(ctx, opts...)
	default:
		return fmt.Errorf("unknown progress mode: %s", progressMode)
	}
	if err != nil {
		return err
	}
	elapsed := time.Since(start)

	nstates, _ := sim.Model.NumQuantumStates()
	summary, err := metrics.Summary(data, metrics.Defaults(nstates)...)
	if err != nil {
		return err
	}

	meta := storage.MetadataFor(sim)
	meta.Driver = cfg.Driver.Mode
	meta.Workers = cfg.Driver.Workers
	meta.Elapsed = elapsed.Seconds()
	meta.Metrics = summary

	if !noSave {
		st := storage.New(dataDir)
		if err := st.Init(); err != nil {
			return err
		}
		runID, err := st.Save(meta, data)
		if err != nil {
			return err
		}
		meta.ID = runID
		fmt.Printf("run id: %s\n", runID)
	}

	switch jsonOut {
	case "":
	case "-":
		if err := storage.WriteJSON(os.Stdout, meta, data, samples); err != nil {
			return err
		}
	default:
		if err := storage.ExportJSON(jsonOut, meta, data, samples); err != nil {
			return err
		}
	}

	fmt.Printf("completed %d trajectories in %v\n", data.Len(), elapsed.Round(time.Millisecond))
	fmt.Println("\nmetrics:")
	names := make([]string, 0, len(summary))
	for name := range summary {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Printf("  %s: %.6f\n", name, summary[name])
	}
	return nil
}

func parseConstant(kv string) (string, any, error) {
	k, v, ok := strings.Cut(kv, "=")
	if !ok || k == "" {
		return "", nil, fmt.Errorf("invalid constant %q, want key=value", kv)
	}
	var val any
	if err := json.Unmarshal([]byte(v), &val); err != nil {
		return "", nil, fmt.Errorf("constant %s: %w", k, err)
	}
	if f, ok := val.(float64); ok && f == float64(int(f)) && !strings.ContainsAny(v, ".eE") {
		return k, int(f), nil
	}
	return k, val, nil
}

func listRuns(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	runs, err := st.List()
	if err != nil {
		return err
	}

	if len(runs) == 0 {
		fmt.Println("no runs found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tMODEL\tALGORITHM\tTIME\tTRAJS\tTMAX\tDT\tDRIVER")

	for _, run := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%.2f\t%.4f\t%s\n",
			run.ID,
			run.Model,
			run.Algorithm,
			run.Timestamp.Format("2006-01-02 15:04:05"),
			run.NumTrajs,
			run.Tmax,
			run.Dt,
			run.Driver,
		)
	}

	return w.Flush()
}

func plotRun(cmd *cobra.Command, args []string) error {
	runID := args[0]

	st := storage.New(dataDir)
	meta, err := st.Load(runID)
	if err != nil {
		return err
	}

	series, err := st.LoadSeries(runID, plotVar)
	if err != nil {
		return err
	}
	if len(series.Times) == 0 {
		return fmt.Errorf("no data to plot")
	}

	fmt.Printf("run: %s\n", meta.ID)
	fmt.Printf("model: %s\n", meta.Model)
	fmt.Printf("outputs: %d\n\n", len(series.Times))

	columns := series.Columns
	if plotVar == "dm_db" {
		columns = diagonalColumns(series.Columns)
	}
	maxPlots := 8
	for i, col := range columns {
		if i >= maxPlots {
			break
		}
		data, _ := series.Column(col)
		if strings.HasSuffix(col, "_im") && allZero(data) {
			continue
		}
		graph := asciigraph.Plot(data,
			asciigraph.Height(plotHeight),
			asciigraph.Width(80),
			asciigraph.Caption(fmt.Sprintf("%s vs time (t=%.2f..%.2f)", col, series.Times[0], series.Times[len(series.Times)-1])),
		)
		fmt.Println(graph)
		fmt.Println()
	}
	return nil
}

// diagonalColumns picks the real population columns of a flattened n×n
// density matrix.
func diagonalColumns(cols []string) []string {
	elem := len(cols) / 2
	n := 0
	for n*n < elem {
		n++
	}
	if n*n != elem {
		return cols
	}
	out := make([]string, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, cols[2*(i*n+i)])
	}
	return out
}

func allZero(xs []float64) bool {
	for _, x := range xs {
		if x != 0 {
			return false
		}
	}
	return true
}

func exportRun(cmd *cobra.Command, args []string) error {
	runID := args[0]

	st := storage.New(dataDir)
	meta, err := st.Load(runID)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(meta)
}

func benchModel(cmd *cobra.Command, args []string) error {
	base := config.DefaultConfig()
	base.Model.Name = args[0]
	base.Simulation.NumTrajs = numTrajs
	base.Simulation.BatchSize = batchSize
	base.Simulation.Tmax = tmax

	log := logging.Noop()
	ctx := context.Background()

	fmt.Printf("benchmarking %s: %d trajectories, batch %d, tmax %.2f\n\n", args[0], numTrajs, batchSize, tmax)
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "DRIVER\tWORKERS\tTIME\tTRAJ/S")

	for _, mode := range []string{"serial", "parallel"} {
		cfg := base.Clone()
		cfg.Driver = config.DriverConfig{Mode: mode, Workers: workers}
		exp := experiment.New(cfg, nil, log)
		if err := exp.Setup(); err != nil {
			return err
		}
		start := time.Now()
		data, err := exp.Run(ctx)
		if err != nil {
			return err
		}
		elapsed := time.Since(start)
		label := "1"
		if mode == "parallel" {
			label = "auto"
			if workers > 0 {
				label = fmt.Sprint(workers)
			}
		}
		fmt.Fprintf(w, "%s\t%s\t%v\t%.1f\n", mode, label, elapsed.Round(time.Millisecond), float64(data.Len())/elapsed.Seconds())
	}
	return w.Flush()
}

func listModels(cmd *cobra.Command, args []string) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "MODEL\tCONSTANT\tDEFAULT")
	for _, name := range models.Names() {
		tmpl, _ := models.Template(name)
		keys := make([]string, 0, len(tmpl.Defaults))
		for k := range tmpl.Defaults {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for i, k := range keys {
			label := ""
			if i == 0 {
				label = name
			}
			fmt.Fprintf(w, "%s\t%s\t%v\n", label, k, tmpl.Defaults[k])
		}
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Printf("\nalgorithms: %s\n", strings.Join(experiment.NewRegistry().ListAlgorithms(), ", "))
	return nil
}

// baseConfig resolves --config and --preset for sweep and search.
func baseConfig(args []string) (*config.Config, error) {
	model := config.DefaultModel
	if len(args) > 0 {
		model = args[0]
	}
	cfg := config.DefaultConfig()
	if preset != "" {
		cfg = config.GetPreset(model, preset)
		if cfg == nil {
			return nil, fmt.Errorf("unknown preset: %s (available: %v)", preset, config.ListPresets(model))
		}
	}
	if configFile != "" {
		loaded, err := config.Load(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = loaded
	}
	if len(args) > 0 {
		cfg.Model.Name = args[0]
	}
	return cfg, cfg.Validate()
}

func runScenario(cmd *cobra.Command, args []string) error {
	sc, err := automation.LoadScenario(args[0])
	if err != nil {
		return err
	}
	st := storage.New(dataDir)
	if err := st.Init(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	results, err := automation.RunScenario(ctx, sc, experiment.NewRegistry(), st, logging.NewFromEnv())
	for _, r := range results {
		fmt.Printf("%s\t%s\tdrift=%.3g\n", r.Name, r.RunID, r.Metrics["energy_drift"])
	}
	return err
}

func runSweep(cmd *cobra.Command, args []string) error {
	base, err := baseConfig(args)
	if err != nil {
		return err
	}
	sweep := &automation.ParameterSweep{
		Base:     base,
		Param:    sweepParam,
		ParamMin: sweepMin,
		ParamMax: sweepMax,
		NumSteps: sweepSteps,
	}
	results, err := automation.RunSweep(context.Background(), sweep, experiment.NewRegistry(), logging.NewFromEnv())
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "%s\tMEAN_ENERGY\tDRIFT\tFINAL_POPULATIONS\n", strings.ToUpper(sweepParam))
	for _, r := range results {
		pops := make([]string, len(r.Final))
		for i, p := range r.Final {
			pops[i] = strconv.FormatFloat(p, 'f', 4, 64)
		}
		fmt.Fprintf(w, "%.4g\t%.6f\t%.3g\t%s\n", r.ParamValue, r.Metrics["mean_energy"], r.Metrics["energy_drift"], strings.Join(pops, " "))
	}
	return w.Flush()
}

func runSearch(cmd *cobra.Command, args []string) error {
	base, err := baseConfig(args)
	if err != nil {
		return err
	}
	if len(gridSpecs) == 0 {
		return fmt.Errorf("at least one --grid is required")
	}
	names := make([]string, 0, len(gridSpecs))
	ranges := make([][]float64, 0, len(gridSpecs))
	for _, entry := range gridSpecs {
		k, list, ok := strings.Cut(entry, "=")
		if !ok || k == "" {
			return fmt.Errorf("invalid grid %q, want constant=v1,v2", entry)
		}
		var vals []float64
		for _, f := range strings.Split(list, ",") {
			v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
			if err != nil {
				return fmt.Errorf("grid %s: %w", k, err)
			}
			vals = append(vals, v)
		}
		names = append(names, k)
		ranges = append(ranges, vals)
	}

	log := logging.NewFromEnv()
	reg := experiment.NewRegistry()
	build := func(params map[string]float64) (*experiment.Experiment, error) {
		cfg := base.Clone()
		if cfg.Model.Constants == nil {
			cfg.Model.Constants = make(map[string]any)
		}
		for k, v := range params {
			cfg.Model.Constants[k] = v
		}
		exp := experiment.New(cfg, reg, log)
		return exp, exp.Setup()
	}

	probe, err := build(nil)
	if err != nil {
		return err
	}
	n, err := probe.Simulation().Model.NumQuantumStates()
	if err != nil {
		return err
	}
	best, val, err := optim.NewGridSearch(names, ranges).Search(context.Background(), build, gridMetric, metrics.Defaults(n)...)
	if err != nil {
		return err
	}
	keys := make([]string, 0, len(best))
	for k := range best {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Printf("%s = %g\n", k, best[k])
	}
	fmt.Printf("%s = %.6g\n", gridMetric, val)
	return nil
}
