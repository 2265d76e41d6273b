// Command epicurve walks a Bayesian analysis of COVID-19 case trajectories
// end to end: ingest the JHU-style wide CSV, then for each model variant run
// a prior-predictive check and a posterior fit, writing credible-band CSVs
// and optional gnuplot renderings.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"

	"epicurve/epidata"
	"epicurve/gnuplot"
	"epicurve/mcmc"
	"epicurve/models"
	"epicurve/posterior"
)

const bandPlotTmpl = `set terminal pngcairo size 900,540 font "Helvetica,11"
set output "{{.Out}}"
set title "{{.Title}}"
set xlabel "days since outbreak threshold"
set ylabel "{{.YLabel}}"
set datafile missing "?"
set key top left
set style fill transparent solid 0.25 noborder
plot "{{.Data}}" using 1:3:4 with filledcurves lc rgb "#4169e1" title "{{.Interval}}", \
     "" using 1:2 with lines lw 2 lc rgb "#4169e1" title "mean", \
     "" using 1:5 with linespoints pt 7 ps 0.5 lc rgb "#d62728" title "observed"
`

// runConfig is the resolved configuration for one invocation.
type runConfig struct {
	CSV        string
	Country    string
	Threshold  float64
	Chains     int
	Iterations int
	Warmup     int
	Thin       int
	Seed       uint64
	Lower      float64
	Upper      float64
	RW         models.RandomWalkConfig
	OutDir     string
	WriteDraws bool
	Plot       bool
}

// modelRun pairs a model variant with the payload it fits.
type modelRun struct {
	name  string
	data  models.Data
	build func(models.Data) (models.Model, error)
}

func main() {
	// 1. CLI flags and configuration.
	var (
		configPath = flag.String("config", "", "YAML config file; built-in defaults apply when absent")
		csvPath    = flag.String("csv", "", "wide-format cumulative-cases CSV (overrides config)")
		country    = flag.String("country", "", "region to analyse (overrides config)")
		modelName  = flag.String("model", "all", "exponential, negbinomial, logistic, randomwalk or all")
		mode       = flag.String("mode", "all", "prior, posterior or all")
		outDir     = flag.String("out", "", "output directory (overrides config)")
		plot       = flag.Bool("plot", false, "render PNG plots with gnuplot")
	)
	flag.Parse()

	initLog()
	if err := loadConfig(*configPath); err != nil {
		log.Fatal(err)
	}
	if *csvPath != "" {
		viper.Set("data.csv", *csvPath)
	}
	if *country != "" {
		viper.Set("data.country", *country)
	}
	if *outDir != "" {
		viper.Set("output.dir", *outDir)
	}
	cfg := readConfig(*plot)

	if cfg.CSV == "" {
		log.Fatal("no input CSV: pass -csv or set data.csv")
	}
	runPrior := *mode == "all" || *mode == "prior"
	runPost := *mode == "all" || *mode == "posterior"
	if !runPrior && !runPost {
		log.Fatalf("unknown mode %q", *mode)
	}
	if err := os.MkdirAll(cfg.OutDir, 0o755); err != nil {
		log.Fatal(err)
	}

	// 2. Ingest the wide CSV and build the per-region payloads.
	table, err := epidata.LoadWideCSV(cfg.CSV)
	if err != nil {
		log.Fatal(err)
	}
	log.WithFields(log.Fields{
		"rows":    len(table),
		"regions": len(epidata.Regions(table)),
	}).Info("case table loaded")

	cum := epidata.AboveThreshold(epidata.RegionSeries(table, cfg.Country), cfg.Threshold)
	if len(cum) == 0 {
		log.Fatalf("%s never exceeds %v cumulative cases", cfg.Country, cfg.Threshold)
	}
	daily := epidata.DailyDeltas(cum)
	if len(daily) < 2 {
		log.Fatalf("%s: too few observations above the threshold", cfg.Country)
	}
	log.WithFields(log.Fields{
		"country": cfg.Country,
		"days":    len(cum),
		"from":    cum[0].Date.Format("2006-01-02"),
		"to":      cum[len(cum)-1].Date.Format("2006-01-02"),
	}).Info("series ready")

	growth := toPayload(cum)
	newCases := toPayload(daily)
	runs := []modelRun{
		{"exponential", growth, func(d models.Data) (models.Model, error) { return models.NewExpNormal(d) }},
		{"negbinomial", growth, func(d models.Data) (models.Model, error) { return models.NewExpNegBinom(d) }},
		{"logistic", growth, func(d models.Data) (models.Model, error) { return models.NewLogistic(d) }},
		{"randomwalk", newCases, func(d models.Data) (models.Model, error) { return models.NewRandomWalk(d, cfg.RW) }},
	}

	// 3. Walk the selected models.
	matched := false
	for _, r := range runs {
		if *modelName != "all" && *modelName != r.name {
			continue
		}
		matched = true
		if err := runModel(r, cfg, runPrior, runPost); err != nil {
			log.WithField("model", r.name).Error(err)
		}
	}
	if !matched {
		log.Fatalf("unknown model %q", *modelName)
	}
}

func initLog() {
	log.SetFormatter(&prefixed.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
		ForceFormatting: true,
	})
	log.SetOutput(os.Stdout)
}

func loadConfig(path string) error {
	viper.SetDefault("data.csv", "")
	viper.SetDefault("data.country", "Germany")
	viper.SetDefault("data.threshold", 100)
	viper.SetDefault("sample.chains", 4)
	viper.SetDefault("sample.iterations", 1000)
	viper.SetDefault("sample.warmup", 1000)
	viper.SetDefault("sample.thin", 1)
	viper.SetDefault("sample.seed", 1)
	viper.SetDefault("summary.lower", 0.055)
	viper.SetDefault("summary.upper", 0.945)
	viper.SetDefault("randomwalk.step_sd", 0.035)
	viper.SetDefault("randomwalk.mean_floor", 0.01)
	viper.SetDefault("randomwalk.sim_floor", 1)
	viper.SetDefault("randomwalk.sim_ceiling", 1e7)
	viper.SetDefault("randomwalk.sim_seed", 1)
	viper.SetDefault("output.dir", "out")
	viper.SetDefault("output.draws", false)

	viper.SetEnvPrefix("epicurve")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if path != "" {
		viper.SetConfigFile(path)
		if err := viper.ReadInConfig(); err != nil {
			return fmt.Errorf("read config %s: %w", path, err)
		}
		return nil
	}
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	if err := viper.ReadInConfig(); err != nil {
		// Defaults carry the run when no config file exists.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("read config: %w", err)
		}
	}
	return nil
}

func readConfig(plot bool) runConfig {
	return runConfig{
		CSV:        viper.GetString("data.csv"),
		Country:    viper.GetString("data.country"),
		Threshold:  viper.GetFloat64("data.threshold"),
		Chains:     viper.GetInt("sample.chains"),
		Iterations: viper.GetInt("sample.iterations"),
		Warmup:     viper.GetInt("sample.warmup"),
		Thin:       viper.GetInt("sample.thin"),
		Seed:       viper.GetUint64("sample.seed"),
		Lower:      viper.GetFloat64("summary.lower"),
		Upper:      viper.GetFloat64("summary.upper"),
		RW: models.RandomWalkConfig{
			StepSD:     viper.GetFloat64("randomwalk.step_sd"),
			MeanFloor:  viper.GetFloat64("randomwalk.mean_floor"),
			SimFloor:   viper.GetFloat64("randomwalk.sim_floor"),
			SimCeiling: viper.GetFloat64("randomwalk.sim_ceiling"),
			SimSeed:    viper.GetFloat64("randomwalk.sim_seed"),
		},
		OutDir:     viper.GetString("output.dir"),
		WriteDraws: viper.GetBool("output.draws"),
		Plot:       plot,
	}
}

// toPayload flattens a point series into the model payload.
func toPayload(pts []epidata.Point) models.Data {
	d := models.Data{
		T: make([]float64, len(pts)),
		Y: make([]float64, len(pts)),
	}
	for i, p := range pts {
		d.T[i] = float64(p.T)
		d.Y[i] = p.Cases
	}
	return d
}

func runModel(r modelRun, cfg runConfig, runPrior, runPost bool) error {
	ts := make([]int, len(r.data.T))
	obs := make(map[int]float64, len(r.data.Y))
	for i, t := range r.data.T {
		ts[i] = int(t)
		obs[ts[i]] = r.data.Y[i]
	}

	if runPrior {
		if err := priorRun(r, cfg, ts, obs); err != nil {
			return fmt.Errorf("prior check: %v", err)
		}
	}
	if runPost {
		if err := posteriorRun(r, cfg, ts, obs); err != nil {
			return fmt.Errorf("posterior fit: %v", err)
		}
	}
	return nil
}

// priorRun draws from the unconditioned model and summarizes what data it
// considers plausible before seeing any.
func priorRun(r modelRun, cfg runConfig, ts []int, obs map[int]float64) error {
	model, err := r.build(models.Data{T: r.data.T})
	if err != nil {
		return err
	}
	log.WithFields(log.Fields{
		"model":      r.name,
		"iterations": cfg.Iterations,
	}).Info("prior predictive")

	ds, err := mcmc.FixedParam(model, "case_sim", mcmc.Options{
		Iterations: cfg.Iterations,
		Seed:       cfg.Seed,
	})
	if err != nil {
		return err
	}
	bands, err := posterior.Summarize(ds, "case_sim", ts, obs, cfg.Lower, cfg.Upper)
	if err != nil {
		return err
	}

	out := filepath.Join(cfg.OutDir, "prior_"+r.name+".csv")
	if err := posterior.WriteBandsCSV(out, bands); err != nil {
		return err
	}
	log.WithField("file", out).Info("prior bands written")

	if cfg.Plot {
		png := filepath.Join(cfg.OutDir, "prior_"+r.name+".png")
		if err := plotBands(png, r.name+" prior predictive", "cases", cfg, bands); err != nil {
			return err
		}
		log.WithField("file", png).Info("plot written")
	}
	return nil
}

// posteriorRun fits the model, prints and writes the parameter table, then
// replays the simulator over the posterior draws for the predictive band.
func posteriorRun(r modelRun, cfg runConfig, ts []int, obs map[int]float64) error {
	model, err := r.build(r.data)
	if err != nil {
		return err
	}
	log.WithFields(log.Fields{
		"model":      r.name,
		"chains":     cfg.Chains,
		"iterations": cfg.Iterations,
		"warmup":     cfg.Warmup,
	}).Info("sampling posterior")

	ds, err := mcmc.Sample(model, mcmc.Options{
		Chains:     cfg.Chains,
		Iterations: cfg.Iterations,
		Warmup:     cfg.Warmup,
		Thin:       cfg.Thin,
		Seed:       cfg.Seed,
	})
	if err != nil {
		return err
	}
	for _, cerr := range ds.Errs() {
		log.WithField("model", r.name).Warnf("dropped chain: %v", cerr)
	}
	for _, c := range ds.Kept() {
		log.WithFields(log.Fields{
			"chain":  c.ID,
			"accept": fmt.Sprintf("%.2f", c.Accept),
		}).Debug("chain finished")
	}

	params, err := posterior.SummarizeParams(ds, cfg.Lower, cfg.Upper)
	if err != nil {
		return err
	}
	fmt.Printf("\nPosterior parameters, %s model (%d draws):\n", r.name, ds.NumDraws())
	posterior.PrintParams(params)
	fmt.Println()
	if err := posterior.WriteParamsCSV(filepath.Join(cfg.OutDir, "params_"+r.name+".csv"), params); err != nil {
		return err
	}

	// Posterior predictive: replay the simulator at every kept draw.
	if err := ds.AddSeries("case_sim", model.Len(), model.Simulate, cfg.Seed); err != nil {
		return err
	}
	bands, err := posterior.Summarize(ds, "case_sim", ts, obs, cfg.Lower, cfg.Upper)
	if err != nil {
		return err
	}
	out := filepath.Join(cfg.OutDir, "posterior_"+r.name+".csv")
	if err := posterior.WriteBandsCSV(out, bands); err != nil {
		return err
	}
	log.WithField("file", out).Info("posterior bands written")

	if cfg.Plot {
		png := filepath.Join(cfg.OutDir, "posterior_"+r.name+".png")
		if err := plotBands(png, r.name+" posterior predictive", "cases", cfg, bands); err != nil {
			return err
		}
		log.WithField("file", png).Info("plot written")
	}

	// The latent walk doubles as a reproduction-number estimate.
	if rw, ok := model.(*models.RandomWalk); ok {
		if err := ds.AddSeries("r_t", rw.Len(), rw.Rt, cfg.Seed); err != nil {
			return err
		}
		rt, err := posterior.Summarize(ds, "r_t", ts, nil, cfg.Lower, cfg.Upper)
		if err != nil {
			return err
		}
		rtOut := filepath.Join(cfg.OutDir, "rt_"+r.name+".csv")
		if err := posterior.WriteBandsCSV(rtOut, rt); err != nil {
			return err
		}
		log.WithField("file", rtOut).Info("reproduction-number band written")
		if cfg.Plot {
			png := filepath.Join(cfg.OutDir, "rt_"+r.name+".png")
			if err := plotBands(png, "time-varying reproduction number", "R(t)", cfg, rt); err != nil {
				return err
			}
		}
	}

	if cfg.WriteDraws {
		draws := filepath.Join(cfg.OutDir, "draws_"+r.name+".csv")
		if err := posterior.WriteDrawsCSV(draws, ds); err != nil {
			return err
		}
		log.WithField("file", draws).Info("raw draws written")
	}
	return nil
}

func plotBands(out, title, ylabel string, cfg runConfig, bands []posterior.Band) error {
	rows := make([][]float64, len(bands))
	for i, b := range bands {
		rows[i] = []float64{float64(b.T), b.Mean, b.Lower, b.Upper, b.Observed}
	}
	data, err := gnuplot.WriteTable(rows)
	if err != nil {
		return err
	}
	defer os.Remove(data)

	return gnuplot.ExecTemplate(bandPlotTmpl, struct {
		Data, Out, Title, YLabel, Interval string
	}{
		Data:     data,
		Out:      out,
		Title:    title,
		YLabel:   ylabel,
		Interval: fmt.Sprintf("%.0f%% interval", 100*(cfg.Upper-cfg.Lower)),
	})
}
