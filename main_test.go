package main

import (
	"math"
	"os"
	"path/filepath"
	"testing"
	"text/template"
	"time"

	"epicurve/epidata"
	"epicurve/mcmc"
	"epicurve/models"
	"epicurve/posterior"
)

func TestLoadConfigDefaults(t *testing.T) {
	if err := loadConfig(""); err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	cfg := readConfig(false)

	if cfg.Chains != 4 || cfg.Iterations != 1000 || cfg.Warmup != 1000 {
		t.Errorf("sampling defaults = %d/%d/%d, want 4/1000/1000",
			cfg.Chains, cfg.Iterations, cfg.Warmup)
	}
	if cfg.Lower != 0.055 || cfg.Upper != 0.945 {
		t.Errorf("quantile defaults = %v/%v, want 0.055/0.945", cfg.Lower, cfg.Upper)
	}
	if cfg.Country != "Germany" {
		t.Errorf("default country = %q", cfg.Country)
	}
	if cfg.Threshold != 100 {
		t.Errorf("default threshold = %v", cfg.Threshold)
	}
	rw := cfg.RW
	if rw.StepSD != 0.035 || rw.MeanFloor != 0.01 || rw.SimCeiling != 1e7 {
		t.Errorf("random-walk defaults = %+v", rw)
	}
}

func TestLoadConfigMissingExplicitFile(t *testing.T) {
	if err := loadConfig(filepath.Join(t.TempDir(), "nope.yml")); err == nil {
		t.Error("missing explicit config file accepted")
	}
}

func TestToPayload(t *testing.T) {
	day := func(d int) time.Time {
		return time.Date(2020, 3, 1+d, 0, 0, 0, 0, time.UTC)
	}
	pts := []epidata.Point{
		{T: 0, Date: day(0), Cases: 120},
		{T: 1, Date: day(1), Cases: 150},
		{T: 3, Date: day(3), Cases: 260},
	}
	d := toPayload(pts)
	if len(d.T) != 3 || len(d.Y) != 3 {
		t.Fatalf("payload lengths = %d/%d", len(d.T), len(d.Y))
	}
	if d.T[2] != 3 || d.Y[2] != 260 {
		t.Errorf("payload tail = (%v, %v), want (3, 260)", d.T[2], d.Y[2])
	}
}

func TestBandPlotTemplateParses(t *testing.T) {
	if _, err := template.New("plot").Parse(bandPlotTmpl); err != nil {
		t.Fatalf("band plot template: %v", err)
	}
}

func TestPriorRunWritesBands(t *testing.T) {
	dir := t.TempDir()
	cfg := runConfig{
		Iterations: 50,
		Seed:       3,
		Lower:      0.055,
		Upper:      0.945,
		OutDir:     dir,
	}
	r := modelRun{
		name: "exponential",
		data: models.Data{T: []float64{0, 1, 2, 3}, Y: []float64{120, 150, 200, 260}},
		build: func(d models.Data) (models.Model, error) {
			return models.NewExpNormal(d)
		},
	}
	if err := runModel(r, cfg, true, false); err != nil {
		t.Fatalf("runModel: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "prior_exponential.csv")); err != nil {
		t.Errorf("prior bands CSV missing: %v", err)
	}
}

// TestNegBinomFitCoversObservedSeries fits the exponential negative-binomial
// model to a clean 30%-growth series and checks the posterior predictive band
// tracks it.
func TestNegBinomFitCoversObservedSeries(t *testing.T) {
	n := 10
	data := models.Data{T: make([]float64, n), Y: make([]float64, n)}
	ts := make([]int, n)
	obs := make(map[int]float64, n)
	for i := 0; i < n; i++ {
		data.T[i] = float64(i)
		data.Y[i] = math.Round(100 * math.Pow(1.3, float64(i)))
		ts[i] = i
		obs[i] = data.Y[i]
	}

	model, err := models.NewExpNegBinom(data)
	if err != nil {
		t.Fatalf("NewExpNegBinom: %v", err)
	}
	ds, err := mcmc.Sample(model, mcmc.Options{
		Chains:     2,
		Iterations: 1500,
		Warmup:     1500,
		Seed:       11,
	})
	if err != nil {
		t.Fatalf("Sample: %v", err)
	}
	if err := ds.AddSeries("case_sim", model.Len(), model.Simulate, 11); err != nil {
		t.Fatalf("AddSeries: %v", err)
	}

	bands, err := posterior.Summarize(ds, "case_sim", ts, obs, 0.055, 0.945)
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}

	covered := 0
	for i, b := range bands {
		if data.Y[i] >= b.Lower && data.Y[i] <= b.Upper {
			covered++
		}
	}
	if covered < 8 {
		t.Errorf("band covers %d of %d observed points, want at least 8", covered, n)
	}
	if bands[n-1].Mean <= bands[0].Mean {
		t.Error("posterior predictive mean does not grow with the data")
	}
}
