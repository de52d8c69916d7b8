package saltamt_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/3cpo-dev/saltamt/internal/api"
	"github.com/3cpo-dev/saltamt/internal/core"
	"github.com/3cpo-dev/saltamt/internal/engine"
	"github.com/3cpo-dev/saltamt/internal/engine/policyengine"
	"github.com/3cpo-dev/saltamt/internal/household"
	"github.com/3cpo-dev/saltamt/internal/impacts"
	"github.com/3cpo-dev/saltamt/internal/policy"
	v0 "github.com/3cpo-dev/saltamt/pkg/api"
)

// fakeUpstream mimics the PolicyEngine calculate endpoint. Every requested
// output is answered with 10 per reformed parameter plus the point index.
type fakeUpstream struct {
	calls atomic.Int64
}

func (f *fakeUpstream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.calls.Add(1)
	if r.URL.Path != "/us/calculate" || r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var body struct {
		Household struct {
			TaxUnits   map[string]map[string]interface{} `json:"tax_units"`
			Households map[string]map[string]interface{} `json:"households"`
			Axes       [][]household.Axis                 `json:"axes"`
		} `json:"household"`
		Policy map[string]interface{} `json:"policy"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "error", "message": err.Error()})
		return
	}
	points := 1
	for _, g := range body.Household.Axes {
		points *= g[0].Count
	}
	base := 10 * float64(len(body.Policy))
	fill := func(groups map[string]map[string]interface{}) {
		for _, ent := range groups {
			for name, v := range ent {
				periods, ok := v.(map[string]interface{})
				if !ok {
					continue
				}
				for period, pv := range periods {
					if pv != nil {
						continue
					}
					if len(body.Household.Axes) == 0 {
						ent[name] = map[string]interface{}{period: base}
						continue
					}
					vals := make([]float64, points)
					for i := range vals {
						vals[i] = base + float64(i)
					}
					ent[name] = map[string]interface{}{period: vals}
				}
			}
		}
	}
	fill(body.Household.TaxUnits)
	fill(body.Household.Households)
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"status": "ok",
		"result": map[string]interface{}{
			"tax_units":  body.Household.TaxUnits,
			"households": body.Household.Households,
		},
	})
}

// TestFullWorkflow drives the HTTP API against a fake engine, through the
// real engine client, chunking, the result cache and the impacts store.
func TestFullWorkflow(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	tmpDir := t.TempDir()

	upstream := &fakeUpstream{}
	engineSrv := httptest.NewServer(upstream)
	defer engineSrv.Close()

	cfg := createTestConfig(t, tmpDir, engineSrv.URL)
	reg, err := policyengine.NewRegistry(cfg)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	store, err := core.NewStore(cfg.Cache.Path)
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	defer store.Close()
	opts := core.OptionsFromConfig(cfg)
	opts.Store = store

	srv := api.New("integration", reg, opts, store)
	apiSrv := httptest.NewServer(srv.Handler())
	defer apiSrv.Close()

	in := core.Input{
		Household: household.Household{StateCode: "NY", IsMarried: true, EmploymentIncome: 300_000, RealEstateTaxes: 25_000},
		Policy:    policy.Config{SALTMode: policy.SALTCap, SALTCap: 20_000, SALTMarriageBonus: true},
		Outputs:   []string{"income_tax", "household_net_income"},
	}

	t.Run("Calculate", func(t *testing.T) {
		before := upstream.calls.Load()
		var resp struct {
			Baseline map[string]float64 `json:"baseline"`
			Reform   map[string]float64 `json:"reform"`
			Change   map[string]float64 `json:"change"`
		}
		post(t, apiSrv.URL+"/v0/calculate", v0.CalculateRequest{Input: in}, http.StatusOK, &resp)
		if got := upstream.calls.Load() - before; got != 2 {
			t.Fatalf("expected baseline and reform calls, got %d", got)
		}
		if resp.Baseline["income_tax"] != 0 || resp.Reform["income_tax"] == 0 {
			t.Fatalf("unexpected values %+v", resp)
		}
		if resp.Change["income_tax"] != resp.Reform["income_tax"]-resp.Baseline["income_tax"] {
			t.Fatalf("change is not reform minus baseline: %+v", resp)
		}
	})

	t.Run("Cache", func(t *testing.T) {
		before := upstream.calls.Load()
		post(t, apiSrv.URL+"/v0/calculate", v0.CalculateRequest{Input: in}, http.StatusOK, nil)
		if got := upstream.calls.Load() - before; got != 0 {
			t.Fatalf("repeat calculation should be served from cache, made %d calls", got)
		}
	})

	t.Run("Sweep_Chunked", func(t *testing.T) {
		before := upstream.calls.Load()
		var resp v0.SweepResponse
		post(t, apiSrv.URL+"/v0/sweep", v0.SweepRequest{
			Input: in,
			Axis:  household.Axis{Name: "employment_income", Min: 0, Max: 240_000, Count: 25},
		}, http.StatusOK, &resp)
		// 25 points in blocks of 10 is 3 calls per scenario.
		if got := upstream.calls.Load() - before; got != 6 {
			t.Fatalf("expected 6 engine calls, got %d", got)
		}
		base := resp.Sweep.Baseline["income_tax"]
		if len(base) != 25 {
			t.Fatalf("expected 25 points, got %d", len(base))
		}
		// Each block restarts its index, so position 10 opens the second block.
		if base[9] != 9 || base[10] != 0 || base[24] != 4 {
			t.Fatalf("blocks scattered wrong: %v", base)
		}
		if resp.Sweep.X[24] != 240_000 {
			t.Fatalf("last x %v", resp.Sweep.X[24])
		}
	})

	t.Run("Grid", func(t *testing.T) {
		var resp v0.GridResponse
		post(t, apiSrv.URL+"/v0/grid", v0.GridRequest{
			Input: in,
			X:     household.Axis{Name: "employment_income", Max: 200_000, Count: 4},
			Y:     household.Axis{Name: "real_estate_taxes", Max: 40_000, Count: 3},
			Which: "baseline",
		}, http.StatusOK, &resp)
		// The engine varies x fastest, so cell [i][j] is engine index j*4+i.
		if resp.Heatmap.Z[2][1] != 6 || resp.Heatmap.Z[3][2] != 11 || resp.Heatmap.Z[1][0] != 1 || resp.Heatmap.Z[0][1] != 4 {
			t.Fatalf("grid cells misplaced: %v", resp.Heatmap.Z)
		}
	})

	t.Run("Engine_Failure", func(t *testing.T) {
		bad := createTestConfig(t, tmpDir, engineSrv.URL+"/missing")
		badReg, err := policyengine.NewRegistry(bad)
		if err != nil {
			t.Fatal(err)
		}
		h := api.New("integration", badReg, core.OptionsFromConfig(bad), nil).Handler()
		s := httptest.NewServer(h)
		defer s.Close()
		post(t, s.URL+"/v0/calculate", v0.CalculateRequest{Input: in}, http.StatusBadGateway, nil)
	})

	t.Run("Impacts", func(t *testing.T) {
		csvPath := filepath.Join(tmpDir, "impacts.csv")
		key := in.Policy.Normalize().Key()
		data := "reform_key,baseline,year,budget_impact,winners_share\n" + key + ",current_law,2026,-1.5e11,0.42\n"
		if err := os.WriteFile(csvPath, []byte(data), 0o600); err != nil {
			t.Fatal(err)
		}
		if n, err := impacts.ImportFile(context.Background(), store, csvPath); err != nil || n != 1 {
			t.Fatalf("import: n=%d err=%v", n, err)
		}
		res, err := http.Get(apiSrv.URL + "/v0/impacts?key=" + key)
		if err != nil {
			t.Fatal(err)
		}
		defer res.Body.Close()
		var rec impacts.Record
		if err := json.NewDecoder(res.Body).Decode(&rec); err != nil {
			t.Fatal(err)
		}
		if res.StatusCode != http.StatusOK || rec.Metrics["winners_share"] != 0.42 {
			t.Fatalf("status %d record %+v", res.StatusCode, rec)
		}
	})
}

func createTestConfig(t *testing.T, tmpDir, engineURL string) engine.Config {
	t.Helper()
	var cfg engine.Config
	cfg.Engine.Endpoints = []engine.Endpoint{{Name: "policyengine", URL: engineURL}}
	cfg.Engine.Retries = 1
	cfg.Engine.MaxAxisCount = 10
	cfg.Engine.Concurrency = 2
	cfg.Cache.Enabled = true
	cfg.Cache.Path = filepath.Join(tmpDir, "cache.db")
	cfg.ApplyDefaults()
	return cfg
}

func post(t *testing.T, url string, body interface{}, want int, out interface{}) {
	t.Helper()
	b, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	res, err := http.Post(url, "application/json", bytes.NewReader(b))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	defer res.Body.Close()
	if res.StatusCode != want {
		var e v0.ErrorResponse
		_ = json.NewDecoder(res.Body).Decode(&e)
		t.Fatalf("POST %s: status %d, want %d: %s", url, res.StatusCode, want, e.Error)
	}
	if out != nil {
		if err := json.NewDecoder(res.Body).Decode(out); err != nil {
			t.Fatalf("decode: %v", err)
		}
	}
}
