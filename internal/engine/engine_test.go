package engine

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/3cpo-dev/saltamt/internal/household"
)

func TestResultValues(t *testing.T) {
	r := &Result{Year: 2026, Raw: []byte(`{
		"tax_units": {"your tax unit": {"income_tax": {"2026": [10, 20.5, 30]}, "salt_deduction": {"2026": 10000}}},
		"households": {"your household": {"household_net_income": {"2026": 91000}}}
	}`)}

	v, err := r.Values(household.Variable{Name: "income_tax", Entity: household.TaxUnitEntity})
	if err != nil || len(v) != 3 || v[1] != 20.5 {
		t.Fatalf("income_tax %v, %v", v, err)
	}
	v, err = r.Values(household.Variable{Name: "household_net_income", Entity: household.HouseholdEntity})
	if err != nil || len(v) != 1 || v[0] != 91000 {
		t.Fatalf("household_net_income %v, %v", v, err)
	}
	if _, err := r.Values(household.Variable{Name: "taxable_income", Entity: household.TaxUnitEntity}); err == nil {
		t.Fatalf("expected error for missing variable")
	}
}

func TestFingerprintStable(t *testing.T) {
	s, err := household.Build(household.Default(), household.DefaultOutputs)
	if err != nil {
		t.Fatal(err)
	}
	req := Request{Situation: s, Year: 2026}
	a, err := req.Fingerprint("pe")
	if err != nil {
		t.Fatal(err)
	}
	b, _ := req.Fingerprint("pe")
	c, _ := req.Fingerprint("other")
	if a != b || a == c || len(a) != 64 {
		t.Fatalf("fingerprints %s %s %s", a, b, c)
	}
	if _, err := (Request{}).Body(); err == nil {
		t.Fatalf("expected error without situation")
	}
}

func TestRetryableClientGivesUp(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	rc := DefaultRetryConfig()
	rc.MaxRetries = 2
	rc.InitialDelay = time.Millisecond
	c := NewRetryableHTTPClient(time.Second, 0, rc)
	req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
	resp, err := c.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusTooManyRequests || calls != 3 {
		t.Fatalf("status %d after %d calls", resp.StatusCode, calls)
	}
}

func TestRateLimiterHonorsContext(t *testing.T) {
	rl := NewRateLimiter(0.5)
	if err := rl.Wait(context.Background()); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := rl.Wait(ctx); err == nil {
		t.Fatalf("expected context error while rate limited")
	}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	if _, err := r.Get(""); err == nil {
		t.Fatalf("empty registry must fail")
	}
	r.Register(stub("a"))
	r.Register(stub("b"))
	if s, _ := r.Get(""); s.Name() != "a" {
		t.Fatalf("first registered should be default")
	}
	if err := r.SetDefault("b"); err != nil {
		t.Fatal(err)
	}
	if s, _ := r.Get(""); s.Name() != "b" {
		t.Fatalf("default not switched")
	}
	if names := r.Names(); len(names) != 2 || names[0] != "a" {
		t.Fatalf("names %v", names)
	}
}

type stub string

func (s stub) Name() string { return string(s) }
func (s stub) Calculate(ctx context.Context, req Request) (*Result, error) {
	return &Result{Year: req.Year}, nil
}
